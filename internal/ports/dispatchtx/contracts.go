package dispatchtx

import (
	"context"
	"time"

	"service-dispatch/internal/domain"
)

// DeliveryClaim carries the fields written when a delivery is claimed for a
// driver. The write is conditional: it succeeds only if the delivery is still
// pending and unassigned (or is being created for the first time).
type DeliveryClaim struct {
	OrderID    string
	DriverID   int64
	PickupLat  *float64
	PickupLon  *float64
	DropoffLat *float64
	DropoffLon *float64
	DistanceKm float64
	AssignedAt time.Time
}

// DeliveryPatch carries the optional fields written alongside a status
// transition. A nil field means "do not change".
type DeliveryPatch struct {
	DriverID           *int64
	ClearDriver        bool
	AssignedAt         *time.Time
	AcceptedAt         *time.Time
	ActualPickupTime   *time.Time
	ActualDeliveryTime *time.Time
	DistanceKm         *float64
	DriverNotes        *string
	CancellationReason *string
}

// Repository is the transactional dispatch repository. Implementations must
// back every conditional update with an atomic compare-and-swap on the status
// column so concurrent transitions for the same row cannot both succeed.
type Repository interface {
	// Orders (read side).
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	// MarkOrderDelivered writes the coarse order-level status on completion.
	MarkOrderDelivered(ctx context.Context, orderID string) error

	// Deliveries.
	GetDelivery(ctx context.Context, id int64) (*domain.Delivery, error)
	GetDeliveryForUpdate(ctx context.Context, id int64) (*domain.Delivery, error)
	GetDeliveryByOrderID(ctx context.Context, orderID string) (*domain.Delivery, error)
	// CreateDelivery inserts a new delivery row; returns false when a row for
	// the order already exists (the caller lost the creation race).
	CreateDelivery(ctx context.Context, d *domain.Delivery) (bool, error)
	// ClaimDelivery assigns a driver to an existing pending, unassigned
	// delivery; returns false when the conditional update matched no row.
	ClaimDelivery(ctx context.Context, deliveryID int64, claim DeliveryClaim) (bool, error)
	// UpdateDeliveryIfStatus applies newStatus and patch iff the row still has
	// expected status; returns false when the CAS matched no row.
	UpdateDeliveryIfStatus(ctx context.Context, id int64, expected, newStatus domain.DeliveryStatus, patch DeliveryPatch) (bool, error)
	// MarkForManualAssignment upserts a pending, driverless delivery for the
	// order with an operator-visible note. The update arm is conditional like
	// every other delivery write: returns false when the existing row is no
	// longer pending and unassigned (the caller lost a concurrent assignment).
	MarkForManualAssignment(ctx context.Context, orderID, note string) (bool, error)
	// ListExpiredAssignments returns deliveries still assigned (not accepted)
	// whose assignment is older than the cutoff.
	ListExpiredAssignments(ctx context.Context, cutoff time.Time, limit int) ([]domain.Delivery, error)

	// Driver directory and availability.
	ListOnlineDrivers(ctx context.Context) ([]domain.DriverSnapshot, error)
	CountOnlineDrivers(ctx context.Context) (int, error)
	CountActiveDeliveries(ctx context.Context, driverID int64) (int, error)
	SetDriverAvailable(ctx context.Context, driverID int64, available bool) error
	// RestoreDriverIfOnline flips the driver back to available only while the
	// session is still online.
	RestoreDriverIfOnline(ctx context.Context, driverID int64) error
	IncrementDriverStats(ctx context.Context, driverID int64, successful bool) error
}

// Runner is a transaction runner
type Runner interface {
	WithTx(ctx context.Context, fn func(tx Repository) error) error
}
