package matching

import (
	"context"

	"service-dispatch/internal/domain"
)

// Directory abstracts the driver directory reads the matcher needs. The
// dispatch services pass their transaction-scoped repository here so matching
// sees the same snapshot the assignment writes against.
type Directory interface {
	ListOnlineDrivers(ctx context.Context) ([]domain.DriverSnapshot, error)
	CountActiveDeliveries(ctx context.Context, driverID int64) (int, error)
}
