package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"service-dispatch/internal/domain"
	"service-dispatch/internal/ports/dispatchtx"
)

// DispatchRepo represents the dispatch repository.
type DispatchRepo struct {
	db *pgxpool.Pool
}

// NewDispatchRepo creates a new DispatchRepo.
func NewDispatchRepo(db *pgxpool.Pool) *DispatchRepo {
	return &DispatchRepo{db: db}
}

// WithTx opens a transaction and executes fn within it.
func (r *DispatchRepo) WithTx(ctx context.Context, fn func(tx dispatchtx.Repository) error) (err error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	// roll back on panic before re-raising
	defer func() {
		if p := recover(); p != nil {
			err = tx.Rollback(ctx)
			if err != nil {
				panic(err)
			}
			panic(p)
		}
	}()

	wrapped := &TxRepo{tx: tx}

	if err := fn(wrapped); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback tx: %w (original error: %s)", rbErr, err.Error())
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// TxRepo represents transaction repository.
type TxRepo struct {
	tx pgx.Tx
}

const deliveryColumns = `
        id, order_id, driver_id, status,
        pickup_latitude, pickup_longitude, delivery_latitude, delivery_longitude,
        current_latitude, current_longitude, distance_km, driver_notes,
        cancellation_reason, assigned_at, accepted_at,
        actual_pickup_time, actual_delivery_time, created_at, updated_at`

func scanDelivery(row pgx.Row) (*domain.Delivery, error) {
	var d domain.Delivery
	err := row.Scan(
		&d.ID, &d.OrderID, &d.DriverID, &d.Status,
		&d.PickupLat, &d.PickupLon, &d.DropoffLat, &d.DropoffLon,
		&d.CurrentLat, &d.CurrentLon, &d.DistanceKm, &d.DriverNotes,
		&d.CancellationReason, &d.AssignedAt, &d.AcceptedAt,
		&d.ActualPickupTime, &d.ActualDeliveryTime, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// GetOrder - get the dispatch-relevant slice of an order.
func (r *TxRepo) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	row := r.tx.QueryRow(ctx, `
        SELECT o.id, o.restaurant_id,
               rest.latitude, rest.longitude,
               o.delivery_latitude, o.delivery_longitude
        FROM orders o
        JOIN restaurants rest ON rest.id = o.restaurant_id
        WHERE o.id = $1
    `, orderID)

	var o domain.Order
	err := row.Scan(&o.ID, &o.RestaurantID, &o.PickupLat, &o.PickupLon, &o.DropoffLat, &o.DropoffLon)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order %q: %w", orderID, err)
	}
	return &o, nil
}

// MarkOrderDelivered - write the coarse order-level status on completion.
func (r *TxRepo) MarkOrderDelivered(ctx context.Context, orderID string) error {
	_, err := r.tx.Exec(ctx, `
        UPDATE orders SET status = 'delivered', updated_at = now() WHERE id = $1
    `, orderID)
	if err != nil {
		return fmt.Errorf("mark order %q delivered: %w", orderID, err)
	}
	return nil
}

// GetDelivery - get delivery by ID.
func (r *TxRepo) GetDelivery(ctx context.Context, id int64) (*domain.Delivery, error) {
	d, err := scanDelivery(r.tx.QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get delivery %d: %w", id, err)
	}
	return d, nil
}

// GetDeliveryForUpdate - get delivery by ID with a row lock.
func (r *TxRepo) GetDeliveryForUpdate(ctx context.Context, id int64) (*domain.Delivery, error) {
	d, err := scanDelivery(r.tx.QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("get delivery %d for update: %w", id, err)
	}
	return d, nil
}

// GetDeliveryByOrderID - get delivery by order ID.
func (r *TxRepo) GetDeliveryByOrderID(ctx context.Context, orderID string) (*domain.Delivery, error) {
	d, err := scanDelivery(r.tx.QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE order_id = $1`, orderID))
	if err != nil {
		return nil, fmt.Errorf("get delivery by order %q: %w", orderID, err)
	}
	return d, nil
}

// CreateDelivery - insert a new delivery. Returns false when a delivery for
// the order already exists, so a concurrent creator loses without an error.
func (r *TxRepo) CreateDelivery(ctx context.Context, d *domain.Delivery) (bool, error) {
	err := r.tx.QueryRow(ctx, `
        INSERT INTO deliveries (
            order_id, driver_id, status,
            pickup_latitude, pickup_longitude, delivery_latitude, delivery_longitude,
            distance_km, driver_notes, assigned_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (order_id) DO NOTHING
        RETURNING id
    `, d.OrderID, d.DriverID, string(d.Status),
		d.PickupLat, d.PickupLon, d.DropoffLat, d.DropoffLon,
		d.DistanceKm, d.DriverNotes, d.AssignedAt,
	).Scan(&d.ID)
	if err != nil {
		// No row back means the ON CONFLICT arm fired; a duplicate error can
		// still surface from a unique index the conflict target does not cover.
		if IsNotFound(err) || IsDuplicate(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert delivery for order %q: %w", d.OrderID, err)
	}
	return true, nil
}

// ClaimDelivery - conditionally assign a driver to a pending, unassigned
// delivery. Zero rows affected means a concurrent claimer won.
func (r *TxRepo) ClaimDelivery(ctx context.Context, deliveryID int64, claim dispatchtx.DeliveryClaim) (bool, error) {
	ct, err := r.tx.Exec(ctx, `
        UPDATE deliveries
        SET driver_id = $2,
            status = 'assigned',
            pickup_latitude = $3, pickup_longitude = $4,
            delivery_latitude = $5, delivery_longitude = $6,
            distance_km = $7,
            assigned_at = $8,
            updated_at = now()
        WHERE id = $1 AND status = 'pending' AND driver_id IS NULL
    `, deliveryID, claim.DriverID,
		claim.PickupLat, claim.PickupLon, claim.DropoffLat, claim.DropoffLon,
		claim.DistanceKm, claim.AssignedAt)
	if err != nil {
		return false, fmt.Errorf("claim delivery %d: %w", deliveryID, err)
	}
	return ct.RowsAffected() > 0, nil
}

// UpdateDeliveryIfStatus - compare-and-swap status transition with optional
// field writes. Every state-machine transition routes through this primitive.
func (r *TxRepo) UpdateDeliveryIfStatus(ctx context.Context, id int64, expected, newStatus domain.DeliveryStatus, patch dispatchtx.DeliveryPatch) (bool, error) {
	q := `UPDATE deliveries SET status = $3, updated_at = now()`
	args := []any{id, string(expected), string(newStatus)}

	add := func(col string, v any) {
		args = append(args, v)
		q += fmt.Sprintf(", %s = $%d", col, len(args))
	}

	if patch.ClearDriver {
		q += ", driver_id = NULL, assigned_at = NULL"
	} else if patch.DriverID != nil {
		add("driver_id", *patch.DriverID)
	}
	if patch.AssignedAt != nil {
		add("assigned_at", *patch.AssignedAt)
	}
	if patch.AcceptedAt != nil {
		add("accepted_at", *patch.AcceptedAt)
	}
	if patch.ActualPickupTime != nil {
		add("actual_pickup_time", *patch.ActualPickupTime)
	}
	if patch.ActualDeliveryTime != nil {
		add("actual_delivery_time", *patch.ActualDeliveryTime)
	}
	if patch.DistanceKm != nil {
		add("distance_km", *patch.DistanceKm)
	}
	if patch.DriverNotes != nil {
		add("driver_notes", *patch.DriverNotes)
	}
	if patch.CancellationReason != nil {
		add("cancellation_reason", *patch.CancellationReason)
	}

	q += ` WHERE id = $1 AND status = $2`

	ct, err := r.tx.Exec(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("update delivery %d %s->%s: %w", id, expected, newStatus, err)
	}
	return ct.RowsAffected() > 0, nil
}

// MarkForManualAssignment - upsert a pending, driverless delivery carrying an
// operator-visible note, so exhausted retries never leave an order invisible.
// The update arm only touches rows that stayed pending and unassigned; a row
// claimed by a concurrent assignment is left alone and false comes back.
func (r *TxRepo) MarkForManualAssignment(ctx context.Context, orderID, note string) (bool, error) {
	ct, err := r.tx.Exec(ctx, `
        INSERT INTO deliveries (order_id, status, driver_notes)
        VALUES ($1, 'pending', $2)
        ON CONFLICT (order_id) DO UPDATE
        SET driver_notes = $2, updated_at = now()
        WHERE deliveries.status = 'pending' AND deliveries.driver_id IS NULL
    `, orderID, note)
	if err != nil {
		return false, fmt.Errorf("mark order %q for manual assignment: %w", orderID, err)
	}
	return ct.RowsAffected() > 0, nil
}

// ListExpiredAssignments - deliveries still assigned past the cutoff.
func (r *TxRepo) ListExpiredAssignments(ctx context.Context, cutoff time.Time, limit int) ([]domain.Delivery, error) {
	rows, err := r.tx.Query(ctx, `
        SELECT `+deliveryColumns+`
        FROM deliveries
        WHERE status = 'assigned' AND assigned_at < $1
        ORDER BY assigned_at
        LIMIT $2
    `, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired assignments: %w", err)
	}
	defer rows.Close()

	var out []domain.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired assignment: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// ListOnlineDrivers - online, verified, active drivers with availability and rating.
func (r *TxRepo) ListOnlineDrivers(ctx context.Context) ([]domain.DriverSnapshot, error) {
	rows, err := r.tx.Query(ctx, `
        SELECT a.driver_id, a.is_online, a.is_available,
               a.current_latitude, a.current_longitude, a.average_rating
        FROM driver_availability a
        JOIN drivers d ON d.id = a.driver_id
        WHERE a.is_online = true AND d.is_verified = true AND d.is_active = true
    `)
	if err != nil {
		return nil, fmt.Errorf("list online drivers: %w", err)
	}
	defer rows.Close()

	var out []domain.DriverSnapshot
	for rows.Next() {
		var s domain.DriverSnapshot
		if err := rows.Scan(&s.DriverID, &s.IsOnline, &s.IsAvailable, &s.Lat, &s.Lon, &s.Rating); err != nil {
			return nil, fmt.Errorf("scan driver snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountOnlineDrivers - count of online, verified, active drivers.
func (r *TxRepo) CountOnlineDrivers(ctx context.Context) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `
        SELECT COUNT(*)
        FROM driver_availability a
        JOIN drivers d ON d.id = a.driver_id
        WHERE a.is_online = true AND d.is_verified = true AND d.is_active = true
    `).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count online drivers: %w", err)
	}
	return n, nil
}

// CountActiveDeliveries - number of in-flight deliveries held by the driver.
func (r *TxRepo) CountActiveDeliveries(ctx context.Context, driverID int64) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `
        SELECT COUNT(*)
        FROM deliveries
        WHERE driver_id = $1
          AND status IN ('assigned', 'accepted', 'picked_up', 'en_route', 'arrived')
    `, driverID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active deliveries for driver %d: %w", driverID, err)
	}
	return n, nil
}

// SetDriverAvailable - set the driver's availability flag.
func (r *TxRepo) SetDriverAvailable(ctx context.Context, driverID int64, available bool) error {
	ct, err := r.tx.Exec(ctx, `
        UPDATE driver_availability
        SET is_available = $2, updated_at = now()
        WHERE driver_id = $1
    `, driverID, available)
	if err != nil {
		return fmt.Errorf("set driver %d availability: %w", driverID, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("driver %d availability not found", driverID)
	}
	return nil
}

// RestoreDriverIfOnline - restore availability only while the session is online.
func (r *TxRepo) RestoreDriverIfOnline(ctx context.Context, driverID int64) error {
	_, err := r.tx.Exec(ctx, `
        UPDATE driver_availability
        SET is_available = true, updated_at = now()
        WHERE driver_id = $1 AND is_online = true
    `, driverID)
	if err != nil {
		return fmt.Errorf("restore driver %d availability: %w", driverID, err)
	}
	return nil
}

// IncrementDriverStats - bump rolling delivery counters.
func (r *TxRepo) IncrementDriverStats(ctx context.Context, driverID int64, successful bool) error {
	q := `
        UPDATE driver_availability
        SET total_deliveries = total_deliveries + 1,
            successful_deliveries = successful_deliveries + 1,
            updated_at = now()
        WHERE driver_id = $1`
	if !successful {
		q = `
        UPDATE driver_availability
        SET total_deliveries = total_deliveries + 1,
            cancelled_deliveries = cancelled_deliveries + 1,
            updated_at = now()
        WHERE driver_id = $1`
	}
	if _, err := r.tx.Exec(ctx, q, driverID); err != nil {
		return fmt.Errorf("increment stats for driver %d: %w", driverID, err)
	}
	return nil
}
