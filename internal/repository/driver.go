package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"service-dispatch/internal/apperr"
	"service-dispatch/internal/domain"
)

// DriverRepo represents the driver availability repository.
type DriverRepo struct{ db *pgxpool.Pool }

// NewDriverRepo creates a new DriverRepo.
func NewDriverRepo(db *pgxpool.Pool) *DriverRepo { return &DriverRepo{db: db} }

// GetAvailability - returns the availability record for a driver, nil when absent.
func (r *DriverRepo) GetAvailability(ctx context.Context, driverID int64) (*domain.DriverAvailability, error) {
	var a domain.DriverAvailability
	err := r.db.QueryRow(ctx, `
        SELECT driver_id, is_online, is_available,
               current_latitude, current_longitude,
               total_deliveries, successful_deliveries, cancelled_deliveries, average_rating,
               vehicle_type, vehicle_plate, last_online, last_location_update
        FROM driver_availability
        WHERE driver_id = $1
    `, driverID).Scan(
		&a.DriverID, &a.IsOnline, &a.IsAvailable,
		&a.CurrentLat, &a.CurrentLon,
		&a.TotalDeliveries, &a.SuccessfulDeliveries, &a.CancelledDeliveries, &a.AverageRating,
		&a.VehicleType, &a.VehiclePlate, &a.LastOnline, &a.LastLocationUpdate,
	)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get availability for driver %d: %w", driverID, err)
	}
	return &a, nil
}

// GoOnline - mark the driver online and available and stamp the session start.
func (r *DriverRepo) GoOnline(ctx context.Context, driverID int64) error {
	ct, err := r.db.Exec(ctx, `
        UPDATE driver_availability
        SET is_online = true, is_available = true, last_online = now(), updated_at = now()
        WHERE driver_id = $1
    `, driverID)
	if err != nil {
		return fmt.Errorf("driver %d go online: %w", driverID, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: driver %d availability", apperr.ErrNotFound, driverID)
	}
	return nil
}

// GoOffline - mark the driver offline and unavailable.
func (r *DriverRepo) GoOffline(ctx context.Context, driverID int64) error {
	ct, err := r.db.Exec(ctx, `
        UPDATE driver_availability
        SET is_online = false, is_available = false, updated_at = now()
        WHERE driver_id = $1
    `, driverID)
	if err != nil {
		return fmt.Errorf("driver %d go offline: %w", driverID, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: driver %d availability", apperr.ErrNotFound, driverID)
	}
	return nil
}

// UpdateLocation - record the driver's last-known coordinates.
func (r *DriverRepo) UpdateLocation(ctx context.Context, driverID int64, lat, lon float64) error {
	ct, err := r.db.Exec(ctx, `
        UPDATE driver_availability
        SET current_latitude = $2, current_longitude = $3,
            last_location_update = now(), updated_at = now()
        WHERE driver_id = $1
    `, driverID, lat, lon)
	if err != nil {
		return fmt.Errorf("driver %d update location: %w", driverID, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: driver %d availability", apperr.ErrNotFound, driverID)
	}
	return nil
}
