package domain

import "time"

// VehicleType represents the vehicle a driver delivers with.
type VehicleType string

// List of possible vehicle types.
const (
	VehicleBike    VehicleType = "bike"
	VehicleBicycle VehicleType = "bicycle"
	VehicleCar     VehicleType = "car"
	VehicleScooter VehicleType = "scooter"
)

var allowedVehicleTypes = [...]VehicleType{
	VehicleBike, VehicleBicycle, VehicleCar, VehicleScooter,
}

// Valid checks if the VehicleType is valid.
func (v VehicleType) Valid() bool {
	for _, t := range allowedVehicleTypes {
		if v == t {
			return true
		}
	}
	return false
}

// DriverSnapshot is a read-side view of a driver produced by the driver
// directory for matching: identity, availability flags, last-known location
// and rolling rating. Location is nil when the driver has never reported one.
type DriverSnapshot struct {
	DriverID    int64
	IsOnline    bool
	IsAvailable bool
	Lat         *float64
	Lon         *float64
	Rating      float64
}

// DriverAvailability tracks a driver's presence, location and rolling stats.
// IsOnline is session-level presence; IsAvailable is false while the driver
// holds an accepted-or-later delivery.
type DriverAvailability struct {
	DriverID    int64
	IsOnline    bool
	IsAvailable bool

	CurrentLat *float64
	CurrentLon *float64

	TotalDeliveries      int64
	SuccessfulDeliveries int64
	CancelledDeliveries  int64
	AverageRating        float64

	VehicleType  VehicleType
	VehiclePlate string

	LastOnline         *time.Time
	LastLocationUpdate *time.Time
}
