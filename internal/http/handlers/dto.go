package handlers

import (
	"time"
)

type assignDeliveryRequest struct {
	OrderID string `json:"order_id"`
}

type manualAssignRequest struct {
	DriverID int64 `json:"driver_id"`
}

type driverActionRequest struct {
	DriverID int64  `json:"driver_id"`
	Reason   string `json:"reason,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

type cancelDeliveryRequest struct {
	Reason string `json:"reason"`
}

type updateLocationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type assignResultResponse struct {
	Success         bool   `json:"success"`
	AlreadyAssigned bool   `json:"already_assigned,omitempty"`
	DeliveryID      int64  `json:"delivery_id,omitempty"`
	DriverID        int64  `json:"driver_id,omitempty"`
	Reason          string `json:"reason,omitempty"`
	Retryable       bool   `json:"retryable,omitempty"`
}

type deliveryResponse struct {
	ID                 int64      `json:"id"`
	OrderID            string     `json:"order_id"`
	DriverID           *int64     `json:"driver_id,omitempty"`
	Status             string     `json:"status"`
	PickupLat          *float64   `json:"pickup_latitude,omitempty"`
	PickupLon          *float64   `json:"pickup_longitude,omitempty"`
	DropoffLat         *float64   `json:"dropoff_latitude,omitempty"`
	DropoffLon         *float64   `json:"dropoff_longitude,omitempty"`
	DistanceKm         *float64   `json:"distance_km,omitempty"`
	DriverNotes        string     `json:"driver_notes,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	AssignedAt         *time.Time `json:"assigned_at,omitempty"`
	AcceptedAt         *time.Time `json:"accepted_at,omitempty"`
	ActualPickupTime   *time.Time `json:"actual_pickup_time,omitempty"`
	ActualDeliveryTime *time.Time `json:"actual_delivery_time,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type driverAvailabilityResponse struct {
	DriverID             int64      `json:"driver_id"`
	IsOnline             bool       `json:"is_online"`
	IsAvailable          bool       `json:"is_available"`
	CurrentLat           *float64   `json:"current_latitude,omitempty"`
	CurrentLon           *float64   `json:"current_longitude,omitempty"`
	TotalDeliveries      int64      `json:"total_deliveries"`
	SuccessfulDeliveries int64      `json:"successful_deliveries"`
	CancelledDeliveries  int64      `json:"cancelled_deliveries"`
	AverageRating        float64    `json:"average_rating"`
	VehicleType          string     `json:"vehicle_type,omitempty"`
	VehiclePlate         string     `json:"vehicle_plate,omitempty"`
	LastOnline           *time.Time `json:"last_online,omitempty"`
	LastLocationUpdate   *time.Time `json:"last_location_update,omitempty"`
}
