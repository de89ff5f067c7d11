package handlers

import (
	"service-dispatch/internal/domain"
	"service-dispatch/internal/service/dispatch"
)

func resultToResponse(res dispatch.Result) assignResultResponse {
	return assignResultResponse{
		Success:         res.Success,
		AlreadyAssigned: res.AlreadyAssigned,
		DeliveryID:      res.DeliveryID,
		DriverID:        res.DriverID,
		Reason:          string(res.Reason),
		Retryable:       res.Retryable,
	}
}

func deliveryToResponse(d *domain.Delivery) deliveryResponse {
	return deliveryResponse{
		ID:                 d.ID,
		OrderID:            d.OrderID,
		DriverID:           d.DriverID,
		Status:             string(d.Status),
		PickupLat:          d.PickupLat,
		PickupLon:          d.PickupLon,
		DropoffLat:         d.DropoffLat,
		DropoffLon:         d.DropoffLon,
		DistanceKm:         d.DistanceKm,
		DriverNotes:        d.DriverNotes,
		CancellationReason: d.CancellationReason,
		AssignedAt:         d.AssignedAt,
		AcceptedAt:         d.AcceptedAt,
		ActualPickupTime:   d.ActualPickupTime,
		ActualDeliveryTime: d.ActualDeliveryTime,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

func availabilityToResponse(a *domain.DriverAvailability) driverAvailabilityResponse {
	return driverAvailabilityResponse{
		DriverID:             a.DriverID,
		IsOnline:             a.IsOnline,
		IsAvailable:          a.IsAvailable,
		CurrentLat:           a.CurrentLat,
		CurrentLon:           a.CurrentLon,
		TotalDeliveries:      a.TotalDeliveries,
		SuccessfulDeliveries: a.SuccessfulDeliveries,
		CancelledDeliveries:  a.CancelledDeliveries,
		AverageRating:        a.AverageRating,
		VehicleType:          string(a.VehicleType),
		VehiclePlate:         a.VehiclePlate,
		LastOnline:           a.LastOnline,
		LastLocationUpdate:   a.LastLocationUpdate,
	}
}
