package handlers

import (
	"context"

	"service-dispatch/internal/domain"
	"service-dispatch/internal/repository"
	"service-dispatch/internal/service/dispatch"
)

type dispatchUsecase interface {
	Assign(ctx context.Context, orderID string, attempt int) (dispatch.Result, error)
	ManualAssign(ctx context.Context, deliveryID, driverID int64) (*domain.Delivery, error)
	Accept(ctx context.Context, deliveryID, driverID int64) (*domain.Delivery, error)
	Reject(ctx context.Context, deliveryID, driverID int64, reason string) (dispatch.Result, error)
	MarkPickedUp(ctx context.Context, deliveryID, driverID int64) (*domain.Delivery, error)
	MarkEnRoute(ctx context.Context, deliveryID, driverID int64) (*domain.Delivery, error)
	MarkArrived(ctx context.Context, deliveryID, driverID int64) (*domain.Delivery, error)
	MarkDelivered(ctx context.Context, deliveryID, driverID int64, notes string) (*domain.Delivery, error)
	MarkFailed(ctx context.Context, deliveryID, driverID int64, notes string) (*domain.Delivery, error)
	Cancel(ctx context.Context, deliveryID int64, reason string) (*domain.Delivery, error)
	Delivery(ctx context.Context, deliveryID int64) (*domain.Delivery, error)
	DeliveryByOrder(ctx context.Context, orderID string) (*domain.Delivery, error)
}

// NewDispatchUsecase wires a dispatch.Service into a dispatchUsecase.
func NewDispatchUsecase(svc *dispatch.Service) dispatchUsecase {
	return svc
}

type driverUsecase interface {
	GetAvailability(ctx context.Context, driverID int64) (*domain.DriverAvailability, error)
	GoOnline(ctx context.Context, driverID int64) error
	GoOffline(ctx context.Context, driverID int64) error
	UpdateLocation(ctx context.Context, driverID int64, lat, lon float64) error
}

// NewDriverUsecase wires a DriverRepo into a driverUsecase.
func NewDriverUsecase(repo *repository.DriverRepo) driverUsecase {
	return repo
}
