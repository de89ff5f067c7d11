package dispatch

import (
	"context"
	"fmt"
	"time"

	"service-dispatch/internal/apperr"
	"service-dispatch/internal/domain"
	"service-dispatch/internal/geo"
	"service-dispatch/internal/logx"
	"service-dispatch/internal/notify"
	"service-dispatch/internal/ports/dispatchtx"
	"service-dispatch/internal/service/matching"
)

// advance moves a delivery one lifecycle step for the driver that owns it.
// The write is a compare-and-swap on the status read under lock, so two
// concurrent transitions for the same row cannot both succeed. after runs in
// the same transaction for side writes like availability flips.
func (s *Service) advance(
	ctx context.Context,
	deliveryID, driverID int64,
	next domain.DeliveryStatus,
	patch func(now time.Time) dispatchtx.DeliveryPatch,
	after func(ctx context.Context, tx dispatchtx.Repository, d *domain.Delivery) error,
) (*domain.Delivery, error) {
	var out *domain.Delivery
	err := s.repo.WithTx(ctx, func(tx dispatchtx.Repository) error {
		d, err := tx.GetDeliveryForUpdate(ctx, deliveryID)
		if err != nil {
			return err
		}
		if d == nil {
			return fmt.Errorf("%w: delivery %d", apperr.ErrNotFound, deliveryID)
		}
		if d.DriverID == nil || *d.DriverID != driverID {
			return fmt.Errorf("%w: delivery %d does not belong to driver %d", apperr.ErrConflict, deliveryID, driverID)
		}
		if !d.Status.CanTransitionTo(next) {
			return domain.InvalidTransitionError{From: d.Status, To: next}
		}

		now := s.now()
		p := dispatchtx.DeliveryPatch{}
		if patch != nil {
			p = patch(now)
		}
		ok, err := tx.UpdateDeliveryIfStatus(ctx, deliveryID, d.Status, next, p)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: delivery %d changed concurrently", apperr.ErrConflict, deliveryID)
		}

		d.Status = next
		d.UpdatedAt = now
		if after != nil {
			if err := after(ctx, tx, d); err != nil {
				return err
			}
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("delivery status changed",
		logx.Int64("delivery_id", deliveryID),
		logx.Int64("driver_id", driverID),
		logx.String("status", string(next)),
	)
	s.emitStatus(out)
	return out, nil
}

func (s *Service) emitStatus(d *domain.Delivery) {
	s.emit(notify.NewEvent(notify.EventOrderStatusChanged, notify.OrderChannel(d.OrderID), map[string]any{
		"order_id":    d.OrderID,
		"delivery_id": d.ID,
		"status":      string(d.Status),
	}))
}

// Accept confirms the assignment. The driver stops receiving offers from this
// moment, not from assignment, so an ignored offer never blocks them.
func (s *Service) Accept(ctx context.Context, deliveryID, driverID int64) (*domain.Delivery, error) {
	return s.advance(ctx, deliveryID, driverID, domain.StatusAccepted,
		func(now time.Time) dispatchtx.DeliveryPatch {
			return dispatchtx.DeliveryPatch{AcceptedAt: &now}
		},
		func(ctx context.Context, tx dispatchtx.Repository, d *domain.Delivery) error {
			return tx.SetDriverAvailable(ctx, driverID, false)
		},
	)
}

// MarkPickedUp records the pickup at the restaurant.
func (s *Service) MarkPickedUp(ctx context.Context, deliveryID, driverID int64) (*domain.Delivery, error) {
	return s.advance(ctx, deliveryID, driverID, domain.StatusPickedUp,
		func(now time.Time) dispatchtx.DeliveryPatch {
			return dispatchtx.DeliveryPatch{ActualPickupTime: &now}
		},
		nil,
	)
}

// MarkEnRoute records that the driver is heading to the customer.
func (s *Service) MarkEnRoute(ctx context.Context, deliveryID, driverID int64) (*domain.Delivery, error) {
	return s.advance(ctx, deliveryID, driverID, domain.StatusEnRoute, nil, nil)
}

// MarkArrived records arrival at the dropoff point.
func (s *Service) MarkArrived(ctx context.Context, deliveryID, driverID int64) (*domain.Delivery, error) {
	return s.advance(ctx, deliveryID, driverID, domain.StatusArrived, nil, nil)
}

// MarkDelivered completes the delivery: the order is closed, the driver is
// freed and credited with a successful run.
func (s *Service) MarkDelivered(ctx context.Context, deliveryID, driverID int64, notes string) (*domain.Delivery, error) {
	var restaurantID int64
	d, err := s.advance(ctx, deliveryID, driverID, domain.StatusDelivered,
		func(now time.Time) dispatchtx.DeliveryPatch {
			p := dispatchtx.DeliveryPatch{ActualDeliveryTime: &now}
			if notes != "" {
				p.DriverNotes = &notes
			}
			return p
		},
		func(ctx context.Context, tx dispatchtx.Repository, d *domain.Delivery) error {
			if err := tx.MarkOrderDelivered(ctx, d.OrderID); err != nil {
				return err
			}
			if err := tx.RestoreDriverIfOnline(ctx, driverID); err != nil {
				return err
			}
			if err := tx.IncrementDriverStats(ctx, driverID, true); err != nil {
				return err
			}
			order, err := tx.GetOrder(ctx, d.OrderID)
			if err != nil {
				return err
			}
			if order != nil {
				restaurantID = order.RestaurantID
			}
			return nil
		},
	)
	if err != nil {
		return nil, err
	}

	if restaurantID != 0 {
		s.emit(notify.NewEvent(notify.EventVendorOrderUpdate, notify.RestaurantChannel(restaurantID), map[string]any{
			"order_id":    d.OrderID,
			"delivery_id": d.ID,
			"status":      string(domain.StatusDelivered),
		}))
	}
	return d, nil
}

// MarkFailed records a delivery that could not be completed at the door. The
// driver is freed but the run counts against their stats.
func (s *Service) MarkFailed(ctx context.Context, deliveryID, driverID int64, notes string) (*domain.Delivery, error) {
	return s.advance(ctx, deliveryID, driverID, domain.StatusFailed,
		func(now time.Time) dispatchtx.DeliveryPatch {
			p := dispatchtx.DeliveryPatch{}
			if notes != "" {
				p.DriverNotes = &notes
			}
			return p
		},
		func(ctx context.Context, tx dispatchtx.Repository, d *domain.Delivery) error {
			if err := tx.RestoreDriverIfOnline(ctx, driverID); err != nil {
				return err
			}
			return tx.IncrementDriverStats(ctx, driverID, false)
		},
	)
}

// Cancel terminates a delivery from any non-terminal state, keeping the
// driver reference on the row for the audit trail but releasing the driver.
func (s *Service) Cancel(ctx context.Context, deliveryID int64, reason string) (*domain.Delivery, error) {
	var out *domain.Delivery
	err := s.repo.WithTx(ctx, func(tx dispatchtx.Repository) error {
		d, err := tx.GetDeliveryForUpdate(ctx, deliveryID)
		if err != nil {
			return err
		}
		if d == nil {
			return fmt.Errorf("%w: delivery %d", apperr.ErrNotFound, deliveryID)
		}
		out, err = s.cancelInTx(ctx, tx, d, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notifyCancelled(out, reason)
	return out, nil
}

// CancelByOrder cancels the delivery attached to an order, if any. Used when
// the order itself is cancelled upstream; a missing delivery is a no-op.
func (s *Service) CancelByOrder(ctx context.Context, orderID, reason string) (*domain.Delivery, error) {
	var out *domain.Delivery
	err := s.repo.WithTx(ctx, func(tx dispatchtx.Repository) error {
		d, err := tx.GetDeliveryByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		if d == nil || d.Status.Terminal() {
			return nil
		}
		d, err = tx.GetDeliveryForUpdate(ctx, d.ID)
		if err != nil {
			return err
		}
		if d == nil || d.Status.Terminal() {
			return nil
		}
		out, err = s.cancelInTx(ctx, tx, d, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out != nil {
		s.notifyCancelled(out, reason)
	}
	return out, nil
}

func (s *Service) cancelInTx(ctx context.Context, tx dispatchtx.Repository, d *domain.Delivery, reason string) (*domain.Delivery, error) {
	if !d.Status.CanTransitionTo(domain.StatusCancelled) {
		return nil, domain.InvalidTransitionError{From: d.Status, To: domain.StatusCancelled}
	}

	ok, err := tx.UpdateDeliveryIfStatus(ctx, d.ID, d.Status, domain.StatusCancelled, dispatchtx.DeliveryPatch{
		CancellationReason: &reason,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: delivery %d changed concurrently", apperr.ErrConflict, d.ID)
	}

	if d.DriverID != nil {
		if err := tx.RestoreDriverIfOnline(ctx, *d.DriverID); err != nil {
			return nil, err
		}
		// Only a confirmed run counts against the driver's stats.
		if d.AcceptedAt != nil {
			if err := tx.IncrementDriverStats(ctx, *d.DriverID, false); err != nil {
				return nil, err
			}
		}
	}

	d.Status = domain.StatusCancelled
	d.CancellationReason = reason
	return d, nil
}

func (s *Service) notifyCancelled(d *domain.Delivery, reason string) {
	s.logger.Info("delivery cancelled",
		logx.Int64("delivery_id", d.ID),
		logx.String("order_id", d.OrderID),
		logx.String("reason", reason),
	)
	events := []notify.Event{
		notify.NewEvent(notify.EventOrderStatusChanged, notify.OrderChannel(d.OrderID), map[string]any{
			"order_id":    d.OrderID,
			"delivery_id": d.ID,
			"status":      string(domain.StatusCancelled),
			"reason":      reason,
		}),
	}
	if d.DriverID != nil {
		events = append(events, notify.NewEvent(notify.EventOrderStatusChanged, notify.DriverChannel(*d.DriverID), map[string]any{
			"order_id":    d.OrderID,
			"delivery_id": d.ID,
			"status":      string(domain.StatusCancelled),
			"reason":      reason,
		}))
	}
	s.emit(events...)
}

// ManualAssign forces a specific online driver onto a pending delivery,
// bypassing matching. Used by operators for escalated orders; the claim uses
// the same conditional write as automatic assignment.
func (s *Service) ManualAssign(ctx context.Context, deliveryID, driverID int64) (*domain.Delivery, error) {
	var (
		out    *domain.Delivery
		events []notify.Event
	)

	err := s.repo.WithTx(ctx, func(tx dispatchtx.Repository) error {
		d, err := tx.GetDeliveryForUpdate(ctx, deliveryID)
		if err != nil {
			return err
		}
		if d == nil {
			return fmt.Errorf("%w: delivery %d", apperr.ErrNotFound, deliveryID)
		}
		if d.Status != domain.StatusPending || d.DriverID != nil {
			return fmt.Errorf("%w: delivery %d is not awaiting assignment", apperr.ErrConflict, deliveryID)
		}

		drivers, err := tx.ListOnlineDrivers(ctx)
		if err != nil {
			return err
		}
		var snapshot *domain.DriverSnapshot
		for i := range drivers {
			if drivers[i].DriverID == driverID {
				snapshot = &drivers[i]
				break
			}
		}
		if snapshot == nil {
			return fmt.Errorf("%w: driver %d is not online", apperr.ErrInvalid, driverID)
		}

		distance := 0.0
		if snapshot.Lat != nil && snapshot.Lon != nil && d.PickupLat != nil && d.PickupLon != nil {
			distance = geo.DistanceKm(*d.PickupLat, *d.PickupLon, *snapshot.Lat, *snapshot.Lon)
		}
		now := s.now()

		claimed, err := tx.ClaimDelivery(ctx, deliveryID, dispatchtx.DeliveryClaim{
			OrderID:    d.OrderID,
			DriverID:   driverID,
			PickupLat:  d.PickupLat,
			PickupLon:  d.PickupLon,
			DropoffLat: d.DropoffLat,
			DropoffLon: d.DropoffLon,
			DistanceKm: distance,
			AssignedAt: now,
		})
		if err != nil {
			return err
		}
		if !claimed {
			return fmt.Errorf("%w: delivery %d was claimed concurrently", apperr.ErrConflict, deliveryID)
		}

		d.DriverID = &driverID
		d.Status = domain.StatusAssigned
		d.AssignedAt = &now
		d.DistanceKm = &distance
		out = d

		order, err := tx.GetOrder(ctx, d.OrderID)
		if err != nil {
			return err
		}
		if order != nil {
			events = assignmentEvents(order, d, matching.Candidate{
				DriverID:   driverID,
				DistanceKm: distance,
				Rating:     snapshot.Rating,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	inc(s.counters.Assignments)
	s.logger.Info("driver assigned manually",
		logx.Int64("delivery_id", deliveryID),
		logx.Int64("driver_id", driverID),
		logx.Float64("distance_km", *out.DistanceKm),
	)
	s.emit(events...)
	return out, nil
}

// Delivery returns one delivery by id.
func (s *Service) Delivery(ctx context.Context, deliveryID int64) (*domain.Delivery, error) {
	var out *domain.Delivery
	err := s.repo.WithTx(ctx, func(tx dispatchtx.Repository) error {
		d, err := tx.GetDelivery(ctx, deliveryID)
		if err != nil {
			return err
		}
		if d == nil {
			return fmt.Errorf("%w: delivery %d", apperr.ErrNotFound, deliveryID)
		}
		out = d
		return nil
	})
	return out, err
}

// DeliveryByOrder returns the delivery attached to an order.
func (s *Service) DeliveryByOrder(ctx context.Context, orderID string) (*domain.Delivery, error) {
	var out *domain.Delivery
	err := s.repo.WithTx(ctx, func(tx dispatchtx.Repository) error {
		d, err := tx.GetDeliveryByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		if d == nil {
			return fmt.Errorf("%w: no delivery for order %s", apperr.ErrNotFound, orderID)
		}
		out = d
		return nil
	})
	return out, err
}
