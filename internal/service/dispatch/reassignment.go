package dispatch

import (
	"context"
	"fmt"

	"service-dispatch/internal/apperr"
	"service-dispatch/internal/domain"
	"service-dispatch/internal/logx"
	"service-dispatch/internal/notify"
	"service-dispatch/internal/ports/dispatchtx"
)

// Reject handles a driver declining an assignment. The delivery goes back to
// the pending pool, the driver is made available again while still online,
// and a new driver is searched for immediately with the decliner excluded.
func (s *Service) Reject(ctx context.Context, deliveryID, driverID int64, reason string) (Result, error) {
	var orderID string
	err := s.repo.WithTx(ctx, func(tx dispatchtx.Repository) error {
		d, err := tx.GetDeliveryForUpdate(ctx, deliveryID)
		if err != nil {
			return err
		}
		if d == nil {
			return fmt.Errorf("%w: delivery %d", apperr.ErrNotFound, deliveryID)
		}
		if d.Status != domain.StatusAssigned || d.DriverID == nil || *d.DriverID != driverID {
			return fmt.Errorf("%w: delivery %d is not assigned to driver %d", apperr.ErrConflict, deliveryID, driverID)
		}

		ok, err := tx.UpdateDeliveryIfStatus(ctx, deliveryID, domain.StatusAssigned, domain.StatusPending, dispatchtx.DeliveryPatch{ClearDriver: true})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: delivery %d changed during rejection", apperr.ErrConflict, deliveryID)
		}
		if err := tx.RestoreDriverIfOnline(ctx, driverID); err != nil {
			return err
		}
		orderID = d.OrderID
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	inc(s.counters.Reassignments)
	s.logger.Info("assignment rejected",
		logx.Int64("delivery_id", deliveryID),
		logx.Int64("driver_id", driverID),
		logx.String("reason", reason),
	)
	return s.reassign(ctx, deliveryID, orderID, map[int64]struct{}{driverID: {}})
}

// CheckAssignmentTimeout releases a delivery whose driver sat on the
// assignment past the timeout without accepting, then reassigns it to someone
// else. A delivery that was accepted, moved on, or is simply not old enough
// yet is left untouched.
func (s *Service) CheckAssignmentTimeout(ctx context.Context, deliveryID int64) (Result, error) {
	var (
		expired    bool
		prevDriver int64
		orderID    string
	)

	err := s.repo.WithTx(ctx, func(tx dispatchtx.Repository) error {
		d, err := tx.GetDeliveryForUpdate(ctx, deliveryID)
		if err != nil {
			return err
		}
		if d == nil || d.Status != domain.StatusAssigned || d.DriverID == nil || d.AssignedAt == nil {
			return nil
		}
		if s.now().Sub(*d.AssignedAt) < s.policy.AssignmentTimeout {
			return nil
		}

		ok, err := tx.UpdateDeliveryIfStatus(ctx, deliveryID, domain.StatusAssigned, domain.StatusPending, dispatchtx.DeliveryPatch{ClearDriver: true})
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := tx.RestoreDriverIfOnline(ctx, *d.DriverID); err != nil {
			return err
		}
		expired = true
		prevDriver = *d.DriverID
		orderID = d.OrderID
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if !expired {
		return Result{DeliveryID: deliveryID}, nil
	}

	inc(s.counters.Reassignments)
	s.logger.Warn("assignment timed out",
		logx.Int64("delivery_id", deliveryID),
		logx.Int64("driver_id", prevDriver),
		logx.String("order_id", orderID),
	)
	s.emit(notify.NewEvent(notify.EventDriverReassigned, notify.DriverChannel(prevDriver), map[string]any{
		"delivery_id": deliveryID,
		"order_id":    orderID,
		"reason":      "assignment_timeout",
	}))
	return s.reassign(ctx, deliveryID, orderID, map[int64]struct{}{prevDriver: {}})
}

// reassign claims a released delivery for the next best driver, excluding the
// one who just lost it. When nobody qualifies the order falls back into the
// regular retry pipeline without the exclusion, which resets attempt counting.
func (s *Service) reassign(ctx context.Context, deliveryID int64, orderID string, exclude map[int64]struct{}) (Result, error) {
	var (
		res    Result
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
		if d.Status != domain.StatusPending {
			if d.DriverID != nil {
				res = alreadyAssignedResult(d.ID, *d.DriverID)
				return nil
			}
			res = failureResult(ReasonDeliveryClosed, false)
			return nil
		}
		if d.PickupLat == nil || d.PickupLon == nil {
			res = failureResult(ReasonMissingPickupLocation, false)
			return nil
		}

		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			res = failureResult(ReasonOrderNotFound, false)
			return nil
		}

		candidates, err := s.matcher.FindCandidates(ctx, tx, *d.PickupLat, *d.PickupLon, exclude)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			res, err = s.retryOrEscalate(ctx, tx, orderID, 0, ReasonNoSuitableDriver)
			return err
		}
		best := candidates[0]
		now := s.now()

		claimed, err := tx.ClaimDelivery(ctx, deliveryID, dispatchtx.DeliveryClaim{
			OrderID:    orderID,
			DriverID:   best.DriverID,
			PickupLat:  d.PickupLat,
			PickupLon:  d.PickupLon,
			DropoffLat: d.DropoffLat,
			DropoffLon: d.DropoffLon,
			DistanceKm: best.DistanceKm,
			AssignedAt: now,
		})
		if err != nil {
			return err
		}
		if !claimed {
			current, err := tx.GetDelivery(ctx, deliveryID)
			if err != nil {
				return err
			}
			if current != nil && current.DriverID != nil {
				res = alreadyAssignedResult(current.ID, *current.DriverID)
				return nil
			}
			res = failureResult(ReasonDeliveryClosed, false)
			return nil
		}

		d.DriverID = &best.DriverID
		d.Status = domain.StatusAssigned
		d.AssignedAt = &now
		d.DistanceKm = &best.DistanceKm
		res = successResult(deliveryID, best.DriverID)
		events = assignmentEvents(order, d, best)
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	switch {
	case res.Success && !res.AlreadyAssigned:
		inc(s.counters.Assignments)
		s.logger.Info("delivery reassigned",
			logx.Int64("delivery_id", res.DeliveryID),
			logx.Int64("driver_id", res.DriverID),
			logx.String("order_id", orderID),
		)
		s.emit(events...)
	case res.Retryable:
		s.scheduleRetry(orderID, 0)
	}
	return res, nil
}
