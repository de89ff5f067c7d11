package dispatch

import (
	"context"
	"fmt"

	"service-dispatch/internal/domain"
	"service-dispatch/internal/logx"
	"service-dispatch/internal/notify"
	"service-dispatch/internal/ports/dispatchtx"
	"service-dispatch/internal/service/matching"
)

// Assign finds the best available driver for the order and claims the
// delivery for them atomically. attempt counts retries already spent; once
// attempt reaches the retry budget a transient failure escalates the order to
// manual assignment instead of retrying again.
//
// Assign is idempotent: calling it for an order whose delivery already has a
// driver reports success without touching anything, so duplicate order events
// and concurrent workers are harmless.
func (s *Service) Assign(ctx context.Context, orderID string, attempt int) (Result, error) {
	var (
		res    Result
		events []notify.Event
	)

	err := s.repo.WithTx(ctx, func(tx dispatchtx.Repository) error {
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			res = failureResult(ReasonOrderNotFound, false)
			return nil
		}

		existing, err := tx.GetDeliveryByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.DriverID != nil && existing.Status != domain.StatusPending {
				res = alreadyAssignedResult(existing.ID, *existing.DriverID)
				return nil
			}
			if existing.Status.Terminal() {
				res = failureResult(ReasonDeliveryClosed, false)
				return nil
			}
		}

		if !order.HasPickupLocation() {
			res = failureResult(ReasonMissingPickupLocation, false)
			return nil
		}

		online, err := tx.CountOnlineDrivers(ctx)
		if err != nil {
			return err
		}
		if online == 0 {
			res, err = s.retryOrEscalate(ctx, tx, orderID, attempt, ReasonNoDriversOnline)
			return err
		}

		candidates, err := s.matcher.FindCandidates(ctx, tx, *order.PickupLat, *order.PickupLon, nil)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			res, err = s.retryOrEscalate(ctx, tx, orderID, attempt, ReasonNoSuitableDriver)
			return err
		}
		best := candidates[0]
		now := s.now()

		if existing == nil {
			d := &domain.Delivery{
				OrderID:    orderID,
				Status:     domain.StatusPending,
				PickupLat:  order.PickupLat,
				PickupLon:  order.PickupLon,
				DropoffLat: order.DropoffLat,
				DropoffLon: order.DropoffLon,
				DistanceKm: &best.DistanceKm,
			}
			if err := d.AssignToDriver(best.DriverID, now); err != nil {
				return err
			}
			created, err := tx.CreateDelivery(ctx, d)
			if err != nil {
				return err
			}
			if created {
				res = successResult(d.ID, best.DriverID)
				events = assignmentEvents(order, d, best)
				return nil
			}
			// Lost the creation race; claim the row the winner inserted.
			existing, err = tx.GetDeliveryByOrderID(ctx, orderID)
			if err != nil {
				return err
			}
			if existing == nil {
				return fmt.Errorf("delivery for order %s vanished after create conflict", orderID)
			}
			if existing.DriverID != nil && existing.Status != domain.StatusPending {
				res = alreadyAssignedResult(existing.ID, *existing.DriverID)
				return nil
			}
		}

		claim := dispatchtx.DeliveryClaim{
			OrderID:    orderID,
			DriverID:   best.DriverID,
			PickupLat:  order.PickupLat,
			PickupLon:  order.PickupLon,
			DropoffLat: order.DropoffLat,
			DropoffLon: order.DropoffLon,
			DistanceKm: best.DistanceKm,
			AssignedAt: now,
		}
		claimed, err := tx.ClaimDelivery(ctx, existing.ID, claim)
		if err != nil {
			return err
		}
		if !claimed {
			// Someone else won the claim between our read and write. If they
			// assigned a driver that is the same outcome we wanted.
			current, err := tx.GetDelivery(ctx, existing.ID)
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

		existing.DriverID = &best.DriverID
		existing.Status = domain.StatusAssigned
		existing.AssignedAt = &now
		existing.DistanceKm = &best.DistanceKm
		res = successResult(existing.ID, best.DriverID)
		events = assignmentEvents(order, existing, best)
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	switch {
	case res.Success && !res.AlreadyAssigned:
		inc(s.counters.Assignments)
		s.logger.Info("driver assigned",
			logx.String("order_id", orderID),
			logx.Int64("delivery_id", res.DeliveryID),
			logx.Int64("driver_id", res.DriverID),
		)
		s.emit(events...)
	case res.Retryable:
		s.scheduleRetry(orderID, attempt)
	case !res.Success:
		s.logger.Warn("assignment failed",
			logx.String("order_id", orderID),
			logx.String("reason", string(res.Reason)),
		)
	}
	return res, nil
}

// retryOrEscalate converts a transient failure into either a retryable result
// or, once the budget is exhausted, a manual-assignment escalation recorded in
// the same transaction.
func (s *Service) retryOrEscalate(ctx context.Context, tx dispatchtx.Repository, orderID string, attempt int, reason FailureReason) (Result, error) {
	if attempt < s.policy.MaxRetries {
		return failureResult(reason, true), nil
	}
	note := string(reason) + " - requires manual assignment"
	marked, err := tx.MarkForManualAssignment(ctx, orderID, note)
	if err != nil {
		return Result{}, err
	}
	if !marked {
		// A concurrent assignment claimed the delivery between our read and
		// the escalation write. Their driver stands; report it.
		d, err := tx.GetDeliveryByOrderID(ctx, orderID)
		if err != nil {
			return Result{}, err
		}
		if d != nil && d.DriverID != nil {
			return alreadyAssignedResult(d.ID, *d.DriverID), nil
		}
		return failureResult(ReasonDeliveryClosed, false), nil
	}
	inc(s.counters.ManualEscalations)
	s.logger.Warn("assignment escalated to manual",
		logx.String("order_id", orderID),
		logx.String("reason", string(reason)),
	)
	return failureResult(reason, false), nil
}

// assignmentEvents builds the fan-out for an assignment: the driver gets the
// job offer, the customer gets the status change plus driver details, the
// restaurant gets a vendor update. The offer is the same whether the delivery
// is fresh or reassigned; only a displaced driver hears about reassignment.
func assignmentEvents(order *domain.Order, d *domain.Delivery, best matching.Candidate) []notify.Event {
	return []notify.Event{
		notify.NewEvent(notify.EventDriverAssigned, notify.DriverChannel(best.DriverID), map[string]any{
			"order_id":    order.ID,
			"delivery_id": d.ID,
			"pickup_lat":  d.PickupLat,
			"pickup_lon":  d.PickupLon,
			"dropoff_lat": d.DropoffLat,
			"dropoff_lon": d.DropoffLon,
			"distance_km": best.DistanceKm,
		}),
		notify.NewEvent(notify.EventOrderStatusChanged, notify.OrderChannel(order.ID), map[string]any{
			"order_id":    order.ID,
			"delivery_id": d.ID,
			"status":      string(domain.StatusAssigned),
		}),
		notify.NewEvent(notify.EventDriverDetails, notify.OrderChannel(order.ID), map[string]any{
			"order_id":    order.ID,
			"driver_id":   best.DriverID,
			"rating":      best.Rating,
			"distance_km": best.DistanceKm,
		}),
		notify.NewEvent(notify.EventVendorOrderUpdate, notify.RestaurantChannel(order.RestaurantID), map[string]any{
			"order_id":    order.ID,
			"delivery_id": d.ID,
			"driver_id":   best.DriverID,
			"status":      string(domain.StatusAssigned),
		}),
	}
}
