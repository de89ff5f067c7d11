package domain

import "time"

// Delivery - struct representing the delivery record for one order. There is
// at most one non-terminal delivery per order; DriverID is non-nil only while
// the status is one of the active statuses.
type Delivery struct {
	ID       int64
	OrderID  string
	DriverID *int64
	Status   DeliveryStatus

	PickupLat   *float64
	PickupLon   *float64
	DropoffLat  *float64
	DropoffLon  *float64
	CurrentLat  *float64
	CurrentLon  *float64
	DistanceKm  *float64
	DriverNotes string

	CancellationReason string

	AssignedAt         *time.Time
	AcceptedAt         *time.Time
	ActualPickupTime   *time.Time
	ActualDeliveryTime *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// transition validates and applies a status change.
func (d *Delivery) transition(next DeliveryStatus) error {
	if !d.Status.CanTransitionTo(next) {
		return InvalidTransitionError{From: d.Status, To: next}
	}
	d.Status = next
	return nil
}

// AssignToDriver moves pending→assigned and records the driver and timestamp.
// The driver's availability flag is intentionally left untouched here: it
// flips only on acceptance, so a driver is not penalized for an assignment
// they never confirmed.
func (d *Delivery) AssignToDriver(driverID int64, now time.Time) error {
	if err := d.transition(StatusAssigned); err != nil {
		return err
	}
	d.DriverID = &driverID
	d.AssignedAt = &now
	return nil
}

// Accept moves assigned→accepted and records the acceptance time. The caller
// must flip the driver's availability off in the same transaction.
func (d *Delivery) Accept(now time.Time) error {
	if err := d.transition(StatusAccepted); err != nil {
		return err
	}
	d.AcceptedAt = &now
	return nil
}

// MarkPickedUp moves accepted→picked_up and records the pickup time.
func (d *Delivery) MarkPickedUp(now time.Time) error {
	if err := d.transition(StatusPickedUp); err != nil {
		return err
	}
	d.ActualPickupTime = &now
	return nil
}

// MarkEnRoute moves picked_up→en_route.
func (d *Delivery) MarkEnRoute() error {
	return d.transition(StatusEnRoute)
}

// MarkArrived moves en_route→arrived.
func (d *Delivery) MarkArrived() error {
	return d.transition(StatusArrived)
}

// MarkDelivered completes the delivery and records the delivery time.
func (d *Delivery) MarkDelivered(now time.Time) error {
	if err := d.transition(StatusDelivered); err != nil {
		return err
	}
	d.ActualDeliveryTime = &now
	return nil
}

// MarkFailed moves arrived→failed.
func (d *Delivery) MarkFailed() error {
	return d.transition(StatusFailed)
}

// Release returns an assigned delivery to the pending pool, clearing the
// driver. Used on rejection and on assignment timeout; it is a transition
// back, not a new state, so the delivery can be re-matched.
func (d *Delivery) Release() error {
	if err := d.transition(StatusPending); err != nil {
		return err
	}
	d.DriverID = nil
	d.AssignedAt = nil
	return nil
}

// Cancel terminates the delivery from any non-terminal state.
func (d *Delivery) Cancel(reason string) error {
	if err := d.transition(StatusCancelled); err != nil {
		return err
	}
	d.CancellationReason = reason
	return nil
}
