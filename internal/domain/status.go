package domain

import (
	"errors"
	"fmt"
)

// DeliveryStatus represents the lifecycle state of a delivery.
type DeliveryStatus string

// List of possible delivery statuses.
const (
	StatusPending   DeliveryStatus = "pending"
	StatusAssigned  DeliveryStatus = "assigned"
	StatusAccepted  DeliveryStatus = "accepted"
	StatusPickedUp  DeliveryStatus = "picked_up"
	StatusEnRoute   DeliveryStatus = "en_route"
	StatusArrived   DeliveryStatus = "arrived"
	StatusDelivered DeliveryStatus = "delivered"
	StatusCancelled DeliveryStatus = "cancelled"
	StatusFailed    DeliveryStatus = "failed"
)

// allowedTransitions is the delivery state machine. A status missing from the
// map is terminal. The assigned→pending edge is the rejection/timeout release.
var allowedTransitions = map[DeliveryStatus][]DeliveryStatus{
	StatusPending:  {StatusAssigned, StatusCancelled},
	StatusAssigned: {StatusAccepted, StatusCancelled, StatusPending},
	StatusAccepted: {StatusPickedUp, StatusCancelled},
	StatusPickedUp: {StatusEnRoute},
	StatusEnRoute:  {StatusArrived, StatusDelivered},
	StatusArrived:  {StatusDelivered, StatusFailed},
}

var allowedStatuses = [...]DeliveryStatus{
	StatusPending, StatusAssigned, StatusAccepted, StatusPickedUp,
	StatusEnRoute, StatusArrived, StatusDelivered, StatusCancelled, StatusFailed,
}

// Valid checks if the DeliveryStatus is a known status.
func (s DeliveryStatus) Valid() bool {
	for _, v := range allowedStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the status change s→next is permitted.
func (s DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	for _, v := range allowedTransitions[s] {
		if v == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s DeliveryStatus) Terminal() bool {
	return len(allowedTransitions[s]) == 0
}

// Active reports whether a driver is currently engaged with the delivery.
func (s DeliveryStatus) Active() bool {
	switch s {
	case StatusAssigned, StatusAccepted, StatusPickedUp, StatusEnRoute, StatusArrived:
		return true
	default:
		return false
	}
}

// ErrInvalidTransition signals a delivery status change the state machine
// does not permit. Out-of-order transition requests are data errors and are
// always surfaced, never silently ignored.
var ErrInvalidTransition = errors.New("invalid delivery status transition")

// InvalidTransitionError carries the current and attempted statuses of a
// rejected transition. It unwraps to ErrInvalidTransition.
type InvalidTransitionError struct {
	From DeliveryStatus
	To   DeliveryStatus
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid delivery status transition %s -> %s", e.From, e.To)
}

func (e InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }
