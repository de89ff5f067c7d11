package taskqueue

import (
	"time"

	"github.com/google/uuid"
)

// TaskType identifies the kind of dispatch work carried by an envelope.
type TaskType string

// List of queued task types.
const (
	TaskAssignDelivery TaskType = "assign_delivery"
	TaskTimeoutCheck   TaskType = "check_assignment_timeout"
)

// Envelope is the wire form of one queued dispatch task. Attempt counts
// retries already spent, so a re-enqueued assignment carries its history.
type Envelope struct {
	ID         string    `json:"id"`
	Type       TaskType  `json:"type"`
	OrderID    string    `json:"order_id,omitempty"`
	DeliveryID int64     `json:"delivery_id,omitempty"`
	Attempt    int       `json:"attempt"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewAssignTask builds an assignment envelope for the given retry attempt.
func NewAssignTask(orderID string, attempt int) Envelope {
	return Envelope{
		ID:        uuid.NewString(),
		Type:      TaskAssignDelivery,
		OrderID:   orderID,
		Attempt:   attempt,
		CreatedAt: time.Now().UTC(),
	}
}

// NewTimeoutCheckTask builds a timeout-check envelope for a delivery.
func NewTimeoutCheckTask(deliveryID int64) Envelope {
	return Envelope{
		ID:         uuid.NewString(),
		Type:       TaskTimeoutCheck,
		DeliveryID: deliveryID,
		CreatedAt:  time.Now().UTC(),
	}
}
