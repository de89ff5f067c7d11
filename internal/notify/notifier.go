package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the notification events dispatch emits. Typed variants
// instead of free-form strings so the set of events is closed and checkable.
type EventType int

// List of notification event types.
const (
	EventDriverAssigned EventType = iota
	EventDriverReassigned
	EventOrderStatusChanged
	EventVendorOrderUpdate
	EventDriverDetails
)

var eventTypeNames = map[EventType]string{
	EventDriverAssigned:     "driver_assigned",
	EventDriverReassigned:   "driver_reassigned",
	EventOrderStatusChanged: "order_status_changed",
	EventVendorOrderUpdate:  "vendor_order_update",
	EventDriverDetails:      "driver_details",
}

// String returns the wire name of the event type.
func (t EventType) String() string {
	if s, ok := eventTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("unknown_%d", int(t))
}

// Valid checks if the EventType is a known variant.
func (t EventType) Valid() bool {
	_, ok := eventTypeNames[t]
	return ok
}

// Event is a single fire-and-forget notification. Channel addresses the
// recipient stream; Payload is a flat key-value document for the transport.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"-"`
	TypeName  string         `json:"type"`
	Channel   string         `json:"channel"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewEvent builds an Event with a fresh ID and timestamp.
func NewEvent(t EventType, channel string, payload map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		TypeName:  t.String(),
		Channel:   channel,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

// DriverChannel addresses a driver's notification stream.
func DriverChannel(driverID int64) string { return fmt.Sprintf("driver:%d", driverID) }

// OrderChannel addresses the customer stream for an order.
func OrderChannel(orderID string) string { return fmt.Sprintf("order:%s", orderID) }

// RestaurantChannel addresses a restaurant's vendor stream.
func RestaurantChannel(restaurantID int64) string {
	return fmt.Sprintf("restaurant:%d", restaurantID)
}

// Notifier delivers events best-effort. The dispatch core never blocks on it
// and never rolls back state when delivery fails.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}
