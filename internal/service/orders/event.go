package orders

import (
	"time"
)

// Event is a single order event consumed from the order stream.
type Event struct {
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
