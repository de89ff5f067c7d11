package kafka

import (
	"strings"
	"time"

	"service-dispatch/internal/service/orders"
)

// EventDTO is a data transfer object for orders.Event.
type EventDTO struct {
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ToDomain converts EventDTO to orders.Event.
func ToDomain(dto EventDTO) orders.Event {
	return orders.Event{
		OrderID:   strings.TrimSpace(dto.OrderID),
		Status:    strings.TrimSpace(dto.Status),
		Reason:    strings.TrimSpace(dto.Reason),
		CreatedAt: dto.CreatedAt,
	}
}
