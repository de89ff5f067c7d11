package orders

import (
	"context"

	"service-dispatch/internal/domain"
	"service-dispatch/internal/service/dispatch"
)

// DispatchPort abstracts the subset of dispatch operations the orders
// Processor needs when handling order events.
type DispatchPort interface {
	Assign(ctx context.Context, orderID string, attempt int) (dispatch.Result, error)
	CancelByOrder(ctx context.Context, orderID, reason string) (*domain.Delivery, error)
}
