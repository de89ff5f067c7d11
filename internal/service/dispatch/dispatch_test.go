package dispatch_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"service-dispatch/internal/domain"
	"service-dispatch/internal/logx"
	"service-dispatch/internal/notify"
	"service-dispatch/internal/ports/dispatchtx"
	"service-dispatch/internal/service/dispatch"
	"service-dispatch/internal/service/matching"
)

// stubTx implements dispatchtx.Repository with per-call hooks. Nil hooks fall
// back to harmless defaults so each test wires only what it asserts on.
type stubTx struct {
	getOrderFn           func(context.Context, string) (*domain.Order, error)
	markOrderDeliveredFn func(context.Context, string) error

	getDeliveryFn          func(context.Context, int64) (*domain.Delivery, error)
	getDeliveryForUpdateFn func(context.Context, int64) (*domain.Delivery, error)
	getDeliveryByOrderFn   func(context.Context, string) (*domain.Delivery, error)
	createDeliveryFn       func(context.Context, *domain.Delivery) (bool, error)
	claimDeliveryFn        func(context.Context, int64, dispatchtx.DeliveryClaim) (bool, error)
	updateIfStatusFn       func(context.Context, int64, domain.DeliveryStatus, domain.DeliveryStatus, dispatchtx.DeliveryPatch) (bool, error)
	markManualFn           func(context.Context, string, string) (bool, error)
	listExpiredFn          func(context.Context, time.Time, int) ([]domain.Delivery, error)

	listOnlineFn   func(context.Context) ([]domain.DriverSnapshot, error)
	countOnlineFn  func(context.Context) (int, error)
	countActiveFn  func(context.Context, int64) (int, error)
	setAvailableFn func(context.Context, int64, bool) error
	restoreFn      func(context.Context, int64) error
	incStatsFn     func(context.Context, int64, bool) error
}

func (s *stubTx) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	if s.getOrderFn == nil {
		return nil, nil
	}
	return s.getOrderFn(ctx, orderID)
}

func (s *stubTx) MarkOrderDelivered(ctx context.Context, orderID string) error {
	if s.markOrderDeliveredFn == nil {
		return nil
	}
	return s.markOrderDeliveredFn(ctx, orderID)
}

func (s *stubTx) GetDelivery(ctx context.Context, id int64) (*domain.Delivery, error) {
	if s.getDeliveryFn == nil {
		return nil, nil
	}
	return s.getDeliveryFn(ctx, id)
}

func (s *stubTx) GetDeliveryForUpdate(ctx context.Context, id int64) (*domain.Delivery, error) {
	if s.getDeliveryForUpdateFn == nil {
		return nil, nil
	}
	return s.getDeliveryForUpdateFn(ctx, id)
}

func (s *stubTx) GetDeliveryByOrderID(ctx context.Context, orderID string) (*domain.Delivery, error) {
	if s.getDeliveryByOrderFn == nil {
		return nil, nil
	}
	return s.getDeliveryByOrderFn(ctx, orderID)
}

func (s *stubTx) CreateDelivery(ctx context.Context, d *domain.Delivery) (bool, error) {
	if s.createDeliveryFn == nil {
		d.ID = 101
		return true, nil
	}
	return s.createDeliveryFn(ctx, d)
}

func (s *stubTx) ClaimDelivery(ctx context.Context, deliveryID int64, claim dispatchtx.DeliveryClaim) (bool, error) {
	if s.claimDeliveryFn == nil {
		return true, nil
	}
	return s.claimDeliveryFn(ctx, deliveryID, claim)
}

func (s *stubTx) UpdateDeliveryIfStatus(ctx context.Context, id int64, expected, newStatus domain.DeliveryStatus, patch dispatchtx.DeliveryPatch) (bool, error) {
	if s.updateIfStatusFn == nil {
		return true, nil
	}
	return s.updateIfStatusFn(ctx, id, expected, newStatus, patch)
}

func (s *stubTx) MarkForManualAssignment(ctx context.Context, orderID, note string) (bool, error) {
	if s.markManualFn == nil {
		return true, nil
	}
	return s.markManualFn(ctx, orderID, note)
}

func (s *stubTx) ListExpiredAssignments(ctx context.Context, cutoff time.Time, limit int) ([]domain.Delivery, error) {
	if s.listExpiredFn == nil {
		return nil, nil
	}
	return s.listExpiredFn(ctx, cutoff, limit)
}

func (s *stubTx) ListOnlineDrivers(ctx context.Context) ([]domain.DriverSnapshot, error) {
	if s.listOnlineFn == nil {
		return nil, nil
	}
	return s.listOnlineFn(ctx)
}

func (s *stubTx) CountOnlineDrivers(ctx context.Context) (int, error) {
	if s.countOnlineFn != nil {
		return s.countOnlineFn(ctx)
	}
	drivers, err := s.ListOnlineDrivers(ctx)
	if err != nil {
		return 0, err
	}
	return len(drivers), nil
}

func (s *stubTx) CountActiveDeliveries(ctx context.Context, driverID int64) (int, error) {
	if s.countActiveFn == nil {
		return 0, nil
	}
	return s.countActiveFn(ctx, driverID)
}

func (s *stubTx) SetDriverAvailable(ctx context.Context, driverID int64, available bool) error {
	if s.setAvailableFn == nil {
		return nil
	}
	return s.setAvailableFn(ctx, driverID, available)
}

func (s *stubTx) RestoreDriverIfOnline(ctx context.Context, driverID int64) error {
	if s.restoreFn == nil {
		return nil
	}
	return s.restoreFn(ctx, driverID)
}

func (s *stubTx) IncrementDriverStats(ctx context.Context, driverID int64, successful bool) error {
	if s.incStatsFn == nil {
		return nil
	}
	return s.incStatsFn(ctx, driverID, successful)
}

type stubRunner struct {
	tx *stubTx
}

func (r *stubRunner) WithTx(_ context.Context, fn func(tx dispatchtx.Repository) error) error {
	return fn(r.tx)
}

type fakeCounter struct{ n int32 }

func (c *fakeCounter) Inc() { atomic.AddInt32(&c.n, 1) }

func (c *fakeCounter) value() int32 { return atomic.LoadInt32(&c.n) }

type captureNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *captureNotifier) Notify(_ context.Context, e notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func (n *captureNotifier) byType(t notify.EventType) []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Event
	for _, e := range n.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func f64(v float64) *float64 { return &v }

func i64(v int64) *int64 { return &v }

type serviceDeps struct {
	tx       *stubTx
	notifier *captureNotifier
	counters struct {
		assignments       fakeCounter
		reassignments     fakeCounter
		retries           fakeCounter
		manualEscalations fakeCounter
		dropped           fakeCounter
	}
}

// newTestService builds a Service on a stub transaction, the real matcher,
// no executor and no queue, so everything runs inline and synchronously.
// The retry delay is huge so time.AfterFunc retries never fire mid-test.
func newTestService(tx *stubTx) (*dispatch.Service, *serviceDeps) {
	deps := &serviceDeps{tx: tx, notifier: &captureNotifier{}}
	svc := dispatch.NewService(
		&stubRunner{tx: tx},
		matching.NewMatcher(10, 0.8),
		nil,
		deps.notifier,
		nil,
		dispatch.Policy{
			MaxRetries:        3,
			RetryBaseDelay:    time.Hour,
			AssignmentTimeout: 5 * time.Minute,
		},
		logx.Nop(),
		dispatch.Counters{
			Assignments:          &deps.counters.assignments,
			Reassignments:        &deps.counters.reassignments,
			Retries:              &deps.counters.retries,
			ManualEscalations:    &deps.counters.manualEscalations,
			DroppedNotifications: &deps.counters.dropped,
		},
	)
	return svc, deps
}

func testOrder(orderID string) *domain.Order {
	return &domain.Order{
		ID:           orderID,
		RestaurantID: 42,
		PickupLat:    f64(0),
		PickupLon:    f64(0),
		DropoffLat:   f64(0.02),
		DropoffLon:   f64(0.02),
	}
}

func onlineDriver(id int64, lat, rating float64) domain.DriverSnapshot {
	return domain.DriverSnapshot{
		DriverID:    id,
		IsOnline:    true,
		IsAvailable: true,
		Lat:         f64(lat),
		Lon:         f64(0),
		Rating:      rating,
	}
}
