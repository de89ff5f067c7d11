package dispatch_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"service-dispatch/internal/domain"
	"service-dispatch/internal/notify"
	"service-dispatch/internal/ports/dispatchtx"
	"service-dispatch/internal/service/dispatch"
	"service-dispatch/internal/taskqueue"
)

func TestAssign_CreatesDeliveryForBestDriver(t *testing.T) {
	t.Parallel()

	var created *domain.Delivery
	tx := &stubTx{
		getOrderFn: func(_ context.Context, orderID string) (*domain.Order, error) {
			return testOrder(orderID), nil
		},
		listOnlineFn: func(context.Context) ([]domain.DriverSnapshot, error) {
			return []domain.DriverSnapshot{
				onlineDriver(1, 0.009, 4.2),
				onlineDriver(2, 0.027, 4.9),
			}, nil
		},
		createDeliveryFn: func(_ context.Context, d *domain.Delivery) (bool, error) {
			d.ID = 55
			created = d
			return true, nil
		},
	}
	svc, deps := newTestService(tx)

	res, err := svc.Assign(context.Background(), "ord_1", 0)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.False(t, res.AlreadyAssigned)
	require.EqualValues(t, 55, res.DeliveryID)
	require.EqualValues(t, 2, res.DriverID) // higher rating wins

	require.NotNil(t, created)
	require.Equal(t, domain.StatusAssigned, created.Status)
	require.NotNil(t, created.DriverID)
	require.EqualValues(t, 2, *created.DriverID)
	require.NotNil(t, created.AssignedAt)
	require.NotNil(t, created.DistanceKm)

	require.EqualValues(t, 1, deps.counters.assignments.value())

	offers := deps.notifier.byType(notify.EventDriverAssigned)
	require.Len(t, offers, 1)
	require.Equal(t, notify.DriverChannel(2), offers[0].Channel)
	require.Len(t, deps.notifier.byType(notify.EventOrderStatusChanged), 1)
	require.Len(t, deps.notifier.byType(notify.EventDriverDetails), 1)

	vendor := deps.notifier.byType(notify.EventVendorOrderUpdate)
	require.Len(t, vendor, 1)
	require.Equal(t, notify.RestaurantChannel(42), vendor[0].Channel)
}

func TestAssign_IdempotentWhenAlreadyAssigned(t *testing.T) {
	t.Parallel()

	var createCalled, claimCalled bool
	tx := &stubTx{
		getOrderFn: func(_ context.Context, orderID string) (*domain.Order, error) {
			return testOrder(orderID), nil
		},
		getDeliveryByOrderFn: func(_ context.Context, orderID string) (*domain.Delivery, error) {
			return &domain.Delivery{
				ID:       7,
				OrderID:  orderID,
				Status:   domain.StatusAccepted,
				DriverID: i64(3),
			}, nil
		},
		createDeliveryFn: func(_ context.Context, _ *domain.Delivery) (bool, error) {
			createCalled = true
			return true, nil
		},
		claimDeliveryFn: func(_ context.Context, _ int64, _ dispatchtx.DeliveryClaim) (bool, error) {
			claimCalled = true
			return true, nil
		},
	}
	svc, deps := newTestService(tx)

	res, err := svc.Assign(context.Background(), "ord_1", 0)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.True(t, res.AlreadyAssigned)
	require.EqualValues(t, 7, res.DeliveryID)
	require.EqualValues(t, 3, res.DriverID)

	require.False(t, createCalled)
	require.False(t, claimCalled)
	require.Zero(t, deps.counters.assignments.value())
	require.Empty(t, deps.notifier.byType(notify.EventDriverAssigned))
}

func TestAssign_OrderNotFound(t *testing.T) {
	t.Parallel()

	svc, deps := newTestService(&stubTx{})

	res, err := svc.Assign(context.Background(), "missing", 0)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.False(t, res.Retryable)
	require.Equal(t, dispatch.ReasonOrderNotFound, res.Reason)
	require.Zero(t, deps.counters.retries.value())
	require.Zero(t, deps.counters.manualEscalations.value())
}

func TestAssign_MissingPickupLocation(t *testing.T) {
	t.Parallel()

	tx := &stubTx{
		getOrderFn: func(_ context.Context, orderID string) (*domain.Order, error) {
			return &domain.Order{ID: orderID, RestaurantID: 42}, nil
		},
	}
	svc, _ := newTestService(tx)

	res, err := svc.Assign(context.Background(), "ord_1", 0)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.False(t, res.Retryable)
	require.Equal(t, dispatch.ReasonMissingPickupLocation, res.Reason)
}

func TestAssign_NoDriversOnlineIsRetryable(t *testing.T) {
	t.Parallel()

	var manual bool
	tx := &stubTx{
		getOrderFn: func(_ context.Context, orderID string) (*domain.Order, error) {
			return testOrder(orderID), nil
		},
		markManualFn: func(_ context.Context, _, _ string) (bool, error) {
			manual = true
			return true, nil
		},
	}
	svc, deps := newTestService(tx)

	res, err := svc.Assign(context.Background(), "ord_1", 0)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.True(t, res.Retryable)
	require.Equal(t, dispatch.ReasonNoDriversOnline, res.Reason)

	require.False(t, manual)
	require.EqualValues(t, 1, deps.counters.retries.value())
	require.Zero(t, deps.counters.manualEscalations.value())
}

func TestAssign_EscalatesAfterRetryBudget(t *testing.T) {
	t.Parallel()

	var note string
	tx := &stubTx{
		getOrderFn: func(_ context.Context, orderID string) (*domain.Order, error) {
			return testOrder(orderID), nil
		},
		markManualFn: func(_ context.Context, _, n string) (bool, error) {
			note = n
			return true, nil
		},
	}
	svc, deps := newTestService(tx)

	res, err := svc.Assign(context.Background(), "ord_1", 3)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.False(t, res.Retryable)
	require.Equal(t, dispatch.ReasonNoDriversOnline, res.Reason)

	require.Equal(t, "NoDriversOnline - requires manual assignment", note)
	require.EqualValues(t, 1, deps.counters.manualEscalations.value())
	require.Zero(t, deps.counters.retries.value())
}

func TestAssign_EscalationLosesRaceToConcurrentAssignment(t *testing.T) {
	t.Parallel()

	reads := 0
	tx := &stubTx{
		getOrderFn: func(_ context.Context, orderID string) (*domain.Order, error) {
			return testOrder(orderID), nil
		},
		getDeliveryByOrderFn: func(_ context.Context, orderID string) (*domain.Delivery, error) {
			reads++
			if reads == 1 {
				return &domain.Delivery{ID: 7, OrderID: orderID, Status: domain.StatusPending}, nil
			}
			// A manual assignment claimed the row while we were searching.
			return &domain.Delivery{ID: 7, OrderID: orderID, Status: domain.StatusAssigned, DriverID: i64(9)}, nil
		},
		markManualFn: func(_ context.Context, _, _ string) (bool, error) {
			return false, nil // the conditional upsert matched no row
		},
	}
	svc, deps := newTestService(tx)

	res, err := svc.Assign(context.Background(), "ord_1", 3)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.True(t, res.AlreadyAssigned)
	require.EqualValues(t, 7, res.DeliveryID)
	require.EqualValues(t, 9, res.DriverID)

	require.Zero(t, deps.counters.manualEscalations.value())
	require.Zero(t, deps.counters.retries.value())
	require.Empty(t, deps.notifier.byType(notify.EventDriverAssigned))
}

func TestAssign_NoSuitableDriverInsideRadius(t *testing.T) {
	t.Parallel()

	tx := &stubTx{
		getOrderFn: func(_ context.Context, orderID string) (*domain.Order, error) {
			return testOrder(orderID), nil
		},
		listOnlineFn: func(context.Context) ([]domain.DriverSnapshot, error) {
			// Online but ~22 km out, past the 10 km radius.
			return []domain.DriverSnapshot{onlineDriver(1, 0.2, 5.0)}, nil
		},
	}
	svc, _ := newTestService(tx)

	res, err := svc.Assign(context.Background(), "ord_1", 0)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.True(t, res.Retryable)
	require.Equal(t, dispatch.ReasonNoSuitableDriver, res.Reason)
}

func TestAssign_ClaimsExistingPendingDelivery(t *testing.T) {
	t.Parallel()

	var (
		createCalled bool
		gotClaim     dispatchtx.DeliveryClaim
	)
	tx := &stubTx{
		getOrderFn: func(_ context.Context, orderID string) (*domain.Order, error) {
			return testOrder(orderID), nil
		},
		getDeliveryByOrderFn: func(_ context.Context, orderID string) (*domain.Delivery, error) {
			return &domain.Delivery{ID: 9, OrderID: orderID, Status: domain.StatusPending}, nil
		},
		listOnlineFn: func(context.Context) ([]domain.DriverSnapshot, error) {
			return []domain.DriverSnapshot{onlineDriver(4, 0.018, 4.5)}, nil
		},
		createDeliveryFn: func(_ context.Context, _ *domain.Delivery) (bool, error) {
			createCalled = true
			return true, nil
		},
		claimDeliveryFn: func(_ context.Context, deliveryID int64, claim dispatchtx.DeliveryClaim) (bool, error) {
			require.EqualValues(t, 9, deliveryID)
			gotClaim = claim
			return true, nil
		},
	}
	svc, _ := newTestService(tx)

	res, err := svc.Assign(context.Background(), "ord_1", 0)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.EqualValues(t, 9, res.DeliveryID)
	require.EqualValues(t, 4, res.DriverID)

	require.False(t, createCalled)
	require.Equal(t, "ord_1", gotClaim.OrderID)
	require.EqualValues(t, 4, gotClaim.DriverID)
	require.False(t, gotClaim.AssignedAt.IsZero())
}

func TestAssign_LostClaimRaceIsIdempotentSuccess(t *testing.T) {
	t.Parallel()

	tx := &stubTx{
		getOrderFn: func(_ context.Context, orderID string) (*domain.Order, error) {
			return testOrder(orderID), nil
		},
		getDeliveryByOrderFn: func(_ context.Context, orderID string) (*domain.Delivery, error) {
			return &domain.Delivery{ID: 9, OrderID: orderID, Status: domain.StatusPending}, nil
		},
		listOnlineFn: func(context.Context) ([]domain.DriverSnapshot, error) {
			return []domain.DriverSnapshot{onlineDriver(4, 0.018, 4.5)}, nil
		},
		claimDeliveryFn: func(_ context.Context, _ int64, _ dispatchtx.DeliveryClaim) (bool, error) {
			return false, nil
		},
		getDeliveryFn: func(_ context.Context, id int64) (*domain.Delivery, error) {
			return &domain.Delivery{ID: id, OrderID: "ord_1", Status: domain.StatusAssigned, DriverID: i64(8)}, nil
		},
	}
	svc, deps := newTestService(tx)

	res, err := svc.Assign(context.Background(), "ord_1", 0)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.True(t, res.AlreadyAssigned)
	require.EqualValues(t, 8, res.DriverID)
	require.Zero(t, deps.counters.assignments.value())
}

func TestAssign_LostCreateRaceFallsBackToClaim(t *testing.T) {
	t.Parallel()

	reads := 0
	tx := &stubTx{
		getOrderFn: func(_ context.Context, orderID string) (*domain.Order, error) {
			return testOrder(orderID), nil
		},
		getDeliveryByOrderFn: func(_ context.Context, orderID string) (*domain.Delivery, error) {
			reads++
			if reads == 1 {
				return nil, nil // first read: no delivery yet
			}
			return &domain.Delivery{ID: 31, OrderID: orderID, Status: domain.StatusPending}, nil
		},
		listOnlineFn: func(context.Context) ([]domain.DriverSnapshot, error) {
			return []domain.DriverSnapshot{onlineDriver(4, 0.018, 4.5)}, nil
		},
		createDeliveryFn: func(_ context.Context, _ *domain.Delivery) (bool, error) {
			return false, nil // another worker inserted the row first
		},
	}
	svc, _ := newTestService(tx)

	res, err := svc.Assign(context.Background(), "ord_1", 0)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.False(t, res.AlreadyAssigned)
	require.EqualValues(t, 31, res.DeliveryID)
	require.Equal(t, 2, reads)
}

func TestAssign_TerminalDeliveryIsClosed(t *testing.T) {
	t.Parallel()

	tx := &stubTx{
		getOrderFn: func(_ context.Context, orderID string) (*domain.Order, error) {
			return testOrder(orderID), nil
		},
		getDeliveryByOrderFn: func(_ context.Context, orderID string) (*domain.Delivery, error) {
			return &domain.Delivery{ID: 7, OrderID: orderID, Status: domain.StatusCancelled}, nil
		},
	}
	svc, _ := newTestService(tx)

	res, err := svc.Assign(context.Background(), "ord_1", 0)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.False(t, res.Retryable)
	require.Equal(t, dispatch.ReasonDeliveryClosed, res.Reason)
}

func TestAssign_RepositoryErrorPropagates(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("connection reset")
	tx := &stubTx{
		getOrderFn: func(context.Context, string) (*domain.Order, error) {
			return nil, wantErr
		},
	}
	svc, _ := newTestService(tx)

	_, err := svc.Assign(context.Background(), "ord_1", 0)
	require.ErrorIs(t, err, wantErr)
}

func TestHandleTask_RoutesAssign(t *testing.T) {
	t.Parallel()

	var gotOrder string
	tx := &stubTx{
		getOrderFn: func(_ context.Context, orderID string) (*domain.Order, error) {
			gotOrder = orderID
			return nil, nil
		},
	}
	svc, _ := newTestService(tx)

	env := taskqueue.NewAssignTask("ord_9", 2)
	require.NoError(t, svc.HandleTask(context.Background(), env))
	require.Equal(t, "ord_9", gotOrder)
}

func TestHandleTask_UnknownTypeIsDropped(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(&stubTx{})
	env := taskqueue.Envelope{ID: "x", Type: taskqueue.TaskType("unknown")}
	require.NoError(t, svc.HandleTask(context.Background(), env))
}
