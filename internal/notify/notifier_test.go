package notify_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"service-dispatch/internal/notify"
)

func TestNewEvent(t *testing.T) {
	t.Parallel()

	e := notify.NewEvent(notify.EventDriverAssigned, notify.DriverChannel(7), map[string]any{
		"order_id": "ord_1",
	})
	require.NotEmpty(t, e.ID)
	require.Equal(t, notify.EventDriverAssigned, e.Type)
	require.Equal(t, "driver_assigned", e.TypeName)
	require.Equal(t, "driver:7", e.Channel)
	require.False(t, e.CreatedAt.IsZero())

	other := notify.NewEvent(notify.EventDriverAssigned, notify.DriverChannel(7), nil)
	require.NotEqual(t, e.ID, other.ID)
}

func TestEventType_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "driver_reassigned", notify.EventDriverReassigned.String())
	require.Equal(t, "order_status_changed", notify.EventOrderStatusChanged.String())
	require.Equal(t, "vendor_order_update", notify.EventVendorOrderUpdate.String())
	require.Equal(t, "driver_details", notify.EventDriverDetails.String())
	require.Equal(t, "unknown_99", notify.EventType(99).String())
}

func TestEventType_Valid(t *testing.T) {
	t.Parallel()

	require.True(t, notify.EventDriverAssigned.Valid())
	require.False(t, notify.EventType(99).Valid())
}

func TestChannels(t *testing.T) {
	t.Parallel()

	require.Equal(t, "driver:12", notify.DriverChannel(12))
	require.Equal(t, "order:ord_9", notify.OrderChannel("ord_9"))
	require.Equal(t, "restaurant:3", notify.RestaurantChannel(3))
}
