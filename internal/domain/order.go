package domain

// Order is the slice of the order record dispatch reads: identity, the
// restaurant pickup point and the customer drop-off point. Order status is
// owned by the order system; dispatch only writes the coarse "delivered"
// transition on completion.
type Order struct {
	ID           string
	RestaurantID int64

	PickupLat  *float64
	PickupLon  *float64
	DropoffLat *float64
	DropoffLon *float64
}

// HasPickupLocation reports whether the restaurant coordinates are known.
// Dispatch cannot match a driver without a pickup point.
func (o Order) HasPickupLocation() bool {
	return o.PickupLat != nil && o.PickupLon != nil
}
