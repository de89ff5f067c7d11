package dispatch

// FailureReason classifies why an assignment attempt did not assign a driver.
type FailureReason string

// List of assignment failure reasons. OrderNotFound, MissingPickupLocation
// and DeliveryClosed are data problems and never retried; NoDriversOnline and
// NoSuitableDriver are transient and retried up to the configured budget,
// then escalated to manual assignment.
const (
	ReasonNone                  FailureReason = ""
	ReasonOrderNotFound         FailureReason = "OrderNotFound"
	ReasonMissingPickupLocation FailureReason = "MissingPickupLocation"
	ReasonNoDriversOnline       FailureReason = "NoDriversOnline"
	ReasonNoSuitableDriver      FailureReason = "NoSuitableDriver"
	ReasonDeliveryClosed        FailureReason = "DeliveryClosed"
)

// Result - struct representing the outcome of one assignment attempt.
// Retryable failures are results, not errors, so the scheduling layer can
// apply backoff without unwrapping error chains.
type Result struct {
	Success         bool
	AlreadyAssigned bool
	DeliveryID      int64
	DriverID        int64
	Reason          FailureReason
	Retryable       bool
}

func successResult(deliveryID, driverID int64) Result {
	return Result{Success: true, DeliveryID: deliveryID, DriverID: driverID}
}

func alreadyAssignedResult(deliveryID, driverID int64) Result {
	return Result{Success: true, AlreadyAssigned: true, DeliveryID: deliveryID, DriverID: driverID}
}

func failureResult(reason FailureReason, retryable bool) Result {
	return Result{Reason: reason, Retryable: retryable}
}
