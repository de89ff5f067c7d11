package metrics

import "github.com/prometheus/client_golang/prometheus"

// NewAssignmentsTotal returns a Prometheus counter for successful driver assignments
func NewAssignmentsTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_assignments_total",
		Help: "Total number of deliveries assigned to a driver",
	})
}

// NewReassignmentsTotal returns a Prometheus counter for reassignments after rejection or timeout
func NewReassignmentsTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_reassignments_total",
		Help: "Total number of deliveries reassigned after rejection or timeout",
	})
}

// NewDispatchRetriesTotal returns a Prometheus counter for retried assignment attempts
func NewDispatchRetriesTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_retries_total",
		Help: "Total number of retried assignment attempts",
	})
}

// NewManualEscalationsTotal returns a Prometheus counter for deliveries escalated to manual assignment
func NewManualEscalationsTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_manual_escalations_total",
		Help: "Total number of deliveries marked for manual assignment",
	})
}

// NewExecutorFallbacksTotal returns a Prometheus counter for task executions that skipped the async queue tier
func NewExecutorFallbacksTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskexec_fallbacks_total",
		Help: "Total number of tasks that fell back from the async queue to a lower tier",
	})
}

// NewNotificationsDroppedTotal returns a Prometheus counter for notifications that could not be delivered
func NewNotificationsDroppedTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifications_dropped_total",
		Help: "Total number of notification events dropped after publish failure",
	})
}
