package dispatch

import (
	"context"

	"service-dispatch/internal/service/matching"
)

// matcherPort abstracts the driver matcher used by assignment and reassignment.
type matcherPort interface {
	FindCandidates(ctx context.Context, dir matching.Directory, pickupLat, pickupLon float64, exclude map[int64]struct{}) ([]matching.Candidate, error)
}

type counter interface {
	Inc()
}

// Counters groups the dispatch metrics. Nil fields are skipped.
type Counters struct {
	Assignments          counter
	Reassignments        counter
	Retries              counter
	ManualEscalations    counter
	DroppedNotifications counter
}

func inc(c counter) {
	if c != nil {
		c.Inc()
	}
}
