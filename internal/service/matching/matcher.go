package matching

import (
	"context"
	"sort"

	"service-dispatch/internal/geo"
)

// Candidate is a driver considered for one matching call, ranked by rating
// and distance. Candidates are ephemeral and never persisted.
type Candidate struct {
	DriverID   int64
	DistanceKm float64
	Rating     float64
}

// Matcher ranks available drivers around a pickup point.
type Matcher struct {
	radiusKm float64
	// unknownLocationFactor places drivers without a reported location at a
	// synthetic distance of radius*factor, near the edge but still includable.
	unknownLocationFactor float64
}

// NewMatcher - creates a new Matcher. Non-positive radius falls back to 10 km,
// out-of-range factor to 0.8.
func NewMatcher(radiusKm, unknownLocationFactor float64) *Matcher {
	if radiusKm <= 0 {
		radiusKm = 10
	}
	if unknownLocationFactor <= 0 || unknownLocationFactor > 1 {
		unknownLocationFactor = 0.8
	}
	return &Matcher{radiusKm: radiusKm, unknownLocationFactor: unknownLocationFactor}
}

// RadiusKm returns the configured search radius.
func (m *Matcher) RadiusKm() float64 { return m.radiusKm }

// FindCandidates returns drivers eligible for a pickup at (pickupLat,
// pickupLon), best first: highest rating, then nearest. An empty result is a
// normal outcome, not an error; the caller decides whether to retry.
//
// A driver marked unavailable is still eligible while holding zero active
// deliveries; that guards matching against stale availability flags.
func (m *Matcher) FindCandidates(ctx context.Context, dir Directory, pickupLat, pickupLon float64, exclude map[int64]struct{}) ([]Candidate, error) {
	drivers, err := dir.ListOnlineDrivers(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(drivers))
	for _, d := range drivers {
		if _, skip := exclude[d.DriverID]; skip {
			continue
		}

		if !d.IsAvailable {
			active, err := dir.CountActiveDeliveries(ctx, d.DriverID)
			if err != nil {
				return nil, err
			}
			if active > 0 {
				continue
			}
		}

		distance := m.radiusKm * m.unknownLocationFactor
		if d.Lat != nil && d.Lon != nil {
			distance = geo.DistanceKm(pickupLat, pickupLon, *d.Lat, *d.Lon)
			if distance > m.radiusKm {
				continue
			}
		}

		candidates = append(candidates, Candidate{
			DriverID:   d.DriverID,
			DistanceKm: distance,
			Rating:     d.Rating,
		})
	}

	// Stable sort keeps behavior deterministic when both keys tie.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Rating != candidates[j].Rating {
			return candidates[i].Rating > candidates[j].Rating
		}
		return candidates[i].DistanceKm < candidates[j].DistanceKm
	})

	return candidates, nil
}
