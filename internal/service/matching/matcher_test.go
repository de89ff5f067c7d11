package matching_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"service-dispatch/internal/domain"
	"service-dispatch/internal/service/matching"
)

type stubDirectory struct {
	listFn  func(context.Context) ([]domain.DriverSnapshot, error)
	countFn func(context.Context, int64) (int, error)
}

func (s *stubDirectory) ListOnlineDrivers(ctx context.Context) ([]domain.DriverSnapshot, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx)
}

func (s *stubDirectory) CountActiveDeliveries(ctx context.Context, driverID int64) (int, error) {
	if s.countFn == nil {
		return 0, nil
	}
	return s.countFn(ctx, driverID)
}

func f64(v float64) *float64 { return &v }

// Pickup at the origin; driver distances then reduce to degrees of latitude,
// one degree being ~111.2 km.
const (
	pickupLat = 0.0
	pickupLon = 0.0
)

func driverAt(id int64, lat float64, rating float64) domain.DriverSnapshot {
	return domain.DriverSnapshot{
		DriverID:    id,
		IsOnline:    true,
		IsAvailable: true,
		Lat:         f64(lat),
		Lon:         f64(pickupLon),
		Rating:      rating,
	}
}

func TestFindCandidates_RanksByRatingThenDistance(t *testing.T) {
	t.Parallel()

	dir := &stubDirectory{
		listFn: func(context.Context) ([]domain.DriverSnapshot, error) {
			return []domain.DriverSnapshot{
				driverAt(1, 0.009, 4.2), // ~1 km, lower rating
				driverAt(2, 0.027, 4.8), // ~3 km, best rating
				driverAt(3, 0.045, 4.8), // ~5 km, best rating but farther
			}, nil
		},
	}

	m := matching.NewMatcher(10, 0.8)
	cands, err := m.FindCandidates(context.Background(), dir, pickupLat, pickupLon, nil)
	require.NoError(t, err)
	require.Len(t, cands, 3)

	// Higher rating wins even when farther away.
	require.EqualValues(t, 2, cands[0].DriverID)
	require.EqualValues(t, 3, cands[1].DriverID)
	require.EqualValues(t, 1, cands[2].DriverID)
}

func TestFindCandidates_RadiusBoundary(t *testing.T) {
	t.Parallel()

	dir := &stubDirectory{
		listFn: func(context.Context) ([]domain.DriverSnapshot, error) {
			return []domain.DriverSnapshot{
				driverAt(1, 0.0899, 5.0), // just inside 10 km
				driverAt(2, 0.12, 5.0),   // ~13.3 km, outside
			}, nil
		},
	}

	m := matching.NewMatcher(10, 0.8)
	cands, err := m.FindCandidates(context.Background(), dir, pickupLat, pickupLon, nil)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.EqualValues(t, 1, cands[0].DriverID)
	require.LessOrEqual(t, cands[0].DistanceKm, 10.0)
}

func TestFindCandidates_UnknownLocationSyntheticDistance(t *testing.T) {
	t.Parallel()

	dir := &stubDirectory{
		listFn: func(context.Context) ([]domain.DriverSnapshot, error) {
			return []domain.DriverSnapshot{
				{DriverID: 1, IsOnline: true, IsAvailable: true, Rating: 4.0},
				driverAt(2, 0.009, 4.0), // ~1 km, same rating
			}, nil
		},
	}

	m := matching.NewMatcher(10, 0.8)
	cands, err := m.FindCandidates(context.Background(), dir, pickupLat, pickupLon, nil)
	require.NoError(t, err)
	require.Len(t, cands, 2)

	// Location unknown is still eligible but ranked at radius*factor, so the
	// driver with a real nearby location sorts first.
	require.EqualValues(t, 2, cands[0].DriverID)
	require.EqualValues(t, 1, cands[1].DriverID)
	require.InDelta(t, 8.0, cands[1].DistanceKm, 1e-9)
}

func TestFindCandidates_Exclusion(t *testing.T) {
	t.Parallel()

	dir := &stubDirectory{
		listFn: func(context.Context) ([]domain.DriverSnapshot, error) {
			return []domain.DriverSnapshot{
				driverAt(1, 0.009, 5.0),
				driverAt(2, 0.018, 4.0),
			}, nil
		},
	}

	m := matching.NewMatcher(10, 0.8)
	cands, err := m.FindCandidates(context.Background(), dir, pickupLat, pickupLon, map[int64]struct{}{1: {}})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.EqualValues(t, 2, cands[0].DriverID)
}

func TestFindCandidates_StaleAvailabilityFlag(t *testing.T) {
	t.Parallel()

	unavailable := driverAt(1, 0.009, 5.0)
	unavailable.IsAvailable = false
	busy := driverAt(2, 0.009, 5.0)
	busy.IsAvailable = false

	dir := &stubDirectory{
		listFn: func(context.Context) ([]domain.DriverSnapshot, error) {
			return []domain.DriverSnapshot{unavailable, busy}, nil
		},
		countFn: func(_ context.Context, driverID int64) (int, error) {
			if driverID == 2 {
				return 1, nil
			}
			return 0, nil
		},
	}

	m := matching.NewMatcher(10, 0.8)
	cands, err := m.FindCandidates(context.Background(), dir, pickupLat, pickupLon, nil)
	require.NoError(t, err)

	// Flagged unavailable with zero active deliveries is a stale flag, the
	// driver stays eligible. Holding an active delivery is a real no.
	require.Len(t, cands, 1)
	require.EqualValues(t, 1, cands[0].DriverID)
}

func TestFindCandidates_DirectoryError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("db down")
	dir := &stubDirectory{
		listFn: func(context.Context) ([]domain.DriverSnapshot, error) {
			return nil, wantErr
		},
	}

	m := matching.NewMatcher(10, 0.8)
	_, err := m.FindCandidates(context.Background(), dir, pickupLat, pickupLon, nil)
	require.ErrorIs(t, err, wantErr)
}

func TestFindCandidates_Empty(t *testing.T) {
	t.Parallel()

	m := matching.NewMatcher(10, 0.8)
	cands, err := m.FindCandidates(context.Background(), &stubDirectory{}, pickupLat, pickupLon, nil)
	require.NoError(t, err)
	require.Empty(t, cands)
}

func TestNewMatcher_Defaults(t *testing.T) {
	t.Parallel()

	m := matching.NewMatcher(0, 0)
	require.InDelta(t, 10.0, m.RadiusKm(), 1e-9)

	m = matching.NewMatcher(-5, 1.7)
	require.InDelta(t, 10.0, m.RadiusKm(), 1e-9)
}
