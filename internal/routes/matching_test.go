package routes

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"planner.commuteway.org/internal/models"
	"planner.commuteway.org/internal/store"
	"planner.commuteway.org/internal/testutil"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	mem := store.NewMemoryStore()
	require.NoError(t, mem.ReplaceNetwork(context.Background(), testutil.Network()))
	return NewService(mem, testutil.Logger())
}

type matchSummary struct {
	BusID     string
	Direction models.Direction
	On, Off   int
}

func summarize(matches []models.BusMatch) []matchSummary {
	out := make([]matchSummary, len(matches))
	for i, m := range matches {
		out[i] = matchSummary{m.Bus.ID, m.Direction, m.OnboardingOrder, m.OffboardingOrder}
	}
	return out
}

func TestFindBusRoutes(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		on, off  string
		expected []matchSummary
	}{
		{
			name: "southbound",
			on:   testutil.Farmgate,
			off:  testutil.Shahbag,
			expected: []matchSummary{
				{"bus-1", models.DirectionOutbound, 1, 3},
				{"bus-2", models.DirectionOutbound, 2, 4},
				{"bus-4", models.DirectionOutbound, 0, 2},
				{"bus-5", models.DirectionOutbound, 2, 4},
			},
		},
		{
			name: "northbound uses the other direction",
			on:   testutil.Shahbag,
			off:  testutil.Farmgate,
			expected: []matchSummary{
				{"bus-1", models.DirectionInbound, 2, 4},
				{"bus-2", models.DirectionInbound, 0, 2},
				{"bus-4", models.DirectionOutbound, 2, 3},
			},
		},
		{
			name:     "no connecting bus",
			on:       testutil.Motijheel,
			off:      testutil.Banani,
			expected: []matchSummary{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, err := svc.FindBusRoutes(ctx, tt.on, tt.off)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, summarize(matches))

			for _, m := range matches {
				assert.Less(t, m.OnboardingOrder, m.OffboardingOrder)
				assert.Equal(t, models.BusStatusActive, m.Bus.Status)
				assert.Len(t, m.IntermediateSegments, m.OffboardingOrder-m.OnboardingOrder)
				assert.Equal(t, tt.on, m.IntermediateSegments[0].StopID)
			}
		})
	}
}

func TestFindBusRoutesSkipsInactiveBuses(t *testing.T) {
	svc := newTestService(t)

	matches, err := svc.FindBusRoutes(context.Background(), testutil.Farmgate, testutil.KarwanBazar)
	require.NoError(t, err)
	for _, m := range matches {
		assert.NotEqual(t, "bus-3", m.Bus.ID)
	}
	assert.Len(t, matches, 4)
}

func TestFindBusRoutesWithQuery(t *testing.T) {
	svc := newTestService(t)
	ac := true

	matches, err := svc.FindBusRoutesWithQuery(context.Background(), testutil.Farmgate, testutil.Shahbag, models.BusQuery{AC: &ac})
	require.NoError(t, err)
	assert.Equal(t, []matchSummary{
		{"bus-2", models.DirectionOutbound, 2, 4},
		{"bus-4", models.DirectionOutbound, 0, 2},
	}, summarize(matches))
}

func TestFindBusRoutesSameStop(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.FindBusRoutes(context.Background(), testutil.Farmgate, testutil.Farmgate)
	assert.ErrorIs(t, err, ErrSameStop)
}

type brokenRouteStore struct{ store.RouteStore }

func (brokenRouteStore) BusesServingStops(context.Context, string, string, models.BusQuery) ([]models.Bus, error) {
	return []models.Bus{{ID: "bus-1", Status: models.BusStatusActive}}, nil
}

func (brokenRouteStore) RouteSegments(context.Context, string, models.Direction) ([]models.RouteSegment, error) {
	return nil, errors.New("connection refused")
}

func TestFindBusRoutesStoreFailure(t *testing.T) {
	svc := NewService(brokenRouteStore{}, testutil.Logger())

	_, err := svc.FindBusRoutes(context.Background(), testutil.Farmgate, testutil.Shahbag)
	assert.ErrorContains(t, err, "connection refused")
}

func TestClosestOrderedPair(t *testing.T) {
	route := testutil.Route("loop", models.DirectionOutbound, nil, "A", "X", "B", "A", "B", "C")

	on, off, ok := closestOrderedPair(route, "A", "B")
	require.True(t, ok)
	assert.Equal(t, 3, on)
	assert.Equal(t, 4, off)

	on, off, ok = closestOrderedPair(route, "X", "C")
	require.True(t, ok)
	assert.Equal(t, 1, on)
	assert.Equal(t, 5, off)

	_, _, ok = closestOrderedPair(route, "C", "A")
	assert.False(t, ok)

	_, _, ok = closestOrderedPair(route, "A", "missing")
	assert.False(t, ok)
}

func TestCalculateJourneyLength(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// bus-5 segments are 1,1,2,1,1,1,1 km: positions 3..7 cover 1+1+1+1
	km, err := svc.CalculateJourneyLength(ctx, "bus-5", 3, 7, models.DirectionOutbound)
	require.NoError(t, err)
	assert.Equal(t, 4.0, km)

	km, err = svc.CalculateJourneyLength(ctx, "bus-5", 0, 7, models.DirectionOutbound)
	require.NoError(t, err)
	assert.Equal(t, 8.0, km)

	invalid := []struct{ on, off int }{{3, 3}, {5, 2}, {-1, 2}, {2, 8}}
	for _, tt := range invalid {
		_, err := svc.CalculateJourneyLength(ctx, "bus-5", tt.on, tt.off, models.DirectionOutbound)
		assert.ErrorIs(t, err, ErrInvalidOrder, "orders %d..%d", tt.on, tt.off)
	}

	_, err = svc.CalculateJourneyLength(ctx, "bus-99", 0, 1, models.DirectionOutbound)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJourneyLengthForMatchAgreesWithStore(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	matches, err := svc.FindBusRoutes(ctx, testutil.KarwanBazar, testutil.Motijheel)
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	for _, m := range matches {
		fromStore, err := svc.CalculateJourneyLength(ctx, m.Bus.ID, m.OnboardingOrder, m.OffboardingOrder, m.Direction)
		require.NoError(t, err)
		assert.Equal(t, fromStore, JourneyLengthForMatch(m))
	}
}
