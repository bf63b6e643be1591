package planner

import (
	"context"
	"sync/atomic"
	"testing"

	"planner.commuteway.org/internal/distance"
	"planner.commuteway.org/internal/models"
	"planner.commuteway.org/internal/routes"
	"planner.commuteway.org/internal/stops"
	"planner.commuteway.org/internal/store"
	"planner.commuteway.org/internal/testutil"
)

// networkMethodCalculator measures like the great-circle strategy but tags
// every cell as a road network distance.
type networkMethodCalculator struct{}

func (networkMethodCalculator) CalculateDistances(ctx context.Context, origins, destinations []models.Coordinate) ([][]models.DistanceResult, error) {
	m, err := distance.NewGreatCircle().CalculateDistances(ctx, origins, destinations)
	for i := range m {
		for j := range m[i] {
			m[i][j].Method = models.MethodNetwork
		}
	}
	return m, err
}

// gatedCalculator blocks its first call until release is closed.
type gatedCalculator struct {
	inner   stops.DistanceCalculator
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func newGatedCalculator(inner stops.DistanceCalculator) *gatedCalculator {
	return &gatedCalculator{
		inner:   inner,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gatedCalculator) CalculateDistances(ctx context.Context, origins, destinations []models.Coordinate) ([][]models.DistanceResult, error) {
	if g.calls.Add(1) == 1 {
		close(g.entered)
		<-g.release
	}
	return g.inner.CalculateDistances(ctx, origins, destinations)
}

// newTestPlanner returns a planner over the fixture network.
func newTestPlanner(t *testing.T, calc stops.DistanceCalculator) *Planner {
	t.Helper()
	logger := testutil.Logger()

	s := store.NewMemoryStore()
	if err := s.ReplaceNetwork(context.Background(), testutil.Network()); err != nil {
		t.Fatalf("failed to load fixture network: %v", err)
	}
	if calc == nil {
		calc = distance.NewCalculator(nil, distance.NewGreatCircle(), logger)
	}
	return New(stops.NewService(s, calc, logger), routes.NewService(s, logger), logger)
}

func stopPoint(id string) models.Coordinate {
	return testutil.StopByID(id).Coordinate()
}

// selectTrip discovers stops 300 m around two fixture stops and selects them.
func selectTrip(t *testing.T, p *Planner, fromID, toID string) {
	t.Helper()
	ctx := context.Background()
	if _, err := p.DiscoverStopsNearLocation(ctx, stopPoint(fromID), 300, SideStart); err != nil {
		t.Fatalf("start discovery failed: %v", err)
	}
	if _, err := p.DiscoverStopsNearLocation(ctx, stopPoint(toID), 300, SideDestination); err != nil {
		t.Fatalf("destination discovery failed: %v", err)
	}
	if err := p.SelectOnboardingStop(fromID); err != nil {
		t.Fatalf("SelectOnboardingStop(%s) failed: %v", fromID, err)
	}
	if err := p.SelectOffboardingStop(toID); err != nil {
		t.Fatalf("SelectOffboardingStop(%s) failed: %v", toID, err)
	}
}

func resultIDs(results []models.EnhancedBusResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}
