package planner

import (
	"context"
	"errors"
	"sync"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"planner.commuteway.org/internal/filter"
	"planner.commuteway.org/internal/metrics"
	"planner.commuteway.org/internal/models"
	"planner.commuteway.org/internal/testutil"
)

func TestNewPlannerStartsIdle(t *testing.T) {
	p := newTestPlanner(t, nil)
	s := p.GetState()

	assert.Equal(t, PhaseIdle, s.Phase)
	assert.Equal(t, float64(DefaultStartingThresholdMeters), s.StartingThresholdMeters)
	assert.Zero(t, s.DestinationThresholdMeters)
	assert.Nil(t, s.Results)
	assert.Nil(t, p.DisplayedResults())
}

func TestThresholdOutOfRangeLeavesStateUnchanged(t *testing.T) {
	p := newTestPlanner(t, nil)
	require.NoError(t, p.SetStartingThreshold(800))

	for _, bad := range []float64{0, 99, 5001, -10} {
		before := p.GetState()
		err := p.SetStartingThreshold(bad)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "threshold %v", bad)
		after := p.GetState()
		assert.Equal(t, 800.0, after.StartingThresholdMeters)
		assert.Equal(t, err.Error(), after.Error)

		after.Error, after.Version = before.Error, before.Version
		assert.Equal(t, before, after, "only the error may change")
	}

	require.NoError(t, p.SetStartingThreshold(100))
	require.NoError(t, p.SetStartingThreshold(5000))
	assert.Empty(t, p.GetState().Error)
}

func TestDestinationThresholdCanBeUnset(t *testing.T) {
	p := newTestPlanner(t, nil)

	require.NoError(t, p.SetDestinationThreshold(1200))
	require.NoError(t, p.SetDestinationThreshold(0))
	assert.Zero(t, p.GetState().DestinationThresholdMeters)
	assert.Error(t, p.SetDestinationThreshold(50))
}

func TestSetLocationValidatesCoordinates(t *testing.T) {
	p := newTestPlanner(t, nil)

	err := p.SetFromLocation(Location{Label: "nowhere", Point: models.Coordinate{Lat: 120, Lng: 90}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "from", verr.Field)
	assert.Nil(t, p.GetState().From)

	require.NoError(t, p.SetFromLocation(Location{Label: "Home", Point: stopPoint(testutil.Banani)}))
	s := p.GetState()
	require.NotNil(t, s.From)
	assert.Equal(t, "Home", s.From.Label)
	assert.Equal(t, PhaseLocating, s.Phase)
	assert.Empty(t, s.Error)
}

func TestDiscoverStopsNearLocation(t *testing.T) {
	p := newTestPlanner(t, nil)

	found, err := p.DiscoverStopsNearLocation(context.Background(), stopPoint(testutil.Shahbag), 1500, SideStart)
	require.NoError(t, err)

	require.NotEmpty(t, found)
	assert.Equal(t, testutil.Shahbag, found[0].ID)
	for i, d := range found {
		assert.LessOrEqual(t, d.DistanceMeters, 1500.0)
		if i > 0 {
			assert.GreaterOrEqual(t, d.DistanceMeters, found[i-1].DistanceMeters)
		}
	}

	s := p.GetState()
	assert.Equal(t, PhaseStopsDiscovered, s.Phase)
	assert.Equal(t, found, s.StartingStops)
	assert.Equal(t, models.MethodGreatCircle, s.StartingMethod)
	assert.Equal(t, 1500.0, s.StartingThresholdMeters)
	assert.Equal(t, approximateDistancesWarning, s.Warning)
	assert.False(t, s.Loading)
}

func TestDiscoverWithRoadDistancesHasNoWarning(t *testing.T) {
	p := newTestPlanner(t, networkMethodCalculator{})

	_, err := p.DiscoverStopsNearLocation(context.Background(), stopPoint(testutil.Shahbag), 500, SideStart)
	require.NoError(t, err)

	s := p.GetState()
	assert.Equal(t, models.MethodNetwork, s.StartingMethod)
	assert.Empty(t, s.Warning)
}

func TestDiscoverUnsetDestinationThresholdReturnsAllStops(t *testing.T) {
	p := newTestPlanner(t, nil)

	found, err := p.DiscoverStopsNearLocation(context.Background(), stopPoint(testutil.Motijheel), 0, SideDestination)
	require.NoError(t, err)
	assert.Len(t, found, len(testutil.Stops()))
	assert.Equal(t, testutil.Motijheel, found[0].ID)

	_, err = p.DiscoverStopsNearLocation(context.Background(), stopPoint(testutil.Motijheel), 0, SideStart)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr, "the starting side always needs a threshold")
}

func TestDiscoverNoStopsIsNotAnError(t *testing.T) {
	p := newTestPlanner(t, nil)

	// Ramna park is more than 100 m from every fixture stop.
	found, err := p.DiscoverStopsNearLocation(context.Background(), models.Coordinate{Lat: 23.7365, Lng: 90.4045}, 100, SideStart)
	require.NoError(t, err)
	assert.Empty(t, found)

	s := p.GetState()
	assert.NotNil(t, s.StartingStops)
	assert.Contains(t, s.Error, "No stops found within 100 m")
}

func TestSelectStopRecordsWalkingLeg(t *testing.T) {
	p := newTestPlanner(t, nil)
	found, err := p.DiscoverStopsNearLocation(context.Background(), stopPoint(testutil.Shahbag), 1500, SideStart)
	require.NoError(t, err)
	require.Greater(t, len(found), 1)

	far := found[len(found)-1]
	require.NoError(t, p.SelectOnboardingStop(far.ID))

	s := p.GetState()
	require.NotNil(t, s.OnboardingStop)
	assert.Equal(t, far.ID, s.OnboardingStop.ID)
	require.NotNil(t, s.WalkingToOnboardingKm)
	assert.InDelta(t, far.DistanceMeters/1000, *s.WalkingToOnboardingKm, 1e-12)

	err = p.SelectOffboardingStop(testutil.Gulistan)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "offboarding_stop", verr.Field)
	assert.Nil(t, p.GetState().OffboardingStop)
}

func TestSearchRequiresBothStops(t *testing.T) {
	p := newTestPlanner(t, nil)

	results, err := p.SearchBusesForRoute(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Nil(t, results)

	s := p.GetState()
	assert.Equal(t, verr.Error(), s.Error)
	assert.Nil(t, s.Results)
	assert.False(t, s.Loading)
}

func TestSearchBusesForRoute(t *testing.T) {
	p := newTestPlanner(t, nil)
	selectTrip(t, p, testutil.Mohakhali, testutil.Shahbag)
	assert.Equal(t, PhaseStopsSelected, p.GetState().Phase)

	results, err := p.SearchBusesForRoute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"bus-1", "bus-2", "bus-5"}, resultIDs(results))

	byID := map[string]models.EnhancedBusResult{}
	for _, r := range results {
		byID[r.ID] = r
	}
	assert.InDelta(t, 4.8, byID["bus-1"].JourneyLengthKm, 1e-9)
	assert.InDelta(t, 4.8, byID["bus-2"].JourneyLengthKm, 1e-9)
	assert.InDelta(t, 4.0, byID["bus-5"].JourneyLengthKm, 1e-9)
	for _, r := range results {
		assert.Zero(t, r.TotalWalkingKm)
		assert.Equal(t, testutil.Mohakhali, r.OnboardingStop.ID)
		assert.Equal(t, testutil.Shahbag, r.OffboardingStop.ID)
		assert.Equal(t, r.JourneyLengthKm+r.TotalWalkingKm, r.TotalDistanceKm)
	}

	s := p.GetState()
	assert.Equal(t, PhaseRoutesFound, s.Phase)
	assert.Equal(t, results, s.Results)
	assert.Equal(t, results, s.DisplayedResults)
	assert.Empty(t, s.Error)
}

func TestSearchWithoutConnectingBus(t *testing.T) {
	p := newTestPlanner(t, nil)
	// bus-5 only runs outbound, from Banani towards Motijheel.
	selectTrip(t, p, testutil.Motijheel, testutil.Banani)

	results, err := p.SearchBusesForRoute(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)

	s := p.GetState()
	assert.Equal(t, PhaseRoutesFound, s.Phase)
	assert.NotNil(t, s.Results)
	assert.Equal(t, "No bus goes from Motijheel to Banani", s.Error)
}

func TestFiltersAndSortRederiveWithoutSearching(t *testing.T) {
	p := newTestPlanner(t, nil)
	selectTrip(t, p, testutil.Mohakhali, testutil.Shahbag)
	_, err := p.SearchBusesForRoute(context.Background())
	require.NoError(t, err)

	ac := true
	p.SetACFilter(&ac)
	assert.Equal(t, []string{"bus-2"}, resultIDs(p.GetState().DisplayedResults))

	p.SetACFilter(nil)
	require.NoError(t, p.SetSortBy(filter.SortJourneyLength))
	assert.Equal(t, []string{"bus-5", "bus-1", "bus-2"}, resultIDs(p.GetState().DisplayedResults))

	require.NoError(t, p.SetSortOrder(filter.OrderDesc))
	assert.Equal(t, []string{"bus-1", "bus-2", "bus-5"}, resultIDs(p.GetState().DisplayedResults))

	p.SetCoachTypeFilter([]string{"double_decker", "minibus"})
	assert.Equal(t, []string{"bus-2", "bus-5"}, resultIDs(p.GetState().DisplayedResults))

	maxKm := 4.5
	require.NoError(t, p.SetJourneyLengthRange(nil, &maxKm))
	assert.Equal(t, []string{"bus-5"}, resultIDs(p.GetState().DisplayedResults))

	walk := 0.0
	require.NoError(t, p.SetMaxWalkingDistance(&walk))
	assert.Equal(t, []string{"bus-5"}, resultIDs(p.GetState().DisplayedResults))

	p.ClearAllFilters()
	s := p.GetState()
	assert.True(t, s.Filters.IsZero())
	assert.Equal(t, filter.SortConfig{}, s.Sort)
	assert.Equal(t, []string{"bus-1", "bus-2", "bus-5"}, resultIDs(s.DisplayedResults))
	assert.Len(t, s.Results, 3, "unfiltered results are never narrowed")
}

func TestInvalidFilterIsRejected(t *testing.T) {
	p := newTestPlanner(t, nil)

	minKm, maxKm := 5.0, 2.0
	err := p.SetJourneyLengthRange(&minKm, &maxKm)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "journey_length", verr.Field)

	s := p.GetState()
	assert.Nil(t, s.Filters.MinJourneyKm)
	assert.Equal(t, err.Error(), s.Error)

	assert.Error(t, p.SetSortBy("price"))
	assert.Error(t, p.SetSortOrder("sideways"))

	p.SetACFilter(nil)
	assert.Empty(t, p.GetState().Error, "a valid configuration clears the previous configuration error")
}

func TestSetFiltersPublishesOneSnapshot(t *testing.T) {
	p := newTestPlanner(t, nil)
	selectTrip(t, p, testutil.Mohakhali, testutil.Shahbag)
	_, err := p.SearchBusesForRoute(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.SetSortBy(filter.SortName))

	ac, maxKm := false, 4.5
	before := p.GetState().Version
	require.NoError(t, p.SetFilters(filter.Config{AC: &ac, MaxJourneyKm: &maxKm}))

	s := p.GetState()
	assert.Equal(t, before+1, s.Version)
	assert.Equal(t, []string{"bus-5"}, resultIDs(s.DisplayedResults))
	assert.Equal(t, filter.SortName, s.Sort.By, "the ordering is kept")

	minKm := 9.0
	require.Error(t, p.SetFilters(filter.Config{MinJourneyKm: &minKm, MaxJourneyKm: &maxKm}))
	assert.Equal(t, []string{"bus-5"}, resultIDs(p.GetState().DisplayedResults))
}

func TestDisplayedResultsUsesMemoCache(t *testing.T) {
	p := newTestPlanner(t, nil)
	selectTrip(t, p, testutil.Mohakhali, testutil.Shahbag)
	_, err := p.SearchBusesForRoute(context.Background())
	require.NoError(t, err)

	hits := promtestutil.ToFloat64(metrics.ResultCacheRequests.WithLabelValues("hit"))
	misses := promtestutil.ToFloat64(metrics.ResultCacheRequests.WithLabelValues("miss"))

	first := p.DisplayedResults()
	second := p.DisplayedResults()
	assert.Equal(t, first, second)
	assert.Equal(t, hits+2, promtestutil.ToFloat64(metrics.ResultCacheRequests.WithLabelValues("hit")))
	assert.Equal(t, misses, promtestutil.ToFloat64(metrics.ResultCacheRequests.WithLabelValues("miss")))

	require.NoError(t, p.SetSortBy(filter.SortName))
	assert.Equal(t, misses+1, promtestutil.ToFloat64(metrics.ResultCacheRequests.WithLabelValues("miss")),
		"a setter invalidates the cache")
}

func TestSnapshotsAreReplacedNotMutated(t *testing.T) {
	p := newTestPlanner(t, nil)
	before := p.GetState()

	ac := true
	p.SetACFilter(&ac)
	ac = false

	after := p.GetState()
	assert.Nil(t, before.Filters.AC)
	require.NotNil(t, after.Filters.AC)
	assert.True(t, *after.Filters.AC, "the planner keeps its own copy of the value")
	assert.Greater(t, after.Version, before.Version)
}

func TestSubscribersAreNotifiedInOrder(t *testing.T) {
	p := newTestPlanner(t, nil)

	var calls []string
	var versions []uint64
	first := p.Subscribe(func(s State) {
		calls = append(calls, "first")
		versions = append(versions, s.Version)
	})
	p.Subscribe(func(State) { calls = append(calls, "second") })

	require.NoError(t, p.SetStartingThreshold(700))
	require.NoError(t, p.SetDestinationThreshold(900))
	assert.Equal(t, []string{"first", "second", "first", "second"}, calls)
	assert.Equal(t, []uint64{1, 2}, versions)

	assert.True(t, p.Unsubscribe(first))
	assert.False(t, p.Unsubscribe(first))

	calls = nil
	p.Reset()
	assert.Equal(t, []string{"second"}, calls)
}

func TestSubscribersReceiveSnapshotsInVersionOrder(t *testing.T) {
	p := newTestPlanner(t, nil)

	var (
		mu       sync.Mutex
		versions []uint64
	)
	p.Subscribe(func(s State) {
		mu.Lock()
		versions = append(versions, s.Version)
		mu.Unlock()
	})

	const workers, perWorker = 8, 200
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				assert.NoError(t, p.SetStartingThreshold(float64(100+(w*perWorker+i)%4900)))
			}
		}(w)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, versions, workers*perWorker)
	for i, v := range versions {
		require.Equal(t, uint64(i+1), v, "snapshot %d arrived out of order", i)
	}
	assert.Equal(t, p.GetState().Version, versions[len(versions)-1])
}

func TestSnapshotPublishedByObserverFollowsCurrentOne(t *testing.T) {
	p := newTestPlanner(t, nil)

	var versions []uint64
	p.Subscribe(func(s State) {
		versions = append(versions, s.Version)
		if s.Version == 1 {
			assert.NoError(t, p.SetDestinationThreshold(900))
		}
	})
	var second []uint64
	p.Subscribe(func(s State) { second = append(second, s.Version) })

	require.NoError(t, p.SetStartingThreshold(700))
	assert.Equal(t, []uint64{1, 2}, versions)
	assert.Equal(t, []uint64{1, 2}, second)
	assert.Equal(t, 900.0, p.GetState().DestinationThresholdMeters)
}

func TestSubscriberMayReadState(t *testing.T) {
	p := newTestPlanner(t, nil)

	var seen float64
	p.Subscribe(func(State) { seen = p.GetState().StartingThresholdMeters })
	require.NoError(t, p.SetStartingThreshold(1000))
	assert.Equal(t, 1000.0, seen)
}

func TestResetReturnsToInitialState(t *testing.T) {
	p := newTestPlanner(t, nil)
	selectTrip(t, p, testutil.Mohakhali, testutil.Shahbag)
	_, err := p.SearchBusesForRoute(context.Background())
	require.NoError(t, err)
	p.SetCoachTypeFilter([]string{"minibus"})

	version := p.GetState().Version
	p.Reset()

	s := p.GetState()
	assert.Equal(t, PhaseIdle, s.Phase)
	assert.Nil(t, s.Results)
	assert.Nil(t, s.StartingStops)
	assert.Nil(t, s.OnboardingStop)
	assert.True(t, s.Filters.IsZero())
	assert.Equal(t, float64(DefaultStartingThresholdMeters), s.StartingThresholdMeters)
	assert.Equal(t, version+1, s.Version)
}

func TestNewStartingLocationClearsSelection(t *testing.T) {
	p := newTestPlanner(t, nil)
	selectTrip(t, p, testutil.Mohakhali, testutil.Shahbag)
	_, err := p.SearchBusesForRoute(context.Background())
	require.NoError(t, err)

	require.NoError(t, p.SetFromLocation(Location{Point: stopPoint(testutil.Banani)}))
	s := p.GetState()
	assert.Nil(t, s.StartingStops)
	assert.Nil(t, s.OnboardingStop)
	assert.Nil(t, s.Results)
	assert.NotNil(t, s.OffboardingStop, "the destination side is kept")
	assert.Equal(t, PhaseStopsDiscovered, s.Phase)
}

func TestLatestDiscoveryWins(t *testing.T) {
	gate := newGatedCalculator(networkMethodCalculator{})
	p := newTestPlanner(t, gate)
	ctx := context.Background()

	var wg sync.WaitGroup
	var staleErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, staleErr = p.DiscoverStopsNearLocation(ctx, stopPoint(testutil.Banani), 300, SideStart)
	}()

	<-gate.entered
	assert.True(t, p.GetState().Loading)

	found, err := p.DiscoverStopsNearLocation(ctx, stopPoint(testutil.Gulistan), 300, SideStart)
	require.NoError(t, err)
	require.NotEmpty(t, found)
	assert.Equal(t, testutil.Gulistan, found[0].ID)
	assert.True(t, p.GetState().Loading, "the first call is still in flight")

	close(gate.release)
	wg.Wait()

	assert.True(t, errors.Is(staleErr, ErrSuperseded))
	s := p.GetState()
	assert.False(t, s.Loading)
	require.NotEmpty(t, s.StartingStops)
	assert.Equal(t, testutil.Gulistan, s.StartingStops[0].ID)
}
