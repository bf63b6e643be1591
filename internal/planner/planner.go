// Package planner drives a trip planning session: locating the rider,
// discovering nearby stops, selecting boarding points, searching bus routes
// and deriving the filtered, sorted view of the results.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"planner.commuteway.org/internal/enhance"
	"planner.commuteway.org/internal/filter"
	"planner.commuteway.org/internal/geo"
	"planner.commuteway.org/internal/metrics"
	"planner.commuteway.org/internal/models"
	"planner.commuteway.org/internal/report"
	"planner.commuteway.org/internal/routes"
	"planner.commuteway.org/internal/stops"
	"planner.commuteway.org/internal/utils"
)

// DefaultStartingThresholdMeters is the walking radius used around the
// starting location until the rider picks another one.
const DefaultStartingThresholdMeters = 500

const approximateDistancesWarning = "Road distances are unavailable, walking distances are approximate"

// Subscription identifies one registered observer.
type Subscription struct {
	ID uuid.UUID
}

type subscriber struct {
	sub Subscription
	fn  func(State)
}

// Planner is the state container of one planning session. All methods are
// safe for concurrent use. When calls of the same kind overlap, the most
// recently issued one wins and earlier responses are dropped.
type Planner struct {
	Stops  *stops.Service
	Routes *routes.Service
	Logger *slog.Logger

	mu          sync.Mutex
	state       State
	subscribers []subscriber
	// pending holds published snapshots not yet delivered, oldest first.
	// Only the goroutine that set delivering drains it.
	pending     []State
	delivering  bool
	discoverSeq map[Side]uint64
	searchSeq   uint64
	discovering int
	searching   int
	configError bool
	// generation identifies the current unfiltered result set.
	generation uint64
	memo       *cache.Cache
}

func New(stopService *stops.Service, routeService *routes.Service, logger *slog.Logger) *Planner {
	p := &Planner{
		Stops:       stopService,
		Routes:      routeService,
		Logger:      logger,
		discoverSeq: map[Side]uint64{SideStart: 0, SideDestination: 0},
		memo:        cache.New(cache.NoExpiration, 0),
	}
	p.state = initialState()
	return p
}

func initialState() State {
	return State{
		Phase:                   PhaseIdle,
		StartingThresholdMeters: DefaultStartingThresholdMeters,
	}
}

// GetState returns the current snapshot.
func (p *Planner) GetState() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Subscribe registers fn to receive every published snapshot. Observers are
// called in subscription order without the planner lock held, so they may
// call back into the planner. Snapshots arrive in version order, also under
// concurrent mutation; a snapshot published from inside an observer is
// delivered after the current one.
func (p *Planner) Subscribe(fn func(State)) Subscription {
	sub := Subscription{ID: uuid.New()}
	p.mu.Lock()
	p.subscribers = append(p.subscribers, subscriber{sub: sub, fn: fn})
	p.mu.Unlock()
	return sub
}

// Unsubscribe removes an observer. It reports whether sub was registered.
func (p *Planner) Unsubscribe(sub Subscription) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := slices.IndexFunc(p.subscribers, func(s subscriber) bool { return s.sub == sub })
	if i < 0 {
		return false
	}
	p.subscribers = slices.Delete(p.subscribers, i, i+1)
	return true
}

// update applies fn to a copy of the current state, then publishes the copy
// as the new state. fn runs with the lock held.
func (p *Planner) update(fn func(s *State)) State {
	p.mu.Lock()
	next := p.state
	fn(&next)
	next.Loading = p.discovering+p.searching > 0
	next.Phase = derivePhase(&next, p.discovering > 0)
	next.Version = p.state.Version + 1
	p.state = next
	p.pending = append(p.pending, next)
	if p.delivering {
		p.mu.Unlock()
		return next
	}
	p.delivering = true
	p.mu.Unlock()

	p.deliver()
	return next
}

// deliver hands pending snapshots to the observers until none are left.
func (p *Planner) deliver() {
	for {
		p.mu.Lock()
		if len(p.pending) == 0 {
			p.delivering = false
			p.mu.Unlock()
			return
		}
		batch := p.pending
		p.pending = nil
		subs := slices.Clone(p.subscribers)
		p.mu.Unlock()

		for _, state := range batch {
			for _, s := range subs {
				s.fn(state)
			}
		}
	}
}

// reject records a validation error without changing anything else.
func (p *Planner) reject(err *ValidationError) error {
	p.update(func(s *State) { s.Error = err.Error() })
	return err
}

// SetFromLocation records the starting location. Stops discovered around a
// previous starting location are discarded.
func (p *Planner) SetFromLocation(loc Location) error {
	return p.setLocation(SideStart, loc)
}

// SetToLocation records the destination.
func (p *Planner) SetToLocation(loc Location) error {
	return p.setLocation(SideDestination, loc)
}

func (p *Planner) setLocation(side Side, loc Location) error {
	if err := geo.ValidateCoordinate(loc.Point, string(side)); err != nil {
		return p.reject(invalid(locationField(side), err))
	}
	p.update(func(s *State) {
		l := loc
		if side == SideStart {
			s.From = &l
		} else {
			s.To = &l
		}
		p.discoverSeq[side]++
		p.clearSideLocked(s, side)
		s.Error = ""
	})
	return nil
}

// SetStartingThreshold sets the walking radius around the starting location.
func (p *Planner) SetStartingThreshold(meters float64) error {
	if err := stops.ValidateThreshold(meters); err != nil {
		return p.reject(invalid("starting_threshold", err))
	}
	p.update(func(s *State) {
		s.StartingThresholdMeters = meters
		s.Error = ""
	})
	return nil
}

// SetDestinationThreshold sets the walking radius around the destination.
// Zero unsets it, and discovery then returns every stop.
func (p *Planner) SetDestinationThreshold(meters float64) error {
	if meters != 0 {
		if err := stops.ValidateThreshold(meters); err != nil {
			return p.reject(invalid("destination_threshold", err))
		}
	}
	p.update(func(s *State) {
		s.DestinationThresholdMeters = meters
		s.Error = ""
	})
	return nil
}

// DiscoverStopsNearLocation finds the stops within thresholdMeters of loc and
// stores them as the discovered list of side. A zero threshold is accepted
// for the destination only and returns all stops. Finding no stop is not an
// error: the list is empty and State.Error explains why.
func (p *Planner) DiscoverStopsNearLocation(ctx context.Context, loc models.Coordinate, thresholdMeters float64, side Side) ([]models.DiscoveredStop, error) {
	if side != SideStart && side != SideDestination {
		return nil, p.reject(&ValidationError{Field: "side", Message: fmt.Sprintf("unknown side %q", side)})
	}
	all := side == SideDestination && thresholdMeters == 0
	if !all {
		if err := stops.ValidateThreshold(thresholdMeters); err != nil {
			return nil, p.reject(invalid(string(side)+"_threshold", err))
		}
	}
	if err := geo.ValidateCoordinate(loc, string(side)); err != nil {
		return nil, p.reject(invalid(locationField(side), err))
	}

	var seq uint64
	p.update(func(s *State) {
		p.discoverSeq[side]++
		seq = p.discoverSeq[side]
		p.discovering++
		s.Error = ""
	})

	var (
		found  []models.DiscoveredStop
		method models.Method
		err    error
	)
	if all {
		found, method, err = p.Stops.DiscoverAllStops(ctx, loc)
	} else {
		found, method, err = p.Stops.DiscoverStops(ctx, loc, thresholdMeters)
	}

	stale := false
	p.update(func(s *State) {
		p.discovering--
		if seq != p.discoverSeq[side] {
			stale = true
			return
		}
		if err != nil {
			s.Error = fmt.Sprintf("Could not look up stops near the %s location", side)
			return
		}

		p.clearSideLocked(s, side)
		if side == SideStart {
			s.StartingStops, s.StartingMethod = found, method
			s.StartingThresholdMeters = thresholdMeters
		} else {
			s.DestinationStops, s.DestinationMethod = found, method
			s.DestinationThresholdMeters = thresholdMeters
		}
		refreshWarning(s)

		switch {
		case len(found) > 0:
			s.Error = ""
		case all:
			s.Error = "No stops are available"
		default:
			s.Error = fmt.Sprintf("No stops found within %.0f m of the %s location", thresholdMeters, side)
		}
	})

	if stale {
		p.Logger.Debug("Dropped superseded stop discovery", "side", side)
		return nil, ErrSuperseded
	}
	if err != nil {
		p.Logger.Error("Stop discovery failed", "side", side, "error", err)
		return nil, err
	}
	return found, nil
}

// SelectOnboardingStop picks one of the discovered starting stops. Its known
// distance from the starting location becomes the first walking leg.
func (p *Planner) SelectOnboardingStop(stopID string) error {
	return p.selectStop(SideStart, stopID)
}

// SelectOffboardingStop picks one of the discovered destination stops.
func (p *Planner) SelectOffboardingStop(stopID string) error {
	return p.selectStop(SideDestination, stopID)
}

func (p *Planner) selectStop(side Side, stopID string) error {
	var verr *ValidationError
	p.update(func(s *State) {
		discovered := s.stopsFor(side)
		i := slices.IndexFunc(discovered, func(d models.DiscoveredStop) bool { return d.ID == stopID })
		if i < 0 {
			verr = &ValidationError{
				Field:   selectionField(side),
				Message: fmt.Sprintf("stop %q is not among the discovered %s stops", stopID, side),
			}
			s.Error = verr.Error()
			return
		}

		stop := discovered[i]
		walkKm := stop.DistanceMeters / 1000
		if side == SideStart {
			s.OnboardingStop, s.WalkingToOnboardingKm = &stop, &walkKm
		} else {
			s.OffboardingStop, s.WalkingFromOffboardingKm = &stop, &walkKm
		}
		p.clearResultsLocked(s)
		s.Error = ""
	})
	if verr != nil {
		return verr
	}
	return nil
}

// SearchBusesForRoute finds every bus from the selected onboarding stop to
// the selected offboarding stop and returns the displayed results. Both
// stops must be selected first. No connecting bus is not an error.
func (p *Planner) SearchBusesForRoute(ctx context.Context) ([]models.EnhancedBusResult, error) {
	var (
		on, off          models.DiscoveredStop
		walkTo, walkFrom float64
		seq              uint64
		verr             *ValidationError
	)
	p.update(func(s *State) {
		switch {
		case s.OnboardingStop == nil || s.OffboardingStop == nil ||
			s.WalkingToOnboardingKm == nil || s.WalkingFromOffboardingKm == nil:
			verr = &ValidationError{Field: "stops", Message: "select an onboarding and an offboarding stop before searching"}
		case s.OnboardingStop.ID == s.OffboardingStop.ID:
			verr = invalid("stops", routes.ErrSameStop)
		}
		if verr != nil {
			s.Error = verr.Error()
			return
		}

		on, off = *s.OnboardingStop, *s.OffboardingStop
		walkTo, walkFrom = *s.WalkingToOnboardingKm, *s.WalkingFromOffboardingKm
		p.searchSeq++
		seq = p.searchSeq
		p.searching++
		s.Error = ""
	})
	if verr != nil {
		metrics.RouteSearches.WithLabelValues("invalid").Inc()
		return nil, verr
	}

	results, err := p.search(ctx, on, off, walkTo, walkFrom)

	var displayed []models.EnhancedBusResult
	stale := false
	p.update(func(s *State) {
		p.searching--
		if seq != p.searchSeq {
			stale = true
			return
		}
		if err != nil {
			s.Error = "Could not search bus routes, please try again"
			return
		}

		p.generation++
		p.memo.Flush()
		s.Results = results
		s.DisplayedResults = p.displayLocked(s)
		displayed = s.DisplayedResults
		if len(results) == 0 {
			s.Error = fmt.Sprintf("No bus goes from %s to %s", on.Name, off.Name)
		} else {
			s.Error = ""
		}
	})

	switch {
	case stale:
		metrics.RouteSearches.WithLabelValues("superseded").Inc()
		return nil, ErrSuperseded
	case err != nil:
		metrics.RouteSearches.WithLabelValues("error").Inc()
		p.Logger.Error("Route search failed", "onboarding_stop", on.ID, "offboarding_stop", off.ID, "error", err)
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags:  utils.MakeMap("component", "planner"),
			Level: sentry.LevelError,
			ExtraContext: map[string]interface{}{
				"onboarding_stop":  on.ID,
				"offboarding_stop": off.ID,
			},
		})
		return nil, err
	case len(results) == 0:
		metrics.RouteSearches.WithLabelValues("none").Inc()
	default:
		metrics.RouteSearches.WithLabelValues("found").Inc()
	}
	return displayed, nil
}

func (p *Planner) search(ctx context.Context, on, off models.DiscoveredStop, walkToKm, walkFromKm float64) ([]models.EnhancedBusResult, error) {
	matches, err := p.Routes.FindBusRoutes(ctx, on.ID, off.ID)
	if err != nil {
		return nil, err
	}

	results := make([]models.EnhancedBusResult, 0, len(matches))
	for _, m := range matches {
		raw := enhance.NewRawBusResult(m, on.Stop, off.Stop)
		results = append(results, enhance.NewEnhancedBusResult(raw, routes.JourneyLengthForMatch(m), walkToKm, walkFromKm))
	}
	return results, nil
}

// DisplayedResults returns the current results after filtering and sorting,
// from the memo cache when possible. It is nil before the first search.
func (p *Planner) DisplayedResults() []models.EnhancedBusResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.displayLocked(&p.state)
}

func (p *Planner) displayLocked(s *State) []models.EnhancedBusResult {
	if s.Results == nil {
		return nil
	}

	key := filter.CacheKey(s.Filters, s.Sort, p.generation)
	if cached, ok := p.memo.Get(key); ok {
		metrics.ResultCacheRequests.WithLabelValues("hit").Inc()
		return cached.([]models.EnhancedBusResult)
	}
	metrics.ResultCacheRequests.WithLabelValues("miss").Inc()

	out := filter.Sort(s.Filters.Spec().Apply(s.Results), s.Sort)
	p.memo.Set(key, out, cache.NoExpiration)
	return out
}

// clearSideLocked drops what was derived from one side's location.
func (p *Planner) clearSideLocked(s *State, side Side) {
	if side == SideStart {
		s.StartingStops, s.StartingMethod = nil, ""
		s.OnboardingStop, s.WalkingToOnboardingKm = nil, nil
	} else {
		s.DestinationStops, s.DestinationMethod = nil, ""
		s.OffboardingStop, s.WalkingFromOffboardingKm = nil, nil
	}
	refreshWarning(s)
	p.clearResultsLocked(s)
}

func (p *Planner) clearResultsLocked(s *State) {
	if s.Results == nil {
		return
	}
	s.Results, s.DisplayedResults = nil, nil
	p.generation++
	p.memo.Flush()
}

func refreshWarning(s *State) {
	if s.StartingMethod == models.MethodGreatCircle || s.DestinationMethod == models.MethodGreatCircle {
		s.Warning = approximateDistancesWarning
		return
	}
	s.Warning = ""
}

// Reset returns the session to its initial state. Observers stay
// registered and responses of calls still in flight are dropped.
func (p *Planner) Reset() {
	p.update(func(s *State) {
		for side := range p.discoverSeq {
			p.discoverSeq[side]++
		}
		p.searchSeq++
		p.generation++
		p.memo.Flush()
		p.configError = false
		*s = initialState()
	})
}

func locationField(side Side) string {
	if side == SideStart {
		return "from"
	}
	return "to"
}

func selectionField(side Side) string {
	if side == SideStart {
		return "onboarding_stop"
	}
	return "offboarding_stop"
}
