package planner

import (
	"planner.commuteway.org/internal/filter"
	"planner.commuteway.org/internal/models"
)

// Phase is the coarse position of a planning session in its workflow.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseLocating        Phase = "locating"
	PhaseStopsDiscovered Phase = "stops_discovered"
	PhaseStopsSelected   Phase = "stops_selected"
	PhaseRoutesFound     Phase = "routes_found"
)

// Side selects the end of the trip a discovery applies to.
type Side string

const (
	SideStart       Side = "start"
	SideDestination Side = "destination"
)

// Location is a user supplied reference point. Label is free text such as
// an address or "current location" and is only displayed.
type Location struct {
	Label string            `json:"label,omitempty"`
	Point models.Coordinate `json:"point"`
}

// State is a snapshot of a planning session. A new value is built for every
// change; the slices it holds are shared between snapshots and must be
// treated as read-only.
type State struct {
	// Version increases by one with every published snapshot.
	Version uint64 `json:"version"`
	Phase   Phase  `json:"phase"`

	From *Location `json:"from,omitempty"`
	To   *Location `json:"to,omitempty"`

	StartingThresholdMeters float64 `json:"starting_threshold_meters"`
	// DestinationThresholdMeters is 0 when unset, meaning no radius cap.
	DestinationThresholdMeters float64 `json:"destination_threshold_meters"`

	StartingStops     []models.DiscoveredStop `json:"starting_stops"`
	DestinationStops  []models.DiscoveredStop `json:"destination_stops"`
	StartingMethod    models.Method           `json:"starting_method,omitempty"`
	DestinationMethod models.Method           `json:"destination_method,omitempty"`

	OnboardingStop           *models.DiscoveredStop `json:"onboarding_stop,omitempty"`
	OffboardingStop          *models.DiscoveredStop `json:"offboarding_stop,omitempty"`
	WalkingToOnboardingKm    *float64               `json:"walking_to_onboarding_km,omitempty"`
	WalkingFromOffboardingKm *float64               `json:"walking_from_offboarding_km,omitempty"`

	// Results is nil until a search completes and holds every match
	// unfiltered. DisplayedResults is Results after filtering and sorting.
	Results          []models.EnhancedBusResult `json:"results"`
	DisplayedResults []models.EnhancedBusResult `json:"displayed_results"`

	Filters filter.Config     `json:"filters"`
	Sort    filter.SortConfig `json:"sort"`

	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
	Warning string `json:"warning,omitempty"`
}

func (s *State) stopsFor(side Side) []models.DiscoveredStop {
	if side == SideStart {
		return s.StartingStops
	}
	return s.DestinationStops
}

// derivePhase computes the phase from the data held in s.
func derivePhase(s *State, discovering bool) Phase {
	switch {
	case s.Results != nil:
		return PhaseRoutesFound
	case s.OnboardingStop != nil && s.OffboardingStop != nil:
		return PhaseStopsSelected
	case s.StartingStops != nil || s.DestinationStops != nil:
		return PhaseStopsDiscovered
	case discovering || s.From != nil || s.To != nil:
		return PhaseLocating
	}
	return PhaseIdle
}
