// Package filter narrows and orders enhanced bus results.
package filter

import (
	"math"
	"slices"

	"planner.commuteway.org/internal/models"
)

// Spec accumulates optional predicates. All configured predicates must hold
// for a result to pass. The zero value passes everything.
type Spec struct {
	ac           *bool
	coachTypes   []string
	minJourneyKm float64
	maxJourneyKm float64
	hasJourney   bool
	maxWalkingKm float64
	hasWalking   bool
}

func NewSpec() *Spec {
	return &Spec{}
}

// WithAC keeps only AC buses when ac is true and only non-AC buses otherwise.
func (s *Spec) WithAC(ac bool) *Spec {
	s.ac = &ac
	return s
}

// WithCoachTypes keeps buses whose coach type is one of types. An empty list
// clears the predicate.
func (s *Spec) WithCoachTypes(types ...string) *Spec {
	s.coachTypes = append([]string(nil), types...)
	return s
}

// WithJourneyLengthRange keeps results with minKm <= journey <= maxKm.
// Use math.Inf(1) for an open upper bound.
func (s *Spec) WithJourneyLengthRange(minKm, maxKm float64) *Spec {
	s.minJourneyKm, s.maxJourneyKm, s.hasJourney = minKm, maxKm, true
	return s
}

// WithMaxTotalWalking keeps results whose two walking legs add up to at most km.
func (s *Spec) WithMaxTotalWalking(km float64) *Spec {
	s.maxWalkingKm, s.hasWalking = km, true
	return s
}

// Reset clears every predicate.
func (s *Spec) Reset() *Spec {
	*s = Spec{}
	return s
}

// Matches reports whether r satisfies every configured predicate.
func (s *Spec) Matches(r models.EnhancedBusResult) bool {
	if s.ac != nil && r.IsAC != *s.ac {
		return false
	}
	if len(s.coachTypes) > 0 && !slices.Contains(s.coachTypes, r.CoachType) {
		return false
	}
	if s.hasJourney && (r.JourneyLengthKm < s.minJourneyKm || r.JourneyLengthKm > s.maxJourneyKm) {
		return false
	}
	if s.hasWalking && r.TotalWalkingKm > s.maxWalkingKm {
		return false
	}
	return true
}

// Apply returns the results that match, in their original order. The input
// slice is not modified.
func (s *Spec) Apply(results []models.EnhancedBusResult) []models.EnhancedBusResult {
	out := make([]models.EnhancedBusResult, 0, len(results))
	for _, r := range results {
		if s.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// BuildQueryModifier copies the AC and coach type predicates into q so the
// store can apply them. Journey length and walking are computed values and
// are always applied in memory.
func (s *Spec) BuildQueryModifier(q models.BusQuery) models.BusQuery {
	if s.ac != nil {
		ac := *s.ac
		q.AC = &ac
	}
	if len(s.coachTypes) > 0 {
		q.CoachTypes = append([]string(nil), s.coachTypes...)
	}
	return q
}

// Config returns the serializable form of s.
func (s *Spec) Config() Config {
	var c Config
	if s.ac != nil {
		ac := *s.ac
		c.AC = &ac
	}
	if len(s.coachTypes) > 0 {
		c.CoachTypes = append([]string(nil), s.coachTypes...)
	}
	if s.hasJourney {
		minKm := s.minJourneyKm
		c.MinJourneyKm = &minKm
		if !math.IsInf(s.maxJourneyKm, 1) {
			maxKm := s.maxJourneyKm
			c.MaxJourneyKm = &maxKm
		}
	}
	if s.hasWalking {
		km := s.maxWalkingKm
		c.MaxWalkingKm = &km
	}
	return c
}
