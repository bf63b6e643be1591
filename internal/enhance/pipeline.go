// Package enhance decorates a raw bus match with journey, walking and time
// metrics. Every function is pure.
package enhance

import "planner.commuteway.org/internal/models"

// Average speeds used for time estimates. They are fixed policy.
const (
	BusSpeedKmh     = 20.0
	WalkingSpeedKmh = 5.0
)

// JourneyLayer adds the on-bus distance to a raw result.
type JourneyLayer struct {
	models.RawBusResult
	JourneyLengthKm float64
}

// WalkingLayer adds both walking legs and their sum.
type WalkingLayer struct {
	JourneyLayer
	WalkingToOnboardingKm    float64
	WalkingFromOffboardingKm float64
	TotalWalkingKm           float64
}

// TimeLayer adds time estimates derived from the distances below it.
type TimeLayer struct {
	WalkingLayer
	EstimatedJourneyMinutes float64
	EstimatedWalkingMinutes float64
	EstimatedTotalMinutes   float64
}

func WithJourneyLength(raw models.RawBusResult, journeyKm float64) JourneyLayer {
	return JourneyLayer{RawBusResult: raw, JourneyLengthKm: journeyKm}
}

func WithWalking(layer JourneyLayer, walkToKm, walkFromKm float64) WalkingLayer {
	return WalkingLayer{
		JourneyLayer:             layer,
		WalkingToOnboardingKm:    walkToKm,
		WalkingFromOffboardingKm: walkFromKm,
		TotalWalkingKm:           walkToKm + walkFromKm,
	}
}

func WithTimeEstimate(layer WalkingLayer) TimeLayer {
	journey := minutesAt(layer.JourneyLengthKm, BusSpeedKmh)
	walking := minutesAt(layer.TotalWalkingKm, WalkingSpeedKmh)
	return TimeLayer{
		WalkingLayer:            layer,
		EstimatedJourneyMinutes: journey,
		EstimatedWalkingMinutes: walking,
		EstimatedTotalMinutes:   journey + walking,
	}
}

func minutesAt(km, speedKmh float64) float64 {
	return km / speedKmh * 60
}

// NewEnhancedBusResult composes the layers in order and flattens them.
func NewEnhancedBusResult(raw models.RawBusResult, journeyKm, walkToKm, walkFromKm float64) models.EnhancedBusResult {
	return Flatten(WithTimeEstimate(WithWalking(WithJourneyLength(raw, journeyKm), walkToKm, walkFromKm)))
}

// Flatten copies a complete layer chain into one plain value.
func Flatten(t TimeLayer) models.EnhancedBusResult {
	return models.EnhancedBusResult{
		RawBusResult:             t.RawBusResult,
		JourneyLengthKm:          t.JourneyLengthKm,
		WalkingToOnboardingKm:    t.WalkingToOnboardingKm,
		WalkingFromOffboardingKm: t.WalkingFromOffboardingKm,
		TotalWalkingKm:           t.TotalWalkingKm,
		TotalDistanceKm:          t.JourneyLengthKm + t.TotalWalkingKm,
		EstimatedJourneyMinutes:  t.EstimatedJourneyMinutes,
		EstimatedWalkingMinutes:  t.EstimatedWalkingMinutes,
		EstimatedTotalMinutes:    t.EstimatedTotalMinutes,
	}
}

// NewRawBusResult builds the base value of a match.
func NewRawBusResult(match models.BusMatch, onboarding, offboarding models.Stop) models.RawBusResult {
	return models.RawBusResult{
		ID:              match.Bus.ID,
		Name:            match.Bus.Name,
		IsAC:            match.Bus.IsAC,
		CoachType:       match.Bus.CoachType,
		Direction:       match.Direction,
		OnboardingStop:  onboarding,
		OffboardingStop: offboarding,
	}
}
