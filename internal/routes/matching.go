// Package routes finds the buses that carry a rider from one stop to another
// and measures the on-bus distance between them.
package routes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"planner.commuteway.org/internal/models"
	"planner.commuteway.org/internal/store"
)

var (
	// ErrSameStop is returned when onboarding and offboarding stops are equal.
	ErrSameStop = errors.New("onboarding and offboarding stops must be different")
	// ErrInvalidOrder is returned for a position range that does not describe
	// a forward trip on the route.
	ErrInvalidOrder = errors.New("invalid onboarding/offboarding order")
)

type Service struct {
	Store  store.RouteStore
	Logger *slog.Logger
}

func NewService(routeStore store.RouteStore, logger *slog.Logger) *Service {
	return &Service{
		Store:  routeStore,
		Logger: logger,
	}
}

// FindBusRoutes returns every active bus that visits the onboarding stop
// before the offboarding stop, once per direction where that holds.
func (s *Service) FindBusRoutes(ctx context.Context, onboardingStopID, offboardingStopID string) ([]models.BusMatch, error) {
	return s.FindBusRoutesWithQuery(ctx, onboardingStopID, offboardingStopID, models.BusQuery{})
}

// FindBusRoutesWithQuery is FindBusRoutes with store-level predicates.
// Matches are ordered by bus ID, then outbound before inbound.
func (s *Service) FindBusRoutesWithQuery(ctx context.Context, onboardingStopID, offboardingStopID string, q models.BusQuery) ([]models.BusMatch, error) {
	if onboardingStopID == offboardingStopID {
		return nil, ErrSameStop
	}

	buses, err := s.Store.BusesServingStops(ctx, onboardingStopID, offboardingStopID, q)
	if err != nil {
		return nil, fmt.Errorf("failed to find buses serving %s and %s: %w", onboardingStopID, offboardingStopID, err)
	}

	matches := []models.BusMatch{}
	for _, bus := range buses {
		if bus.Status != models.BusStatusActive {
			continue
		}
		for _, dir := range models.Directions {
			segments, err := s.Store.RouteSegments(ctx, bus.ID, dir)
			if err != nil {
				return nil, fmt.Errorf("failed to load %s route of bus %s: %w", dir, bus.ID, err)
			}

			on, off, ok := closestOrderedPair(segments, onboardingStopID, offboardingStopID)
			if !ok {
				continue
			}
			matches = append(matches, models.BusMatch{
				Bus:                  bus,
				Direction:            dir,
				OnboardingOrder:      on,
				OffboardingOrder:     off,
				IntermediateSegments: append([]models.RouteSegment(nil), segments[on:off]...),
			})
		}
	}

	s.Logger.Debug("Matched bus routes",
		"onboarding_stop", onboardingStopID, "offboarding_stop", offboardingStopID,
		"candidates", len(buses), "matches", len(matches))
	return matches, nil
}

// closestOrderedPair returns the positions of the onboarding and offboarding
// stops with on < off and the fewest stops between them. Loop routes can
// visit a stop more than once.
func closestOrderedPair(segments []models.RouteSegment, onboardingStopID, offboardingStopID string) (int, int, bool) {
	lastOn := -1
	bestOn, bestOff := -1, -1

	for i, seg := range segments {
		switch seg.StopID {
		case onboardingStopID:
			lastOn = i
		case offboardingStopID:
			if lastOn < 0 {
				continue
			}
			if bestOn < 0 || i-lastOn < bestOff-bestOn {
				bestOn, bestOff = lastOn, i
			}
		}
	}
	return bestOn, bestOff, bestOn >= 0
}

// CalculateJourneyLength sums the distance of every segment starting at a
// position in [onboardingOrder, offboardingOrder).
func (s *Service) CalculateJourneyLength(ctx context.Context, busID string, onboardingOrder, offboardingOrder int, direction models.Direction) (float64, error) {
	segments, err := s.Store.RouteSegments(ctx, busID, direction)
	if err != nil {
		return 0, fmt.Errorf("failed to load %s route of bus %s: %w", direction, busID, err)
	}
	if onboardingOrder < 0 || offboardingOrder >= len(segments) || onboardingOrder >= offboardingOrder {
		return 0, fmt.Errorf("%w: %d..%d on a route of %d stops", ErrInvalidOrder, onboardingOrder, offboardingOrder, len(segments))
	}
	return sumSegments(segments[onboardingOrder:offboardingOrder]), nil
}

// JourneyLengthForMatch sums the intermediate segments already held by m.
func JourneyLengthForMatch(m models.BusMatch) float64 {
	return sumSegments(m.IntermediateSegments)
}

func sumSegments(segments []models.RouteSegment) float64 {
	var km float64
	for _, seg := range segments {
		km += seg.DistanceToNextKm
	}
	return km
}
