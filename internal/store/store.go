// Package store holds the stop and route data read by the planner. The data
// is owned by the store; callers receive copies and never mutate it.
package store

import (
	"context"
	"errors"

	"planner.commuteway.org/internal/models"
)

// ErrNotFound is returned when a stop or bus does not exist.
var ErrNotFound = errors.New("not found")

// StopStore returns stops.
type StopStore interface {
	AllStops(ctx context.Context) ([]models.Stop, error)
	// StopsNear returns at least every stop within radiusMeters of center
	// along a great circle. It may return stops slightly farther away.
	StopsNear(ctx context.Context, center models.Coordinate, radiusMeters float64) ([]models.Stop, error)
	Stop(ctx context.Context, id string) (models.Stop, error)
}

// RouteStore returns buses and their directional stop sequences.
type RouteStore interface {
	Bus(ctx context.Context, id string) (models.Bus, error)
	// BusesServingStops returns the active buses that visit both stops in at
	// least one common direction, narrowed by q and ordered by bus ID.
	BusesServingStops(ctx context.Context, onboardingStopID, offboardingStopID string, q models.BusQuery) ([]models.Bus, error)
	// RouteSegments returns the segments of one direction ordered by sequence.
	RouteSegments(ctx context.Context, busID string, direction models.Direction) ([]models.RouteSegment, error)
}

// NetworkLoader replaces the whole data set with a new snapshot.
type NetworkLoader interface {
	ReplaceNetwork(ctx context.Context, network *models.Network) error
}

// Store is the full read/write surface used by the application.
type Store interface {
	StopStore
	RouteStore
	NetworkLoader
	Close() error
}

// matchesQuery reports whether bus satisfies the store-level predicates of q.
func matchesQuery(bus models.Bus, q models.BusQuery) bool {
	if bus.Status != models.BusStatusActive {
		return false
	}
	if q.AC != nil && bus.IsAC != *q.AC {
		return false
	}
	if len(q.CoachTypes) == 0 {
		return true
	}
	for _, ct := range q.CoachTypes {
		if ct == bus.CoachType {
			return true
		}
	}
	return false
}
