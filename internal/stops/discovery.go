// Package stops finds the stops within walking distance of a point.
package stops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"planner.commuteway.org/internal/distance"
	"planner.commuteway.org/internal/geo"
	"planner.commuteway.org/internal/metrics"
	"planner.commuteway.org/internal/models"
	"planner.commuteway.org/internal/store"
)

const (
	MinThresholdMeters = 100
	MaxThresholdMeters = 5000
)

// ErrInvalidThreshold is returned for a search radius outside [100, 5000] meters.
var ErrInvalidThreshold = errors.New("threshold must be between 100 and 5000 meters")

// DistanceCalculator is the part of distance.Calculator used for discovery.
type DistanceCalculator interface {
	CalculateDistances(ctx context.Context, origins, destinations []models.Coordinate) ([][]models.DistanceResult, error)
}

// Service discovers stops around a reference point.
type Service struct {
	Stops      store.StopStore
	Calculator DistanceCalculator
	Logger     *slog.Logger
}

func NewService(stops store.StopStore, calculator DistanceCalculator, logger *slog.Logger) *Service {
	return &Service{
		Stops:      stops,
		Calculator: calculator,
		Logger:     logger,
	}
}

// ValidateThreshold returns ErrInvalidThreshold unless meters is in [100, 5000].
func ValidateThreshold(meters float64) error {
	if meters < MinThresholdMeters || meters > MaxThresholdMeters || math.IsNaN(meters) {
		return fmt.Errorf("%w: got %g", ErrInvalidThreshold, meters)
	}
	return nil
}

// DiscoverStops returns the stops within thresholdMeters of reference, nearest
// first, together with the method that produced the distances. An empty
// result is not an error.
func (s *Service) DiscoverStops(ctx context.Context, reference models.Coordinate, thresholdMeters float64) ([]models.DiscoveredStop, models.Method, error) {
	if err := ValidateThreshold(thresholdMeters); err != nil {
		return nil, "", err
	}
	if err := geo.ValidateCoordinate(reference, "reference"); err != nil {
		return nil, "", err
	}

	candidates, err := s.Stops.StopsNear(ctx, reference, thresholdMeters)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load candidate stops: %w", err)
	}

	found, method, err := s.measure(ctx, reference, candidates, thresholdMeters)
	if err != nil {
		return nil, "", err
	}
	metrics.StopsDiscovered.WithLabelValues("radius").Observe(float64(len(found)))
	return found, method, nil
}

// DiscoverAllStops returns every stop ordered by distance from reference.
// It serves an unset destination threshold.
func (s *Service) DiscoverAllStops(ctx context.Context, reference models.Coordinate) ([]models.DiscoveredStop, models.Method, error) {
	if err := geo.ValidateCoordinate(reference, "reference"); err != nil {
		return nil, "", err
	}

	candidates, err := s.Stops.AllStops(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load stops: %w", err)
	}

	found, method, err := s.measure(ctx, reference, candidates, -1)
	if err != nil {
		return nil, "", err
	}
	metrics.StopsDiscovered.WithLabelValues("all").Observe(float64(len(found)))
	return found, method, nil
}

// measure computes all distances in one 1xN call and keeps the stops within
// limitMeters. A negative limit keeps everything.
func (s *Service) measure(ctx context.Context, reference models.Coordinate, candidates []models.Stop, limitMeters float64) ([]models.DiscoveredStop, models.Method, error) {
	found := []models.DiscoveredStop{}
	if len(candidates) == 0 {
		return found, "", nil
	}

	destinations := make([]models.Coordinate, len(candidates))
	for i, stop := range candidates {
		destinations[i] = stop.Coordinate()
	}

	matrix, err := s.Calculator.CalculateDistances(ctx, []models.Coordinate{reference}, destinations)
	if err != nil {
		return nil, "", fmt.Errorf("failed to calculate stop distances: %w", err)
	}
	if len(matrix) != 1 || len(matrix[0]) != len(candidates) {
		return nil, "", fmt.Errorf("distance matrix has unexpected shape for %d stops", len(candidates))
	}

	for i, cell := range matrix[0] {
		if limitMeters >= 0 && cell.DistanceMeters > limitMeters {
			continue
		}
		found = append(found, models.DiscoveredStop{
			Stop:           candidates[i],
			DistanceMeters: cell.DistanceMeters,
			DistanceMethod: cell.Method,
		})
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].DistanceMeters != found[j].DistanceMeters {
			return found[i].DistanceMeters < found[j].DistanceMeters
		}
		return found[i].ID < found[j].ID
	})

	method := distance.MatrixMethod(matrix)
	s.Logger.Debug("Discovered stops",
		"reference_lat", reference.Lat, "reference_lng", reference.Lng,
		"candidates", len(candidates), "found", len(found), "method", method)
	return found, method, nil
}
