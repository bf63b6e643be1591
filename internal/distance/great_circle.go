package distance

import (
	"context"

	"planner.commuteway.org/internal/geo"
	"planner.commuteway.org/internal/models"
)

// WalkingSpeedKmh is the pedestrian speed used to estimate great-circle durations.
const WalkingSpeedKmh = 5.0

// GreatCircle computes straight-line distances with no external calls.
// It is always available.
type GreatCircle struct {
	speedKmh float64
}

func NewGreatCircle() *GreatCircle {
	return &GreatCircle{speedKmh: WalkingSpeedKmh}
}

func (g *GreatCircle) Name() models.Method { return models.MethodGreatCircle }

func (g *GreatCircle) IsAvailable(context.Context) bool { return true }

func (g *GreatCircle) CalculateDistances(ctx context.Context, origins, destinations []models.Coordinate) ([][]models.DistanceResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	metersPerSecond := g.speedKmh * 1000 / 3600
	out := make([][]models.DistanceResult, len(origins))
	for i, o := range origins {
		row := make([]models.DistanceResult, len(destinations))
		for j, d := range destinations {
			meters := geo.Distance(o, d)
			row[j] = models.DistanceResult{
				DistanceMeters:  meters,
				DurationSeconds: meters / metersPerSecond,
				Method:          models.MethodGreatCircle,
			}
		}
		out[i] = row
	}
	return out, nil
}
