// Package distance turns origin/destination coordinates into distance
// matrices. A Calculator pairs a road network strategy with the great-circle
// strategy and falls back to the latter when the network cannot answer.
package distance

import (
	"context"
	"errors"

	"planner.commuteway.org/internal/models"
)

var (
	// ErrUnavailable is returned when a strategy cannot currently serve requests.
	ErrUnavailable = errors.New("distance strategy unavailable")
	// ErrAllStrategiesFailed is returned by the Calculator when neither the
	// primary nor the fallback strategy produced a matrix.
	ErrAllStrategiesFailed = errors.New("all distance strategies failed")
)

// Strategy computes a distance matrix. Result[i][j] is the distance from
// origins[i] to destinations[j].
type Strategy interface {
	CalculateDistances(ctx context.Context, origins, destinations []models.Coordinate) ([][]models.DistanceResult, error)
	IsAvailable(ctx context.Context) bool
	Name() models.Method
}

// MatrixMethod reports the method that produced m. A matrix with any
// great-circle cell is reported as great-circle.
func MatrixMethod(m [][]models.DistanceResult) models.Method {
	method := models.MethodNetwork
	seen := false
	for _, row := range m {
		for _, cell := range row {
			seen = true
			if cell.Method != models.MethodNetwork {
				method = cell.Method
			}
		}
	}
	if !seen {
		return ""
	}
	return method
}

func emptyMatrix(origins int) [][]models.DistanceResult {
	out := make([][]models.DistanceResult, origins)
	for i := range out {
		out[i] = []models.DistanceResult{}
	}
	return out
}
