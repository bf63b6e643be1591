package distance

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"planner.commuteway.org/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStrategy is a Strategy with scripted availability and results.
type fakeStrategy struct {
	mu        sync.Mutex
	name      models.Method
	available bool
	err       error
	meters    float64
	calls     int
}

func (f *fakeStrategy) Name() models.Method { return f.name }

func (f *fakeStrategy) IsAvailable(context.Context) bool { return f.available }

func (f *fakeStrategy) CalculateDistances(_ context.Context, origins, destinations []models.Coordinate) ([][]models.DistanceResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	out := make([][]models.DistanceResult, len(origins))
	for i := range origins {
		out[i] = make([]models.DistanceResult, len(destinations))
		for j := range destinations {
			out[i][j] = models.DistanceResult{DistanceMeters: f.meters, Method: f.name}
		}
	}
	return out, nil
}

func (f *fakeStrategy) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
