package distance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"planner.commuteway.org/internal/metrics"
	"planner.commuteway.org/internal/models"
	"planner.commuteway.org/internal/report"
	"planner.commuteway.org/internal/utils"
)

const (
	fallbackReasonDisabled    = "disabled"
	fallbackReasonUnavailable = "unavailable"
	fallbackReasonError       = "error"
)

// Calculator holds a primary and a fallback strategy. The fallback is
// invisible to callers except through the Method of every result cell.
type Calculator struct {
	primary  Strategy
	fallback Strategy
	logger   *slog.Logger
}

// NewCalculator returns a Calculator. A nil primary sends every request to
// the fallback.
func NewCalculator(primary, fallback Strategy, logger *slog.Logger) *Calculator {
	return &Calculator{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// CalculateDistances tries the primary strategy and re-issues the same
// request against the fallback when the primary is unavailable or fails.
// It returns an error only when both strategies fail.
func (c *Calculator) CalculateDistances(ctx context.Context, origins, destinations []models.Coordinate) ([][]models.DistanceResult, error) {
	if len(origins) == 0 || len(destinations) == 0 {
		return emptyMatrix(len(origins)), nil
	}
	metrics.DistanceMatrixCells.Observe(float64(len(origins) * len(destinations)))

	var primaryErr error
	reason := fallbackReasonDisabled

	if c.primary != nil {
		if c.primary.IsAvailable(ctx) {
			result, err := c.primary.CalculateDistances(ctx, origins, destinations)
			if err == nil {
				metrics.DistanceCalculations.WithLabelValues(string(c.primary.Name())).Inc()
				return tagMatrix(result, c.primary.Name()), nil
			}
			primaryErr = err
			reason = fallbackReasonError
			c.logger.Warn("Primary distance strategy failed, using fallback",
				"strategy", c.primary.Name(), "fallback", c.fallback.Name(), "error", err)
		} else {
			primaryErr = ErrUnavailable
			reason = fallbackReasonUnavailable
			c.logger.Warn("Primary distance strategy unavailable, using fallback",
				"strategy", c.primary.Name(), "fallback", c.fallback.Name())
		}
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	metrics.DistanceFallbacks.WithLabelValues(reason).Inc()
	result, err := c.fallback.CalculateDistances(ctx, origins, destinations)
	if err != nil {
		err = fmt.Errorf("%w: primary: %v, fallback: %w", ErrAllStrategiesFailed, primaryErr, err)
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags:  utils.MakeMap("component", "distance_calculator"),
			Level: sentry.LevelError,
			ExtraContext: map[string]interface{}{
				"origins":      len(origins),
				"destinations": len(destinations),
			},
		})
		return nil, err
	}

	metrics.DistanceCalculations.WithLabelValues(string(c.fallback.Name())).Inc()
	return tagMatrix(result, c.fallback.Name()), nil
}

// Available reports whether the primary strategy is currently reachable.
func (c *Calculator) Available(ctx context.Context) bool {
	return c.primary != nil && c.primary.IsAvailable(ctx)
}

func tagMatrix(m [][]models.DistanceResult, method models.Method) [][]models.DistanceResult {
	for i := range m {
		for j := range m[i] {
			m[i][j].Method = method
		}
	}
	return m
}
