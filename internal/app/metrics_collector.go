package app

import (
	"context"
	"time"

	"planner.commuteway.org/internal/metrics"
)

// StartMetricsCollection refreshes, every interval until ctx is done, the
// gauges that change without any request being made.
func (app *Application) StartMetricsCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.CollectMetrics(ctx, time.Now())
		}
	}
}

// CollectMetrics probes the routing service, which updates its status
// gauge, and recomputes the days left before the loaded bundle expires.
func (app *Application) CollectMetrics(ctx context.Context, now time.Time) {
	if !app.Distances.Available(ctx) && app.Config.Routing.URL != "" {
		app.Logger.Warn("Routing service is unreachable, distances fall back to the great circle",
			"routing_url", app.Config.Routing.URL)
	}

	info, ok := app.BundleStore.Get(app.Config.GTFS.Feed)
	if !ok || info.EarliestEndAt.Time().IsZero() {
		return
	}
	earliest, _ := metrics.RecordBundleExpiration(info.Feed, info.EarliestEndAt.Time(), info.LatestEndAt.Time(), now)
	if earliest < 7 {
		app.Logger.Warn("GTFS bundle expires soon", "feed", info.Feed, "days_until_expiration", earliest)
	}
}
