// Package gtfs builds the bus network from a GTFS static bundle and keeps
// it fresh.
package gtfs

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"planner.commuteway.org/internal/config"
	"planner.commuteway.org/internal/geo"
	"planner.commuteway.org/internal/metrics"
	"planner.commuteway.org/internal/report"
	"planner.commuteway.org/internal/store"
	"planner.commuteway.org/internal/utils"
)

type GtfsService struct {
	Config      config.GTFSConfig
	Loader      store.NetworkLoader
	BundleStore *BundleStore
	Backoff     *config.BackoffStore
	Client      *http.Client
	Logger      *slog.Logger
	MaxRetries  int
}

func NewGtfsService(cfg config.GTFSConfig, loader store.NetworkLoader, bundleStore *BundleStore, backoff *config.BackoffStore, client *http.Client, logger *slog.Logger) *GtfsService {
	return &GtfsService{
		Config:      cfg,
		Loader:      loader,
		BundleStore: bundleStore,
		Backoff:     backoff,
		Client:      client,
		Logger:      logger,
		MaxRetries:  3,
	}
}

// Load downloads (or reads from cache), parses and converts the bundle,
// then replaces the network held by the loader.
func (gs *GtfsService) Load(ctx context.Context) (BundleInfo, error) {
	if err := utils.CreateCacheDirectory(gs.Config.CacheDir, gs.Logger); err != nil {
		return BundleInfo{}, fmt.Errorf("failed to prepare cache directory: %w", err)
	}

	b, err := fetchBundle(ctx, gs.Client, gs.Config, gs.MaxRetries, gs.Logger)
	if err != nil {
		return BundleInfo{}, err
	}

	static, err := parseBundle(b, gs.Config.Feed)
	if err != nil {
		return BundleInfo{}, err
	}

	network, err := BuildNetwork(static)
	if err != nil {
		return BundleInfo{}, fmt.Errorf("failed to build network from %s: %w", b.source, err)
	}

	if err := gs.Loader.ReplaceNetwork(ctx, network); err != nil {
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags:  utils.MakeMap("feed", gs.Config.Feed),
			Level: sentry.LevelError,
		})
		return BundleInfo{}, fmt.Errorf("failed to store network: %w", err)
	}

	routeCount := 0
	for _, directions := range network.Routes {
		routeCount += len(directions)
	}
	info := BundleInfo{
		Feed:      gs.Config.Feed,
		Source:    b.source,
		FromCache: b.fromCache,
		LoadedAt:  time.Now().UTC(),
		Stops:     len(network.Stops),
		Buses:     len(network.Buses),
		Routes:    routeCount,
	}
	if earliest, latest, ok := serviceEndDates(static); ok {
		info.EarliestEndAt, info.LatestEndAt = utils.ServiceDate(earliest), utils.ServiceDate(latest)
		if _, _, err := metrics.CheckBundleExpiration(static, time.Now(), gs.Config.Feed); err != nil {
			gs.Logger.Warn("Failed to check bundle expiration", "feed", gs.Config.Feed, "error", err)
		}
	}
	if box, err := geo.ComputeBoundingBox(network.Stops); err == nil {
		info.Bounds = &box
	}
	metrics.RecordNetworkSize(gs.Config.Feed, info.Stops, info.Buses, info.Routes)
	gs.BundleStore.Set(info)

	gs.Logger.Info("Loaded GTFS network",
		"feed", info.Feed, "source", info.Source, "from_cache", info.FromCache,
		"stops", info.Stops, "buses", info.Buses, "routes", info.Routes)
	return info, nil
}

// RefreshGTFSBundle reloads the bundle every interval until ctx is done.
// After a failure the feed backs off, and ticks inside the backoff window
// are skipped.
func (gs *GtfsService) RefreshGTFSBundle(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			gs.Logger.Info("Stopping GTFS bundle refresh routine")
			return
		case <-ticker.C:
			gs.refreshOnce(ctx, time.Now())
		}
	}
}

func (gs *GtfsService) refreshOnce(ctx context.Context, now time.Time) {
	if gs.Backoff.ShouldWait(gs.Config.Feed, now) {
		gs.Logger.Debug("Skipping GTFS refresh during backoff", "feed", gs.Config.Feed)
		return
	}

	gs.Logger.Info("Refreshing GTFS bundle", "feed", gs.Config.Feed)
	info, err := gs.Load(ctx)
	if err != nil {
		gs.Backoff.UpdateBackoff(gs.Config.Feed)
		gs.Logger.Error("Failed to refresh GTFS bundle", "feed", gs.Config.Feed, "error", err)
		return
	}
	if info.FromCache {
		gs.Backoff.UpdateBackoff(gs.Config.Feed)
		return
	}
	gs.Backoff.ResetBackoff(gs.Config.Feed)
}
