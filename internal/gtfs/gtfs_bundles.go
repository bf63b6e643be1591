package gtfs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/getsentry/sentry-go"
	remoteGtfs "github.com/jamespfennell/gtfs"
	"planner.commuteway.org/internal/config"
	"planner.commuteway.org/internal/report"
	"planner.commuteway.org/internal/utils"
)

const maxBundleBytes = 512 << 20

// bundle is a downloaded or cached GTFS zip.
type bundle struct {
	data      []byte
	source    string
	fromCache bool
}

// fetchBundle downloads the feed's bundle and writes it to the cache
// directory. When the download fails, the most recent cached bundle of the
// feed is used instead.
func fetchBundle(ctx context.Context, client *http.Client, cfg config.GTFSConfig, maxRetries int, logger *slog.Logger) (*bundle, error) {
	data, err := downloadBundle(ctx, client, cfg, maxRetries)
	if err == nil {
		path := filepath.Join(cfg.CacheDir, utils.CachedFileName(cfg.Feed, cfg.URL))
		if writeErr := os.WriteFile(path, data, 0o644); writeErr != nil {
			logger.Warn("Failed to cache GTFS bundle", "feed", cfg.Feed, "path", path, "error", writeErr)
		}
		return &bundle{data: data, source: cfg.URL}, nil
	}

	cached, cacheErr := utils.GetLastCachedFile(cfg.CacheDir, cfg.Feed)
	if cacheErr != nil {
		return nil, fmt.Errorf("%w (no cached bundle: %v)", err, cacheErr)
	}
	logger.Warn("Using cached GTFS bundle after download failure", "feed", cfg.Feed, "path", cached, "error", err)

	data, readErr := os.ReadFile(cached)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read cached bundle %s: %w", cached, readErr)
	}
	return &bundle{data: data, source: cached, fromCache: true}, nil
}

// downloadBundle fetches the zip at cfg.URL, sending the optional auth header.
func downloadBundle(ctx context.Context, client *http.Client, cfg config.GTFSConfig, maxRetries int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL, nil)
	if err != nil {
		err = fmt.Errorf("failed to create request for %s: %w", cfg.URL, err)
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags:         utils.MakeMap("feed", cfg.Feed),
			ExtraContext: map[string]interface{}{"url": cfg.URL},
		})
		return nil, err
	}
	if cfg.AuthHeader != "" && cfg.AuthValue != "" {
		req.Header.Set(cfg.AuthHeader, cfg.AuthValue)
	}

	resp, err := config.DoWithBackoff(ctx, client, req, maxRetries)
	if err != nil {
		err = fmt.Errorf("failed to make GET request to %s: %w", cfg.URL, err)
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags:         utils.MakeMap("feed", cfg.Feed),
			ExtraContext: map[string]interface{}{"url": cfg.URL},
			Level:        sentry.LevelWarning,
		})
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("unexpected response status %d when downloading GTFS bundle from %s", resp.StatusCode, cfg.URL)
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags: utils.MakeMap("feed", cfg.Feed),
			ExtraContext: map[string]interface{}{
				"url":    cfg.URL,
				"status": resp.Status,
			},
		})
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBundleBytes))
	if err != nil {
		err = fmt.Errorf("failed to read GTFS bundle response body from %s: %w", cfg.URL, err)
		report.ReportError(err)
		return nil, err
	}
	return data, nil
}

func parseBundle(b *bundle, feed string) (*remoteGtfs.Static, error) {
	static, err := remoteGtfs.ParseStatic(b.data, remoteGtfs.ParseStaticOptions{})
	if err != nil {
		err = fmt.Errorf("failed to parse GTFS static data from %s: %w", b.source, err)
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags:         utils.MakeMap("feed", feed),
			ExtraContext: map[string]interface{}{"source": b.source},
		})
		return nil, err
	}
	return static, nil
}

// serviceEndDates returns the earliest and latest calendar end dates.
// feed_info.txt is not exposed by the parser, so the calendar is used.
func serviceEndDates(static *remoteGtfs.Static) (earliest, latest time.Time, ok bool) {
	if static == nil || len(static.Services) == 0 {
		return time.Time{}, time.Time{}, false
	}
	earliest, latest = static.Services[0].EndDate, static.Services[0].EndDate
	for _, service := range static.Services[1:] {
		if service.EndDate.Before(earliest) {
			earliest = service.EndDate
		}
		if service.EndDate.After(latest) {
			latest = service.EndDate
		}
	}
	return earliest, latest, true
}
