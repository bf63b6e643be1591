package metrics

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jamespfennell/gtfs"
	"planner.commuteway.org/internal/report"
	"planner.commuteway.org/internal/utils"
)

// CheckBundleExpiration returns the number of days until the earliest and the
// latest service of a parsed bundle ends, and exports both as gauges.
func CheckBundleExpiration(staticData *gtfs.Static, currentTime time.Time, feed string) (int, int, error) {
	if staticData == nil || len(staticData.Services) == 0 {
		err := fmt.Errorf("no services found in GTFS bundle")
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags:  utils.MakeMap("feed", feed),
			Level: sentry.LevelWarning,
		})
		return 0, 0, err
	}

	// feed_info.txt is not exposed by the parser, so the calendar is used instead.
	earliestEndDate := staticData.Services[0].EndDate
	latestEndDate := staticData.Services[0].EndDate
	for _, service := range staticData.Services[1:] {
		if service.EndDate.Before(earliestEndDate) {
			earliestEndDate = service.EndDate
		}
		if service.EndDate.After(latestEndDate) {
			latestEndDate = service.EndDate
		}
	}

	daysUntilEarliestExpiration, daysUntilLatestExpiration := RecordBundleExpiration(feed, earliestEndDate, latestEndDate, currentTime)
	return daysUntilEarliestExpiration, daysUntilLatestExpiration, nil
}

// RecordBundleExpiration exports the days left until the given service end
// dates. It is called again over time because the values drift daily.
func RecordBundleExpiration(feed string, earliestEndDate, latestEndDate, currentTime time.Time) (int, int) {
	daysUntilEarliestExpiration := int(earliestEndDate.Sub(currentTime).Hours() / 24)
	daysUntilLatestExpiration := int(latestEndDate.Sub(currentTime).Hours() / 24)

	BundleEarliestExpirationGauge.WithLabelValues(feed).Set(float64(daysUntilEarliestExpiration))
	BundleLatestExpirationGauge.WithLabelValues(feed).Set(float64(daysUntilLatestExpiration))
	return daysUntilEarliestExpiration, daysUntilLatestExpiration
}

// RecordNetworkSize exports the size of a freshly loaded network.
func RecordNetworkSize(feed string, stops, buses, routes int) {
	NetworkSize.WithLabelValues(feed, "stops").Set(float64(stops))
	NetworkSize.WithLabelValues(feed, "buses").Set(float64(buses))
	NetworkSize.WithLabelValues(feed, "routes").Set(float64(routes))
}
