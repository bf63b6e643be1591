package report_test

import (
	"errors"
	"testing"

	"github.com/getsentry/sentry-go"
	"planner.commuteway.org/internal/report"
)

func TestSetupSentry(t *testing.T) {
	t.Run("Valid DSN", func(t *testing.T) {
		if err := report.SetupSentry("https://public@sentry.example.com/1", "testing", "test"); err != nil {
			t.Fatalf("SetupSentry failed: %v", err)
		}
		report.FlushSentry()
	})

	t.Run("Empty DSN disables reporting", func(t *testing.T) {
		if err := report.SetupSentry("", "testing", "test"); err != nil {
			t.Fatalf("SetupSentry failed: %v", err)
		}
		report.ReportErrorWithSentryOptions(errors.New("boom"), report.SentryReportOptions{
			Tags:  map[string]string{"component": "test"},
			Level: sentry.LevelWarning,
		})
		report.ReportError(nil)
	})

	t.Run("Malformed DSN", func(t *testing.T) {
		if err := report.SetupSentry("not a dsn", "testing", "test"); err == nil {
			t.Error("expected an error for a malformed DSN")
		}
	})
}
