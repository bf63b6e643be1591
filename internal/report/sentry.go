package report

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// SetupSentry initializes the Sentry client. An empty DSN leaves the SDK
// installed but disabled, so every Report* helper stays a no-op.
func SetupSentry(dsn, env, version string) error {
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      env,
		Release:          version,
		EnableTracing:    dsn != "",
		TracesSampleRate: 0.2,
	}); err != nil {
		return fmt.Errorf("sentry.Init: %w", err)
	}
	ConfigureScope(env, version)
	if dsn != "" {
		sentry.CaptureMessage("Planner started")
	}
	return nil
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}
