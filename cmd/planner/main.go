package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"planner.commuteway.org/internal/app"
	"planner.commuteway.org/internal/config"
	"planner.commuteway.org/internal/distance"
	"planner.commuteway.org/internal/report"
	"planner.commuteway.org/internal/store"
)

const version = "1.0.0"

const (
	metricsInterval = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	var (
		configFile = flag.String("config-file", "", "Path to a local YAML or JSON configuration file")
		configURL  = flag.String("config-url", "", "URL to a remote YAML or JSON configuration file")
	)
	flag.Parse()

	if err := config.ValidateConfigFlags(configFile, configURL); err != nil {
		fmt.Println("Error:", err)
		flag.Usage()
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := run(logger, *configFile, *configURL); err != nil {
		report.ReportError(err, sentry.LevelFatal)
		report.FlushSentry()
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configFile, configURL string) error {
	if err := config.LoadEnvFiles(".env"); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	downloadClient := app.NewPooledClient(2 * time.Minute)
	cfg, err := config.Load(ctx, downloadClient, configFile, configURL,
		os.Getenv("CONFIG_AUTH_USER"), os.Getenv("CONFIG_AUTH_PASS"), os.Getenv)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	if err := report.SetupSentry(cfg.SentryDSN, cfg.Env, version); err != nil {
		logger.Warn("Sentry is disabled", "error", err)
	}
	defer report.FlushSentry()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	routingClient := app.NewPooledClient(cfg.Routing.RequestTimeout)
	calc, err := newCalculator(cfg, routingClient, logger)
	if err != nil {
		return err
	}

	application := app.New(cfg, st, calc, downloadClient, logger, version)

	if application.GtfsService != nil {
		if _, err := application.GtfsService.Load(ctx); err != nil {
			// The refresh loop keeps trying; until then the healthcheck answers 503.
			logger.Error("Failed to load the GTFS bundle", "error", err)
		}
		go application.GtfsService.RefreshGTFSBundle(ctx, cfg.GTFS.RefreshInterval)
	} else if cfg.Database.Driver == "memory" {
		logger.Warn("No GTFS URL and no database configured, the network is empty")
	}

	go application.StartMetricsCollection(ctx, metricsInterval)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      application.Routes(ctx),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	return serve(ctx, srv, logger, cfg.Env)
}

// serve runs srv until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, srv *http.Server, logger *slog.Logger, env string) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", srv.Addr, "env", env, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.Database.Driver == "memory" {
		return store.NewMemoryStore(), nil
	}

	sqlStore, err := store.OpenSQLStore(ctx, cfg.Database.Driver, cfg.Database.URL, logger)
	if err != nil {
		return nil, err
	}
	if err := sqlStore.EnsureSchema(ctx); err != nil {
		sqlStore.Close()
		return nil, err
	}
	return sqlStore, nil
}

// newCalculator uses the routing service when one is configured and falls
// back to great-circle distances.
func newCalculator(cfg *config.Config, client *http.Client, logger *slog.Logger) (*distance.Calculator, error) {
	fallback := distance.NewGreatCircle()
	if cfg.Routing.URL == "" {
		logger.Warn("No routing service configured, walking distances are approximate")
		return distance.NewCalculator(nil, fallback, logger), nil
	}

	network, err := distance.NewNetwork(client, distance.NetworkOptions{
		BaseURL:       cfg.Routing.URL,
		Profile:       cfg.Routing.Profile,
		ProbeTimeout:  cfg.Routing.ProbeTimeout,
		MaxMatrixSize: cfg.Routing.MaxMatrixSize,
	}, logger)
	if err != nil {
		return nil, err
	}
	return distance.NewCalculator(network, fallback, logger), nil
}
