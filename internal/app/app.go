// Package app wires the planner services to the HTTP API.
package app

import (
	"log/slog"
	"net/http"

	"planner.commuteway.org/internal/config"
	"planner.commuteway.org/internal/distance"
	"planner.commuteway.org/internal/gtfs"
	"planner.commuteway.org/internal/planner"
	"planner.commuteway.org/internal/routes"
	"planner.commuteway.org/internal/stops"
	"planner.commuteway.org/internal/store"
)

// Application holds every service the HTTP handlers depend on.
// GtfsService is nil when no GTFS URL is configured and the store is
// populated some other way.
type Application struct {
	Config       *config.Config
	Store        store.Store
	Distances    *distance.Calculator
	Stops        *stops.Service
	RouteService *routes.Service
	GtfsService  *gtfs.GtfsService
	BundleStore  *gtfs.BundleStore
	Sessions     *SessionRegistry
	Logger       *slog.Logger
	Version      string
}

// New creates and wires all dependencies for the Application.
func New(cfg *config.Config, st store.Store, calc *distance.Calculator, client *http.Client, logger *slog.Logger, version string) *Application {
	stopService := stops.NewService(st, calc, logger)
	routeService := routes.NewService(st, logger)
	bundleStore := gtfs.NewBundleStore()

	var gtfsService *gtfs.GtfsService
	if cfg.GTFS.URL != "" {
		gtfsService = gtfs.NewGtfsService(cfg.GTFS, st, bundleStore, config.NewBackoffStore(), client, logger)
	}

	sessions := NewSessionRegistry(cfg.Sessions.TTL, func() *planner.Planner {
		return planner.New(stopService, routeService, logger)
	})

	return &Application{
		Config:       cfg,
		Store:        st,
		Distances:    calc,
		Stops:        stopService,
		RouteService: routeService,
		GtfsService:  gtfsService,
		BundleStore:  bundleStore,
		Sessions:     sessions,
		Logger:       logger,
		Version:      version,
	}
}
