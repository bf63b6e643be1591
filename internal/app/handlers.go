package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"planner.commuteway.org/internal/enhance"
	"planner.commuteway.org/internal/filter"
	"planner.commuteway.org/internal/geo"
	"planner.commuteway.org/internal/gtfs"
	"planner.commuteway.org/internal/models"
	"planner.commuteway.org/internal/planner"
	"planner.commuteway.org/internal/routes"
	"planner.commuteway.org/internal/stops"
	"planner.commuteway.org/internal/store"
)

// HealthStatus is the body of /v1/healthcheck.
//
// Routing is the method distances are currently computed with: "network"
// when the routing service answers its probe, "great_circle" otherwise.
// Ready is false until a network is available to plan on, in which case the
// handler answers 503 so load balancers hold traffic back.
type HealthStatus struct {
	Status      string           `json:"status"`
	Environment string           `json:"environment"`
	Version     string           `json:"version"`
	Routing     models.Method    `json:"routing"`
	Network     *gtfs.BundleInfo `json:"network,omitempty"`
	Sessions    int              `json:"sessions"`
	Ready       bool             `json:"ready"`
}

func (app *Application) healthcheckHandler(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:      "available",
		Environment: app.Config.Env,
		Version:     app.Version,
		Routing:     models.MethodGreatCircle,
		Sessions:    app.Sessions.Count(),
	}
	if app.Distances.Available(r.Context()) {
		status.Routing = models.MethodNetwork
	}
	if info, ok := app.BundleStore.Get(app.Config.GTFS.Feed); ok {
		status.Network = &info
	}
	status.Ready = app.networkReady(status.Network)

	code := http.StatusOK
	if !status.Ready {
		code = http.StatusServiceUnavailable
	}
	app.respond(w, r, code, status)
}

// networkReady reports whether there is a network to plan on. A database
// store is filled outside this process and is assumed ready.
func (app *Application) networkReady(info *gtfs.BundleInfo) bool {
	if info != nil {
		return true
	}
	return app.Config.Database.Driver != "memory"
}

func (app *Application) networkHandler(w http.ResponseWriter, r *http.Request) {
	info, ok := app.BundleStore.Get(app.Config.GTFS.Feed)
	if !ok {
		app.errorResponse(w, r, http.StatusNotFound, "no GTFS bundle has been loaded")
		return
	}
	app.respond(w, r, http.StatusOK, envelope{"network": info})
}

// nearbyStopsHandler serves GET /v1/stops/nearby?lat=&lng=&threshold=.
// The threshold defaults to the starting threshold of a new session.
func (app *Application) nearbyStopsHandler(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	point, ok, err := readCoordinate(qs, "")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if !ok {
		app.badRequestResponse(w, r, errors.New("lat and lng are required"))
		return
	}

	threshold := float64(planner.DefaultStartingThresholdMeters)
	if v, err := readFloat(qs, "threshold"); err != nil {
		app.badRequestResponse(w, r, err)
		return
	} else if v != nil {
		threshold = *v
	}

	found, method, err := app.Stops.DiscoverStops(r.Context(), point, threshold)
	if err != nil {
		app.discoveryErrorResponse(w, r, err)
		return
	}

	body := envelope{"stops": found, "method": method, "count": len(found)}
	if method == models.MethodGreatCircle {
		body["warning"] = "Road distances are unavailable, walking distances are approximate"
	}
	app.respond(w, r, http.StatusOK, body)
}

func (app *Application) discoveryErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var coordErr *geo.CoordinateError
	switch {
	case errors.As(err, &coordErr), errors.Is(err, stops.ErrInvalidThreshold):
		app.unprocessableResponse(w, r, err)
	default:
		app.serverErrorResponse(w, r, err)
	}
}

// searchRoutesHandler serves a stateless search between two stop IDs:
//
//	GET /v1/routes?from_stop=&to_stop=[&from_lat=&from_lng=][&to_lat=&to_lng=]
//	    [&ac=][&coach_type=a,b][&min_journey_km=][&max_journey_km=]
//	    [&max_walking_km=][&sort_by=][&sort_order=]
//
// The AC and coach type filters narrow the store query; the remaining
// filters and the ordering apply to the enhanced results. Walking legs are
// measured from the optional points and are zero without them.
func (app *Application) searchRoutesHandler(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	fromID, toID := qs.Get("from_stop"), qs.Get("to_stop")
	if fromID == "" || toID == "" {
		app.badRequestResponse(w, r, errors.New("from_stop and to_stop are required"))
		return
	}

	filters, sortCfg, err := readFilterQuery(qs)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := filters.Validate(); err != nil {
		app.unprocessableResponse(w, r, err)
		return
	}
	fromPoint, err := readOptionalPoint(qs, "from_")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	toPoint, err := readOptionalPoint(qs, "to_")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	ctx := r.Context()
	onboarding, err := app.lookupStop(ctx, fromID)
	if err != nil {
		app.stopLookupErrorResponse(w, r, err)
		return
	}
	offboarding, err := app.lookupStop(ctx, toID)
	if err != nil {
		app.stopLookupErrorResponse(w, r, err)
		return
	}

	walkToKm, err := app.walkingLegKm(ctx, fromPoint, "from_point", onboarding)
	if err != nil {
		app.discoveryErrorResponse(w, r, err)
		return
	}
	walkFromKm, err := app.walkingLegKm(ctx, toPoint, "to_point", offboarding)
	if err != nil {
		app.discoveryErrorResponse(w, r, err)
		return
	}

	spec := filters.Spec()
	matches, err := app.RouteService.FindBusRoutesWithQuery(ctx, onboarding.ID, offboarding.ID, spec.BuildQueryModifier(models.BusQuery{}))
	if err != nil {
		if errors.Is(err, routes.ErrSameStop) {
			app.unprocessableResponse(w, r, err)
			return
		}
		app.serverErrorResponse(w, r, err)
		return
	}

	results := make([]models.EnhancedBusResult, 0, len(matches))
	for _, m := range matches {
		raw := enhance.NewRawBusResult(m, onboarding, offboarding)
		results = append(results, enhance.NewEnhancedBusResult(raw, routes.JourneyLengthForMatch(m), walkToKm, walkFromKm))
	}
	displayed := filter.Sort(spec.Apply(results), sortCfg)

	app.respond(w, r, http.StatusOK, envelope{
		"results": displayed,
		"count":   len(displayed),
		"total":   len(results),
	})
}

func (app *Application) lookupStop(ctx context.Context, id string) (models.Stop, error) {
	stop, err := app.Store.Stop(ctx, id)
	if err != nil {
		return models.Stop{}, fmt.Errorf("stop %s: %w", id, err)
	}
	return stop, nil
}

func (app *Application) stopLookupErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		app.errorResponse(w, r, http.StatusNotFound, err.Error())
		return
	}
	app.serverErrorResponse(w, r, err)
}

// readOptionalPoint reads "<prefix>lat" and "<prefix>lng". It returns nil
// when both are absent.
func readOptionalPoint(qs url.Values, prefix string) (*models.Coordinate, error) {
	point, ok, err := readCoordinate(qs, prefix)
	if err != nil || !ok {
		return nil, err
	}
	return &point, nil
}

// walkingLegKm measures from point to stop, in km. A nil point is no walk.
func (app *Application) walkingLegKm(ctx context.Context, point *models.Coordinate, field string, stop models.Stop) (float64, error) {
	if point == nil {
		return 0, nil
	}
	if err := geo.ValidateCoordinate(*point, field); err != nil {
		return 0, err
	}

	matrix, err := app.Distances.CalculateDistances(ctx, []models.Coordinate{*point}, []models.Coordinate{stop.Coordinate()})
	if err != nil {
		return 0, err
	}
	return matrix[0][0].DistanceMeters / 1000, nil
}
