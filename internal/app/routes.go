package app

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"planner.commuteway.org/internal/middleware"
)

// Routes registers every endpoint and returns the router wrapped in the
// Sentry, CORS and security header middlewares. ctx stops the background
// refresh of the cached /metrics exposition.
//
//	GET    /v1/healthcheck
//	GET    /metrics
//	GET    /v1/network
//	GET    /v1/stops/nearby
//	GET    /v1/routes
//	POST   /v1/sessions
//	GET    /v1/sessions/:id
//	DELETE /v1/sessions/:id
//	GET    /v1/sessions/:id/events
//	GET    /v1/sessions/:id/results
//	PUT    /v1/sessions/:id/{from,to,thresholds,onboarding,offboarding,filters,sort}
//	DELETE /v1/sessions/:id/filters
//	POST   /v1/sessions/:id/{discover,search,reset}
func (app *Application) Routes(ctx context.Context) http.Handler {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(app.notFoundResponse)
	router.MethodNotAllowed = http.HandlerFunc(app.methodNotAllowedResponse)

	router.HandlerFunc(http.MethodGet, "/v1/healthcheck", app.healthcheckHandler)
	router.Handler(http.MethodGet, "/metrics", middleware.NewCachedPromHandler(ctx, prometheus.DefaultGatherer, 10*time.Second, app.Logger))

	router.HandlerFunc(http.MethodGet, "/v1/network", app.networkHandler)
	router.HandlerFunc(http.MethodGet, "/v1/stops/nearby", app.nearbyStopsHandler)
	router.HandlerFunc(http.MethodGet, "/v1/routes", app.searchRoutesHandler)

	router.HandlerFunc(http.MethodPost, "/v1/sessions", app.createSessionHandler)
	router.HandlerFunc(http.MethodGet, "/v1/sessions/:id", app.showSessionHandler)
	router.HandlerFunc(http.MethodDelete, "/v1/sessions/:id", app.deleteSessionHandler)
	router.HandlerFunc(http.MethodGet, "/v1/sessions/:id/events", app.sessionEventsHandler)
	router.HandlerFunc(http.MethodGet, "/v1/sessions/:id/results", app.resultsHandler)
	router.HandlerFunc(http.MethodPut, "/v1/sessions/:id/from", app.setFromHandler)
	router.HandlerFunc(http.MethodPut, "/v1/sessions/:id/to", app.setToHandler)
	router.HandlerFunc(http.MethodPut, "/v1/sessions/:id/thresholds", app.setThresholdsHandler)
	router.HandlerFunc(http.MethodPost, "/v1/sessions/:id/discover", app.discoverHandler)
	router.HandlerFunc(http.MethodPut, "/v1/sessions/:id/onboarding", app.selectOnboardingHandler)
	router.HandlerFunc(http.MethodPut, "/v1/sessions/:id/offboarding", app.selectOffboardingHandler)
	router.HandlerFunc(http.MethodPost, "/v1/sessions/:id/search", app.searchHandler)
	router.HandlerFunc(http.MethodPut, "/v1/sessions/:id/filters", app.setFiltersHandler)
	router.HandlerFunc(http.MethodDelete, "/v1/sessions/:id/filters", app.clearFiltersHandler)
	router.HandlerFunc(http.MethodPut, "/v1/sessions/:id/sort", app.setSortHandler)
	router.HandlerFunc(http.MethodPost, "/v1/sessions/:id/reset", app.resetHandler)

	handler := middleware.SentryMiddleware(router)
	handler = middleware.CORS(app.Config.CORS.AllowedOrigins)(handler)
	return middleware.SecurityHeaders(handler)
}
