package app

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"planner.commuteway.org/internal/gtfs"
	"planner.commuteway.org/internal/metrics"
	"planner.commuteway.org/internal/models"
	"planner.commuteway.org/internal/testutil"
)

func TestHealthcheckHandler(t *testing.T) {
	app := newTestApplication(t)

	rr := httptest.NewRecorder()
	app.healthcheckHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/healthcheck", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 before a bundle is loaded, got %d", rr.Code)
	}

	app.BundleStore.Set(gtfs.BundleInfo{Feed: "testing-feed", Stops: 8, Buses: 5, Routes: 7})

	rr = httptest.NewRecorder()
	app.healthcheckHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/healthcheck", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}

	var resp HealthStatus
	decode(t, rr, &resp)
	if resp.Status != "available" {
		t.Errorf("expected status 'available', got %q", resp.Status)
	}
	if resp.Environment != "testing" {
		t.Errorf("expected environment 'testing', got %q", resp.Environment)
	}
	if resp.Version != "test-version" {
		t.Errorf("expected version 'test-version', got %q", resp.Version)
	}
	if resp.Routing != models.MethodGreatCircle {
		t.Errorf("expected great circle routing without a routing service, got %q", resp.Routing)
	}
	if resp.Network == nil || resp.Network.Stops != 8 {
		t.Errorf("expected the bundle info in the response, got %+v", resp.Network)
	}
	if !resp.Ready {
		t.Error("expected ready true")
	}
}

func TestNetworkHandler(t *testing.T) {
	app := newTestApplication(t)
	routes := testRoutes(t, app)

	if rr := do(t, routes, http.MethodGet, "/v1/network", nil); rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 without a bundle, got %d", rr.Code)
	}

	app.BundleStore.Set(gtfs.BundleInfo{Feed: "testing-feed", Source: "https://example.com/gtfs.zip", Buses: 5})
	rr := do(t, routes, http.MethodGet, "/v1/network", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		Network gtfs.BundleInfo `json:"network"`
	}
	decode(t, rr, &resp)
	if resp.Network.Buses != 5 || resp.Network.Source != "https://example.com/gtfs.zip" {
		t.Errorf("unexpected network info: %+v", resp.Network)
	}
}

func TestNearbyStopsHandler(t *testing.T) {
	routes := testRoutes(t, newTestApplication(t))
	c := testutil.StopByID(testutil.Mohakhali).Coordinate()

	rr := do(t, routes, http.MethodGet, fmt.Sprintf("/v1/stops/nearby?lat=%f&lng=%f&threshold=300", c.Lat, c.Lng), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Stops   []models.DiscoveredStop `json:"stops"`
		Method  models.Method           `json:"method"`
		Count   int                     `json:"count"`
		Warning string                  `json:"warning"`
	}
	decode(t, rr, &resp)
	if resp.Count != 1 || resp.Stops[0].ID != testutil.Mohakhali {
		t.Errorf("expected only Mohakhali within 300 m, got %+v", resp.Stops)
	}
	if resp.Method != models.MethodGreatCircle || resp.Warning == "" {
		t.Errorf("expected a great circle warning, got method %q warning %q", resp.Method, resp.Warning)
	}

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"missing coordinates", "", http.StatusBadRequest},
		{"only latitude", "?lat=23.7", http.StatusBadRequest},
		{"threshold not a number", "?lat=23.7&lng=90.4&threshold=far", http.StatusBadRequest},
		{"threshold too small", "?lat=23.7&lng=90.4&threshold=50", http.StatusUnprocessableEntity},
		{"latitude out of range", "?lat=123.7&lng=90.4", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := do(t, routes, http.MethodGet, "/v1/stops/nearby"+tt.query, nil); rr.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, rr.Code, rr.Body.String())
			}
		})
	}
}

type routesBody struct {
	Results []models.EnhancedBusResult `json:"results"`
	Count   int                        `json:"count"`
	Total   int                        `json:"total"`
}

func (b routesBody) ids() []string {
	out := make([]string, len(b.Results))
	for i, r := range b.Results {
		out[i] = r.ID
	}
	return out
}

func TestSearchRoutesHandler(t *testing.T) {
	routes := testRoutes(t, newTestApplication(t))
	base := "/v1/routes?from_stop=mohakhali&to_stop=shahbag"

	tests := []struct {
		name  string
		query string
		want  []string
		total int
	}{
		{"all buses", "", []string{"bus-1", "bus-2", "bus-5"}, 3},
		{"AC pushed to the store", "&ac=true", []string{"bus-2"}, 1},
		{"coach types", "&coach_type=double_decker,minibus", []string{"bus-2", "bus-5"}, 2},
		{"journey range", "&max_journey_km=4.5", []string{"bus-5"}, 3},
		{"sorted by journey length", "&sort_by=journeyLength", []string{"bus-5", "bus-1", "bus-2"}, 3},
		{"sorted by name descending", "&sort_by=name&sort_order=desc", []string{"bus-2", "bus-1", "bus-5"}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, routes, http.MethodGet, base+tt.query, nil)
			if rr.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
			}
			var resp routesBody
			decode(t, rr, &resp)
			if fmt.Sprint(resp.ids()) != fmt.Sprint(tt.want) {
				t.Errorf("expected %v, got %v", tt.want, resp.ids())
			}
			if resp.Count != len(tt.want) || resp.Total != tt.total {
				t.Errorf("expected count %d of %d, got %d of %d", len(tt.want), tt.total, resp.Count, resp.Total)
			}
		})
	}
}

func TestSearchRoutesHandlerWalkingLegs(t *testing.T) {
	routes := testRoutes(t, newTestApplication(t))

	// About 1.77 km from Banani to Mohakhali.
	banani := testutil.StopByID(testutil.Banani).Coordinate()
	target := fmt.Sprintf("/v1/routes?from_stop=mohakhali&to_stop=shahbag&from_lat=%f&from_lng=%f", banani.Lat, banani.Lng)

	rr := do(t, routes, http.MethodGet, target, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp routesBody
	decode(t, rr, &resp)
	for _, r := range resp.Results {
		if r.WalkingToOnboardingKm < 1.7 || r.WalkingToOnboardingKm > 1.85 {
			t.Errorf("%s: expected ~1.77 km walking to the onboarding stop, got %f", r.ID, r.WalkingToOnboardingKm)
		}
		if r.WalkingFromOffboardingKm != 0 {
			t.Errorf("%s: expected no walking from the offboarding stop, got %f", r.ID, r.WalkingFromOffboardingKm)
		}
	}

	rr = do(t, routes, http.MethodGet, target+"&max_walking_km=1", nil)
	decode(t, rr, &resp)
	if resp.Count != 0 || resp.Total != 3 {
		t.Errorf("expected every result to exceed 1 km of walking, got %d of %d", resp.Count, resp.Total)
	}
}

func TestSearchRoutesHandlerErrors(t *testing.T) {
	routes := testRoutes(t, newTestApplication(t))

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"missing stops", "", http.StatusBadRequest},
		{"unknown stop", "?from_stop=mohakhali&to_stop=nowhere", http.StatusNotFound},
		{"same stop", "?from_stop=mohakhali&to_stop=mohakhali", http.StatusUnprocessableEntity},
		{"inverted range", "?from_stop=mohakhali&to_stop=shahbag&min_journey_km=5&max_journey_km=2", http.StatusUnprocessableEntity},
		{"unknown sort field", "?from_stop=mohakhali&to_stop=shahbag&sort_by=price", http.StatusBadRequest},
		{"bad ac flag", "?from_stop=mohakhali&to_stop=shahbag&ac=maybe", http.StatusBadRequest},
		{"half a point", "?from_stop=mohakhali&to_stop=shahbag&to_lat=23.7", http.StatusBadRequest},
		{"walking point not a number", "?from_stop=mohakhali&to_stop=shahbag&from_lat=north&from_lng=90.4", http.StatusBadRequest},
		{"walking point before stop lookup", "?from_stop=nowhere&to_stop=shahbag&to_lng=90.4", http.StatusBadRequest},
		{"walking point out of range", "?from_stop=mohakhali&to_stop=shahbag&from_lat=95&from_lng=90.4", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := do(t, routes, http.MethodGet, "/v1/routes"+tt.query, nil); rr.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	routes := testRoutes(t, newTestApplication(t))

	if rr := do(t, routes, http.MethodGet, "/v1/nothing", nil); rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
	if rr := do(t, routes, http.MethodPost, "/v1/routes", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rr.Code)
	}
}

func TestResponsesCarrySecurityHeaders(t *testing.T) {
	rr := do(t, testRoutes(t, newTestApplication(t)), http.MethodGet, "/v1/healthcheck", nil)
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("expected nosniff, got %q", got)
	}
}

func TestCollectMetricsRecordsBundleExpiration(t *testing.T) {
	app := newTestApplication(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	app.BundleStore.Set(gtfs.BundleInfo{
		Feed:          "testing-feed",
		EarliestEndAt: serviceDate(2026, 1, 11),
		LatestEndAt:   serviceDate(2026, 3, 2),
	})

	app.CollectMetrics(t.Context(), now)

	if got := gaugeValue(t, metrics.BundleEarliestExpirationGauge, "testing-feed"); got != 10 {
		t.Errorf("expected 10 days until the earliest expiration, got %v", got)
	}
	if got := gaugeValue(t, metrics.BundleLatestExpirationGauge, "testing-feed"); got != 60 {
		t.Errorf("expected 60 days until the latest expiration, got %v", got)
	}
}
