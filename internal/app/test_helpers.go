package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"planner.commuteway.org/internal/config"
	"planner.commuteway.org/internal/distance"
	"planner.commuteway.org/internal/planner"
	"planner.commuteway.org/internal/store"
	"planner.commuteway.org/internal/testutil"
	"planner.commuteway.org/internal/utils"
)

// newTestApplication returns an application over the fixture network with
// great-circle distances only.
func newTestApplication(t *testing.T) *Application {
	t.Helper()

	cfg := config.Default()
	cfg.Env = "testing"
	cfg.GTFS.Feed = "testing-feed"

	logger := testutil.Logger()
	memory := store.NewMemoryStore()
	if err := memory.ReplaceNetwork(context.Background(), testutil.Network()); err != nil {
		t.Fatalf("failed to load fixture network: %v", err)
	}
	calc := distance.NewCalculator(nil, distance.NewGreatCircle(), logger)

	return New(&cfg, memory, calc, &http.Client{Timeout: time.Second}, logger, "test-version")
}

// testRoutes returns the full handler chain of app.
func testRoutes(t *testing.T, app *Application) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return app.Routes(ctx)
}

// do sends a request with an optional JSON body through handler.
func do(t *testing.T, handler http.Handler, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(method, target, &buf))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(dst); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
}

type stateBody struct {
	State planner.State `json:"state"`
	Error string        `json:"error"`
	Field string        `json:"field"`
}

func pointBody(label, stopID string) map[string]interface{} {
	c := testutil.StopByID(stopID).Coordinate()
	return map[string]interface{}{"label": label, "lat": c.Lat, "lng": c.Lng}
}

func serviceDate(year int, month time.Month, day int) utils.ServiceDate {
	return utils.ServiceDate(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// gaugeValue reads the value of gauge for a single feed label.
func gaugeValue(t *testing.T, gauge *prometheus.GaugeVec, feed string) float64 {
	t.Helper()
	g, err := gauge.GetMetricWithLabelValues(feed)
	if err != nil {
		t.Fatalf("failed to get gauge: %v", err)
	}
	pb := &dto.Metric{}
	if err := g.Write(pb); err != nil {
		t.Fatalf("failed to read gauge: %v", err)
	}
	return pb.GetGauge().GetValue()
}
