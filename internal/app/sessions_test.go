package app

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"planner.commuteway.org/internal/models"
	"planner.commuteway.org/internal/planner"
	"planner.commuteway.org/internal/testutil"
)

func TestSessionRegistry(t *testing.T) {
	app := newTestApplication(t)
	registry := app.Sessions

	s := registry.Create()
	if s.Planner == nil {
		t.Fatal("expected a planner for the new session")
	}
	if registry.Count() != 1 {
		t.Errorf("expected 1 session, got %d", registry.Count())
	}

	got, ok := registry.Get(s.ID.String())
	if !ok || got != s {
		t.Fatalf("expected to find session %s", s.ID)
	}
	if _, ok := registry.Get("missing"); ok {
		t.Error("expected no session for an unknown ID")
	}

	if !registry.Delete(s.ID.String()) {
		t.Error("expected Delete to report the session existed")
	}
	if registry.Delete(s.ID.String()) {
		t.Error("expected a second Delete to report nothing was removed")
	}
	if registry.Count() != 0 {
		t.Errorf("expected no sessions, got %d", registry.Count())
	}
}

func TestSessionRegistryExpiresIdleSessions(t *testing.T) {
	registry := NewSessionRegistry(20*time.Millisecond, func() *planner.Planner { return nil })
	s := registry.Create()

	time.Sleep(40 * time.Millisecond)

	if _, ok := registry.Get(s.ID.String()); ok {
		t.Error("expected the idle session to have expired")
	}
}

func TestSessionPlanningFlow(t *testing.T) {
	routes := testRoutes(t, newTestApplication(t))

	rr := do(t, routes, http.MethodPost, "/v1/sessions", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created struct {
		ID    string        `json:"id"`
		State planner.State `json:"state"`
	}
	decode(t, rr, &created)
	if created.ID == "" {
		t.Fatal("expected a session ID")
	}
	if loc := rr.Header().Get("Location"); loc != "/v1/sessions/"+created.ID {
		t.Errorf("unexpected Location header %q", loc)
	}
	if created.State.Phase != planner.PhaseIdle {
		t.Errorf("expected an idle session, got %q", created.State.Phase)
	}
	base := "/v1/sessions/" + created.ID

	// step sends one request and decodes the resulting snapshot.
	step := func(method, path string, body interface{}) planner.State {
		t.Helper()
		rr := do(t, routes, method, base+path, body)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s %s: expected 200, got %d: %s", method, path, rr.Code, rr.Body.String())
		}
		var resp stateBody
		decode(t, rr, &resp)
		return resp.State
	}

	state := step(http.MethodPut, "/from", pointBody("Home", testutil.Mohakhali))
	if state.From == nil || state.From.Label != "Home" {
		t.Fatalf("expected the starting location to be set, got %+v", state.From)
	}
	step(http.MethodPut, "/to", pointBody("Office", testutil.Shahbag))

	state = step(http.MethodPost, "/discover", map[string]interface{}{"side": "start", "threshold_meters": 300})
	if len(state.StartingStops) != 1 || state.StartingStops[0].ID != testutil.Mohakhali {
		t.Fatalf("expected Mohakhali as the only starting stop, got %+v", state.StartingStops)
	}
	state = step(http.MethodPost, "/discover", map[string]interface{}{"side": "destination", "threshold_meters": 300})
	if len(state.DestinationStops) != 1 || state.DestinationStops[0].ID != testutil.Shahbag {
		t.Fatalf("expected Shahbag as the only destination stop, got %+v", state.DestinationStops)
	}
	if state.Phase != planner.PhaseStopsDiscovered {
		t.Errorf("expected phase %q, got %q", planner.PhaseStopsDiscovered, state.Phase)
	}

	step(http.MethodPut, "/onboarding", map[string]string{"stop_id": testutil.Mohakhali})
	state = step(http.MethodPut, "/offboarding", map[string]string{"stop_id": testutil.Shahbag})
	if state.Phase != planner.PhaseStopsSelected {
		t.Errorf("expected phase %q, got %q", planner.PhaseStopsSelected, state.Phase)
	}

	state = step(http.MethodPost, "/search", nil)
	if state.Phase != planner.PhaseRoutesFound {
		t.Errorf("expected phase %q, got %q", planner.PhaseRoutesFound, state.Phase)
	}
	if got := resultIDs(state.DisplayedResults); got != "[bus-1 bus-2 bus-5]" {
		t.Errorf("unexpected search results %s", got)
	}

	state = step(http.MethodPut, "/filters", map[string]interface{}{"ac": true})
	if got := resultIDs(state.DisplayedResults); got != "[bus-2]" {
		t.Errorf("expected only the AC bus, got %s", got)
	}
	if len(state.Results) != 3 {
		t.Errorf("expected filtering to keep every result, got %d", len(state.Results))
	}

	state = step(http.MethodDelete, "/filters", nil)
	if got := resultIDs(state.DisplayedResults); got != "[bus-1 bus-2 bus-5]" {
		t.Errorf("expected every result after clearing filters, got %s", got)
	}

	state = step(http.MethodPut, "/sort", map[string]string{"sort_by": "journeyLength", "sort_order": "desc"})
	if got := resultIDs(state.DisplayedResults); got != "[bus-1 bus-2 bus-5]" {
		t.Errorf("unexpected descending journey order %s", got)
	}
	state = step(http.MethodPut, "/sort", map[string]string{"sort_by": "journeyLength", "sort_order": "asc"})
	if got := resultIDs(state.DisplayedResults); got != "[bus-5 bus-1 bus-2]" {
		t.Errorf("unexpected ascending journey order %s", got)
	}

	rr = do(t, routes, http.MethodGet, base+"/results", nil)
	var results routesBody
	decode(t, rr, &results)
	if results.Count != 3 || results.Results[0].ID != "bus-5" {
		t.Errorf("expected the sorted results, got %v", results.ids())
	}

	state = step(http.MethodPost, "/reset", nil)
	if state.Phase != planner.PhaseIdle || state.From != nil || state.Results != nil {
		t.Errorf("expected a fresh state after reset, got %+v", state)
	}

	if rr := do(t, routes, http.MethodDelete, base, nil); rr.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rr.Code)
	}
	if rr := do(t, routes, http.MethodGet, base, nil); rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rr.Code)
	}
}

func TestSessionValidationErrors(t *testing.T) {
	app := newTestApplication(t)
	routes := testRoutes(t, app)
	base := "/v1/sessions/" + app.Sessions.Create().ID.String()

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		field  string
	}{
		{"threshold too small", http.MethodPut, "/thresholds", map[string]float64{"starting_meters": 50}, http.StatusUnprocessableEntity, "starting_threshold"},
		{"latitude out of range", http.MethodPut, "/from", map[string]float64{"lat": 123, "lng": 90.4}, http.StatusUnprocessableEntity, "from"},
		{"missing longitude", http.MethodPut, "/to", map[string]float64{"lat": 23.7}, http.StatusBadRequest, ""},
		{"discover before locating", http.MethodPost, "/discover", map[string]string{"side": "start"}, http.StatusUnprocessableEntity, ""},
		{"unknown side", http.MethodPost, "/discover", map[string]string{"side": "middle"}, http.StatusUnprocessableEntity, "side"},
		{"undiscovered stop", http.MethodPut, "/onboarding", map[string]string{"stop_id": "banani"}, http.StatusUnprocessableEntity, "onboarding_stop"},
		{"search without stops", http.MethodPost, "/search", nil, http.StatusUnprocessableEntity, "stops"},
		{"inverted journey range", http.MethodPut, "/filters", map[string]float64{"min_journey_km": 5, "max_journey_km": 1}, http.StatusUnprocessableEntity, "filters"},
		{"unknown filter field", http.MethodPut, "/filters", map[string]bool{"wifi": true}, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, routes, tt.method, base+tt.path, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rr.Code, rr.Body.String())
			}
			if tt.field == "" {
				return
			}
			var resp stateBody
			decode(t, rr, &resp)
			if resp.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, resp.Field)
			}
			if resp.State.Error == "" {
				t.Error("expected the snapshot to carry the error message")
			}
		})
	}
}

func TestUnknownSession(t *testing.T) {
	routes := testRoutes(t, newTestApplication(t))

	for _, target := range []string{"/v1/sessions/nope", "/v1/sessions/nope/results", "/v1/sessions/nope/events"} {
		if rr := do(t, routes, http.MethodGet, target, nil); rr.Code != http.StatusNotFound {
			t.Errorf("GET %s: expected 404, got %d", target, rr.Code)
		}
	}
	if rr := do(t, routes, http.MethodDelete, "/v1/sessions/nope", nil); rr.Code != http.StatusNotFound {
		t.Errorf("DELETE: expected 404, got %d", rr.Code)
	}
}

func TestSessionEventsStream(t *testing.T) {
	app := newTestApplication(t)
	session := app.Sessions.Create()

	router := httprouter.New()
	router.HandlerFunc(http.MethodGet, "/v1/sessions/:id/events", app.sessionEventsHandler)
	server := httptest.NewServer(router)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/v1/sessions/"+session.ID.String()+"/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("failed to open the event stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected an event stream, got %q", ct)
	}
	reader := bufio.NewReader(resp.Body)

	initial := readStateEvent(t, reader)
	if initial.Phase != planner.PhaseIdle {
		t.Errorf("expected the initial idle snapshot, got %q", initial.Phase)
	}

	home := testutil.StopByID(testutil.Mohakhali).Coordinate()
	if err := session.Planner.SetFromLocation(planner.Location{Label: "Home", Point: home}); err != nil {
		t.Fatal(err)
	}

	next := readStateEvent(t, reader)
	if next.Version <= initial.Version {
		t.Errorf("expected a newer version than %d, got %d", initial.Version, next.Version)
	}
	if next.From == nil || next.From.Label != "Home" {
		t.Errorf("expected the starting location in the event, got %+v", next.From)
	}
}

// readStateEvent reads one "state" event, skipping keep-alive comments.
func readStateEvent(t *testing.T, r *bufio.Reader) planner.State {
	t.Helper()

	var (
		event string
		data  string
	)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("failed to read event: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && data != "":
			if event != "state" {
				t.Fatalf("unexpected event %q", event)
			}
			var state planner.State
			if err := json.Unmarshal([]byte(data), &state); err != nil {
				t.Fatalf("failed to decode event data: %v", err)
			}
			return state
		}
	}
}

func resultIDs(results []models.EnhancedBusResult) string {
	return fmt.Sprint(routesBody{Results: results}.ids())
}
