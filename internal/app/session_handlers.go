package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"planner.commuteway.org/internal/filter"
	"planner.commuteway.org/internal/models"
	"planner.commuteway.org/internal/planner"
)

type locationInput struct {
	Label string   `json:"label"`
	Lat   *float64 `json:"lat"`
	Lng   *float64 `json:"lng"`
}

func (in locationInput) location() (planner.Location, error) {
	if in.Lat == nil || in.Lng == nil {
		return planner.Location{}, errors.New("lat and lng are required")
	}
	return planner.Location{
		Label: in.Label,
		Point: models.Coordinate{Lat: *in.Lat, Lng: *in.Lng},
	}, nil
}

// session resolves the :id parameter. It writes a 404 and returns nil when
// the session does not exist or has expired.
func (app *Application) session(w http.ResponseWriter, r *http.Request) *Session {
	id := httprouter.ParamsFromContext(r.Context()).ByName("id")
	s, ok := app.Sessions.Get(id)
	if !ok {
		app.errorResponse(w, r, http.StatusNotFound, fmt.Sprintf("session %q not found", id))
		return nil
	}
	return s
}

// stateResponse answers a planner call with the resulting snapshot.
// Validation errors answer 422 and carry the snapshot, whose Error field
// holds the same message.
func (app *Application) stateResponse(w http.ResponseWriter, r *http.Request, s *Session, err error) {
	var verr *planner.ValidationError
	switch {
	case err == nil:
		app.respond(w, r, http.StatusOK, envelope{"state": s.Planner.GetState()})
	case errors.As(err, &verr):
		app.respond(w, r, http.StatusUnprocessableEntity, envelope{
			"error": verr.Message,
			"field": verr.Field,
			"state": s.Planner.GetState(),
		})
	case errors.Is(err, planner.ErrSuperseded):
		app.errorResponse(w, r, http.StatusConflict, "a newer request replaced this one")
	default:
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	s := app.Sessions.Create()
	w.Header().Set("Location", "/v1/sessions/"+s.ID.String())
	app.respond(w, r, http.StatusCreated, envelope{
		"id":         s.ID,
		"created_at": s.CreatedAt,
		"state":      s.Planner.GetState(),
	})
}

func (app *Application) showSessionHandler(w http.ResponseWriter, r *http.Request) {
	if s := app.session(w, r); s != nil {
		app.stateResponse(w, r, s, nil)
	}
}

func (app *Application) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := httprouter.ParamsFromContext(r.Context()).ByName("id")
	if !app.Sessions.Delete(id) {
		app.notFoundResponse(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *Application) setFromHandler(w http.ResponseWriter, r *http.Request) {
	app.setLocation(w, r, planner.SideStart)
}

func (app *Application) setToHandler(w http.ResponseWriter, r *http.Request) {
	app.setLocation(w, r, planner.SideDestination)
}

func (app *Application) setLocation(w http.ResponseWriter, r *http.Request, side planner.Side) {
	s := app.session(w, r)
	if s == nil {
		return
	}

	var input locationInput
	if err := app.readJSON(w, r, &input); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	loc, err := input.location()
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if side == planner.SideStart {
		err = s.Planner.SetFromLocation(loc)
	} else {
		err = s.Planner.SetToLocation(loc)
	}
	app.stateResponse(w, r, s, err)
}

func (app *Application) setThresholdsHandler(w http.ResponseWriter, r *http.Request) {
	s := app.session(w, r)
	if s == nil {
		return
	}

	var input struct {
		StartingMeters    *float64 `json:"starting_meters"`
		DestinationMeters *float64 `json:"destination_meters"`
	}
	if err := app.readJSON(w, r, &input); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var err error
	if input.StartingMeters != nil {
		err = s.Planner.SetStartingThreshold(*input.StartingMeters)
	}
	if err == nil && input.DestinationMeters != nil {
		err = s.Planner.SetDestinationThreshold(*input.DestinationMeters)
	}
	app.stateResponse(w, r, s, err)
}

// discoverHandler discovers stops around the location already set for the
// requested side. The threshold defaults to the one stored in the session.
func (app *Application) discoverHandler(w http.ResponseWriter, r *http.Request) {
	s := app.session(w, r)
	if s == nil {
		return
	}

	var input struct {
		Side            planner.Side `json:"side"`
		ThresholdMeters *float64     `json:"threshold_meters"`
	}
	if err := app.readJSON(w, r, &input); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	state := s.Planner.GetState()
	var (
		loc       *planner.Location
		threshold float64
	)
	switch input.Side {
	case planner.SideStart:
		loc, threshold = state.From, state.StartingThresholdMeters
	case planner.SideDestination:
		loc, threshold = state.To, state.DestinationThresholdMeters
	}
	if input.ThresholdMeters != nil {
		threshold = *input.ThresholdMeters
	}

	var point models.Coordinate
	if loc != nil {
		point = loc.Point
	} else if input.Side == planner.SideStart || input.Side == planner.SideDestination {
		app.unprocessableResponse(w, r, fmt.Errorf("set the %s location before discovering stops", input.Side))
		return
	}

	_, err := s.Planner.DiscoverStopsNearLocation(r.Context(), point, threshold, input.Side)
	app.stateResponse(w, r, s, err)
}

func (app *Application) selectOnboardingHandler(w http.ResponseWriter, r *http.Request) {
	app.selectStop(w, r, planner.SideStart)
}

func (app *Application) selectOffboardingHandler(w http.ResponseWriter, r *http.Request) {
	app.selectStop(w, r, planner.SideDestination)
}

func (app *Application) selectStop(w http.ResponseWriter, r *http.Request, side planner.Side) {
	s := app.session(w, r)
	if s == nil {
		return
	}

	var input struct {
		StopID string `json:"stop_id"`
	}
	if err := app.readJSON(w, r, &input); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var err error
	if side == planner.SideStart {
		err = s.Planner.SelectOnboardingStop(input.StopID)
	} else {
		err = s.Planner.SelectOffboardingStop(input.StopID)
	}
	app.stateResponse(w, r, s, err)
}

func (app *Application) searchHandler(w http.ResponseWriter, r *http.Request) {
	s := app.session(w, r)
	if s == nil {
		return
	}
	_, err := s.Planner.SearchBusesForRoute(r.Context())
	app.stateResponse(w, r, s, err)
}

func (app *Application) setFiltersHandler(w http.ResponseWriter, r *http.Request) {
	s := app.session(w, r)
	if s == nil {
		return
	}

	var input filter.Config
	if err := app.readJSON(w, r, &input); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	app.stateResponse(w, r, s, s.Planner.SetFilters(input))
}

func (app *Application) clearFiltersHandler(w http.ResponseWriter, r *http.Request) {
	s := app.session(w, r)
	if s == nil {
		return
	}
	s.Planner.ClearAllFilters()
	app.stateResponse(w, r, s, nil)
}

func (app *Application) setSortHandler(w http.ResponseWriter, r *http.Request) {
	s := app.session(w, r)
	if s == nil {
		return
	}

	var input filter.SortConfig
	if err := app.readJSON(w, r, &input); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err := s.Planner.SetSortBy(input.By)
	if err == nil {
		err = s.Planner.SetSortOrder(input.Order)
	}
	app.stateResponse(w, r, s, err)
}

func (app *Application) resetHandler(w http.ResponseWriter, r *http.Request) {
	s := app.session(w, r)
	if s == nil {
		return
	}
	s.Planner.Reset()
	app.stateResponse(w, r, s, nil)
}

func (app *Application) resultsHandler(w http.ResponseWriter, r *http.Request) {
	s := app.session(w, r)
	if s == nil {
		return
	}
	results := s.Planner.DisplayedResults()
	app.respond(w, r, http.StatusOK, envelope{"results": results, "count": len(results)})
}
