package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/getsentry/sentry-go"
	"planner.commuteway.org/internal/filter"
	"planner.commuteway.org/internal/models"
	"planner.commuteway.org/internal/report"
	"planner.commuteway.org/internal/utils"
)

const maxRequestBytes = 1 << 20

type envelope map[string]interface{}

func (app *Application) writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	js, err := json.Marshal(data)
	if err != nil {
		return err
	}
	js = append(js, '\n')

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	return err
}

// readJSON decodes a single JSON value into dst and rejects unknown fields.
// An empty body leaves dst untouched.
func (app *Application) readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var syntaxError *json.SyntaxError
		var typeError *json.UnmarshalTypeError
		var maxBytesError *http.MaxBytesError

		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &typeError):
			if typeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", typeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", typeError.Offset)
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			return fmt.Errorf("body contains unknown key %s", strings.TrimPrefix(err.Error(), "json: unknown field "))
		case errors.As(err, &maxBytesError):
			return fmt.Errorf("body must not be larger than %d bytes", maxBytesError.Limit)
		default:
			return err
		}
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}
	return nil
}

func (app *Application) errorResponse(w http.ResponseWriter, r *http.Request, status int, message interface{}) {
	app.respond(w, r, status, envelope{"error": message})
}

func (app *Application) respond(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if err := app.writeJSON(w, status, data); err != nil {
		app.Logger.Error("Failed to write response", "method", r.Method, "uri", r.URL.RequestURI(), "error", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (app *Application) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.Logger.Error("Request failed", "method", r.Method, "uri", r.URL.RequestURI(), "error", err)
	report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
		Tags:  utils.MakeMap("route", r.URL.Path),
		Level: sentry.LevelError,
		ExtraContext: map[string]interface{}{
			"method": r.Method,
		},
	})
	app.errorResponse(w, r, http.StatusInternalServerError, "the server encountered a problem and could not process your request")
}

func (app *Application) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.errorResponse(w, r, http.StatusBadRequest, err.Error())
}

func (app *Application) unprocessableResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.errorResponse(w, r, http.StatusUnprocessableEntity, err.Error())
}

func (app *Application) notFoundResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusNotFound, "the requested resource could not be found")
}

func (app *Application) methodNotAllowedResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusMethodNotAllowed, fmt.Sprintf("the %s method is not supported for this resource", r.Method))
}

// readFloat parses an optional float query parameter. It returns nil when
// the parameter is absent.
func readFloat(qs url.Values, key string) (*float64, error) {
	s := qs.Get(key)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%s must be a number", key)
	}
	return &v, nil
}

func readBool(qs url.Values, key string) (*bool, error) {
	s := qs.Get(key)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return nil, fmt.Errorf("%s must be true or false", key)
	}
	return &v, nil
}

// readCSV splits a comma separated parameter, dropping empty items.
func readCSV(qs url.Values, key string) []string {
	var out []string
	for _, v := range strings.Split(qs.Get(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// readCoordinate reads "<prefix>lat" and "<prefix>lng". ok is false when
// both are absent.
func readCoordinate(qs url.Values, prefix string) (c models.Coordinate, ok bool, err error) {
	lat, err := readFloat(qs, prefix+"lat")
	if err != nil {
		return c, false, err
	}
	lng, err := readFloat(qs, prefix+"lng")
	if err != nil {
		return c, false, err
	}
	switch {
	case lat == nil && lng == nil:
		return c, false, nil
	case lat == nil || lng == nil:
		return c, false, fmt.Errorf("%slat and %slng must be given together", prefix, prefix)
	}
	return models.Coordinate{Lat: *lat, Lng: *lng}, true, nil
}

// readFilterQuery reads the filter and sort parameters shared by the
// stateless search and the session endpoints.
func readFilterQuery(qs url.Values) (filter.Config, filter.SortConfig, error) {
	var (
		cfg filter.Config
		sc  filter.SortConfig
		err error
	)
	if cfg.AC, err = readBool(qs, "ac"); err != nil {
		return cfg, sc, err
	}
	cfg.CoachTypes = readCSV(qs, "coach_type")
	if cfg.MinJourneyKm, err = readFloat(qs, "min_journey_km"); err != nil {
		return cfg, sc, err
	}
	if cfg.MaxJourneyKm, err = readFloat(qs, "max_journey_km"); err != nil {
		return cfg, sc, err
	}
	if cfg.MaxWalkingKm, err = readFloat(qs, "max_walking_km"); err != nil {
		return cfg, sc, err
	}
	if sc.By, err = filter.ParseSortBy(qs.Get("sort_by")); err != nil {
		return cfg, sc, err
	}
	if sc.Order, err = filter.ParseOrder(qs.Get("sort_order")); err != nil {
		return cfg, sc, err
	}
	return cfg, sc, nil
}
