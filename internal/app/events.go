package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"planner.commuteway.org/internal/planner"
)

const keepAliveInterval = 15 * time.Second

// sessionEventsHandler streams every snapshot of a session as server-sent
// events named "state", starting with the current one. Snapshots published
// faster than the client reads are coalesced; only the newest is sent.
func (app *Application) sessionEventsHandler(w http.ResponseWriter, r *http.Request) {
	s := app.session(w, r)
	if s == nil {
		return
	}

	rc := http.NewResponseController(w)
	// The server write timeout would otherwise end the stream.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		app.serverErrorResponse(w, r, err)
		return
	}

	updates := make(chan planner.State, 1)
	sub := s.Planner.Subscribe(func(state planner.State) {
		for {
			select {
			case updates <- state:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer s.Planner.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	current := s.Planner.GetState()
	if err := writeStateEvent(w, current); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		app.Logger.Error("Event stream is not supported by the response writer", "error", err)
		return
	}
	lastVersion := current.Version

	app.Logger.Debug("Event stream opened", "session_id", s.ID)
	defer app.Logger.Debug("Event stream closed", "session_id", s.ID)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case state := <-updates:
			if state.Version <= lastVersion {
				continue
			}
			lastVersion = state.Version
			if err := writeStateEvent(w, state); err != nil {
				return
			}
		case <-keepAlive.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeStateEvent(w io.Writer, state planner.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: state\ndata: %s\n\n", state.Version, data)
	return err
}
