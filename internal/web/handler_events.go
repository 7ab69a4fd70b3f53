package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/vbonduro/diamondinv/internal/store"
)

const keepAliveInterval = 25 * time.Second

// stateEvent is the payload of every "state" event on the change stream.
type stateEvent struct {
	Action string      `json:"action"`
	State  store.State `json:"state"`
}

// handleEvents streams the store as server-sent events. The current state is
// sent first with action "snapshot"; every later change sends the new state.
// A slow client only ever receives the newest pending state.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// The stream outlives the server's write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("clear write deadline failed", "error", err)
	}

	pending := make(chan stateEvent, 1)
	unsubscribe := s.events.Subscribe(func(st store.State, action store.Action) {
		ev := stateEvent{Action: string(action), State: st}
		for {
			select {
			case pending <- ev:
				return
			default:
			}
			select {
			case <-pending:
			default:
			}
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := s.writeEvent(w, rc, stateEvent{Action: "snapshot", State: s.events.Snapshot()}); err != nil {
		return
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.done:
			if _, err := w.Write([]byte("event: done\ndata: {}\n\n")); err == nil {
				_ = rc.Flush()
			}
			return
		case ev := <-pending:
			if err := s.writeEvent(w, rc, ev); err != nil {
				s.logger.Debug("event stream closed", "error", err)
				return
			}
		case <-ticker.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeEvent(w http.ResponseWriter, rc *http.ResponseController, ev stateEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("encode state event failed", "error", err)
		return err
	}
	if _, err := w.Write([]byte("event: state\ndata: ")); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return err
	}
	return rc.Flush()
}
