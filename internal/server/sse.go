package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"sheetwright/internal/events"
	"sheetwright/internal/logging"
)

const keepAliveInterval = 15 * time.Second

// handleEvents streams bus events as server-sent events. The first message
// is a "snapshot" so late subscribers can render the current state.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	sub := s.sess.Bus.Subscribe(events.DefaultBuffer)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeSSE(w, 0, "snapshot", s.sess.Pipeline.Snapshot()); err != nil {
		return
	}
	flusher.Flush()

	s.stream(r.Context(), w, flusher, sub)
}

// stream relays sub until ctx ends or the bus closes. When the subscriber
// has missed events it sends a "resync" carrying the snapshot and the full
// run log, which replaces what the client has rendered so far.
func (s *Server) stream(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sub *events.Subscription) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	var dropped uint64
	resync := func() error {
		d := sub.Dropped()
		if d == dropped {
			return nil
		}
		dropped = d
		logging.ServerWarn("event stream missed %d event(s), resyncing", d)
		return writeSSE(w, 0, "resync", map[string]any{
			"snapshot": s.sess.Pipeline.Snapshot(),
			"entries":  s.sess.Pipeline.Logs(),
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := resync(); err != nil {
				return
			}
			flusher.Flush()
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			if err := writeSSE(w, e.ID, string(e.Kind), e); err != nil {
				return
			}
			if err := resync(); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, id uint64, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if id > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", id); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
