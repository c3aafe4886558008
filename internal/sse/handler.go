package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const writeTimeout = 60 * time.Second

// Handler serves the event stream at GET /api/v1/events.
//
// Query parameters:
//   - types: comma separated event name prefixes, e.g. "tag.,filters."
//   - last_event_id: fallback for clients that cannot set the Last-Event-ID header
type Handler struct {
	manager *Manager
	logger  *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(manager *Manager, logger *slog.Logger) *Handler {
	return &Handler{manager: manager, logger: logger}
}

// ServeHTTP streams events until the client goes away or the manager shuts down.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.Context().Err() != nil {
		return
	}

	sub := parseSubscription(r)

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		h.logger.Error("streaming unsupported", slog.String("error", err.Error()))
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	client, err := h.manager.Connect(sub)
	if err != nil {
		h.logger.Error("register event client", slog.String("error", err.Error()))
		http.Error(w, "Failed to establish connection", http.StatusInternalServerError)
		return
	}
	defer h.manager.Disconnect(client.ID)

	log := h.logger.With(slog.String("client_id", client.ID))
	out := &streamWriter{w: w, rc: rc}

	hello := map[string]any{"client_id": client.ID, "last_event_id": h.manager.LastEventID()}
	if err := out.write(0, "connected", hello); err != nil {
		log.Warn("send connected event", slog.String("error", err.Error()))
		return
	}

	for _, event := range client.Backlog {
		if err := out.write(event.ID, string(event.Type), event); err != nil {
			log.Info("client went away during replay")
			return
		}
	}

	ctx := r.Context()
	for {
		select {
		case event, ok := <-client.EventChan:
			if !ok {
				return
			}
			if err := out.write(event.ID, string(event.Type), event); err != nil {
				log.Info("client went away", slog.String("event_type", string(event.Type)))
				return
			}

		case <-client.Done:
			log.Debug("closed by manager")
			return

		case <-ctx.Done():
			log.Debug("request canceled")
			return
		}
	}
}

func parseSubscription(r *http.Request) Subscription {
	var sub Subscription

	for _, raw := range r.URL.Query()["types"] {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				sub.Types = append(sub.Types, t)
			}
		}
	}

	last := r.Header.Get("Last-Event-ID")
	if last == "" {
		last = r.URL.Query().Get("last_event_id")
	}
	if n, err := strconv.ParseUint(strings.TrimSpace(last), 10, 64); err == nil {
		sub.LastEventID = n
	}
	return sub
}

type streamWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// write emits one frame: an optional "id:" line, "event:", "data:", then a blank line.
func (s *streamWriter) write(eventID uint64, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	if eventID > 0 {
		if _, err := fmt.Fprintf(s.w, "id: %d\n", eventID); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil {
		return err
	}

	// Not every writer supports deadlines; httptest recorders do not.
	_ = s.rc.SetWriteDeadline(time.Now().Add(writeTimeout))
	return nil
}
