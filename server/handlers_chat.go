package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/chat-panels/chat"
	"github.com/onnwee/chat-panels/session"
	"github.com/onnwee/chat-panels/telemetry"
)

const (
	sseBuffer    = 64
	sseHeartbeat = 15 * time.Second
)

// HandleView returns the render model as JSON.
func (h *Handlers) HandleView(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, h.sessions.View(r.Context()))
}

// HandleChatMessages returns the session's message store in arrival order.
// Params: since (seq, exclusive), limit (default 1000, newest kept).
func (h *Handlers) HandleChatMessages(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	msgs, err := h.sessions.Messages(r.Context())
	if errors.Is(err, session.ErrNoSession) {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	since := parseIntQuery(r, "since", 0)
	limit := parseIntQuery(r, "limit", 1000)
	if limit <= 0 || limit > 5000 {
		limit = 1000
	}
	out := make([]chat.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Seq > since {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleChatStream pushes accepted messages and view changes as Server-Sent Events.
func (h *Handlers) HandleChatStream(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	// The server's WriteTimeout would cut the stream.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	updates, unsubscribe := h.sessions.Subscribe(sseBuffer)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()
	enc := json.NewEncoder(w)
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case u, ok := <-updates:
			if !ok {
				return
			}
			if _, err := w.Write([]byte("event: " + string(u.Kind) + "\ndata: ")); err != nil {
				telemetry.LoggerWithCorr(ctx).Debug("sse client gone", slog.Any("err", err), slog.String("component", "http"))
				return
			}
			_ = enc.Encode(u)
			if _, err := w.Write([]byte("\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
