package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/chat-panels/kv"
	"github.com/onnwee/chat-panels/session"
	"github.com/onnwee/chat-panels/telemetry"
)

type loginRequest struct {
	Username string `json:"username"`
	Channel  string `json:"channel"`
}

// HandleSession dispatches GET (status), POST (login form) and DELETE (stop).
func (h *Handlers) HandleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.sessions.Status(r.Context()))
	case http.MethodPost:
		h.handleLogin(w, r)
	case http.MethodDelete:
		if err := h.sessions.Stop(r.Context()); err != nil {
			if errors.Is(err, session.ErrNoSession) {
				writeJSONError(w, http.StatusNotFound, err.Error())
				return
			}
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleLogin persists the form. With a stored token the session starts right
// away; without one the client is sent through the authorize redirect.
func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "session"))

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Channel = strings.TrimSpace(req.Channel)
	if req.Username == "" || req.Channel == "" {
		writeJSONError(w, http.StatusBadRequest, session.ErrInvalidParams.Error())
		return
	}
	for key, val := range map[string]string{kv.KeyUsername: req.Username, kv.KeyChannelName: req.Channel} {
		if err := h.kv.Set(ctx, key, val); err != nil {
			logger.Error("persist login form", slog.String("key", key), slog.Any("err", err))
			writeJSONError(w, http.StatusInternalServerError, "could not store login form")
			return
		}
	}

	st, err := h.sessions.Start(ctx, session.Params{Username: req.Username, Channel: req.Channel})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, st)
	case errors.Is(err, session.ErrNoToken):
		h.writeAuthRequired(w, r)
	case errors.Is(err, session.ErrInvalidParams):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error("start session", slog.Any("err", err))
		writeJSONError(w, http.StatusInternalServerError, "could not start session")
	}
}

func (h *Handlers) writeAuthRequired(w http.ResponseWriter, r *http.Request) {
	authURL, err := h.newAuthorizeURL()
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Warn("authorize url unavailable", slog.Any("err", err), slog.String("component", "oauth"))
		writeJSON(w, http.StatusUnauthorized, map[string]string{"status": "auth_required", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusUnauthorized, map[string]string{"status": "auth_required", "authorize_url": authURL})
}
