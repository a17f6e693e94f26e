package server

import (
	_ "embed"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/onnwee/chat-panels/kv"
	"github.com/onnwee/chat-panels/session"
	"github.com/onnwee/chat-panels/telemetry"
	"github.com/onnwee/chat-panels/twitchapi"
)

// Twitch returns the implicit-grant token in the URL fragment, which never
// reaches the server; this page forwards it to /auth/twitch/token.
//
//go:embed callback.html
var callbackPage []byte

// HandleTwitchOAuthStart stores the login form values and redirects to Twitch.
func (h *Handlers) HandleTwitchOAuthStart(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	if err := h.cfg.ValidateOAuthReady(); err != nil {
		http.Error(w, "oauth not configured (need TWITCH_CLIENT_ID + TWITCH_REDIRECT_URI)", http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	for key, val := range map[string]string{kv.KeyUsername: q.Get("username"), kv.KeyChannelName: q.Get("channel")} {
		if val = strings.TrimSpace(val); val == "" {
			continue
		}
		if err := h.kv.Set(r.Context(), key, val); err != nil {
			http.Error(w, "persist login form", http.StatusInternalServerError)
			return
		}
	}
	authURL, err := h.newAuthorizeURL()
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("build authorize url", slog.Any("err", err), slog.String("component", "oauth"))
		http.Error(w, "could not start oauth flow", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleTwitchOAuthCallback serves the page that posts the redirect fragment back.
func (h *Handlers) HandleTwitchOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	_, _ = w.Write(callbackPage)
}

type tokenRequest struct {
	Fragment    string `json:"fragment,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
	State       string `json:"state,omitempty"`
	Scope       string `json:"scope,omitempty"`
	Error       string `json:"error,omitempty"`
}

// HandleTwitchOAuthToken verifies the state, validates and persists the token,
// then starts the session with the stored username and channel.
func (h *Handlers) HandleTwitchOAuthToken(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	ctx := r.Context()
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "oauth"))

	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Fragment != "" {
		fp := twitchapi.ParseFragment(req.Fragment)
		req.AccessToken, req.State, req.Scope, req.Error = fp.AccessToken, fp.State, fp.Scope, fp.Error
	}
	if req.Error != "" {
		h.consumeOAuthState(req.State)
		writeJSONError(w, http.StatusUnauthorized, "authorization denied: "+req.Error)
		return
	}
	if !h.consumeOAuthState(req.State) {
		writeJSONError(w, http.StatusBadRequest, "invalid state")
		return
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		writeJSONError(w, http.StatusBadRequest, "missing access_token")
		return
	}

	tok := kv.Token{AccessToken: req.AccessToken, Scope: req.Scope}
	if h.validator != nil {
		val, err := h.validator.Validate(ctx, req.AccessToken)
		if errors.Is(err, twitchapi.ErrTokenInvalid) {
			writeJSONError(w, http.StatusUnauthorized, "token rejected by twitch")
			return
		}
		if err != nil {
			logger.Error("validate token", slog.Any("err", err))
			writeJSONError(w, http.StatusBadGateway, "token validation failed")
			return
		}
		tok.Scope = strings.Join(val.Scopes, " ")
		tok.ExpiresAt = val.ExpiresAt(time.Now())
		// The chat identity must match the token's owner.
		if val.Login != "" {
			stored := kv.GetString(ctx, h.kv, kv.KeyUsername, "")
			if !strings.EqualFold(stored, val.Login) {
				if stored != "" {
					logger.Warn("login form username differs from token owner; using token owner",
						slog.String("username", stored), slog.String("login", val.Login))
				}
				if err := h.kv.Set(ctx, kv.KeyUsername, val.Login); err != nil {
					logger.Warn("persist username", slog.Any("err", err))
				}
			}
		}
	}
	if err := h.tokens.SaveToken(ctx, tok); err != nil {
		logger.Error("save token", slog.Any("err", err))
		writeJSONError(w, http.StatusInternalServerError, "could not store token")
		return
	}
	logger.Info("twitch token stored", slog.Time("expires_at", tok.ExpiresAt))

	username := kv.GetString(ctx, h.kv, kv.KeyUsername, "")
	channel := kv.GetString(ctx, h.kv, kv.KeyChannelName, "")
	if username == "" || channel == "" {
		writeJSON(w, http.StatusOK, map[string]any{"status": "authorized"})
		return
	}
	st, err := h.sessions.Start(ctx, session.Params{Username: username, Channel: channel, Token: tok.AccessToken})
	if err != nil {
		logger.Error("start session after login", slog.Any("err", err))
		writeJSONError(w, http.StatusInternalServerError, "could not start session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "started", "session": st})
}
