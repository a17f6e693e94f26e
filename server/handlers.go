package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/onnwee/chat-panels/config"
	"github.com/onnwee/chat-panels/kv"
	"github.com/onnwee/chat-panels/session"
	"github.com/onnwee/chat-panels/twitchapi"
)

const (
	// Maximum number of OAuth states to keep in memory
	maxOAuthStates = 10000
	oauthStateTTL  = 10 * time.Minute
)

var errTooManyStates = errors.New("too many pending oauth states")

// TokenValidator checks a user access token with the identity provider.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*twitchapi.Validation, error)
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	ctx       context.Context
	cfg       *config.Config
	sessions  *session.Manager
	kv        kv.Store
	tokens    kv.TokenStore
	validator TokenValidator
	db        *sql.DB
	cors      *corsConfig

	stateStore map[string]time.Time
	stateMu    sync.RWMutex
}

// NewHandlers creates a new Handlers instance with the given dependencies.
// ctx ends long-lived streams when the server shuts down.
func NewHandlers(ctx context.Context, deps Deps) *Handlers {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	return &Handlers{
		ctx:        ctx,
		cfg:        cfg,
		sessions:   deps.Sessions,
		kv:         deps.KV,
		tokens:     deps.Tokens,
		validator:  deps.Validator,
		db:         deps.DB,
		cors:       corsConfigFrom(cfg),
		stateStore: make(map[string]time.Time),
	}
}

// cleanExpiredStates removes expired OAuth states from the store.
// This should be called with stateMu locked.
func (h *Handlers) cleanExpiredStates() {
	now := time.Now()
	for state, expiry := range h.stateStore {
		if now.After(expiry) {
			delete(h.stateStore, state)
		}
	}
}

// addOAuthState adds a new OAuth state to the store with cleanup if needed.
func (h *Handlers) addOAuthState(state string, expiry time.Time) error {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	// Clean expired states periodically to prevent unbounded growth
	if len(h.stateStore)%100 == 0 {
		h.cleanExpiredStates()
	}
	if len(h.stateStore) >= maxOAuthStates {
		return errTooManyStates
	}
	h.stateStore[state] = expiry
	return nil
}

// consumeOAuthState reports whether state was issued and unexpired; it is single use.
func (h *Handlers) consumeOAuthState(state string) bool {
	if state == "" {
		return false
	}
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	exp, ok := h.stateStore[state]
	if !ok {
		return false
	}
	delete(h.stateStore, state)
	return time.Now().Before(exp)
}

// newAuthorizeURL issues a CSRF state and builds the implicit-grant redirect.
func (h *Handlers) newAuthorizeURL() (string, error) {
	if err := h.cfg.ValidateOAuthReady(); err != nil {
		return "", err
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	st := hex.EncodeToString(b)
	if err := h.addOAuthState(st, time.Now().Add(oauthStateTTL)); err != nil {
		return "", err
	}
	return twitchapi.BuildImplicitAuthorizeURL(h.cfg.TwitchClientID, h.cfg.TwitchRedirectURI, h.cfg.TwitchScopes, st)
}
