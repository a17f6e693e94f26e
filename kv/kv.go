// Package kv is the small string key-value store that persists login form
// values, channel metadata and display settings across restarts.
package kv

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Keys persisted by the app.
const (
	KeyUsername           = "username"
	KeyChannelName        = "channelName"
	KeyChannelDisplayName = "channelDisplayName"
	KeyChannelLogoURL     = "channelLogoUrl"
	KeyChatLayout         = "chatLayout"
	KeyFontSize           = "fontSize"
	KeyBoxSize            = "boxSize"
	KeyShowTimestamps     = "showTimestamps"
)

// Store is a get/set string store. Get reports ok=false for missing keys.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Token is the persisted user access token.
type Token struct {
	AccessToken string
	Scope       string
	ExpiresAt   time.Time
}

// TokenStore persists the single user access token.
// LoadToken returns ok=false when none is stored.
type TokenStore interface {
	SaveToken(ctx context.Context, tok Token) error
	LoadToken(ctx context.Context) (tok Token, ok bool, err error)
	ClearToken(ctx context.Context) error
}

// Memory is an in-process Store and TokenStore, used when DB_DSN is unset and in tests.
type Memory struct {
	mu    sync.Mutex
	vals  map[string]string
	token *Token
}

func NewMemory() *Memory { return &Memory{vals: make(map[string]string)} }

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vals[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vals, key)
	return nil
}

func (m *Memory) SaveToken(_ context.Context, tok Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = &tok
	return nil
}

func (m *Memory) LoadToken(_ context.Context) (Token, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == nil {
		return Token{}, false, nil
	}
	return *m.token, true, nil
}

func (m *Memory) ClearToken(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = nil
	return nil
}

// GetString returns the value for key, or def when missing or on error.
func GetString(ctx context.Context, s Store, key, def string) string {
	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return def
	}
	return v
}

// GetInt parses an integer value, returning def when missing or unparsable.
func GetInt(ctx context.Context, s Store, key string, def int) int {
	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetBool parses a boolean value, returning def when missing or unparsable.
func GetBool(ctx context.Context, s Store, key string, def bool) bool {
	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
