// Package session owns the single live chat session: its transport
// subscription, ingestion pipeline and render model. It also holds the
// process-wide layout and style settings.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/chat-panels/chat"
	"github.com/onnwee/chat-panels/kv"
	"github.com/onnwee/chat-panels/telemetry"
	"github.com/onnwee/chat-panels/twitchapi"
	"github.com/onnwee/chat-panels/view"
)

var (
	ErrNoSession     = errors.New("no active session")
	ErrInvalidParams = errors.New("username and channel are required")
	// ErrNoToken is returned by Start when no access token is supplied or stored.
	ErrNoToken = errors.New("no access token")
)

// Params identify a session.
type Params struct {
	Username string
	Channel  string
	Token    string
}

func (p Params) normalize() (Params, error) {
	p.Username = strings.ToLower(strings.TrimSpace(p.Username))
	p.Channel = chat.NormalizeChannel(p.Channel)
	p.Token = strings.TrimSpace(p.Token)
	if p.Username == "" || p.Channel == "" {
		return p, ErrInvalidParams
	}
	if p.Token == "" {
		return p, ErrNoToken
	}
	return p, nil
}

// ChannelInfo is the joined channel's public profile.
type ChannelInfo struct {
	Login       string `json:"login,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	LogoURL     string `json:"logo_url,omitempty"`
}

// Status describes the current session.
type Status struct {
	Active      bool        `json:"active"`
	ID          string      `json:"id,omitempty"`
	Username    string      `json:"username,omitempty"`
	Channel     string      `json:"channel,omitempty"`
	ChannelInfo ChannelInfo `json:"channel_info"`
	StartedAt   time.Time   `json:"started_at,omitempty"`
	Messages    int         `json:"messages"`
	Panels      int         `json:"panels"`
	Error       string      `json:"error,omitempty"`
}

// Settings are the persisted display settings.
type Settings struct {
	Layout view.Mode  `json:"layout"`
	Style  view.Style `json:"style"`
}

// UserLookup resolves Twitch logins; *twitchapi.HelixClient satisfies it.
type UserLookup interface {
	GetUser(ctx context.Context, login string) (*twitchapi.User, error)
}

// TransportFactory builds the chat transport for a session.
type TransportFactory func(p Params) (chat.Transport, error)

// Options configure a Manager.
type Options struct {
	KV            kv.Store
	Tokens        kv.TokenStore
	Users         UserLookup
	NewTransport  TransportFactory
	Logger        *slog.Logger
	Window        time.Duration // duplicate window
	AvatarTimeout time.Duration
}

// Manager owns at most one session.
type Manager struct {
	kv            kv.Store
	tokens        kv.TokenStore
	users         UserLookup
	newTransport  TransportFactory
	logger        *slog.Logger
	window        time.Duration
	avatarTimeout time.Duration
	hub           *Hub

	lifecycle sync.Mutex // serializes Start and Stop

	mu       sync.RWMutex
	current  *session
	settings Settings
}

// NewManager returns a Manager with default settings. Call LoadSettings to
// pick up persisted ones.
func NewManager(opts Options) *Manager {
	m := &Manager{
		kv:            opts.KV,
		tokens:        opts.Tokens,
		users:         opts.Users,
		newTransport:  opts.NewTransport,
		logger:        opts.Logger,
		window:        opts.Window,
		avatarTimeout: opts.AvatarTimeout,
		hub:           NewHub(),
		settings:      Settings{Layout: view.Grouped, Style: view.DefaultStyle()},
	}
	if m.kv == nil {
		m.kv = kv.NewMemory()
	}
	if m.tokens == nil {
		m.tokens = kv.NewMemory()
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.avatarTimeout <= 0 {
		m.avatarTimeout = 5 * time.Second
	}
	return m
}

// Hub exposes the update fan-out.
func (m *Manager) Hub() *Hub { return m.hub }

// Subscribe is shorthand for Hub().Subscribe.
func (m *Manager) Subscribe(buf int) (<-chan Update, func()) { return m.hub.Subscribe(buf) }

// LoadSettings reads layout and style from the kv store.
func (m *Manager) LoadSettings(ctx context.Context) Settings {
	mode, err := view.ParseMode(kv.GetString(ctx, m.kv, kv.KeyChatLayout, ""))
	if err != nil {
		mode = view.Grouped
	}
	def := view.DefaultStyle()
	style := view.Style{
		FontSize:       kv.GetInt(ctx, m.kv, kv.KeyFontSize, def.FontSize),
		BoxSize:        kv.GetInt(ctx, m.kv, kv.KeyBoxSize, def.BoxSize),
		ShowTimestamps: kv.GetBool(ctx, m.kv, kv.KeyShowTimestamps, def.ShowTimestamps),
	}.Clamp()

	m.mu.Lock()
	m.settings = Settings{Layout: mode, Style: style}
	m.mu.Unlock()
	return m.Settings()
}

// Settings returns the current display settings.
func (m *Manager) Settings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

func (m *Manager) active() *session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Start replaces the current session. The previous session is fully torn
// down before the new transport subscribes. An empty p.Token falls back to
// the stored token.
func (m *Manager) Start(ctx context.Context, p Params) (Status, error) {
	if strings.TrimSpace(p.Token) == "" {
		tok, ok, err := m.tokens.LoadToken(ctx)
		if err != nil {
			return Status{}, fmt.Errorf("load token: %w", err)
		}
		if ok {
			p.Token = tok.AccessToken
		}
	}
	p, err := p.normalize()
	if err != nil {
		return Status{}, err
	}
	if m.newTransport == nil {
		return Status{}, errors.New("session manager has no transport factory")
	}

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.teardown()

	tr, err := m.newTransport(p)
	if err != nil {
		return Status{}, fmt.Errorf("create transport: %w", err)
	}
	for key, val := range map[string]string{kv.KeyUsername: p.Username, kv.KeyChannelName: p.Channel} {
		if err := m.kv.Set(ctx, key, val); err != nil {
			m.logger.Warn("persist login setting", slog.String("key", key), slog.Any("err", err), slog.String("component", "session"))
		}
	}

	settings := m.Settings()
	// Sessions outlive the request that started them.
	s := startSession(context.WithoutCancel(ctx), p, sessionDeps{
		transport:     tr,
		users:         m.users,
		hub:           m.hub,
		logger:        m.logger,
		window:        m.window,
		avatarTimeout: m.avatarTimeout,
		mode:          settings.Layout,
		style:         settings.Style,
	})
	s.fetchChannelInfo(func(info ChannelInfo) {
		bg := context.Background()
		if info.DisplayName != "" {
			_ = m.kv.Set(bg, kv.KeyChannelDisplayName, info.DisplayName)
		}
		if info.LogoURL != "" {
			_ = m.kv.Set(bg, kv.KeyChannelLogoURL, info.LogoURL)
		}
	})

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()

	telemetry.SessionStarted()
	telemetry.SetSessionActive(true)
	telemetry.SetStoreMessages(0)
	telemetry.SetPanels(0)
	m.logger.Info("chat session started",
		slog.String("session_id", s.id),
		slog.String("username", p.Username),
		slog.String("channel", p.Channel),
		slog.String("component", "session"))
	m.hub.Publish(Update{Kind: UpdateView, SessionID: s.id})

	return m.Status(ctx), nil
}

// teardown stops the current session; callers hold lifecycle.
func (m *Manager) teardown() bool {
	m.mu.Lock()
	s := m.current
	m.current = nil
	m.mu.Unlock()
	if s == nil {
		return false
	}
	s.stop()
	telemetry.SetSessionActive(false)
	m.logger.Info("chat session stopped", slog.String("session_id", s.id), slog.String("component", "session"))
	return true
}

// Stop ends the current session.
func (m *Manager) Stop(_ context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if !m.teardown() {
		return ErrNoSession
	}
	m.hub.Publish(Update{Kind: UpdateView})
	return nil
}

// Close stops any session; used on shutdown.
func (m *Manager) Close() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	m.teardown()
}

// Resume starts a session from the stored username, channel and token.
// It reports false when any of them is missing.
func (m *Manager) Resume(ctx context.Context) (bool, error) {
	username := kv.GetString(ctx, m.kv, kv.KeyUsername, "")
	channel := kv.GetString(ctx, m.kv, kv.KeyChannelName, "")
	if username == "" || channel == "" {
		return false, nil
	}
	tok, ok, err := m.tokens.LoadToken(ctx)
	if err != nil {
		return false, fmt.Errorf("load token: %w", err)
	}
	if !ok {
		return false, nil
	}
	if _, err := m.Start(ctx, Params{Username: username, Channel: channel, Token: tok.AccessToken}); err != nil {
		return false, err
	}
	return true, nil
}

// InvalidateToken clears the stored token and stops the session. The next
// login goes through the authorize redirect again.
func (m *Manager) InvalidateToken(ctx context.Context) {
	if err := m.tokens.ClearToken(ctx); err != nil {
		m.logger.Warn("clear token", slog.Any("err", err), slog.String("component", "session"))
	}
	if err := m.Stop(ctx); err != nil && !errors.Is(err, ErrNoSession) {
		m.logger.Warn("stop session", slog.Any("err", err), slog.String("component", "session"))
	}
}

// Status describes the current session; Active is false when there is none.
func (m *Manager) Status(ctx context.Context) Status {
	s := m.active()
	if s == nil {
		return Status{}
	}
	var st Status
	if err := s.call(ctx, func() { st = s.status() }); err != nil {
		return Status{}
	}
	return st
}

// View returns a snapshot of the render model. Without a session it is an
// empty tree carrying the current settings.
func (m *Manager) View(ctx context.Context) view.View {
	if s := m.active(); s != nil {
		var v view.View
		if err := s.call(ctx, func() { v = s.model.Snapshot() }); err == nil {
			return v
		}
	}
	settings := m.Settings()
	return view.NewModel(settings.Layout, settings.Style).Snapshot()
}

// Messages returns the session's message store in arrival order.
func (m *Manager) Messages(ctx context.Context) ([]chat.ChatMessage, error) {
	s := m.active()
	if s == nil {
		return nil, ErrNoSession
	}
	var out []chat.ChatMessage
	if err := s.call(ctx, func() { out = s.pipeline.Store().All() }); err != nil {
		return nil, err
	}
	return out, nil
}

// SetLayout persists mode and re-renders the whole store under it.
func (m *Manager) SetLayout(ctx context.Context, mode view.Mode) (Settings, error) {
	if mode != view.Grouped && mode != view.Flat {
		return m.Settings(), fmt.Errorf("%w: %q", view.ErrUnknownMode, mode)
	}
	if err := m.kv.Set(ctx, kv.KeyChatLayout, string(mode)); err != nil {
		return m.Settings(), fmt.Errorf("persist layout: %w", err)
	}
	m.mu.Lock()
	changed := m.settings.Layout != mode
	m.settings.Layout = mode
	m.mu.Unlock()

	if s := m.active(); s != nil && changed {
		_ = s.call(ctx, func() {
			s.model.RenderAll(s.pipeline.Store().All(), mode)
			telemetry.SetPanels(s.model.PanelCount())
		})
	}
	m.hub.Publish(Update{Kind: UpdateView})
	return m.Settings(), nil
}

// ToggleLayout swaps between grouped and flat.
func (m *Manager) ToggleLayout(ctx context.Context) (Settings, error) {
	return m.SetLayout(ctx, m.Settings().Layout.Toggle())
}

// SetStyle clamps, persists and applies style.
func (m *Manager) SetStyle(ctx context.Context, style view.Style) (Settings, error) {
	style = style.Clamp()
	for key, val := range map[string]string{
		kv.KeyFontSize:       strconv.Itoa(style.FontSize),
		kv.KeyBoxSize:        strconv.Itoa(style.BoxSize),
		kv.KeyShowTimestamps: strconv.FormatBool(style.ShowTimestamps),
	} {
		if err := m.kv.Set(ctx, key, val); err != nil {
			return m.Settings(), fmt.Errorf("persist %s: %w", key, err)
		}
	}
	m.mu.Lock()
	m.settings.Style = style
	m.mu.Unlock()

	if s := m.active(); s != nil {
		_ = s.call(ctx, func() { s.model.Restyle(style) })
	}
	m.hub.Publish(Update{Kind: UpdateView})
	return m.Settings(), nil
}

// Step moves a size setting by delta steps.
func (m *Manager) Step(ctx context.Context, setting view.Setting, delta int) (Settings, error) {
	style, err := m.Settings().Style.Step(setting, delta)
	if err != nil {
		return m.Settings(), err
	}
	return m.SetStyle(ctx, style)
}

// StepFontSize grows (delta > 0) or shrinks the font.
func (m *Manager) StepFontSize(ctx context.Context, delta int) (Settings, error) {
	return m.Step(ctx, view.FontSize, delta)
}

// StepBoxSize grows (delta > 0) or shrinks panel width.
func (m *Manager) StepBoxSize(ctx context.Context, delta int) (Settings, error) {
	return m.Step(ctx, view.BoxSize, delta)
}

// ToggleTimestamps flips timestamp display.
func (m *Manager) ToggleTimestamps(ctx context.Context) (Settings, error) {
	style := m.Settings().Style
	style.ShowTimestamps = !style.ShowTimestamps
	return m.SetStyle(ctx, style)
}
