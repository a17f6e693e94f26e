package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// Transport delivers inbound chat events. Each Run call owns exactly one
// subscription; it is fully torn down before Run returns.
type Transport interface {
	Run(ctx context.Context, deliver func(Event)) error
}

// TwitchConfig configures a TwitchTransport.
type TwitchConfig struct {
	Username  string // identity login
	Token     string // user access token, with or without the "oauth:" prefix
	Channel   string
	Reconnect bool
	Secure    bool
	// IrcAddress overrides the default tmi.twitch.tv address (tests, proxies).
	IrcAddress string
	Logger     *slog.Logger
}

// TwitchTransport reads a single channel through github.com/gempir/go-twitch-irc.
type TwitchTransport struct {
	cfg TwitchConfig

	// backoff bounds for reconnect attempts
	minBackoff time.Duration
	maxBackoff time.Duration
	// how long to wait for a disconnected client to return from Connect
	closeTimeout time.Duration
}

// NewTwitchTransport validates cfg and returns a transport.
func NewTwitchTransport(cfg TwitchConfig) (*TwitchTransport, error) {
	cfg.Username = strings.ToLower(strings.TrimSpace(cfg.Username))
	cfg.Channel = NormalizeChannel(cfg.Channel)
	if cfg.Username == "" || cfg.Channel == "" || strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("twitch transport requires username, token and channel")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &TwitchTransport{
		cfg:          cfg,
		minBackoff:   time.Second,
		maxBackoff:   30 * time.Second,
		closeTimeout: 5 * time.Second,
	}, nil
}

// NormalizeChannel lowercases and strips a leading '#'.
func NormalizeChannel(ch string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ch), "#"))
}

// Run connects and forwards private messages to deliver until ctx is done.
// With Reconnect set, dropped connections are retried with capped exponential backoff.
func (t *TwitchTransport) Run(ctx context.Context, deliver func(Event)) error {
	backoff := t.minBackoff
	for {
		err := t.runOnce(ctx, deliver)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !t.cfg.Reconnect {
			return err
		}
		t.cfg.Logger.Warn("twitch chat connection lost; reconnecting",
			slog.Any("err", err),
			slog.Duration("backoff", backoff),
			slog.String("channel", t.cfg.Channel),
			slog.String("component", "chat_transport"))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > t.maxBackoff {
			backoff = t.maxBackoff
		}
	}
}

func (t *TwitchTransport) runOnce(ctx context.Context, deliver func(Event)) error {
	client := twitch.NewClient(t.cfg.Username, ircPassword(t.cfg.Token))
	client.TLS = t.cfg.Secure
	if t.cfg.IrcAddress != "" {
		client.IrcAddress = t.cfg.IrcAddress
	}

	// live gates the handler so a client that is still shutting down cannot deliver.
	var live atomic.Bool
	live.Store(true)
	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		if !live.Load() {
			return
		}
		deliver(eventFromPrivateMessage(msg, t.cfg.Username, time.Now().UTC()))
	})
	client.OnConnect(func() {
		t.cfg.Logger.Info("connected to twitch chat", slog.String("channel", t.cfg.Channel), slog.String("component", "chat_transport"))
	})
	client.OnReconnectMessage(func(twitch.ReconnectMessage) {
		t.cfg.Logger.Info("twitch requested reconnect", slog.String("channel", t.cfg.Channel), slog.String("component", "chat_transport"))
	})
	client.Join(t.cfg.Channel)

	errCh := make(chan error, 1)
	go func() { errCh <- client.Connect() }()

	select {
	case <-ctx.Done():
		live.Store(false)
		if err := client.Disconnect(); err != nil {
			t.cfg.Logger.Debug("twitch disconnect", slog.Any("err", err), slog.String("component", "chat_transport"))
		}
		select {
		case <-errCh:
		case <-time.After(t.closeTimeout):
			t.cfg.Logger.Warn("twitch client did not stop in time", slog.String("component", "chat_transport"))
		}
		return ctx.Err()
	case err := <-errCh:
		live.Store(false)
		if err == nil {
			err = errors.New("twitch connection closed")
		}
		return fmt.Errorf("twitch connect: %w", err)
	}
}

func ircPassword(token string) string {
	token = strings.TrimSpace(token)
	if strings.HasPrefix(token, "oauth:") {
		return token
	}
	return "oauth:" + token
}

// eventFromPrivateMessage maps a PRIVMSG onto an Event. Badge versions come from
// the raw tag so non-numeric versions survive; the parsed map is a fallback.
func eventFromPrivateMessage(msg twitch.PrivateMessage, self string, now time.Time) Event {
	badges := ParseBadgeTag(msg.Tags["badges"])
	if badges == nil && len(msg.User.Badges) > 0 {
		badges = make(map[string]string, len(msg.User.Badges))
		for name, v := range msg.User.Badges {
			badges[name] = strconv.Itoa(v)
		}
	}
	login := msg.User.Name
	if login == "" {
		login = msg.Tags["login"]
	}
	return Event{
		Channel:     NormalizeChannel(msg.Channel),
		Username:    login,
		DisplayName: msg.User.DisplayName,
		Text:        msg.Message,
		Badges:      badges,
		Color:       msg.User.Color,
		Self:        self != "" && strings.EqualFold(login, self),
		ReceivedAt:  now,
	}
}
