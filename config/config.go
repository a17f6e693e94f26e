// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For the Twitch login flow, use ValidateOAuthReady.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultHTTPAddr              = ":8080"
	DefaultScopes                = "chat:read chat:edit"
	DefaultDuplicateWindow       = 5 * time.Second
	DefaultAvatarLookupTimeout   = 5 * time.Second
	DefaultTokenValidateInterval = time.Hour
	DefaultRateLimitRequests     = 20
	DefaultRateLimitWindow       = time.Minute
)

type Config struct {
	// Twitch
	TwitchClientID     string
	TwitchClientSecret string
	TwitchRedirectURI  string
	TwitchScopes       string
	TwitchIRCAddress   string // empty means tmi.twitch.tv
	ChatReconnect      bool
	ChatTLS            bool

	// Chat
	DuplicateWindow       time.Duration
	AvatarLookupTimeout   time.Duration
	TokenValidateInterval time.Duration

	// Database; empty keeps settings and token in memory
	DBDsn         string
	EncryptionKey string

	// HTTP
	HTTPAddr           string
	CORSPermissive     bool
	CORSAllowedOrigins []string
	RateLimitEnabled   bool
	RateLimitRequests  int
	RateLimitWindow    time.Duration
}

// Load reads environment variables and applies defaults. It doesn't fail if Twitch creds are missing;
// use ValidateOAuthReady() when the login flow is required. Malformed durations, integers and booleans are errors.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")
	cfg.TwitchRedirectURI = os.Getenv("TWITCH_REDIRECT_URI")
	cfg.TwitchScopes = os.Getenv("TWITCH_SCOPES")
	if cfg.TwitchScopes == "" {
		cfg.TwitchScopes = DefaultScopes
	}
	cfg.TwitchIRCAddress = os.Getenv("TWITCH_IRC_ADDRESS")

	var err error
	if cfg.ChatReconnect, err = envBool("CHAT_RECONNECT", true); err != nil {
		return nil, err
	}
	if cfg.ChatTLS, err = envBool("TWITCH_IRC_TLS", true); err != nil {
		return nil, err
	}
	if cfg.DuplicateWindow, err = envDuration("CHAT_DUPLICATE_WINDOW", DefaultDuplicateWindow); err != nil {
		return nil, err
	}
	if cfg.AvatarLookupTimeout, err = envDuration("AVATAR_LOOKUP_TIMEOUT", DefaultAvatarLookupTimeout); err != nil {
		return nil, err
	}
	if cfg.TokenValidateInterval, err = envDuration("TOKEN_VALIDATE_INTERVAL", DefaultTokenValidateInterval); err != nil {
		return nil, err
	}

	// DB
	cfg.DBDsn = os.Getenv("DB_DSN")
	cfg.EncryptionKey = os.Getenv("ENCRYPTION_KEY")

	// HTTP
	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.CORSPermissive, err = envBool("CORS_PERMISSIVE", false); err != nil {
		return nil, err
	}
	for _, origin := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, origin)
		}
	}
	if cfg.RateLimitEnabled, err = envBool("RATE_LIMIT_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.RateLimitRequests, err = envInt("RATE_LIMIT_REQUESTS", DefaultRateLimitRequests); err != nil {
		return nil, err
	}
	if cfg.RateLimitWindow, err = envDuration("RATE_LIMIT_WINDOW", DefaultRateLimitWindow); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ValidateOAuthReady checks the settings the implicit-grant login needs.
func (c *Config) ValidateOAuthReady() error {
	var missing []string
	if c.TwitchClientID == "" {
		missing = append(missing, "TWITCH_CLIENT_ID")
	}
	if c.TwitchRedirectURI == "" {
		missing = append(missing, "TWITCH_REDIRECT_URI")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing twitch oauth env: require %s", strings.Join(missing, ", "))
	}
	return nil
}

// HasAppCredentials reports whether an app access token can be minted for Helix lookups.
func (c *Config) HasAppCredentials() bool {
	return c.TwitchClientID != "" && c.TwitchClientSecret != ""
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s (duration): %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s (integer): %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s (boolean): %w", key, err)
	}
	return b, nil
}
