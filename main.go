// Command chat-panels serves the Twitch chat panels viewer.
// It:
//   - Loads configuration and initializes structured logging.
//   - Opens Postgres when DB_DSN is set (settings and the OAuth token survive
//     restarts); otherwise keeps everything in memory.
//   - Resumes the last session if a username, channel and token are stored.
//   - Validates the stored Twitch token hourly and drops it once revoked.
//   - Exposes the HTTP API, the /view/ws render stream and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/chat-panels/chat"
	"github.com/onnwee/chat-panels/config"
	"github.com/onnwee/chat-panels/crypto"
	"github.com/onnwee/chat-panels/db"
	"github.com/onnwee/chat-panels/kv"
	"github.com/onnwee/chat-panels/oauth"
	"github.com/onnwee/chat-panels/server"
	"github.com/onnwee/chat-panels/session"
	"github.com/onnwee/chat-panels/telemetry"
	"github.com/onnwee/chat-panels/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Tracing is optional; it requires OTEL_EXPORTER_OTLP_ENDPOINT.
	shutdown, err := telemetry.InitTracing("chat-panels", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("exited with error", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

func run(ctx context.Context, cfg *config.Config) error {
	database, store, tokens, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	if database != nil {
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
	}

	helix := &twitchapi.HelixClient{ClientID: cfg.TwitchClientID}
	if cfg.HasAppCredentials() {
		helix.Tokens = &twitchapi.AppTokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret}
		slog.Info("helix lookups use an app access token", slog.String("component", "twitchapi"))
	} else {
		helix.Tokens = storedToken{tokens}
	}

	manager := session.NewManager(session.Options{
		KV:     store,
		Tokens: tokens,
		Users:  helix,
		NewTransport: func(p session.Params) (chat.Transport, error) {
			t, err := chat.NewTwitchTransport(chat.TwitchConfig{
				Username:   p.Username,
				Token:      p.Token,
				Channel:    p.Channel,
				Reconnect:  cfg.ChatReconnect,
				Secure:     cfg.ChatTLS,
				IrcAddress: cfg.TwitchIRCAddress,
			})
			if err != nil {
				return nil, err
			}
			return t, nil
		},
		Window:        cfg.DuplicateWindow,
		AvatarTimeout: cfg.AvatarLookupTimeout,
	})
	defer manager.Close()

	settings := manager.LoadSettings(ctx)
	slog.Info("settings loaded", slog.String("layout", settings.Layout.String()),
		slog.Int("font_size", settings.Style.FontSize), slog.Int("box_size", settings.Style.BoxSize))

	if resumed, err := manager.Resume(ctx); err != nil {
		slog.Warn("session resume failed", slog.Any("err", err))
	} else if resumed {
		slog.Info("previous session resumed")
	}

	validator := &twitchapi.Validator{}
	oauth.StartValidator(ctx, cfg.TokenValidateInterval, func(vctx context.Context) error {
		tok, ok, err := tokens.LoadToken(vctx)
		if err != nil || !ok {
			return err
		}
		_, err = validator.Validate(vctx, tok.AccessToken)
		return err
	}, manager.InvalidateToken)

	if os.Getenv("ENABLE_PPROF") == "1" {
		startPprof()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx, server.Deps{
			Config:    cfg,
			Sessions:  manager,
			KV:        store,
			Tokens:    tokens,
			Validator: validator,
			DB:        database,
		}, cfg.HTTPAddr)
	})
	return g.Wait()
}

// openStorage returns Postgres-backed stores when DB_DSN is set and in-memory
// ones otherwise. database is nil in the latter case.
func openStorage(ctx context.Context, cfg *config.Config) (*sql.DB, kv.Store, kv.TokenStore, error) {
	if cfg.DBDsn == "" {
		slog.Info("DB_DSN not set; settings and tokens are kept in memory", slog.String("component", "db"))
		mem := kv.NewMemory()
		return nil, mem, mem, nil
	}

	var enc crypto.Encryptor
	if cfg.EncryptionKey != "" {
		aes, err := crypto.NewAESEncryptor(cfg.EncryptionKey)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("encryption key: %w", err)
		}
		enc = aes
	} else {
		slog.Warn("ENCRYPTION_KEY not set; oauth tokens are stored in plaintext", slog.String("component", "db"))
	}

	database, err := db.Connect(ctx, cfg.DBDsn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open db: %w", err)
	}
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.Setup(ctx, database); err != nil {
		_ = database.Close()
		return nil, nil, nil, fmt.Errorf("migrate db: %w", err)
	}
	return database, &db.KVStore{DB: database}, &db.TokenStore{DB: database, Enc: enc}, nil
}

// storedToken serves Helix calls with the signed-in user's token when no app
// credentials are configured.
type storedToken struct{ tokens kv.TokenStore }

func (s storedToken) Token(ctx context.Context) (string, error) {
	tok, ok, err := s.tokens.LoadToken(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.New("no twitch token stored")
	}
	return tok.AccessToken, nil
}

func startPprof() {
	addr := os.Getenv("PPROF_ADDR")
	if addr == "" {
		addr = "localhost:6060"
	}
	go func() {
		slog.Info("pprof profiling enabled", slog.String("addr", addr))
		srv := &http.Server{
			Addr:              addr,
			Handler:           nil, // default mux exposes /debug/pprof
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("pprof server error", slog.Any("err", err))
		}
	}()
}
