// Command migrate-tokens seals plaintext OAuth tokens stored before
// ENCRYPTION_KEY was configured.
//
// Rows with encryption_version=0 are re-written as version 1 (AES-256-GCM).
//
// Usage:
//
//	migrate-tokens [--dry-run] [--provider twitch]
//
// Environment Variables:
//
//	DB_DSN: Database connection string (required)
//	ENCRYPTION_KEY: Base64-encoded 32-byte encryption key (required)
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/onnwee/chat-panels/crypto"
	"github.com/onnwee/chat-panels/db"
)

type tokenRow struct {
	Provider    string
	AccessToken string
}

type result struct {
	Found    int
	Migrated int
	Errors   int
}

func main() {
	dryRun := flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	provider := flag.String("provider", "", "Migrate a single provider row only (default: all)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		slog.Error("DB_DSN environment variable is required")
		os.Exit(1)
	}
	encryptor, err := crypto.NewAESEncryptor(os.Getenv("ENCRYPTION_KEY"))
	if err != nil {
		slog.Error("failed to initialize encryptor", slog.Any("error", err))
		os.Exit(1)
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, dsn)
	if err != nil {
		slog.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer database.Close()

	res, err := migrateTokens(ctx, database, encryptor, *dryRun, *provider)
	if err != nil {
		slog.Error("migration failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("migration summary",
		slog.Int("found", res.Found),
		slog.Int("migrated", res.Migrated),
		slog.Int("errors", res.Errors),
		slog.Bool("dry_run", *dryRun))
	if res.Errors > 0 {
		os.Exit(1)
	}
}

// migrateTokens seals every plaintext row, optionally only the one for provider.
func migrateTokens(ctx context.Context, database *sql.DB, enc *crypto.AESEncryptor, dryRun bool, provider string) (result, error) {
	query := `SELECT provider, COALESCE(access_token, '') FROM oauth_tokens WHERE COALESCE(encryption_version, 0) = 0`
	var args []any
	if provider != "" {
		query += " AND provider = $1"
		args = append(args, provider)
	}
	query += " ORDER BY provider"

	rows, err := database.QueryContext(ctx, query, args...)
	if err != nil {
		return result{}, fmt.Errorf("query plaintext tokens: %w", err)
	}
	var tokens []tokenRow
	for rows.Next() {
		var tr tokenRow
		if err := rows.Scan(&tr.Provider, &tr.AccessToken); err != nil {
			rows.Close()
			return result{}, fmt.Errorf("scan token row: %w", err)
		}
		tokens = append(tokens, tr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return result{}, fmt.Errorf("iterate token rows: %w", err)
	}

	res := result{Found: len(tokens)}
	for _, tr := range tokens {
		logger := slog.With(slog.String("provider", tr.Provider))
		if dryRun {
			logger.Info("would migrate token (dry-run)")
			res.Migrated++
			continue
		}
		if err := sealToken(ctx, database, enc, tr); err != nil {
			logger.Error("failed to migrate token", slog.Any("error", err))
			res.Errors++
			continue
		}
		logger.Info("migrated token")
		res.Migrated++
	}
	return res, nil
}

func sealToken(ctx context.Context, database *sql.DB, enc *crypto.AESEncryptor, tr tokenRow) error {
	sealed := ""
	if tr.AccessToken != "" {
		var err error
		sealed, err = crypto.EncryptString(enc, tr.AccessToken)
		if err != nil {
			return fmt.Errorf("encrypt access token: %w", err)
		}
	}
	res, err := database.ExecContext(ctx,
		`UPDATE oauth_tokens
		 SET access_token = $1, encryption_version = 1, encryption_key_id = $2, updated_at = NOW()
		 WHERE provider = $3 AND COALESCE(encryption_version, 0) = 0`,
		sealed, enc.KeyID(), tr.Provider)
	if err != nil {
		return fmt.Errorf("update token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("expected 1 row updated, got %d (token may have been modified concurrently)", n)
	}
	return nil
}
