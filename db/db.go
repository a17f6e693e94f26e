// Package db holds the Postgres connection, schema migration and the kv and
// token stores built on it.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/onnwee/chat-panels/crypto"
	"github.com/onnwee/chat-panels/kv"
)

// ProviderTwitch is the oauth_tokens row holding the user access token.
const ProviderTwitch = "twitch"

// Connect opens a Postgres connection pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("db: empty DSN")
	}
	dbx, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	dbx.SetMaxOpenConns(5)
	dbx.SetConnMaxIdleTime(5 * time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := dbx.PingContext(pingCtx); err != nil {
		_ = dbx.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return dbx, nil
}

// Migrate applies the schema with idempotent statements. It is the fallback
// when versioned migrations cannot run.
func Migrate(ctx context.Context, dbx *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS oauth_tokens (
			provider TEXT PRIMARY KEY,
			access_token TEXT,
			expires_at TIMESTAMPTZ,
			scope TEXT,
			updated_at TIMESTAMPTZ DEFAULT NOW(),
			encryption_version INTEGER DEFAULT 0,
			encryption_key_id TEXT
		)`,
		`ALTER TABLE oauth_tokens ADD COLUMN IF NOT EXISTS encryption_version INTEGER DEFAULT 0`,
		`ALTER TABLE oauth_tokens ADD COLUMN IF NOT EXISTS encryption_key_id TEXT`,
	}
	for i, s := range stmts {
		if _, err := dbx.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}

// KVStore implements kv.Store on the kv table.
type KVStore struct{ DB *sql.DB }

func (s *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	var v sql.NullString
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=$1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return v.String, true, nil
}

func (s *KVStore) Set(ctx context.Context, key, value string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO kv(key,value,updated_at) VALUES($1,$2,NOW())
		 ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`, key, value)
	if err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM kv WHERE key=$1`, key); err != nil {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

// TokenStore implements kv.TokenStore on oauth_tokens. With a non-nil Enc the
// access token is sealed (encryption_version=1); plaintext rows (version 0)
// remain readable.
type TokenStore struct {
	DB  *sql.DB
	Enc crypto.Encryptor
}

func (s *TokenStore) SaveToken(ctx context.Context, tok kv.Token) error {
	access := tok.AccessToken
	encVersion := 0
	keyID := ""
	if s.Enc != nil {
		sealed, err := crypto.EncryptString(s.Enc, access)
		if err != nil {
			return fmt.Errorf("encrypt access token: %w", err)
		}
		access = sealed
		encVersion = 1
		keyID = "default"
		if k, ok := s.Enc.(interface{ KeyID() string }); ok {
			keyID = k.KeyID()
		}
	}
	var expires sql.NullTime
	if !tok.ExpiresAt.IsZero() {
		expires = sql.NullTime{Time: tok.ExpiresAt, Valid: true}
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO oauth_tokens(provider, access_token, expires_at, scope, encryption_version, encryption_key_id, updated_at)
		 VALUES($1,$2,$3,$4,$5,$6,NOW())
		 ON CONFLICT(provider) DO UPDATE SET
		   access_token=EXCLUDED.access_token,
		   expires_at=EXCLUDED.expires_at,
		   scope=EXCLUDED.scope,
		   encryption_version=EXCLUDED.encryption_version,
		   encryption_key_id=EXCLUDED.encryption_key_id,
		   updated_at=NOW()`,
		ProviderTwitch, access, expires, tok.Scope, encVersion, keyID)
	return err
}

func (s *TokenStore) LoadToken(ctx context.Context) (kv.Token, bool, error) {
	var (
		access, scope sql.NullString
		expires       sql.NullTime
		encVersion    int
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT access_token, expires_at, scope, COALESCE(encryption_version, 0)
		 FROM oauth_tokens WHERE provider=$1`, ProviderTwitch).
		Scan(&access, &expires, &scope, &encVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return kv.Token{}, false, nil
	}
	if err != nil {
		return kv.Token{}, false, err
	}
	tok := kv.Token{AccessToken: access.String, Scope: scope.String}
	if expires.Valid {
		tok.ExpiresAt = expires.Time
	}
	if encVersion == 1 {
		if s.Enc == nil {
			return kv.Token{}, false, errors.New("token is encrypted but ENCRYPTION_KEY not configured")
		}
		plain, err := crypto.DecryptString(s.Enc, tok.AccessToken)
		if err != nil {
			return kv.Token{}, false, fmt.Errorf("decrypt access token: %w", err)
		}
		tok.AccessToken = plain
	}
	if tok.AccessToken == "" {
		return kv.Token{}, false, nil
	}
	return tok, true, nil
}

func (s *TokenStore) ClearToken(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE provider=$1`, ProviderTwitch)
	return err
}
