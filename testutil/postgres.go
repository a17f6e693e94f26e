package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/onnwee/chat-panels/db"
)

// SetupTestDB opens TEST_PG_DSN, applies the schema and empties both tables.
// It skips the test when TEST_PG_DSN is not set.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	ctx := context.Background()
	if err := db.Migrate(ctx, database); err != nil {
		database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	for _, stmt := range []string{`DELETE FROM kv`, `DELETE FROM oauth_tokens`} {
		if _, err := database.ExecContext(ctx, stmt); err != nil {
			database.Close()
			t.Fatalf("reset %q: %v", stmt, err)
		}
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database
}
