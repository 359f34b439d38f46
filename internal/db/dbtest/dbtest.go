// Package dbtest opens throwaway, fully migrated databases for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/LoGit3X/peonyv0.1-sub001/internal/db"
	"go.uber.org/zap"
)

// Open returns a migrated database in t.TempDir(), closed on cleanup.
func Open(t testing.TB) *db.SQLite {
	t.Helper()
	ctx := context.Background()
	sqlite, err := db.New(ctx, db.Options{
		Path:         filepath.Join(t.TempDir(), "cafe_test.db"),
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 4,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(sqlite.Close)
	if _, err := sqlite.Migrate(ctx); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return sqlite
}
