// Package testutil provides shared test helpers for data directories and the state database.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/newsletter-scanner/internal/state"
	"github.com/starford/newsletter-scanner/internal/storage"
)

// TestDB creates a temporary state database that is automatically cleaned up.
func TestDB(t *testing.T) *state.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "scanner-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := state.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestDataDir creates a temporary data directory and a Store writing into it.
func TestDataDir(t *testing.T) (*storage.FS, *storage.Store) {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return fs, storage.NewStore(fs, QuietLogger())
}

// QuietLogger returns a logger that discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
