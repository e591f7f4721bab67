// Package testing provides testing utilities and helpers for the simtrader project.
package testing

import (
	"os"
	"testing"

	"github.com/aristath/simtrader/internal/database"
	_ "modernc.org/sqlite"
)

// NewTestDB creates a temporary-file SQLite database with the simulator schema applied.
// The database is closed and removed when the test finishes; the returned cleanup
// function may also be called early and is idempotent.
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	// Temporary files (not :memory:) so every pooled connection sees the same database
	tmpFile, err := os.CreateTemp("", "test_"+name+"_*.db")
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileScratch,
		Name:    name,
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	closed := false
	cleanup := func() {
		if closed {
			return
		}
		closed = true
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
		for _, p := range []string{tmpPath, tmpPath + "-wal", tmpPath + "-shm"} {
			_ = os.Remove(p)
		}
	}
	t.Cleanup(cleanup)

	return db, cleanup
}
