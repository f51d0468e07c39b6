package testutil

import (
	"database/sql"
	"testing"

	"github.com/sitevoice/sitevoice/internal/db"
)

// OpenTestDB opens an in-memory database with the schema applied.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()
	d, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	return d
}
