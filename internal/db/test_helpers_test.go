package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "pigun.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}
