package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewRunsMigrations(t *testing.T) {
	db, err := New(filepath.Join(t.TempDir(), "agent.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"kv_store", "peers"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.db")

	db, err := New(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = New(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NoError(t, db.Close())
}
