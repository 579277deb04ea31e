package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrations_SetsVersionAndIsIdempotent(t *testing.T) {
	s, err := NewLocalStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	v, err := schemaVersion(s.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v)

	require.NoError(t, RunMigrations(s.db))
	v, err = schemaVersion(s.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v)
}

func TestRunMigrations_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := NewLocalStore(path)
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = NewLocalStore(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than this build")
}
