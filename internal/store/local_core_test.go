package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLocalStore(t *testing.T) {
	// Use in-memory database
	s, err := NewLocalStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	if s.db == nil {
		t.Error("Database connection is nil")
	}
	assert.Equal(t, ":memory:", s.Path())
}

func TestKVRoundTrip(t *testing.T) {
	ctx := context.Background()
	local, err := NewLocalStore(":memory:")
	require.NoError(t, err)

	for name, kv := range map[string]KV{"sqlite": local, "memory": NewMemoryKV()} {
		t.Run(name, func(t *testing.T) {
			defer kv.Close()

			_, ok, err := kv.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, kv.Put(ctx, "k", []byte(`{"day":"2026-10-16","count":1}`)))
			require.NoError(t, kv.Put(ctx, "k", []byte(`{"day":"2026-10-16","count":2}`)))

			got, ok, err := kv.Get(ctx, "k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.JSONEq(t, `{"day":"2026-10-16","count":2}`, string(got))

			require.NoError(t, kv.Delete(ctx, "k"))
			require.NoError(t, kv.Delete(ctx, "k"))
			_, ok, err = kv.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, kv.Close())
			_, _, err = kv.Get(ctx, "k")
			assert.ErrorIs(t, err, ErrClosed)
		})
	}
}

func TestLocalStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.db")

	s, err := NewLocalStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "usage", []byte("v1")))
	require.NoError(t, s.Close())

	reopened, err := NewLocalStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok, err := reopened.Get(ctx, "usage")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", string(got))
}

func TestMemoryKVCopiesValues(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	buf := []byte("abc")
	require.NoError(t, kv.Put(ctx, "k", buf))
	buf[0] = 'z'

	got, _, _ := kv.Get(ctx, "k")
	assert.Equal(t, "abc", string(got))
}
