// ABOUTME: Tests for the Badger key-value wrapper
// ABOUTME: Covers roundtrip, missing keys, delete, and reopen persistence
package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetDelete(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, err = store.Get([]byte("missing"))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set([]byte("cursor"), []byte("abc123")))
	value, err := store.Get([]byte("cursor"))
	require.NoError(t, err)
	assert.Equal(t, []byte("abc123"), value)

	require.NoError(t, store.Delete([]byte("cursor")))
	_, err = store.Get([]byte("cursor"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, store.Set([]byte("key"), []byte("value")))
	require.NoError(t, store.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	value, err := reopened.Get([]byte("key"))
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), value)
}
