// ABOUTME: Tests for the group-handle registry file
// ABOUTME: Covers empty open, save/reopen roundtrip, and removal
package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMissingFileIsEmpty(t *testing.T) {
	reg, err := Open(t.TempDir(), "ns")
	require.NoError(t, err)
	assert.Equal(t, 0, reg.Len())

	_, found := reg.Lookup("nope")
	assert.False(t, found)
}

func TestSaveAndReopen(t *testing.T) {
	root := t.TempDir()
	syncedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	reg, err := Open(root, "ns")
	require.NoError(t, err)
	reg.Put("group-a", "handle-1", syncedAt)
	reg.Put("group-b", "handle-2", syncedAt)
	require.NoError(t, reg.Save())

	reopened, err := Open(root, "ns")
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Len())

	entry, found := reopened.Lookup("group-a")
	require.True(t, found)
	assert.Equal(t, "handle-1", entry.ExternalHandle)
	assert.Equal(t, syncedAt, entry.LastSyncedAt)
}

func TestRemove(t *testing.T) {
	root := t.TempDir()

	reg, err := Open(root, "ns")
	require.NoError(t, err)
	reg.Put("group-a", "handle-1", time.Now())
	reg.Remove("group-a")
	require.NoError(t, reg.Save())

	reopened, err := Open(root, "ns")
	require.NoError(t, err)
	_, found := reopened.Lookup("group-a")
	assert.False(t, found)
}

func TestNamespacesAreIsolated(t *testing.T) {
	root := t.TempDir()

	first, err := Open(root, "ns-one")
	require.NoError(t, err)
	first.Put("group-a", "handle-1", time.Now())
	require.NoError(t, first.Save())

	second, err := Open(root, "ns-two")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Len())
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	root := t.TempDir()

	reg, err := Open(root, "ns")
	require.NoError(t, err)
	reg.Put("group-a", "handle-1", time.Now())
	require.NoError(t, reg.Save())

	_, err = os.Stat(filepath.Join(root, "ns", "registry.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}
