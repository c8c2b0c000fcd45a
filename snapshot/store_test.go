// ABOUTME: Tests for the two-phase-commit snapshot store
// ABOUTME: Covers round-trips, atomicity under interruption, tamper detection, and pruning
package snapshot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/callsign/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), "test", nil)
	require.NoError(t, err)
	return store
}

func sampleEntries() []models.DirectoryEntry {
	return []models.DirectoryEntry{
		{FullNumber: "+15551230001", DigitKey: "15551230001", Label: "Acme Corp"},
		{FullNumber: "+15551230002", DigitKey: "15551230002", Label: "Acme Corp (Delivery)"},
	}
}

func TestCommitAndLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	pointer, err := store.Commit(sampleEntries(), "cursor-1")
	require.NoError(t, err)
	assert.Equal(t, 1, pointer.Version)
	assert.Equal(t, 2, pointer.EntryCount)
	assert.Equal(t, "cursor-1", pointer.SinceCursor)

	entries, loaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, pointer.Version, loaded.Version)
	assert.Equal(t, sampleEntries(), entries)
}

func TestLoadWithoutCommitIsEmpty(t *testing.T) {
	store := newTestStore(t)

	entries, pointer, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, pointer)
	assert.Empty(t, entries)
}

func TestVersionsIncrease(t *testing.T) {
	store := newTestStore(t)

	for want := 1; want <= 3; want++ {
		pointer, err := store.Commit(sampleEntries(), "")
		require.NoError(t, err)
		assert.Equal(t, want, pointer.Version)
	}
}

func TestAtomicityInterruptedCommit(t *testing.T) {
	store := newTestStore(t)

	first, err := store.Commit(sampleEntries(), "cursor-1")
	require.NoError(t, err)

	// Simulate a process killed after temp files are written but before the
	// pointer update: stray temp files and even promoted canonical files for
	// the next version, with the old pointer still in place.
	require.NoError(t, os.WriteFile(
		filepath.Join(store.Dir(), "tmp-dead.payload.json.gz"), []byte("partial"), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(store.Dir(), payloadName(2)), []byte("partial payload"), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(store.Dir(), validatorName(2)), []byte("{"), 0o644))

	entries, pointer, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, pointer)
	assert.Equal(t, first.Version, pointer.Version)
	assert.Equal(t, sampleEntries(), entries)
}

func TestTamperDetection(t *testing.T) {
	store := newTestStore(t)

	pointer, err := store.Commit(sampleEntries(), "")
	require.NoError(t, err)

	payloadPath := filepath.Join(store.Dir(), pointer.PayloadPath)
	data, err := os.ReadFile(payloadPath)
	require.NoError(t, err)

	// Flip one byte in the middle of the committed payload.
	data[len(data)/2] ^= 0xFF
	require.NoError(t, os.WriteFile(payloadPath, data, 0o644))

	_, _, err = store.Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestValidatorCountMismatchFailsClosed(t *testing.T) {
	store := newTestStore(t)

	pointer, err := store.Commit(sampleEntries(), "")
	require.NoError(t, err)

	// Rewrite the validator with a wrong entry count but correct hash.
	validatorPath := filepath.Join(store.Dir(), pointer.ValidatorPath)
	data, err := os.ReadFile(validatorPath)
	require.NoError(t, err)
	tampered := []byte(string(data))
	tampered = replaceOnce(t, tampered, `"entry_count": 2`, `"entry_count": 3`)
	require.NoError(t, os.WriteFile(validatorPath, tampered, 0o644))

	_, _, err = store.Load()
	assert.ErrorIs(t, err, ErrIntegrity)
}

func replaceOnce(t *testing.T, data []byte, old, repl string) []byte {
	t.Helper()
	s := string(data)
	idx := strings.Index(s, old)
	require.GreaterOrEqual(t, idx, 0, "expected %q in validator", old)
	return []byte(s[:idx] + repl + s[idx+len(old):])
}

func TestCorruptPointerIsIntegrityError(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Commit(sampleEntries(), "")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.PointerPath(), []byte("not json"), 0o644))

	_, _, err = store.Load()
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestCommitAfterPointerLossKeepsVersionsMonotonic(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 2; i++ {
		_, err := store.Commit(sampleEntries(), "")
		require.NoError(t, err)
	}
	require.NoError(t, os.Remove(store.PointerPath()))

	pointer, err := store.Commit(sampleEntries(), "")
	require.NoError(t, err)
	assert.Equal(t, 3, pointer.Version, "versions must not restart after pointer loss")
}

func TestPruneKeepsRecentVersions(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 5; i++ {
		_, err := store.Commit(sampleEntries(), "")
		require.NoError(t, err)
	}

	names, err := filepath.Glob(filepath.Join(store.Dir(), "v*.validator.json"))
	require.NoError(t, err)
	assert.Len(t, names, DefaultKeepVersions)

	// Oldest surviving version is current - keep + 1.
	_, statErr := os.Stat(filepath.Join(store.Dir(), validatorName(2)))
	assert.True(t, os.IsNotExist(statErr), "version 2 should be pruned")
	_, statErr = os.Stat(filepath.Join(store.Dir(), validatorName(3)))
	assert.NoError(t, statErr)
}

func TestCommitLeavesNoTempFiles(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Commit(sampleEntries(), "")
	require.NoError(t, err)

	leftovers, err := filepath.Glob(filepath.Join(store.Dir(), "tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestEmptyEntriesCommit(t *testing.T) {
	store := newTestStore(t)

	pointer, err := store.Commit(nil, "")
	require.NoError(t, err)
	assert.Equal(t, 0, pointer.EntryCount)

	entries, _, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
