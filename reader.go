// ABOUTME: Read-only snapshot access for the OS-invoked directory extension
// ABOUTME: Fails closed to zero entries; the extension must always complete its request
package callsign

import (
	"log/slog"

	"github.com/harperreed/callsign/directory"
	"github.com/harperreed/callsign/models"
	"github.com/harperreed/callsign/snapshot"
)

// Reader is the extension-side view of the SDK. It opens only shared
// storage: no record cache, no KV state, nothing the sandbox would block.
type Reader struct {
	snapshots *snapshot.Store
	log       *slog.Logger
}

// NewReader opens the snapshot store for a namespace read-only. storageRoot
// must be the same shared container the host app committed into.
func NewReader(storageRoot, namespace string, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store, err := snapshot.NewStore(storageRoot, namespace, logger)
	if err != nil {
		return nil, err
	}
	return &Reader{snapshots: store, log: logger}, nil
}

// LoadEntries returns the committed directory entries, already in the strict
// ascending digit-key order the OS enumeration API requires. Any failure
// (missing pointer, missing files, integrity violation) yields an empty
// slice, never an error: the extension must complete the OS request, and
// serving nothing is safe where serving corrupt labels is not.
func (r *Reader) LoadEntries() []models.DirectoryEntry {
	entries, _, err := r.snapshots.Load()
	if err != nil {
		r.log.Warn("snapshot unreadable, serving empty directory", "err", err)
		return nil
	}
	if !directory.CheckStrictOrder(entries) {
		// The OS facility rejects non-increasing sequences outright.
		r.log.Warn("snapshot entries out of order, serving empty directory")
		return nil
	}
	return entries
}

// CurrentVersion returns the committed snapshot version, or 0 when none.
func (r *Reader) CurrentVersion() int {
	pointer, err := r.snapshots.ReadPointer()
	if err != nil || pointer == nil {
		return 0
	}
	return pointer.Version
}
