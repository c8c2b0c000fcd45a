// ABOUTME: Durable registry mapping group ids to external contact handles
// ABOUTME: One JSON file per namespace, read fully and written fully each cycle
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Entry records the external handle assigned when a managed contact group was
// first materialized, plus when it was last confirmed in sync.
type Entry struct {
	ExternalHandle string    `json:"external_handle"`
	LastSyncedAt   time.Time `json:"last_synced_at"`
}

// Registry is the in-memory view of one namespace's registry file. The bound
// on managed groups is small (low thousands), so full-file load/save per
// cycle is fine and keeps the file a single atomically replaceable unit.
type Registry struct {
	path    string
	entries map[string]Entry
}

// Open loads the registry file for a namespace, creating an empty registry
// when the file does not exist yet.
func Open(root, namespace string) (*Registry, error) {
	if root == "" || namespace == "" {
		return nil, fmt.Errorf("registry: empty root or namespace")
	}
	dir := filepath.Join(root, namespace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create registry dir: %w", err)
	}
	r := &Registry{
		path:    filepath.Join(dir, "registry.json"),
		entries: map[string]Entry{},
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

// Lookup returns the entry for a group id.
func (r *Registry) Lookup(groupID string) (Entry, bool) {
	entry, ok := r.entries[groupID]
	return entry, ok
}

// Put records (or refreshes) the handle for a group id. Call Save to persist.
func (r *Registry) Put(groupID, handle string, syncedAt time.Time) {
	r.entries[groupID] = Entry{ExternalHandle: handle, LastSyncedAt: syncedAt}
}

// Remove drops a group id. Call Save to persist.
func (r *Registry) Remove(groupID string) {
	delete(r.entries, groupID)
}

// GroupIDs returns all registered group ids.
func (r *Registry) GroupIDs() []string {
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of registered groups.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Save writes the whole registry back via tmp+rename so a crashed save never
// leaves a truncated file behind.
func (r *Registry) Save() error {
	data, err := json.MarshalIndent(r.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("failed to replace registry: %w", err)
	}
	return nil
}

func (r *Registry) load() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read registry: %w", err)
	}
	if err := json.Unmarshal(data, &r.entries); err != nil {
		return fmt.Errorf("failed to decode registry: %w", err)
	}
	if r.entries == nil {
		r.entries = map[string]Entry{}
	}
	return nil
}
