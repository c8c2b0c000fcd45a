// ABOUTME: Filesystem watcher that reports new snapshot versions as they land
// ABOUTME: Wraps fsnotify on the pointer file for host-side observers
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher delivers the pointer of each newly committed snapshot version. It
// watches the pointer file, which is always the last file written in a
// commit, so a notification implies the referenced files are complete.
type Watcher struct {
	store   *Store
	watcher *fsnotify.Watcher
	log     *slog.Logger

	// Versions receives the pointer of each committed version. Invalid or
	// unchanged pointer states are skipped.
	Versions chan *Pointer
}

// NewWatcher starts watching the store's directory for pointer updates.
func NewWatcher(ctx context.Context, store *Store) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsw.Add(store.Dir()); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", store.Dir(), err)
	}
	w := &Watcher{
		store:    store,
		watcher:  fsw,
		log:      store.log,
		Versions: make(chan *Pointer, 1),
	}
	go w.run(ctx)
	return w, nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.Versions)
	defer func() { _ = w.watcher.Close() }()

	lastVersion := 0
	if pointer, err := w.store.ReadPointer(); err == nil && pointer != nil {
		lastVersion = pointer.Version
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != pointerFile {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			pointer, err := w.store.ReadPointer()
			if err != nil || pointer == nil {
				continue
			}
			if pointer.Version <= lastVersion {
				continue
			}
			lastVersion = pointer.Version
			select {
			case w.Versions <- pointer:
			case <-ctx.Done():
				return
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("snapshot watcher error", "err", err)
		}
	}
}
