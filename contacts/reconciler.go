// ABOUTME: Reconciles desired managed-contact groups against the external contacts store
// ABOUTME: Recreate-style upserts with vanished-record recovery and stale-group cleanup
package contacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/harperreed/callsign/models"
	"github.com/harperreed/callsign/registry"
)

// PhotoFetcher resolves a logo URL to ready-to-apply image bytes. Satisfied
// by images.Fetcher. A nil fetcher disables photos entirely.
type PhotoFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Reconciler drives the external contacts store toward the desired group set.
// Groups are processed sequentially; the underlying store serializes writes
// per process anyway, and per-group failures must stay isolated.
type Reconciler struct {
	store    ExternalStore
	registry *registry.Registry
	photos   PhotoFetcher
	log      *slog.Logger
	now      func() time.Time

	maxPerContact int
	maxProfiles   int
}

// Config for NewReconciler. Zero caps fall back to the package defaults.
type Config struct {
	Store                     ExternalStore
	Registry                  *registry.Registry
	Photos                    PhotoFetcher
	Logger                    *slog.Logger
	MaxPhoneNumbersPerContact int
	MaxProfiles               int
}

func NewReconciler(cfg Config) (*Reconciler, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("contacts: external store is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("contacts: registry is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:         cfg.Store,
		registry:      cfg.Registry,
		photos:        cfg.Photos,
		log:           logger,
		now:           time.Now,
		maxPerContact: cfg.MaxPhoneNumbersPerContact,
		maxProfiles:   cfg.MaxProfiles,
	}, nil
}

// Reconcile computes the desired groups for the record set and applies the
// minimal create/update/delete operations. Per-group failures are tallied,
// never fatal; only a registry save failure aborts, since losing the handle
// map would make every future cycle recreate everything.
func (r *Reconciler) Reconcile(ctx context.Context, records []models.BrandingRecord) (models.ReconcileReport, error) {
	desired := BuildGroups(records, r.maxPerContact, r.maxProfiles)
	report := models.ReconcileReport{Desired: len(desired)}

	desiredIDs := make(map[string]bool, len(desired))
	for _, group := range desired {
		desiredIDs[group.GroupID] = true
	}

	for _, group := range desired {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		outcome, err := r.reconcileGroup(ctx, group)
		if err != nil {
			report.GroupFailures++
			r.log.Warn("group reconcile failed",
				"brand", group.BrandName, "group_id", group.GroupID, "err", err)
			continue
		}
		switch outcome {
		case outcomeUnchanged:
			report.Unchanged++
		case outcomeUpserted:
			report.Upserted++
		case outcomeUpsertedNoPhoto:
			report.Upserted++
			report.PhotoFailures++
		}
	}

	report.Deleted = r.cleanupStale(ctx, desiredIDs)

	if err := r.registry.Save(); err != nil {
		return report, fmt.Errorf("failed to save registry: %w", err)
	}
	return report, nil
}

type groupOutcome int

const (
	outcomeUnchanged groupOutcome = iota
	outcomeUpserted
	outcomeUpsertedNoPhoto
)

func (r *Reconciler) reconcileGroup(ctx context.Context, group models.ManagedContactGroup) (groupOutcome, error) {
	target := Fields{
		Name:         group.BrandName,
		PhoneNumbers: append([]string(nil), group.PhoneNumbers...),
		Marker:       group.GroupID,
		LogoURL:      group.LogoURL,
	}

	prior, hasPrior := r.registry.Lookup(group.GroupID)
	if hasPrior {
		existing, err := r.store.Fetch(ctx, prior.ExternalHandle)
		switch {
		case errors.Is(err, ErrRecordGone):
			// The record vanished underneath us. Drop the stale mapping and
			// fall through to a fresh create.
			r.registry.Remove(group.GroupID)
			hasPrior = false
		case err != nil:
			return 0, fmt.Errorf("failed to fetch existing record: %w", err)
		case fieldsMatch(existing, target):
			r.registry.Put(group.GroupID, prior.ExternalHandle, r.now())
			return outcomeUnchanged, nil
		}
	}

	photo := r.fetchPhoto(ctx, group.LogoURL)

	if hasPrior {
		// Full recreate rather than a diff-update: delete first, then insert
		// fresh. A handle that is already gone counts as success.
		if err := r.store.Delete(ctx, prior.ExternalHandle); err != nil && !errors.Is(err, ErrRecordGone) {
			return 0, fmt.Errorf("failed to delete outdated record: %w", err)
		}
		r.registry.Remove(group.GroupID)
	}

	handle, err := r.createWithMarker(ctx, target)
	if err != nil {
		return 0, err
	}

	outcome := outcomeUpserted
	if photo != nil {
		if err := r.store.SetPhoto(ctx, handle, photo); err != nil {
			// The record exists and is correct without its image; report the
			// photo separately rather than failing the group.
			r.log.Warn("failed to set contact photo", "brand", group.BrandName, "err", err)
			outcome = outcomeUpsertedNoPhoto
		}
	} else if group.LogoURL != "" && r.photos != nil {
		outcome = outcomeUpsertedNoPhoto
	}

	r.registry.Put(group.GroupID, handle, r.now())
	return outcome, nil
}

// createWithMarker inserts the record and resolves its authoritative handle.
// Create is not guaranteed to return a handle on every platform, so the
// fallback is a marker-field lookup of the record just written.
func (r *Reconciler) createWithMarker(ctx context.Context, target Fields) (string, error) {
	handle, err := r.store.Create(ctx, target)
	if err != nil {
		return "", fmt.Errorf("failed to create record: %w", err)
	}
	if handle != "" {
		return handle, nil
	}
	handle, err = r.store.FindByMarker(ctx, target.Marker)
	if err != nil {
		return "", fmt.Errorf("failed to locate created record by marker: %w", err)
	}
	if handle == "" {
		return "", fmt.Errorf("created record not found by marker %s", target.Marker)
	}
	return handle, nil
}

func (r *Reconciler) fetchPhoto(ctx context.Context, logoURL string) []byte {
	if r.photos == nil || logoURL == "" {
		return nil
	}
	photo, err := r.photos.Fetch(ctx, logoURL)
	if err != nil {
		r.log.Warn("failed to fetch logo", "url", logoURL, "err", err)
		return nil
	}
	return photo
}

// cleanupStale deletes managed records whose group id is no longer desired:
// the brand lost its logo, fell past the profile cap, or had its branding
// revoked upstream. Deletion is best effort; a failed delete stays in the
// registry and is retried next cycle.
func (r *Reconciler) cleanupStale(ctx context.Context, desiredIDs map[string]bool) int {
	stale := make([]string, 0)
	for _, id := range r.registry.GroupIDs() {
		if !desiredIDs[id] {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)

	deleted := 0
	for _, id := range stale {
		if ctx.Err() != nil {
			return deleted
		}
		entry, ok := r.registry.Lookup(id)
		if !ok {
			continue
		}
		err := r.store.Delete(ctx, entry.ExternalHandle)
		if err != nil && !errors.Is(err, ErrRecordGone) {
			r.log.Warn("failed to delete stale managed contact", "group_id", id, "err", err)
			continue
		}
		r.registry.Remove(id)
		deleted++
	}
	return deleted
}

// fieldsMatch reports whether an existing record already carries the target
// state. Photo bytes are deliberately excluded: they are applied best effort
// and not diffable without refetching.
func fieldsMatch(existing *Fields, target Fields) bool {
	if existing == nil {
		return false
	}
	if existing.Name != target.Name || existing.Marker != target.Marker {
		return false
	}
	if existing.LogoURL != target.LogoURL {
		return false
	}
	if len(existing.PhoneNumbers) != len(target.PhoneNumbers) {
		return false
	}
	a := append([]string(nil), existing.PhoneNumbers...)
	b := append([]string(nil), target.PhoneNumbers...)
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
