// ABOUTME: Sync orchestrator driving one end-to-end branding sync cycle
// ABOUTME: Fetch, cache, snapshot commit, contacts reconcile, and throttled extension reload
package sync

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/harperreed/callsign/api"
	"github.com/harperreed/callsign/db"
	"github.com/harperreed/callsign/directory"
	"github.com/harperreed/callsign/models"
	"github.com/harperreed/callsign/reload"
	"github.com/harperreed/callsign/snapshot"
	"github.com/harperreed/callsign/telemetry"
)

// RecordSource fetches branding records changed since a cursor. Satisfied by
// api.Client.
type RecordSource interface {
	Fetch(ctx context.Context, sinceCursor string) (*api.FetchResult, error)
}

// ContactReconciler applies the managed-contact side effects for the current
// record set. Satisfied by contacts.Reconciler.
type ContactReconciler interface {
	Reconcile(ctx context.Context, records []models.BrandingRecord) (models.ReconcileReport, error)
}

// DirectoryReloader asks the OS to reload the caller-ID extension. The
// concrete adapter is platform code injected by the host app.
type DirectoryReloader interface {
	Reload(ctx context.Context, extensionID string) error
}

// OrchestratorConfig wires the collaborators for an orchestrator. Uses a
// struct because this many fields is too many for positional parameters.
type OrchestratorConfig struct {
	Source      RecordSource
	Cache       *sql.DB
	Snapshots   *snapshot.Store
	Reconciler  ContactReconciler
	Policy      *reload.Policy
	Reloader    DirectoryReloader
	Telemetry   *telemetry.Reporter // optional
	Logger      *slog.Logger
	ExtensionID string
	MaxEntries  int
}

// Orchestrator sequences one sync cycle. The snapshot commit and the
// contacts reconciliation are independently committed artifacts: a contacts
// store outage must not block caller-ID label delivery through the snapshot.
type Orchestrator struct {
	source      RecordSource
	cache       *sql.DB
	snapshots   *snapshot.Store
	reconciler  ContactReconciler
	policy      *reload.Policy
	reloader    DirectoryReloader
	telemetry   *telemetry.Reporter
	log         *slog.Logger
	extensionID string
	maxEntries  int
}

func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("sync: record source is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("sync: record cache is required")
	}
	if cfg.Snapshots == nil {
		return nil, fmt.Errorf("sync: snapshot store is required")
	}
	if cfg.Policy == nil {
		return nil, fmt.Errorf("sync: reload policy is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		source:      cfg.Source,
		cache:       cfg.Cache,
		snapshots:   cfg.Snapshots,
		reconciler:  cfg.Reconciler,
		policy:      cfg.Policy,
		reloader:    cfg.Reloader,
		telemetry:   cfg.Telemetry,
		log:         logger,
		extensionID: cfg.ExtensionID,
		maxEntries:  cfg.MaxEntries,
	}, nil
}

// RunCycle performs one sync cycle: fetch since the committed cursor, merge
// into the cache, build and commit a snapshot, then reconcile contacts.
// A fetch, cache, or commit failure aborts the cycle with the previous
// snapshot left authoritative. A reconcile failure is reported in the cycle
// report but does not roll anything back.
func (o *Orchestrator) RunCycle(ctx context.Context) (*models.CycleReport, error) {
	start := time.Now()
	report := &models.CycleReport{Phase: models.PhaseFetching}

	cursor := ""
	if pointer, err := o.snapshots.ReadPointer(); err == nil && pointer != nil {
		cursor = pointer.SinceCursor
	}

	result, err := o.source.Fetch(ctx, cursor)
	if err != nil {
		// No partial snapshot from a partial fetch.
		return report, fmt.Errorf("record fetch failed: %w", err)
	}
	report.FetchedRecords = len(result.Records)

	report.Phase = models.PhaseBuildingSnapshot
	if err := db.ApplyRecords(o.cache, result.Records); err != nil {
		return report, fmt.Errorf("cache update failed: %w", err)
	}
	records, err := db.ListRecords(o.cache)
	if err != nil {
		return report, fmt.Errorf("cache read failed: %w", err)
	}
	report.ActiveRecords = len(records)
	entries := directory.BuildEntries(records, o.maxEntries)
	report.EntryCount = len(entries)

	report.Phase = models.PhaseCommitting
	pointer, err := o.snapshots.Commit(entries, result.NextCursor)
	if err != nil {
		return report, fmt.Errorf("snapshot commit failed: %w", err)
	}
	report.SnapshotVersion = pointer.Version
	report.NextCursor = result.NextCursor

	report.Phase = models.PhaseReconcilingContacts
	if o.reconciler != nil {
		reconcileReport, err := o.reconciler.Reconcile(ctx, records)
		report.Reconcile = reconcileReport
		if err != nil {
			// The snapshot is already committed; record and carry on.
			report.ReconcileErr = err.Error()
			o.log.Warn("contacts reconciliation failed", "err", err)
		}
	}

	if err := o.policy.RecordSync(); err != nil {
		o.log.Warn("failed to stamp sync time", "err", err)
	}

	report.Phase = models.PhaseDone
	report.Duration = time.Since(start)
	o.recordCycleEvent(ctx, report)
	o.log.Info("sync cycle complete",
		"version", report.SnapshotVersion,
		"entries", report.EntryCount,
		"upserted", report.Reconcile.Upserted,
		"deleted", report.Reconcile.Deleted,
		"duration", report.Duration)
	return report, nil
}

// RequestReload consults the reload policy and, when allowed, asks the OS to
// reload the extension. A disallowed reload is not an error: the returned
// decision carries the next allowed time.
func (o *Orchestrator) RequestReload(ctx context.Context) (reload.Decision, error) {
	decision, err := o.policy.ShouldReloadNow()
	if err != nil {
		return decision, err
	}
	if !decision.Allowed {
		o.log.Debug("reload throttled",
			"reason", decision.Reason, "next_allowed_at", decision.NextAllowedAt)
		return decision, nil
	}
	if o.reloader == nil {
		return decision, fmt.Errorf("no directory reloader configured")
	}

	if err := o.reloader.Reload(ctx, o.extensionID); err != nil {
		if recordErr := o.policy.RecordReloadFailure(); recordErr != nil {
			o.log.Warn("failed to record reload failure", "err", recordErr)
		}
		return decision, fmt.Errorf("extension reload failed: %w", err)
	}
	if err := o.policy.RecordReloadSuccess(); err != nil {
		o.log.Warn("failed to record reload success", "err", err)
	}
	o.log.Info("extension reload requested", "extension_id", o.extensionID)
	return decision, nil
}

func (o *Orchestrator) recordCycleEvent(ctx context.Context, report *models.CycleReport) {
	if o.telemetry == nil {
		return
	}
	o.telemetry.Record("sync_cycle", map[string]any{
		"version":        report.SnapshotVersion,
		"entries":        report.EntryCount,
		"fetched":        report.FetchedRecords,
		"upserted":       report.Reconcile.Upserted,
		"deleted":        report.Reconcile.Deleted,
		"photo_failures": report.Reconcile.PhotoFailures,
		"duration_ms":    report.Duration.Milliseconds(),
	})
	o.telemetry.Flush(ctx)
}
