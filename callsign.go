// ABOUTME: SDK facade wiring all components behind a single configured Handle
// ABOUTME: Explicit construction, no static state; pass the Handle to whoever needs it
package callsign

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/harperreed/callsign/api"
	"github.com/harperreed/callsign/contacts"
	"github.com/harperreed/callsign/db"
	"github.com/harperreed/callsign/images"
	"github.com/harperreed/callsign/kv"
	"github.com/harperreed/callsign/models"
	"github.com/harperreed/callsign/registry"
	"github.com/harperreed/callsign/reload"
	"github.com/harperreed/callsign/snapshot"
	csync "github.com/harperreed/callsign/sync"
	"github.com/harperreed/callsign/telemetry"
)

// ErrSyncInProgress is returned by Sync when another cycle on the same
// Handle has not finished yet. At most one cycle runs at a time.
var ErrSyncInProgress = errors.New("a sync cycle is already running")

// Platform bundles the host-app-supplied platform adapters. Either field may
// be nil: a nil ContactStore disables managed contacts, a nil Reloader
// disables reload requests. The snapshot path works regardless.
type Platform struct {
	ContactStore contacts.ExternalStore
	Reloader     csync.DirectoryReloader
}

// Handle is the configured SDK instance. Construct one per process with
// Configure and pass it by reference; there is no package-level state.
type Handle struct {
	cfg          Config
	log          *slog.Logger
	stateKV      *kv.Store
	cache        *sql.DB
	snapshots    *snapshot.Store
	registry     *registry.Registry
	policy       *reload.Policy
	orchestrator *csync.Orchestrator

	syncMu sync.Mutex
}

// Configure validates the config, opens all durable state, and wires the
// sync pipeline. The caller owns the returned Handle and must Close it.
func Configure(cfg Config, platform Platform, logger *slog.Logger) (*Handle, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("namespace", cfg.Namespace)

	snapshots, err := snapshot.NewStore(cfg.StorageRoot, cfg.Namespace, logger)
	if err != nil {
		return nil, err
	}
	reg, err := registry.Open(cfg.StorageRoot, cfg.Namespace)
	if err != nil {
		return nil, err
	}

	stateKV, err := kv.Open(filepath.Join(cfg.HostStateDir, cfg.Namespace, "state"))
	if err != nil {
		return nil, err
	}
	cache, err := db.OpenDatabase(filepath.Join(cfg.HostStateDir, cfg.Namespace, "cache.db"))
	if err != nil {
		_ = stateKV.Close()
		return nil, fmt.Errorf("failed to open record cache: %w", err)
	}

	policy := reload.NewPolicy(stateKV)
	client := api.NewClient(api.ClientOptions{
		BaseURL: cfg.APIBaseURL,
		APIKey:  cfg.APIKey,
		Logger:  logger,
	})
	reporter := telemetry.NewReporter(cache, client, logger)

	var reconciler csync.ContactReconciler
	if platform.ContactStore != nil {
		photos := images.NewFetcher(
			&http.Client{Timeout: 10 * time.Second},
			filepath.Join(cfg.HostStateDir, cfg.Namespace, "logos"),
			logger,
		)
		r, err := contacts.NewReconciler(contacts.Config{
			Store:                     platform.ContactStore,
			Registry:                  reg,
			Photos:                    photos,
			Logger:                    logger,
			MaxPhoneNumbersPerContact: cfg.MaxPhoneNumbersPerContact,
			MaxProfiles:               cfg.MaxProfiles,
		})
		if err != nil {
			_ = cache.Close()
			_ = stateKV.Close()
			return nil, err
		}
		reconciler = r
	}

	orchestrator, err := csync.NewOrchestrator(csync.OrchestratorConfig{
		Source:      client,
		Cache:       cache,
		Snapshots:   snapshots,
		Reconciler:  reconciler,
		Policy:      policy,
		Reloader:    platform.Reloader,
		Telemetry:   reporter,
		Logger:      logger,
		ExtensionID: cfg.ExtensionID,
		MaxEntries:  cfg.MaxEntries,
	})
	if err != nil {
		_ = cache.Close()
		_ = stateKV.Close()
		return nil, err
	}

	return &Handle{
		cfg:          cfg,
		log:          logger,
		stateKV:      stateKV,
		cache:        cache,
		snapshots:    snapshots,
		registry:     reg,
		policy:       policy,
		orchestrator: orchestrator,
	}, nil
}

// Sync runs one end-to-end sync cycle. Returns ErrSyncInProgress when a
// cycle is already running on this Handle.
func (h *Handle) Sync(ctx context.Context) (*models.CycleReport, error) {
	if !h.syncMu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer h.syncMu.Unlock()
	return h.orchestrator.RunCycle(ctx)
}

// RequestReload asks the OS to reload the directory extension, subject to
// the throttle and backoff policy.
func (h *Handle) RequestReload(ctx context.Context) (reload.Decision, error) {
	return h.orchestrator.RequestReload(ctx)
}

// LoadEntries reads the committed snapshot. Host-side counterpart of the
// extension Reader; unlike the Reader it surfaces integrity errors.
func (h *Handle) LoadEntries() ([]models.DirectoryEntry, error) {
	entries, _, err := h.snapshots.Load()
	return entries, err
}

// SnapshotStore exposes the snapshot store, mainly for watchers.
func (h *Handle) SnapshotStore() *snapshot.Store {
	return h.snapshots
}

// ReloadState returns the current persisted reload policy state.
func (h *Handle) ReloadState() (reload.State, error) {
	return h.policy.CurrentState()
}

// Close releases host-local resources. Shared-storage files are left as-is
// for the extension.
func (h *Handle) Close() error {
	var firstErr error
	if err := h.cache.Close(); err != nil {
		firstErr = err
	}
	if err := h.stateKV.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
