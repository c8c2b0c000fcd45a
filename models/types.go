// ABOUTME: Data models for caller-identity branding
// ABOUTME: Defines BrandingRecord, DirectoryEntry, ManagedContactGroup, and cycle reports
package models

import (
	"time"
)

// BrandingRecord is one row from the remote branding source: a phone number
// and the identity to present for it.
type BrandingRecord struct {
	PhoneNumber string    `json:"phone_number"`
	BrandName   string    `json:"brand_name,omitempty"`
	LogoURL     string    `json:"logo_url,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Deleted     bool      `json:"deleted,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DirectoryEntry is one row of the OS-facing caller-ID directory. DigitKey is
// the phone number reduced to digits and is always derived from FullNumber,
// never set independently.
type DirectoryEntry struct {
	FullNumber string `json:"full_number"`
	DigitKey   string `json:"digit_key"`
	Label      string `json:"label"`
}

// ManagedContactGroup is one SDK-owned contact record to materialize in the
// external contacts store: a brand plus a bounded chunk of its numbers.
type ManagedContactGroup struct {
	GroupID      string   `json:"group_id"`
	BrandName    string   `json:"brand_name"`
	LogoURL      string   `json:"logo_url"`
	PhoneNumbers []string `json:"phone_numbers"`
}

// ReconcileReport counts what one reconciliation pass did.
type ReconcileReport struct {
	Desired       int `json:"desired"`
	Upserted      int `json:"upserted"`
	Unchanged     int `json:"unchanged"`
	Deleted       int `json:"deleted"`
	PhotoFailures int `json:"photo_failures"`
	GroupFailures int `json:"group_failures"`
}

// CyclePhase identifies how far a sync cycle progressed.
type CyclePhase string

const (
	PhaseFetching            CyclePhase = "fetching"
	PhaseBuildingSnapshot    CyclePhase = "building_snapshot"
	PhaseCommitting          CyclePhase = "committing"
	PhaseReconcilingContacts CyclePhase = "reconciling_contacts"
	PhaseDone                CyclePhase = "done"
)

// CycleReport summarizes one end-to-end sync cycle.
type CycleReport struct {
	Phase           CyclePhase      `json:"phase"`
	FetchedRecords  int             `json:"fetched_records"`
	ActiveRecords   int             `json:"active_records"`
	SnapshotVersion int             `json:"snapshot_version"`
	EntryCount      int             `json:"entry_count"`
	NextCursor      string          `json:"next_cursor,omitempty"`
	Reconcile       ReconcileReport `json:"reconcile"`
	ReconcileErr    string          `json:"reconcile_err,omitempty"`
	Duration        time.Duration   `json:"duration"`
}
