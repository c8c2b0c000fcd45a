// ABOUTME: External contacts store abstraction and the fields written to managed records
// ABOUTME: One concrete adapter per platform; tests use in-memory fakes
package contacts

import (
	"context"
	"errors"
)

// ErrRecordGone distinguishes "this handle no longer exists" from other
// store failures. Adapters must return it (wrapped is fine) for vanished
// records so the reconciler can recover by recreating.
var ErrRecordGone = errors.New("external contact record no longer exists")

// Fields is everything the SDK writes to a managed contact record. Marker
// carries the group id in a hidden field so the record can be re-found when
// the handle is unknown; LogoURL is kept as a visible field for provenance.
type Fields struct {
	Name         string
	PhoneNumbers []string
	Marker       string
	LogoURL      string
}

// ExternalStore is the platform contacts capability. Implementations must
// never touch records whose marker field was not written by this SDK.
type ExternalStore interface {
	// Create inserts a new record and returns its handle. Some platform
	// stores do not reliably return a handle on insert; implementations may
	// return an empty handle, in which case the caller re-finds the record
	// by marker.
	Create(ctx context.Context, fields Fields) (string, error)

	// Update replaces the fields of an existing record.
	Update(ctx context.Context, handle string, fields Fields) error

	// SetPhoto attaches an image to an existing record. Applied separately
	// from Create because some stores persist photos more reliably via a
	// follow-up update than via the initial insert.
	SetPhoto(ctx context.Context, handle string, photo []byte) error

	// Delete removes a record. Must return ErrRecordGone when the handle is
	// already gone.
	Delete(ctx context.Context, handle string) error

	// FindByMarker locates a record by the hidden marker field. Returns
	// ("", nil) when no record matches.
	FindByMarker(ctx context.Context, marker string) (string, error)

	// Fetch returns the fields of an existing record, or ErrRecordGone.
	Fetch(ctx context.Context, handle string) (*Fields, error)
}
