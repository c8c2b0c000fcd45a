// ABOUTME: Crash-safe snapshot store shared between host app and directory extension
// ABOUTME: Two-phase commit with gzip payload, SHA-256 validator, and pointer-last promotion
package snapshot

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/callsign/models"
)

// SchemaVersion is bumped whenever the payload or validator encoding changes.
// Readers refuse snapshots written with a different schema.
const SchemaVersion = 1

const (
	pointerFile = "current.json"
	// DefaultKeepVersions is how many committed versions are retained on
	// disk. Older payload/validator pairs are pruned at commit time.
	DefaultKeepVersions = 3
)

var (
	// ErrIntegrity is returned when a snapshot fails hash, entry-count, or
	// schema validation. There is no repair path: a corrupt snapshot fails
	// closed.
	ErrIntegrity = errors.New("snapshot integrity check failed")

	// ErrStorageUnavailable is returned when the shared storage root cannot
	// be used at all.
	ErrStorageUnavailable = errors.New("snapshot storage unavailable")
)

// Payload is the persisted directory content. It is serialized to canonical
// JSON and gzip-compressed on disk.
type Payload struct {
	SchemaVersion int                     `json:"schema_version"`
	CreatedAt     time.Time               `json:"created_at"`
	Entries       []models.DirectoryEntry `json:"entries"`
}

// Validator is the detached manifest for one payload file. ContentHash is the
// SHA-256 of the exact compressed payload bytes.
type Validator struct {
	SchemaVersion int       `json:"schema_version"`
	Version       int       `json:"version"`
	ContentHash   string    `json:"content_hash"`
	EntryCount    int       `json:"entry_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// Pointer is the single mutable "latest" indirection. It is written last in a
// commit, so any reader that sees it can trust the files it references.
// Paths are stored relative to the store directory because the host app and
// the extension may mount the shared container at different absolute paths.
type Pointer struct {
	Version       int       `json:"version"`
	PayloadPath   string    `json:"payload_path"`
	ValidatorPath string    `json:"validator_path"`
	ContentHash   string    `json:"content_hash"`
	EntryCount    int       `json:"entry_count"`
	CreatedAt     time.Time `json:"created_at"`
	SinceCursor   string    `json:"since_cursor,omitempty"`
}

// Store owns the snapshot files for one namespace under the shared storage
// root. The host process is the only writer; extension invocations are
// unsynchronized readers, made safe by the validator check.
type Store struct {
	dir          string
	keepVersions int
	now          func() time.Time
	log          *slog.Logger
}

// NewStore opens (creating if needed) the snapshot directory for a namespace.
func NewStore(root, namespace string, logger *slog.Logger) (*Store, error) {
	if root == "" || namespace == "" {
		return nil, fmt.Errorf("%w: empty root or namespace", ErrStorageUnavailable)
	}
	dir := filepath.Join(root, namespace, "snapshots")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dir:          dir,
		keepVersions: DefaultKeepVersions,
		now:          time.Now,
		log:          logger,
	}, nil
}

// Dir returns the snapshot directory path.
func (s *Store) Dir() string {
	return s.dir
}

// PointerPath returns the absolute path of the pointer file.
func (s *Store) PointerPath() string {
	return filepath.Join(s.dir, pointerFile)
}

// Commit writes entries as the next snapshot version using a two-phase
// protocol: serialize and hash into temp files, re-read them through the same
// validation path consumers use, and only then promote them to canonical
// names and rewrite the pointer. Any failure before the pointer write leaves
// the previous version authoritative.
func (s *Store) Commit(entries []models.DirectoryEntry, sinceCursor string) (*Pointer, error) {
	version := s.nextVersion()
	createdAt := s.now().UTC()

	payload := Payload{
		SchemaVersion: SchemaVersion,
		CreatedAt:     createdAt,
		Entries:       entries,
	}
	compressed, err := encodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	hash := sha256.Sum256(compressed)
	validator := Validator{
		SchemaVersion: SchemaVersion,
		Version:       version,
		ContentHash:   hex.EncodeToString(hash[:]),
		EntryCount:    len(entries),
		CreatedAt:     createdAt,
	}
	validatorBytes, err := json.MarshalIndent(validator, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode validator: %w", err)
	}

	// Phase one: temp files only. The canonical names and the pointer are
	// untouched until both files have passed self-validation.
	stamp := uuid.NewString()
	tmpPayload := filepath.Join(s.dir, fmt.Sprintf("tmp-%s.payload.json.gz", stamp))
	tmpValidator := filepath.Join(s.dir, fmt.Sprintf("tmp-%s.validator.json", stamp))

	if err := os.WriteFile(tmpPayload, compressed, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write temp payload: %w", err)
	}
	if err := os.WriteFile(tmpValidator, validatorBytes, 0o644); err != nil {
		_ = os.Remove(tmpPayload)
		return nil, fmt.Errorf("failed to write temp validator: %w", err)
	}

	if _, _, err := loadPair(tmpPayload, tmpValidator); err != nil {
		_ = os.Remove(tmpPayload)
		_ = os.Remove(tmpValidator)
		return nil, fmt.Errorf("self-validation failed, commit aborted: %w", err)
	}

	// Phase two: promote to canonical names, then write the pointer last.
	canonPayload := filepath.Join(s.dir, payloadName(version))
	canonValidator := filepath.Join(s.dir, validatorName(version))
	_ = os.Remove(canonPayload)
	_ = os.Remove(canonValidator)
	if err := os.Rename(tmpPayload, canonPayload); err != nil {
		_ = os.Remove(tmpPayload)
		_ = os.Remove(tmpValidator)
		return nil, fmt.Errorf("failed to promote payload: %w", err)
	}
	if err := os.Rename(tmpValidator, canonValidator); err != nil {
		_ = os.Remove(tmpValidator)
		return nil, fmt.Errorf("failed to promote validator: %w", err)
	}

	pointer := &Pointer{
		Version:       version,
		PayloadPath:   payloadName(version),
		ValidatorPath: validatorName(version),
		ContentHash:   validator.ContentHash,
		EntryCount:    validator.EntryCount,
		CreatedAt:     createdAt,
		SinceCursor:   sinceCursor,
	}
	if err := s.writePointer(pointer); err != nil {
		return nil, err
	}

	s.prune(version)
	s.log.Debug("snapshot committed",
		"version", version,
		"entries", len(entries),
		"hash", validator.ContentHash[:12])
	return pointer, nil
}

// ReadPointer returns the current pointer, or (nil, nil) when no snapshot has
// ever been committed.
func (s *Store) ReadPointer() (*Pointer, error) {
	data, err := os.ReadFile(s.PointerPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read pointer: %w", err)
	}
	var pointer Pointer
	if err := json.Unmarshal(data, &pointer); err != nil {
		return nil, fmt.Errorf("%w: pointer undecodable: %v", ErrIntegrity, err)
	}
	if pointer.Version < 1 || pointer.PayloadPath == "" || pointer.ValidatorPath == "" {
		return nil, fmt.Errorf("%w: pointer missing fields", ErrIntegrity)
	}
	return &pointer, nil
}

// Load reads and validates the current snapshot. A nil pointer (no commit
// yet) yields an empty entry slice and nil pointer, not an error.
func (s *Store) Load() ([]models.DirectoryEntry, *Pointer, error) {
	pointer, err := s.ReadPointer()
	if err != nil {
		return nil, nil, err
	}
	if pointer == nil {
		return nil, nil, nil
	}
	payload, validator, err := loadPair(
		filepath.Join(s.dir, pointer.PayloadPath),
		filepath.Join(s.dir, pointer.ValidatorPath),
	)
	if err != nil {
		return nil, nil, err
	}
	if validator.ContentHash != pointer.ContentHash {
		return nil, nil, fmt.Errorf("%w: pointer/validator hash mismatch", ErrIntegrity)
	}
	if validator.Version != pointer.Version {
		return nil, nil, fmt.Errorf("%w: pointer/validator version mismatch", ErrIntegrity)
	}
	return payload.Entries, pointer, nil
}

// loadPair is the single read-and-validate path, used both by consumers and
// by the writer's self-validation step. Validation order: decode validator,
// recompute hash over the raw payload bytes, then decompress and decode.
func loadPair(payloadPath, validatorPath string) (*Payload, *Validator, error) {
	validatorBytes, err := os.ReadFile(validatorPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read validator: %w", err)
	}
	var validator Validator
	if err := json.Unmarshal(validatorBytes, &validator); err != nil {
		return nil, nil, fmt.Errorf("%w: validator undecodable: %v", ErrIntegrity, err)
	}
	if validator.SchemaVersion != SchemaVersion {
		return nil, nil, fmt.Errorf("%w: validator schema %d, want %d",
			ErrIntegrity, validator.SchemaVersion, SchemaVersion)
	}

	compressed, err := os.ReadFile(payloadPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read payload: %w", err)
	}
	hash := sha256.Sum256(compressed)
	if hex.EncodeToString(hash[:]) != validator.ContentHash {
		return nil, nil, fmt.Errorf("%w: content hash mismatch", ErrIntegrity)
	}

	payload, err := decodePayload(compressed)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: payload undecodable: %v", ErrIntegrity, err)
	}
	if payload.SchemaVersion != validator.SchemaVersion {
		return nil, nil, fmt.Errorf("%w: payload schema %d, validator schema %d",
			ErrIntegrity, payload.SchemaVersion, validator.SchemaVersion)
	}
	if len(payload.Entries) != validator.EntryCount {
		return nil, nil, fmt.Errorf("%w: entry count %d, validator says %d",
			ErrIntegrity, len(payload.Entries), validator.EntryCount)
	}
	return payload, &validator, nil
}

// EncodePayload returns the canonical compressed bytes for a payload. Split
// out so the encoding can be pinned by tests.
func EncodePayload(p Payload) ([]byte, error) {
	return encodePayload(p)
}

func encodePayload(p Payload) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CanonicalJSON returns the uncompressed canonical payload encoding.
func CanonicalJSON(p Payload) ([]byte, error) {
	return json.Marshal(p)
}

func decodePayload(compressed []byte) (*Payload, error) {
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer func() { _ = zr.Close() }()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// nextVersion is prev pointer version + 1. When the pointer is missing or
// unreadable it falls back to scanning the directory so version numbers never
// go backwards even after pointer loss.
func (s *Store) nextVersion() int {
	if pointer, err := s.ReadPointer(); err == nil && pointer != nil {
		return pointer.Version + 1
	}
	max := 0
	names, err := filepath.Glob(filepath.Join(s.dir, "v*.validator.json"))
	if err != nil {
		return 1
	}
	for _, name := range names {
		var v int
		if _, err := fmt.Sscanf(filepath.Base(name), "v%d.validator.json", &v); err == nil && v > max {
			max = v
		}
	}
	return max + 1
}

func (s *Store) writePointer(pointer *Pointer) error {
	data, err := json.MarshalIndent(pointer, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode pointer: %w", err)
	}
	tmp := s.PointerPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write pointer: %w", err)
	}
	if err := os.Rename(tmp, s.PointerPath()); err != nil {
		return fmt.Errorf("failed to replace pointer: %w", err)
	}
	return nil
}

// prune removes payload/validator pairs older than the retention window.
// Best effort: a file that cannot be removed is left for the next commit.
func (s *Store) prune(currentVersion int) {
	cutoff := currentVersion - s.keepVersions
	if cutoff < 1 {
		return
	}
	names, err := filepath.Glob(filepath.Join(s.dir, "v*.validator.json"))
	if err != nil {
		return
	}
	for _, name := range names {
		var v int
		if _, err := fmt.Sscanf(filepath.Base(name), "v%d.validator.json", &v); err != nil {
			continue
		}
		if v <= cutoff {
			_ = os.Remove(filepath.Join(s.dir, payloadName(v)))
			_ = os.Remove(name)
		}
	}
}

func payloadName(version int) string {
	return fmt.Sprintf("v%d.payload.json.gz", version)
}

func validatorName(version int) string {
	return fmt.Sprintf("v%d.validator.json", version)
}
