// ABOUTME: Pending telemetry event queue backed by SQLite
// ABOUTME: Events are enqueued during a cycle and drained best effort afterwards
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event is one queued telemetry event. Attributes is a JSON object encoded
// by the caller; the queue treats it as opaque text.
type Event struct {
	ID         string
	Name       string
	Attributes string
	CreatedAt  time.Time
}

// EnqueueEvent inserts a new event with a fresh ULID. ULIDs sort by creation
// time, which keeps drain order stable without a separate sequence column.
func EnqueueEvent(db *sql.DB, name, attributes string) (string, error) {
	if attributes == "" {
		attributes = "{}"
	}
	id := ulid.Make().String()
	_, err := db.Exec(`
		INSERT INTO pending_events (id, name, attributes, created_at)
		VALUES (?, ?, ?, ?)
	`, id, name, attributes, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to enqueue event: %w", err)
	}
	return id, nil
}

// PendingEvents returns up to limit queued events, oldest first.
func PendingEvents(db *sql.DB, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT id, name, attributes, created_at
		FROM pending_events
		ORDER BY id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var event Event
		if err := rows.Scan(&event.ID, &event.Name, &event.Attributes, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// DeleteEvents removes drained events by id.
func DeleteEvents(db *sql.DB, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin event delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.Prepare(`DELETE FROM pending_events WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare event delete: %w", err)
	}
	defer func() { _ = stmt.Close() }()
	for _, id := range ids {
		if _, err := stmt.Exec(id); err != nil {
			return fmt.Errorf("failed to delete event %s: %w", id, err)
		}
	}
	return tx.Commit()
}
