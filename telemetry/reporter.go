// ABOUTME: Best-effort telemetry reporter over the SQLite pending-event queue
// ABOUTME: Records cycle outcomes locally and drains them to the API when reachable
package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/harperreed/callsign/db"
)

// EventSink posts an encoded batch of events. Satisfied by api.Client.
type EventSink interface {
	ReportEvents(ctx context.Context, payload []byte) error
}

// Reporter queues events durably and flushes them best effort. A missing
// sink or a flush failure never affects the caller; the queue just keeps
// the events for the next flush.
type Reporter struct {
	db   *sql.DB
	sink EventSink
	log  *slog.Logger
}

func NewReporter(database *sql.DB, sink EventSink, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{db: database, sink: sink, log: logger}
}

// Record queues one event. attrs may be nil.
func (r *Reporter) Record(name string, attrs map[string]any) {
	encoded := "{}"
	if len(attrs) > 0 {
		if data, err := json.Marshal(attrs); err == nil {
			encoded = string(data)
		}
	}
	if _, err := db.EnqueueEvent(r.db, name, encoded); err != nil {
		r.log.Warn("failed to queue telemetry event", "event", name, "err", err)
	}
}

// Flush drains pending events to the sink. Returns the number of events
// delivered; delivery failures leave the queue untouched.
func (r *Reporter) Flush(ctx context.Context) int {
	if r.sink == nil {
		return 0
	}
	events, err := db.PendingEvents(r.db, 200)
	if err != nil {
		r.log.Warn("failed to read pending events", "err", err)
		return 0
	}
	if len(events) == 0 {
		return 0
	}

	type wireEvent struct {
		ID         string          `json:"id"`
		Name       string          `json:"name"`
		Attributes json.RawMessage `json:"attributes"`
		CreatedAt  string          `json:"created_at"`
	}
	batch := make([]wireEvent, 0, len(events))
	ids := make([]string, 0, len(events))
	for _, event := range events {
		batch = append(batch, wireEvent{
			ID:         event.ID,
			Name:       event.Name,
			Attributes: json.RawMessage(event.Attributes),
			CreatedAt:  event.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
		ids = append(ids, event.ID)
	}
	payload, err := json.Marshal(batch)
	if err != nil {
		r.log.Warn("failed to encode telemetry batch", "err", err)
		return 0
	}
	if err := r.sink.ReportEvents(ctx, payload); err != nil {
		r.log.Debug("telemetry flush failed, will retry later", "err", err)
		return 0
	}
	if err := db.DeleteEvents(r.db, ids); err != nil {
		r.log.Warn("failed to clear delivered events", "err", err)
	}
	return len(ids)
}
