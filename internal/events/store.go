package events

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store over the same embedded SQLite convention used
// by the ledger and memory packages.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an already-open *sql.DB and ensures the events table
// exists. The caller owns the DB's lifecycle (it is typically shared with
// another package's connection in-process, or opened standalone for tests).
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("events: init schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		project_id TEXT NOT NULL,
		target TEXT NOT NULL,
		priority INTEGER NOT NULL,
		payload TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		delivered_at TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_events_target ON events(target, delivered_at);
	CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save persists event, JSON-encoding its payload.
func (s *SQLiteStore) Save(event *Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("events: marshal payload: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO events (id, type, project_id, target, priority, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.ID, string(event.Type), event.ProjectID, event.Target, event.Priority, string(payload), event.CreatedAt)
	if err != nil {
		return fmt.Errorf("events: insert: %w", err)
	}
	return nil
}

// GetPending returns events for target (optionally filtered by type) that
// have not yet been marked delivered.
func (s *SQLiteStore) GetPending(target string, types []Type) ([]*Event, error) {
	query := `
		SELECT id, type, project_id, target, priority, payload, created_at
		FROM events
		WHERE target = ? AND delivered_at IS NULL
		ORDER BY created_at ASC
	`
	rows, err := s.db.Query(query, target)
	if err != nil {
		return nil, fmt.Errorf("events: query pending: %w", err)
	}
	defer rows.Close()

	typeSet := make(map[Type]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	var out []*Event
	for rows.Next() {
		var e Event
		var typ string
		var payload string
		var createdAt time.Time
		if err := rows.Scan(&e.ID, &typ, &e.ProjectID, &e.Target, &e.Priority, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("events: scan: %w", err)
		}
		e.Type = Type(typ)
		e.CreatedAt = createdAt
		if len(typeSet) > 0 && !typeSet[e.Type] {
			continue
		}
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("events: unmarshal payload: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// MarkDelivered stamps an event as consumed.
func (s *SQLiteStore) MarkDelivered(eventID string) error {
	_, err := s.db.Exec(`UPDATE events SET delivered_at = ? WHERE id = ?`, time.Now(), eventID)
	if err != nil {
		return fmt.Errorf("events: mark delivered: %w", err)
	}
	return nil
}
