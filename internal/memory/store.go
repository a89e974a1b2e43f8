// Package memory implements the Decision/Artifact Store (spec §4.3): two
// append-only logs keyed by task id, with index structures rebuilt on
// startup and writes ordered by a monotonic logical clock per project.
package memory

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Kind is the closed set of artifact kinds (spec §3).
type Kind string

const (
	KindAPI         Kind = "api"
	KindSchema      Kind = "schema"
	KindDoc         Kind = "doc"
	KindDecisionRef Kind = "decision-ref"
	KindOther       Kind = "other"
)

// Decision is an immutable architectural note logged by an agent against a
// task, in the fixed (what, why, affects) shape (spec §3).
type Decision struct {
	ID         int64
	ProjectID  string
	TaskID     string
	AgentID    string
	Seq        int64 // monotonic logical clock, per project
	Timestamp  time.Time
	What       string
	Why        string
	Affects    string
	Supersedes int64 // 0 if this decision does not revise a prior one
}

// Artifact is an immutable produced thing worth showing to downstream tasks
// (spec §3).
type Artifact struct {
	ID        int64
	ProjectID string
	TaskID    string
	Kind      Kind
	URI       string
	Body      string
	Summary   string
	Seq       int64
	Timestamp time.Time
}

// Store is the Decision/Artifact Store surface used by the Context
// Assembler (C7) and the coordinator's log_decision / report_completion
// operations.
type Store interface {
	StoreDecision(d *Decision) error
	StoreArtifact(a *Artifact) error
	ByTask(taskID string) ([]*Decision, []*Artifact, error)
	Recent(limit int) ([]*Decision, error)
	ByAgent(agentID string, limit int) ([]*Decision, error)
	Close() error
}

// SQLiteStore is the concrete Store backed by an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB

	mu      sync.Mutex
	seqByID map[string]int64 // project_id -> next logical clock value
}

// Open creates or opens the decision/artifact store at path.
func Open(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("memory: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("memory: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: apply schema: %w", err)
	}

	s := &SQLiteStore{db: db, seqByID: make(map[string]int64)}
	if err := s.primeSequences(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// primeSequences rebuilds the in-memory logical clock counters from the max
// seq already on disk per project, so restarts never reissue a seq.
func (s *SQLiteStore) primeSequences() error {
	rows, err := s.db.Query(`
		SELECT project_id, MAX(seq) FROM (
			SELECT project_id, seq FROM decisions
			UNION ALL
			SELECT project_id, seq FROM artifacts
		) GROUP BY project_id
	`)
	if err != nil {
		return fmt.Errorf("memory: prime sequences: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var projectID string
		var maxSeq int64
		if err := rows.Scan(&projectID, &maxSeq); err != nil {
			return fmt.Errorf("memory: prime sequences scan: %w", err)
		}
		s.seqByID[projectID] = maxSeq
	}
	return rows.Err()
}

// nextSeq returns the next logical clock value for a project, monotonic for
// the lifetime of the process and primed from disk on open.
func (s *SQLiteStore) nextSeq(projectID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqByID[projectID]++
	return s.seqByID[projectID]
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
