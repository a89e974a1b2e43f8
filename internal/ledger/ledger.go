// Package ledger implements the Assignment Ledger (spec §4.2): a durable
// record of agent -> task leases, backed by an embedded SQLite database
// opened in WAL mode with synchronous writes, so that Acquire and Release
// return only after the record is committed to disk. Each lease is one row,
// inserted by Acquire and updated in place by Heartbeat and Release;
// released rows are kept, but no separate entry is appended per operation.
package ledger

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Outcome is the closed set of ways a lease can be released.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeAbandoned Outcome = "abandoned"
	OutcomeExpired   Outcome = "expired"
)

// Lease is an exclusive, time-bounded claim by an agent on a task
// (spec §3).
type Lease struct {
	ID          int64
	AgentID     string
	TaskID      string
	AcquiredAt  time.Time
	ExpiresAt   time.Time
	HeartbeatAt time.Time
}

// Stale reports whether the lease has gone silent longer than ttl.
func (l *Lease) Stale(now time.Time, ttl time.Duration) bool {
	return now.Sub(l.HeartbeatAt) > ttl
}

// ErrConflict is returned by Acquire when either side already holds a live
// lease.
var ErrConflict = errors.New("ledger: conflict, agent or task already leased")

// ErrNotFound is returned by Heartbeat/Release when no live lease matches.
var ErrNotFound = errors.New("ledger: no live lease for that agent/task pair")

// Ledger is the crash-safe lease store: an in-memory index for fast reads,
// backed by an on-disk lease table (rows updated in place, never deleted)
// that is the source of truth on restart (spec §4.2).
type Ledger struct {
	mu      sync.Mutex
	db      *sql.DB
	byTask  map[string]*Lease
	byAgent map[string]*Lease
	log     *log.Logger
}

// Open creates or opens the ledger at path, running Replay to rebuild the
// in-memory index from whatever is already on disk.
func Open(path string) (*Ledger, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ledger: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("ledger: open: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer; avoids SQLITE_BUSY under our own mutex

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: apply schema: %w", err)
	}

	l := &Ledger{
		db:      db,
		byTask:  make(map[string]*Lease),
		byAgent: make(map[string]*Lease),
		log:     log.New(os.Stderr, "[LEDGER] ", log.LstdFlags),
	}

	if err := l.Replay(); err != nil {
		db.Close()
		return nil, err
	}

	return l, nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Replay rebuilds the in-memory lease index from disk. It is the mechanism
// by which a restarted process recovers its view of outstanding leases
// (spec §4.2, §4.9, §8 Durability).
func (l *Ledger) Replay() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.Query(`
		SELECT id, agent_id, task_id, acquired_at, expires_at, heartbeat_at
		FROM leases
		WHERE outcome = ''
	`)
	if err != nil {
		return fmt.Errorf("ledger: replay query: %w", err)
	}
	defer rows.Close()

	byTask := make(map[string]*Lease)
	byAgent := make(map[string]*Lease)
	for rows.Next() {
		var lease Lease
		if err := rows.Scan(&lease.ID, &lease.AgentID, &lease.TaskID, &lease.AcquiredAt, &lease.ExpiresAt, &lease.HeartbeatAt); err != nil {
			return fmt.Errorf("ledger: replay scan: %w", err)
		}
		cp := lease
		byTask[lease.TaskID] = &cp
		byAgent[lease.AgentID] = &cp
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("ledger: replay iterate: %w", err)
	}

	l.byTask = byTask
	l.byAgent = byAgent
	l.log.Printf("replayed %d live lease(s) from disk", len(byTask))
	return nil
}

// Acquire records a new lease. Fails with ErrConflict if either the agent or
// the task already holds a live lease (spec §8: at most one live lease per
// task and per agent).
func (l *Ledger) Acquire(agentID, taskID string, ttl time.Duration) (*Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.byTask[taskID]; ok {
		return nil, ErrConflict
	}
	if _, ok := l.byAgent[agentID]; ok {
		return nil, ErrConflict
	}

	now := time.Now()
	lease := &Lease{
		AgentID:     agentID,
		TaskID:      taskID,
		AcquiredAt:  now,
		ExpiresAt:   now.Add(ttl),
		HeartbeatAt: now,
	}

	res, err := l.db.Exec(`
		INSERT INTO leases (agent_id, task_id, acquired_at, expires_at, heartbeat_at, outcome)
		VALUES (?, ?, ?, ?, ?, '')
	`, lease.AgentID, lease.TaskID, lease.AcquiredAt, lease.ExpiresAt, lease.HeartbeatAt)
	if err != nil {
		return nil, fmt.Errorf("ledger: acquire insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("ledger: acquire get id: %w", err)
	}
	lease.ID = id

	l.byTask[taskID] = lease
	l.byAgent[agentID] = lease
	return lease, nil
}

// Heartbeat refreshes a live lease's liveness timestamp.
func (l *Ledger) Heartbeat(agentID, taskID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	lease, ok := l.byTask[taskID]
	if !ok || lease.AgentID != agentID {
		return ErrNotFound
	}

	now := time.Now()
	if _, err := l.db.Exec(`UPDATE leases SET heartbeat_at = ? WHERE id = ?`, now, lease.ID); err != nil {
		return fmt.Errorf("ledger: heartbeat update: %w", err)
	}
	lease.HeartbeatAt = now
	return nil
}

// Release marks a lease as resolved with the given outcome, freeing both the
// task and the agent for a new lease.
func (l *Ledger) Release(agentID, taskID string, outcome Outcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	lease, ok := l.byTask[taskID]
	if !ok || lease.AgentID != agentID {
		return ErrNotFound
	}

	if _, err := l.db.Exec(`UPDATE leases SET outcome = ? WHERE id = ?`, string(outcome), lease.ID); err != nil {
		return fmt.Errorf("ledger: release update: %w", err)
	}

	delete(l.byTask, taskID)
	delete(l.byAgent, agentID)
	return nil
}

// ReleaseTask releases whichever lease currently holds taskID, regardless of
// agent; used by the reconciler when the original agent is no longer known
// to be meaningful (e.g. the task vanished from the board).
func (l *Ledger) ReleaseTask(taskID string, outcome Outcome) (*Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lease, ok := l.byTask[taskID]
	if !ok {
		return nil, ErrNotFound
	}

	if _, err := l.db.Exec(`UPDATE leases SET outcome = ? WHERE id = ?`, string(outcome), lease.ID); err != nil {
		return nil, fmt.Errorf("ledger: release task update: %w", err)
	}

	delete(l.byTask, taskID)
	delete(l.byAgent, lease.AgentID)
	return lease, nil
}

// ListActive returns every currently live lease.
func (l *Ledger) ListActive() []*Lease {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*Lease, 0, len(l.byTask))
	for _, lease := range l.byTask {
		cp := *lease
		out = append(out, &cp)
	}
	return out
}

// ByAgent returns the agent's live lease, if any.
func (l *Ledger) ByAgent(agentID string) (*Lease, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lease, ok := l.byAgent[agentID]
	if !ok {
		return nil, false
	}
	cp := *lease
	return &cp, true
}

// ByTask returns the task's live lease, if any.
func (l *Ledger) ByTask(taskID string) (*Lease, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lease, ok := l.byTask[taskID]
	if !ok {
		return nil, false
	}
	cp := *lease
	return &cp, true
}
