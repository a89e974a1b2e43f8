package memory

import (
	"database/sql"
	"fmt"
)

// StoreDecision appends an immutable decision, assigning it the next
// logical-clock value for its project.
func (s *SQLiteStore) StoreDecision(d *Decision) error {
	d.Seq = s.nextSeq(d.ProjectID)

	res, err := s.db.Exec(`
		INSERT INTO decisions (project_id, task_id, agent_id, seq, ts, what, why, affects, supersedes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ProjectID, d.TaskID, d.AgentID, d.Seq, d.Timestamp, d.What, d.Why, d.Affects, d.Supersedes)
	if err != nil {
		return fmt.Errorf("memory: store decision: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("memory: store decision id: %w", err)
	}
	d.ID = id
	return nil
}

// ByTask returns all decisions and artifacts recorded against a task,
// ordered by logical clock (spec §4.3 by_task).
func (s *SQLiteStore) ByTask(taskID string) ([]*Decision, []*Artifact, error) {
	decisions, err := s.decisionsByTask(taskID)
	if err != nil {
		return nil, nil, err
	}
	artifacts, err := s.artifactsByTask(taskID)
	if err != nil {
		return nil, nil, err
	}
	return decisions, artifacts, nil
}

func (s *SQLiteStore) decisionsByTask(taskID string) ([]*Decision, error) {
	rows, err := s.db.Query(`
		SELECT id, project_id, task_id, agent_id, seq, ts, what, why, affects, supersedes
		FROM decisions WHERE task_id = ? ORDER BY seq ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("memory: decisions by task: %w", err)
	}
	defer rows.Close()
	return scanDecisions(rows)
}

// Recent returns the most recently logged decisions across all tasks
// (spec §4.3 recent(limit)).
func (s *SQLiteStore) Recent(limit int) ([]*Decision, error) {
	rows, err := s.db.Query(`
		SELECT id, project_id, task_id, agent_id, seq, ts, what, why, affects, supersedes
		FROM decisions ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("memory: recent decisions: %w", err)
	}
	defer rows.Close()
	return scanDecisions(rows)
}

// ByAgent returns the decisions an agent has logged, most recent first
// (spec §4.3 by_agent) -- also feeds the Context Assembler's "agent memory"
// bundle (spec §4.7).
func (s *SQLiteStore) ByAgent(agentID string, limit int) ([]*Decision, error) {
	rows, err := s.db.Query(`
		SELECT id, project_id, task_id, agent_id, seq, ts, what, why, affects, supersedes
		FROM decisions WHERE agent_id = ? ORDER BY id DESC LIMIT ?
	`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("memory: decisions by agent: %w", err)
	}
	defer rows.Close()
	return scanDecisions(rows)
}

// MostRecentByAffects returns, among the given decisions, the latest one per
// distinct Affects topic -- used by the Context Assembler to avoid handing
// an agent every superseded decision for the same topic (spec §4.7).
func MostRecentByAffects(decisions []*Decision) []*Decision {
	latest := make(map[string]*Decision, len(decisions))
	for _, d := range decisions {
		cur, ok := latest[d.Affects]
		if !ok || d.Seq > cur.Seq {
			latest[d.Affects] = d
		}
	}
	out := make([]*Decision, 0, len(latest))
	for _, d := range latest {
		out = append(out, d)
	}
	return out
}

func scanDecisions(rows *sql.Rows) ([]*Decision, error) {
	var decisions []*Decision
	for rows.Next() {
		var d Decision
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.TaskID, &d.AgentID, &d.Seq, &d.Timestamp, &d.What, &d.Why, &d.Affects, &d.Supersedes); err != nil {
			return nil, fmt.Errorf("memory: scan decision: %w", err)
		}
		decisions = append(decisions, &d)
	}
	return decisions, rows.Err()
}
