package memory

import (
	"database/sql"
	"fmt"
)

// StoreArtifact appends an immutable artifact, assigning it the next
// logical-clock value for its project.
func (s *SQLiteStore) StoreArtifact(a *Artifact) error {
	a.Seq = s.nextSeq(a.ProjectID)

	res, err := s.db.Exec(`
		INSERT INTO artifacts (project_id, task_id, kind, uri, body, summary, seq, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ProjectID, a.TaskID, string(a.Kind), nullString(a.URI), nullString(a.Body), nullString(a.Summary), a.Seq, a.Timestamp)
	if err != nil {
		return fmt.Errorf("memory: store artifact: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("memory: store artifact id: %w", err)
	}
	a.ID = id
	return nil
}

func (s *SQLiteStore) artifactsByTask(taskID string) ([]*Artifact, error) {
	rows, err := s.db.Query(`
		SELECT id, project_id, task_id, kind, uri, body, summary, seq, ts
		FROM artifacts WHERE task_id = ? ORDER BY seq ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("memory: artifacts by task: %w", err)
	}
	defer rows.Close()
	return scanArtifacts(rows)
}

func scanArtifacts(rows *sql.Rows) ([]*Artifact, error) {
	var artifacts []*Artifact
	for rows.Next() {
		var a Artifact
		var kind string
		var uri, body, summary sql.NullString
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.TaskID, &kind, &uri, &body, &summary, &a.Seq, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("memory: scan artifact: %w", err)
		}
		a.Kind = Kind(kind)
		a.URI = uri.String
		a.Body = body.String
		a.Summary = summary.String
		artifacts = append(artifacts, &a)
	}
	return artifacts, rows.Err()
}
