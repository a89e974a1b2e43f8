package events

import (
	"database/sql"
	"testing"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	return s
}

func TestSaveAndGetPending(t *testing.T) {
	s := openTestStore(t)
	e := New(TypeTaskBlocked, "p1", "agent-1", PriorityHigh, map[string]interface{}{"reason": "waiting"})
	if err := s.Save(e); err != nil {
		t.Fatalf("Save: %v", err)
	}

	pending, err := s.GetPending("agent-1", nil)
	if err != nil {
		t.Fatalf("GetPending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != e.ID {
		t.Fatalf("expected 1 pending event matching id, got %v", pending)
	}
	if pending[0].Payload["reason"] != "waiting" {
		t.Errorf("expected payload to round-trip, got %v", pending[0].Payload)
	}
}

func TestMarkDeliveredExcludesFromPending(t *testing.T) {
	s := openTestStore(t)
	e := New(TypeTaskCompleted, "p1", "agent-1", PriorityNormal, nil)
	if err := s.Save(e); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.MarkDelivered(e.ID); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}

	pending, err := s.GetPending("agent-1", nil)
	if err != nil {
		t.Fatalf("GetPending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending events after delivery, got %v", pending)
	}
}
