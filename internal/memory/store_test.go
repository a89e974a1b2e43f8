package memory

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "memory.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreDecisionAndByTask(t *testing.T) {
	s := openTestStore(t)

	d := &Decision{ProjectID: "p1", TaskID: "task-1", AgentID: "agent-1", Timestamp: time.Now(), What: "PostgreSQL", Why: "ACID", Affects: "data models"}
	if err := s.StoreDecision(d); err != nil {
		t.Fatalf("StoreDecision: %v", err)
	}
	if d.ID == 0 {
		t.Error("expected decision to get an ID")
	}
	if d.Seq != 1 {
		t.Errorf("expected first seq = 1, got %d", d.Seq)
	}

	a := &Artifact{ProjectID: "p1", TaskID: "task-1", Kind: KindAPI, Body: "openapi spec", Timestamp: time.Now()}
	if err := s.StoreArtifact(a); err != nil {
		t.Fatalf("StoreArtifact: %v", err)
	}

	decisions, artifacts, err := s.ByTask("task-1")
	if err != nil {
		t.Fatalf("ByTask: %v", err)
	}
	if len(decisions) != 1 || len(artifacts) != 1 {
		t.Fatalf("expected 1 decision and 1 artifact, got %d/%d", len(decisions), len(artifacts))
	}
}

func TestSequenceIsMonotonicPerProject(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 3; i++ {
		d := &Decision{ProjectID: "p1", TaskID: "task-1", AgentID: "a", Timestamp: time.Now(), What: "x", Why: "y", Affects: "z"}
		if err := s.StoreDecision(d); err != nil {
			t.Fatalf("StoreDecision: %v", err)
		}
		if d.Seq != int64(i+1) {
			t.Errorf("expected seq %d, got %d", i+1, d.Seq)
		}
	}

	// A different project gets its own independent sequence.
	d := &Decision{ProjectID: "p2", TaskID: "task-9", AgentID: "a", Timestamp: time.Now(), What: "x", Why: "y", Affects: "z"}
	if err := s.StoreDecision(d); err != nil {
		t.Fatalf("StoreDecision: %v", err)
	}
	if d.Seq != 1 {
		t.Errorf("expected p2 seq = 1, got %d", d.Seq)
	}
}

func TestMostRecentByAffects(t *testing.T) {
	decisions := []*Decision{
		{Seq: 1, Affects: "auth", What: "JWT"},
		{Seq: 2, Affects: "auth", What: "OAuth"},
		{Seq: 1, Affects: "storage", What: "S3"},
	}
	latest := MostRecentByAffects(decisions)
	byAffects := make(map[string]*Decision)
	for _, d := range latest {
		byAffects[d.Affects] = d
	}
	if byAffects["auth"].What != "OAuth" {
		t.Errorf("expected latest auth decision to be OAuth, got %s", byAffects["auth"].What)
	}
	if byAffects["storage"].What != "S3" {
		t.Errorf("expected storage decision S3, got %s", byAffects["storage"].What)
	}
}

func TestRecentAndByAgent(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 5; i++ {
		d := &Decision{ProjectID: "p1", TaskID: "task-1", AgentID: "agent-1", Timestamp: time.Now(), What: "x", Why: "y", Affects: "z"}
		if err := s.StoreDecision(d); err != nil {
			t.Fatalf("StoreDecision: %v", err)
		}
	}
	other := &Decision{ProjectID: "p1", TaskID: "task-2", AgentID: "agent-2", Timestamp: time.Now(), What: "x", Why: "y", Affects: "z"}
	if err := s.StoreDecision(other); err != nil {
		t.Fatalf("StoreDecision: %v", err)
	}

	recent, err := s.Recent(3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 recent decisions, got %d", len(recent))
	}

	byAgent, err := s.ByAgent("agent-1", 10)
	if err != nil {
		t.Fatalf("ByAgent: %v", err)
	}
	if len(byAgent) != 5 {
		t.Fatalf("expected 5 decisions for agent-1, got %d", len(byAgent))
	}
}
