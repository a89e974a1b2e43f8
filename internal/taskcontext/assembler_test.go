package taskcontext

import (
	"context"
	"testing"
	"time"

	"github.com/marcus-ai/marcus/internal/board"
	"github.com/marcus-ai/marcus/internal/depgraph"
	"github.com/marcus-ai/marcus/internal/memory"
)

type fakeStore struct {
	decisionsByTask map[string][]*memory.Decision
	artifactsByTask map[string][]*memory.Artifact
	byAgent         map[string][]*memory.Decision
}

func (f *fakeStore) StoreDecision(d *memory.Decision) error { return nil }
func (f *fakeStore) StoreArtifact(a *memory.Artifact) error { return nil }

func (f *fakeStore) ByTask(taskID string) ([]*memory.Decision, []*memory.Artifact, error) {
	return f.decisionsByTask[taskID], f.artifactsByTask[taskID], nil
}

func (f *fakeStore) Recent(limit int) ([]*memory.Decision, error) { return nil, nil }

func (f *fakeStore) ByAgent(agentID string, limit int) ([]*memory.Decision, error) {
	return f.byAgent[agentID], nil
}

func (f *fakeStore) Close() error { return nil }

func TestAssembleIncludesDonePredecessorArtifacts(t *testing.T) {
	pred := &board.Task{ID: "pred", Status: board.StatusDone}
	tsk := &board.Task{ID: "t", Status: board.StatusTodo, Dependencies: []string{"pred"}}
	byID := map[string]*board.Task{"pred": pred, "t": tsk}

	g, err := depgraph.Infer(context.Background(), []*board.Task{pred, tsk}, depgraph.Options{})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}

	store := &fakeStore{
		artifactsByTask: map[string][]*memory.Artifact{
			"pred": {{TaskID: "pred", Kind: memory.KindAPI, Summary: "OpenAPI spec"}},
		},
	}

	bundle, err := Assemble(context.Background(), tsk, byID, g, store, "", Options{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(bundle.Predecessors) != 1 || bundle.Predecessors[0].TaskID != "pred" {
		t.Fatalf("expected one predecessor context for pred, got %v", bundle.Predecessors)
	}
	if len(bundle.Predecessors[0].Artifacts) != 1 {
		t.Fatalf("expected the predecessor's artifact to be included")
	}
	if len(bundle.OmittedTaskIDs) != 0 {
		t.Errorf("expected no omissions, got %v", bundle.OmittedTaskIDs)
	}
}

func TestAssembleExcludesNotDonePredecessor(t *testing.T) {
	pred := &board.Task{ID: "pred", Status: board.StatusInProgress}
	tsk := &board.Task{ID: "t", Status: board.StatusTodo, Dependencies: []string{"pred"}}
	byID := map[string]*board.Task{"pred": pred, "t": tsk}

	g, err := depgraph.Infer(context.Background(), []*board.Task{pred, tsk}, depgraph.Options{})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}

	bundle, err := Assemble(context.Background(), tsk, byID, g, &fakeStore{}, "", Options{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(bundle.Predecessors) != 0 {
		t.Errorf("expected no predecessor context for a not-done predecessor, got %v", bundle.Predecessors)
	}
}

func TestAssembleFlagsOmissionWhenOverBudget(t *testing.T) {
	pred := &board.Task{ID: "pred", Status: board.StatusDone}
	tsk := &board.Task{ID: "t", Status: board.StatusTodo, Dependencies: []string{"pred"}}
	byID := map[string]*board.Task{"pred": pred, "t": tsk}

	g, err := depgraph.Infer(context.Background(), []*board.Task{pred, tsk}, depgraph.Options{})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}

	bigBody := make([]byte, 4096)
	for i := range bigBody {
		bigBody[i] = 'x'
	}
	store := &fakeStore{
		artifactsByTask: map[string][]*memory.Artifact{
			"pred": {{TaskID: "pred", Kind: memory.KindDoc, Body: string(bigBody)}},
		},
	}

	bundle, err := Assemble(context.Background(), tsk, byID, g, store, "", Options{MaxBytes: 10})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(bundle.OmittedTaskIDs) != 1 || bundle.OmittedTaskIDs[0] != "pred" {
		t.Errorf("expected pred to be explicitly flagged as omitted, got %v", bundle.OmittedTaskIDs)
	}
}

func TestAssembleIncludesAgentMemory(t *testing.T) {
	tsk := &board.Task{ID: "t", Status: board.StatusTodo}
	byID := map[string]*board.Task{"t": tsk}
	g, err := depgraph.Infer(context.Background(), []*board.Task{tsk}, depgraph.Options{})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	store := &fakeStore{
		byAgent: map[string][]*memory.Decision{
			"agent-1": {{TaskID: "other", What: "x", Why: "y", Affects: "z", Timestamp: time.Now()}},
		},
	}
	bundle, err := Assemble(context.Background(), tsk, byID, g, store, "agent-1", Options{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(bundle.AgentMemory.RecentDecisions) != 1 {
		t.Errorf("expected agent memory to be populated, got %v", bundle.AgentMemory)
	}
}
