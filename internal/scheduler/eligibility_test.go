package scheduler

import (
	"context"
	"testing"

	"github.com/marcus-ai/marcus/internal/board"
	"github.com/marcus-ai/marcus/internal/depgraph"
)

type fakeLeases struct{ live map[string]bool }

func (f fakeLeases) HasLiveLease(taskID string) bool { return f.live[taskID] }

func mustGraph(t *testing.T, tasks []*board.Task) *depgraph.Graph {
	t.Helper()
	g, err := depgraph.Infer(context.Background(), tasks, depgraph.Options{})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	return g
}

func TestEligibleRequiresTodoStatus(t *testing.T) {
	tasks := []*board.Task{{ID: "a", Status: board.StatusInProgress}}
	g := mustGraph(t, tasks)
	byID := map[string]*board.Task{"a": tasks[0]}
	if Eligible(tasks[0], byID, g, fakeLeases{}) {
		t.Error("expected in_progress task to be ineligible")
	}
}

func TestEligibleRequiresDonePredecessors(t *testing.T) {
	pred := &board.Task{ID: "pred", Status: board.StatusInProgress}
	t2 := &board.Task{ID: "t", Status: board.StatusTodo, Dependencies: []string{"pred"}}
	tasks := []*board.Task{pred, t2}
	g := mustGraph(t, tasks)
	byID := map[string]*board.Task{"pred": pred, "t": t2}
	if Eligible(t2, byID, g, fakeLeases{}) {
		t.Error("expected task with non-done predecessor to be ineligible")
	}

	pred.Status = board.StatusDone
	if !Eligible(t2, byID, g, fakeLeases{}) {
		t.Error("expected task to become eligible once predecessor is done")
	}
}

func TestEligibleExcludesLiveLease(t *testing.T) {
	tsk := &board.Task{ID: "t", Status: board.StatusTodo}
	g := mustGraph(t, []*board.Task{tsk})
	byID := map[string]*board.Task{"t": tsk}
	leases := fakeLeases{live: map[string]bool{"t": true}}
	if Eligible(tsk, byID, g, leases) {
		t.Error("expected leased task to be ineligible")
	}
}

func TestEligibleExcludesExternallyBlocked(t *testing.T) {
	tsk := &board.Task{ID: "t", Status: board.StatusTodo, Labels: []string{"blocked:external"}}
	g := mustGraph(t, []*board.Task{tsk})
	byID := map[string]*board.Task{"t": tsk}
	if Eligible(tsk, byID, g, fakeLeases{}) {
		t.Error("expected externally blocked task to be ineligible")
	}
}

func TestEligibleSet(t *testing.T) {
	a := &board.Task{ID: "a", Status: board.StatusTodo}
	b := &board.Task{ID: "b", Status: board.StatusBlocked}
	tasks := []*board.Task{a, b}
	g := mustGraph(t, tasks)
	out := EligibleSet(tasks, g, fakeLeases{})
	if len(out) != 1 || out[0].ID != "a" {
		t.Errorf("expected only task a eligible, got %v", out)
	}
}
