package depgraph

import (
	"context"
	"testing"

	"github.com/marcus-ai/marcus/internal/board"
)

func task(id string, labels []string, deps []string) *board.Task {
	return &board.Task{ID: id, Labels: labels, Dependencies: deps}
}

func TestInferDeclaredEdges(t *testing.T) {
	tasks := []*board.Task{
		task("a", nil, nil),
		task("b", nil, []string{"a"}),
	}
	g, err := Infer(context.Background(), tasks, Options{})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	preds := g.Predecessors("b")
	if len(preds) != 1 || preds[0] != "a" {
		t.Errorf("expected b to depend on a, got %v", preds)
	}
}

func TestInferPhaseOrdering(t *testing.T) {
	tasks := []*board.Task{
		task("design", []string{"component:auth", "phase:design"}, nil),
		task("impl", []string{"component:auth", "phase:implementation"}, nil),
		task("test", []string{"component:auth", "phase:testing"}, nil),
	}
	g, err := Infer(context.Background(), tasks, Options{})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if preds := g.Predecessors("impl"); len(preds) != 1 || preds[0] != "design" {
		t.Errorf("expected impl to depend on design, got %v", preds)
	}
	if preds := g.Predecessors("test"); len(preds) != 2 {
		t.Errorf("expected test to depend on design+impl, got %v", preds)
	}
}

func TestInferKeywordHeuristic(t *testing.T) {
	storage := task("storage-task", []string{"component:storage"}, nil)
	consumer := &board.Task{ID: "consumer-task", Description: "extend storage with caching"}
	g, err := Infer(context.Background(), []*board.Task{storage, consumer}, Options{})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	preds := g.Predecessors("consumer-task")
	if len(preds) != 1 || preds[0] != "storage-task" {
		t.Errorf("expected consumer-task to depend on storage-task, got %v", preds)
	}
}

func TestInferSubtaskImplicitEdge(t *testing.T) {
	parent := task("parent", []string{"component:auth"}, nil)
	parent.ID = "parent"
	sibling := task("sibling-design", []string{"component:auth", "phase:design"}, nil)
	sub := task("sub", nil, nil)
	sub.ParentID = "parent"

	g, err := Infer(context.Background(), []*board.Task{parent, sibling, sub}, Options{})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	preds := g.Predecessors("sub")
	found := false
	for _, p := range preds {
		if p == "sibling-design" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected sub to depend on sibling-design, got %v", preds)
	}
}

func TestInferBreaksCycles(t *testing.T) {
	a := task("a", []string{"component:x", "phase:design"}, []string{"b"})
	b := task("b", []string{"component:x", "phase:implementation"}, nil)
	g, err := Infer(context.Background(), []*board.Task{a, b}, Options{})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if findCycle(g) != nil {
		t.Fatal("expected graph to be acyclic after cycle breaking")
	}
	if len(g.Warnings) == 0 {
		t.Error("expected a warning recorded for the broken cycle")
	}
}

func TestInferIgnoresUnknownDependency(t *testing.T) {
	a := task("a", nil, []string{"ghost"})
	g, err := Infer(context.Background(), []*board.Task{a}, Options{})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if preds := g.Predecessors("a"); len(preds) != 0 {
		t.Errorf("expected no predecessors for dangling dependency, got %v", preds)
	}
}
