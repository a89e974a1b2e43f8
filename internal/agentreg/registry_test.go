package agentreg

import "testing"

func TestRegisterIsIdempotentOnNameAndRole(t *testing.T) {
	r := New()
	a1 := r.Register("worker-1", "engineer", []string{"go"})
	a2 := r.Register("worker-1", "engineer", []string{"go"})
	if a1.ID != a2.ID {
		t.Errorf("expected same agent id for repeated (name, role), got %s and %s", a1.ID, a2.ID)
	}
}

func TestRegisterDistinguishesRole(t *testing.T) {
	r := New()
	a1 := r.Register("worker-1", "engineer", nil)
	a2 := r.Register("worker-1", "reviewer", nil)
	if a1.ID == a2.ID {
		t.Error("expected different agent ids for different roles with the same name")
	}
}

func TestSetCurrentTaskAndIncrementCompletions(t *testing.T) {
	r := New()
	a := r.Register("worker-1", "engineer", nil)
	r.SetCurrentTask(a.ID, "task-1")
	r.IncrementCompletions(a.ID)

	got, ok := r.Get(a.ID)
	if !ok {
		t.Fatal("expected agent to be found")
	}
	if got.CurrentTaskID != "task-1" {
		t.Errorf("expected CurrentTaskID = task-1, got %s", got.CurrentTaskID)
	}
	if got.CompletionCount != 1 {
		t.Errorf("expected CompletionCount = 1, got %d", got.CompletionCount)
	}
}
