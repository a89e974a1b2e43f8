package board

import "testing"

func TestTaskTransitionTo(t *testing.T) {
	task := &Task{ID: "T-1", Status: StatusTodo}

	if err := task.TransitionTo(StatusInProgress); err != nil {
		t.Fatalf("todo -> in_progress: %v", err)
	}
	if task.Status != StatusInProgress {
		t.Errorf("expected in_progress, got %s", task.Status)
	}

	if err := task.TransitionTo(StatusDone); err != nil {
		t.Fatalf("in_progress -> done: %v", err)
	}

	if err := task.TransitionTo(StatusInProgress); err == nil {
		t.Error("expected done to be terminal, got no error transitioning out")
	}
}

func TestTaskTransitionToInvalid(t *testing.T) {
	task := &Task{ID: "T-2", Status: StatusTodo}
	if err := task.TransitionTo(StatusDone); err == nil {
		t.Error("expected error transitioning todo -> done directly")
	}
}

func TestTaskIsTerminal(t *testing.T) {
	for _, s := range []Status{StatusDone, StatusCancelled} {
		task := &Task{Status: s}
		if !task.IsTerminal() {
			t.Errorf("status %s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusTodo, StatusInProgress, StatusBlocked} {
		task := &Task{Status: s}
		if task.IsTerminal() {
			t.Errorf("status %s should not be terminal", s)
		}
	}
}

func TestTaskLabelValue(t *testing.T) {
	task := &Task{Labels: []string{"component:api", "phase:implementation"}}

	v, ok := task.LabelValue("component")
	if !ok || v != "api" {
		t.Errorf("expected component=api, got %q ok=%v", v, ok)
	}

	if _, ok := task.LabelValue("skill"); ok {
		t.Error("expected no skill label")
	}
}

func TestTaskBlockedExternally(t *testing.T) {
	task := &Task{Labels: []string{"blocked:external"}}
	if !task.BlockedExternally() {
		t.Error("expected task to be externally blocked")
	}
}

func TestPriorityWeight(t *testing.T) {
	if PriorityUrgent.Weight() <= PriorityHigh.Weight() {
		t.Error("urgent should weigh more than high")
	}
	if PriorityHigh.Weight() <= PriorityMedium.Weight() {
		t.Error("high should weigh more than medium")
	}
	if PriorityMedium.Weight() <= PriorityLow.Weight() {
		t.Error("medium should weigh more than low")
	}
}
