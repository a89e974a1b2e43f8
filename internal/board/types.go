// Package board defines the shared task/agent data model and the adapter
// interface used to reach an external kanban-style board.
package board

import (
	"fmt"
	"time"
)

// Status is the closed set of lifecycle states a Task can be in.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
)

// Priority is the closed set of task priorities.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// priorityWeight orders priorities for ranking and tie-breaking; higher wins.
var priorityWeight = map[Priority]float64{
	PriorityUrgent: 4,
	PriorityHigh:   3,
	PriorityMedium: 2,
	PriorityLow:    1,
}

// Weight returns the numeric weight of a priority (0 for an unknown value).
func (p Priority) Weight() float64 {
	return priorityWeight[p]
}

// validTransitions encodes the task state machine from spec §4.8:
// todo -> in_progress -> {done | blocked}; blocked -> in_progress; in_progress -> todo
// only via lease expiry, which callers apply directly (it bypasses this table
// on purpose since the reconciler, not the task itself, drives that edge).
var validTransitions = map[Status][]Status{
	StatusTodo:       {StatusInProgress},
	StatusInProgress: {StatusDone, StatusBlocked},
	StatusBlocked:    {StatusInProgress},
}

// Task is the identity, shape, and current state of a unit of work.
type Task struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Status       Status            `json:"status"`
	Priority     Priority          `json:"priority"`
	Labels       []string          `json:"labels,omitempty"`
	Dependencies []string          `json:"dependencies,omitempty"`
	Assignee     string            `json:"assignee,omitempty"`
	ParentID     string            `json:"parent_id,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	AssignedAt  *time.Time `json:"assigned_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	EstimatedEffort float64 `json:"estimated_effort,omitempty"`
	ActualEffort    float64 `json:"actual_effort,omitempty"`
}

// HasLabel reports whether the task carries the exact label.
func (t *Task) HasLabel(label string) bool {
	for _, l := range t.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// LabelValue returns the value of a "prefix:value" label, e.g. "component".
func (t *Task) LabelValue(prefix string) (string, bool) {
	p := prefix + ":"
	for _, l := range t.Labels {
		if len(l) > len(p) && l[:len(p)] == p {
			return l[len(p):], true
		}
	}
	return "", false
}

// BlockedExternally reports whether the task carries a label marking it
// blocked pending external (human) input, per spec §4.5.
func (t *Task) BlockedExternally() bool {
	return t.HasLabel("blocked:external")
}

// TransitionTo validates and applies a status transition per spec §4.8.
func (t *Task) TransitionTo(next Status) error {
	allowed, ok := validTransitions[t.Status]
	if !ok {
		return fmt.Errorf("task %s: no transitions defined from status %q", t.ID, t.Status)
	}
	for _, s := range allowed {
		if s == next {
			t.Status = next
			t.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("task %s: invalid transition from %q to %q", t.ID, t.Status, next)
}

// IsTerminal reports whether the task can never change state again.
func (t *Task) IsTerminal() bool {
	return t.Status == StatusDone || t.Status == StatusCancelled
}

// Agent is an external autonomous worker known to the coordinator.
type Agent struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Role             string    `json:"role"`
	Capabilities     []string  `json:"capabilities"`
	CurrentTaskID    string    `json:"current_task_id,omitempty"`
	CompletionCount  int       `json:"completion_count"`
	RegisteredAt     time.Time `json:"registered_at"`
	LastSeenAt       time.Time `json:"last_seen_at"`
}

// HasCapability reports whether the agent declares the given skill string.
func (a *Agent) HasCapability(skill string) bool {
	for _, c := range a.Capabilities {
		if c == skill {
			return true
		}
	}
	return false
}

// Snapshot is a point-in-time, versioned, immutable read of the board.
type Snapshot struct {
	Version int
	Tasks   []*Task
	TakenAt time.Time
}

// ByID indexes a snapshot's tasks by id for O(1) lookup.
func (s *Snapshot) ByID() map[string]*Task {
	idx := make(map[string]*Task, len(s.Tasks))
	for _, t := range s.Tasks {
		idx[t.ID] = t
	}
	return idx
}

// TaskSpec is used only by project-creation paths (out of core scope, but
// the adapter surface is shared per spec §4.1).
type TaskSpec struct {
	Name        string
	Description string
	Priority    Priority
	Labels      []string
	Dependencies []string
}
