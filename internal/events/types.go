// Package events implements a pub/sub bus for coordination-lifecycle
// notifications: lease changes, task status transitions, and blockers, so
// that a live status feed (control protocol's websocket surface) can follow
// the coordinator without polling it.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type is the closed set of event kinds the coordinator emits.
type Type string

const (
	TypeLeaseAcquired  Type = "lease_acquired"
	TypeLeaseReleased  Type = "lease_released"
	TypeTaskAssigned   Type = "task_assigned"
	TypeTaskProgress   Type = "task_progress"
	TypeTaskBlocked    Type = "task_blocked"
	TypeTaskCompleted  Type = "task_completed"
	TypeDecisionLogged Type = "decision_logged"
	TypeReconciled     Type = "reconciled"
)

// Priority mirrors task priority for event triage in the status feed.
const (
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityNormal   = 3
	PriorityLow      = 4
)

// Event is a single notification published on the bus.
type Event struct {
	ID        string                 `json:"id"`
	Type      Type                   `json:"type"`
	ProjectID string                 `json:"project_id"`
	Target    string                 `json:"target"` // "all" or a specific agent/project id
	Priority  int                    `json:"priority"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}

// New creates an Event with a generated id and current timestamp.
func New(typ Type, projectID, target string, priority int, payload map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      typ,
		ProjectID: projectID,
		Target:    target,
		Priority:  priority,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// AllTypes returns every defined event type.
func AllTypes() []Type {
	return []Type{
		TypeLeaseAcquired,
		TypeLeaseReleased,
		TypeTaskAssigned,
		TypeTaskProgress,
		TypeTaskBlocked,
		TypeTaskCompleted,
		TypeDecisionLogged,
		TypeReconciled,
	}
}
