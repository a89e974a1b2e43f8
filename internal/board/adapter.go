package board

import "fmt"

// Adapter gives uniform read/write access to tasks on an external board.
// The coordinator and the reconciler call it; an adapter is the only
// component that reaches the board over the network (spec §4.1).
type Adapter interface {
	// ListTasks returns a complete snapshot of the board.
	ListTasks() ([]*Task, error)

	// UpdateTaskStatus sets a task's status. Idempotent in the target status.
	UpdateTaskStatus(id string, status Status) error

	// AssignTask sets a task's assignee. No-op if already equal.
	AssignTask(id string, agentID string) error

	// AddComment appends a comment to a task.
	AddComment(id string, body string) error

	// CreateTask is used only by project-creation paths, out of core scope,
	// but the surface is shared across providers.
	CreateTask(spec TaskSpec) (*Task, error)

	// Name identifies the provider for logging and configuration.
	Name() string
}

// TransientProviderError indicates a retriable failure talking to the board.
type TransientProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *TransientProviderError) Error() string {
	return fmt.Sprintf("%s: transient failure during %s: %v", e.Provider, e.Op, e.Err)
}

func (e *TransientProviderError) Unwrap() error { return e.Err }

// PermanentProviderError indicates a non-retriable failure.
type PermanentProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *PermanentProviderError) Error() string {
	return fmt.Sprintf("%s: permanent failure during %s: %v", e.Provider, e.Op, e.Err)
}

func (e *PermanentProviderError) Unwrap() error { return e.Err }
