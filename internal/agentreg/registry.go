// Package agentreg is the in-memory agent registry: register_agent is pure
// memory mutation, idempotent on (name, role) within a session (spec §4.8).
package agentreg

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marcus-ai/marcus/internal/board"
)

// Registry tracks known agents for the lifetime of the process.
type Registry struct {
	mu       sync.RWMutex
	agents   map[string]*board.Agent // id -> agent
	byIdentity map[string]string     // "name\x00role" -> id
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		agents:     make(map[string]*board.Agent),
		byIdentity: make(map[string]string),
	}
}

func identityKey(name, role string) string { return name + "\x00" + role }

// Register returns the agent for (name, role), creating a new agent the
// first time that pair is seen and returning the same agent (same id) on every
// subsequent call within this process (spec §8 "Idempotence of register").
func (r *Registry) Register(name, role string, capabilities []string) *board.Agent {
	key := identityKey(name, role)

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byIdentity[key]; ok {
		a := r.agents[id]
		a.LastSeenAt = time.Now()
		return a
	}

	now := time.Now()
	a := &board.Agent{
		ID:           uuid.New().String(),
		Name:         name,
		Role:         role,
		Capabilities: capabilities,
		RegisteredAt: now,
		LastSeenAt:   now,
	}
	r.agents[a.ID] = a
	r.byIdentity[key] = a.ID
	return a
}

// Get returns an agent by id.
func (r *Registry) Get(id string) (*board.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	return a, ok
}

// Touch updates an agent's last-seen timestamp.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agents[id]; ok {
		a.LastSeenAt = time.Now()
	}
}

// SetCurrentTask records (or clears, with "") the task an agent is
// currently working on, for status queries.
func (r *Registry) SetCurrentTask(id, taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agents[id]; ok {
		a.CurrentTaskID = taskID
	}
}

// IncrementCompletions bumps an agent's completion count.
func (r *Registry) IncrementCompletions(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agents[id]; ok {
		a.CompletionCount++
	}
}
