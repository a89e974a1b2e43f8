// Package scheduler implements the Eligibility Filter (C5) and Skill
// Matcher/Ranker (C6): which tasks an agent could pick up right now, and
// which one it should.
package scheduler

import (
	"github.com/marcus-ai/marcus/internal/board"
	"github.com/marcus-ai/marcus/internal/depgraph"
	"github.com/marcus-ai/marcus/internal/ledger"
)

// LeaseChecker reports whether a task currently has a live lease; the
// scheduler does not reach into the ledger directly so it stays testable
// without a database.
type LeaseChecker interface {
	HasLiveLease(taskID string) bool
}

// ledgerChecker adapts *ledger.Ledger to LeaseChecker.
type ledgerChecker struct{ l *ledger.Ledger }

func (c ledgerChecker) HasLiveLease(taskID string) bool {
	_, ok := c.l.ByTask(taskID)
	return ok
}

// NewLedgerChecker wraps a Ledger as a LeaseChecker.
func NewLedgerChecker(l *ledger.Ledger) LeaseChecker { return ledgerChecker{l} }

// Eligible reports whether t can be assigned right now (spec §4.5): status
// is todo, no live lease, every predecessor is done, and it is not marked
// blocked pending external input.
func Eligible(t *board.Task, byID map[string]*board.Task, g *depgraph.Graph, leases LeaseChecker) bool {
	if t.Status != board.StatusTodo {
		return false
	}
	if leases.HasLiveLease(t.ID) {
		return false
	}
	if t.BlockedExternally() {
		return false
	}
	for _, predID := range g.Predecessors(t.ID) {
		pred, ok := byID[predID]
		if !ok {
			continue
		}
		if pred.Status != board.StatusDone {
			return false
		}
	}
	return true
}

// EligibleSet filters tasks down to the eligible set E for the current
// snapshot and graph.
func EligibleSet(tasks []*board.Task, g *depgraph.Graph, leases LeaseChecker) []*board.Task {
	byID := make(map[string]*board.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	var out []*board.Task
	for _, t := range tasks {
		if Eligible(t, byID, g, leases) {
			out = append(out, t)
		}
	}
	return out
}
