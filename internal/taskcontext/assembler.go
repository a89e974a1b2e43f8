// Package taskcontext implements the Context Assembler (C7): the upstream
// decisions and artifacts an agent is handed alongside a newly assigned
// task. Named taskcontext rather than context to avoid shadowing the
// standard library package it also imports.
package taskcontext

import (
	"context"
	"fmt"
	"sort"

	"github.com/marcus-ai/marcus/internal/advisor"
	"github.com/marcus-ai/marcus/internal/board"
	"github.com/marcus-ai/marcus/internal/depgraph"
	"github.com/marcus-ai/marcus/internal/memory"
)

// PredecessorContext is the ground-truth material contributed by one done
// direct predecessor.
type PredecessorContext struct {
	TaskID    string
	Artifacts []*memory.Artifact
	Decisions []*memory.Decision // most recent per distinct Affects topic
}

// SiblingHint is a summary-level view of a done sibling's decisions (spec
// §4.7 "Pattern hints").
type SiblingHint struct {
	TaskID    string
	Summaries []string
}

// AgentMemory is the requesting agent's own recent history, so it follows
// its own patterns (spec §4.7).
type AgentMemory struct {
	RecentDecisions []*memory.Decision
}

// Bundle is the full context handed to an agent for a task.
type Bundle struct {
	TaskID         string
	Predecessors   []PredecessorContext
	SiblingHints   []SiblingHint
	AgentMemory    AgentMemory
	AdvisoryNote   string
	OmittedTaskIDs []string // direct predecessors whose artifacts were dropped for size
}

// Options configures bounded assembly (spec §6 context.max_bytes,
// context.include_pattern_hints).
type Options struct {
	MaxBytes            int
	IncludePatternHints bool
	Advisor             advisor.Advisor
}

func defaultOptions() Options {
	return Options{MaxBytes: 32 * 1024, IncludePatternHints: true}
}

// Assemble builds the context bundle for t given the current snapshot, its
// dependency graph, the decision/artifact store, and the requesting agent
// id (empty for get_task_context's read-only, lease-free call).
func Assemble(ctx context.Context, t *board.Task, byID map[string]*board.Task, g *depgraph.Graph, store memory.Store, agentID string, opts Options) (*Bundle, error) {
	if opts.MaxBytes == 0 {
		d := defaultOptions()
		opts.MaxBytes = d.MaxBytes
	}

	b := &Bundle{TaskID: t.ID}

	// Predecessor artifacts: every done direct predecessor's artifacts plus
	// most-recent-decision-per-affects-topic (spec §4.7).
	predIDs := g.Predecessors(t.ID)
	sort.Strings(predIDs)
	for _, pid := range predIDs {
		pred, ok := byID[pid]
		if !ok || pred.Status != board.StatusDone {
			continue
		}
		decisions, artifacts, err := store.ByTask(pid)
		if err != nil {
			return nil, fmt.Errorf("taskcontext: load predecessor %s: %w", pid, err)
		}
		b.Predecessors = append(b.Predecessors, PredecessorContext{
			TaskID:    pid,
			Artifacts: artifacts,
			Decisions: memory.MostRecentByAffects(decisions),
		})
	}

	// Pattern hints: done siblings sharing the same component:* label.
	if opts.IncludePatternHints {
		component, hasComponent := t.LabelValue("component")
		if hasComponent {
			var siblingIDs []string
			for id, other := range byID {
				if id == t.ID || other.Status != board.StatusDone {
					continue
				}
				if c, ok := other.LabelValue("component"); ok && c == component {
					siblingIDs = append(siblingIDs, id)
				}
			}
			sort.Strings(siblingIDs)
			for _, sid := range siblingIDs {
				decisions, _, err := store.ByTask(sid)
				if err != nil {
					continue
				}
				var summaries []string
				for _, d := range decisions {
					summaries = append(summaries, fmt.Sprintf("%s: %s", d.What, d.Affects))
				}
				if len(summaries) > 0 {
					b.SiblingHints = append(b.SiblingHints, SiblingHint{TaskID: sid, Summaries: summaries})
				}
			}
		}
	}

	// Agent memory: the requesting agent's own recent decisions.
	if agentID != "" {
		recent, err := store.ByAgent(agentID, 10)
		if err != nil {
			return nil, fmt.Errorf("taskcontext: load agent memory: %w", err)
		}
		b.AgentMemory.RecentDecisions = recent
	}

	enforceBudget(b, opts.MaxBytes)

	// Advisory notes: optional, attached last and clearly separate from
	// ground truth (spec §4.7).
	if opts.Advisor != nil {
		note, err := opts.Advisor.AnnotateContext(ctx, toBundle(t, b))
		if err == nil {
			b.AdvisoryNote = note
		}
	}

	return b, nil
}

func toBundle(t *board.Task, b *Bundle) advisor.ContextBundle {
	var predText []string
	for _, p := range b.Predecessors {
		for _, a := range p.Artifacts {
			predText = append(predText, a.Summary)
		}
	}
	var sibText []string
	for _, s := range b.SiblingHints {
		sibText = append(sibText, s.Summaries...)
	}
	return advisor.ContextBundle{
		TaskDescription: t.Description,
		PredecessorText: predText,
		SiblingText:     sibText,
	}
}

// size estimates a bundle's byte footprint; cheap and approximate, good
// enough for applying the configured ceiling.
func size(b *Bundle) int {
	n := 0
	for _, p := range b.Predecessors {
		for _, a := range p.Artifacts {
			n += len(a.Body) + len(a.Summary) + len(a.URI)
		}
		for _, d := range p.Decisions {
			n += len(d.What) + len(d.Why) + len(d.Affects)
		}
	}
	for _, s := range b.SiblingHints {
		for _, line := range s.Summaries {
			n += len(line)
		}
	}
	return n
}

// enforceBudget applies the configured size ceiling: older/lower-priority
// items are summarized first, then dropped (spec §4.7). Sibling hints
// (lowest priority, pure nicety) are dropped whole first; then predecessor
// artifact bodies are cut back to their Summary in ascending task-id order;
// then predecessor contributions are dropped in reverse task-id order -- but
// a direct predecessor's contribution is never silently dropped without
// recording the omission.
func enforceBudget(b *Bundle, maxBytes int) {
	if size(b) <= maxBytes {
		return
	}

	// Drop sibling hints entirely first; they are the lowest-value content.
	b.SiblingHints = nil
	if size(b) <= maxBytes {
		return
	}

	// Summarize predecessor artifact bodies down to their Summary field.
	for _, p := range b.Predecessors {
		for _, a := range p.Artifacts {
			if a.Body != "" && a.Summary != "" {
				a.Body = ""
			}
		}
		if size(b) <= maxBytes {
			return
		}
	}

	// Still over budget: drop predecessor contributions one at a time,
	// starting from the end, flagging each omission explicitly rather than
	// silently losing it.
	for len(b.Predecessors) > 0 && size(b) > maxBytes {
		last := b.Predecessors[len(b.Predecessors)-1]
		b.Predecessors = b.Predecessors[:len(b.Predecessors)-1]
		b.OmittedTaskIDs = append(b.OmittedTaskIDs, last.TaskID)
	}
	sort.Strings(b.OmittedTaskIDs)
}
