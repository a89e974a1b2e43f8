// Package depgraph implements dependency inference over a board snapshot
// (spec §4.4): declared edges, phase-ordering edges, keyword-template
// edges, an optional AI-advisor pass for low-confidence pairs, and cycle
// detection that omits the smallest suspect edge set rather than failing
// outright.
package depgraph

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/marcus-ai/marcus/internal/advisor"
	"github.com/marcus-ai/marcus/internal/board"
)

// Edge is a "to depends on from" relationship: From must complete before To
// is eligible.
type Edge struct {
	From   string
	To     string
	Source EdgeSource
}

// EdgeSource records which inference step produced an edge, for logging and
// for selecting which edges to drop when breaking a cycle.
type EdgeSource string

const (
	SourceDeclared EdgeSource = "declared"
	SourcePhase    EdgeSource = "phase"
	SourceKeyword  EdgeSource = "keyword"
	SourceAdvisor  EdgeSource = "advisor"
	SourceSubtask  EdgeSource = "subtask"
)

// KeywordPattern is one entry of the configurable keyword heuristic table
// (spec §4.4 step 3), e.g. a task whose description contains "extend X"
// gains an edge from the task matching component X.
type KeywordPattern struct {
	Template string // e.g. "extend %s", "integrate with %s"
}

// Options configures a single inference run; all fields have safe zero
// values (no advisor consultation, default keyword templates).
type Options struct {
	KeywordPatterns   []KeywordPattern
	Advisor           advisor.Advisor
	AdvisorBatchCap   int
	AdvisorConfidence float64
	Logger            *log.Logger
}

func defaultKeywordPatterns() []KeywordPattern {
	return []KeywordPattern{
		{Template: "extend %s"},
		{Template: "integrate with %s"},
		{Template: "build on %s"},
		{Template: "depends on %s"},
	}
}

// Graph is the inferred dependency graph for one board snapshot.
type Graph struct {
	edges    []Edge
	byTo     map[string][]Edge // incoming edges, keyed by To
	Warnings []string
}

// Predecessors returns the task IDs that must complete before taskID is
// eligible.
func (g *Graph) Predecessors(taskID string) []string {
	edges := g.byTo[taskID]
	out := make([]string, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.From)
	}
	sort.Strings(out)
	return out
}

// Successors returns the task IDs that list taskID as a predecessor, i.e.
// the tasks that become unblocked once taskID completes.
func (g *Graph) Successors(taskID string) []string {
	var out []string
	for _, e := range g.edges {
		if e.From == taskID {
			out = append(out, e.To)
		}
	}
	sort.Strings(out)
	return out
}

// Edges returns every surviving edge, sorted for deterministic output.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// Infer builds the dependency graph for tasks, running the four inference
// steps in order (spec §4.4): declared, phase-ordering, keyword, advisor.
// Cycles are detected and broken by dropping the lowest-priority suspect
// edges (advisor- and keyword-sourced edges are dropped before declared
// ones), with a warning recorded for each drop.
func Infer(ctx context.Context, tasks []*board.Task, opts Options) (*Graph, error) {
	if opts.KeywordPatterns == nil {
		opts.KeywordPatterns = defaultKeywordPatterns()
	}
	if opts.AdvisorBatchCap <= 0 {
		opts.AdvisorBatchCap = 20
	}
	if opts.AdvisorConfidence <= 0 {
		opts.AdvisorConfidence = 0.7
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	byID := make(map[string]*board.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	g := &Graph{byTo: make(map[string][]Edge)}

	add := func(from, to string, src EdgeSource) {
		if from == "" || to == "" || from == to {
			return
		}
		if _, ok := byID[from]; !ok {
			return
		}
		if _, ok := byID[to]; !ok {
			return
		}
		for _, e := range g.edges {
			if e.From == from && e.To == to {
				return
			}
		}
		e := Edge{From: from, To: to, Source: src}
		g.edges = append(g.edges, e)
		g.byTo[to] = append(g.byTo[to], e)
	}

	// Step 1: declared edges from Task.Dependencies.
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			add(dep, t.ID, SourceDeclared)
		}
	}

	// Subtask implicit predecessor edges: a subtask gains an edge from
	// every design-phase sibling of its parent's component (spec §9 open
	// question, resolved: a subtask is not eligible until its parent's
	// design work for the same component has landed).
	for _, t := range tasks {
		if t.ParentID == "" {
			continue
		}
		parent, ok := byID[t.ParentID]
		if !ok {
			continue
		}
		component, ok := componentOf(parent.Labels)
		if !ok {
			continue
		}
		for _, sib := range tasks {
			if sib.ID == t.ID || sib.ID == parent.ID {
				continue
			}
			sibComponent, ok := componentOf(sib.Labels)
			if !ok || sibComponent != component {
				continue
			}
			phase, ok := phaseOf(sib.Labels)
			if !ok || phase != PhaseDesign {
				continue
			}
			add(sib.ID, t.ID, SourceSubtask)
		}
	}

	// Step 2: phase-ordering edges within a component.
	byComponent := make(map[string][]*board.Task)
	for _, t := range tasks {
		c, ok := componentOf(t.Labels)
		if !ok {
			continue
		}
		byComponent[c] = append(byComponent[c], t)
	}
	for _, group := range byComponent {
		for _, a := range group {
			pa, ok := phaseOf(a.Labels)
			if !ok {
				continue
			}
			ra := rank(pa)
			if ra < 0 {
				continue
			}
			for _, b := range group {
				if a.ID == b.ID {
					continue
				}
				pb, ok := phaseOf(b.Labels)
				if !ok {
					continue
				}
				rb := rank(pb)
				if rb < 0 {
					continue
				}
				if ra < rb {
					add(a.ID, b.ID, SourcePhase)
				}
			}
		}
	}

	// Step 3: keyword-template heuristics against other components' names.
	components := make([]string, 0, len(byComponent))
	for c := range byComponent {
		components = append(components, c)
	}
	sort.Strings(components)

	for _, t := range tasks {
		desc := strings.ToLower(t.Description)
		for _, c := range components {
			if componentMatches(t.Labels, c) {
				continue
			}
			for _, kp := range opts.KeywordPatterns {
				phrase := strings.ToLower(fmt.Sprintf(kp.Template, c))
				if strings.Contains(desc, phrase) {
					for _, candidate := range byComponent[c] {
						add(candidate.ID, t.ID, SourceKeyword)
					}
				}
			}
		}
	}

	// Step 4: optional AI advisor consultation for low-confidence pairs:
	// any two tasks in the same component with no edge between them yet,
	// capped at AdvisorBatchCap pairs per run.
	if opts.Advisor != nil {
		var candidates []advisor.DependencyPair
		for _, group := range byComponent {
			for i := 0; i < len(group) && len(candidates) < opts.AdvisorBatchCap; i++ {
				for j := 0; j < len(group) && len(candidates) < opts.AdvisorBatchCap; j++ {
					if i == j {
						continue
					}
					a, b := group[i], group[j]
					if hasEdge(g, a.ID, b.ID) || hasEdge(g, b.ID, a.ID) {
						continue
					}
					candidates = append(candidates, advisor.DependencyPair{FromTaskID: a.ID, ToTaskID: b.ID})
				}
			}
		}
		if len(candidates) > 0 {
			suggestions, err := opts.Advisor.SuggestDependencyEdges(ctx, candidates)
			if err != nil {
				opts.Logger.Printf("[DEPGRAPH] advisor consultation failed, proceeding without it: %v", err)
			}
			for _, s := range suggestions {
				if s.Confidence >= opts.AdvisorConfidence {
					add(s.Pair.FromTaskID, s.Pair.ToTaskID, SourceAdvisor)
				}
			}
		}
	}

	breakCycles(g, opts.Logger)

	return g, nil
}

func componentMatches(labels []string, component string) bool {
	c, ok := componentOf(labels)
	return ok && c == component
}

func hasEdge(g *Graph, from, to string) bool {
	for _, e := range g.edges {
		if e.From == from && e.To == to {
			return true
		}
	}
	return false
}

// sourcePriority ranks edge sources from least to most confident; when
// breaking a cycle the least confident edge on the cycle is dropped first.
var sourcePriority = map[EdgeSource]int{
	SourceAdvisor:  0,
	SourceKeyword:  1,
	SourcePhase:    2,
	SourceSubtask:  3,
	SourceDeclared: 4,
}

// breakCycles repeatedly finds a cycle via DFS and drops its
// least-confident edge until the graph is acyclic, recording a warning for
// every dropped edge (spec §4.4 step 5: "omit the smallest suspect edge
// set, with warnings").
func breakCycles(g *Graph, logger *log.Logger) {
	for {
		cycle := findCycle(g)
		if cycle == nil {
			return
		}
		victim := weakestEdge(cycle)
		removeEdge(g, victim)
		msg := fmt.Sprintf("dependency cycle detected, dropped %s edge %s -> %s", victim.Source, victim.From, victim.To)
		g.Warnings = append(g.Warnings, msg)
		logger.Printf("[DEPGRAPH] %s", msg)
	}
}

// findCycle returns the edges forming a cycle, or nil if the graph is
// acyclic.
func findCycle(g *Graph) []Edge {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)
	var path []Edge

	adj := make(map[string][]Edge)
	for _, e := range g.edges {
		adj[e.From] = append(adj[e.From], e)
	}

	var stack []string
	var visit func(node string) []Edge
	visit = func(node string) []Edge {
		color[node] = gray
		stack = append(stack, node)
		for _, e := range adj[node] {
			switch color[e.To] {
			case white:
				path = append(path, e)
				if cyc := visit(e.To); cyc != nil {
					return cyc
				}
				path = path[:len(path)-1]
			case gray:
				// Found the back edge; extract the cycle portion of path.
				cycle := []Edge{e}
				for i := len(path) - 1; i >= 0; i-- {
					cycle = append(cycle, path[i])
					if path[i].From == e.To {
						break
					}
				}
				return cycle
			}
		}
		color[node] = black
		stack = stack[:len(stack)-1]
		return nil
	}

	nodes := make([]string, 0)
	seen := make(map[string]bool)
	for _, e := range g.edges {
		if !seen[e.From] {
			seen[e.From] = true
			nodes = append(nodes, e.From)
		}
		if !seen[e.To] {
			seen[e.To] = true
			nodes = append(nodes, e.To)
		}
	}
	sort.Strings(nodes)

	for _, n := range nodes {
		if color[n] == white {
			if cyc := visit(n); cyc != nil {
				return cyc
			}
		}
	}
	return nil
}

func weakestEdge(cycle []Edge) Edge {
	weakest := cycle[0]
	for _, e := range cycle[1:] {
		if sourcePriority[e.Source] < sourcePriority[weakest.Source] {
			weakest = e
		}
	}
	return weakest
}

func removeEdge(g *Graph, victim Edge) {
	out := g.edges[:0]
	for _, e := range g.edges {
		if e == victim {
			continue
		}
		out = append(out, e)
	}
	g.edges = out

	incoming := g.byTo[victim.To][:0]
	for _, e := range g.byTo[victim.To] {
		if e == victim {
			continue
		}
		incoming = append(incoming, e)
	}
	g.byTo[victim.To] = incoming
}
