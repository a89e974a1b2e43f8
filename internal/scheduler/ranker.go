package scheduler

import (
	"strings"
	"time"

	"github.com/marcus-ai/marcus/internal/board"
	"github.com/marcus-ai/marcus/internal/depgraph"
)

// Weights configures the ranking formula (spec §4.6). All fields are
// config-driven; zero values degrade that term out of the score.
type Weights struct {
	Skill     float64
	Priority  float64
	Age       float64
	Unblock   float64
	Mismatch  float64
	// AgeHorizon bounds the normalization window for task age; ages beyond
	// this are clamped to 1.0.
	AgeHorizon time.Duration
}

// DefaultWeights matches the starting point named in spec §6's
// configuration table.
func DefaultWeights() Weights {
	return Weights{
		Skill:      2.0,
		Priority:   1.5,
		Age:        1.0,
		Unblock:    1.0,
		Mismatch:   1.0,
		AgeHorizon: 7 * 24 * time.Hour,
	}
}

// Rank scores every task in eligible for agent a and returns the winner, or
// nil if eligible is empty (spec §4.6: "the ranker returns a single winner
// or None if E is empty"). all is the full project snapshot (not just the
// eligible subset), needed to evaluate successorsUnblockedIfDone against
// tasks that are not themselves eligible yet.
func Rank(a *board.Agent, eligible []*board.Task, all []*board.Task, g *depgraph.Graph, w Weights, now time.Time) *board.Task {
	if len(eligible) == 0 {
		return nil
	}

	byID := make(map[string]*board.Task, len(all))
	for _, t := range all {
		byID[t.ID] = t
	}

	scores := make(map[string]float64, len(eligible))
	for _, t := range eligible {
		scores[t.ID] = score(a, t, byID, g, w, now)
	}

	best := eligible[0]
	for _, t := range eligible[1:] {
		if better(t, best, scores) {
			best = t
		}
	}
	return best
}

// better reports whether candidate outranks current, applying the scored
// comparison first and the deterministic tie-break chain second (spec
// §4.6: priority, then created_at, then lexicographic id).
func better(candidate, current *board.Task, scores map[string]float64) bool {
	cs, us := scores[candidate.ID], scores[current.ID]
	if cs != us {
		return cs > us
	}
	if candidate.Priority.Weight() != current.Priority.Weight() {
		return candidate.Priority.Weight() > current.Priority.Weight()
	}
	if !candidate.CreatedAt.Equal(current.CreatedAt) {
		return candidate.CreatedAt.Before(current.CreatedAt)
	}
	return candidate.ID < current.ID
}

func score(a *board.Agent, t *board.Task, byID map[string]*board.Task, g *depgraph.Graph, w Weights, now time.Time) float64 {
	s := 0.0
	s += w.Skill * skillOverlap(a, t)
	s += w.Priority * t.Priority.Weight()
	s += w.Age * normalizeAge(t.CreatedAt, now, w.AgeHorizon)
	s += w.Unblock * float64(successorsUnblockedIfDone(t, byID, g))
	s -= w.Mismatch * skillMismatchPenalty(a, t)
	return s
}

// taskSkills returns a task's declared skill:* and component:* labels.
func taskSkills(t *board.Task) []string {
	var skills []string
	for _, l := range t.Labels {
		if strings.HasPrefix(l, "skill:") || strings.HasPrefix(l, "component:") {
			skills = append(skills, l)
		}
	}
	return skills
}

// skillOverlap is the size of the intersection of an agent's capabilities
// with the task's declared skill labels, divided by the task's declared
// skill count. A task with no declared skills scores 0 here -- neutral, not
// zero-weighted, so skill-less tasks are never starved (spec §4.6).
func skillOverlap(a *board.Agent, t *board.Task) float64 {
	skills := taskSkills(t)
	if len(skills) == 0 {
		return 0
	}
	overlap := 0
	for _, s := range skills {
		// A skill label reads "skill:go" or "component:storage"; compare
		// against the agent's bare capability strings.
		v := s
		if i := strings.IndexByte(s, ':'); i >= 0 {
			v = s[i+1:]
		}
		if a.HasCapability(v) {
			overlap++
		}
	}
	return float64(overlap) / float64(len(skills))
}

// skillMismatchPenalty penalizes an agent taking a task whose declared
// skills it has none of, when the task does declare skills.
func skillMismatchPenalty(a *board.Agent, t *board.Task) float64 {
	skills := taskSkills(t)
	if len(skills) == 0 {
		return 0
	}
	if skillOverlap(a, t) > 0 {
		return 0
	}
	return 1
}

// normalizeAge maps task age into [0, 1] against a configured horizon.
func normalizeAge(createdAt, now time.Time, horizon time.Duration) float64 {
	if horizon <= 0 {
		return 0
	}
	age := now.Sub(createdAt)
	if age <= 0 {
		return 0
	}
	n := float64(age) / float64(horizon)
	if n > 1 {
		n = 1
	}
	return n
}

// successorsUnblockedIfDone counts t's successors across the whole project
// (not just the currently-eligible set) that would become eligible the
// moment t completes -- i.e. every other predecessor they declare is already
// done. This is what biases the scheduler toward the critical path (spec
// §4.6): a task gating several otherwise-ready successors outranks one that
// gates nothing.
func successorsUnblockedIfDone(t *board.Task, byID map[string]*board.Task, g *depgraph.Graph) int {
	count := 0
	for _, successorID := range g.Successors(t.ID) {
		successor, ok := byID[successorID]
		if !ok || successor.Status == board.StatusDone {
			continue
		}
		if otherPredecessorsDone(successorID, t.ID, byID, g) {
			count++
		}
	}
	return count
}

// otherPredecessorsDone reports whether every predecessor of taskID other
// than except is already done.
func otherPredecessorsDone(taskID, except string, byID map[string]*board.Task, g *depgraph.Graph) bool {
	for _, p := range g.Predecessors(taskID) {
		if p == except {
			continue
		}
		pred, ok := byID[p]
		if !ok || pred.Status != board.StatusDone {
			return false
		}
	}
	return true
}
