// Package advisor defines the narrow interface to the out-of-core AI
// advisor (spec §1: "AI advisor used for task enrichment and blocker
// suggestions" -- named where it interacts with the core; its internals are
// not specified here).
package advisor

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// DependencyPair is a candidate edge the deterministic passes of dependency
// inference (spec §4.4) were not confident enough to add on their own.
type DependencyPair struct {
	FromTaskID string
	ToTaskID   string
}

// DependencySuggestion is the advisor's opinion on a DependencyPair.
type DependencySuggestion struct {
	Pair       DependencyPair
	Confidence float64 // 0..1
}

// ContextBundle is the ground-truth material the Context Assembler (C7) has
// already gathered; the advisor may use it to produce integration hints but
// never to originate artifacts of its own (spec §4.7).
type ContextBundle struct {
	TaskDescription string
	PredecessorText []string
	SiblingText     []string
}

// Advisor is the interface the core depends on; its implementation (model
// choice, prompts, API transport) is explicitly out of scope (spec §1).
type Advisor interface {
	// SuggestDependencyEdges returns a confidence-scored opinion for each
	// pair, used by C4 step 4. Implementations must return promptly; the
	// caller enforces the batch cap and confidence threshold from config,
	// not the advisor.
	SuggestDependencyEdges(ctx context.Context, pairs []DependencyPair) ([]DependencySuggestion, error)

	// AnnotateContext returns advisory integration-hint text for a task
	// given its assembled context bundle (spec §4.7 "Advisory notes").
	AnnotateContext(ctx context.Context, bundle ContextBundle) (string, error)

	// SuggestBlockerFix returns an optional suggestion for an agent-reported
	// blocker (spec §4.8 report_blocker).
	SuggestBlockerFix(ctx context.Context, taskDescription, blockerDescription string) (string, error)
}

// NullAdvisor is a no-op Advisor used when the advisor is disabled
// (dep_inference.enable_ai = false) or unreachable; every call degrades to
// "no opinion" rather than blocking the caller (spec §5 Backpressure).
type NullAdvisor struct{}

func (NullAdvisor) SuggestDependencyEdges(context.Context, []DependencyPair) ([]DependencySuggestion, error) {
	return nil, nil
}

func (NullAdvisor) AnnotateContext(context.Context, ContextBundle) (string, error) {
	return "", nil
}

func (NullAdvisor) SuggestBlockerFix(context.Context, string, string) (string, error) {
	return "", nil
}

// RateLimited wraps an Advisor with a token-bucket rate limiter. When no
// token is available, calls return immediately with a zero result rather
// than blocking, so that C4 and C7 proceed without advisor input per spec §5.
// It limits the rate at which calls start; it does not count calls still in
// flight, so slow advisor calls do not hold tokens.
type RateLimited struct {
	inner   Advisor
	limiter *rate.Limiter
	maxWait time.Duration
}

// NewRateLimited wraps inner with a token-bucket limiter whose burst is
// maxInFlight tokens, refilled at one token per every; Allow() failures mean
// "proceed without advice", never "block".
func NewRateLimited(inner Advisor, maxInFlight int, every time.Duration) *RateLimited {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Every(every), maxInFlight),
	}
}

func (r *RateLimited) SuggestDependencyEdges(ctx context.Context, pairs []DependencyPair) ([]DependencySuggestion, error) {
	if !r.limiter.Allow() {
		return nil, nil
	}
	return r.inner.SuggestDependencyEdges(ctx, pairs)
}

func (r *RateLimited) AnnotateContext(ctx context.Context, bundle ContextBundle) (string, error) {
	if !r.limiter.Allow() {
		return "", nil
	}
	return r.inner.AnnotateContext(ctx, bundle)
}

func (r *RateLimited) SuggestBlockerFix(ctx context.Context, taskDescription, blockerDescription string) (string, error) {
	if !r.limiter.Allow() {
		return "", nil
	}
	return r.inner.SuggestBlockerFix(ctx, taskDescription, blockerDescription)
}
