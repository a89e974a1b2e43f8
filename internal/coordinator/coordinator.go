// Package coordinator implements the Coordinator (C8): the single-writer,
// per-project orchestration of register_agent, request_next_task,
// report_progress, report_blocker, report_completion, log_decision, and
// get_task_context (spec §4.8).
package coordinator

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/marcus-ai/marcus/internal/advisor"
	"github.com/marcus-ai/marcus/internal/agentreg"
	"github.com/marcus-ai/marcus/internal/board"
	"github.com/marcus-ai/marcus/internal/depgraph"
	"github.com/marcus-ai/marcus/internal/events"
	"github.com/marcus-ai/marcus/internal/ledger"
	"github.com/marcus-ai/marcus/internal/memory"
	"github.com/marcus-ai/marcus/internal/notify"
	"github.com/marcus-ai/marcus/internal/scheduler"
	"github.com/marcus-ai/marcus/internal/taskcontext"
)

// Config holds every tunable named in spec §6's configuration table that
// the Coordinator itself consults.
type Config struct {
	LeaseTTL      time.Duration
	LeaseRetryK   int
	RankerWeights scheduler.Weights
	DepInference  depgraph.Options
	ContextOpts   taskcontext.Options
	// OpDeadline bounds how long a single coordinator op may spend in its
	// suspension points -- board-adapter calls and ledger fsyncs (spec §5
	// "Suspension points"). Zero disables the bound.
	OpDeadline time.Duration
}

// DefaultConfig matches the defaults spelled out in spec §6.
func DefaultConfig() Config {
	return Config{
		LeaseTTL:      10 * time.Minute,
		LeaseRetryK:   3,
		RankerWeights: scheduler.DefaultWeights(),
		DepInference:  depgraph.Options{},
		ContextOpts:   taskcontext.Options{IncludePatternHints: true, MaxBytes: 32 * 1024},
		OpDeadline:    30 * time.Second,
	}
}

// project is the per-project writer state: a single mutex serializes every
// coordinator operation against that project, and a cached dependency graph
// is reused until the board snapshot version advances (spec §4.8 step 3).
type project struct {
	mu            sync.Mutex
	id            string
	adapter       board.Adapter
	cachedVersion int
	cachedGraph   *depgraph.Graph
	// lastPercent tracks the last percent reported per "agentID/taskID"
	// lease, so report_progress can detect and log out-of-order
	// (decreasing) progress (spec §4.8 "report_progress").
	lastPercent map[string]int
}

// Coordinator is the assignment and coordination engine's single entry
// point; handlers (control protocol) call its methods directly.
type Coordinator struct {
	mu       sync.Mutex // guards projects map only, never held during an op
	projects map[string]*project

	ledger  *ledger.Ledger
	store   memory.Store
	agents  *agentreg.Registry
	bus     *events.Bus
	advisor  advisor.Advisor
	notifier *notify.Notifier
	announce func(projectID string)
	cfg      Config
	log      *log.Logger
}

// SetNotifier attaches an operator-alert notifier; nil disables alerts.
func (c *Coordinator) SetNotifier(n *notify.Notifier) {
	c.notifier = n
}

// SetBoardChangeAnnouncer attaches a callback fired after this process makes
// a board-mutating call (assign/block/complete), so a NATS bridge (or any
// other fan-out) can tell sibling Marcus processes sharing the same board to
// invalidate their cached snapshot instead of waiting out a poll (spec §4.1
// push-notification path). nil disables announcing.
func (c *Coordinator) SetBoardChangeAnnouncer(fn func(projectID string)) {
	c.announce = fn
}

func (c *Coordinator) announceBoardChange(projectID string) {
	if c.announce != nil {
		c.announce(projectID)
	}
}

// InvalidateSnapshot drops a project's cached dependency graph so the next
// snapshot() call rebuilds from a fresh adapter fetch instead of reusing a
// fingerprint match. A board-change bridge calls this when a sibling process
// or the board provider itself reports a push notification (spec §4.1).
func (c *Coordinator) InvalidateSnapshot(projectID string) {
	p, err := c.projectFor(projectID)
	if err != nil {
		return
	}
	p.mu.Lock()
	p.cachedGraph = nil
	p.cachedVersion = 0
	p.mu.Unlock()
}

// New builds a Coordinator. advisorImpl may be nil, in which case
// advisor.NullAdvisor is used (spec §5 backpressure: absent advisor is
// equivalent to a saturated one).
func New(l *ledger.Ledger, store memory.Store, agents *agentreg.Registry, bus *events.Bus, advisorImpl advisor.Advisor, cfg Config) *Coordinator {
	if advisorImpl == nil {
		advisorImpl = advisor.NullAdvisor{}
	}
	return &Coordinator{
		projects: make(map[string]*project),
		ledger:   l,
		store:    store,
		agents:   agents,
		bus:      bus,
		advisor:  advisorImpl,
		cfg:      cfg,
		log:      log.New(os.Stderr, "[COORDINATOR] ", log.LstdFlags),
	}
}

// RegisterProject attaches a board adapter to a project id; idempotent.
func (c *Coordinator) RegisterProject(projectID string, adapter board.Adapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.projects[projectID]; ok {
		return
	}
	c.projects[projectID] = &project{id: projectID, adapter: adapter}
}

func (c *Coordinator) projectFor(projectID string) (*project, *Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.projects[projectID]
	if !ok {
		return nil, newError(KindNotFound, nil, "unknown project %q", projectID)
	}
	return p, nil
}

// RegisterAgent is pure memory mutation, idempotent on (name, role) within
// this process (spec §4.8, §8 "Idempotence of register").
func (c *Coordinator) RegisterAgent(name, role string, skills []string) (*board.Agent, error) {
	if name == "" || role == "" {
		return nil, newError(KindMalformedInput, nil, "name and role are required")
	}
	return c.agents.Register(name, role, skills), nil
}

// snapshot fetches the board and rebuilds (or reuses) the dependency graph
// for p, tracking the snapshot's effective version as its task count and
// content identity -- the adapter interface (spec §4.1) has no explicit
// version field, so the cache keys off a content fingerprint instead.
func (c *Coordinator) snapshot(ctx context.Context, p *project) ([]*board.Task, *depgraph.Graph, *Error) {
	tasks, err := p.adapter.ListTasks()
	if err != nil {
		return nil, nil, classifyAdapterError(err)
	}

	version := fingerprint(tasks)
	if p.cachedGraph != nil && p.cachedVersion == version {
		return tasks, p.cachedGraph, nil
	}

	g, err := depgraph.Infer(ctx, tasks, c.cfg.DepInference)
	if err != nil {
		return nil, nil, newError(KindInternal, err, "dependency inference failed")
	}
	for _, w := range g.Warnings {
		c.log.Printf("project=%s %s", p.id, w)
	}
	p.cachedGraph = g
	p.cachedVersion = version
	return tasks, g, nil
}

// fingerprint is a cheap content-based snapshot version: good enough to
// detect "the board changed" without requiring the adapter to expose a
// monotonic counter.
func fingerprint(tasks []*board.Task) int {
	h := 0
	for _, t := range tasks {
		h = h*31 + len(t.ID) + len(t.Status) + len(t.Dependencies)
		if t.UpdatedAt.IsZero() {
			continue
		}
		h = h*31 + int(t.UpdatedAt.Unix()%1000003)
	}
	return h
}

// withOpDeadline bounds ctx to the configured per-op deadline; a zero
// deadline leaves ctx untouched (spec §5: deadlines are configuration, not
// mandatory).
func (c *Coordinator) withOpDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.OpDeadline <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.OpDeadline)
}

// checkDeadline reports the Timeout error if ctx's deadline has passed at
// one of the op's suspension points (spec §5: "exceeding the deadline
// cancels the op and surfaces Timeout").
func checkDeadline(ctx context.Context, op string) *Error {
	if ctx.Err() != nil {
		return newError(KindTimeout, ctx.Err(), "%s exceeded its deadline", op)
	}
	return nil
}

func classifyAdapterError(err error) *Error {
	var transient *board.TransientProviderError
	if asTransient(err, &transient) {
		return newError(KindTransientProviderError, err, "%s", transient.Error())
	}
	return newError(KindPermanentProviderError, err, "%s", err.Error())
}

func asTransient(err error, target **board.TransientProviderError) bool {
	for err != nil {
		if t, ok := err.(*board.TransientProviderError); ok {
			*target = t
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return false
}

// RequestNextTask implements spec §4.8's request_next_task state machine.
func (c *Coordinator) RequestNextTask(ctx context.Context, projectID, agentID string) (*board.Task, *taskcontext.Bundle, error) {
	ctx, cancel := c.withOpDeadline(ctx)
	defer cancel()

	p, perr := c.projectFor(projectID)
	if perr != nil {
		return nil, nil, perr
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	agent, ok := c.agents.Get(agentID)
	if !ok {
		return nil, nil, newError(KindNotFound, nil, "unknown agent %q", agentID)
	}

	// Step 1: already-assigned short circuit.
	if lease, ok := c.ledger.ByAgent(agentID); ok {
		return nil, nil, newError(KindAlreadyAssigned, nil, "agent already holds lease on task %q", lease.TaskID)
	}

	// Steps 2-3: refresh snapshot, build/reuse G.
	tasks, g, serr := c.snapshot(ctx, p)
	if serr != nil {
		return nil, nil, serr
	}
	if terr := checkDeadline(ctx, "request_next_task"); terr != nil {
		return nil, nil, terr
	}
	byID := make(map[string]*board.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	// Step 4: eligibility.
	checker := scheduler.NewLedgerChecker(c.ledger)
	eligible := scheduler.EligibleSet(tasks, g, checker)

	excluded := make(map[string]bool)
	retries := c.cfg.LeaseRetryK
	for {
		// Step 5: rank, excluding anything we've already failed to lease.
		var candidates []*board.Task
		for _, t := range eligible {
			if !excluded[t.ID] {
				candidates = append(candidates, t)
			}
		}
		winner := scheduler.Rank(agent, candidates, tasks, g, c.cfg.RankerWeights, time.Now())
		if winner == nil {
			return nil, nil, newError(KindNoWork, nil, "no eligible task for agent %q", agentID)
		}

		// Step 6: acquire lease.
		lease, err := c.ledger.Acquire(agentID, winner.ID, c.cfg.LeaseTTL)
		if err != nil {
			if retries <= 0 {
				return nil, nil, newError(KindNoWork, nil, "lease acquisition conflicted %d times, no work available", c.cfg.LeaseRetryK+1)
			}
			retries--
			excluded[winner.ID] = true
			continue
		}

		// Step 7: mark in_progress + assignee via C1; on failure, or on a
		// blown deadline, release the lease and propagate (spec §5: "any
		// partially-applied lease is released before returning").
		if err := p.adapter.UpdateTaskStatus(winner.ID, board.StatusInProgress); err != nil {
			c.ledger.Release(agentID, winner.ID, ledger.OutcomeAbandoned)
			return nil, nil, classifyAdapterError(err)
		}
		if err := p.adapter.AssignTask(winner.ID, agentID); err != nil {
			c.ledger.Release(agentID, winner.ID, ledger.OutcomeAbandoned)
			return nil, nil, classifyAdapterError(err)
		}
		if terr := checkDeadline(ctx, "request_next_task"); terr != nil {
			c.ledger.Release(agentID, winner.ID, ledger.OutcomeAbandoned)
			return nil, nil, terr
		}
		if err := winner.TransitionTo(board.StatusInProgress); err != nil {
			// The adapter's own update already succeeded; this would only
			// fire if a board fed us a task already mid-transition out from
			// under the in-memory snapshot, so log rather than fail the op.
			c.log.Printf("project=%s task=%s local state machine rejected transition to in_progress: %v", p.id, winner.ID, err)
			winner.Status = board.StatusInProgress
		}
		winner.Assignee = agentID
		c.agents.SetCurrentTask(agentID, winner.ID)

		// Step 8: assemble context.
		bundle, err := taskcontext.Assemble(ctx, winner, byID, g, c.store, agentID, c.cfg.ContextOpts)
		if err != nil {
			c.log.Printf("project=%s task=%s context assembly failed: %v", p.id, winner.ID, err)
			bundle = &taskcontext.Bundle{TaskID: winner.ID}
		}

		c.publish(events.TypeLeaseAcquired, p.id, agentID, map[string]interface{}{"task_id": winner.ID, "lease_id": lease.ID})
		c.publish(events.TypeTaskAssigned, p.id, "all", map[string]interface{}{"task_id": winner.ID, "agent_id": agentID})
		c.announceBoardChange(p.id)

		return winner, bundle, nil
	}
}

// ReportProgress heartbeats the lease, appends a comment, and treats
// percent=100 as completion (spec §4.8).
func (c *Coordinator) ReportProgress(ctx context.Context, projectID, agentID, taskID string, percent int, message string) error {
	if percent == 100 {
		return c.ReportCompletion(ctx, projectID, agentID, taskID, message)
	}

	ctx, cancel := c.withOpDeadline(ctx)
	defer cancel()

	p, perr := c.projectFor(projectID)
	if perr != nil {
		return perr
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := c.ledger.Heartbeat(agentID, taskID); err != nil {
		return newError(KindNotFound, err, "no live lease for agent %q on task %q", agentID, taskID)
	}
	if err := p.adapter.AddComment(taskID, fmt.Sprintf("progress %d%%: %s", percent, message)); err != nil {
		return classifyAdapterError(err)
	}
	if terr := checkDeadline(ctx, "report_progress"); terr != nil {
		return terr
	}

	// Out-of-order progress is accepted but logged as anomalous (spec
	// §4.8): an agent may legitimately re-estimate downward, but a
	// decreasing percent is still worth a flag for operators.
	key := agentID + "/" + taskID
	if p.lastPercent == nil {
		p.lastPercent = make(map[string]int)
	}
	if last, ok := p.lastPercent[key]; ok && percent < last {
		c.log.Printf("project=%s task=%s agent=%s anomalous: progress decreased from %d%% to %d%%", p.id, taskID, agentID, last, percent)
	}
	p.lastPercent[key] = percent

	c.publish(events.TypeTaskProgress, p.id, "all", map[string]interface{}{"task_id": taskID, "agent_id": agentID, "percent": percent})
	return nil
}

// ReportBlocker transitions a task to blocked while the agent retains its
// lease, optionally attaching an advisor suggestion (spec §4.8).
func (c *Coordinator) ReportBlocker(ctx context.Context, projectID, agentID, taskID, description string) (string, error) {
	ctx, cancel := c.withOpDeadline(ctx)
	defer cancel()

	p, perr := c.projectFor(projectID)
	if perr != nil {
		return "", perr
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	lease, ok := c.ledger.ByAgent(agentID)
	if !ok || lease.TaskID != taskID {
		return "", newError(KindNotFound, nil, "no live lease for agent %q on task %q", agentID, taskID)
	}

	if err := p.adapter.UpdateTaskStatus(taskID, board.StatusBlocked); err != nil {
		return "", classifyAdapterError(err)
	}
	c.announceBoardChange(p.id)
	if terr := checkDeadline(ctx, "report_blocker"); terr != nil {
		return "", terr
	}

	taskDescription := taskID
	if tasks, err := p.adapter.ListTasks(); err == nil {
		for _, t := range tasks {
			if t.ID == taskID {
				taskDescription = t.Description
				break
			}
		}
	}
	suggestion, err := c.advisor.SuggestBlockerFix(ctx, taskDescription, description)
	if err != nil {
		c.log.Printf("project=%s task=%s advisor blocker-fix call failed: %v", p.id, taskID, err)
		suggestion = ""
	}
	comment := "blocked: " + description
	if suggestion != "" {
		comment += "\nsuggestion: " + suggestion
	}
	if err := p.adapter.AddComment(taskID, comment); err != nil {
		return "", classifyAdapterError(err)
	}

	if c.notifier != nil {
		if err := c.notifier.NotifyBlocker(p.id, taskID, description, suggestion); err != nil {
			c.log.Printf("project=%s task=%s blocker notification failed: %v", p.id, taskID, err)
		}
	}

	c.publish(events.TypeTaskBlocked, p.id, "all", map[string]interface{}{"task_id": taskID, "agent_id": agentID, "description": description})
	return suggestion, nil
}

// ReportCompletion marks a task done, releases the lease, and records the
// summary as a doc artifact (spec §4.8). Idempotent: completing an
// already-done task is a no-op returning success (spec §8).
func (c *Coordinator) ReportCompletion(ctx context.Context, projectID, agentID, taskID, summary string) error {
	ctx, cancel := c.withOpDeadline(ctx)
	defer cancel()

	p, perr := c.projectFor(projectID)
	if perr != nil {
		return perr
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	lease, ok := c.ledger.ByAgent(agentID)
	if !ok || lease.TaskID != taskID {
		tasks, err := p.adapter.ListTasks()
		if err == nil {
			for _, t := range tasks {
				if t.ID == taskID && t.Status == board.StatusDone {
					return nil // already done: idempotent no-op (spec §8)
				}
			}
		}
		return newError(KindNotFound, nil, "no live lease for agent %q on task %q", agentID, taskID)
	}

	if err := p.adapter.UpdateTaskStatus(taskID, board.StatusDone); err != nil {
		return classifyAdapterError(err)
	}
	c.announceBoardChange(p.id)
	if terr := checkDeadline(ctx, "report_task_completion"); terr != nil {
		return terr
	}
	if err := c.ledger.Release(agentID, taskID, ledger.OutcomeCompleted); err != nil {
		return newError(KindInternal, err, "release after completion failed")
	}
	c.agents.SetCurrentTask(agentID, "")
	c.agents.IncrementCompletions(agentID)
	delete(p.lastPercent, agentID+"/"+taskID)

	artifact := &memory.Artifact{
		ProjectID: p.id,
		TaskID:    taskID,
		Kind:      memory.KindDoc,
		Summary:   summary,
		Body:      summary,
		Timestamp: time.Now(),
	}
	if err := c.store.StoreArtifact(artifact); err != nil {
		c.log.Printf("project=%s task=%s failed to record completion artifact: %v", p.id, taskID, err)
	}

	c.publish(events.TypeTaskCompleted, p.id, "all", map[string]interface{}{"task_id": taskID, "agent_id": agentID})
	return nil
}

// LogDecision parses the fixed decision shape and appends it to C3 (spec
// §4.8).
func (c *Coordinator) LogDecision(projectID, agentID, taskID, text string) (*memory.Decision, error) {
	parsed, err := memory.ParseDecisionText(text)
	if err != nil {
		return nil, newError(KindMalformedDecision, err, "%s", err.Error())
	}

	d := &memory.Decision{
		ProjectID: projectID,
		TaskID:    taskID,
		AgentID:   agentID,
		Timestamp: time.Now(),
		What:      parsed.What,
		Why:       parsed.Why,
		Affects:   parsed.Affects,
	}
	if err := c.store.StoreDecision(d); err != nil {
		return nil, newError(KindInternal, err, "failed to store decision")
	}

	c.publish(events.TypeDecisionLogged, projectID, "all", map[string]interface{}{"task_id": taskID, "agent_id": agentID, "affects": d.Affects})
	return d, nil
}

// GetTaskContext runs C7 read-only, without requiring a lease (spec §4.8).
func (c *Coordinator) GetTaskContext(ctx context.Context, projectID, taskID string) (*taskcontext.Bundle, error) {
	ctx, cancel := c.withOpDeadline(ctx)
	defer cancel()

	p, perr := c.projectFor(projectID)
	if perr != nil {
		return nil, perr
	}

	tasks, g, serr := c.snapshot(ctx, p)
	if serr != nil {
		return nil, serr
	}
	if terr := checkDeadline(ctx, "get_task_context"); terr != nil {
		return nil, terr
	}
	byID := make(map[string]*board.Task, len(tasks))
	var target *board.Task
	for _, t := range tasks {
		byID[t.ID] = t
		if t.ID == taskID {
			target = t
		}
	}
	if target == nil {
		return nil, newError(KindNotFound, nil, "unknown task %q", taskID)
	}

	bundle, err := taskcontext.Assemble(ctx, target, byID, g, c.store, "", c.cfg.ContextOpts)
	if err != nil {
		return nil, newError(KindInternal, err, "context assembly failed")
	}
	return bundle, nil
}

// ProjectStatus is the get_project_status result shape (spec §6): task
// counts by status plus the blocked and in-progress work lists.
type ProjectStatus struct {
	ProjectID    string          `json:"project_id"`
	TotalTasks   int             `json:"total_tasks"`
	ByStatus     map[string]int  `json:"by_status"`
	Blocked      []*board.Task   `json:"blocked"`
	InProgress   []*board.Task   `json:"in_progress"`
	RecentDone   []*board.Task   `json:"recent_done"`
}

// AgentStatus is the get_agent_status result shape (spec §6): the agent's
// current assignment and its recent decision history.
type AgentStatus struct {
	Agent           *board.Agent       `json:"agent"`
	CurrentLease    *ledger.Lease      `json:"current_lease,omitempty"`
	RecentDecisions []*memory.Decision `json:"recent_decisions"`
}

// ProjectStatus aggregates the board's current state for a project (spec
// §6 get_project_status). Read-only, no lease required.
func (c *Coordinator) ProjectStatus(projectID string) (*ProjectStatus, error) {
	p, perr := c.projectFor(projectID)
	if perr != nil {
		return nil, perr
	}

	tasks, err := p.adapter.ListTasks()
	if err != nil {
		return nil, classifyAdapterError(err)
	}

	status := &ProjectStatus{
		ProjectID: projectID,
		ByStatus:  make(map[string]int),
	}
	for _, t := range tasks {
		status.TotalTasks++
		status.ByStatus[string(t.Status)]++
		switch t.Status {
		case board.StatusBlocked:
			status.Blocked = append(status.Blocked, t)
		case board.StatusInProgress:
			status.InProgress = append(status.InProgress, t)
		case board.StatusDone:
			status.RecentDone = append(status.RecentDone, t)
		}
	}
	if len(status.RecentDone) > 10 {
		status.RecentDone = status.RecentDone[len(status.RecentDone)-10:]
	}
	return status, nil
}

// AgentStatus reports an agent's current assignment and recent activity
// (spec §6 get_agent_status).
func (c *Coordinator) AgentStatus(agentID string) (*AgentStatus, error) {
	agent, ok := c.agents.Get(agentID)
	if !ok {
		return nil, newError(KindNotFound, nil, "unknown agent %q", agentID)
	}

	decisions, err := c.store.ByAgent(agentID, 10)
	if err != nil {
		return nil, newError(KindInternal, err, "failed to load agent decision history")
	}

	status := &AgentStatus{Agent: agent, RecentDecisions: decisions}
	if lease, ok := c.ledger.ByAgent(agentID); ok {
		status.CurrentLease = lease
	}
	return status, nil
}

func (c *Coordinator) publish(typ events.Type, projectID, target string, payload map[string]interface{}) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(events.New(typ, projectID, target, events.PriorityNormal, payload))
}
