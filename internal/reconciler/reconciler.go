// Package reconciler implements the Reconciler (C9): startup and
// timer-driven replay/reconcile/expire/orphan-recovery over the ledger and
// board (spec §4.9).
package reconciler

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/marcus-ai/marcus/internal/board"
	"github.com/marcus-ai/marcus/internal/ledger"
	"github.com/marcus-ai/marcus/internal/notify"
)

// Config configures reconciliation cadence and behavior (spec §6
// reconciler.interval, reconciler.revert_orphans).
type Config struct {
	Interval       time.Duration
	RevertOrphans  bool
	LeaseTTL       time.Duration
	KnownAgent     func(agentID string) bool // reports whether an assignee is a known, live agent
}

// DefaultConfig matches spec §4.9's "every 30s" cadence.
func DefaultConfig() Config {
	return Config{
		Interval:      30 * time.Second,
		RevertOrphans: true,
		LeaseTTL:      10 * time.Minute,
		KnownAgent:    func(string) bool { return false },
	}
}

// Reconciler owns a ledger and a set of per-project board adapters; it runs
// standalone from the Coordinator so a stuck coordinator op never blocks
// reconciliation.
type Reconciler struct {
	ledger   *ledger.Ledger
	adapters map[string]board.Adapter
	cfg      Config
	log      *log.Logger
	notifier *notify.Notifier
}

// SetNotifier attaches an operator-alert notifier; nil disables alerts.
func (r *Reconciler) SetNotifier(n *notify.Notifier) {
	r.notifier = n
}

// New builds a Reconciler over adapters keyed by project id.
func New(l *ledger.Ledger, adapters map[string]board.Adapter, cfg Config) *Reconciler {
	if cfg.Interval <= 0 {
		cfg = DefaultConfig()
	}
	if cfg.KnownAgent == nil {
		cfg.KnownAgent = func(string) bool { return false }
	}
	return &Reconciler{
		ledger:   l,
		adapters: adapters,
		cfg:      cfg,
		log:      log.New(os.Stderr, "[RECONCILER] ", log.LstdFlags),
	}
}

// Run executes one reconciliation pass immediately (spec §4.9 step 1: "runs
// on startup"), then loops on cfg.Interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	r.log.Println("reconciler started")
	r.reconcileAll()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Println("reconciler stopped")
			return
		case <-ticker.C:
			r.reconcileAll()
		}
	}
}

func (r *Reconciler) reconcileAll() {
	for projectID, adapter := range r.adapters {
		if err := r.reconcileProject(projectID, adapter); err != nil {
			r.log.Printf("project=%s reconciliation failed: %v", projectID, err)
		}
	}
}

// reconcileProject implements spec §4.9 steps 2-4 for one project.
func (r *Reconciler) reconcileProject(projectID string, adapter board.Adapter) error {
	tasks, err := adapter.ListTasks()
	if err != nil {
		return err
	}
	byID := make(map[string]*board.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	now := time.Now()

	// Step 3: reconcile every active lease against board reality.
	for _, lease := range r.ledger.ListActive() {
		task, exists := byID[lease.TaskID]
		switch {
		case !exists:
			r.releaseWithLog(lease, ledger.OutcomeExpired, "task no longer exists on board")
		case task.Status == board.StatusDone:
			r.releaseWithLog(lease, ledger.OutcomeCompleted, "board already shows task done")
		case task.Status == board.StatusCancelled:
			r.releaseWithLog(lease, ledger.OutcomeAbandoned, "board shows task cancelled")
		case lease.Stale(now, r.cfg.LeaseTTL):
			r.releaseWithLog(lease, ledger.OutcomeExpired, "heartbeat older than lease_ttl")
			if err := adapter.UpdateTaskStatus(lease.TaskID, board.StatusTodo); err != nil {
				r.log.Printf("project=%s task=%s best-effort revert to todo failed: %v", projectID, lease.TaskID, err)
			}
		case task.Status == board.StatusTodo:
			// Crash recovery (spec §4.9 step 3 scenario 4): the lease is
			// live and not stale, so request_next_task step 6's acquire
			// succeeded, but the process died before step 7's board update
			// landed. Keep the lease and resynchronize the board instead of
			// releasing work the agent may still be doing.
			if err := adapter.UpdateTaskStatus(lease.TaskID, board.StatusInProgress); err != nil {
				r.log.Printf("project=%s task=%s crash-recovery resync to in_progress failed: %v", projectID, lease.TaskID, err)
			} else {
				r.log.Printf("project=%s task=%s crash recovery: resynced board to in_progress for live lease held by %s", projectID, lease.TaskID, lease.AgentID)
			}
		}
	}

	// Step 4: warn on orphans -- in_progress on the board with no live lease.
	for _, t := range tasks {
		if t.Status != board.StatusInProgress {
			continue
		}
		if _, ok := r.ledger.ByTask(t.ID); ok {
			continue
		}
		r.log.Printf("project=%s task=%s orphaned: in_progress on board with no live lease", projectID, t.ID)
		if r.notifier != nil {
			if err := r.notifier.NotifyReconciliation(projectID, t.ID, "orphaned in_progress task with no live lease"); err != nil {
				r.log.Printf("project=%s task=%s reconciliation notification failed: %v", projectID, t.ID, err)
			}
		}

		if t.Assignee != "" && r.cfg.KnownAgent(t.Assignee) {
			if _, err := r.ledger.Acquire(t.Assignee, t.ID, r.cfg.LeaseTTL); err != nil {
				r.log.Printf("project=%s task=%s failed to recover lease for known agent %s: %v", projectID, t.ID, t.Assignee, err)
			} else {
				r.log.Printf("project=%s task=%s recovered lease for agent %s", projectID, t.ID, t.Assignee)
			}
			continue
		}

		if r.cfg.RevertOrphans {
			if err := adapter.UpdateTaskStatus(t.ID, board.StatusTodo); err != nil {
				r.log.Printf("project=%s task=%s failed to revert orphan to todo: %v", projectID, t.ID, err)
			}
		}
	}

	return nil
}

func (r *Reconciler) releaseWithLog(lease *ledger.Lease, outcome ledger.Outcome, reason string) {
	if _, err := r.ledger.ReleaseTask(lease.TaskID, outcome); err != nil {
		r.log.Printf("task=%s release (%s) failed: %v", lease.TaskID, reason, err)
		return
	}
	r.log.Printf("task=%s agent=%s released as %s: %s", lease.TaskID, lease.AgentID, outcome, reason)
}
