package reconciler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/marcus-ai/marcus/internal/board"
	"github.com/marcus-ai/marcus/internal/ledger"
)

func openTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestReconcileReleasesLeaseForVanishedTask(t *testing.T) {
	l := openTestLedger(t)
	if _, err := l.Acquire("agent-1", "ghost-task", time.Hour); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	adapter, err := board.NewLocalAdapter("")
	if err != nil {
		t.Fatalf("NewLocalAdapter: %v", err)
	}

	r := New(l, map[string]board.Adapter{"p1": adapter}, DefaultConfig())
	r.reconcileAll()

	if _, ok := l.ByTask("ghost-task"); ok {
		t.Error("expected lease for vanished task to be released")
	}
}

func TestReconcileReleasesLeaseForDoneTask(t *testing.T) {
	l := openTestLedger(t)
	adapter, err := board.NewLocalAdapter("")
	if err != nil {
		t.Fatalf("NewLocalAdapter: %v", err)
	}
	adapter.Seed(&board.Task{ID: "t1", Status: board.StatusDone})
	if _, err := l.Acquire("agent-1", "t1", time.Hour); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	r := New(l, map[string]board.Adapter{"p1": adapter}, DefaultConfig())
	r.reconcileAll()

	if _, ok := l.ByTask("t1"); ok {
		t.Error("expected lease for done task to be released")
	}
}

func TestReconcileExpiresStaleLeaseAndRevertsBoard(t *testing.T) {
	l := openTestLedger(t)
	adapter, err := board.NewLocalAdapter("")
	if err != nil {
		t.Fatalf("NewLocalAdapter: %v", err)
	}
	adapter.Seed(&board.Task{ID: "t1", Status: board.StatusInProgress, Assignee: "agent-1"})
	if _, err := l.Acquire("agent-1", "t1", time.Millisecond); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	cfg := DefaultConfig()
	cfg.LeaseTTL = time.Millisecond
	r := New(l, map[string]board.Adapter{"p1": adapter}, cfg)
	r.reconcileAll()

	if _, ok := l.ByTask("t1"); ok {
		t.Error("expected stale lease to be released as expired")
	}
	tasks, _ := adapter.ListTasks()
	if tasks[0].Status != board.StatusTodo {
		t.Errorf("expected board reverted to todo, got %s", tasks[0].Status)
	}
}

func TestReconcileRevertsOrphanedInProgressTask(t *testing.T) {
	l := openTestLedger(t)
	adapter, err := board.NewLocalAdapter("")
	if err != nil {
		t.Fatalf("NewLocalAdapter: %v", err)
	}
	adapter.Seed(&board.Task{ID: "t1", Status: board.StatusInProgress, Assignee: "ghost-agent"})

	r := New(l, map[string]board.Adapter{"p1": adapter}, DefaultConfig())
	r.reconcileAll()

	tasks, _ := adapter.ListTasks()
	if tasks[0].Status != board.StatusTodo {
		t.Errorf("expected orphaned task reverted to todo, got %s", tasks[0].Status)
	}
}

func TestReconcileResyncsBoardForCrashedStep7(t *testing.T) {
	l := openTestLedger(t)
	adapter, err := board.NewLocalAdapter("")
	if err != nil {
		t.Fatalf("NewLocalAdapter: %v", err)
	}
	// The lease was acquired (step 6) but the process died before the
	// board update (step 7) landed, so the board still shows todo.
	adapter.Seed(&board.Task{ID: "t1", Status: board.StatusTodo})
	if _, err := l.Acquire("agent-1", "t1", time.Hour); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	r := New(l, map[string]board.Adapter{"p1": adapter}, DefaultConfig())
	r.reconcileAll()

	if _, ok := l.ByTask("t1"); !ok {
		t.Error("expected live lease to be kept, not released")
	}
	tasks, _ := adapter.ListTasks()
	if tasks[0].Status != board.StatusInProgress {
		t.Errorf("expected board resynced to in_progress, got %s", tasks[0].Status)
	}
}

func TestReconcileRecoversLeaseForKnownAgent(t *testing.T) {
	l := openTestLedger(t)
	adapter, err := board.NewLocalAdapter("")
	if err != nil {
		t.Fatalf("NewLocalAdapter: %v", err)
	}
	adapter.Seed(&board.Task{ID: "t1", Status: board.StatusInProgress, Assignee: "agent-1"})

	cfg := DefaultConfig()
	cfg.KnownAgent = func(id string) bool { return id == "agent-1" }
	r := New(l, map[string]board.Adapter{"p1": adapter}, cfg)
	r.reconcileAll()

	lease, ok := l.ByTask("t1")
	if !ok || lease.AgentID != "agent-1" {
		t.Errorf("expected recovered lease for agent-1, got %v ok=%v", lease, ok)
	}
}
