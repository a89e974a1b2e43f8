package mcpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/marcus-ai/marcus/internal/agentreg"
	"github.com/marcus-ai/marcus/internal/board"
	"github.com/marcus-ai/marcus/internal/coordinator"
	"github.com/marcus-ai/marcus/internal/events"
	"github.com/marcus-ai/marcus/internal/ledger"
	"github.com/marcus-ai/marcus/internal/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *board.LocalAdapter) {
	t.Helper()
	dir := t.TempDir()

	l, err := ledger.Open(filepath.Join(dir, "ledger.db"))
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	store, err := memory.Open(filepath.Join(dir, "memory.db"))
	if err != nil {
		t.Fatalf("memory.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	adapter, err := board.NewLocalAdapter(filepath.Join(dir, "board.json"))
	if err != nil {
		t.Fatalf("NewLocalAdapter: %v", err)
	}

	coord := coordinator.New(l, store, agentreg.New(), events.NewBus(nil), nil, coordinator.DefaultConfig())
	coord.RegisterProject("proj-1", adapter)

	srv := NewServer(coord)
	router := mux.NewRouter()
	srv.RegisterRoutes(router)
	return httptest.NewServer(router), adapter
}

func postCall(t *testing.T, srv *httptest.Server, tool ToolName, args interface{}) Response {
	t.Helper()
	body, err := json.Marshal(Request{Tool: tool, Arguments: mustJSON(t, args)})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(srv.URL+"/v1/call", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	return data
}

func TestRegisterAgentAndGetAgentStatus(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp := postCall(t, srv, ToolRegisterAgent, map[string]interface{}{"name": "worker-1", "role": "engineer"})
	if !resp.OK {
		t.Fatalf("register_agent failed: %+v", resp.Error)
	}
	value, ok := resp.Value.(map[string]interface{})
	if !ok || value["agent_id"] == "" {
		t.Fatalf("expected agent_id in response, got %+v", resp.Value)
	}

	statusResp := postCall(t, srv, ToolGetAgentStatus, map[string]interface{}{"agent_id": value["agent_id"]})
	if !statusResp.OK {
		t.Fatalf("get_agent_status failed: %+v", statusResp.Error)
	}
}

func TestGetProjectStatusUnknownProjectReturnsNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp := postCall(t, srv, ToolGetProjectStatus, map[string]interface{}{"project_id": "ghost"})
	if resp.OK {
		t.Fatal("expected failure for unknown project")
	}
	if resp.Error.Kind != coordinator.KindNotFound {
		t.Errorf("expected KindNotFound, got %s", resp.Error.Kind)
	}
}

func TestUnknownToolReturnsMalformedInput(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp := postCall(t, srv, ToolName("not_a_real_tool"), map[string]interface{}{})
	if resp.OK {
		t.Fatal("expected failure for unknown tool")
	}
	if resp.Error.Kind != coordinator.KindMalformedInput {
		t.Errorf("expected KindMalformedInput, got %s", resp.Error.Kind)
	}
}

func TestRequestNextTaskEndToEnd(t *testing.T) {
	srv, adapter := newTestServer(t)
	defer srv.Close()
	adapter.Seed(&board.Task{ID: "A", Status: board.StatusTodo, Priority: board.PriorityMedium, CreatedAt: time.Now()})

	reg := postCall(t, srv, ToolRegisterAgent, map[string]interface{}{"name": "worker-1", "role": "engineer"})
	agentID := reg.Value.(map[string]interface{})["agent_id"]

	next := postCall(t, srv, ToolRequestNextTask, map[string]interface{}{"project_id": "proj-1", "agent_id": agentID})
	if !next.OK {
		t.Fatalf("request_next_task failed: %+v", next.Error)
	}
}
