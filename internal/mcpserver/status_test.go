package mcpserver

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/marcus-ai/marcus/internal/events"
)

func TestStatusHubBroadcastsPublishedEvents(t *testing.T) {
	hub := NewStatusHub(nil)
	bus := events.NewBus(nil)
	ch := bus.Subscribe("all", nil)
	go hub.Run(ch)

	router := mux.NewRouter()
	hub.RegisterRoutes(router)
	srv := httptest.NewServer(router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/status/feed"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// give the hub goroutine time to process the register message before
	// publishing, since register is consumed asynchronously off hub.Run's loop.
	time.Sleep(50 * time.Millisecond)

	bus.Publish(events.New(events.TypeTaskAssigned, "proj-1", "all", events.PriorityNormal, map[string]interface{}{
		"task_id": "A",
	}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}

	var evt events.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if evt.Type != events.TypeTaskAssigned || evt.ProjectID != "proj-1" {
		t.Errorf("unexpected event: %+v", evt)
	}
}

func TestStatusHubOriginCheckAllowsLocalhostAndConfigured(t *testing.T) {
	hub := NewStatusHub([]string{"https://dashboard.example.com"})

	r := httptest.NewRequest("GET", "/v1/status/feed", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	if !hub.checkOrigin(r) {
		t.Error("expected localhost origin to be allowed")
	}

	r2 := httptest.NewRequest("GET", "/v1/status/feed", nil)
	r2.Header.Set("Origin", "https://dashboard.example.com")
	if !hub.checkOrigin(r2) {
		t.Error("expected configured origin to be allowed")
	}

	r3 := httptest.NewRequest("GET", "/v1/status/feed", nil)
	r3.Header.Set("Origin", "https://evil.example.com")
	if hub.checkOrigin(r3) {
		t.Error("expected unlisted origin to be rejected")
	}
}
