package state

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/gorilla/websocket"

	"github.com/KorensAI/openclaw-mission-control/gateway"
	"github.com/KorensAI/openclaw-mission-control/protocol"
)

func TestBridgeApply(t *testing.T) {
	connection := gateway.NewGatewayConnectionWithDefaults(context.Background(), "ws://127.0.0.1:18789/ws")
	defer connection.Close()

	store := NewStore()
	bridge := NewBridge(connection, store)
	defer bridge.Close()

	store.SetAgents([]protocol.Agent{{Id: "a1", Status: "online"}})
	store.SetCronJobs([]protocol.CronJob{{Id: "c1", Name: "digest", Schedule: "0 * * * *", Enabled: true}})

	bridge.Apply(&protocol.AgentStatusEvent{AgentId: "a1", Status: "busy"})
	agent, _ := store.Agent("a1")
	assert.Equal(t, "busy", agent.Status)

	bridge.Apply(&protocol.TaskCreatedEvent{
		Task: protocol.Task{Id: "t1", Title: "triage", Status: "pending", CreatedAt: time.Now()},
	})
	assert.Equal(t, 1, len(store.Tasks()))

	status := "done"
	bridge.Apply(&protocol.TaskUpdatedEvent{
		TaskId:  "t1",
		Changes: protocol.TaskChanges{Status: &status},
	})
	assert.Equal(t, "done", store.Tasks()[0].Status)

	bridge.Apply(&protocol.LogEntryEvent{
		Entry: protocol.LogEntry{Level: "info", Message: "m", Timestamp: time.Now()},
	})
	assert.Equal(t, 1, len(store.Logs()))

	bridge.Apply(&protocol.SessionStartEvent{SessionId: "s1", AgentId: "a1", StartedAt: time.Now()})
	assert.Equal(t, 1, store.ActiveSessions())
	bridge.Apply(&protocol.SessionEndEvent{SessionId: "s1", AgentId: "a1", EndedAt: time.Now()})
	assert.Equal(t, 0, store.ActiveSessions())
	// end without a start never goes negative
	bridge.Apply(&protocol.SessionEndEvent{SessionId: "s2", AgentId: "a1", EndedAt: time.Now()})
	assert.Equal(t, 0, store.ActiveSessions())

	triggeredAt := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	bridge.Apply(&protocol.CronTriggeredEvent{
		JobId:       "c1",
		Job:         protocol.CronJob{Id: "c1"},
		TriggeredAt: triggeredAt,
	})
	assert.Equal(t, triggeredAt, *store.CronJobs()[0].LastRun)

	bridge.Apply(&protocol.CostUpdateEvent{
		Entry:   protocol.CostEntry{AgentId: "a1", Cost: 0.5, Timestamp: time.Now()},
		AgentId: "a1",
	})
	assert.Equal(t, 1, len(store.CostEntries()))

	// unknown wire types are ignored, not errors
	bridge.Apply(&protocol.UnknownEvent{Type: "daemon.next-big-thing"})
}

// end to end: frames on the socket land in the store
func TestBridgeOverSocket(t *testing.T) {
	accepts := make(chan *websocket.Conn, 4)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepts <- ws
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	connection := gateway.NewGatewayConnectionWithDefaults(context.Background(), url)
	defer connection.Close()

	store := NewStore()
	bridge := NewBridge(connection, store)
	defer bridge.Close()

	store.SetAgents([]protocol.Agent{{Id: "a1", Status: "online"}})

	connection.Connect()

	var ws *websocket.Conn
	select {
	case ws = <-accepts:
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for socket")
	}

	// connect marked the gateway running
	waitForCondition(t, func() bool {
		return store.GatewayStatus().Running
	})

	ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"agent.status","payload":{"agentId":"a1","status":"busy"}}`))
	ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"session.start","payload":{"sessionId":"s1","agentId":"a1","startedAt":"2026-08-24T10:00:00Z"}}`))

	waitForCondition(t, func() bool {
		agent, _ := store.Agent("a1")
		return agent.Status == "busy" && store.ActiveSessions() == 1
	})

	// teardown detaches the bridge but leaves the shared connection up
	bridge.Close()
	assert.Equal(t, true, connection.Status().Connected)

	ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"session.start","payload":{"sessionId":"s2","agentId":"a1","startedAt":"2026-08-24T10:01:00Z"}}`))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, store.ActiveSessions())
}

func waitForCondition(t *testing.T, condition func() bool) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for condition")
}
