package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/KorensAI/openclaw-mission-control/protocol"
	"github.com/KorensAI/openclaw-mission-control/state"
)

func testServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	serveJson := func(path string, body string) {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(body))
		})
	}

	serveJson("/api/agents", `[{"id":"a1","name":"researcher","status":"online","tokensUsed":100},{"id":"a2","name":"writer","status":"idle"}]`)
	serveJson("/api/logs", `[{"id":"l1","level":"info","message":"up","timestamp":"2026-08-24T10:00:00Z"}]`)
	serveJson("/api/costs", `[{"agentId":"a1","cost":0.25,"timestamp":"2026-08-24T10:00:00Z"}]`)
	serveJson("/api/cron", `[{"id":"c1","name":"digest","schedule":"0 9 * * *","enabled":true}]`)
	serveJson("/api/memory", `[{"path":"memory/MEMORY.md","name":"MEMORY.md","size":512,"modifiedAt":"2026-08-24T10:00:00Z"}]`)
	serveJson("/api/skills", `[{"name":"web-search","description":"search the web"}]`)
	serveJson("/api/dashboard", `{"agentCount":2,"tasksOpen":1,"tasksDone":4,"activeSessions":3,"costToday":1.5}`)

	mux.HandleFunc("/api/tasks", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == "POST" {
			body, _ := io.ReadAll(r.Body)
			var args CreateTaskArgs
			if err := json.Unmarshal(body, &args); err != nil {
				http.Error(w, "bad task body", http.StatusBadRequest)
				return
			}
			task := protocol.Task{
				Id:        "t-new",
				Title:     args.Title,
				AgentId:   args.AgentId,
				Status:    "pending",
				CreatedAt: time.Now().UTC(),
			}
			json.NewEncoder(w).Encode(task)
			return
		}
		w.Write([]byte(`[{"id":"t1","title":"triage","status":"pending","createdAt":"2026-08-24T10:00:00Z"}]`))
	})

	return httptest.NewServer(mux)
}

func TestGetSync(t *testing.T) {
	server := testServer(t)
	defer server.Close()

	controlApi := NewControlApi(server.URL)
	defer controlApi.Close()

	agents, err := controlApi.GetAgentsSync()
	assert.Equal(t, err, nil)
	assert.Equal(t, 2, len(agents))
	assert.Equal(t, "a1", agents[0].Id)
	assert.Equal(t, int64(100), agents[0].TokensUsed)

	dashboard, err := controlApi.GetDashboardSync()
	assert.Equal(t, err, nil)
	assert.Equal(t, 3, dashboard.ActiveSessions)
	assert.Equal(t, 1.5, dashboard.CostToday)

	memoryFiles, err := controlApi.GetMemoryFilesSync()
	assert.Equal(t, err, nil)
	assert.Equal(t, "memory/MEMORY.md", memoryFiles[0].Path)
	assert.Equal(t, "MEMORY.md", memoryFiles[0].Name)

	skills, err := controlApi.GetSkillsSync()
	assert.Equal(t, err, nil)
	assert.Equal(t, "web-search", skills[0].Name)
}

func TestGetAsyncCallback(t *testing.T) {
	server := testServer(t)
	defer server.Close()

	controlApi := NewControlApi(server.URL)
	defer controlApi.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	callback, c := NewBlockingApiCallback[[]protocol.CronJob](ctx)
	controlApi.GetCronJobs(callback)

	select {
	case result := <-c:
		assert.Equal(t, result.Error, nil)
		assert.Equal(t, 1, len(result.Result))
		assert.Equal(t, "c1", result.Result[0].Id)
	case <-ctx.Done():
		t.Fatalf("timeout waiting for callback")
	}
}

func TestCreateTask(t *testing.T) {
	server := testServer(t)
	defer server.Close()

	controlApi := NewControlApi(server.URL)
	defer controlApi.Close()

	task, err := controlApi.CreateTaskSync(&CreateTaskArgs{
		Title:   "summarize overnight runs",
		AgentId: "a2",
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, "t-new", task.Id)
	assert.Equal(t, "summarize overnight runs", task.Title)
	assert.Equal(t, "a2", task.AgentId)
	assert.Equal(t, "pending", task.Status)
}

func TestHydrateStore(t *testing.T) {
	server := testServer(t)
	defer server.Close()

	controlApi := NewControlApi(server.URL)
	defer controlApi.Close()

	store := state.NewStore()
	err := controlApi.HydrateStore(store)
	assert.Equal(t, err, nil)

	assert.Equal(t, 2, len(store.Agents()))
	assert.Equal(t, 1, len(store.Tasks()))
	assert.Equal(t, 1, len(store.Logs()))
	assert.Equal(t, 1, len(store.CostEntries()))
	assert.Equal(t, 1, len(store.CronJobs()))
	// the dashboard aggregate seeds the session counter
	assert.Equal(t, 3, store.ActiveSessions())
}

func TestErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "daemon not ready", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	controlApi := NewControlApi(server.URL)
	defer controlApi.Close()

	_, err := controlApi.GetAgentsSync()
	assert.NotEqual(t, err, nil)
	// the response body is the error message
	assert.Equal(t, "daemon not ready", err.Error())
}

func TestAuthHeader(t *testing.T) {
	var authorization string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	controlApi := NewControlApi(server.URL)
	defer controlApi.Close()
	controlApi.SetAuthToken("local-token")

	_, err := controlApi.GetAgentsSync()
	assert.Equal(t, err, nil)
	assert.Equal(t, "Bearer local-token", authorization)
}
