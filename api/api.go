package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/KorensAI/openclaw-mission-control/protocol"
	"github.com/KorensAI/openclaw-mission-control/state"
)

const defaultHttpTimeout = 60 * time.Second
const defaultHttpConnectTimeout = 5 * time.Second

func defaultClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: defaultHttpConnectTimeout,
	}
	transport := &http.Transport{
		DialContext: dialer.DialContext,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultHttpTimeout,
	}
}

type apiCallback[R any] interface {
	Result(result R, err error)
}

// for internal use
type simpleApiCallback[R any] struct {
	callback func(result R, err error)
}

func NewApiCallback[R any](callback func(result R, err error)) apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: callback,
	}
}

func NewNoopApiCallback[R any]() apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: func(result R, err error) {},
	}
}

func (self *simpleApiCallback[R]) Result(result R, err error) {
	self.callback(result, err)
}

type ApiCallbackResult[R any] struct {
	Result R
	Error  error
}

func NewBlockingApiCallback[R any](ctx context.Context) (apiCallback[R], chan ApiCallbackResult[R]) {
	c := make(chan ApiCallbackResult[R], 1)
	apiCallback := NewApiCallback[R](func(result R, err error) {
		select {
		case c <- ApiCallbackResult[R]{
			Result: result,
			Error:  err,
		}:
		case <-ctx.Done():
		}
	})
	return apiCallback, c
}

// ControlApi is the read client for the daemon's HTTP surface. The store
// bridge hydrates from it once at startup; after that the socket keeps the
// store current. All reads are ordinary request/response, independent of
// the socket protocol.
type ControlApi struct {
	ctx    context.Context
	cancel context.CancelFunc

	apiUrl string

	authToken string
}

func NewControlApi(apiUrl string) *ControlApi {
	return NewControlApiWithContext(context.Background(), apiUrl)
}

func NewControlApiWithContext(ctx context.Context, apiUrl string) *ControlApi {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &ControlApi{
		ctx:    cancelCtx,
		cancel: cancel,
		apiUrl: apiUrl,
	}
}

// this gets attached to api calls that need it
func (self *ControlApi) SetAuthToken(authToken string) {
	self.authToken = authToken
}

func (self *ControlApi) Close() {
	self.cancel()
}

type AgentsCallback = apiCallback[[]protocol.Agent]

func (self *ControlApi) GetAgents(callback AgentsCallback) {
	go get(self.ctx, fmt.Sprintf("%s/api/agents", self.apiUrl), self.authToken, []protocol.Agent{}, callback)
}

func (self *ControlApi) GetAgentsSync() ([]protocol.Agent, error) {
	return get(self.ctx, fmt.Sprintf("%s/api/agents", self.apiUrl), self.authToken, []protocol.Agent{}, NewNoopApiCallback[[]protocol.Agent]())
}

type TasksCallback = apiCallback[[]protocol.Task]

func (self *ControlApi) GetTasks(callback TasksCallback) {
	go get(self.ctx, fmt.Sprintf("%s/api/tasks", self.apiUrl), self.authToken, []protocol.Task{}, callback)
}

func (self *ControlApi) GetTasksSync() ([]protocol.Task, error) {
	return get(self.ctx, fmt.Sprintf("%s/api/tasks", self.apiUrl), self.authToken, []protocol.Task{}, NewNoopApiCallback[[]protocol.Task]())
}

type LogsCallback = apiCallback[[]protocol.LogEntry]

func (self *ControlApi) GetLogs(callback LogsCallback) {
	go get(self.ctx, fmt.Sprintf("%s/api/logs", self.apiUrl), self.authToken, []protocol.LogEntry{}, callback)
}

func (self *ControlApi) GetLogsSync() ([]protocol.LogEntry, error) {
	return get(self.ctx, fmt.Sprintf("%s/api/logs", self.apiUrl), self.authToken, []protocol.LogEntry{}, NewNoopApiCallback[[]protocol.LogEntry]())
}

type CostEntriesCallback = apiCallback[[]protocol.CostEntry]

func (self *ControlApi) GetCostEntries(callback CostEntriesCallback) {
	go get(self.ctx, fmt.Sprintf("%s/api/costs", self.apiUrl), self.authToken, []protocol.CostEntry{}, callback)
}

func (self *ControlApi) GetCostEntriesSync() ([]protocol.CostEntry, error) {
	return get(self.ctx, fmt.Sprintf("%s/api/costs", self.apiUrl), self.authToken, []protocol.CostEntry{}, NewNoopApiCallback[[]protocol.CostEntry]())
}

type CronJobsCallback = apiCallback[[]protocol.CronJob]

func (self *ControlApi) GetCronJobs(callback CronJobsCallback) {
	go get(self.ctx, fmt.Sprintf("%s/api/cron", self.apiUrl), self.authToken, []protocol.CronJob{}, callback)
}

func (self *ControlApi) GetCronJobsSync() ([]protocol.CronJob, error) {
	return get(self.ctx, fmt.Sprintf("%s/api/cron", self.apiUrl), self.authToken, []protocol.CronJob{}, NewNoopApiCallback[[]protocol.CronJob]())
}

type MemoryFilesCallback = apiCallback[[]protocol.MemoryFile]

func (self *ControlApi) GetMemoryFiles(callback MemoryFilesCallback) {
	go get(self.ctx, fmt.Sprintf("%s/api/memory", self.apiUrl), self.authToken, []protocol.MemoryFile{}, callback)
}

func (self *ControlApi) GetMemoryFilesSync() ([]protocol.MemoryFile, error) {
	return get(self.ctx, fmt.Sprintf("%s/api/memory", self.apiUrl), self.authToken, []protocol.MemoryFile{}, NewNoopApiCallback[[]protocol.MemoryFile]())
}

type SkillsCallback = apiCallback[[]protocol.Skill]

func (self *ControlApi) GetSkills(callback SkillsCallback) {
	go get(self.ctx, fmt.Sprintf("%s/api/skills", self.apiUrl), self.authToken, []protocol.Skill{}, callback)
}

func (self *ControlApi) GetSkillsSync() ([]protocol.Skill, error) {
	return get(self.ctx, fmt.Sprintf("%s/api/skills", self.apiUrl), self.authToken, []protocol.Skill{}, NewNoopApiCallback[[]protocol.Skill]())
}

type DashboardCallback = apiCallback[*protocol.DashboardSummary]

func (self *ControlApi) GetDashboard(callback DashboardCallback) {
	go get(self.ctx, fmt.Sprintf("%s/api/dashboard", self.apiUrl), self.authToken, &protocol.DashboardSummary{}, callback)
}

func (self *ControlApi) GetDashboardSync() (*protocol.DashboardSummary, error) {
	return get(self.ctx, fmt.Sprintf("%s/api/dashboard", self.apiUrl), self.authToken, &protocol.DashboardSummary{}, NewNoopApiCallback[*protocol.DashboardSummary]())
}

// CreateTaskArgs mirrors the daemon's task-create body. The created task
// also arrives back over the socket as a task.created event.
type CreateTaskArgs struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	AgentId     string `json:"agentId,omitempty"`
	Priority    string `json:"priority,omitempty"`
}

type CreateTaskCallback = apiCallback[*protocol.Task]

func (self *ControlApi) CreateTask(args *CreateTaskArgs, callback CreateTaskCallback) {
	go post(self.ctx, fmt.Sprintf("%s/api/tasks", self.apiUrl), args, self.authToken, &protocol.Task{}, callback)
}

func (self *ControlApi) CreateTaskSync(args *CreateTaskArgs) (*protocol.Task, error) {
	return post(self.ctx, fmt.Sprintf("%s/api/tasks", self.apiUrl), args, self.authToken, &protocol.Task{}, NewNoopApiCallback[*protocol.Task]())
}

// HydrateStore performs the one-time startup read of every collection the
// store mirrors. The dashboard aggregate seeds the active-session counter;
// after hydration the socket events are the source of truth.
func (self *ControlApi) HydrateStore(store *state.Store) error {
	agents, err := self.GetAgentsSync()
	if err != nil {
		return err
	}
	store.SetAgents(agents)

	tasks, err := self.GetTasksSync()
	if err != nil {
		return err
	}
	store.SetTasks(tasks)

	logs, err := self.GetLogsSync()
	if err != nil {
		return err
	}
	store.SetLogs(logs)

	costs, err := self.GetCostEntriesSync()
	if err != nil {
		return err
	}
	store.SetCostEntries(costs)

	cronJobs, err := self.GetCronJobsSync()
	if err != nil {
		return err
	}
	store.SetCronJobs(cronJobs)

	dashboard, err := self.GetDashboardSync()
	if err != nil {
		return err
	}
	store.SetActiveSessions(dashboard.ActiveSessions)

	return nil
}

func get[R any](ctx context.Context, url string, authToken string, result R, callback apiCallback[R]) (R, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	req.Header.Add("Accept", "application/json")
	if authToken != "" {
		auth := fmt.Sprintf("Bearer %s", authToken)
		req.Header.Add("Authorization", auth)
	}

	client := defaultClient()
	r, err := client.Do(req)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	if http.StatusOK != r.StatusCode {
		// the response body is the error message
		errorMessage := strings.TrimSpace(string(responseBodyBytes))
		err = errors.New(errorMessage)
		callback.Result(result, err)
		return result, err
	}

	err = json.Unmarshal(responseBodyBytes, &result)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	callback.Result(result, nil)
	return result, nil
}

func post[R any](ctx context.Context, url string, args any, authToken string, result R, callback apiCallback[R]) (R, error) {
	var requestBodyBytes []byte
	if args == nil {
		requestBodyBytes = make([]byte, 0)
	} else {
		var err error
		requestBodyBytes, err = json.Marshal(args)
		if err != nil {
			var empty R
			callback.Result(empty, err)
			return empty, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(requestBodyBytes))
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	req.Header.Add("Content-Type", "application/json")
	if authToken != "" {
		auth := fmt.Sprintf("Bearer %s", authToken)
		req.Header.Add("Authorization", auth)
	}

	client := defaultClient()
	r, err := client.Do(req)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	if http.StatusOK != r.StatusCode {
		errorMessage := strings.TrimSpace(string(responseBodyBytes))
		err = errors.New(errorMessage)
		callback.Result(result, err)
		return result, err
	}

	err = json.Unmarshal(responseBodyBytes, &result)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	callback.Result(result, nil)
	return result, nil
}
