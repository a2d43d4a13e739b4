package state

import (
	"sync"
	"time"

	"github.com/golang/glog"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/KorensAI/openclaw-mission-control/gateway"
	"github.com/KorensAI/openclaw-mission-control/protocol"
)

// bounded history lengths. Lists are kept most-recent-first and evicted
// from the tail.
const (
	LogHistoryLimit  = 500
	CostHistoryLimit = 500
)

type GatewayStatus struct {
	Running           bool
	ReconnectAttempts int
}

type ChangeCallback = func()

// Store is the process-local application state container. It is the single
// place derived state lives; the bridge is its only event-driven writer and
// every mutation reads the current value under the lock, so there is no
// stale-snapshot class of bug by construction.
//
// Records are held by value. Snapshot accessors return copies, so callers
// can hold results across later mutations.
type Store struct {
	stateLock sync.Mutex

	agents         map[string]protocol.Agent
	tasks          []protocol.Task
	logs           []protocol.LogEntry
	costs          []protocol.CostEntry
	cronJobs       map[string]protocol.CronJob
	activeSessions int
	gatewayStatus  GatewayStatus

	changeCallbacks *gateway.CallbackList[ChangeCallback]
}

func NewStore() *Store {
	return &Store{
		agents:          map[string]protocol.Agent{},
		cronJobs:        map[string]protocol.CronJob{},
		changeCallbacks: gateway.NewCallbackList[ChangeCallback](),
	}
}

// AddChangeCallback registers a presentation hook invoked after every
// mutation. Returns the unsubscribe.
func (self *Store) AddChangeCallback(changeCallback ChangeCallback) func() {
	callbackId := self.changeCallbacks.Add(changeCallback)
	return func() {
		self.changeCallbacks.Remove(callbackId)
	}
}

func (self *Store) notify() {
	for _, changeCallback := range self.changeCallbacks.Get() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					glog.Infof("[store]change callback panic = %s\n", r)
				}
			}()
			changeCallback()
		}()
	}
}

// hydration setters, called once at startup from the read api

func (self *Store) SetAgents(agents []protocol.Agent) {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		self.agents = map[string]protocol.Agent{}
		for _, agent := range agents {
			self.agents[agent.Id] = agent
		}
	}()
	self.notify()
}

func (self *Store) SetTasks(tasks []protocol.Task) {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		self.tasks = slices.Clone(tasks)
	}()
	self.notify()
}

func (self *Store) SetLogs(logs []protocol.LogEntry) {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		self.logs = truncate(slices.Clone(logs), LogHistoryLimit)
	}()
	self.notify()
}

func (self *Store) SetCostEntries(costs []protocol.CostEntry) {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		self.costs = truncate(slices.Clone(costs), CostHistoryLimit)
	}()
	self.notify()
}

func (self *Store) SetCronJobs(cronJobs []protocol.CronJob) {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		self.cronJobs = map[string]protocol.CronJob{}
		for _, cronJob := range cronJobs {
			self.cronJobs[cronJob.Id] = cronJob
		}
	}()
	self.notify()
}

// SetActiveSessions seeds the counter from the dashboard aggregate. After
// the seed, session events are the single source of truth.
func (self *Store) SetActiveSessions(activeSessions int) {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		if activeSessions < 0 {
			activeSessions = 0
		}
		self.activeSessions = activeSessions
	}()
	self.notify()
}

// event-driven mutations

// ApplyAgentStatus merges the partial fields into the matching agent.
// A no-op if the agent id is unknown; events never create agents.
func (self *Store) ApplyAgentStatus(event *protocol.AgentStatusEvent) bool {
	applied := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		agent, ok := self.agents[event.AgentId]
		if !ok {
			return
		}
		agent.Status = event.Status
		if event.CurrentTask != nil {
			agent.CurrentTask = *event.CurrentTask
		}
		if event.TokensUsed != nil {
			agent.TokensUsed = *event.TokensUsed
		}
		if event.CostToday != nil {
			agent.CostToday = *event.CostToday
		}
		if event.LastActive != nil {
			lastActive := *event.LastActive
			agent.LastActive = &lastActive
		}
		self.agents[event.AgentId] = agent
		applied = true
	}()
	if applied {
		self.notify()
	}
	return applied
}

// AppendTask appends without dedup by id; the daemon emits each create once.
func (self *Store) AppendTask(task protocol.Task) {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		self.tasks = append(slices.Clone(self.tasks), task)
	}()
	self.notify()
}

// MergeTask merges the partial changes into the task matching taskId.
// A no-op if the id is unknown.
func (self *Store) MergeTask(taskId string, changes protocol.TaskChanges) bool {
	applied := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		i := slices.IndexFunc(self.tasks, func(task protocol.Task) bool {
			return task.Id == taskId
		})
		if i < 0 {
			return
		}
		nextTasks := slices.Clone(self.tasks)
		task := nextTasks[i]
		if changes.Title != nil {
			task.Title = *changes.Title
		}
		if changes.Description != nil {
			task.Description = *changes.Description
		}
		if changes.AgentId != nil {
			task.AgentId = *changes.AgentId
		}
		if changes.Status != nil {
			task.Status = *changes.Status
		}
		if changes.Priority != nil {
			task.Priority = *changes.Priority
		}
		if changes.CompletedAt != nil {
			completedAt := *changes.CompletedAt
			task.CompletedAt = &completedAt
		}
		nextTasks[i] = task
		self.tasks = nextTasks
		applied = true
	}()
	if applied {
		self.notify()
	}
	return applied
}

func (self *Store) AppendLog(entry protocol.LogEntry) {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		self.logs = prepend(self.logs, entry, LogHistoryLimit)
	}()
	self.notify()
}

func (self *Store) AppendCostEntry(entry protocol.CostEntry) {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		self.costs = prepend(self.costs, entry, CostHistoryLimit)
	}()
	self.notify()
}

// MarkCronRun replaces lastRun on the matching job and leaves the rest of
// the record untouched. A no-op if the id is unknown.
func (self *Store) MarkCronRun(jobId string, lastRun time.Time) bool {
	applied := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		cronJob, ok := self.cronJobs[jobId]
		if !ok {
			return
		}
		cronJob.LastRun = &lastRun
		self.cronJobs[jobId] = cronJob
		applied = true
	}()
	if applied {
		self.notify()
	}
	return applied
}

func (self *Store) SessionStarted() int {
	var activeSessions int
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		self.activeSessions += 1
		activeSessions = self.activeSessions
	}()
	self.notify()
	return activeSessions
}

// SessionEnded decrements the counter, floored at zero even without a
// matching prior start.
func (self *Store) SessionEnded() int {
	var activeSessions int
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		if 0 < self.activeSessions {
			self.activeSessions -= 1
		}
		activeSessions = self.activeSessions
	}()
	self.notify()
	return activeSessions
}

func (self *Store) SetGatewayRunning(running bool) {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		self.gatewayStatus.Running = running
	}()
	self.notify()
}

func (self *Store) SetReconnectAttempts(reconnectAttempts int) {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		self.gatewayStatus.ReconnectAttempts = reconnectAttempts
	}()
	self.notify()
}

// snapshot accessors

func (self *Store) Agents() []protocol.Agent {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	agents := maps.Values(self.agents)
	slices.SortFunc(agents, func(a protocol.Agent, b protocol.Agent) int {
		if a.Id < b.Id {
			return -1
		} else if b.Id < a.Id {
			return 1
		}
		return 0
	})
	return agents
}

func (self *Store) Agent(agentId string) (protocol.Agent, bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	agent, ok := self.agents[agentId]
	return agent, ok
}

func (self *Store) Tasks() []protocol.Task {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return slices.Clone(self.tasks)
}

// Logs returns the bounded history, most recent first.
func (self *Store) Logs() []protocol.LogEntry {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return slices.Clone(self.logs)
}

// CostEntries returns the bounded history, most recent first.
func (self *Store) CostEntries() []protocol.CostEntry {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return slices.Clone(self.costs)
}

func (self *Store) CronJobs() []protocol.CronJob {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	cronJobs := maps.Values(self.cronJobs)
	slices.SortFunc(cronJobs, func(a protocol.CronJob, b protocol.CronJob) int {
		if a.Id < b.Id {
			return -1
		} else if b.Id < a.Id {
			return 1
		}
		return 0
	})
	return cronJobs
}

func (self *Store) ActiveSessions() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.activeSessions
}

func (self *Store) GatewayStatus() GatewayStatus {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.gatewayStatus
}

func prepend[T any](list []T, item T, limit int) []T {
	next := make([]T, 0, len(list)+1)
	next = append(next, item)
	next = append(next, list...)
	return truncate(next, limit)
}

func truncate[T any](list []T, limit int) []T {
	if limit < len(list) {
		return list[0:limit]
	}
	return list
}
