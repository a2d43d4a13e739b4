package protocol

import (
	"time"
)

// records served by the daemon's read api and referenced by wire events
// field names follow the daemon's json (camelCase)

type Agent struct {
	Id          string     `json:"id"`
	Name        string     `json:"name,omitempty"`
	Status      string     `json:"status"`
	Model       string     `json:"model,omitempty"`
	CurrentTask string     `json:"currentTask,omitempty"`
	TokensUsed  int64      `json:"tokensUsed,omitempty"`
	CostToday   float64    `json:"costToday,omitempty"`
	LastActive  *time.Time `json:"lastActive,omitempty"`
}

type Task struct {
	Id          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	AgentId     string     `json:"agentId,omitempty"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// TaskChanges is a partial update. Nil fields are untouched on merge.
type TaskChanges struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	AgentId     *string    `json:"agentId,omitempty"`
	Status      *string    `json:"status,omitempty"`
	Priority    *string    `json:"priority,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type LogEntry struct {
	Id        string    `json:"id,omitempty"`
	AgentId   string    `json:"agentId,omitempty"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type CostEntry struct {
	AgentId      string    `json:"agentId"`
	Model        string    `json:"model,omitempty"`
	InputTokens  int64     `json:"inputTokens,omitempty"`
	OutputTokens int64     `json:"outputTokens,omitempty"`
	Cost         float64   `json:"cost"`
	Timestamp    time.Time `json:"timestamp"`
}

type CronJob struct {
	Id       string     `json:"id"`
	Name     string     `json:"name"`
	Schedule string     `json:"schedule"`
	Enabled  bool       `json:"enabled"`
	LastRun  *time.Time `json:"lastRun,omitempty"`
	NextRun  *time.Time `json:"nextRun,omitempty"`
}

type Session struct {
	Id          string     `json:"id"`
	AgentId     string     `json:"agentId"`
	Model       string     `json:"model,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
	TotalTokens int64      `json:"totalTokens,omitempty"`
	TotalCost   float64    `json:"totalCost,omitempty"`
}

type MemoryFile struct {
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modifiedAt"`
	Preview    string    `json:"preview,omitempty"`
}

type Skill struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source,omitempty"`
}

// DashboardSummary is the aggregate served by the read api for initial
// hydration. The active-session count here seeds the store once; wire
// events move it afterwards.
type DashboardSummary struct {
	AgentCount     int     `json:"agentCount"`
	ActiveSessions int     `json:"activeSessions"`
	TasksOpen      int     `json:"tasksOpen"`
	TasksDone      int     `json:"tasksDone"`
	CostToday      float64 `json:"costToday"`
}
