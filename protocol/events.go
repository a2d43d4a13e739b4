package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is the closed union of domain events carried on the gateway socket.
// Unrecognized wire types decode to *UnknownEvent so new daemon versions
// do not break older dashboards.
type Event interface {
	EventType() string
}

type AgentStatusEvent struct {
	AgentId     string     `json:"agentId"`
	Status      string     `json:"status"`
	CurrentTask *string    `json:"currentTask,omitempty"`
	TokensUsed  *int64     `json:"tokensUsed,omitempty"`
	CostToday   *float64   `json:"costToday,omitempty"`
	LastActive  *time.Time `json:"lastActive,omitempty"`
}

func (self *AgentStatusEvent) EventType() string {
	return EventTypeAgentStatus
}

type TaskCreatedEvent struct {
	Task Task `json:"task"`
}

func (self *TaskCreatedEvent) EventType() string {
	return EventTypeTaskCreated
}

type TaskUpdatedEvent struct {
	TaskId  string      `json:"taskId"`
	Changes TaskChanges `json:"changes"`
}

func (self *TaskUpdatedEvent) EventType() string {
	return EventTypeTaskUpdated
}

type LogEntryEvent struct {
	Entry LogEntry `json:"entry"`
}

func (self *LogEntryEvent) EventType() string {
	return EventTypeLogEntry
}

type SessionStartEvent struct {
	SessionId string    `json:"sessionId"`
	AgentId   string    `json:"agentId"`
	StartedAt time.Time `json:"startedAt"`
	Model     string    `json:"model,omitempty"`
}

func (self *SessionStartEvent) EventType() string {
	return EventTypeSessionStart
}

type SessionEndEvent struct {
	SessionId   string    `json:"sessionId"`
	AgentId     string    `json:"agentId"`
	EndedAt     time.Time `json:"endedAt"`
	TotalTokens *int64    `json:"totalTokens,omitempty"`
	TotalCost   *float64  `json:"totalCost,omitempty"`
}

func (self *SessionEndEvent) EventType() string {
	return EventTypeSessionEnd
}

type CronTriggeredEvent struct {
	JobId       string    `json:"jobId"`
	Job         CronJob   `json:"job"`
	TriggeredAt time.Time `json:"triggeredAt"`
}

func (self *CronTriggeredEvent) EventType() string {
	return EventTypeCronTriggered
}

type CostUpdateEvent struct {
	Entry   CostEntry `json:"entry"`
	AgentId string    `json:"agentId,omitempty"`
}

func (self *CostUpdateEvent) EventType() string {
	return EventTypeCostUpdate
}

// UnknownEvent carries a wire type this build does not recognize.
type UnknownEvent struct {
	Type    string
	Payload json.RawMessage
}

func (self *UnknownEvent) EventType() string {
	return self.Type
}

// DecodeEvent maps an envelope to its typed event. An envelope whose type is
// recognized but whose payload does not decode is an error; the connection
// keeps running and the caller decides how to surface it.
func DecodeEvent(envelope *Envelope) (Event, error) {
	decode := func(event Event) (Event, error) {
		if len(envelope.Payload) == 0 {
			return nil, fmt.Errorf("%s: missing payload", envelope.Type)
		}
		if err := json.Unmarshal(envelope.Payload, event); err != nil {
			return nil, fmt.Errorf("%s: %w", envelope.Type, err)
		}
		return event, nil
	}

	switch envelope.Type {
	case EventTypeAgentStatus:
		return decode(&AgentStatusEvent{})
	case EventTypeTaskCreated:
		return decode(&TaskCreatedEvent{})
	case EventTypeTaskUpdated:
		return decode(&TaskUpdatedEvent{})
	case EventTypeLogEntry:
		return decode(&LogEntryEvent{})
	case EventTypeSessionStart:
		return decode(&SessionStartEvent{})
	case EventTypeSessionEnd:
		return decode(&SessionEndEvent{})
	case EventTypeCronTriggered:
		return decode(&CronTriggeredEvent{})
	case EventTypeCostUpdate:
		return decode(&CostUpdateEvent{})
	default:
		return &UnknownEvent{
			Type:    envelope.Type,
			Payload: envelope.Payload,
		}, nil
	}
}
