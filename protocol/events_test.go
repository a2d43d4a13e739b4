package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestParseEnvelope(t *testing.T) {
	envelope, ok := ParseEnvelope([]byte(`{"type":"task.created","payload":{"task":{"id":"t1","title":"x","status":"pending","createdAt":"2026-08-24T10:00:00Z"}},"timestamp":"2026-08-24T10:00:00Z"}`))
	assert.Equal(t, true, ok)
	assert.Equal(t, EventTypeTaskCreated, envelope.Type)
	assert.NotEqual(t, 0, len(envelope.Payload))

	// no type key: not an envelope
	_, ok = ParseEnvelope([]byte(`{"payload":{}}`))
	assert.Equal(t, false, ok)

	// not json at all
	_, ok = ParseEnvelope([]byte("not json"))
	assert.Equal(t, false, ok)

	// a bare ping has neither payload nor timestamp
	envelope, ok = ParseEnvelope([]byte(`{"type":"ping"}`))
	assert.Equal(t, true, ok)
	assert.Equal(t, EventTypePing, envelope.Type)
}

func TestNewEnvelope(t *testing.T) {
	envelope, err := NewEnvelope("client.hello", map[string]string{"instance": "i1"})
	assert.Equal(t, err, nil)
	assert.Equal(t, "client.hello", envelope.Type)

	_, err = time.Parse(time.RFC3339Nano, envelope.Timestamp)
	assert.Equal(t, err, nil)

	envelope, err = NewEnvelope(EventTypePing, nil)
	assert.Equal(t, err, nil)
	assert.Equal(t, 0, len(envelope.Payload))
}

func TestDecodeEvent(t *testing.T) {
	envelope, ok := ParseEnvelope([]byte(`{"type":"agent.status","payload":{"agentId":"a1","status":"busy","tokensUsed":1200}}`))
	assert.Equal(t, true, ok)

	event, err := DecodeEvent(envelope)
	assert.Equal(t, err, nil)

	agentStatus, ok := event.(*AgentStatusEvent)
	assert.Equal(t, true, ok)
	assert.Equal(t, "a1", agentStatus.AgentId)
	assert.Equal(t, "busy", agentStatus.Status)
	assert.Equal(t, int64(1200), *agentStatus.TokensUsed)
	// absent optional fields stay nil
	assert.Equal(t, agentStatus.CurrentTask, nil)
	assert.Equal(t, agentStatus.CostToday, nil)
}

func TestDecodeEventAllKinds(t *testing.T) {
	frames := map[string]string{
		EventTypeTaskCreated:   `{"task":{"id":"t1","title":"triage","status":"pending","createdAt":"2026-08-24T10:00:00Z"}}`,
		EventTypeTaskUpdated:   `{"taskId":"t1","changes":{"status":"running"}}`,
		EventTypeLogEntry:      `{"entry":{"level":"info","message":"m","timestamp":"2026-08-24T10:00:00Z"}}`,
		EventTypeSessionStart:  `{"sessionId":"s1","agentId":"a1","startedAt":"2026-08-24T10:00:00Z"}`,
		EventTypeSessionEnd:    `{"sessionId":"s1","agentId":"a1","endedAt":"2026-08-24T10:05:00Z","totalTokens":9000}`,
		EventTypeCronTriggered: `{"jobId":"c1","job":{"id":"c1","name":"digest","schedule":"0 * * * *","enabled":true},"triggeredAt":"2026-08-24T10:00:00Z"}`,
		EventTypeCostUpdate:    `{"entry":{"agentId":"a1","cost":0.25,"timestamp":"2026-08-24T10:00:00Z"},"agentId":"a1"}`,
	}

	for eventType, payload := range frames {
		event, err := DecodeEvent(&Envelope{
			Type:    eventType,
			Payload: json.RawMessage(payload),
		})
		assert.Equal(t, err, nil)
		assert.Equal(t, eventType, event.EventType())
	}
}

func TestDecodeEventUnknown(t *testing.T) {
	event, err := DecodeEvent(&Envelope{
		Type:    "daemon.next-big-thing",
		Payload: json.RawMessage(`{"anything":true}`),
	})
	assert.Equal(t, err, nil)

	unknown, ok := event.(*UnknownEvent)
	assert.Equal(t, true, ok)
	assert.Equal(t, "daemon.next-big-thing", unknown.Type)
	assert.Equal(t, "daemon.next-big-thing", unknown.EventType())
}

func TestDecodeEventMalformed(t *testing.T) {
	// recognized type, broken payload
	_, err := DecodeEvent(&Envelope{
		Type:    EventTypeTaskUpdated,
		Payload: json.RawMessage(`"not an object"`),
	})
	assert.NotEqual(t, err, nil)

	// recognized type, missing payload
	_, err = DecodeEvent(&Envelope{
		Type: EventTypeTaskUpdated,
	})
	assert.NotEqual(t, err, nil)
}
