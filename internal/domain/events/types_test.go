package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payloadJSON(t *testing.T, e *BaseEvent) string {
	t.Helper()
	data, err := json.Marshal(e.Payload)
	require.NoError(t, err)
	return string(data)
}

func TestTopicString(t *testing.T) {
	assert.Equal(t, "system", Topic{Kind: KindSystem}.String())
	assert.Equal(t, "service/web", ServiceTopic("web").String())
	assert.Equal(t, "assistant/c1", AssistantTopic("c1").String())
}

func TestAssistantPayloads(t *testing.T) {
	text := NewAssistantTextEvent("c1", "Hello")
	assert.Equal(t, EventTypeAssistantResponse, text.Type())
	assert.JSONEq(t, `{"conversation_id":"c1","content":"Hello","is_complete":false}`, payloadJSON(t, text))

	thinking := NewAssistantThinkingEvent("c1", "Using tool: Bash")
	assert.JSONEq(t, `{"conversation_id":"c1","content":"","is_complete":false,"thinking":"Using tool: Bash"}`, payloadJSON(t, thinking))

	assert.JSONEq(t, `{"conversation_id":"c1","content":"","is_complete":true}`, payloadJSON(t, NewAssistantCompleteEvent("c1", 0)))
	assert.JSONEq(t, `{"conversation_id":"c1","content":"","is_complete":true,"tokens_used":42}`, payloadJSON(t, NewAssistantCompleteEvent("c1", 42)))
}

func TestServicePayloads(t *testing.T) {
	line := NewServiceLineEvent("web", "listening", true)
	assert.Equal(t, ServiceTopic("web"), line.Topic())
	assert.JSONEq(t, `{"service_id":"web","output":"listening","is_stderr":true,"is_complete":false}`, payloadJSON(t, line))

	code := 3
	assert.JSONEq(t, `{"service_id":"web","output":"","is_stderr":false,"is_complete":true,"exit_code":3}`, payloadJSON(t, NewServiceExitEvent("web", &code)))
	assert.JSONEq(t, `{"service_id":"web","output":"","is_stderr":false,"is_complete":true}`, payloadJSON(t, NewServiceExitEvent("web", nil)))
}

func TestBaseEventToJSON(t *testing.T) {
	e := NewHeartbeatEvent(7, 120)

	data, err := e.ToJSON()
	require.NoError(t, err)

	var decoded struct {
		Event   string          `json:"event"`
		Topic   Topic           `json:"topic"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "heartbeat", decoded.Event)
	assert.Equal(t, Topic{Kind: KindSystem}, decoded.Topic)
	assert.JSONEq(t, `{"sequence":7,"uptime_seconds":120}`, string(decoded.Payload))
	assert.False(t, e.Timestamp().IsZero())
}

func TestDataSavedPayload(t *testing.T) {
	e := NewDataSavedEvent("/tmp/data.json", 12)
	assert.Equal(t, Topic{Kind: KindAppData}, e.Topic())
	assert.JSONEq(t, `{"path":"/tmp/data.json","bytes":12}`, payloadJSON(t, e))
}
