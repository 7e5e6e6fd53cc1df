package claude

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/brianly1003/cquest/internal/domain/events"
)

// turnState accumulates what the stream told us about a turn.
type turnState struct {
	response     strings.Builder
	sessionID    string
	tokensUsed   int
	pendingError string
	hasError     bool
}

func (s *turnState) setError(msg string) {
	s.pendingError = msg
	s.hasError = true
}

// frameDecoder turns stdout lines into events and turn state. It is used
// from a single goroutine; emit is called synchronously in frame order.
type frameDecoder struct {
	conversationID string
	state          turnState
	emit           func(events.Event)
}

func newFrameDecoder(conversationID string, emit func(events.Event)) *frameDecoder {
	return &frameDecoder{conversationID: conversationID, emit: emit}
}

// decodeLine handles one line of output. Lines that are not a JSON object
// are skipped; it reports whether the line was a frame.
func (d *frameDecoder) decodeLine(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" || !gjson.Valid(line) {
		return false
	}
	frame := gjson.Parse(line)
	if !frame.IsObject() {
		return false
	}

	switch frame.Get("type").String() {
	case "assistant":
		d.assistantFrame(frame)
	case "result":
		d.resultFrame(frame)
	case "error":
		d.errorFrame(frame)
	case "system":
		if msg := frame.Get("message"); msg.Type == gjson.String &&
			strings.Contains(strings.ToLower(msg.Str), "error") {
			d.state.setError(msg.Str)
		}
	}
	return true
}

func (d *frameDecoder) assistantFrame(frame gjson.Result) {
	content := frame.Get("message.content")
	if !content.IsArray() {
		return
	}
	content.ForEach(func(_, item gjson.Result) bool {
		switch item.Get("type").String() {
		case "text":
			if text := item.Get("text"); text.Type == gjson.String {
				d.state.response.WriteString(text.Str)
				d.emit(events.NewAssistantTextEvent(d.conversationID, text.Str))
			}
		case "thinking":
			if thinking := item.Get("thinking"); thinking.Type == gjson.String {
				d.emit(events.NewAssistantThinkingEvent(d.conversationID, thinking.Str))
			}
		case "tool_use":
			name := "tool"
			if n := item.Get("name"); n.Type == gjson.String {
				name = n.Str
			}
			d.emit(events.NewAssistantThinkingEvent(d.conversationID, "Using "+name+"..."))
		}
		return true
	})
}

func (d *frameDecoder) resultFrame(frame gjson.Result) {
	if result := frame.Get("result"); result.Type == gjson.String {
		if frame.Get("is_error").Bool() {
			d.state.setError(result.Str)
		} else if d.state.response.Len() == 0 {
			d.state.response.WriteString(result.Str)
		}
	}

	if sid := frame.Get("session_id"); sid.Type == gjson.String {
		d.state.sessionID = sid.Str
	}

	if usage := frame.Get("usage"); usage.Exists() {
		if total := usage.Get("total_tokens"); total.Type == gjson.Number {
			d.state.tokensUsed = int(total.Uint())
		} else {
			d.state.tokensUsed = int(usage.Get("input_tokens").Uint() + usage.Get("output_tokens").Uint())
		}
	}
	if d.state.tokensUsed == 0 {
		if stats := frame.Get("stats"); stats.Exists() {
			d.state.tokensUsed = int(stats.Get("input_tokens").Uint() + stats.Get("output_tokens").Uint())
		}
	}
}

func (d *frameDecoder) errorFrame(frame gjson.Result) {
	if errField := frame.Get("error"); errField.Exists() {
		switch {
		case errField.Get("message").Type == gjson.String:
			d.state.setError(errField.Get("message").Str)
		case errField.Type == gjson.String:
			d.state.setError(errField.Str)
		default:
			d.state.setError("Unknown error")
		}
		return
	}
	if msg := frame.Get("message"); msg.Type == gjson.String {
		d.state.setError(msg.Str)
		return
	}
	d.state.setError("Unknown error")
}
