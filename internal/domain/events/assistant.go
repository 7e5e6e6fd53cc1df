package events

// AssistantResponsePayload is one incremental unit of assistant output.
//
// A text delta carries Content. Thinking and tool-use narration carry
// Thinking with empty Content. The terminal event has IsComplete set and,
// when the turn reported usage, TokensUsed.
type AssistantResponsePayload struct {
	ConversationID string  `json:"conversation_id"`
	Content        string  `json:"content"`
	IsComplete     bool    `json:"is_complete"`
	Thinking       *string `json:"thinking,omitempty"`
	TokensUsed     *int    `json:"tokens_used,omitempty"`
}

// AssistantTopic returns the topic for a conversation.
func AssistantTopic(conversationID string) Topic {
	return Topic{Kind: KindAssistant, ID: conversationID}
}

// NewAssistantTextEvent creates an assistant_response event carrying a text delta.
func NewAssistantTextEvent(conversationID, text string) *BaseEvent {
	return NewEvent(EventTypeAssistantResponse, AssistantTopic(conversationID), AssistantResponsePayload{
		ConversationID: conversationID,
		Content:        text,
	})
}

// NewAssistantThinkingEvent creates an assistant_response event carrying narration.
func NewAssistantThinkingEvent(conversationID, thinking string) *BaseEvent {
	return NewEvent(EventTypeAssistantResponse, AssistantTopic(conversationID), AssistantResponsePayload{
		ConversationID: conversationID,
		Thinking:       &thinking,
	})
}

// NewAssistantCompleteEvent creates the terminal assistant_response event.
// tokensUsed is omitted from the payload when zero.
func NewAssistantCompleteEvent(conversationID string, tokensUsed int) *BaseEvent {
	p := AssistantResponsePayload{
		ConversationID: conversationID,
		IsComplete:     true,
	}
	if tokensUsed > 0 {
		p.TokensUsed = &tokensUsed
	}
	return NewEvent(EventTypeAssistantResponse, AssistantTopic(conversationID), p)
}
