package service

import (
	"fmt"

	"ragchat/client/internal/model"
)

// GreetingText is shown in place of an empty transcript.
const GreetingText = "Hello! I'm your AI-powered RAG chatbot. Ask me anything about your documents and I'll provide intelligent answers!"

// TranscriptSource is where the projection reads the active conversation from.
type TranscriptSource interface {
	ActiveID() string
	Messages(conversationID string) ([]model.Message, bool)
}

// MessageProjection renders the transcript of the active conversation.
type MessageProjection struct {
	source TranscriptSource
}

func NewMessageProjection(source TranscriptSource) *MessageProjection {
	return &MessageProjection{source: source}
}

// Transcript returns what the user should see right now.
func (p *MessageProjection) Transcript() []model.Message {
	activeID := p.source.ActiveID()
	if activeID == "" {
		return Project("", nil)
	}
	messages, _ := p.source.Messages(activeID)
	return Project(activeID, messages)
}

// Project is the pure rendering rule: no active conversation or no messages
// yields the single greeting, otherwise the messages in order, each with a
// stable non-empty id. Calling it twice on the same input gives equal output.
func Project(activeID string, messages []model.Message) []model.Message {
	if activeID == "" || len(messages) == 0 {
		return []model.Message{Greeting()}
	}
	out := make([]model.Message, len(messages))
	for i, msg := range messages {
		if msg.ID == "" {
			// Derived from position, not random, so repeated projections agree.
			msg.ID = fmt.Sprintf("%s_%d_%d", msg.Role, msg.Timestamp.UnixMilli(), i)
		}
		out[i] = msg
	}
	return out
}

// Greeting is the synthesized assistant message for an empty transcript.
func Greeting() model.Message {
	return model.Message{
		ID:      model.GreetingID,
		Role:    model.RoleAssistant,
		Content: GreetingText,
	}
}
