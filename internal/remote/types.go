package remote

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"ragchat/client/internal/model"
)

// LoginRequest carries the identity provider's credential to the auth exchange.
type LoginRequest struct {
	Token string `json:"token"`
}

// LoginResponse is the result of exchanging an external credential.
type LoginResponse struct {
	AccessToken    string            `json:"access_token"`
	TokenType      string            `json:"token_type"`
	User           model.UserProfile `json:"user"`
	RemainingChats int               `json:"remaining_chats"`
}

// StatusResponse is the authoritative quota of the logged-in user.
type StatusResponse struct {
	RemainingChats int  `json:"remaining_chats"`
	ChatCount      int  `json:"chat_count"`
	CanChat        bool `json:"can_chat"`
	IsPremium      bool `json:"is_premium"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

const statusHealthy = "healthy"

// ChatRequest is the payload of a chat send.
type ChatRequest struct {
	Message        string `json:"message" validate:"required"`
	ConversationID string `json:"conversation_id" validate:"required"`
}

// ChatResponse is the service's answer. Older deployments fill Answer instead
// of Response; RemainingChats is only present on newer ones.
type ChatResponse struct {
	Response       string         `json:"response"`
	Answer         string         `json:"answer"`
	Sources        []model.Source `json:"sources"`
	ConversationID string         `json:"conversation_id"`
	RemainingChats *int           `json:"remaining_chats,omitempty"`
}

const fallbackAnswer = "Sorry, I couldn't process your request."

// Text returns the answer body, whichever field carried it.
func (r *ChatResponse) Text() string {
	switch {
	case r.Response != "":
		return r.Response
	case r.Answer != "":
		return r.Answer
	default:
		return fallbackAnswer
	}
}

// wireMessage is a stored message as the history endpoints return it.
type wireMessage struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Sources   []model.Source `json:"sources"`
	Timestamp flexTime       `json:"timestamp"`
	CreatedAt flexTime       `json:"created_at"`
}

func (w wireMessage) toModel() model.Message {
	role := model.RoleAssistant
	if w.Role == string(model.RoleUser) || w.Type == string(model.RoleUser) {
		role = model.RoleUser
	}
	ts := w.Timestamp.Time
	if ts.IsZero() {
		ts = w.CreatedAt.Time
	}
	return model.Message{
		ID:        w.ID,
		Role:      role,
		Content:   w.Content,
		Sources:   w.Sources,
		Timestamp: ts,
	}
}

type wireConversation struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	CreatedAt    flexTime `json:"created_at"`
	UpdatedAt    flexTime `json:"updated_at"`
	LastMessage  string   `json:"last_message"`
	MessageCount int      `json:"message_count"`
}

func (w wireConversation) toModel() model.ConversationSummary {
	return model.ConversationSummary{
		ID:           w.ID,
		Title:        w.Title,
		CreatedAt:    w.CreatedAt.Time,
		UpdatedAt:    w.UpdatedAt.Time,
		LastMessage:  w.LastMessage,
		MessageCount: w.MessageCount,
	}
}

type historyResponse struct {
	Conversations []wireConversation `json:"conversations"`
}

type messagesResponse struct {
	Messages []wireMessage `json:"messages"`
}

// flexTime accepts the timestamp shapes the service has been seen to emit:
// RFC 3339, ISO 8601 without zone (read as UTC), unix seconds, or null.
type flexTime struct {
	time.Time
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func (f *flexTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] != '"' {
		secs, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return nil
		}
		f.Time = time.UnixMilli(int64(secs * 1000)).UTC()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		f.Time = t
		return nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			f.Time = t
			return nil
		}
	}
	// An unreadable timestamp is not worth failing a whole history load over.
	return nil
}
