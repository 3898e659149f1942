package model

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Source is a document excerpt the service cited for an answer.
type Source struct {
	Document string   `json:"document" yaml:"document"`
	Content  string   `json:"content" yaml:"content"`
	Score    *float64 `json:"score,omitempty" yaml:"score,omitempty"`
}

// Message is a single transcript entry. Messages are immutable once appended.
type Message struct {
	ID        string    `json:"id" yaml:"id"`
	Role      Role      `json:"role" yaml:"role"`
	Content   string    `json:"content" yaml:"content"`
	Sources   []Source  `json:"sources,omitempty" yaml:"sources,omitempty"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	IsError   bool      `json:"is_error,omitempty" yaml:"is_error,omitempty"`
}

// ConversationSummary stores metadata about a conversation.
type ConversationSummary struct {
	ID           string    `json:"id" yaml:"id"`
	Title        string    `json:"title" yaml:"title"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
	LastMessage  string    `json:"last_message,omitempty" yaml:"last_message,omitempty"`
	MessageCount int       `json:"message_count" yaml:"message_count"`
}

// Transcript is a conversation together with its cached messages.
type Transcript struct {
	ConversationSummary `yaml:",inline"`
	Messages            []Message `json:"messages" yaml:"messages"`
}

// UserProfile is the identity the service returned at login.
type UserProfile struct {
	GoogleID string `json:"google_id,omitempty" yaml:"google_id,omitempty"`
	Name     string `json:"name" yaml:"name"`
	Email    string `json:"email" yaml:"email"`
	Picture  string `json:"picture,omitempty" yaml:"picture,omitempty"`
}

// Credential is the bearer token together with the profile it belongs to.
type Credential struct {
	AccessToken string
	User        UserProfile
}

// QuotaState holds the free chat counters. CanSend is always Remaining > 0.
type QuotaState struct {
	Remaining int  `json:"remaining" yaml:"remaining"`
	Used      int  `json:"used" yaml:"used"`
	CanSend   bool `json:"can_send" yaml:"can_send"`
}

// NewQuotaState builds a quota with non-negative counters and a consistent
// CanSend flag.
func NewQuotaState(remaining, used int) QuotaState {
	if remaining < 0 {
		remaining = 0
	}
	if used < 0 {
		used = 0
	}
	return QuotaState{Remaining: remaining, Used: used, CanSend: remaining > 0}
}

// DefaultQuota is the quota of a session that has not talked to the service:
// the full free allowance, nothing used.
func DefaultQuota(freeLimit int) QuotaState {
	return NewQuotaState(freeLimit, 0)
}

// ConnectionStatus is the reachability state reported by the connection monitor.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
)

// ConnectionState is rebuilt on every probe and never persisted.
type ConnectionState struct {
	Status    ConnectionStatus `json:"status" yaml:"status"`
	Endpoint  string           `json:"endpoint" yaml:"endpoint"`
	LastError string           `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	CheckedAt time.Time        `json:"checked_at,omitempty" yaml:"checked_at,omitempty"`
}
