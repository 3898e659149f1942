package interfaces

import (
	"context"
	"net/http"

	"ragchat/client/internal/model"
	"ragchat/client/internal/service"
)

// The command layer depends on these contracts rather than on the concrete
// services, so commands can be exercised against fakes.

// SessionService owns the credential, the profile, and the quota.
type SessionService interface {
	RestoreSession(ctx context.Context) error
	CompleteLogin(ctx context.Context, externalCredential string) (*model.UserProfile, error)
	Logout(ctx context.Context) error
	RefreshQuota(ctx context.Context) error
	DecrementQuota(newRemaining int)
	AuthorizationHeaders() http.Header
	IsAuthenticated() bool
	Quota() model.QuotaState
	Snapshot() service.SessionSnapshot
	FreeLimit() int
}

// ConversationService owns the conversation list and loaded transcripts.
type ConversationService interface {
	ListConversations(ctx context.Context) ([]model.ConversationSummary, error)
	StartNew() model.ConversationSummary
	Select(ctx context.Context, summary model.ConversationSummary) ([]model.Message, error)
	Load(ctx context.Context, id string) error
	AppendOptimistic(conversationID string, msg model.Message) model.Message
	Remove(ctx context.Context, conversationID string) error
	ActiveID() string
	Summaries() []model.ConversationSummary
	Summary(conversationID string) (model.ConversationSummary, bool)
	Messages(conversationID string) ([]model.Message, bool)
}

// ConnectionMonitor tracks whether the service is reachable.
type ConnectionMonitor interface {
	SetEndpoint(endpoint string)
	Probe(ctx context.Context) model.ConnectionState
	State() model.ConnectionState
	IsConnected() bool
	Close()
}

// Projection renders the active transcript.
type Projection interface {
	Transcript() []model.Message
}

// Dispatcher runs user sends.
type Dispatcher interface {
	Send(ctx context.Context, req *service.SendRequest) *service.SendResult
}
