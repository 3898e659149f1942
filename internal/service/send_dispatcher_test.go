package service_test

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	app_errors "ragchat/client/internal/errors"
	"ragchat/client/internal/model"
	"ragchat/client/internal/remote"
	"ragchat/client/internal/service"
)

type staticConnection struct {
	state model.ConnectionState
}

func (c staticConnection) State() model.ConnectionState { return c.state }

var connected = staticConnection{state: model.ConnectionState{Status: model.StatusConnected, Endpoint: "http://api.test"}}

func setupDispatcher(t *testing.T, conn service.ConnectionReporter) (*service.SendDispatcher, fixture) {
	f := setupFixture(t)
	d := service.NewSendDispatcher(f.mocks.backend, f.session, conn, f.conversations, service.DispatcherOptions{
		FreeChatLimit:    freeLimit,
		MaxMessageLength: 20,
		ChatTimeout:      time.Second,
	})
	return d, f
}

func remaining(n int) *int { return &n }

func TestSendDispatcher_Gate(t *testing.T) {
	ctx := context.Background()

	t.Run("Unauthenticated", func(t *testing.T) {
		d, f := setupDispatcher(t, connected)

		res := d.Send(ctx, &service.SendRequest{Content: "hello"})
		assert.ErrorIs(t, res.Err, app_errors.ErrAuthRequired)
		assert.Nil(t, res.UserMessage)
		assert.True(t, res.Reply.IsError)
		assert.Equal(t, "Please log in with Google to start chatting.", res.Reply.Content)
		assert.Empty(t, f.conversations.Summaries(), "a rejected send does not touch the cache")
	})

	t.Run("Quota exhausted", func(t *testing.T) {
		d, f := setupDispatcher(t, connected)
		f.login(t, 0)

		res := d.Send(ctx, &service.SendRequest{Content: "hello"})
		assert.ErrorIs(t, res.Err, app_errors.ErrQuotaExhausted)
		assert.Equal(t, "You've used all 3 free chats. Upgrade to premium to continue chatting!", res.Reply.Content)
	})

	t.Run("Not connected", func(t *testing.T) {
		d, f := setupDispatcher(t, staticConnection{state: model.ConnectionState{
			Status:    model.StatusError,
			LastError: "Connection timeout - server may be down",
		}})
		f.login(t, 3)

		res := d.Send(ctx, &service.SendRequest{Content: "hello"})
		assert.ErrorIs(t, res.Err, app_errors.ErrUnreachable)
		assert.ErrorContains(t, res.Err, "Connection timeout")
		assert.Equal(t, 3, f.session.Quota().Remaining)
	})

	t.Run("Blank message", func(t *testing.T) {
		d, f := setupDispatcher(t, connected)
		f.login(t, 3)

		res := d.Send(ctx, &service.SendRequest{Content: "   \n"})
		assert.ErrorIs(t, res.Err, app_errors.ErrValidation)
	})

	t.Run("Message too long", func(t *testing.T) {
		d, f := setupDispatcher(t, connected)
		f.login(t, 3)

		res := d.Send(ctx, &service.SendRequest{Content: strings.Repeat("x", 21)})
		assert.ErrorIs(t, res.Err, app_errors.ErrValidation)
		assert.ErrorContains(t, res.Err, "20 characters")
	})
}

func TestSendDispatcher_Success(t *testing.T) {
	ctx := context.Background()

	t.Run("Starts a conversation and applies the answer", func(t *testing.T) {
		d, f := setupDispatcher(t, connected)
		f.login(t, 3)
		f.mocks.backend.On("Chat", mock.Anything, bearerHeader(), mock.MatchedBy(func(req *remote.ChatRequest) bool {
			return req.Message == "What is RAG?" && strings.HasPrefix(req.ConversationID, "conv_")
		})).Return(&remote.ChatResponse{
			Response:       "Retrieval augmented generation.",
			Sources:        []model.Source{{Document: "intro.pdf", Content: "RAG combines..."}},
			RemainingChats: remaining(2),
		}, nil).Once()

		res := d.Send(ctx, &service.SendRequest{Content: "  What is RAG?  "})

		require.NoError(t, res.Err)
		require.NotNil(t, res.UserMessage)
		assert.Equal(t, "What is RAG?", res.UserMessage.Content)
		assert.Equal(t, "Retrieval augmented generation.", res.Reply.Content)
		assert.False(t, res.Reply.IsError)
		assert.Equal(t, model.QuotaState{Remaining: 2, Used: 1, CanSend: true}, res.Quota)
		assert.Equal(t, res.ConversationID, f.conversations.ActiveID())

		msgs, ok := f.conversations.Messages(res.ConversationID)
		require.True(t, ok)
		require.Len(t, msgs, 2)
		assert.Equal(t, model.RoleUser, msgs[0].Role)
		assert.Equal(t, model.RoleAssistant, msgs[1].Role)
		assert.Len(t, msgs[1].Sources, 1)

		summary, _ := f.conversations.Summary(res.ConversationID)
		assert.Equal(t, "What is RAG?", summary.Title)
		assert.Equal(t, 2, summary.MessageCount)
	})

	t.Run("Missing remaining count decrements locally", func(t *testing.T) {
		d, f := setupDispatcher(t, connected)
		f.login(t, 3)
		conv := f.conversations.StartNew()
		f.mocks.backend.On("Chat", mock.Anything, mock.Anything, mock.Anything).
			Return(&remote.ChatResponse{Answer: "legacy answer"}, nil).Once()

		res := d.Send(ctx, &service.SendRequest{ConversationID: conv.ID, Content: "hi"})

		require.NoError(t, res.Err)
		assert.Equal(t, conv.ID, res.ConversationID)
		assert.Equal(t, "legacy answer", res.Reply.Content)
		assert.Equal(t, model.QuotaState{Remaining: 2, Used: 1, CanSend: true}, f.session.Quota())
	})
}

func TestSendDispatcher_RemoteFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("Service error appends a notice and keeps the quota", func(t *testing.T) {
		d, f := setupDispatcher(t, connected)
		f.login(t, 3)
		f.mocks.backend.On("Chat", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, &app_errors.ServiceError{StatusCode: 500, Detail: "upstream failure"}).Once()

		res := d.Send(ctx, &service.SendRequest{Content: "hello"})

		assert.ErrorIs(t, res.Err, app_errors.ErrService)
		assert.True(t, res.Reply.IsError)
		assert.Contains(t, res.Reply.Content, "upstream failure")
		assert.Equal(t, 3, f.session.Quota().Remaining)

		msgs, _ := f.conversations.Messages(res.ConversationID)
		require.Len(t, msgs, 2, "the user message stays and the notice follows it")
		assert.Equal(t, "hello", msgs[0].Content)
		assert.True(t, msgs[1].IsError)
	})

	t.Run("Timeout", func(t *testing.T) {
		d, f := setupDispatcher(t, connected)
		f.login(t, 3)
		f.mocks.backend.On("Chat", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: %w", app_errors.ErrTimeout, context.DeadlineExceeded)).Once()

		res := d.Send(ctx, &service.SendRequest{Content: "hello"})
		assert.ErrorIs(t, res.Err, app_errors.ErrTimeout)
		assert.Equal(t, "Request timed out. The server might be processing or down.", res.Reply.Content)
	})

	t.Run("Server-side quota exhaustion", func(t *testing.T) {
		d, f := setupDispatcher(t, connected)
		f.login(t, 1)
		f.mocks.backend.On("Chat", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: upgrade required", app_errors.ErrQuotaExhausted)).Once()

		res := d.Send(ctx, &service.SendRequest{Content: "hello"})
		assert.ErrorIs(t, res.Err, app_errors.ErrQuotaExhausted)
		assert.Equal(t, 1, f.session.Quota().Remaining)
	})

	t.Run("Unauthorized logs out", func(t *testing.T) {
		d, f := setupDispatcher(t, connected)
		f.login(t, 3)
		f.mocks.backend.On("Chat", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: expired", app_errors.ErrUnauthorized)).Once()

		res := d.Send(ctx, &service.SendRequest{Content: "hello"})

		assert.ErrorIs(t, res.Err, app_errors.ErrAuthRequired)
		assert.False(t, f.session.IsAuthenticated())
		assert.Empty(t, f.conversations.Summaries())
	})

	t.Run("Answer arriving after logout is dropped", func(t *testing.T) {
		d, f := setupDispatcher(t, connected)
		f.login(t, 3)
		f.mocks.backend.On("Chat", mock.Anything, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				require.NoError(t, f.session.Logout(ctx))
			}).
			Return(&remote.ChatResponse{Response: "late", RemainingChats: remaining(2)}, nil).Once()

		res := d.Send(ctx, &service.SendRequest{Content: "hello"})

		assert.ErrorIs(t, res.Err, app_errors.ErrAuthRequired)
		assert.False(t, f.session.IsAuthenticated())
		assert.Equal(t, model.DefaultQuota(freeLimit), f.session.Quota())
		assert.Empty(t, f.conversations.Summaries())
	})
}

func TestSendDispatcher_SerializesSendsPerConversation(t *testing.T) {
	ctx := context.Background()
	d, f := setupDispatcher(t, connected)
	f.login(t, 1)
	conv := f.conversations.StartNew()

	f.mocks.backend.On("Chat", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { time.Sleep(30 * time.Millisecond) }).
		Return(&remote.ChatResponse{Response: "ok", RemainingChats: remaining(0)}, nil).Once()

	results := make([]*service.SendResult, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = d.Send(ctx, &service.SendRequest{ConversationID: conv.ID, Content: fmt.Sprintf("message %d", i)})
		}(i)
	}
	wg.Wait()

	var sent, exhausted int
	for _, res := range results {
		switch {
		case res.Err == nil:
			sent++
		case assert.ErrorIs(t, res.Err, app_errors.ErrQuotaExhausted):
			exhausted++
		}
	}
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, exhausted)
	assert.Equal(t, model.QuotaState{Remaining: 0, Used: 3, CanSend: false}, f.session.Quota())
}

func TestSendDispatcher_ExistingConversation(t *testing.T) {
	ctx := context.Background()
	history := []model.Message{
		{ID: "m-1", Role: model.RoleUser, Content: "What is RAG?"},
		{ID: "m-2", Role: model.RoleAssistant, Content: "Retrieval augmented generation."},
	}

	t.Run("Loads the history before the new exchange", func(t *testing.T) {
		d, f := setupDispatcher(t, connected)
		f.login(t, 3)
		f.mocks.backend.On("GetConversation", mock.Anything, bearerHeader(), "conv_server_1").
			Return(history, nil).Once()
		f.mocks.backend.On("Chat", mock.Anything, mock.Anything, mock.Anything).
			Return(&remote.ChatResponse{Response: "answer", RemainingChats: remaining(2)}, nil).Once()

		res := d.Send(ctx, &service.SendRequest{ConversationID: "conv_server_1", Content: "follow up"})
		require.NoError(t, res.Err)

		msgs, err := f.conversations.Select(ctx, model.ConversationSummary{ID: "conv_server_1"})
		require.NoError(t, err)
		require.Len(t, msgs, 4)
		assert.Equal(t, "m-1", msgs[0].ID)
		assert.Equal(t, "m-2", msgs[1].ID)
		assert.Equal(t, "follow up", msgs[2].Content)
		assert.Equal(t, "answer", msgs[3].Content)

		summary, ok := f.conversations.Summary("conv_server_1")
		require.True(t, ok)
		assert.Equal(t, 4, summary.MessageCount)
		assert.Equal(t, "answer", summary.LastMessage)
	})

	t.Run("Failed history load sends nothing", func(t *testing.T) {
		d, f := setupDispatcher(t, connected)
		f.login(t, 3)
		f.mocks.backend.On("GetConversation", mock.Anything, mock.Anything, "conv_gone").
			Return(nil, &app_errors.ServiceError{StatusCode: http.StatusNotFound}).Once()

		res := d.Send(ctx, &service.SendRequest{ConversationID: "conv_gone", Content: "hello"})

		assert.ErrorIs(t, res.Err, app_errors.ErrService)
		assert.Nil(t, res.UserMessage)
		_, loaded := f.conversations.Messages("conv_gone")
		assert.False(t, loaded)
		assert.Equal(t, 3, f.session.Quota().Remaining)
		f.mocks.backend.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything, mock.Anything)
	})
}

// logoutAfterGate ends the session right after the first authorization read,
// so the check made under the conversation lock sees a logged-out session.
type logoutAfterGate struct {
	*service.SessionManager
	reads int
}

func (s *logoutAfterGate) Authorization() (http.Header, uint64, bool) {
	header, epoch, ok := s.SessionManager.Authorization()
	s.reads++
	if s.reads == 1 {
		_ = s.SessionManager.Logout(context.Background())
	}
	return header, epoch, ok
}

func TestSendDispatcher_RejectedUnderLockLeavesNoConversation(t *testing.T) {
	f := setupFixture(t)
	f.login(t, 3)
	session := &logoutAfterGate{SessionManager: f.session}
	d := service.NewSendDispatcher(f.mocks.backend, session, connected, f.conversations, service.DispatcherOptions{
		FreeChatLimit: freeLimit,
	})

	res := d.Send(context.Background(), &service.SendRequest{Content: "hello"})

	assert.ErrorIs(t, res.Err, app_errors.ErrAuthRequired)
	assert.Empty(t, f.conversations.Summaries())
	assert.Empty(t, f.conversations.ActiveID())
	f.mocks.backend.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything, mock.Anything)
}
