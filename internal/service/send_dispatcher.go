package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	app_errors "ragchat/client/internal/errors"
	"ragchat/client/internal/model"
	"ragchat/client/internal/remote"
)

// ChatBackend sends one message to the service.
type ChatBackend interface {
	Chat(ctx context.Context, auth http.Header, req *remote.ChatRequest) (*remote.ChatResponse, error)
}

// QuotaSession is what the dispatcher needs from the session manager.
type QuotaSession interface {
	Authorizer
	Quota() model.QuotaState
	DecrementQuotaAt(epoch uint64, newRemaining int) bool
}

// ConnectionReporter reports the monitor's current view of the service.
type ConnectionReporter interface {
	State() model.ConnectionState
}

// ConversationWriter is what the dispatcher needs from the conversation cache.
type ConversationWriter interface {
	ActiveID() string
	StartConversation(id string) model.ConversationSummary
	Load(ctx context.Context, conversationID string) error
	AppendOptimistic(conversationID string, msg model.Message) model.Message
}

type DispatcherOptions struct {
	FreeChatLimit    int
	MaxMessageLength int
	ChatTimeout      time.Duration
}

// SendRequest is one user send. An empty ConversationID targets the active
// conversation, or a new one when none is active.
type SendRequest struct {
	ConversationID string `validate:"omitempty,max=256"`
	Content        string
}

// SendResult is the outcome of a send. Reply is the assistant's answer on
// success or the error notice shown in its place on failure. UserMessage is
// nil when the send was rejected before anything was appended.
type SendResult struct {
	ConversationID string           `json:"conversation_id,omitempty" yaml:"conversation_id,omitempty"`
	UserMessage    *model.Message   `json:"user_message,omitempty" yaml:"user_message,omitempty"`
	Reply          model.Message    `json:"reply" yaml:"reply"`
	Quota          model.QuotaState `json:"quota" yaml:"quota"`
	Err            error            `json:"-" yaml:"-"`
}

// SendDispatcher runs the send flow: validate, gate on session, quota, and
// connection, append the user message, call the service, and apply the
// answer or an error notice. Sends to one conversation are serialized.
type SendDispatcher struct {
	backend       ChatBackend
	session       QuotaSession
	connection    ConnectionReporter
	conversations ConversationWriter
	opts          DispatcherOptions
	locks         conversationLocks
}

func NewSendDispatcher(backend ChatBackend, session QuotaSession, connection ConnectionReporter, conversations ConversationWriter, opts DispatcherOptions) *SendDispatcher {
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = 1000
	}
	if opts.ChatTimeout <= 0 {
		opts.ChatTimeout = 60 * time.Second
	}
	return &SendDispatcher{
		backend:       backend,
		session:       session,
		connection:    connection,
		conversations: conversations,
		opts:          opts,
		locks:         conversationLocks{locks: make(map[string]*conversationLock)},
	}
}

// Send never returns a nil result. Result.Err carries the classified failure.
func (d *SendDispatcher) Send(ctx context.Context, req *SendRequest) *SendResult {
	content := strings.TrimSpace(req.Content)
	if err := validateMessage(content, d.opts.MaxMessageLength); err != nil {
		return d.reject(req.ConversationID, err)
	}
	if err := validateRequest(req); err != nil {
		return d.reject(req.ConversationID, err)
	}

	_, epoch, ok := d.session.Authorization()
	if err := d.gate(ok); err != nil {
		return d.reject(req.ConversationID, err)
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = d.conversations.ActiveID()
	}
	fresh := conversationID == ""
	if fresh {
		conversationID = model.NewConversationID(time.Now().UTC())
	}

	release, err := d.locks.acquire(ctx, conversationID)
	if err != nil {
		return d.reject(conversationID, fmt.Errorf("%w: %w", app_errors.ErrTimeout, err))
	}
	defer release()

	// The quota may have been spent by a send that held the lock before us.
	header, current, ok := d.session.Authorization()
	if !ok || current != epoch {
		return d.reject(conversationID, app_errors.ErrAuthRequired)
	}
	if !d.session.Quota().CanSend {
		return d.reject(conversationID, app_errors.ErrQuotaExhausted)
	}

	// History goes in front of the new exchange, so it is loaded first.
	if fresh {
		d.conversations.StartConversation(conversationID)
	} else if err := d.conversations.Load(ctx, conversationID); err != nil {
		return d.reject(conversationID, err)
	}

	userMsg := d.conversations.AppendOptimistic(conversationID, model.Message{
		Role:      model.RoleUser,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})

	chatReq := &remote.ChatRequest{Message: content, ConversationID: conversationID}
	cctx, cancel := context.WithTimeout(ctx, d.opts.ChatTimeout)
	resp, err := d.backend.Chat(cctx, header, chatReq)
	cancel()
	if err != nil {
		return d.fail(ctx, epoch, conversationID, &userMsg, err)
	}

	if !d.session.IsCurrent(epoch) {
		slog.Info("Dropping chat answer for an ended session.", "conversation_id", conversationID)
		return d.reject(conversationID, app_errors.ErrAuthRequired)
	}

	reply := d.conversations.AppendOptimistic(conversationID, model.Message{
		Role:      model.RoleAssistant,
		Content:   resp.Text(),
		Sources:   resp.Sources,
		Timestamp: time.Now().UTC(),
	})

	remaining := d.session.Quota().Remaining - 1
	if resp.RemainingChats != nil {
		remaining = *resp.RemainingChats
	}
	d.session.DecrementQuotaAt(epoch, remaining)
	quota := d.session.Quota()

	slog.Info("Message sent.", "conversation_id", conversationID, "remaining_chats", quota.Remaining)
	return &SendResult{
		ConversationID: conversationID,
		UserMessage:    &userMsg,
		Reply:          reply,
		Quota:          quota,
	}
}

func (d *SendDispatcher) gate(authenticated bool) error {
	if !authenticated {
		return app_errors.ErrAuthRequired
	}
	if !d.session.Quota().CanSend {
		return app_errors.ErrQuotaExhausted
	}
	state := d.connection.State()
	if state.Status != model.StatusConnected {
		reason := state.LastError
		if reason == "" {
			reason = string(state.Status)
		}
		return fmt.Errorf("%w: %s", app_errors.ErrUnreachable, reason)
	}
	return nil
}

// reject reports a send that failed before or instead of a remote call.
// Nothing is appended to the cache.
func (d *SendDispatcher) reject(conversationID string, err error) *SendResult {
	slog.Debug("Send rejected.", "conversation_id", conversationID, "error", err)
	return &SendResult{
		ConversationID: conversationID,
		Reply:          d.notice(err),
		Quota:          d.session.Quota(),
		Err:            err,
	}
}

// fail applies a failed remote call: a 401 logs out, anything else leaves
// an error notice in the transcript. The quota is left alone.
func (d *SendDispatcher) fail(ctx context.Context, epoch uint64, conversationID string, userMsg *model.Message, err error) *SendResult {
	err = routeUnauthorized(ctx, d.session, epoch, err)
	notice := d.notice(err)
	if !errors.Is(err, app_errors.ErrAuthRequired) && d.session.IsCurrent(epoch) {
		notice = d.conversations.AppendOptimistic(conversationID, notice)
	}
	slog.Warn("Chat send failed.", "conversation_id", conversationID, "error", err)
	return &SendResult{
		ConversationID: conversationID,
		UserMessage:    userMsg,
		Reply:          notice,
		Quota:          d.session.Quota(),
		Err:            err,
	}
}

func (d *SendDispatcher) notice(err error) model.Message {
	now := time.Now().UTC()
	return model.Message{
		ID:        model.NewMessageID(model.RoleAssistant, now),
		Role:      model.RoleAssistant,
		Content:   app_errors.UserMessage(err, d.opts.FreeChatLimit),
		Timestamp: now,
		IsError:   true,
	}
}

// conversationLocks hands out one lock per conversation id and forgets it
// when nobody holds or waits for it.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[string]*conversationLock
}

type conversationLock struct {
	sem  chan struct{}
	refs int
}

func (l *conversationLocks) acquire(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[id]
	if !ok {
		lock = &conversationLock{sem: make(chan struct{}, 1)}
		l.locks[id] = lock
	}
	lock.refs++
	l.mu.Unlock()

	select {
	case lock.sem <- struct{}{}:
		return func() {
			<-lock.sem
			l.forget(id, lock)
		}, nil
	case <-ctx.Done():
		l.forget(id, lock)
		return nil, ctx.Err()
	}
}

func (l *conversationLocks) forget(id string, lock *conversationLock) {
	l.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, id)
	}
	l.mu.Unlock()
}
