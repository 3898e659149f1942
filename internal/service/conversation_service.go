package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	app_errors "ragchat/client/internal/errors"
	"ragchat/client/internal/model"
)

const (
	newConversationTitle = "New Conversation"
	titleLength          = 50
	previewLength        = 100
)

// ConversationBackend is the part of the remote service the cache uses.
type ConversationBackend interface {
	ListConversations(ctx context.Context, auth http.Header) ([]model.ConversationSummary, error)
	GetConversation(ctx context.Context, auth http.Header, conversationID string) ([]model.Message, error)
	DeleteConversation(ctx context.Context, auth http.Header, conversationID string) error
}

// ConversationCache keeps the conversation list and the message lists that
// have been loaded, and tracks which conversation is active. Message lists
// are only appended to; a loaded list is never fetched again.
type ConversationCache struct {
	backend ConversationBackend
	session Authorizer
	timeout time.Duration
	fetches singleflight.Group

	mu        sync.RWMutex
	summaries []model.ConversationSummary
	entries   map[string][]model.Message
	active    string
}

func NewConversationCache(backend ConversationBackend, session Authorizer, requestTimeout time.Duration) *ConversationCache {
	return &ConversationCache{
		backend: backend,
		session: session,
		timeout: requestTimeout,
		entries: make(map[string][]model.Message),
	}
}

// ListConversations replaces the local list with the service's list.
func (c *ConversationCache) ListConversations(ctx context.Context) ([]model.ConversationSummary, error) {
	header, epoch, ok := c.session.Authorization()
	if !ok {
		return nil, app_errors.ErrAuthRequired
	}

	rctx, cancel := c.withTimeout(ctx)
	summaries, err := c.backend.ListConversations(rctx, header)
	cancel()
	if err != nil {
		return nil, routeUnauthorized(ctx, c.session, epoch, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.session.IsCurrent(epoch) {
		return nil, app_errors.ErrAuthRequired
	}
	c.summaries = slices.Clone(summaries)
	slog.Debug("Loaded conversation list.", "count", len(summaries))
	return slices.Clone(summaries), nil
}

// StartNew creates an empty conversation locally, puts it at the front of
// the list, and makes it active. Nothing is sent to the service until the
// first message.
func (c *ConversationCache) StartNew() model.ConversationSummary {
	return c.StartConversation(model.NewConversationID(time.Now().UTC()))
}

// StartConversation is StartNew with a caller-chosen id.
func (c *ConversationCache) StartConversation(id string) model.ConversationSummary {
	now := time.Now().UTC()
	summary := model.ConversationSummary{
		ID:        id,
		Title:     newConversationTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}

	c.mu.Lock()
	c.summaries = append([]model.ConversationSummary{summary}, c.summaries...)
	c.entries[summary.ID] = []model.Message{}
	c.active = summary.ID
	c.mu.Unlock()

	slog.Info("Started new conversation.", "conversation_id", summary.ID)
	return summary
}

// Select makes summary active and returns its messages, fetching them once
// if they have not been loaded. Concurrent selections of the same
// conversation share one fetch. A failed fetch caches nothing.
func (c *ConversationCache) Select(ctx context.Context, summary model.ConversationSummary) ([]model.Message, error) {
	if summary.ID == "" {
		return nil, fmt.Errorf("%w: conversation id is required", app_errors.ErrValidation)
	}

	c.mu.Lock()
	c.active = summary.ID
	if c.indexLocked(summary.ID) < 0 {
		c.summaries = append(c.summaries, summary)
	}
	if msgs, ok := c.entries[summary.ID]; ok {
		out := slices.Clone(msgs)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	v, err, _ := c.fetches.Do(summary.ID, func() (any, error) {
		return c.fetch(ctx, summary.ID)
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]model.Message)), nil
}

// Load fetches a conversation's history unless it is already cached. The
// active conversation is left alone.
func (c *ConversationCache) Load(ctx context.Context, id string) error {
	c.mu.RLock()
	_, ok := c.entries[id]
	c.mu.RUnlock()
	if ok {
		return nil
	}
	_, err, _ := c.fetches.Do(id, func() (any, error) {
		return c.fetch(ctx, id)
	})
	return err
}

func (c *ConversationCache) fetch(ctx context.Context, id string) ([]model.Message, error) {
	header, epoch, ok := c.session.Authorization()
	if !ok {
		return nil, app_errors.ErrAuthRequired
	}

	rctx, cancel := c.withTimeout(ctx)
	fetched, err := c.backend.GetConversation(rctx, header, id)
	cancel()
	if err != nil {
		slog.Warn("Could not load conversation.", "conversation_id", id, "error", err)
		return nil, routeUnauthorized(ctx, c.session, epoch, err)
	}

	now := time.Now()
	for i := range fetched {
		if fetched[i].ID == "" {
			ts := fetched[i].Timestamp
			if ts.IsZero() {
				ts = now
			}
			fetched[i].ID = model.NewMessageID(fetched[i].Role, ts)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.session.IsCurrent(epoch) {
		return nil, app_errors.ErrAuthRequired
	}
	// Messages appended while the fetch was running come after the history.
	merged := append(fetched, c.entries[id]...)
	c.entries[id] = merged
	if idx := c.indexLocked(id); idx >= 0 && c.summaries[idx].MessageCount < len(merged) {
		c.summaries[idx].MessageCount = len(merged)
	}
	return slices.Clone(merged), nil
}

// AppendOptimistic adds msg to a conversation's list, assigning an id and
// timestamp when missing, and updates the conversation's summary. It returns
// the message as stored.
func (c *ConversationCache) AppendOptimistic(conversationID string, msg model.Message) model.Message {
	now := time.Now().UTC()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	if msg.ID == "" {
		msg.ID = model.NewMessageID(msg.Role, msg.Timestamp)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[conversationID] = append(c.entries[conversationID], msg)

	idx := c.indexLocked(conversationID)
	if idx < 0 {
		c.summaries = append([]model.ConversationSummary{{
			ID:        conversationID,
			Title:     newConversationTitle,
			CreatedAt: msg.Timestamp,
		}}, c.summaries...)
		idx = 0
	}
	summary := &c.summaries[idx]
	summary.UpdatedAt = msg.Timestamp
	summary.LastMessage = truncate(msg.Content, previewLength)
	summary.MessageCount = max(summary.MessageCount+1, len(c.entries[conversationID]))
	if msg.Role == model.RoleUser && summary.Title == newConversationTitle {
		summary.Title = titleFrom(msg.Content)
	}
	return msg
}

// Remove deletes a conversation on the service and then locally. If it was
// active, no conversation is active afterwards.
func (c *ConversationCache) Remove(ctx context.Context, conversationID string) error {
	header, epoch, ok := c.session.Authorization()
	if !ok {
		return app_errors.ErrAuthRequired
	}

	rctx, cancel := c.withTimeout(ctx)
	err := c.backend.DeleteConversation(rctx, header, conversationID)
	cancel()
	if err != nil {
		return routeUnauthorized(ctx, c.session, epoch, err)
	}

	c.mu.Lock()
	if idx := c.indexLocked(conversationID); idx >= 0 {
		c.summaries = slices.Delete(c.summaries, idx, idx+1)
	}
	delete(c.entries, conversationID)
	if c.active == conversationID {
		c.active = ""
	}
	c.mu.Unlock()

	slog.Info("Deleted conversation.", "conversation_id", conversationID)
	return nil
}

// Reset forgets everything. It runs on logout.
func (c *ConversationCache) Reset() {
	c.mu.Lock()
	c.summaries = nil
	c.entries = make(map[string][]model.Message)
	c.active = ""
	c.mu.Unlock()
}

func (c *ConversationCache) ActiveID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

func (c *ConversationCache) Summaries() []model.ConversationSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.summaries)
}

func (c *ConversationCache) Summary(conversationID string) (model.ConversationSummary, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if idx := c.indexLocked(conversationID); idx >= 0 {
		return c.summaries[idx], true
	}
	return model.ConversationSummary{}, false
}

// Messages returns a copy of a loaded message list. The bool is false when
// the conversation has never been loaded.
func (c *ConversationCache) Messages(conversationID string) ([]model.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	msgs, ok := c.entries[conversationID]
	return slices.Clone(msgs), ok
}

func (c *ConversationCache) indexLocked(id string) int {
	return slices.IndexFunc(c.summaries, func(s model.ConversationSummary) bool { return s.ID == id })
}

func (c *ConversationCache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// titleFrom derives a conversation title from its first user message.
func titleFrom(content string) string {
	title := truncate(content, titleLength)
	if title != content {
		title += "..."
	}
	return title
}

// truncate shortens a string to a specified number of runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
