// Package remotetest runs an in-process stand-in for the chat service so
// client packages can be tested end to end without a network.
package remotetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ragchat/client/internal/model"
)

type user struct {
	profile   model.UserProfile
	remaining int
	chatCount int
}

type storedMessage struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Content   string         `json:"content"`
	Sources   []model.Source `json:"sources"`
	Timestamp string         `json:"timestamp"`
}

type storedConversation struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
	LastMessage  string `json:"last_message"`
	MessageCount int    `json:"message_count"`
	owner        string
}

// Server is a fake chat service. All methods are safe for concurrent use.
type Server struct {
	srv *httptest.Server

	mu            sync.Mutex
	healthy       bool
	healthMessage string
	credentials   map[string]string // external credential -> email
	users         map[string]*user  // email -> user
	tokens        map[string]string // access token -> email
	conversations map[string]*storedConversation
	messages      map[string][]storedMessage
	chatStatus    int
	chatDelay     time.Duration
	calls         map[string]int
	tokenSeq      int
}

// NewServer starts a fake service that is stopped when the test ends.
func NewServer(t testing.TB) *Server {
	s := &Server{
		healthy:       true,
		healthMessage: "RAG Chatbot API is running",
		credentials:   make(map[string]string),
		users:         make(map[string]*user),
		tokens:        make(map[string]string),
		conversations: make(map[string]*storedConversation),
		messages:      make(map[string][]storedMessage),
		calls:         make(map[string]int),
	}
	s.srv = httptest.NewServer(s.router())
	t.Cleanup(s.srv.Close)
	return s
}

func (s *Server) URL() string { return s.srv.URL }

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/auth/google", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Get("/auth/me", s.handleMe)
		r.Post("/chat", s.handleChat)
		r.Get("/history", s.handleHistory)
		r.Get("/conversation/{conversationID}", s.handleConversation)
		r.Delete("/conversation/{conversationID}", s.handleDeleteConversation)
	})
	return r
}

// AddUser registers an account reachable through the given external credential.
func (s *Server) AddUser(credential string, profile model.UserProfile, remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[credential] = profile.Email
	s.users[profile.Email] = &user{profile: profile, remaining: remaining}
}

// SetRemaining overrides the server-side quota of a user.
func (s *Server) SetRemaining(email string, remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[email]; ok {
		u.remaining = remaining
	}
}

// IssueToken returns a valid access token for email without a login call.
func (s *Server) IssueToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(email)
}

func (s *Server) issueLocked(email string) string {
	s.tokenSeq++
	token := fmt.Sprintf("token-%d-%s", s.tokenSeq, email)
	s.tokens[token] = email
	return token
}

// RevokeTokens makes every issued token answer 401.
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]string)
}

func (s *Server) SetHealthy(healthy bool, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = healthy
	s.healthMessage = message
}

// FailChats makes /chat answer with status until called again with 0.
func (s *Server) FailChats(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatStatus = status
}

func (s *Server) DelayChats(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatDelay = d
}

// SeedConversation stores a conversation owned by email with the given
// alternating user/bot contents.
func (s *Server) SeedConversation(email, id, title string, contents ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	conv := &storedConversation{
		ID:        id,
		Title:     title,
		CreatedAt: now.Format(time.RFC3339),
		UpdatedAt: now.Format(time.RFC3339),
		owner:     email,
	}
	for i, content := range contents {
		kind := "user"
		if i%2 == 1 {
			kind = "bot"
		}
		s.messages[id] = append(s.messages[id], storedMessage{
			ID:        fmt.Sprintf("%s-m%d", id, i),
			Type:      kind,
			Content:   content,
			Timestamp: now.Add(time.Duration(i) * time.Second).Format("2006-01-02T15:04:05.000000"),
		})
		conv.LastMessage = content
		conv.MessageCount++
	}
	s.conversations[id] = conv
}

// Calls reports how many requests reached a route, keyed as "GET /history".
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// Messages returns the contents stored for a conversation.
func (s *Server) Messages(conversationID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.messages[conversationID]))
	for _, m := range s.messages[conversationID] {
		out = append(out, m.Content)
	}
	return out
}

func (s *Server) count(r *http.Request) {
	route := r.Method + " " + r.URL.Path
	if id := chi.URLParam(r, "conversationID"); id != "" {
		route = r.Method + " /conversation/{id}"
	}
	s.mu.Lock()
	s.calls[route]++
	s.mu.Unlock()
}

type ctxKey struct{}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		email, ok := s.tokens[token]
		s.mu.Unlock()
		if token == "" || !ok {
			s.count(r)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid or expired token"})
			return
		}
		r.Header.Set("X-User-Email", email)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.count(r)
	s.mu.Lock()
	healthy, msg := s.healthy, s.healthMessage
	s.mu.Unlock()
	status := "unhealthy"
	if healthy {
		status = "healthy"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status, "message": msg})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.count(r)
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.credentials[req.Token]
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Login failed: invalid Google token"})
		return
	}
	u := s.users[email]
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":    s.issueLocked(email),
		"token_type":      "bearer",
		"user":            u.profile,
		"remaining_chats": u.remaining,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.count(r)
	s.mu.Lock()
	u := s.users[r.Header.Get("X-User-Email")]
	body := map[string]any{
		"user":            u.profile,
		"chat_count":      u.chatCount,
		"remaining_chats": u.remaining,
		"can_chat":        u.remaining > 0,
		"is_premium":      false,
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	s.count(r)
	var req struct {
		Message        string `json:"message"`
		ConversationID string `json:"conversation_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid body"})
		return
	}

	s.mu.Lock()
	delay, failure := s.chatDelay, s.chatStatus
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if failure != 0 {
		writeJSON(w, failure, map[string]string{"detail": "Error processing request: upstream failure"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	email := r.Header.Get("X-User-Email")
	u := s.users[email]
	if u.remaining <= 0 {
		writeJSON(w, http.StatusForbidden, map[string]any{"detail": map[string]any{
			"message":          "You've used all free chats. Upgrade to premium to continue.",
			"upgrade_required": true,
		}})
		return
	}
	u.remaining--
	u.chatCount++

	answer := "Answer to: " + req.Message
	now := time.Now().UTC().Format(time.RFC3339Nano)
	conv, ok := s.conversations[req.ConversationID]
	if !ok {
		conv = &storedConversation{ID: req.ConversationID, Title: req.Message, CreatedAt: now, owner: email}
		s.conversations[req.ConversationID] = conv
	}
	s.messages[req.ConversationID] = append(s.messages[req.ConversationID],
		storedMessage{Type: "user", Content: req.Message, Timestamp: now},
		storedMessage{Type: "bot", Content: answer, Timestamp: now},
	)
	conv.UpdatedAt = now
	conv.LastMessage = answer
	conv.MessageCount += 2

	writeJSON(w, http.StatusOK, map[string]any{
		"response":        answer,
		"sources":         []model.Source{{Document: "handbook.pdf", Content: "excerpt"}},
		"conversation_id": req.ConversationID,
		"remaining_chats": u.remaining,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.count(r)
	s.mu.Lock()
	email := r.Header.Get("X-User-Email")
	convs := make([]*storedConversation, 0)
	for _, c := range s.conversations {
		if c.owner == email {
			convs = append(convs, c)
		}
	}
	body := map[string]any{"conversations": convs, "total": len(convs)}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	s.count(r)
	id := chi.URLParam(r, "conversationID")
	s.mu.Lock()
	msgs := append([]storedMessage{}, s.messages[id]...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs, "conversation_id": id, "total": len(msgs)})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	s.count(r)
	id := chi.URLParam(r, "conversationID")
	s.mu.Lock()
	delete(s.conversations, id)
	delete(s.messages, id)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Conversation deleted successfully", "conversation_id": id})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
