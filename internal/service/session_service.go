package service

import (
	"context"
	"encoding/json"
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
	"ragchat/client/internal/repository"
)

// SessionBackend is the part of the remote service the session manager uses.
type SessionBackend interface {
	Login(ctx context.Context, externalCredential string) (*remote.LoginResponse, error)
	FetchStatus(ctx context.Context, auth http.Header) (*remote.StatusResponse, error)
}

// SessionManager owns the credential, the user profile, and the quota. It is
// the only component that writes them. Every login and logout starts a new
// epoch; results of remote calls started in an older epoch are dropped.
type SessionManager struct {
	store     repository.Store
	backend   SessionBackend
	freeLimit int
	timeout   time.Duration

	mu          sync.RWMutex
	token       string
	user        *model.UserProfile
	quota       model.QuotaState
	epoch       uint64
	logoutHooks []func()
}

// SessionSnapshot is a consistent copy of the session for display.
type SessionSnapshot struct {
	Authenticated bool               `json:"authenticated" yaml:"authenticated"`
	User          *model.UserProfile `json:"user,omitempty" yaml:"user,omitempty"`
	Quota         model.QuotaState   `json:"quota" yaml:"quota"`
}

func NewSessionManager(store repository.Store, backend SessionBackend, freeLimit int, requestTimeout time.Duration) *SessionManager {
	return &SessionManager{
		store:     store,
		backend:   backend,
		freeLimit: freeLimit,
		timeout:   requestTimeout,
		quota:     model.DefaultQuota(freeLimit),
	}
}

// OnLogout registers fn to run after every logout, outside the session lock.
func (s *SessionManager) OnLogout(fn func()) {
	s.mu.Lock()
	s.logoutHooks = append(s.logoutHooks, fn)
	s.mu.Unlock()
}

// RestoreSession loads a persisted credential and profile. Missing state is
// not an error; a corrupt profile is treated as a logout. When a session is
// restored its quota is refreshed before returning.
func (s *SessionManager) RestoreSession(ctx context.Context) error {
	token, err := s.store.Get(ctx, repository.KeyAccessToken)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not read stored credential: %w", err)
	}

	rawUser, err := s.store.Get(ctx, repository.KeyUserProfile)
	if errors.Is(err, repository.ErrNotFound) {
		slog.Warn("Stored credential has no profile; discarding it.")
		return s.Logout(ctx)
	}
	if err != nil {
		return fmt.Errorf("could not read stored profile: %w", err)
	}

	var user model.UserProfile
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil || strings.TrimSpace(token) == "" {
		slog.Warn("Stored session is corrupt; discarding it.", "error", err)
		return s.Logout(ctx)
	}

	s.mu.Lock()
	s.token = token
	s.user = &user
	s.quota = model.DefaultQuota(s.freeLimit)
	s.epoch++
	s.mu.Unlock()
	slog.Info("Restored stored session.", "email", user.Email)

	if err := s.RefreshQuota(ctx); err != nil {
		if errors.Is(err, app_errors.ErrAuthRequired) {
			slog.Info("Stored credential was rejected by the service; logged out.")
			return nil
		}
		slog.Warn("Could not refresh quota after restoring session.", "error", err)
	}
	return nil
}

// CompleteLogin exchanges an external credential for a session. On any
// failure the session is logged out and no partial state is kept.
func (s *SessionManager) CompleteLogin(ctx context.Context, externalCredential string) (*model.UserProfile, error) {
	externalCredential = strings.TrimSpace(externalCredential)
	if externalCredential == "" {
		s.cleanupAfterFailedLogin(ctx)
		return nil, fmt.Errorf("%w: credential is required", app_errors.ErrValidation)
	}

	rctx, cancel := s.withTimeout(ctx)
	resp, err := s.backend.Login(rctx, externalCredential)
	cancel()
	if err != nil {
		s.cleanupAfterFailedLogin(ctx)
		return nil, err
	}

	profile, err := json.Marshal(resp.User)
	if err != nil {
		s.cleanupAfterFailedLogin(ctx)
		return nil, fmt.Errorf("could not encode user profile: %w", err)
	}
	if err := s.store.Put(ctx, map[string]string{
		repository.KeyAccessToken: resp.AccessToken,
		repository.KeyUserProfile: string(profile),
	}); err != nil {
		s.cleanupAfterFailedLogin(ctx)
		return nil, fmt.Errorf("could not persist session: %w", err)
	}

	user := resp.User
	s.mu.Lock()
	s.token = resp.AccessToken
	s.user = &user
	s.quota = model.NewQuotaState(resp.RemainingChats, s.freeLimit-resp.RemainingChats)
	s.epoch++
	s.mu.Unlock()

	slog.Info("User logged in.", "email", user.Email, "remaining_chats", resp.RemainingChats)
	out := user
	return &out, nil
}

func (s *SessionManager) cleanupAfterFailedLogin(ctx context.Context) {
	if err := s.Logout(context.WithoutCancel(ctx)); err != nil {
		slog.Error("Failed to clear session after unsuccessful login.", "error", err)
	}
}

// Logout clears the in-memory session immediately, then erases the persisted
// copy. It is idempotent.
func (s *SessionManager) Logout(ctx context.Context) error {
	s.mu.Lock()
	wasAuthenticated := s.token != ""
	s.token = ""
	s.user = nil
	s.quota = model.DefaultQuota(s.freeLimit)
	s.epoch++
	hooks := append([]func(){}, s.logoutHooks...)
	s.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}

	if err := s.store.Delete(ctx, repository.KeyAccessToken, repository.KeyUserProfile); err != nil {
		return fmt.Errorf("could not erase stored session: %w", err)
	}
	if wasAuthenticated {
		slog.Info("User logged out.")
	}
	return nil
}

// RefreshQuota replaces the quota with the service's authoritative counters.
// A 401 logs the session out and is reported as ErrAuthRequired.
func (s *SessionManager) RefreshQuota(ctx context.Context) error {
	header, epoch, ok := s.Authorization()
	if !ok {
		return app_errors.ErrAuthRequired
	}

	rctx, cancel := s.withTimeout(ctx)
	status, err := s.backend.FetchStatus(rctx, header)
	cancel()
	if err != nil {
		return routeUnauthorized(ctx, s, epoch, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		slog.Debug("Dropping quota refresh from an ended session.")
		return nil
	}
	s.quota = model.NewQuotaState(status.RemainingChats, status.ChatCount)
	return nil
}

// DecrementQuota records one successful send in the current session.
func (s *SessionManager) DecrementQuota(newRemaining int) {
	s.mu.RLock()
	epoch := s.epoch
	s.mu.RUnlock()
	s.DecrementQuotaAt(epoch, newRemaining)
}

// DecrementQuotaAt records one successful send if epoch is still current.
// Remaining never grows through a decrement. It reports whether the quota
// was updated.
func (s *SessionManager) DecrementQuotaAt(epoch uint64, newRemaining int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch || s.token == "" {
		return false
	}
	remaining := newRemaining
	if remaining > s.quota.Remaining {
		remaining = s.quota.Remaining
	}
	s.quota = model.NewQuotaState(remaining, s.quota.Used+1)
	return true
}

// HandleUnauthorized logs out in response to a 401 observed by a call that
// started in epoch. A 401 from an already ended session is ignored.
func (s *SessionManager) HandleUnauthorized(ctx context.Context, epoch uint64) {
	if !s.IsCurrent(epoch) {
		return
	}
	slog.Warn("Service rejected the credential; logging out.")
	if err := s.Logout(context.WithoutCancel(ctx)); err != nil {
		slog.Error("Failed to clear session after rejected credential.", "error", err)
	}
}

// AuthorizationHeaders returns the bearer header, or an empty header when
// logged out.
func (s *SessionManager) AuthorizationHeaders() http.Header {
	header, _, _ := s.Authorization()
	return header
}

// Authorization returns the bearer header and the epoch it belongs to.
func (s *SessionManager) Authorization() (http.Header, uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	header := http.Header{}
	if s.token == "" {
		return header, s.epoch, false
	}
	header.Set("Authorization", "Bearer "+s.token)
	return header, s.epoch, true
}

func (s *SessionManager) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

func (s *SessionManager) IsCurrent(epoch uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch == epoch
}

func (s *SessionManager) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

func (s *SessionManager) Quota() model.QuotaState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quota
}

// User returns a copy of the logged-in profile.
func (s *SessionManager) User() (model.UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return model.UserProfile{}, false
	}
	return *s.user, true
}

func (s *SessionManager) Snapshot() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := SessionSnapshot{Authenticated: s.token != "", Quota: s.quota}
	if s.user != nil {
		user := *s.user
		snap.User = &user
	}
	return snap
}

func (s *SessionManager) FreeLimit() int { return s.freeLimit }

func (s *SessionManager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
