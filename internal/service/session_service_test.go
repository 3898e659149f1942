package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	app_errors "ragchat/client/internal/errors"
	"ragchat/client/internal/model"
	"ragchat/client/internal/remote"
	"ragchat/client/internal/repository"
)

func TestSessionManager_RestoreSession(t *testing.T) {
	ctx := context.Background()

	t.Run("Nothing stored stays logged out", func(t *testing.T) {
		f := setupFixture(t)

		require.NoError(t, f.session.RestoreSession(ctx))
		assert.False(t, f.session.IsAuthenticated())
		assert.Equal(t, model.DefaultQuota(freeLimit), f.session.Quota())
		assert.Empty(t, f.session.AuthorizationHeaders())
	})

	t.Run("Stored session is restored and quota refreshed", func(t *testing.T) {
		f := setupFixture(t)
		require.NoError(t, f.mocks.store.Put(ctx, map[string]string{
			repository.KeyAccessToken: testToken,
			repository.KeyUserProfile: `{"google_id":"g-1","name":"Ada Lovelace","email":"ada@example.test"}`,
		}))
		f.mocks.backend.On("FetchStatus", mock.Anything, bearerHeader()).
			Return(&remote.StatusResponse{RemainingChats: 1, ChatCount: 2, CanChat: true}, nil).Once()

		require.NoError(t, f.session.RestoreSession(ctx))

		assert.True(t, f.session.IsAuthenticated())
		user, ok := f.session.User()
		require.True(t, ok)
		assert.Equal(t, testUser, user)
		assert.Equal(t, model.QuotaState{Remaining: 1, Used: 2, CanSend: true}, f.session.Quota())
		assert.Equal(t, "Bearer "+testToken, f.session.AuthorizationHeaders().Get("Authorization"))
	})

	t.Run("Quota refresh failure keeps the session", func(t *testing.T) {
		f := setupFixture(t)
		require.NoError(t, f.mocks.store.Put(ctx, map[string]string{
			repository.KeyAccessToken: testToken,
			repository.KeyUserProfile: `{"name":"Ada Lovelace","email":"ada@example.test"}`,
		}))
		f.mocks.backend.On("FetchStatus", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: connection refused", app_errors.ErrTransport)).Once()

		require.NoError(t, f.session.RestoreSession(ctx))
		assert.True(t, f.session.IsAuthenticated())
		assert.Equal(t, model.DefaultQuota(freeLimit), f.session.Quota())
	})

	t.Run("Rejected credential logs out", func(t *testing.T) {
		f := setupFixture(t)
		require.NoError(t, f.mocks.store.Put(ctx, map[string]string{
			repository.KeyAccessToken: testToken,
			repository.KeyUserProfile: `{"name":"Ada Lovelace","email":"ada@example.test"}`,
		}))
		f.mocks.backend.On("FetchStatus", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: Invalid or expired token", app_errors.ErrUnauthorized)).Once()

		require.NoError(t, f.session.RestoreSession(ctx))
		assert.False(t, f.session.IsAuthenticated())
		_, err := f.mocks.store.Get(ctx, repository.KeyAccessToken)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("Corrupt profile is discarded", func(t *testing.T) {
		f := setupFixture(t)
		require.NoError(t, f.mocks.store.Put(ctx, map[string]string{
			repository.KeyAccessToken: testToken,
			repository.KeyUserProfile: `{not json`,
		}))

		require.NoError(t, f.session.RestoreSession(ctx))
		assert.False(t, f.session.IsAuthenticated())
		_, err := f.mocks.store.Get(ctx, repository.KeyUserProfile)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestSessionManager_CompleteLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("Success persists the session", func(t *testing.T) {
		f := setupFixture(t)
		epoch := f.session.Epoch()

		f.login(t, 2)

		assert.True(t, f.session.IsAuthenticated())
		assert.Greater(t, f.session.Epoch(), epoch)
		assert.Equal(t, model.QuotaState{Remaining: 2, Used: 1, CanSend: true}, f.session.Quota())

		token, err := f.mocks.store.Get(ctx, repository.KeyAccessToken)
		require.NoError(t, err)
		assert.Equal(t, testToken, token)
		profile, err := f.mocks.store.Get(ctx, repository.KeyUserProfile)
		require.NoError(t, err)
		assert.Contains(t, profile, "ada@example.test")
	})

	t.Run("Failure leaves no partial state", func(t *testing.T) {
		f := setupFixture(t)
		loginErr := fmt.Errorf("login failed: %w", errors.New("invalid Google token"))
		f.mocks.backend.On("Login", mock.Anything, "bad").Return(nil, loginErr).Once()

		_, err := f.session.CompleteLogin(ctx, "bad")

		require.Error(t, err)
		assert.ErrorIs(t, err, loginErr)
		assert.False(t, f.session.IsAuthenticated())
		_, getErr := f.mocks.store.Get(ctx, repository.KeyAccessToken)
		assert.ErrorIs(t, getErr, repository.ErrNotFound)
	})

	t.Run("Blank credential is rejected locally", func(t *testing.T) {
		f := setupFixture(t)

		_, err := f.session.CompleteLogin(ctx, "  ")
		assert.ErrorIs(t, err, app_errors.ErrValidation)
	})
}

func TestSessionManager_Logout(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)
	f.login(t, 1)

	hookCalls := 0
	f.session.OnLogout(func() { hookCalls++ })
	epoch := f.session.Epoch()

	require.NoError(t, f.session.Logout(ctx))
	assert.False(t, f.session.IsAuthenticated())
	assert.Equal(t, model.DefaultQuota(freeLimit), f.session.Quota())
	assert.False(t, f.session.IsCurrent(epoch))
	_, err := f.mocks.store.Get(ctx, repository.KeyAccessToken)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, f.session.Logout(ctx), "logout is idempotent")
	assert.Equal(t, 2, hookCalls)
	assert.False(t, f.session.Snapshot().Authenticated)
	assert.Nil(t, f.session.Snapshot().User)
}

func TestSessionManager_RefreshQuota(t *testing.T) {
	ctx := context.Background()

	t.Run("Logged out", func(t *testing.T) {
		f := setupFixture(t)
		assert.ErrorIs(t, f.session.RefreshQuota(ctx), app_errors.ErrAuthRequired)
	})

	t.Run("Replaces quota", func(t *testing.T) {
		f := setupFixture(t)
		f.login(t, 3)
		f.mocks.backend.On("FetchStatus", mock.Anything, bearerHeader()).
			Return(&remote.StatusResponse{RemainingChats: 0, ChatCount: 3}, nil).Once()

		require.NoError(t, f.session.RefreshQuota(ctx))
		assert.Equal(t, model.QuotaState{Remaining: 0, Used: 3, CanSend: false}, f.session.Quota())
	})

	t.Run("Unauthorized logs out", func(t *testing.T) {
		f := setupFixture(t)
		f.login(t, 3)
		f.mocks.backend.On("FetchStatus", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: expired", app_errors.ErrUnauthorized)).Once()

		err := f.session.RefreshQuota(ctx)
		assert.ErrorIs(t, err, app_errors.ErrAuthRequired)
		assert.False(t, f.session.IsAuthenticated())
	})

	t.Run("Result arriving after logout is dropped", func(t *testing.T) {
		f := setupFixture(t)
		f.login(t, 3)
		f.mocks.backend.On("FetchStatus", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				require.NoError(t, f.session.Logout(ctx))
			}).
			Return(&remote.StatusResponse{RemainingChats: 1, ChatCount: 2}, nil).Once()

		require.NoError(t, f.session.RefreshQuota(ctx))
		assert.False(t, f.session.IsAuthenticated())
		assert.Equal(t, model.DefaultQuota(freeLimit), f.session.Quota())
	})
}

func TestSessionManager_DecrementQuota(t *testing.T) {
	f := setupFixture(t)
	f.login(t, 3)

	f.session.DecrementQuota(2)
	assert.Equal(t, model.QuotaState{Remaining: 2, Used: 1, CanSend: true}, f.session.Quota())

	f.session.DecrementQuota(5)
	assert.Equal(t, 2, f.session.Quota().Remaining, "remaining never grows through a decrement")
	assert.Equal(t, 2, f.session.Quota().Used)

	f.session.DecrementQuota(-4)
	assert.Equal(t, model.QuotaState{Remaining: 0, Used: 3, CanSend: false}, f.session.Quota())

	stale := f.session.Epoch()
	f.login(t, 3)
	assert.False(t, f.session.DecrementQuotaAt(stale, 0), "decrement from an ended session is ignored")
	assert.Equal(t, 3, f.session.Quota().Remaining)
}

func TestSessionManager_HandleUnauthorizedIgnoresEndedSession(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)
	f.login(t, 3)
	stale := f.session.Epoch()
	f.login(t, 3)

	f.session.HandleUnauthorized(ctx, stale)
	assert.True(t, f.session.IsAuthenticated())

	f.session.HandleUnauthorized(ctx, f.session.Epoch())
	assert.False(t, f.session.IsAuthenticated())
}
