package repository

import "context"

// Keys of the persisted client session. Absence of either means logged out.
const (
	KeyAccessToken = "auth_token"
	KeyUserProfile = "user_info"
)

// Store is the durable key/value storage that survives client restarts.
// Only the session manager writes to it.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	// Put writes all entries atomically.
	Put(ctx context.Context, entries map[string]string) error
	// Delete removes the keys atomically. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}
