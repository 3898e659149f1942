package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	app_errors "ragchat/client/internal/errors"
)

// Authorizer is what remote-calling components need from the session: the
// bearer header tagged with its epoch, and a way to report a 401.
type Authorizer interface {
	Authorization() (http.Header, uint64, bool)
	IsCurrent(epoch uint64) bool
	HandleUnauthorized(ctx context.Context, epoch uint64)
}

// routeUnauthorized hands a 401 to the session and reports it as
// ErrAuthRequired. Other errors pass through unchanged.
func routeUnauthorized(ctx context.Context, session Authorizer, epoch uint64, err error) error {
	if !errors.Is(err, app_errors.ErrUnauthorized) {
		return err
	}
	session.HandleUnauthorized(ctx, epoch)
	return fmt.Errorf("%w: %w", app_errors.ErrAuthRequired, err)
}
