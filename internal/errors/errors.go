package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// This package defines the error taxonomy shared by every client component.
// Components return these sentinels (usually wrapped with context via %w) and
// callers classify with errors.Is. Nothing in the client inspects error text
// to decide what happened.

var (
	// ErrAuthRequired signifies that no valid credential is available.
	// Gate failures and forced logouts surface as this error.
	ErrAuthRequired = errors.New("authentication required")

	// ErrQuotaExhausted signifies that the free chat quota is used up, either
	// according to local quota state or because the service said so (403 with
	// an upgrade flag).
	ErrQuotaExhausted = errors.New("chat quota exhausted")

	// ErrUnreachable signifies that the connection monitor does not currently
	// consider the service connected. It is decided locally, never by a request.
	ErrUnreachable = errors.New("service unreachable")

	// ErrTimeout signifies that the time bound of a remote operation elapsed.
	ErrTimeout = errors.New("request timed out")

	// ErrTransport signifies a network-class failure before any response existed.
	ErrTransport = errors.New("transport failure")

	// ErrService signifies that a collaborator responded with a non-2xx status
	// or an unexpected payload.
	ErrService = errors.New("service error")

	// ErrUnauthorized signifies a 401 from a collaborator in the middle of an
	// operation. Whoever observes it must route it to the session manager,
	// which logs out; it is then reported to the user as ErrAuthRequired.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidation signifies that input failed local validation rules.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound signifies that a requested conversation could not be located.
	ErrNotFound = errors.New("resource not found")
)

// ServiceError carries the HTTP status of a rejected collaborator call.
// It matches ErrService under errors.Is.
type ServiceError struct {
	StatusCode int
	Status     string
	Detail     string
}

func (e *ServiceError) Error() string {
	status := e.Status
	if status == "" {
		status = http.StatusText(e.StatusCode)
	}
	if e.Detail != "" {
		return fmt.Sprintf("HTTP %d: %s: %s", e.StatusCode, status, e.Detail)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, status)
}

func (e *ServiceError) Unwrap() error { return ErrService }

// UnhealthyError reports a health endpoint that answered but did not claim to
// be healthy. It matches ErrService under errors.Is.
type UnhealthyError struct {
	Status  string
	Message string
}

func (e *UnhealthyError) Error() string {
	if e.Message == "" {
		return "service unhealthy"
	}
	return "service unhealthy: " + e.Message
}

func (e *UnhealthyError) Unwrap() error { return ErrService }

// StatusCode extracts the HTTP status from a wrapped ServiceError, or 0.
func StatusCode(err error) int {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
