package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// UserMessage converts a classified error into the single sentence shown to
// the user in place of an assistant answer. freeLimit is the free-tier ceiling
// quoted in the quota message.
func UserMessage(err error, freeLimit int) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthRequired), errors.Is(err, ErrUnauthorized):
		return "Please log in with Google to start chatting."
	case errors.Is(err, ErrQuotaExhausted):
		return fmt.Sprintf("You've used all %d free chats. Upgrade to premium to continue chatting!", freeLimit)
	case errors.Is(err, ErrUnreachable):
		return "The chat service is not reachable right now. Check the connection and try again."
	case errors.Is(err, ErrTimeout):
		return "Request timed out. The server might be processing or down."
	case errors.Is(err, ErrTransport):
		return "Network error. Please check if the server is running."
	case errors.Is(err, ErrValidation):
		return "Message cannot be sent: " + err.Error()
	case StatusCode(err) == http.StatusForbidden:
		return "Access denied. You may have reached your chat limit."
	default:
		return "Error: " + err.Error()
	}
}

// ProbeMessage converts a failed health probe into the connection monitor's
// last-error text.
func ProbeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "Connection timeout - server may be down"
	case errors.Is(err, ErrTransport):
		return "Network error - is the server running?"
	default:
		var ue *UnhealthyError
		if errors.As(err, &ue) {
			if ue.Message == "" {
				return "Service unhealthy"
			}
			return ue.Message
		}
		var se *ServiceError
		if errors.As(err, &se) {
			return se.Error()
		}
		return err.Error()
	}
}
