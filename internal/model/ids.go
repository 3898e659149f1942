package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GreetingID is the fixed identifier of the synthesized greeting, so repeated
// renders of an empty transcript are identical.
const GreetingID = "welcome_message"

// NewMessageID returns "<role>_<unix millis>_<random suffix>".
func NewMessageID(role Role, now time.Time) string {
	return fmt.Sprintf("%s_%d_%s", role, now.UnixMilli(), randomSuffix())
}

// NewConversationID returns "conv_<unix millis>_<random suffix>".
func NewConversationID(now time.Time) string {
	return fmt.Sprintf("conv_%d_%s", now.UnixMilli(), randomSuffix())
}

// randomSuffix takes nine hex characters from a random UUID.
func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}
