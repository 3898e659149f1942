package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"ragchat/client/internal/model"
	"ragchat/client/internal/service"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

func validOutput(format string) error {
	switch format {
	case outputText, outputJSON, outputYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

// encode writes v as JSON or YAML. It reports false for text output so the
// caller can render its own view.
func encode(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		defer func() { _ = enc.Close() }()
		return true, enc.Encode(v)
	default:
		return false, nil
	}
}

func renderMessage(w io.Writer, msg model.Message) {
	switch {
	case msg.IsError:
		fmt.Fprintln(w, errorStyle.Render("⚠ "+msg.Content))
	case msg.Role == model.RoleUser:
		fmt.Fprintf(w, "%s %s\n", userStyle.Render("You:"), msg.Content)
	default:
		fmt.Fprintf(w, "%s %s\n", assistantStyle.Render("Assistant:"), msg.Content)
		for i, src := range msg.Sources {
			line := fmt.Sprintf("  [%d] %s", i+1, src.Document)
			if src.Score != nil {
				line += fmt.Sprintf(" (%.2f)", *src.Score)
			}
			fmt.Fprintln(w, mutedStyle.Render(line))
		}
	}
}

func renderTranscript(w io.Writer, messages []model.Message) {
	for _, msg := range messages {
		renderMessage(w, msg)
	}
}

func renderQuota(w io.Writer, quota model.QuotaState) {
	line := fmt.Sprintf("Free chats remaining: %d (used %d)", quota.Remaining, quota.Used)
	if quota.CanSend {
		fmt.Fprintln(w, mutedStyle.Render(line))
	} else {
		fmt.Fprintln(w, warningStyle.Render(line))
	}
}

func renderConnection(w io.Writer, state model.ConnectionState) {
	label := fmt.Sprintf("%s (%s)", state.Status, state.Endpoint)
	switch state.Status {
	case model.StatusConnected:
		fmt.Fprintln(w, successStyle.Render("✅ "+label))
	case model.StatusError:
		fmt.Fprintln(w, errorStyle.Render("❌ "+label))
		if state.LastError != "" {
			fmt.Fprintf(w, "   %s\n", state.LastError)
		}
	default:
		fmt.Fprintln(w, warningStyle.Render("⚠️  "+label))
	}
}

func renderSummaries(w io.Writer, summaries []model.ConversationSummary, activeID string) {
	if len(summaries) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No conversations yet."))
		return
	}
	for i, s := range summaries {
		marker := " "
		if s.ID == activeID {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %2d. %s %s\n", marker, i+1, infoStyle.Render(s.Title), mutedStyle.Render(fmt.Sprintf("[%s, %d messages]", s.ID, s.MessageCount)))
		if preview := strings.TrimSpace(s.LastMessage); preview != "" {
			fmt.Fprintf(w, "      %s\n", mutedStyle.Render(preview))
		}
	}
}

// statusView is the machine-readable form of the status command.
type statusView struct {
	service.SessionSnapshot `yaml:",inline"`
	Connection              model.ConnectionState `json:"connection" yaml:"connection"`
}
