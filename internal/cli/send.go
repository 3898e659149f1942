package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ragchat/client/internal/model"
	"ragchat/client/internal/service"
)

func newSendCommand(rt *runtime) *cobra.Command {
	var conversationID string

	cmd := &cobra.Command{
		Use:   "send [flags] <message...>",
		Short: "Send one message and print the answer",
		Long: `Send one message and print the answer.

Without --conversation the message starts a new conversation. With it, the
conversation's history is loaded first and the message is added to it.`,
		Example: `  ragchat send "What is our refund policy?"
  ragchat send --conversation conv_1714557600000_a1b2c3d4e "And for digital goods?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: rt.run(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if conversationID != "" {
				if err := rt.openConversation(ctx, conversationID); err != nil {
					return rt.fail(cmd, err)
				}
			}

			res := rt.app.Dispatcher.Send(ctx, &service.SendRequest{
				ConversationID: conversationID,
				Content:        strings.Join(args, " "),
			})

			out := cmd.OutOrStdout()
			if handled, err := encode(out, rt.opts.output, res); handled {
				if err != nil {
					return err
				}
			} else {
				renderMessage(out, res.Reply)
				if res.Err == nil {
					fmt.Fprintln(out, mutedStyle.Render("Conversation: "+res.ConversationID))
					renderQuota(out, res.Quota)
				}
			}
			if res.Err != nil {
				return errReported
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "Continue an existing conversation")
	return cmd
}

// openConversation makes id the active conversation, loading its history.
func (rt *runtime) openConversation(ctx context.Context, id string) error {
	summary, ok := rt.app.Conversations.Summary(id)
	if !ok {
		summary = model.ConversationSummary{ID: id}
	}
	_, err := rt.app.Conversations.Select(ctx, summary)
	return err
}
