package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ragchat/client/internal/model"
)

func newConversationsCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv", "history"},
		Short:   "Browse and manage your conversations",
	}
	cmd.AddCommand(
		newConversationsListCommand(rt),
		newConversationsShowCommand(rt),
		newConversationsDeleteCommand(rt),
	)
	return cmd
}

func newConversationsListCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your conversations",
		Args:  cobra.NoArgs,
		RunE: rt.run(func(cmd *cobra.Command, args []string) error {
			summaries, err := rt.app.Conversations.ListConversations(cmd.Context())
			if err != nil {
				return rt.fail(cmd, err)
			}
			out := cmd.OutOrStdout()
			if handled, err := encode(out, rt.opts.output, summaries); handled {
				return err
			}
			renderSummaries(out, summaries, "")
			return nil
		}),
	}
}

func newConversationsShowCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Print a conversation's transcript",
		Args:  cobra.ExactArgs(1),
		RunE: rt.run(func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if err := rt.openConversation(cmd.Context(), id); err != nil {
				return rt.fail(cmd, err)
			}
			summary, _ := rt.app.Conversations.Summary(id)
			messages, _ := rt.app.Conversations.Messages(id)
			transcript := model.Transcript{ConversationSummary: summary, Messages: messages}

			out := cmd.OutOrStdout()
			if handled, err := encode(out, rt.opts.output, transcript); handled {
				return err
			}
			title := summary.Title
			if title == "" {
				title = id
			}
			fmt.Fprintln(out, sectionStyle.Render(title))
			renderTranscript(out, rt.app.Projection.Transcript())
			return nil
		}),
	}
}

func newConversationsDeleteCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <conversation-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a conversation",
		Args:    cobra.ExactArgs(1),
		RunE: rt.run(func(cmd *cobra.Command, args []string) error {
			if err := rt.app.Conversations.Remove(cmd.Context(), args[0]); err != nil {
				return rt.fail(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("✅ Deleted "+args[0]))
			return nil
		}),
	}
}
