package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ragchat/client/internal/model"
)

func newLoginCommand(rt *runtime) *cobra.Command {
	var credential string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with a Google ID token",
		Long: `Exchange a Google ID token for a chat session.

The session is stored locally and reused by later commands until you log out
or the service rejects it.`,
		Args: cobra.NoArgs,
		RunE: rt.run(func(cmd *cobra.Command, args []string) error {
			user, err := rt.app.Session.CompleteLogin(cmd.Context(), credential)
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), errorStyle.Render("❌ Login failed:"), err)
				return errReported
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Logged in as %s <%s>", user.Name, user.Email)))
			renderQuota(out, rt.app.Session.Quota())
			return nil
		}),
	}
	cmd.Flags().StringVar(&credential, "credential", "", "Google ID token")
	_ = cmd.MarkFlagRequired("credential")
	return cmd
}

func newLogoutCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: rt.run(func(cmd *cobra.Command, args []string) error {
			if err := rt.app.Session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("✅ Logged out"))
			return nil
		}),
	}
}

func newStatusCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show login, quota, and connection status",
		Args:  cobra.NoArgs,
		RunE: rt.run(func(cmd *cobra.Command, args []string) error {
			view := statusView{
				SessionSnapshot: rt.app.Session.Snapshot(),
				Connection:      rt.app.Monitor.State(),
			}
			out := cmd.OutOrStdout()
			if handled, err := encode(out, rt.opts.output, view); handled {
				return err
			}

			fmt.Fprintln(out, sectionStyle.Render("Session"))
			if view.Authenticated && view.User != nil {
				fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Logged in as %s <%s>", view.User.Name, view.User.Email)))
			} else {
				fmt.Fprintln(out, warningStyle.Render("⚠️  Not logged in"))
			}
			renderQuota(out, view.Quota)
			fmt.Fprintln(out)
			fmt.Fprintln(out, sectionStyle.Render("Connection"))
			renderConnection(out, view.Connection)
			return nil
		}),
	}
}

func newHealthCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the chat service",
		Args:  cobra.NoArgs,
		RunE: rt.run(func(cmd *cobra.Command, args []string) error {
			state := rt.app.Monitor.Probe(cmd.Context())
			out := cmd.OutOrStdout()
			if handled, err := encode(out, rt.opts.output, state); handled {
				if err != nil {
					return err
				}
			} else {
				renderConnection(out, state)
			}
			if state.Status != model.StatusConnected {
				return errReported
			}
			return nil
		}),
	}
}
