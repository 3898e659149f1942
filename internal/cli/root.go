package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"ragchat/client/internal/app"
	"ragchat/client/internal/config"
	app_errors "ragchat/client/internal/errors"
	"ragchat/client/internal/remote"
)

var (
	version = "dev"
	commit  = "unknown"
)

// errReported marks a failure whose message has already been printed.
var errReported = errors.New("failure already reported")

type options struct {
	endpoint string
	logLevel string
	output   string
}

// runtime carries flag values and the wired client into every command.
type runtime struct {
	opts options
	app  *app.App
}

// NewRootCommand builds the command tree. Each call returns an independent
// tree, so tests can run commands side by side.
func NewRootCommand() *cobra.Command {
	rt := &runtime{}

	root := &cobra.Command{
		Use:   "ragchat",
		Short: "Chat with a RAG knowledge base from the terminal",
		Long: `ragchat is a terminal client for a retrieval-augmented chat service.

It keeps you logged in between runs, tracks your free chat quota, and keeps
your conversations in sync with the service.

Quick Start:
  ragchat login --credential <google-id-token>   # Log in
  ragchat send "What does the handbook say?"     # Ask one question
  ragchat chat                                   # Interactive session
  ragchat conversations list                     # Browse history`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.PersistentFlags().StringVar(&rt.opts.endpoint, "endpoint", "", "Chat service URL (overrides API_BASE_URL)")
	root.PersistentFlags().StringVar(&rt.opts.logLevel, "log-level", "", "Log level: DEBUG, INFO, WARN or ERROR (overrides LOG_LEVEL)")
	root.PersistentFlags().StringVarP(&rt.opts.output, "output", "o", outputText, "Output format: text, json or yaml")

	root.AddCommand(
		newLoginCommand(rt),
		newLogoutCommand(rt),
		newStatusCommand(rt),
		newHealthCommand(rt),
		newSendCommand(rt),
		newChatCommand(rt),
		newConversationsCommand(rt),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// run wraps a command body with client start-up and shutdown.
func (rt *runtime) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := validOutput(rt.opts.output); err != nil {
			return err
		}
		if err := rt.start(cmd); err != nil {
			return err
		}
		defer rt.stop()
		return fn(cmd, args)
	}
}

func (rt *runtime) start(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if rt.opts.endpoint != "" {
		cfg.APIBaseURL = remote.NormalizeBaseURL(rt.opts.endpoint)
	}
	if rt.opts.logLevel != "" {
		cfg.LogLevel = rt.opts.logLevel
	}

	app.SetupLogger(cfg.LogLevel, cmd.ErrOrStderr())
	app.LogConfigSource()

	a, err := app.NewApp(cfg)
	if err != nil {
		return err
	}
	if err := a.Start(cmd.Context()); err != nil {
		_ = a.Close()
		return err
	}
	rt.app = a
	return nil
}

func (rt *runtime) stop() {
	if rt.app == nil {
		return
	}
	if err := rt.app.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	rt.app = nil
}

// fail prints the user-facing sentence for err and returns errReported.
func (rt *runtime) fail(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.OutOrStdout(), errorStyle.Render(app_errors.UserMessage(err, rt.app.Session.FreeLimit())))
	return errReported
}
