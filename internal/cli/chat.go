package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	app_errors "ragchat/client/internal/errors"
	"ragchat/client/internal/model"
	"ragchat/client/internal/service"
)

const chatHelp = `Commands:
  /new            start a new conversation
  /list           list your conversations
  /open <n|id>    open a conversation by number or id
  /delete <n|id>  delete a conversation
  /history        show the current transcript
  /status         show quota and connection
  /quit           leave`

func newChatCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long:  "Start an interactive chat session.\n\n" + chatHelp,
		Args:  cobra.NoArgs,
		RunE: rt.run(func(cmd *cobra.Command, args []string) error {
			return newREPL(cmd.Context(), rt, cmd.InOrStdin(), cmd.OutOrStdout()).loop()
		}),
	}
}

type repl struct {
	rt  *runtime
	ctx context.Context
	in  *bufio.Scanner
	out io.Writer
}

func newREPL(ctx context.Context, rt *runtime, in io.Reader, out io.Writer) *repl {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &repl{rt: rt, ctx: ctx, in: scanner, out: out}
}

func (r *repl) loop() error {
	r.banner()
	for {
		fmt.Fprint(r.out, infoStyle.Render("> "))
		if !r.in.Scan() {
			fmt.Fprintln(r.out)
			return r.in.Err()
		}
		line := strings.TrimSpace(r.in.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "/"):
			if quit := r.command(line); quit {
				return nil
			}
		default:
			r.send(line)
		}
		if r.ctx.Err() != nil {
			return nil
		}
	}
}

func (r *repl) banner() {
	a := r.rt.app
	fmt.Fprintln(r.out, sectionStyle.Render("RAG Chat"))
	if snap := a.Session.Snapshot(); snap.Authenticated && snap.User != nil {
		fmt.Fprintln(r.out, successStyle.Render(fmt.Sprintf("Logged in as %s <%s>", snap.User.Name, snap.User.Email)))
		renderQuota(r.out, a.Session.Quota())
	} else {
		fmt.Fprintln(r.out, warningStyle.Render("⚠️  Not logged in. Run `ragchat login` first."))
	}
	renderConnection(r.out, a.Monitor.State())
	fmt.Fprintln(r.out, mutedStyle.Render("Type /help for commands."))
	fmt.Fprintln(r.out)
	renderTranscript(r.out, a.Projection.Transcript())
}

func (r *repl) send(content string) {
	res := r.rt.app.Dispatcher.Send(r.ctx, &service.SendRequest{Content: content})
	renderMessage(r.out, res.Reply)
	if res.Err == nil && !res.Quota.CanSend {
		renderQuota(r.out, res.Quota)
	}
}

// command runs a slash command and reports whether the session should end.
func (r *repl) command(line string) bool {
	a := r.rt.app
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(r.out, chatHelp)
	case "/new":
		conv := a.Conversations.StartNew()
		fmt.Fprintln(r.out, mutedStyle.Render("Started "+conv.ID))
		renderTranscript(r.out, a.Projection.Transcript())
	case "/list":
		if _, err := a.Conversations.ListConversations(r.ctx); err != nil {
			r.report(err)
			return false
		}
		renderSummaries(r.out, a.Conversations.Summaries(), a.Conversations.ActiveID())
	case "/open":
		summary, ok := r.resolve(arg)
		if !ok {
			return false
		}
		if _, err := a.Conversations.Select(r.ctx, summary); err != nil {
			r.report(err)
			return false
		}
		fmt.Fprintln(r.out, infoStyle.Render(summary.Title))
		renderTranscript(r.out, a.Projection.Transcript())
	case "/delete":
		summary, ok := r.resolve(arg)
		if !ok {
			return false
		}
		if err := a.Conversations.Remove(r.ctx, summary.ID); err != nil {
			r.report(err)
			return false
		}
		fmt.Fprintln(r.out, successStyle.Render("Deleted "+summary.Title))
	case "/history":
		renderTranscript(r.out, a.Projection.Transcript())
	case "/status":
		renderQuota(r.out, a.Session.Quota())
		renderConnection(r.out, a.Monitor.State())
	default:
		fmt.Fprintln(r.out, warningStyle.Render("Unknown command "+name+". Type /help for commands."))
	}
	return false
}

// resolve finds a conversation by its 1-based position in the last listing
// or by id.
func (r *repl) resolve(arg string) (model.ConversationSummary, bool) {
	if arg == "" {
		fmt.Fprintln(r.out, warningStyle.Render("Which conversation? Give a number from /list or an id."))
		return model.ConversationSummary{}, false
	}
	summaries := r.rt.app.Conversations.Summaries()
	if n, err := strconv.Atoi(arg); err == nil {
		if n >= 1 && n <= len(summaries) {
			return summaries[n-1], true
		}
	}
	if summary, ok := r.rt.app.Conversations.Summary(arg); ok {
		return summary, true
	}
	r.report(fmt.Errorf("%w: no conversation %q", app_errors.ErrNotFound, arg))
	return model.ConversationSummary{}, false
}

func (r *repl) report(err error) {
	fmt.Fprintln(r.out, errorStyle.Render(app_errors.UserMessage(err, r.rt.app.Session.FreeLimit())))
}
