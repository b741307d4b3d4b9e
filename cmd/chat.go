package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/x/term"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/parley/internal/controller"
	"github.com/fakeyudi/parley/internal/session"
	"github.com/fakeyudi/parley/internal/transcript"
	"github.com/fakeyudi/parley/internal/tui"
)

var (
	chatPlain   bool
	chatSession string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open an interactive conversation with the agent",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	saver := newSaver()
	ctrl := newController(client, chatSession, controller.WithObserver(saver))

	if chatPlain || !term.IsTerminal(os.Stdin.Fd()) {
		return runREPL(cmd.Context(), ctrl, saver, cmd.InOrStdin(), cmd.OutOrStdout())
	}
	return tui.RunChat(ctrl, tui.ChatOptions{
		Server: cfg.Server.BaseURL,
		Labels: tui.Labels{Human: activeProfile.Label(), Agent: activeProfile.AgentLabel()},
		Saver:  saver,
	})
}

var (
	humanColor  = color.New(color.FgBlue, color.Bold)
	agentColor  = color.New(color.FgMagenta, color.Bold)
	errorColor  = color.New(color.FgRed)
	noticeColor = color.New(color.FgYellow, color.Bold)
	dimColor    = color.New(color.Faint)
)

const replHelp = `Commands:
  /approve, /reject   decide a pending proposal (y and n also work)
  /new                start a new conversation
  /save               write a transcript
  /quit               exit`

// runREPL is the line-mode chat. Each line is one message; lines starting
// with a slash are commands.
func runREPL(ctx context.Context, ctrl *controller.Controller, saver *transcript.Autosaver, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	fmt.Fprintf(out, "parley · %s · type /help for commands\n", cfg.Server.BaseURL)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for {
		snap := ctrl.Snapshot()
		if snap.Session.PendingApproval {
			noticeColor.Fprint(out, "approve? [y/n] ")
		} else {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		raw := scanner.Text()
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		before := len(snap.Session.History)
		sent := false
		var opErr error
		switch {
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/help":
			fmt.Fprintln(out, replHelp)
			continue
		case line == "/new":
			if opErr = ctrl.Reset(ctx); opErr == nil {
				dimColor.Fprintln(out, "new conversation")
				continue
			}
		case line == "/save":
			path, err := saver.Save(ctrl.Snapshot().Session)
			if err != nil {
				errorColor.Fprintf(out, "save failed: %v\n", err)
			} else {
				dimColor.Fprintf(out, "saved %s\n", path)
			}
			continue
		case snap.Session.PendingApproval && isDecision(line):
			opErr = ctrl.Decide(ctx, line == "/approve" || strings.EqualFold(line, "y"))
		case line == "/approve" || line == "/reject":
			opErr = ctrl.Decide(ctx, line == "/approve")
		case strings.HasPrefix(line, "/"):
			errorColor.Fprintf(out, "unknown command %s\n", line)
			continue
		default:
			opErr, sent = ctrl.Send(ctx, raw), true
		}

		if opErr != nil {
			printRejection(out, opErr)
			continue
		}
		after := ctrl.Snapshot().Session
		if sent {
			// A chat reply replaces the history, so the local length is no guide.
			before = afterLastHuman(after.History)
		}
		printNew(out, after, before)
	}
}

func isDecision(line string) bool {
	switch strings.ToLower(line) {
	case "y", "n", "/approve", "/reject":
		return true
	}
	return false
}

func printRejection(out io.Writer, err error) {
	switch {
	case errors.Is(err, controller.ErrApprovalPending):
		noticeColor.Fprintln(out, "a proposal is waiting: answer y or n first")
	case errors.Is(err, controller.ErrNoApprovalPending):
		dimColor.Fprintln(out, "nothing to approve")
	default:
		errorColor.Fprintln(out, err.Error())
	}
}

// printNew writes the messages that appeared since the history had n entries,
// skipping the operator's own lines.
func printNew(out io.Writer, s session.State, n int) {
	if n > len(s.History) {
		n = 0
	}
	for _, m := range s.History[n:] {
		printMessage(out, m, false)
	}
	if s.PendingApproval {
		noticeColor.Fprintln(out, "The agent needs your approval to continue.")
	}
}

// afterLastHuman returns the index just past the operator's latest message.
func afterLastHuman(msgs []session.Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == session.RoleHuman {
			return i + 1
		}
	}
	return 0
}

func printMessage(out io.Writer, m session.Message, withHuman bool) {
	switch m.Role {
	case session.RoleHuman:
		if withHuman {
			humanColor.Fprintf(out, "%s: ", activeProfile.Label())
			fmt.Fprintln(out, m.Content)
		}
	case session.RoleSystemError:
		errorColor.Fprintf(out, "⚠ %s\n", m.Content)
	default:
		agentColor.Fprintf(out, "%s: ", activeProfile.AgentLabel())
		fmt.Fprintln(out, m.Content)
	}
}

func init() {
	chatCmd.Flags().BoolVar(&chatPlain, "plain", false, "line-mode chat instead of the full-screen UI")
	chatCmd.Flags().StringVar(&chatSession, "session", "", "continue an existing server session")
	rootCmd.AddCommand(chatCmd)
}
