package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fakeyudi/parley/internal/session"
	"github.com/fakeyudi/parley/internal/transcript"
	"github.com/fakeyudi/parley/internal/tui"
)

var (
	plainOutput bool
	followFile  bool
)

var viewCmd = &cobra.Command{
	Use:   "view <file>",
	Short: "View a saved conversation transcript",
	Long: `View a transcript written by /save, ctrl+s or autosave.

With --follow the file is watched and the view refreshes whenever it is
rewritten, so a second terminal can track a running chat with autosave on.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		t, err := transcript.Load(path)
		if err != nil {
			return err
		}

		if !plainOutput {
			return tui.Run(t, path, followFile)
		}

		out := cmd.OutOrStdout()
		printTranscript(out, t)
		if !followFile {
			return nil
		}

		ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()
		seen := len(t.Messages)
		return transcript.Watch(ctx, path, func(t *transcript.Transcript, err error) {
			if err != nil {
				logger.Warn("reloading transcript", zap.String("path", path), zap.Error(err))
				return
			}
			if seen > len(t.Messages) {
				seen = 0
			}
			for _, m := range t.Messages[seen:] {
				printMessage(out, m, true)
			}
			seen = len(t.Messages)
		})
	},
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// printTranscript writes a plain-text rendering of t.
func printTranscript(out io.Writer, t *transcript.Transcript) {
	const layout = "2006-01-02 15:04:05 MST"

	fmt.Fprintln(out, "## Summary")
	fmt.Fprintf(out, "  Transcript: %s\n", t.Meta.ID)
	if t.Meta.SessionID != "" {
		fmt.Fprintf(out, "  Session:    %s\n", t.Meta.SessionID)
	} else {
		fmt.Fprintln(out, "  Session:    (not started)")
	}
	if t.Meta.Server != "" {
		fmt.Fprintf(out, "  Server:     %s\n", t.Meta.Server)
	}
	fmt.Fprintf(out, "  Saved:      %s\n", t.Meta.SavedAt.Local().Format(layout))
	if t.Meta.PendingApproval {
		fmt.Fprintln(out, "  Status:     awaiting approval")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "## Conversation")
	if len(t.Messages) == 0 {
		fmt.Fprintln(out, "  (none)")
	}
	for _, m := range t.Messages {
		printMessage(out, m, true)
	}

	errs := 0
	for _, m := range t.Messages {
		if m.Role == session.RoleSystemError {
			errs++
		}
	}
	if errs > 0 {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "%d exchange(s) failed\n", errs)
	}
}

func init() {
	viewCmd.Flags().BoolVar(&plainOutput, "plain", false, "plain text output instead of TUI")
	viewCmd.Flags().BoolVarP(&followFile, "follow", "f", false, "refresh when the file changes")
	rootCmd.AddCommand(viewCmd)
}
