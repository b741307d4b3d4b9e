package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/parley/internal/session"
)

var (
	sendSession string
	sendApprove bool
	sendReject  bool
	sendJSON    bool
)

// errExchangeFailed is returned when the exchange ended in an error message.
var errExchangeFailed = errors.New("exchange failed")

var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send one message and print the agent's reply",
	Long: `Send one message and print the agent's reply.

If the agent asks for approval, --approve or --reject decides it right away.
Without either flag you are asked when stdin is a terminal; otherwise the
proposal is left pending and the session id is printed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if sendApprove && sendReject {
			return fmt.Errorf("--approve and --reject cannot be used together")
		}

		client, err := newClient()
		if err != nil {
			return err
		}
		ctrl := newController(client, sendSession)
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if err := ctrl.Send(ctx, strings.Join(args, " ")); err != nil {
			return err
		}

		snap := ctrl.Snapshot()
		printed := 0
		if !sendJSON {
			printNew(out, snap.Session, afterLastHuman(snap.Session.History))
			printed = len(snap.Session.History)
		}

		if snap.Session.PendingApproval {
			decide, approved := sendApprove || sendReject, sendApprove
			if !decide && !sendJSON && term.IsTerminal(os.Stdin.Fd()) {
				fmt.Fprint(out, "Approve? [y/N] ")
				line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
				decide, approved = true, strings.EqualFold(strings.TrimSpace(line), "y")
			}
			if decide {
				if err := ctrl.Decide(ctx, approved); err != nil {
					return err
				}
				snap = ctrl.Snapshot()
				if !sendJSON {
					printNew(out, snap.Session, printed)
				}
			}
		}

		if sendJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(snap.Session); err != nil {
				return err
			}
		}
		if snap.Session.PendingApproval {
			fmt.Fprintf(cmd.ErrOrStderr(), "approval pending on session %s\n", snap.Session.ID)
		} else if snap.Session.ID != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "session %s\n", snap.Session.ID)
		}
		return exchangeResult(snap.Session)
	},
}

// exchangeResult turns a trailing error message into a non-zero exit.
func exchangeResult(s session.State) error {
	if last, ok := s.LastMessage(); ok && last.Role == session.RoleSystemError {
		return fmt.Errorf("%w: %s", errExchangeFailed, last.Content)
	}
	return nil
}

func init() {
	sendCmd.Flags().StringVar(&sendSession, "session", "", "continue an existing server session")
	sendCmd.Flags().BoolVar(&sendApprove, "approve", false, "approve a proposal without asking")
	sendCmd.Flags().BoolVar(&sendReject, "reject", false, "reject a proposal without asking")
	sendCmd.Flags().BoolVar(&sendJSON, "json", false, "print the resulting session as JSON")
	rootCmd.AddCommand(sendCmd)
}
