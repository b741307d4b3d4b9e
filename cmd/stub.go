package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/parley/internal/agentstub"
)

var (
	stubAddr        string
	stubMaxSessions int
	stubTTL         time.Duration
	stubRate        int
	stubTriggers    []string
)

var stubCmd = &cobra.Command{
	Use:   "stub",
	Short: "Run a scripted agent service for local testing",
	Long: `Run a stand-in agent service speaking the /chat and /approve protocol.

Every reply is canned. A message containing a trigger word yields a proposal
that waits for an approval decision.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipProfile: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := agentstub.New(agentstub.Config{
			Logger:      logger,
			MaxSessions: stubMaxSessions,
			SessionTTL:  stubTTL,
			RatePerMin:  stubRate,
			Triggers:    stubTriggers,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()
		cmd.PrintErrf("agent stub listening on http://%s\n", stubAddr)
		return srv.Run(ctx, stubAddr)
	},
}

func init() {
	stubCmd.Flags().StringVar(&stubAddr, "addr", "127.0.0.1:8000", "listen address")
	stubCmd.Flags().IntVar(&stubMaxSessions, "max-sessions", agentstub.DefaultMaxSessions, "sessions kept in memory")
	stubCmd.Flags().DurationVar(&stubTTL, "ttl", agentstub.DefaultSessionTTL, "idle session lifetime")
	stubCmd.Flags().IntVar(&stubRate, "rate", agentstub.DefaultRatePerMin, "requests per minute per session")
	stubCmd.Flags().StringSliceVar(&stubTriggers, "trigger", nil, "words that start a proposal (default book,reserva)")
	rootCmd.AddCommand(stubCmd)
}
