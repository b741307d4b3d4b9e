package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fakeyudi/parley/internal/config"
	"github.com/fakeyudi/parley/internal/controller"
	"github.com/fakeyudi/parley/internal/logging"
	"github.com/fakeyudi/parley/internal/profile"
	"github.com/fakeyudi/parley/internal/transcript"
	"github.com/fakeyudi/parley/internal/transport"
)

// version is stamped at build time with -ldflags "-X".
var version = "dev"

// cfg holds the effective configuration, populated in PersistentPreRunE.
var cfg config.Config

// activeProfile holds the loaded operator profile, nil when none exists.
var activeProfile *profile.Profile

// logger is the process logger; a no-op until PersistentPreRunE builds it.
var logger = zap.NewNop()

var (
	serverFlag   string
	logLevelFlag string
)

// skipProfile marks commands that never run the first-time wizard.
const skipProfile = "skip-profile"

var rootCmd = &cobra.Command{
	Use:     "parley",
	Short:   "Chat with an approval-gated agent service from the terminal",
	Version: version,
	// With no subcommand parley opens a chat.
	RunE:          runChat,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// First-run: profile missing → run setup wizard automatically.
		// Only do this when stdin is an interactive terminal.
		if !profile.Exists() && cmd.Annotations[skipProfile] == "" {
			if term.IsTerminal(os.Stdin.Fd()) {
				fmt.Println()
				fmt.Println("  Welcome to parley! Looks like this is your first time.")
				if err := runSetup(true); err != nil {
					return err
				}
			}
			// Non-interactive (tests, pipes): continue with defaults.
		}

		if profile.Exists() {
			p, err := profile.Load()
			if err != nil {
				return fmt.Errorf("loading profile: %w", err)
			}
			activeProfile = p
		}

		var err error
		cfg, err = resolveConfig()
		if err != nil {
			return err
		}

		logger, err = logging.New(logging.Config{
			Level:    cfg.Log.Level,
			File:     cfg.Log.File,
			Encoding: cfg.Log.Encoding,
		})
		if err != nil {
			return err
		}
		logger.Debug("starting",
			zap.String("command", cmd.CommandPath()),
			zap.String("version", version),
			zap.String("server", cfg.Server.BaseURL),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// resolveConfig merges files and environment, then applies the profile's
// server (when config left the default) and finally command-line flags.
func resolveConfig() (config.Config, error) {
	global, err := config.LoadGlobal()
	if err != nil {
		return config.Config{}, fmt.Errorf("loading global config: %w", err)
	}
	project, err := config.LoadProject()
	if err != nil {
		return config.Config{}, fmt.Errorf("loading project config: %w", err)
	}
	c := config.Merge(global, project)

	// Profile values fill in config gaps.
	if activeProfile != nil && activeProfile.Server != "" &&
		c.Server.BaseURL == config.Defaults().Server.BaseURL {
		c.Server.BaseURL = activeProfile.Server
	}
	if err := config.ApplyEnv(&c); err != nil {
		return config.Config{}, err
	}
	if serverFlag != "" {
		c.Server.BaseURL = serverFlag
	}
	if logLevelFlag != "" {
		c.Log.Level = logLevelFlag
	}
	if err := c.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newClient builds a transport client from the effective configuration.
func newClient() (*transport.Client, error) {
	client, err := transport.New(cfg.Server.BaseURL)
	if err != nil {
		return nil, err
	}
	return client.
		WithTimeout(cfg.Transport.Timeout).
		WithUserAgent("parley/" + version).
		WithLogger(logger), nil
}

// newSaver builds the transcript writer for this run.
func newSaver() *transcript.Autosaver {
	return transcript.NewAutosaver(transcript.Options{
		Dir:    cfg.Transcript.Dir,
		Format: cfg.Transcript.Format,
		Auto:   cfg.Transcript.Autosave,
		Meta: transcript.Meta{
			Server:   cfg.Server.BaseURL,
			Operator: activeProfile.Label(),
			Agent:    activeProfile.AgentLabel(),
		},
		Logger: logger,
	})
}

// newController wires a controller to t with logging and the configured
// approval failure policy.
func newController(t controller.Transport, sessionID string, extra ...controller.Option) *controller.Controller {
	opts := []controller.Option{
		controller.WithObserver(controller.NewLogObserver(logger)),
		controller.WithReopenOnApprovalFailure(cfg.Approval.ReopenOnFailure),
	}
	if sessionID != "" {
		opts = append(opts, controller.WithSessionID(sessionID))
	}
	return controller.New(t, append(opts, extra...)...)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "agent service base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level: debug, info, warn or error")
	rootCmd.Flags().BoolVar(&chatPlain, "plain", false, "line-mode chat instead of the full-screen UI")
	rootCmd.Flags().StringVar(&chatSession, "session", "", "continue an existing server session")
}
