// Package cli provides the command-line interface for codechat.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/codechat/internal/config"
	"github.com/raphaelgruber/codechat/internal/db"
	"github.com/raphaelgruber/codechat/internal/session"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose      bool
	settingsFile string

	// Global config and logger
	cfg        config.Config
	logger     *slog.Logger
	logCleanup func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "codechat",
	Short: "Chat with an LLM about the code you are editing",
	Long: `Codechat is the host side of an editor chat panel. It keeps a
conversation, sends it with your current selection to an OpenAI-compatible
(or Anthropic, Ollama, Bedrock) completion endpoint and streams the answer
back to the panel.

Run "codechat serve" for an editor webview, "codechat tui" for a terminal
panel, or "codechat ask" for a single answer on stdout.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		if settingsFile != "" {
			cfg.SettingsFile = settingsFile
		}
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}

		// The terminal panel owns the screen, so it only logs to file.
		if cmd == tuiCmd {
			logger, logCleanup = config.SetupFileLogger(cfg.LogFile, cfg.LogLevel)
		} else {
			logger, logCleanup = config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		}
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCleanup != nil {
			if err := logCleanup(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&settingsFile, "settings", "", "settings file (default $CODECHAT_SETTINGS or the user config dir)")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(configCmd)
}

// loadSettings reads the settings file named by the config.
func loadSettings() (config.Settings, error) {
	s, err := config.LoadSettings(cfg.SettingsFile)
	if err != nil {
		return config.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return s, nil
}

// openLedger connects to the usage ledger when one is configured. It returns
// a nil client when the ledger is disabled.
func openLedger(ctx context.Context) (*db.Client, error) {
	if !cfg.LedgerEnabled() {
		return nil, nil
	}
	client, err := db.NewClient(ctx, db.ConfigFrom(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("connect to usage ledger: %w", err)
	}
	if err := client.InitSchema(ctx); err != nil {
		_ = client.Close(ctx)
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return client, nil
}

// usageRecorder keeps a nil ledger from becoming a non-nil interface.
func usageRecorder(c *db.Client) session.UsageRecorder {
	if c == nil {
		return nil
	}
	return c
}

// closeLedger closes c if it is open.
func closeLedger(c *db.Client) {
	if c == nil {
		return
	}
	if err := c.Close(context.Background()); err != nil {
		logger.Warn("failed to close usage ledger", "error", err)
	}
}
