package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/codechat/internal/config"
	"github.com/raphaelgruber/codechat/internal/llm"
	"github.com/raphaelgruber/codechat/internal/metrics"
	"github.com/raphaelgruber/codechat/internal/render"
	"github.com/raphaelgruber/codechat/internal/server"
	"github.com/raphaelgruber/codechat/internal/tokenizer"
)

var (
	serveAddr string
	serveWipe bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat panel to an editor webview",
	Long: `Serve the chat panel's view channel over WebSocket. Every connection
gets its own conversation. The settings file is watched and changes apply to
the next turn.

Examples:
  codechat serve
  codechat serve --addr localhost:9000
  CODECHAT_SURREALDB_URL=ws://localhost:8000 codechat serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default $CODECHAT_LISTEN_ADDR)")
	serveCmd.Flags().BoolVar(&serveWipe, "wipe", false, "wipe the usage ledger on startup (testing only)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	store := watchSettings(ctx, settings)

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	ledger, err := openLedger(connectCtx)
	cancel()
	if err != nil {
		return err
	}
	defer closeLedger(ledger)

	if serveWipe && ledger != nil {
		if err := ledger.WipeData(ctx); err != nil {
			return fmt.Errorf("wipe usage ledger: %w", err)
		}
	}

	counter := tokenizer.New(settings.Model, logger)
	srv := server.New(server.Dependencies{
		Streamer: llm.NewClient(counter, logger),
		Counter:  counter,
		Settings: store,
		Usage:    usageRecorder(ledger),
		Metrics:  metrics.NewCollector(),
		Logger:   logger,
		Style:    render.StyleWebview,
	})

	addr := serveAddr
	if addr == "" {
		addr = cfg.ListenAddr
	}
	logger.Info("starting codechat server", "addr", addr, "ledger", ledger != nil)
	if err := srv.Run(ctx, addr); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// watchSettings returns a store holding settings that follows the settings
// file until ctx is cancelled. A watcher that cannot start is logged and the
// initial settings stay in effect.
func watchSettings(ctx context.Context, settings config.Settings) *config.Store {
	store := config.NewStore(settings)

	w, err := config.NewWatcher(cfg.SettingsFile, store, logger)
	if err != nil {
		logger.Warn("settings hot reload disabled", "file", cfg.SettingsFile, "error", err)
		return store
	}
	go func() {
		if err := w.Run(ctx); err != nil {
			logger.Warn("settings watcher stopped", "error", err)
		}
	}()
	return store
}
