package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/codechat/internal/editor"
	"github.com/raphaelgruber/codechat/internal/llm"
	"github.com/raphaelgruber/codechat/internal/metrics"
	"github.com/raphaelgruber/codechat/internal/render"
	"github.com/raphaelgruber/codechat/internal/session"
	"github.com/raphaelgruber/codechat/internal/tokenizer"
	"github.com/raphaelgruber/codechat/internal/tui"
)

var (
	tuiFile  string
	tuiLines string
	tuiPlain bool
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the chat panel in the terminal",
	Long: `Open the chat panel as a full-screen terminal UI.

Type a question and press enter. Commands:
  /add TEXT       add a message without asking
  /toggle N       include or exclude message N
  /edit N TEXT    replace the text of message N
  /paste N        copy code block N of the last answer
  /preset NAME    run a preset (explain, refactor, optimize, findProblems, documentation)
  /reset          start over
  /quit           leave

Examples:
  codechat tui
  codechat tui --file main.go --lines 10-40`,
	RunE: runTUI,
}

func init() {
	tuiCmd.Flags().StringVarP(&tuiFile, "file", "f", "", "use this file as the editor selection")
	tuiCmd.Flags().StringVar(&tuiLines, "lines", "", "restrict the selection to a line range (e.g. 10-40)")
	tuiCmd.Flags().BoolVar(&tuiPlain, "plain", false, "show the transcript without markdown rendering")
}

func runTUI(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	store := watchSettings(ctx, settings)

	var provider editor.Provider = editor.None{}
	if tuiFile != "" {
		sel, err := readSelection(tuiFile, tuiLines, "")
		if err != nil {
			return err
		}
		provider = editor.Static{Selection: sel}
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	ledger, err := openLedger(connectCtx)
	cancel()
	if err != nil {
		return err
	}
	defer closeLedger(ledger)

	counter := tokenizer.New(settings.Model, logger)
	sink := tui.NewSink()
	sess := session.New(session.Dependencies{
		Streamer:  llm.NewClient(counter, logger),
		Counter:   counter,
		Selection: provider,
		Sink:      sink,
		Settings:  store,
		Usage:     usageRecorder(ledger),
		Metrics:   metrics.NewCollector(),
		Logger:    logger,
		Style:     render.StyleTerminal,
	})
	defer sess.Close()

	opts := tui.Options{Logger: logger}
	if tuiPlain {
		opts.Markdown = tui.Plain
	}
	return tui.Run(ctx, sess, sink, opts)
}
