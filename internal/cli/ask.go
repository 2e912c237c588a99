package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/raphaelgruber/codechat/internal/config"
	"github.com/raphaelgruber/codechat/internal/conversation"
	"github.com/raphaelgruber/codechat/internal/editor"
	"github.com/raphaelgruber/codechat/internal/llm"
	"github.com/raphaelgruber/codechat/internal/models"
	"github.com/raphaelgruber/codechat/internal/prompt"
	"github.com/raphaelgruber/codechat/internal/render"
	"github.com/raphaelgruber/codechat/internal/tokenizer"
)

var (
	askFile     string
	askLines    string
	askLanguage string
	askPreset   string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question about a selection and stream the answer",
	Long: `Ask a single question and stream the answer to stdout.

The selection comes from --file (optionally cut with --lines) or from stdin
when it is piped. --preset runs one of the canned prompts instead of a
question.

Examples:
  codechat ask "What does this do?" --file main.go --lines 20-45
  git diff | codechat ask "Write a commit message for this diff"
  codechat ask --preset findProblems --file handler.go`,
	Args: cobra.ArbitraryArgs,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askFile, "file", "f", "", "use this file as the selection")
	askCmd.Flags().StringVar(&askLines, "lines", "", "restrict the selection to a line range (e.g. 10-40)")
	askCmd.Flags().StringVar(&askLanguage, "language", "", "language id of the selection (default: guessed from --file)")
	askCmd.Flags().StringVarP(&askPreset, "preset", "p", "", "run a preset: "+strings.Join(prompt.Presets, ", "))
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	if !settings.Configured() {
		return llm.ErrNotConfigured
	}

	raw := strings.Join(args, " ")
	if askPreset != "" {
		prefix, err := prompt.Preset(askPreset, settings)
		if err != nil {
			return err
		}
		raw = prefix + raw
	}
	if raw == "" {
		return errors.New("nothing to ask: pass a question or --preset")
	}

	sel, err := askSelection()
	if err != nil {
		return err
	}

	conv := conversation.New()
	conv.Append(conversation.RoleUser, prompt.Assemble(raw, sel, settings))

	counter := tokenizer.New(settings.Model, logger)
	promptTokens := counter.Count(render.PromptText(conv.Messages()))
	if err := prompt.CheckBudget(promptTokens, settings); err != nil {
		return err
	}

	start := time.Now()
	client := llm.NewClient(counter, logger)
	stream, err := client.Stream(ctx, llm.RequestFromSettings(settings, conv.SelectedEntries()))
	if err != nil {
		return fmt.Errorf("start completion: %w", err)
	}
	defer stream.Close()

	out := cmd.OutOrStdout()
	var streamErr error
	for {
		fragment, err := stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				streamErr = err
			}
			break
		}
		fmt.Fprint(out, fragment)
	}
	fmt.Fprintln(out)

	usage := render.Usage{PromptTokens: promptTokens, CompletionTokens: stream.CompletionTokens()}
	fmt.Fprintf(cmd.ErrOrStderr(), "tokens: %d prompt + %d completion = %d\n",
		usage.PromptTokens, usage.CompletionTokens, usage.Total())
	recordAsk(ctx, settings, usage, time.Since(start), streamErr)

	if streamErr != nil {
		return fmt.Errorf("stream completion: %w", streamErr)
	}
	return nil
}

// askSelection returns the selection named by the flags, or piped stdin.
func askSelection() (*editor.Selection, error) {
	if askFile != "" {
		sel, err := readSelection(askFile, askLines, askLanguage)
		if err != nil {
			return nil, err
		}
		return &sel, nil
	}
	sel, ok, err := stdinSelection(os.Stdin, askLanguage)
	if err != nil || !ok {
		return nil, err
	}
	return &sel, nil
}

// recordAsk writes the turn to the usage ledger when one is configured.
func recordAsk(ctx context.Context, settings config.Settings, usage render.Usage, elapsed time.Duration, streamErr error) {
	if !cfg.LedgerEnabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	ledger, err := openLedger(ctx)
	if err != nil {
		logger.Warn("usage not recorded", "error", err)
		return
	}
	defer closeLedger(ledger)

	outcome := models.OutcomeOK
	if streamErr != nil {
		outcome = llm.ErrorKind(streamErr)
	}
	err = ledger.RecordTokenUsage(ctx, models.TokenUsageInput{
		SessionID:        "ask-" + uuid.NewString(),
		Provider:         settings.Provider,
		Model:            settings.Model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		DurationMs:       elapsed.Milliseconds(),
		Outcome:          outcome,
	})
	if err != nil {
		logger.Warn("usage not recorded", "error", err)
	}
}
