package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/codechat/internal/client"
	"github.com/raphaelgruber/codechat/internal/view"
)

var (
	sendURL    string
	sendAdd    bool
	sendPreset string
	sendFollow bool
	sendReset  bool
)

var sendCmd = &cobra.Command{
	Use:   "send [prompt]",
	Short: "Send a prompt to a running codechat server",
	Long: `Send a prompt over a running server's view channel and print the
transcript once the answer is complete.

Each invocation opens its own connection, so it starts a fresh conversation.

Examples:
  codechat send "Summarize what we discussed"
  codechat send --url ws://devbox:8484/ws "hello"
  codechat send --follow "Explain goroutines"
  codechat send --add "Remember: we target Go 1.25"`,
	Args: cobra.ArbitraryArgs,
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendURL, "url", "", "view channel URL (default $CODECHAT_SERVER_URL)")
	sendCmd.Flags().BoolVar(&sendAdd, "add", false, "add the prompt to the conversation without asking")
	sendCmd.Flags().StringVarP(&sendPreset, "preset", "p", "", "run a preset against the server's selection")
	sendCmd.Flags().BoolVar(&sendFollow, "follow", false, "print every transcript update while streaming")
	sendCmd.Flags().BoolVar(&sendReset, "reset", false, "reset the conversation before sending")
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	url := sendURL
	if url == "" {
		url = cfg.ServerURL
	}
	c, err := client.Dial(ctx, url)
	if err != nil {
		return err
	}
	defer c.Close()

	// the server posts the initial transcript on connect
	if _, err := c.Await(ctx); err != nil {
		return err
	}

	if sendReset {
		if err := c.Send(view.ResetConversation{}); err != nil {
			return err
		}
		if _, err := c.Await(ctx); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	text := strings.Join(args, " ")

	var ev view.Event
	switch {
	case sendAdd:
		if err := c.Send(view.PromptNoQuery{Value: text}); err != nil {
			return err
		}
		transcript, err := c.Await(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, transcript)
		return nil
	case sendPreset != "":
		ev = view.RunPreset{Name: sendPreset}
	case text == "":
		return fmt.Errorf("nothing to send: pass a prompt, --add or --preset")
	default:
		ev = view.Prompt{Value: text}
	}

	var onResponse func(string)
	if sendFollow {
		onResponse = func(v string) { fmt.Fprintln(out, v) }
	}
	final, err := c.Turn(ctx, ev, onResponse)
	if err != nil {
		return err
	}
	if !sendFollow {
		fmt.Fprintln(out, final)
	}
	return nil
}
