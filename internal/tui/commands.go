package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/raphaelgruber/codechat/internal/conversation"
	"github.com/raphaelgruber/codechat/internal/parser"
	"github.com/raphaelgruber/codechat/internal/view"
)

// ErrUnknownCommand is returned for an unrecognised slash command.
var ErrUnknownCommand = errors.New("unknown command")

const helpText = "/add TEXT  /toggle N  /edit N TEXT  /paste N  /preset NAME  /reset  /quit"

// command is the action an input line maps to.
type command struct {
	event   view.Event
	refresh bool // re-render after the event (the host does not post one)
	quit    bool
	help    bool
}

// parseCommand maps an input line to a view event. msgs is the current
// conversation, used to resolve toggles and code block references.
func parseCommand(line string, msgs []conversation.Message) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return command{event: view.Prompt{Value: line}}, nil
	}

	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "/quit", "/q":
		return command{quit: true}, nil
	case "/help":
		return command{help: true}, nil
	case "/reset":
		return command{event: view.ResetConversation{}}, nil
	case "/add":
		return command{event: view.PromptNoQuery{Value: rest}}, nil
	case "/preset":
		if rest == "" {
			return command{}, fmt.Errorf("usage: /preset NAME")
		}
		return command{event: view.RunPreset{Name: rest}}, nil
	case "/toggle":
		i, err := messageIndex(rest, msgs)
		if err != nil {
			return command{}, err
		}
		return command{
			event:   view.CheckboxChanged{ID: view.CheckboxID(i), Checked: !msgs[i].Selected},
			refresh: true,
		}, nil
	case "/edit":
		idx, text, _ := strings.Cut(rest, " ")
		i, err := messageIndex(idx, msgs)
		if err != nil {
			return command{}, err
		}
		return command{
			event:   view.MessageContentChanged{ID: view.ContentID(i), Value: strings.TrimSpace(text)},
			refresh: true,
		}, nil
	case "/paste":
		code, err := codeBlock(rest, msgs)
		if err != nil {
			return command{}, err
		}
		return command{event: view.CodeSelected{Value: code}}, nil
	}
	return command{}, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
}

func messageIndex(s string, msgs []conversation.Message) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid message number %q", s)
	}
	if i < 0 || i >= len(msgs) {
		return 0, fmt.Errorf("%w: %d", conversation.ErrOutOfRange, i)
	}
	return i, nil
}

// codeBlock returns the n-th (1-based, default 1) code block of the last
// assistant message.
func codeBlock(s string, msgs []conversation.Message) (string, error) {
	n := 1
	if s != "" {
		var err error
		if n, err = strconv.Atoi(s); err != nil || n < 1 {
			return "", fmt.Errorf("invalid code block number %q", s)
		}
	}

	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != conversation.RoleAssistant {
			continue
		}
		blocks := parser.ExtractCodeBlocks(msgs[i].Content)
		if n > len(blocks) {
			return "", fmt.Errorf("last response has %d code blocks", len(blocks))
		}
		return blocks[n-1].Code, nil
	}
	return "", errors.New("no response to paste from")
}
