package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/raphaelgruber/codechat/internal/editor"
)

// readSelection loads the selection from path, optionally cut to lines
// ("N" or "N-M", 1-based and inclusive). language overrides the language
// guessed from the file name.
func readSelection(path, lines, language string) (editor.Selection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return editor.Selection{}, fmt.Errorf("read selection: %w", err)
	}

	text := string(data)
	if lines != "" {
		text, err = cutLines(text, lines)
		if err != nil {
			return editor.Selection{}, err
		}
	}

	if language == "" {
		language = editor.LanguageFromPath(path)
	}
	return editor.Selection{Text: text, LanguageID: language}, nil
}

// stdinSelection reads the selection from stdin when it is piped.
func stdinSelection(stdin *os.File, language string) (editor.Selection, bool, error) {
	if term.IsTerminal(int(stdin.Fd())) {
		return editor.Selection{}, false, nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return editor.Selection{}, false, fmt.Errorf("read stdin: %w", err)
	}
	if len(data) == 0 {
		return editor.Selection{}, false, nil
	}
	return editor.Selection{Text: string(data), LanguageID: language}, true, nil
}

// cutLines returns the 1-based inclusive line range spec of text.
func cutLines(text, spec string) (string, error) {
	startStr, endStr, isRange := strings.Cut(spec, "-")
	start, err := strconv.Atoi(strings.TrimSpace(startStr))
	if err != nil || start < 1 {
		return "", fmt.Errorf("invalid line range %q", spec)
	}
	end := start
	if isRange {
		end, err = strconv.Atoi(strings.TrimSpace(endStr))
		if err != nil || end < start {
			return "", fmt.Errorf("invalid line range %q", spec)
		}
	}

	all := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	if start > len(all) {
		return "", fmt.Errorf("line range %q is past the end of the file (%d lines)", spec, len(all))
	}
	end = min(end, len(all))
	return strings.Join(all[start-1:end], "\n"), nil
}
