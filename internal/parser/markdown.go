// Package parser provides the Markdown inspection used when rendering
// messages: code fences, list items and fenced code extraction.
package parser

import (
	"regexp"
	"strings"
)

// Fence is the Markdown code fence marker.
const Fence = "```"

var (
	// A complete fenced block: an opening and a closing fence.
	codeBlockRegex = regexp.MustCompile("(?s)```.*?```")

	// A bullet or numbered list item on its own line.
	listItemRegex = regexp.MustCompile(`(?m)^(?:\s*(?:[-*+]|\d+\.)\s+.+)$`)
)

// CodeBlock is one fenced block extracted from a message.
type CodeBlock struct {
	Language string // Info string after the opening fence, may be empty
	Code     string // Body without the fences
	Start    int    // Line number of the opening fence (1-based)
}

// HasCodeBlock reports whether content contains a complete fenced block.
func HasCodeBlock(content string) bool {
	return codeBlockRegex.MatchString(content)
}

// HasListItem reports whether content contains a bullet or numbered list item.
func HasListItem(content string) bool {
	return listItemRegex.MatchString(content)
}

// IsRich reports whether content should be shown as Markdown rather than as
// an inline editable field.
func IsRich(content string) bool {
	return HasCodeBlock(content) || HasListItem(content)
}

// CountFences returns the number of fence markers in content.
func CountFences(content string) int {
	return strings.Count(content, Fence)
}

// CloseOpenFence appends a closing fence when content has an odd number of
// fence markers, so partial output renders as a complete block.
func CloseOpenFence(content string) string {
	if CountFences(content)%2 == 0 {
		return content
	}
	return content + "\n" + Fence
}

// ExtractCodeBlocks returns the fenced blocks in content in order. An
// unterminated trailing block is returned with the text read so far.
func ExtractCodeBlocks(content string) []CodeBlock {
	var blocks []CodeBlock

	var current *CodeBlock
	var body strings.Builder

	flush := func() {
		if current != nil {
			current.Code = strings.TrimSuffix(body.String(), "\n")
			blocks = append(blocks, *current)
			current = nil
			body.Reset()
		}
	}

	for i, line := range strings.Split(strings.TrimSuffix(content, "\n"), "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, Fence) {
			if current != nil {
				flush()
				continue
			}
			current = &CodeBlock{
				Language: strings.TrimSpace(strings.TrimPrefix(trimmed, Fence)),
				Start:    i + 1,
			}
			continue
		}

		if current != nil {
			body.WriteString(line)
			body.WriteString("\n")
		}
	}

	flush()

	return blocks
}
