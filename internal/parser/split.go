// Package parser turns free text and markdown into store-sized blocks.
package parser

import "strings"

// DefaultBlockLimit is the per-block character limit of the Notion API.
const DefaultBlockLimit = 2000

// SplitText splits text into pieces of at most limit characters.
// It prefers the last newline before the limit, then the last space,
// and only cuts mid-word when neither exists. Leading whitespace of each
// following piece is dropped.
func SplitText(text string, limit int) []string {
	if text == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultBlockLimit
	}

	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= limit {
			chunks = append(chunks, string(runes))
			break
		}

		window := string(runes[:limit])
		pos := lastRuneIndex(window, '\n')
		if pos <= 0 {
			pos = lastRuneIndex(window, ' ')
		}
		if pos <= 0 {
			pos = limit
		}

		if chunk := string(runes[:pos]); strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
		runes = []rune(strings.TrimLeft(string(runes[pos:]), " \t\r\n"))
	}
	return chunks
}

// lastRuneIndex returns the rune offset of the last r in s, or -1.
func lastRuneIndex(s string, r rune) int {
	idx := strings.LastIndexByte(s, byte(r))
	if idx < 0 {
		return -1
	}
	return len([]rune(s[:idx]))
}
