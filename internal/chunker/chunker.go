// Package chunker splits a long document into ordered, size-bounded pieces
// for chunk-level generation.
//
// Breakpoints are searched backward from the window end, in order:
// paragraph break, sentence end, line break, space. When none lands inside
// the lookback region the window is cut exactly at maxChars.
package chunker

import (
	"strings"
	"unicode"
)

// minLookback is the smallest backward search distance for a breakpoint.
const minLookback = 50

// Chunk is one contiguous slice of a document.
type Chunk struct {
	Index int    // 0-based, contiguous
	Text  string // never empty
}

type piece struct {
	text string
	sep  string // characters consumed between the previous piece and this one
}

// Split divides text into chunks of at most maxChars runes, preferring
// natural breakpoints. A chunk shorter than minChars (after trimming) is
// merged into its predecessor; only a leading chunk with no predecessor is
// ever emitted below minChars. A merged chunk may exceed maxChars.
//
// CRLF line endings become LF and the text's leading and trailing whitespace
// is trimmed before cutting, so chunk text covers the trimmed input.
// Whitespace-only input yields no chunks. maxChars <= 0 disables the bound.
func Split(text string, maxChars, minChars int) []Chunk {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if maxChars <= 0 || len(runes) <= maxChars {
		return []Chunk{{Index: 0, Text: text}}
	}
	if minChars < 0 {
		minChars = 0
	}
	return merge(cut(runes, maxChars), minChars)
}

func cut(runes []rune, maxChars int) []piece {
	n := len(runes)
	lookback := maxChars / 5
	if lookback < minLookback {
		lookback = minLookback
	}
	if lookback > maxChars {
		lookback = maxChars
	}

	var pieces []piece
	sep := ""
	cursor := 0
	for cursor < n {
		end := cursor + maxChars
		if end >= n {
			pieces = append(pieces, piece{text: string(runes[cursor:n]), sep: sep})
			break
		}

		searchStart := end - lookback
		stop, resume := findBreak(runes, searchStart, end)
		if stop < 0 {
			stop, resume = end, end
		}
		for resume < n && unicode.IsSpace(runes[resume]) {
			resume++
		}

		// Trailing whitespace before the breakpoint is consumed with it.
		textEnd := stop
		for textEnd > cursor && unicode.IsSpace(runes[textEnd-1]) {
			textEnd--
		}
		pieces = append(pieces, piece{text: string(runes[cursor:textEnd]), sep: sep})
		sep = string(runes[textEnd:resume])
		cursor = resume
	}
	return pieces
}

// findBreak returns the exclusive end of the text before the breakpoint and
// the index just past the breakpoint, or (-1, -1) when no breakpoint lies
// strictly after searchStart.
func findBreak(runes []rune, searchStart, end int) (int, int) {
	n := len(runes)

	for i := end - 2; i > searchStart; i-- {
		if runes[i] == '\n' && runes[i+1] == '\n' {
			return i, i + 2
		}
	}
	for i := end - 1; i > searchStart; i-- {
		if isTerminal(runes[i]) && i+1 < n && unicode.IsSpace(runes[i+1]) {
			return i + 1, i + 1
		}
	}
	for i := end - 1; i > searchStart; i-- {
		if runes[i] == '\n' {
			return i, i + 1
		}
	}
	for i := end - 1; i > searchStart; i-- {
		if runes[i] == ' ' {
			return i, i + 1
		}
	}
	return -1, -1
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '。':
		return true
	}
	return false
}

func merge(pieces []piece, minChars int) []Chunk {
	chunks := make([]Chunk, 0, len(pieces))
	for _, p := range pieces {
		if strings.TrimSpace(p.text) == "" {
			continue
		}
		short := len([]rune(strings.TrimSpace(p.text))) < minChars
		if short && len(chunks) > 0 {
			prev := &chunks[len(chunks)-1]
			prev.Text += p.sep + p.text
			continue
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Text: p.text})
	}
	return chunks
}

// Texts returns the chunk texts in order.
func Texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}
