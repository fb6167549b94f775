package rag

import (
	"strings"
	"unicode/utf8"
)

// SplitText splits text into chunks of at most size bytes with the given
// overlap. Boundaries back off to the last space inside the window so words
// are never split, and otherwise to a rune start so multi-byte characters
// stay intact; trailing and leading spaces are trimmed. The split is
// deterministic: identical input always yields identical chunks.
func SplitText(text string, size, overlap int) []string {
	if size < 1 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	if len(text) <= size {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			end = len(text)
		} else if idx := strings.LastIndexByte(text[start:end], ' '); idx > 0 {
			// Avoid splitting a word mid-way.
			end = start + idx
		} else {
			// No space in the window: keep the boundary on a rune start.
			for end > start && !utf8.RuneStart(text[end]) {
				end--
			}
			if end == start {
				// A single rune wider than the window; emit it whole.
				_, w := utf8.DecodeRuneInString(text[start:])
				end = start + w
			}
		}

		chunk := strings.TrimSpace(text[start:end])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end == len(text) {
			break
		}

		next := end - overlap
		if next <= start {
			// Overlap would stall the scan; force forward progress.
			next = start + 1
		}
		for next < len(text) && !utf8.RuneStart(text[next]) {
			next++
		}
		start = next
	}

	return chunks
}
