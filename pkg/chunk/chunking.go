package chunk

import (
	"strings"
)

// Lines splits text on line boundaries, trims every line and drops the ones
// that are empty after trimming. Order is preserved.
func Lines(text string) []string {
	lines := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// Fragments behaves like Lines, and additionally splits any line longer than
// maxSize with SplitParagraphIntoChunks. A maxSize <= 0 disables the split.
func Fragments(text string, maxSize int) []string {
	lines := Lines(text)
	if maxSize <= 0 {
		return lines
	}

	fragments := make([]string, 0, len(lines))
	for _, line := range lines {
		fragments = append(fragments, SplitParagraphIntoChunks(line, maxSize)...)
	}
	return fragments
}

// SplitParagraphIntoChunks takes a paragraph and a maxChunkSize as input,
// and returns a slice of strings where each string is a chunk of the paragraph
// that is at most maxChunkSize long, ensuring that words are not split.
func SplitParagraphIntoChunks(paragraph string, maxChunkSize int) []string {
	if strings.TrimSpace(paragraph) == "" {
		return []string{}
	}

	if len(paragraph) <= maxChunkSize {
		return []string{paragraph}
	}

	var chunks []string
	var currentChunk strings.Builder

	for _, word := range strings.Fields(paragraph) {
		// Flush when the next word (plus its separating space) would overflow.
		if currentChunk.Len() > 0 && currentChunk.Len()+len(word)+1 > maxChunkSize {
			chunks = append(chunks, currentChunk.String())
			currentChunk.Reset()
		}

		// A single word longer than the limit becomes its own chunk.
		if currentChunk.Len() == 0 && len(word) > maxChunkSize {
			chunks = append(chunks, word)
			continue
		}

		if currentChunk.Len() > 0 {
			currentChunk.WriteString(" ")
		}
		currentChunk.WriteString(word)
	}

	if currentChunk.Len() > 0 {
		chunks = append(chunks, currentChunk.String())
	}

	return chunks
}
