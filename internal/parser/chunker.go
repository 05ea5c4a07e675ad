package parser

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	defaultChunkSize    = 1000 // characters
	defaultChunkOverlap = 10   // characters
)

// Separators tried in order: paragraphs, lines, words, then a hard cut.
var chunkSeparators = []string{"\n\n", "\n", " ", ""}

// effectiveOverlap keeps the overlap strictly below the chunk size. Invalid values fall back to
// the default, capped at half a chunk.
func effectiveOverlap(chunkSize, chunkOverlap int) int {
	if chunkOverlap >= 0 && chunkOverlap < chunkSize {
		return chunkOverlap
	}
	return min(defaultChunkOverlap, chunkSize/2)
}

// SplitText cuts text into overlapping chunks of at most chunkSize characters.
func SplitText(text string, chunkSize, chunkOverlap int) ([]string, error) {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	chunkOverlap = effectiveOverlap(chunkSize, chunkOverlap)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithSeparators(chunkSeparators),
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)
	chunks, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}

	out := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out, nil
}
