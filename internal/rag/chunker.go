// Package rag implements the RAG Pipeline of §4.H: chunking, the
// embedding client, cosine-similarity retrieval, and file/URL/memory
// ingestion. Chunker constructor shape is grounded on the teacher's
// internal/rag/chunker.go (NewChunker(chunkSize, overlap), ChunkText);
// the boundary-seeking window algorithm itself replaces the teacher's
// fixed-stride rune slicing per spec.
package rag

import (
	"strings"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 150
)

// Chunker splits text into overlapping, boundary-seeking windows.
type Chunker struct {
	ChunkSize int
	Overlap   int
}

func NewChunker(chunkSize, overlap int) *Chunker {
	return &Chunker{ChunkSize: chunkSize, Overlap: overlap}
}

// ChunkText normalizes whitespace, then repeatedly takes a window of up
// to ChunkSize runes, preferring to end on the last space at or after
// start + 0.6*ChunkSize so chunks don't split mid-word. Empty chunks are
// dropped.
func (c *Chunker) ChunkText(text string) []string {
	normalized := normalizeWhitespace(text)
	runes := []rune(normalized)
	if len(runes) <= c.ChunkSize {
		if trimmed := strings.TrimSpace(string(runes)); trimmed != "" {
			return []string{trimmed}
		}
		return nil
	}

	minEnd := int(float64(c.ChunkSize) * 0.6)
	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + c.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		if end < len(runes) {
			if back := lastSpaceInRange(runes, start+minEnd, end); back >= 0 {
				end = back
			}
		}

		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			chunks = append(chunks, piece)
		}

		next := end - c.Overlap
		if next <= start {
			next = end
		}
		if next < 0 {
			next = 0
		}
		if end >= len(runes) {
			break
		}
		start = next
	}
	return chunks
}

func normalizeWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.TrimSpace(strings.Join(fields, " "))
}

// lastSpaceInRange returns the index of the last space rune within
// [lo, hi), or -1 if none exists.
func lastSpaceInRange(runes []rune, lo, hi int) int {
	if lo < 0 {
		lo = 0
	}
	for i := hi - 1; i >= lo; i-- {
		if runes[i] == ' ' {
			return i
		}
	}
	return -1
}

// EstimateTokens approximates token count from whitespace-split word
// count, per §4.H: max(1, ceil(wordCount * 1.3)).
func EstimateTokens(text string) int {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 1
	}
	est := int(float64(len(words))*1.3 + 0.999999)
	if est < 1 {
		est = 1
	}
	return est
}
