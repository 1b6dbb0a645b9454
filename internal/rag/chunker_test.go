package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkText_ShortTextReturnsSingleChunk(t *testing.T) {
	c := NewChunker(DefaultChunkSize, DefaultOverlap)
	chunks := c.ChunkText("  alpha   beta  \n gamma  ")
	require.Equal(t, []string{"alpha beta gamma"}, chunks)
}

func TestChunkText_EmptyTextReturnsNoChunks(t *testing.T) {
	c := NewChunker(DefaultChunkSize, DefaultOverlap)
	require.Empty(t, c.ChunkText("   \n\t  "))
}

func TestChunkText_LongTextProducesMultipleBoundedChunks(t *testing.T) {
	c := NewChunker(100, 20)
	text := strings.Repeat("alpha beta gamma delta ", 50)

	chunks := c.ChunkText(text)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		require.LessOrEqual(t, len([]rune(chunk)), 100)
		require.NotEmpty(t, chunk)
	}
}

func TestChunkText_PrefersSplittingOnWhitespace(t *testing.T) {
	c := NewChunker(20, 5)
	text := "0123456789 0123456789 0123456789 0123456789"

	chunks := c.ChunkText(text)
	for _, chunk := range chunks {
		require.False(t, strings.HasPrefix(chunk, " "))
		require.False(t, strings.HasSuffix(chunk, " "))
	}
}

func TestEstimateTokens_ScalesWithWordCount(t *testing.T) {
	require.Equal(t, 1, EstimateTokens(""))
	require.Equal(t, 3, EstimateTokens("one word-ish"))
	require.Equal(t, 13, EstimateTokens(strings.Repeat("word ", 10)))
}
