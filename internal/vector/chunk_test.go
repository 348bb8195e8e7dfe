package vector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkTextOneSentencePerChunk(t *testing.T) {
	chunks := ChunkText("A. B. C.", 2, 0)
	assert.Equal(t, []string{"A.", "B.", "C."}, chunks)
}

func TestChunkTextPacksGreedily(t *testing.T) {
	chunks := ChunkText("One two. Three four! Five six? Seven.", 20, 0)
	assert.Equal(t, []string{"One two. Three four!", "Five six? Seven."}, chunks)
}

func TestChunkTextKeepsOversizedSentence(t *testing.T) {
	long := "This sentence is far longer than the chunk size."
	chunks := ChunkText("Hi. "+long+" Bye.", 10, 0)
	require.Len(t, chunks, 3)
	assert.Equal(t, "Hi.", chunks[0])
	assert.Equal(t, long, chunks[1])
	assert.Equal(t, "Bye.", chunks[2])
}

func TestChunkTextNeverDropsText(t *testing.T) {
	text := "Met Priya at the cafe. We talked about the launch! Should I call Ravi tomorrow? " +
		"The deck still needs work. Dinner with Sam on Friday at eight. Remember to book a table."
	const size, overlap = 60, 12

	chunks := ChunkText(text, size, overlap)
	require.Greater(t, len(chunks), 1)

	var parts []string
	prev := ""
	for i, c := range chunks {
		assert.NotEmpty(t, c)
		if i > 0 {
			prefix := tail(prev, overlap)
			require.True(t, strings.HasPrefix(c, prefix))
			c = strings.TrimPrefix(c, prefix)
		}
		parts = append(parts, c)
		prev = chunks[i]
		if i > 0 {
			prev = c
		}
	}
	assert.Equal(t, text, strings.Join(parts, " "))
}

func TestChunkTextOverlapPrefix(t *testing.T) {
	chunks := ChunkText("Alpha beta. Gamma delta.", 11, 5)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Alpha beta.", chunks[0])
	assert.Equal(t, "beta.Gamma delta.", chunks[1])
}

func TestChunkTextBlank(t *testing.T) {
	assert.Empty(t, ChunkText("   ", 500, 50))
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("  Wait... what?! Yes.\nNo  ")
	assert.Equal(t, []string{"Wait...", "what?!", "Yes.", "No"}, got)
}
