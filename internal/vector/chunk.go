package vector

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

var sentenceEnd = regexp.MustCompile(`[.!?]\s+`)

// SplitSentences cuts text after every '.', '!' or '?' that is followed by
// whitespace. The whitespace itself is dropped.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		// loc[0] is the punctuation byte; keep it with the sentence.
		out = append(out, text[start:loc[0]+1])
		start = loc[1]
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// ChunkText packs sentences greedily into chunks of at most size characters,
// joined by single spaces. A sentence longer than size becomes a chunk of
// its own. When overlap > 0 every chunk after the first is prefixed with the
// last overlap characters of the chunk before it.
func ChunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}

	var chunks []string
	var cur strings.Builder
	curLen := 0

	for _, s := range SplitSentences(text) {
		n := utf8.RuneCountInString(s)
		// curLen counts the trailing separator of the previous sentence.
		if curLen+n <= size {
			cur.WriteString(s)
			cur.WriteByte(' ')
			curLen += n + 1
			continue
		}
		if curLen > 0 {
			chunks = append(chunks, strings.TrimSpace(cur.String()))
		}
		cur.Reset()
		cur.WriteString(s)
		cur.WriteByte(' ')
		curLen = n + 1
	}
	if curLen > 0 {
		chunks = append(chunks, strings.TrimSpace(cur.String()))
	}

	if overlap <= 0 || len(chunks) < 2 {
		return chunks
	}
	out := make([]string, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		out[i] = tail(chunks[i-1], overlap) + chunks[i]
	}
	return out
}

func tail(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[len(r)-n:])
}
