package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestResponse_FirstFunctionCall_CandidateThenPartOrder(t *testing.T) {
	resp := &Response{Candidates: []Candidate{
		{Parts: []Part{
			{Text: "let me look"},
			{FunctionCall: &FunctionCall{Name: "vector_search", Args: map[string]any{"query": "first"}}},
			{FunctionCall: &FunctionCall{Name: "vector_search", Args: map[string]any{"query": "second"}}},
		}},
		{Parts: []Part{
			{FunctionCall: &FunctionCall{Name: "vector_search", Args: map[string]any{"query": "third"}}},
		}},
	}}

	fc := resp.FirstFunctionCall()
	require.NotNil(t, fc)
	assert.Equal(t, "first", fc.Args["query"])
}

func TestResponse_FirstFunctionCall_SkipsEmptyCandidates(t *testing.T) {
	resp := &Response{Candidates: []Candidate{
		{},
		{Parts: []Part{{FunctionCall: &FunctionCall{Name: "vector_search"}}}},
	}}
	require.NotNil(t, resp.FirstFunctionCall())

	assert.Nil(t, TextResponse("hi").FirstFunctionCall())
	assert.Nil(t, (*Response)(nil).FirstFunctionCall())
}

func TestResponse_Text(t *testing.T) {
	resp := &Response{Candidates: []Candidate{
		{Parts: []Part{{Text: "hello "}, {FunctionCall: &FunctionCall{Name: "x"}}, {Text: "world"}}},
		{Parts: []Part{{Text: "ignored"}}},
	}}
	assert.Equal(t, "hello world", resp.Text())
	assert.Equal(t, "", (&Response{}).Text())
}

func TestToGenaiSchema(t *testing.T) {
	s := &Schema{
		Type:     TypeObject,
		Required: []string{"query"},
		Properties: map[string]*Schema{
			"query": {Type: TypeString},
			"top_k": {Type: TypeInteger, Default: 5},
			"tags":  {Type: TypeArray, Items: &Schema{Type: TypeString}, Nullable: true},
		},
	}

	out := toGenaiSchema(s)
	assert.Equal(t, genai.TypeObject, out.Type)
	assert.Equal(t, genai.TypeInteger, out.Properties["top_k"].Type)
	assert.Equal(t, 5, out.Properties["top_k"].Default)
	assert.Equal(t, genai.TypeString, out.Properties["tags"].Items.Type)
	require.NotNil(t, out.Properties["tags"].Nullable)
	assert.True(t, *out.Properties["tags"].Nullable)
	assert.Nil(t, toGenaiSchema(nil))
}

func TestFromGenaiResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		{Content: &genai.Content{Parts: []*genai.Part{
			{Text: "a"},
			{FunctionCall: &genai.FunctionCall{Name: "vector_search", Args: map[string]any{"query": "q"}}},
		}}},
		nil,
	}}

	out := fromGenaiResponse(resp)
	require.Len(t, out.Candidates, 2)
	assert.Equal(t, "a", out.Text())
	assert.Equal(t, "vector_search", out.FirstFunctionCall().Name)
}

type countingEmbedder struct {
	calls int
	seen  []string
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		c.seen = append(c.seen, t)
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func TestCachedEmbedder(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, time.Minute)
	ctx := context.Background()

	v, err := c.Embed(ctx, []string{"a", "bbb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {3}}, v)

	v, err = c.Embed(ctx, []string{"bbb", "cc", "a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{3}, {2}, {1}}, v)

	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, []string{"a", "bbb", "cc"}, inner.seen)
}
