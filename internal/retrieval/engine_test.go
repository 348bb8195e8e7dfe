package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/3xCaffeine/total-recall/internal/graph"
	"github.com/3xCaffeine/total-recall/internal/vector"
)

type constEmbedder struct{ err error }

func (e constEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type slowGraph struct{ graph.Store }

func (slowGraph) SearchEntities(ctx context.Context, _ string, _ []string, _ int) ([]graph.Node, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type openVectors struct{ vector.Store }

func (openVectors) DenseSearch(context.Context, []float32, int) ([]vector.Match, error) {
	return nil, gobreaker.ErrOpenState
}

func seedVectors(t *testing.T) *vector.MemoryStore {
	t.Helper()
	store := vector.NewMemoryStore()
	require.NoError(t, store.Upsert(context.Background(), []vector.Record{
		{ID: "A_journal_1_chunk_0", DocumentID: "A_journal_1", Embedding: []float32{1, 0},
			Text: "Met Priya at the cafe.", Metadata: map[string]any{"user_id": "A"}},
		{ID: "B_journal_2_chunk_0", DocumentID: "B_journal_2", Embedding: []float32{1, 0},
			Text: "B's secret diary.", Metadata: map[string]any{"user_id": "B"}},
		{ID: "B_journal_3_chunk_0", DocumentID: "B_journal_3", Embedding: []float32{0.9, 0.1},
			Text: "More of B.", Metadata: map[string]any{"user_id": "B"}},
	}))
	return store
}

func seedGraph(t *testing.T) *graph.MemoryStore {
	t.Helper()
	g := graph.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, g.Merge(ctx, graph.LabelEntity, "1_e1", graph.Props{"user_id": "A", "name": "Priya", "type": "person"}))
	require.NoError(t, g.Merge(ctx, graph.LabelEntity, "2_e1", graph.Props{"user_id": "B", "name": "Priya", "type": "person"}))
	return g
}

func TestQueryNeverReturnsOtherUsersRecords(t *testing.T) {
	e := NewEngine(seedVectors(t), seedGraph(t), constEmbedder{}, zaptest.NewLogger(t), time.Second)

	res := e.Query(context.Background(), Query{UserID: "A", Text: "What did Priya say?", VectorLimit: 5, IncludeGraph: true})
	require.Len(t, res.VectorResults, 1)
	assert.Equal(t, "A", res.VectorResults[0].UserID())
	require.Len(t, res.GraphResults, 1)
	assert.Equal(t, "1_e1", res.GraphResults[0].ID)

	assert.Contains(t, res.SynthesizedContext, "## Similar Entries\n- Met Priya at the cafe.")
	assert.Contains(t, res.SynthesizedContext, "## Related Entities\n- Priya (person)")
	assert.NotContains(t, res.SynthesizedContext, "secret")
}

func TestQuerySkipsGraphWhenNotRequested(t *testing.T) {
	e := NewEngine(seedVectors(t), seedGraph(t), constEmbedder{}, zaptest.NewLogger(t), time.Second)

	res := e.Query(context.Background(), Query{UserID: "A", Text: "Priya"})
	assert.Empty(t, res.GraphResults)
	assert.Len(t, res.VectorResults, 1)
}

func TestQueryDegradesFailedBranch(t *testing.T) {
	e := NewEngine(seedVectors(t), seedGraph(t), constEmbedder{err: errors.New("embedding down")}, zaptest.NewLogger(t), time.Second)

	res := e.Query(context.Background(), Query{UserID: "A", Text: "Priya", IncludeGraph: true})
	assert.Empty(t, res.VectorResults)
	require.Len(t, res.GraphResults, 1)
	assert.True(t, strings.HasPrefix(res.SynthesizedContext, "## Related Entities"))
}

func TestQueryTimesOutSlowBranch(t *testing.T) {
	e := NewEngine(seedVectors(t), slowGraph{}, constEmbedder{}, zaptest.NewLogger(t), 50*time.Millisecond)

	start := time.Now()
	res := e.Query(context.Background(), Query{UserID: "A", Text: "Priya", IncludeGraph: true})
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Empty(t, res.GraphResults)
	assert.Len(t, res.VectorResults, 1)
}

func TestQueryEmpty(t *testing.T) {
	e := NewEngine(vector.NewMemoryStore(), graph.NewMemoryStore(), constEmbedder{}, zaptest.NewLogger(t), time.Second)

	res := e.Query(context.Background(), Query{UserID: "A", Text: "anything", IncludeGraph: true})
	assert.True(t, res.Empty())
	assert.Equal(t, "", res.SynthesizedContext)
	assert.NotNil(t, res.VectorResults)
	assert.NotNil(t, res.GraphResults)
}

func TestTerms(t *testing.T) {
	assert.Equal(t, []string{"priya", "say", "coffee", "o'brien"}, Terms("What did Priya say about the coffee with O'Brien? priya"))
}

func TestSynthesizeTruncatesExcerpts(t *testing.T) {
	long := strings.Repeat("x", 150)
	out := Synthesize([]vector.Match{{Text: long}}, nil)
	assert.Equal(t, "## Similar Entries\n- "+strings.Repeat("x", 100)+"...", out)
}

func TestQueryOpenBreakerIsNotAFailure(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	e := NewEngine(openVectors{}, seedGraph(t), constEmbedder{}, zap.New(core), time.Second)

	res := e.Query(context.Background(), Query{UserID: "A", Text: "Priya", IncludeGraph: true})
	assert.Empty(t, res.VectorResults)
	require.Len(t, res.GraphResults, 1)

	assert.Equal(t, 1, logs.FilterMessage("breaker open, skipping branch").Len())
	assert.Zero(t, logs.FilterMessage("branch failed").Len())

	logs.TakeAll()
	e = NewEngine(seedVectors(t), seedGraph(t), constEmbedder{err: errors.New("embedding down")}, zap.New(core), time.Second)
	e.Query(context.Background(), Query{UserID: "A", Text: "Priya"})
	failed := logs.FilterMessage("branch failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "vector", failed[0].ContextMap()["branch"])
}
