package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/3xCaffeine/total-recall/internal/extraction"
)

// lenEmbedder embeds a text as [len, 1].
type lenEmbedder struct {
	err   error
	calls int
}

func (e *lenEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

type failingStore struct{ *MemoryStore }

func (failingStore) Upsert(context.Context, []Record) error {
	return errors.New("connection refused")
}

func newTestIndexer(t *testing.T, store Store, emb *lenEmbedder) *Indexer {
	x := NewIndexer(store, emb, zaptest.NewLogger(t), nil)
	x.ChunkSize = 30
	x.ChunkOverlap = 0
	return x
}

const entryText = "Met Priya at the cafe. We talked about the launch. Call Ravi tomorrow."

func TestIndexWritesDeterministicRecords(t *testing.T) {
	store := NewMemoryStore()
	x := newTestIndexer(t, store, &lenEmbedder{})
	res := &extraction.Result{Entities: []extraction.Entity{{ID: "e1", Name: "Priya", Type: "person"}}}

	st := x.Index(context.Background(), IndexInput{EntryID: 42, UserID: "u1", Title: "Tuesday", Content: entryText, Extraction: res})
	require.True(t, st.Indexed)
	require.Equal(t, 3, st.Chunks)
	assert.Equal(t, 3, store.Len())

	rec, ok := store.Get("u1_journal_42_chunk_0")
	require.True(t, ok)
	assert.Equal(t, "u1_journal_42", rec.DocumentID)
	assert.Equal(t, "Met Priya at the cafe.", rec.Text)
	assert.Equal(t, "u1", rec.Metadata["user_id"])
	assert.Equal(t, "Tuesday", rec.Metadata["title"])
	assert.Equal(t, 1, rec.Metadata["entities_count"])
	assert.Equal(t, rec.Text, rec.Metadata["text"])

	// Same content again: same ids, no growth.
	st = x.Index(context.Background(), IndexInput{EntryID: 42, UserID: "u1", Title: "Tuesday", Content: entryText, Extraction: res})
	require.True(t, st.Indexed)
	assert.Equal(t, 3, store.Len())
}

func TestIndexPrunesShrunkenEntry(t *testing.T) {
	store := NewMemoryStore()
	x := newTestIndexer(t, store, &lenEmbedder{})

	x.Index(context.Background(), IndexInput{EntryID: 1, UserID: "u1", Content: entryText})
	x.Index(context.Background(), IndexInput{EntryID: 2, UserID: "u1", Content: entryText})
	require.Equal(t, 6, store.Len())

	st := x.Index(context.Background(), IndexInput{EntryID: 1, UserID: "u1", Content: "Short now."})
	require.True(t, st.Indexed)
	assert.Equal(t, 4, store.Len())
	_, ok := store.Get("u1_journal_1_chunk_1")
	assert.False(t, ok)
	_, ok = store.Get("u1_journal_2_chunk_2")
	assert.True(t, ok)
}

func TestIndexDegradesOnEmbeddingFailure(t *testing.T) {
	store := NewMemoryStore()
	x := newTestIndexer(t, store, &lenEmbedder{err: errors.New("quota exceeded")})

	st := x.Index(context.Background(), IndexInput{EntryID: 1, UserID: "u1", Content: entryText})
	assert.False(t, st.Indexed)
	assert.Equal(t, 0, store.Len())
}

func TestIndexDegradesOnStoreFailure(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore()}
	x := newTestIndexer(t, store, &lenEmbedder{})

	st := x.Index(context.Background(), IndexInput{EntryID: 1, UserID: "u1", Content: entryText})
	assert.False(t, st.Indexed)
	assert.Equal(t, 3, st.Chunks)
}

func TestMemoryStoreDenseSearch(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Upsert(context.Background(), []Record{
		{ID: "a", DocumentID: "d", Embedding: []float32{1, 0}},
		{ID: "b", DocumentID: "d", ChunkIndex: 1, Embedding: []float32{0, 1}},
		{ID: "c", DocumentID: "d", ChunkIndex: 2, Embedding: []float32{1, 1}},
	}))

	got, err := store.DenseSearch(context.Background(), []float32{1, 0.1}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
}
