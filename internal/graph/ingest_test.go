package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/3xCaffeine/total-recall/internal/extraction"
)

func meetingExtraction() *extraction.Result {
	return &extraction.Result{
		Entities: []extraction.Entity{
			{ID: "e1", Name: "Priya", Type: "person"},
			{ID: "e2", Name: "Cafe", Type: "location"},
		},
		Relationships: []extraction.Relationship{
			{Source: "e1", Type: "meeting", Target: "e2", Description: "met"},
		},
		Todos:  []extraction.Todo{},
		Events: []extraction.Event{},
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	g := NewIngestor(store, zaptest.NewLogger(t), nil)
	in := IngestInput{EntryID: 42, UserID: "u1", Content: "Met Priya at the cafe.", Extraction: meetingExtraction()}

	for run := 0; run < 2; run++ {
		st, err := g.Ingest(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, 2, st.Entities)
		assert.Equal(t, 1, st.Relationships)

		assert.Equal(t, 2, store.NodeCount(LabelEntity), "run %d", run)
		assert.Equal(t, 1, store.NodeCount(LabelJournalEntry), "run %d", run)
		assert.Equal(t, 1, store.EdgeCount(EdgeRelatedTo), "run %d", run)
		assert.Equal(t, 2, store.EdgeCount(EdgeHasEntity), "run %d", run)
	}

	_, ok := store.Node(LabelEntity, "42_e1")
	assert.True(t, ok)
	_, ok = store.Node(LabelEntity, "42_e2")
	assert.True(t, ok)
}

func TestIngestKeepsEntriesApart(t *testing.T) {
	store := NewMemoryStore()
	g := NewIngestor(store, zaptest.NewLogger(t), nil)

	for _, entry := range []uint64{1, 2} {
		_, err := g.Ingest(context.Background(), IngestInput{EntryID: entry, UserID: "u1", Extraction: meetingExtraction()})
		require.NoError(t, err)
	}

	assert.Equal(t, 4, store.NodeCount(LabelEntity))
	assert.Equal(t, 2, store.EdgeCount(EdgeRelatedTo))
	assert.NotEqual(t, GlobalID(1, "e1"), GlobalID(2, "e1"))
	assert.NotEqual(t, GlobalID(1, "1_e1"), GlobalID(11, "_e1"))
}

func TestIngestSkipsRelationshipWithoutTarget(t *testing.T) {
	store := NewMemoryStore()
	g := NewIngestor(store, zaptest.NewLogger(t), nil)

	res := meetingExtraction()
	res.Relationships = []extraction.Relationship{
		{Source: "e1", Type: "recommendation", Target: "null"},
		{Source: "e1", Type: "recommendation", Target: ""},
		{Source: "e1", Type: "visits", Target: "e9"},
		{Source: "e1", Type: "meeting", Target: "e2", Description: "met"},
	}

	st, err := g.Ingest(context.Background(), IngestInput{EntryID: 7, UserID: "u1", Extraction: res})
	require.NoError(t, err)
	assert.Equal(t, 1, st.Relationships)
	assert.Equal(t, 3, st.Skipped)
	assert.Equal(t, 1, store.EdgeCount(EdgeRelatedTo))

	snap, err := store.Snapshot(context.Background(), "u1")
	require.NoError(t, err)
	for _, e := range snap.Edges {
		if e.Type == EdgeRelatedTo {
			assert.Equal(t, "7_e1", e.Source)
			assert.Equal(t, "7_e2", e.Target)
			assert.Equal(t, "meeting", e.Props["type"])
		}
	}
}

func TestIngestRewritesRelatedEntities(t *testing.T) {
	store := NewMemoryStore()
	g := NewIngestor(store, zaptest.NewLogger(t), nil)

	dur := 30
	res := meetingExtraction()
	res.Todos = []extraction.Todo{{ID: "t1", Task: "Send Priya the notes", RelatedEntities: []string{"e1", "99_e4"}}}
	res.Events = []extraction.Event{{ID: "ev1", Title: "Coffee", DurationMinutes: &dur, RelatedEntities: []string{"e2"}}}

	st, err := g.Ingest(context.Background(), IngestInput{EntryID: 5, UserID: "u1", Extraction: res})
	require.NoError(t, err)
	assert.Equal(t, 1, st.Todos)
	assert.Equal(t, 1, st.Events)

	todo, ok := store.Node(LabelTodo, "5_t1")
	require.True(t, ok)
	assert.Equal(t, []string{"5_e1", "99_e4"}, todo["related_entities"])

	ev, ok := store.Node(LabelEvent, "5_ev1")
	require.True(t, ok)
	assert.Equal(t, []string{"5_e2"}, ev["related_entities"])
	assert.Equal(t, int64(30), ev["duration_minutes"])

	// 99_e4 does not exist, so only two entity links are made.
	assert.Equal(t, 2, store.EdgeCount(EdgeRelatedEntity))
	assert.Equal(t, 1, store.EdgeCount(EdgeHasTodo))
	assert.Equal(t, 1, store.EdgeCount(EdgeHasEvent))
}

func TestSnapshotIsScopedToUser(t *testing.T) {
	store := NewMemoryStore()
	g := NewIngestor(store, zaptest.NewLogger(t), nil)

	_, err := g.Ingest(context.Background(), IngestInput{EntryID: 1, UserID: "A", Extraction: meetingExtraction()})
	require.NoError(t, err)
	_, err = g.Ingest(context.Background(), IngestInput{EntryID: 2, UserID: "B", Extraction: meetingExtraction()})
	require.NoError(t, err)

	snap, err := store.Snapshot(context.Background(), "A")
	require.NoError(t, err)
	assert.Len(t, snap.Nodes, 3)
	for _, n := range snap.Nodes {
		assert.Equal(t, "A", n.Props["user_id"])
	}
	assert.Len(t, snap.Edges, 3)

	hits, err := store.SearchEntities(context.Background(), "B", []string{"priya"}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "2_e1", hits[0].ID)
}

// flakyStore fails Merge for one node id.
type flakyStore struct {
	*MemoryStore
	failID     string
	failJournal bool
}

func (s *flakyStore) Merge(ctx context.Context, label Label, id string, props Props) error {
	if id == s.failID {
		return errors.New("connection reset")
	}
	return s.MemoryStore.Merge(ctx, label, id, props)
}

func (s *flakyStore) GetOrCreate(ctx context.Context, label Label, id string, props Props) error {
	if s.failJournal {
		return errors.New("connection refused")
	}
	return s.MemoryStore.GetOrCreate(ctx, label, id, props)
}

func TestIngestContinuesPastItemFailure(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(), failID: "3_e1"}
	g := NewIngestor(store, zaptest.NewLogger(t), nil)

	res := meetingExtraction()
	res.Entities = append(res.Entities, extraction.Entity{ID: "e3", Name: "Ravi", Type: "person"})

	st, err := g.Ingest(context.Background(), IngestInput{EntryID: 3, UserID: "u1", Extraction: res})
	require.NoError(t, err)
	assert.Equal(t, 2, st.Entities)
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, 0, st.Relationships)
	assert.Equal(t, 2, store.NodeCount(LabelEntity))
}

func TestIngestFailsWithoutJournalNode(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(), failJournal: true}
	g := NewIngestor(store, zaptest.NewLogger(t), nil)

	_, err := g.Ingest(context.Background(), IngestInput{EntryID: 3, UserID: "u1", Extraction: meetingExtraction()})
	require.Error(t, err)
	assert.Equal(t, 0, store.NodeCount(""))
}

func TestIDMapResolve(t *testing.T) {
	m := NewIDMap(42, []string{"e1", "e2"})
	assert.Equal(t, "42_e1", m.Resolve("e1"))
	assert.Equal(t, "7_e3", m.Resolve("7_e3"))
	assert.Equal(t, []string{"42_e2", "x"}, m.ResolveAll([]string{"e2", "x"}))
}
