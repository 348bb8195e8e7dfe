package vector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/3xCaffeine/total-recall/internal/extraction"
	"github.com/3xCaffeine/total-recall/internal/llm"
	"github.com/3xCaffeine/total-recall/internal/metrics"
)

type IndexInput struct {
	EntryID    uint64
	UserID     string
	Content    string
	Title      string
	Extraction *extraction.Result
}

type IndexStats struct {
	Chunks  int  `json:"chunks"`
	Indexed bool `json:"indexed"`
}

type Indexer struct {
	Store        Store
	Embedder     llm.Embedder
	Log          *zap.Logger
	Metrics      *metrics.Collector
	ChunkSize    int
	ChunkOverlap int
}

func NewIndexer(store Store, emb llm.Embedder, log *zap.Logger, m *metrics.Collector) *Indexer {
	return &Indexer{
		Store:        store,
		Embedder:     emb,
		Log:          log,
		Metrics:      m,
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
	}
}

// Index replaces the entry's vectors with freshly embedded chunks of its
// content. The entry itself lives in Postgres, so failures are logged and
// reported through IndexStats rather than returned.
func (x *Indexer) Index(ctx context.Context, in IndexInput) IndexStats {
	log := x.Log.With(zap.Uint64("entry_id", in.EntryID), zap.String("user_id", in.UserID))

	chunks := ChunkText(in.Content, x.ChunkSize, x.ChunkOverlap)
	st := IndexStats{Chunks: len(chunks)}
	docID := DocumentID(in.UserID, in.EntryID)

	if len(chunks) > 0 {
		embs, err := x.Embedder.Embed(ctx, chunks)
		if err == nil && len(embs) != len(chunks) {
			err = fmt.Errorf("embedder returned %d vectors for %d chunks", len(embs), len(chunks))
		}
		if err != nil {
			x.Metrics.Ingested("vector", "chunk", err)
			log.Warn("embedding failed, entry not indexed", zap.Error(err))
			return st
		}

		counts := in.Extraction.Counts()
		records := make([]Record, 0, len(chunks))
		for i, c := range chunks {
			records = append(records, Record{
				ID:         RecordID(in.UserID, in.EntryID, i),
				DocumentID: docID,
				ChunkIndex: i,
				Embedding:  embs[i],
				Text:       c,
				Metadata: map[string]any{
					"user_id":             in.UserID,
					"journal_entry_id":    in.EntryID,
					"document_id":         docID,
					"title":               in.Title,
					"chunk_index":         i,
					"total_chunks":        len(chunks),
					"entities_count":      counts.Entities,
					"relationships_count": counts.Relationships,
					"todos_count":         counts.Todos,
					"events_count":        counts.Events,
					"text":                c,
				},
			})
		}

		if err := x.Store.Upsert(ctx, records); err != nil {
			x.Metrics.Ingested("vector", "chunk", err)
			log.Warn("vector upsert failed, entry not indexed", zap.Error(err))
			return st
		}
		for range records {
			x.Metrics.Ingested("vector", "chunk", nil)
		}
	}

	if err := x.Store.Prune(ctx, docID, len(chunks)); err != nil {
		log.Warn("pruning stale chunks failed", zap.Error(err))
	}

	st.Indexed = true
	log.Info("vector index complete", zap.Int("chunks", len(chunks)))
	return st
}
