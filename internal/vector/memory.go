package vector

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store for tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]Record{}}
}

func (s *MemoryStore) Upsert(_ context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records[r.ID] = r
	}
	return nil
}

func (s *MemoryStore) DenseSearch(_ context.Context, embedding []float32, topK int) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Match, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, Match{
			ID:         r.ID,
			DocumentID: r.DocumentID,
			Text:       r.Text,
			Score:      cosine(embedding, r.Embedding),
			Metadata:   r.Metadata,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ID < out[j].ID
		}
		return out[i].Score > out[j].Score
	})
	if topK >= 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (s *MemoryStore) Prune(_ context.Context, documentID string, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.records {
		if r.DocumentID == documentID && r.ChunkIndex >= keep {
			delete(s.records, id)
		}
	}
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	return r, ok
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
