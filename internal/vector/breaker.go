package vector

import (
	"context"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/3xCaffeine/total-recall/internal/breaker"
)

// BreakerStore fails fast while the vector database is unreachable.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerStore(next Store, log *zap.Logger) *BreakerStore {
	return &BreakerStore{next: next, cb: breaker.New(breaker.DefaultConfig("vector"), log)}
}

func (s *BreakerStore) Upsert(ctx context.Context, records []Record) error {
	return breaker.Run(s.cb, func() error { return s.next.Upsert(ctx, records) })
}

func (s *BreakerStore) DenseSearch(ctx context.Context, embedding []float32, topK int) ([]Match, error) {
	return breaker.Do(s.cb, func() ([]Match, error) { return s.next.DenseSearch(ctx, embedding, topK) })
}

func (s *BreakerStore) Prune(ctx context.Context, documentID string, keep int) error {
	return breaker.Run(s.cb, func() error { return s.next.Prune(ctx, documentID, keep) })
}
