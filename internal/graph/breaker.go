package graph

import (
	"context"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/3xCaffeine/total-recall/internal/breaker"
)

// BreakerStore fails fast while the backing graph database is unreachable.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerStore(next Store, log *zap.Logger) *BreakerStore {
	return &BreakerStore{
		next: next,
		cb:   breaker.New(breaker.DefaultConfig("graph"), log, ErrNodeNotFound),
	}
}

func (s *BreakerStore) GetOrCreate(ctx context.Context, label Label, id string, props Props) error {
	return breaker.Run(s.cb, func() error { return s.next.GetOrCreate(ctx, label, id, props) })
}

func (s *BreakerStore) Merge(ctx context.Context, label Label, id string, props Props) error {
	return breaker.Run(s.cb, func() error { return s.next.Merge(ctx, label, id, props) })
}

func (s *BreakerStore) Exists(ctx context.Context, label Label, id string) (bool, error) {
	return breaker.Do(s.cb, func() (bool, error) { return s.next.Exists(ctx, label, id) })
}

func (s *BreakerStore) Connect(ctx context.Context, e Edge) error {
	return breaker.Run(s.cb, func() error { return s.next.Connect(ctx, e) })
}

func (s *BreakerStore) Snapshot(ctx context.Context, userID string) (*Snapshot, error) {
	return breaker.Do(s.cb, func() (*Snapshot, error) { return s.next.Snapshot(ctx, userID) })
}

func (s *BreakerStore) SearchEntities(ctx context.Context, userID string, terms []string, limit int) ([]Node, error) {
	return breaker.Do(s.cb, func() ([]Node, error) { return s.next.SearchEntities(ctx, userID, terms, limit) })
}
