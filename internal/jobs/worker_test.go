package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeQueue struct {
	mu      sync.Mutex
	pending []*Job
	done    []uint64
	failed  map[uint64]string
	retries map[uint64]time.Time
	attempt map[uint64]int
}

func newFakeQueue(jobs ...*Job) *fakeQueue {
	return &fakeQueue{
		pending: jobs,
		failed:  map[uint64]string{},
		retries: map[uint64]time.Time{},
		attempt: map[uint64]int{},
	}
}

func (q *fakeQueue) Claim(context.Context, string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, nil
	}
	j := q.pending[0]
	q.pending = q.pending[1:]
	return j, nil
}

func (q *fakeQueue) MarkDone(_ context.Context, id uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.done = append(q.done, id)
	return nil
}

func (q *fakeQueue) MarkFailed(_ context.Context, id uint64, attempts int, msg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed[id] = msg
	q.attempt[id] = attempts
	return nil
}

func (q *fakeQueue) RetryLater(_ context.Context, id uint64, attempts int, runAt time.Time, _ string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retries[id] = runAt
	q.attempt[id] = attempts
	return nil
}

func (q *fakeQueue) doneCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.done)
}

func newTestWorker(t *testing.T, q Queue, reg *Registry) *Worker {
	now := time.Date(2025, 3, 13, 12, 0, 0, 0, time.UTC)
	return &Worker{ID: "w1", Queue: q, Registry: reg, Log: zaptest.NewLogger(t), now: func() time.Time { return now }}
}

func TestProcessOutcomes(t *testing.T) {
	reg := NewRegistry()
	reg.Handle("OK", func(context.Context, *Job) error { return nil })
	reg.Handle("FLAKY", func(context.Context, *Job) error { return errors.New("timeout") })
	reg.Handle("BAD", func(context.Context, *Job) error { return Permanent(errors.New("bad payload")) })
	reg.Handle("PANIC", func(context.Context, *Job) error { panic("boom") })

	q := newFakeQueue()
	w := newTestWorker(t, q, reg)
	ctx := context.Background()

	w.Process(ctx, &Job{ID: 1, Type: "OK", MaxAttempts: 8})
	w.Process(ctx, &Job{ID: 2, Type: "FLAKY", Attempts: 2, MaxAttempts: 8})
	w.Process(ctx, &Job{ID: 3, Type: "BAD", MaxAttempts: 8})
	w.Process(ctx, &Job{ID: 4, Type: "FLAKY", Attempts: 7, MaxAttempts: 8})
	w.Process(ctx, &Job{ID: 5, Type: "NOPE", MaxAttempts: 8})
	w.Process(ctx, &Job{ID: 6, Type: "PANIC", MaxAttempts: 8})

	assert.Equal(t, []uint64{1}, q.done)

	require.Contains(t, q.retries, uint64(2))
	assert.Equal(t, w.now().Add(8*time.Second), q.retries[2])
	assert.Equal(t, 3, q.attempt[2])

	assert.Equal(t, "bad payload", q.failed[3])
	assert.Equal(t, "timeout", q.failed[4])
	assert.Equal(t, 8, q.attempt[4])
	assert.Equal(t, "unknown job type", q.failed[5])
	assert.Contains(t, q.retries, uint64(6))
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, Backoff(1))
	assert.Equal(t, 512*time.Second, Backoff(9))
	assert.Equal(t, 600*time.Second, Backoff(12))
}

func TestPermanent(t *testing.T) {
	base := errors.New("x")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
	assert.NoError(t, Permanent(nil))
}

func TestLastAttempt(t *testing.T) {
	assert.False(t, (&Job{Attempts: 6, MaxAttempts: 8}).LastAttempt())
	assert.True(t, (&Job{Attempts: 7, MaxAttempts: 8}).LastAttempt())
}

func TestPoolDrainsQueue(t *testing.T) {
	var jobs []*Job
	for i := 1; i <= 10; i++ {
		jobs = append(jobs, &Job{ID: uint64(i), Type: "OK", MaxAttempts: 8})
	}
	q := newFakeQueue(jobs...)
	reg := NewRegistry()
	reg.Handle("OK", func(context.Context, *Job) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	p := NewPool(3, q, reg, zaptest.NewLogger(t), nil, 5*time.Millisecond)
	p.Start(ctx)

	require.Eventually(t, func() bool { return q.doneCount() == 10 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	p.Wait()
}

func TestSpecDefaults(t *testing.T) {
	j, err := Spec{UserID: 7, Type: "EXTRACT_ENTRY", Payload: map[string]any{"entry_id": 1}}.job()
	require.NoError(t, err)
	assert.Equal(t, StatusPending, j.Status)
	assert.Equal(t, DefaultMaxAttempts, j.MaxAttempts)
	assert.False(t, j.RunAt.IsZero())
	assert.JSONEq(t, `{"entry_id":1}`, string(j.Payload))
}
