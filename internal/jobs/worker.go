package jobs

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/3xCaffeine/total-recall/internal/metrics"
)

// Queue is the part of Repo the worker drives.
type Queue interface {
	Claim(ctx context.Context, workerID string) (*Job, error)
	MarkDone(ctx context.Context, id uint64) error
	MarkFailed(ctx context.Context, id uint64, attempts int, errMsg string) error
	RetryLater(ctx context.Context, id uint64, attempts int, runAt time.Time, errMsg string) error
}

// Handler runs one job. Returning nil marks it done, a Permanent error
// marks it failed, and any other error schedules a retry with backoff.
type Handler func(ctx context.Context, job *Job) error

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the job is failed without further retries.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Backoff is the delay before retry number attempts: 2^attempts seconds,
// capped at ten minutes.
func Backoff(attempts int) time.Duration {
	sec := math.Min(math.Pow(2, float64(attempts)), 600)
	return time.Duration(sec) * time.Second
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

func (r *Registry) Handle(jobType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = h
}

// Types lists the registered job types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) lookup(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

type Worker struct {
	ID           string
	Queue        Queue
	Registry     *Registry
	Log          *zap.Logger
	Metrics      *metrics.Collector
	PollInterval time.Duration
	// JobTimeout bounds a single handler run.
	JobTimeout time.Duration

	now func() time.Time
}

// Run polls until ctx is cancelled. A job already claimed is finished
// before Run returns.
func (w *Worker) Run(ctx context.Context) {
	interval := w.PollInterval
	if interval <= 0 {
		interval = 800 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// drain: keep claiming while there is work
			for ctx.Err() == nil {
				job, err := w.Queue.Claim(ctx, w.ID)
				if err != nil {
					if ctx.Err() == nil {
						w.Log.Warn("worker claim error", zap.String("worker_id", w.ID), zap.Error(err))
					}
					break
				}
				if job == nil {
					break
				}
				w.Process(context.WithoutCancel(ctx), job)
			}
		}
	}
}

// Process runs the job's handler and records the outcome on the queue.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.Log.With(
		zap.String("worker_id", w.ID),
		zap.Uint64("job_id", job.ID),
		zap.String("job_type", job.Type),
		zap.Int("attempt", job.Attempts+1),
	)

	h, ok := w.Registry.lookup(job.Type)
	if !ok {
		log.Error("unknown job type")
		_ = w.Queue.MarkFailed(ctx, job.ID, job.Attempts+1, "unknown job type")
		w.Metrics.ObserveJob(job.Type, "unknown", 0)
		return
	}

	if w.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.JobTimeout)
		defer cancel()
	}

	start := w.clock()
	err := runHandler(ctx, h, job)
	took := w.clock().Sub(start)

	switch {
	case err == nil:
		if err := w.Queue.MarkDone(ctx, job.ID); err != nil {
			log.Error("mark done failed", zap.Error(err))
		}
		w.Metrics.ObserveJob(job.Type, "done", took)
		log.Debug("job done", zap.Duration("took", took))

	case IsPermanent(err):
		_ = w.Queue.MarkFailed(ctx, job.ID, job.Attempts+1, err.Error())
		w.Metrics.ObserveJob(job.Type, "failed", took)
		log.Warn("job failed permanently", zap.Error(err))

	default:
		w.retry(ctx, log, job, err)
		w.Metrics.ObserveJob(job.Type, "retry", took)
	}
}

func (w *Worker) retry(ctx context.Context, log *zap.Logger, job *Job, cause error) {
	attempts := job.Attempts + 1
	if attempts >= job.MaxAttempts {
		_ = w.Queue.MarkFailed(ctx, job.ID, attempts, cause.Error())
		log.Warn("job failed after max attempts", zap.Error(cause))
		return
	}

	next := w.clock().Add(Backoff(attempts))
	_ = w.Queue.RetryLater(ctx, job.ID, attempts, next, cause.Error())
	log.Info("job scheduled for retry", zap.Time("run_at", next), zap.Error(cause))
}

func (w *Worker) clock() time.Time {
	if w.now != nil {
		return w.now()
	}
	return time.Now()
}

func runHandler(ctx context.Context, h Handler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, job)
}

// Pool runs n workers over the same queue and registry.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
}

func NewPool(n int, q Queue, reg *Registry, log *zap.Logger, m *metrics.Collector, poll time.Duration) *Pool {
	if n <= 0 {
		n = 1
	}
	p := &Pool{}
	for i := 0; i < n; i++ {
		p.workers = append(p.workers, &Worker{
			ID:           fmt.Sprintf("worker-%d-%s", i+1, uuid.NewString()[:8]),
			Queue:        q,
			Registry:     reg,
			Log:          log,
			Metrics:      m,
			PollInterval: poll,
			JobTimeout:   5 * time.Minute,
		})
	}
	return p
}

func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Wait blocks until every worker has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}
