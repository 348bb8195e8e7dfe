package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Spec describes a job to enqueue. Payload is JSON-encoded.
type Spec struct {
	UserID      uint64
	Type        string
	Payload     any
	RunAt       time.Time
	MaxAttempts int
}

type Repo struct {
	DB *gorm.DB
}

// WithTx returns a Repo that enqueues inside tx, so a job only exists if
// the write that produced it commits.
func (r *Repo) WithTx(tx *gorm.DB) *Repo {
	return &Repo{DB: tx}
}

func (r *Repo) Enqueue(ctx context.Context, spec Spec) error {
	return r.EnqueueBatch(ctx, []Spec{spec})
}

func (r *Repo) EnqueueBatch(ctx context.Context, specs []Spec) error {
	if len(specs) == 0 {
		return nil
	}
	rows := make([]Job, 0, len(specs))
	for _, s := range specs {
		j, err := s.job()
		if err != nil {
			return err
		}
		rows = append(rows, j)
	}
	return r.DB.WithContext(ctx).Create(&rows).Error
}

func (s Spec) job() (Job, error) {
	payload, err := json.Marshal(s.Payload)
	if err != nil {
		return Job{}, fmt.Errorf("encode %s payload: %w", s.Type, err)
	}
	runAt := s.RunAt
	if runAt.IsZero() {
		runAt = time.Now()
	}
	max := s.MaxAttempts
	if max <= 0 {
		max = DefaultMaxAttempts
	}
	return Job{
		UserID:      s.UserID,
		Type:        s.Type,
		Payload:     payload,
		RunAt:       runAt,
		Status:      StatusPending,
		MaxAttempts: max,
	}, nil
}

// Claim one due job atomically using SKIP LOCKED.
// Works on Postgres.
func (r *Repo) Claim(ctx context.Context, workerID string) (*Job, error) {
	var job Job
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// requeue jobs whose worker died mid-run
		if err := tx.Exec(`
update jobs
set status='PENDING', locked_by=null, locked_at=null, updated_at=now()
where status='RUNNING' and locked_at is not null and locked_at < now() - interval '10 minutes'
`).Error; err != nil {
			return err
		}

		// FOR UPDATE SKIP LOCKED ensures no double-claim
		q := tx.Raw(`
with cte as (
  select id
  from jobs
  where status='PENDING' and run_at <= now()
  order by run_at asc
  for update skip locked
  limit 1
)
update jobs
set status='RUNNING', locked_by=?, locked_at=now(), updated_at=now()
where id in (select id from cte)
returning *;
`, workerID)

		return q.Scan(&job).Error
	})
	if err != nil {
		return nil, err
	}
	if job.ID == 0 {
		return nil, nil
	}
	return &job, nil
}

func (r *Repo) MarkDone(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Exec(`update jobs set status='DONE', locked_by=null, locked_at=null, updated_at=now() where id=?`, id).Error
}

func (r *Repo) MarkFailed(ctx context.Context, id uint64, attempts int, errMsg string) error {
	return r.DB.WithContext(ctx).Exec(`
update jobs
set status='FAILED', attempts=?, last_error=?, locked_by=null, locked_at=null, updated_at=now()
where id=?`, attempts, errMsg, id).Error
}

func (r *Repo) RetryLater(ctx context.Context, id uint64, attempts int, runAt time.Time, errMsg string) error {
	return r.DB.WithContext(ctx).Exec(`
update jobs
set status='PENDING',
    attempts=?,
    run_at=?,
    locked_by=null,
    locked_at=null,
    last_error=?,
    updated_at=now()
where id=?`, attempts, runAt, errMsg, id).Error
}

type Stat struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// Stats counts the user's jobs by type and status.
func (r *Repo) Stats(ctx context.Context, userID uint64) ([]Stat, error) {
	var out []Stat
	err := r.DB.WithContext(ctx).
		Model(&Job{}).
		Select("type, status, count(*) as count").
		Where("user_id = ?", userID).
		Group("type, status").
		Order("type, status").
		Scan(&out).Error
	return out, err
}
