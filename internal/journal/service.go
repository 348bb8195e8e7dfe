package journal

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/3xCaffeine/total-recall/internal/jobs"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict means an idempotency key was already used for another entry.
	ErrConflict = errors.New("idempotency key reused")
)

const (
	maxTitleLen   = 200
	maxContentLen = 50000
)

type Service struct {
	DB   *gorm.DB
	Jobs *jobs.Repo
	Log  *zap.Logger
}

func NewService(db *gorm.DB, log *zap.Logger) *Service {
	return &Service{DB: db, Jobs: &jobs.Repo{DB: db}, Log: log}
}

type CreateInput struct {
	Title   string
	Content string
	IdemKey *string
}

type UpdateInput struct {
	Title   *string
	Content *string
	IdemKey *string
}

// Create stores the entry as pending and enqueues its extraction in the same
// transaction. A repeated idempotency key returns the entry created first and
// created=false.
func (s *Service) Create(ctx context.Context, userID uint64, in CreateInput) (entry *Entry, created bool, err error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	if err := validateText(in.Title, in.Content); err != nil {
		return nil, false, err
	}

	if in.IdemKey != nil {
		if e, err := s.byIdempotencyKey(ctx, userID, *in.IdemKey); err == nil {
			return e, false, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
	}

	e := Entry{
		UserID:  userID,
		Title:   in.Title,
		Content: in.Content,
		Status:  StatusPending,
		Tags:    pq.StringArray(ExtractTags(in.Content)),
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&e).Error; err != nil {
			return err
		}

		ev, err := insertEvent(tx, e.ID, userID, EventCreated, map[string]any{
			"title":   e.Title,
			"content": e.Content,
		}, in.IdemKey)
		if err != nil {
			return err
		}

		e.Version = ev.ID
		if err := tx.Model(&Entry{}).Where("id = ?", e.ID).Update("version", e.Version).Error; err != nil {
			return err
		}

		return s.enqueueExtraction(ctx, tx, &e)
	})
	if err != nil {
		return nil, false, err
	}

	s.Log.Info("journal entry created", zap.Uint64("entry_id", e.ID), zap.Uint64("user_id", userID))
	return &e, true, nil
}

// Update applies the changes, resets the entry to pending and enqueues a new
// extraction. An update that changes nothing is a no-op.
func (s *Service) Update(ctx context.Context, userID, entryID uint64, in UpdateInput) (*Entry, error) {
	if in.IdemKey != nil {
		prior, err := replayUpdate(entryID)(s.byIdempotencyKey(ctx, userID, *in.IdemKey))
		if err != nil || prior != nil {
			return prior, err
		}
	}

	var out Entry

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var e Entry
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND user_id = ?", entryID, userID).
			First(&e).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		payload := map[string]any{}
		if in.Title != nil {
			t := strings.TrimSpace(*in.Title)
			if t != e.Title {
				e.Title = t
				payload["title"] = t
			}
		}
		if in.Content != nil {
			c := strings.TrimSpace(*in.Content)
			if c != e.Content {
				e.Content = c
				payload["content"] = c
			}
		}
		if err := validateText(e.Title, e.Content); err != nil {
			return err
		}
		if len(payload) == 0 {
			out = e
			return nil
		}

		ev, err := insertEvent(tx, e.ID, userID, EventUpdated, payload, in.IdemKey)
		if err != nil {
			return err
		}

		e.Tags = pq.StringArray(ExtractTags(e.Content))
		e.Version = ev.ID
		e.Status = StatusPending
		e.LastError = nil
		e.UpdatedAt = time.Now()
		if err := tx.Save(&e).Error; err != nil {
			return err
		}

		out = e
		return s.enqueueExtraction(ctx, tx, &e)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) enqueueExtraction(ctx context.Context, tx *gorm.DB, e *Entry) error {
	return s.Jobs.WithTx(tx).Enqueue(ctx, jobs.Spec{
		UserID:  e.UserID,
		Type:    jobs.TypeExtractEntry,
		Payload: jobs.EntryPayload{EntryID: e.ID, Version: e.Version},
	})
}

func (s *Service) Get(ctx context.Context, userID, entryID uint64) (*Entry, error) {
	var e Entry
	err := s.DB.WithContext(ctx).Where("id = ? AND user_id = ?", entryID, userID).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Load reads an entry regardless of owner. Used by background jobs.
func (s *Service) Load(ctx context.Context, entryID uint64) (*Entry, error) {
	var e Entry
	err := s.DB.WithContext(ctx).First(&e, entryID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

type ListQuery struct {
	Status string
	Tag    string
	Q      string
	Limit  int
}

func (s *Service) List(ctx context.Context, userID uint64, lq ListQuery) ([]Entry, error) {
	q := s.DB.WithContext(ctx).Model(&Entry{}).Where("user_id = ?", userID)

	if lq.Status != "" {
		q = q.Where("status = ?", lq.Status)
	}
	if lq.Tag != "" {
		q = q.Where("? = any(tags)", strings.ToLower(lq.Tag))
	}
	if lq.Q != "" {
		q = q.Where("(content ILIKE ? OR title ILIKE ?)", "%"+lq.Q+"%", "%"+lq.Q+"%")
	}

	limit := lq.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var rows []Entry
	if err := q.Order("updated_at desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Service) Timeline(ctx context.Context, userID, entryID uint64) ([]EntryEvent, error) {
	if _, err := s.Get(ctx, userID, entryID); err != nil {
		return nil, err
	}
	var evs []EntryEvent
	err := s.DB.WithContext(ctx).
		Where("entry_id = ? AND user_id = ?", entryID, userID).
		Order("id asc").
		Find(&evs).Error
	return evs, err
}

type TagCount struct {
	Tag   string `json:"tag"`
	Count int64  `json:"count"`
}

func (s *Service) Tags(ctx context.Context, userID uint64, prefix string, limit int) ([]TagCount, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	prefix = strings.ToLower(strings.TrimSpace(prefix))

	var out []TagCount
	err := s.DB.WithContext(ctx).Raw(`
		select tag, count(*) as count
		from (
			select unnest(tags) as tag
			from journal_entries
			where user_id = ?
		) t
		where (? = '' or tag like ? || '%')
		group by tag
		order by count desc, tag asc
		limit ?
	`, userID, prefix, prefix, limit).Scan(&out).Error
	return out, err
}

// SetStatus moves the entry to status if it is still at version. It reports
// false when a newer write has superseded the version.
func (s *Service) SetStatus(ctx context.Context, entryID, version uint64, status string, cause error) (bool, error) {
	if !validStatus(status) {
		return false, ErrInvalidInput
	}

	updated := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var e Entry
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&e, entryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if e.Version != version {
			return nil
		}
		if e.Status == status && cause == nil {
			updated = true
			return nil
		}

		changes := map[string]any{"status": status, "last_error": nil}
		payload := map[string]any{"from": e.Status, "to": status}
		if cause != nil {
			changes["last_error"] = cause.Error()
			payload["error"] = cause.Error()
		}
		if status == StatusProcessed {
			changes["processed_at"] = time.Now()
		}

		if err := tx.Model(&Entry{}).Where("id = ?", entryID).Updates(changes).Error; err != nil {
			return err
		}
		if _, err := insertEvent(tx, entryID, e.UserID, EventStatusChanged, payload, nil); err != nil {
			return err
		}
		updated = true
		return nil
	})
	return updated, err
}

func (s *Service) byIdempotencyKey(ctx context.Context, userID uint64, key string) (*Entry, error) {
	var ev EntryEvent
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, userID, ev.EntryID)
}

// replayUpdate resolves an idempotency-key lookup for an update of entryID.
// A key already used on the same entry replays it; on any other entry it is a
// conflict. A nil entry and nil error mean the update should go ahead.
func replayUpdate(entryID uint64) func(*Entry, error) (*Entry, error) {
	return func(prior *Entry, err error) (*Entry, error) {
		switch {
		case errors.Is(err, ErrNotFound):
			return nil, nil
		case err != nil:
			return nil, err
		case prior.ID == entryID:
			return prior, nil
		default:
			return nil, ErrConflict
		}
	}
}

func insertEvent(tx *gorm.DB, entryID, userID uint64, typ string, payload map[string]any, idem *string) (*EntryEvent, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	ev := EntryEvent{
		EntryID:        entryID,
		UserID:         userID,
		Type:           typ,
		Payload:        json.RawMessage(b),
		IdempotencyKey: idem,
		CreatedAt:      time.Now(),
	}
	if err := tx.Create(&ev).Error; err != nil {
		return nil, err
	}
	return &ev, nil
}

func validateText(title, content string) error {
	if content == "" || len(content) > maxContentLen || len(title) > maxTitleLen {
		return ErrInvalidInput
	}
	return nil
}

func validStatus(s string) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusProcessed, StatusFailed:
		return true
	}
	return false
}
