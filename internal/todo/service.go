package todo

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/3xCaffeine/total-recall/internal/extraction"
	"github.com/3xCaffeine/total-recall/internal/graph"
)

var ErrNotFound = errors.New("not found")

type Service struct {
	DB  *gorm.DB
	Log *zap.Logger
}

func NewService(db *gorm.DB, log *zap.Logger) *Service {
	return &Service{DB: db, Log: log}
}

// Materialize upserts the entry's extracted todos. Completion state set by
// the user is never overwritten.
func (s *Service) Materialize(ctx context.Context, userID, entryID uint64, loc *time.Location, todos []extraction.Todo) (int, error) {
	rows := Build(userID, entryID, loc, todos)
	if len(rows) == 0 {
		return 0, nil
	}

	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "source_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"task", "priority", "due_at", "due_raw", "updated_at"}),
		}).
		Create(&rows).Error
	if err != nil {
		return 0, err
	}

	s.Log.Info("todos materialized", zap.Uint64("entry_id", entryID), zap.Int("count", len(rows)))
	return len(rows), nil
}

// Build maps extracted todos to rows. Todos without a task are dropped.
func Build(userID, entryID uint64, loc *time.Location, todos []extraction.Todo) []Todo {
	if loc == nil {
		loc = time.UTC
	}
	now := time.Now()
	out := make([]Todo, 0, len(todos))
	for _, t := range todos {
		task := strings.TrimSpace(t.Task)
		if task == "" {
			continue
		}
		out = append(out, Todo{
			UserID:    userID,
			SourceKey: graph.GlobalID(entryID, t.ID),
			EntryID:   entryID,
			Task:      task,
			Priority:  NormalizePriority(t.Priority),
			DueAt:     ParseDue(t.Due, loc),
			DueRaw:    strings.TrimSpace(t.Due),
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return out
}

func NormalizePriority(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "must_do", "must-do", "high", "urgent", "critical", "p0", "p1":
		return PriorityHigh
	case "nice_to_have", "nice-to-have", "low", "p3", "p4":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

var dueLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDue accepts ISO-8601 dates and datetimes. Values without an offset
// are read in loc. Anything else yields nil.
func ParseDue(s string, loc *time.Location) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range dueLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return &t
		}
	}
	return nil
}

type ListQuery struct {
	Completed *bool
	Limit     int
}

func (s *Service) List(ctx context.Context, userID uint64, lq ListQuery) ([]Todo, error) {
	q := s.DB.WithContext(ctx).Where("user_id = ?", userID)
	if lq.Completed != nil {
		q = q.Where("completed = ?", *lq.Completed)
	}
	limit := lq.Limit
	if limit <= 0 || limit > 200 {
		limit = 100
	}

	var rows []Todo
	err := q.Order("completed asc, due_at asc nulls last, id desc").Limit(limit).Find(&rows).Error
	return rows, err
}

func (s *Service) SetCompleted(ctx context.Context, userID, id uint64, completed bool) (*Todo, error) {
	var completedAt *time.Time
	if completed {
		now := time.Now()
		completedAt = &now
	}

	res := s.DB.WithContext(ctx).Model(&Todo{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{
			"completed":    completed,
			"completed_at": completedAt,
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	var t Todo
	if err := s.DB.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}
