package todo

import "time"

const (
	PriorityLow    = "LOW"
	PriorityMedium = "MEDIUM"
	PriorityHigh   = "HIGH"
)

// Todo is a task extracted from a journal entry. SourceKey is the graph
// global id of the extracted todo, so redelivered jobs update in place.
type Todo struct {
	ID        uint64 `gorm:"primaryKey"`
	UserID    uint64 `gorm:"not null;uniqueIndex:uq_todos_user_source"`
	SourceKey string `gorm:"type:text;not null;uniqueIndex:uq_todos_user_source"`
	EntryID   uint64 `gorm:"index;not null"`

	Task     string     `gorm:"type:text;not null"`
	Priority string     `gorm:"type:text;not null;default:'MEDIUM'"`
	DueAt    *time.Time `gorm:"type:timestamptz"`
	DueRaw   string     `gorm:"type:text;not null;default:''"`

	Completed   bool       `gorm:"not null;default:false"`
	CompletedAt *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}
