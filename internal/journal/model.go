package journal

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusFailed     = "failed"
)

const (
	EventCreated       = "CREATED"
	EventUpdated       = "UPDATED"
	EventStatusChanged = "STATUS_CHANGED"
)

// Entry is the current state of a journal entry. Status is only moved by the
// extraction pipeline.
type Entry struct {
	ID      uint64 `gorm:"primaryKey"`
	UserID  uint64 `gorm:"index;not null"`
	Title   string `gorm:"type:text;not null;default:''"`
	Content string `gorm:"type:text;not null"`

	Status    string  `gorm:"index;not null;default:'pending'"`
	LastError *string `gorm:"type:text"`

	Tags pq.StringArray `gorm:"type:text[];not null;default:'{}'"`

	// Version is the id of the last CREATED/UPDATED event.
	Version     uint64     `gorm:"not null;default:0"`
	ProcessedAt *time.Time `gorm:"type:timestamptz"`
	CreatedAt   time.Time  `gorm:"not null;default:now()"`
	UpdatedAt   time.Time  `gorm:"index;not null;default:now()"`
}

func (Entry) TableName() string { return "journal_entries" }

// EntryEvent is append-only.
// IdempotencyKey prevents duplicate writes per user (optional header).
type EntryEvent struct {
	ID             uint64          `gorm:"primaryKey"`
	EntryID        uint64          `gorm:"index;not null"`
	UserID         uint64          `gorm:"index;not null"`
	Type           string          `gorm:"not null"`
	Payload        json.RawMessage `gorm:"type:jsonb;not null;default:'{}'::jsonb"`
	IdempotencyKey *string         `gorm:"index"`
	CreatedAt      time.Time       `gorm:"not null;default:now()"`
}

func (EntryEvent) TableName() string { return "entry_events" }
