package calendar

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3xCaffeine/total-recall/internal/extraction"
	"github.com/3xCaffeine/total-recall/internal/graph"
	"github.com/3xCaffeine/total-recall/internal/metrics"
)

const DefaultDuration = 60 * time.Minute

// ErrAlreadyExists is returned by a Creator when the event id is taken,
// which for deterministic ids means an earlier delivery already synced it.
var ErrAlreadyExists = errors.New("calendar: event already exists")

type Event struct {
	ID          string
	Title       string
	Start       time.Time
	End         time.Time
	TimeZone    string
	Description string
	Location    string
}

type Creator interface {
	CreateEvent(ctx context.Context, userID uint64, ev Event) error
}

type SyncStats struct {
	Created  int `json:"created"`
	Existing int `json:"existing"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

type Syncer struct {
	Creator Creator
	Log     *zap.Logger
	Metrics *metrics.Collector
}

func NewSyncer(c Creator, log *zap.Logger, m *metrics.Collector) *Syncer {
	return &Syncer{Creator: c, Log: log, Metrics: m}
}

// Sync creates a calendar event for every extracted event flagged for sync.
// A failure on one event is logged and the rest still go through. It only
// returns an error when the user has no linked calendar.
func (s *Syncer) Sync(ctx context.Context, userID, entryID uint64, timezone string, events []extraction.Event) (SyncStats, error) {
	var st SyncStats
	log := s.Log.With(zap.Uint64("entry_id", entryID), zap.Uint64("user_id", userID))

	loc, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		loc, timezone = time.UTC, "UTC"
	}

	for _, e := range events {
		if !e.ShouldSyncCalendar {
			continue
		}

		ev, err := Build(entryID, e, loc)
		if err != nil {
			st.Skipped++
			log.Warn("skipping calendar event", zap.String("title", e.Title), zap.Error(err))
			continue
		}
		ev.TimeZone = timezone

		err = s.Creator.CreateEvent(ctx, userID, ev)
		switch {
		case err == nil:
			st.Created++
			s.Metrics.Ingested("calendar", "event", nil)
		case errors.Is(err, ErrAlreadyExists):
			st.Existing++
		case errors.Is(err, ErrNoAccount):
			return st, err
		default:
			st.Failed++
			s.Metrics.Ingested("calendar", "event", err)
			log.Warn("calendar event failed", zap.String("event_id", ev.ID), zap.String("title", ev.Title), zap.Error(err))
		}
	}

	log.Info("calendar sync complete",
		zap.Int("created", st.Created),
		zap.Int("existing", st.Existing),
		zap.Int("skipped", st.Skipped),
		zap.Int("failed", st.Failed),
	)
	return st, nil
}

// Build turns an extracted event into a calendar event with a deterministic id.
func Build(entryID uint64, e extraction.Event, loc *time.Location) (Event, error) {
	start, err := ParseDatetime(e.Datetime, loc)
	if err != nil {
		return Event{}, err
	}

	dur := DefaultDuration
	if e.DurationMinutes != nil && *e.DurationMinutes > 0 {
		dur = time.Duration(*e.DurationMinutes) * time.Minute
	}

	return Event{
		ID:          EventID(graph.GlobalID(entryID, e.ID)),
		Title:       e.Title,
		Start:       start,
		End:         start.Add(dur),
		Description: fmt.Sprintf("From journal entry #%d", entryID),
		Location:    e.Location,
	}, nil
}

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseDatetime reads an ISO-8601 datetime. Values without an offset are
// taken to be in loc.
func ParseDatetime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("no datetime")
	}
	for _, layout := range datetimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable datetime %q", s)
}

// EventID derives a Google Calendar event id (lowercase hex is within the
// allowed base32hex alphabet) from a graph global id.
func EventID(globalID string) string {
	sum := sha1.Sum([]byte("total-recall:" + globalID))
	return hex.EncodeToString(sum[:])
}
