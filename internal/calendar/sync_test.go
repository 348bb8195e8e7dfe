package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/3xCaffeine/total-recall/internal/extraction"
)

type fakeCreator struct {
	created []Event
	failOn  string
	seen    map[string]bool
	noAcct  bool
}

func (f *fakeCreator) CreateEvent(_ context.Context, _ uint64, ev Event) error {
	if f.noAcct {
		return ErrNoAccount
	}
	if ev.Title == f.failOn {
		return errors.New("rate limited")
	}
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[ev.ID] {
		return ErrAlreadyExists
	}
	f.seen[ev.ID] = true
	f.created = append(f.created, ev)
	return nil
}

func intp(n int) *int { return &n }

func sampleEvents() []extraction.Event {
	return []extraction.Event{
		{ID: "ev1", Title: "Coffee with Priya", Datetime: "2025-03-14T10:00:00", ShouldSyncCalendar: true},
		{ID: "ev2", Title: "Standup", Datetime: "2025-03-14T09:00:00+05:30", DurationMinutes: intp(15), ShouldSyncCalendar: true},
		{ID: "ev3", Title: "Birthday", Datetime: "2025-03-20T18:00:00", ShouldSyncCalendar: false},
		{ID: "ev4", Title: "Someday", Datetime: "later", ShouldSyncCalendar: true},
		{ID: "ev5", Title: "Dentist", Datetime: "2025-03-15T11:00:00", ShouldSyncCalendar: true},
	}
}

func TestSyncFiltersAndContinues(t *testing.T) {
	c := &fakeCreator{failOn: "Standup"}
	s := NewSyncer(c, zaptest.NewLogger(t), nil)

	st, err := s.Sync(context.Background(), 7, 42, "Asia/Kolkata", sampleEvents())
	require.NoError(t, err)
	assert.Equal(t, SyncStats{Created: 2, Skipped: 1, Failed: 1}, st)

	require.Len(t, c.created, 2)
	coffee := c.created[0]
	assert.Equal(t, "Coffee with Priya", coffee.Title)
	assert.Equal(t, "From journal entry #42", coffee.Description)
	assert.Equal(t, "Asia/Kolkata", coffee.TimeZone)
	assert.Equal(t, 60*time.Minute, coffee.End.Sub(coffee.Start))
	assert.Equal(t, "2025-03-14T10:00:00+05:30", coffee.Start.Format(time.RFC3339))
	assert.Equal(t, "Dentist", c.created[1].Title)
}

func TestSyncIsIdempotent(t *testing.T) {
	c := &fakeCreator{}
	s := NewSyncer(c, zaptest.NewLogger(t), nil)

	_, err := s.Sync(context.Background(), 7, 42, "UTC", sampleEvents())
	require.NoError(t, err)
	st, err := s.Sync(context.Background(), 7, 42, "UTC", sampleEvents())
	require.NoError(t, err)

	assert.Equal(t, 0, st.Created)
	assert.Equal(t, 3, st.Existing)
	assert.Len(t, c.created, 3)
}

func TestSyncWithoutAccount(t *testing.T) {
	s := NewSyncer(&fakeCreator{noAcct: true}, zaptest.NewLogger(t), nil)
	_, err := s.Sync(context.Background(), 7, 42, "UTC", sampleEvents())
	assert.ErrorIs(t, err, ErrNoAccount)
}

func TestBuildUsesDuration(t *testing.T) {
	ev, err := Build(42, extraction.Event{ID: "ev2", Title: "Standup", Datetime: "2025-03-14T09:00:00Z", DurationMinutes: intp(15)}, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, ev.End.Sub(ev.Start))
	assert.Equal(t, EventID("42_ev2"), ev.ID)
	assert.Len(t, ev.ID, 40)
	assert.NotEqual(t, EventID("42_ev2"), EventID("43_ev2"))
}
