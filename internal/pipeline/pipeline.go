// Package pipeline runs the background side of a journal write: extraction
// followed by the independent graph, vector, todo and calendar jobs.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/3xCaffeine/total-recall/internal/calendar"
	"github.com/3xCaffeine/total-recall/internal/extraction"
	"github.com/3xCaffeine/total-recall/internal/graph"
	"github.com/3xCaffeine/total-recall/internal/jobs"
	"github.com/3xCaffeine/total-recall/internal/journal"
	"github.com/3xCaffeine/total-recall/internal/vector"
)

// FanOutPayload carries the extraction to each downstream job.
type FanOutPayload struct {
	EntryID    uint64             `json:"entry_id"`
	Version    uint64             `json:"version"`
	Extraction *extraction.Result `json:"extraction"`
}

type Entries interface {
	Load(ctx context.Context, entryID uint64) (*journal.Entry, error)
	SetStatus(ctx context.Context, entryID, version uint64, status string, cause error) (bool, error)
}

type Users interface {
	Timezone(ctx context.Context, userID uint64) string
}

type Enqueuer interface {
	EnqueueBatch(ctx context.Context, specs []jobs.Spec) error
}

type Extractor interface {
	Extract(ctx context.Context, in extraction.Input) (*extraction.Result, error)
}

type GraphIngestor interface {
	Ingest(ctx context.Context, in graph.IngestInput) (graph.Stats, error)
}

type VectorIndexer interface {
	Index(ctx context.Context, in vector.IndexInput) vector.IndexStats
}

type TodoMaterializer interface {
	Materialize(ctx context.Context, userID, entryID uint64, loc *time.Location, todos []extraction.Todo) (int, error)
}

type CalendarSyncer interface {
	Sync(ctx context.Context, userID, entryID uint64, timezone string, events []extraction.Event) (calendar.SyncStats, error)
}

type Pipeline struct {
	Entries   Entries
	Users     Users
	Jobs      Enqueuer
	Extractor Extractor
	Graph     GraphIngestor
	Vectors   VectorIndexer
	Todos     TodoMaterializer
	Calendar  CalendarSyncer
	Log       *zap.Logger
}

// Register binds every pipeline job type to its handler.
func (p *Pipeline) Register(reg *jobs.Registry) {
	reg.Handle(jobs.TypeExtractEntry, p.HandleExtract)
	reg.Handle(jobs.TypeIngestGraph, p.HandleGraph)
	reg.Handle(jobs.TypeIngestVectors, p.HandleVectors)
	reg.Handle(jobs.TypeMaterializeTodos, p.HandleTodos)
	reg.Handle(jobs.TypeSyncCalendar, p.HandleCalendar)
}

// HandleExtract moves the entry through processing, extracts it and
// enqueues the fan-out. A parse failure marks the entry failed and stops
// there; other failures are retried, and the entry is only marked failed
// once the last attempt fails.
func (p *Pipeline) HandleExtract(ctx context.Context, job *jobs.Job) error {
	var pl jobs.EntryPayload
	if err := json.Unmarshal(job.Payload, &pl); err != nil {
		return jobs.Permanent(fmt.Errorf("bad payload: %w", err))
	}
	log := p.Log.With(zap.Uint64("entry_id", pl.EntryID), zap.Uint64("job_id", job.ID))

	entry, ok, err := p.current(ctx, pl.EntryID, pl.Version)
	if err != nil || !ok {
		return err
	}

	if ok, err := p.Entries.SetStatus(ctx, entry.ID, pl.Version, journal.StatusProcessing, nil); err != nil {
		return err
	} else if !ok {
		log.Info("entry superseded, skipping extraction")
		return nil
	}

	tz := p.Users.Timezone(ctx, entry.UserID)
	res, err := p.Extractor.Extract(ctx, extraction.Input{
		Content:       entry.Content,
		ReferenceTime: entry.UpdatedAt,
		Timezone:      tz,
	})

	var perr *extraction.ParseError
	switch {
	case errors.As(err, &perr):
		p.markFailed(ctx, log, entry.ID, pl.Version, err)
		return jobs.Permanent(err)
	case err != nil:
		if job.LastAttempt() {
			p.markFailed(ctx, log, entry.ID, pl.Version, err)
		}
		return err
	}

	fan := FanOutPayload{EntryID: entry.ID, Version: pl.Version, Extraction: res}
	specs := make([]jobs.Spec, 0, len(jobs.FanOutTypes))
	for _, typ := range jobs.FanOutTypes {
		specs = append(specs, jobs.Spec{UserID: entry.UserID, Type: typ, Payload: fan})
	}
	if err := p.Jobs.EnqueueBatch(ctx, specs); err != nil {
		if job.LastAttempt() {
			p.markFailed(ctx, log, entry.ID, pl.Version, err)
		}
		return fmt.Errorf("enqueue fan-out: %w", err)
	}

	if _, err := p.Entries.SetStatus(ctx, entry.ID, pl.Version, journal.StatusProcessed, nil); err != nil {
		log.Warn("marking entry processed failed", zap.Error(err))
	}

	c := res.Counts()
	log.Info("entry extracted",
		zap.Int("entities", c.Entities),
		zap.Int("relationships", c.Relationships),
		zap.Int("todos", c.Todos),
		zap.Int("events", c.Events),
	)
	return nil
}

func (p *Pipeline) HandleGraph(ctx context.Context, job *jobs.Job) error {
	pl, entry, err := p.fanOut(ctx, job)
	if err != nil || entry == nil {
		return err
	}
	_, err = p.Graph.Ingest(ctx, graph.IngestInput{
		EntryID:    entry.ID,
		UserID:     userKey(entry.UserID),
		Content:    entry.Content,
		Title:      entry.Title,
		Extraction: pl.Extraction,
	})
	return err
}

func (p *Pipeline) HandleVectors(ctx context.Context, job *jobs.Job) error {
	pl, entry, err := p.fanOut(ctx, job)
	if err != nil || entry == nil {
		return err
	}
	p.Vectors.Index(ctx, vector.IndexInput{
		EntryID:    entry.ID,
		UserID:     userKey(entry.UserID),
		Content:    entry.Content,
		Title:      entry.Title,
		Extraction: pl.Extraction,
	})
	return nil
}

func (p *Pipeline) HandleTodos(ctx context.Context, job *jobs.Job) error {
	pl, entry, err := p.fanOut(ctx, job)
	if err != nil || entry == nil {
		return err
	}
	if len(pl.Extraction.Todos) == 0 {
		return nil
	}
	loc := loadLocation(p.Users.Timezone(ctx, entry.UserID))
	_, err = p.Todos.Materialize(ctx, entry.UserID, entry.ID, loc, pl.Extraction.Todos)
	return err
}

func (p *Pipeline) HandleCalendar(ctx context.Context, job *jobs.Job) error {
	pl, entry, err := p.fanOut(ctx, job)
	if err != nil || entry == nil {
		return err
	}

	flagged := pl.Extraction.Events[:0:0]
	for _, e := range pl.Extraction.Events {
		if e.ShouldSyncCalendar {
			flagged = append(flagged, e)
		}
	}
	if len(flagged) == 0 {
		return nil
	}

	_, err = p.Calendar.Sync(ctx, entry.UserID, entry.ID, p.Users.Timezone(ctx, entry.UserID), flagged)
	if errors.Is(err, calendar.ErrNoAccount) {
		p.Log.Debug("no linked calendar, skipping sync", zap.Uint64("user_id", entry.UserID))
		return nil
	}
	return err
}

// fanOut decodes a downstream payload and loads the entry it belongs to.
// A nil entry means the job is stale and should be dropped.
func (p *Pipeline) fanOut(ctx context.Context, job *jobs.Job) (*FanOutPayload, *journal.Entry, error) {
	var pl FanOutPayload
	if err := json.Unmarshal(job.Payload, &pl); err != nil {
		return nil, nil, jobs.Permanent(fmt.Errorf("bad payload: %w", err))
	}
	if pl.Extraction == nil {
		return nil, nil, jobs.Permanent(errors.New("payload without extraction"))
	}

	entry, ok, err := p.current(ctx, pl.EntryID, pl.Version)
	if err != nil || !ok {
		return nil, nil, err
	}
	return &pl, entry, nil
}

// current loads the entry and reports whether it is still at version.
func (p *Pipeline) current(ctx context.Context, entryID, version uint64) (*journal.Entry, bool, error) {
	entry, err := p.Entries.Load(ctx, entryID)
	if errors.Is(err, journal.ErrNotFound) {
		p.Log.Info("entry gone, dropping job", zap.Uint64("entry_id", entryID))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if entry.Version != version {
		p.Log.Info("stale job, entry has a newer version",
			zap.Uint64("entry_id", entryID),
			zap.Uint64("job_version", version),
			zap.Uint64("entry_version", entry.Version),
		)
		return nil, false, nil
	}
	return entry, true, nil
}

func (p *Pipeline) markFailed(ctx context.Context, log *zap.Logger, entryID, version uint64, cause error) {
	if _, err := p.Entries.SetStatus(ctx, entryID, version, journal.StatusFailed, cause); err != nil {
		log.Error("marking entry failed", zap.Error(err))
	}
	log.Warn("entry extraction failed", zap.Error(cause))
}

// userKey is the user id as stored in the graph and vector index.
func userKey(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func loadLocation(tz string) *time.Location {
	if loc, err := time.LoadLocation(tz); err == nil && tz != "" {
		return loc
	}
	return time.UTC
}
