package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/3xCaffeine/total-recall/internal/extraction"
	"github.com/3xCaffeine/total-recall/internal/metrics"
)

type IngestInput struct {
	EntryID    uint64
	UserID     string
	Content    string
	Title      string
	Extraction *extraction.Result
}

type Stats struct {
	Entities      int `json:"entities"`
	Todos         int `json:"todos"`
	Events        int `json:"events"`
	Relationships int `json:"relationships"`
	Skipped       int `json:"skipped"`
	Failed        int `json:"failed"`
}

type Ingestor struct {
	Store   Store
	Log     *zap.Logger
	Metrics *metrics.Collector
}

func NewIngestor(store Store, log *zap.Logger, m *metrics.Collector) *Ingestor {
	return &Ingestor{Store: store, Log: log, Metrics: m}
}

// JournalNodeID is the graph id of an entry's journal node.
func JournalNodeID(entryID uint64) string {
	return "journal_" + strconv.FormatUint(entryID, 10)
}

// Ingest merges one extraction into the graph. Only a failure to establish
// the journal node is returned; every other store error is logged and the
// item skipped. Running it twice for the same entry and extraction leaves
// node and edge counts unchanged.
func (g *Ingestor) Ingest(ctx context.Context, in IngestInput) (Stats, error) {
	var st Stats
	res := in.Extraction
	if res == nil {
		return st, errors.New("graph ingest: nil extraction")
	}

	log := g.Log.With(zap.Uint64("entry_id", in.EntryID), zap.String("user_id", in.UserID))

	journal := NodeRef{Label: LabelJournalEntry, ID: JournalNodeID(in.EntryID)}
	err := g.Store.GetOrCreate(ctx, journal.Label, journal.ID, Props{
		"user_id":  in.UserID,
		"entry_id": int64(in.EntryID),
		"title":    in.Title,
		"content":  in.Content,
	})
	if err != nil {
		return st, fmt.Errorf("graph ingest: journal node: %w", err)
	}

	localIDs := make([]string, 0, len(res.Entities))
	for _, e := range res.Entities {
		localIDs = append(localIDs, e.ID)
	}
	ids := NewIDMap(in.EntryID, localIDs)

	for _, e := range res.Entities {
		ref := NodeRef{Label: LabelEntity, ID: ids.Resolve(e.ID)}
		err := g.upsert(ctx, journal, ref, EdgeHasEntity, Props{
			"user_id":         in.UserID,
			"entry_id":        int64(in.EntryID),
			"local_id":        e.ID,
			"name":            e.Name,
			"normalized_name": e.NormalizedName,
			"type":            e.Type,
			"attributes":      encodeAttributes(e.Attributes),
		})
		g.Metrics.Ingested("graph", "entity", err)
		if err != nil {
			st.Failed++
			log.Warn("skipping entity", zap.String("global_id", ref.ID), zap.Error(err))
			continue
		}
		st.Entities++
	}

	for _, t := range res.Todos {
		ref := NodeRef{Label: LabelTodo, ID: GlobalID(in.EntryID, t.ID)}
		related := ids.ResolveAll(t.RelatedEntities)
		err := g.upsert(ctx, journal, ref, EdgeHasTodo, Props{
			"user_id":          in.UserID,
			"entry_id":         int64(in.EntryID),
			"local_id":         t.ID,
			"task":             t.Task,
			"priority":         t.Priority,
			"due":              t.Due,
			"related_entities": related,
		})
		g.Metrics.Ingested("graph", "todo", err)
		if err != nil {
			st.Failed++
			log.Warn("skipping todo", zap.String("global_id", ref.ID), zap.Error(err))
			continue
		}
		st.Todos++
		st.Skipped += g.linkEntities(ctx, log, ref, related)
	}

	for _, ev := range res.Events {
		ref := NodeRef{Label: LabelEvent, ID: GlobalID(in.EntryID, ev.ID)}
		related := ids.ResolveAll(ev.RelatedEntities)
		props := Props{
			"user_id":              in.UserID,
			"entry_id":             int64(in.EntryID),
			"local_id":             ev.ID,
			"title":                ev.Title,
			"datetime":             ev.Datetime,
			"location":             ev.Location,
			"should_sync_calendar": ev.ShouldSyncCalendar,
			"related_entities":     related,
			"duration_minutes":     nil,
		}
		if ev.DurationMinutes != nil {
			props["duration_minutes"] = int64(*ev.DurationMinutes)
		}
		err := g.upsert(ctx, journal, ref, EdgeHasEvent, props)
		g.Metrics.Ingested("graph", "event", err)
		if err != nil {
			st.Failed++
			log.Warn("skipping event", zap.String("global_id", ref.ID), zap.Error(err))
			continue
		}
		st.Events++
		st.Skipped += g.linkEntities(ctx, log, ref, related)
	}

	for _, r := range res.Relationships {
		if !r.HasTarget() {
			st.Skipped++
			log.Debug("skipping relationship without target", zap.String("source", r.Source), zap.String("type", r.Type))
			continue
		}
		from := NodeRef{Label: LabelEntity, ID: ids.Resolve(r.Source)}
		to := NodeRef{Label: LabelEntity, ID: ids.Resolve(r.Target)}

		ok, err := g.bothExist(ctx, from, to)
		if err != nil {
			st.Failed++
			g.Metrics.Ingested("graph", "relationship", err)
			log.Warn("skipping relationship", zap.String("source", from.ID), zap.String("target", to.ID), zap.Error(err))
			continue
		}
		if !ok {
			st.Skipped++
			log.Debug("skipping relationship with unknown endpoint", zap.String("source", from.ID), zap.String("target", to.ID))
			continue
		}

		err = g.Store.Connect(ctx, Edge{
			From: from,
			Type: EdgeRelatedTo,
			To:   to,
			Key:  r.Type,
			Props: Props{
				"type":        r.Type,
				"description": r.Description,
				"datetime":    r.Datetime,
				"entry_id":    int64(in.EntryID),
			},
		})
		if errors.Is(err, ErrNodeNotFound) {
			st.Skipped++
			continue
		}
		g.Metrics.Ingested("graph", "relationship", err)
		if err != nil {
			st.Failed++
			log.Warn("skipping relationship", zap.String("source", from.ID), zap.String("target", to.ID), zap.Error(err))
			continue
		}
		st.Relationships++
	}

	log.Info("graph ingest complete",
		zap.Int("entities", st.Entities),
		zap.Int("todos", st.Todos),
		zap.Int("events", st.Events),
		zap.Int("relationships", st.Relationships),
		zap.Int("skipped", st.Skipped),
		zap.Int("failed", st.Failed),
	)
	return st, nil
}

// upsert merges the node and hangs it off the journal node.
func (g *Ingestor) upsert(ctx context.Context, journal, ref NodeRef, edge EdgeType, props Props) error {
	if err := g.Store.Merge(ctx, ref.Label, ref.ID, props); err != nil {
		return err
	}
	return g.Store.Connect(ctx, Edge{From: journal, Type: edge, To: ref})
}

// linkEntities connects a todo or event to the entities it references and
// returns how many references could not be linked.
func (g *Ingestor) linkEntities(ctx context.Context, log *zap.Logger, from NodeRef, entityIDs []string) int {
	skipped := 0
	for _, id := range entityIDs {
		err := g.Store.Connect(ctx, Edge{
			From: from,
			Type: EdgeRelatedEntity,
			To:   NodeRef{Label: LabelEntity, ID: id},
		})
		if err != nil {
			skipped++
			if !errors.Is(err, ErrNodeNotFound) {
				log.Warn("linking entity failed", zap.String("from", from.ID), zap.String("entity", id), zap.Error(err))
			}
		}
	}
	return skipped
}

func (g *Ingestor) bothExist(ctx context.Context, a, b NodeRef) (bool, error) {
	ok, err := g.Store.Exists(ctx, a.Label, a.ID)
	if err != nil || !ok {
		return false, err
	}
	return g.Store.Exists(ctx, b.Label, b.ID)
}

func encodeAttributes(attrs map[string]any) string {
	if len(attrs) == 0 {
		return "{}"
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "{}"
	}
	return string(b)
}
