package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/3xCaffeine/total-recall/internal/auth"
	"github.com/3xCaffeine/total-recall/internal/journal"
)

type Journal interface {
	Create(ctx context.Context, userID uint64, in journal.CreateInput) (*journal.Entry, bool, error)
	Update(ctx context.Context, userID, entryID uint64, in journal.UpdateInput) (*journal.Entry, error)
	Get(ctx context.Context, userID, entryID uint64) (*journal.Entry, error)
	List(ctx context.Context, userID uint64, lq journal.ListQuery) ([]journal.Entry, error)
	Timeline(ctx context.Context, userID, entryID uint64) ([]journal.EntryEvent, error)
	Tags(ctx context.Context, userID uint64, prefix string, limit int) ([]journal.TagCount, error)
}

type JournalHandler struct {
	Svc Journal
	Log *zap.Logger
}

type entryDTO struct {
	ID          uint64     `json:"id"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Status      string     `json:"status"`
	LastError   *string    `json:"last_error,omitempty"`
	Tags        []string   `json:"tags"`
	Version     uint64     `json:"version"`
	ProcessedAt *time.Time `json:"processed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func toEntryDTO(e *journal.Entry) entryDTO {
	tags := []string(e.Tags)
	if tags == nil {
		tags = []string{}
	}
	return entryDTO{
		ID:          e.ID,
		Title:       e.Title,
		Content:     e.Content,
		Status:      e.Status,
		LastError:   e.LastError,
		Tags:        tags,
		Version:     e.Version,
		ProcessedAt: e.ProcessedAt,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

type entryEventDTO struct {
	ID             uint64          `json:"id"`
	EntryID        uint64          `json:"entry_id"`
	Type           string          `json:"type"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey *string         `json:"idempotency_key"`
	CreatedAt      time.Time       `json:"created_at"`
}

type createEntryReq struct {
	Title   string `json:"title" validate:"max=200"`
	Content string `json:"content" validate:"required,max=50000"`
}

type updateEntryReq struct {
	Title   *string `json:"title" validate:"omitempty,max=200"`
	Content *string `json:"content" validate:"omitempty,min=1,max=50000"`
}

func (h *JournalHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var req createEntryReq
	if !decode(w, r, &req) {
		return
	}

	e, created, err := h.Svc.Create(r.Context(), uid, journal.CreateInput{
		Title:   req.Title,
		Content: req.Content,
		IdemKey: idempotencyKey(r),
	})
	if err != nil {
		h.fail(w, "create entry", err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	writeJSON(w, status, toEntryDTO(e))
}

func (h *JournalHandler) Update(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req updateEntryReq
	if !decode(w, r, &req) {
		return
	}
	if req.Title == nil && req.Content == nil {
		http.Error(w, "nothing to update", http.StatusBadRequest)
		return
	}

	e, err := h.Svc.Update(r.Context(), uid, id, journal.UpdateInput{
		Title:   req.Title,
		Content: req.Content,
		IdemKey: idempotencyKey(r),
	})
	if err != nil {
		h.fail(w, "update entry", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(e))
}

func (h *JournalHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	e, err := h.Svc.Get(r.Context(), uid, id)
	if err != nil {
		h.fail(w, "get entry", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(e))
}

func (h *JournalHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	q := r.URL.Query()

	rows, err := h.Svc.List(r.Context(), uid, journal.ListQuery{
		Status: strings.TrimSpace(strings.ToLower(q.Get("status"))),
		Tag:    strings.TrimSpace(strings.ToLower(q.Get("tag"))),
		Q:      strings.TrimSpace(q.Get("q")),
		Limit:  queryLimit(r, 50, 200),
	})
	if err != nil {
		h.fail(w, "list entries", err)
		return
	}

	out := make([]entryDTO, 0, len(rows))
	for i := range rows {
		out = append(out, toEntryDTO(&rows[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *JournalHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	evs, err := h.Svc.Timeline(r.Context(), uid, id)
	if err != nil {
		h.fail(w, "entry timeline", err)
		return
	}

	out := make([]entryEventDTO, 0, len(evs))
	for _, e := range evs {
		out = append(out, entryEventDTO{
			ID:             e.ID,
			EntryID:        e.EntryID,
			Type:           e.Type,
			Payload:        e.Payload,
			IdempotencyKey: e.IdempotencyKey,
			CreatedAt:      e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *JournalHandler) Tags(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	prefix := strings.TrimSpace(strings.ToLower(r.URL.Query().Get("q")))

	tags, err := h.Svc.Tags(r.Context(), uid, prefix, queryLimit(r, 50, 200))
	if err != nil {
		h.fail(w, "list tags", err)
		return
	}
	if tags == nil {
		tags = []journal.TagCount{}
	}
	writeJSON(w, http.StatusOK, tags)
}

func (h *JournalHandler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, journal.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, journal.ErrInvalidInput):
		http.Error(w, "invalid input", http.StatusBadRequest)
	case errors.Is(err, journal.ErrConflict), errors.Is(err, gorm.ErrDuplicatedKey):
		http.Error(w, "idempotency key already used", http.StatusConflict)
	default:
		h.Log.Error(op+" failed", zap.Error(err))
		http.Error(w, "server error", http.StatusInternalServerError)
	}
}
