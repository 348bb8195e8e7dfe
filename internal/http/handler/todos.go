package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3xCaffeine/total-recall/internal/auth"
	"github.com/3xCaffeine/total-recall/internal/todo"
)

type Todos interface {
	List(ctx context.Context, userID uint64, lq todo.ListQuery) ([]todo.Todo, error)
	SetCompleted(ctx context.Context, userID, id uint64, completed bool) (*todo.Todo, error)
}

type TodoHandler struct {
	Svc Todos
	Log *zap.Logger
}

type todoDTO struct {
	ID          uint64     `json:"id"`
	EntryID     uint64     `json:"entry_id"`
	Task        string     `json:"task"`
	Priority    string     `json:"priority"`
	DueAt       *time.Time `json:"due_at"`
	Due         string     `json:"due,omitempty"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toTodoDTO(t *todo.Todo) todoDTO {
	return todoDTO{
		ID:          t.ID,
		EntryID:     t.EntryID,
		Task:        t.Task,
		Priority:    t.Priority,
		DueAt:       t.DueAt,
		Due:         t.DueRaw,
		Completed:   t.Completed,
		CompletedAt: t.CompletedAt,
		CreatedAt:   t.CreatedAt,
	}
}

func (h *TodoHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	lq := todo.ListQuery{Limit: queryLimit(r, 100, 200)}
	switch strings.TrimSpace(strings.ToLower(r.URL.Query().Get("completed"))) {
	case "true":
		v := true
		lq.Completed = &v
	case "false":
		v := false
		lq.Completed = &v
	}

	rows, err := h.Svc.List(r.Context(), uid, lq)
	if err != nil {
		h.Log.Error("list todos failed", zap.Error(err))
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	out := make([]todoDTO, 0, len(rows))
	for i := range rows {
		out = append(out, toTodoDTO(&rows[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

type completeReq struct {
	Completed *bool `json:"completed"`
}

// Complete marks a todo done. A body of {"completed": false} reopens it.
func (h *TodoHandler) Complete(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	completed := true
	if r.ContentLength > 0 {
		var req completeReq
		if !decode(w, r, &req) {
			return
		}
		if req.Completed != nil {
			completed = *req.Completed
		}
	}

	t, err := h.Svc.SetCompleted(r.Context(), uid, id, completed)
	switch {
	case errors.Is(err, todo.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
		return
	case err != nil:
		h.Log.Error("complete todo failed", zap.Error(err))
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toTodoDTO(t))
}
