package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/3xCaffeine/total-recall/internal/auth"
	"github.com/3xCaffeine/total-recall/internal/jobs"
)

type JobStats interface {
	Stats(ctx context.Context, userID uint64) ([]jobs.Stat, error)
}

type MeHandler struct {
	Users Users
	Jobs  JobStats
	Log   *zap.Logger
}

func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	u, err := h.Users.Get(r.Context(), uid)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":    u.ID,
		"email":      u.Email,
		"timezone":   u.Timezone,
		"created_at": u.CreatedAt,
	})
}

type updateMeReq struct {
	Timezone string `json:"timezone" validate:"required,timezone"`
}

func (h *MeHandler) Update(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var req updateMeReq
	if !decode(w, r, &req) {
		return
	}
	tz, err := h.Users.SetTimezone(r.Context(), uid, req.Timezone)
	if err != nil {
		h.Log.Error("timezone update failed", zap.Error(err))
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": uid, "timezone": tz})
}

// JobStats reports the caller's background jobs by type and status.
func (h *MeHandler) JobStats(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	stats, err := h.Jobs.Stats(r.Context(), uid)
	if err != nil {
		h.Log.Error("job stats failed", zap.Error(err))
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if stats == nil {
		stats = []jobs.Stat{}
	}
	writeJSON(w, http.StatusOK, stats)
}
