package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/3xCaffeine/total-recall/internal/auth"
	"github.com/3xCaffeine/total-recall/internal/calendar"
)

type CalendarAccounts interface {
	Save(ctx context.Context, a *calendar.Account) error
	Delete(ctx context.Context, userID uint64) error
}

type CalendarHandler struct {
	Accounts CalendarAccounts
	Log      *zap.Logger
}

type linkCalendarReq struct {
	AccessToken  string     `json:"access_token" validate:"required"`
	RefreshToken string     `json:"refresh_token"`
	Expiry       *time.Time `json:"expiry"`
	CalendarID   string     `json:"calendar_id"`
}

// Link stores the OAuth tokens obtained by the client for Google Calendar.
func (h *CalendarHandler) Link(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var req linkCalendarReq
	if !decode(w, r, &req) {
		return
	}
	if req.CalendarID == "" {
		req.CalendarID = "primary"
	}

	a := &calendar.Account{
		UserID:       uid,
		CalendarID:   req.CalendarID,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		TokenExpiry:  req.Expiry,
	}
	if err := h.Accounts.Save(r.Context(), a); err != nil {
		h.Log.Error("link calendar failed", zap.Error(err))
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"linked": true, "calendar_id": req.CalendarID})
}

func (h *CalendarHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	if err := h.Accounts.Delete(r.Context(), uid); err != nil {
		h.Log.Error("unlink calendar failed", zap.Error(err))
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
