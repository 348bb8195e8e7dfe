package handler

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/3xCaffeine/total-recall/internal/auth"
)

type Users interface {
	Create(ctx context.Context, email, password, timezone string) (*auth.User, error)
	Authenticate(ctx context.Context, email, password string) (*auth.User, error)
	Get(ctx context.Context, id uint64) (*auth.User, error)
	SetTimezone(ctx context.Context, id uint64, tz string) (string, error)
}

type AuthHandler struct {
	Users Users
	JWT   *auth.JWT
	Log   *zap.Logger
}

type registerReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Timezone string `json:"timezone" validate:"omitempty,timezone"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if !decode(w, r, &req) {
		return
	}

	u, err := h.Users.Create(r.Context(), req.Email, req.Password, req.Timezone)
	if errors.Is(err, auth.ErrEmailTaken) {
		http.Error(w, "email already used", http.StatusConflict)
		return
	}
	if err != nil {
		h.Log.Error("register failed", zap.Error(err))
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	h.issue(w, http.StatusCreated, u)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if !decode(w, r, &req) {
		return
	}

	u, err := h.Users.Authenticate(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.Log.Error("login failed", zap.Error(err))
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	h.issue(w, http.StatusOK, u)
}

func (h *AuthHandler) issue(w http.ResponseWriter, status int, u *auth.User) {
	token, err := h.JWT.Sign(u.ID)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, map[string]any{
		"token":    token,
		"user_id":  u.ID,
		"timezone": u.Timezone,
	})
}
