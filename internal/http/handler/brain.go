package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/3xCaffeine/total-recall/internal/agent"
	"github.com/3xCaffeine/total-recall/internal/auth"
	"github.com/3xCaffeine/total-recall/internal/graph"
	"github.com/3xCaffeine/total-recall/internal/retrieval"
)

type Retriever interface {
	Query(ctx context.Context, q retrieval.Query) *retrieval.Result
}

type Responder interface {
	Respond(ctx context.Context, in agent.Input) string
}

type Snapshotter interface {
	Snapshot(ctx context.Context, userID string) (*graph.Snapshot, error)
}

// BrainHandler serves the read side of the knowledge base: retrieval,
// chat and the graph snapshot.
type BrainHandler struct {
	Engine Retriever
	Agent  Responder
	Graph  Snapshotter
	Log    *zap.Logger
}

type brainQueryReq struct {
	Query        string `json:"query" validate:"required,max=2000"`
	VectorLimit  int    `json:"vector_limit" validate:"omitempty,min=1,max=50"`
	IncludeGraph *bool  `json:"include_graph"`
}

func (h *BrainHandler) Query(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var req brainQueryReq
	if !decode(w, r, &req) {
		return
	}
	includeGraph := true
	if req.IncludeGraph != nil {
		includeGraph = *req.IncludeGraph
	}

	res := h.Engine.Query(r.Context(), retrieval.Query{
		UserID:       userKey(uid),
		Text:         req.Query,
		VectorLimit:  req.VectorLimit,
		IncludeGraph: includeGraph,
	})
	writeJSON(w, http.StatusOK, res)
}

type chatReq struct {
	Prompt       string `json:"prompt" validate:"required,max=4000"`
	PreviousChat string `json:"previous_chat" validate:"max=20000"`
	SessionID    string `json:"session_id" validate:"omitempty,uuid"`
}

func (h *BrainHandler) Chat(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var req chatReq
	if !decode(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	answer := h.Agent.Respond(r.Context(), agent.Input{
		UserID:       userKey(uid),
		Prompt:       req.Prompt,
		PreviousChat: req.PreviousChat,
	})
	h.Log.Debug("chat answered", zap.Uint64("user_id", uid), zap.String("session_id", req.SessionID))

	writeJSON(w, http.StatusOK, map[string]any{
		"response":   answer,
		"session_id": req.SessionID,
	})
}

func (h *BrainHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	snap, err := h.Graph.Snapshot(r.Context(), userKey(uid))
	if err != nil {
		h.Log.Error("graph snapshot failed", zap.Error(err))
		http.Error(w, "graph unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// userKey is the user id as stored in the graph and vector index.
func userKey(id uint64) string {
	return strconv.FormatUint(id, 10)
}
