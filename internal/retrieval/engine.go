package retrieval

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/3xCaffeine/total-recall/internal/breaker"
	"github.com/3xCaffeine/total-recall/internal/graph"
	"github.com/3xCaffeine/total-recall/internal/llm"
	"github.com/3xCaffeine/total-recall/internal/vector"
)

const (
	DefaultVectorLimit   = 10
	DefaultBranchTimeout = 8 * time.Second

	graphLimit = 10
	// The vector index is shared by all users, so ask for more than needed
	// and drop foreign matches afterwards.
	overfetch = 4
)

type Query struct {
	UserID       string `json:"-"`
	Text         string `json:"query" validate:"required"`
	VectorLimit  int    `json:"vector_limit" validate:"omitempty,min=1,max=50"`
	IncludeGraph bool   `json:"include_graph"`
}

type Result struct {
	Query              string         `json:"query"`
	VectorResults      []vector.Match `json:"vector_results"`
	GraphResults       []graph.Node   `json:"graph_results"`
	SynthesizedContext string         `json:"synthesized_context"`
}

// Empty reports whether neither branch contributed anything.
func (r *Result) Empty() bool {
	return len(r.VectorResults) == 0 && len(r.GraphResults) == 0
}

type Engine struct {
	Vectors  vector.Store
	Graph    graph.Store
	Embedder llm.Embedder
	Log      *zap.Logger

	BranchTimeout time.Duration
}

func NewEngine(vectors vector.Store, g graph.Store, emb llm.Embedder, log *zap.Logger, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultBranchTimeout
	}
	return &Engine{Vectors: vectors, Graph: g, Embedder: emb, Log: log, BranchTimeout: timeout}
}

// Query runs the vector and graph lookups concurrently. A branch that fails
// or runs out of time contributes nothing; Query itself never fails.
func (e *Engine) Query(ctx context.Context, q Query) *Result {
	limit := q.VectorLimit
	if limit <= 0 {
		limit = DefaultVectorLimit
	}
	log := e.Log.With(zap.String("user_id", q.UserID))

	var (
		g       errgroup.Group
		matches []vector.Match
		nodes   []graph.Node
	)

	g.Go(func() error {
		bctx, cancel := context.WithTimeout(ctx, e.BranchTimeout)
		defer cancel()
		m, err := e.searchVectors(bctx, q.UserID, q.Text, limit)
		if err != nil {
			branchFailed(log, "vector", err)
			return nil
		}
		matches = m
		return nil
	})

	if q.IncludeGraph && e.Graph != nil {
		g.Go(func() error {
			bctx, cancel := context.WithTimeout(ctx, e.BranchTimeout)
			defer cancel()
			n, err := e.Graph.SearchEntities(bctx, q.UserID, Terms(q.Text), graphLimit)
			if err != nil {
				branchFailed(log, "graph", err)
				return nil
			}
			nodes = n
			return nil
		})
	}

	_ = g.Wait()

	if matches == nil {
		matches = []vector.Match{}
	}
	if nodes == nil {
		nodes = []graph.Node{}
	}
	return &Result{
		Query:              q.Text,
		VectorResults:      matches,
		GraphResults:       nodes,
		SynthesizedContext: Synthesize(matches, nodes),
	}
}

// branchFailed logs a degraded branch. A store behind an open breaker is
// expected while it recovers and is not logged as a failure.
func branchFailed(log *zap.Logger, branch string, err error) {
	if breaker.IsOpen(err) {
		log.Info("breaker open, skipping branch", zap.String("branch", branch))
		return
	}
	log.Warn("branch failed", zap.String("branch", branch), zap.Error(err))
}

func (e *Engine) searchVectors(ctx context.Context, userID, text string, limit int) ([]vector.Match, error) {
	embs, err := e.Embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embs) == 0 {
		return nil, nil
	}

	all, err := e.Vectors.DenseSearch(ctx, embs[0], limit*overfetch)
	if err != nil {
		return nil, err
	}

	out := make([]vector.Match, 0, limit)
	for _, m := range all {
		if m.UserID() != userID {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "what": true, "when": true,
	"where": true, "who": true, "did": true, "does": true, "about": true, "have": true,
	"has": true, "was": true, "were": true, "are": true, "you": true, "your": true,
	"from": true, "that": true, "this": true, "how": true, "why": true, "can": true,
	"tell": true, "any": true, "all": true, "last": true, "recent": true,
}

const maxTerms = 8

// Terms lowercases the query and keeps distinct words worth matching against
// entity names.
func Terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r == '-' || r == '\'' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
	})

	seen := map[string]bool{}
	var out []string
	for _, f := range fields {
		f = strings.Trim(f, "-'")
		if len([]rune(f)) < 3 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
		if len(out) == maxTerms {
			break
		}
	}
	return out
}
