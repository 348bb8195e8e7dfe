package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/3xCaffeine/total-recall/internal/auth"
	"github.com/3xCaffeine/total-recall/internal/config"
	"github.com/3xCaffeine/total-recall/internal/http/handler"
	mw "github.com/3xCaffeine/total-recall/internal/http/middleware"
)

// Deps are the services behind the API.
type Deps struct {
	JWT      *auth.JWT
	Users    handler.Users
	Jobs     handler.JobStats
	Journal  handler.Journal
	Todos    handler.Todos
	Engine   handler.Retriever
	Agent    handler.Responder
	Graph    handler.Snapshotter
	Calendar handler.CalendarAccounts
	Metrics  http.Handler
	Log      *zap.Logger
}

func NewRouter(cfg config.Config, d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.Logger(d.Log))
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	ah := &handler.AuthHandler{Users: d.Users, JWT: d.JWT, Log: d.Log}
	r.Post("/auth/register", ah.Register)
	r.Post("/auth/login", ah.Login)

	requireAuth := auth.RequireAuth(d.JWT)

	me := &handler.MeHandler{Users: d.Users, Jobs: d.Jobs, Log: d.Log}
	r.Route("/me", func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/", me.Me)
		r.Patch("/", me.Update)
		r.Get("/jobs", me.JobStats)
	})

	jh := &handler.JournalHandler{Svc: d.Journal, Log: d.Log}
	r.Route("/journal", func(r chi.Router) {
		r.Use(requireAuth)

		r.Post("/", jh.Create)
		r.Get("/", jh.List)
		r.Get("/tags", jh.Tags)

		r.Get("/{id}", jh.Get)
		r.Patch("/{id}", jh.Update)
		r.Put("/{id}", jh.Update)
		r.Get("/{id}/timeline", jh.Timeline)
	})

	th := &handler.TodoHandler{Svc: d.Todos, Log: d.Log}
	r.Route("/todos", func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/", th.List)
		r.Post("/{id}/complete", th.Complete)
	})

	bh := &handler.BrainHandler{Engine: d.Engine, Agent: d.Agent, Graph: d.Graph, Log: d.Log}
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		// model calls can be slow; cap them below the server write timeout
		r.With(chimw.Timeout(60*time.Second)).Post("/chat", bh.Chat)
		r.With(chimw.Timeout(30*time.Second)).Post("/brain/query", bh.Query)
		r.Get("/graph", bh.Snapshot)
	})

	ch := &handler.CalendarHandler{Accounts: d.Calendar, Log: d.Log}
	r.Route("/calendar/account", func(r chi.Router) {
		r.Use(requireAuth)
		r.Put("/", ch.Link)
		r.Delete("/", ch.Unlink)
	})

	return r
}
