package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/3xCaffeine/total-recall/internal/agent"
	"github.com/3xCaffeine/total-recall/internal/auth"
	"github.com/3xCaffeine/total-recall/internal/calendar"
	"github.com/3xCaffeine/total-recall/internal/config"
	"github.com/3xCaffeine/total-recall/internal/db"
	"github.com/3xCaffeine/total-recall/internal/extraction"
	"github.com/3xCaffeine/total-recall/internal/graph"
	httpx "github.com/3xCaffeine/total-recall/internal/http"
	"github.com/3xCaffeine/total-recall/internal/jobs"
	"github.com/3xCaffeine/total-recall/internal/journal"
	"github.com/3xCaffeine/total-recall/internal/llm"
	"github.com/3xCaffeine/total-recall/internal/logging"
	"github.com/3xCaffeine/total-recall/internal/metrics"
	"github.com/3xCaffeine/total-recall/internal/pipeline"
	"github.com/3xCaffeine/total-recall/internal/retrieval"
	"github.com/3xCaffeine/total-recall/internal/todo"
	"github.com/3xCaffeine/total-recall/internal/vector"
)

func main() {
	cfg, _ := config.Load()

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("exiting", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	m := metrics.New("total_recall")

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := db.AutoMigrateAndIndexes(ctx, gdb, log); err != nil {
		return err
	}

	graphStore, closeGraph, err := openGraph(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeGraph()
	graphStore = graph.NewBreakerStore(graphStore, log.Named("graph"))

	vectors := vector.NewBreakerStore(vector.NewPGStore(gdb), log.Named("vector"))

	gemini, err := llm.NewGemini(ctx, llm.GeminiConfig{
		APIKey:         cfg.GeminiAPIKey,
		Model:          cfg.GeminiModel,
		EmbeddingModel: cfg.EmbeddingModel,
		RatePerSec:     cfg.LLMRatePerSec,
	}, log.Named("llm"), m)
	if err != nil {
		return err
	}
	queryEmbedder := llm.NewCachedEmbedder(gemini, 10*time.Minute)

	users := &auth.UserStore{DB: gdb}
	journalSvc := journal.NewService(gdb, log.Named("journal"))
	todoSvc := todo.NewService(gdb, log.Named("todo"))
	accounts := &calendar.AccountStore{DB: gdb}
	jobsRepo := &jobs.Repo{DB: gdb}

	engine := retrieval.NewEngine(vectors, graphStore, queryEmbedder, log.Named("retrieval"), cfg.RetrievalTimeout)
	chat := agent.New(gemini, engine, log.Named("agent"), m)

	indexer := vector.NewIndexer(vectors, gemini, log.Named("vector"), m)
	indexer.ChunkSize, indexer.ChunkOverlap = cfg.ChunkSize, cfg.ChunkOverlap

	p := &pipeline.Pipeline{
		Entries:   journalSvc,
		Users:     users,
		Jobs:      jobsRepo,
		Extractor: extraction.NewExtractor(gemini, log.Named("extraction")),
		Graph:     graph.NewIngestor(graphStore, log.Named("graph"), m),
		Vectors:   indexer,
		Todos:     todoSvc,
		Calendar: calendar.NewSyncer(
			calendar.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret, accounts, log.Named("calendar")),
			log.Named("calendar"), m,
		),
		Log: log.Named("pipeline"),
	}
	reg := jobs.NewRegistry()
	p.Register(reg)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	pool := jobs.NewPool(cfg.WorkerCount, jobsRepo, reg, log.Named("jobs"), m, cfg.WorkerPollInterval)
	pool.Start(workerCtx)
	log.Info("workers started", zap.Int("count", cfg.WorkerCount), zap.Strings("types", reg.Types()))

	router := httpx.NewRouter(cfg, httpx.Deps{
		JWT:      auth.NewJWT(cfg.JWTSecret),
		Users:    users,
		Jobs:     jobsRepo,
		Journal:  journalSvc,
		Todos:    todoSvc,
		Engine:   engine,
		Agent:    chat,
		Graph:    graphStore,
		Calendar: accounts,
		Metrics:  m.Handler(),
		Log:      log.Named("http"),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      90 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errc:
		stopWorkers()
		pool.Wait()
		return err
	}

	// stop claiming first; in-flight jobs finish or are reclaimed after restart
	stopWorkers()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	pool.Wait()
	return nil
}

func openGraph(ctx context.Context, cfg config.Config, log *zap.Logger) (graph.Store, func(), error) {
	if cfg.GraphBackend == "memory" {
		log.Warn("using in-memory graph store; graph data is lost on restart")
		return graph.NewMemoryStore(), func() {}, nil
	}

	s, err := graph.NewNeo4jStore(ctx, graph.Neo4jConfig{
		URI:      cfg.Neo4jURI,
		Username: cfg.Neo4jUser,
		Password: cfg.Neo4jPassword,
		Database: cfg.Neo4jDatabase,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := s.EnsureConstraints(ctx); err != nil {
		_ = s.Close(ctx)
		return nil, nil, err
	}
	return s, func() { _ = s.Close(context.Background()) }, nil
}
