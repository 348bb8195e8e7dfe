package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr             string
	DatabaseURL          string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	JWTSecret string

	LogLevel  string
	LogFormat string

	GraphBackend  string // neo4j | memory
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string

	GeminiAPIKey   string
	GeminiModel    string
	EmbeddingModel string
	LLMRatePerSec  float64

	WorkerCount        int
	WorkerPollInterval time.Duration

	ChunkSize        int
	ChunkOverlap     int
	RetrievalTimeout time.Duration

	GoogleClientID     string
	GoogleClientSecret string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:          mustGetenv("DATABASE_URL"),
		CORSAllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "false") == "true",

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),

		GraphBackend:  strings.ToLower(getenv("GRAPH_BACKEND", "neo4j")),
		Neo4jURI:      getenv("NEO4J_URI", "neo4j://localhost:7687"),
		Neo4jUser:     getenv("NEO4J_USER", "neo4j"),
		Neo4jPassword: getenv("NEO4J_PASSWORD", ""),
		Neo4jDatabase: getenv("NEO4J_DATABASE", "neo4j"),

		GeminiModel:    getenv("GEMINI_MODEL", "gemini-2.5-flash"),
		EmbeddingModel: getenv("EMBEDDING_MODEL", "text-embedding-004"),
		LLMRatePerSec:  getfloat("LLM_RATE_PER_SEC", 5),

		WorkerCount:        getint("WORKER_COUNT", 2),
		WorkerPollInterval: getduration("WORKER_POLL_INTERVAL", 800*time.Millisecond),

		ChunkSize:        getint("CHUNK_SIZE", 500),
		ChunkOverlap:     getnonneg("CHUNK_OVERLAP", 50),
		RetrievalTimeout: getduration("RETRIEVAL_TIMEOUT", 8*time.Second),

		GoogleClientID:     getenv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getenv("GOOGLE_CLIENT_SECRET", ""),
	}

	origins := strings.Split(getenv("CORS_ALLOWED_ORIGINS", ""), ",")
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	cfg.JWTSecret = mustGetenv("JWT_SECRET")
	cfg.GeminiAPIKey = mustGetenv("GEMINI_API_KEY")
	return cfg, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func mustGetenv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		panic("missing env: " + key)
	}
	return v
}

func getint(key string, def int) int {
	n, err := strconv.Atoi(getenv(key, ""))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// getnonneg is getint that also accepts zero.
func getnonneg(key string, def int) int {
	n, err := strconv.Atoi(getenv(key, ""))
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getfloat(key string, def float64) float64 {
	f, err := strconv.ParseFloat(getenv(key, ""), 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}

// getduration accepts Go duration strings ("5s") or plain milliseconds.
func getduration(key string, def time.Duration) time.Duration {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}
