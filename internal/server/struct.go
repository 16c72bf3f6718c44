package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docchat-go/internal/conversation"
	"github.com/54b3r/docchat-go/internal/index"
	"github.com/54b3r/docchat-go/internal/ingestion"
	"github.com/54b3r/docchat-go/internal/orchestrator"
	"github.com/54b3r/docchat-go/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// AskTimeout bounds a single /ask request including upstream calls.
	// Defaults to 2 minutes.
	AskTimeout time.Duration
	// RebuildTimeout bounds a refresh or ingest rebuild. The rebuild is
	// detached from the client connection. Defaults to 30 minutes.
	RebuildTimeout time.Duration
	// MaxBodyBytes caps request bodies. Defaults to 8 MiB.
	MaxBodyBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// TrustProxy keys rate limiting on the first X-Forwarded-For hop. Only
	// enable behind a reverse proxy that sets the header.
	TrustProxy bool
	// APIKey is the Bearer token required on protected routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server's collectors. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// asker answers questions. *orchestrator.Orchestrator satisfies it; tests
// inject a fake.
type asker interface {
	Ask(ctx context.Context, question string, history conversation.History) (orchestrator.Result, error)
}

// indexManager owns the active index. *lifecycle.Manager satisfies it.
type indexManager interface {
	Current() (*index.Index, error)
	Rebuilding() bool
	Refresh(ctx context.Context) (*index.Index, error)
	Rebuild(ctx context.Context, docs []rag.Document) (*index.Index, error)
}

// Server is the HTTP server exposing the question-answering API.
type Server struct {
	// asker runs the query path.
	asker asker
	// indexes owns the active index and rebuilds.
	indexes indexManager
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// askRequest is the JSON body for POST /ask.
type askRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
	// ChatHistory is the prior conversation, oldest turn first.
	ChatHistory conversation.History `json:"chat_history"`
}

// sourceRef identifies a retrieved chunk in an /ask response.
type sourceRef struct {
	SourceID string  `json:"source_id"`
	Ordinal  int     `json:"ordinal"`
	Score    float64 `json:"score"`
}

// askResponse is the JSON response for POST /ask.
type askResponse struct {
	// Response is the generated answer.
	Response string `json:"response"`
	// ChatHistory is the request history with the new turn pair appended.
	ChatHistory conversation.History `json:"chat_history"`
	// Sources lists the retrieved chunks, best match first.
	Sources []sourceRef `json:"sources,omitempty"`
}

// refreshResponse is the JSON response for POST /refresh_index and POST /api/ingest.
type refreshResponse struct {
	Message string `json:"message"`
	IndexID string `json:"index_id"`
	Entries int    `json:"entries"`
}

// ingestRequest is the JSON body for POST /api/ingest.
type ingestRequest struct {
	// Documents are already-extracted texts keyed by source name.
	Documents []ingestion.SourceText `json:"documents"`
}

// indexResponse is the JSON response for GET /api/index.
type indexResponse struct {
	IndexID    string    `json:"index_id"`
	BuiltAt    time.Time `json:"built_at"`
	Entries    int       `json:"entries"`
	Dimension  int       `json:"dimension"`
	Rebuilding bool      `json:"rebuilding"`
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}
