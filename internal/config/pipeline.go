package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/docchat-go/internal/budget"
	"github.com/54b3r/docchat-go/internal/chunker"
	"github.com/54b3r/docchat-go/internal/index"
	"github.com/54b3r/docchat-go/internal/orchestrator"
	"github.com/54b3r/docchat-go/internal/rag"
)

// Index persistence backends.
const (
	IndexBackendSQLite = "sqlite"
	IndexBackendQdrant = "qdrant"
)

// DefaultIndexDir is the directory holding the persisted SQLite index.
const DefaultIndexDir = "./docchat_index"

// Pipeline holds the resolved retrieval pipeline settings. It is read from
// the environment after Load has applied the YAML file.
type Pipeline struct {
	IndexBackend     string
	IndexDir         string
	ChunkSize        int
	ChunkOverlap     int
	EmbedBatchSize   int
	EmbedConcurrency int
	TopK             int
	HistoryMaxTurns  int
	CondenseQuestion bool
	MaxContextTokens int
	APIKey           string

	QdrantHost       string
	QdrantPort       int
	QdrantCollection string
	QdrantAPIKey     string
	QdrantTLS        bool
}

// PipelineFromEnv reads pipeline settings from environment variables,
// falling back to the package defaults. Malformed numbers are a config error.
func PipelineFromEnv() (*Pipeline, error) {
	var errs []string
	num := func(key string, def int) int {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s=%q is not an integer", key, v))
			return def
		}
		return n
	}
	flag := func(key string, def bool) bool {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return def
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s=%q is not a boolean", key, v))
			return def
		}
		return b
	}

	p := &Pipeline{
		IndexBackend:     strings.ToLower(envOr("INDEX_BACKEND", IndexBackendSQLite)),
		IndexDir:         envOr("DOCCHAT_INDEX_DIR", DefaultIndexDir),
		ChunkSize:        num("CHUNK_SIZE", chunker.DefaultSize),
		ChunkOverlap:     num("CHUNK_OVERLAP", chunker.DefaultOverlap),
		EmbedBatchSize:   num("EMBED_BATCH_SIZE", index.DefaultBatchSize),
		EmbedConcurrency: num("EMBED_CONCURRENCY", index.DefaultConcurrency),
		TopK:             num("RETRIEVAL_TOP_K", orchestrator.DefaultTopK),
		HistoryMaxTurns:  num("HISTORY_MAX_TURNS", 0),
		CondenseQuestion: flag("CONDENSE_QUESTION", true),
		MaxContextTokens: num("MAX_CONTEXT_TOKENS", budget.DefaultMaxContextTokens),
		APIKey:           os.Getenv("DOCCHAT_API_KEY"),

		QdrantHost:       envOr("QDRANT_HOST", "localhost"),
		QdrantPort:       num("QDRANT_PORT", 6334),
		QdrantCollection: envOr("QDRANT_COLLECTION", "docchat"),
		QdrantAPIKey:     os.Getenv("QDRANT_API_KEY"),
		QdrantTLS:        flag("QDRANT_TLS", false),
	}
	if len(errs) > 0 {
		return nil, rag.NewError(rag.KindConfig, "config", strings.Join(errs, "; "), nil)
	}
	return p, p.Validate()
}

// Validate reports settings that would make the pipeline unusable.
func (p *Pipeline) Validate() error {
	if _, err := chunker.New(p.ChunkSize, p.ChunkOverlap); err != nil {
		return err
	}
	switch p.IndexBackend {
	case IndexBackendSQLite, IndexBackendQdrant:
	default:
		return rag.NewError(rag.KindConfig, "config",
			fmt.Sprintf("unknown INDEX_BACKEND %q (valid: sqlite, qdrant)", p.IndexBackend), nil)
	}
	if p.TopK <= 0 {
		return rag.NewError(rag.KindConfig, "config", "RETRIEVAL_TOP_K must be positive", nil)
	}
	if p.EmbedBatchSize <= 0 || p.EmbedConcurrency <= 0 {
		return rag.NewError(rag.KindConfig, "config", "EMBED_BATCH_SIZE and EMBED_CONCURRENCY must be positive", nil)
	}
	if p.HistoryMaxTurns < 0 {
		return rag.NewError(rag.KindConfig, "config", "HISTORY_MAX_TURNS must not be negative", nil)
	}
	return nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
