// Package config layers docchat settings: package defaults, then an optional
// YAML file, then .env, then the process environment. The YAML file is
// translated into environment variables that are not already set, so every
// component reads its settings from one place.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the YAML file layout. Keys mirror the environment variable
// names in lower case, grouped by concern.
type Config struct {
	Model     ModelConfig     `yaml:"model"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// ModelConfig selects and tunes the chat model used for answers and
// question condensing.
type ModelConfig struct {
	// Provider is one of ollama, openai, azure, bedrock, gemini.
	Provider    string  `yaml:"provider"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`

	Ollama  OllamaConfig  `yaml:"ollama"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Azure   AzureConfig   `yaml:"azure"`
	Bedrock BedrockConfig `yaml:"bedrock"`
	Gemini  GeminiConfig  `yaml:"gemini"`
}

// Per-backend chat settings. API keys are better supplied through the
// environment than written to the file.
type (
	OllamaConfig struct {
		Host  string `yaml:"host"`
		Model string `yaml:"model"`
	}
	OpenAIConfig struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	}
	AzureConfig struct {
		APIKey     string `yaml:"api_key"`
		Endpoint   string `yaml:"endpoint"`
		Deployment string `yaml:"deployment"`
		APIVersion string `yaml:"api_version"`
	}
	BedrockConfig struct {
		Region  string `yaml:"region"`
		ModelID string `yaml:"model_id"`
	}
	GeminiConfig struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	}
)

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai, azure, gemini).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
}

// IndexConfig holds chunking and index lifecycle settings.
type IndexConfig struct {
	// Backend selects where the index is persisted: sqlite or qdrant.
	Backend string `yaml:"backend"`
	// Dir is the directory holding the SQLite index file.
	Dir string `yaml:"dir"`
	// ChunkSize is the maximum chunk length in characters.
	ChunkSize int `yaml:"chunk_size"`
	// ChunkOverlap is the number of characters shared by adjacent chunks.
	ChunkOverlap int `yaml:"chunk_overlap"`
	// EmbedBatchSize is the number of chunks per embedding call.
	EmbedBatchSize int `yaml:"embed_batch_size"`
	// EmbedConcurrency is the number of embedding calls in flight.
	EmbedConcurrency int `yaml:"embed_concurrency"`
}

// RetrievalConfig holds query path settings.
type RetrievalConfig struct {
	// TopK is the number of chunks retrieved per question.
	TopK int `yaml:"top_k"`
	// HistoryMaxTurns caps the returned chat history. Zero keeps every turn.
	HistoryMaxTurns int `yaml:"history_max_turns"`
	// CondenseQuestion toggles follow-up question rewriting. Nil keeps the default.
	CondenseQuestion *bool `yaml:"condense_question"`
	// MaxContextTokens is the prompt budget for history and excerpts.
	MaxContextTokens int `yaml:"max_context_tokens"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// ServerConfig holds HTTP server settings. APIKey is the bearer token
// required on the question and rebuild endpoints.
type ServerConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

// LoggingConfig mirrors LOG_LEVEL and LOG_FORMAT.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig holds the Langfuse connection.
type TracingConfig struct {
	PublicKey string `yaml:"public_key"`
	SecretKey string `yaml:"secret_key"`
	Host      string `yaml:"host"`
}

// binding ties one environment variable to the YAML field that can supply it.
// value returns "" when the field is unset in the file.
type binding struct {
	env   string
	value func(*Config) string
}

var bindings = []binding{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return itoa(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return ftoa(c.Model.Temperature) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"AWS_REGION", func(c *Config) string { return c.Model.Bedrock.Region }},
	{"BEDROCK_MODEL_ID", func(c *Config) string { return c.Model.Bedrock.ModelID }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return itoa(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"INDEX_BACKEND", func(c *Config) string { return c.Index.Backend }},
	{"DOCCHAT_INDEX_DIR", func(c *Config) string { return c.Index.Dir }},
	{"CHUNK_SIZE", func(c *Config) string { return itoa(c.Index.ChunkSize) }},
	{"CHUNK_OVERLAP", func(c *Config) string { return itoa(c.Index.ChunkOverlap) }},
	{"EMBED_BATCH_SIZE", func(c *Config) string { return itoa(c.Index.EmbedBatchSize) }},
	{"EMBED_CONCURRENCY", func(c *Config) string { return itoa(c.Index.EmbedConcurrency) }},
	{"RETRIEVAL_TOP_K", func(c *Config) string { return itoa(c.Retrieval.TopK) }},
	{"HISTORY_MAX_TURNS", func(c *Config) string { return itoa(c.Retrieval.HistoryMaxTurns) }},
	{"CONDENSE_QUESTION", func(c *Config) string { return optBoolStr(c.Retrieval.CondenseQuestion) }},
	{"MAX_CONTEXT_TOKENS", func(c *Config) string { return itoa(c.Retrieval.MaxContextTokens) }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return itoa(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return optBoolStr(trueOrNil(c.Qdrant.TLS)) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"DOCCHAT_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Parse decodes a YAML document. Unknown keys are rejected so a typo in a
// key name does not silently fall back to a default.
func Parse(data []byte) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &c, nil
}

// Env returns the environment variables the file sets, keyed by name.
func (c *Config) Env() map[string]string {
	out := make(map[string]string)
	for _, b := range bindings {
		if v := b.value(c); v != "" {
			out[b.env] = v
		}
	}
	return out
}

// Load finds the config file, parses it and exports every value whose
// environment variable is still empty. It returns the path it read, or ""
// when no file exists in any default location. An explicit path that does
// not exist is an error.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path, err := locate(explicitPath)
	if err != nil {
		return "", err
	}
	if path == "" {
		log.Debug("config: no YAML file found, using environment only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return "", fmt.Errorf("config: parse %s: %w", path, err)
	}

	applied := 0
	for key, val := range cfg.Env() {
		if os.Getenv(key) != "" {
			continue
		}
		if err := os.Setenv(key, val); err != nil {
			return "", fmt.Errorf("config: set %s: %w", key, err)
		}
		applied++
	}
	log.Info("config: loaded YAML file", slog.String("path", path), slog.Int("keys_applied", applied))
	return path, nil
}

// locate returns the first existing config file. The search order is the
// explicit path, DOCCHAT_CONFIG, ~/.docchat/config.yaml, then ./docchat.yaml.
func locate(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config: %w", err)
		}
		return explicit, nil
	}

	candidates := []string{os.Getenv("DOCCHAT_CONFIG")}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".docchat", "config.yaml"))
	}
	candidates = append(candidates, "docchat.yaml")

	for _, p := range candidates {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("config: %w", err)
		}
	}
	return "", nil
}

func itoa(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

func ftoa(v float32) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}

func optBoolStr(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}

func trueOrNil(v bool) *bool {
	if !v {
		return nil
	}
	return &v
}
