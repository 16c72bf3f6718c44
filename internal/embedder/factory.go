package embedder

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/docchat-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultGeminiModel = "text-embedding-004"

	defaultAzureAPIVersion = "2025-04-01-preview"
)

// Settings is the resolved embedding configuration.
type Settings struct {
	// Backend is ollama, openai, azure or gemini.
	Backend string
	// Inherited is set when Backend came from MODEL_PROVIDER rather than
	// EMBEDDING_PROVIDER.
	Inherited bool
	// Model is the embedding model or Azure deployment name.
	Model string
	// Endpoint is the API base URL (Ollama host, OpenAI base, Azure resource).
	Endpoint string
	// APIKey authenticates against hosted backends.
	APIKey string
	// APIVersion is the Azure OpenAI API version.
	APIVersion string
	// Dimensions requests a vector length from backends that support it (0 = model default).
	Dimensions int
}

// SettingsFromEnv resolves embedding settings. EMBEDDING_* variables win;
// anything they leave unset is inherited from the chat provider's variables
// for the same backend, then from the per-backend defaults.
//
//	EMBEDDING_PROVIDER    backend, else MODEL_PROVIDER, else ollama
//	EMBEDDING_MODEL       model or Azure deployment
//	EMBEDDING_ENDPOINT    base URL
//	EMBEDDING_API_KEY     credential
//	EMBEDDING_DIMENSIONS  requested vector length (openai/azure)
func SettingsFromEnv() Settings {
	return settingsFrom(os.Getenv)
}

func settingsFrom(lookup func(string) string) Settings {
	get := func(keys ...string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(lookup(k)); v != "" {
				return v
			}
		}
		return ""
	}
	or := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}

	s := Settings{Backend: strings.ToLower(get("EMBEDDING_PROVIDER"))}
	if s.Backend == "" {
		s.Backend = strings.ToLower(or(get("MODEL_PROVIDER"), "ollama"))
		s.Inherited = true
	}
	if n, err := strconv.Atoi(get("EMBEDDING_DIMENSIONS")); err == nil {
		s.Dimensions = n
	}

	switch s.Backend {
	case "ollama":
		s.Model = or(get("EMBEDDING_MODEL"), defaultOllamaModel)
		s.Endpoint = or(get("EMBEDDING_ENDPOINT", "OLLAMA_HOST"), "http://localhost:11434")
		s.APIKey = get("EMBEDDING_API_KEY")
	case "openai":
		s.Model = or(get("EMBEDDING_MODEL"), defaultOpenAIModel)
		s.Endpoint = or(get("EMBEDDING_ENDPOINT", "OPENAI_BASE_URL"), "https://api.openai.com/v1")
		s.APIKey = get("EMBEDDING_API_KEY", "OPENAI_API_KEY")
	case "azure":
		s.Model = or(get("EMBEDDING_MODEL"), defaultOpenAIModel)
		s.Endpoint = get("EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT")
		s.APIKey = get("EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY")
		s.APIVersion = or(get("AZURE_OPENAI_API_VERSION"), defaultAzureAPIVersion)
	case "gemini":
		s.Model = or(get("EMBEDDING_MODEL"), defaultGeminiModel)
		s.APIKey = get("EMBEDDING_API_KEY", "GOOGLE_API_KEY")
	default:
		s.Model = get("EMBEDDING_MODEL")
		s.Endpoint = get("EMBEDDING_ENDPOINT")
		s.APIKey = get("EMBEDDING_API_KEY")
	}
	return s
}

// New constructs a rag.Embedder from s. Settings that cannot work are a
// config error.
func New(ctx context.Context, s Settings) (rag.Embedder, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	switch s.Backend {
	case "ollama":
		return NewOllamaEmbedder(&OllamaConfig{Host: s.Endpoint, Model: s.Model}), nil
	case "gemini":
		e, err := NewGeminiEmbedder(ctx, &GeminiConfig{APIKey: s.APIKey, Model: s.Model})
		if err != nil {
			return nil, rag.NewError(rag.KindConfig, "embedder", "create gemini client", err)
		}
		return e, nil
	}

	cfg := &OpenAIConfig{
		BaseURL:    s.Endpoint,
		APIKey:     s.APIKey,
		Model:      s.Model,
		Dimensions: s.Dimensions,
	}
	if s.Backend == "azure" {
		cfg.BaseURL = strings.TrimRight(s.Endpoint, "/") + "/openai"
		cfg.Azure = true
		cfg.APIVersion = s.APIVersion
	}
	return NewOpenAIEmbedder(cfg), nil
}

// NewFromEnv constructs a rag.Embedder from SettingsFromEnv.
func NewFromEnv(ctx context.Context) (rag.Embedder, error) {
	return New(ctx, SettingsFromEnv())
}
