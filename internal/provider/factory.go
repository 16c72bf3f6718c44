package provider

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/model"

	"github.com/54b3r/docchat-go/internal/rag"
)

// Generation defaults, matching the chat settings docchat has always shipped with.
const (
	DefaultMaxTokens   = 4000
	DefaultTemperature = 1.0
)

// Per-backend model defaults used when the environment names none.
const (
	defaultOllamaHost      = "http://localhost:11434"
	defaultOllamaModel     = "llama3"
	defaultOpenAIModel     = "gpt-4o"
	defaultAzureAPIVersion = "2024-02-01"
	defaultBedrockRegion   = "us-east-1"
	defaultGeminiModel     = "gemini-1.5-pro"
)

type constructor func(ctx context.Context, cfg *Config) (model.BaseChatModel, error)

var constructors = map[Backend]constructor{
	BackendOllama:  newOllama,
	BackendOpenAI:  newOpenAI,
	BackendAzure:   newAzure,
	BackendBedrock: newBedrock,
	BackendGemini:  newGemini,
}

// envSource reads trimmed values from a lookup function. Numbers that fail to
// parse fall back to the default; Validate reports the settings that matter.
type envSource func(string) string

func (e envSource) str(key, def string) string {
	if v := strings.TrimSpace(e(key)); v != "" {
		return v
	}
	return def
}

func (e envSource) integer(key string, def int) int {
	n, err := strconv.Atoi(e.str(key, ""))
	if err != nil {
		return def
	}
	return n
}

func (e envSource) float(key string, def float32) float32 {
	f, err := strconv.ParseFloat(e.str(key, ""), 32)
	if err != nil {
		return def
	}
	return float32(f)
}

// ConfigFromEnv resolves a Config from the process environment.
//
//	MODEL_PROVIDER  ollama | openai | azure | bedrock | gemini (default ollama)
//	Ollama          OLLAMA_HOST, OLLAMA_MODEL
//	OpenAI          OPENAI_API_KEY, OPENAI_MODEL, OPENAI_BASE_URL
//	Azure           AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT, AZURE_OPENAI_API_VERSION
//	Bedrock         AWS_REGION, BEDROCK_MODEL_ID, AWS_BEARER_TOKEN_BEDROCK
//	Gemini          GOOGLE_API_KEY, GEMINI_MODEL
//	Tuning          MODEL_MAX_TOKENS, MODEL_TEMPERATURE
func ConfigFromEnv() *Config {
	return configFrom(os.Getenv)
}

func configFrom(lookup func(string) string) *Config {
	env := envSource(lookup)
	return &Config{
		Backend: Backend(strings.ToLower(env.str("MODEL_PROVIDER", string(BackendOllama)))),
		Ollama: ProviderOllama{
			Host:  env.str("OLLAMA_HOST", defaultOllamaHost),
			Model: env.str("OLLAMA_MODEL", defaultOllamaModel),
		},
		OpenAI: ProviderOpenAI{
			APIKey:  env.str("OPENAI_API_KEY", ""),
			Model:   env.str("OPENAI_MODEL", defaultOpenAIModel),
			BaseURL: env.str("OPENAI_BASE_URL", ""),
		},
		AzureOpenAI: ProviderAzureOpenAI{
			APIKey:     env.str("AZURE_OPENAI_API_KEY", ""),
			Endpoint:   env.str("AZURE_OPENAI_ENDPOINT", ""),
			Deployment: env.str("AZURE_OPENAI_DEPLOYMENT", ""),
			APIVersion: env.str("AZURE_OPENAI_API_VERSION", defaultAzureAPIVersion),
		},
		Bedrock: ProviderBedrock{
			AWSRegion: env.str("AWS_REGION", defaultBedrockRegion),
			ModelID:   env.str("BEDROCK_MODEL_ID", ""),
			APIKey:    env.str("AWS_BEARER_TOKEN_BEDROCK", ""),
		},
		Gemini: ProviderGemini{
			APIKey: env.str("GOOGLE_API_KEY", ""),
			Model:  env.str("GEMINI_MODEL", defaultGeminiModel),
		},
		Tuning: SharedTuning{
			MaxTokens:   env.integer("MODEL_MAX_TOKENS", DefaultMaxTokens),
			Temperature: env.float("MODEL_TEMPERATURE", DefaultTemperature),
		},
	}
}

// New validates cfg and constructs the chat model for its backend. A bad
// configuration surfaces as a config error at startup, before any request.
func New(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, rag.NewError(rag.KindConfig, "provider", err.Error(), nil)
	}
	build, ok := constructors[cfg.Backend]
	if !ok {
		return nil, rag.NewError(rag.KindConfig, "provider", "no constructor for backend "+string(cfg.Backend), nil)
	}
	m, err := build(ctx, cfg)
	if err != nil {
		return nil, rag.NewError(rag.KindConfig, "provider", "create "+string(cfg.Backend)+" chat model", err)
	}
	return m, nil
}
