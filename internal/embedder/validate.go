package embedder

import (
	"log/slog"
	"strings"

	"github.com/54b3r/docchat-go/internal/rag"
)

// chatModelHints are name fragments of chat models. Those produce poor
// embeddings or reject the embeddings endpoint outright.
var chatModelHints = []string{
	"gpt-4", "gpt-3.5", "gpt-35", "o1", "o3",
	"llama3", "llama2", "llama-3", "llama-2",
	"mistral", "mixtral", "gemma", "phi-", "phi3",
	"claude", "command-r", "deepseek", "qwen",
	"solar", "vicuna", "falcon", "yi-",
}

func looksLikeChatModel(model string) bool {
	m := strings.ToLower(model)
	for _, hint := range chatModelHints {
		if strings.Contains(m, hint) {
			return true
		}
	}
	return false
}

type requirement struct {
	value func(Settings) string
	vars  string
}

var (
	needAPIKey   = requirement{func(s Settings) string { return s.APIKey }, "EMBEDDING_API_KEY"}
	needEndpoint = requirement{func(s Settings) string { return s.Endpoint }, "EMBEDDING_ENDPOINT"}
)

// requirements lists the settings each supported backend cannot run without.
// The hint names the chat-provider variable the value is inherited from.
var requirements = map[string][]struct {
	requirement
	inherited string
}{
	"ollama": nil,
	"openai": {{needAPIKey, "OPENAI_API_KEY"}},
	"azure":  {{needAPIKey, "AZURE_OPENAI_API_KEY"}, {needEndpoint, "AZURE_OPENAI_ENDPOINT"}},
	"gemini": {{needAPIKey, "GOOGLE_API_KEY"}},
}

// check returns a config error when s cannot produce an embedder.
func (s Settings) check() error {
	reqs, ok := requirements[s.Backend]
	if !ok {
		msg := "unknown backend " + s.Backend + " (valid: ollama, openai, azure, gemini)"
		if s.Backend == "bedrock" {
			msg = "bedrock embeddings are not supported; set EMBEDDING_PROVIDER to ollama, openai, azure or gemini"
		}
		return rag.NewError(rag.KindConfig, "embedder", msg, nil)
	}
	var missing []string
	for _, r := range reqs {
		if r.value(s) == "" {
			missing = append(missing, r.inherited+" or "+r.vars)
		}
	}
	if len(missing) > 0 {
		return rag.NewError(rag.KindConfig, "embedder",
			s.Backend+" requires "+strings.Join(missing, ", "), nil)
	}
	return nil
}

// Validate is the startup pre-flight for s: it fails on settings that cannot
// work and warns about ones that probably will not work well.
func Validate(s Settings, log *slog.Logger) error {
	if err := s.check(); err != nil {
		return err
	}
	if s.Inherited && s.Backend != "ollama" {
		log.Warn("embedder: EMBEDDING_PROVIDER not set, using MODEL_PROVIDER for embeddings",
			slog.String("backend", s.Backend))
	}
	if looksLikeChatModel(s.Model) {
		log.Warn("embedder: embedding model looks like a chat model",
			slog.String("model", s.Model),
			slog.String("hint", "use a dedicated embedding model such as nomic-embed-text or text-embedding-3-small"))
	}
	return nil
}
