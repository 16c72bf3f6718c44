// Package tracing registers the Langfuse callback handler so chat model
// calls made through eino are traced.
package tracing

import (
	"log/slog"
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// Settings holds the Langfuse connection parameters.
type Settings struct {
	Host      string
	PublicKey string
	SecretKey string
}

// SettingsFromEnv reads LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY.
func SettingsFromEnv() Settings {
	s := Settings{
		Host:      os.Getenv("LANGFUSE_HOST"),
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
	}
	if s.Host == "" {
		s.Host = "http://localhost:3000"
	}
	return s
}

// Enabled reports whether both keys are present.
func (s Settings) Enabled() bool { return s.PublicKey != "" && s.SecretKey != "" }

// Enable appends the Langfuse handler to eino's global callbacks. The
// returned flush must run before process exit. When Langfuse is not
// configured Enable does nothing and flush is a no-op.
func Enable(s Settings, log *slog.Logger) (flush func()) {
	if !s.Enabled() {
		log.Debug("tracing: langfuse disabled")
		return func() {}
	}
	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      s.Host,
		PublicKey: s.PublicKey,
		SecretKey: s.SecretKey,
	})
	callbacks.AppendGlobalHandlers(handler)
	log.Info("tracing: langfuse enabled", slog.String("host", s.Host))
	return flusher
}
