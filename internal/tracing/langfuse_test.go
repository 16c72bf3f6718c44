package tracing

import (
	"io"
	"log/slog"
	"testing"
)

func TestSettingsFromEnv(t *testing.T) {
	t.Setenv("LANGFUSE_HOST", "")
	t.Setenv("LANGFUSE_PUBLIC_KEY", "pk")
	t.Setenv("LANGFUSE_SECRET_KEY", "")

	s := SettingsFromEnv()
	if s.Host != "http://localhost:3000" {
		t.Errorf("host: got %q", s.Host)
	}
	if s.Enabled() {
		t.Error("expected disabled without a secret key")
	}
}

func TestEnable_DisabledIsNoop(t *testing.T) {
	t.Parallel()

	flush := Enable(Settings{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if flush == nil {
		t.Fatal("flush must never be nil")
	}
	flush()
}
