package server

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

type pingModel struct {
	calls int
	err   error
}

func (m *pingModel) Generate(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage("pong", nil), nil
}

func (m *pingModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

type healthFunc func(context.Context) error

func (f healthFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

type pingEmbedder struct{ err error }

func (e pingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1}
	}
	return out, nil
}

func TestIndexPinger(t *testing.T) {
	t.Parallel()

	p := NewIndexPinger(&fakeIndexes{})
	if p.Name() != "index" {
		t.Errorf("name: got %q", p.Name())
	}
	if err := p.Ping(context.Background()); err == nil {
		t.Error("expected not-ready before any index")
	}
	if err := NewIndexPinger(&fakeIndexes{active: testIndex()}).Ping(context.Background()); err != nil {
		t.Errorf("expected ready: %v", err)
	}
}

func TestLLMPinger_PrefersHealthCheck(t *testing.T) {
	t.Parallel()

	m := &pingModel{}
	p := NewLLMPinger(m, healthFunc(func(context.Context) error { return errors.New("401") }), "openai")

	err := p.Ping(context.Background())
	if err == nil || !strings.HasPrefix(err.Error(), "openai: ") {
		t.Fatalf("want error prefixed with backend name, got %v", err)
	}
	if m.calls != 0 {
		t.Errorf("model should not be called when a health check exists, got %d calls", m.calls)
	}
}

func TestLLMPinger_FallsBackToGenerate(t *testing.T) {
	t.Parallel()

	m := &pingModel{}
	if err := NewLLMPinger(m, nil, "bedrock").Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if m.calls != 1 {
		t.Errorf("want one generate probe, got %d", m.calls)
	}

	failing := NewLLMPinger(&pingModel{err: errors.New("throttled")}, nil, "bedrock")
	if err := failing.Ping(context.Background()); err == nil {
		t.Error("expected generate failure to surface")
	}
}

func TestEmbedderPinger(t *testing.T) {
	t.Parallel()

	if err := NewEmbedderPinger(pingEmbedder{}).Ping(context.Background()); err != nil {
		t.Errorf("healthy embedder: %v", err)
	}
	err := NewEmbedderPinger(pingEmbedder{err: errors.New("refused")}).Ping(context.Background())
	if err == nil || !strings.Contains(err.Error(), "embedder") {
		t.Errorf("want named embedder error, got %v", err)
	}
}
