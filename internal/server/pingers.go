package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/docchat-go/internal/index"
	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/provider"
	"github.com/54b3r/docchat-go/internal/rag"
)

// probe adapts a named function to the Pinger interface.
type probe struct {
	name string
	fn   func(ctx context.Context) error
}

func (p probe) Name() string { return p.name }

func (p probe) Ping(ctx context.Context) error {
	if err := p.fn(ctx); err != nil {
		return fmt.Errorf("%s: %w", p.name, err)
	}
	return nil
}

// NewIndexPinger is ready once src holds an active index.
func NewIndexPinger(src interface{ Current() (*index.Index, error) }) Pinger {
	return probe{name: "index", fn: func(context.Context) error {
		_, err := src.Current()
		return err
	}}
}

// NewLLMPinger probes the chat backend. hc is used when the backend offers a
// token-free endpoint; with a nil hc a one-word Generate is sent instead.
func NewLLMPinger(m model.BaseChatModel, hc provider.HealthChecker, name string) Pinger {
	return probe{name: name, fn: func(ctx context.Context) error {
		if hc != nil {
			return hc.HealthCheck(ctx)
		}
		logging.FromContext(ctx).Debug("pinger: no health endpoint, sending generate probe", "backend", name)
		msg, err := m.Generate(ctx, []*schema.Message{schema.UserMessage("ping")})
		if err != nil {
			return err
		}
		if msg == nil {
			return errors.New("generate returned no message")
		}
		return nil
	}}
}

// NewEmbedderPinger embeds a single word.
func NewEmbedderPinger(e rag.Embedder) Pinger {
	return probe{name: "embedder", fn: func(ctx context.Context) error {
		_, err := rag.EmbedOne(ctx, e, "ping")
		return err
	}}
}

// NewQdrantPinger calls the Qdrant HealthCheck RPC.
func NewQdrantPinger(c *qdrant.Client) Pinger {
	return probe{name: "qdrant", fn: func(ctx context.Context) error {
		_, err := c.HealthCheck(ctx)
		return err
	}}
}
