package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"

	"github.com/54b3r/docchat-go/internal/chunker"
	"github.com/54b3r/docchat-go/internal/config"
	"github.com/54b3r/docchat-go/internal/conversation"
	"github.com/54b3r/docchat-go/internal/embedder"
	"github.com/54b3r/docchat-go/internal/generator"
	"github.com/54b3r/docchat-go/internal/index"
	"github.com/54b3r/docchat-go/internal/lifecycle"
	"github.com/54b3r/docchat-go/internal/orchestrator"
	"github.com/54b3r/docchat-go/internal/provider"
	"github.com/54b3r/docchat-go/internal/rag"
	"github.com/54b3r/docchat-go/internal/server"
	"github.com/54b3r/docchat-go/internal/store"
)

// indexStack is the ingest side of the pipeline: settings, embedder,
// persister and the lifecycle manager that owns the active index.
type indexStack struct {
	settings *config.Pipeline
	embedder rag.Embedder
	qdrant   *store.QdrantPersister
	manager  *lifecycle.Manager
	close    func()
}

// buildIndexStack reads pipeline settings and wires the embedder, the
// configured persister and the lifecycle manager.
func buildIndexStack(ctx context.Context, log *slog.Logger) (*indexStack, error) {
	settings, err := config.PipelineFromEnv()
	if err != nil {
		return nil, err
	}
	ch, err := chunker.New(settings.ChunkSize, settings.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	embSettings := embedder.SettingsFromEnv()
	if err := embedder.Validate(embSettings, log); err != nil {
		return nil, err
	}
	emb, err := embedder.New(ctx, embSettings)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised",
		slog.String("provider", embSettings.Backend),
		slog.String("model", embSettings.Model),
	)

	s := &indexStack{settings: settings, embedder: emb, close: func() {}}

	var persister index.Persister
	switch settings.IndexBackend {
	case config.IndexBackendQdrant:
		qp, err := store.NewQdrantPersister(&store.QdrantConfig{
			Host:       settings.QdrantHost,
			Port:       settings.QdrantPort,
			Collection: settings.QdrantCollection,
			APIKey:     settings.QdrantAPIKey,
			UseTLS:     settings.QdrantTLS,
		})
		if err != nil {
			return nil, err
		}
		s.qdrant = qp
		s.close = func() { _ = qp.Close() }
		persister = qp
		log.Info("index store: qdrant",
			slog.String("host", settings.QdrantHost),
			slog.Int("port", settings.QdrantPort),
			slog.String("collection", settings.QdrantCollection),
		)
	default:
		sp, err := store.NewSQLitePersister(settings.IndexDir)
		if err != nil {
			return nil, err
		}
		persister = sp
		log.Info("index store: sqlite", slog.String("path", sp.Path()))
	}

	mgr, err := lifecycle.New(lifecycle.Config{
		Chunker:   ch,
		Embedder:  emb,
		Persister: persister,
		Build: index.Options{
			BatchSize:   settings.EmbedBatchSize,
			Concurrency: settings.EmbedConcurrency,
		},
	})
	if err != nil {
		s.close()
		return nil, err
	}
	s.manager = mgr
	return s, nil
}

// queryStack is the chat side of the pipeline.
type queryStack struct {
	orchestrator *orchestrator.Orchestrator
	chatModel    model.BaseChatModel
	providerCfg  *provider.Config
}

// buildQueryStack wires the chat model, the generator and the orchestrator
// over the index stack.
func buildQueryStack(ctx context.Context, log *slog.Logger, ix *indexStack) (*queryStack, error) {
	providerCfg := provider.ConfigFromEnv()
	chatModel, err := provider.New(ctx, providerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised",
		slog.String("provider", string(providerCfg.Backend)),
		slog.String("model", providerCfg.ModelName()),
	)

	gen, err := generator.New(generator.Config{
		ChatModel:        chatModel,
		MaxContextTokens: ix.settings.MaxContextTokens,
	})
	if err != nil {
		return nil, err
	}

	cfg := orchestrator.Config{
		Index:     ix.manager,
		Embedder:  ix.embedder,
		Generator: gen,
		TopK:      ix.settings.TopK,
		Memory:    conversation.Memory{MaxTurns: ix.settings.HistoryMaxTurns},
	}
	if ix.settings.CondenseQuestion {
		cfg.Condenser = gen
	}
	orch, err := orchestrator.New(cfg)
	if err != nil {
		return nil, err
	}
	return &queryStack{orchestrator: orch, chatModel: chatModel, providerCfg: providerCfg}, nil
}

// buildPingers returns the readiness probes for GET /api/ready.
func buildPingers(ix *indexStack, q *queryStack) []server.Pinger {
	pingers := []server.Pinger{
		server.NewIndexPinger(ix.manager),
		server.NewLLMPinger(q.chatModel, provider.HealthCheckFor(q.providerCfg), string(q.providerCfg.Backend)),
		server.NewEmbedderPinger(ix.embedder),
	}
	if ix.qdrant != nil {
		pingers = append(pingers, server.NewQdrantPinger(ix.qdrant.Client()))
	}
	return pingers
}
