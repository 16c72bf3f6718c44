// Package orchestrator answers questions against the active index: it embeds
// the question, retrieves the most similar chunks, asks the generator for an
// answer and returns the extended conversation.
package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/54b3r/docchat-go/internal/conversation"
	"github.com/54b3r/docchat-go/internal/index"
	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/rag"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 4

// IndexSource yields the index snapshot to query.
type IndexSource interface {
	Current() (*index.Index, error)
}

// Config holds the collaborators of an Orchestrator. They are assembled once
// at startup; a rebuild only replaces the snapshot behind Index.
type Config struct {
	// Index provides the active index. Required.
	Index IndexSource
	// Embedder embeds questions. Must be the embedder the index was built with.
	Embedder rag.Embedder
	// Generator produces answers. Required.
	Generator rag.Generator
	// Condenser, if set, rewrites follow-up questions before retrieval.
	Condenser rag.Condenser
	// TopK is the number of chunks retrieved. Defaults to DefaultTopK.
	TopK int
	// Memory extends the history after a successful answer.
	Memory conversation.Memory
}

// Result is the outcome of a successful Ask.
type Result struct {
	// Answer is the generated response.
	Answer string
	// History is the input history with the question and answer appended.
	History conversation.History
	// Sources are the retrieved chunks, best match first.
	Sources []index.Hit
}

// Orchestrator runs the query path. Safe for concurrent use.
type Orchestrator struct {
	cfg Config
}

// New validates cfg and returns an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Index == nil:
		return nil, rag.NewError(rag.KindConfig, "orchestrator", "index source must not be nil", nil)
	case cfg.Embedder == nil:
		return nil, rag.NewError(rag.KindConfig, "orchestrator", "embedder must not be nil", nil)
	case cfg.Generator == nil:
		return nil, rag.NewError(rag.KindConfig, "orchestrator", "generator must not be nil", nil)
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &Orchestrator{cfg: cfg}, nil
}

// TopK returns the configured retrieval depth.
func (o *Orchestrator) TopK() int { return o.cfg.TopK }

// Ask answers question in the context of history. history is never
// modified; on failure no turn is appended anywhere.
func (o *Orchestrator) Ask(ctx context.Context, question string, history conversation.History) (Result, error) {
	log := logging.FromContext(ctx)
	start := time.Now()

	if strings.TrimSpace(question) == "" {
		return Result{}, rag.NewError(rag.KindInvalidInput, "ask", "question must not be empty", nil)
	}
	if err := history.Validate(); err != nil {
		return Result{}, rag.NewError(rag.KindInvalidInput, "ask", "chat_history is invalid", err)
	}
	// Work on a private copy so nothing downstream can alias the caller's slice.
	prior := history.Clone()

	// Snapshot once; a concurrent swap does not affect this request.
	idx, err := o.cfg.Index.Current()
	if err != nil {
		return Result{}, err
	}

	query := question
	if o.cfg.Condenser != nil && len(prior) > 0 {
		query, err = o.cfg.Condenser.Condense(ctx, question, prior)
		if err != nil {
			log.Error("orchestrator: condense failed", slog.Any("error", err))
			return Result{}, rag.NewError(rag.KindUpstream, "ask", "question rewriting failed", err)
		}
	}

	vec, err := rag.EmbedOne(ctx, o.cfg.Embedder, query)
	if err != nil {
		log.Error("orchestrator: question embedding failed", slog.Any("error", err))
		return Result{}, rag.NewError(rag.KindUpstream, "ask", "embedding service failed", err)
	}

	hits, err := idx.Search(vec, o.cfg.TopK)
	if err != nil {
		return Result{}, err
	}
	passages := make([]string, len(hits))
	for i, h := range hits {
		passages[i] = h.Entry.Chunk.Text
	}

	answer, err := o.cfg.Generator.Generate(ctx, question, passages, prior)
	if err != nil {
		log.Error("orchestrator: generation failed", slog.Any("error", err))
		return Result{}, rag.NewError(rag.KindUpstream, "ask", "generation service failed", err)
	}

	log.Debug("orchestrator: answered",
		slog.String("index_id", idx.ID()),
		slog.Int("retrieved", len(hits)),
		slog.Bool("condensed", query != question),
		slog.Duration("duration", time.Since(start)),
	)

	return Result{
		Answer:  answer,
		History: o.cfg.Memory.Append(prior, question, answer),
		Sources: hits,
	}, nil
}
