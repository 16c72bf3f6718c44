// Package lifecycle owns the active vector index. Queries read the active
// index without locking; rebuilds run one at a time and publish their result
// with a single atomic pointer swap, so a reader sees either the previous
// index or the new one in full.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/54b3r/docchat-go/internal/chunker"
	"github.com/54b3r/docchat-go/internal/index"
	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/rag"
)

// Config holds the dependencies of a Manager.
type Config struct {
	// Chunker splits documents before embedding. Required.
	Chunker *chunker.Chunker
	// Embedder embeds chunks during a rebuild. Required.
	Embedder rag.Embedder
	// Persister stores each published index. Optional; nil keeps indexes in
	// memory only.
	Persister index.Persister
	// Build tunes batched embedding.
	Build index.Options
	// OnPublish, if set, is called after every successful publish.
	OnPublish func(*index.Index)
}

// Manager owns the active index handle.
type Manager struct {
	cfg Config

	active     atomic.Pointer[index.Index]
	rebuilding atomic.Bool

	// lastDocs is the most recently ingested document set. Only read or
	// written by the goroutine that holds the rebuilding flag.
	lastDocs []rag.Document
}

// New validates cfg and returns a Manager with no active index.
func New(cfg Config) (*Manager, error) {
	if cfg.Chunker == nil {
		return nil, rag.NewError(rag.KindConfig, "lifecycle", "chunker must not be nil", nil)
	}
	if cfg.Embedder == nil {
		return nil, rag.NewError(rag.KindConfig, "lifecycle", "embedder must not be nil", nil)
	}
	return &Manager{cfg: cfg}, nil
}

// Current returns the active index. The returned snapshot stays valid for
// the caller even if a newer index is published afterwards.
func (m *Manager) Current() (*index.Index, error) {
	idx := m.active.Load()
	if idx == nil {
		return nil, rag.NewError(rag.KindNoIndex, "current", "no index has been built or loaded yet", nil)
	}
	return idx, nil
}

// Rebuilding reports whether a rebuild or refresh is running.
func (m *Manager) Rebuilding() bool { return m.rebuilding.Load() }

// Rebuild chunks and embeds docs, persists the result when a persister is
// configured, and publishes it as the active index. On any failure the
// active index is left untouched. A call made while another rebuild is
// running fails with a rebuild-in-progress error.
func (m *Manager) Rebuild(ctx context.Context, docs []rag.Document) (*index.Index, error) {
	if !m.rebuilding.CompareAndSwap(false, true) {
		return nil, rag.NewError(rag.KindRebuildInProgress, "rebuild", "another index rebuild is running", nil)
	}
	defer m.rebuilding.Store(false)

	idx, err := m.build(ctx, docs)
	if err != nil {
		return nil, err
	}
	m.lastDocs = append([]rag.Document(nil), docs...)
	return idx, nil
}

// Refresh reloads the index from the persisted location when one is
// configured and holds an index; otherwise it rebuilds from the last
// ingested document set. It fails with a no-index error when neither source
// is available.
func (m *Manager) Refresh(ctx context.Context) (*index.Index, error) {
	if !m.rebuilding.CompareAndSwap(false, true) {
		return nil, rag.NewError(rag.KindRebuildInProgress, "refresh", "another index rebuild is running", nil)
	}
	defer m.rebuilding.Store(false)

	log := logging.FromContext(ctx)

	if m.cfg.Persister != nil {
		idx, err := m.cfg.Persister.Load(ctx)
		switch {
		case err == nil:
			m.publish(ctx, idx, "persisted")
			return idx, nil
		case !errors.Is(err, index.ErrNotPersisted):
			return nil, fmt.Errorf("lifecycle: refresh: load persisted index: %w", err)
		}
		log.Debug("lifecycle: no persisted index, falling back to last ingested documents")
	}

	if m.lastDocs == nil {
		return nil, rag.NewError(rag.KindNoIndex, "refresh", "no persisted index and no ingested documents to rebuild from", nil)
	}
	return m.build(ctx, m.lastDocs)
}

// LoadPersisted publishes the persisted index, if any. Intended for startup;
// a missing index is not an error.
func (m *Manager) LoadPersisted(ctx context.Context) (bool, error) {
	if m.cfg.Persister == nil {
		return false, nil
	}
	if !m.rebuilding.CompareAndSwap(false, true) {
		return false, rag.NewError(rag.KindRebuildInProgress, "load", "another index rebuild is running", nil)
	}
	defer m.rebuilding.Store(false)

	idx, err := m.cfg.Persister.Load(ctx)
	if errors.Is(err, index.ErrNotPersisted) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lifecycle: load persisted index: %w", err)
	}
	m.publish(ctx, idx, "persisted")
	return true, nil
}

// build runs chunk → embed → persist → publish. Caller holds the rebuilding flag.
func (m *Manager) build(ctx context.Context, docs []rag.Document) (*index.Index, error) {
	log := logging.FromContext(ctx)
	start := time.Now()

	var chunks []rag.Chunk
	for _, d := range docs {
		chunks = append(chunks, m.cfg.Chunker.Chunk(d)...)
	}

	idx, err := index.Build(ctx, chunks, m.cfg.Embedder, m.cfg.Build)
	if err != nil {
		log.Error("lifecycle: index build failed, keeping active index",
			slog.Int("documents", len(docs)),
			slog.Int("chunks", len(chunks)),
			slog.Any("error", err),
		)
		return nil, err
	}

	if m.cfg.Persister != nil {
		if err := m.cfg.Persister.Persist(ctx, idx); err != nil {
			log.Error("lifecycle: index persist failed, keeping active index",
				slog.String("index_id", idx.ID()),
				slog.Any("error", err),
			)
			return nil, fmt.Errorf("lifecycle: persist index: %w", err)
		}
	}

	m.publish(ctx, idx, "rebuild")
	log.Info("lifecycle: index rebuilt",
		slog.String("index_id", idx.ID()),
		slog.Int("documents", len(docs)),
		slog.Int("chunks", idx.Len()),
		slog.Duration("duration", time.Since(start)),
	)
	return idx, nil
}

func (m *Manager) publish(ctx context.Context, idx *index.Index, origin string) {
	prev := m.active.Swap(idx)
	attrs := []any{
		slog.String("index_id", idx.ID()),
		slog.Int("entries", idx.Len()),
		slog.String("origin", origin),
	}
	if prev != nil {
		attrs = append(attrs, slog.String("previous_index_id", prev.ID()))
	}
	logging.FromContext(ctx).Info("lifecycle: index published", attrs...)
	if m.cfg.OnPublish != nil {
		m.cfg.OnPublish(idx)
	}
}
