// Package index implements the immutable in-process vector index queried by
// the retrieval path. An Index is built once from embedded chunks and never
// mutated afterwards; rebuilding always produces a new Index.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/54b3r/docchat-go/internal/rag"
)

// Build defaults.
const (
	DefaultBatchSize   = 64
	DefaultConcurrency = 4
)

// ErrNotPersisted is returned by a Persister when no index exists at its
// location.
var ErrNotPersisted = errors.New("index: no persisted index")

// Entry is an embedded chunk owned by an Index.
type Entry struct {
	// Chunk is the source text and its position.
	Chunk rag.Chunk
	// Vector is the chunk embedding. Every entry in an Index has the same length.
	Vector []float32
}

// Hit is a search result.
type Hit struct {
	// Entry is the matched entry.
	Entry Entry
	// Score is the cosine similarity between the query and the entry.
	Score float64
}

// Index is an immutable snapshot of embedded chunks. Safe for concurrent reads.
type Index struct {
	id        string
	builtAt   time.Time
	dimension int
	entries   []Entry
	norms     []float64
}

// Options tunes Build.
type Options struct {
	// BatchSize is the number of chunks sent per embedding call.
	BatchSize int
	// Concurrency is the number of embedding calls in flight.
	Concurrency int
	// Now overrides the build timestamp source. Used in tests.
	Now func() time.Time
}

// Persister stores and restores an Index at a fixed location.
type Persister interface {
	// Persist writes idx, replacing any previously persisted index.
	Persist(ctx context.Context, idx *Index) error
	// Load reads the persisted index. Returns ErrNotPersisted when none exists.
	Load(ctx context.Context) (*Index, error)
}

// Build embeds every chunk and returns a new Index. Any embedding failure
// discards all work and returns an embedding error.
func Build(ctx context.Context, chunks []rag.Chunk, embedder rag.Embedder, opts Options) (*Index, error) {
	if embedder == nil {
		return nil, rag.NewError(rag.KindConfig, "build", "embedder must not be nil", nil)
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	conc := opts.Concurrency
	if conc <= 0 {
		conc = DefaultConcurrency
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(conc)
	for lo := 0; lo < len(chunks); lo += batch {
		hi := min(lo+batch, len(chunks))
		g.Go(func() error {
			texts := make([]string, hi-lo)
			for i := range texts {
				texts[i] = chunks[lo+i].Text
			}
			vecs, err := embedder.Embed(gctx, texts)
			if err != nil {
				return rag.NewError(rag.KindEmbedding, "build", fmt.Sprintf("embedding chunks %d-%d failed", lo, hi-1), err)
			}
			if len(vecs) != len(texts) {
				return rag.NewError(rag.KindEmbedding, "build", fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vecs), len(texts)), nil)
			}
			copy(vectors[lo:hi], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := make([]Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = Entry{Chunk: c, Vector: vectors[i]}
	}
	return newIndex(uuid.NewString(), now().UTC(), entries)
}

// Restore reassembles an Index from previously persisted parts. Entries must
// be in their original insertion order.
func Restore(id string, builtAt time.Time, entries []Entry) (*Index, error) {
	return newIndex(id, builtAt, entries)
}

func newIndex(id string, builtAt time.Time, entries []Entry) (*Index, error) {
	idx := &Index{
		id:      id,
		builtAt: builtAt,
		entries: make([]Entry, len(entries)),
		norms:   make([]float64, len(entries)),
	}
	for i, e := range entries {
		e.Vector = slices.Clone(e.Vector)
		idx.entries[i] = e
		if len(e.Vector) == 0 {
			return nil, rag.NewError(rag.KindEmbedding, "build", fmt.Sprintf("entry %d has an empty vector", i), nil)
		}
		if i == 0 {
			idx.dimension = len(e.Vector)
		} else if len(e.Vector) != idx.dimension {
			return nil, rag.NewError(rag.KindEmbedding, "build",
				fmt.Sprintf("entry %d has dimension %d, want %d", i, len(e.Vector), idx.dimension), nil)
		}
		idx.norms[i] = norm(e.Vector)
	}
	return idx, nil
}

// ID returns the unique identifier assigned when the index was built.
func (x *Index) ID() string { return x.id }

// BuiltAt returns the build timestamp.
func (x *Index) BuiltAt() time.Time { return x.builtAt }

// Dimension returns the vector length shared by all entries, or 0 when empty.
func (x *Index) Dimension() int { return x.dimension }

// Len returns the number of entries.
func (x *Index) Len() int { return len(x.entries) }

// Entries returns a deep copy of the entries in insertion order.
func (x *Index) Entries() []Entry {
	out := make([]Entry, len(x.entries))
	for i, e := range x.entries {
		out[i] = cloneEntry(e)
	}
	return out
}

func cloneEntry(e Entry) Entry {
	e.Vector = slices.Clone(e.Vector)
	return e
}

// Search returns the k entries most similar to query by cosine similarity,
// highest first. Equal scores keep insertion order. k larger than Len
// returns every entry. A query whose length differs from Dimension means the
// index was built by a different embedding model and fails with KindConfig.
func (x *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(x.entries) == 0 {
		return nil, rag.NewError(rag.KindEmptyIndex, "search", "index has no entries", nil)
	}
	if k <= 0 {
		return nil, rag.NewError(rag.KindInvalidInput, "search", fmt.Sprintf("k must be positive, got %d", k), nil)
	}
	if len(query) != x.dimension {
		return nil, rag.NewError(rag.KindConfig, "search",
			fmt.Sprintf("query dimension %d does not match index dimension %d", len(query), x.dimension), nil)
	}

	qn := norm(query)
	hits := make([]Hit, len(x.entries))
	for i, e := range x.entries {
		hits[i] = Hit{Entry: e, Score: cosine(query, qn, e.Vector, x.norms[i])}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	if k < len(hits) {
		hits = hits[:k]
	}
	for i := range hits {
		hits[i].Entry = cloneEntry(hits[i].Entry)
	}
	return hits, nil
}

func norm(v []float32) float64 {
	var s float64
	for _, f := range v {
		s += float64(f) * float64(f)
	}
	return math.Sqrt(s)
}

// cosine returns 0 when either vector has zero magnitude.
func cosine(a []float32, an float64, b []float32, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (an * bn)
}
