package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/docchat-go/internal/index"
	"github.com/54b3r/docchat-go/internal/rag"
)

// memQdrant keeps one collection in memory. failUpsert, when positive, makes
// the n-th Upsert call (1-based) fail.
type memQdrant struct {
	mu         sync.Mutex
	exists     bool
	points     map[uint64]map[string]*qdrant.Value
	upserts    int
	failUpsert int
}

func (m *memQdrant) CollectionExists(context.Context, string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exists, nil
}

func (m *memQdrant) DeleteCollection(context.Context, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exists, m.points = false, nil
	return nil
}

func (m *memQdrant) CreateCollection(context.Context, *qdrant.CreateCollection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exists, m.points = true, make(map[uint64]map[string]*qdrant.Value)
	return nil
}

func (m *memQdrant) Upsert(_ context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.failUpsert > 0 && m.upserts == m.failUpsert {
		return nil, errors.New("connection reset")
	}
	for _, pt := range req.GetPoints() {
		m.points[pt.GetId().GetNum()] = pt.GetPayload()
	}
	return &qdrant.UpdateResult{}, nil
}

func (m *memQdrant) Count(context.Context, *qdrant.CountPoints) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(len(m.points)), nil
}

func (m *memQdrant) Scroll(context.Context, *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*qdrant.RetrievedPoint, 0, len(m.points))
	for id, pl := range m.points {
		out = append(out, &qdrant.RetrievedPoint{Id: qdrant.NewIDNum(id), Payload: pl})
	}
	return out, nil
}

func (m *memQdrant) Close() error { return nil }

func newMemPersister() (*QdrantPersister, *memQdrant) {
	fake := &memQdrant{}
	return &QdrantPersister{api: fake, cfg: &QdrantConfig{Collection: "docs"}}, fake
}

func largeIndex(t *testing.T, n int) *index.Index {
	t.Helper()
	entries := make([]index.Entry, n)
	for i := range entries {
		entries[i] = index.Entry{
			Chunk:  rag.Chunk{Text: fmt.Sprintf("chunk %d", i), SourceID: "big", Ordinal: i},
			Vector: []float32{float32(i + 1), 1},
		}
	}
	idx, err := index.Restore("idx-big", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), entries)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	return idx
}

func TestQdrantPersister_RoundTrip(t *testing.T) {
	t.Parallel()

	p, _ := newMemPersister()
	ctx := context.Background()
	orig := testIndex(t)

	if err := p.Persist(ctx, orig); err != nil {
		t.Fatalf("persist: %v", err)
	}
	got, err := p.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ID() != orig.ID() || !got.BuiltAt().Equal(orig.BuiltAt()) {
		t.Errorf("metadata: want %s@%v, got %s@%v", orig.ID(), orig.BuiltAt(), got.ID(), got.BuiltAt())
	}
	want, have := orig.Entries(), got.Entries()
	if len(have) != len(want) {
		t.Fatalf("entries: want %d, got %d", len(want), len(have))
	}
	for i := range want {
		if have[i].Chunk != want[i].Chunk {
			t.Errorf("entry %d: want %+v, got %+v", i, want[i].Chunk, have[i].Chunk)
		}
		for j := range want[i].Vector {
			if math.Float32bits(have[i].Vector[j]) != math.Float32bits(want[i].Vector[j]) {
				t.Errorf("entry %d component %d: bits differ", i, j)
			}
		}
	}
}

func TestQdrantPersister_EmptyIndexKeepsIdentity(t *testing.T) {
	t.Parallel()

	p, _ := newMemPersister()
	ctx := context.Background()
	builtAt := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	orig, err := index.Restore("idx-empty", builtAt, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Persist(ctx, orig); err != nil {
		t.Fatalf("persist: %v", err)
	}
	got, err := p.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Len() != 0 || got.ID() != "idx-empty" || !got.BuiltAt().Equal(builtAt) {
		t.Errorf("want empty idx-empty@%v, got %d entries %s@%v", builtAt, got.Len(), got.ID(), got.BuiltAt())
	}
}

func TestQdrantPersister_InterruptedPersistIsNotLoadable(t *testing.T) {
	t.Parallel()

	p, fake := newMemPersister()
	fake.failUpsert = 2
	ctx := context.Background()

	if err := p.Persist(ctx, largeIndex(t, upsertBatch+10)); err == nil {
		t.Fatal("expected the second batch to fail")
	}
	if n, _ := fake.Count(ctx, nil); n != upsertBatch {
		t.Fatalf("setup: want %d points left behind, got %d", upsertBatch, n)
	}

	_, err := p.Load(ctx)
	if err == nil {
		t.Fatal("a truncated collection must not load")
	}
	if errors.Is(err, index.ErrNotPersisted) {
		t.Errorf("truncated collection reported as never persisted: %v", err)
	}
}

func TestQdrantPersister_MissingEntryIsNotLoadable(t *testing.T) {
	t.Parallel()

	p, fake := newMemPersister()
	ctx := context.Background()
	if err := p.Persist(ctx, largeIndex(t, 5)); err != nil {
		t.Fatalf("persist: %v", err)
	}
	delete(fake.points, 2)

	if _, err := p.Load(ctx); err == nil {
		t.Fatal("expected an entry-count mismatch error")
	}
}

func TestQdrantPersister_NoCollection(t *testing.T) {
	t.Parallel()

	p, _ := newMemPersister()
	if _, err := p.Load(context.Background()); !errors.Is(err, index.ErrNotPersisted) {
		t.Errorf("want ErrNotPersisted, got %v", err)
	}
}
