package store

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/docchat-go/internal/index"
	"github.com/54b3r/docchat-go/internal/rag"
)

// upsertBatch is the number of points sent per Upsert call.
const upsertBatch = 256

// Payload keys written on every point.
const (
	payloadText     = "text"
	payloadSourceID = "source_id"
	payloadOrdinal  = "ordinal"
	payloadPosition = "position"
	payloadIndexID  = "index_id"
	payloadBuiltAt  = "built_at"
	// payloadVector holds the exact little-endian float32 bytes, base64
	// encoded, so a reload is bit-identical regardless of server-side
	// vector normalisation.
	payloadVector = "vector_le"
	// payloadEntryCount marks the commit point. It is written last, so a
	// collection without it was left behind by an interrupted Persist.
	payloadEntryCount = "entry_count"
)

// qdrantAPI is the subset of *qdrant.Client the persister calls.
type qdrantAPI interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	DeleteCollection(ctx context.Context, collectionName string) error
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
	Scroll(ctx context.Context, request *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error)
	Close() error
}

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the collection that holds the persisted index.
	Collection string

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantPersister stores an index as the points of a Qdrant collection.
// Persist recreates the collection, so only the latest index is kept. Entry
// points use ids 0..n-1; point n is a commit marker carrying the index id,
// build time and entry count, and Load refuses a collection without it.
type QdrantPersister struct {
	client *qdrant.Client
	api    qdrantAPI

	// cfg holds the resolved configuration.
	cfg *QdrantConfig
}

// NewQdrantPersister connects to Qdrant. The collection is created lazily by
// the first Persist call.
func NewQdrantPersister(cfg *QdrantConfig) (*QdrantPersister, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		return nil, rag.NewError(rag.KindConfig, "store", "qdrant collection must not be empty", nil)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}
	return &QdrantPersister{client: client, api: client, cfg: cfg}, nil
}

// Client exposes the underlying client for readiness probes.
func (p *QdrantPersister) Client() *qdrant.Client { return p.client }

// Persist replaces the collection contents with idx. The commit marker is
// upserted only after every entry batch succeeded.
func (p *QdrantPersister) Persist(ctx context.Context, idx *index.Index) error {
	if err := p.recreateCollection(ctx, idx.Dimension()); err != nil {
		return err
	}

	builtAt := idx.BuiltAt().UTC().Format(time.RFC3339Nano)
	entries := idx.Entries()
	for lo := 0; lo < len(entries); lo += upsertBatch {
		hi := min(lo+upsertBatch, len(entries))
		points := make([]*qdrant.PointStruct, 0, hi-lo)
		for i := lo; i < hi; i++ {
			e := entries[i]
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDNum(uint64(i)), //nolint:gosec // i is a non-negative slice index
				Vectors: qdrant.NewVectors(e.Vector...),
				Payload: qdrant.NewValueMap(map[string]any{
					payloadText:     e.Chunk.Text,
					payloadSourceID: e.Chunk.SourceID,
					payloadOrdinal:  int64(e.Chunk.Ordinal),
					payloadPosition: int64(i),
					payloadVector:   base64.StdEncoding.EncodeToString(encodeVector(e.Vector)),
				}),
			})
		}
		if err := p.upsert(ctx, points); err != nil {
			return err
		}
	}

	marker := make([]float32, max(idx.Dimension(), 1))
	for i := range marker {
		marker[i] = 1
	}
	return p.upsert(ctx, []*qdrant.PointStruct{{
		Id:      qdrant.NewIDNum(uint64(len(entries))),
		Vectors: qdrant.NewVectors(marker...),
		Payload: qdrant.NewValueMap(map[string]any{
			payloadIndexID:    idx.ID(),
			payloadBuiltAt:    builtAt,
			payloadEntryCount: int64(len(entries)),
		}),
	}})
}

func (p *QdrantPersister) upsert(ctx context.Context, points []*qdrant.PointStruct) error {
	_, err := p.api.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: p.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// recreateCollection drops the collection if present and creates it with
// cosine distance and the given vector size.
func (p *QdrantPersister) recreateCollection(ctx context.Context, dim int) error {
	exists, err := p.api.CollectionExists(ctx, p.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		if err := p.api.DeleteCollection(ctx, p.cfg.Collection); err != nil {
			return fmt.Errorf("qdrant: failed to drop collection %q: %w", p.cfg.Collection, err)
		}
	}
	dim = max(dim, 1)
	err = p.api.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: p.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim), //nolint:gosec // dimension is positive
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", p.cfg.Collection, err)
	}
	return nil
}

// Load reads every point of the collection back into an Index ordered by
// original insertion position. It returns index.ErrNotPersisted when the
// collection does not exist, and an error when the commit marker is missing
// or the entry count disagrees with it.
func (p *QdrantPersister) Load(ctx context.Context) (*index.Index, error) {
	exists, err := p.api.CollectionExists(ctx, p.cfg.Collection)
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		return nil, index.ErrNotPersisted
	}

	count, err := p.api.Count(ctx, &qdrant.CountPoints{
		CollectionName: p.cfg.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: count failed: %w", err)
	}
	var points []*qdrant.RetrievedPoint
	if count > 0 {
		points, err = p.api.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: p.cfg.Collection,
			Limit:          qdrant.PtrOf(uint32(count)), //nolint:gosec // bounded by collection size
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant: scroll failed: %w", err)
		}
	}

	type positioned struct {
		pos   int64
		entry index.Entry
	}
	var (
		items  = make([]positioned, 0, len(points))
		marker map[string]*qdrant.Value
	)
	for _, pt := range points {
		pl := pt.GetPayload()
		if _, ok := pl[payloadEntryCount]; ok {
			marker = pl
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(pl[payloadVector].GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("qdrant: decode vector: %w", err)
		}
		vec, err := decodeVector(raw)
		if err != nil {
			return nil, err
		}
		items = append(items, positioned{
			pos: pl[payloadPosition].GetIntegerValue(),
			entry: index.Entry{
				Chunk: rag.Chunk{
					Text:     pl[payloadText].GetStringValue(),
					SourceID: pl[payloadSourceID].GetStringValue(),
					Ordinal:  int(pl[payloadOrdinal].GetIntegerValue()),
				},
				Vector: vec,
			},
		})
	}
	if marker == nil {
		return nil, fmt.Errorf("qdrant: collection %q holds no commit marker, the last persist did not finish", p.cfg.Collection)
	}
	if want := marker[payloadEntryCount].GetIntegerValue(); want != int64(len(items)) {
		return nil, fmt.Errorf("qdrant: index in %q is incomplete: want %d entries, found %d", p.cfg.Collection, want, len(items))
	}
	builtAt, err := time.Parse(time.RFC3339Nano, marker[payloadBuiltAt].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("qdrant: parse built_at: %w", err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].pos < items[j].pos })

	entries := make([]index.Entry, len(items))
	for i, it := range items {
		entries[i] = it.entry
	}
	idx, err := index.Restore(marker[payloadIndexID].GetStringValue(), builtAt, entries)
	if err != nil {
		return nil, fmt.Errorf("qdrant: restore: %w", err)
	}
	return idx, nil
}

// Close closes the underlying Qdrant gRPC connection.
func (p *QdrantPersister) Close() error {
	return p.api.Close()
}
