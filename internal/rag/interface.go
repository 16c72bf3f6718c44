// Package rag defines the types and interfaces shared by the retrieval
// pipeline: documents, chunks, and the external embedding and generation
// capabilities. Concrete backends satisfy these interfaces so the core
// packages never depend on a specific provider.
package rag

import (
	"context"

	"github.com/54b3r/docchat-go/internal/conversation"
)

// Document is a unit of ingested text. Text extraction happens before a
// Document is constructed.
type Document struct {
	// ID is a stable identifier for the document.
	ID string `json:"id"`

	// Source is the origin path or URL of the document.
	Source string `json:"source"`

	// Text is the extracted plain text content.
	Text string `json:"text"`
}

// Chunk is a bounded contiguous excerpt of a document sized for embedding.
type Chunk struct {
	// Text is the chunk content.
	Text string `json:"text"`

	// SourceID is the ID of the document the chunk came from.
	SourceID string `json:"source_id"`

	// Ordinal is the position of the chunk within its document, starting at 0.
	Ordinal int `json:"ordinal"`
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces an answer from a question, retrieved passages and the
// prior conversation. Retries and rate limits are the implementation's concern.
type Generator interface {
	Generate(ctx context.Context, question string, passages []string, history conversation.History) (string, error)
}

// Condenser rewrites a follow-up question into a standalone question using
// the prior conversation, so retrieval does not depend on pronouns or
// elided context.
type Condenser interface {
	Condense(ctx context.Context, question string, history conversation.History) (string, error)
}

// EmbedOne embeds a single text through e.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, NewError(KindEmbedding, "embed", "embedder returned empty result", nil)
	}
	return vecs[0], nil
}
