// Package chunker splits document text into overlapping windows sized for
// embedding. Sizes are measured in runes so multi-byte text is never cut
// inside a character.
package chunker

import (
	"fmt"

	"github.com/54b3r/docchat-go/internal/rag"
)

// Defaults used when no chunking parameters are configured.
const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// Chunker splits documents using a validated size/overlap pair.
type Chunker struct {
	size    int
	overlap int
}

// New validates size and overlap and returns a Chunker.
// overlap must be non-negative and strictly smaller than size.
func New(size, overlap int) (*Chunker, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the maximum chunk length in runes.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the number of runes shared by consecutive chunks.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits doc into chunks numbered from 0.
func (c *Chunker) Chunk(doc rag.Document) []rag.Chunk {
	parts := split([]rune(doc.Text), c.size, c.overlap)
	out := make([]rag.Chunk, len(parts))
	for i, p := range parts {
		out[i] = rag.Chunk{Text: p, SourceID: doc.ID, Ordinal: i}
	}
	return out
}

// Split cuts text into chunks of at most size runes. A chunk ends after the
// last newline that leaves room for overlap; without one it is hard-cut at
// size. Each chunk after the first starts with the final overlap runes of the
// previous chunk. Empty text yields no chunks.
func Split(text string, size, overlap int) ([]string, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}
	return split([]rune(text), size, overlap), nil
}

func split(r []rune, size, overlap int) []string {
	n := len(r)
	if n == 0 {
		return nil
	}

	var out []string
	start := 0
	for {
		limit := min(start+size, n)
		end := limit
		if limit < n {
			// The boundary must leave at least one new rune past the overlap
			// or the next window would not advance.
			for i := limit - 1; i >= start+overlap; i-- {
				if r[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		out = append(out, string(r[start:end]))
		if end == n {
			return out
		}
		start = end - overlap
	}
}

func validate(size, overlap int) error {
	switch {
	case size <= 0:
		return rag.NewError(rag.KindConfig, "chunker", fmt.Sprintf("chunk size must be positive, got %d", size), nil)
	case overlap < 0:
		return rag.NewError(rag.KindConfig, "chunker", fmt.Sprintf("chunk overlap must not be negative, got %d", overlap), nil)
	case overlap >= size:
		return rag.NewError(rag.KindConfig, "chunker", fmt.Sprintf("chunk overlap (%d) must be smaller than chunk size (%d)", overlap, size), nil)
	}
	return nil
}
