// Package ragtest provides deterministic embedders and generators for tests.
package ragtest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/54b3r/docchat-go/internal/conversation"
	"github.com/54b3r/docchat-go/internal/rag"
)

// KeywordEmbedder maps text to a vector of keyword counts plus a constant
// bias component, so texts sharing keywords score higher under cosine
// similarity.
type KeywordEmbedder struct {
	// Vocabulary lists the keywords; each gets one vector component.
	Vocabulary []string
	// Calls counts Embed invocations.
	Calls atomic.Int64
}

// NewKeywordEmbedder returns a KeywordEmbedder over vocab.
func NewKeywordEmbedder(vocab ...string) *KeywordEmbedder {
	return &KeywordEmbedder{Vocabulary: vocab}
}

// Embed implements rag.Embedder.
func (k *KeywordEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	k.Calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		lower := strings.ToLower(t)
		v := make([]float32, len(k.Vocabulary)+1)
		for j, w := range k.Vocabulary {
			v[j] = float32(strings.Count(lower, w))
		}
		v[len(k.Vocabulary)] = 0.1
		out[i] = v
	}
	return out, nil
}

// ErrInjected is the failure returned by FailingEmbedder and StubGenerator.
var ErrInjected = errors.New("injected failure")

// FailingEmbedder delegates to Inner until FailAfter calls have succeeded,
// then returns ErrInjected.
type FailingEmbedder struct {
	Inner     rag.Embedder
	FailAfter int64
	calls     atomic.Int64
}

// Embed implements rag.Embedder.
func (f *FailingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.calls.Add(1) > f.FailAfter {
		return nil, ErrInjected
	}
	return f.Inner.Embed(ctx, texts)
}

// GenerateCall records the arguments of one Generate call.
type GenerateCall struct {
	Question string
	Passages []string
	History  conversation.History
}

// StubGenerator answers with a fixed string and records every call.
type StubGenerator struct {
	// Answer is returned from Generate.
	Answer string
	// Err, when set, is returned instead of Answer.
	Err error
	// Standalone, when set, is returned from Condense.
	Standalone string

	mu    sync.Mutex
	calls []GenerateCall
}

// Generate implements rag.Generator.
func (s *StubGenerator) Generate(ctx context.Context, question string, passages []string, history conversation.History) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, GenerateCall{Question: question, Passages: passages, History: history})
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.Err != nil {
		return "", s.Err
	}
	return s.Answer, nil
}

// Condense implements rag.Condenser.
func (s *StubGenerator) Condense(_ context.Context, question string, _ conversation.History) (string, error) {
	if s.Standalone != "" {
		return s.Standalone, nil
	}
	return question, nil
}

// Calls returns a copy of the recorded Generate calls.
func (s *StubGenerator) Calls() []GenerateCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]GenerateCall(nil), s.calls...)
}
