package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/docchat-go/internal/chunker"
	"github.com/54b3r/docchat-go/internal/conversation"
	"github.com/54b3r/docchat-go/internal/lifecycle"
	"github.com/54b3r/docchat-go/internal/rag"
	"github.com/54b3r/docchat-go/internal/rag/ragtest"
)

var skyDoc = rag.Document{ID: "sky", Source: "sky.txt", Text: "The sky is blue. Grass is green."}

type fixture struct {
	manager  *lifecycle.Manager
	embedder *ragtest.KeywordEmbedder
	gen      *ragtest.StubGenerator
	orch     *Orchestrator
}

func newFixture(t *testing.T, build bool) *fixture {
	t.Helper()

	c, err := chunker.New(20, 5)
	require.NoError(t, err)
	emb := ragtest.NewKeywordEmbedder("sky", "blue", "grass", "green")
	m, err := lifecycle.New(lifecycle.Config{Chunker: c, Embedder: emb})
	require.NoError(t, err)
	if build {
		_, err = m.Rebuild(context.Background(), []rag.Document{skyDoc})
		require.NoError(t, err)
	}

	gen := &ragtest.StubGenerator{Answer: "The sky is blue."}
	o, err := New(Config{Index: m, Embedder: emb, Generator: gen, Condenser: gen})
	require.NoError(t, err)

	return &fixture{manager: m, embedder: emb, gen: gen, orch: o}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	_, err := New(Config{Embedder: f.embedder, Generator: f.gen})
	assert.ErrorIs(t, err, rag.ErrConfig)
	_, err = New(Config{Index: f.manager, Generator: f.gen})
	assert.ErrorIs(t, err, rag.ErrConfig)
	_, err = New(Config{Index: f.manager, Embedder: f.embedder})
	assert.ErrorIs(t, err, rag.ErrConfig)

	o, err := New(Config{Index: f.manager, Embedder: f.embedder, Generator: f.gen})
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, o.TopK())
}

func TestAsk_EndToEnd(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	idx, err := f.manager.Current()
	require.NoError(t, err)
	require.GreaterOrEqual(t, idx.Len(), 2)

	res, err := f.orch.Ask(context.Background(), "What color is the sky?", nil)
	require.NoError(t, err)

	assert.Equal(t, "The sky is blue.", res.Answer)
	require.NotEmpty(t, res.Sources)
	assert.Contains(t, res.Sources[0].Entry.Chunk.Text, "sky is blue")

	require.Len(t, res.History, 2)
	assert.Equal(t, conversation.Turn{Role: conversation.RoleUser, Content: "What color is the sky?"}, res.History[0])
	assert.Equal(t, conversation.Turn{Role: conversation.RoleAssistant, Content: "The sky is blue."}, res.History[1])

	calls := f.gen.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "What color is the sky?", calls[0].Question)
	assert.Len(t, calls[0].Passages, len(res.Sources))
}

func TestAsk_UsesCondensedQuestionForRetrieval(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	f.gen.Standalone = "What color is the grass?"

	history := conversation.History{
		{Role: conversation.RoleUser, Content: "What color is the sky?"},
		{Role: conversation.RoleAssistant, Content: "Blue."},
	}
	res, err := f.orch.Ask(context.Background(), "And the other one?", history)
	require.NoError(t, err)

	require.NotEmpty(t, res.Sources)
	assert.Contains(t, res.Sources[0].Entry.Chunk.Text, "Grass is green")
	// The generator still sees the question as asked.
	assert.Equal(t, "And the other one?", f.gen.Calls()[0].Question)
	assert.Len(t, res.History, 4)
}

func TestAsk_GeneratorFailureLeavesHistoryUnchanged(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	f.gen.Err = ragtest.ErrInjected

	history := conversation.History{
		{Role: conversation.RoleUser, Content: "hi"},
		{Role: conversation.RoleAssistant, Content: "hello"},
	}
	before := history.Clone()

	res, err := f.orch.Ask(context.Background(), "What color is the sky?", history)
	require.ErrorIs(t, err, rag.ErrUpstream)
	assert.ErrorIs(t, err, ragtest.ErrInjected)
	assert.True(t, rag.Retryable(err))
	assert.Nil(t, res.History)
	assert.Equal(t, before, history)
}

func TestAsk_EmbeddingFailureIsUpstream(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	o, err := New(Config{
		Index:     f.manager,
		Embedder:  &ragtest.FailingEmbedder{Inner: f.embedder, FailAfter: 0},
		Generator: f.gen,
	})
	require.NoError(t, err)

	_, err = o.Ask(context.Background(), "What color is the sky?", nil)
	require.ErrorIs(t, err, rag.ErrUpstream)
	assert.Empty(t, f.gen.Calls())
}

func TestAsk_NoIndexFailsFast(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	_, err := f.orch.Ask(context.Background(), "What color is the sky?", nil)
	require.ErrorIs(t, err, rag.ErrNoIndex)
	assert.Zero(t, f.embedder.Calls.Load())
	assert.Empty(t, f.gen.Calls())
}

func TestAsk_EmptyIndex(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	_, err := f.manager.Rebuild(context.Background(), nil)
	require.NoError(t, err)

	_, err = f.orch.Ask(context.Background(), "anything", nil)
	assert.ErrorIs(t, err, rag.ErrEmptyIndex)
}

func TestAsk_InvalidInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)

	tests := []struct {
		name     string
		question string
		history  conversation.History
	}{
		{name: "empty question", question: "   "},
		{name: "unknown role", question: "q", history: conversation.History{{Role: "system", Content: "x"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := f.orch.Ask(context.Background(), tc.question, tc.history)
			assert.ErrorIs(t, err, rag.ErrInvalidInput)
			assert.False(t, rag.Retryable(err))
		})
	}
}

func TestAsk_ConcurrentWithRebuild(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.orch.Ask(context.Background(), "What color is the sky?", nil)
			if assert.NoError(t, err) {
				assert.Len(t, res.History, 2)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.manager.Rebuild(context.Background(), []rag.Document{skyDoc})
		if err != nil {
			assert.ErrorIs(t, err, rag.ErrRebuildInProgress)
		}
	}()
	wg.Wait()
}
