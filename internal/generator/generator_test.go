package generator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docchat-go/internal/conversation"
)

// fakeModel records the last input and replies with a fixed message.
type fakeModel struct {
	reply string
	err   error
	calls int
	last  []*schema.Message
}

func (f *fakeModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.calls++
	f.last = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func newTestGenerator(t *testing.T, m *fakeModel, maxTokens int) *ChatGenerator {
	t.Helper()
	g, err := New(Config{ChatModel: m, MaxContextTokens: maxTokens})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestNew_RequiresModel(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for nil ChatModel")
	}
}

func TestGenerate_MessageOrder(t *testing.T) {
	t.Parallel()

	m := &fakeModel{reply: "The sky is blue."}
	g := newTestGenerator(t, m, 0)

	history := conversation.History{
		{Role: conversation.RoleUser, Content: "hi"},
		{Role: conversation.RoleAssistant, Content: "hello"},
	}
	got, err := g.Generate(context.Background(), "what color is the sky?", []string{"The sky is blue."}, history)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "The sky is blue." {
		t.Errorf("answer: got %q", got)
	}

	wantRoles := []schema.RoleType{schema.System, schema.User, schema.Assistant, schema.System, schema.User}
	if len(m.last) != len(wantRoles) {
		t.Fatalf("want %d messages, got %d", len(wantRoles), len(m.last))
	}
	for i, r := range wantRoles {
		if m.last[i].Role != r {
			t.Errorf("message %d: want role %s, got %s", i, r, m.last[i].Role)
		}
	}
	if !strings.Contains(m.last[3].Content, "### Source 1\nThe sky is blue.") {
		t.Errorf("context message missing passage: %q", m.last[3].Content)
	}
	if m.last[4].Content != "what color is the sky?" {
		t.Errorf("last message: got %q", m.last[4].Content)
	}
}

func TestGenerate_NoPassagesOmitsContext(t *testing.T) {
	t.Parallel()

	m := &fakeModel{reply: "I don't know."}
	g := newTestGenerator(t, m, 0)

	if _, err := g.Generate(context.Background(), "q", nil, nil); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(m.last) != 2 {
		t.Fatalf("want system + user, got %d messages", len(m.last))
	}
}

func TestGenerate_TrimsHistoryToBudget(t *testing.T) {
	t.Parallel()

	m := &fakeModel{reply: "ok"}
	// The answer prompt alone is well over 50 tokens, so every history turn
	// must be dropped.
	g := newTestGenerator(t, m, 50)

	history := conversation.History{
		{Role: conversation.RoleUser, Content: strings.Repeat("x", 400)},
		{Role: conversation.RoleAssistant, Content: strings.Repeat("y", 400)},
	}
	if _, err := g.Generate(context.Background(), "q", []string{"p"}, history); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, msg := range m.last {
		if msg.Role == schema.Assistant {
			t.Errorf("history was not trimmed: %d messages", len(m.last))
		}
	}
}

func TestGenerate_Errors(t *testing.T) {
	t.Parallel()

	g := newTestGenerator(t, &fakeModel{err: errors.New("503 from backend")}, 0)
	if _, err := g.Generate(context.Background(), "q", nil, nil); err == nil {
		t.Error("expected backend error to propagate")
	}

	g = newTestGenerator(t, &fakeModel{reply: "  "}, 0)
	if _, err := g.Generate(context.Background(), "q", nil, nil); err == nil {
		t.Error("expected error for empty answer")
	}
}

func TestCondense(t *testing.T) {
	t.Parallel()

	history := conversation.History{
		{Role: conversation.RoleUser, Content: "tell me about the sky"},
		{Role: conversation.RoleAssistant, Content: "it is blue"},
	}

	tests := []struct {
		name    string
		reply   string
		history conversation.History
		want    string
		calls   int
	}{
		{name: "no history skips model", reply: "unused", history: nil, want: "why?", calls: 0},
		{name: "rewrites follow-up", reply: " Why is the sky blue? ", history: history, want: "Why is the sky blue?", calls: 1},
		{name: "blank rewrite keeps question", reply: "", history: history, want: "why?", calls: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			m := &fakeModel{reply: tc.reply}
			g := newTestGenerator(t, m, 0)
			got, err := g.Condense(context.Background(), "why?", tc.history)
			if err != nil {
				t.Fatalf("Condense: %v", err)
			}
			if got != tc.want {
				t.Errorf("want %q, got %q", tc.want, got)
			}
			if m.calls != tc.calls {
				t.Errorf("model calls: want %d, got %d", tc.calls, m.calls)
			}
		})
	}
}
