// Package generator produces answers and standalone questions with an Eino
// chat model. It turns retrieved passages and the caller's conversation into
// a message list sized to the model's context budget.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docchat-go/internal/budget"
	"github.com/54b3r/docchat-go/internal/conversation"
	"github.com/54b3r/docchat-go/internal/logging"
)

// answerPrompt is the system prompt for answer generation.
const answerPrompt = `You are a helpful assistant that answers questions about the user's documents.

Answer using the document excerpts provided in the context message. If the
excerpts do not contain the answer, say that you don't know rather than
making one up. Keep answers concise and refer to the source when it helps.`

// condensePrompt asks the model to rewrite a follow-up question.
const condensePrompt = `Given the following conversation and a follow-up question, rephrase the
follow-up question to be a standalone question that can be understood without
the conversation. Reply with the standalone question only.`

// Config holds the dependencies of a ChatGenerator.
type Config struct {
	// ChatModel is the backend that produces completions. Required.
	ChatModel model.BaseChatModel
	// SystemPrompt replaces the default answer prompt when non-empty.
	SystemPrompt string
	// MaxContextTokens is the estimated input budget. History is trimmed
	// oldest-first to fit. Defaults to budget.DefaultMaxContextTokens.
	MaxContextTokens int
}

// ChatGenerator implements rag.Generator and rag.Condenser.
type ChatGenerator struct {
	model            model.BaseChatModel
	systemPrompt     string
	maxContextTokens int
}

// New constructs a ChatGenerator from cfg.
func New(cfg Config) (*ChatGenerator, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("generator: ChatModel must not be nil")
	}
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = answerPrompt
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}
	return &ChatGenerator{model: cfg.ChatModel, systemPrompt: prompt, maxContextTokens: maxCtx}, nil
}

// Generate answers question from passages, taking the prior conversation
// into account.
func (g *ChatGenerator) Generate(ctx context.Context, question string, passages []string, history conversation.History) (string, error) {
	fixed := []*schema.Message{schema.SystemMessage(g.systemPrompt)}
	if len(passages) > 0 {
		fixed = append(fixed, schema.SystemMessage(buildContext(passages)))
	}
	msgs := g.withHistory(ctx, fixed, history, question)

	resp, err := g.model.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("generator: generate: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("generator: generate: model returned an empty answer")
	}
	return resp.Content, nil
}

// Condense rewrites question as a standalone question. With no history the
// question is returned unchanged and the model is not called.
func (g *ChatGenerator) Condense(ctx context.Context, question string, history conversation.History) (string, error) {
	if len(history) == 0 {
		return question, nil
	}
	msgs := g.withHistory(ctx, []*schema.Message{schema.SystemMessage(condensePrompt)}, history,
		"Follow-up question: "+question)

	resp, err := g.model.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("generator: condense: %w", err)
	}
	standalone := ""
	if resp != nil {
		standalone = strings.TrimSpace(resp.Content)
	}
	if standalone == "" {
		return question, nil
	}
	return standalone, nil
}

// withHistory returns [fixed..., trimmed history..., user message].
func (g *ChatGenerator) withHistory(ctx context.Context, fixed []*schema.Message, history conversation.History, user string) []*schema.Message {
	userMsg := schema.UserMessage(user)

	historyMsgs := toMessages(history)
	before := len(historyMsgs)
	historyMsgs = budget.TrimHistory(append(fixed[:len(fixed):len(fixed)], userMsg), historyMsgs, g.maxContextTokens)
	if dropped := before - len(historyMsgs); dropped > 0 {
		logging.FromContext(ctx).Warn("budget: dropped history messages to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(historyMsgs)),
			slog.Int("max_tokens", g.maxContextTokens),
		)
	}

	out := make([]*schema.Message, 0, len(fixed)+len(historyMsgs)+1)
	out = append(out, fixed[0])
	out = append(out, historyMsgs...)
	out = append(out, fixed[1:]...)
	return append(out, userMsg)
}

func toMessages(h conversation.History) []*schema.Message {
	out := make([]*schema.Message, 0, len(h))
	for _, t := range h {
		switch t.Role {
		case conversation.RoleUser:
			out = append(out, schema.UserMessage(t.Content))
		case conversation.RoleAssistant:
			out = append(out, schema.AssistantMessage(t.Content, nil))
		}
	}
	return out
}

// buildContext formats retrieved passages into a system message.
func buildContext(passages []string) string {
	var sb strings.Builder
	sb.WriteString("## Relevant Document Excerpts\n\n")
	for i, p := range passages {
		fmt.Fprintf(&sb, "### Source %d\n%s\n\n", i+1, p)
	}
	return sb.String()
}
