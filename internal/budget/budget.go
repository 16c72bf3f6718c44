// Package budget estimates prompt size and trims chat history so a generation
// request fits the model's context window. Backends use different tokenizers,
// so estimation uses a character heuristic: 1 token ≈ 4 characters.
package budget

import (
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// messageOverhead is the per-message framing cost charged by most chat APIs.
	messageOverhead = 4

	// DefaultMaxContextTokens is the default input budget in tokens. Fits
	// 8k-context models with room left for the answer. Override with
	// MAX_CONTEXT_TOKENS.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s. Characters are counted as
// runes so non-Latin text is not overcounted.
func Estimate(s string) int {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return 0
	}
	return max(n/charsPerToken, 1)
}

// EstimateMessage returns the estimated cost of a single message.
func EstimateMessage(m *schema.Message) int {
	return messageOverhead + Estimate(string(m.Role)) + Estimate(m.Content)
}

// EstimateMessages returns the estimated total cost of msgs.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += EstimateMessage(m)
	}
	return total
}

// TrimHistory drops the oldest history messages until fixed plus history fits
// within maxTokens. fixed (system prompt, excerpts, current question) is never
// trimmed. The kept history never starts with an assistant message, so a
// question is not separated from its answer. If fixed alone exceeds the
// budget, the result is empty.
func TrimHistory(fixed, history []*schema.Message, maxTokens int) []*schema.Message {
	if len(history) == 0 {
		return history
	}

	remaining := maxTokens - EstimateMessages(fixed) - EstimateMessages(history)
	start := 0
	for start < len(history) && remaining < 0 {
		remaining += EstimateMessage(history[start])
		start++
	}
	for start < len(history) && history[start].Role == schema.Assistant {
		start++
	}
	return history[start:]
}
