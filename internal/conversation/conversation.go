// Package conversation holds the chat transcript exchanged with callers on
// every request. The server keeps no session state: the caller sends the full
// history and receives the extended history back.
package conversation

import (
	"fmt"
)

// Role identifies the author of a turn.
type Role string

const (
	// RoleUser is a question asked by the caller.
	RoleUser Role = "user"
	// RoleAssistant is an answer produced by the generator.
	RoleAssistant Role = "assistant"
)

// Turn is a single message in a conversation.
type Turn struct {
	// Role is the author of the turn.
	Role Role `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
}

// History is an ordered transcript, oldest turn first.
type History []Turn

// Validate reports the first turn with an unknown role.
func (h History) Validate() error {
	for i, t := range h {
		switch t.Role {
		case RoleUser, RoleAssistant:
		default:
			return fmt.Errorf("conversation: turn %d has unknown role %q", i, t.Role)
		}
	}
	return nil
}

// Clone returns a copy of h that shares no backing array with it.
func (h History) Clone() History {
	if h == nil {
		return History{}
	}
	out := make(History, len(h))
	copy(out, h)
	return out
}

// Memory appends completed question/answer pairs to a history.
// The zero value keeps every turn.
type Memory struct {
	// MaxTurns caps the number of turns kept; oldest turns are dropped first.
	// A trimmed history never starts with an assistant turn, so an odd cap
	// keeps MaxTurns-1 turns. The newest pair is always kept. Zero means
	// unlimited.
	MaxTurns int
}

// Append returns a new history with the user question and assistant answer
// appended. h is never modified.
func (m Memory) Append(h History, question, answer string) History {
	out := make(History, 0, len(h)+2)
	out = append(out, h...)
	out = append(out,
		Turn{Role: RoleUser, Content: question},
		Turn{Role: RoleAssistant, Content: answer},
	)
	if m.MaxTurns > 0 && len(out) > m.MaxTurns {
		keep := out[len(out)-max(m.MaxTurns, 2):]
		for len(keep) > 2 && keep[0].Role == RoleAssistant {
			keep = keep[1:]
		}
		out = append(History(nil), keep...)
	}
	return out
}
