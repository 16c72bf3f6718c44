package rag

import (
	"errors"
)

// Kind classifies a pipeline failure so transports can tell retryable
// failures from configuration mistakes.
type Kind string

const (
	// KindConfig is an invalid chunking or pipeline parameter. Fatal at startup.
	KindConfig Kind = "config"
	// KindInvalidInput is a malformed caller request.
	KindInvalidInput Kind = "invalid_input"
	// KindEmbedding is a failed or inconsistent embedding call.
	KindEmbedding Kind = "embedding"
	// KindUpstream is a failed external call on the query path.
	KindUpstream Kind = "upstream"
	// KindEmptyIndex is a search against an index with no entries.
	KindEmptyIndex Kind = "empty_index"
	// KindNoIndex is a query issued before any index was built or loaded.
	KindNoIndex Kind = "no_index"
	// KindRebuildInProgress is a rebuild rejected because another is running.
	KindRebuildInProgress Kind = "rebuild_in_progress"
)

// Sentinels for use with errors.Is. Any *Error of the same Kind matches.
var (
	ErrConfig            = &Error{Kind: KindConfig}
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
	ErrEmbedding         = &Error{Kind: KindEmbedding}
	ErrUpstream          = &Error{Kind: KindUpstream}
	ErrEmptyIndex        = &Error{Kind: KindEmptyIndex}
	ErrNoIndex           = &Error{Kind: KindNoIndex}
	ErrRebuildInProgress = &Error{Kind: KindRebuildInProgress}
)

// Error is a classified pipeline failure.
type Error struct {
	// Kind is the failure class.
	Kind Kind
	// Op names the operation that failed (e.g. "search", "rebuild").
	Op string
	// Msg is a caller-safe description.
	Msg string
	// Err is the underlying cause, if any. Never exposed to remote callers.
	Err error
}

// NewError constructs an *Error.
func NewError(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	s := string(e.Kind)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Message returns the caller-safe message of the first *Error in err's chain.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Msg != "" {
			return e.Msg
		}
		return string(e.Kind)
	}
	return "internal error"
}

// Retryable reports whether the caller may retry the operation unchanged.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindEmbedding, KindUpstream, KindRebuildInProgress, KindNoIndex, KindEmptyIndex:
		return true
	default:
		return false
	}
}
