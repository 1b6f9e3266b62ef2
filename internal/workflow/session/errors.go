package session

import (
	"errors"
	"strings"
)

// Error kinds. Every error surfaced by the workflow packages wraps exactly one
// of these, so callers branch with errors.Is.
var (
	// ErrStart means a session could not be created. The caller retries by hand.
	ErrStart = errors.New("cannot start workflow")
	// ErrNotFound means the remote engine no longer knows the thread. Terminal.
	ErrNotFound = errors.New("workflow thread not found")
	// ErrTransport covers network failures, timeouts and 5xx responses.
	ErrTransport = errors.New("workflow transport failure")
	// ErrValidation means a decision had an illegal shape and was never sent.
	ErrValidation = errors.New("invalid review decision")
	// ErrInvalidState means the action is not allowed in the current state.
	ErrInvalidState = errors.New("invalid workflow state")
	// ErrConcurrentSubmission means a resume is already in flight for the thread.
	ErrConcurrentSubmission = errors.New("review decision already in flight")
)

// Error carries the kind, the operation and the thread an error belongs to.
type Error struct {
	Kind     error
	Op       string
	ThreadID string
	Err      error
}

// NewError builds an Error of the given kind.
func NewError(kind error, op, threadID string, err error) *Error {
	return &Error{Kind: kind, Op: op, ThreadID: threadID, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("workflow")
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	if e.ThreadID != "" {
		b.WriteString(" [")
		b.WriteString(e.ThreadID)
		b.WriteString("]")
	}
	if e.Kind != nil {
		b.WriteString(": ")
		b.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

var kinds = []error{
	ErrStart,
	ErrNotFound,
	ErrTransport,
	ErrValidation,
	ErrInvalidState,
	ErrConcurrentSubmission,
}

// KindOf returns the error kind wrapped by err, or nil when err is not a
// workflow error.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// IsTerminalError reports whether err ends the session for good. Such errors
// must not be retried.
func IsTerminalError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable reports whether a caller may offer a manual retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrConcurrentSubmission)
}
