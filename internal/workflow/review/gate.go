package review

import (
	"context"
	"errors"
	"sync"

	"github.com/chambersiq/draftflow/internal/workflow/session"
)

// GateState is the review gate's position in its state machine.
type GateState int

const (
	// NotApplicable means the session is not waiting for a human.
	NotApplicable GateState = iota
	// AwaitingDecision means the run is interrupted and no decision is in flight.
	AwaitingDecision
	// Submitting means a decision was sent and the resume call is pending.
	Submitting
)

func (s GateState) String() string {
	switch s {
	case NotApplicable:
		return "not-applicable"
	case AwaitingDecision:
		return "awaiting-decision"
	case Submitting:
		return "submitting"
	default:
		return "unknown"
	}
}

// Resumer sends a decision to the remote engine.
type Resumer interface {
	Resume(ctx context.Context, threadID string, decision session.ReviewDecision) (session.Session, error)
}

// ResumerFunc adapts a function into a Resumer.
type ResumerFunc func(ctx context.Context, threadID string, decision session.ReviewDecision) (session.Session, error)

// Resume executes f.
func (f ResumerFunc) Resume(ctx context.Context, threadID string, decision session.ReviewDecision) (session.Session, error) {
	return f(ctx, threadID, decision)
}

// Gate tracks one thread's review state and owns the feedback buffer the
// human types into.
type Gate struct {
	mu       sync.Mutex
	resumer  Resumer
	protocol Protocol
	threadID string
	state    GateState
	feedback string
	lastErr  error
}

// NewGate builds a gate that submits through resumer using protocol.
func NewGate(resumer Resumer, protocol Protocol) *Gate {
	if protocol.name == "" {
		protocol = Ternary
	}
	return &Gate{resumer: resumer, protocol: protocol}
}

// State returns the current gate state.
func (g *Gate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Protocol returns the active protocol.
func (g *Gate) Protocol() Protocol {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.protocol
}

// LastError returns the error of the most recent failed submission.
func (g *Gate) LastError() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastErr
}

// SetProtocol switches review context. Feedback typed for the previous
// protocol is discarded.
func (g *Gate) SetProtocol(p Protocol) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p.name == "" || p.name == g.protocol.name {
		return
	}
	g.protocol = p
	g.feedback = ""
}

// SetFeedback replaces the feedback buffer.
func (g *Gate) SetFeedback(text string) {
	g.mu.Lock()
	g.feedback = text
	g.mu.Unlock()
}

// Feedback returns the feedback buffer.
func (g *Gate) Feedback() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.feedback
}

// LegalVerdicts lists what the human may choose right now. It is empty
// unless a decision is awaited.
func (g *Gate) LegalVerdicts() []session.Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != AwaitingDecision {
		return nil
	}
	return g.protocol.Verdicts()
}

// Observe feeds a server snapshot into the gate. A pending submission is
// never disturbed by snapshots taken before the resume settles.
func (g *Gate) Observe(s session.Session) GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s.ThreadID != "" && s.ThreadID != g.threadID {
		g.threadID = s.ThreadID
		g.feedback = ""
		g.lastErr = nil
		if g.state == Submitting {
			g.state = NotApplicable
		}
	}
	if g.state == Submitting {
		return g.state
	}
	if s.Status == session.StatusInterrupted {
		g.state = AwaitingDecision
	} else {
		g.state = NotApplicable
	}
	return g.state
}

// Submit sends verdict with the feedback buffer. Approve never carries the
// buffer, so stale text from an earlier attempt cannot leak into it.
func (g *Gate) Submit(ctx context.Context, verdict session.Verdict) (session.Session, error) {
	g.mu.Lock()
	d := session.ReviewDecision{Verdict: verdict}
	if verdict.RequiresFeedback() {
		d.Feedback = g.feedback
	}
	g.mu.Unlock()
	return g.SubmitDecision(ctx, d)
}

// SubmitDecision sends an explicit decision. Only one submission may be in
// flight; on success the gate closes and the feedback buffer is cleared, on
// failure the gate reopens so the human can retry or edit feedback.
func (g *Gate) SubmitDecision(ctx context.Context, d session.ReviewDecision) (session.Session, error) {
	g.mu.Lock()
	threadID := g.threadID
	switch g.state {
	case NotApplicable:
		g.mu.Unlock()
		return session.Session{}, session.NewError(session.ErrInvalidState, "decide", threadID,
			errors.New("no review decision is pending"))
	case Submitting:
		g.mu.Unlock()
		return session.Session{}, session.NewError(session.ErrConcurrentSubmission, "decide", threadID, nil)
	}
	if err := g.protocol.Validate(d); err != nil {
		g.mu.Unlock()
		return session.Session{}, withThread(err, threadID)
	}
	if g.resumer == nil {
		g.mu.Unlock()
		return session.Session{}, session.NewError(session.ErrInvalidState, "decide", threadID,
			errors.New("review gate has no resumer"))
	}
	g.state = Submitting
	g.lastErr = nil
	g.mu.Unlock()

	next, err := g.resumer.Resume(ctx, threadID, d.Normalized())

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.threadID != threadID {
		// The gate moved to another thread while the call was pending.
		return next, err
	}
	if err != nil {
		g.state = AwaitingDecision
		g.lastErr = err
		return session.Session{}, err
	}
	g.state = NotApplicable
	g.feedback = ""
	return next, nil
}

func withThread(err error, threadID string) error {
	var werr *session.Error
	if errors.As(err, &werr) && werr.ThreadID == "" {
		copied := *werr
		copied.ThreadID = threadID
		return &copied
	}
	return err
}
