package review

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chambersiq/draftflow/internal/workflow/session"
)

type recordingResumer struct {
	calls    atomic.Int32
	last     session.ReviewDecision
	release  chan struct{}
	entered  chan struct{}
	err      error
	response session.Session
}

func (r *recordingResumer) Resume(ctx context.Context, threadID string, d session.ReviewDecision) (session.Session, error) {
	r.calls.Add(1)
	r.last = d
	if r.entered != nil {
		r.entered <- struct{}{}
	}
	if r.release != nil {
		<-r.release
	}
	if r.err != nil {
		return session.Session{}, r.err
	}
	resp := r.response
	resp.ThreadID = threadID
	return resp, nil
}

func interrupted(threadID string) session.Session {
	return session.Session{ThreadID: threadID, Status: session.StatusInterrupted}
}

func TestProtocolByName(t *testing.T) {
	p, err := ProtocolByName("")
	require.NoError(t, err)
	assert.Equal(t, "ternary", p.Name())

	p, err = ProtocolByName("Binary")
	require.NoError(t, err)
	assert.False(t, p.Allows(session.VerdictRefine))

	_, err = ProtocolByName("quaternary")
	require.Error(t, err)
}

func TestGateOpensOnlyWhenInterrupted(t *testing.T) {
	g := NewGate(&recordingResumer{}, Ternary)
	assert.Equal(t, NotApplicable, g.Observe(session.Session{ThreadID: "th-1", Status: session.StatusRunning}))
	assert.Empty(t, g.LegalVerdicts())

	assert.Equal(t, AwaitingDecision, g.Observe(interrupted("th-1")))
	assert.Equal(t, []session.Verdict{session.VerdictApprove, session.VerdictRefine, session.VerdictReject}, g.LegalVerdicts())

	assert.Equal(t, NotApplicable, g.Observe(session.Session{ThreadID: "th-1", Status: session.StatusCompleted}))
}

func TestSubmitWithoutPendingReviewIsInvalidState(t *testing.T) {
	res := &recordingResumer{}
	g := NewGate(res, Ternary)
	g.Observe(session.Session{ThreadID: "th-1", Status: session.StatusRunning})

	_, err := g.Submit(context.Background(), session.VerdictApprove)
	require.ErrorIs(t, err, session.ErrInvalidState)
	assert.Zero(t, res.calls.Load(), "no network call expected")
}

func TestBinaryRejectWithoutFeedbackNeverResumes(t *testing.T) {
	res := &recordingResumer{}
	g := NewGate(res, Binary)
	g.Observe(interrupted("th-1"))

	_, err := g.Submit(context.Background(), session.VerdictReject)
	require.ErrorIs(t, err, session.ErrValidation)
	assert.Zero(t, res.calls.Load())
	assert.Equal(t, AwaitingDecision, g.State())

	var werr *session.Error
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, "th-1", werr.ThreadID)
}

func TestBinaryRejectsRefine(t *testing.T) {
	res := &recordingResumer{}
	g := NewGate(res, Binary)
	g.Observe(interrupted("th-1"))
	g.SetFeedback("tighten it")

	_, err := g.Submit(context.Background(), session.VerdictRefine)
	require.ErrorIs(t, err, session.ErrValidation)
	assert.Zero(t, res.calls.Load())
}

func TestApproveIgnoresStaleFeedback(t *testing.T) {
	res := &recordingResumer{response: session.Session{Status: session.StatusRunning}}
	g := NewGate(res, Ternary)
	g.Observe(interrupted("th-1"))
	g.SetFeedback("left over from a rejected attempt")

	next, err := g.Submit(context.Background(), session.VerdictApprove)
	require.NoError(t, err)
	assert.Equal(t, session.StatusRunning, next.Status)
	assert.Equal(t, session.ReviewDecision{Verdict: session.VerdictApprove}, res.last)
	assert.Equal(t, NotApplicable, g.State())
	assert.Empty(t, g.Feedback())
}

func TestRefineSendsTrimmedFeedback(t *testing.T) {
	res := &recordingResumer{response: session.Session{Status: session.StatusRunning}}
	g := NewGate(res, Ternary)
	g.Observe(interrupted("th-1"))
	g.SetFeedback("  cite the governing law clause \n")

	_, err := g.Submit(context.Background(), session.VerdictRefine)
	require.NoError(t, err)
	assert.Equal(t, "cite the governing law clause", res.last.Feedback)
}

func TestFailedSubmitReopensGateAndKeepsFeedback(t *testing.T) {
	boom := session.NewError(session.ErrTransport, "resume", "th-1", errors.New("connection reset"))
	res := &recordingResumer{err: boom}
	g := NewGate(res, Ternary)
	g.Observe(interrupted("th-1"))
	g.SetFeedback("add an indemnity cap")

	_, err := g.Submit(context.Background(), session.VerdictReject)
	require.ErrorIs(t, err, session.ErrTransport)
	assert.Equal(t, AwaitingDecision, g.State())
	assert.Equal(t, "add an indemnity cap", g.Feedback())
	assert.ErrorIs(t, g.LastError(), session.ErrTransport)
}

func TestConcurrentSubmitIsRefused(t *testing.T) {
	res := &recordingResumer{
		release:  make(chan struct{}),
		entered:  make(chan struct{}, 1),
		response: session.Session{Status: session.StatusRunning},
	}
	g := NewGate(res, Ternary)
	g.Observe(interrupted("th-1"))

	done := make(chan error, 1)
	go func() {
		_, err := g.Submit(context.Background(), session.VerdictApprove)
		done <- err
	}()
	<-res.entered
	assert.Equal(t, Submitting, g.State())

	_, err := g.Submit(context.Background(), session.VerdictApprove)
	require.ErrorIs(t, err, session.ErrConcurrentSubmission)

	// A stale poll must not reopen the gate while the resume is pending.
	assert.Equal(t, Submitting, g.Observe(interrupted("th-1")))

	close(res.release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), res.calls.Load())
	assert.Equal(t, NotApplicable, g.State())

	g.Observe(interrupted("th-1"))
	res.entered = nil
	_, err = g.Submit(context.Background(), session.VerdictApprove)
	require.NoError(t, err)
	assert.Equal(t, int32(2), res.calls.Load())
}

func TestSetProtocolClearsFeedback(t *testing.T) {
	g := NewGate(&recordingResumer{}, Ternary)
	g.Observe(interrupted("th-1"))
	g.SetFeedback("section notes")

	g.SetProtocol(Binary)
	assert.Empty(t, g.Feedback())
	assert.Equal(t, "binary", g.Protocol().Name())

	g.SetFeedback("kept")
	g.SetProtocol(Binary)
	assert.Equal(t, "kept", g.Feedback(), "same protocol is not a context switch")
}

func TestObserveNewThreadResetsFeedback(t *testing.T) {
	g := NewGate(&recordingResumer{}, Ternary)
	g.Observe(interrupted("th-1"))
	g.SetFeedback("for th-1")
	g.Observe(interrupted("th-2"))
	assert.Empty(t, g.Feedback())
}
