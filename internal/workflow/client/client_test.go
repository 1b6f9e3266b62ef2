package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chambersiq/draftflow/internal/workflow/remote"
	"github.com/chambersiq/draftflow/internal/workflow/session"
)

type fakeTransport struct {
	mu          sync.Mutex
	startResp   session.Session
	startErr    error
	statusResp  []session.Session
	statusErr   error
	resumeResp  session.Session
	resumeErr   error
	resumeGate  chan struct{}
	resumeIn    chan struct{}
	starts      int
	statuses    int
	resumes     int
	lastVerdict session.ReviewDecision
}

func (f *fakeTransport) Start(ctx context.Context, p session.StartParams) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return f.startResp, f.startErr
}

func (f *fakeTransport) Status(ctx context.Context, threadID string) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses++
	if f.statusErr != nil {
		return session.Session{}, f.statusErr
	}
	if len(f.statusResp) == 0 {
		return session.Session{}, errors.New("no scripted status")
	}
	s := f.statusResp[0]
	if len(f.statusResp) > 1 {
		f.statusResp = f.statusResp[1:]
	}
	return s, nil
}

func (f *fakeTransport) Resume(ctx context.Context, threadID string, d session.ReviewDecision) (session.Session, error) {
	f.mu.Lock()
	f.resumes++
	f.lastVerdict = d
	gate, in := f.resumeGate, f.resumeIn
	f.mu.Unlock()
	if in != nil {
		in <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return f.resumeResp, f.resumeErr
}

func (f *fakeTransport) counts() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.statuses, f.resumes
}

var fixed = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newClient(ft *fakeTransport) *Client {
	return New(ft, WithClock(func() time.Time { return fixed }))
}

func TestStartValidatesLocally(t *testing.T) {
	ft := &fakeTransport{}
	c := newClient(ft)
	_, err := c.Start(context.Background(), session.StartParams{CaseID: "case-1"})
	require.ErrorIs(t, err, session.ErrStart)
	starts, _, _ := ft.counts()
	assert.Zero(t, starts)
}

func TestStartRecordsSession(t *testing.T) {
	ft := &fakeTransport{startResp: session.Session{ThreadID: "th-1", Status: session.StatusRunning}}
	c := newClient(ft)
	s, err := c.Start(context.Background(), session.StartParams{CaseID: "case-1", JobType: "nda"})
	require.NoError(t, err)
	assert.Equal(t, "th-1", s.ThreadID)
	assert.Equal(t, fixed, s.UpdatedAt)
	snap, ok := c.Snapshot("th-1")
	require.True(t, ok)
	assert.Equal(t, session.StatusRunning, snap.Status)
}

func TestStartTransportFailureIsStartError(t *testing.T) {
	ft := &fakeTransport{startErr: errors.New("dial tcp: refused")}
	_, err := newClient(ft).Start(context.Background(), session.StartParams{CaseID: "c", JobType: "j"})
	require.ErrorIs(t, err, session.ErrStart)

	ft = &fakeTransport{startResp: session.Session{ThreadID: "th-1", Status: session.StatusCompleted}}
	_, err = newClient(ft).Start(context.Background(), session.StartParams{CaseID: "c", JobType: "j"})
	require.ErrorIs(t, err, session.ErrStart)
}

func TestResumeWhileRunningMakesNoCall(t *testing.T) {
	ft := &fakeTransport{startResp: session.Session{ThreadID: "th-1", Status: session.StatusRunning}}
	c := newClient(ft)
	_, err := c.Start(context.Background(), session.StartParams{CaseID: "c", JobType: "j"})
	require.NoError(t, err)

	_, err = c.Resume(context.Background(), "th-1", session.ReviewDecision{Verdict: session.VerdictApprove})
	require.ErrorIs(t, err, session.ErrInvalidState)
	_, _, resumes := ft.counts()
	assert.Zero(t, resumes)
}

func TestResumeUnknownThreadMakesNoCall(t *testing.T) {
	ft := &fakeTransport{}
	_, err := newClient(ft).Resume(context.Background(), "th-x", session.ReviewDecision{Verdict: session.VerdictApprove})
	require.ErrorIs(t, err, session.ErrInvalidState)
	_, _, resumes := ft.counts()
	assert.Zero(t, resumes)
}

func interruptedClient(t *testing.T, ft *fakeTransport) *Client {
	t.Helper()
	ft.statusResp = []session.Session{{ThreadID: "th-1", Status: session.StatusInterrupted, HumanReadableFeedback: "check clause 4"}}
	c := newClient(ft)
	s, err := c.FetchStatus(context.Background(), "th-1")
	require.NoError(t, err)
	require.Equal(t, session.StatusInterrupted, s.Status)
	return c
}

func TestResumeRejectWithoutFeedbackIsValidationError(t *testing.T) {
	ft := &fakeTransport{resumeResp: session.Session{Status: session.StatusRunning}}
	c := interruptedClient(t, ft)

	_, err := c.Resume(context.Background(), "th-1", session.ReviewDecision{Verdict: session.VerdictReject})
	require.ErrorIs(t, err, session.ErrValidation)
	_, _, resumes := ft.counts()
	assert.Zero(t, resumes)

	s, err := c.Resume(context.Background(), "th-1", session.ReviewDecision{Verdict: session.VerdictReject, Feedback: "redo clause 4"})
	require.NoError(t, err)
	assert.Equal(t, session.StatusRunning, s.Status)
	assert.Empty(t, s.HumanReadableFeedback)
}

func TestResumeStripsApproveFeedback(t *testing.T) {
	ft := &fakeTransport{resumeResp: session.Session{Status: session.StatusRunning}}
	c := interruptedClient(t, ft)
	_, err := c.Resume(context.Background(), "th-1", session.ReviewDecision{Verdict: session.VerdictApprove, Feedback: "stale"})
	require.NoError(t, err)
	assert.Equal(t, session.ReviewDecision{Verdict: session.VerdictApprove}, ft.lastVerdict)
}

func TestSecondResumeWhilePendingIsRefused(t *testing.T) {
	ft := &fakeTransport{
		resumeResp: session.Session{Status: session.StatusRunning},
		resumeGate: make(chan struct{}),
		resumeIn:   make(chan struct{}, 1),
	}
	c := interruptedClient(t, ft)

	done := make(chan error, 1)
	go func() {
		_, err := c.Resume(context.Background(), "th-1", session.ReviewDecision{Verdict: session.VerdictApprove})
		done <- err
	}()
	<-ft.resumeIn
	_, err := c.Resume(context.Background(), "th-1", session.ReviewDecision{Verdict: session.VerdictApprove})
	require.ErrorIs(t, err, session.ErrConcurrentSubmission)

	close(ft.resumeGate)
	require.NoError(t, <-done)
	_, _, resumes := ft.counts()
	assert.Equal(t, 1, resumes)
}

func TestResumeFailureKeepsInterruptedState(t *testing.T) {
	ft := &fakeTransport{resumeErr: &remote.StatusError{Op: "resume", Code: http.StatusBadGateway}}
	c := interruptedClient(t, ft)
	s, err := c.Resume(context.Background(), "th-1", session.ReviewDecision{Verdict: session.VerdictApprove})
	require.ErrorIs(t, err, session.ErrTransport)
	assert.Equal(t, session.StatusInterrupted, s.Status)

	ft.resumeErr = &remote.StatusError{Op: "resume", Code: http.StatusConflict}
	_, err = c.Resume(context.Background(), "th-1", session.ReviewDecision{Verdict: session.VerdictApprove})
	require.ErrorIs(t, err, session.ErrInvalidState)
}

func TestFetchStatusNotFoundIsTerminal(t *testing.T) {
	ft := &fakeTransport{statusErr: &remote.StatusError{Op: "status", Code: http.StatusNotFound}}
	c := newClient(ft)
	s, err := c.FetchStatus(context.Background(), "th-gone")
	require.ErrorIs(t, err, session.ErrNotFound)
	assert.True(t, session.IsTerminalError(err))
	assert.Equal(t, session.StatusFailed, s.Status)
	assert.ErrorIs(t, s.Err, session.ErrNotFound)

	snap, ok := c.Snapshot("th-gone")
	require.True(t, ok)
	assert.Equal(t, session.StatusFailed, snap.Status)
}

func TestFetchStatusTransportErrorKeepsLastSnapshot(t *testing.T) {
	ft := &fakeTransport{statusResp: []session.Session{{ThreadID: "th-1", Status: session.StatusRunning, CurrentNode: "drafting"}}}
	c := newClient(ft)
	_, err := c.FetchStatus(context.Background(), "th-1")
	require.NoError(t, err)

	ft.mu.Lock()
	ft.statusErr = context.DeadlineExceeded
	ft.mu.Unlock()
	s, err := c.FetchStatus(context.Background(), "th-1")
	require.ErrorIs(t, err, session.ErrTransport)
	assert.True(t, session.IsRetryable(err))
	assert.Equal(t, session.StatusRunning, s.Status)
	assert.Equal(t, "drafting", s.CurrentNode)
}

func TestFetchStatusMergesMonotonically(t *testing.T) {
	a := session.Section{SectionID: "a", Content: "A"}
	b := session.Section{SectionID: "b", Content: "B"}
	ft := &fakeTransport{statusResp: []session.Session{
		{Status: session.StatusRunning, SectionMemory: []session.Section{a}},
		{Status: session.StatusRunning, SectionMemory: []session.Section{b, a}},
	}}
	c := newClient(ft)
	_, err := c.FetchStatus(context.Background(), "th-1")
	require.NoError(t, err)

	s, err := c.FetchStatus(context.Background(), "th-1")
	require.ErrorIs(t, err, session.ErrInvalidState)
	assert.Equal(t, []session.Section{a}, s.SectionMemory)
}

func TestForget(t *testing.T) {
	ft := &fakeTransport{statusResp: []session.Session{{Status: session.StatusRunning}}}
	c := newClient(ft)
	_, err := c.FetchStatus(context.Background(), "th-1")
	require.NoError(t, err)
	c.Forget("th-1")
	_, ok := c.Snapshot("th-1")
	assert.False(t, ok)
}

func TestCancelledFetchDoesNotMoveRegistry(t *testing.T) {
	ft := &fakeTransport{statusResp: []session.Session{
		{Status: session.StatusRunning, CurrentNode: "planner"},
		{Status: session.StatusCompleted},
	}}
	c := newClient(ft)
	_, err := c.FetchStatus(context.Background(), "th-1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.FetchStatus(ctx, "th-1")
	require.ErrorIs(t, err, context.Canceled)

	snap, ok := c.Snapshot("th-1")
	require.True(t, ok)
	assert.Equal(t, session.StatusRunning, snap.Status)
	assert.Equal(t, "planner", snap.CurrentNode)
}
