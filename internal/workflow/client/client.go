// Package client implements the workflow session operations: start a run,
// resume it with a review decision, and fetch its status. Every precondition
// that can be checked locally is checked before a request goes out, and the
// last snapshot per thread is kept so later calls can be judged against it.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chambersiq/draftflow/internal/workflow/remote"
	"github.com/chambersiq/draftflow/internal/workflow/session"
)

// Transport is the engine API the client drives. remote.Client implements it.
type Transport interface {
	Start(ctx context.Context, params session.StartParams) (session.Session, error)
	Status(ctx context.Context, threadID string) (session.Session, error)
	Resume(ctx context.Context, threadID string, decision session.ReviewDecision) (session.Session, error)
}

// Logger records client activity. It matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Client owns the registry of known sessions.
type Client struct {
	transport Transport
	logger    Logger
	clock     func() time.Time

	mu       sync.Mutex
	sessions map[string]session.Session
	resuming map[string]bool
}

// Option customizes client construction.
type Option func(*Client)

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock allows tests to control snapshot timestamps.
func WithClock(clock func() time.Time) Option {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// New builds a client over transport.
func New(transport Transport, opts ...Option) *Client {
	c := &Client{
		transport: transport,
		logger:    nopLogger{},
		clock:     func() time.Time { return time.Now().UTC() },
		sessions:  make(map[string]session.Session),
		resuming:  make(map[string]bool),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Start creates a new run. It is the only operation that mints a thread id.
func (c *Client) Start(ctx context.Context, params session.StartParams) (session.Session, error) {
	if err := params.Validate(); err != nil {
		return session.Session{}, err
	}
	s, err := c.transport.Start(ctx, params)
	if err != nil {
		c.logger.Printf("client: start case %s failed: %v", params.CaseID, err)
		return session.Session{}, session.NewError(session.ErrStart, "start", "", err)
	}
	if s.ThreadID == "" {
		return session.Session{}, session.NewError(session.ErrStart, "start", "", errors.New("engine returned no thread id"))
	}
	if s.Status != session.StatusRunning {
		return session.Session{}, session.NewError(session.ErrStart, "start", s.ThreadID,
			fmt.Errorf("new run reported status %q", s.Status))
	}
	s.UpdatedAt = c.clock()

	c.mu.Lock()
	c.sessions[s.ThreadID] = s.Clone()
	c.mu.Unlock()
	c.logger.Printf("client: started %s for case %s (%s)", s.ThreadID, params.CaseID, params.JobType)
	return s, nil
}

// Resume sends a review decision for a thread that is waiting on a human.
// The thread must be known from Start or FetchStatus and its last snapshot
// must be interrupted; otherwise nothing is sent. Protocol-specific checks
// belong to the review gate; here only the shared feedback rule applies.
func (c *Client) Resume(ctx context.Context, threadID string, decision session.ReviewDecision) (session.Session, error) {
	c.mu.Lock()
	prev, ok := c.sessions[threadID]
	switch {
	case !ok:
		c.mu.Unlock()
		return session.Session{}, session.NewError(session.ErrInvalidState, "resume", threadID,
			errors.New("thread is not known; fetch its status first"))
	case prev.Status != session.StatusInterrupted:
		c.mu.Unlock()
		return prev.Clone(), session.NewError(session.ErrInvalidState, "resume", threadID,
			fmt.Errorf("cannot resume a %s session", prev.Status))
	case c.resuming[threadID]:
		c.mu.Unlock()
		return prev.Clone(), session.NewError(session.ErrConcurrentSubmission, "resume", threadID, nil)
	}
	if err := decision.Validate(); err != nil {
		c.mu.Unlock()
		var werr *session.Error
		if errors.As(err, &werr) {
			werr.ThreadID = threadID
		}
		return prev.Clone(), err
	}
	c.resuming[threadID] = true
	c.mu.Unlock()

	next, err := c.transport.Resume(ctx, threadID, decision.Normalized())

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.resuming, threadID)
	if err != nil {
		werr := classify("resume", threadID, err)
		c.logger.Printf("client: resume %s failed: %v", threadID, werr)
		if session.IsTerminalError(werr) {
			failed := c.sessions[threadID].Failed(werr)
			failed.UpdatedAt = c.clock()
			c.sessions[threadID] = failed
			return failed.Clone(), werr
		}
		return c.sessions[threadID].Clone(), werr
	}
	return c.adoptLocked(threadID, next)
}

// FetchStatus reads the thread's current state. A thread the engine no
// longer knows is recorded as failed and returned with an ErrNotFound error;
// transport failures return the last known snapshot with the error.
func (c *Client) FetchStatus(ctx context.Context, threadID string) (session.Session, error) {
	if threadID == "" {
		return session.Session{}, session.NewError(session.ErrInvalidState, "status", "", errors.New("thread id required"))
	}
	next, err := c.transport.Status(ctx, threadID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		werr := classify("status", threadID, err)
		prev, ok := c.sessions[threadID]
		if !ok {
			prev = session.Session{ThreadID: threadID}
		}
		if session.IsTerminalError(werr) {
			failed := prev.Failed(werr)
			failed.UpdatedAt = c.clock()
			c.sessions[threadID] = failed
			return failed.Clone(), werr
		}
		return prev.Clone(), werr
	}
	if ctx != nil && ctx.Err() != nil {
		// The caller gave up while the request was in flight; a cancelled
		// poll must not move the registry.
		prev := c.sessions[threadID]
		return prev.Clone(), session.NewError(session.ErrTransport, "status", threadID, ctx.Err())
	}
	return c.adoptLocked(threadID, next)
}

func (c *Client) adoptLocked(threadID string, next session.Session) (session.Session, error) {
	next.ThreadID = threadID
	prev, ok := c.sessions[threadID]
	merged := next
	if ok {
		var err error
		merged, err = session.Merge(prev, next)
		if err != nil {
			c.logger.Printf("client: rejected snapshot for %s: %v", threadID, err)
			return prev.Clone(), err
		}
	}
	merged.UpdatedAt = c.clock()
	c.sessions[threadID] = merged.Clone()
	return merged, nil
}

// Snapshot returns the last known state of a thread.
func (c *Client) Snapshot(threadID string) (session.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[threadID]
	if !ok {
		return session.Session{}, false
	}
	return s.Clone(), true
}

// Forget drops a thread from the registry.
func (c *Client) Forget(threadID string) {
	c.mu.Lock()
	delete(c.sessions, threadID)
	c.mu.Unlock()
}

// classify maps a transport failure onto the workflow error kinds.
func classify(op, threadID string, err error) error {
	var werr *session.Error
	if errors.As(err, &werr) {
		return err
	}
	kind := session.ErrTransport
	switch remote.StatusCode(err) {
	case http.StatusNotFound:
		kind = session.ErrNotFound
	case http.StatusConflict:
		kind = session.ErrInvalidState
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		kind = session.ErrValidation
	}
	return session.NewError(kind, op, threadID, err)
}
