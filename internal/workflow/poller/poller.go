// Package poller turns a thread's status endpoint into a cancellable stream
// of snapshots. A subscription fetches once immediately, then again one
// interval after each running result, and stops on the first snapshot that
// is not running or on the first error. Failed fetches are not retried.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chambersiq/draftflow/internal/workflow/session"
)

// DefaultInterval is the wait between fetches while a run is in progress.
const DefaultInterval = 2 * time.Second

// ErrAlreadySubscribed is returned when a thread already has a live subscription.
var ErrAlreadySubscribed = errors.New("poller: thread already has an active subscription")

// Fetcher reads the current snapshot of a thread. client.Client implements it.
type Fetcher interface {
	FetchStatus(ctx context.Context, threadID string) (session.Session, error)
}

// FetcherFunc adapts a function into a Fetcher.
type FetcherFunc func(ctx context.Context, threadID string) (session.Session, error)

// FetchStatus executes f.
func (f FetcherFunc) FetchStatus(ctx context.Context, threadID string) (session.Session, error) {
	return f(ctx, threadID)
}

// Logger records poller activity. It matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Update is one delivered fetch result. Err is set on the final update of a
// failed subscription; Session then holds the last known snapshot.
type Update struct {
	Session session.Session
	Err     error
}

// Poller hands out subscriptions, at most one live per thread.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
	clock    Clock
	logger   Logger

	mu     sync.Mutex
	active map[string]*Subscription
}

// Option customizes poller construction.
type Option func(*Poller)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithClock allows tests to control scheduling.
func WithClock(c Clock) Option {
	return func(p *Poller) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// New builds a poller over fetcher.
func New(fetcher Fetcher, opts ...Option) *Poller {
	p := &Poller{
		fetcher:  fetcher,
		interval: DefaultInterval,
		clock:    wallClock{},
		logger:   nopLogger{},
		active:   make(map[string]*Subscription),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Interval returns the configured wait between fetches.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Active reports whether threadID has a live subscription.
func (p *Poller) Active(threadID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.active[threadID]
	return ok
}

// Subscribe starts polling threadID. The first fetch is issued right away.
// Cancelling ctx cancels the subscription.
func (p *Poller) Subscribe(ctx context.Context, threadID string) (*Subscription, error) {
	if threadID == "" {
		return nil, errors.New("poller: thread id required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.Lock()
	if _, busy := p.active[threadID]; busy {
		p.mu.Unlock()
		return nil, ErrAlreadySubscribed
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		threadID: threadID,
		poller:   p,
		ctx:      fetchCtx,
		cancel:   cancel,
		updates:  make(chan Update, 1),
		done:     make(chan struct{}),
	}
	p.active[threadID] = s
	p.mu.Unlock()

	s.mu.Lock()
	s.stopWatch = context.AfterFunc(ctx, s.Cancel)
	s.mu.Unlock()
	go s.poll()
	return s, nil
}

func (p *Poller) release(s *Subscription) {
	p.mu.Lock()
	if p.active[s.threadID] == s {
		delete(p.active, s.threadID)
	}
	p.mu.Unlock()
}

// Subscription is the handle for one thread's polling lifetime.
type Subscription struct {
	threadID  string
	poller    *Poller
	ctx       context.Context
	cancel    context.CancelFunc
	stopWatch func() bool

	mu        sync.Mutex
	updates   chan Update
	done      chan struct{}
	timer     Timer
	closed    bool
	cancelled bool
	latest    session.Session
	err       error
	fetches   int
}

// ThreadID returns the subscribed thread.
func (s *Subscription) ThreadID() string {
	return s.threadID
}

// Updates delivers snapshots. Only the newest undelivered snapshot is kept;
// snapshots are cumulative, so a slow reader skips nothing it needs. The
// channel closes when the subscription ends.
func (s *Subscription) Updates() <-chan Update {
	return s.updates
}

// Done is closed when the subscription ends for any reason.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the subscription, if any. Cancellation
// is not an error.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Latest returns the last delivered snapshot.
func (s *Subscription) Latest() (session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest.ThreadID == "" {
		return session.Session{}, false
	}
	return s.latest.Clone(), true
}

// Cancelled reports whether Cancel ended the subscription.
func (s *Subscription) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Fetches reports how many fetches were issued.
func (s *Subscription) Fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

// Cancel stops the subscription. It is idempotent and safe from any
// goroutine, including while handling an update. Undelivered snapshots are
// dropped and a fetch still in flight is discarded when it returns.
func (s *Subscription) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.cancelled = true
	select {
	case <-s.updates:
	default:
	}
	s.finishLocked()
}

func (s *Subscription) poll() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.fetches++
	ctx := s.ctx
	s.mu.Unlock()

	snap, err := s.poller.fetcher.FetchStatus(ctx, s.threadID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.poller.logger.Printf("poller: discarded late result for %s", s.threadID)
		return
	}
	// The caller's context may end before AfterFunc runs Cancel. A fetch cut
	// short that way is a cancellation, not a failure.
	if s.ctx.Err() != nil {
		s.poller.logger.Printf("poller: discarded result for cancelled %s", s.threadID)
		s.cancelled = true
		s.finishLocked()
		return
	}
	if snap.ThreadID == "" {
		snap.ThreadID = s.threadID
	}
	if err != nil {
		s.poller.logger.Printf("poller: fetch %s failed: %v", s.threadID, err)
		s.latest = snap.Clone()
		s.err = err
		s.pushLocked(Update{Session: snap, Err: err})
		s.finishLocked()
		return
	}
	s.latest = snap.Clone()
	s.pushLocked(Update{Session: snap})
	if snap.Status == session.StatusRunning {
		s.timer = s.poller.clock.AfterFunc(s.poller.interval, s.poll)
		return
	}
	s.finishLocked()
}

// pushLocked replaces any undelivered update with u. s.mu is held, so this
// is the only sender and the buffer always has room after the drain.
func (s *Subscription) pushLocked(u Update) {
	select {
	case s.updates <- u:
		return
	default:
	}
	select {
	case <-s.updates:
	default:
	}
	s.updates <- u
}

func (s *Subscription) finishLocked() {
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.cancel()
	if s.stopWatch != nil {
		s.stopWatch()
	}
	close(s.updates)
	close(s.done)
	s.poller.release(s)
}
