// Package controller is what a hosting UI embeds. It owns one thread at a
// time: it polls it, rebuilds the document from section memory, keeps the
// editor buffer in sync, tracks the review gate, and persists the final
// document when the run completes.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chambersiq/draftflow/internal/drafts"
	"github.com/chambersiq/draftflow/internal/logbook"
	"github.com/chambersiq/draftflow/internal/workflow/client"
	"github.com/chambersiq/draftflow/internal/workflow/editor"
	"github.com/chambersiq/draftflow/internal/workflow/poller"
	"github.com/chambersiq/draftflow/internal/workflow/review"
	"github.com/chambersiq/draftflow/internal/workflow/sections"
	"github.com/chambersiq/draftflow/internal/workflow/session"
)

// ErrNoThread is returned by actions that need a thread before one is attached.
var ErrNoThread = errors.New("controller: no workflow thread attached")

// Logger records controller activity. It matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Event is one state change the UI should render.
type Event struct {
	Session  session.Session
	Document sections.Document
	Progress sections.Progress
	Gate     review.GateState
	Verdicts []session.Verdict
	Outcome  editor.Outcome
	// External is set when the buffer changed because the draft file was
	// edited outside the UI.
	External bool
	// ExportURL is set once the completed document has been uploaded.
	ExportURL string
	Err       error
}

// Terminal reports whether the run can make no further progress. A UI uses
// it to stop showing a spinner for a dead job.
func (e Event) Terminal() bool {
	return e.Session.Status.IsTerminal() || session.IsTerminalError(e.Err)
}

// Retryable reports whether the UI may offer a manual retry.
func (e Event) Retryable() bool {
	return e.Err != nil && session.IsRetryable(e.Err) && !e.Terminal()
}

// LogbookFunc opens the logbook for a thread.
type LogbookFunc func(threadID string) (*logbook.Logbook, error)

// Controller wires the workflow packages together for one hosting UI.
type Controller struct {
	client    *client.Client
	poller    *poller.Poller
	gate      *review.Gate
	sync      *editor.Synchronizer
	buffer    editor.Buffer
	store     drafts.Store
	exporter  drafts.Exporter
	logbooks  LogbookFunc
	logger    Logger
	streaming bool
	clock     func() time.Time

	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup

	applyMu sync.Mutex

	mu        sync.Mutex
	ctx       context.Context
	threadID  string
	caseID    string
	sub       *poller.Subscription
	stopWatch context.CancelFunc
	book      *logbook.Logbook
	logged    int
	finalized bool
	latest    session.Session
	closed    bool
}

// Option customizes controller construction.
type Option func(*Controller)

// WithDraftStore persists the buffer on completion and on SaveDraft.
func WithDraftStore(s drafts.Store) Option {
	return func(c *Controller) { c.store = s }
}

// WithExporter uploads the completed document.
func WithExporter(e drafts.Exporter) Option {
	return func(c *Controller) { c.exporter = e }
}

// WithLogbooks records engine logs per thread.
func WithLogbooks(f LogbookFunc) Option {
	return func(c *Controller) { c.logbooks = f }
}

// WithProtocol sets the initial review protocol.
func WithProtocol(p review.Protocol) Option {
	return func(c *Controller) { c.gate.SetProtocol(p) }
}

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithStreaming pushes partial documents into the buffer while the run is
// going. Off by default.
func WithStreaming(on bool) Option {
	return func(c *Controller) { c.streaming = on }
}

// WithBuffer replaces the in-memory editor buffer.
func WithBuffer(b editor.Buffer) Option {
	return func(c *Controller) {
		if b != nil {
			c.buffer = b
		}
	}
}

// WithClock allows tests to control draft timestamps.
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// New builds a controller. The client doubles as the gate's resumer.
func New(cl *client.Client, p *poller.Poller, opts ...Option) *Controller {
	c := &Controller{
		client: cl,
		poller: p,
		gate:   review.NewGate(cl, review.Ternary),
		buffer: editor.NewStringBuffer(""),
		logger: nopLogger{},
		clock:  func() time.Time { return time.Now().UTC() },
		events: make(chan Event, 16),
		done:   make(chan struct{}),
		ctx:    context.Background(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.sync = editor.NewSynchronizer(c.buffer)
	return c
}

// Events delivers state changes. The channel closes on Close.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Buffer is the local editable document.
func (c *Controller) Buffer() editor.Buffer {
	return c.buffer
}

// ThreadID returns the attached thread.
func (c *Controller) ThreadID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threadID
}

// Latest returns the last applied snapshot.
func (c *Controller) Latest() session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest.Clone()
}

// Start begins a new run and watches it.
func (c *Controller) Start(ctx context.Context, params session.StartParams) (session.Session, error) {
	s, err := c.client.Start(ctx, params)
	if err != nil {
		return session.Session{}, err
	}
	if err := c.attach(ctx, s.ThreadID, params.CaseID); err != nil {
		return s, err
	}
	c.publish(c.apply(poller.Update{Session: s}))
	return s, c.subscribe()
}

// Watch attaches to an existing thread, for example after a reload. A
// draft saved earlier for the thread is restored into the buffer first.
func (c *Controller) Watch(ctx context.Context, threadID string) error {
	if threadID == "" {
		return ErrNoThread
	}
	if err := c.attach(ctx, threadID, ""); err != nil {
		return err
	}
	c.restoreDraft(ctx, threadID)
	return c.subscribe()
}

// Retry resubscribes after a fetch error ended polling.
func (c *Controller) Retry() error {
	return c.subscribe()
}

func (c *Controller) attach(ctx context.Context, threadID, caseID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("controller: closed")
	}
	if c.sub != nil {
		c.sub.Cancel()
		c.sub = nil
	}
	if c.stopWatch != nil {
		c.stopWatch()
		c.stopWatch = nil
	}
	c.ctx = ctx
	c.threadID = threadID
	c.caseID = caseID
	c.logged = 0
	c.finalized = false
	c.latest = session.Session{ThreadID: threadID}
	c.book = nil
	if c.logbooks != nil {
		book, err := c.logbooks(threadID)
		if err != nil {
			c.logger.Printf("controller: open logbook for %s: %v", threadID, err)
		} else {
			c.book = book
			c.logged = book.Recorded()
		}
	}
	c.mu.Unlock()
	c.gate.Observe(session.Session{ThreadID: threadID})
	c.watchDraft(ctx, threadID)
	return nil
}

func (c *Controller) subscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("controller: closed")
	}
	if c.threadID == "" {
		return ErrNoThread
	}
	if c.sub != nil {
		select {
		case <-c.sub.Done():
		default:
			return nil
		}
	}
	sub, err := c.poller.Subscribe(c.ctx, c.threadID)
	if err != nil {
		return err
	}
	c.sub = sub
	c.wg.Add(1)
	go c.forward(sub)
	return nil
}

func (c *Controller) forward(sub *poller.Subscription) {
	defer c.wg.Done()
	for u := range sub.Updates() {
		c.publish(c.apply(u))
	}
}

func (c *Controller) publish(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// apply turns a snapshot into an event: rebuild the document, sync the
// buffer, move the gate, and record new engine logs.
func (c *Controller) apply(u poller.Update) Event {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	s := u.Session
	ev := Event{Session: s, Err: u.Err}
	ev.Document = sections.FromSession(s)
	ev.Progress = sections.ComputeProgress(s)

	switch s.Status {
	case session.StatusRunning:
		if c.streaming && !ev.Document.Empty() {
			ev.Outcome = c.sync.Stream(ev.Document.Body)
		} else {
			ev.Outcome = c.sync.Apply(ev.Document.Body)
		}
	case session.StatusInterrupted:
		ev.Outcome = c.sync.Apply(sections.Preview(s))
	case session.StatusCompleted:
		c.sync.SetForceUpdate()
		ev.Outcome = c.sync.Apply(ev.Document.Body)
	}

	ev.Gate = c.gate.Observe(s)
	ev.Verdicts = c.gate.LegalVerdicts()

	c.mu.Lock()
	if s.ThreadID != "" && s.ThreadID == c.threadID && s.Status != "" {
		c.latest = s.Clone()
	}
	book := c.book
	var fresh []session.LogEntry
	if len(s.WorkflowLogs) > c.logged {
		fresh = append(fresh, s.WorkflowLogs[c.logged:]...)
		c.logged = len(s.WorkflowLogs)
	}
	finalize := s.Status == session.StatusCompleted && !c.finalized
	if finalize {
		c.finalized = true
	}
	c.mu.Unlock()

	book.Record(fresh)
	if u.Err != nil {
		book.Error("%v", u.Err)
	}
	if finalize {
		url, err := c.finish(s)
		ev.ExportURL = url
		if err != nil {
			ev.Err = errors.Join(ev.Err, err)
		}
	}
	return ev
}

// finish persists the buffer and exports the document concurrently.
func (c *Controller) finish(s session.Session) (string, error) {
	c.mu.Lock()
	ctx, caseID := c.ctx, c.caseID
	c.mu.Unlock()

	content := c.buffer.Content()
	var url string
	g, gctx := errgroup.WithContext(ctx)
	if c.store != nil {
		g.Go(func() error {
			return c.store.Save(gctx, drafts.Draft{
				ID:        drafts.IDFor(s.ThreadID),
				ThreadID:  s.ThreadID,
				CaseID:    caseID,
				Content:   content,
				UpdatedAt: c.clock(),
			})
		})
	}
	if c.exporter != nil {
		g.Go(func() error {
			u, err := c.exporter.Export(gctx, drafts.IDFor(s.ThreadID), content)
			url = u
			return err
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Printf("controller: finalize %s: %v", s.ThreadID, err)
		return url, fmt.Errorf("controller: finalize: %w", err)
	}
	c.logger.Printf("controller: finalized %s", s.ThreadID)
	return url, nil
}

// SubmitDecision sends verdict with the current feedback buffer. On
// success polling resumes.
func (c *Controller) SubmitDecision(ctx context.Context, verdict session.Verdict) (session.Session, error) {
	if c.ThreadID() == "" {
		return session.Session{}, ErrNoThread
	}
	next, err := c.gate.Submit(ctx, verdict)
	if err != nil {
		c.mu.Lock()
		book := c.book
		c.mu.Unlock()
		book.Warn("decision %s not accepted: %v", verdict, err)
		if session.IsTerminalError(err) {
			// The engine lost the thread; the client has recorded it as
			// failed, so close the gate and report the dead run.
			if snap, ok := c.client.Snapshot(c.ThreadID()); ok {
				next = snap
			}
			c.publish(c.apply(poller.Update{Session: next, Err: err}))
		}
		return next, err
	}
	c.publish(c.apply(poller.Update{Session: next}))
	if next.Status == session.StatusRunning {
		if err := c.subscribe(); err != nil {
			return next, err
		}
	}
	return next, nil
}

// SetFeedback replaces the review feedback text.
func (c *Controller) SetFeedback(text string) {
	c.gate.SetFeedback(text)
}

// Feedback returns the review feedback text.
func (c *Controller) Feedback() string {
	return c.gate.Feedback()
}

// SetProtocol switches the review protocol and clears feedback.
func (c *Controller) SetProtocol(p review.Protocol) {
	c.gate.SetProtocol(p)
}

// Protocol returns the active review protocol.
func (c *Controller) Protocol() review.Protocol {
	return c.gate.Protocol()
}

// GateState returns the review gate state.
func (c *Controller) GateState() review.GateState {
	return c.gate.State()
}

// LogTail returns recent logbook lines and the total count.
func (c *Controller) LogTail(n int) ([]string, int) {
	c.mu.Lock()
	book := c.book
	c.mu.Unlock()
	return book.Tail(n)
}

// SaveDraft persists the buffer now.
func (c *Controller) SaveDraft(ctx context.Context) error {
	c.mu.Lock()
	threadID, caseID := c.threadID, c.caseID
	c.mu.Unlock()
	if threadID == "" {
		return ErrNoThread
	}
	if c.store == nil {
		return fmt.Errorf("controller: no draft store configured")
	}
	return c.store.Save(ctx, drafts.Draft{
		ID:        drafts.IDFor(threadID),
		ThreadID:  threadID,
		CaseID:    caseID,
		Content:   c.buffer.Content(),
		UpdatedAt: c.clock(),
	})
}

func (c *Controller) restoreDraft(ctx context.Context, threadID string) {
	if c.store == nil {
		return
	}
	d, err := c.store.Get(ctx, drafts.IDFor(threadID))
	if err != nil {
		if !errors.Is(err, drafts.ErrDraftNotFound) {
			c.logger.Printf("controller: restore draft %s: %v", threadID, err)
		}
		return
	}
	c.buffer.SetContent(d.Content)
	c.mu.Lock()
	if d.CaseID != "" {
		c.caseID = d.CaseID
	}
	c.mu.Unlock()
}

// draftWatcher is implemented by stores that can report outside edits.
type draftWatcher interface {
	Watch(ctx context.Context, id string) (<-chan drafts.Draft, error)
}

func (c *Controller) watchDraft(ctx context.Context, threadID string) {
	w, ok := c.store.(draftWatcher)
	if !ok {
		return
	}
	wctx, cancel := context.WithCancel(ctx)
	changes, err := w.Watch(wctx, drafts.IDFor(threadID))
	if err != nil {
		cancel()
		c.logger.Printf("controller: watch draft %s: %v", threadID, err)
		return
	}
	c.mu.Lock()
	c.stopWatch = cancel
	c.mu.Unlock()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for d := range changes {
			if d.Content == c.buffer.Content() {
				continue
			}
			c.buffer.SetContent(d.Content)
			c.publish(Event{
				Session:  c.Latest(),
				Gate:     c.gate.State(),
				Verdicts: c.gate.LegalVerdicts(),
				Outcome:  editor.Overwritten,
				External: true,
			})
		}
	}()
}

// Cancel stops polling the attached thread. Events already queued are kept.
func (c *Controller) Cancel() {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}

// Close cancels everything and closes the events channel.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sub, stop := c.sub, c.stopWatch
	c.sub, c.stopWatch = nil, nil
	c.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	if stop != nil {
		stop()
	}
	close(c.done)
	c.wg.Wait()
	close(c.events)
	return nil
}
