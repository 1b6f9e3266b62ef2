// internal/tui/app.go
//
// This is the terminal host for a drafting run. It uses bubbletea, which
// follows The Elm Architecture:
//
// 1. Model: the run snapshot, the editor buffer and the review prompt
// 2. Update: controller events and key presses become new state
// 3. View: the state rendered to a string
//
// Controller events arrive one at a time through waitForEvent, so the
// bubbletea loop stays the only writer of the textarea.

package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/chambersiq/draftflow/internal/config"
	"github.com/chambersiq/draftflow/internal/workflow/controller"
	"github.com/chambersiq/draftflow/internal/workflow/editor"
	"github.com/chambersiq/draftflow/internal/workflow/review"
	"github.com/chambersiq/draftflow/internal/workflow/sections"
	"github.com/chambersiq/draftflow/internal/workflow/session"
)

const logTailLines = 200

// focusArea is which input receives typed keys.
type focusArea int

const (
	focusEditor focusArea = iota
	focusFeedback
)

type eventMsg struct {
	event controller.Event
}

type eventsClosedMsg struct{}

type startedMsg struct {
	session session.Session
	err     error
}

type decisionMsg struct {
	verdict session.Verdict
	session session.Session
	err     error
}

type savedMsg struct {
	err error
}

type retryMsg struct {
	err error
}

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithStart makes the app begin a new run on Init.
func WithStart(params session.StartParams) AppOption {
	return func(a *App) {
		p := params
		a.start = &p
	}
}

// WithThread makes the app attach to an existing run on Init.
func WithThread(threadID string) AppOption {
	return func(a *App) { a.threadID = strings.TrimSpace(threadID) }
}

// WithContext bounds every controller call the app makes.
func WithContext(ctx context.Context) AppOption {
	return func(a *App) {
		if ctx != nil {
			a.ctx = ctx
		}
	}
}

// App is the main application model. In bubbletea, this holds ALL your state.
type App struct {
	ctx    context.Context
	config *config.Config
	ctrl   *controller.Controller

	start    *session.StartParams
	threadID string

	// Run state from the last controller event.
	session   session.Session
	progress  sections.Progress
	gate      review.GateState
	verdicts  []session.Verdict
	lastEvent controller.Event
	hasEvent  bool
	exportURL string
	closed    bool

	statusMsg string
	err       error

	// UI components
	focus    focusArea
	editor   textarea.Model
	feedback textinput.Model
	spinner  spinner.Model
	bar      progress.Model
	logs     viewport.Model
	logCount int

	width  int
	height int
}

// NewApp wires the UI to a controller. cfg may be nil, in which case
// protocol changes are not persisted.
func NewApp(cfg *config.Config, ctrl *controller.Controller, opts ...AppOption) *App {
	ed := textarea.New()
	ed.Placeholder = "The draft appears here once the first section is written."
	ed.ShowLineNumbers = false
	ed.CharLimit = 0
	ed.MaxHeight = 0
	ed.SetWidth(80)
	ed.SetHeight(14)
	ed.Focus()

	fb := textinput.New()
	fb.Placeholder = "Feedback for the drafting agents"
	fb.CharLimit = 2000
	fb.Width = 76

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = spinnerStyle

	a := &App{
		ctx:      context.Background(),
		config:   cfg,
		ctrl:     ctrl,
		editor:   ed,
		feedback: fb,
		spinner:  sp,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		logs:     viewport.New(80, 6),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.editor.SetValue(ctrl.Buffer().Content())
	return a
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.begin(), a.waitForEvent())
}

// begin starts or attaches to the run.
func (a *App) begin() tea.Cmd {
	switch {
	case a.start != nil:
		params := *a.start
		return func() tea.Msg {
			s, err := a.ctrl.Start(a.ctx, params)
			return startedMsg{session: s, err: err}
		}
	case a.threadID != "":
		threadID := a.threadID
		return func() tea.Msg {
			err := a.ctrl.Watch(a.ctx, threadID)
			return startedMsg{session: session.Session{ThreadID: threadID}, err: err}
		}
	}
	return nil
}

// waitForEvent blocks until the controller has something to show.
func (a *App) waitForEvent() tea.Cmd {
	events := a.ctrl.Events()
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{event: ev}
	}
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.resize(msg.Width, msg.Height)
		return a, nil

	case startedMsg:
		if msg.err != nil {
			a.err = msg.err
			a.statusMsg = fmt.Sprintf("Could not attach to the run: %v", msg.err)
			return a, nil
		}
		a.threadID = msg.session.ThreadID
		a.statusMsg = "Attached to " + a.threadID
		return a, nil

	case eventMsg:
		a.applyEvent(msg.event)
		return a, a.waitForEvent()

	case eventsClosedMsg:
		a.closed = true
		return a, nil

	case decisionMsg:
		if msg.err != nil {
			a.err = msg.err
			a.statusMsg = describeDecisionError(msg.verdict, msg.err)
			return a, nil
		}
		a.err = nil
		a.feedback.Reset()
		a.setFocus(focusEditor)
		a.statusMsg = fmt.Sprintf("Sent %s, drafting continues", msg.verdict)
		return a, nil

	case savedMsg:
		if msg.err != nil {
			a.statusMsg = fmt.Sprintf("Save failed: %v", msg.err)
		} else {
			a.statusMsg = "Draft saved"
		}
		return a, nil

	case retryMsg:
		if msg.err != nil {
			a.statusMsg = fmt.Sprintf("Retry failed: %v", msg.err)
			return a, nil
		}
		a.err = nil
		a.hasEvent = false
		a.statusMsg = "Retrying"
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		if model, cmd, handled := a.handleKey(msg); handled {
			return model, cmd
		}
	}

	return a, a.updateFocused(msg)
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c":
		a.ctrl.Cancel()
		return a, tea.Quit, true
	case "tab":
		if a.gate == review.AwaitingDecision && a.focus == focusEditor {
			a.setFocus(focusFeedback)
		} else {
			a.setFocus(focusEditor)
		}
		return a, nil, true
	case "ctrl+a":
		return a, a.submit(session.VerdictApprove), true
	case "ctrl+r":
		return a, a.submit(session.VerdictReject), true
	case "ctrl+f":
		return a, a.submit(session.VerdictRefine), true
	case "ctrl+s":
		return a, a.save(), true
	case "ctrl+p":
		a.toggleProtocol()
		return a, nil, true
	case "ctrl+t":
		if a.hasEvent && a.lastEvent.Retryable() {
			return a, a.retry(), true
		}
	}
	return a, nil, false
}

// updateFocused routes a message to the focused input and mirrors editor
// changes into the controller's buffer.
func (a *App) updateFocused(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch a.focus {
	case focusFeedback:
		a.feedback, cmd = a.feedback.Update(msg)
		a.ctrl.SetFeedback(a.feedback.Value())
	default:
		before := a.editor.Value()
		a.editor, cmd = a.editor.Update(msg)
		if after := a.editor.Value(); after != before {
			a.ctrl.Buffer().SetContent(after)
		}
	}
	return cmd
}

func (a *App) applyEvent(ev controller.Event) {
	a.lastEvent = ev
	a.hasEvent = true
	if ev.Session.ThreadID != "" {
		a.session = ev.Session
		a.threadID = ev.Session.ThreadID
	}
	a.progress = ev.Progress
	a.gate = ev.Gate
	a.verdicts = ev.Verdicts
	a.err = ev.Err
	if ev.ExportURL != "" {
		a.exportURL = ev.ExportURL
	}
	if ev.Outcome == editor.Overwritten {
		a.editor.SetValue(a.ctrl.Buffer().Content())
	}
	if a.gate != review.AwaitingDecision && a.focus == focusFeedback {
		a.setFocus(focusEditor)
	}
	switch {
	case ev.External:
		a.statusMsg = "Draft file changed on disk, buffer reloaded"
	case ev.Session.Status == session.StatusInterrupted:
		a.statusMsg = "Review requested"
	case ev.Session.Status == session.StatusCompleted:
		a.statusMsg = "Draft complete"
		if ev.ExportURL != "" {
			a.statusMsg += ", exported to " + ev.ExportURL
		}
	}
	a.refreshLogs()
}

func (a *App) refreshLogs() {
	lines, total := a.ctrl.LogTail(logTailLines)
	if total == a.logCount {
		return
	}
	a.logCount = total
	a.logs.SetContent(strings.Join(lines, "\n"))
	a.logs.GotoBottom()
}

func (a *App) submit(verdict session.Verdict) tea.Cmd {
	if a.gate != review.AwaitingDecision {
		a.statusMsg = "No review is pending"
		return nil
	}
	if !a.ctrl.Protocol().Allows(verdict) {
		a.statusMsg = fmt.Sprintf("%s is not available under the %s protocol", verdict, a.ctrl.Protocol().Name())
		return nil
	}
	a.ctrl.SetFeedback(a.feedback.Value())
	a.statusMsg = fmt.Sprintf("Sending %s", verdict)
	return func() tea.Msg {
		s, err := a.ctrl.SubmitDecision(a.ctx, verdict)
		return decisionMsg{verdict: verdict, session: s, err: err}
	}
}

func (a *App) save() tea.Cmd {
	return func() tea.Msg {
		return savedMsg{err: a.ctrl.SaveDraft(a.ctx)}
	}
}

func (a *App) retry() tea.Cmd {
	return func() tea.Msg {
		return retryMsg{err: a.ctrl.Retry()}
	}
}

func (a *App) toggleProtocol() {
	next := review.Binary
	if a.ctrl.Protocol().Name() == review.Binary.Name() {
		next = review.Ternary
	}
	if a.config != nil {
		if err := a.config.SetReviewProtocol(next.Name()); err != nil {
			a.statusMsg = fmt.Sprintf("Could not save protocol: %v", err)
			return
		}
	}
	a.ctrl.SetProtocol(next)
	a.verdicts = a.ctrl.Protocol().Verdicts()
	if a.gate != review.AwaitingDecision {
		a.verdicts = nil
	}
	a.feedback.Reset()
	a.statusMsg = "Review protocol: " + next.Name()
}

func (a *App) setFocus(f focusArea) {
	a.focus = f
	if f == focusFeedback {
		a.editor.Blur()
		a.feedback.Focus()
		return
	}
	a.feedback.Blur()
	a.editor.Focus()
}

func (a *App) resize(width, height int) {
	a.width = width
	a.height = height
	inner := max(20, width-4)
	a.editor.SetWidth(inner)
	a.feedback.Width = max(10, inner-4)
	a.bar.Width = max(10, inner/2)
	a.logs.Width = inner
	// header, progress, review panel, status and help take about 16 rows.
	rest := max(6, height-16)
	a.editor.SetHeight(max(4, rest*2/3))
	a.logs.Height = max(3, rest-a.editor.Height())
}

func describeDecisionError(verdict session.Verdict, err error) string {
	switch {
	case errors.Is(err, session.ErrValidation):
		return fmt.Sprintf("%s needs feedback: %v", verdict, err)
	case errors.Is(err, session.ErrConcurrentSubmission):
		return "A decision is already being sent"
	case errors.Is(err, session.ErrInvalidState):
		return "The run is no longer waiting for review"
	case session.IsTerminalError(err):
		return fmt.Sprintf("The run is gone: %v", err)
	}
	return fmt.Sprintf("Decision not sent: %v", err)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
