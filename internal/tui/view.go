package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/chambersiq/draftflow/internal/workflow/review"
	"github.com/chambersiq/draftflow/internal/workflow/session"
)

var (
	titleStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	badgeStyleDone    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	badgeStyleFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	badgeStyleRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	badgeStyleReview  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	badgeStyleIdle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	detailTextStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	errorTextStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	warnTextStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	helpTextStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	spinnerStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))
	panelStyle        = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("#444444")).
				Padding(0, 1)
	reviewPanelStyle = panelStyle.BorderForeground(lipgloss.Color("#F7B801"))
)

// View renders the current state to a string.
func (a *App) View() string {
	parts := []string{
		a.renderHeader(),
		a.renderProgress(),
		panelStyle.Render(a.editor.View()),
	}
	if a.gate == review.AwaitingDecision {
		parts = append(parts, a.renderReviewPanel())
	}
	parts = append(parts,
		a.renderLogPanel(),
		a.renderStatusLine(),
		helpTextStyle.Render(a.helpText()),
	)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (a *App) renderHeader() string {
	thread := a.threadID
	if thread == "" {
		thread = "no thread"
	}
	line := fmt.Sprintf("%s  %s  %s",
		titleStyle.Render("⬡ DRAFTFLOW"),
		detailTextStyle.Render(thread),
		statusBadge(a.session.Status))
	if node := strings.TrimSpace(a.session.CurrentNode); node != "" {
		line += detailTextStyle.Render("  · " + node)
	}
	return line
}

func statusBadge(status session.Status) string {
	switch status {
	case session.StatusCompleted:
		return badgeStyleDone.Render("COMPLETED")
	case session.StatusFailed:
		return badgeStyleFailed.Render("FAILED")
	case session.StatusInterrupted:
		return badgeStyleReview.Render("REVIEW")
	case session.StatusRunning:
		return badgeStyleRunning.Render("RUNNING")
	}
	return badgeStyleIdle.Render("WAITING")
}

func (a *App) renderProgress() string {
	label := a.progress.Label()
	if !a.progress.Determinate {
		if a.working() {
			return a.spinner.View() + " " + detailTextStyle.Render(label)
		}
		return detailTextStyle.Render(label)
	}
	return a.bar.ViewAs(a.progress.Fraction) + " " + detailTextStyle.Render(label)
}

func (a *App) renderReviewPanel() string {
	var b strings.Builder
	b.WriteString(badgeStyleReview.Render("REVIEW REQUESTED"))
	b.WriteString(detailTextStyle.Render(fmt.Sprintf("  (%s protocol)", a.ctrl.Protocol().Name())))
	if fb := strings.TrimSpace(a.session.HumanReadableFeedback); fb != "" {
		b.WriteString("\n")
		b.WriteString(fb)
	}
	b.WriteString("\n")
	b.WriteString(a.feedback.View())
	b.WriteString("\n")
	b.WriteString(helpTextStyle.Render(verdictHints(a.verdicts)))
	return reviewPanelStyle.Render(b.String())
}

func verdictHints(verdicts []session.Verdict) string {
	keys := map[session.Verdict]string{
		session.VerdictApprove: "ctrl+a approve",
		session.VerdictReject:  "ctrl+r reject",
		session.VerdictRefine:  "ctrl+f refine",
	}
	hints := make([]string, 0, len(verdicts)+1)
	for _, v := range verdicts {
		if hint, ok := keys[v]; ok {
			hints = append(hints, hint)
		}
	}
	hints = append(hints, "tab feedback")
	return strings.Join(hints, " · ")
}

func (a *App) renderLogPanel() string {
	if a.logCount == 0 {
		return ""
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(fmt.Sprintf("LOG · %d entries", a.logCount))
	return panelStyle.Render(head + "\n" + detailTextStyle.Render(a.logs.View()))
}

// renderStatusLine separates a dead run from one that is still working.
func (a *App) renderStatusLine() string {
	ev := a.lastEvent
	switch {
	case a.hasEvent && ev.Session.Status == session.StatusCompleted && ev.Err != nil:
		return warnTextStyle.Render(fmt.Sprintf("Draft complete, but not stored: %v", ev.Err))
	case a.hasEvent && ev.Terminal() && ev.Err != nil:
		return errorTextStyle.Render(fmt.Sprintf("Run failed: %v", ev.Err))
	case a.hasEvent && ev.Session.Status == session.StatusFailed:
		return errorTextStyle.Render("Run failed on the engine")
	case a.hasEvent && ev.Retryable():
		return warnTextStyle.Render(fmt.Sprintf("Engine unreachable (%v). ctrl+t to retry", ev.Err))
	case a.closed:
		return helpTextStyle.Render("Disconnected")
	}
	if a.statusMsg != "" {
		return detailTextStyle.Render(a.statusMsg)
	}
	return ""
}

func (a *App) helpText() string {
	return "ctrl+s save · ctrl+p protocol · ctrl+c quit"
}

func (a *App) working() bool {
	if a.closed {
		return false
	}
	if !a.hasEvent {
		return a.threadID != "" || a.start != nil
	}
	return a.lastEvent.Session.Status == session.StatusRunning && a.lastEvent.Err == nil
}
