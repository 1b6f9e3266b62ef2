package sections

import (
	"fmt"

	"github.com/chambersiq/draftflow/internal/workflow/session"
)

// Progress summarizes how far a run has come. When Determinate is false only
// Node should be shown.
type Progress struct {
	Node        string
	Completed   int
	Total       int
	Fraction    float64
	Determinate bool
}

// ComputeProgress derives progress from the plan and the completed ids. A
// completed run counts as fully done regardless of the ids reported.
func ComputeProgress(s session.Session) Progress {
	p := Progress{Node: s.CurrentNode}
	total := s.Plan.Total()
	if total <= 0 {
		return p
	}
	completed := len(s.CompletedSectionIDs)
	if s.Status == session.StatusCompleted {
		completed = total
	}
	p.Completed = completed
	p.Total = total
	p.Determinate = true
	p.Fraction = float64(completed) / float64(total)
	if p.Fraction > 1 {
		p.Fraction = 1
	}
	return p
}

// Label renders progress as a short status line.
func (p Progress) Label() string {
	if !p.Determinate {
		if p.Node == "" {
			return "working"
		}
		return p.Node
	}
	if p.Node == "" {
		return fmt.Sprintf("%d/%d sections", p.Completed, p.Total)
	}
	return fmt.Sprintf("%s · %d/%d sections", p.Node, p.Completed, p.Total)
}
