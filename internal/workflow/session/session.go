// Package session models one remote drafting workflow run as the client sees
// it: identity, status, plan, generated sections, and review prompts. The
// server is authoritative; the types here only hold and merge what it reports.
package session

import (
	"fmt"
	"time"
)

// PlannedSection is one unit of work announced by the remote plan.
type PlannedSection struct {
	ID             string
	Title          string
	EstimatedIndex int
}

// Plan lists the sections the remote engine intends to produce.
type Plan struct {
	Sections               []PlannedSection
	TotalEstimatedSections int
}

// Title returns the planned title for a section id.
func (p *Plan) Title(sectionID string) (string, bool) {
	if p == nil {
		return "", false
	}
	for _, s := range p.Sections {
		if s.ID == sectionID && s.Title != "" {
			return s.Title, true
		}
	}
	return "", false
}

// Total returns the estimated number of sections, falling back to the number
// of planned entries when the estimate is missing.
func (p *Plan) Total() int {
	if p == nil {
		return 0
	}
	if p.TotalEstimatedSections > 0 {
		return p.TotalEstimatedSections
	}
	return len(p.Sections)
}

// Clone deep-copies the plan.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	out := &Plan{TotalEstimatedSections: p.TotalEstimatedSections}
	if len(p.Sections) > 0 {
		out.Sections = append([]PlannedSection(nil), p.Sections...)
	}
	return out
}

// Section is one completed unit of generated content.
type Section struct {
	SectionID string
	Title     string
	Content   string
}

// LogEntry is one observability line emitted by a remote agent.
type LogEntry struct {
	Agent   string
	Message string
}

// Session is the client view of one workflow thread.
type Session struct {
	ThreadID            string
	Status              Status
	CurrentNode         string
	Plan                *Plan
	SectionMemory       []Section
	CompletedSectionIDs []string
	// HumanReadableFeedback and DraftPreview are only set while interrupted.
	HumanReadableFeedback string
	DraftPreview          string
	WorkflowLogs          []LogEntry
	// Err is the last error observed for this thread, if any.
	Err       error
	UpdatedAt time.Time
}

// Started reports whether the remote engine has assigned a thread id.
func (s Session) Started() bool {
	return s.ThreadID != ""
}

// AwaitingHuman reports whether a review decision is expected.
func (s Session) AwaitingHuman() bool {
	return s.Status.NeedsHuman()
}

// Clone deep-copies the session so snapshots can be handed to other goroutines.
func (s Session) Clone() Session {
	out := s
	out.Plan = s.Plan.Clone()
	if s.SectionMemory != nil {
		out.SectionMemory = append([]Section(nil), s.SectionMemory...)
	}
	if s.CompletedSectionIDs != nil {
		out.CompletedSectionIDs = append([]string(nil), s.CompletedSectionIDs...)
	}
	if s.WorkflowLogs != nil {
		out.WorkflowLogs = append([]LogEntry(nil), s.WorkflowLogs...)
	}
	return out
}

// Failed returns a terminal copy of s carrying err.
func (s Session) Failed(err error) Session {
	out := s.Clone()
	out.Status = StatusFailed
	out.CurrentNode = ""
	out.HumanReadableFeedback = ""
	out.DraftPreview = ""
	out.Err = err
	return out
}

// Merge applies a snapshot reported by the server on top of the previous one.
// The result follows the server's status while keeping the client-side
// invariants: the thread id never changes, the plan is set once, and section
// memory and logs only grow.
func Merge(prev, next Session) (Session, error) {
	id := prev.ThreadID
	if id == "" {
		id = next.ThreadID
	}
	if prev.ThreadID != "" && next.ThreadID != "" && prev.ThreadID != next.ThreadID {
		return prev, NewError(ErrInvalidState, "merge", id,
			fmt.Errorf("thread id changed from %q to %q", prev.ThreadID, next.ThreadID))
	}
	if err := ValidateTransition(prev.Status, next.Status); err != nil {
		return prev, NewError(ErrInvalidState, "merge", id, err)
	}

	merged := next.Clone()
	merged.ThreadID = id
	merged.Err = nil
	if prev.Plan != nil {
		merged.Plan = prev.Plan.Clone()
	}

	switch {
	case len(next.SectionMemory) >= len(prev.SectionMemory):
		if err := CheckMonotonic(prev.SectionMemory, next.SectionMemory); err != nil {
			return prev, NewError(ErrInvalidState, "merge", id, err)
		}
	default:
		// A shorter memory must still be a prefix of what we hold.
		if err := CheckMonotonic(next.SectionMemory, prev.SectionMemory); err != nil {
			return prev, NewError(ErrInvalidState, "merge", id, err)
		}
		merged.SectionMemory = append([]Section(nil), prev.SectionMemory...)
	}

	if len(next.WorkflowLogs) < len(prev.WorkflowLogs) {
		merged.WorkflowLogs = append([]LogEntry(nil), prev.WorkflowLogs...)
	}
	merged.CompletedSectionIDs = unionIDs(prev.CompletedSectionIDs, next.CompletedSectionIDs)

	if merged.Status != StatusInterrupted {
		merged.HumanReadableFeedback = ""
		merged.DraftPreview = ""
	}
	if merged.Status == StatusCompleted {
		merged.CurrentNode = ""
	}
	return merged, nil
}

// CheckMonotonic verifies that later is an append-only extension of earlier:
// every section of earlier appears at the same position in later, and later
// holds no duplicate ids.
func CheckMonotonic(earlier, later []Section) error {
	if len(later) < len(earlier) {
		return fmt.Errorf("section memory shrank from %d to %d entries", len(earlier), len(later))
	}
	for i, s := range earlier {
		if later[i].SectionID != s.SectionID {
			return fmt.Errorf("section %q moved: position %d now holds %q", s.SectionID, i, later[i].SectionID)
		}
	}
	seen := make(map[string]struct{}, len(later))
	for _, s := range later {
		if _, dup := seen[s.SectionID]; dup {
			return fmt.Errorf("section %q appears twice", s.SectionID)
		}
		seen[s.SectionID] = struct{}{}
	}
	return nil
}

func unionIDs(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
