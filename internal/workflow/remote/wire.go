package remote

import (
	"fmt"

	"github.com/chambersiq/draftflow/internal/workflow/session"
)

// StartRequest is the body of POST /start.
type StartRequest struct {
	CaseID      string `json:"caseId"`
	JobType     string `json:"jobType"`
	ClientID    string `json:"clientId"`
	SeedContent string `json:"seedContent,omitempty"`
}

// ResumeRequest is the body of POST /resume/{threadId}.
type ResumeRequest struct {
	Verdict  string `json:"verdict"`
	Feedback string `json:"feedback,omitempty"`
}

// StatusResponse is what every engine endpoint returns. ThreadID is only
// guaranteed on /start.
type StatusResponse struct {
	ThreadID     string `json:"threadId,omitempty"`
	Status       string `json:"status"`
	CurrentNode  string `json:"currentNode,omitempty"`
	CurrentState *State `json:"currentState,omitempty"`
}

// State is the engine's accumulated run state.
type State struct {
	Plan                  *Plan      `json:"plan,omitempty"`
	SectionMemory         []Section  `json:"sectionMemory,omitempty"`
	CompletedSectionIDs   []string   `json:"completedSectionIds,omitempty"`
	HumanReadableFeedback string     `json:"humanReadableFeedback,omitempty"`
	DraftPreview          string     `json:"draftPreview,omitempty"`
	WorkflowLogs          []LogEntry `json:"workflowLogs,omitempty"`
}

type Plan struct {
	Sections               []PlannedSection `json:"sections"`
	TotalEstimatedSections int              `json:"totalEstimatedSections"`
}

type PlannedSection struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	EstimatedIndex int    `json:"estimatedIndex"`
}

type Section struct {
	SectionID string `json:"sectionId"`
	Title     string `json:"title,omitempty"`
	Content   string `json:"content"`
}

type LogEntry struct {
	Agent   string `json:"agent"`
	Message string `json:"message"`
}

// ErrorBody is the JSON shape the engine uses for non-2xx replies.
type ErrorBody struct {
	Error string `json:"error"`
}

// Session converts a response into a snapshot for threadID. An unknown
// status or a reply about a different thread is rejected.
func (r StatusResponse) Session(threadID string) (session.Session, error) {
	status, err := session.ParseStatus(r.Status)
	if err != nil {
		return session.Session{}, err
	}
	id := r.ThreadID
	switch {
	case id == "":
		id = threadID
	case threadID != "" && id != threadID:
		return session.Session{}, fmt.Errorf("response for thread %q, expected %q", id, threadID)
	}
	s := session.Session{
		ThreadID:    id,
		Status:      status,
		CurrentNode: r.CurrentNode,
	}
	if st := r.CurrentState; st != nil {
		if st.Plan != nil {
			p := &session.Plan{TotalEstimatedSections: st.Plan.TotalEstimatedSections}
			for _, ps := range st.Plan.Sections {
				p.Sections = append(p.Sections, session.PlannedSection{ID: ps.ID, Title: ps.Title, EstimatedIndex: ps.EstimatedIndex})
			}
			s.Plan = p
		}
		for _, sec := range st.SectionMemory {
			s.SectionMemory = append(s.SectionMemory, session.Section{SectionID: sec.SectionID, Title: sec.Title, Content: sec.Content})
		}
		s.CompletedSectionIDs = append([]string(nil), st.CompletedSectionIDs...)
		s.HumanReadableFeedback = st.HumanReadableFeedback
		s.DraftPreview = st.DraftPreview
		for _, l := range st.WorkflowLogs {
			s.WorkflowLogs = append(s.WorkflowLogs, session.LogEntry{Agent: l.Agent, Message: l.Message})
		}
	}
	return s, nil
}

// ResponseFromSession renders a snapshot in wire form.
func ResponseFromSession(s session.Session) StatusResponse {
	st := &State{
		CompletedSectionIDs:   append([]string(nil), s.CompletedSectionIDs...),
		HumanReadableFeedback: s.HumanReadableFeedback,
		DraftPreview:          s.DraftPreview,
	}
	if s.Plan != nil {
		st.Plan = &Plan{TotalEstimatedSections: s.Plan.TotalEstimatedSections, Sections: []PlannedSection{}}
		for _, ps := range s.Plan.Sections {
			st.Plan.Sections = append(st.Plan.Sections, PlannedSection{ID: ps.ID, Title: ps.Title, EstimatedIndex: ps.EstimatedIndex})
		}
	}
	for _, sec := range s.SectionMemory {
		st.SectionMemory = append(st.SectionMemory, Section{SectionID: sec.SectionID, Title: sec.Title, Content: sec.Content})
	}
	for _, l := range s.WorkflowLogs {
		st.WorkflowLogs = append(st.WorkflowLogs, LogEntry{Agent: l.Agent, Message: l.Message})
	}
	return StatusResponse{
		ThreadID:     s.ThreadID,
		Status:       string(s.Status),
		CurrentNode:  s.CurrentNode,
		CurrentState: st,
	}
}
