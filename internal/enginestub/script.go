package enginestub

import (
	"fmt"

	"github.com/chambersiq/draftflow/internal/workflow/remote"
	"github.com/chambersiq/draftflow/internal/workflow/session"
)

// StepKind names what a script step does to a run.
type StepKind string

const (
	StepPlan      StepKind = "plan"
	StepSection   StepKind = "section"
	StepLog       StepKind = "log"
	StepInterrupt StepKind = "interrupt"
	StepComplete  StepKind = "complete"
	StepFail      StepKind = "fail"
)

// Step is one unit of scripted engine progress. Each status poll of a
// running thread applies exactly one step.
type Step struct {
	Kind     StepKind
	Plan     *session.Plan
	Section  session.Section
	Agent    string
	Message  string
	Feedback string
	Preview  string
}

// Script is the full sequence of steps for one run.
type Script []Step

// ScriptFunc builds the script for a newly started run.
type ScriptFunc func(req remote.StartRequest) Script

func PlanStep(sections ...session.PlannedSection) Step {
	for i := range sections {
		sections[i].EstimatedIndex = i
	}
	return Step{Kind: StepPlan, Plan: &session.Plan{Sections: sections, TotalEstimatedSections: len(sections)}}
}

func SectionStep(id, title, content string) Step {
	return Step{Kind: StepSection, Section: session.Section{SectionID: id, Title: title, Content: content}}
}

func LogStep(agent, message string) Step {
	return Step{Kind: StepLog, Agent: agent, Message: message}
}

func InterruptStep(feedback, preview string) Step {
	return Step{Kind: StepInterrupt, Feedback: feedback, Preview: preview}
}

func CompleteStep() Step {
	return Step{Kind: StepComplete}
}

func FailStep(message string) Step {
	return Step{Kind: StepFail, Message: message}
}

// DefaultScript drafts a three-section agreement with one review pause.
func DefaultScript(req remote.StartRequest) Script {
	parties := fmt.Sprintf("This agreement is made for case %s between the parties named in the matter file.", req.CaseID)
	if req.SeedContent != "" {
		parties = req.SeedContent
	}
	return Script{
		PlanStep(
			session.PlannedSection{ID: "parties", Title: "Parties"},
			session.PlannedSection{ID: "terms", Title: "Terms"},
			session.PlannedSection{ID: "governing-law", Title: "Governing Law"},
		),
		SectionStep("parties", "", parties),
		SectionStep("terms", "", fmt.Sprintf("The %s covers the obligations agreed between the parties.", req.JobType)),
		InterruptStep("Terms section cites no controlling clause. Approve, refine or reject.", "## Parties\n\n"+parties+"\n"),
		SectionStep("governing-law", "", "This agreement is governed by the laws of the agreed jurisdiction."),
		CompleteStep(),
	}
}

// apply advances s by one step.
func (st Step) apply(s *session.Session) {
	switch st.Kind {
	case StepPlan:
		if s.Plan == nil {
			s.Plan = st.Plan.Clone()
		}
		s.CurrentNode = "planner"
		s.WorkflowLogs = append(s.WorkflowLogs, session.LogEntry{Agent: "planner", Message: fmt.Sprintf("planned %d sections", st.Plan.Total())})
	case StepSection:
		s.CurrentNode = "drafting"
		s.SectionMemory = append(s.SectionMemory, st.Section)
		s.CompletedSectionIDs = append(s.CompletedSectionIDs, st.Section.SectionID)
		s.WorkflowLogs = append(s.WorkflowLogs, session.LogEntry{Agent: "drafter", Message: "drafted " + st.Section.SectionID})
	case StepLog:
		s.WorkflowLogs = append(s.WorkflowLogs, session.LogEntry{Agent: st.Agent, Message: st.Message})
	case StepInterrupt:
		s.Status = session.StatusInterrupted
		s.CurrentNode = "human_review"
		s.HumanReadableFeedback = st.Feedback
		s.DraftPreview = st.Preview
		s.WorkflowLogs = append(s.WorkflowLogs, session.LogEntry{Agent: "critic", Message: "waiting for human review"})
	case StepComplete:
		s.Status = session.StatusCompleted
		s.CurrentNode = ""
		s.WorkflowLogs = append(s.WorkflowLogs, session.LogEntry{Agent: "finalizer", Message: "document complete"})
	case StepFail:
		s.Status = session.StatusFailed
		s.CurrentNode = ""
		s.WorkflowLogs = append(s.WorkflowLogs, session.LogEntry{Agent: "engine", Message: st.Message})
	}
}
