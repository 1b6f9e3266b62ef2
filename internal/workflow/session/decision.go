package session

import (
	"errors"
	"fmt"
	"strings"
)

// Verdict is the human decision at a review gate.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
	VerdictRefine  Verdict = "refine"
)

// ParseVerdict converts user or wire input into a Verdict.
func ParseVerdict(raw string) (Verdict, error) {
	switch v := Verdict(strings.ToLower(strings.TrimSpace(raw))); v {
	case VerdictApprove, VerdictReject, VerdictRefine:
		return v, nil
	default:
		return "", fmt.Errorf("unknown verdict %q", raw)
	}
}

// RequiresFeedback reports whether the verdict must carry feedback text.
func (v Verdict) RequiresFeedback() bool {
	return v == VerdictReject || v == VerdictRefine
}

// ReviewDecision is a one-shot answer to a review gate.
type ReviewDecision struct {
	Verdict  Verdict
	Feedback string
}

// Validate enforces the feedback rule: reject and refine need non-blank
// feedback. Feedback on an approve is ignored, see Normalized.
func (d ReviewDecision) Validate() error {
	switch d.Verdict {
	case VerdictApprove:
		return nil
	case VerdictReject, VerdictRefine:
		if strings.TrimSpace(d.Feedback) == "" {
			return NewError(ErrValidation, "decide", "", fmt.Errorf("%s requires feedback", d.Verdict))
		}
		return nil
	default:
		return NewError(ErrValidation, "decide", "", fmt.Errorf("unknown verdict %q", d.Verdict))
	}
}

// Normalized returns the decision as it goes on the wire.
func (d ReviewDecision) Normalized() ReviewDecision {
	if d.Verdict == VerdictApprove {
		return ReviewDecision{Verdict: VerdictApprove}
	}
	return ReviewDecision{Verdict: d.Verdict, Feedback: strings.TrimSpace(d.Feedback)}
}

// StartParams are the caller-supplied job parameters for a new workflow.
type StartParams struct {
	CaseID      string
	JobType     string
	ClientID    string
	SeedContent string
}

// Validate reports missing required parameters.
func (p StartParams) Validate() error {
	var missing []string
	if strings.TrimSpace(p.CaseID) == "" {
		missing = append(missing, "case id")
	}
	if strings.TrimSpace(p.JobType) == "" {
		missing = append(missing, "job type")
	}
	if len(missing) > 0 {
		return NewError(ErrStart, "start", "", errors.New(strings.Join(missing, " and ")+" required"))
	}
	return nil
}
