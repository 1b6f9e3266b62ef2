// Package review implements the human review gate: when a decision is
// required, which verdicts are legal, and how a decision is submitted once.
package review

import (
	"fmt"
	"strings"

	"github.com/chambersiq/draftflow/internal/workflow/session"
)

// Protocol is the set of verdicts legal in a review context. The feedback
// rule itself lives on session.ReviewDecision so every protocol enforces it
// the same way.
type Protocol struct {
	name     string
	verdicts []session.Verdict
}

var (
	// Binary is template review: approve, or reject with feedback.
	Binary = Protocol{
		name:     "binary",
		verdicts: []session.Verdict{session.VerdictApprove, session.VerdictReject},
	}
	// Ternary is section review: approve (force continue), refine the same
	// section with guidance, or reject and rewrite it.
	Ternary = Protocol{
		name:     "ternary",
		verdicts: []session.Verdict{session.VerdictApprove, session.VerdictRefine, session.VerdictReject},
	}
)

// ProtocolByName resolves a configured protocol name.
func ProtocolByName(name string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "binary":
		return Binary, nil
	case "ternary", "":
		return Ternary, nil
	default:
		return Protocol{}, fmt.Errorf("review: unknown protocol %q", name)
	}
}

// Name returns the configuration name of the protocol.
func (p Protocol) Name() string {
	return p.name
}

// Verdicts lists the legal verdicts in display order.
func (p Protocol) Verdicts() []session.Verdict {
	return append([]session.Verdict(nil), p.verdicts...)
}

// Allows reports whether v is legal under p.
func (p Protocol) Allows(v session.Verdict) bool {
	for _, allowed := range p.verdicts {
		if allowed == v {
			return true
		}
	}
	return false
}

// Validate rejects verdicts outside the protocol and decisions that break the
// feedback rule.
func (p Protocol) Validate(d session.ReviewDecision) error {
	if !p.Allows(d.Verdict) {
		return session.NewError(session.ErrValidation, "decide", "",
			fmt.Errorf("%s review does not accept %q", p.name, d.Verdict))
	}
	return d.Validate()
}
