package session

import (
	"fmt"
	"strings"
)

// Status is the closed set of states a remote drafting workflow can report.
type Status string

const (
	StatusRunning     Status = "running"
	StatusInterrupted Status = "interrupted_for_human"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

var knownStatuses = map[Status]bool{
	StatusRunning:     true,
	StatusInterrupted: true,
	StatusCompleted:   true,
	StatusFailed:      true,
}

var terminalStatuses = map[Status]bool{
	StatusCompleted: true,
	StatusFailed:    true,
}

// running and interrupted alternate any number of times; either may end the run.
// Self transitions are repeated polls of the same state.
var validTransitions = map[Status]map[Status]bool{
	StatusRunning: {
		StatusRunning:     true,
		StatusInterrupted: true,
		StatusCompleted:   true,
		StatusFailed:      true,
	},
	StatusInterrupted: {
		StatusInterrupted: true,
		StatusRunning:     true,
		StatusCompleted:   true,
		StatusFailed:      true,
	},
}

// ParseStatus converts a wire value into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.TrimSpace(raw))
	if !knownStatuses[s] {
		return "", fmt.Errorf("unknown workflow status %q", raw)
	}
	return s, nil
}

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	return knownStatuses[s]
}

// IsTerminal reports whether the workflow has ended.
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

// NeedsHuman reports whether the remote run is paused for a review decision.
func (s Status) NeedsHuman() bool {
	return s == StatusInterrupted
}

// ValidateTransition checks a status change reported by the server against the
// workflow state machine. The empty status stands for a session that has not
// been observed yet.
func ValidateTransition(from, to Status) error {
	if !to.Valid() {
		return fmt.Errorf("unknown workflow status %q", to)
	}
	if from == "" {
		return nil
	}
	if from.IsTerminal() {
		if from == to {
			return nil
		}
		return fmt.Errorf("cannot transition from terminal status %q to %q", from, to)
	}
	allowed, ok := validTransitions[from]
	if !ok {
		return fmt.Errorf("unknown workflow status %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid workflow transition: %q → %q", from, to)
	}
	return nil
}
