package session

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidateTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{"", StatusRunning, true},
		{"", StatusCompleted, true},
		{StatusRunning, StatusRunning, true},
		{StatusRunning, StatusInterrupted, true},
		{StatusInterrupted, StatusRunning, true},
		{StatusInterrupted, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusCompleted, StatusCompleted, true},
		{StatusCompleted, StatusRunning, false},
		{StatusFailed, StatusInterrupted, false},
		{StatusRunning, Status("paused"), false},
	}
	for _, tc := range cases {
		err := ValidateTransition(tc.from, tc.to)
		if tc.ok && err != nil {
			t.Fatalf("%q → %q: unexpected error %v", tc.from, tc.to, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%q → %q: expected error", tc.from, tc.to)
		}
	}
}

func TestParseStatus(t *testing.T) {
	got, err := ParseStatus(" interrupted_for_human ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != StatusInterrupted {
		t.Fatalf("got %q", got)
	}
	if _, err := ParseStatus("waiting"); err == nil {
		t.Fatalf("expected unknown status error")
	}
}

func TestStatusPredicates(t *testing.T) {
	if StatusRunning.IsTerminal() || StatusInterrupted.IsTerminal() {
		t.Fatalf("running/interrupted must not be terminal")
	}
	if !StatusCompleted.IsTerminal() || !StatusFailed.IsTerminal() {
		t.Fatalf("completed/failed must be terminal")
	}
	if !StatusInterrupted.NeedsHuman() || StatusRunning.NeedsHuman() {
		t.Fatalf("only interrupted needs a human")
	}
}

func TestErrorKinds(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := fmt.Errorf("poll: %w", NewError(ErrTransport, "status", "th-1", cause))
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport kind")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to unwrap")
	}
	if KindOf(err) != ErrTransport {
		t.Fatalf("KindOf = %v", KindOf(err))
	}
	if IsTerminalError(err) {
		t.Fatalf("transport errors are not terminal")
	}
	if !IsRetryable(err) {
		t.Fatalf("transport errors may be retried by hand")
	}
	nf := NewError(ErrNotFound, "status", "th-1", nil)
	if !IsTerminalError(nf) || IsRetryable(nf) {
		t.Fatalf("not found must be terminal and not retryable")
	}
	if got := nf.Error(); got != "workflow status [th-1]: workflow thread not found" {
		t.Fatalf("unexpected message %q", got)
	}
	if KindOf(errors.New("other")) != nil {
		t.Fatalf("plain errors have no kind")
	}
}
