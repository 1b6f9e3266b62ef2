package editor

import "testing"

func TestShouldOverwrite(t *testing.T) {
	cases := []struct {
		empty, force, want bool
	}{
		{true, false, true},
		{true, true, true},
		{false, true, true},
		{false, false, false},
	}
	for _, tc := range cases {
		if got := ShouldOverwrite(tc.empty, tc.force); got != tc.want {
			t.Fatalf("ShouldOverwrite(%v, %v) = %v, want %v", tc.empty, tc.force, got, tc.want)
		}
	}
}

func TestApplyFillsEmptyBuffer(t *testing.T) {
	buf := NewStringBuffer("")
	sync := NewSynchronizer(buf)
	if got := sync.Apply("## Intro\n\nHello\n"); got != Overwritten {
		t.Fatalf("expected overwrite on initial load, got %s", got)
	}
	if buf.Content() != "## Intro\n\nHello\n" {
		t.Fatalf("unexpected buffer %q", buf.Content())
	}
}

func TestApplyProtectsLocalEditsUntilForced(t *testing.T) {
	buf := NewStringBuffer("my manual edits")
	sync := NewSynchronizer(buf)

	if got := sync.Apply("remote v2"); got != Skipped {
		t.Fatalf("expected skip without force, got %s", got)
	}
	if buf.Content() != "my manual edits" {
		t.Fatalf("local buffer changed: %q", buf.Content())
	}

	sync.SetForceUpdate()
	if got := sync.Apply("remote v2"); got != Overwritten {
		t.Fatalf("expected forced overwrite, got %s", got)
	}
	if buf.Content() != "remote v2" {
		t.Fatalf("buffer not overwritten: %q", buf.Content())
	}
	if sync.ForcePending() {
		t.Fatalf("force flag must clear after overwrite")
	}

	buf.SetContent("edited after completion")
	if got := sync.Apply("remote v3"); got != Skipped {
		t.Fatalf("expected skip after force consumed, got %s", got)
	}
}

func TestApplySkipsWriteWhenContentEqual(t *testing.T) {
	buf := NewStringBuffer("same")
	sync := NewSynchronizer(buf)
	sync.SetForceUpdate()
	if got := sync.Apply("same"); got != Unchanged {
		t.Fatalf("expected unchanged, got %s", got)
	}
	if buf.Writes() != 0 {
		t.Fatalf("expected no writes, got %d", buf.Writes())
	}
	if sync.ForcePending() {
		t.Fatalf("force flag must clear once the authoritative content is in place")
	}
}

func TestStreamIgnoresForceFlag(t *testing.T) {
	buf := NewStringBuffer("## Intro\n\nHel")
	sync := NewSynchronizer(buf)
	if got := sync.Stream("## Intro\n\nHello\n"); got != Overwritten {
		t.Fatalf("expected streaming write, got %s", got)
	}
	if got := sync.Stream("## Intro\n\nHello\n"); got != Unchanged {
		t.Fatalf("expected unchanged on identical partial, got %s", got)
	}
	if buf.Writes() != 1 {
		t.Fatalf("expected one write, got %d", buf.Writes())
	}
	if sync.ForcePending() {
		t.Fatalf("streaming must not touch the force flag")
	}
}
