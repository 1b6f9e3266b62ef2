package logbook

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/chambersiq/draftflow/internal/workflow/session"
)

func TestTailReturnsRecentLinesAndTotal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "th-1.log")
	book, err := New(path)
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	for i := 0; i < 5; i++ {
		book.Info("entry-%d", i)
	}
	lines, total := book.Tail(3)
	if total != 5 {
		t.Fatalf("total lines = %d, want 5", total)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for idx, want := range []string{"entry-2", "entry-3", "entry-4"} {
		if !strings.Contains(lines[idx], want) {
			t.Fatalf("line %d = %q, missing %s", idx, lines[idx], want)
		}
	}
}

func TestRecordTagsAgentsAndFlattensMessages(t *testing.T) {
	book, err := New(filepath.Join(t.TempDir(), "logs", "th-2.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	book.Record([]session.LogEntry{
		{Agent: "planner", Message: "planned 3 sections"},
		{Message: "drafting\nsection a"},
	})
	lines, total := book.Tail(10)
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
	if !strings.Contains(lines[0], "AGENT [planner] planned 3 sections") {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if !strings.Contains(lines[1], "[engine] drafting section a") {
		t.Fatalf("unexpected second line %q", lines[1])
	}
}

func TestTailOnMissingFile(t *testing.T) {
	book, err := New(filepath.Join(t.TempDir(), "none.log"))
	if err != nil {
		t.Fatal(err)
	}
	lines, total := book.Tail(5)
	if lines != nil || total != 0 {
		t.Fatalf("expected empty tail, got %v %d", lines, total)
	}
	var nilBook *Logbook
	nilBook.Info("ignored")
	if l, n := nilBook.Tail(1); l != nil || n != 0 {
		t.Fatalf("nil logbook must be inert")
	}
}

func TestRecordedCountsOnlyEngineEntries(t *testing.T) {
	book, err := New(filepath.Join(t.TempDir(), "th-2.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	book.Info("started")
	book.Record([]session.LogEntry{{Agent: "planner", Message: "a"}, {Message: "b"}})
	book.Warn("slow")
	if got := book.Recorded(); got != 2 {
		t.Fatalf("recorded = %d, want 2", got)
	}
	var missing *Logbook
	if missing.Recorded() != 0 {
		t.Fatalf("nil logbook should report zero")
	}
}
