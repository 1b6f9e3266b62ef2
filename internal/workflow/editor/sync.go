// Package editor decides when remote document content may replace the
// locally edited buffer.
package editor

import "sync"

// Buffer is the locally editable document.
type Buffer interface {
	Content() string
	SetContent(string)
}

// StringBuffer is an in-memory Buffer.
type StringBuffer struct {
	mu      sync.Mutex
	content string
	writes  int
}

// NewStringBuffer returns a buffer holding initial.
func NewStringBuffer(initial string) *StringBuffer {
	return &StringBuffer{content: initial}
}

func (b *StringBuffer) Content() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.content
}

func (b *StringBuffer) SetContent(content string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.content = content
	b.writes++
}

// Writes counts SetContent calls.
func (b *StringBuffer) Writes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes
}

// ShouldOverwrite is the whole overwrite policy: an empty buffer is always
// filled, anything else only when the caller forced it.
func ShouldOverwrite(bufferEmpty, force bool) bool {
	return bufferEmpty || force
}

// Outcome reports what a synchronization attempt did to the buffer.
type Outcome int

const (
	// Skipped means local content was protected from the remote document.
	Skipped Outcome = iota
	// Unchanged means the buffer already held the remote content.
	Unchanged
	// Overwritten means the buffer now holds the remote content.
	Overwritten
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Unchanged:
		return "unchanged"
	case Overwritten:
		return "overwritten"
	default:
		return "unknown"
	}
}

// Synchronizer pushes reconstructed documents into a Buffer.
type Synchronizer struct {
	mu     sync.Mutex
	buffer Buffer
	force  bool
}

// NewSynchronizer wraps buffer.
func NewSynchronizer(buffer Buffer) *Synchronizer {
	return &Synchronizer{buffer: buffer}
}

// Buffer returns the wrapped buffer.
func (s *Synchronizer) Buffer() Buffer {
	return s.buffer
}

// SetForceUpdate authorizes the next Apply to discard local edits.
func (s *Synchronizer) SetForceUpdate() {
	s.mu.Lock()
	s.force = true
	s.mu.Unlock()
}

// ForcePending reports whether a forced overwrite is still outstanding.
func (s *Synchronizer) ForcePending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.force
}

// Apply is the authoritative channel. It writes remote only when
// ShouldOverwrite allows it and the content differs. The force flag is
// consumed once an authorized apply has settled.
func (s *Synchronizer) Apply(remote string) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.buffer.Content()
	if !ShouldOverwrite(current == "", s.force) {
		return Skipped
	}
	s.force = false
	if current == remote {
		return Unchanged
	}
	s.buffer.SetContent(remote)
	return Overwritten
}

// Stream is the live-progress channel used while the run is generating. It
// writes partial content whenever it differs and ignores the force flag;
// callers must not use it once the run has stopped running.
func (s *Synchronizer) Stream(partial string) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buffer.Content() == partial {
		return Unchanged
	}
	s.buffer.SetContent(partial)
	return Overwritten
}
