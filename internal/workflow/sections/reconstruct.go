// Package sections turns the append-only section memory of a workflow run into
// a single ordered document, and derives progress figures for display.
// Everything here is a pure function of its inputs so it can run on every
// poll tick.
package sections

import (
	"strings"

	"github.com/chambersiq/draftflow/internal/workflow/session"
)

// PlaceholderTitle is used when neither the section nor the plan names it.
const PlaceholderTitle = "Section"

// RenderedSection is one titled block of the reconstructed document.
type RenderedSection struct {
	ID      string
	Title   string
	Content string
}

// Document is the render-ready form of a section memory snapshot.
type Document struct {
	Sections []RenderedSection
	Body     string
}

// Empty reports whether no section has been produced yet.
func (d Document) Empty() bool {
	return len(d.Sections) == 0
}

// ResolveTitle picks the section's own title, then the plan's, then the
// placeholder.
func ResolveTitle(plan *session.Plan, s session.Section) string {
	if t := strings.TrimSpace(s.Title); t != "" {
		return t
	}
	if t, ok := plan.Title(s.SectionID); ok {
		return strings.TrimSpace(t)
	}
	return PlaceholderTitle
}

// Reconstruct renders memory in stored order. Memory order is authoritative
// over the plan's estimated order.
func Reconstruct(plan *session.Plan, memory []session.Section) Document {
	if len(memory) == 0 {
		return Document{}
	}
	doc := Document{Sections: make([]RenderedSection, 0, len(memory))}
	var b strings.Builder
	for i, s := range memory {
		rs := RenderedSection{
			ID:      s.SectionID,
			Title:   ResolveTitle(plan, s),
			Content: strings.TrimRight(s.Content, "\n"),
		}
		doc.Sections = append(doc.Sections, rs)
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("## ")
		b.WriteString(rs.Title)
		b.WriteString("\n\n")
		if rs.Content != "" {
			b.WriteString(rs.Content)
			b.WriteString("\n")
		}
	}
	doc.Body = b.String()
	return doc
}

// FromSession reconstructs the document held by a session snapshot.
func FromSession(s session.Session) Document {
	return Reconstruct(s.Plan, s.SectionMemory)
}

// Preview returns the text a reviewer should look at. While interrupted with
// no sections yet, the server's draft preview stands in for the document.
func Preview(s session.Session) string {
	doc := FromSession(s)
	if doc.Empty() && s.Status == session.StatusInterrupted {
		return s.DraftPreview
	}
	return doc.Body
}
