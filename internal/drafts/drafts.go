// Package drafts stores the human-editable copy of a generated document and
// exports finished documents. The workflow core never talks to storage
// directly; the controller persists whatever the editor buffer holds.
package drafts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDraftNotFound is returned when no draft exists for an id.
var ErrDraftNotFound = errors.New("drafts: draft not found")

// ErrInvalidID is returned for ids that cannot name a draft.
var ErrInvalidID = errors.New("drafts: invalid draft id")

// Draft is one persisted editor buffer.
type Draft struct {
	ID        string    `json:"id" firestore:"id"`
	ThreadID  string    `json:"threadId" firestore:"threadId"`
	CaseID    string    `json:"caseId,omitempty" firestore:"caseId,omitempty"`
	Content   string    `json:"content" firestore:"content"`
	UpdatedAt time.Time `json:"updatedAt" firestore:"updatedAt"`
}

// Store is plain draft CRUD.
type Store interface {
	Get(ctx context.Context, id string) (Draft, error)
	Save(ctx context.Context, d Draft) error
	Close() error
}

// Exporter uploads a finished document and returns where it went.
type Exporter interface {
	Export(ctx context.Context, name, content string) (string, error)
}

// IDFor derives the draft id used for a thread's document. It returns ""
// when nothing usable is left, which every store rejects with ErrInvalidID.
func IDFor(threadID string) string {
	id := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(threadID))
	return strings.Trim(id, ".")
}

func checkID(id string) error {
	switch {
	case strings.TrimSpace(id) == "", id == ".", id == "..", strings.ContainsAny(id, `/\`):
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
