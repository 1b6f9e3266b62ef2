package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Logger records store activity. It matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// FileStore keeps one JSON file per draft under a directory.
type FileStore struct {
	dir    string
	logger Logger

	mu    sync.Mutex
	saved map[string]string
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string, logger Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("drafts: ensure dir: %w", err)
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &FileStore{dir: dir, logger: logger, saved: make(map[string]string)}, nil
}

// Dir returns the directory backing the store.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Get reads a draft.
func (s *FileStore) Get(ctx context.Context, id string) (Draft, error) {
	if err := checkID(id); err != nil {
		return Draft{}, err
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Draft{}, ErrDraftNotFound
		}
		return Draft{}, fmt.Errorf("drafts: read %s: %w", id, err)
	}
	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return Draft{}, fmt.Errorf("drafts: decode %s: %w", id, err)
	}
	return d, nil
}

// Save writes a draft through a temp file and rename so readers never see
// a partial document.
func (s *FileStore) Save(ctx context.Context, d Draft) error {
	if err := checkID(d.ID); err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("drafts: encode %s: %w", d.ID, err)
	}
	tmp, err := os.CreateTemp(s.dir, "."+d.ID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("drafts: temp file: %w", err)
	}
	if _, err := tmp.Write(append(encoded, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("drafts: write %s: %w", d.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("drafts: close %s: %w", d.ID, err)
	}
	s.mu.Lock()
	s.saved[d.ID] = d.Content
	s.mu.Unlock()
	if err := os.Rename(tmp.Name(), s.path(d.ID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("drafts: replace %s: %w", d.ID, err)
	}
	return nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error { return nil }

// Watch reports edits made to a draft file by something other than this
// store, such as the user opening it in another editor. The channel closes
// when ctx ends.
func (s *FileStore) Watch(ctx context.Context, id string) (<-chan Draft, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("drafts: create watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("drafts: watch %s: %w", s.dir, err)
	}
	target := filepath.Base(s.path(id))
	out := make(chan Draft, 1)
	go func() {
		defer close(out)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				d, err := s.Get(ctx, id)
				if err != nil {
					s.logger.Printf("drafts: reload %s after %s: %v", id, event.Op, err)
					continue
				}
				if s.isOwnWrite(d) {
					continue
				}
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Printf("drafts: watch error: %v", err)
			}
		}
	}()
	return out, nil
}

func (s *FileStore) isOwnWrite(d Draft) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.saved[d.ID]
	return ok && content == d.Content
}
