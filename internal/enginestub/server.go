// Package enginestub is an in-memory workflow engine speaking the same HTTP
// contract as the real one. It backs the package tests and the
// `draftflow stub-engine` command for local development.
package enginestub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chambersiq/draftflow/internal/workflow/remote"
	"github.com/chambersiq/draftflow/internal/workflow/session"
)

// Logger records stub activity. It matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

type thread struct {
	state     session.Session
	script    Script
	cursor    int
	decisions []session.ReviewDecision
}

// Server is the stub engine.
type Server struct {
	settings Settings
	scripts  ScriptFunc
	logger   Logger
	clock    func() time.Time
	newID    func() string

	mu       sync.Mutex
	threads  map[string]*thread
	down     bool
	requests int

	lifecycle sync.Mutex
	server    *http.Server
	listener  net.Listener
	startTime time.Time
}

// Option customizes server construction.
type Option func(*Server)

// WithScripts overrides DefaultScript.
func WithScripts(f ScriptFunc) Option {
	return func(s *Server) {
		if f != nil {
			s.scripts = f
		}
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithThreadIDs overrides thread id generation.
func WithThreadIDs(gen func() string) Option {
	return func(s *Server) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewServer prepares a stub engine.
func NewServer(settings Settings, opts ...Option) *Server {
	settings.normalize()
	s := &Server{
		settings: settings,
		scripts:  DefaultScript,
		logger:   nopLogger{},
		clock:    func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.NewString() },
		threads:  make(map[string]*thread),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler returns the HTTP routes, for use with httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /start", s.handleStart)
	mux.HandleFunc("GET /status/{id}", s.handleStatus)
	mux.HandleFunc("POST /resume/{id}", s.handleResume)
	return s.withMiddleware(mux)
}

// Start binds the TCP listener and begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.listener != nil {
		return fmt.Errorf("enginestub: server already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("enginestub: listen %s: %w", addr, err)
	}
	server := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.listener = listener
	s.server = server
	s.startTime = s.clock()
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("enginestub: serve error: %v", err)
		}
	}()
	s.logger.Printf("enginestub: listening on %s", listener.Addr().String())
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight requests to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	s.listener = nil
	s.server = nil
	return nil
}

// BaseURL returns the HTTP base URL of the running server.
func (s *Server) BaseURL() string {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.listener == nil {
		return "http://" + s.settings.Address()
	}
	return "http://" + s.listener.Addr().String()
}

// SetDown makes every endpoint but /health answer 503.
func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	s.down = down
	s.mu.Unlock()
}

// Forget drops a thread so later calls for it answer 404.
func (s *Server) Forget(threadID string) {
	s.mu.Lock()
	delete(s.threads, threadID)
	s.mu.Unlock()
}

// Thread returns the engine-side state and decisions received for a thread.
func (s *Server) Thread(threadID string) (session.Session, []session.ReviewDecision, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[threadID]
	if !ok {
		return session.Session{}, nil, false
	}
	return t.state.Clone(), append([]session.ReviewDecision(nil), t.decisions...), true
}

// Requests reports how many engine calls were served, /health excluded.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		s.mu.Lock()
		s.requests++
		down := s.down
		s.mu.Unlock()
		if down {
			writeError(w, http.StatusServiceUnavailable, "engine unavailable")
			return
		}
		if s.settings.AuthToken != "" && r.Header.Get("Authorization") != "Bearer "+s.settings.AuthToken {
			writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		if id := r.Header.Get(remote.RequestIDHeader); id != "" {
			s.logger.Printf("enginestub: %s %s [%s]", r.Method, r.URL.Path, id)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	threads := len(s.threads)
	s.mu.Unlock()
	var uptime int64
	s.lifecycle.Lock()
	if !s.startTime.IsZero() {
		uptime = int64(s.clock().Sub(s.startTime).Seconds())
	}
	s.lifecycle.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "threads": threads, "uptimeSeconds": uptime})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req remote.StartRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.CaseID) == "" || strings.TrimSpace(req.JobType) == "" {
		writeError(w, http.StatusBadRequest, "caseId and jobType are required")
		return
	}
	id := s.newID()
	t := &thread{
		state: session.Session{
			ThreadID:    id,
			Status:      session.StatusRunning,
			CurrentNode: "start",
			UpdatedAt:   s.clock(),
		},
		script: s.scripts(req),
	}
	s.mu.Lock()
	s.threads[id] = t
	resp := remote.ResponseFromSession(t.state)
	s.mu.Unlock()
	s.logger.Printf("enginestub: started %s for case %s", id, req.CaseID)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	t, ok := s.threads[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "unknown thread "+id)
		return
	}
	if t.state.Status == session.StatusRunning {
		if t.cursor < len(t.script) {
			t.script[t.cursor].apply(&t.state)
			t.cursor++
		} else {
			CompleteStep().apply(&t.state)
		}
		t.state.UpdatedAt = s.clock()
	}
	resp := remote.ResponseFromSession(t.state)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req remote.ResumeRequest
	if !s.decode(w, r, &req) {
		return
	}
	verdict, err := session.ParseVerdict(req.Verdict)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	decision := session.ReviewDecision{Verdict: verdict, Feedback: req.Feedback}
	if err := decision.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	t, ok := s.threads[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "unknown thread "+id)
		return
	}
	if t.state.Status != session.StatusInterrupted {
		status := t.state.Status
		s.mu.Unlock()
		writeError(w, http.StatusConflict, fmt.Sprintf("thread %s is %s, not awaiting review", id, status))
		return
	}
	t.decisions = append(t.decisions, decision.Normalized())
	message := string(verdict)
	if decision.Feedback != "" {
		message += ": " + strings.TrimSpace(decision.Feedback)
	}
	t.state.Status = session.StatusRunning
	t.state.CurrentNode = "resume"
	t.state.HumanReadableFeedback = ""
	t.state.DraftPreview = ""
	t.state.WorkflowLogs = append(t.state.WorkflowLogs, session.LogEntry{Agent: "reviewer", Message: message})
	t.state.UpdatedAt = s.clock()
	resp := remote.ResponseFromSession(t.state)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	reader := http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload exceeds limit")
			return false
		}
		writeError(w, http.StatusBadRequest, "unable to read body")
		return false
	}
	if err := json.Unmarshal(body, into); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, remote.ErrorBody{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
