// Package remote talks to the workflow engine over HTTP. It only moves
// bytes and reports HTTP failures; mapping them onto the workflow error
// taxonomy is the caller's job.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/chambersiq/draftflow/internal/workflow/session"
)

const maxErrorBody = 4 << 10

// RequestIDHeader carries a per-call id the engine can log.
const RequestIDHeader = "X-Request-ID"

// Logger records transport activity. It matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// StatusError is a non-2xx reply from the engine.
type StatusError struct {
	Op      string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote: %s: engine returned %d", e.Op, e.Code)
	}
	return fmt.Sprintf("remote: %s: engine returned %d: %s", e.Op, e.Code, e.Message)
}

// StatusCode extracts the HTTP code from err, or 0 if err is not a StatusError.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// Client is the HTTP transport to the engine.
type Client struct {
	settings Settings
	http     *http.Client
	logger   Logger
	newID    func() string
	status   singleflight.Group
}

// Option customizes client construction.
type Option func(*Client)

// WithHTTPClient swaps the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRequestIDs overrides request id generation.
func WithRequestIDs(gen func() string) Option {
	return func(c *Client) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// New prepares a client for the engine described by settings.
func New(settings Settings, opts ...Option) *Client {
	settings.normalize()
	c := &Client{
		settings: settings,
		http:     &http.Client{},
		logger:   nopLogger{},
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// BaseURL returns the engine root the client calls.
func (c *Client) BaseURL() string {
	return c.settings.BaseURL
}

// Start asks the engine to begin a new run.
func (c *Client) Start(ctx context.Context, params session.StartParams) (session.Session, error) {
	body := StartRequest{
		CaseID:      params.CaseID,
		JobType:     params.JobType,
		ClientID:    params.ClientID,
		SeedContent: params.SeedContent,
	}
	var resp StatusResponse
	if err := c.do(ctx, "start", http.MethodPost, "/start", body, &resp); err != nil {
		return session.Session{}, err
	}
	if strings.TrimSpace(resp.ThreadID) == "" {
		return session.Session{}, fmt.Errorf("remote: start: response has no threadId")
	}
	s, err := resp.Session("")
	if err != nil {
		return session.Session{}, fmt.Errorf("remote: start: %w", err)
	}
	return s, nil
}

// Status fetches the current snapshot. Concurrent calls for the same thread
// share one request, which runs detached from any single caller under the
// settings timeout; each caller still returns as soon as its own ctx ends.
func (c *Client) Status(ctx context.Context, threadID string) (session.Session, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	shared := context.WithoutCancel(ctx)
	ch := c.status.DoChan(threadID, func() (any, error) {
		var resp StatusResponse
		if err := c.do(shared, "status", http.MethodGet, "/status/"+url.PathEscape(threadID), nil, &resp); err != nil {
			return nil, err
		}
		s, err := resp.Session(threadID)
		if err != nil {
			return nil, fmt.Errorf("remote: status: %w", err)
		}
		return s, nil
	})
	select {
	case <-ctx.Done():
		return session.Session{}, fmt.Errorf("remote: status: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return session.Session{}, res.Err
		}
		if res.Shared {
			c.logger.Printf("remote: status %s shared an in-flight request", threadID)
		}
		return res.Val.(session.Session).Clone(), nil
	}
}

// Resume delivers a review decision.
func (c *Client) Resume(ctx context.Context, threadID string, decision session.ReviewDecision) (session.Session, error) {
	body := ResumeRequest{Verdict: string(decision.Verdict), Feedback: decision.Feedback}
	var resp StatusResponse
	if err := c.do(ctx, "resume", http.MethodPost, "/resume/"+url.PathEscape(threadID), body, &resp); err != nil {
		return session.Session{}, err
	}
	s, err := resp.Session(threadID)
	if err != nil {
		return session.Session{}, fmt.Errorf("remote: resume: %w", err)
	}
	return s, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.settings.Timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("remote: %s: encode request: %w", op, err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.settings.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("remote: %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.settings.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.settings.AuthToken)
	}
	requestID := c.newID()
	req.Header.Set(RequestIDHeader, requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Printf("remote: %s %s [%s] failed: %v", method, path, requestID, err)
		return fmt.Errorf("remote: %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		se := &StatusError{Op: op, Code: resp.StatusCode, Message: errorMessage(raw)}
		c.logger.Printf("remote: %s %s [%s] -> %d", method, path, requestID, resp.StatusCode)
		return se
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("remote: %s: decode response: %w", op, err)
	}
	return nil
}

func errorMessage(raw []byte) string {
	var eb ErrorBody
	if err := json.Unmarshal(raw, &eb); err == nil && eb.Error != "" {
		return eb.Error
	}
	return strings.TrimSpace(string(raw))
}
