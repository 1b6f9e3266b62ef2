package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chambersiq/draftflow/internal/config"
	"github.com/chambersiq/draftflow/internal/workflow/session"
)

func newTestClient(t *testing.T, h http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Settings{BaseURL: srv.URL + "/", AuthToken: "tok", Timeout: time.Second}, opts...)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestStartSendsParamsAndHeaders(t *testing.T) {
	var got StartRequest
	var auth, reqID string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/start", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		auth = r.Header.Get("Authorization")
		reqID = r.Header.Get(RequestIDHeader)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, StatusResponse{ThreadID: "th-9", Status: "running", CurrentNode: "planner"})
	}), WithRequestIDs(func() string { return "req-1" }))

	s, err := c.Start(context.Background(), session.StartParams{CaseID: "case-1", JobType: "contract", ClientID: "cl-1", SeedContent: "seed"})
	require.NoError(t, err)
	assert.Equal(t, "th-9", s.ThreadID)
	assert.Equal(t, session.StatusRunning, s.Status)
	assert.Equal(t, "planner", s.CurrentNode)
	assert.Equal(t, StartRequest{CaseID: "case-1", JobType: "contract", ClientID: "cl-1", SeedContent: "seed"}, got)
	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, "req-1", reqID)
}

func TestStartWithoutThreadIDFails(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, StatusResponse{Status: "running"})
	}))
	_, err := c.Start(context.Background(), session.StartParams{CaseID: "c", JobType: "j"})
	require.Error(t, err)
}

func TestStatusDecodesCurrentState(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/status/th-1", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "interrupted_for_human",
			"currentNode": "review",
			"currentState": map[string]any{
				"plan": map[string]any{
					"sections":               []map[string]any{{"id": "a", "title": "Intro", "estimatedIndex": 0}},
					"totalEstimatedSections": 2,
				},
				"sectionMemory":         []map[string]any{{"sectionId": "a", "content": "Hello"}},
				"completedSectionIds":   []string{"a"},
				"humanReadableFeedback": "cite the statute",
				"draftPreview":          "## Intro",
				"workflowLogs":          []map[string]any{{"agent": "critic", "message": "needs review"}},
			},
		})
	}))
	s, err := c.Status(context.Background(), "th-1")
	require.NoError(t, err)
	assert.Equal(t, "th-1", s.ThreadID)
	assert.Equal(t, session.StatusInterrupted, s.Status)
	require.NotNil(t, s.Plan)
	assert.Equal(t, 2, s.Plan.Total())
	require.Len(t, s.SectionMemory, 1)
	assert.Equal(t, "Hello", s.SectionMemory[0].Content)
	assert.Equal(t, []string{"a"}, s.CompletedSectionIDs)
	assert.Equal(t, "cite the statute", s.HumanReadableFeedback)
	assert.Equal(t, []session.LogEntry{{Agent: "critic", Message: "needs review"}}, s.WorkflowLogs)
}

func TestStatusRejectsUnknownStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, StatusResponse{Status: "paused"})
	}))
	_, err := c.Status(context.Background(), "th-1")
	require.Error(t, err)
	assert.Zero(t, StatusCode(err))
}

func TestNon2xxBecomesStatusError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorBody{Error: "unknown thread"})
	}))
	_, err := c.Status(context.Background(), "gone")
	require.Error(t, err)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, "unknown thread", se.Message)
	assert.Equal(t, http.StatusNotFound, StatusCode(err))
}

func TestResumeSendsDecision(t *testing.T) {
	var got ResumeRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/resume/th-1", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, StatusResponse{Status: "running"})
	}))
	s, err := c.Resume(context.Background(), "th-1", session.ReviewDecision{Verdict: session.VerdictRefine, Feedback: "shorter"})
	require.NoError(t, err)
	assert.Equal(t, session.StatusRunning, s.Status)
	assert.Equal(t, ResumeRequest{Verdict: "refine", Feedback: "shorter"}, got)
}

func TestTimeoutIsTransportFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	c := New(Settings{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.Status(context.Background(), "th-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, StatusCode(err))
}

func TestConcurrentStatusCallsShareOneRequest(t *testing.T) {
	var hits atomic.Int32
	gate := make(chan struct{})
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-gate
		writeJSON(w, http.StatusOK, StatusResponse{Status: "running", CurrentState: &State{SectionMemory: []Section{{SectionID: "a", Content: "x"}}}})
	}))

	const callers = 4
	var wg sync.WaitGroup
	results := make([]session.Session, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := c.Status(context.Background(), "th-1")
			assert.NoError(t, err)
			results[i] = s
		}(i)
	}
	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.LessOrEqual(t, hits.Load(), int32(callers))
	results[0].SectionMemory[0].Content = "mutated"
	for i := 1; i < callers; i++ {
		assert.Equal(t, "x", results[i].SectionMemory[0].Content, "callers must not share slices")
	}
}

func TestSharedStatusSurvivesFirstCallerCancel(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		writeJSON(w, http.StatusOK, StatusResponse{Status: "running"})
	}))

	first, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Status(first, "th-1")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, 5*time.Millisecond)

	second := make(chan error, 1)
	var got session.Session
	go func() {
		s, err := c.Status(context.Background(), "th-1")
		got = s
		second <- err
	}()

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatalf("cancelled caller did not return")
	}

	close(release)
	select {
	case err := <-second:
		require.NoError(t, err, "the other caller keeps its own context")
		assert.Equal(t, session.StatusRunning, got.Status)
	case <-time.After(time.Second):
		t.Fatalf("second caller did not return")
	}
}

func TestSettingsFromConfig(t *testing.T) {
	s := SettingsFromConfig(nil)
	assert.Equal(t, config.DefaultEngineURL, s.BaseURL)
	assert.Equal(t, config.DefaultRequestTimeout, s.Timeout)

	cfg := &config.Config{}
	cfg.Project.Engine = config.EngineConfig{BaseURL: "https://engine.internal/", AuthToken: " t ", RequestTimeout: 3 * time.Second}
	s = SettingsFromConfig(cfg)
	assert.Equal(t, "https://engine.internal", s.BaseURL)
	assert.Equal(t, "t", s.AuthToken)
	assert.Equal(t, 3*time.Second, s.Timeout)
}

func TestResponseRoundTripKeepsPlanOrder(t *testing.T) {
	in := session.Session{
		ThreadID: "th-1",
		Status:   session.StatusCompleted,
		Plan: &session.Plan{Sections: []session.PlannedSection{
			{ID: "a", Title: "Intro"}, {ID: "b", Title: "Body", EstimatedIndex: 1},
		}},
		SectionMemory: []session.Section{{SectionID: "a", Content: "Hello"}},
	}
	out, err := ResponseFromSession(in).Session("th-1")
	require.NoError(t, err)
	assert.Equal(t, in.Plan.Sections, out.Plan.Sections)
	assert.Equal(t, in.SectionMemory, out.SectionMemory)
}
