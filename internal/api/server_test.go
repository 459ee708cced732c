package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentx-ai/steercrawl/internal/config"
	"github.com/agentx-ai/steercrawl/internal/crawl"
	"github.com/agentx-ai/steercrawl/internal/id/uuid"
	"github.com/agentx-ai/steercrawl/internal/manager"
	"github.com/agentx-ai/steercrawl/internal/progress"
)

type stubFetcher struct{}

func (stubFetcher) Fetch(_ context.Context, req crawl.FetchRequest) (crawl.FetchResponse, error) {
	return crawl.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte("<html></html>")}, nil
}

type stubExtractor struct {
	mu    sync.Mutex
	pages map[string]crawl.Page
}

func (e *stubExtractor) Extract(baseURL string, _ []byte) (crawl.Page, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	page := e.pages[baseURL]
	page.URL = baseURL
	return page, nil
}

type stubFilter struct {
	verdicts map[string]crawl.Verdict
}

func (f *stubFilter) Score(_ context.Context, link crawl.Link, _, _ string) crawl.LinkDecision {
	verdict, ok := f.verdicts[link.URL]
	if !ok {
		verdict = crawl.VerdictApprove
	}
	return crawl.LinkDecision{URL: link.URL, Score: 0.5, Confidence: 0.5, Verdict: verdict}
}

type allowAllRobots struct{}

func (allowAllRobots) Allowed(context.Context, string, string) bool { return true }

type stubSink struct{}

func (stubSink) Store(context.Context, string, crawl.Page) (int, error) { return 1, nil }

type sysClock struct{}

func (sysClock) Now() time.Time { return time.Now() }

func testServer(t *testing.T, extract *stubExtractor, filter *stubFilter) *Server {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Crawl.DelayDefault = 500 * time.Millisecond
	cfg.Crawl.SteeringTimeout = 10 * time.Second

	bus := progress.NewBus(progress.Config{})
	mgr := manager.New(manager.Deps{
		Fetcher: stubFetcher{},
		Extract: extract,
		Filter:  filter,
		Robots:  allowAllRobots{},
		Sink:    stubSink{},
		Bus:     bus,
		IDGen:   uuid.NewGenerator(),
		Clock:   sysClock{},
	}, cfg.JobDefaults())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mgr.Shutdown(ctx)
	})
	return NewServer(mgr, bus, cfg, nil)
}

func defaultExtractor() *stubExtractor {
	return &stubExtractor{pages: map[string]crawl.Page{
		"https://example.com/": {Links: []crawl.Link{{URL: "https://example.com/docs", Text: "Docs"}}},
	}}
}

func startJob(t *testing.T, s *Server, body string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/crawl", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp struct {
		Job crawl.Job `json:"job"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Job.ID)
	return resp.Job.ID
}

func waitJobState(t *testing.T, s *Server, jobID string, want crawl.JobState) {
	t.Helper()
	require.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/crawl/jobs/"+jobID, nil))
		if rec.Code != http.StatusOK {
			return false
		}
		var resp struct {
			Job crawl.Job `json:"job"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			return false
		}
		return resp.Job.State == want
	}, 10*time.Second, 20*time.Millisecond)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	s := testServer(t, defaultExtractor(), &stubFilter{})
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStartJobAndGet(t *testing.T) {
	t.Parallel()

	s := testServer(t, defaultExtractor(), &stubFilter{})
	jobID := startJob(t, s, `{"root_url":"https://example.com/","intent":"docs","max_pages":5}`)

	waitJobState(t, s, jobID, crawl.StateCompleted)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/crawl/jobs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), jobID)
}

func TestStartJobValidation(t *testing.T) {
	t.Parallel()

	s := testServer(t, defaultExtractor(), &stubFilter{})
	cases := map[string]string{
		"bad json":       `{`,
		"missing root":   `{"intent":"docs"}`,
		"missing intent": `{"root_url":"https://example.com/"}`,
		"depth too big":  `{"root_url":"https://example.com/","intent":"docs","max_depth":99}`,
		"zero pages":     `{"root_url":"https://example.com/","intent":"docs","max_pages":-1}`,
		"delay too low":  `{"root_url":"https://example.com/","intent":"docs","delay_seconds":0.1}`,
		"bad scheme":     `{"root_url":"ftp://example.com/","intent":"docs"}`,
	}
	for name, body := range cases {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/crawl", strings.NewReader(body)))
		require.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestSteerLifecycle(t *testing.T) {
	t.Parallel()

	filter := &stubFilter{verdicts: map[string]crawl.Verdict{
		"https://example.com/docs": crawl.VerdictEscalate,
	}}
	s := testServer(t, defaultExtractor(), filter)
	jobID := startJob(t, s, `{"root_url":"https://example.com/","intent":"docs","steering_timeout_seconds":30}`)

	require.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/crawl/jobs/"+jobID+"/steering", nil))
		return rec.Code == http.StatusOK
	}, 10*time.Second, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/crawl/jobs/"+jobID+"/steer",
		strings.NewReader(`{"link":"https://example.com/docs","approved":true}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	waitJobState(t, s, jobID, crawl.StateCompleted)

	// No pending request anymore.
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/crawl/jobs/"+jobID+"/steer",
		strings.NewReader(`{"link":"https://example.com/docs","approved":true}`)))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestSteerUnknownJob(t *testing.T) {
	t.Parallel()

	s := testServer(t, defaultExtractor(), &stubFilter{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/crawl/jobs/missing/steer",
		strings.NewReader(`{"link":"https://example.com/","approved":true}`)))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelAndDeleteJob(t *testing.T) {
	t.Parallel()

	filter := &stubFilter{verdicts: map[string]crawl.Verdict{
		"https://example.com/docs": crawl.VerdictEscalate,
	}}
	s := testServer(t, defaultExtractor(), filter)
	jobID := startJob(t, s, `{"root_url":"https://example.com/","intent":"docs","steering_timeout_seconds":60}`)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/crawl/jobs/"+jobID+"/cancel", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	waitJobState(t, s, jobID, crawl.StateCancelled)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/crawl/jobs/"+jobID, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/crawl/jobs/"+jobID, nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamDeliversEvents(t *testing.T) {
	t.Parallel()

	filter := &stubFilter{verdicts: map[string]crawl.Verdict{
		"https://example.com/docs": crawl.VerdictEscalate,
	}}
	s := testServer(t, defaultExtractor(), filter)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	jobID := startJob(t, s, `{"root_url":"https://example.com/","intent":"docs","steering_timeout_seconds":30}`)

	// Attach to the stream while the job is blocked on steering.
	require.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/crawl/jobs/"+jobID+"/steering", nil))
		return rec.Code == http.StatusOK
	}, 10*time.Second, 20*time.Millisecond)

	resp, err := http.Get(srv.URL + "/v1/crawl/jobs/" + jobID + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/crawl/jobs/"+jobID+"/steer",
		strings.NewReader(`{"link":"https://example.com/docs","approved":false}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var events []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			events = append(events, strings.TrimPrefix(line, "event: "))
		}
	}
	require.Contains(t, events, string(progress.KindCompleted))
}

func TestStreamUnknownJob(t *testing.T) {
	t.Parallel()

	s := testServer(t, defaultExtractor(), &stubFilter{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/crawl/jobs/missing/stream", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()

	s := testServer(t, defaultExtractor(), &stubFilter{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
