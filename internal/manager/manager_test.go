package manager_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

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

func validConfig() crawl.JobConfig {
	return crawl.JobConfig{
		MaxDepth:        2,
		MaxPages:        10,
		Delay:           500 * time.Millisecond,
		SteeringTimeout: time.Second,
	}
}

func newManager(extract *stubExtractor, filter *stubFilter) (*manager.Manager, *progress.Bus) {
	bus := progress.NewBus(progress.Config{})
	m := manager.New(manager.Deps{
		Fetcher: stubFetcher{},
		Extract: extract,
		Filter:  filter,
		Robots:  allowAllRobots{},
		Sink:    stubSink{},
		Bus:     bus,
		IDGen:   uuid.NewGenerator(),
		Clock:   sysClock{},
	}, validConfig())
	return m, bus
}

func waitTerminal(t *testing.T, m *manager.Manager, jobID string) crawl.Job {
	t.Helper()
	var job crawl.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = m.Get(jobID)
		require.NoError(t, err)
		return job.State.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestManagerStartRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	m, _ := newManager(&stubExtractor{pages: map[string]crawl.Page{}}, &stubFilter{})
	_, err := m.Start(context.Background(), manager.StartRequest{
		RootURL: "https://example.com/",
		Intent:  "docs",
		Config:  crawl.JobConfig{MaxDepth: 99, MaxPages: 5, Delay: time.Second, SteeringTimeout: time.Second},
	})
	require.ErrorIs(t, err, crawl.ErrInvalidConfig)
	require.Empty(t, m.List())
}

func TestManagerStartRejectsBadRootURL(t *testing.T) {
	t.Parallel()

	m, _ := newManager(&stubExtractor{pages: map[string]crawl.Page{}}, &stubFilter{})
	_, err := m.Start(context.Background(), manager.StartRequest{
		RootURL: "ftp://example.com/",
		Intent:  "docs",
	})
	require.ErrorIs(t, err, crawl.ErrInvalidConfig)
}

func TestManagerRunsJobToCompletion(t *testing.T) {
	t.Parallel()

	extract := &stubExtractor{pages: map[string]crawl.Page{
		"https://example.com/": {Links: []crawl.Link{{URL: "https://example.com/docs", Text: "Docs"}}},
	}}
	m, _ := newManager(extract, &stubFilter{})

	job, err := m.Start(context.Background(), manager.StartRequest{
		RootURL: "https://example.com/",
		Intent:  "docs",
	})
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)

	done := waitTerminal(t, m, job.ID)
	require.Equal(t, crawl.StateCompleted, done.State)
	require.Equal(t, 2, done.Counters.PagesVisited)
	require.NotNil(t, done.Finished)
}

func TestManagerSteerApprovesEscalatedLink(t *testing.T) {
	t.Parallel()

	extract := &stubExtractor{pages: map[string]crawl.Page{
		"https://example.com/": {Links: []crawl.Link{{URL: "https://example.com/maybe", Text: "Maybe"}}},
	}}
	filter := &stubFilter{verdicts: map[string]crawl.Verdict{
		"https://example.com/maybe": crawl.VerdictEscalate,
	}}
	m, bus := newManager(extract, filter)

	job, err := m.Start(context.Background(), manager.StartRequest{
		RootURL: "https://example.com/",
		Intent:  "docs",
		Config:  crawl.JobConfig{SteeringTimeout: 5 * time.Second},
	})
	require.NoError(t, err)

	ch, cancel := bus.Subscribe(job.ID)
	defer cancel()

	var req crawl.SteeringRequest
	require.Eventually(t, func() bool {
		var pending bool
		var err error
		req, pending, err = m.PendingSteering(job.ID)
		require.NoError(t, err)
		return pending
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, "https://example.com/maybe", req.Link)
	require.True(t, req.Deadline.After(req.CreatedAt))

	require.NoError(t, m.Steer(job.ID, "https://example.com/maybe", true))

	done := waitTerminal(t, m, job.ID)
	require.Equal(t, crawl.StateCompleted, done.State)
	require.Equal(t, 2, done.Counters.PagesVisited)

	// The stream closes once the job finishes; draining proves termination.
	for range ch {
	}
}

func TestManagerSteerWithoutPendingRequest(t *testing.T) {
	t.Parallel()

	extract := &stubExtractor{pages: map[string]crawl.Page{}}
	m, _ := newManager(extract, &stubFilter{})

	job, err := m.Start(context.Background(), manager.StartRequest{
		RootURL: "https://example.com/",
		Intent:  "docs",
	})
	require.NoError(t, err)
	waitTerminal(t, m, job.ID)

	err = m.Steer(job.ID, "https://example.com/nothing", true)
	require.ErrorIs(t, err, crawl.ErrNoPendingSteering)
}

func TestManagerUnknownJob(t *testing.T) {
	t.Parallel()

	m, _ := newManager(&stubExtractor{pages: map[string]crawl.Page{}}, &stubFilter{})

	_, err := m.Get("missing")
	require.ErrorIs(t, err, crawl.ErrJobNotFound)
	require.ErrorIs(t, m.Cancel("missing"), crawl.ErrJobNotFound)
	require.ErrorIs(t, m.Delete("missing"), crawl.ErrJobNotFound)
	require.ErrorIs(t, m.Steer("missing", "https://example.com/", true), crawl.ErrJobNotFound)
}

func TestManagerCancelAndDelete(t *testing.T) {
	t.Parallel()

	// An escalation with a long timeout keeps the job alive until cancelled.
	extract := &stubExtractor{pages: map[string]crawl.Page{
		"https://example.com/": {Links: []crawl.Link{{URL: "https://example.com/maybe", Text: "Maybe"}}},
	}}
	filter := &stubFilter{verdicts: map[string]crawl.Verdict{
		"https://example.com/maybe": crawl.VerdictEscalate,
	}}
	m, _ := newManager(extract, filter)

	job, err := m.Start(context.Background(), manager.StartRequest{
		RootURL: "https://example.com/",
		Intent:  "docs",
		Config:  crawl.JobConfig{SteeringTimeout: time.Minute},
	})
	require.NoError(t, err)

	require.NoError(t, m.Cancel(job.ID))
	done := waitTerminal(t, m, job.ID)
	require.Equal(t, crawl.StateCancelled, done.State)

	require.NoError(t, m.Delete(job.ID))
	_, err = m.Get(job.ID)
	require.ErrorIs(t, err, crawl.ErrJobNotFound)
}

func TestManagerShutdownStopsJobs(t *testing.T) {
	t.Parallel()

	extract := &stubExtractor{pages: map[string]crawl.Page{
		"https://example.com/": {Links: []crawl.Link{{URL: "https://example.com/maybe", Text: "Maybe"}}},
	}}
	filter := &stubFilter{verdicts: map[string]crawl.Verdict{
		"https://example.com/maybe": crawl.VerdictEscalate,
	}}
	m, _ := newManager(extract, filter)

	_, err := m.Start(context.Background(), manager.StartRequest{
		RootURL: "https://example.com/",
		Intent:  "docs",
		Config:  crawl.JobConfig{SteeringTimeout: time.Minute},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
}
