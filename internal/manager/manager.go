// Package manager owns the registry of crawl jobs and their lifecycles.
package manager

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/agentx-ai/steercrawl/internal/crawl"
	"github.com/agentx-ai/steercrawl/internal/frontier"
	"github.com/agentx-ai/steercrawl/internal/progress"
	"github.com/agentx-ai/steercrawl/internal/ratelimit"
	"github.com/agentx-ai/steercrawl/internal/steering"
	"github.com/agentx-ai/steercrawl/internal/telemetry"
)

// Deps are the shared services every job's coordinator is built from. The
// manager adds the per-job pieces itself: frontier, rate limiter, and
// steering queue.
type Deps struct {
	Fetcher crawl.Fetcher
	Extract crawl.Extractor
	Filter  crawl.LinkFilter
	Robots  crawl.RobotsPolicy
	Sink    crawl.ContentSink
	Bus     *progress.Bus
	IDGen   crawl.IDGenerator
	Clock   crawl.Clock
	Logger  *zap.Logger
}

// StartRequest describes a new crawl.
type StartRequest struct {
	RootURL string          `json:"root_url"`
	Intent  string          `json:"intent"`
	Config  crawl.JobConfig `json:"config"`
}

type jobHandle struct {
	coord  *crawl.Coordinator
	steer  *steering.Queue
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager creates, tracks, steers and cancels crawl jobs. One coordinator
// goroutine runs per active job; the manager is the only writer to the
// registry.
type Manager struct {
	deps     Deps
	defaults crawl.JobConfig
	logger   *zap.Logger

	mu   sync.Mutex
	jobs map[string]*jobHandle
}

// New builds a Manager. defaults fill zero-valued fields on incoming job
// configs before validation.
func New(deps Deps, defaults crawl.JobConfig) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		deps:     deps,
		defaults: defaults,
		logger:   logger,
		jobs:     make(map[string]*jobHandle),
	}
}

// Start validates the request, registers the job, and launches its
// coordinator. Invalid configs are rejected with crawl.ErrInvalidConfig and
// never create a job.
func (m *Manager) Start(ctx context.Context, req StartRequest) (crawl.Job, error) {
	cfg := m.applyDefaults(req.Config)
	if err := cfg.Validate(); err != nil {
		return crawl.Job{}, err
	}
	if _, err := frontier.Normalize(req.RootURL); err != nil {
		return crawl.Job{}, fmt.Errorf("%w: root url: %v", crawl.ErrInvalidConfig, err)
	}

	id, err := m.deps.IDGen.NewID()
	if err != nil {
		return crawl.Job{}, fmt.Errorf("generate job id: %w", err)
	}

	job := crawl.Job{
		ID:      id,
		RootURL: req.RootURL,
		Intent:  req.Intent,
		Config:  cfg,
		State:   crawl.StateInitializing,
		Created: m.deps.Clock.Now(),
	}

	steerQueue := steering.NewQueue(cfg.SteeringTimeout, m.logger)
	coord := crawl.NewCoordinator(job, crawl.Deps{
		Frontier: frontier.New(cfg.MaxDepth),
		Fetcher:  m.deps.Fetcher,
		Extract:  m.deps.Extract,
		Filter:   m.deps.Filter,
		Robots:   m.deps.Robots,
		Limiter:  ratelimit.New(cfg.Delay),
		Sink:     m.deps.Sink,
		Steerer:  steerQueue,
		Progress: m.deps.Bus,
		Clock:    m.deps.Clock,
		Logger:   m.logger,
	})

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	handle := &jobHandle{
		coord:  coord,
		steer:  steerQueue,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	m.jobs[id] = handle
	m.mu.Unlock()

	telemetry.CountJob("started")
	m.logger.Info("job started",
		zap.String("job_id", id),
		zap.String("root_url", req.RootURL),
		zap.String("intent", req.Intent))

	go func() {
		defer close(handle.done)
		defer cancel()
		coord.Run(runCtx)
	}()

	return coord.Job(), nil
}

// Steer resolves the job's pending steering request for the given link.
// Returns crawl.ErrNoPendingSteering when nothing matching is outstanding.
func (m *Manager) Steer(jobID, link string, approved bool) error {
	handle, err := m.handle(jobID)
	if err != nil {
		return err
	}
	return handle.steer.Resolve(link, approved)
}

// PendingSteering returns the job's outstanding steering request, if any.
func (m *Manager) PendingSteering(jobID string) (crawl.SteeringRequest, bool, error) {
	handle, err := m.handle(jobID)
	if err != nil {
		return crawl.SteeringRequest{}, false, err
	}
	req, ok := handle.steer.Pending()
	return req, ok, nil
}

// Cancel stops a running job. In-flight fetches finish but their results are
// discarded; cancelling a finished job is a no-op.
func (m *Manager) Cancel(jobID string) error {
	handle, err := m.handle(jobID)
	if err != nil {
		return err
	}
	handle.cancel()
	return nil
}

// Get returns the job's current snapshot.
func (m *Manager) Get(jobID string) (crawl.Job, error) {
	handle, err := m.handle(jobID)
	if err != nil {
		return crawl.Job{}, err
	}
	return handle.coord.Job(), nil
}

// List returns snapshots of all known jobs, newest first.
func (m *Manager) List() []crawl.Job {
	m.mu.Lock()
	handles := make([]*jobHandle, 0, len(m.jobs))
	for _, h := range m.jobs {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	jobs := make([]crawl.Job, len(handles))
	for i, h := range handles {
		jobs[i] = h.coord.Job()
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].Created.After(jobs[j].Created)
	})
	return jobs
}

// Delete removes a job from the registry, cancelling it first if still
// running. Stored content is left untouched.
func (m *Manager) Delete(jobID string) error {
	m.mu.Lock()
	handle, ok := m.jobs[jobID]
	if ok {
		delete(m.jobs, jobID)
	}
	m.mu.Unlock()
	if !ok {
		return crawl.ErrJobNotFound
	}

	handle.cancel()
	<-handle.done
	if m.deps.Bus != nil {
		m.deps.Bus.Forget(jobID)
	}
	m.logger.Info("job deleted", zap.String("job_id", jobID))
	return nil
}

// Shutdown cancels every running job and waits for their coordinators.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	handles := make([]*jobHandle, 0, len(m.jobs))
	for _, h := range m.jobs {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	for _, h := range handles {
		h.cancel()
	}
	for _, h := range handles {
		select {
		case <-h.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (m *Manager) handle(jobID string) (*jobHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	handle, ok := m.jobs[jobID]
	if !ok {
		return nil, crawl.ErrJobNotFound
	}
	return handle, nil
}

func (m *Manager) applyDefaults(cfg crawl.JobConfig) crawl.JobConfig {
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = m.defaults.MaxDepth
	}
	if cfg.MaxPages == 0 {
		cfg.MaxPages = m.defaults.MaxPages
	}
	if cfg.Delay == 0 {
		cfg.Delay = m.defaults.Delay
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = m.defaults.RequestTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = m.defaults.UserAgent
	}
	if cfg.FetchConcurrency == 0 {
		cfg.FetchConcurrency = m.defaults.FetchConcurrency
	}
	if cfg.SteeringTimeout == 0 {
		cfg.SteeringTimeout = m.defaults.SteeringTimeout
	}
	// RespectRobots is left as the caller resolved it; a bare bool cannot
	// distinguish an explicit false from an absent field, so the API layer
	// applies that default.
	return cfg
}
