package crawl

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentx-ai/steercrawl/internal/progress"
	"github.com/agentx-ai/steercrawl/internal/telemetry"
)

// Frontier is the coordinator's view of the candidate queue. Admit dedups and
// depth-gates a raw link; Enqueue commits it after the filter approves.
type Frontier interface {
	Admit(rawURL string, depth int, from string) (FrontierEntry, bool)
	Enqueue(entry FrontierEntry)
	Pop() (FrontierEntry, bool)
	Len() int
}

// Deps bundles everything a Coordinator needs. All fields are required except
// Retry, Clock and Logger, which get defaults.
type Deps struct {
	Frontier Frontier
	Fetcher  Fetcher
	Extract  Extractor
	Filter   LinkFilter
	Robots   RobotsPolicy
	Limiter  RateLimiter
	Sink     ContentSink
	Steerer  Steerer
	Progress progress.Publisher
	Retry    RetryPolicy
	Clock    Clock
	Logger   *zap.Logger
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Coordinator drives one crawl job through its lifecycle: pop the next
// approved link, fetch and store it, then score the page's outgoing links
// (escalating uncertain ones to a human) before looping. A Coordinator is
// built per job and discarded when Run returns.
type Coordinator struct {
	deps   Deps
	logger *zap.Logger

	mu  sync.Mutex
	job Job

	// scheduled counts fetch attempts handed to workers; it gates the page
	// budget before the fetch happens so workers never overshoot MaxPages.
	scheduled int
}

type fetchResult struct {
	entry FrontierEntry
	page  Page
	err   error
}

// NewCoordinator wires a coordinator for the given job. The job must carry a
// validated config.
func NewCoordinator(job Job, deps Deps) *Coordinator {
	if deps.Retry == nil {
		deps.Retry = NewExponentialRetryPolicy()
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("job_id", job.ID))
	job.State = StateInitializing
	return &Coordinator{deps: deps, logger: logger, job: job}
}

// Job returns a snapshot of the job's current metadata.
func (c *Coordinator) Job() Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.job
}

// Run executes the job until the frontier drains, the page budget is spent,
// or ctx is cancelled. It always leaves the job in a terminal state and
// closes the job's progress stream.
func (c *Coordinator) Run(ctx context.Context) {
	started := c.deps.Clock.Now()

	root, ok := c.deps.Frontier.Admit(c.job.RootURL, 0, "")
	if !ok {
		c.fail("root url is not crawlable: " + c.job.RootURL)
		return
	}
	c.deps.Frontier.Enqueue(root)

	concurrency := c.job.Config.FetchConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	results := make(chan fetchResult)
	var wg sync.WaitGroup
	inflight := 0

	drainWorkers := func() {
		go func() {
			wg.Wait()
			close(results)
		}()
		for range results {
		}
	}

	for {
		if ctx.Err() != nil {
			drainWorkers()
			c.cancel(started)
			return
		}

		entry, ok := c.deps.Frontier.Pop()
		if !ok {
			if inflight == 0 {
				break
			}
			// Frontier is empty but fetches are still out; their pages may
			// discover more links.
			select {
			case res := <-results:
				inflight--
				c.handleResult(ctx, res)
			case <-ctx.Done():
			}
			continue
		}

		if !c.schedule(ctx, entry, &wg, sem, results) {
			// Budget spent; anything left in the frontier stays unvisited.
			break
		}
		inflight++

		// Opportunistically absorb a finished fetch so link filtering keeps
		// pace with the workers.
		select {
		case res := <-results:
			inflight--
			c.handleResult(ctx, res)
		default:
		}
	}

	for inflight > 0 {
		res := <-results
		inflight--
		c.handleResult(ctx, res)
		if ctx.Err() != nil {
			drainWorkers()
			c.cancel(started)
			return
		}
	}
	wg.Wait()

	if ctx.Err() != nil {
		c.cancel(started)
		return
	}
	c.complete(started)
}

// schedule hands entry to a fetch worker. It returns false when the page
// budget is exhausted.
func (c *Coordinator) schedule(ctx context.Context, entry FrontierEntry, wg *sync.WaitGroup, sem chan struct{}, results chan<- fetchResult) bool {
	c.mu.Lock()
	if c.scheduled >= c.job.Config.MaxPages {
		c.mu.Unlock()
		return false
	}
	c.scheduled++
	c.mu.Unlock()

	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
		case <-ctx.Done():
			results <- fetchResult{entry: entry, err: ctx.Err()}
			return
		}
		page, err := c.fetchAndStore(ctx, entry)
		results <- fetchResult{entry: entry, page: page, err: err}
	}()
	return true
}

// handleResult folds one finished fetch back into the loop: absorb per-entry
// failures, including an unreachable root, and run the page's links through
// the filter. An unfetchable page is only visible as missing progress.
func (c *Coordinator) handleResult(ctx context.Context, res fetchResult) {
	if res.err != nil {
		c.logger.Warn("page skipped after fetch failure",
			zap.String("url", res.entry.URL), zap.Error(res.err))
		return
	}
	c.filterLinks(ctx, res.entry, res.page)
}

// fetchAndStore runs the fetch pipeline for one entry: robots gate, rate
// limit, fetch with retries, extract, chunk and persist.
func (c *Coordinator) fetchAndStore(ctx context.Context, entry FrontierEntry) (Page, error) {
	c.setState(StateFetching)

	cfg := c.snapshot().Config
	if cfg.RespectRobots && !c.deps.Robots.Allowed(ctx, entry.URL, cfg.UserAgent) {
		telemetry.CountPage("robots_denied")
		return Page{}, errRobotsDenied
	}

	c.publish(progress.Event{
		Kind:     progress.KindCrawling,
		URL:      entry.URL,
		Progress: c.progressRatio(),
	})

	if err := c.deps.Limiter.Wait(ctx, entry.URL); err != nil {
		return Page{}, err
	}

	resp, err := c.fetchWithRetry(ctx, FetchRequest{
		JobID:     c.job.ID,
		URL:       entry.URL,
		Depth:     entry.Depth,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.RequestTimeout,
	})
	if err != nil {
		telemetry.CountPage("fetch_failed")
		return Page{}, err
	}

	page, err := c.deps.Extract.Extract(entry.URL, resp.Body)
	if err != nil {
		telemetry.CountPage("extract_failed")
		return Page{}, err
	}

	c.setState(StateStoring)
	chunks, err := c.deps.Sink.Store(ctx, c.job.ID, page)
	if err != nil {
		// Discovery continues from the page's links, but a page whose content
		// never landed is not counted; it simply produces no stored event.
		c.logger.Error("content store failed", zap.String("url", page.URL), zap.Error(err))
		telemetry.CountPage("store_failed")
		return page, nil
	}

	c.mu.Lock()
	c.job.Counters.PagesVisited++
	c.job.Counters.ChunksStored += chunks
	c.mu.Unlock()
	telemetry.CountPage("stored")

	c.publish(progress.Event{
		Kind:   progress.KindStored,
		URL:    page.URL,
		Chunks: chunks,
	})
	return page, nil
}

func (c *Coordinator) fetchWithRetry(ctx context.Context, req FetchRequest) (FetchResponse, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := c.deps.Fetcher.Fetch(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !c.deps.Retry.ShouldRetry(err, attempt) {
			return FetchResponse{}, lastErr
		}
		backoff := c.deps.Retry.Backoff(attempt)
		c.logger.Debug("retrying fetch",
			zap.String("url", req.URL), zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff), zap.Error(err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return FetchResponse{}, ctx.Err()
		}
	}
}

// filterLinks publishes the discovery event for a fetched page and scores
// each new link against the intent. Approved links enter the frontier;
// uncertain ones block on a steering verdict.
func (c *Coordinator) filterLinks(ctx context.Context, entry FrontierEntry, page Page) {
	c.mu.Lock()
	budgetSpent := c.scheduled >= c.job.Config.MaxPages
	c.mu.Unlock()
	if budgetSpent {
		return
	}

	c.setState(StateDiscovering)

	job := c.snapshot()
	cfg := job.Config
	depth := entry.Depth + 1
	admitted := make([]FrontierEntry, 0, len(page.Links))
	links := make([]Link, 0, len(page.Links))
	for _, link := range page.Links {
		fe, ok := c.deps.Frontier.Admit(link.URL, depth, entry.URL)
		if !ok {
			continue
		}
		// Robots comes before intent scoring so a disallowed link never
		// spends an oracle call or blocks on a steering verdict.
		if cfg.RespectRobots && !c.deps.Robots.Allowed(ctx, fe.URL, cfg.UserAgent) {
			telemetry.CountPage("robots_denied")
			c.logger.Debug("link disallowed by robots.txt", zap.String("url", fe.URL))
			continue
		}
		admitted = append(admitted, fe)
		links = append(links, link)
	}
	if len(admitted) == 0 {
		return
	}

	urls := make([]string, len(admitted))
	for i, fe := range admitted {
		urls[i] = fe.URL
	}
	c.publish(progress.Event{
		Kind:  progress.KindDiscovered,
		Links: urls,
		Count: len(urls),
	})

	c.setState(StateFiltering)
	intent := job.Intent
	for i, fe := range admitted {
		if ctx.Err() != nil {
			return
		}
		decision := c.deps.Filter.Score(ctx, links[i], entry.URL, intent)
		switch decision.Verdict {
		case VerdictApprove:
			c.deps.Frontier.Enqueue(fe)
		case VerdictEscalate:
			if c.awaitSteering(ctx, fe, decision) {
				c.deps.Frontier.Enqueue(fe)
			}
		case VerdictReject:
			c.logger.Debug("link rejected",
				zap.String("url", fe.URL),
				zap.Float64("score", decision.Score),
				zap.String("rationale", decision.Rationale))
		}
	}
}

// awaitSteering surfaces an uncertain link to the operator and blocks until a
// verdict, the steering deadline (reject), or cancellation.
func (c *Coordinator) awaitSteering(ctx context.Context, fe FrontierEntry, decision LinkDecision) bool {
	c.setState(StateSteeringWait)
	defer c.setState(StateFiltering)

	now := c.deps.Clock.Now()
	req := SteeringRequest{
		JobID:      c.job.ID,
		Link:       fe.URL,
		Reasoning:  decision.Rationale,
		Confidence: decision.Confidence,
		CreatedAt:  now,
		Deadline:   now.Add(c.snapshot().Config.SteeringTimeout),
	}
	c.publish(progress.Event{
		Kind:       progress.KindSteeringNeeded,
		Link:       fe.URL,
		Reasoning:  decision.Rationale,
		Confidence: decision.Confidence,
	})

	approved, err := c.deps.Steerer.Await(ctx, req)
	if err != nil {
		c.logger.Warn("steering aborted", zap.String("link", fe.URL), zap.Error(err))
		return false
	}
	return approved
}

func (c *Coordinator) complete(started time.Time) {
	job := c.finishJob(StateCompleted, "")
	telemetry.CountJob(string(StateCompleted))
	c.publish(progress.Event{
		Kind:        progress.KindCompleted,
		TotalPages:  job.Counters.PagesVisited,
		TotalChunks: job.Counters.ChunksStored,
		Duration:    c.deps.Clock.Now().Sub(started),
	})
	c.logger.Info("job completed",
		zap.Int("pages", job.Counters.PagesVisited),
		zap.Int("chunks", job.Counters.ChunksStored))
}

func (c *Coordinator) cancel(started time.Time) {
	job := c.finishJob(StateCancelled, "")
	telemetry.CountJob(string(StateCancelled))
	c.publish(progress.Event{
		Kind:        progress.KindCancelled,
		TotalPages:  job.Counters.PagesVisited,
		TotalChunks: job.Counters.ChunksStored,
		Duration:    c.deps.Clock.Now().Sub(started),
	})
	c.logger.Info("job cancelled", zap.Int("pages", job.Counters.PagesVisited))
}

func (c *Coordinator) fail(reason string) {
	c.finishJob(StateFailed, reason)
	telemetry.CountJob(string(StateFailed))
	c.publish(progress.Event{
		Kind:  progress.KindFailed,
		Error: reason,
	})
	c.logger.Error("job failed", zap.String("reason", reason))
}

func (c *Coordinator) finishJob(state JobState, errText string) Job {
	now := c.deps.Clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.job.State = state
	c.job.ErrorText = errText
	c.job.Finished = &now
	return c.job
}

func (c *Coordinator) setState(state JobState) {
	c.mu.Lock()
	if !c.job.State.Terminal() {
		c.job.State = state
	}
	c.mu.Unlock()
}

func (c *Coordinator) snapshot() Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.job
}

func (c *Coordinator) progressRatio() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job.Config.MaxPages == 0 {
		return 0
	}
	ratio := float64(c.job.Counters.PagesVisited) / float64(c.job.Config.MaxPages)
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}

func (c *Coordinator) publish(evt progress.Event) {
	if c.deps.Progress == nil {
		return
	}
	evt.JobID = c.job.ID
	evt.TS = c.deps.Clock.Now()
	c.deps.Progress.Publish(c.job.ID, evt)
}
