package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentx-ai/steercrawl/internal/progress"
)

// PrometheusSink exports crawl progress metrics via Prometheus. It owns all
// collectors for jobs running/finished, discovery volume, and steering
// escalations.
type PrometheusSink struct {
	jobsFinished *prometheus.CounterVec
	jobsRunning  prometheus.Gauge
	jobRuntime   *prometheus.HistogramVec

	linksDiscovered prometheus.Counter
	pagesStored     prometheus.Counter
	chunksStored    prometheus.Counter
	steeringNeeded  prometheus.Counter

	tracker *jobTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steercrawl_progress_jobs_finished_total",
			Help: "Jobs that reached a terminal state partitioned by result.",
		}, []string{"result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "steercrawl_progress_jobs_running",
			Help: "Current number of jobs with an open progress stream.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "steercrawl_progress_job_runtime_seconds",
			Help:    "Wall time per finished job.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"result"}),
		linksDiscovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steercrawl_progress_links_discovered_total",
			Help: "Links surfaced by discovery events.",
		}),
		pagesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steercrawl_progress_pages_stored_total",
			Help: "Pages whose content reached storage.",
		}),
		chunksStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steercrawl_progress_chunks_stored_total",
			Help: "Content chunks written by stored events.",
		}),
		steeringNeeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steercrawl_progress_steering_needed_total",
			Help: "Steering escalations surfaced to operators.",
		}),
		tracker: newJobTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsFinished,
		s.jobsRunning,
		s.jobRuntime,
		s.linksDiscovered,
		s.pagesStored,
		s.chunksStored,
		s.steeringNeeded,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	if s.tracker.start(evt.JobID) {
		s.jobsRunning.Inc()
	}
	switch evt.Kind {
	case progress.KindDiscovered:
		s.linksDiscovered.Add(float64(evt.Count))
	case progress.KindStored:
		s.pagesStored.Inc()
		s.chunksStored.Add(float64(evt.Chunks))
	case progress.KindSteeringNeeded:
		s.steeringNeeded.Inc()
	case progress.KindCompleted, progress.KindFailed, progress.KindCancelled:
		s.handleTerminal(evt)
	}
}

func (s *PrometheusSink) handleTerminal(evt progress.Event) {
	result := string(evt.Kind)
	s.jobsFinished.WithLabelValues(result).Inc()
	if evt.Duration > 0 {
		s.jobRuntime.WithLabelValues(result).Observe(evt.Duration.Seconds())
	}
	if s.tracker.complete(evt.JobID) {
		s.jobsRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type jobTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newJobTracker() *jobTracker {
	return &jobTracker{running: make(map[string]struct{})}
}

func (t *jobTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *jobTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
