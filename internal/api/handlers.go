package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/agentx-ai/steercrawl/internal/crawl"
	"github.com/agentx-ai/steercrawl/internal/manager"
)

type startCrawlRequest struct {
	RootURL                string   `json:"root_url"`
	Intent                 string   `json:"intent"`
	MaxDepth               *int     `json:"max_depth"`
	MaxPages               *int     `json:"max_pages"`
	DelaySeconds           *float64 `json:"delay_seconds"`
	RequestTimeoutSeconds  *float64 `json:"request_timeout_seconds"`
	RespectRobots          *bool    `json:"respect_robots"`
	UserAgent              string   `json:"user_agent"`
	FetchConcurrency       *int     `json:"fetch_concurrency"`
	SteeringTimeoutSeconds *float64 `json:"steering_timeout_seconds"`
}

type steerRequest struct {
	Link     string `json:"link"`
	Approved bool   `json:"approved"`
}

// startJob handles POST /v1/crawl. It returns 202 with the job snapshot, 400
// for malformed or out-of-bounds requests.
func (s *Server) startJob(w http.ResponseWriter, r *http.Request) {
	var req startCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.RootURL == "" {
		writeError(s.logger, w, http.StatusBadRequest, "root_url required")
		return
	}
	if req.Intent == "" {
		writeError(s.logger, w, http.StatusBadRequest, "intent required")
		return
	}

	job, err := s.manager.Start(r.Context(), manager.StartRequest{
		RootURL: req.RootURL,
		Intent:  req.Intent,
		Config:  s.toJobConfig(req),
	})
	if err != nil {
		if errors.Is(err, crawl.ErrInvalidConfig) {
			writeError(s.logger, w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("start job failed", zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to start job")
		return
	}
	writeJSON(s.logger, w, http.StatusAccepted, map[string]any{"job": job})
}

// listJobs handles GET /v1/crawl/jobs.
func (s *Server) listJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"jobs": s.manager.List()})
}

// getJob handles GET /v1/crawl/jobs/{job_id}.
func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.manager.Get(chi.URLParam(r, "job_id"))
	if err != nil {
		writeError(s.logger, w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"job": job})
}

// getSteering handles GET /v1/crawl/jobs/{job_id}/steering. It returns the
// pending steering request, or 404 when none is outstanding.
func (s *Server) getSteering(w http.ResponseWriter, r *http.Request) {
	req, pending, err := s.manager.PendingSteering(chi.URLParam(r, "job_id"))
	if err != nil {
		writeError(s.logger, w, http.StatusNotFound, "job not found")
		return
	}
	if !pending {
		writeError(s.logger, w, http.StatusNotFound, "no pending steering request")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"steering": req})
}

// steerJob handles POST /v1/crawl/jobs/{job_id}/steer. A verdict with no
// matching pending request gets 409.
func (s *Server) steerJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	var req steerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Link == "" {
		writeError(s.logger, w, http.StatusBadRequest, "link required")
		return
	}

	err := s.manager.Steer(jobID, req.Link, req.Approved)
	switch {
	case err == nil:
		writeJSON(s.logger, w, http.StatusOK, map[string]any{
			"job_id":   jobID,
			"link":     req.Link,
			"approved": req.Approved,
		})
	case errors.Is(err, crawl.ErrJobNotFound):
		writeError(s.logger, w, http.StatusNotFound, "job not found")
	case errors.Is(err, crawl.ErrNoPendingSteering):
		writeError(s.logger, w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("steer failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to steer job")
	}
}

// cancelJob handles POST /v1/crawl/jobs/{job_id}/cancel.
func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if err := s.manager.Cancel(jobID); err != nil {
		writeError(s.logger, w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{
		"job_id": jobID,
		"state":  string(crawl.StateCancelled),
	})
}

// deleteJob handles DELETE /v1/crawl/jobs/{job_id}.
func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if err := s.manager.Delete(jobID); err != nil {
		writeError(s.logger, w, http.StatusNotFound, "job not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) toJobConfig(req startCrawlRequest) crawl.JobConfig {
	defaults := s.cfg.JobDefaults()
	cfg := crawl.JobConfig{
		MaxDepth:         valueOrDefault(req.MaxDepth, defaults.MaxDepth),
		MaxPages:         valueOrDefault(req.MaxPages, defaults.MaxPages),
		Delay:            durationOrDefault(req.DelaySeconds, defaults.Delay),
		RequestTimeout:   durationOrDefault(req.RequestTimeoutSeconds, defaults.RequestTimeout),
		RespectRobots:    valueOrDefault(req.RespectRobots, defaults.RespectRobots),
		UserAgent:        req.UserAgent,
		FetchConcurrency: valueOrDefault(req.FetchConcurrency, defaults.FetchConcurrency),
		SteeringTimeout:  durationOrDefault(req.SteeringTimeoutSeconds, defaults.SteeringTimeout),
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}
	return cfg
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}

func durationOrDefault(seconds *float64, def time.Duration) time.Duration {
	if seconds == nil {
		return def
	}
	return time.Duration(*seconds * float64(time.Second))
}
