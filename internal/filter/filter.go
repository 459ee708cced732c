// Package filter scores candidate links against a job's stated intent.
package filter

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/agentx-ai/steercrawl/internal/crawl"
	"github.com/agentx-ai/steercrawl/internal/telemetry"
)

// Oracle is the external scoring capability (a language model). It may fail;
// the filter escalates to steering on failure rather than deciding silently.
type Oracle interface {
	Score(ctx context.Context, req ScoreRequest) (ScoreResult, error)
}

// ScoreRequest carries the link plus surrounding context to the oracle.
type ScoreRequest struct {
	URL     string
	Text    string
	PageURL string
	Intent  string
}

// ScoreResult is the oracle's judgment of a link.
type ScoreResult struct {
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// Config holds the verdict thresholds. They are configuration, not constants,
// so tuning does not require a redeploy.
type Config struct {
	HighThreshold float64
	LowThreshold  float64
}

// Filter implements crawl.LinkFilter: cheap local heuristics first, then the
// oracle, mapped onto a three-way verdict by the configured thresholds.
type Filter struct {
	oracle Oracle
	cfg    Config
	logger *zap.Logger
}

// File extensions that never carry crawlable text content.
var skipExtensions = []string{
	".pdf", ".zip", ".tar", ".gz",
	".jpg", ".jpeg", ".png", ".gif", ".svg", ".ico",
	".mp4", ".mp3", ".webm", ".avi",
	".css", ".js", ".woff", ".woff2",
}

// New builds a Filter.
func New(oracle Oracle, cfg Config, logger *zap.Logger) *Filter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HighThreshold == 0 {
		cfg.HighThreshold = 0.8
	}
	if cfg.LowThreshold == 0 {
		cfg.LowThreshold = 0.3
	}
	return &Filter{oracle: oracle, cfg: cfg, logger: logger}
}

// Score implements crawl.LinkFilter.
func (f *Filter) Score(ctx context.Context, link crawl.Link, pageURL, intent string) crawl.LinkDecision {
	if d, decided := f.heuristic(link); decided {
		return d
	}

	if f.oracle == nil {
		return crawl.LinkDecision{
			URL:       link.URL,
			Rationale: "no scoring oracle configured",
			Verdict:   crawl.VerdictEscalate,
		}
	}

	res, err := f.oracle.Score(ctx, ScoreRequest{
		URL:     link.URL,
		Text:    link.Text,
		PageURL: pageURL,
		Intent:  intent,
	})
	if err != nil {
		telemetry.CountOracleCall("error")
		f.logger.Warn("scoring oracle unavailable; escalating to steering",
			zap.String("url", link.URL), zap.Error(err))
		return crawl.LinkDecision{
			URL:       link.URL,
			Rationale: fmt.Sprintf("scoring unavailable: %v", err),
			Verdict:   crawl.VerdictEscalate,
		}
	}
	telemetry.CountOracleCall("ok")

	confidence := res.Confidence
	if sameHost(link.URL, pageURL) && confidence < 0.9 {
		// Same-site links get a confidence floor; the site under crawl is
		// presumed on-topic more often than off-site references.
		confidence = 0.9
	}

	decision := crawl.LinkDecision{
		URL:        link.URL,
		Score:      clamp01(res.Score),
		Confidence: clamp01(confidence),
		Rationale:  res.Rationale,
	}
	switch {
	case decision.Score >= f.cfg.HighThreshold:
		decision.Verdict = crawl.VerdictApprove
	case decision.Score <= f.cfg.LowThreshold:
		decision.Verdict = crawl.VerdictReject
	default:
		decision.Verdict = crawl.VerdictEscalate
	}
	return decision
}

// heuristic resolves links that never need the oracle.
func (f *Filter) heuristic(link crawl.Link) (crawl.LinkDecision, bool) {
	lower := strings.ToLower(link.URL)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return crawl.LinkDecision{
			URL:        link.URL,
			Confidence: 1,
			Rationale:  "non-HTTP link",
			Verdict:    crawl.VerdictReject,
		}, true
	}
	trimmed := lower
	if u, err := url.Parse(link.URL); err == nil {
		trimmed = strings.ToLower(u.Path)
	}
	for _, ext := range skipExtensions {
		if strings.HasSuffix(trimmed, ext) {
			return crawl.LinkDecision{
				URL:        link.URL,
				Confidence: 1,
				Rationale:  "binary/media file",
				Verdict:    crawl.VerdictReject,
			}, true
		}
	}
	return crawl.LinkDecision{}, false
}

func sameHost(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	return ua.Hostname() != "" && strings.EqualFold(ua.Hostname(), ub.Hostname())
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
