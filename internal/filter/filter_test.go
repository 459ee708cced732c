package filter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/agentx-ai/steercrawl/internal/crawl"
)

type stubOracle struct {
	res ScoreResult
	err error
}

func (s *stubOracle) Score(context.Context, ScoreRequest) (ScoreResult, error) {
	return s.res, s.err
}

func score(t *testing.T, o Oracle, linkURL string) crawl.LinkDecision {
	t.Helper()
	f := New(o, Config{HighThreshold: 0.8, LowThreshold: 0.3}, zap.NewNop())
	return f.Score(context.Background(), crawl.Link{URL: linkURL, Text: "docs"}, "https://a.example/", "docs only")
}

func TestFilterVerdictThresholds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		score float64
		want  crawl.Verdict
	}{
		{name: "high score approves", score: 0.95, want: crawl.VerdictApprove},
		{name: "threshold score approves", score: 0.8, want: crawl.VerdictApprove},
		{name: "low score rejects", score: 0.1, want: crawl.VerdictReject},
		{name: "mid score escalates", score: 0.55, want: crawl.VerdictEscalate},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o := &stubOracle{res: ScoreResult{Score: tc.score, Confidence: 0.9, Rationale: "r"}}
			d := score(t, o, "https://b.example/docs/x")
			assert.Equal(t, tc.want, d.Verdict)
			assert.Equal(t, tc.score, d.Score)
		})
	}
}

func TestFilterOracleFailureEscalates(t *testing.T) {
	t.Parallel()

	o := &stubOracle{err: errors.New("model unavailable")}
	d := score(t, o, "https://b.example/docs/x")
	assert.Equal(t, crawl.VerdictEscalate, d.Verdict)
	assert.Contains(t, d.Rationale, "scoring unavailable")
}

func TestFilterHeuristicRejects(t *testing.T) {
	t.Parallel()

	// The oracle must never be consulted for these.
	o := &stubOracle{err: errors.New("should not be called")}

	d := score(t, o, "ftp://a.example/file")
	assert.Equal(t, crawl.VerdictReject, d.Verdict)
	assert.Equal(t, "non-HTTP link", d.Rationale)

	d = score(t, o, "https://a.example/paper.pdf")
	assert.Equal(t, crawl.VerdictReject, d.Verdict)
	assert.Equal(t, "binary/media file", d.Rationale)

	d = score(t, o, "https://a.example/IMAGE.PNG")
	assert.Equal(t, crawl.VerdictReject, d.Verdict)
}

func TestFilterSameHostConfidenceFloor(t *testing.T) {
	t.Parallel()

	o := &stubOracle{res: ScoreResult{Score: 0.9, Confidence: 0.4}}
	d := score(t, o, "https://a.example/docs/x")
	assert.Equal(t, 0.9, d.Confidence)

	d = score(t, o, "https://elsewhere.example/docs/x")
	assert.Equal(t, 0.4, d.Confidence)
}

func TestFilterClampsOracleOutput(t *testing.T) {
	t.Parallel()

	o := &stubOracle{res: ScoreResult{Score: 1.7, Confidence: -0.2}}
	d := score(t, o, "https://elsewhere.example/x")
	assert.Equal(t, 1.0, d.Score)
	assert.Equal(t, 0.0, d.Confidence)
}
