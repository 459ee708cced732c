// Package oracle implements the link scoring capability on the Anthropic API.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"

	"github.com/agentx-ai/steercrawl/internal/filter"
)

const systemPrompt = `You judge whether a web link is worth crawling for a stated goal.
Consider relevance to the goal, whether the target likely contains useful
content, and whether it looks like documentation, tutorial, or reference
material. Respond only with the requested JSON.`

const scoreSchema = `{
  "name": "link_score",
  "description": "Relevance judgment for a candidate link",
  "schema": {
    "type": "object",
    "properties": {
      "score": {"type": "number", "minimum": 0, "maximum": 1},
      "confidence": {"type": "number", "minimum": 0, "maximum": 1},
      "rationale": {"type": "string"}
    },
    "required": ["score", "confidence", "rationale"],
    "additionalProperties": false
  }
}`

// Config selects the model and sampling settings.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Anthropic scores links with a Claude model through llmkit, using a JSON
// schema so the verdict comes back as structured output.
type Anthropic struct {
	cfg Config
}

// New builds an Anthropic oracle.
func New(cfg Config) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic oracle: api key required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-20241022"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	return &Anthropic{cfg: cfg}, nil
}

// Score implements filter.Oracle.
func (a *Anthropic) Score(ctx context.Context, req filter.ScoreRequest) (filter.ScoreResult, error) {
	if err := ctx.Err(); err != nil {
		return filter.ScoreResult{}, err
	}

	userPrompt := fmt.Sprintf(`Crawl goal: %q

Link URL: %s
Link text: %s
Found on page: %s

Score the link's relevance to the goal from 0 (irrelevant) to 1 (essential).`,
		req.Intent, req.URL, strings.TrimSpace(req.Text), req.PageURL)

	settings := types.RequestSettings{
		Model:       a.cfg.Model,
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
	}
	response, err := anthropic.PromptWithSettings(systemPrompt, userPrompt, scoreSchema, a.cfg.APIKey, settings)
	if err != nil {
		return filter.ScoreResult{}, fmt.Errorf("anthropic prompt: %w", err)
	}
	if len(response.Content) == 0 {
		return filter.ScoreResult{}, fmt.Errorf("anthropic prompt: empty response")
	}

	var result filter.ScoreResult
	if err := json.Unmarshal([]byte(response.Content[0].Text), &result); err != nil {
		return filter.ScoreResult{}, fmt.Errorf("parse score response: %w", err)
	}
	return result, nil
}
