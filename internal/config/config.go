// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/agentx-ai/steercrawl/internal/crawl"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Oracle  OracleConfig  `mapstructure:"oracle"`
	Filter  FilterConfig  `mapstructure:"filter"`
	Sink    SinkConfig    `mapstructure:"sink"`
	Robots  RobotsConfig  `mapstructure:"robots"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// CrawlConfig holds the per-job defaults applied to incoming crawl requests.
type CrawlConfig struct {
	MaxDepthDefault  int           `mapstructure:"max_depth_default"`
	MaxPagesDefault  int           `mapstructure:"max_pages_default"`
	DelayDefault     time.Duration `mapstructure:"delay_default"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	RespectRobots    bool          `mapstructure:"respect_robots"`
	UserAgent        string        `mapstructure:"user_agent"`
	FetchConcurrency int           `mapstructure:"fetch_concurrency"`
	SteeringTimeout  time.Duration `mapstructure:"steering_timeout"`
}

// OracleConfig configures the LLM used for link scoring.
type OracleConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// FilterConfig sets the auto-approve/auto-reject score thresholds.
type FilterConfig struct {
	HighThreshold float64 `mapstructure:"high_threshold"`
	LowThreshold  float64 `mapstructure:"low_threshold"`
}

// SinkConfig governs content chunking and persistence.
type SinkConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
}

// RobotsConfig tunes the shared robots.txt cache.
type RobotsConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// DBConfig controls access to Postgres. An empty DSN keeps everything
// in memory.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// PubSubConfig holds metadata for progress event export. An empty project
// disables it.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment. path may be empty, in which
// case defaults plus STEERCRAWL_* environment variables apply.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STEERCRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("crawl.max_depth_default", 3)
	v.SetDefault("crawl.max_pages_default", 50)
	v.SetDefault("crawl.delay_default", "1s")
	v.SetDefault("crawl.request_timeout", "30s")
	v.SetDefault("crawl.respect_robots", true)
	v.SetDefault("crawl.user_agent", "steercrawl/1.0 (+https://github.com/agentx-ai/steercrawl)")
	v.SetDefault("crawl.fetch_concurrency", 1)
	v.SetDefault("crawl.steering_timeout", "60s")
	// Secrets and endpoints default empty so their env bindings resolve.
	v.SetDefault("oracle.api_key", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("oracle.model", "claude-3-5-haiku-20241022")
	v.SetDefault("oracle.max_tokens", 512)
	v.SetDefault("oracle.temperature", 0.0)
	v.SetDefault("filter.high_threshold", 0.8)
	v.SetDefault("filter.low_threshold", 0.3)
	v.SetDefault("sink.chunk_size", 512)
	v.SetDefault("sink.chunk_overlap", 50)
	v.SetDefault("robots.cache_ttl", "30m")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if err := c.JobDefaults().Validate(); err != nil {
		return fmt.Errorf("crawl defaults: %w", err)
	}
	if c.Filter.HighThreshold <= c.Filter.LowThreshold {
		return fmt.Errorf("filter.high_threshold must exceed filter.low_threshold")
	}
	if c.Filter.HighThreshold > 1 || c.Filter.LowThreshold < 0 {
		return fmt.Errorf("filter thresholds must stay within [0,1]")
	}
	if c.Sink.ChunkSize <= 0 {
		return fmt.Errorf("sink.chunk_size must be > 0")
	}
	if c.Sink.ChunkOverlap < 0 || c.Sink.ChunkOverlap >= c.Sink.ChunkSize {
		return fmt.Errorf("sink.chunk_overlap must be in [0, chunk_size)")
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is")
	}
	return nil
}

// JobDefaults converts the crawl section into the per-job config applied to
// requests that omit fields.
func (c Config) JobDefaults() crawl.JobConfig {
	return crawl.JobConfig{
		MaxDepth:         c.Crawl.MaxDepthDefault,
		MaxPages:         c.Crawl.MaxPagesDefault,
		Delay:            c.Crawl.DelayDefault,
		RequestTimeout:   c.Crawl.RequestTimeout,
		RespectRobots:    c.Crawl.RespectRobots,
		UserAgent:        c.Crawl.UserAgent,
		FetchConcurrency: c.Crawl.FetchConcurrency,
		SteeringTimeout:  c.Crawl.SteeringTimeout,
	}
}
