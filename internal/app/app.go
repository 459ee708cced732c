// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	clocksys "github.com/agentx-ai/steercrawl/internal/clock/system"
	"github.com/agentx-ai/steercrawl/internal/config"
	"github.com/agentx-ai/steercrawl/internal/crawl"
	"github.com/agentx-ai/steercrawl/internal/extract"
	collyfetcher "github.com/agentx-ai/steercrawl/internal/fetcher/colly"
	"github.com/agentx-ai/steercrawl/internal/filter"
	"github.com/agentx-ai/steercrawl/internal/id/uuid"
	"github.com/agentx-ai/steercrawl/internal/logging"
	"github.com/agentx-ai/steercrawl/internal/manager"
	"github.com/agentx-ai/steercrawl/internal/oracle"
	"github.com/agentx-ai/steercrawl/internal/progress"
	"github.com/agentx-ai/steercrawl/internal/progress/sinks"
	"github.com/agentx-ai/steercrawl/internal/robots"
	"github.com/agentx-ai/steercrawl/internal/sink"
)

// App holds the shared services behind the crawl coordinator: logger,
// progress bus, content store, and the job manager itself. Initialized once
// at startup and closed on shutdown.
type App struct {
	Config  config.Config
	Logger  *zap.Logger
	Bus     *progress.Bus
	Manager *manager.Manager

	pool   *pgxpool.Pool
	pubsub *pubsub.Client
}

// New builds the full service graph from configuration. It fails fast when a
// configured dependency (Postgres, Pub/Sub, the scoring oracle) cannot be
// initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)

	a := &App{Config: cfg, Logger: logger}

	busSinks := []progress.Sink{sinks.NewLogSink(logger.Named("progress"))}
	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		return nil, fmt.Errorf("init prometheus sink: %w", err)
	}
	busSinks = append(busSinks, promSink)

	var chunkStore sink.Store
	if cfg.DB.DSN != "" {
		pool, err := pgxpool.New(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.pool = pool
		chunkStore = sink.NewPostgresStoreWithPool(pool)
		busSinks = append(busSinks, sinks.NewStoreSink(pool, logger.Named("events")))
	} else {
		logger.Info("no database configured; storing content in memory")
		chunkStore = sink.NewMemoryStore()
	}

	if cfg.PubSub.ProjectID != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("connect pubsub: %w", err)
		}
		a.pubsub = client
		busSinks = append(busSinks, sinks.NewPubSubSink(client.Topic(cfg.PubSub.TopicName)))
	}

	a.Bus = progress.NewBus(progress.Config{Logger: logger.Named("bus")}, busSinks...)

	var linkFilter crawl.LinkFilter
	if cfg.Oracle.APIKey != "" {
		scorer, err := oracle.New(oracle.Config{
			APIKey:      cfg.Oracle.APIKey,
			Model:       cfg.Oracle.Model,
			MaxTokens:   cfg.Oracle.MaxTokens,
			Temperature: cfg.Oracle.Temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("init oracle: %w", err)
		}
		linkFilter = filter.New(scorer, filter.Config{
			HighThreshold: cfg.Filter.HighThreshold,
			LowThreshold:  cfg.Filter.LowThreshold,
		}, logger.Named("filter"))
	} else {
		// Without an oracle every non-obvious link escalates to the operator.
		logger.Warn("no oracle api key configured; all uncertain links will escalate")
		linkFilter = filter.New(nil, filter.Config{
			HighThreshold: cfg.Filter.HighThreshold,
			LowThreshold:  cfg.Filter.LowThreshold,
		}, logger.Named("filter"))
	}

	a.Manager = manager.New(manager.Deps{
		Fetcher: collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.Crawl.UserAgent,
			Timeout:   cfg.Crawl.RequestTimeout,
		}),
		Extract: extract.New(),
		Filter:  linkFilter,
		Robots:  robots.NewGate(logger.Named("robots"), robots.WithTTL(cfg.Robots.CacheTTL)),
		Sink:    sink.New(chunkStore, sink.Config{ChunkSize: cfg.Sink.ChunkSize, ChunkOverlap: cfg.Sink.ChunkOverlap}, logger.Named("sink")),
		Bus:     a.Bus,
		IDGen:   uuid.NewGenerator(),
		Clock:   clocksys.New(),
		Logger:  logger.Named("crawl"),
	}, cfg.JobDefaults())

	return a, nil
}

// Close shuts down all held services: running jobs, the progress bus, and
// external connections.
func (a *App) Close(ctx context.Context) {
	if a.Manager != nil {
		if err := a.Manager.Shutdown(ctx); err != nil {
			a.Logger.Warn("manager shutdown incomplete", zap.Error(err))
		}
	}
	if a.Bus != nil {
		if err := a.Bus.Close(ctx); err != nil {
			a.Logger.Warn("progress bus close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.Logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	_ = a.Logger.Sync()
}
