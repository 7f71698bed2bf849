// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autonote/internal/catalog"
	"github.com/xkilldash9x/autonote/internal/config"
	"github.com/xkilldash9x/autonote/internal/content"
	"github.com/xkilldash9x/autonote/internal/metrics"
	"github.com/xkilldash9x/autonote/internal/ratelimit"
	"github.com/xkilldash9x/autonote/internal/task"
)

// ComponentFactory creates the set of components a command runs against.
type ComponentFactory interface {
	Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error)
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct{}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// Create wires configuration into the catalog, the writer, the publisher factory and the
// executor. A database is only connected when database.url is set.
func (f *concreteFactory) Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	components := &Components{Config: cfg, Metrics: metrics.New()}

	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	retryOpts := RetryOptions(cfg.Retry, logger)

	// 1. Catalog
	catalogLimiter, err := ratelimit.New(cfg.Catalog.RateLimitPerSecond*60,
		ratelimit.WithWaitObserver(components.Metrics.WaitObserver("catalog")))
	if err != nil {
		initializationErr = fmt.Errorf("failed to create catalog rate limiter: %w", err)
		return nil, initializationErr
	}
	components.Metrics.RegisterLimiter("catalog", catalogLimiter)
	cat, err := catalog.NewClient(cfg.Catalog, logger,
		catalog.WithLimiter(catalogLimiter),
		catalog.WithRetry(retryOpts...))
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize catalog client: %w", err)
		return nil, initializationErr
	}
	components.Catalog = cat
	logger.Debug("Catalog client initialized.")

	// 2. LLM and writer
	llm, err := InitializeLLMClient(ctx, cfg.LLM, logger)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	llmLimiter, err := ratelimit.New(cfg.LLM.RateLimitPerMinute,
		ratelimit.WithWaitObserver(components.Metrics.WaitObserver("llm")))
	if err != nil {
		initializationErr = fmt.Errorf("failed to create LLM rate limiter: %w", err)
		return nil, initializationErr
	}
	components.Metrics.RegisterLimiter("llm", llmLimiter)
	writer, err := content.NewGenerator(llm, cfg.LLM, cfg.Content, logger,
		content.WithLimiter(llmLimiter),
		content.WithRetry(retryOpts...),
		content.WithClock(nowIn(cfg.App.Location())))
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize content generator: %w", err)
		return nil, initializationErr
	}
	components.Writer = writer
	logger.Debug("Content generator initialized.", zap.String("model", llm.Model()))

	// 3. Run history
	execOpts := []task.Option{task.WithMetrics(components.Metrics)}
	if cfg.Database.URL != "" {
		pool, runStore, err := InitializeStore(ctx, cfg.Database, logger)
		if err != nil {
			initializationErr = err
			return nil, initializationErr
		}
		components.DBPool = pool
		components.Store = runStore
		execOpts = append(execOpts, task.WithStore(runStore))
		logger.Debug("Run history store initialized.")
	} else {
		logger.Info("No database configured; task run history is disabled.")
	}

	// 4. Publisher factory
	publishers, err := NewPublisherFactory(cfg, logger, components.Metrics)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}

	// 5. Executor
	executor, err := task.NewExecutor(cat, writer, publishers, cfg.Content, logger, execOpts...)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize task executor: %w", err)
		return nil, initializationErr
	}
	components.Executor = executor
	logger.Debug("Task executor initialized.")

	return components, nil
}
