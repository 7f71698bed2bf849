// File: internal/service/initializers.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autonote/internal/browser"
	"github.com/xkilldash9x/autonote/internal/config"
	"github.com/xkilldash9x/autonote/internal/llmclient"
	"github.com/xkilldash9x/autonote/internal/metrics"
	"github.com/xkilldash9x/autonote/internal/publisher"
	"github.com/xkilldash9x/autonote/internal/retry"
	"github.com/xkilldash9x/autonote/internal/store"
	"github.com/xkilldash9x/autonote/internal/task"
)

// RetryOptions translates the retry section into retry options shared by every client.
func RetryOptions(cfg config.RetryConfig, logger *zap.Logger) []retry.Option {
	return []retry.Option{
		retry.WithMaxAttempts(cfg.MaxAttempts),
		retry.WithBaseDelay(cfg.BaseDelay),
		retry.WithMaxDelay(cfg.MaxDelay),
		retry.WithLogger(logger),
	}
}

// InitializeLLMClient creates a new LLM client based on the configuration.
func InitializeLLMClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (llmclient.Client, error) {
	llm, err := llmclient.NewClient(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize LLM client. Article generation will fail.", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	return llm, nil
}

// InitializeStore connects to PostgreSQL and makes sure the run history table exists.
// The caller owns the returned pool.
func InitializeStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, *store.Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
	}
	poolConfig.MaxConns = 4
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	runStore, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize database store: %w", err)
	}
	if err := runStore.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pool, runStore, nil
}

// SessionConfig maps the browser and note sections onto a browser session configuration.
func SessionConfig(cfg *config.Config, logger *zap.Logger) browser.SessionConfig {
	sel := cfg.Note.Selectors
	return browser.SessionConfig{
		Launch: browser.LaunchOptions{
			UserAgent:      cfg.Browser.UserAgent,
			ViewportWidth:  cfg.Browser.ViewportWidth,
			ViewportHeight: cfg.Browser.ViewportHeight,
			Headless:       cfg.Browser.Headless,
			ExecPath:       cfg.Browser.ExecPath,
			Args:           cfg.Browser.Args,
			LaunchTimeout:  cfg.Browser.LaunchTimeout,
			ActionTimeout:  cfg.Browser.ActionTimeout,
			NavTimeout:     cfg.Browser.NavigationTimeout,
		},
		LoginURL: cfg.Note.LoginURL,
		Selectors: browser.LoginSelectors{
			Email:              sel.Email,
			Password:           sel.Password,
			Submit:             sel.Submit,
			AuthMarker:         sel.AuthMarker,
			InvalidCredentials: sel.InvalidCredentials,
		},
		AuthTimeout: cfg.Note.AuthTimeout,
		Retry:       RetryOptions(cfg.Retry, logger),
		OnTransition: func(from, to browser.State) {
			logger.Debug("Browser session transition", zap.Stringer("from", from), zap.Stringer("to", to))
		},
	}
}

// NewPublisherFactory returns a factory that opens a fresh browser session per call.
func NewPublisherFactory(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (task.PublisherFactory, error) {
	shotDir, err := homedir.Expand(cfg.Browser.ScreenshotDir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand screenshot directory %q: %w", cfg.Browser.ScreenshotDir, err)
	}
	launcher := browser.NewChromeLauncher(logger)
	sessionCfg := SessionConfig(cfg, logger)
	now := nowIn(cfg.App.Location())

	opts := []publisher.Option{
		publisher.WithRetry(RetryOptions(cfg.Retry, logger)...),
		publisher.WithClock(now),
	}
	if shotDir != "" {
		opts = append(opts, publisher.WithScreenshotDir(shotDir))
	}
	if m != nil {
		opts = append(opts, publisher.WithResultObserver(m.RecordPublication))
	}

	return func() (task.Publisher, error) {
		session := browser.NewSession(launcher, sessionCfg, logger)
		return publisher.New(session, cfg.Note, logger, opts...), nil
	}, nil
}

func nowIn(loc *time.Location) func() time.Time {
	return func() time.Time { return time.Now().In(loc) }
}
