// internal/task/executor.go
package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autonote/api/schemas"
	"github.com/xkilldash9x/autonote/internal/catalog"
	"github.com/xkilldash9x/autonote/internal/config"
	"github.com/xkilldash9x/autonote/internal/content"
	"github.com/xkilldash9x/autonote/internal/metrics"
)

// Catalog finds products to write about.
type Catalog interface {
	GetStylishProducts(ctx context.Context, limit int) ([]schemas.Product, error)
	GetProductDetails(ctx context.Context, asin string) (schemas.Product, error)
}

// Writer turns products into articles.
type Writer interface {
	GenerateProductArticle(ctx context.Context, p schemas.Product, opts content.Options) (schemas.Article, error)
	GenerateMultiProductArticle(ctx context.Context, products []schemas.Product, theme string) (schemas.Article, error)
}

// Publisher is a single browser-backed publishing session.
type Publisher interface {
	CheckPostingLimits(ctx context.Context) schemas.PostingLimitCheck
	PostArticle(ctx context.Context, article schemas.Article, opts schemas.PublishOptions) (*schemas.PublicationResult, error)
	GetArticleList(ctx context.Context, limit int) ([]schemas.ArticleEntry, error)
	VerifyLogin(ctx context.Context) error
	Close() error
}

// PublisherFactory opens a fresh publishing session. Each task run owns the one it opens.
type PublisherFactory func() (Publisher, error)

// RunStore persists task run history.
type RunStore interface {
	RecordRun(ctx context.Context, run schemas.TaskRun) error
	RecentRuns(ctx context.Context, limit int) ([]schemas.TaskRun, error)
}

// Check names reported by the health-check task.
const (
	CheckCatalog = "amazonAPI"
	CheckLLM     = "openaiAPI"
	CheckLogin   = "noteLogin"
)

// DefaultHistoryLimit is used when History is called with a non-positive limit.
const DefaultHistoryLimit = 10

// healthProbeProduct is the synthetic product used to exercise the LLM during health checks.
var healthProbeProduct = schemas.Product{
	Title:       "Test Product",
	Description: "Test Description",
	Price:       "¥1,000",
	Features:    []string{"Test feature"},
}

// Executor runs the named tasks against the catalog, the writer and a publisher.
type Executor struct {
	catalog    Catalog
	writer     Writer
	publishers PublisherFactory
	cfg        config.ContentConfig
	store      RunStore
	metrics    *metrics.Metrics
	now        func() time.Time
	logger     *zap.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithStore persists every run. Store failures are logged and never fail a task.
func WithStore(s RunStore) Option {
	return func(e *Executor) { e.store = s }
}

// WithMetrics records run counts and durations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// NewExecutor wires an executor. Catalog, writer and publisher factory are required.
func NewExecutor(cat Catalog, writer Writer, publishers PublisherFactory, cfg config.ContentConfig, logger *zap.Logger, opts ...Option) (*Executor, error) {
	if cat == nil || writer == nil || publishers == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize task executor with nil dependencies")
	}
	e := &Executor{
		catalog:    cat,
		writer:     writer,
		publishers: publishers,
		cfg:        cfg,
		now:        time.Now,
		logger:     logger.Named("task"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Execute dispatches req to the named task. A nil error with a failed status never
// happens: failures come back as errors and are still recorded as failed runs.
func (e *Executor) Execute(ctx context.Context, req schemas.TaskRequest) (*schemas.TaskResult, error) {
	var run func(context.Context, schemas.TaskOptions) (*schemas.TaskResult, error)
	switch req.Task {
	case schemas.TaskDailyPost:
		run = e.dailyPost
	case schemas.TaskGenerateOnly:
		run = e.generateOnly
	case schemas.TaskHealthCheck:
		run = e.healthCheck
	default:
		return nil, &UnknownTaskError{Task: string(req.Task)}
	}

	started := e.now()
	id := uuid.NewString()
	logger := e.logger.With(zap.String("run_id", id), zap.String("task", string(req.Task)))
	logger.Info("Task started")

	result, err := run(ctx, req.Options)
	finished := e.now()

	record := schemas.TaskRun{ID: id, Task: req.Task, StartedAt: started, FinishedAt: finished}
	if err != nil {
		record.Status = schemas.StatusFailed
		record.Error = err.Error()
		logger.Error("Task failed", zap.Duration("duration", finished.Sub(started)), zap.Error(err))
	} else {
		result.RunID = id
		result.Task = req.Task
		result.Timestamp = finished
		record.Status = result.Status
		if result.Article != nil {
			record.Title = result.Article.Title
		}
		if result.Publication != nil {
			record.URL = result.Publication.URL
		}
		logger.Info("Task finished", zap.String("status", string(result.Status)), zap.Duration("duration", finished.Sub(started)))
	}

	if e.metrics != nil {
		e.metrics.RecordTask(string(req.Task), string(record.Status), finished.Sub(started))
	}
	e.recordRun(ctx, record)

	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Executor) recordRun(ctx context.Context, run schemas.TaskRun) {
	if e.store == nil {
		return
	}
	if err := e.store.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		e.logger.Warn("Failed to record task run", zap.String("run_id", run.ID), zap.Error(err))
	}
}

// openPublisher opens a session and returns a closer that logs instead of failing.
func (e *Executor) openPublisher() (Publisher, func(), error) {
	pub, err := e.publishers()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open publisher: %w", err)
	}
	return pub, func() {
		if err := pub.Close(); err != nil {
			e.logger.Warn("Failed to close publisher", zap.Error(err))
		}
	}, nil
}

func (e *Executor) dailyPost(ctx context.Context, opts schemas.TaskOptions) (*schemas.TaskResult, error) {
	pub, closePub, err := e.openPublisher()
	if err != nil {
		return nil, err
	}
	defer closePub()

	limits := pub.CheckPostingLimits(ctx)
	if !limits.CanPost {
		e.logger.Warn("Daily posting limit reached, skipping", zap.Int("today_post_count", limits.TodayPostCount))
		return &schemas.TaskResult{
			Status:  schemas.StatusSkipped,
			Message: "Daily limit reached",
			Limits:  &limits,
		}, nil
	}

	count := opts.ProductCount
	if count <= 0 {
		count = e.cfg.MaxProductsPerPost
	}
	products, err := e.catalog.GetStylishProducts(ctx, count)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}
	if len(products) == 0 {
		return nil, catalog.ErrNoProducts
	}

	var article schemas.Article
	if opts.MultiProduct && len(products) > 1 {
		article, err = e.writer.GenerateMultiProductArticle(ctx, products, opts.Theme)
	} else {
		e.logger.Info("Selected product", zap.String("asin", products[0].ASIN), zap.String("title", products[0].Title))
		article, err = e.writer.GenerateProductArticle(ctx, products[0], content.Options{Theme: opts.Theme})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to generate article: %w", err)
	}

	publish := schemas.DefaultPublishOptions()
	if opts.PublishNow != nil {
		publish.PublishNow = *opts.PublishNow
	}
	publish.Hashtags = opts.Hashtags
	if len(publish.Hashtags) == 0 {
		publish.Hashtags = e.cfg.DefaultHashtags
	}
	publish.IsPaid = opts.IsPaid
	publish.Price = opts.Price

	publication, err := pub.PostArticle(ctx, article, publish)
	if err != nil {
		return nil, fmt.Errorf("failed to post article: %w", err)
	}

	return &schemas.TaskResult{
		Status:      schemas.StatusSuccess,
		Article:     &article,
		Publication: publication,
	}, nil
}

func (e *Executor) generateOnly(ctx context.Context, opts schemas.TaskOptions) (*schemas.TaskResult, error) {
	products, err := e.catalog.GetStylishProducts(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}
	if len(products) == 0 {
		return nil, catalog.ErrNoProducts
	}

	article, err := e.writer.GenerateProductArticle(ctx, products[0], content.Options{Theme: opts.Theme})
	if err != nil {
		return nil, fmt.Errorf("failed to generate article: %w", err)
	}
	return &schemas.TaskResult{Status: schemas.StatusSuccess, Article: &article}, nil
}

func (e *Executor) healthCheck(ctx context.Context, _ schemas.TaskOptions) (*schemas.TaskResult, error) {
	checks := map[string]bool{CheckCatalog: false, CheckLLM: false, CheckLogin: false}

	if products, err := e.catalog.GetStylishProducts(ctx, 1); err != nil {
		e.logger.Warn("Catalog health check failed", zap.Error(err))
	} else if len(products) == 0 {
		e.logger.Warn("Catalog health check failed", zap.Error(catalog.ErrNoProducts))
	} else {
		checks[CheckCatalog] = true
	}

	if _, err := e.writer.GenerateProductArticle(ctx, healthProbeProduct, content.Options{}); err != nil {
		e.logger.Warn("LLM health check failed", zap.Error(err))
	} else {
		checks[CheckLLM] = true
	}

	if err := e.probeLogin(ctx); err != nil {
		e.logger.Warn("Login health check failed", zap.Error(err))
	} else {
		checks[CheckLogin] = true
	}

	status := schemas.StatusHealthy
	for _, ok := range checks {
		if !ok {
			status = schemas.StatusPartial
			break
		}
	}
	return &schemas.TaskResult{Status: status, Checks: checks}, nil
}

func (e *Executor) probeLogin(ctx context.Context) error {
	pub, err := e.publishers()
	if err != nil {
		return err
	}
	return errors.Join(pub.VerifyLogin(ctx), pub.Close())
}

// GenerateArticle writes an article for productID, or for the top stylish product when
// productID is empty. It returns catalog.ErrProductNotFound when nothing matches.
func (e *Executor) GenerateArticle(ctx context.Context, productID, theme string) (*schemas.Article, *schemas.Product, error) {
	var product schemas.Product
	if productID != "" {
		p, err := e.catalog.GetProductDetails(ctx, productID)
		if err != nil {
			return nil, nil, err
		}
		product = p
	} else {
		products, err := e.catalog.GetStylishProducts(ctx, 1)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to fetch products: %w", err)
		}
		if len(products) == 0 {
			return nil, nil, catalog.ErrProductNotFound
		}
		product = products[0]
	}

	article, err := e.writer.GenerateProductArticle(ctx, product, content.Options{Theme: theme})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate article: %w", err)
	}
	return &article, &product, nil
}

// History is the combined view served by the history endpoint.
type History struct {
	Articles []schemas.ArticleEntry `json:"articles"`
	Runs     []schemas.TaskRun      `json:"runs,omitempty"`
}

// History lists the account's recent articles and, with a store configured, the recent runs.
func (e *Executor) History(ctx context.Context, limit int) (*History, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	pub, closePub, err := e.openPublisher()
	if err != nil {
		return nil, err
	}
	defer closePub()

	articles, err := pub.GetArticleList(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	h := &History{Articles: articles}

	if e.store != nil {
		runs, err := e.store.RecentRuns(ctx, limit)
		if err != nil {
			e.logger.Warn("Failed to read task run history", zap.Error(err))
		} else {
			h.Runs = runs
		}
	}
	return h, nil
}
