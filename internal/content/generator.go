// Package content turns catalog products into publishable articles with a language model.
package content

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autonote/api/schemas"
	"github.com/xkilldash9x/autonote/internal/config"
	"github.com/xkilldash9x/autonote/internal/llmclient"
	"github.com/xkilldash9x/autonote/internal/ratelimit"
	"github.com/xkilldash9x/autonote/internal/retry"
)

// ErrNoProducts is returned when an article is requested for an empty product list.
var ErrNoProducts = errors.New("no products provided")

// multiProductMaxTokens is the completion budget of a multi-product article.
const multiProductMaxTokens = 2000

// Options tune a single article.
type Options struct {
	// Theme is passed to the model as an extra writing direction.
	Theme string
}

// Generator writes articles. It is safe for concurrent use.
type Generator struct {
	llm       llmclient.Client
	limiter   *ratelimit.Limiter
	llmCfg    config.LLMConfig
	cfg       config.ContentConfig
	retryOpts []retry.Option
	now       func() time.Time
	logger    *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Generator.
type Option func(*Generator)

// WithLimiter shares a limiter instead of creating one from llm.rate_limit_per_minute.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(g *Generator) { g.limiter = l }
}

// WithRetry sets the retry policy for model calls.
func WithRetry(opts ...retry.Option) Option {
	return func(g *Generator) { g.retryOpts = opts }
}

// WithClock sets the time source for prompt dates, seasons and metadata.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithRand fixes the source used to pick fallback titles.
func WithRand(rng *rand.Rand) Option {
	return func(g *Generator) { g.rng = rng }
}

// NewGenerator builds a generator over an LLM client.
func NewGenerator(llm llmclient.Client, llmCfg config.LLMConfig, cfg config.ContentConfig, logger *zap.Logger, opts ...Option) (*Generator, error) {
	g := &Generator{
		llm:    llm,
		llmCfg: llmCfg,
		cfg:    cfg,
		now:    time.Now,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		logger: logger.Named("content"),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.limiter == nil {
		l, err := ratelimit.New(llmCfg.RateLimitPerMinute)
		if err != nil {
			return nil, fmt.Errorf("llm rate limiter: %w", err)
		}
		g.limiter = l
	}
	return g, nil
}

// GenerateProductArticle writes an article promoting one product.
func (g *Generator) GenerateProductArticle(ctx context.Context, p schemas.Product, opts Options) (schemas.Article, error) {
	g.logger.Info("Generating article for product", zap.String("asin", p.ASIN), zap.String("title", p.Title))

	now := g.now()
	response, err := g.complete(ctx, "product article", llmclient.Request{
		SystemPrompt:     systemPrompt,
		UserPrompt:       buildProductPrompt(p, opts, now),
		Temperature:      g.llmCfg.Temperature,
		MaxTokens:        g.llmCfg.MaxTokens,
		PresencePenalty:  g.llmCfg.PresencePenalty,
		FrequencyPenalty: g.llmCfg.FrequencyPenalty,
	})
	if err != nil {
		g.logger.Error("Failed to generate article", zap.String("asin", p.ASIN), zap.Error(err))
		return schemas.Article{}, err
	}

	article := g.assemble(response, p, now)
	g.logger.Info("Article generated successfully", zap.String("title", article.Title))
	return article, nil
}

// GenerateMultiProductArticle writes one article introducing several products under a
// theme. The first product supplies the fallback title and the inline link.
func (g *Generator) GenerateMultiProductArticle(ctx context.Context, products []schemas.Product, theme string) (schemas.Article, error) {
	if len(products) == 0 {
		return schemas.Article{}, ErrNoProducts
	}
	if theme == "" {
		theme = g.cfg.MultiProductTheme
	}
	g.logger.Info("Generating multi-product article", zap.Int("products", len(products)), zap.String("theme", theme))

	now := g.now()
	response, err := g.complete(ctx, "multi-product article", llmclient.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   buildMultiProductPrompt(products, theme, now),
		Temperature:  g.llmCfg.Temperature,
		MaxTokens:    multiProductMaxTokens,
	})
	if err != nil {
		g.logger.Error("Failed to generate multi-product article", zap.Error(err))
		return schemas.Article{}, err
	}

	article := g.assemble(response, products[0], now)
	article.Content += productList(products)
	return article, nil
}

// complete admits the call against the model rate limit, then retries it with backoff.
func (g *Generator) complete(ctx context.Context, name string, req llmclient.Request) (string, error) {
	if err := g.limiter.Admit(ctx); err != nil {
		return "", err
	}
	opts := append([]retry.Option{}, g.retryOpts...)
	opts = append(opts, retry.WithName("llm "+name), retry.WithLogger(g.logger))
	return retry.Value(ctx, func(ctx context.Context) (string, error) {
		return g.llm.Generate(ctx, req)
	}, opts...)
}

func (g *Generator) assemble(response string, p schemas.Product, now time.Time) schemas.Article {
	title, body := ParseArticle(response)
	if title == "" {
		title = g.defaultTitle(p)
	}
	return schemas.Article{
		Title:   title,
		Content: InsertAffiliateLink(body, p),
		Product: p.Ref(),
		Metadata: schemas.GenerationMetadata{
			GeneratedAt:      now,
			CharacterVersion: g.cfg.CharacterVersion,
			Model:            g.llm.Model(),
		},
	}
}

func (g *Generator) defaultTitle(p schemas.Product) string {
	titles := defaultTitles(p)
	g.mu.Lock()
	defer g.mu.Unlock()
	return titles[g.rng.Intn(len(titles))]
}
