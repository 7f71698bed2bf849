package content_test

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/autonote/api/schemas"
	"github.com/xkilldash9x/autonote/internal/config"
	"github.com/xkilldash9x/autonote/internal/content"
	"github.com/xkilldash9x/autonote/internal/llmclient"
	"github.com/xkilldash9x/autonote/internal/ratelimit"
	"github.com/xkilldash9x/autonote/internal/retry"
)

// MockLLMClient mocks llmclient.Client.
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Generate(ctx context.Context, req llmclient.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Model() string { return "gpt-4" }

var (
	fixedNow = time.Date(2024, time.May, 10, 9, 0, 0, 0, time.FixedZone("JST", 9*60*60))
	noSleep  = retry.WithSleep(func(context.Context, time.Duration) error { return nil })

	product = schemas.Product{
		ASIN:         "B0000000A1",
		Title:        "オーク材のトレイ",
		Price:        "¥2,480",
		Rating:       4.6,
		ReviewCount:  210,
		Category:     "Home",
		Description:  "無垢材のトレイ",
		Features:     []string{"天然木", "手仕上げ"},
		AffiliateURL: "https://www.amazon.co.jp/dp/B0000000A1?tag=autonote-22",
	}
)

const fencedResponse = "```markdown\n# 朝のデスクとオーク材のトレイ\n\n朝はコーヒーから。\n\nオーク材のトレイを置いてみました。\n\n---\n※この記事に含まれるリンクはAmazonアソシエイトリンクです\n```"

func newGenerator(t *testing.T, llm *MockLLMClient, opts ...content.Option) *content.Generator {
	t.Helper()
	cfg := config.NewDefaultConfig()
	base := []content.Option{
		content.WithClock(func() time.Time { return fixedNow }),
		content.WithRetry(retry.WithMaxAttempts(3), noSleep),
		content.WithRand(rand.New(rand.NewSource(7))),
	}
	g, err := content.NewGenerator(llm, cfg.LLM, cfg.Content, zaptest.NewLogger(t), append(base, opts...)...)
	require.NoError(t, err)
	return g
}

func TestNewGenerator_InvalidRateLimit(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.LLM.RateLimitPerMinute = 0
	_, err := content.NewGenerator(&MockLLMClient{}, cfg.LLM, cfg.Content, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, ratelimit.ErrInvalidCeiling)
}

func TestGenerateProductArticle(t *testing.T) {
	llm := &MockLLMClient{}
	llm.On("Generate", mock.Anything, mock.MatchedBy(func(req llmclient.Request) bool {
		return strings.Contains(req.SystemPrompt, "キャラクター設定") &&
			strings.Contains(req.UserPrompt, "今日（2024年05月10日）") &&
			strings.Contains(req.UserPrompt, "- **特徴**: 天然木, 手仕上げ") &&
			strings.Contains(req.UserPrompt, "新生活に向けて") &&
			req.MaxTokens == 1500 &&
			req.Temperature == 0.7 &&
			req.PresencePenalty == 0.1 &&
			req.FrequencyPenalty == 0.1
	})).Return(fencedResponse, nil).Once()

	g := newGenerator(t, llm)
	article, err := g.GenerateProductArticle(context.Background(), product, content.Options{})
	require.NoError(t, err)
	llm.AssertExpectations(t)

	assert.Equal(t, "朝のデスクとオーク材のトレイ", article.Title)
	assert.True(t, strings.HasPrefix(article.Content,
		"朝はコーヒーから。\n[オーク材のトレイ](https://www.amazon.co.jp/dp/B0000000A1?tag=autonote-22)を置いてみました。\n"))
	assert.True(t, strings.HasSuffix(article.Content, "---\n※この記事に含まれるリンクはAmazonアソシエイトリンクです"))
	// The model's own disclosure is dropped; only the appended one remains.
	assert.Equal(t, 1, strings.Count(article.Content, "アソシエイトリンクです"))

	assert.Equal(t, product.Ref(), article.Product)
	assert.Equal(t, fixedNow, article.Metadata.GeneratedAt)
	assert.Equal(t, "1.0", article.Metadata.CharacterVersion)
	assert.Equal(t, "gpt-4", article.Metadata.Model)
	assert.NoError(t, article.Validate())
}

func TestGenerateProductArticle_ThemeInPrompt(t *testing.T) {
	llm := &MockLLMClient{}
	llm.On("Generate", mock.Anything, mock.MatchedBy(func(req llmclient.Request) bool {
		return strings.Contains(req.UserPrompt, "## テーマ\n在宅ワーク")
	})).Return(fencedResponse, nil).Once()

	g := newGenerator(t, llm)
	_, err := g.GenerateProductArticle(context.Background(), product, content.Options{Theme: "在宅ワーク"})
	require.NoError(t, err)
	llm.AssertExpectations(t)
}

func TestGenerateProductArticle_DefaultTitle(t *testing.T) {
	llm := &MockLLMClient{}
	llm.On("Generate", mock.Anything, mock.Anything).Return("タイトルのない本文です。", nil)

	g := newGenerator(t, llm)
	article, err := g.GenerateProductArticle(context.Background(), product, content.Options{})
	require.NoError(t, err)

	assert.Contains(t, []string{
		"オーク材のトレイを使ってみた感想",
		"最近気になっているHomeアイテム",
		"シンプルで使いやすいオーク材のトレイ",
		"デスクまわりに加えた新しいアイテム",
	}, article.Title)
	assert.True(t, strings.HasPrefix(article.Content, "タイトルのない本文です。\n"))
}

func TestGenerateProductArticle_Retries(t *testing.T) {
	llm := &MockLLMClient{}
	transient := errors.New("502 bad gateway")
	llm.On("Generate", mock.Anything, mock.Anything).Return("", transient).Twice()
	llm.On("Generate", mock.Anything, mock.Anything).Return(fencedResponse, nil).Once()

	g := newGenerator(t, llm)
	article, err := g.GenerateProductArticle(context.Background(), product, content.Options{})
	require.NoError(t, err)
	assert.Equal(t, "朝のデスクとオーク材のトレイ", article.Title)
	llm.AssertNumberOfCalls(t, "Generate", 3)
}

func TestGenerateProductArticle_ExhaustedReturnsLastError(t *testing.T) {
	llm := &MockLLMClient{}
	first := errors.New("first")
	last := errors.New("last")
	llm.On("Generate", mock.Anything, mock.Anything).Return("", first).Twice()
	llm.On("Generate", mock.Anything, mock.Anything).Return("", last).Once()

	g := newGenerator(t, llm)
	_, err := g.GenerateProductArticle(context.Background(), product, content.Options{})
	assert.ErrorIs(t, err, last)
	assert.NotErrorIs(t, err, first)
}

func TestGenerateProductArticle_LimiterHonoursContext(t *testing.T) {
	llm := &MockLLMClient{}
	limiter, err := ratelimit.New(1)
	require.NoError(t, err)
	require.NoError(t, limiter.Admit(context.Background()))

	g := newGenerator(t, llm, content.WithLimiter(limiter))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = g.GenerateProductArticle(ctx, product, content.Options{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	llm.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestGenerateMultiProductArticle(t *testing.T) {
	second := schemas.Product{ASIN: "B0000000B2", Title: "真鍮のフック", Price: "¥980", AffiliateURL: "https://www.amazon.co.jp/dp/B0000000B2?tag=autonote-22"}

	t.Run("Empty product list", func(t *testing.T) {
		g := newGenerator(t, &MockLLMClient{})
		_, err := g.GenerateMultiProductArticle(context.Background(), nil, "")
		assert.ErrorIs(t, err, content.ErrNoProducts)
	})

	t.Run("Appends product list", func(t *testing.T) {
		llm := &MockLLMClient{}
		llm.On("Generate", mock.Anything, mock.MatchedBy(func(req llmclient.Request) bool {
			return req.MaxTokens == 2000 &&
				strings.Contains(req.UserPrompt, "「おすすめアイテム」というテーマ") &&
				strings.Contains(req.UserPrompt, "1. **オーク材のトレイ** (¥2,480) - 無垢材のトレイ") &&
				strings.Contains(req.UserPrompt, "2. **真鍮のフック** (¥980)")
		})).Return(fencedResponse, nil).Once()

		g := newGenerator(t, llm)
		article, err := g.GenerateMultiProductArticle(context.Background(), []schemas.Product{product, second}, "")
		require.NoError(t, err)
		llm.AssertExpectations(t)

		assert.Equal(t, product.Ref(), article.Product)
		assert.True(t, strings.HasSuffix(article.Content,
			"\n\n## 紹介した商品\n"+
				"- [オーク材のトレイ](https://www.amazon.co.jp/dp/B0000000A1?tag=autonote-22)\n"+
				"- [真鍮のフック](https://www.amazon.co.jp/dp/B0000000B2?tag=autonote-22)"))
	})
}
