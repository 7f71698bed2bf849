// internal/task/executor_test.go
package task_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/autonote/api/schemas"
	"github.com/xkilldash9x/autonote/internal/catalog"
	"github.com/xkilldash9x/autonote/internal/config"
	"github.com/xkilldash9x/autonote/internal/content"
	"github.com/xkilldash9x/autonote/internal/metrics"
	"github.com/xkilldash9x/autonote/internal/mocks"
	"github.com/xkilldash9x/autonote/internal/task"
)

var jst = time.FixedZone("JST", 9*60*60)

func fixedNow() time.Time { return time.Date(2024, time.May, 10, 9, 0, 0, 0, jst) }

type harness struct {
	Catalog   *mocks.MockCatalog
	Writer    *mocks.MockWriter
	Publisher *mocks.MockPublisher
	Store     *mocks.MockRunStore
	Metrics   *metrics.Metrics
	Opened    int
	OpenErr   error
	Executor  *task.Executor
}

func newHarness(t *testing.T, logger *zap.Logger, withStore bool) *harness {
	t.Helper()
	h := &harness{
		Catalog:   new(mocks.MockCatalog),
		Writer:    new(mocks.MockWriter),
		Publisher: new(mocks.MockPublisher),
		Store:     new(mocks.MockRunStore),
		Metrics:   metrics.New(),
	}
	factory := func() (task.Publisher, error) {
		if h.OpenErr != nil {
			return nil, h.OpenErr
		}
		h.Opened++
		return h.Publisher, nil
	}
	opts := []task.Option{task.WithMetrics(h.Metrics), task.WithClock(fixedNow)}
	if withStore {
		opts = append(opts, task.WithStore(h.Store))
	}

	exec, err := task.NewExecutor(h.Catalog, h.Writer, factory, config.NewDefaultConfig().Content, logger, opts...)
	require.NoError(t, err)
	h.Executor = exec

	t.Cleanup(func() {
		h.Catalog.AssertExpectations(t)
		h.Writer.AssertExpectations(t)
		h.Publisher.AssertExpectations(t)
		h.Store.AssertExpectations(t)
	})
	return h
}

func (h *harness) runs(task, status string) float64 {
	return testutil.ToFloat64(h.Metrics.TaskRuns.WithLabelValues(task, status))
}

func products(asins ...string) []schemas.Product {
	out := make([]schemas.Product, 0, len(asins))
	for _, a := range asins {
		out = append(out, schemas.Product{ASIN: a, Title: "Product " + a, AffiliateURL: "https://www.amazon.co.jp/dp/" + a})
	}
	return out
}

func article(title string) schemas.Article {
	return schemas.Article{Title: title, Content: "本文\n"}
}

func runWith(status schemas.TaskStatus, check func(schemas.TaskRun) bool) interface{} {
	return mock.MatchedBy(func(r schemas.TaskRun) bool {
		return r.ID != "" && r.Status == status && check(r)
	})
}

func TestNewExecutor_RejectsNilDependencies(t *testing.T) {
	_, err := task.NewExecutor(nil, new(mocks.MockWriter), func() (task.Publisher, error) { return nil, nil },
		config.ContentConfig{}, zap.NewNop())
	assert.Error(t, err)
}

func TestExecute_UnknownTask(t *testing.T) {
	h := newHarness(t, zaptest.NewLogger(t), true)

	_, err := h.Executor.Execute(context.Background(), schemas.TaskRequest{Task: "weekly-digest"})
	var unknown *task.UnknownTaskError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "weekly-digest", unknown.Task)
	assert.Zero(t, h.Opened)
}

func TestDailyPost(t *testing.T) {
	ctx := context.Background()
	published := &schemas.PublicationResult{Success: true, URL: "https://note.com/writer/n/n1", Title: "朝のデスク", PostedAt: fixedNow()}

	t.Run("PublishesTopProductWithDefaults", func(t *testing.T) {
		h := newHarness(t, zaptest.NewLogger(t), true)
		h.Publisher.On("CheckPostingLimits", mock.Anything).Return(schemas.PostingLimitCheck{CanPost: true, RecentArticles: []schemas.ArticleEntry{}})
		h.Catalog.On("GetStylishProducts", mock.Anything, 1).Return(products("A1"), nil)
		h.Writer.On("GenerateProductArticle", mock.Anything, products("A1")[0], content.Options{}).Return(article("朝のデスク"), nil)
		h.Publisher.On("PostArticle", mock.Anything, article("朝のデスク"), schemas.PublishOptions{
			PublishNow: true,
			Hashtags:   []string{"シンプル", "おしゃれ", "アイテム"},
		}).Return(published, nil)
		h.Publisher.On("Close").Return(nil).Once()
		h.Store.On("RecordRun", mock.Anything, runWith(schemas.StatusSuccess, func(r schemas.TaskRun) bool {
			return r.Task == schemas.TaskDailyPost && r.Title == "朝のデスク" && r.URL == published.URL
		})).Return(nil).Once()

		result, err := h.Executor.Execute(ctx, schemas.TaskRequest{Task: schemas.TaskDailyPost})
		require.NoError(t, err)
		assert.Equal(t, schemas.StatusSuccess, result.Status)
		assert.Equal(t, schemas.TaskDailyPost, result.Task)
		assert.NotEmpty(t, result.RunID)
		assert.Equal(t, published, result.Publication)
		assert.Equal(t, "朝のデスク", result.Article.Title)
		assert.Equal(t, fixedNow(), result.Timestamp)
		assert.Equal(t, 1, h.Opened)
		assert.Equal(t, 1.0, h.runs("daily-post", "success"))
	})

	t.Run("HonorsOptions", func(t *testing.T) {
		h := newHarness(t, zaptest.NewLogger(t), false)
		draft := false
		h.Publisher.On("CheckPostingLimits", mock.Anything).Return(schemas.PostingLimitCheck{CanPost: true})
		h.Catalog.On("GetStylishProducts", mock.Anything, 2).Return(products("A1", "B2"), nil)
		h.Writer.On("GenerateMultiProductArticle", mock.Anything, products("A1", "B2"), "在宅ワーク").Return(article("在宅ワークの相棒"), nil)
		h.Publisher.On("PostArticle", mock.Anything, article("在宅ワークの相棒"), schemas.PublishOptions{
			PublishNow: false,
			Hashtags:   []string{"デスク"},
			IsPaid:     true,
			Price:      300,
		}).Return(&schemas.PublicationResult{Success: true, Title: "在宅ワークの相棒"}, nil)
		h.Publisher.On("Close").Return(nil).Once()

		result, err := h.Executor.Execute(ctx, schemas.TaskRequest{
			Task: schemas.TaskDailyPost,
			Options: schemas.TaskOptions{
				ProductCount: 2,
				MultiProduct: true,
				PublishNow:   &draft,
				Hashtags:     []string{"デスク"},
				IsPaid:       true,
				Price:        300,
				Theme:        "在宅ワーク",
			},
		})
		require.NoError(t, err)
		assert.Equal(t, schemas.StatusSuccess, result.Status)
	})

	t.Run("SeveralProductsStillFeatureTheTopOne", func(t *testing.T) {
		h := newHarness(t, zaptest.NewLogger(t), false)
		h.Publisher.On("CheckPostingLimits", mock.Anything).Return(schemas.PostingLimitCheck{CanPost: true})
		h.Catalog.On("GetStylishProducts", mock.Anything, 3).Return(products("A1", "B2", "C3"), nil)
		h.Writer.On("GenerateProductArticle", mock.Anything, products("A1")[0], content.Options{}).Return(article("朝のデスク"), nil)
		h.Publisher.On("PostArticle", mock.Anything, article("朝のデスク"), schemas.PublishOptions{
			PublishNow: true,
			Hashtags:   []string{"シンプル", "おしゃれ", "アイテム"},
		}).Return(published, nil)
		h.Publisher.On("Close").Return(nil).Once()

		result, err := h.Executor.Execute(ctx, schemas.TaskRequest{
			Task:    schemas.TaskDailyPost,
			Options: schemas.TaskOptions{ProductCount: 3},
		})
		require.NoError(t, err)
		assert.Equal(t, schemas.StatusSuccess, result.Status)
		h.Writer.AssertNotCalled(t, "GenerateMultiProductArticle", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("SkipsWhenLimitReached", func(t *testing.T) {
		h := newHarness(t, zaptest.NewLogger(t), true)
		limits := schemas.PostingLimitCheck{CanPost: false, TodayPostCount: 1, RecentArticles: []schemas.ArticleEntry{{Title: "今日の記事"}}}
		h.Publisher.On("CheckPostingLimits", mock.Anything).Return(limits)
		h.Publisher.On("Close").Return(nil).Once()
		h.Store.On("RecordRun", mock.Anything, runWith(schemas.StatusSkipped, func(schemas.TaskRun) bool { return true })).Return(nil)

		result, err := h.Executor.Execute(ctx, schemas.TaskRequest{Task: schemas.TaskDailyPost})
		require.NoError(t, err)
		assert.Equal(t, schemas.StatusSkipped, result.Status)
		assert.Equal(t, "Daily limit reached", result.Message)
		require.NotNil(t, result.Limits)
		assert.Equal(t, 1, result.Limits.TodayPostCount)
		h.Catalog.AssertNotCalled(t, "GetStylishProducts", mock.Anything, mock.Anything)
		assert.Equal(t, 1.0, h.runs("daily-post", "skipped"))
	})

	t.Run("NoProducts", func(t *testing.T) {
		h := newHarness(t, zaptest.NewLogger(t), true)
		h.Publisher.On("CheckPostingLimits", mock.Anything).Return(schemas.PostingLimitCheck{CanPost: true})
		h.Catalog.On("GetStylishProducts", mock.Anything, 1).Return([]schemas.Product{}, nil)
		h.Publisher.On("Close").Return(nil).Once()
		h.Store.On("RecordRun", mock.Anything, runWith(schemas.StatusFailed, func(r schemas.TaskRun) bool {
			return r.Error == catalog.ErrNoProducts.Error()
		})).Return(nil)

		_, err := h.Executor.Execute(ctx, schemas.TaskRequest{Task: schemas.TaskDailyPost})
		assert.ErrorIs(t, err, catalog.ErrNoProducts)
		assert.Equal(t, 1.0, h.runs("daily-post", "failed"))
	})

	t.Run("ClosesPublisherWhenPostingFails", func(t *testing.T) {
		h := newHarness(t, zaptest.NewLogger(t), false)
		postErr := errors.New("publish button never appeared")
		h.Publisher.On("CheckPostingLimits", mock.Anything).Return(schemas.PostingLimitCheck{CanPost: true})
		h.Catalog.On("GetStylishProducts", mock.Anything, 1).Return(products("A1"), nil)
		h.Writer.On("GenerateProductArticle", mock.Anything, mock.Anything, mock.Anything).Return(article("記事"), nil)
		h.Publisher.On("PostArticle", mock.Anything, mock.Anything, mock.Anything).Return(nil, postErr)
		h.Publisher.On("Close").Return(errors.New("browser already gone")).Once()

		_, err := h.Executor.Execute(ctx, schemas.TaskRequest{Task: schemas.TaskDailyPost})
		assert.ErrorIs(t, err, postErr)
		assert.ErrorContains(t, err, "failed to post article")
	})

	t.Run("ClosesPublisherWhenGenerationFails", func(t *testing.T) {
		h := newHarness(t, zaptest.NewLogger(t), false)
		genErr := errors.New("rate limited")
		h.Publisher.On("CheckPostingLimits", mock.Anything).Return(schemas.PostingLimitCheck{CanPost: true})
		h.Catalog.On("GetStylishProducts", mock.Anything, 1).Return(products("A1"), nil)
		h.Writer.On("GenerateProductArticle", mock.Anything, mock.Anything, mock.Anything).Return(schemas.Article{}, genErr)
		h.Publisher.On("Close").Return(nil).Once()

		_, err := h.Executor.Execute(ctx, schemas.TaskRequest{Task: schemas.TaskDailyPost})
		assert.ErrorIs(t, err, genErr)
	})

	t.Run("PublisherUnavailable", func(t *testing.T) {
		h := newHarness(t, zaptest.NewLogger(t), false)
		h.OpenErr = errors.New("chrome not found")

		_, err := h.Executor.Execute(ctx, schemas.TaskRequest{Task: schemas.TaskDailyPost})
		assert.ErrorIs(t, err, h.OpenErr)
	})

	t.Run("StoreFailureIsOnlyLogged", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		h := newHarness(t, zap.New(core), true)
		h.Publisher.On("CheckPostingLimits", mock.Anything).Return(schemas.PostingLimitCheck{CanPost: false, TodayPostCount: 2})
		h.Publisher.On("Close").Return(nil)
		h.Store.On("RecordRun", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

		result, err := h.Executor.Execute(ctx, schemas.TaskRequest{Task: schemas.TaskDailyPost})
		require.NoError(t, err)
		assert.Equal(t, schemas.StatusSkipped, result.Status)
		assert.Equal(t, 1, logs.FilterMessage("Failed to record task run").Len())
	})
}

func TestGenerateOnly(t *testing.T) {
	h := newHarness(t, zaptest.NewLogger(t), false)
	h.Catalog.On("GetStylishProducts", mock.Anything, 1).Return(products("A1"), nil)
	h.Writer.On("GenerateProductArticle", mock.Anything, products("A1")[0], content.Options{Theme: "春"}).Return(article("春の一品"), nil)

	result, err := h.Executor.Execute(context.Background(), schemas.TaskRequest{
		Task:    schemas.TaskGenerateOnly,
		Options: schemas.TaskOptions{Theme: "春"},
	})
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusSuccess, result.Status)
	assert.Equal(t, "春の一品", result.Article.Title)
	assert.Nil(t, result.Publication)
	assert.Zero(t, h.Opened, "generate-only must not open a browser")
}

func TestHealthCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("Healthy", func(t *testing.T) {
		h := newHarness(t, zaptest.NewLogger(t), false)
		h.Catalog.On("GetStylishProducts", mock.Anything, 1).Return(products("A1"), nil)
		h.Writer.On("GenerateProductArticle", mock.Anything, mock.MatchedBy(func(p schemas.Product) bool {
			return p.Title == "Test Product"
		}), content.Options{}).Return(article("テスト"), nil)
		h.Publisher.On("VerifyLogin", mock.Anything).Return(nil)
		h.Publisher.On("Close").Return(nil).Once()

		result, err := h.Executor.Execute(ctx, schemas.TaskRequest{Task: schemas.TaskHealthCheck})
		require.NoError(t, err)
		assert.Equal(t, schemas.StatusHealthy, result.Status)
		assert.Equal(t, map[string]bool{task.CheckCatalog: true, task.CheckLLM: true, task.CheckLogin: true}, result.Checks)
		assert.Equal(t, 1.0, h.runs("health-check", "healthy"))
	})

	t.Run("Partial", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		h := newHarness(t, zap.New(core), false)
		h.Catalog.On("GetStylishProducts", mock.Anything, 1).Return([]schemas.Product{}, nil)
		h.Writer.On("GenerateProductArticle", mock.Anything, mock.Anything, mock.Anything).Return(article("テスト"), nil)
		h.Publisher.On("VerifyLogin", mock.Anything).Return(errors.New("authentication failed (invalid_credentials)"))
		h.Publisher.On("Close").Return(nil).Once()

		result, err := h.Executor.Execute(ctx, schemas.TaskRequest{Task: schemas.TaskHealthCheck})
		require.NoError(t, err)
		assert.Equal(t, schemas.StatusPartial, result.Status)
		assert.False(t, result.Checks[task.CheckCatalog])
		assert.True(t, result.Checks[task.CheckLLM])
		assert.False(t, result.Checks[task.CheckLogin])
		assert.Equal(t, 1, logs.FilterMessage("Login health check failed").Len())
	})
}

func TestGenerateArticle(t *testing.T) {
	ctx := context.Background()

	t.Run("ByProductID", func(t *testing.T) {
		h := newHarness(t, zaptest.NewLogger(t), false)
		p := products("B0TEST")[0]
		h.Catalog.On("GetProductDetails", mock.Anything, "B0TEST").Return(p, nil)
		h.Writer.On("GenerateProductArticle", mock.Anything, p, content.Options{Theme: "夏"}).Return(article("夏に"), nil)

		a, got, err := h.Executor.GenerateArticle(ctx, "B0TEST", "夏")
		require.NoError(t, err)
		assert.Equal(t, "夏に", a.Title)
		assert.Equal(t, "B0TEST", got.ASIN)
	})

	t.Run("UnknownProduct", func(t *testing.T) {
		h := newHarness(t, zaptest.NewLogger(t), false)
		h.Catalog.On("GetProductDetails", mock.Anything, "B0NONE").Return(schemas.Product{}, catalog.ErrProductNotFound)

		_, _, err := h.Executor.GenerateArticle(ctx, "B0NONE", "")
		assert.ErrorIs(t, err, catalog.ErrProductNotFound)
	})

	t.Run("NoStylishProducts", func(t *testing.T) {
		h := newHarness(t, zaptest.NewLogger(t), false)
		h.Catalog.On("GetStylishProducts", mock.Anything, 1).Return([]schemas.Product{}, nil)

		_, _, err := h.Executor.GenerateArticle(ctx, "", "")
		assert.ErrorIs(t, err, catalog.ErrProductNotFound)
	})
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	entries := []schemas.ArticleEntry{{Title: "朝のデスク", URL: "https://note.com/writer/n/n1"}}

	t.Run("ArticlesAndRuns", func(t *testing.T) {
		h := newHarness(t, zaptest.NewLogger(t), true)
		runs := []schemas.TaskRun{{ID: "run-1", Task: schemas.TaskDailyPost, Status: schemas.StatusSuccess}}
		h.Publisher.On("GetArticleList", mock.Anything, 10).Return(entries, nil)
		h.Publisher.On("Close").Return(nil).Once()
		h.Store.On("RecentRuns", mock.Anything, 10).Return(runs, nil)

		got, err := h.Executor.History(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, entries, got.Articles)
		assert.Equal(t, runs, got.Runs)
	})

	t.Run("StoreFailureKeepsArticles", func(t *testing.T) {
		h := newHarness(t, zaptest.NewLogger(t), true)
		h.Publisher.On("GetArticleList", mock.Anything, 5).Return(entries, nil)
		h.Publisher.On("Close").Return(nil).Once()
		h.Store.On("RecentRuns", mock.Anything, 5).Return(nil, errors.New("timeout"))

		got, err := h.Executor.History(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, entries, got.Articles)
		assert.Nil(t, got.Runs)
	})

	t.Run("ListFailure", func(t *testing.T) {
		h := newHarness(t, zaptest.NewLogger(t), false)
		h.Publisher.On("GetArticleList", mock.Anything, 10).Return(nil, errors.New("login failed"))
		h.Publisher.On("Close").Return(nil).Once()

		_, err := h.Executor.History(ctx, -1)
		assert.ErrorContains(t, err, "failed to list articles")
	})
}
