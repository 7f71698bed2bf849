// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/autonote/api/schemas"
	"github.com/xkilldash9x/autonote/internal/content"
	"github.com/xkilldash9x/autonote/internal/task"
)

// -- Catalog Mock --

// MockCatalog mocks the task.Catalog interface.
type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) GetStylishProducts(ctx context.Context, limit int) ([]schemas.Product, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.Product), args.Error(1)
}

func (m *MockCatalog) GetProductDetails(ctx context.Context, asin string) (schemas.Product, error) {
	args := m.Called(ctx, asin)
	return args.Get(0).(schemas.Product), args.Error(1)
}

// -- Writer Mock --

// MockWriter mocks the task.Writer interface.
type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) GenerateProductArticle(ctx context.Context, p schemas.Product, opts content.Options) (schemas.Article, error) {
	args := m.Called(ctx, p, opts)
	return args.Get(0).(schemas.Article), args.Error(1)
}

func (m *MockWriter) GenerateMultiProductArticle(ctx context.Context, products []schemas.Product, theme string) (schemas.Article, error) {
	args := m.Called(ctx, products, theme)
	return args.Get(0).(schemas.Article), args.Error(1)
}

// -- Publisher Mock --

// MockPublisher mocks the task.Publisher interface.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) CheckPostingLimits(ctx context.Context) schemas.PostingLimitCheck {
	return m.Called(ctx).Get(0).(schemas.PostingLimitCheck)
}

func (m *MockPublisher) PostArticle(ctx context.Context, article schemas.Article, opts schemas.PublishOptions) (*schemas.PublicationResult, error) {
	args := m.Called(ctx, article, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.PublicationResult), args.Error(1)
}

func (m *MockPublisher) GetArticleList(ctx context.Context, limit int) ([]schemas.ArticleEntry, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.ArticleEntry), args.Error(1)
}

func (m *MockPublisher) VerifyLogin(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *MockPublisher) Close() error                          { return m.Called().Error(0) }

// -- Run Store Mock --

// MockRunStore mocks the task.RunStore interface.
type MockRunStore struct {
	mock.Mock
}

func (m *MockRunStore) RecordRun(ctx context.Context, run schemas.TaskRun) error {
	return m.Called(ctx, run).Error(0)
}

func (m *MockRunStore) RecentRuns(ctx context.Context, limit int) ([]schemas.TaskRun, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.TaskRun), args.Error(1)
}

// -- Task Runner Mock --

// MockTaskRunner mocks the server.TaskRunner interface.
type MockTaskRunner struct {
	mock.Mock
}

func (m *MockTaskRunner) Execute(ctx context.Context, req schemas.TaskRequest) (*schemas.TaskResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.TaskResult), args.Error(1)
}

func (m *MockTaskRunner) GenerateArticle(ctx context.Context, productID, theme string) (*schemas.Article, *schemas.Product, error) {
	args := m.Called(ctx, productID, theme)
	var article *schemas.Article
	var product *schemas.Product
	if a := args.Get(0); a != nil {
		article = a.(*schemas.Article)
	}
	if p := args.Get(1); p != nil {
		product = p.(*schemas.Product)
	}
	return article, product, args.Error(2)
}

func (m *MockTaskRunner) History(ctx context.Context, limit int) (*task.History, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*task.History), args.Error(1)
}
