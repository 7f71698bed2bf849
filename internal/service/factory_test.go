package service

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestConcreteFactory_Create(t *testing.T) {
	t.Run("WiresComponentsWithoutDatabase", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		cfg := testConfig(t)

		components, err := NewComponentFactory().Create(context.Background(), cfg, zap.New(core))
		require.NoError(t, err)
		t.Cleanup(components.Shutdown)

		assert.NotNil(t, components.Catalog)
		assert.NotNil(t, components.Writer)
		assert.NotNil(t, components.Executor)
		assert.NotNil(t, components.Metrics)
		assert.Nil(t, components.Store)
		assert.Nil(t, components.DBPool)
		assert.Same(t, cfg, components.Config)
		assert.Equal(t, 1, logs.FilterMessage("No database configured; task run history is disabled.").Len())

		limiters, err := testutil.GatherAndCount(components.Metrics.Registry(), "autonote_ratelimit_ceiling")
		require.NoError(t, err)
		assert.Equal(t, 2, limiters, "catalog and llm limiters are exported")
	})

	t.Run("UnsupportedProvider", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.LLM.Provider = "anthropic-local"

		_, err := NewComponentFactory().Create(context.Background(), cfg, zaptest.NewLogger(t))
		assert.ErrorContains(t, err, "failed to initialize LLM client")
	})

	t.Run("InvalidCatalogRate", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Catalog.RateLimitPerSecond = 0

		_, err := NewComponentFactory().Create(context.Background(), cfg, zaptest.NewLogger(t))
		assert.ErrorContains(t, err, "catalog rate limiter")
	})

	t.Run("InvalidDatabaseURL", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Database.URL = "postgres://%zz"

		_, err := NewComponentFactory().Create(context.Background(), cfg, zaptest.NewLogger(t))
		assert.ErrorContains(t, err, "unable to parse PGX pool config")
	})
}
