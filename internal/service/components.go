// File: internal/service/components.go
package service

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xkilldash9x/autonote/internal/catalog"
	"github.com/xkilldash9x/autonote/internal/config"
	"github.com/xkilldash9x/autonote/internal/content"
	"github.com/xkilldash9x/autonote/internal/metrics"
	"github.com/xkilldash9x/autonote/internal/observability"
	"github.com/xkilldash9x/autonote/internal/store"
	"github.com/xkilldash9x/autonote/internal/task"
)

// Components holds every initialized service the commands and the HTTP server need.
type Components struct {
	Config   *config.Config
	Metrics  *metrics.Metrics
	Catalog  *catalog.Client
	Writer   *content.Generator
	Executor *task.Executor

	// Store and DBPool are nil when no database is configured.
	Store  *store.Store
	DBPool *pgxpool.Pool
}

// Shutdown releases the resources owned by the components. Browser sessions are owned by
// the task runs that open them and are already closed by the time this runs.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	if c.DBPool != nil {
		c.DBPool.Close()
		logger.Debug("Database connection pool closed.")
	}
	logger.Info("All components shut down successfully.")
}
