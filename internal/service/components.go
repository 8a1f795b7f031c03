// File: internal/service/components.go
package service

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
	"github.com/xkilldash9x/explorer-cli/internal/memory"
	"github.com/xkilldash9x/explorer-cli/internal/store"
)

// Components holds the resources shared by every agent instance of a run.
// Per-instance resources (browser, reporter, discovery) are owned by the
// orchestrator that uses them.
type Components struct {
	Memory    *memory.Store
	Store     *store.Store
	LLMClient schemas.LLMClient

	storeCleanup func()
}

// Shutdown releases the shared resources. It is safe on a partially built value.
func (c *Components) Shutdown(logger *zap.Logger) {
	logger.Debug("Beginning components shutdown sequence.")

	if c.LLMClient != nil {
		if err := c.LLMClient.Close(); err != nil {
			logger.Warn("Error closing LLM client.", zap.Error(err))
		}
		c.LLMClient = nil
	}

	if c.storeCleanup != nil {
		c.storeCleanup()
		c.storeCleanup = nil
	}

	logger.Debug("All shared components shut down.")
}
