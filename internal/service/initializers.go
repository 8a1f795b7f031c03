// File: internal/service/initializers.go
package service

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
	"github.com/xkilldash9x/explorer-cli/internal/config"
	"github.com/xkilldash9x/explorer-cli/internal/llmclient"
	"github.com/xkilldash9x/explorer-cli/internal/memory"
	"github.com/xkilldash9x/explorer-cli/internal/store"
)

// InitializeStore connects to PostgreSQL and prepares the issue tables. The
// returned cleanup closes the pool. A disabled store yields (nil, nil, nil).
func InitializeStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*store.Store, func(), error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}
	if cfg.DSN == "" {
		return nil, nil, fmt.Errorf("store is enabled but no dsn is configured (hint: check EXPLORER_STORE_DSN)")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
	}
	poolConfig.MaxConns = 4
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
	}

	s, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize issue store: %w", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("Issue store connected.")

	cleanup := func() {
		logger.Debug("Closing PostgreSQL connection pool.")
		pool.Close()
	}
	return s, cleanup, nil
}

// InitializeLLMClient builds the client behind the oracle. A nil client with
// a nil error means the oracle is switched off.
func InitializeLLMClient(ctx context.Context, cfg config.OracleConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	client, err := llmclient.NewClient(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize LLM client. The agent will run on its fallback policy only.", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	return client, nil
}

// InitializeMemory opens the navigation memory shared by every instance.
func InitializeMemory(cfg config.MemoryConfig, logger *zap.Logger) (*memory.Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("memory path is not configured")
	}
	if err := config.EnsureDir(filepath.Dir(cfg.Path)); err != nil {
		return nil, err
	}
	mem := memory.New(cfg.Path, logger)
	stats := mem.Stats()
	logger.Info("Navigation memory loaded.",
		zap.String("path", cfg.Path),
		zap.Int("elements", stats.Elements),
		zap.Int("pages", stats.Pages))
	return mem, nil
}
