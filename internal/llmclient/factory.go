// File: internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
	"github.com/xkilldash9x/explorer-cli/internal/config"
)

// NewClient builds the LLM transport selected by cfg.Provider, wrapped in a
// FailoverRouter when cfg.FallbackProvider is set. Provider "none" yields a
// nil client and no error.
func NewClient(ctx context.Context, cfg config.OracleConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	primary, err := newProviderClient(ctx, cfg.Provider, cfg, logger)
	if err != nil || primary == nil {
		return nil, err
	}
	if cfg.FallbackProvider == "" || cfg.FallbackProvider == config.ProviderNone {
		return primary, nil
	}
	secondary, err := newProviderClient(ctx, cfg.FallbackProvider, cfg, logger)
	if err != nil {
		_ = primary.Close()
		return nil, fmt.Errorf("fallback provider: %w", err)
	}
	return NewFailoverRouter(logger, primary, secondary)
}

func newProviderClient(ctx context.Context, provider config.OracleProvider, cfg config.OracleConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch provider {
	case config.ProviderOllama:
		return NewOllamaClient(cfg, logger)
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg, "", logger)
	case config.ProviderNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s, %s]",
			provider, config.ProviderOllama, config.ProviderGemini, config.ProviderNone)
	}
}
