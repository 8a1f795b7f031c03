// File: internal/llmclient/router.go
package llmclient

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
)

// FailoverRouter sends every request to the primary client and retries on
// the secondary when the primary fails. Context errors are not retried.
type FailoverRouter struct {
	logger    *zap.Logger
	primary   schemas.LLMClient
	secondary schemas.LLMClient
}

// NewFailoverRouter requires both clients.
func NewFailoverRouter(logger *zap.Logger, primary, secondary schemas.LLMClient) (*FailoverRouter, error) {
	if primary == nil || secondary == nil {
		return nil, fmt.Errorf("both primary and secondary clients must be provided")
	}
	return &FailoverRouter{logger: logger.Named("llm_router"), primary: primary, secondary: secondary}, nil
}

// Generate tries the primary, then the secondary.
func (r *FailoverRouter) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	out, err := r.primary.Generate(ctx, req)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return "", err
	}
	r.logger.Debug("Primary LLM failed, routing to secondary.", zap.Error(err))
	out, secErr := r.secondary.Generate(ctx, req)
	if secErr != nil {
		return "", errors.Join(fmt.Errorf("primary: %w", err), fmt.Errorf("secondary: %w", secErr))
	}
	return out, nil
}

// Ping succeeds when either client is reachable.
func (r *FailoverRouter) Ping(ctx context.Context) error {
	err := r.primary.Ping(ctx)
	if err == nil {
		return nil
	}
	if secErr := r.secondary.Ping(ctx); secErr != nil {
		return errors.Join(fmt.Errorf("primary: %w", err), fmt.Errorf("secondary: %w", secErr))
	}
	r.logger.Info("Primary LLM unreachable; secondary is available.", zap.Error(err))
	return nil
}

// Close closes both clients.
func (r *FailoverRouter) Close() error {
	return errors.Join(r.primary.Close(), r.secondary.Close())
}

var _ schemas.LLMClient = (*FailoverRouter)(nil)
