// File: internal/oracle/llm_oracle.go
package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
	"github.com/xkilldash9x/explorer-cli/internal/config"
	"github.com/xkilldash9x/explorer-cli/internal/llmutil"
)

const (
	defaultCallTimeout         = 30 * time.Second
	defaultAvailabilityTimeout = 3 * time.Second
	summaryTokenBudget         = 600
)

// LLMOracle backs the Oracle contract with a language model.
type LLMOracle struct {
	client schemas.LLMClient
	cfg    config.OracleConfig
	logger *zap.Logger
}

var _ Oracle = (*LLMOracle)(nil)

// NewLLMOracle wraps client. The client is owned by the oracle and released by Close.
func NewLLMOracle(client schemas.LLMClient, cfg config.OracleConfig, logger *zap.Logger) *LLMOracle {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCallTimeout
	}
	if cfg.AvailabilityTimeout <= 0 {
		cfg.AvailabilityTimeout = defaultAvailabilityTimeout
	}
	return &LLMOracle{
		client: client,
		cfg:    cfg,
		logger: logger.Named("oracle"),
	}
}

// CheckAvailability pings the backend within the availability timeout.
func (o *LLMOracle) CheckAvailability(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, o.cfg.AvailabilityTimeout)
	defer cancel()
	if err := o.client.Ping(pingCtx); err != nil {
		o.logger.Info("Oracle not available.", zap.Error(err))
		return false
	}
	return true
}

// WarmUp sends a trivial prompt so the first real decision does not pay the
// model load time.
func (o *LLMOracle) WarmUp(ctx context.Context) error {
	start := time.Now()
	_, err := o.generate(ctx, schemas.GenerationRequest{
		UserPrompt: warmUpPrompt,
		Options:    schemas.GenerationOptions{Temperature: 0, MaxTokens: 8},
	})
	if err != nil {
		return fmt.Errorf("warm-up failed: %w", err)
	}
	o.logger.Debug("Oracle warmed up.", zap.Duration("took", time.Since(start)))
	return nil
}

// DecideNextAction asks the model to choose among dc.Candidates. The answer may
// be a JSON object or, from weaker models, a bare element number.
func (o *LLMOracle) DecideNextAction(ctx context.Context, dc DecisionContext) (Proposal, error) {
	if len(dc.Candidates) == 0 {
		return Proposal{}, fmt.Errorf("%w: no candidates offered", ErrUnusableAnswer)
	}

	response, err := o.generate(ctx, schemas.GenerationRequest{
		SystemPrompt: decisionSystemPrompt,
		UserPrompt:   buildDecisionPrompt(dc),
		Options: schemas.GenerationOptions{
			Temperature:     o.cfg.Temperature,
			ForceJSONFormat: true,
			MaxTokens:       o.cfg.MaxTokens,
		},
	})
	if err != nil {
		return Proposal{}, fmt.Errorf("llm generation failed: %w", err)
	}

	proposal, err := parseProposal(response)
	if err != nil {
		o.logger.Debug("Could not parse decision.", zap.String("raw_response", response), zap.Error(err))
		return Proposal{}, err
	}
	if err := proposal.Validate(len(dc.Candidates)); err != nil {
		return Proposal{}, err
	}
	return proposal, nil
}

// AnalyzeForIssues asks the model whether the page shows a defect.
func (o *LLMOracle) AnalyzeForIssues(ctx context.Context, page *schemas.PageState) (Judgment, error) {
	if page == nil {
		return Judgment{}, nil
	}
	response, err := o.generate(ctx, schemas.GenerationRequest{
		SystemPrompt: analysisSystemPrompt,
		UserPrompt:   buildAnalysisPrompt(page),
		Options: schemas.GenerationOptions{
			Temperature:     0.1,
			ForceJSONFormat: true,
			MaxTokens:       o.cfg.MaxTokens,
		},
	})
	if err != nil {
		return Judgment{}, fmt.Errorf("llm generation failed: %w", err)
	}

	j, err := llmutil.ParseJSONResponse[Judgment](response)
	if err != nil {
		return Judgment{}, fmt.Errorf("%w: %v", ErrUnusableAnswer, err)
	}
	if j.IsIssue {
		j.Severity = schemas.ParseSeverity(string(j.Severity))
		if strings.TrimSpace(j.Description) == "" {
			return Judgment{}, fmt.Errorf("%w: issue without description", ErrUnusableAnswer)
		}
	}
	return *j, nil
}

// Summarize returns a short narrative of the session.
func (o *LLMOracle) Summarize(ctx context.Context, actions []schemas.TestAction, issues []schemas.Issue) (string, error) {
	response, err := o.generate(ctx, schemas.GenerationRequest{
		SystemPrompt: summarySystemPrompt,
		UserPrompt:   buildSummaryPrompt(actions, issues),
		Options:      schemas.GenerationOptions{Temperature: 0.4, MaxTokens: summaryTokenBudget},
	})
	if err != nil {
		return "", fmt.Errorf("llm generation failed: %w", err)
	}
	summary := strings.TrimSpace(response)
	if summary == "" {
		return "", fmt.Errorf("%w: empty summary", ErrUnusableAnswer)
	}
	return summary, nil
}

// Close releases the underlying client.
func (o *LLMOracle) Close() error {
	return o.client.Close()
}

// generate runs one call under the oracle timeout, independent of any
// navigation timeouts the caller may be using.
func (o *LLMOracle) generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()
	return o.client.Generate(callCtx, req)
}

// parseProposal accepts a JSON proposal or a leading element number.
func parseProposal(response string) (Proposal, error) {
	if _, ok := llmutil.ExtractJSONObject(response); ok {
		p, err := llmutil.ParseJSONResponse[Proposal](response)
		if err == nil {
			if p.Kind == "" {
				p.Kind = schemas.ActionClick
			}
			p.Kind = schemas.ActionKind(strings.ToLower(string(p.Kind)))
			return *p, nil
		}
	}
	if n, ok := llmutil.ParseLeadingInt(response); ok {
		return Proposal{Index: n, Kind: schemas.ActionClick}, nil
	}
	return Proposal{}, fmt.Errorf("%w: %q", ErrUnusableAnswer, truncate(response, 120))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
