// File: internal/oracle/disabled.go
package oracle

import (
	"context"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
)

// Disabled is the oracle used when no provider is configured. Every decision
// goes through the agent's fallback policy.
type Disabled struct{}

var _ Oracle = Disabled{}

func (Disabled) CheckAvailability(context.Context) bool { return false }

func (Disabled) WarmUp(context.Context) error { return ErrUnavailable }

func (Disabled) DecideNextAction(context.Context, DecisionContext) (Proposal, error) {
	return Proposal{}, ErrUnavailable
}

func (Disabled) AnalyzeForIssues(context.Context, *schemas.PageState) (Judgment, error) {
	return Judgment{}, ErrUnavailable
}

func (Disabled) Summarize(context.Context, []schemas.TestAction, []schemas.Issue) (string, error) {
	return "", ErrUnavailable
}
