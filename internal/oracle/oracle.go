// File: internal/oracle/oracle.go
package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
)

var (
	// ErrUnavailable is returned by oracles that cannot be consulted at all.
	ErrUnavailable = errors.New("oracle unavailable")
	// ErrUnusableAnswer marks a response that could not be turned into a proposal.
	ErrUnusableAnswer = errors.New("oracle answer unusable")
)

// Oracle decides what the agent does next and judges pages for anomalies.
// Implementations are assumed unreliable; callers must tolerate every error.
type Oracle interface {
	// CheckAvailability is a short liveness probe.
	CheckAvailability(ctx context.Context) bool
	// WarmUp primes the backend. Failure is not fatal.
	WarmUp(ctx context.Context) error
	// DecideNextAction proposes an action over dc.Candidates.
	DecideNextAction(ctx context.Context, dc DecisionContext) (Proposal, error)
	// AnalyzeForIssues asks for a judgment on a page no deterministic check flagged.
	AnalyzeForIssues(ctx context.Context, page *schemas.PageState) (Judgment, error)
	// Summarize writes a narrative summary of a finished session.
	Summarize(ctx context.Context, actions []schemas.TestAction, issues []schemas.Issue) (string, error)
}

// DecisionContext is the bounded view of the session handed to the oracle.
type DecisionContext struct {
	Page *schemas.PageState
	// Candidates is the truncated, ranked element list that Proposal.Index refers to.
	Candidates    []schemas.InteractiveElement
	RecentActions []schemas.TestAction
	Visited       []string
	Objective     string
	Mission       *schemas.Mission
	// Novelty maps a candidate selector to its novelty score.
	Novelty map[string]float64
}

// Proposal is the oracle's answer. Index is 1-based into DecisionContext.Candidates
// and is required for click and type proposals.
type Proposal struct {
	Index     int                `json:"index"`
	Kind      schemas.ActionKind `json:"action"`
	Value     string             `json:"value,omitempty"`
	URL       string             `json:"url,omitempty"`
	Reasoning string             `json:"reasoning,omitempty"`
}

// Validate checks the proposal against a candidate list of length n.
func (p Proposal) Validate(n int) error {
	switch p.Kind {
	case schemas.ActionClick, schemas.ActionType:
		if p.Index < 1 || p.Index > n {
			return fmt.Errorf("%w: index %d outside 1..%d", ErrUnusableAnswer, p.Index, n)
		}
	case schemas.ActionNavigate:
		if p.URL == "" {
			return fmt.Errorf("%w: navigate without url", ErrUnusableAnswer)
		}
	case schemas.ActionScroll:
		if p.Value != schemas.ScrollUp && p.Value != schemas.ScrollDown {
			return fmt.Errorf("%w: scroll direction %q", ErrUnusableAnswer, p.Value)
		}
	default:
		return fmt.Errorf("%w: unsupported action %q", ErrUnusableAnswer, p.Kind)
	}
	return nil
}

// Judgment is the oracle's verdict on a page.
type Judgment struct {
	IsIssue     bool             `json:"isIssue"`
	Severity    schemas.Severity `json:"severity,omitempty"`
	Description string           `json:"description,omitempty"`
	Suggestion  string           `json:"suggestion,omitempty"`
}
