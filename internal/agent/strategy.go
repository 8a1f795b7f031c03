// File: internal/agent/strategy.go
package agent

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
	"github.com/xkilldash9x/explorer-cli/internal/config"
	"github.com/xkilldash9x/explorer-cli/internal/oracle"
)

const (
	explorationObjective = "Explore the application broadly. Prefer elements and pages you have not tried yet and open every menu, tab and dialog you find."
	anomalyHuntObjective = "Act like a real user pursuing the mission while watching for anything broken: errors, failed requests, confusing or inaccessible UI."
)

// judgeFunc asks the oracle for a verdict on a page. It is nil when the oracle
// is unavailable.
type judgeFunc func(ctx context.Context, page *schemas.PageState) (oracle.Judgment, error)

// Strategy holds everything that differs between running modes. It is chosen
// once in New; the loop never branches on the mode itself.
type Strategy interface {
	Mode() config.Mode
	// Objective is the text handed to the oracle for the active mission.
	Objective(configured string, mission *schemas.Mission) string
	// Inspect returns issue drafts for the page.
	Inspect(ctx context.Context, page *schemas.PageState, judge judgeFunc) []schemas.Issue
	// RotatesMissions reports whether missions are picked and rotated.
	RotatesMissions() bool
}

func newStrategy(mode config.Mode) (Strategy, error) {
	switch mode {
	case config.ModeExploration, "":
		return explorationStrategy{}, nil
	case config.ModeAnomalyHunt:
		return &anomalyHuntStrategy{checker: newAnomalyChecker()}, nil
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
}

// explorationStrategy maps the surface and reports nothing.
type explorationStrategy struct{}

func (explorationStrategy) Mode() config.Mode { return config.ModeExploration }

func (explorationStrategy) Objective(configured string, _ *schemas.Mission) string {
	if configured != "" {
		return configured
	}
	return explorationObjective
}

func (explorationStrategy) Inspect(context.Context, *schemas.PageState, judgeFunc) []schemas.Issue {
	return nil
}

func (explorationStrategy) RotatesMissions() bool { return false }

// anomalyHuntStrategy pursues missions and checks every page for anomalies.
type anomalyHuntStrategy struct {
	checker *anomalyChecker
}

func (*anomalyHuntStrategy) Mode() config.Mode { return config.ModeAnomalyHunt }

func (*anomalyHuntStrategy) Objective(configured string, mission *schemas.Mission) string {
	base := configured
	if base == "" {
		base = anomalyHuntObjective
	}
	if mission == nil {
		return base
	}
	return fmt.Sprintf("%s Current mission as %s: %s", base, mission.Persona, mission.Goal)
}

// Inspect runs the deterministic checks and consults the oracle only when
// none of them fired.
func (s *anomalyHuntStrategy) Inspect(ctx context.Context, page *schemas.PageState, judge judgeFunc) []schemas.Issue {
	if drafts := s.checker.checkForIssues(page); len(drafts) > 0 || judge == nil {
		return drafts
	}
	j, err := judge(ctx, page)
	if err != nil || !j.IsIssue {
		return nil
	}
	return []schemas.Issue{s.checker.judgmentIssue(page, j)}
}

func (*anomalyHuntStrategy) RotatesMissions() bool { return true }
