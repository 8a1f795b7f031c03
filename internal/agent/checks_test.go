// File: internal/agent/checks_test.go
package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
	"github.com/xkilldash9x/explorer-cli/internal/config"
	"github.com/xkilldash9x/explorer-cli/internal/oracle"
)

func TestCheckForIssues_ConsoleError(t *testing.T) {
	page := pageAt("https://app.example.com/poll/abc")
	page.ConsoleErrors = []string{"TypeError: x is undefined"}

	issues := newAnomalyChecker().checkForIssues(page)

	require.Len(t, issues, 1)
	assert.Equal(t, schemas.IssueConsoleError, issues[0].Type)
	assert.Equal(t, schemas.SeverityMajor, issues[0].Severity)
	assert.Contains(t, issues[0].Description, "TypeError: x is undefined")
	assert.Equal(t, page.URL, issues[0].URL)
}

func TestCheckForIssues_HTTPSeverity(t *testing.T) {
	page := pageAt("https://app.example.com/")
	page.HTTPErrors = []schemas.HTTPError{
		{URL: "https://app.example.com/api/polls", Status: 503, StatusText: "Service Unavailable"},
		{URL: "https://app.example.com/api/me", Status: 404, StatusText: "Not Found"},
	}

	issues := newAnomalyChecker().checkForIssues(page)

	require.Len(t, issues, 2)
	assert.Equal(t, schemas.SeverityCritical, issues[0].Severity)
	assert.Equal(t, schemas.SeverityMajor, issues[1].Severity)
	for _, is := range issues {
		assert.Equal(t, schemas.IssueHTTPError, is.Type)
	}
}

func TestCheckForIssues_PriorityOrder(t *testing.T) {
	page := pageAt("https://app.example.com/")
	page.A11yViolations = []schemas.A11yViolation{{ID: "image-alt", Impact: schemas.ImpactCritical, Description: "Images need alt text"}}
	page.HTTPErrors = []schemas.HTTPError{{URL: "https://app.example.com/x", Status: 500}}
	page.ConsoleErrors = []string{"boom"}

	issues := newAnomalyChecker().checkForIssues(page)

	require.Len(t, issues, 3)
	assert.Equal(t, schemas.IssueConsoleError, issues[0].Type)
	assert.Equal(t, schemas.IssueHTTPError, issues[1].Type)
	assert.Equal(t, schemas.IssueAccessibility, issues[2].Type)
}

func TestCheckForIssues_A11yDedupAndFilter(t *testing.T) {
	checker := newAnomalyChecker()
	violation := schemas.A11yViolation{ID: "color-contrast", Impact: schemas.ImpactCritical, Description: "Low contrast", Nodes: 2}

	first := pageAt("https://app.example.com/poll/abc")
	first.A11yViolations = []schemas.A11yViolation{violation}
	second := pageAt("https://app.example.com/poll/abc?tab=results")
	second.A11yViolations = []schemas.A11yViolation{violation}

	issues := checker.checkForIssues(first)
	issues = append(issues, checker.checkForIssues(second)...)

	require.Len(t, issues, 1, "the same rule on the same page is reported once")
	assert.Equal(t, schemas.SeverityMajor, issues[0].Severity)

	other := pageAt("https://app.example.com/settings")
	other.A11yViolations = []schemas.A11yViolation{
		violation,
		{ID: "label", Impact: schemas.ImpactSerious, Description: "Inputs need labels"},
		{ID: "region", Impact: schemas.ImpactModerate, Description: "Content outside landmarks"},
		{ID: "tiny", Impact: schemas.ImpactMinor, Description: "Minor"},
	}
	issues = checker.checkForIssues(other)
	require.Len(t, issues, 2, "a different page is reported and low impacts are dropped")
	assert.Equal(t, schemas.SeverityMajor, issues[0].Severity)
	assert.Equal(t, schemas.SeverityMinor, issues[1].Severity)
}

func TestCheckForIssues_CleanPage(t *testing.T) {
	assert.Empty(t, newAnomalyChecker().checkForIssues(pageAt("https://app.example.com/")))
	assert.Empty(t, newAnomalyChecker().checkForIssues(nil))
}

func TestJudgmentIssue(t *testing.T) {
	page := pageAt("https://app.example.com/")
	is := newAnomalyChecker().judgmentIssue(page, oracle.Judgment{
		IsIssue:     true,
		Severity:    schemas.SeverityMinor,
		Description: "The submit button overlaps the footer.\nSeen at 1280px.",
		Suggestion:  "Add bottom padding.",
	})
	assert.Equal(t, schemas.IssueVisual, is.Type)
	assert.Equal(t, schemas.SeverityMinor, is.Severity)
	assert.Equal(t, "Suspected defect: The submit button overlaps the footer.", is.Title)
	assert.Equal(t, "Add bottom padding.", is.Analysis)
}

func TestClip(t *testing.T) {
	assert.Equal(t, "short", clip("short", 10))
	assert.Equal(t, "abcd…", clip("abcdefgh", 5))
}

func TestStrategies(t *testing.T) {
	ctx := context.Background()
	noisy := pageAt("https://app.example.com/")
	noisy.ConsoleErrors = []string{"boom"}

	t.Run("exploration never inspects", func(t *testing.T) {
		s, err := newStrategy(config.ModeExploration)
		require.NoError(t, err)
		called := false
		judge := func(context.Context, *schemas.PageState) (oracle.Judgment, error) {
			called = true
			return oracle.Judgment{IsIssue: true}, nil
		}
		assert.Empty(t, s.Inspect(ctx, noisy, judge))
		assert.False(t, called)
		assert.False(t, s.RotatesMissions())
		assert.Equal(t, explorationObjective, s.Objective("", nil))
		assert.Equal(t, "custom", s.Objective("custom", nil))
	})

	t.Run("anomaly hunt skips the judge when a check fired", func(t *testing.T) {
		s, err := newStrategy(config.ModeAnomalyHunt)
		require.NoError(t, err)
		called := false
		judge := func(context.Context, *schemas.PageState) (oracle.Judgment, error) {
			called = true
			return oracle.Judgment{}, nil
		}
		issues := s.Inspect(ctx, noisy, judge)
		assert.Len(t, issues, 1)
		assert.False(t, called)
		assert.True(t, s.RotatesMissions())
	})

	t.Run("anomaly hunt consults the judge on clean pages", func(t *testing.T) {
		s, err := newStrategy(config.ModeAnomalyHunt)
		require.NoError(t, err)
		clean := pageAt("https://app.example.com/")

		issues := s.Inspect(ctx, clean, func(context.Context, *schemas.PageState) (oracle.Judgment, error) {
			return oracle.Judgment{IsIssue: true, Severity: schemas.SeverityMajor, Description: "Blank chart"}, nil
		})
		require.Len(t, issues, 1)
		assert.Equal(t, schemas.IssueVisual, issues[0].Type)

		assert.Empty(t, s.Inspect(ctx, clean, func(context.Context, *schemas.PageState) (oracle.Judgment, error) {
			return oracle.Judgment{}, errors.New("timeout")
		}))
		assert.Empty(t, s.Inspect(ctx, clean, nil))
	})

	t.Run("mission objective", func(t *testing.T) {
		s, err := newStrategy(config.ModeAnomalyHunt)
		require.NoError(t, err)
		m := &schemas.Mission{Persona: "a new voter", Goal: "cast a vote"}
		assert.Contains(t, s.Objective("", m), "Current mission as a new voter: cast a vote")
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := newStrategy("chaos")
		assert.Error(t, err)
	})
}
