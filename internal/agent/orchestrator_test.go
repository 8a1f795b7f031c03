// File: internal/agent/orchestrator_test.go
package agent

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
	"github.com/xkilldash9x/explorer-cli/internal/config"
	"github.com/xkilldash9x/explorer-cli/internal/oracle"
	"github.com/xkilldash9x/explorer-cli/internal/reporting"
)

func newOrchestrator(t *testing.T, h *harness, o oracle.Oracle, cfg config.AgentConfig, opts ...Option) *Orchestrator {
	t.Helper()
	opts = append([]Option{WithRand(rand.New(rand.NewSource(42))), WithSessionID("test-session")}, opts...)
	orch, err := New(h.deps(o), cfg, zaptest.NewLogger(t), opts...)
	require.NoError(t, err)
	return orch
}

func TestNewValidatesDependencies(t *testing.T) {
	h := newHarness(t)

	_, err := New(Dependencies{}, baseConfig(), nil)
	assert.Error(t, err)

	cfg := baseConfig()
	cfg.TargetURL = ""
	_, err = New(h.deps(nil), cfg, nil)
	assert.Error(t, err)

	cfg = baseConfig()
	cfg.Mode = "chaos"
	_, err = New(h.deps(nil), cfg, nil)
	assert.Error(t, err)

	orch, err := New(h.deps(nil), baseConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, orch.State())
	assert.NotEmpty(t, orch.SessionID())
}

func TestRunFallsBackWhenOracleFails(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t)
	h.expectLifecycle()
	page := pageAt(testTarget, button("#save", "Save"))

	var orch *Orchestrator
	clicks := 0
	h.exec.On("PageState", mock.Anything).Return(page, nil)
	h.exec.On("Click", mock.Anything, "#save").Return(nil).Run(func(mock.Arguments) {
		clicks++
		if clicks == 3 {
			orch.Stop()
		}
	})

	mo := new(mockOracle)
	mo.On("CheckAvailability", mock.Anything).Return(true).Once()
	mo.On("DecideNextAction", mock.Anything, mock.Anything).Return(oracle.Proposal{}, errors.New("model timed out"))

	orch = newOrchestrator(t, h, mo, baseConfig())
	res, err := orch.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StopRequested, res.Reason)
	assert.Equal(t, 3, res.Actions)
	assert.Equal(t, StateStopped, orch.State())
	mo.AssertNumberOfCalls(t, "DecideNextAction", 3)
	h.exec.AssertExpectations(t)

	rec, ok := h.memory.Lookup("#save", testTarget)
	require.True(t, ok)
	assert.Equal(t, 3, rec.ClickCount)

	issues := h.reporter.Issues()
	require.Len(t, issues, 1, "three identical clicks are a rage click")
	assert.Equal(t, schemas.IssueBehavioral, issues[0].Type)
	assert.Equal(t, schemas.SeverityMinor, issues[0].Severity)
	assert.Len(t, issues[0].Steps, 3)

	assert.FileExists(t, res.ReportPath)
	assert.FileExists(t, filepath.Join(h.reporter.Dir(), "features.json"))
	assert.FileExists(t, filepath.Join(h.reporter.Dir(), "features.md"))
	assert.FileExists(t, h.memory.Path())
}

func TestRunUsesOracleProposal(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t)
	h.expectLifecycle()
	h.exec.On("PageState", mock.Anything).Return(pageAt(testTarget, button("#a", "Alpha"), button("#b", "Beta")), nil)

	var orch *Orchestrator
	h.exec.On("Click", mock.Anything, "#b").Return(nil).Once().Run(func(mock.Arguments) { orch.Stop() })

	mo := new(mockOracle)
	mo.On("CheckAvailability", mock.Anything).Return(true)
	mo.On("WarmUp", mock.Anything).Return(nil).Once()
	mo.On("DecideNextAction", mock.Anything, mock.MatchedBy(func(dc oracle.DecisionContext) bool {
		return len(dc.Candidates) == 2 && dc.Novelty["#a"] == 1.0 && dc.Objective == explorationObjective
	})).Return(oracle.Proposal{Index: 2, Kind: schemas.ActionClick, Reasoning: "never tried"}, nil).Once()
	mo.On("Summarize", mock.Anything, mock.Anything, mock.Anything).Return("Clicked Beta once.", nil).Once()

	orch = newOrchestrator(t, h, mo, baseConfig(), WithWarmUp(true), WithSummary(true))
	res, err := orch.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, res.Actions)
	assert.Equal(t, "Clicked Beta once.", res.Summary)
	mo.AssertExpectations(t)
	h.exec.AssertExpectations(t)
}

func TestRunAnomalyHuntReportsConsoleError(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t)
	h.expectLifecycle()

	noisy := pageAt(testTarget, button("#go", "Go"))
	noisy.ConsoleErrors = []string{"TypeError: x is undefined"}
	h.exec.On("PageState", mock.Anything).Return(noisy, nil).Once()
	h.exec.On("PageState", mock.Anything).Return(pageAt(testTarget, button("#go", "Go")), nil)
	h.exec.On("Screenshot", mock.Anything, "issue-console_error").Return("/shots/console.png", nil).Once()

	var orch *Orchestrator
	clicks := 0
	h.exec.On("Click", mock.Anything, "#go").Return(nil).Run(func(mock.Arguments) {
		clicks++
		if clicks == 2 {
			orch.Stop()
		}
	})

	cfg := baseConfig()
	cfg.Mode = config.ModeAnomalyHunt
	orch = newOrchestrator(t, h, nil, cfg, WithScreenshots(true))
	res, err := orch.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, config.ModeAnomalyHunt, res.Mode)
	issues := h.reporter.Issues()
	require.Len(t, issues, 1)
	assert.Equal(t, schemas.IssueConsoleError, issues[0].Type)
	assert.Equal(t, schemas.SeverityMajor, issues[0].Severity)
	assert.Contains(t, issues[0].Description, "TypeError: x is undefined")
	assert.Equal(t, "/shots/console.png", issues[0].Screenshot)
	h.exec.AssertExpectations(t)
}

func TestRunRecoversFromPanic(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t)
	h.exec.On("Navigate", mock.Anything, testTarget).Return(nil).Once()
	h.exec.On("Close", mock.Anything).Return(nil).Once()

	deps := h.deps(nil)
	deps.Executor = panickingExecutor{h.exec}
	orch, err := New(deps, baseConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	res, err := orch.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StopCrashed, res.Reason)
	assert.Equal(t, StateStopped, orch.State())
	issues := h.reporter.Issues()
	require.Len(t, issues, 1)
	assert.Equal(t, schemas.IssueCrash, issues[0].Type)
	assert.Equal(t, schemas.SeverityCritical, issues[0].Severity)
	assert.Contains(t, issues[0].Description, "page probe exploded")
	assert.FileExists(t, res.ReportPath, "a crashed session still produces a report")
	h.exec.AssertExpectations(t)
}

func TestRunInitFailureStillShutsDown(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t)
	h.exec.On("Navigate", mock.Anything, testTarget).Return(errors.New("net::ERR_CONNECTION_REFUSED")).Once()
	h.exec.On("Close", mock.Anything).Return(nil).Once()

	orch := newOrchestrator(t, h, nil, baseConfig())
	res, err := orch.Run(context.Background())

	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, StopInitError, res.Reason)
	assert.Equal(t, StateStopped, orch.State())
	assert.FileExists(t, filepath.Join(h.reporter.Dir(), reporting.ReportFileName))
	h.exec.AssertExpectations(t)

	_, err = orch.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestRunHonoursCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t)
	h.expectLifecycle()
	h.exec.On("PageState", mock.Anything).Return(pageAt(testTarget, button("#go", "Go")), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.exec.On("Click", mock.Anything, "#go").Return(nil).Once().Run(func(mock.Arguments) { cancel() })

	cfg := baseConfig()
	cfg.ActionDelay = time.Hour
	orch := newOrchestrator(t, h, nil, cfg)
	res, err := orch.Run(ctx)

	require.NoError(t, err)
	assert.Equal(t, StopCancelled, res.Reason)
	assert.Equal(t, 1, res.Actions)
	h.exec.AssertExpectations(t)
}

func TestRunStopsAtDeadline(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t)
	h.expectLifecycle()
	h.exec.On("PageState", mock.Anything).Return(pageAt(testTarget, button("#go", "Go")), nil)
	h.exec.On("Click", mock.Anything, "#go").Return(nil)

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ticks := 0
	clock := func() time.Time {
		ticks++
		return start.Add(time.Duration(ticks) * 10 * time.Second)
	}

	orch := newOrchestrator(t, h, nil, baseConfig(), WithClock(clock))
	res, err := orch.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StopTimeout, res.Reason)
	assert.Positive(t, res.Actions)
}

func TestRunEscalatesConsecutiveFailures(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t)
	h.expectLifecycle()
	h.exec.On("PageState", mock.Anything).Return(pageAt(testTarget, button("#save", "Save")), nil)
	h.exec.On("Click", mock.Anything, "#save").Return(errors.New("element detached")).Twice()

	var orch *Orchestrator
	h.exec.On("Navigate", mock.Anything, "https://app.example.com/home").Return(nil).Once().Run(func(mock.Arguments) { orch.Stop() })

	cfg := baseConfig()
	cfg.FailureThreshold = 2
	cfg.StartPages = []string{"/home"}
	orch = newOrchestrator(t, h, nil, cfg)
	res, err := orch.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, res.Actions)
	assert.Empty(t, h.reporter.Issues(), "plain action failures are not issues")
	assert.Equal(t, 2, h.reporter.Stats().FailedActions)
	h.exec.AssertExpectations(t)
}

func TestRunRotatesWhenPageBudgetIsSpent(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t)
	h.expectLifecycle()
	h.exec.On("PageState", mock.Anything).Return(pageAt(testTarget, button("#a", "Alpha"), button("#b", "Beta")), nil)
	h.exec.On("Click", mock.Anything, mock.Anything).Return(nil).Twice()

	var orch *Orchestrator
	h.exec.On("Navigate", mock.Anything, "https://app.example.com/polls").Return(nil).Once().Run(func(mock.Arguments) { orch.Stop() })

	cfg := baseConfig()
	cfg.MaxActionsPerPage = 2
	cfg.PriorityRoutes = []string{"/", "/polls", "/settings"}
	orch = newOrchestrator(t, h, nil, cfg)
	_, err := orch.Run(context.Background())

	require.NoError(t, err)
	h.exec.AssertExpectations(t)
}

func TestRunExcludesElementsThatOpenFileChoosers(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t)
	h.exec.On("BlockedUploads").Return([]schemas.BlockedUpload{{Timestamp: time.Now(), URL: testTarget, Mode: "selectSingle"}}).Once()
	h.expectLifecycle()
	h.exec.On("PageState", mock.Anything).Return(pageAt(testTarget, button("#upload", "Upload avatar"), button("#other", "Next")), nil)
	h.exec.On("Click", mock.Anything, "#upload").Return(errors.New("action timed out")).Once()

	var orch *Orchestrator
	clicks := 0
	h.exec.On("Click", mock.Anything, "#other").Return(nil).Run(func(mock.Arguments) {
		clicks++
		if clicks == 2 {
			orch.Stop()
		}
	})

	orch = newOrchestrator(t, h, nil, baseConfig())
	res, err := orch.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, res.Actions)
	h.exec.AssertNumberOfCalls(t, "Click", 3)
	issues := h.reporter.Issues()
	require.Len(t, issues, 1)
	assert.Equal(t, schemas.IssueBehavioral, issues[0].Type)
	assert.Equal(t, schemas.SeverityMinor, issues[0].Severity)
	assert.Contains(t, issues[0].Title, "Upload avatar")
}

func TestRunRotatesAccomplishedMission(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t)
	h.expectLifecycle()
	page := pageAt(testTarget, button("#go", "Go"))
	page.BodyText = "Thank you for voting!"
	h.exec.On("PageState", mock.Anything).Return(page, nil)
	h.exec.On("Click", mock.Anything, "#go").Return(nil).Once()
	mobile := schemas.Viewport{Name: "mobile", Width: 375, Height: 812}
	h.exec.On("Resize", mock.Anything, mobile).Return(nil).Once()

	var orch *Orchestrator
	h.exec.On("Navigate", mock.Anything, "https://app.example.com/vote").Return(nil).Once().Run(func(mock.Arguments) { orch.Stop() })

	cfg := baseConfig()
	cfg.Mode = config.ModeAnomalyHunt
	cfg.Missions = []schemas.Mission{{ID: "vote", Persona: "voter", Goal: "cast a vote", StartRoute: "/vote", SuccessPattern: "thank you"}}
	cfg.Viewports = []schemas.Viewport{mobile}
	orch = newOrchestrator(t, h, nil, cfg)
	res, err := orch.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, res.Actions)
	h.exec.AssertExpectations(t)
}

func TestRunTakesPeriodicSnapshots(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t)
	h.expectLifecycle()
	h.exec.On("PageState", mock.Anything).Return(pageAt(testTarget, button("#a", "Alpha"), button("#b", "Beta")), nil)

	var orch *Orchestrator
	clicks := 0
	h.exec.On("Click", mock.Anything, mock.Anything).Return(nil).Run(func(mock.Arguments) {
		clicks++
		if clicks == 3 {
			orch.Stop()
		}
	})

	mo := new(mockOracle)
	mo.On("CheckAvailability", mock.Anything).Return(false)

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ticks := 0
	clock := func() time.Time {
		ticks++
		return start.Add(time.Duration(ticks) * 10 * time.Second)
	}
	cfg := baseConfig()
	cfg.Duration = 0
	cfg.SnapshotInterval = 15 * time.Second
	orch = newOrchestrator(t, h, mo, cfg, WithClock(clock))
	_, err := orch.Run(context.Background())
	require.NoError(t, err)

	snapshots, err := filepath.Glob(filepath.Join(h.reporter.Dir(), "report-snapshot-*.md"))
	require.NoError(t, err)
	assert.NotEmpty(t, snapshots)
	// Availability is probed at start and again on every snapshot.
	assert.GreaterOrEqual(t, len(mo.Calls), 2)
}

func TestRunReportsRageClick(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t)
	h.expectLifecycle()
	h.exec.On("PageState", mock.Anything).Return(pageAt(testTarget+"polls", button("#vote", "Vote")), nil)

	var orch *Orchestrator
	clicks := 0
	h.exec.On("Click", mock.Anything, "#vote").Return(nil).Run(func(mock.Arguments) {
		clicks++
		if clicks == 7 {
			orch.Stop()
		}
	})

	orch = newOrchestrator(t, h, nil, baseConfig())
	res, err := orch.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StopRequested, res.Reason)
	assert.Equal(t, 7, res.Actions, "a rage click does not interrupt the loop")

	issues := h.reporter.Issues()
	require.Len(t, issues, 2, "clicks 1-3 and 4-6 each form a triple; click 7 starts a new one")
	for _, issue := range issues {
		assert.Equal(t, schemas.IssueBehavioral, issue.Type)
		assert.Equal(t, schemas.SeverityMinor, issue.Severity)
		assert.Contains(t, issue.Title, "#vote")
		assert.Equal(t, testTarget+"polls", issue.URL)
	}
	h.exec.AssertNumberOfCalls(t, "Click", 7)
}
