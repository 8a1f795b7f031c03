// File: internal/agent/mocks_test.go
package agent

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
	"github.com/xkilldash9x/explorer-cli/internal/config"
	"github.com/xkilldash9x/explorer-cli/internal/discovery"
	"github.com/xkilldash9x/explorer-cli/internal/memory"
	"github.com/xkilldash9x/explorer-cli/internal/oracle"
	"github.com/xkilldash9x/explorer-cli/internal/reporting"
)

const testTarget = "https://app.example.com/"

// mockExecutor is a testify mock of ActionExecutor.
type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *mockExecutor) Click(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *mockExecutor) Type(ctx context.Context, selector, text string) error {
	return m.Called(ctx, selector, text).Error(0)
}

func (m *mockExecutor) Scroll(ctx context.Context, direction string) error {
	return m.Called(ctx, direction).Error(0)
}

func (m *mockExecutor) Resize(ctx context.Context, vp schemas.Viewport) error {
	return m.Called(ctx, vp).Error(0)
}

func (m *mockExecutor) PageState(ctx context.Context) (*schemas.PageState, error) {
	args := m.Called(ctx)
	page, _ := args.Get(0).(*schemas.PageState)
	return page, args.Error(1)
}

func (m *mockExecutor) Screenshot(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

func (m *mockExecutor) Viewport() schemas.Viewport {
	return m.Called().Get(0).(schemas.Viewport)
}

func (m *mockExecutor) BlockedUploads() []schemas.BlockedUpload {
	blocked, _ := m.Called().Get(0).([]schemas.BlockedUpload)
	return blocked
}

func (m *mockExecutor) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// mockOracle is a testify mock of oracle.Oracle.
type mockOracle struct {
	mock.Mock
}

func (m *mockOracle) CheckAvailability(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

func (m *mockOracle) WarmUp(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockOracle) DecideNextAction(ctx context.Context, dc oracle.DecisionContext) (oracle.Proposal, error) {
	args := m.Called(ctx, dc)
	return args.Get(0).(oracle.Proposal), args.Error(1)
}

func (m *mockOracle) AnalyzeForIssues(ctx context.Context, page *schemas.PageState) (oracle.Judgment, error) {
	args := m.Called(ctx, page)
	return args.Get(0).(oracle.Judgment), args.Error(1)
}

func (m *mockOracle) Summarize(ctx context.Context, actions []schemas.TestAction, issues []schemas.Issue) (string, error) {
	args := m.Called(ctx, actions, issues)
	return args.String(0), args.Error(1)
}

// panickingExecutor blows up when the page is read.
type panickingExecutor struct {
	*mockExecutor
}

func (p panickingExecutor) PageState(context.Context) (*schemas.PageState, error) {
	panic("page probe exploded")
}

type harness struct {
	exec     *mockExecutor
	memory   *memory.Store
	disc     *discovery.Discovery
	reporter *reporting.Reporter
	scope    *discovery.Scope
	dir      string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	dir := t.TempDir()
	rep, err := reporting.New(reporting.Options{
		Dir:       filepath.Join(dir, "report"),
		SessionID: "test-session",
		Target:    testTarget,
	}, logger)
	require.NoError(t, err)
	scope, err := discovery.NewScope(testTarget, false)
	require.NoError(t, err)
	return &harness{
		exec:     new(mockExecutor),
		memory:   memory.New(filepath.Join(dir, "memory.json"), logger),
		disc:     discovery.New(logger),
		reporter: rep,
		scope:    scope,
		dir:      dir,
	}
}

func (h *harness) deps(o oracle.Oracle) Dependencies {
	return Dependencies{
		Executor:  h.exec,
		Oracle:    o,
		Memory:    h.memory,
		Discovery: h.disc,
		Reporter:  h.reporter,
		Scope:     h.scope,
	}
}

// expectLifecycle registers the calls every session makes regardless of what
// happens inside the loop.
func (h *harness) expectLifecycle() {
	h.exec.On("Navigate", mock.Anything, testTarget).Return(nil).Once()
	h.exec.On("BlockedUploads").Return(nil).Maybe()
	h.exec.On("Viewport").Return(schemas.Viewport{Name: "desktop", Width: 1280, Height: 800}).Maybe()
	h.exec.On("Close", mock.Anything).Return(nil).Once()
}

func baseConfig() config.AgentConfig {
	return config.AgentConfig{
		Mode:              config.ModeExploration,
		TargetURL:         testTarget,
		Duration:          time.Minute,
		MaxActionsPerPage: 100,
		FailureThreshold:  5,
		ElementCap:        20,
		RecentActions:     5,
		HistoryCapacity:   50,
	}
}

func button(selector, text string) schemas.InteractiveElement {
	return schemas.InteractiveElement{Selector: selector, Tag: "button", Role: schemas.RoleButton, Text: text, Visible: true}
}

func pageAt(url string, elements ...schemas.InteractiveElement) *schemas.PageState {
	return &schemas.PageState{
		URL:      url,
		Title:    "Test page",
		Elements: elements,
		Viewport: schemas.Viewport{Name: "desktop", Width: 1280, Height: 800},
	}
}
