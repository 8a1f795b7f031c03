// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
	"github.com/xkilldash9x/explorer-cli/internal/agent"
	"github.com/xkilldash9x/explorer-cli/internal/browser"
	"github.com/xkilldash9x/explorer-cli/internal/config"
	"github.com/xkilldash9x/explorer-cli/internal/discovery"
	"github.com/xkilldash9x/explorer-cli/internal/observability"
	"github.com/xkilldash9x/explorer-cli/internal/oracle"
	"github.com/xkilldash9x/explorer-cli/internal/reporting"
)

var defaultViewport = schemas.Viewport{Name: "desktop", Width: 1366, Height: 768}

// ExecutorFunc starts the browser session behind one orchestrator.
type ExecutorFunc func(ctx context.Context, cfg config.BrowserConfig, vp schemas.Viewport, logger *zap.Logger) (agent.ActionExecutor, error)

// OrchestratorFactory builds one orchestrator per agent instance. It exists so
// the run command can be tested without a browser.
type OrchestratorFactory interface {
	NewOrchestrator(ctx context.Context, instance int) (*agent.Orchestrator, error)
	Shutdown()
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithExecutorFunc replaces the chromedp session constructor.
func WithExecutorFunc(fn ExecutorFunc) FactoryOption {
	return func(f *Factory) { f.newExecutor = fn }
}

// WithToolVersion sets the version recorded in reports.
func WithToolVersion(v string) FactoryOption {
	return func(f *Factory) { f.version = v }
}

// WithClock replaces the clock used to name report directories.
func WithClock(now func() time.Time) FactoryOption {
	return func(f *Factory) { f.now = now }
}

// Factory wires configuration into ready-to-run orchestrators. Shared
// components are created once in NewFactory; everything else is created per
// instance.
type Factory struct {
	cfg         *config.Config
	logger      *zap.Logger
	shared      *Components
	newExecutor ExecutorFunc
	version     string
	now         func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewFactory creates the shared components: the navigation memory, the LLM
// client and the optional issue store. On failure everything created so far
// is released.
func NewFactory(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...FactoryOption) (f *Factory, err error) {
	shared := &Components{}
	defer func() {
		if err != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(err))
			shared.Shutdown(logger)
		}
	}()

	if shared.Memory, err = InitializeMemory(cfg.Memory, logger); err != nil {
		return nil, err
	}
	if shared.LLMClient, err = InitializeLLMClient(ctx, cfg.Oracle, logger); err != nil {
		return nil, err
	}
	if shared.Store, shared.storeCleanup, err = InitializeStore(ctx, cfg.Store, logger); err != nil {
		return nil, err
	}

	f = &Factory{
		cfg:    cfg,
		logger: logger,
		shared: shared,
		newExecutor: func(ctx context.Context, bc config.BrowserConfig, vp schemas.Viewport, l *zap.Logger) (agent.ActionExecutor, error) {
			return browser.NewSession(ctx, bc, vp, l)
		},
		now: time.Now,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Components exposes the shared components, mainly for tests and commands
// that inspect the memory store.
func (f *Factory) Components() *Components { return f.shared }

// NewOrchestrator builds the per-instance collaborators and the orchestrator
// that owns them. Instance 0 uses the first configured viewport; the others
// pick one at random so parallel agents cover different layouts.
func (f *Factory) NewOrchestrator(ctx context.Context, instance int) (*agent.Orchestrator, error) {
	sessionID := uuid.New().String()
	logger := observability.ForInstance(f.logger, instance, sessionID)
	cfg := f.cfg

	scope, err := discovery.NewScope(cfg.Agent.TargetURL, cfg.Agent.IncludeSubdomains)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize scope: %w", err)
	}

	reportDir := filepath.Join(cfg.Report.Dir, fmt.Sprintf("%s-%02d-%s", f.now().UTC().Format("20060102-150405"), instance, sessionID[:8]))
	opts := reporting.Options{
		Dir:           reportDir,
		SessionID:     sessionID,
		Target:        cfg.Agent.TargetURL,
		Mode:          string(cfg.Agent.Mode),
		ToolVersion:   f.version,
		ActionHistory: cfg.Report.ActionHistory,
		StepsPerIssue: cfg.Report.StepsPerIssue,
	}
	if f.shared.Store != nil {
		opts.Sink = f.shared.Store
	}
	reporter, err := reporting.New(opts, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize reporter: %w", err)
	}

	browserCfg := cfg.Browser
	if browserCfg.ScreenshotDir == "" {
		browserCfg.ScreenshotDir = filepath.Join(reportDir, "screenshots")
	}
	vp := f.viewportFor(instance)
	executor, err := f.newExecutor(ctx, browserCfg, vp, logger)
	if err != nil {
		reporter.Close()
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}

	var orc oracle.Oracle = oracle.Disabled{}
	if f.shared.LLMClient != nil {
		orc = oracle.NewLLMOracle(f.shared.LLMClient, cfg.Oracle, logger)
	}

	deps := agent.Dependencies{
		Executor:  executor,
		Oracle:    orc,
		Memory:    f.shared.Memory,
		Discovery: discovery.New(logger),
		Reporter:  reporter,
		Scope:     scope,
	}
	orch, err := agent.New(deps, cfg.Agent, logger,
		agent.WithSessionID(sessionID),
		agent.WithRand(f.newRand()),
		agent.WithScreenshots(cfg.Report.ScreenshotOnIssue),
		agent.WithWarmUp(cfg.Oracle.WarmUp),
		agent.WithSummary(cfg.Oracle.Summarize),
	)
	if err != nil {
		executor.Close(context.WithoutCancel(ctx))
		reporter.Close()
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	logger.Info("Agent instance ready.",
		zap.Int("instance", instance),
		zap.String("viewport", vp.Name),
		zap.String("report_dir", reportDir))
	return orch, nil
}

// Shutdown releases the shared components.
func (f *Factory) Shutdown() {
	f.shared.Shutdown(f.logger)
}

func (f *Factory) viewportFor(instance int) schemas.Viewport {
	vps := f.cfg.Agent.Viewports
	if len(vps) == 0 {
		return defaultViewport
	}
	if instance == 0 {
		return vps[0]
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return vps[f.rng.Intn(len(vps))]
}

// newRand derives an independent source per orchestrator; *rand.Rand is not
// safe for concurrent use.
func (f *Factory) newRand() *rand.Rand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return rand.New(rand.NewSource(f.rng.Int63()))
}
