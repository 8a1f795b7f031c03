// File: internal/agent/orchestrator.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
	"github.com/xkilldash9x/explorer-cli/internal/config"
	"github.com/xkilldash9x/explorer-cli/internal/discovery"
	"github.com/xkilldash9x/explorer-cli/internal/memory"
	"github.com/xkilldash9x/explorer-cli/internal/oracle"
	"github.com/xkilldash9x/explorer-cli/internal/reporting"
	"github.com/xkilldash9x/explorer-cli/internal/ring"
)

const (
	defaultHistoryCapacity = 200
	defaultRecentActions   = 5
)

// Dependencies are the collaborators an Orchestrator drives. Executor, Memory,
// Discovery and Reporter are required. A nil Oracle behaves as a disabled one
// and a nil Scope disables the out-of-scope guard.
type Dependencies struct {
	Executor  ActionExecutor
	Oracle    oracle.Oracle
	Memory    *memory.Store
	Discovery *discovery.Discovery
	Reporter  *reporting.Reporter
	Scope     *discovery.Scope
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces the wall clock used for the session deadline and snapshots.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithRand sets the random source used for route, mission and viewport picks.
func WithRand(rng *rand.Rand) Option {
	return func(o *Orchestrator) { o.rng = rng }
}

// WithScreenshots captures a screenshot for every logged issue.
func WithScreenshots(enabled bool) Option {
	return func(o *Orchestrator) { o.screenshots = enabled }
}

// WithWarmUp primes the oracle during initialization.
func WithWarmUp(enabled bool) Option {
	return func(o *Orchestrator) { o.warmUp = enabled }
}

// WithSummary asks the oracle for a narrative summary during shutdown.
func WithSummary(enabled bool) Option {
	return func(o *Orchestrator) { o.summarize = enabled }
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) Option {
	return func(o *Orchestrator) { o.sessionID = id }
}

// Result describes a finished session.
type Result struct {
	SessionID  string
	Mode       config.Mode
	Reason     StopReason
	Started    time.Time
	Duration   time.Duration
	Actions    int
	Issues     int
	PagesSeen  int
	ReportPath string
	Summary    string
}

// Orchestrator runs the explore/act/observe loop for one browser session.
// Run may be called once; Stop and State are safe from any goroutine.
type Orchestrator struct {
	logger   *zap.Logger
	cfg      config.AgentConfig
	deps     Dependencies
	strategy Strategy

	now         func() time.Time
	rng         *rand.Rand
	sessionID   string
	screenshots bool
	warmUp      bool
	summarize   bool

	mu       sync.Mutex
	state    State
	stopCh   chan struct{}
	stopOnce sync.Once

	// Loop-owned state below; only the Run goroutine touches it.
	history            *ring.Ring[schemas.TestAction]
	oracleUp           bool
	mission            *schemas.Mission
	currentPath        string
	currentPageActions int
	visited            map[string]bool
	lastPage           *schemas.PageState
	rage               rageClickDetector
	escalation         failureEscalation
	snapshots          snapshotTimer
	snapshotCount      int
	actions            int
}

// New validates the dependencies and selects the mode strategy.
func New(deps Dependencies, cfg config.AgentConfig, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	if deps.Executor == nil || deps.Memory == nil || deps.Discovery == nil || deps.Reporter == nil {
		return nil, errors.New("orchestrator requires an executor, memory, discovery and reporter")
	}
	if cfg.TargetURL == "" {
		return nil, errors.New("orchestrator requires a target url")
	}
	strategy, err := newStrategy(cfg.Mode)
	if err != nil {
		return nil, err
	}
	if deps.Oracle == nil {
		deps.Oracle = oracle.Disabled{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ElementCap <= 0 {
		cfg.ElementCap = defaultElementCap
	}
	if cfg.RecentActions <= 0 {
		cfg.RecentActions = defaultRecentActions
	}
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = defaultHistoryCapacity
	}

	o := &Orchestrator{
		cfg:        cfg,
		deps:       deps,
		strategy:   strategy,
		now:        time.Now,
		state:      StateIdle,
		stopCh:     make(chan struct{}),
		history:    ring.New[schemas.TestAction](cfg.HistoryCapacity),
		visited:    make(map[string]bool),
		escalation: failureEscalation{threshold: cfg.FailureThreshold},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if o.sessionID == "" {
		o.sessionID = uuid.New().String()
	}
	o.snapshots = snapshotTimer{interval: cfg.SnapshotInterval}
	o.logger = logger.Named("orchestrator").With(
		zap.String("session_id", o.sessionID),
		zap.String("mode", string(strategy.Mode())),
	)
	return o, nil
}

// SessionID returns the id attached to logs, reports and stored issues.
func (o *Orchestrator) SessionID() string { return o.sessionID }

// State returns the current lifecycle phase.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Stop asks the loop to end. It is honoured at the next iteration boundary;
// the action in flight always completes.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
}

func (o *Orchestrator) transition(to State) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !canTransition(o.state, to) {
		return fmt.Errorf("invalid state transition %s -> %s", o.state, to)
	}
	o.logger.Debug("State transition.", zap.String("from", string(o.state)), zap.String("to", string(to)))
	o.state = to
	return nil
}

// Run drives the session until the configured duration elapses, Stop is
// called or ctx is cancelled. Whatever ends the loop, memory is persisted,
// the catalog exported, the final report written and the executor closed
// before Run returns. The returned error is non-nil only when initialization
// failed; the Result is still populated in that case.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	if err := o.transition(StateInitializing); err != nil {
		return nil, ErrAlreadyRunning
	}
	started := o.now()
	// Actions and persistence are never interrupted mid-flight; cancellation
	// is observed only between iterations.
	opCtx := context.WithoutCancel(ctx)

	o.logger.Info("Agent session starting.",
		zap.String("target", o.cfg.TargetURL),
		zap.Duration("duration", o.cfg.Duration))

	reason := StopInitError
	initErr := o.initialize(opCtx)
	if initErr == nil {
		_ = o.transition(StateRunning)
		reason = o.loop(ctx, opCtx, started)
	} else {
		o.logger.Error("Agent initialization failed.", zap.Error(initErr))
	}

	_ = o.transition(StateStopping)
	result := o.shutdown(opCtx, reason, started)
	_ = o.transition(StateStopped)
	return result, initErr
}

func (o *Orchestrator) initialize(ctx context.Context) error {
	o.oracleUp = o.deps.Oracle.CheckAvailability(ctx)
	if o.oracleUp && o.warmUp {
		if err := o.deps.Oracle.WarmUp(ctx); err != nil {
			o.logger.Warn("Oracle warm-up failed.", zap.Error(err))
		}
	}
	o.logger.Info("Oracle availability checked.", zap.Bool("available", o.oracleUp))

	if o.strategy.RotatesMissions() {
		o.pickMission()
	}
	if err := o.deps.Executor.Navigate(ctx, o.cfg.TargetURL); err != nil {
		return fmt.Errorf("failed to open target %s: %w", o.cfg.TargetURL, err)
	}
	o.snapshots.last = o.now()
	return nil
}

func (o *Orchestrator) loop(ctx, opCtx context.Context, started time.Time) StopReason {
	deadline := started.Add(o.cfg.Duration)
	for {
		select {
		case <-ctx.Done():
			return StopCancelled
		case <-o.stopCh:
			return StopRequested
		default:
		}
		if o.cfg.Duration > 0 && !o.now().Before(deadline) {
			return StopTimeout
		}
		if crashed := o.safeIterate(opCtx); crashed {
			return StopCrashed
		}
		o.pause(ctx, o.cfg.ActionDelay)
	}
}

// pause is the loop's only pacing delay. It ends early on stop or cancel so
// the boundary check runs promptly.
func (o *Orchestrator) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	case <-o.stopCh:
	}
}

// safeIterate turns a panic inside an iteration into a critical crash issue.
func (o *Orchestrator) safeIterate(ctx context.Context) (crashed bool) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Recovered from panic in control loop.",
				zap.Any("panic_value", r),
				zap.Stack("stack"))
			draft := schemas.Issue{
				Severity:    schemas.SeverityCritical,
				Type:        schemas.IssueCrash,
				Title:       "Agent crashed: " + clip(fmt.Sprint(r), maxTitleText),
				Description: fmt.Sprintf("The control loop panicked and the session was stopped: %v", r),
			}
			if o.lastPage != nil {
				draft.URL = o.lastPage.URL
				draft.Viewport = o.lastPage.Viewport
			}
			o.recordIssue(ctx, draft, false)
			crashed = true
		}
	}()
	o.iterate(ctx)
	return false
}

func (o *Orchestrator) iterate(ctx context.Context) {
	// 1. Observe.
	page, err := o.deps.Executor.PageState(ctx)
	if err != nil {
		o.logger.Warn("Failed to read page state.", zap.Error(err))
		if o.escalation.Record(false) {
			o.forceStartPage(ctx)
		}
		return
	}
	o.lastPage = page
	o.observe(page)

	if o.deps.Scope != nil && !o.deps.Scope.InScope(page.URL) {
		o.logger.Info("Left target scope, returning.", zap.String("url", page.URL))
		o.forceNavigate(ctx, o.cfg.TargetURL, "return to target scope")
		return
	}

	// 2. Inspect.
	for _, draft := range o.strategy.Inspect(ctx, page, o.judge()) {
		o.recordIssue(ctx, draft, o.screenshots)
	}

	// 3. Rank by novelty.
	list := o.deps.Memory.RankByNovelty(candidates(page, o.cfg), page.URL)
	if len(list) > o.cfg.ElementCap {
		list = list[:o.cfg.ElementCap]
	}
	novelty := o.deps.Memory.NoveltyMap(list, page.URL)

	// 4. Decide.
	action := o.decide(ctx, page, list, novelty)

	// 5. Act.
	outcome := o.perform(ctx, action)
	o.currentPageActions++

	// 6. Remember.
	var clicked *schemas.InteractiveElement
	if action.Kind == schemas.ActionClick {
		if el, ok := page.ElementBySelector(action.Selector); ok {
			clicked = &el
			if err := o.deps.Memory.RecordInteraction(el, page.URL, outcome.Succeeded); err != nil {
				o.logger.Warn("Failed to persist interaction.", zap.Error(err))
			}
			o.deps.Discovery.RecordInteraction(el.Selector, page.URL)
		}
	}
	o.handleBlockedUploads(ctx, page, clicked, outcome)

	// 7. Policies.
	o.applyPolicies(ctx, page, outcome)
}

// observe registers the page with memory, discovery and the reporter. A visit
// is counted whenever the normalized path changes.
func (o *Orchestrator) observe(page *schemas.PageState) {
	path := memory.NormalizePath(page.URL)
	if path != o.currentPath {
		o.currentPath = path
		o.currentPageActions = 0
		o.visited[path] = true
		if err := o.deps.Memory.RecordPageVisit(page.URL); err != nil {
			o.logger.Warn("Failed to persist page visit.", zap.Error(err))
		}
		o.deps.Reporter.LogPageVisit(page.URL)
		o.logger.Debug("Page visited.", zap.String("path", path))
	}
	if added := o.deps.Discovery.RegisterFeatures(page.Elements, page.URL, page.Title); added > 0 {
		o.logger.Debug("New features registered.", zap.Int("count", added), zap.String("path", path))
	}
}

func (o *Orchestrator) judge() judgeFunc {
	if !o.oracleUp {
		return nil
	}
	return func(ctx context.Context, page *schemas.PageState) (oracle.Judgment, error) {
		j, err := o.deps.Oracle.AnalyzeForIssues(ctx, page)
		if err != nil {
			o.logger.Debug("Oracle judgment failed.", zap.Error(err))
		}
		return j, err
	}
}

// decide asks the oracle for the next action and falls back to the
// deterministic policy on any failure.
func (o *Orchestrator) decide(ctx context.Context, page *schemas.PageState, list []schemas.InteractiveElement, novelty map[string]float64) schemas.TestAction {
	if o.oracleUp && len(list) > 0 {
		dc := oracle.DecisionContext{
			Page:          page,
			Candidates:    list,
			RecentActions: o.history.Last(o.cfg.RecentActions),
			Visited:       o.deps.Discovery.VisitedPages(),
			Objective:     o.strategy.Objective(o.cfg.Objective, o.mission),
			Mission:       o.mission,
			Novelty:       novelty,
		}
		p, err := o.deps.Oracle.DecideNextAction(ctx, dc)
		if err == nil {
			action, convErr := proposalToAction(p, list, o.cfg, o.resolve)
			if convErr == nil && o.allowed(action) {
				return action
			}
			err = convErr
		}
		if errors.Is(err, oracle.ErrUnavailable) {
			o.oracleUp = false
		}
		o.logger.Debug("Oracle proposal rejected, using fallback.", zap.Error(err))
	}
	return fallbackAction(list, o.cfg, o.rng, o.resolve)
}

// allowed rejects navigations that leave the target scope.
func (o *Orchestrator) allowed(a schemas.TestAction) bool {
	if a.Kind != schemas.ActionNavigate || o.deps.Scope == nil {
		return true
	}
	return o.deps.Scope.InScope(a.URL)
}

func (o *Orchestrator) resolve(route string) string {
	if o.deps.Scope != nil {
		return o.deps.Scope.Resolve(route)
	}
	return route
}

// perform executes one action, records it in the bounded history and the
// reporter and returns its outcome. Executor errors, including timeouts,
// are failures.
func (o *Orchestrator) perform(ctx context.Context, a schemas.TestAction) schemas.ActionOutcome {
	outcome := o.execute(ctx, a)
	o.history.Push(a)
	o.deps.Reporter.LogAction(a, outcome)
	o.actions++
	if outcome.Succeeded {
		o.logger.Debug("Action succeeded.", zap.String("action", a.String()))
	} else {
		o.logger.Info("Action failed.", zap.String("action", a.String()), zap.String("reason", outcome.Reason))
	}
	return outcome
}

func (o *Orchestrator) execute(ctx context.Context, a schemas.TestAction) schemas.ActionOutcome {
	if err := a.Validate(); err != nil {
		return schemas.Failure(err.Error())
	}
	var err error
	ex := o.deps.Executor
	switch a.Kind {
	case schemas.ActionClick:
		err = ex.Click(ctx, a.Selector)
	case schemas.ActionType:
		err = ex.Type(ctx, a.Selector, a.Value)
	case schemas.ActionNavigate:
		err = ex.Navigate(ctx, a.URL)
	case schemas.ActionScroll:
		err = ex.Scroll(ctx, a.Value)
	case schemas.ActionResize:
		err = ex.Resize(ctx, *a.Viewport)
	case schemas.ActionWait:
		o.pause(ctx, a.Duration)
	}
	if err != nil {
		return schemas.Failure(err.Error())
	}
	return schemas.Success()
}

// handleBlockedUploads drains intercepted file choosers. The element that
// opened one is excluded from future candidates, and a failed action that
// triggered it is reported.
func (o *Orchestrator) handleBlockedUploads(ctx context.Context, page *schemas.PageState, clicked *schemas.InteractiveElement, outcome schemas.ActionOutcome) {
	blocked := o.deps.Executor.BlockedUploads()
	if len(blocked) == 0 {
		return
	}
	o.logger.Info("File upload prompt blocked.", zap.Int("count", len(blocked)), zap.String("url", blocked[0].URL))
	if clicked == nil || clicked.Text == "" {
		return
	}
	next := o.cfg.WithExcludedTexts(clicked.Text)
	if next.Version != o.cfg.Version {
		o.cfg = next
		o.logger.Info("Exclusion list amended.", zap.String("text", clicked.Text), zap.Int("config_version", next.Version))
	}
	if !outcome.Succeeded {
		o.recordIssue(ctx, schemas.Issue{
			Severity:    schemas.SeverityMinor,
			Type:        schemas.IssueBehavioral,
			Title:       "File upload prompt on " + clip(clicked.Text, maxTitleText),
			Description: fmt.Sprintf("Clicking %q (%s) opened a native file chooser and the action failed: %s", clicked.Text, clicked.Selector, outcome.Reason),
			URL:         page.URL,
			Viewport:    page.Viewport,
		}, false)
	}
}

// applyPolicies runs the post-action rules in their fixed order.
func (o *Orchestrator) applyPolicies(ctx context.Context, page *schemas.PageState, outcome schemas.ActionOutcome) {
	if selector, ok := o.rage.Observe(o.history); ok {
		o.recordIssue(ctx, schemas.Issue{
			Severity:    schemas.SeverityMinor,
			Type:        schemas.IssueBehavioral,
			Title:       "Rage click on " + clip(selector, maxTitleText),
			Description: fmt.Sprintf("The same element (%s) was clicked %d times in a row without the page moving on.", selector, rageClickRun),
			URL:         page.URL,
			Viewport:    page.Viewport,
		}, false)
	}

	if o.escalation.Record(outcome.Succeeded) {
		o.logger.Warn("Consecutive failure threshold reached.", zap.Int("threshold", o.escalation.threshold))
		o.forceStartPage(ctx)
	}

	if o.cfg.MaxActionsPerPage > 0 && o.currentPageActions >= o.cfg.MaxActionsPerPage {
		route, ok := nextPriorityRoute(o.cfg.PriorityRoutes, o.visited, o.rng)
		if !ok {
			route = o.cfg.TargetURL
		}
		o.logger.Info("Page action budget spent.", zap.String("path", o.currentPath), zap.String("next", route))
		o.forceNavigate(ctx, o.resolve(route), "page budget rotation")
	}

	if o.strategy.RotatesMissions() && o.mission != nil {
		switch {
		case o.mission.SatisfiedBy(page):
			o.logger.Info("Mission accomplished.", zap.String("mission", o.mission.ID))
			o.rotateMission(ctx)
		case o.cfg.MissionRotateAfter > 0 && o.currentPageActions == o.cfg.MissionRotateAfter:
			o.rotateMission(ctx)
		}
	}

	if o.snapshots.Due(o.now()) {
		o.snapshot(ctx)
	}
}

func (o *Orchestrator) forceStartPage(ctx context.Context) {
	route, ok := pickRandom(o.cfg.StartPages, o.rng)
	if !ok {
		route = o.cfg.TargetURL
	}
	o.escalation.Reset()
	o.forceNavigate(ctx, o.resolve(route), "failure escalation")
}

// forceNavigate performs a policy navigation. The next observation always
// counts as a fresh page visit.
func (o *Orchestrator) forceNavigate(ctx context.Context, url, why string) {
	o.perform(ctx, schemas.Navigate(url, why))
	o.currentPageActions = 0
	o.currentPath = ""
}

func (o *Orchestrator) pickMission() {
	if len(o.cfg.Missions) == 0 {
		return
	}
	pool := o.cfg.Missions
	if o.mission != nil && len(pool) > 1 {
		pool = make([]schemas.Mission, 0, len(o.cfg.Missions)-1)
		for _, m := range o.cfg.Missions {
			if m.ID != o.mission.ID {
				pool = append(pool, m)
			}
		}
	}
	m, _ := pickRandom(pool, o.rng)
	o.mission = &m
	o.logger.Info("Mission selected.", zap.String("mission", m.ID), zap.String("persona", m.Persona))
}

func (o *Orchestrator) rotateMission(ctx context.Context) {
	o.pickMission()
	if o.mission == nil {
		return
	}
	if vp, ok := pickRandom(o.cfg.Viewports, o.rng); ok && vp != o.deps.Executor.Viewport() {
		o.perform(ctx, schemas.Resize(vp, "mission viewport"))
	}
	if o.mission.StartRoute != "" {
		o.forceNavigate(ctx, o.resolve(o.mission.StartRoute), "mission start: "+o.mission.ID)
	}
}

// snapshot persists progress mid-session and re-probes the oracle.
func (o *Orchestrator) snapshot(ctx context.Context) {
	o.snapshotCount++
	if err := o.deps.Memory.Save(); err != nil {
		o.logger.Warn("Snapshot: failed to save memory.", zap.Error(err))
	}
	if err := o.deps.Discovery.BuildCatalog().Export(o.deps.Reporter.Dir()); err != nil {
		o.logger.Warn("Snapshot: failed to export catalog.", zap.Error(err))
	}
	path, err := o.deps.Reporter.GenerateIntermediateReport(fmt.Sprintf("snapshot %d", o.snapshotCount))
	if err != nil {
		o.logger.Warn("Snapshot: failed to write intermediate report.", zap.Error(err))
	}
	o.oracleUp = o.deps.Oracle.CheckAvailability(ctx)
	o.logger.Info("Snapshot taken.",
		zap.Int("snapshot", o.snapshotCount),
		zap.String("report", path),
		zap.Bool("oracle_available", o.oracleUp))
}

// recordIssue attaches the reproduction steps and, optionally, a screenshot
// to a draft and hands it to the reporter.
func (o *Orchestrator) recordIssue(ctx context.Context, draft schemas.Issue, screenshot bool) {
	draft.Steps = o.history.Items()
	if screenshot {
		path, err := o.deps.Executor.Screenshot(ctx, "issue-"+string(draft.Type))
		if err != nil {
			o.logger.Debug("Issue screenshot failed.", zap.Error(err))
		} else {
			draft.Screenshot = path
		}
	}
	if _, err := o.deps.Reporter.LogIssue(ctx, draft); err != nil {
		o.logger.Warn("Failed to log issue.", zap.String("title", draft.Title), zap.Error(err))
	}
}

func (o *Orchestrator) shutdown(ctx context.Context, reason StopReason, started time.Time) *Result {
	o.logger.Info("Agent session stopping.", zap.String("reason", string(reason)))

	if err := o.deps.Memory.Save(); err != nil {
		o.logger.Error("Failed to save navigation memory.", zap.Error(err))
	}
	catalog := o.deps.Discovery.BuildCatalog()
	if err := catalog.Export(o.deps.Reporter.Dir()); err != nil {
		o.logger.Error("Failed to export feature catalog.", zap.Error(err))
	}

	var summary string
	if o.summarize && o.oracleUp {
		s, err := o.deps.Oracle.Summarize(ctx, o.history.Items(), o.deps.Reporter.Issues())
		if err != nil {
			o.logger.Warn("Oracle summary failed.", zap.Error(err))
		} else {
			summary = s
		}
	}

	reportPath, err := o.deps.Reporter.GenerateReport(summary)
	if err != nil {
		o.logger.Error("Failed to generate final report.", zap.Error(err))
	}
	if err := o.deps.Executor.Close(ctx); err != nil {
		o.logger.Warn("Failed to close executor.", zap.Error(err))
	}
	if err := o.deps.Reporter.Close(); err != nil {
		o.logger.Warn("Failed to close reporter.", zap.Error(err))
	}

	stats := o.deps.Reporter.Stats()
	res := &Result{
		SessionID:  o.sessionID,
		Mode:       o.strategy.Mode(),
		Reason:     reason,
		Started:    started,
		Duration:   o.now().Sub(started),
		Actions:    o.actions,
		Issues:     stats.Issues,
		PagesSeen:  catalog.TotalPages,
		ReportPath: reportPath,
		Summary:    summary,
	}
	o.logger.Info("Agent session stopped.",
		zap.String("reason", string(reason)),
		zap.Duration("duration", res.Duration),
		zap.Int("actions", res.Actions),
		zap.Int("issues", res.Issues),
		zap.String("report", reportPath))
	return res
}
