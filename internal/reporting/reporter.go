// File: internal/reporting/reporter.go
package reporting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
	"github.com/xkilldash9x/explorer-cli/internal/memory"
	"github.com/xkilldash9x/explorer-cli/internal/ring"
)

// Output file names inside the report directory.
const (
	LiveFileName   = "issues-live.md"
	ReportFileName = "report.md"
	SARIFFileName  = "issues.sarif"
)

const (
	defaultActionHistory = 200
	defaultStepsPerIssue = 10
	defaultSinkTimeout   = 5 * time.Second
)

// IssueSink receives every logged issue, e.g. a database. Sink failures are
// logged and never affect the live file.
type IssueSink interface {
	SaveIssue(ctx context.Context, sessionID string, issue schemas.Issue) error
}

// Options configures a Reporter.
type Options struct {
	Dir           string
	SessionID     string
	Target        string
	Mode          string
	ToolVersion   string
	ActionHistory int
	StepsPerIssue int
	Sink          IssueSink
	SinkTimeout   time.Duration
}

type actionRecord struct {
	Action  schemas.TestAction
	Outcome schemas.ActionOutcome
}

// Stats aggregates the session so far.
type Stats struct {
	Started       time.Time
	Duration      time.Duration
	Issues        int
	BySeverity    map[schemas.Severity]int
	ByType        map[schemas.IssueType]int
	Actions       int
	FailedActions int
	ActionsByKind map[schemas.ActionKind]int
	PageVisits    int
	UniquePages   int
}

// Reporter keeps an append-only live log of issues on disk and renders the
// final and intermediate reports from it. It is safe for concurrent use.
type Reporter struct {
	logger *zap.Logger
	opts   Options
	now    func() time.Time

	mu            sync.Mutex
	started       time.Time
	live          *os.File
	nextID        int
	issues        []schemas.Issue
	actions       *ring.Ring[actionRecord]
	failedActions int
	visitOrder    []string
	visits        map[string]int
}

// New creates the report directory and truncates the live file.
func New(opts Options, logger *zap.Logger) (*Reporter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Dir == "" {
		return nil, fmt.Errorf("report directory is required")
	}
	if opts.ActionHistory <= 0 {
		opts.ActionHistory = defaultActionHistory
	}
	if opts.StepsPerIssue <= 0 {
		opts.StepsPerIssue = defaultStepsPerIssue
	}
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = defaultSinkTimeout
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory %s: %w", opts.Dir, err)
	}
	livePath := filepath.Join(opts.Dir, LiveFileName)
	live, err := os.OpenFile(livePath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open live report %s: %w", livePath, err)
	}

	now := func() time.Time { return time.Now().UTC() }
	return &Reporter{
		logger:  logger.Named("reporter"),
		opts:    opts,
		now:     now,
		started: now(),
		live:    live,
		actions: ring.New[actionRecord](opts.ActionHistory),
		visits:  make(map[string]int),
	}, nil
}

// Dir returns the report directory.
func (r *Reporter) Dir() string { return r.opts.Dir }

// LivePath returns the location of the append-only issue log.
func (r *Reporter) LivePath() string { return filepath.Join(r.opts.Dir, LiveFileName) }

// LogIssue assigns the next id, appends the issue to the live file and syncs
// it before returning. The issue is kept in memory even if the write fails.
func (r *Reporter) LogIssue(ctx context.Context, issue schemas.Issue) (schemas.Issue, error) {
	r.mu.Lock()
	r.nextID++
	issue.ID = r.nextID
	if issue.Timestamp.IsZero() {
		issue.Timestamp = r.now()
	}
	if n := len(issue.Steps); n > r.opts.StepsPerIssue {
		issue.Steps = append([]schemas.TestAction(nil), issue.Steps[n-r.opts.StepsPerIssue:]...)
	}
	r.issues = append(r.issues, issue)
	writeErr := r.appendLocked(renderIssue(issue))
	r.mu.Unlock()

	r.logger.Info("Issue logged.",
		zap.String("issue", issue.Key()),
		zap.String("severity", string(issue.Severity)),
		zap.String("type", string(issue.Type)),
		zap.String("title", issue.Title),
		zap.String("url", issue.URL))

	if r.opts.Sink != nil {
		sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.SinkTimeout)
		if err := r.opts.Sink.SaveIssue(sinkCtx, r.opts.SessionID, issue); err != nil {
			r.logger.Warn("Issue sink rejected issue.", zap.String("issue", issue.Key()), zap.Error(err))
		}
		cancel()
	}

	if writeErr != nil {
		r.logger.Error("Failed to append issue to live report.", zap.String("issue", issue.Key()), zap.Error(writeErr))
		return issue, writeErr
	}
	return issue, nil
}

func (r *Reporter) appendLocked(fragment string) error {
	if r.live == nil {
		return fmt.Errorf("live report is closed")
	}
	if _, err := r.live.WriteString(fragment); err != nil {
		return fmt.Errorf("failed to write live report: %w", err)
	}
	if err := r.live.Sync(); err != nil {
		return fmt.Errorf("failed to sync live report: %w", err)
	}
	return nil
}

// LogAction records an executed action for session statistics. Only the most
// recent actions are retained.
func (r *Reporter) LogAction(action schemas.TestAction, outcome schemas.ActionOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions.Push(actionRecord{Action: action, Outcome: outcome})
	if !outcome.Succeeded {
		r.failedActions++
	}
}

// LogPageVisit counts a visit to the page's normalized path.
func (r *Reporter) LogPageVisit(pageURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	path := memory.NormalizePath(pageURL)
	if _, seen := r.visits[path]; !seen {
		r.visitOrder = append(r.visitOrder, path)
	}
	r.visits[path]++
}

// Issues returns a copy of every issue logged so far, in id order.
func (r *Reporter) Issues() []schemas.Issue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schemas.Issue(nil), r.issues...)
}

// Stats summarises the session so far.
func (r *Reporter) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statsLocked()
}

func (r *Reporter) statsLocked() Stats {
	st := Stats{
		Started:       r.started,
		Duration:      r.now().Sub(r.started),
		Issues:        len(r.issues),
		BySeverity:    make(map[schemas.Severity]int),
		ByType:        make(map[schemas.IssueType]int),
		Actions:       r.actions.Total(),
		FailedActions: r.failedActions,
		ActionsByKind: make(map[schemas.ActionKind]int),
		UniquePages:   len(r.visits),
	}
	for _, is := range r.issues {
		st.BySeverity[is.Severity]++
		st.ByType[is.Type]++
	}
	for _, rec := range r.actions.Items() {
		st.ActionsByKind[rec.Action.Kind]++
	}
	for _, n := range r.visits {
		st.PageVisits += n
	}
	return st
}

// GenerateReport writes report.md, a summary header followed by the live
// issue log exactly as it was appended, plus issues.sarif. It returns the
// path of report.md.
func (r *Reporter) GenerateReport(summary string) (string, error) {
	path := filepath.Join(r.opts.Dir, ReportFileName)
	if err := r.writeReport(path, "Exploration Report", summary); err != nil {
		return "", err
	}
	if err := r.writeSARIF(filepath.Join(r.opts.Dir, SARIFFileName)); err != nil {
		r.logger.Warn("Failed to write SARIF export.", zap.Error(err))
	}
	r.logger.Info("Final report written.", zap.String("path", path))
	return path, nil
}

var labelSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// GenerateIntermediateReport writes a self-contained snapshot of the session
// to its own file and returns the path.
func (r *Reporter) GenerateIntermediateReport(label string) (string, error) {
	slug := strings.Trim(labelSanitizer.ReplaceAllString(strings.ToLower(label), "-"), "-")
	if slug == "" {
		slug = "snapshot"
	}
	name := fmt.Sprintf("report-%s-%s.md", slug, r.now().Format("20060102-150405"))
	path := filepath.Join(r.opts.Dir, name)
	if err := r.writeReport(path, "Intermediate Report: "+label, ""); err != nil {
		return "", err
	}
	r.logger.Debug("Intermediate report written.", zap.String("path", path))
	return path, nil
}

func (r *Reporter) writeReport(path, title, summary string) error {
	r.mu.Lock()
	header := r.renderHeaderLocked(title, summary)
	r.mu.Unlock()

	body, err := os.ReadFile(r.LivePath())
	if err != nil {
		return fmt.Errorf("failed to read live report: %w", err)
	}
	if len(body) == 0 {
		body = []byte("_No issues detected._\n")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append([]byte(header), body...), 0o644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize report %s: %w", path, err)
	}
	return nil
}

func (r *Reporter) writeSARIF(path string) error {
	r.mu.Lock()
	issues := append([]schemas.Issue(nil), r.issues...)
	started, ended := r.started, r.now()
	r.mu.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteSARIF(f, issues, r.opts.ToolVersion, started, ended); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Close releases the live file. Reports can no longer be appended to.
func (r *Reporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live == nil {
		return nil
	}
	err := r.live.Close()
	r.live = nil
	return err
}

func (r *Reporter) renderHeaderLocked(title, summary string) string {
	st := r.statsLocked()
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", title)
	if r.opts.SessionID != "" {
		fmt.Fprintf(&b, "- **Session:** %s\n", r.opts.SessionID)
	}
	if r.opts.Target != "" {
		fmt.Fprintf(&b, "- **Target:** %s\n", r.opts.Target)
	}
	if r.opts.Mode != "" {
		fmt.Fprintf(&b, "- **Mode:** %s\n", r.opts.Mode)
	}
	fmt.Fprintf(&b, "- **Started:** %s\n", st.Started.Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Duration:** %s\n", st.Duration.Round(time.Second))
	fmt.Fprintf(&b, "- **Actions:** %d (%d failed)\n", st.Actions, st.FailedActions)
	fmt.Fprintf(&b, "- **Pages visited:** %d unique, %d total\n", st.UniquePages, st.PageVisits)
	fmt.Fprintf(&b, "- **Issues:** %d\n\n", st.Issues)

	b.WriteString("## Severity Breakdown\n\n| Severity | Count |\n|---|---|\n")
	for _, sev := range schemas.Severities {
		fmt.Fprintf(&b, "| %s | %d |\n", sev, st.BySeverity[sev])
	}
	b.WriteString("\n")

	if len(st.ByType) > 0 {
		types := make([]string, 0, len(st.ByType))
		for t := range st.ByType {
			types = append(types, string(t))
		}
		sort.Strings(types)
		b.WriteString("## Issue Types\n\n| Type | Count |\n|---|---|\n")
		for _, t := range types {
			fmt.Fprintf(&b, "| %s | %d |\n", t, st.ByType[schemas.IssueType(t)])
		}
		b.WriteString("\n")
	}

	if len(st.ActionsByKind) > 0 {
		kinds := make([]string, 0, len(st.ActionsByKind))
		for k := range st.ActionsByKind {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		fmt.Fprintf(&b, "## Recent Actions (last %d)\n\n| Kind | Count |\n|---|---|\n", r.actions.Len())
		for _, k := range kinds {
			fmt.Fprintf(&b, "| %s | %d |\n", k, st.ActionsByKind[schemas.ActionKind(k)])
		}
		b.WriteString("\n")
	}

	if s := strings.TrimSpace(summary); s != "" {
		fmt.Fprintf(&b, "## Summary\n\n%s\n\n", s)
	}

	if len(r.visitOrder) > 0 {
		b.WriteString("## Visited Pages\n\n")
		for _, p := range r.visitOrder {
			fmt.Fprintf(&b, "- `%s` (%d)\n", p, r.visits[p])
		}
		b.WriteString("\n")
	}

	b.WriteString("# Issues\n\n")
	return b.String()
}

func renderIssue(is schemas.Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s [%s] %s\n\n", is.Key(), strings.ToUpper(string(is.Severity)), oneLine(is.Title))
	fmt.Fprintf(&b, "- **Type:** %s\n", is.Type)
	fmt.Fprintf(&b, "- **Severity:** %s\n", is.Severity)
	fmt.Fprintf(&b, "- **URL:** %s\n", is.URL)
	if is.Viewport.Width > 0 {
		fmt.Fprintf(&b, "- **Viewport:** %s (%dx%d)\n", is.Viewport.Name, is.Viewport.Width, is.Viewport.Height)
	}
	fmt.Fprintf(&b, "- **Time:** %s\n", is.Timestamp.Format(time.RFC3339))
	if is.Screenshot != "" {
		fmt.Fprintf(&b, "- **Screenshot:** %s\n", is.Screenshot)
	}
	fmt.Fprintf(&b, "\n### Description\n\n%s\n", strings.TrimSpace(is.Description))
	if a := strings.TrimSpace(is.Analysis); a != "" {
		fmt.Fprintf(&b, "\n### Analysis\n\n%s\n", a)
	}
	if len(is.Steps) > 0 {
		b.WriteString("\n### Steps to Reproduce\n\n")
		for i, step := range is.Steps {
			fmt.Fprintf(&b, "%d. %s\n", i+1, step.String())
		}
	}
	b.WriteString("\n---\n\n")
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
