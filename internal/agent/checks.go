// File: internal/agent/checks.go
package agent

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
	"github.com/xkilldash9x/explorer-cli/internal/memory"
	"github.com/xkilldash9x/explorer-cli/internal/oracle"
)

const maxTitleText = 80

// anomalyChecker turns the deterministic signals of a PageState into issue
// drafts. Drafts carry no id, steps or screenshot; the orchestrator fills
// those in when it logs them.
type anomalyChecker struct {
	// seenA11y holds "path\x00rule" keys already reported this session.
	seenA11y map[string]struct{}
}

func newAnomalyChecker() *anomalyChecker {
	return &anomalyChecker{seenA11y: make(map[string]struct{})}
}

// checkForIssues runs the deterministic checks in priority order: console
// errors, HTTP errors, then accessibility violations.
func (c *anomalyChecker) checkForIssues(page *schemas.PageState) []schemas.Issue {
	if page == nil {
		return nil
	}
	var drafts []schemas.Issue

	for _, msg := range page.ConsoleErrors {
		drafts = append(drafts, c.draft(page, schemas.SeverityMajor, schemas.IssueConsoleError,
			"Console error: "+clip(firstLine(msg), maxTitleText),
			fmt.Sprintf("The browser console reported an error on %s:\n\n%s", memory.NormalizePath(page.URL), msg)))
	}

	for _, he := range page.HTTPErrors {
		severity := schemas.SeverityMajor
		if he.Status >= 500 {
			severity = schemas.SeverityCritical
		}
		drafts = append(drafts, c.draft(page, severity, schemas.IssueHTTPError,
			fmt.Sprintf("HTTP %d on %s", he.Status, clip(he.URL, maxTitleText)),
			fmt.Sprintf("Request to %s failed with %d %s.", he.URL, he.Status, he.StatusText)))
	}

	path := memory.NormalizePath(page.URL)
	for _, v := range page.A11yViolations {
		if v.Impact != schemas.ImpactCritical && v.Impact != schemas.ImpactSerious {
			continue
		}
		key := path + "\x00" + v.ID
		if _, dup := c.seenA11y[key]; dup {
			continue
		}
		c.seenA11y[key] = struct{}{}

		severity := schemas.SeverityMinor
		if v.Impact == schemas.ImpactCritical {
			severity = schemas.SeverityMajor
		}
		desc := fmt.Sprintf("%s (rule %s, impact %s, %d element(s)).", v.Description, v.ID, v.Impact, v.Nodes)
		if v.Help != "" {
			desc += "\n\n" + v.Help
		}
		drafts = append(drafts, c.draft(page, severity, schemas.IssueAccessibility,
			fmt.Sprintf("Accessibility: %s on %s", v.ID, path), desc))
	}
	return drafts
}

// judgmentIssue converts a positive oracle judgment into a draft.
func (c *anomalyChecker) judgmentIssue(page *schemas.PageState, j oracle.Judgment) schemas.Issue {
	draft := c.draft(page, j.Severity, schemas.IssueVisual,
		"Suspected defect: "+clip(firstLine(j.Description), maxTitleText), j.Description)
	draft.Analysis = j.Suggestion
	return draft
}

func (c *anomalyChecker) draft(page *schemas.PageState, sev schemas.Severity, typ schemas.IssueType, title, desc string) schemas.Issue {
	return schemas.Issue{
		Severity:    sev,
		Type:        typ,
		Title:       title,
		Description: desc,
		URL:         page.URL,
		Viewport:    page.Viewport,
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
