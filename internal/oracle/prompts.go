// File: internal/oracle/prompts.go
package oracle

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
)

const (
	maxPromptVisited = 15
	maxPromptBody    = 1500
	maxSummaryIssues = 25
)

const decisionSystemPrompt = `You are an autonomous QA tester exploring a web application.
You see a numbered list of interactive elements on the current page. Each carries a novelty
score between 0.1 and 1.0; higher means the element has been tried less often, so prefer it
unless the objective clearly needs something else.

Respond with a single JSON object and nothing else:
{"index": <1-based element number>, "action": "click" | "type" | "navigate" | "scroll",
 "value": "<text to type or scroll direction up|down>", "url": "<url when navigating>",
 "reasoning": "<one sentence>"}

Rules:
- "click" and "type" require "index" from the list.
- "type" is only valid on text inputs and requires "value".
- "navigate" requires "url" and should be rare.
- Never choose an element that would upload files or log the user out.`

const analysisSystemPrompt = `You are a meticulous QA engineer reviewing a single page of a web application
for visual, content and behavioral defects: broken layouts, error banners, placeholder text, empty
states that should not be empty, contradictory content.

Respond with a single JSON object and nothing else:
{"isIssue": true|false, "severity": "critical" | "major" | "minor" | "suggestion",
 "description": "<what is wrong>", "suggestion": "<how to fix it>"}
Answer {"isIssue": false} when the page looks healthy.`

const summarySystemPrompt = `You are a QA lead writing the executive summary of an exploratory test session.
Write two or three short paragraphs of plain prose: what was covered, the most important problems
found, and where the team should look first. Do not use headings or lists.`

const warmUpPrompt = `Reply with the single word OK.`

// buildDecisionPrompt renders the user prompt for DecideNextAction.
func buildDecisionPrompt(dc DecisionContext) string {
	var b strings.Builder
	if dc.Objective != "" {
		fmt.Fprintf(&b, "Objective: %s\n", dc.Objective)
	}
	if dc.Mission != nil {
		fmt.Fprintf(&b, "Mission: %s\nPersona: %s\nGoal: %s\n", dc.Mission.Name, dc.Mission.Persona, dc.Mission.Goal)
	}
	if dc.Page != nil {
		fmt.Fprintf(&b, "\nCurrent page: %s\nTitle: %s\n", dc.Page.URL, dc.Page.Title)
		if dc.Page.Viewport.Name != "" {
			fmt.Fprintf(&b, "Viewport: %s (%dx%d)\n", dc.Page.Viewport.Name, dc.Page.Viewport.Width, dc.Page.Viewport.Height)
		}
	}

	b.WriteString("\nElements:\n")
	for i, el := range dc.Candidates {
		novelty, ok := dc.Novelty[el.Selector]
		if !ok {
			novelty = 1.0
		}
		role := el.Role
		if role == "" {
			role = el.Tag
		}
		fmt.Fprintf(&b, "%d. [%s] %q novelty=%.1f\n", i+1, role, el.Text, novelty)
	}

	if len(dc.RecentActions) > 0 {
		b.WriteString("\nRecent actions (oldest first):\n")
		for _, a := range dc.RecentActions {
			fmt.Fprintf(&b, "- %s\n", a.String())
		}
	}

	if len(dc.Visited) > 0 {
		visited := dc.Visited
		if len(visited) > maxPromptVisited {
			visited = visited[len(visited)-maxPromptVisited:]
		}
		fmt.Fprintf(&b, "\nAlready visited: %s\n", strings.Join(visited, ", "))
	}

	b.WriteString("\nChoose the next action. Respond with JSON only.")
	return b.String()
}

// buildAnalysisPrompt renders the user prompt for AnalyzeForIssues.
func buildAnalysisPrompt(page *schemas.PageState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\nTitle: %s\n", page.URL, page.Title)
	fmt.Fprintf(&b, "Viewport: %s (%dx%d)\n", page.Viewport.Name, page.Viewport.Width, page.Viewport.Height)
	fmt.Fprintf(&b, "Interactive elements: %d\n", len(page.Elements))
	if len(page.LayoutIssues) > 0 {
		b.WriteString("Layout heuristics:\n")
		for _, li := range page.LayoutIssues {
			fmt.Fprintf(&b, "- %s: %s\n", li.Kind, li.Description)
		}
	}
	body := page.BodyText
	if len(body) > maxPromptBody {
		body = body[:maxPromptBody]
	}
	fmt.Fprintf(&b, "\nVisible text:\n%s\n", body)
	return b.String()
}

// buildSummaryPrompt renders the user prompt for Summarize.
func buildSummaryPrompt(actions []schemas.TestAction, issues []schemas.Issue) string {
	var b strings.Builder
	counts := make(map[schemas.ActionKind]int)
	pages := make(map[string]struct{})
	for _, a := range actions {
		counts[a.Kind]++
		if a.Kind == schemas.ActionNavigate {
			pages[a.URL] = struct{}{}
		}
	}
	fmt.Fprintf(&b, "Actions taken: %d (", len(actions))
	first := true
	for _, k := range []schemas.ActionKind{schemas.ActionClick, schemas.ActionType, schemas.ActionNavigate, schemas.ActionScroll, schemas.ActionWait, schemas.ActionResize} {
		if counts[k] == 0 {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%d", k, counts[k])
		first = false
	}
	fmt.Fprintf(&b, ")\nDistinct navigations: %d\n", len(pages))

	fmt.Fprintf(&b, "\nIssues found: %d\n", len(issues))
	for i, is := range issues {
		if i == maxSummaryIssues {
			fmt.Fprintf(&b, "... and %d more\n", len(issues)-maxSummaryIssues)
			break
		}
		fmt.Fprintf(&b, "- [%s/%s] %s at %s\n", is.Severity, is.Type, is.Title, is.URL)
	}
	return b.String()
}
