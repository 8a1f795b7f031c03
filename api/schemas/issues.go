// File: api/schemas/issues.go
package schemas

import (
	"fmt"
	"time"
)

// Severity ranks how bad a detected anomaly is.
type Severity string

const (
	SeverityCritical   Severity = "critical"
	SeverityMajor      Severity = "major"
	SeverityMinor      Severity = "minor"
	SeveritySuggestion Severity = "suggestion"
)

// Severities lists every severity from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityMajor, SeverityMinor, SeveritySuggestion}

// ParseSeverity maps free text onto a Severity, defaulting to minor.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityCritical, SeverityMajor, SeverityMinor, SeveritySuggestion:
		return Severity(s)
	}
	return SeverityMinor
}

// IssueType classifies the signal channel an Issue came from.
type IssueType string

const (
	IssueConsoleError  IssueType = "console_error"
	IssueHTTPError     IssueType = "http_error"
	IssueVisual        IssueType = "visual"
	IssueBehavioral    IssueType = "behavioral"
	IssueAccessibility IssueType = "accessibility"
	IssueCrash         IssueType = "crash"
)

// Issue is an immutable anomaly record. ID is assigned by the reporter when the
// issue is logged.
type Issue struct {
	ID          int          `json:"id"`
	Severity    Severity     `json:"severity"`
	Type        IssueType    `json:"type"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Screenshot  string       `json:"screenshot,omitempty"`
	Steps       []TestAction `json:"steps"`
	URL         string       `json:"url"`
	Viewport    Viewport     `json:"viewport"`
	Timestamp   time.Time    `json:"timestamp"`
	Analysis    string       `json:"analysis,omitempty"`
}

// Key is the human-facing identifier, e.g. ISSUE-007.
func (i Issue) Key() string {
	return fmt.Sprintf("ISSUE-%03d", i.ID)
}
