// File: internal/reporting/sarif.go
package reporting

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
	"github.com/xkilldash9x/explorer-cli/internal/reporting/sarif"
)

const (
	ToolName    = "Explorer CLI"
	ToolInfoURI = "https://github.com/xkilldash9x/explorer-cli"
)

// ruleIDSanitizer collapses anything outside [A-Za-z0-9_.] into one hyphen.
var ruleIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_.]+`)

var ruleHelp = map[schemas.IssueType]string{
	schemas.IssueConsoleError:  "The page wrote an error to the browser console.",
	schemas.IssueHTTPError:     "A request issued by the page failed with an HTTP error status.",
	schemas.IssueVisual:        "The page layout looks broken at the current viewport.",
	schemas.IssueBehavioral:    "The application reacted in a way a user would find confusing or frustrating.",
	schemas.IssueAccessibility: "An accessibility rule with critical or serious impact failed.",
	schemas.IssueCrash:         "The exploration session stopped unexpectedly.",
}

// RuleID maps an issue type onto a stable SARIF rule id.
func RuleID(t schemas.IssueType) string {
	name := strings.Trim(ruleIDSanitizer.ReplaceAllString(strings.ToUpper(string(t)), "-"), "-")
	if name == "" {
		name = "UNKNOWN"
	}
	return "EXPLORER-" + name
}

// SARIFLevel maps issue severity onto a SARIF level.
func SARIFLevel(s schemas.Severity) sarif.Level {
	switch s {
	case schemas.SeverityCritical:
		return sarif.LevelError
	case schemas.SeverityMajor:
		return sarif.LevelWarning
	default:
		return sarif.LevelNote
	}
}

// WriteSARIF renders issues as a SARIF 2.1.0 log with one rule per issue type.
func WriteSARIF(w io.Writer, issues []schemas.Issue, toolVersion string, started, ended time.Time) error {
	driver := &sarif.ToolComponent{
		Name:           ToolName,
		InformationURI: sarif.String(ToolInfoURI),
		Rules:          []*sarif.ReportingDescriptor{},
	}
	if toolVersion != "" {
		driver.Version = sarif.String(toolVersion)
	}
	run := &sarif.Run{
		Tool: &sarif.Tool{Driver: driver},
		Invocations: []*sarif.Invocation{{
			ExecutionSuccessful: !hasCrash(issues),
			StartTimeUTC:        sarif.String(started.UTC().Format(time.RFC3339)),
			EndTimeUTC:          sarif.String(ended.UTC().Format(time.RFC3339)),
		}},
		Results: []*sarif.Result{},
	}

	seenRules := make(map[string]bool)
	for _, is := range issues {
		ruleID := RuleID(is.Type)
		if !seenRules[ruleID] {
			seenRules[ruleID] = true
			help := ruleHelp[is.Type]
			driver.Rules = append(driver.Rules, &sarif.ReportingDescriptor{
				ID:               ruleID,
				Name:             sarif.String(string(is.Type)),
				ShortDescription: &sarif.MultiformatMessageString{Text: sarif.String(string(is.Type))},
				Help:             &sarif.MultiformatMessageString{Text: sarif.String(help)},
				Properties:       sarif.PropertyBag{"tags": []string{"qa", "exploration"}},
			})
		}

		text := is.Title
		if is.Description != "" {
			text = is.Title + ": " + is.Description
		}
		props := sarif.PropertyBag{
			"issue":     is.Key(),
			"severity":  string(is.Severity),
			"timestamp": is.Timestamp.UTC().Format(time.RFC3339),
		}
		if is.Viewport.Name != "" {
			props["viewport"] = is.Viewport.Name
		}
		if is.Screenshot != "" {
			props["screenshot"] = is.Screenshot
		}
		run.Results = append(run.Results, &sarif.Result{
			RuleID:  ruleID,
			Message: &sarif.Message{Text: sarif.String(text)},
			Level:   SARIFLevel(is.Severity),
			Locations: []*sarif.Location{{
				PhysicalLocation: &sarif.PhysicalLocation{
					ArtifactLocation: &sarif.ArtifactLocation{URI: sarif.String(is.URL)},
				},
			}},
			Properties: props,
		})
	}

	log := &sarif.Log{Version: sarif.Version, Schema: sarif.Schema, Runs: []*sarif.Run{run}}
	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode SARIF output: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write SARIF output: %w", err)
	}
	return nil
}

func hasCrash(issues []schemas.Issue) bool {
	for _, is := range issues {
		if is.Type == schemas.IssueCrash {
			return true
		}
	}
	return false
}
