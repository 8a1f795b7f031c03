// File: api/schemas/page.go
package schemas

import "time"

// Viewport is a named emulated screen size.
type Viewport struct {
	Name   string `json:"name" mapstructure:"name" yaml:"name"`
	Width  int    `json:"width" mapstructure:"width" yaml:"width"`
	Height int    `json:"height" mapstructure:"height" yaml:"height"`
}

// Rect is the bounding box of an element in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Interactive roles the fallback policy prefers.
const (
	RoleButton = "button"
	RoleLink   = "link"
)

// InteractiveElement is a snapshot of one controllable element on the page.
// It is produced fresh on every page read and never mutated.
type InteractiveElement struct {
	Selector string `json:"selector"`
	Tag      string `json:"tag"`
	Text     string `json:"text"`
	Role     string `json:"role"`
	Visible  bool   `json:"visible"`
	Disabled bool   `json:"disabled"`
	Bounds   Rect   `json:"bounds"`
}

// IsClickableRole reports whether the element acts as a button or link.
func (e InteractiveElement) IsClickableRole() bool {
	return e.Role == RoleButton || e.Role == RoleLink
}

// AcceptsText reports whether the element takes typed input.
func (e InteractiveElement) AcceptsText() bool {
	switch e.Tag {
	case "input", "textarea":
		return true
	}
	return e.Role == "textbox" || e.Role == "searchbox"
}

// HTTPError is a failed response observed on the network.
type HTTPError struct {
	URL        string `json:"url"`
	Status     int    `json:"status"`
	StatusText string `json:"statusText"`
}

// A11yViolation is a single accessibility rule failure.
type A11yViolation struct {
	ID          string `json:"id"`
	Impact      string `json:"impact"`
	Description string `json:"description"`
	Help        string `json:"help,omitempty"`
	Nodes       int    `json:"nodes"`
}

// Impact levels reported for accessibility violations.
const (
	ImpactCritical = "critical"
	ImpactSerious  = "serious"
	ImpactModerate = "moderate"
	ImpactMinor    = "minor"
)

// LayoutIssue is a layout heuristic hit such as horizontal overflow.
type LayoutIssue struct {
	Kind        string `json:"kind"`
	Selector    string `json:"selector,omitempty"`
	Description string `json:"description"`
}

// PageState is the aggregate snapshot returned by the executor. The error and
// violation lists only contain what was collected since the previous read.
type PageState struct {
	URL            string               `json:"url"`
	Title          string               `json:"title"`
	Elements       []InteractiveElement `json:"elements"`
	ConsoleErrors  []string             `json:"consoleErrors"`
	HTTPErrors     []HTTPError          `json:"httpErrors"`
	A11yViolations []A11yViolation      `json:"a11yViolations"`
	LayoutIssues   []LayoutIssue        `json:"layoutIssues"`
	Viewport       Viewport             `json:"viewport"`
	BodyText       string               `json:"bodyText"`
	Timestamp      time.Time            `json:"timestamp"`
}

// ElementBySelector returns the element with the given selector, if present.
func (p *PageState) ElementBySelector(selector string) (InteractiveElement, bool) {
	if p == nil {
		return InteractiveElement{}, false
	}
	for _, el := range p.Elements {
		if el.Selector == selector {
			return el, true
		}
	}
	return InteractiveElement{}, false
}

// BlockedUpload records a native file chooser that was intercepted and cancelled.
type BlockedUpload struct {
	Timestamp time.Time `json:"timestamp"`
	URL       string    `json:"url"`
	Mode      string    `json:"mode"`
}
