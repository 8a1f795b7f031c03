// File: api/schemas/actions.go
package schemas

import (
	"fmt"
	"time"
)

// ActionKind tags the variant carried by a TestAction.
type ActionKind string

const (
	ActionClick    ActionKind = "click"
	ActionType     ActionKind = "type"
	ActionNavigate ActionKind = "navigate"
	ActionScroll   ActionKind = "scroll"
	ActionWait     ActionKind = "wait"
	ActionResize   ActionKind = "resize"
)

// ScrollDirection values understood by the executor for scroll actions.
const (
	ScrollDown = "down"
	ScrollUp   = "up"
)

// TestAction is a single step taken against the target application. Values are
// built through the constructors below and treated as immutable afterwards.
type TestAction struct {
	Kind        ActionKind    `json:"kind"`
	Selector    string        `json:"selector,omitempty"`
	Value       string        `json:"value,omitempty"`
	URL         string        `json:"url,omitempty"`
	Description string        `json:"description"`
	Viewport    *Viewport     `json:"viewport,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

// Click targets a single element by selector.
func Click(selector, description string) TestAction {
	return TestAction{Kind: ActionClick, Selector: selector, Description: description, Timestamp: time.Now().UTC()}
}

// Type enters text into the element matched by selector.
func Type(selector, text, description string) TestAction {
	return TestAction{Kind: ActionType, Selector: selector, Value: text, Description: description, Timestamp: time.Now().UTC()}
}

// Navigate loads url in the current tab.
func Navigate(url, description string) TestAction {
	return TestAction{Kind: ActionNavigate, URL: url, Description: description, Timestamp: time.Now().UTC()}
}

// Scroll moves the page in the given direction ("up" or "down").
func Scroll(direction, description string) TestAction {
	return TestAction{Kind: ActionScroll, Value: direction, Description: description, Timestamp: time.Now().UTC()}
}

// Wait pauses for d without touching the page.
func Wait(d time.Duration, description string) TestAction {
	return TestAction{Kind: ActionWait, Duration: d, Description: description, Timestamp: time.Now().UTC()}
}

// Resize switches the emulated viewport.
func Resize(vp Viewport, description string) TestAction {
	v := vp
	return TestAction{Kind: ActionResize, Viewport: &v, Description: description, Timestamp: time.Now().UTC()}
}

// Validate reports whether the fields required by the action's tag are present.
func (a TestAction) Validate() error {
	switch a.Kind {
	case ActionClick:
		if a.Selector == "" {
			return fmt.Errorf("click action requires a selector")
		}
	case ActionType:
		if a.Selector == "" {
			return fmt.Errorf("type action requires a selector")
		}
	case ActionNavigate:
		if a.URL == "" {
			return fmt.Errorf("navigate action requires a url")
		}
	case ActionScroll:
		if a.Value != ScrollUp && a.Value != ScrollDown {
			return fmt.Errorf("scroll action requires direction up or down, got %q", a.Value)
		}
	case ActionWait:
		if a.Duration < 0 {
			return fmt.Errorf("wait action requires a non-negative duration")
		}
	case ActionResize:
		if a.Viewport == nil || a.Viewport.Width <= 0 || a.Viewport.Height <= 0 {
			return fmt.Errorf("resize action requires a positive viewport")
		}
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	return nil
}

// String renders the action as a single reproduction step.
func (a TestAction) String() string {
	switch a.Kind {
	case ActionClick:
		return fmt.Sprintf("click %s (%s)", a.Selector, a.Description)
	case ActionType:
		return fmt.Sprintf("type %q into %s", a.Value, a.Selector)
	case ActionNavigate:
		return fmt.Sprintf("navigate to %s", a.URL)
	case ActionScroll:
		return fmt.Sprintf("scroll %s", a.Value)
	case ActionWait:
		return fmt.Sprintf("wait %s", a.Duration)
	case ActionResize:
		if a.Viewport != nil {
			return fmt.Sprintf("resize to %s (%dx%d)", a.Viewport.Name, a.Viewport.Width, a.Viewport.Height)
		}
	}
	return string(a.Kind)
}

// ActionOutcome is the result of executing a TestAction: either Success or a
// Failure carrying the reason.
type ActionOutcome struct {
	Succeeded bool   `json:"succeeded"`
	Reason    string `json:"reason,omitempty"`
}

// Success is the outcome of an action that completed.
func Success() ActionOutcome { return ActionOutcome{Succeeded: true} }

// Failure is the outcome of an action that did not complete.
func Failure(reason string) ActionOutcome { return ActionOutcome{Reason: reason} }
