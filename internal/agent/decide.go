// File: internal/agent/decide.go
package agent

import (
	"fmt"
	"math/rand"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
	"github.com/xkilldash9x/explorer-cli/internal/config"
	"github.com/xkilldash9x/explorer-cli/internal/oracle"
)

const (
	defaultElementCap = 20
	defaultTypeText   = "Exploratory test input"
)

// candidates returns the visible, enabled, non-excluded elements in page
// order. The caller ranks and truncates them.
func candidates(page *schemas.PageState, cfg config.AgentConfig) []schemas.InteractiveElement {
	if page == nil {
		return nil
	}
	out := make([]schemas.InteractiveElement, 0, len(page.Elements))
	for _, el := range page.Elements {
		if !el.Visible || el.Disabled || el.Selector == "" || el.Role == "file" {
			continue
		}
		if cfg.IsExcluded(el.Text) {
			continue
		}
		out = append(out, el)
	}
	return out
}

// proposalToAction turns a validated oracle proposal into a concrete action.
// Proposal indexes are 1-based into list.
func proposalToAction(p oracle.Proposal, list []schemas.InteractiveElement, cfg config.AgentConfig, resolve func(string) string) (schemas.TestAction, error) {
	if err := p.Validate(len(list)); err != nil {
		return schemas.TestAction{}, err
	}
	reason := p.Reasoning
	switch p.Kind {
	case schemas.ActionClick:
		el := list[p.Index-1]
		return schemas.Click(el.Selector, describe(el, reason)), nil
	case schemas.ActionType:
		el := list[p.Index-1]
		if !el.AcceptsText() {
			// Weak models sometimes ask to type into buttons; clicking is what they mean.
			return schemas.Click(el.Selector, describe(el, reason)), nil
		}
		text := p.Value
		if text == "" {
			text = typeSampleText(cfg)
		}
		return schemas.Type(el.Selector, text, describe(el, reason)), nil
	case schemas.ActionNavigate:
		return schemas.Navigate(resolve(p.URL), orDefault(reason, "oracle navigation")), nil
	case schemas.ActionScroll:
		return schemas.Scroll(p.Value, orDefault(reason, "oracle scroll")), nil
	}
	return schemas.TestAction{}, fmt.Errorf("%w: unsupported action %q", oracle.ErrUnusableAnswer, p.Kind)
}

// fallbackAction is used whenever the oracle is unavailable or unusable. It
// never fails: the first clickable button or link wins, otherwise a random
// priority route, otherwise the target itself.
func fallbackAction(list []schemas.InteractiveElement, cfg config.AgentConfig, rng *rand.Rand, resolve func(string) string) schemas.TestAction {
	for _, el := range list {
		if el.Visible && !el.Disabled && el.IsClickableRole() && !cfg.IsExcluded(el.Text) {
			return schemas.Click(el.Selector, describe(el, "fallback: first clickable element"))
		}
	}
	if route, ok := pickRandom(cfg.PriorityRoutes, rng); ok {
		return schemas.Navigate(resolve(route), "fallback: random priority route")
	}
	return schemas.Navigate(cfg.TargetURL, "fallback: back to target")
}

func describe(el schemas.InteractiveElement, reason string) string {
	label := el.Text
	if label == "" {
		label = el.Selector
	}
	if reason == "" {
		return clip(label, 60)
	}
	return fmt.Sprintf("%s: %s", clip(label, 60), reason)
}

func typeSampleText(cfg config.AgentConfig) string {
	if cfg.TypeSampleText != "" {
		return cfg.TypeSampleText
	}
	return defaultTypeText
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
