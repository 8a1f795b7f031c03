// File: internal/discovery/categorize.go
package discovery

import (
	"strings"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
)

// Category is a coarse, heuristic grouping of a feature.
type Category string

const (
	CategoryNavigation   Category = "navigation"
	CategorySettings     Category = "settings"
	CategoryModalTrigger Category = "modal-trigger"
	CategoryFormInput    Category = "form-input"
	CategoryAction       Category = "action"
	CategoryOther        Category = "other"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryNavigation, CategorySettings, CategoryModalTrigger,
	CategoryFormInput, CategoryAction, CategoryOther,
}

var (
	formInputTags  = map[string]bool{"input": true, "textarea": true, "select": true}
	formInputRoles = map[string]bool{
		"textbox": true, "searchbox": true, "combobox": true, "checkbox": true,
		"radio": true, "switch": true, "slider": true, "spinbutton": true,
	}

	settingsKeywords = []string{"setting", "preference", "profile", "account", "theme", "language", "notification", "privacy"}
	modalKeywords    = []string{"modal", "dialog", "popup", "open", "new ", "add ", "create", "+", "more options", "menu"}
	navKeywords      = []string{"nav", "home", "back", "next", "previous", "dashboard", "breadcrumb", "tab"}
	actionKeywords   = []string{"save", "submit", "delete", "remove", "vote", "send", "publish", "share", "copy", "confirm", "cancel", "close", "duplicate", "export", "import", "reset", "start", "finish"}
)

// Categorize classifies an element by tag, role, text and selector. It never
// fails; anything unrecognised is CategoryOther.
func Categorize(el schemas.InteractiveElement) Category {
	tag := strings.ToLower(el.Tag)
	role := strings.ToLower(el.Role)
	haystack := strings.ToLower(el.Text + " " + el.Selector)

	switch {
	case formInputTags[tag] || formInputRoles[role]:
		return CategoryFormInput
	case containsAny(haystack, settingsKeywords):
		return CategorySettings
	case containsAny(haystack, modalKeywords):
		return CategoryModalTrigger
	case tag == "a" || role == schemas.RoleLink || containsAny(haystack, navKeywords):
		return CategoryNavigation
	case containsAny(haystack, actionKeywords) || tag == "button" || role == schemas.RoleButton:
		return CategoryAction
	}
	return CategoryOther
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
