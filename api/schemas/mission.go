// File: api/schemas/mission.go
package schemas

import "strings"

// Mission is a goal-directed exploration script chosen from a fixed catalog.
type Mission struct {
	ID             string `json:"id" mapstructure:"id" yaml:"id"`
	Name           string `json:"name" mapstructure:"name" yaml:"name"`
	Persona        string `json:"persona" mapstructure:"persona" yaml:"persona"`
	Goal           string `json:"goal" mapstructure:"goal" yaml:"goal"`
	StartRoute     string `json:"startRoute,omitempty" mapstructure:"start_route" yaml:"start_route"`
	SuccessPattern string `json:"successPattern,omitempty" mapstructure:"success_pattern" yaml:"success_pattern"`
}

// SatisfiedBy reports whether the success pattern appears in the page url or
// body text. Missions without a pattern are never satisfied.
func (m Mission) SatisfiedBy(page *PageState) bool {
	if m.SuccessPattern == "" || page == nil {
		return false
	}
	pattern := strings.ToLower(m.SuccessPattern)
	return strings.Contains(strings.ToLower(page.URL), pattern) ||
		strings.Contains(strings.ToLower(page.BodyText), pattern)
}
