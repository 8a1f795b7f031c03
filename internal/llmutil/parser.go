// File: internal/llmutil/parser.go
package llmutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	json "github.com/json-iterator/go"
)

var (
	// \x60 is a backtick; raw strings cannot hold one.
	fencedObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")
	leadingIntRegex   = regexp.MustCompile(`^\s*#?\s*(-?\d+)\b`)
)

// ExtractJSONObject returns the JSON object embedded in a model answer. It
// handles markdown fences and objects surrounded by prose.
func ExtractJSONObject(response string) (string, bool) {
	response = strings.TrimSpace(response)
	if m := fencedObjectRegex.FindStringSubmatch(response); len(m) > 1 {
		return m[1], true
	}
	first := strings.Index(response, "{")
	last := strings.LastIndex(response, "}")
	if first == -1 || last <= first {
		return "", false
	}
	return response[first : last+1], true
}

// ParseJSONResponse decodes the JSON object found in response into T.
func ParseJSONResponse[T any](response string) (*T, error) {
	raw, ok := ExtractJSONObject(response)
	if !ok {
		return nil, fmt.Errorf("no JSON object in LLM response: %s", truncate(response, 200))
	}
	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, truncate(raw, 500))
	}
	return &out, nil
}

// ParseLeadingInt reads an answer that is just a number, such as "3" or
// "#3. the save button".
func ParseLeadingInt(response string) (int, bool) {
	m := leadingIntRegex.FindStringSubmatch(response)
	if len(m) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
