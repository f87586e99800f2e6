package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Models wrap JSON in markdown fences or emit trailing commas often enough
// that a single mechanical repair pass pays for itself before giving up on
// a response.

var (
	codeFenceRegex     = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	trailingCommaRegex = regexp.MustCompile(`,\s*([}\]])`)
)

// RepairJSON applies the mechanical fixes: strip markdown fences, cut
// leading/trailing prose around the outermost JSON value, and remove
// trailing commas before closing brackets.
func RepairJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if m := codeFenceRegex.FindStringSubmatch(s); len(m) == 2 {
		s = strings.TrimSpace(m[1])
	}

	// Cut to the outermost object or array.
	start := strings.IndexAny(s, "{[")
	if start > 0 {
		s = s[start:]
	}
	if end := strings.LastIndexAny(s, "}]"); end >= 0 && end < len(s)-1 {
		s = s[:end+1]
	}

	s = trailingCommaRegex.ReplaceAllString(s, "$1")

	return s
}

// ParseJSON unmarshals a model response into out, attempting one repair
// pass when the raw response does not parse.
func ParseJSON(raw string, out interface{}) error {
	if err := json.Unmarshal([]byte(raw), out); err == nil {
		return nil
	}
	repaired := RepairJSON(raw)
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("response is not valid JSON after repair: %w", err)
	}
	return nil
}
