package reflection

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")
	flatObjectPattern = regexp.MustCompile(`(?s)\{[^{}]*\}`)
)

// parseJSONSafe extracts a JSON object from a model reply: the whole text, then
// a fenced code block, then the first flat {...}. Anything else yields an empty map.
func parseJSONSafe(text string) map[string]interface{} {
	text = strings.TrimSpace(text)
	if m, ok := decodeObject(text); ok {
		return m
	}
	if match := fencedJSONPattern.FindStringSubmatch(text); match != nil {
		if m, ok := decodeObject(strings.TrimSpace(match[1])); ok {
			return m
		}
	}
	if match := flatObjectPattern.FindString(text); match != "" {
		if m, ok := decodeObject(match); ok {
			return m
		}
	}
	return map[string]interface{}{}
}

func decodeObject(s string) (map[string]interface{}, bool) {
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(s), &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

// optionalString returns a trimmed non-empty string value or nil
func optionalString(m map[string]interface{}, key string) *string {
	s, ok := m[key].(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func parseValidation(m map[string]interface{}) ValidationResult {
	v := ValidationResult{Consistency: ConsistencyUnknown, Conflicts: []string{}}

	if c, ok := m["consistency"].(string); ok {
		switch c = strings.ToLower(strings.TrimSpace(c)); c {
		case ConsistencyHigh, ConsistencyMedium, ConsistencyLow:
			v.Consistency = c
		}
	}
	if list, ok := m["conflicts"].([]interface{}); ok {
		for _, item := range list {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				v.Conflicts = append(v.Conflicts, strings.TrimSpace(s))
			}
		}
	}
	if f, ok := m["confidence"].(float64); ok {
		switch {
		case f < 0:
			f = 0
		case f > 1:
			f = 1
		}
		v.Confidence = f
	}
	return v
}
