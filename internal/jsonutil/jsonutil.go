// Package jsonutil parses JSON out of model responses that may arrive
// wrapped in markdown fences or surrounded by prose.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"strings"
)

// stripFences removes a leading ```json (or bare ```) fence and its closing
// fence. Text without fences is returned unchanged.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 3 {
		return text
	}
	end := len(lines) - 1
	for i := end; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			end = i
			break
		}
	}
	return strings.Join(lines[1:end], "\n")
}

// extract returns the outermost JSON object or array embedded in text.
func extract(text string) (string, error) {
	start := strings.IndexAny(text, "{[")
	if start == -1 {
		return "", fmt.Errorf("no JSON content found")
	}
	close := "}"
	if text[start] == '[' {
		close = "]"
	}
	end := strings.LastIndex(text, close)
	if end < start {
		return "", fmt.Errorf("no closing %s found", close)
	}
	return text[start : end+1], nil
}

// Unmarshal strips fences, extracts the embedded JSON and unmarshals it into
// T. The raw response never conforms silently: a shape mismatch is an error.
func Unmarshal[T any](raw string) (T, error) {
	var out T

	text, err := extract(stripFences(raw))
	if err != nil {
		return out, fmt.Errorf("%w (response length %d)", err, len(raw))
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		preview := text
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		return out, fmt.Errorf("malformed advisory JSON: %w (text: %s)", err, preview)
	}
	return out, nil
}
