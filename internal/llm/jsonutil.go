package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	// fencePattern matches markdown code blocks with an optional language tag.
	fencePattern = regexp.MustCompile("(?s)```([A-Za-z]*)\\s*\\n?(.*?)```")
	// objectPattern is the greedy last-resort object match.
	objectPattern = regexp.MustCompile(`(?s)\{.*\}`)
	// arrayPattern is the greedy last-resort array match.
	arrayPattern = regexp.MustCompile(`(?s)\[.*\]`)
	// trailingCommaPattern matches trailing commas before ] or }.
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON returns the first JSON object in content, or "" when none parses.
// Fenced blocks win over bare objects; comments and trailing commas are cleaned first.
func ExtractJSON(content string) string {
	return extract(content, '{', '}', objectPattern)
}

// ExtractJSONArray returns the first JSON array in content, or "" when none parses.
func ExtractJSONArray(content string) string {
	return extract(content, '[', ']', arrayPattern)
}

// DecodeObject extracts the first JSON object from content and unmarshals it into T.
func DecodeObject[T any](content string) (T, error) {
	var out T
	raw := ExtractJSON(content)
	if raw == "" {
		return out, ErrNoJSON
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, fmt.Errorf("decode json object: %w", err)
	}
	return out, nil
}

// DecodeArray extracts the first JSON array from content and unmarshals it into []T.
func DecodeArray[T any](content string) ([]T, error) {
	raw := ExtractJSONArray(content)
	if raw == "" {
		return nil, ErrNoJSON
	}
	var out []T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode json array: %w", err)
	}
	return out, nil
}

func extract(content string, open, closeCh byte, greedy *regexp.Regexp) string {
	for _, m := range fencePattern.FindAllStringSubmatch(content, -1) {
		lang := strings.ToLower(m[1])
		if lang != "" && lang != "json" {
			continue
		}
		body := strings.TrimSpace(m[2])
		if len(body) == 0 || body[0] != open {
			continue
		}
		if cleaned := cleanJSON(balanced(body, open, closeCh)); json.Valid([]byte(cleaned)) {
			return cleaned
		}
	}

	for start := strings.IndexByte(content, open); start >= 0; {
		if cleaned := cleanJSON(balanced(content[start:], open, closeCh)); cleaned != "" && json.Valid([]byte(cleaned)) {
			return cleaned
		}
		next := strings.IndexByte(content[start+1:], open)
		if next < 0 {
			break
		}
		start += next + 1
	}

	if m := greedy.FindString(content); m != "" {
		if cleaned := cleanJSON(m); json.Valid([]byte(cleaned)) {
			return cleaned
		}
	}
	return ""
}

// balanced returns the prefix of s that closes the bracket s starts with, honoring strings.
func balanced(s string, open, closeCh byte) string {
	if len(s) == 0 || s[0] != open {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case open:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}

// cleanJSON removes // comments outside strings and trailing commas, both common in model output.
func cleanJSON(raw string) string {
	if raw == "" {
		return ""
	}
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = stripLineComment(line)
	}
	return trailingCommaPattern.ReplaceAllString(strings.Join(lines, "\n"), "$1")
}

func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}
	inString := false
	escaped := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/' {
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}
