package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON indicates no strategy could decode a JSON object from the text.
var ErrNoJSON = errors.New("llm: no JSON object in response")

var fencedJSON = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)```")

// ParseJSON decodes a JSON object from model output. It tries, in order:
// the whole text, the first fenced block, and the first brace-delimited span.
func ParseJSON[T any](text string) (T, error) {
	var out T
	text = strings.TrimSpace(text)
	if text == "" {
		return out, ErrNoJSON
	}

	if err := json.Unmarshal([]byte(text), &out); err == nil {
		return out, nil
	}

	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		var fenced T
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &fenced); err == nil {
			return fenced, nil
		}
	}

	if obj, ok := firstObject(text); ok {
		var braced T
		if err := json.Unmarshal([]byte(obj), &braced); err == nil {
			return braced, nil
		}
	}

	var zero T
	return zero, ErrNoJSON
}

// firstObject returns the first balanced {...} span, honoring string
// literals so braces inside code samples do not end the object early.
func firstObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
