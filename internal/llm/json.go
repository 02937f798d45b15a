package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls a JSON value out of model output. It accepts a bare document, a fenced
// code block with an optional language tag, or the outermost balanced object or array
// embedded in prose.
func ExtractJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty response")
	}

	if json.Valid([]byte(content)) {
		return json.RawMessage(content), nil
	}

	if idx := strings.Index(content, "```"); idx >= 0 {
		inner := content[idx+3:]
		// skip the language tag line, e.g. ```json
		if nl := strings.Index(inner, "\n"); nl >= 0 {
			inner = inner[nl+1:]
		}
		if end := strings.Index(inner, "```"); end >= 0 {
			inner = inner[:end]
		}
		inner = strings.TrimSpace(inner)
		if json.Valid([]byte(inner)) {
			return json.RawMessage(inner), nil
		}
	}

	for _, delims := range [][2]byte{{'{', '}'}, {'[', ']'}} {
		if extracted := extractBalanced(content, delims[0], delims[1]); extracted != "" && json.Valid([]byte(extracted)) {
			return json.RawMessage(extracted), nil
		}
	}

	return nil, fmt.Errorf("no valid JSON found in response")
}

// extractBalanced finds the first balanced open...close block in s, skipping string literals.
func extractBalanced(s string, open, close byte) string {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
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
		if c == open {
			depth++
		} else if c == close {
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
