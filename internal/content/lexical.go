package content

import (
	"strings"
)

func lexicalText(text string) map[string]any {
	return map[string]any{
		"type":    "text",
		"detail":  0,
		"format":  0,
		"mode":    "normal",
		"style":   "",
		"text":    text,
		"version": 1,
	}
}

func lexicalParagraph(text string) map[string]any {
	return map[string]any{
		"type":       "paragraph",
		"children":   []any{lexicalText(text)},
		"direction":  "ltr",
		"format":     "",
		"indent":     0,
		"textFormat": 0,
		"version":    1,
	}
}

func lexicalHeading(tag, text string) map[string]any {
	return map[string]any{
		"type":      "heading",
		"tag":       tag,
		"children":  []any{lexicalText(text)},
		"direction": "ltr",
		"format":    "",
		"indent":    0,
		"version":   1,
	}
}

func lexicalRoot(children []any) map[string]any {
	return map[string]any{
		"root": map[string]any{
			"type":      "root",
			"children":  children,
			"direction": "ltr",
			"format":    "",
			"indent":    0,
			"version":   1,
		},
	}
}

// ToLexical wraps plain text in a root > paragraph > text rich text document.
func ToLexical(text string) map[string]any {
	return lexicalRoot([]any{lexicalParagraph(text)})
}

// MarkdownToLexical converts blank-line separated paragraphs and "#" headings into rich text.
// Inline markup is kept as literal text.
func MarkdownToLexical(md string) map[string]any {
	var children []any
	for _, chunk := range strings.Split(strings.ReplaceAll(md, "\r\n", "\n"), "\n\n") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		if level, title, ok := markdownHeading(chunk); ok {
			children = append(children, lexicalHeading("h"+string(rune('0'+level)), title))
			continue
		}
		children = append(children, lexicalParagraph(chunk))
	}
	if len(children) == 0 {
		children = []any{lexicalParagraph("")}
	}
	return lexicalRoot(children)
}

func markdownHeading(chunk string) (int, string, bool) {
	if strings.Contains(chunk, "\n") {
		return 0, "", false
	}
	level := 0
	for level < len(chunk) && level < 6 && chunk[level] == '#' {
		level++
	}
	if level == 0 || level >= len(chunk) || chunk[level] != ' ' {
		return 0, "", false
	}
	return level, strings.TrimSpace(chunk[level:]), true
}

// IsLexical reports whether v already has the rich text root shape.
func IsLexical(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	_, ok = m["root"].(map[string]any)
	return ok
}
