// Package agentsync exports published pages and posts to the agent workspace as plain text.
package agentsync

import (
	"sort"
	"strings"
)

type Kind int

const (
	KindEmpty Kind = iota
	KindText
	KindList
	KindObject
)

// Node is the tagged form of a stored content tree. Only text-bearing shapes survive parsing.
type Node struct {
	Kind     Kind
	Text     string
	Children []Node
}

// structural keys never contribute text
var skipKeys = map[string]bool{
	"id":        true,
	"blockType": true,
	"type":      true,
	"version":   true,
	"direction": true,
	"format":    true,
	"indent":    true,
}

// Parse builds a Node tree from decoded JSON. Object keys are visited in sorted order.
func Parse(v any) Node {
	switch val := v.(type) {
	case string:
		return Node{Kind: KindText, Text: val}
	case []any:
		n := Node{Kind: KindList}
		for _, item := range val {
			n.Children = append(n.Children, Parse(item))
		}
		return n
	case map[string]any:
		if text, ok := val["text"].(string); ok && text != "" {
			return Node{Kind: KindText, Text: text}
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			if !skipKeys[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		n := Node{Kind: KindObject}
		for _, k := range keys {
			n.Children = append(n.Children, Parse(val[k]))
		}
		return n
	default:
		return Node{Kind: KindEmpty}
	}
}

// Fold reduces the tree bottom-up.
func Fold[T any](n Node, text func(string) T, join func([]T) T) T {
	switch n.Kind {
	case KindText:
		return text(n.Text)
	case KindList, KindObject:
		parts := make([]T, 0, len(n.Children))
		for _, c := range n.Children {
			parts = append(parts, Fold(c, text, join))
		}
		return join(parts)
	default:
		return join(nil)
	}
}

// CleanText flattens v into whitespace-collapsed text, or returns fallback when v has none.
func CleanText(v any, fallback string) string {
	raw := Fold(Parse(v),
		func(s string) string { return s },
		func(parts []string) string { return strings.Join(parts, " ") },
	)
	if clean := strings.Join(strings.Fields(raw), " "); clean != "" {
		return clean
	}
	return fallback
}
