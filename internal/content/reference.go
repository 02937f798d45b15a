package content

import (
	"encoding/json"
	"strings"
)

type ReferenceMode string

const (
	// ReferenceSummary lists block slugs and descriptions for planning.
	ReferenceSummary ReferenceMode = "summary"
	// ReferenceDetailed adds each block's field schema for content generation.
	ReferenceDetailed ReferenceMode = "detailed"
)

// RenderReference formats the registry as a prompt section. include filters by slug.
func (r *Registry) RenderReference(mode ReferenceMode, include []string) string {
	var b strings.Builder
	if mode == ReferenceSummary {
		b.WriteString("# Available Website Blocks (Inventory)\n\n")
	} else {
		b.WriteString("# Detailed Block Schemas\n\n")
	}

	for _, schema := range r.Schemas(include) {
		b.WriteString("## Block: " + schema.Slug + "\n")
		b.WriteString("Description: " + schema.Description + "\n")
		if mode != ReferenceSummary {
			b.WriteString("Schema:\n```json\n")
			b.WriteString(renderFields(schema.Fields))
			b.WriteString("\n```\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// renderFields keeps declaration order, which json.Marshal on a map would not.
func renderFields(fields []Field) string {
	var b strings.Builder
	b.WriteString("{\n")
	for i, f := range fields {
		name, _ := json.Marshal(f.Name)
		desc, _ := json.Marshal(f.Description)
		b.WriteString("  " + string(name) + ": " + string(desc))
		if i < len(fields)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("}")
	return b.String()
}
