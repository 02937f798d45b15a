// Package content turns generated page content into validated, storable layouts.
// It holds the block registry, the post-processor, the reviewer, the SEO builder, the website
// planner and the page builder.
package content

import (
	"fmt"
	"strings"
)

// Block is one layout entry, keyed by blockType.
type Block = map[string]any

// Field describes one block field. Description is the type hint shown to the generator.
type Field struct {
	Name        string
	Description string
	Required    bool
	Array       bool
}

// BlockSchema is the contract a block must satisfy to survive post-processing.
type BlockSchema struct {
	Slug        string
	Description string
	Fields      []Field
}

func (s BlockSchema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

const (
	sharedSettings = `{"theme": "light | dark | brand", "padding": {"top": "none | small | medium | large", "bottom": "none | small | medium | large"}, "visibility": "both | desktop | mobile"}`
	sharedLink     = `{type: reference | custom, label: string, newTab: boolean, url: string (if type is custom), reference: slug of a page (if type is reference), appearance: default | outline}`
)

// Registry is the closed set of known block types.
type Registry struct {
	order   []string
	schemas map[string]BlockSchema
}

func NewRegistry(schemas ...BlockSchema) *Registry {
	r := &Registry{schemas: make(map[string]BlockSchema, len(schemas))}
	for _, s := range schemas {
		if _, dup := r.schemas[s.Slug]; !dup {
			r.order = append(r.order, s.Slug)
		}
		r.schemas[s.Slug] = s
	}
	return r
}

func (r *Registry) Lookup(blockType string) (BlockSchema, bool) {
	s, ok := r.schemas[blockType]
	return s, ok
}

// Slugs returns the registered block types in registration order.
func (r *Registry) Slugs() []string {
	return append([]string(nil), r.order...)
}

// Schemas returns the schemas for the given slugs, or all of them when include is empty.
func (r *Registry) Schemas(include []string) []BlockSchema {
	var want map[string]bool
	if len(include) > 0 {
		want = make(map[string]bool, len(include))
		for _, s := range include {
			want[s] = true
		}
	}
	ret := make([]BlockSchema, 0, len(r.order))
	for _, slug := range r.order {
		if want == nil || want[slug] {
			ret = append(ret, r.schemas[slug])
		}
	}
	return ret
}

// Validate checks a block against its schema and the per-type conditional rules.
func (r *Registry) Validate(raw any) error {
	block, ok := raw.(map[string]any)
	if !ok || block == nil {
		return fmt.Errorf("block is not an object")
	}
	blockType, _ := block["blockType"].(string)
	if blockType == "" {
		return fmt.Errorf("missing blockType")
	}
	schema, ok := r.Lookup(blockType)
	if !ok {
		return fmt.Errorf("block type %q is not registered", blockType)
	}

	for _, f := range schema.Fields {
		value, present := block[f.Name]
		if f.Required && (!present || isEmpty(value)) {
			return fmt.Errorf("missing required field %q for block type %q, expected: %s", f.Name, blockType, f.Description)
		}
		if f.Array && present && value != nil {
			if _, isArray := value.([]any); !isArray {
				return fmt.Errorf("field %q should be an array for block type %q", f.Name, blockType)
			}
		}
	}

	switch blockType {
	case "hero":
		if isEmpty(block["title"]) {
			return fmt.Errorf("hero block must have a title")
		}
		variant, _ := block["variant"].(string)
		if (variant == "media" || variant == "split") && isEmpty(block["media"]) {
			return fmt.Errorf("hero variant %q requires media", variant)
		}
	case "formBlock":
		if isEmpty(block["form"]) && isEmpty(block["formTitle"]) && isEmpty(block["formFields"]) {
			return fmt.Errorf("form block needs an existing form slug or a formTitle/formFields definition")
		}
	}
	return nil
}

// Project keeps blockType and the fields declared by the schema.
func (s BlockSchema) Project(block map[string]any) map[string]any {
	out := map[string]any{"blockType": s.Slug}
	for _, f := range s.Fields {
		if v, ok := block[f.Name]; ok {
			out[f.Name] = v
		}
	}
	return out
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

// DefaultRegistry holds every block the site renders.
func DefaultRegistry() *Registry {
	return NewRegistry(
		BlockSchema{
			Slug:        "hero",
			Description: "Top-of-the-page visual section. Variants: simple (text only), media (text + background), split (text side-by-side with media).",
			Fields: []Field{
				{Name: "variant", Description: "simple | media | split"},
				{Name: "title", Description: "string (max 60 chars)"},
				{Name: "subTitle", Description: "string (max 200 chars)"},
				{Name: "links", Description: "Array of " + sharedLink + " (max 1)", Array: true},
				{Name: "media", Description: "upload (image URL, needed for media/split variants)"},
			},
		},
		BlockSchema{
			Slug:        "featureGrid",
			Description: "A grid of features with icons and descriptions.",
			Fields: []Field{
				{Name: "heading", Description: "string"},
				{Name: "subheading", Description: "string"},
				{Name: "items", Description: "Array of { icon: upload, title: string, description: textarea }", Array: true},
				{Name: "columns", Description: "2 | 3 | 4"},
				{Name: "settings", Description: sharedSettings},
			},
		},
		BlockSchema{
			Slug:        "content",
			Description: "Flexible block for layout and rich text columns.",
			Fields: []Field{
				{Name: "columns", Description: "Array of { size: oneThird | half | twoThirds | full, richText: LexicalJSON, enableLink: boolean, link: " + sharedLink + " }", Array: true},
			},
		},
		BlockSchema{
			Slug:        "testimonials",
			Description: "Display customer quotes and headshots.",
			Fields: []Field{
				{Name: "heading", Description: "string"},
				{Name: "testimonials", Description: "Array of { quote: textarea, author: string, role: string, company: string, image: upload }", Array: true},
				{Name: "settings", Description: sharedSettings},
			},
		},
		BlockSchema{
			Slug:        "cta",
			Description: "A dedicated block to drive user action with rich text and buttons.",
			Fields: []Field{
				{Name: "richText", Description: "LexicalJSON"},
				{Name: "links", Description: "Array of " + sharedLink + " (max 2)", Array: true},
			},
		},
		BlockSchema{
			Slug:        "faq",
			Description: "Accordion style frequently asked questions.",
			Fields: []Field{
				{Name: "heading", Description: "string"},
				{Name: "questions", Description: "Array of { question: string, answer: LexicalJSON }", Array: true},
			},
		},
		BlockSchema{
			Slug:        "gallery",
			Description: "Thumbnail grid of images.",
			Fields: []Field{
				{Name: "heading", Description: "string"},
				{Name: "images", Description: "Array of { image: upload (required), caption: string }", Required: true, Array: true},
				{Name: "columns", Description: "2 | 3 | 4"},
				{Name: "settings", Description: sharedSettings},
			},
		},
		BlockSchema{
			Slug:        "stats",
			Description: "Highlight key metrics or numbers.",
			Fields: []Field{
				{Name: "heading", Description: "string"},
				{Name: "stats", Description: `Array of { value: string (e.g. "10k+"), label: string, description: string }`, Array: true},
			},
		},
		BlockSchema{
			Slug:        "split",
			Description: "Rich text content side-by-side with large media.",
			Fields: []Field{
				{Name: "title", Description: "string"},
				{Name: "richText", Description: "LexicalJSON"},
				{Name: "media", Description: "upload (required)", Required: true},
				{Name: "mediaPosition", Description: "left | right"},
				{Name: "links", Description: "Array of " + sharedLink + " (max 2)", Array: true},
				{Name: "settings", Description: sharedSettings},
			},
		},
		BlockSchema{
			Slug:        "logoCloud",
			Description: "Grid of logos showing partners or clients.",
			Fields: []Field{
				{Name: "heading", Description: "string"},
				{Name: "logos", Description: "Array of { logo: upload (required), name: string }", Required: true, Array: true},
				{Name: "settings", Description: sharedSettings},
			},
		},
		BlockSchema{
			Slug:        "timeline",
			Description: "Vertical or horizontal sequence of events.",
			Fields: []Field{
				{Name: "heading", Description: "string"},
				{Name: "steps", Description: "Array of { date: string, title: string, description: textarea }", Array: true},
			},
		},
		BlockSchema{
			Slug:        "video",
			Description: "Full width or contained video player.",
			Fields: []Field{
				{Name: "title", Description: "string"},
				{Name: "videoType", Description: "youtube | vimeo | selfHosted"},
				{Name: "url", Description: "string (URL for YouTube/Vimeo or direct link)"},
				{Name: "thumbnail", Description: "upload (optional, used for self-hosted)"},
				{Name: "aspectRatio", Description: "16:9 | 4:3 | 1:1"},
			},
		},
		BlockSchema{
			Slug:        "archive",
			Description: "Dynamically list items from a collection (posts/categories).",
			Fields: []Field{
				{Name: "introContent", Description: "LexicalJSON"},
				{Name: "populateBy", Description: "collection | selection"},
				{Name: "relationTo", Description: "posts (when populateBy is collection)"},
				{Name: "categories", Description: "Array of category slugs", Array: true},
				{Name: "limit", Description: "number (default 10)"},
				{Name: "selectedDocs", Description: "Array of relationship to posts (if populateBy is selection)", Array: true},
			},
		},
		BlockSchema{
			Slug:        "mediaBlock",
			Description: "Simple full-width or contained image/video.",
			Fields: []Field{
				{Name: "media", Description: "upload (required)", Required: true},
			},
		},
		BlockSchema{
			Slug:        "formBlock",
			Description: "Insert a pre-defined form (contact, signup, etc). If the form does not exist, define it here using formTitle and formFields.",
			Fields: []Field{
				{Name: "form", Description: "slug of an existing form"},
				{Name: "formTitle", Description: "string (only if the form does not exist)"},
				{Name: "formFields", Description: "Array of { blockType: text | textarea | select | email | checkbox | message, name: string, label: string, required: boolean, options: Array of { label, value } (for select) } (only if the form does not exist)", Array: true},
				{Name: "enableIntro", Description: "boolean"},
				{Name: "introContent", Description: "LexicalJSON"},
			},
		},
		BlockSchema{
			Slug:        "tableOfContents",
			Description: "Table of contents built from the headings of the page.",
			Fields: []Field{
				{Name: "heading", Description: "string (default: On this page)"},
			},
		},
		BlockSchema{
			Slug:        "relatedPosts",
			Description: "List of recent related posts.",
			Fields: []Field{
				{Name: "title", Description: "string"},
				{Name: "introContent", Description: "LexicalJSON"},
				{Name: "limit", Description: "number (default 3)"},
			},
		},
	)
}
