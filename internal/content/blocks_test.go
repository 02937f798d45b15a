package content

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryValidate(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name    string
		block   any
		wantErr string
	}{
		{name: "not an object", block: "hero", wantErr: "not an object"},
		{name: "missing type", block: map[string]any{"title": "x"}, wantErr: "missing blockType"},
		{name: "unknown type", block: map[string]any{"blockType": "carousel"}, wantErr: "not registered"},
		{name: "hero without title", block: map[string]any{"blockType": "hero", "subTitle": "x"}, wantErr: "hero block must have a title"},
		{name: "media hero without media", block: map[string]any{"blockType": "hero", "title": "Hi", "variant": "split"}, wantErr: "requires media"},
		{name: "empty required array", block: map[string]any{"blockType": "gallery", "images": []any{}}, wantErr: `missing required field "images"`},
		{name: "array field not array", block: map[string]any{"blockType": "faq", "questions": "q"}, wantErr: "should be an array"},
		{name: "split needs media", block: map[string]any{"blockType": "split", "media": ""}, wantErr: `missing required field "media"`},
		{name: "form without definition", block: map[string]any{"blockType": "formBlock", "enableIntro": true}, wantErr: "form block needs"},
		{name: "simple hero", block: map[string]any{"blockType": "hero", "title": "Hi"}},
		{name: "faq", block: map[string]any{"blockType": "faq", "questions": []any{map[string]any{"question": "q", "answer": "a"}}}},
		{name: "form by slug", block: map[string]any{"blockType": "formBlock", "form": "contact"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Validate(tt.block)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRegistryCoversSEOArticleTemplate(t *testing.T) {
	r := DefaultRegistry()
	for _, slug := range SEOArticleBlocks {
		_, ok := r.Lookup(slug)
		assert.True(t, ok, slug)
	}
	assert.Len(t, r.Slugs(), 17)
}

func TestProjectDropsUndeclaredFields(t *testing.T) {
	schema, ok := DefaultRegistry().Lookup("cta")
	require.True(t, ok)

	got := schema.Project(map[string]any{"blockType": "cta", "richText": "x", "color": "red"})
	assert.Equal(t, map[string]any{"blockType": "cta", "richText": "x"}, got)
}

func TestRenderReference(t *testing.T) {
	r := DefaultRegistry()

	summary := r.RenderReference(ReferenceSummary, nil)
	assert.True(t, strings.HasPrefix(summary, "# Available Website Blocks"))
	assert.Contains(t, summary, "## Block: formBlock")
	assert.NotContains(t, summary, "```json")

	detailed := r.RenderReference(ReferenceDetailed, []string{"faq"})
	assert.Contains(t, detailed, "## Block: faq")
	assert.Contains(t, detailed, `"questions": "Array of`)
	assert.NotContains(t, detailed, "## Block: hero")
}
