package content

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/content-orchestrator/internal/llm/llmtest"
)

func TestSEOFallbackFromHero(t *testing.T) {
	b := NewSEOBuilder(llmtest.New())
	info := WebsiteInfo{WebsiteName: "Acme", Description: "We build rockets."}

	seo := b.Build(context.Background(), PageRef{Title: "Pricing", Slug: "pricing"}, info,
		[]Block{{"blockType": "hero", "title": "Plans for every team", "media": "asset-1"}}, nil, true)
	assert.Equal(t, "Plans for every team", seo.Meta.Title)
	assert.Equal(t, "We build rockets.", seo.Meta.Description)
	assert.Equal(t, "asset-1", seo.Meta.Image)

	seo = b.Build(context.Background(), PageRef{Title: "Pricing", Slug: "pricing"}, WebsiteInfo{WebsiteName: "Acme"}, nil, nil, true)
	assert.Equal(t, "Pricing", seo.Meta.Title)
	assert.Equal(t, "Learn more about Pricing at Acme.", seo.Meta.Description)
	assert.Nil(t, seo.Meta.Image)
}

func TestSEOUsesGeneratedMetaAndTrims(t *testing.T) {
	long := strings.Repeat("a", 200)
	gen := llmtest.New().On("expert SEO copywriter", llmtest.JSON(map[string]any{
		"meta": map[string]any{"title": "Compelling title", "description": long},
	}))
	b := NewSEOBuilder(gen)

	review := &ReviewResult{Suggestions: []string{"mention free trial", "add numbers"}}
	seo := b.Build(context.Background(), PageRef{Title: "Pricing", Slug: "pricing"}, WebsiteInfo{WebsiteName: "Acme"},
		[]Block{{"blockType": "hero", "title": "Plans"}}, review, false)

	assert.Equal(t, "Compelling title", seo.Meta.Title)
	assert.Equal(t, 160, len([]rune(seo.Meta.Description)))
	assert.True(t, strings.HasSuffix(seo.Meta.Description, "…"))

	reqs := gen.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Prompt, "mention free trial • add numbers")
	assert.Contains(t, reqs[0].Prompt, "PAGE SLUG: /pricing")
}

func TestSEOFallsBackWhenGenerationFails(t *testing.T) {
	b := NewSEOBuilder(llmtest.New())

	seo := b.Build(context.Background(), PageRef{Title: "Pricing"}, WebsiteInfo{},
		[]Block{{"blockType": "hero", "title": "Plans", "subTitle": "Simple pricing"}}, nil, false)
	assert.Equal(t, "Plans", seo.Meta.Title)
	assert.Equal(t, "Simple pricing", seo.Meta.Description)
}

func TestTrimRunes(t *testing.T) {
	assert.Equal(t, "short", TrimRunes("short", 10))
	assert.Equal(t, "héllo…", TrimRunes("héllo wörld", 7))
}
