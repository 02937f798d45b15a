package content

import (
	"context"
	"fmt"
	"strings"

	"github.com/MimeLyc/content-orchestrator/internal/llm"
	"github.com/MimeLyc/content-orchestrator/pkg/log"
)

const (
	metaTitleMax       = 60
	metaDescriptionMax = 160
)

type Meta struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       any    `json:"image,omitempty"`
}

type SEO struct {
	Meta Meta `json:"meta"`
}

type PageRef struct {
	Title string
	Slug  string
}

// SEOBuilder derives page metadata from the hero block, optionally polished by the generator.
type SEOBuilder struct {
	gen llm.Generator
}

func NewSEOBuilder(gen llm.Generator) *SEOBuilder {
	return &SEOBuilder{gen: gen}
}

// Build always returns usable metadata. Generation failures fall back to the hero-derived values.
func (b *SEOBuilder) Build(ctx context.Context, page PageRef, info WebsiteInfo, layout []Block, review *ReviewResult, skipAI bool) SEO {
	var hero Block
	for _, block := range layout {
		if block["blockType"] == "hero" {
			hero = block
			break
		}
	}

	title := firstNonEmpty(stringField(hero, "title"), page.Title, info.WebsiteName)
	description := firstNonEmpty(
		stringField(hero, "subTitle"),
		info.Description,
		fmt.Sprintf("Learn more about %s at %s.", page.Title, info.WebsiteName),
	)

	base := Meta{
		Title:       TrimRunes(title, metaTitleMax),
		Description: TrimRunes(description, metaDescriptionMax),
	}
	if hero != nil {
		if media, ok := hero["media"].(string); ok && media != "" {
			base.Image = media
		}
	}

	if skipAI || b.gen == nil {
		return SEO{Meta: base}
	}

	hints := "None"
	if review != nil && len(review.Suggestions) > 0 {
		hints = strings.Join(review.Suggestions, " • ")
	}

	prompt := fmt.Sprintf(`You are an expert SEO copywriter.

Improve the following SEO metadata.

RULES:
- Meta title max 60 characters
- Meta description max 160 characters
- Must be compelling and click-worthy
- Match brand tone: %s
- Business name: %s
- Industry: %s

PAGE SLUG: /%s

BASE META TITLE:
%s

BASE META DESCRIPTION:
%s

REVIEWER NOTES:
%s

OUTPUT JSON ONLY:
{
  "meta": {
    "title": "...",
    "description": "..."
  }
}`, info.BrandTone, info.WebsiteName, info.Industry, page.Slug, base.Title, base.Description, hints)

	res := b.gen.Generate(ctx, llm.Request{Prompt: prompt, Mode: llm.ModeJSON})
	var out SEO
	if err := res.Decode(&out); err != nil || out.Meta.Title == "" || out.Meta.Description == "" {
		log.Warn("[SEOBuilder] AI SEO generation failed, using fallback: %v", err)
		return SEO{Meta: base}
	}
	return SEO{Meta: Meta{
		Title:       TrimRunes(out.Meta.Title, metaTitleMax),
		Description: TrimRunes(out.Meta.Description, metaDescriptionMax),
		Image:       base.Image,
	}}
}

// TrimRunes shortens s to at most limit runes, ending with an ellipsis when cut.
func TrimRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return strings.TrimSpace(string(r[:limit-1])) + "…"
}

func stringField(b Block, key string) string {
	if b == nil {
		return ""
	}
	s, _ := b[key].(string)
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
