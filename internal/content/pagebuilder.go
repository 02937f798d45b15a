package content

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MimeLyc/content-orchestrator/internal/llm"
)

const TemplateSEOArticle = "seo-article"

// SEOArticleBlocks is the fixed block sequence of the seo-article template.
var SEOArticleBlocks = []string{
	"hero",
	"tableOfContents",
	"content",
	"featureGrid",
	"content",
	"faq",
	"relatedPosts",
	"cta",
}

// PageRequest is the GENERATE_PAGE input.
type PageRequest struct {
	Slug            string   `json:"slug"`
	Title           string   `json:"title"`
	Blocks          []string `json:"blocks"`
	Template        string   `json:"template,omitempty"`
	AllPlannedSlugs []string `json:"allPlannedSlugs,omitempty"`
	Keyword         string   `json:"keyword,omitempty"`
	PageID          string   `json:"pageId,omitempty"`
	AutoTranslate   bool     `json:"autoTranslate,omitempty"`
}

// ApplyTemplate expands a known template into its block list.
func (r *PageRequest) ApplyTemplate() {
	if r.Template == TemplateSEOArticle {
		r.Blocks = append([]string(nil), SEOArticleBlocks...)
	}
}

// PageContent is the raw generated layout, before post-processing.
type PageContent struct {
	Layout []any `json:"layout"`
}

// Blocks returns the object entries of the layout.
func (c *PageContent) Blocks() []Block {
	blocks := make([]Block, 0, len(c.Layout))
	for _, item := range c.Layout {
		if b, ok := item.(map[string]any); ok {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

// PageBuilder generates block content for one page.
type PageBuilder struct {
	gen      llm.Generator
	registry *Registry
}

func NewPageBuilder(gen llm.Generator, registry *Registry) *PageBuilder {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &PageBuilder{gen: gen, registry: registry}
}

// Build returns the generated content and the full prompt. The prompt is returned on failure too.
func (b *PageBuilder) Build(ctx context.Context, req PageRequest, info WebsiteInfo) (*PageContent, string, error) {
	blockRef := b.registry.RenderReference(ReferenceDetailed, req.Blocks)

	var system string
	if req.Template == TemplateSEOArticle {
		system = seoArticlePrompt(info, blockRef)
	} else {
		system = pagePrompt(info, blockRef)
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Generate the content for the page %q (slug: %s).\n", req.Title, req.Slug)
	if req.Keyword != "" {
		fmt.Fprintf(&user, "Primary keyword: %s\n", req.Keyword)
	}
	fmt.Fprintf(&user, "The page should contain the following sequence of blocks: %s.\n", strings.Join(req.Blocks, ", "))
	if len(req.AllPlannedSlugs) > 0 {
		user.WriteString("\nAVAILABLE PAGES FOR INTERNAL LINKING:\n- ")
		user.WriteString(strings.Join(req.AllPlannedSlugs, "\n- "))
		user.WriteString("\nUse these exact slugs for internal reference links (buttons, nav items).\n")
	}
	fmt.Fprintf(&user, "\nCONTEXT:\nIndustry: %s\nDescription: %s\nGoal: %s\nTarget Audience: %s\n",
		info.Industry, info.Description, info.Goal, info.TargetAudience)

	prompt := user.String() + "\n\nSystem Context:\n" + system
	res := b.gen.Generate(ctx, llm.Request{Prompt: user.String(), System: system, Mode: llm.ModeJSON})
	if !res.Success {
		return nil, prompt, fmt.Errorf("page content generation failed: %w", res.Err())
	}

	content, err := decodePageContent(res.Data)
	if err != nil {
		return nil, prompt, err
	}
	return content, prompt, nil
}

// decodePageContent accepts {"layout": [...]} or a bare array of blocks.
func decodePageContent(data json.RawMessage) (*PageContent, error) {
	var content PageContent
	if err := json.Unmarshal(data, &content); err == nil && content.Layout != nil {
		return &content, nil
	}
	var layout []any
	if err := json.Unmarshal(data, &layout); err == nil {
		return &PageContent{Layout: layout}, nil
	}
	return nil, fmt.Errorf("generated content has no layout")
}

func pagePrompt(info WebsiteInfo, blockRef string) string {
	return fmt.Sprintf(`You are a professional content writer and web architect.
Your goal is to generate extremely realistic, high-converting content for a specific web page.

RULES:
1. ONLY generate content for the blocks requested in the user prompt.
2. Use the exact "slug" from the Block Reference for the "blockType".
3. For rich text fields (LexicalJSON), provide them as PLAIN STRING; the system converts them.
4. For image/upload fields, return relevant public HTTPS image URLs.
5. Brand Tone must be: %s.
6. Business Name: %s.

Output JSON format:
{
  "layout": [
    { "blockType": "hero", "title": "...", "subTitle": "...", "links": [...] }
  ]
}

BLOCK REFERENCE:
%s`, info.ToneOrDefault(), info.WebsiteName, blockRef)
}

func seoArticlePrompt(info WebsiteInfo, blockRef string) string {
	return fmt.Sprintf(`You are a senior SEO strategist and long-form authority content writer.

Goal: Generate a HIGHLY OPTIMIZED SEO ARTICLE targeting the primary keyword.

RULES:
- For rich text fields (LexicalJSON), provide them as PLAIN STRING; the system converts them.
- 1200-1800 words minimum.
- Clear H2 and H3 structure inside content.
- Cover definition, benefits, steps, comparisons, pricing, common mistakes, FAQ (min 5 questions).
- Include semantically related terms naturally.
- Short paragraphs, bullet lists, actionable insights.
- Brand Tone: %s. Business Name: %s.

INTERNAL LINKING:
Use available slugs if provided.

MEDIA RULES:
- Upload fields must return ONLY direct HTTPS image URLs.
- Use Unsplash, Pexels, or Pixabay.
- Do NOT return objects, alt text, or IDs.

BLOCK RULES:
- Only generate requested blocks.
- Use exact blockType from reference.

Output JSON:
{
  "layout": [...]
}

BLOCK REFERENCE:
%s`, info.ToneOrDefault(), info.WebsiteName, blockRef)
}
