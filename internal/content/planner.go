package content

import (
	"context"
	"fmt"

	"github.com/MimeLyc/content-orchestrator/internal/llm"
)

type PlannedPage struct {
	Slug   string   `json:"slug"`
	Title  string   `json:"title"`
	Blocks []string `json:"blocks"`
}

type NavItem struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

type Navigation struct {
	NavItems []NavItem `json:"navItems"`
}

type WebsitePlan struct {
	Pages  []PlannedPage `json:"pages"`
	Header *Navigation   `json:"header,omitempty"`
	Footer *Navigation   `json:"footer,omitempty"`
}

// Slugs lists the planned page slugs in plan order.
func (p *WebsitePlan) Slugs() []string {
	slugs := make([]string, 0, len(p.Pages))
	for _, page := range p.Pages {
		slugs = append(slugs, page.Slug)
	}
	return slugs
}

// Planner asks the generator for a site structure built from registered blocks only.
type Planner struct {
	gen      llm.Generator
	registry *Registry
}

func NewPlanner(gen llm.Generator, registry *Registry) *Planner {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Planner{gen: gen, registry: registry}
}

// Plan returns the plan and the prompt that produced it. The prompt is returned on failure too.
func (p *Planner) Plan(ctx context.Context, info WebsiteInfo) (*WebsitePlan, string, error) {
	system := fmt.Sprintf(`You are a professional UX strategy and web design AI.
Your goal is to plan a comprehensive, conversion-optimized website structure for a client based on their business information.

RULES:
1. ONLY use the blocks provided in the reference guide below.
2. Output your plan strictly as a JSON object.
3. Keep page slugs lowercase and URL-friendly.
4. Ensure a logical flow (e.g., Home, About, Services, Contact).
5. Suggest navigation items for the Header and Footer. Links to pages should use their slugs (e.g., "/en/about").

BLOCK REFERENCE GUIDE:
%s`, p.registry.RenderReference(ReferenceSummary, nil))

	user := fmt.Sprintf(`Please plan a website structure for the following business:
- Name: %s
- Industry: %s
- Description: %s
- Goal: %s
- Target Audience: %s
- Brand Tone: %s

Return a JSON with:
- "pages" array (each page has "slug", "title", and "blocks" array).
- "header" object with "navItems" array (each item has "label" and "url").
- "footer" object with "navItems" array (each item has "label" and "url").`,
		info.WebsiteName, info.Industry, info.Description, info.Goal, info.TargetAudience, info.BrandTone)

	prompt := user + "\n\nSystem Context:\n" + system
	res := p.gen.Generate(ctx, llm.Request{Prompt: user, System: system, Mode: llm.ModeJSON})

	var plan WebsitePlan
	if err := res.Decode(&plan); err != nil {
		return nil, prompt, fmt.Errorf("website plan generation failed: %w", err)
	}
	if len(plan.Pages) == 0 {
		return nil, prompt, fmt.Errorf("website plan has no pages")
	}
	return &plan, prompt, nil
}
