package news

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/MimeLyc/content-orchestrator/internal/config"
	"github.com/MimeLyc/content-orchestrator/internal/content"
	"github.com/MimeLyc/content-orchestrator/internal/docstore"
	"github.com/MimeLyc/content-orchestrator/internal/llm"
	"github.com/MimeLyc/content-orchestrator/pkg/log"
)

const processBatch = 10

type Rewrite struct {
	Title           string `json:"title"`
	Content         string `json:"content"`
	MetaTitle       string `json:"metaTitle"`
	MetaDescription string `json:"metaDescription"`
	Slug            string `json:"slug"`
}

type ProcessStats struct {
	Processed   int      `json:"processed"`
	FailedItems int      `json:"failed_items"`
	PostIDs     []string `json:"post_ids"`
}

// Processor rewrites unprocessed news_raw items into published English posts.
type Processor struct {
	docs docstore.Store
	gen  llm.Generator
}

func NewProcessor(docs docstore.Store, gen llm.Generator) *Processor {
	return &Processor{docs: docs, gen: gen}
}

// Run handles up to ten unprocessed items, newest first. Item failures are counted, not returned.
func (p *Processor) Run(ctx context.Context, settings config.RuntimeSettings, info content.WebsiteInfo) (ProcessStats, error) {
	stats := ProcessStats{PostIDs: []string{}}
	items, err := p.docs.Find(ctx, docstore.CollectionNewsRaw, docstore.Query{
		Where: map[string]any{"processed": false},
		Sort:  "-published_at",
		Limit: processBatch,
	})
	if err != nil {
		return stats, fmt.Errorf("failed to load raw news: %w", err)
	}
	if len(items) == 0 {
		log.Info("[NewsProcessor] no pending news to process")
		return stats, nil
	}

	system := rewritePrompt(info)
	for _, item := range items {
		postID, err := p.processItem(ctx, item, system, settings.TargetCategory)
		if err != nil {
			log.Error("[NewsProcessor] failed to process %s: %v", item.ID(), err)
			stats.FailedItems++
			continue
		}
		stats.Processed++
		stats.PostIDs = append(stats.PostIDs, postID)
	}
	return stats, nil
}

func (p *Processor) processItem(ctx context.Context, item docstore.Document, system, category string) (string, error) {
	log.Info("[NewsProcessor] processing: %s", item.String("title"))
	prompt := fmt.Sprintf(`RAW NEWS DATA:
Source: %s
Title: %s
Description: %s
Content: %s
Original URL: %s`,
		item.String("source"), item.String("title"), item.String("description"), item.String("content"), item.String("url"))

	res := p.gen.Generate(ctx, llm.Request{System: system, Prompt: prompt, Mode: llm.ModeJSON})
	var rw Rewrite
	if err := res.Decode(&rw); err != nil {
		return "", fmt.Errorf("rewrite generation failed: %w", err)
	}
	if strings.TrimSpace(rw.Title) == "" || strings.TrimSpace(rw.Content) == "" {
		return "", fmt.Errorf("rewrite is missing title or content")
	}
	slug := content.Slugify(rw.Slug)
	if slug == "" {
		slug = content.Slugify(rw.Title)
	}

	categories := []any{}
	if category != "" {
		categories = append(categories, category)
	}
	post, err := p.docs.Create(ctx, docstore.CollectionPosts, docstore.Document{
		"title":   rw.Title,
		"slug":    slug,
		"content": content.MarkdownToLexical(rw.Content),
		"meta": map[string]any{
			"title":       rw.MetaTitle,
			"description": rw.MetaDescription,
		},
		"categories":           categories,
		"language":             "en",
		"translation_group_id": uuid.NewString(),
		"_status":              "published",
	})
	if err != nil {
		return "", fmt.Errorf("failed to create post: %w", err)
	}

	if _, err := p.docs.Update(ctx, docstore.CollectionNewsRaw, item.ID(), docstore.Document{"processed": true}); err != nil {
		return "", fmt.Errorf("failed to mark item processed: %w", err)
	}
	log.Info("[NewsProcessor] post created: %s (ID: %s)", rw.Title, post.ID())
	return post.ID(), nil
}

func rewritePrompt(info content.WebsiteInfo) string {
	tone := info.BrandTone
	if tone == "" {
		tone = "Professional and Authority"
	}
	return fmt.Sprintf(`You are a high-end content editor and SEO specialist.
Your task is to take a raw news snippet/article and rewrite it into a compelling, 1000+ word long-form blog post.

BRAND VOICE:
Industry: %s
Description: %s
Tone: %s

INSTRUCTIONS:
1. TITLE: Create a catchy, SEO-optimized title.
2. CONTENT: Rewrite the provided news item and expand it significantly.
   - Add background context.
   - Explain why this news matters to the industry.
   - Provide a "3 Takeaways" or "Expert Analysis" section.
   - Include a FAQ section with at least 5 relevant questions.
3. FORMATTING: Use Markdown (## for headers, double newlines for paragraphs).
4. SEO: Return meta title and meta description.
5. SLUG: Generate a URL-friendly slug.

RETURN JSON:
{
  "title": "Optimized Post Title",
  "content": "Full markdown content with ## Headers and FAQ...",
  "metaTitle": "SEO Meta Title",
  "metaDescription": "Compelling Meta Description (150-160 chars)",
  "slug": "url-friendly-slug-here"
}`, info.Industry, info.Description, tone)
}
