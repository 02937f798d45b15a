package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MimeLyc/content-orchestrator/internal/content"
	"github.com/MimeLyc/content-orchestrator/internal/docstore"
	"github.com/MimeLyc/content-orchestrator/internal/jobs"
	"github.com/MimeLyc/content-orchestrator/pkg/log"
)

const (
	StepGeneratingContent = "GENERATING_CONTENT"
	StepReviewingContent  = "REVIEWING_CONTENT"
	StepCreatingDocument  = "CREATING_DOCUMENT"
)

// pageResult is what the shared generation pipeline produces for one page.
type pageResult struct {
	aiOutput *content.PageContent
	layout   []content.Block
	review   content.ReviewResult
}

// generatePage builds, reviews and post-processes one page, recording each step on the job.
func (o *Orchestrator) generatePage(ctx context.Context, job *jobs.Job, req content.PageRequest, info content.WebsiteInfo, skipAIReview bool) (*pageResult, error) {
	if err := o.setStep(ctx, job.ID, StepGeneratingContent); err != nil {
		return nil, err
	}
	generated, prompt, genErr := o.builder.Build(ctx, req, info)
	if err := o.update(ctx, job.ID, func(j *jobs.Job) error {
		j.Prompt = prompt
		if generated != nil {
			return j.SetOutput(map[string]any{"ai_output": generated})
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if genErr != nil {
		return nil, WrapError(genErr, ErrGeneration, "AI failed to generate page content").WithContext("slug", req.Slug)
	}

	if err := o.setStep(ctx, job.ID, StepReviewingContent); err != nil {
		return nil, err
	}
	title := req.Title
	if title == "" {
		title = req.Slug
	}
	review := o.reviewer.Review(ctx, generated.Blocks(), content.ReviewContext{
		PageTitle: title,
		PageSlug:  req.Slug,
		BrandTone: info.ToneOrDefault(),
		Industry:  info.IndustryOrDefault(),
		SkipAI:    skipAIReview,
	})
	issues, err := json.Marshal(review.Issues())
	if err != nil {
		return nil, WrapError(err, ErrPersistence, "failed to encode review issues")
	}
	if err := o.update(ctx, job.ID, func(j *jobs.Job) error {
		score := review.Score
		j.ReviewScore = &score
		j.ReviewIssues = issues
		return nil
	}); err != nil {
		return nil, err
	}
	log.Info("[Orchestrator] review score for %s: %d", req.Slug, review.Score)

	layout, blockErrs := o.processor.Process(ctx, generated.Layout)
	skipped := make([]jobs.SkippedBlock, 0, len(blockErrs))
	for _, be := range blockErrs {
		skipped = append(skipped, jobs.SkippedBlock{Index: be.Index, Type: be.Type, Error: be.Error})
	}
	if err := o.update(ctx, job.ID, func(j *jobs.Job) error {
		j.Step = StepCreatingDocument
		j.SkippedBlocks = skipped
		return nil
	}); err != nil {
		return nil, err
	}
	if len(layout) == 0 {
		return nil, NewError(ErrValidation, "All generated blocks failed validation. No page created.").
			WithContext("skipped", len(skipped))
	}

	return &pageResult{aiOutput: generated, layout: layout, review: review}, nil
}

func (o *Orchestrator) handleGeneratePage(ctx context.Context, job *jobs.Job) error {
	var req content.PageRequest
	if err := job.DecodeInput(&req); err != nil {
		return WrapError(err, ErrInput, "Invalid page input payload.")
	}
	if req.Slug == "" {
		return NewError(ErrInput, "Invalid page input payload.").WithContext("missing", "slug")
	}
	req.ApplyTemplate()
	if len(req.Blocks) == 0 {
		return NewError(ErrInput, "Invalid page input payload.").WithContext("missing", "blocks")
	}
	if req.Title == "" {
		req.Title = req.Slug
	}

	info, err := content.LoadWebsiteInfo(ctx, o.deps.Docs)
	if err != nil {
		return WrapError(err, ErrPersistence, "failed to load website info")
	}

	result, err := o.generatePage(ctx, job, req, info, job.RetryCount > 0)
	if err != nil {
		return err
	}

	seo := o.seo.Build(ctx, content.PageRef{Title: req.Title, Slug: req.Slug}, info, result.layout, nil, false)
	page, err := o.upsertPage(ctx, req, result.layout, seo)
	if err != nil {
		return err
	}

	if req.AutoTranslate {
		if _, err := o.deps.Tracking.OnPublish(ctx, docstore.CollectionPages, page, o.deps.Languages); err != nil {
			log.Error("[Orchestrator] auto-translate of page %s failed: %v", page.ID(), err)
		}
	}

	return o.complete(ctx, job.ID, jobs.StepCompleted, map[string]any{
		"ai_output": result.aiOutput,
		"pageId":    page.ID(),
		"seo":       seo,
	})
}

// upsertPage writes the English page for req.Slug, creating it with a new translation group.
func (o *Orchestrator) upsertPage(ctx context.Context, req content.PageRequest, layout []content.Block, seo content.SEO) (docstore.Document, error) {
	data := docstore.Document{
		"title":       req.Title,
		"slug":        req.Slug,
		"layout":      layout,
		"meta":        seo.Meta,
		"_status":     "published",
		"language":    "en",
		"publishedAt": o.deps.Now().UTC().Format(time.RFC3339),
	}

	existing, found, err := docstore.FindOne(ctx, o.deps.Docs, docstore.CollectionPages, map[string]any{"slug": req.Slug, "language": "en"})
	if err != nil {
		return nil, WrapError(err, ErrPersistence, "failed to look up page").WithContext("slug", req.Slug)
	}

	var page docstore.Document
	if found {
		page, err = o.deps.Docs.Update(ctx, docstore.CollectionPages, existing.ID(), data)
	} else {
		data["translation_group_id"] = uuid.NewString()
		page, err = o.deps.Docs.Create(ctx, docstore.CollectionPages, data)
	}
	if err != nil {
		return nil, persistenceError(err, "failed to save page", req.Slug, layout)
	}
	log.Info("[Orchestrator] page %s saved (ID: %s)", req.Slug, page.ID())
	return page, nil
}

// persistenceError logs the first block of the rejected layout for debugging.
func persistenceError(err error, message, slug string, layout []content.Block) error {
	if len(layout) > 0 {
		if snippet, mErr := json.MarshalIndent(layout[0], "", "  "); mErr == nil {
			log.Error("[Orchestrator] problematic layout snippet (first block) for %s:\n%s", slug, snippet)
		}
	}
	return WrapError(err, ErrPersistence, message).WithContext("slug", slug)
}

func (o *Orchestrator) handleRegeneratePage(ctx context.Context, job *jobs.Job) error {
	var req content.PageRequest
	if err := job.DecodeInput(&req); err != nil {
		return WrapError(err, ErrInput, "Invalid regeneration input payload.")
	}
	if req.PageID == "" {
		return NewError(ErrInput, "Invalid regeneration input payload (missing pageId).")
	}

	page, err := o.deps.Docs.FindByID(ctx, docstore.CollectionPages, req.PageID)
	if err != nil {
		return WrapError(err, ErrPersistence, "page to regenerate not found").WithContext("pageId", req.PageID)
	}
	if req.Slug == "" {
		req.Slug = page.String("slug")
	}
	if req.Title == "" {
		req.Title = page.String("title")
	}
	req.ApplyTemplate()
	if len(req.Blocks) == 0 {
		req.Blocks = layoutBlockTypes(page["layout"])
	}
	if len(req.Blocks) == 0 {
		return NewError(ErrInput, "Invalid regeneration input payload.").WithContext("missing", "blocks")
	}

	slugs, err := o.pageSlugs(ctx)
	if err != nil {
		return err
	}
	req.AllPlannedSlugs = slugs

	info, err := content.LoadWebsiteInfo(ctx, o.deps.Docs)
	if err != nil {
		return WrapError(err, ErrPersistence, "failed to load website info")
	}

	result, err := o.generatePage(ctx, job, req, info, true)
	if err != nil {
		return err
	}

	seo := o.seo.Build(ctx, content.PageRef{Title: req.Title, Slug: req.Slug}, info, result.layout, &result.review, false)
	if _, err := o.deps.Docs.Update(ctx, docstore.CollectionPages, req.PageID, docstore.Document{
		"layout": result.layout,
		"meta":   seo.Meta,
	}); err != nil {
		return persistenceError(err, fmt.Sprintf("failed to update page ID %s", req.PageID), req.Slug, result.layout)
	}
	log.Info("[Orchestrator] page ID %s regenerated", req.PageID)

	return o.complete(ctx, job.ID, jobs.StepCompleted, map[string]any{
		"ai_output": result.aiOutput,
		"pageId":    req.PageID,
		"seo":       seo,
	})
}

// pageSlugs lists up to 100 existing page slugs for internal linking.
func (o *Orchestrator) pageSlugs(ctx context.Context) ([]string, error) {
	pages, err := o.deps.Docs.Find(ctx, docstore.CollectionPages, docstore.Query{Limit: 100})
	if err != nil {
		return nil, WrapError(err, ErrPersistence, "failed to list pages")
	}
	slugs := make([]string, 0, len(pages))
	for _, p := range pages {
		if s := p.String("slug"); s != "" {
			slugs = append(slugs, s)
		}
	}
	return slugs, nil
}

func layoutBlockTypes(layout any) []string {
	items, _ := layout.([]any)
	var types []string
	for _, item := range items {
		if block, ok := item.(map[string]any); ok {
			if t, ok := block["blockType"].(string); ok && t != "" {
				types = append(types, t)
			}
		}
	}
	return types
}
