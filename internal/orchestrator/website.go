package orchestrator

import (
	"context"
	"fmt"

	"github.com/MimeLyc/content-orchestrator/internal/content"
	"github.com/MimeLyc/content-orchestrator/internal/docstore"
	"github.com/MimeLyc/content-orchestrator/internal/jobs"
	"github.com/MimeLyc/content-orchestrator/pkg/log"
)

const (
	StepPlanning      = "PLANNING"
	StepSpawningPages = "SPAWNING_PAGES"
)

func (o *Orchestrator) handleGenerateWebsite(ctx context.Context, job *jobs.Job) error {
	info, err := content.LoadWebsiteInfo(ctx, o.deps.Docs)
	if err != nil {
		return WrapError(err, ErrPersistence, "failed to load website info")
	}

	if err := o.setStep(ctx, job.ID, StepPlanning); err != nil {
		return err
	}
	plan, prompt, err := o.planner.Plan(ctx, info)
	if err != nil {
		_ = o.update(ctx, job.ID, func(j *jobs.Job) error {
			j.Prompt = prompt
			return nil
		})
		return WrapError(err, ErrGeneration, "AI failed to generate a website plan.")
	}

	if err := o.update(ctx, job.ID, func(j *jobs.Job) error {
		j.Prompt = prompt
		j.Step = StepSpawningPages
		return j.SetOutput(plan)
	}); err != nil {
		return err
	}

	if plan.Header != nil {
		if err := o.upsertNavigation(ctx, docstore.CollectionHeader, "header-group", plan.Header); err != nil {
			return err
		}
	}
	if plan.Footer != nil {
		if err := o.upsertNavigation(ctx, docstore.CollectionFooter, "footer-group", plan.Footer); err != nil {
			return err
		}
	}

	slugs := plan.Slugs()
	children := make([]string, 0, len(plan.Pages))
	for _, page := range plan.Pages {
		child, err := o.spawn(ctx, jobs.TypeGeneratePage, job.ID, "", content.PageRequest{
			Slug:            page.Slug,
			Title:           page.Title,
			Blocks:          page.Blocks,
			AllPlannedSlugs: slugs,
		})
		if err != nil {
			return err
		}
		children = append(children, child.ID)
	}
	for _, id := range children {
		o.enqueue(id)
	}
	log.Info("[Orchestrator] website plan spawned %d page jobs", len(children))

	return o.complete(ctx, job.ID, jobs.StepCompleted, nil)
}

// upsertNavigation stores nav items as custom links on the English header or footer.
func (o *Orchestrator) upsertNavigation(ctx context.Context, collection, groupID string, nav *content.Navigation) error {
	items := make([]any, 0, len(nav.NavItems))
	for _, item := range nav.NavItems {
		items = append(items, map[string]any{
			"link": map[string]any{
				"type":  "custom",
				"label": item.Label,
				"url":   item.URL,
			},
		})
	}
	data := docstore.Document{
		"language":             "en",
		"translation_group_id": groupID,
		"navItems":             items,
	}

	existing, found, err := docstore.FindOne(ctx, o.deps.Docs, collection, map[string]any{"language": "en"})
	if err != nil {
		return WrapError(err, ErrPersistence, fmt.Sprintf("failed to look up %s", collection))
	}
	if found {
		_, err = o.deps.Docs.Update(ctx, collection, existing.ID(), data)
	} else {
		_, err = o.deps.Docs.Create(ctx, collection, data)
	}
	if err != nil {
		return WrapError(err, ErrPersistence, fmt.Sprintf("failed to save %s navigation", collection))
	}
	return nil
}
