package orchestrator

import (
	"context"

	"github.com/MimeLyc/content-orchestrator/internal/content"
	"github.com/MimeLyc/content-orchestrator/internal/docstore"
	"github.com/MimeLyc/content-orchestrator/internal/jobs"
	"github.com/MimeLyc/content-orchestrator/pkg/log"
)

const (
	StepFetchingNews   = "FETCHING_NEWS"
	StepProcessingNews = "PROCESSING_NEWS"
	StepDisabled       = "DISABLED"
)

// handleNewsAutomation fetches industry news, rewrites it into posts and queues one translation
// job per post and target language.
func (o *Orchestrator) handleNewsAutomation(ctx context.Context, job *jobs.Job) error {
	if o.deps.Settings == nil {
		return o.complete(ctx, job.ID, StepDisabled, map[string]any{"skipped": "no settings provider"})
	}
	settings, err := o.deps.Settings.GetRuntimeSettings()
	if err != nil {
		return WrapError(err, ErrPersistence, "failed to load news settings")
	}
	if !settings.Enabled || o.fetcher == nil {
		log.Info("[Orchestrator] news automation disabled or not configured, skipping job %s", job.ID)
		return o.complete(ctx, job.ID, StepDisabled, map[string]any{"skipped": "news automation disabled"})
	}

	if err := o.setStep(ctx, job.ID, StepFetchingNews); err != nil {
		return err
	}
	fetched, err := o.fetcher.Run(ctx, settings)
	if err != nil {
		return WrapError(err, ErrGeneration, "news fetch failed")
	}

	if err := o.setStep(ctx, job.ID, StepProcessingNews); err != nil {
		return err
	}
	info, err := content.LoadWebsiteInfo(ctx, o.deps.Docs)
	if err != nil {
		return WrapError(err, ErrPersistence, "failed to load website info")
	}
	processed, err := o.rewriter.Run(ctx, settings, info)
	if err != nil {
		return WrapError(err, ErrGeneration, "news processing failed")
	}

	languages := settings.TargetLanguages
	if len(languages) == 0 {
		languages = o.deps.Languages
	}
	var translations []string
	for _, postID := range processed.PostIDs {
		for _, lang := range languages {
			if lang == "en" {
				continue
			}
			child, err := o.spawn(ctx, jobs.TypeTranslateDocument, "", lang, map[string]string{
				"sourceDocId": postID,
				"collection":  docstore.CollectionPosts,
			})
			if err != nil {
				return err
			}
			translations = append(translations, child.ID)
		}
	}
	for _, id := range translations {
		o.enqueue(id)
	}
	log.Info("[Orchestrator] news run saved %d items, processed %d, queued %d translations",
		fetched.Saved, processed.Processed, len(translations))

	return o.complete(ctx, job.ID, jobs.StepCompleted, map[string]any{
		"fetch":            fetched,
		"processed":        processed.Processed,
		"failed_items":     processed.FailedItems,
		"translation_jobs": translations,
	})
}
