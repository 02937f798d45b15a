package orchestrator

import (
	"context"
	"strings"

	"github.com/MimeLyc/content-orchestrator/internal/content"
	"github.com/MimeLyc/content-orchestrator/internal/docstore"
	"github.com/MimeLyc/content-orchestrator/internal/jobs"
	"github.com/MimeLyc/content-orchestrator/pkg/log"
)

const (
	StepChildrenSpawned = "CHILDREN_SPAWNED"
	StepNoNewKeywords   = "NO_NEW_KEYWORDS"
)

type bulkInput struct {
	Keywords      []string `json:"keywords"`
	AutoTranslate bool     `json:"autoTranslate"`
}

// handleBulkKeywords spawns one seo-article page job per new keyword. The parent stays running
// until the last child completes.
func (o *Orchestrator) handleBulkKeywords(ctx context.Context, job *jobs.Job) error {
	var in bulkInput
	if err := job.DecodeInput(&in); err != nil {
		return WrapError(err, ErrInput, "Invalid bulk keyword input payload.")
	}
	if len(in.Keywords) == 0 {
		return NewError(ErrInput, "Keywords array is required and must not be empty.")
	}

	var children []string
	seen := map[string]bool{}
	for _, raw := range in.Keywords {
		keyword := strings.TrimSpace(raw)
		slug := content.Slugify(keyword)
		if slug == "" || seen[slug] {
			continue
		}
		seen[slug] = true

		_, exists, err := docstore.FindOne(ctx, o.deps.Docs, docstore.CollectionPages, map[string]any{"slug": slug})
		if err != nil {
			return WrapError(err, ErrPersistence, "failed to check existing page").WithContext("slug", slug)
		}
		if exists {
			log.Info("[Orchestrator] page %s already exists, skipping keyword %q", slug, keyword)
			continue
		}

		child, err := o.spawn(ctx, jobs.TypeGeneratePage, job.ID, "", content.PageRequest{
			Title:         keyword,
			Slug:          slug,
			Keyword:       keyword,
			Template:      content.TemplateSEOArticle,
			AutoTranslate: in.AutoTranslate,
		})
		if err != nil {
			return err
		}
		children = append(children, child.ID)
	}

	if len(children) == 0 {
		return o.complete(ctx, job.ID, StepNoNewKeywords, map[string]any{"spawned": 0})
	}

	// totals go in before any child can run and count itself
	if err := o.update(ctx, job.ID, func(j *jobs.Job) error {
		j.TotalKeywords = len(children)
		j.ProcessedKeywords = 0
		j.CompletionPercentage = 0
		j.Status = jobs.StatusRunning
		j.Step = StepChildrenSpawned
		return j.SetOutput(map[string]any{"spawned": len(children), "childJobs": children})
	}); err != nil {
		return err
	}
	for _, id := range children {
		o.enqueue(id)
	}
	log.Info("[Orchestrator] bulk job %s spawned %d page jobs", job.ID, len(children))
	return nil
}
