package orchestrator

import (
	"context"
	"time"

	"github.com/MimeLyc/content-orchestrator/internal/content"
	"github.com/MimeLyc/content-orchestrator/internal/docstore"
	"github.com/MimeLyc/content-orchestrator/internal/jobs"
	"github.com/MimeLyc/content-orchestrator/internal/tracking"
	"github.com/MimeLyc/content-orchestrator/internal/translator"
	"github.com/MimeLyc/content-orchestrator/pkg/log"
)

const (
	StepTranslating       = "TRANSLATING"
	StepSavingTranslation = "SAVING_TRANSLATION"
)

type translateInput struct {
	SourceDocID string `json:"sourceDocId"`
	Collection  string `json:"collection"`
	SourceHash  string `json:"sourceHash,omitempty"`
}

// translateHandler produces the sibling document of one source in the job's target language
// and keeps the tracking entry for that language current.
type translateHandler struct {
	o *Orchestrator
}

func (h *translateHandler) Handle(ctx context.Context, job *jobs.Job) error {
	o := h.o
	var in translateInput
	if err := job.DecodeInput(&in); err != nil {
		return WrapError(err, ErrInput, "Invalid translation input payload.")
	}
	if in.SourceDocID == "" || job.TargetLanguage == "" {
		return NewError(ErrInput, "Missing sourceDocId or targetLanguage for translation.")
	}
	if in.Collection == "" {
		in.Collection = docstore.CollectionPages
	}
	lang := job.TargetLanguage

	source, err := o.deps.Docs.FindByID(ctx, in.Collection, in.SourceDocID)
	if err != nil {
		return WrapError(err, ErrPersistence, "source document not found").
			WithContext("collection", in.Collection).WithContext("id", in.SourceDocID)
	}
	groupID := source.String("translation_group_id")
	if err := o.deps.Tracking.MarkEntry(ctx, groupID, lang, tracking.StatusTranslating, job.ID, "", nil); err != nil {
		log.Warn("[Orchestrator] failed to mark %s translating for group %s: %v", lang, groupID, err)
	}

	if err := o.setStep(ctx, job.ID, StepTranslating); err != nil {
		return err
	}
	info, err := content.LoadWebsiteInfo(ctx, o.deps.Docs)
	if err != nil {
		return WrapError(err, ErrPersistence, "failed to load website info")
	}
	opts := translator.Options{SourceLanguage: source.String("language"), BrandTone: info.ToneOrDefault()}

	data := docstore.Document{}
	var translated, out any
	var stats translator.Stats
	if in.Collection == docstore.CollectionPosts {
		out, stats = o.deps.Translator.Translate(ctx, map[string]any{
			"title":   source["title"],
			"content": source["content"],
		}, lang, opts)
		post, _ := out.(map[string]any)
		data["title"] = post["title"]
		data["content"] = post["content"]
		translated = post
	} else {
		out, stats = o.deps.Translator.Translate(ctx, map[string]any{
			"title":  source["title"],
			"layout": source["layout"],
		}, lang, opts)
		page, _ := out.(map[string]any)
		layout, _ := page["layout"].([]any)
		blocks, blockErrs := o.processor.Process(ctx, layout)
		if len(blocks) == 0 {
			return NewError(ErrValidation, "All translated blocks failed validation. No translation created.").
				WithContext("skipped", len(blockErrs))
		}
		data["title"] = page["title"]
		data["layout"] = blocks
		translated = blocks
	}

	title, _ := data["title"].(string)
	slug := source.String("slug")
	var layout []content.Block
	if blocks, ok := data["layout"].([]content.Block); ok {
		layout = blocks
	}
	seo := o.seo.Build(ctx, content.PageRef{Title: title, Slug: slug}, info, layout, nil, true)
	if meta, ok := source["meta"].(map[string]any); ok && meta["image"] != nil {
		seo.Meta.Image = meta["image"]
	}

	if err := o.setStep(ctx, job.ID, StepSavingTranslation); err != nil {
		return err
	}
	data["slug"] = slug
	data["meta"] = seo.Meta
	data["language"] = lang
	data["translation_group_id"] = groupID
	data["_status"] = "published"
	data["publishedAt"] = o.deps.Now().UTC().Format(time.RFC3339)

	existing, found, err := docstore.FindOne(ctx, o.deps.Docs, in.Collection, map[string]any{"slug": slug, "language": lang})
	if err != nil {
		return WrapError(err, ErrPersistence, "failed to look up translation").WithContext("slug", slug)
	}
	var saved docstore.Document
	if found {
		saved, err = o.deps.Docs.Update(ctx, in.Collection, existing.ID(), data)
	} else {
		saved, err = o.deps.Docs.Create(ctx, in.Collection, data)
	}
	if err != nil {
		return WrapError(err, ErrPersistence, "failed to save translation").
			WithContext("slug", slug).WithContext("language", lang)
	}
	log.Info("[Orchestrator] translated %s/%s to %s (ID: %s)", in.Collection, in.SourceDocID, lang, saved.ID())

	if err := o.deps.Tracking.MarkEntry(ctx, groupID, lang, tracking.StatusCompleted, job.ID, "", translated); err != nil {
		return WrapError(err, ErrPersistence, "failed to update translation tracking")
	}

	return o.complete(ctx, job.ID, jobs.StepCompleted, map[string]any{
		"documentId": saved.ID(),
		"stats":      stats,
	})
}

// OnFailure records the error on the tracking entry of the job's language.
func (h *translateHandler) OnFailure(ctx context.Context, job *jobs.Job, err error) {
	var in translateInput
	if job.DecodeInput(&in) != nil || in.SourceDocID == "" || job.TargetLanguage == "" {
		return
	}
	if in.Collection == "" {
		in.Collection = docstore.CollectionPages
	}
	source, findErr := h.o.deps.Docs.FindByID(ctx, in.Collection, in.SourceDocID)
	if findErr != nil {
		return
	}
	message, _ := ErrorInfo(err)
	if markErr := h.o.deps.Tracking.MarkEntry(ctx, source.String("translation_group_id"), job.TargetLanguage,
		tracking.StatusFailed, job.ID, message, nil); markErr != nil {
		log.Error("[Orchestrator] failed to record translation failure for job %s: %v", job.ID, markErr)
	}
}
