package orchestrator

import (
	"context"
	"time"

	"github.com/MimeLyc/content-orchestrator/internal/agentsync"
	"github.com/MimeLyc/content-orchestrator/internal/jobs"
	"github.com/MimeLyc/content-orchestrator/pkg/log"
)

const (
	StepSyncing       = "SYNCING"
	StepSyncCompleted = "SYNC_COMPLETED"
)

type syncInput struct {
	SourceID   string `json:"sourceId"`
	SourceType string `json:"sourceType"`
	Collection string `json:"collection,omitempty"`
}

func (o *Orchestrator) handleAgentSync(ctx context.Context, job *jobs.Job) error {
	var in syncInput
	if err := job.DecodeInput(&in); err != nil {
		return WrapError(err, ErrInput, "Invalid agent sync input payload.")
	}
	if in.SourceID == "" {
		return NewError(ErrInput, "Missing sourceId for agent sync.")
	}
	sourceType, err := agentsync.ParseSourceType(in.SourceType)
	if err != nil {
		return WrapError(err, ErrInput, "Invalid agent sync input payload.")
	}
	collection := in.Collection
	if collection == "" {
		collection = sourceType.Collection()
	}

	if o.deps.AgentSync == nil || !o.deps.AgentSync.Enabled() {
		log.Warn("[Orchestrator] agent sync is not configured, skipping %s %s", sourceType, in.SourceID)
		return o.complete(ctx, job.ID, jobs.StepCompleted, map[string]any{"skipped": "agent sync not configured"})
	}

	if err := o.setStep(ctx, job.ID, StepSyncing); err != nil {
		return err
	}
	doc, err := o.deps.Docs.FindByID(ctx, collection, in.SourceID)
	if err != nil {
		return WrapError(err, ErrPersistence, "sync source not found").WithContext("id", in.SourceID)
	}
	payload, err := agentsync.BuildPayload(doc, sourceType, o.deps.ServerURL)
	if err != nil {
		return WrapError(err, ErrInput, "failed to build sync payload")
	}
	if err := o.deps.AgentSync.Push(ctx, payload); err != nil {
		return WrapError(err, ErrGeneration, "agent workspace sync failed").WithContext("id", in.SourceID)
	}
	log.Info("[Orchestrator] synced %s %s to agent workspace", sourceType, in.SourceID)

	return o.complete(ctx, job.ID, StepSyncCompleted, map[string]any{
		"syncedAt":   o.deps.Now().UTC().Format(time.RFC3339),
		"sourceId":   in.SourceID,
		"sourceType": sourceType,
		"title":      payload.Title,
	})
}
