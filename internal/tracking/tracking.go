// Package tracking records per-language translation state for published documents and spawns
// the translation jobs that keep siblings in sync with their source.
package tracking

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"

	"github.com/MimeLyc/content-orchestrator/internal/agentsync"
	"github.com/MimeLyc/content-orchestrator/internal/docstore"
	"github.com/MimeLyc/content-orchestrator/internal/jobs"
	"github.com/MimeLyc/content-orchestrator/pkg/log"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusTranslating Status = "translating"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

const (
	sourceLanguage    = "en"
	translateAttempts = 3
	translateBackoff  = 5 * time.Second
)

type Entry struct {
	Language string `json:"language"`
	Status   Status `json:"status"`
	JobID    string `json:"job_id,omitempty"`
	Error    string `json:"error,omitempty"`
	Content  any    `json:"content,omitempty"`
}

// Tracking is one translations document, keyed by translation group.
type Tracking struct {
	ID             string  `json:"id,omitempty"`
	GroupID        string  `json:"translation_group_id"`
	SourceLanguage string  `json:"source_language"`
	SourceHash     string  `json:"source_hash"`
	Translations   []Entry `json:"translations"`
}

func (t *Tracking) Entry(lang string) *Entry {
	for i := range t.Translations {
		if t.Translations[i].Language == lang {
			return &t.Translations[i]
		}
	}
	return nil
}

type Enqueuer interface {
	Enqueue(req jobs.EnqueueRequest) (*jobs.Task, bool)
}

// Service owns the translations collection. It keeps no state of its own: every change to a
// tracking document is one atomic store operation, so services in several processes can
// update entries of the same group concurrently. A group's tracking document uses the group
// id as its document id.
type Service struct {
	docs      docstore.Store
	store     jobs.Store
	queue     Enqueuer
	queueName string
}

func NewService(docs docstore.Store, store jobs.Store, queue Enqueuer, queueName string) *Service {
	return &Service{docs: docs, store: store, queue: queue, queueName: queueName}
}

// PublishResult reports what a publish event caused.
type PublishResult struct {
	GroupID    string   `json:"translation_group_id,omitempty"`
	SourceHash string   `json:"source_hash,omitempty"`
	JobIDs     []string `json:"job_ids"`
	Skipped    string   `json:"skipped,omitempty"`
}

// OnPublish compares the document's content hash with its tracking record and creates one
// TRANSLATE_DOCUMENT job per language whose translation is missing or stale.
func (s *Service) OnPublish(ctx context.Context, collection string, doc docstore.Document, languages []string) (*PublishResult, error) {
	result := &PublishResult{JobIDs: []string{}}
	if doc.String("_status") != "published" {
		result.Skipped = "not published"
		return result, nil
	}
	if lang := DocumentLanguage(collection, doc); lang != sourceLanguage {
		result.Skipped = fmt.Sprintf("source language is %s", lang)
		return result, nil
	}

	groupID := doc.String("translation_group_id")
	if groupID == "" {
		groupID = uuid.NewString()
		if _, err := s.docs.Update(ctx, collection, doc.ID(), docstore.Document{"translation_group_id": groupID}); err != nil {
			return nil, fmt.Errorf("failed to assign translation group: %w", err)
		}
	}
	hash, err := SourceHash(collection, doc)
	if err != nil {
		return nil, err
	}
	result.GroupID = groupID
	result.SourceHash = hash

	var targets []string
	err = s.modify(ctx, groupID, func(t *Tracking) error {
		targets = targets[:0]
		changed := t.SourceHash != hash
		t.SourceHash = hash
		for _, lang := range languages {
			if lang == sourceLanguage {
				continue
			}
			entry := t.Entry(lang)
			switch {
			case entry == nil:
				t.Translations = append(t.Translations, Entry{Language: lang, Status: StatusPending})
				targets = append(targets, lang)
			case changed:
				// earlier content stays on the entry until the new translation replaces it
				entry.Status = StatusPending
				entry.Error = ""
				targets = append(targets, lang)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		result.Skipped = "content unchanged"
		log.Info("[Tracking] content unchanged for %s/%s, no translation jobs", collection, doc.ID())
		return result, nil
	}

	jobIDs := make(map[string]string, len(targets))
	for _, lang := range targets {
		job, err := s.spawn(ctx, collection, doc.ID(), hash, lang)
		if err != nil {
			return nil, err
		}
		jobIDs[lang] = job.ID
		result.JobIDs = append(result.JobIDs, job.ID)
	}

	err = s.modify(ctx, groupID, func(t *Tracking) error {
		for lang, id := range jobIDs {
			if entry := t.Entry(lang); entry != nil {
				entry.JobID = id
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, id := range result.JobIDs {
		s.queue.Enqueue(jobs.EnqueueRequest{
			Name:  s.queueName,
			JobID: id,
			Options: jobs.EnqueueOptions{
				Attempts: translateAttempts,
				Backoff:  jobs.ExponentialBackoff(translateBackoff),
			},
		})
		log.Info("[Tracking] queued TRANSLATE_DOCUMENT %s for %s/%s -> %s", id, collection, doc.ID(), targets[i])
	}
	return result, nil
}

func (s *Service) spawn(ctx context.Context, collection, docID, hash, lang string) (*jobs.Job, error) {
	input, err := json.Marshal(map[string]string{
		"sourceDocId": docID,
		"collection":  collection,
		"sourceHash":  hash,
	})
	if err != nil {
		return nil, err
	}
	job, err := s.store.CreateJob(ctx, &jobs.Job{
		Type:           jobs.TypeTranslateDocument,
		Status:         jobs.StatusPending,
		TargetLanguage: lang,
		InputPayload:   input,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create translation job: %w", err)
	}
	return job, nil
}

// MarkEntry updates the entry for lang and leaves every other entry untouched. A missing
// tracking document is created; content is only replaced when non-nil.
func (s *Service) MarkEntry(ctx context.Context, groupID, lang string, status Status, jobID, errMsg string, content any) error {
	if groupID == "" {
		return nil
	}
	return s.modify(ctx, groupID, func(t *Tracking) error {
		entry := t.Entry(lang)
		if entry == nil {
			t.Translations = append(t.Translations, Entry{Language: lang})
			entry = &t.Translations[len(t.Translations)-1]
		}
		entry.Status = status
		entry.Error = errMsg
		if jobID != "" {
			entry.JobID = jobID
		}
		if content != nil {
			entry.Content = content
		}
		return nil
	})
}

// Get returns the tracking record of a translation group.
func (s *Service) Get(ctx context.Context, groupID string) (*Tracking, bool, error) {
	doc, err := s.docs.FindByID(ctx, docstore.CollectionTranslations, groupID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load translation tracking: %w", err)
	}
	t, err := decode(doc)
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

// modify applies fn to the group's tracking document in one atomic store step, creating an
// empty document first when the group has none.
func (s *Service) modify(ctx context.Context, groupID string, fn func(*Tracking) error) error {
	apply := func(doc docstore.Document) (docstore.Document, error) {
		t, err := decode(doc)
		if err != nil {
			return nil, err
		}
		if err := fn(t); err != nil {
			return nil, err
		}
		t.ID = groupID
		t.GroupID = groupID
		return docstore.Normalize(t)
	}

	_, err := s.docs.Modify(ctx, docstore.CollectionTranslations, groupID, apply)
	if !errors.Is(err, docstore.ErrNotFound) {
		return wrapTrackingErr(err)
	}
	_, err = s.docs.Create(ctx, docstore.CollectionTranslations, docstore.Document{
		"id":                   groupID,
		"translation_group_id": groupID,
		"source_language":      sourceLanguage,
		"translations":         []any{},
	})
	if err != nil && !errors.Is(err, docstore.ErrExists) {
		return fmt.Errorf("failed to create translation tracking: %w", err)
	}
	_, err = s.docs.Modify(ctx, docstore.CollectionTranslations, groupID, apply)
	return wrapTrackingErr(err)
}

func wrapTrackingErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to update translation tracking: %w", err)
}

func decode(doc docstore.Document) (*Tracking, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var t Tracking
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("invalid translation tracking %s: %w", doc.ID(), err)
	}
	if t.SourceLanguage == "" {
		t.SourceLanguage = sourceLanguage
	}
	return &t, nil
}

// SourceHash fingerprints the translatable part of a document: the layout of a page or the
// content of a post.
func SourceHash(collection string, doc docstore.Document) (string, error) {
	data, err := json.Marshal(sourceContent(collection, doc))
	if err != nil {
		return "", fmt.Errorf("failed to hash source: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// DocumentLanguage is the stored language, or the detected language of the text when unset.
func DocumentLanguage(collection string, doc docstore.Document) string {
	if lang := doc.String("language"); lang != "" {
		return lang
	}
	text := agentsync.CleanText(sourceContent(collection, doc), doc.String("title"))
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return sourceLanguage
	}
	return info.Lang.Iso6391()
}

func sourceContent(collection string, doc docstore.Document) any {
	if collection == docstore.CollectionPosts {
		return doc["content"]
	}
	return doc["layout"]
}
