package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/content-orchestrator/internal/agentsync"
	"github.com/MimeLyc/content-orchestrator/internal/config"
	"github.com/MimeLyc/content-orchestrator/internal/docstore"
	"github.com/MimeLyc/content-orchestrator/internal/jobs"
	"github.com/MimeLyc/content-orchestrator/internal/llm"
	"github.com/MimeLyc/content-orchestrator/internal/llm/llmtest"
	"github.com/MimeLyc/content-orchestrator/internal/tracking"
)

type recordingQueue struct {
	mu       sync.Mutex
	requests []jobs.EnqueueRequest
}

func (q *recordingQueue) Enqueue(req jobs.EnqueueRequest) (*jobs.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requests = append(q.requests, req)
	return &jobs.Task{JobID: req.JobID, Name: req.Name}, true
}

func (q *recordingQueue) Requests() []jobs.EnqueueRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]jobs.EnqueueRequest(nil), q.requests...)
}

type staticSettings struct {
	settings config.RuntimeSettings
}

func (s staticSettings) GetRuntimeSettings() (config.RuntimeSettings, error) {
	return s.settings, nil
}

type fixture struct {
	orch  *Orchestrator
	store *jobs.MemoryStore
	docs  *docstore.MemoryStore
	queue *recordingQueue
	gen   *llmtest.Generator
}

func newFixture(t *testing.T, mutate func(*Deps), opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store: jobs.NewMemoryStore(),
		docs:  docstore.NewMemoryStore(),
		queue: &recordingQueue{},
		gen:   llmtest.New(),
	}
	deps := Deps{
		Store:     f.store,
		Docs:      f.docs,
		Queue:     f.queue,
		QueueName: "content",
		Generator: f.gen,
		Languages: []string{"en", "es", "fr"},
	}
	if mutate != nil {
		mutate(&deps)
	}
	orch, err := New(deps, opts...)
	require.NoError(t, err)
	f.orch = orch
	return f
}

func (f *fixture) createJob(t *testing.T, typ jobs.Type, input any, mutate ...func(*jobs.Job)) *jobs.Job {
	t.Helper()
	payload, err := json.Marshal(input)
	require.NoError(t, err)
	job := &jobs.Job{Type: typ, Status: jobs.StatusPending, InputPayload: payload}
	for _, m := range mutate {
		m(job)
	}
	created, err := f.store.CreateJob(context.Background(), job)
	require.NoError(t, err)
	return created
}

func (f *fixture) job(t *testing.T, id string) *jobs.Job {
	t.Helper()
	job, err := f.store.GetJob(context.Background(), id)
	require.NoError(t, err)
	return job
}

func pricingLayout() map[string]any {
	return map[string]any{
		"layout": []any{
			map[string]any{"blockType": "hero", "title": "Simple pricing", "subTitle": "Plans for every team"},
			map[string]any{"blockType": "faq", "heading": "Questions", "questions": []any{
				map[string]any{"question": "Can I cancel?", "answer": "Any time."},
			}},
		},
	}
}

func TestNew_RegistersEveryJobType(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	for _, typ := range jobs.AllTypes {
		assert.NotNil(t, f.orch.Handler(typ), typ)
	}

	_, err := New(Deps{Store: f.store, Docs: f.docs, Queue: f.queue},
		WithHandler(jobs.Type("UNKNOWN"), HandlerFunc(func(context.Context, *jobs.Job) error { return nil })))
	assert.Error(t, err)
}

func TestRun_CompletedJobIsNoop(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	job := f.createJob(t, jobs.TypeGeneratePage, map[string]any{"slug": "pricing"}, func(j *jobs.Job) {
		j.Status = jobs.StatusCompleted
		j.Step = jobs.StepCompleted
	})

	require.NoError(t, f.orch.Run(context.Background(), job.ID))
	assert.Zero(t, f.gen.Calls())
	assert.Equal(t, jobs.StepCompleted, f.job(t, job.ID).Step)
}

func TestRun_GeneratePage(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.gen.On("Generate the content for the page", llmtest.JSON(pricingLayout()))
	job := f.createJob(t, jobs.TypeGeneratePage, map[string]any{
		"slug":   "pricing",
		"title":  "Pricing",
		"blocks": []string{"hero", "faq"},
	})

	require.NoError(t, f.orch.Run(context.Background(), job.ID))

	done := f.job(t, job.ID)
	assert.Equal(t, jobs.StatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)
	assert.NotNil(t, done.ReviewScore)
	assert.Empty(t, done.SkippedBlocks)
	assert.Contains(t, done.Prompt, "slug: pricing")

	var out struct {
		PageID string `json:"pageId"`
	}
	require.NoError(t, json.Unmarshal(done.OutputPayload, &out))
	page, err := f.docs.FindByID(context.Background(), docstore.CollectionPages, out.PageID)
	require.NoError(t, err)
	assert.Equal(t, "pricing", page.String("slug"))
	assert.Equal(t, "en", page.String("language"))
	assert.NotEmpty(t, page.String("translation_group_id"))
	layout, _ := page["layout"].([]any)
	assert.Len(t, layout, 2)
}

func TestRun_GeneratePageAllBlocksInvalid(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.gen.On("Generate the content for the page", llmtest.JSON(map[string]any{
		"layout": []any{map[string]any{"blockType": "spaceship"}, map[string]any{"title": "no type"}},
	}))
	job := f.createJob(t, jobs.TypeGeneratePage, map[string]any{"slug": "pricing", "blocks": []string{"hero"}})

	err := f.orch.Run(context.Background(), job.ID)
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrValidation))

	failed := f.job(t, job.ID)
	assert.Equal(t, jobs.StatusFailed, failed.Status)
	assert.Len(t, failed.SkippedBlocks, 2)
	require.NotNil(t, failed.Error)
	assert.Contains(t, failed.Error.Message, "No page created")

	pages, err := f.docs.Find(context.Background(), docstore.CollectionPages, docstore.Query{})
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestRun_RegeneratePageUpdatesInPlace(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.gen.On("Generate the content for the page", llmtest.JSON(pricingLayout()))
	ctx := context.Background()
	existing, err := f.docs.Create(ctx, docstore.CollectionPages, docstore.Document{
		"title":    "Pricing",
		"slug":     "pricing",
		"language": "en",
		"layout": []any{
			map[string]any{"blockType": "hero", "title": "Old"},
			map[string]any{"blockType": "faq", "heading": "Old questions"},
		},
	})
	require.NoError(t, err)
	job := f.createJob(t, jobs.TypeRegeneratePage, map[string]any{"pageId": existing.ID()})

	require.NoError(t, f.orch.Run(ctx, job.ID))

	done := f.job(t, job.ID)
	assert.Equal(t, jobs.StatusCompleted, done.Status)
	assert.Contains(t, done.Prompt, "slug: pricing")

	pages, err := f.docs.Find(ctx, docstore.CollectionPages, docstore.Query{})
	require.NoError(t, err)
	require.Len(t, pages, 1)
	page := pages[0]
	assert.Equal(t, existing.ID(), page.ID())
	assert.Equal(t, "Pricing", page.String("title"))
	layout, _ := page["layout"].([]any)
	require.Len(t, layout, 2)
	hero, _ := layout[0].(map[string]any)
	assert.Equal(t, "Simple pricing", hero["title"])
}

func TestRun_RegeneratePageMissingID(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	job := f.createJob(t, jobs.TypeRegeneratePage, map[string]any{})

	err := f.orch.Run(context.Background(), job.ID)
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrInput))
	assert.Zero(t, f.gen.Calls())
}

func TestRun_GenerateWebsite(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.gen.On("plan a website structure", llmtest.JSON(map[string]any{
		"pages": []any{
			map[string]any{"slug": "home", "title": "Home", "blocks": []string{"hero"}},
			map[string]any{"slug": "about", "title": "About", "blocks": []string{"hero", "faq"}},
		},
		"header": map[string]any{"navItems": []any{map[string]any{"label": "About", "url": "/en/about"}}},
	}))
	job := f.createJob(t, jobs.TypeGenerateWebsite, map[string]any{})

	require.NoError(t, f.orch.Run(context.Background(), job.ID))
	assert.Equal(t, jobs.StatusCompleted, f.job(t, job.ID).Status)

	children, err := f.store.ListJobs(context.Background(), jobs.JobFilter{ParentJob: job.ID})
	require.NoError(t, err)
	require.Len(t, children, 2)
	var input struct {
		AllPlannedSlugs []string `json:"allPlannedSlugs"`
	}
	require.NoError(t, children[0].DecodeInput(&input))
	assert.ElementsMatch(t, []string{"home", "about"}, input.AllPlannedSlugs)
	assert.Len(t, f.queue.Requests(), 2)

	header, found, err := docstore.FindOne(context.Background(), f.docs, docstore.CollectionHeader, map[string]any{"language": "en"})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "header-group", header.String("translation_group_id"))
	items, _ := header["navItems"].([]any)
	assert.Len(t, items, 1)
}

func TestRun_TranslateDocumentUpdatesOnlyTargetEntry(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.gen.Respond = func(req llm.Request) llm.Result {
		if !strings.Contains(req.System, "professional translator") {
			return llmtest.Failure("unexpected request")
		}
		var texts map[string]string
		if err := json.Unmarshal([]byte(req.Prompt), &texts); err != nil {
			return llmtest.Failure(err.Error())
		}
		for k, v := range texts {
			texts[k] = "es:" + v
		}
		return llmtest.JSON(texts)
	}
	ctx := context.Background()
	source, err := f.docs.Create(ctx, docstore.CollectionPages, docstore.Document{
		"title":                "Pricing",
		"slug":                 "pricing",
		"language":             "en",
		"translation_group_id": "group-1",
		"_status":              "published",
		"meta":                 map[string]any{"image": "asset-1"},
		"layout": []any{
			map[string]any{"blockType": "hero", "title": "Simple pricing", "subTitle": "Plans for every team"},
		},
	})
	require.NoError(t, err)

	svc := f.orch.deps.Tracking
	require.NoError(t, svc.MarkEntry(ctx, "group-1", "es", tracking.StatusPending, "", "", nil))
	require.NoError(t, svc.MarkEntry(ctx, "group-1", "fr", tracking.StatusPending, "", "", nil))

	job := f.createJob(t, jobs.TypeTranslateDocument, map[string]any{
		"sourceDocId": source.ID(),
		"collection":  docstore.CollectionPages,
	}, func(j *jobs.Job) { j.TargetLanguage = "es" })

	require.NoError(t, f.orch.Run(ctx, job.ID))
	assert.Equal(t, jobs.StatusCompleted, f.job(t, job.ID).Status)

	sibling, found, err := docstore.FindOne(ctx, f.docs, docstore.CollectionPages, map[string]any{"slug": "pricing", "language": "es"})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "es:Pricing", sibling.String("title"))
	assert.Equal(t, "group-1", sibling.String("translation_group_id"))
	layout, _ := sibling["layout"].([]any)
	require.Len(t, layout, 1)
	hero, _ := layout[0].(map[string]any)
	assert.Equal(t, "es:Simple pricing", hero["title"])
	assert.Equal(t, "hero", hero["blockType"])
	meta, _ := sibling["meta"].(map[string]any)
	assert.Equal(t, "asset-1", meta["image"])

	tr, found, err := svc.Get(ctx, "group-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, tracking.StatusCompleted, tr.Entry("es").Status)
	assert.Equal(t, job.ID, tr.Entry("es").JobID)
	assert.Equal(t, tracking.StatusPending, tr.Entry("fr").Status)
}

func TestRun_TranslateDocumentFailureMarksEntry(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()
	source, err := f.docs.Create(ctx, docstore.CollectionPages, docstore.Document{
		"slug":                 "pricing",
		"language":             "en",
		"translation_group_id": "group-2",
		"layout":               []any{map[string]any{"blockType": "hero"}},
	})
	require.NoError(t, err)

	job := f.createJob(t, jobs.TypeTranslateDocument, map[string]any{"sourceDocId": source.ID()},
		func(j *jobs.Job) { j.TargetLanguage = "fr" })

	err = f.orch.Run(ctx, job.ID)
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrValidation))

	tr, found, err := f.orch.deps.Tracking.Get(ctx, "group-2")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, tracking.StatusFailed, tr.Entry("fr").Status)
	assert.Contains(t, tr.Entry("fr").Error, "All translated blocks failed validation")
}

func TestRun_TranslateDocumentMissingLanguage(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	job := f.createJob(t, jobs.TypeTranslateDocument, map[string]any{"sourceDocId": "doc-1"})

	err := f.orch.Run(context.Background(), job.ID)
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrInput))
	assert.Equal(t, jobs.StatusFailed, f.job(t, job.ID).Status)
}

func TestRun_BulkKeywordsCompletesAfterAllChildren(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.gen.On("Generate the content for the page", llmtest.JSON(pricingLayout()))
	ctx := context.Background()
	_, err := f.docs.Create(ctx, docstore.CollectionPages, docstore.Document{"slug": "existing-topic", "language": "en"})
	require.NoError(t, err)

	keywords := []string{"Cloud Costs", "cloud costs", "Existing Topic", "Edge Caching", "Zero Trust", "Data Mesh", "Vector Search"}
	parent := f.createJob(t, jobs.TypeBulkKeywordGeneration, map[string]any{"keywords": keywords})

	require.NoError(t, f.orch.Run(ctx, parent.ID))
	spawned := f.job(t, parent.ID)
	assert.Equal(t, jobs.StatusRunning, spawned.Status)
	assert.Equal(t, StepChildrenSpawned, spawned.Step)
	assert.Equal(t, 5, spawned.TotalKeywords)

	children, err := f.store.ListJobs(ctx, jobs.JobFilter{ParentJob: parent.ID})
	require.NoError(t, err)
	require.Len(t, children, 5)
	assert.Len(t, f.queue.Requests(), 5)

	var wg sync.WaitGroup
	for _, child := range children {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, f.orch.Run(ctx, id))
		}(child.ID)
	}
	wg.Wait()

	done := f.job(t, parent.ID)
	assert.Equal(t, jobs.StatusCompleted, done.Status)
	assert.Equal(t, 5, done.ProcessedKeywords)
	assert.Equal(t, 100, done.CompletionPercentage)

	// a redelivered child must not count twice
	require.NoError(t, f.orch.Run(ctx, children[0].ID))
	assert.Equal(t, 5, f.job(t, parent.ID).ProcessedKeywords)
}

func TestRun_RerunCompletedChildCountsOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.gen.On("Generate the content for the page", llmtest.JSON(pricingLayout()))
	ctx := context.Background()

	parent := f.createJob(t, jobs.TypeBulkKeywordGeneration, map[string]any{"keywords": []string{"Edge Caching", "Zero Trust"}})
	require.NoError(t, f.orch.Run(ctx, parent.ID))
	children, err := f.store.ListJobs(ctx, jobs.JobFilter{ParentJob: parent.ID})
	require.NoError(t, err)
	require.Len(t, children, 2)

	require.NoError(t, f.orch.Run(ctx, children[0].ID))
	assert.Equal(t, 1, f.job(t, parent.ID).ProcessedKeywords)
	assert.True(t, f.job(t, children[0].ID).ParentCounted)

	// a manual rerun resets the child to pending and clears completed_at
	_, err = f.store.UpdateJob(ctx, children[0].ID, func(j *jobs.Job) error {
		j.Status = jobs.StatusPending
		j.Step = ""
		j.CompletedAt = nil
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, f.orch.Run(ctx, children[0].ID))
	assert.Equal(t, jobs.StatusCompleted, f.job(t, children[0].ID).Status)

	still := f.job(t, parent.ID)
	assert.Equal(t, 1, still.ProcessedKeywords)
	assert.Equal(t, jobs.StatusRunning, still.Status)

	require.NoError(t, f.orch.Run(ctx, children[1].ID))
	done := f.job(t, parent.ID)
	assert.Equal(t, 2, done.ProcessedKeywords)
	assert.Equal(t, jobs.StatusCompleted, done.Status)
}

func TestRun_BulkKeywordsNothingNew(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	_, err := f.docs.Create(context.Background(), docstore.CollectionPages, docstore.Document{"slug": "zero-trust"})
	require.NoError(t, err)
	parent := f.createJob(t, jobs.TypeBulkKeywordGeneration, map[string]any{"keywords": []string{"Zero Trust"}})

	require.NoError(t, f.orch.Run(context.Background(), parent.ID))
	done := f.job(t, parent.ID)
	assert.Equal(t, jobs.StatusCompleted, done.Status)
	assert.Equal(t, StepNoNewKeywords, done.Step)
	assert.Empty(t, f.queue.Requests())
}

func TestRun_ChildFailureFailsParent(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	parent := f.createJob(t, jobs.TypeBulkKeywordGeneration, map[string]any{"keywords": []string{"Edge Caching"}})
	require.NoError(t, f.orch.Run(context.Background(), parent.ID))

	children, err := f.store.ListJobs(context.Background(), jobs.JobFilter{ParentJob: parent.ID})
	require.NoError(t, err)
	require.Len(t, children, 1)

	require.Error(t, f.orch.Run(context.Background(), children[0].ID))

	failed := f.job(t, parent.ID)
	assert.Equal(t, jobs.StatusFailed, failed.Status)
	require.NotNil(t, failed.Error)
	assert.Contains(t, failed.Error.Message, fmt.Sprintf("Child job %s failed", children[0].ID))
}

func TestRun_ChildFailureLeavesCompletedParent(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	parent := f.createJob(t, jobs.TypeGenerateWebsite, map[string]any{}, func(j *jobs.Job) {
		j.MarkCompleted(jobs.StepCompleted, time.Now())
	})
	child := f.createJob(t, jobs.TypeGeneratePage, map[string]any{"slug": "pricing", "blocks": []string{"hero"}}, func(j *jobs.Job) {
		j.ParentJob = parent.ID
	})

	require.Error(t, f.orch.Run(context.Background(), child.ID))
	assert.Equal(t, jobs.StatusFailed, f.job(t, child.ID).Status)

	kept := f.job(t, parent.ID)
	assert.Equal(t, jobs.StatusCompleted, kept.Status)
	assert.Nil(t, kept.Error)
}

func TestRun_RetrySchedulesDelayedRedelivery(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(d *Deps) {
		d.Retry = config.RetryConfig{Enabled: true, MaxRetries: 1, BaseDelayMS: 100}
	})
	job := f.createJob(t, jobs.TypeGeneratePage, map[string]any{"slug": "pricing", "blocks": []string{"hero"}})

	require.Error(t, f.orch.Run(context.Background(), job.ID))
	pending := f.job(t, job.ID)
	assert.Equal(t, jobs.StatusPending, pending.Status)
	assert.Equal(t, jobs.StepRetryPending, pending.Step)
	assert.Equal(t, 1, pending.RetryCount)
	require.Len(t, f.queue.Requests(), 1)
	assert.Equal(t, 100*time.Millisecond, f.queue.Requests()[0].Options.Delay)

	require.Error(t, f.orch.Run(context.Background(), job.ID))
	failed := f.job(t, job.ID)
	assert.Equal(t, jobs.StatusFailed, failed.Status)
	assert.Equal(t, 2, failed.RetryCount)
	assert.Len(t, f.queue.Requests(), 1)
}

func TestRun_InputErrorsAreNotRetried(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(d *Deps) {
		d.Retry = config.RetryConfig{Enabled: true, MaxRetries: 3, BaseDelayMS: 100}
	})
	job := f.createJob(t, jobs.TypeGeneratePage, map[string]any{"title": "no slug"})

	require.Error(t, f.orch.Run(context.Background(), job.ID))
	assert.Equal(t, jobs.StatusFailed, f.job(t, job.ID).Status)
	assert.Empty(t, f.queue.Requests())
}

func TestRun_HandlerPanicBecomesFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, WithHandler(jobs.TypeAgentSync, HandlerFunc(func(context.Context, *jobs.Job) error {
		panic("boom")
	})))
	job := f.createJob(t, jobs.TypeAgentSync, map[string]any{})

	err := f.orch.Run(context.Background(), job.ID)
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrUnknown))

	failed := f.job(t, job.ID)
	assert.Equal(t, jobs.StatusFailed, failed.Status)
	require.NotNil(t, failed.Error)
	assert.Contains(t, failed.Error.Message, "boom")
	assert.NotEmpty(t, failed.Error.Stack)
}

func TestRun_AgentSync(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var received map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		defer mu.Unlock()
		auth = r.Header.Get("Authorization")
		_ = json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	f := newFixture(t, func(d *Deps) {
		d.AgentSync = agentsync.NewClient(srv.URL, "secret")
		d.ServerURL = "https://example.com"
	})
	page, err := f.docs.Create(context.Background(), docstore.CollectionPages, docstore.Document{
		"title":    "Pricing",
		"slug":     "pricing",
		"language": "en",
		"layout":   []any{map[string]any{"blockType": "hero", "title": "Simple pricing"}},
	})
	require.NoError(t, err)
	job := f.createJob(t, jobs.TypeAgentSync, map[string]any{"sourceId": page.ID(), "sourceType": "page"})

	require.NoError(t, f.orch.Run(context.Background(), job.ID))

	done := f.job(t, job.ID)
	assert.Equal(t, jobs.StatusCompleted, done.Status)
	assert.Equal(t, StepSyncCompleted, done.Step)
	var out map[string]any
	require.NoError(t, json.Unmarshal(done.OutputPayload, &out))
	assert.Equal(t, "Pricing", out["title"])
	assert.Equal(t, page.ID(), out["sourceId"])

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "https://example.com/pricing", received["url"])
}

func TestRun_AgentSyncRejectsUnknownSourceType(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	job := f.createJob(t, jobs.TypeAgentSync, map[string]any{"sourceId": "x", "sourceType": "video"})

	err := f.orch.Run(context.Background(), job.ID)
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrInput))
}

func TestRun_NewsAutomationDisabled(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(d *Deps) {
		d.Settings = staticSettings{settings: config.RuntimeSettings{Enabled: false}}
	})
	job := f.createJob(t, jobs.TypeIndustryNewsAutomation, map[string]any{})

	require.NoError(t, f.orch.Run(context.Background(), job.ID))
	done := f.job(t, job.ID)
	assert.Equal(t, jobs.StatusCompleted, done.Status)
	assert.Equal(t, StepDisabled, done.Step)
	assert.Zero(t, f.gen.Calls())
}

func TestRun_CancelledJobIsSkipped(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	job := f.createJob(t, jobs.TypeGeneratePage, map[string]any{"slug": "pricing"}, func(j *jobs.Job) {
		j.Status = jobs.StatusFailed
		j.Step = jobs.StepCancelled
	})

	require.NoError(t, f.orch.Run(context.Background(), job.ID))
	assert.Equal(t, jobs.StepCancelled, f.job(t, job.ID).Step)
	assert.Zero(t, f.gen.Calls())
}
