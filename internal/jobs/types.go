package jobs

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type selects the handler that processes a job.
type Type string

const (
	TypeGenerateWebsite        Type = "GENERATE_WEBSITE"
	TypeGeneratePage           Type = "GENERATE_PAGE"
	TypeRegeneratePage         Type = "REGENERATE_PAGE"
	TypeTranslateDocument      Type = "TRANSLATE_DOCUMENT"
	TypeBulkKeywordGeneration  Type = "BULK_KEYWORD_GENERATION"
	TypeAgentSync              Type = "AGENT_SYNC"
	TypeIndustryNewsAutomation Type = "INDUSTRY_NEWS_AUTOMATION"
)

// AllTypes lists every job type. Handler registries are checked against it.
var AllTypes = []Type{
	TypeGenerateWebsite,
	TypeGeneratePage,
	TypeRegeneratePage,
	TypeTranslateDocument,
	TypeBulkKeywordGeneration,
	TypeAgentSync,
	TypeIndustryNewsAutomation,
}

func (t Type) Valid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown job type %q", s)
	}
	return t, nil
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Steps written by the orchestrator itself. Handlers use their own labels.
const (
	StepInitialization = "INITIALIZATION"
	StepRetryPending   = "RETRY_PENDING"
	StepFailed         = "FAILED"
	StepCancelled      = "CANCELLED"
	StepCompleted      = "COMPLETED"
)

type ErrorInfo struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// SkippedBlock records a layout block dropped during post-processing.
type SkippedBlock struct {
	Index int    `json:"index"`
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Job is the persisted unit of work. Status is the source of truth for progress; Step is advisory.
type Job struct {
	ID                   string          `json:"id"`
	Type                 Type            `json:"type"`
	Status               Status          `json:"status"`
	Step                 string          `json:"step,omitempty"`
	InputPayload         json.RawMessage `json:"input_payload,omitempty"`
	OutputPayload        json.RawMessage `json:"output_payload,omitempty"`
	Prompt               string          `json:"prompt,omitempty"`
	Error                *ErrorInfo      `json:"error,omitempty"`
	SkippedBlocks        []SkippedBlock  `json:"skipped_blocks,omitempty"`
	ReviewScore          *int            `json:"review_score,omitempty"`
	ReviewIssues         json.RawMessage `json:"review_issues,omitempty"`
	RetryCount           int             `json:"retry_count"`
	ParentJob            string          `json:"parent_job,omitempty"`
	// ParentCounted is set once this child's completion was added to the parent's progress.
	// Reruns keep it, so a child counts at most once.
	ParentCounted        bool            `json:"parent_counted,omitempty"`
	TotalKeywords        int             `json:"total_keywords,omitempty"`
	ProcessedKeywords    int             `json:"processed_keywords,omitempty"`
	CompletionPercentage int             `json:"completion_percentage,omitempty"`
	TargetLanguage       string          `json:"target_language,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty"`
}

// DecodeInput unmarshals the input payload into v. An empty payload leaves v untouched.
func (j *Job) DecodeInput(v any) error {
	if len(j.InputPayload) == 0 {
		return nil
	}
	if err := json.Unmarshal(j.InputPayload, v); err != nil {
		return fmt.Errorf("invalid input payload: %w", err)
	}
	return nil
}

// SetOutput replaces the output payload with the JSON encoding of v.
func (j *Job) SetOutput(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode output payload: %w", err)
	}
	j.OutputPayload = data
	return nil
}

// MarkCompleted sets the terminal success state.
func (j *Job) MarkCompleted(step string, now time.Time) {
	j.Status = StatusCompleted
	j.Step = step
	j.Error = nil
	j.CompletedAt = &now
}

// Cancelled reports whether the job was stopped by a user and must not run again.
func (j *Job) Cancelled() bool {
	return j.Status == StatusFailed && j.Step == StepCancelled
}

// Terminal reports whether a worker should skip the job.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Cancelled()
}

// JobFilter narrows ListJobs. Zero values match everything.
type JobFilter struct {
	Type      Type
	Status    Status
	ParentJob string
	Limit     int
}

func (f JobFilter) Match(job *Job) bool {
	if f.Type != "" && job.Type != f.Type {
		return false
	}
	if f.Status != "" && job.Status != f.Status {
		return false
	}
	if f.ParentJob != "" && job.ParentJob != f.ParentJob {
		return false
	}
	return true
}

func CloneJob(job *Job) *Job {
	if job == nil {
		return nil
	}
	tmp := *job
	tmp.InputPayload = cloneRaw(job.InputPayload)
	tmp.OutputPayload = cloneRaw(job.OutputPayload)
	tmp.ReviewIssues = cloneRaw(job.ReviewIssues)
	if job.Error != nil {
		e := *job.Error
		tmp.Error = &e
	}
	if job.SkippedBlocks != nil {
		tmp.SkippedBlocks = append([]SkippedBlock(nil), job.SkippedBlocks...)
	}
	if job.ReviewScore != nil {
		s := *job.ReviewScore
		tmp.ReviewScore = &s
	}
	if job.CompletedAt != nil {
		c := *job.CompletedAt
		tmp.CompletedAt = &c
	}
	return &tmp
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

// TaskStatus is the queue-side delivery state, independent of Job.Status.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// EnqueueOptions mirror the delivery options of the job queue: attempts, backoff and initial delay.
type EnqueueOptions struct {
	Attempts  int            `json:"attempts,omitempty"`
	Backoff   BackoffOptions `json:"backoff"`
	Delay     time.Duration  `json:"delay,omitempty"`
	DedupeKey string         `json:"dedupe_key,omitempty"`
}

type EnqueueRequest struct {
	Name    string
	JobID   string
	Options EnqueueOptions
}

// Task is one delivery of a job id through the queue.
type Task struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	JobID       string         `json:"job_id"`
	DedupeKey   string         `json:"dedupe_key,omitempty"`
	Status      TaskStatus     `json:"status"`
	Attempt     int            `json:"attempt"`
	MaxAttempts int            `json:"max_attempts"`
	Backoff     BackoffOptions `json:"backoff"`
	RunAt       time.Time      `json:"run_at"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}
	tmp := *task
	return &tmp
}
