package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MimeLyc/content-orchestrator/internal/jobs"
	"github.com/google/uuid"
)

const jobColumns = `id, type, status, step, input_payload, output_payload, prompt, error_json, skipped_blocks,
	review_score, review_issues, retry_count, parent_job, total_keywords, processed_keywords,
	completion_percentage, target_language, created_at, updated_at, completed_at, parent_counted`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*jobs.Job, error) {
	var (
		job           jobs.Job
		jobType       string
		status        string
		input         sql.NullString
		output        sql.NullString
		errorJSON     sql.NullString
		skippedBlocks sql.NullString
		reviewScore   sql.NullInt64
		reviewIssues  sql.NullString
		completedAt   sql.NullTime
	)
	if err := row.Scan(
		&job.ID,
		&jobType,
		&status,
		&job.Step,
		&input,
		&output,
		&job.Prompt,
		&errorJSON,
		&skippedBlocks,
		&reviewScore,
		&reviewIssues,
		&job.RetryCount,
		&job.ParentJob,
		&job.TotalKeywords,
		&job.ProcessedKeywords,
		&job.CompletionPercentage,
		&job.TargetLanguage,
		&job.CreatedAt,
		&job.UpdatedAt,
		&completedAt,
		&job.ParentCounted,
	); err != nil {
		return nil, err
	}
	job.Type = jobs.Type(jobType)
	job.Status = jobs.Status(status)
	if input.Valid {
		job.InputPayload = json.RawMessage(input.String)
	}
	if output.Valid {
		job.OutputPayload = json.RawMessage(output.String)
	}
	if reviewIssues.Valid {
		job.ReviewIssues = json.RawMessage(reviewIssues.String)
	}
	if errorJSON.Valid {
		var info jobs.ErrorInfo
		if err := json.Unmarshal([]byte(errorJSON.String), &info); err != nil {
			return nil, fmt.Errorf("decode error of job %s: %w", job.ID, err)
		}
		job.Error = &info
	}
	if skippedBlocks.Valid {
		if err := json.Unmarshal([]byte(skippedBlocks.String), &job.SkippedBlocks); err != nil {
			return nil, fmt.Errorf("decode skipped blocks of job %s: %w", job.ID, err)
		}
	}
	if reviewScore.Valid {
		score := int(reviewScore.Int64)
		job.ReviewScore = &score
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}

type jobRow struct {
	errorJSON     sql.NullString
	skippedBlocks sql.NullString
	reviewScore   sql.NullInt64
	completedAt   sql.NullTime
}

func encodeJob(job *jobs.Job) (jobRow, error) {
	var row jobRow
	if job.Error != nil {
		data, err := json.Marshal(job.Error)
		if err != nil {
			return row, err
		}
		row.errorJSON = sql.NullString{String: string(data), Valid: true}
	}
	if len(job.SkippedBlocks) > 0 {
		data, err := json.Marshal(job.SkippedBlocks)
		if err != nil {
			return row, err
		}
		row.skippedBlocks = sql.NullString{String: string(data), Valid: true}
	}
	if job.ReviewScore != nil {
		row.reviewScore = sql.NullInt64{Int64: int64(*job.ReviewScore), Valid: true}
	}
	if job.CompletedAt != nil {
		row.completedAt = sql.NullTime{Time: job.CompletedAt.UTC(), Valid: true}
	}
	return row, nil
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *jobs.Job) (*jobs.Job, error) {
	if job == nil {
		return nil, fmt.Errorf("job is nil")
	}
	stored := jobs.CloneJob(job)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.Status == "" {
		stored.Status = jobs.StatusPending
	}
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	row, err := encodeJob(stored)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID,
		string(stored.Type),
		string(stored.Status),
		stored.Step,
		nullString(stored.InputPayload),
		nullString(stored.OutputPayload),
		stored.Prompt,
		row.errorJSON,
		row.skippedBlocks,
		row.reviewScore,
		nullString(stored.ReviewIssues),
		stored.RetryCount,
		stored.ParentJob,
		stored.TotalKeywords,
		stored.ProcessedKeywords,
		stored.CompletionPercentage,
		stored.TargetLanguage,
		stored.CreatedAt,
		stored.UpdatedAt,
		row.completedAt,
		stored.ParentCounted,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return stored, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobs.ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, id string, fn func(*jobs.Job) error) (*jobs.Job, error) {
	var updated *jobs.Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return jobs.ErrJobNotFound
			}
			return err
		}
		next := jobs.CloneJob(current)
		if err := fn(next); err != nil {
			return err
		}
		next.ID = current.ID
		next.CreatedAt = current.CreatedAt
		next.UpdatedAt = time.Now().UTC()

		row, err := encodeJob(next)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE jobs SET
				type = ?, status = ?, step = ?, input_payload = ?, output_payload = ?, prompt = ?,
				error_json = ?, skipped_blocks = ?, review_score = ?, review_issues = ?, retry_count = ?,
				parent_job = ?, total_keywords = ?, processed_keywords = ?, completion_percentage = ?,
				target_language = ?, updated_at = ?, completed_at = ?, parent_counted = ?
			WHERE id = ?`,
			string(next.Type),
			string(next.Status),
			next.Step,
			nullString(next.InputPayload),
			nullString(next.OutputPayload),
			next.Prompt,
			row.errorJSON,
			row.skippedBlocks,
			row.reviewScore,
			nullString(next.ReviewIssues),
			next.RetryCount,
			next.ParentJob,
			next.TotalKeywords,
			next.ProcessedKeywords,
			next.CompletionPercentage,
			next.TargetLanguage,
			next.UpdatedAt,
			row.completedAt,
			next.ParentCounted,
			next.ID,
		)
		if err != nil {
			return fmt.Errorf("update job: %w", err)
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.Job, error) {
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if filter.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.ParentJob != "" {
		clauses = append(clauses, "parent_job = ?")
		args = append(args, filter.ParentJob)
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*jobs.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// IncrementProcessed is a single conditional UPDATE, so concurrent child completions can
// neither lose a count nor complete the parent twice.
func (s *SQLiteStore) IncrementProcessed(ctx context.Context, parentID string) (*jobs.Job, bool, error) {
	now := time.Now().UTC()
	var (
		processed int
		status    string
	)
	err := s.db.QueryRowContext(ctx,
		`UPDATE jobs SET
			processed_keywords = processed_keywords + 1,
			completion_percentage = ((processed_keywords + 1) * 100) / total_keywords,
			status = CASE WHEN processed_keywords + 1 = total_keywords THEN ? ELSE status END,
			step = CASE WHEN processed_keywords + 1 = total_keywords THEN ? ELSE step END,
			completed_at = CASE WHEN processed_keywords + 1 = total_keywords THEN ? ELSE completed_at END,
			updated_at = ?
		WHERE id = ? AND total_keywords > 0 AND processed_keywords < total_keywords
		RETURNING processed_keywords, status`,
		string(jobs.StatusCompleted),
		jobs.StepCompleted,
		now,
		now,
		parentID,
	).Scan(&processed, &status)
	changed := true
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("increment processed: %w", err)
		}
		changed = false
	}

	parent, err := s.GetJob(ctx, parentID)
	if err != nil {
		return nil, false, err
	}
	if changed {
		// later increments may already be visible; report the state this call produced
		parent.ProcessedKeywords = processed
		parent.Status = jobs.Status(status)
	}
	return parent, changed, nil
}
