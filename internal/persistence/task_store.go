package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MimeLyc/content-orchestrator/internal/jobs"
)

const taskColumns = `id, name, job_id, dedupe_key, status, attempt, max_attempts, backoff_type, backoff_delay_ms,
	run_at, error, created_at, updated_at`

func scanTask(row rowScanner) (*jobs.Task, error) {
	var (
		task        jobs.Task
		status      string
		backoffType string
		delayMS     int64
	)
	if err := row.Scan(
		&task.ID,
		&task.Name,
		&task.JobID,
		&task.DedupeKey,
		&status,
		&task.Attempt,
		&task.MaxAttempts,
		&backoffType,
		&delayMS,
		&task.RunAt,
		&task.Error,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return nil, err
	}
	task.Status = jobs.TaskStatus(status)
	task.Backoff = jobs.BackoffOptions{
		Type:  jobs.BackoffType(backoffType),
		Delay: time.Duration(delayMS) * time.Millisecond,
	}
	return &task, nil
}

func (s *SQLiteStore) LoadTasks(ctx context.Context) ([]*jobs.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+`
		 FROM queue_tasks
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*jobs.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) UpsertTask(ctx context.Context, task *jobs.Task) error {
	if task == nil {
		return fmt.Errorf("task is nil")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO queue_tasks (
			id, name, job_id, dedupe_key, status, attempt, max_attempts, backoff_type, backoff_delay_ms,
			run_at, error, created_at, updated_at, due_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status,
			attempt=excluded.attempt,
			run_at=excluded.run_at,
			due_ms=excluded.due_ms,
			error=excluded.error,
			updated_at=excluded.updated_at`,
		task.ID,
		task.Name,
		task.JobID,
		task.DedupeKey,
		string(task.Status),
		task.Attempt,
		task.MaxAttempts,
		string(task.Backoff.Type),
		task.Backoff.Delay.Milliseconds(),
		task.RunAt.UTC(),
		task.Error,
		task.CreatedAt.UTC(),
		task.UpdatedAt.UTC(),
		task.RunAt.UnixMilli(),
	)
	return err
}

func (s *SQLiteStore) DeleteTask(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM queue_tasks WHERE id = ?`, taskID)
	return err
}

// InsertTask stores task unless its dedupe key matches a pending or running task, in which
// case that task is returned instead.
func (s *SQLiteStore) InsertTask(ctx context.Context, task *jobs.Task) (*jobs.Task, bool, error) {
	if task == nil {
		return nil, false, fmt.Errorf("task is nil")
	}
	var (
		existing *jobs.Task
		inserted bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if task.DedupeKey != "" {
			found, err := scanTask(tx.QueryRowContext(ctx,
				`SELECT `+taskColumns+` FROM queue_tasks
				 WHERE dedupe_key = ? AND status IN ('pending', 'running')
				 ORDER BY created_at ASC LIMIT 1`,
				task.DedupeKey,
			))
			switch {
			case err == nil:
				existing = found
				return nil
			case !errors.Is(err, sql.ErrNoRows):
				return err
			}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO queue_tasks (
				id, name, job_id, dedupe_key, status, attempt, max_attempts, backoff_type, backoff_delay_ms,
				run_at, error, created_at, updated_at, due_ms
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			task.ID,
			task.Name,
			task.JobID,
			task.DedupeKey,
			string(task.Status),
			task.Attempt,
			task.MaxAttempts,
			string(task.Backoff.Type),
			task.Backoff.Delay.Milliseconds(),
			task.RunAt.UTC(),
			task.Error,
			task.CreatedAt.UTC(),
			task.UpdatedAt.UTC(),
			task.RunAt.UnixMilli(),
		)
		inserted = err == nil
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	return task, inserted, nil
}

// ClaimTask moves the earliest due pending task, or a running task whose lease expired, to
// running under owner. It returns nil when nothing is due.
func (s *SQLiteStore) ClaimTask(ctx context.Context, owner string, now time.Time, lease time.Duration) (*jobs.Task, error) {
	var claimed *jobs.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		nowMS := now.UnixMilli()
		var id string
		err := tx.QueryRowContext(ctx,
			`UPDATE queue_tasks
			 SET status = 'running', attempt = attempt + 1, owner = ?, lease_until_ms = ?, updated_at = ?
			 WHERE id = (
				SELECT id FROM queue_tasks
				WHERE (status = 'pending' AND due_ms <= ?) OR (status = 'running' AND lease_until_ms < ?)
				ORDER BY due_ms ASC, created_at ASC
				LIMIT 1
			 )
			 RETURNING id`,
			owner, now.Add(lease).UnixMilli(), now.UTC(), nowMS, nowMS,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		claimed, err = scanTask(tx.QueryRowContext(ctx,
			`SELECT `+taskColumns+` FROM queue_tasks WHERE id = ?`, id))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return claimed, nil
}

func (s *SQLiteStore) RenewLease(ctx context.Context, taskID, owner string, until time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE queue_tasks SET lease_until_ms = ?
		 WHERE id = ? AND owner = ? AND status = 'running'`,
		until.UnixMilli(), taskID, owner,
	)
	return err
}

func (s *SQLiteStore) ReleaseTask(ctx context.Context, task *jobs.Task, owner string) (bool, error) {
	if task == nil {
		return false, fmt.Errorf("task is nil")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE queue_tasks
		 SET status = ?, attempt = ?, run_at = ?, due_ms = ?, error = ?, updated_at = ?, owner = '', lease_until_ms = 0
		 WHERE id = ? AND owner = ? AND status = 'running'`,
		string(task.Status),
		task.Attempt,
		task.RunAt.UTC(),
		task.RunAt.UnixMilli(),
		task.Error,
		task.UpdatedAt.UTC(),
		task.ID,
		owner,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) PruneTasks(ctx context.Context, keep int) error {
	if keep <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM queue_tasks WHERE id IN (
			SELECT id FROM queue_tasks
			WHERE status IN ('completed', 'failed')
			ORDER BY updated_at DESC
			LIMIT -1 OFFSET ?
		)`,
		keep,
	)
	return err
}
