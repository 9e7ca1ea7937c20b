package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hollis-ai/reverie/internal/taskqueue"
)

// CreateTask inserts a new task row.
func (s *Store) CreateTask(ctx context.Context, t *taskqueue.Task) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO tasks (id, kind, description, priority, status, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.Kind, t.Description, t.Priority, string(t.Status), t.Result, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create task %s: %w", t.ID, err)
	}
	return nil
}

// NextPendingTask returns the oldest pending task, or nil when the queue is
// empty.
func (s *Store) NextPendingTask(ctx context.Context) (*taskqueue.Task, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, kind, description, priority, status, result, created_at, started_at, completed_at
		FROM tasks WHERE status = 'pending'
		ORDER BY created_at
		LIMIT 1`)

	var t taskqueue.Task
	err := row.Scan(&t.ID, &t.Kind, &t.Description, &t.Priority, &t.Status,
		&t.Result, &t.CreatedAt, &t.StartedAt, &t.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next pending task: %w", err)
	}
	return &t, nil
}

// UpdateTask writes back a task's mutable fields.
func (s *Store) UpdateTask(ctx context.Context, t *taskqueue.Task) error {
	_, err := s.db.Exec(ctx, `
		UPDATE tasks
		SET status = $2, result = $3, started_at = $4, completed_at = $5
		WHERE id = $1`,
		t.ID, string(t.Status), t.Result, t.StartedAt, t.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}
	return nil
}

// ListRecentTasks returns the most recently created tasks, newest first.
func (s *Store) ListRecentTasks(ctx context.Context, limit int) ([]taskqueue.Task, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, kind, description, priority, status, result, created_at, started_at, completed_at
		FROM tasks
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent tasks: %w", err)
	}
	defer rows.Close()

	var tasks []taskqueue.Task
	for rows.Next() {
		var t taskqueue.Task
		if err := rows.Scan(&t.ID, &t.Kind, &t.Description, &t.Priority, &t.Status,
			&t.Result, &t.CreatedAt, &t.StartedAt, &t.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
