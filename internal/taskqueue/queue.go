// Package taskqueue is the durable FIFO of actions produced by decisions.
// Exactly one pending task is promoted and executed per scheduler cycle,
// which caps per-tick cost no matter how many tasks have accumulated.
package taskqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hollis-ai/reverie/internal/mind"
	"go.uber.org/zap"
)

// Status tracks a task through its lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusAbandoned  Status = "abandoned"
)

// Task is a unit of cognitive work.
type Task struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Description string     `json:"description"`
	Priority    int        `json:"priority"` // 1-10
	Status      Status     `json:"status"`
	Result      string     `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Store persists tasks.
type Store interface {
	CreateTask(ctx context.Context, t *Task) error
	NextPendingTask(ctx context.Context) (*Task, error) // oldest pending, nil when empty
	UpdateTask(ctx context.Context, t *Task) error
}

// Handler executes one kind of task and returns its result text.
type Handler func(ctx context.Context, t *Task) (string, error)

// Queue dispatches pending tasks to registered handlers, one per call.
// Handler failures mark the task Abandoned; the queue itself never raises
// past a store error.
type Queue struct {
	store    Store
	handlers map[string]Handler
	logger   *zap.Logger
}

// New creates a queue over the given store.
func New(store Store, logger *zap.Logger) *Queue {
	return &Queue{
		store:    store,
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// Register binds a handler to a task kind.
func (q *Queue) Register(kind string, h Handler) {
	q.handlers[kind] = h
}

// Enqueue persists a new pending task.
func (q *Queue) Enqueue(ctx context.Context, t *Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.Status = StatusPending
	t.Priority = mind.Clamp(t.Priority, 1, 10)
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if err := q.store.CreateTask(ctx, t); err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	q.logger.Debug("task enqueued",
		zap.String("id", t.ID),
		zap.String("kind", t.Kind))
	return nil
}

// ExecuteOne promotes the oldest pending task through
// InProgress to Completed or Abandoned. Returns the executed task, or nil
// when the queue is empty.
func (q *Queue) ExecuteOne(ctx context.Context) (*Task, error) {
	task, err := q.store.NextPendingTask(ctx)
	if err != nil {
		return nil, fmt.Errorf("next pending task: %w", err)
	}
	if task == nil {
		return nil, nil
	}

	now := time.Now()
	task.Status = StatusInProgress
	task.StartedAt = &now
	if err := q.store.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("mark task in progress: %w", err)
	}

	handler, ok := q.handlers[task.Kind]
	if !ok {
		q.finish(ctx, task, StatusAbandoned, "unknown task kind: "+task.Kind)
		q.logger.Warn("task abandoned, unknown kind",
			zap.String("id", task.ID),
			zap.String("kind", task.Kind))
		return task, nil
	}

	result, err := q.safeRun(ctx, handler, task)
	if err != nil {
		q.finish(ctx, task, StatusAbandoned, "handler failed: "+err.Error())
		q.logger.Warn("task abandoned",
			zap.String("id", task.ID),
			zap.String("kind", task.Kind),
			zap.Error(err))
		return task, nil
	}

	q.finish(ctx, task, StatusCompleted, result)
	q.logger.Info("task completed",
		zap.String("id", task.ID),
		zap.String("kind", task.Kind))
	return task, nil
}

// safeRun shields the queue from panicking handlers.
func (q *Queue) safeRun(ctx context.Context, h Handler, t *Task) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, t)
}

func (q *Queue) finish(ctx context.Context, t *Task, status Status, result string) {
	now := time.Now()
	t.Status = status
	t.Result = result
	t.CompletedAt = &now
	if err := q.store.UpdateTask(ctx, t); err != nil {
		q.logger.Warn("task finalize failed",
			zap.String("id", t.ID),
			zap.Error(err))
	}
}
