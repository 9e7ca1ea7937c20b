package taskqueue

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

// fakeTaskStore is an in-memory FIFO task store.
type fakeTaskStore struct {
	tasks []*Task
}

func (f *fakeTaskStore) CreateTask(_ context.Context, t *Task) error {
	copied := *t
	f.tasks = append(f.tasks, &copied)
	return nil
}

func (f *fakeTaskStore) NextPendingTask(_ context.Context) (*Task, error) {
	for _, t := range f.tasks {
		if t.Status == StatusPending {
			copied := *t
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeTaskStore) UpdateTask(_ context.Context, t *Task) error {
	for i, existing := range f.tasks {
		if existing.ID == t.ID {
			copied := *t
			f.tasks[i] = &copied
			return nil
		}
	}
	return errors.New("task not found")
}

func (f *fakeTaskStore) byStatus(s Status) int {
	n := 0
	for _, t := range f.tasks {
		if t.Status == s {
			n++
		}
	}
	return n
}

func newTestQueue() (*Queue, *fakeTaskStore) {
	store := &fakeTaskStore{}
	return New(store, zap.NewNop()), store
}

func TestExecuteOneRunsExactlyOneTask(t *testing.T) {
	q, store := newTestQueue()
	q.Register("noop", func(_ context.Context, _ *Task) (string, error) {
		return "done", nil
	})

	for i := 0; i < 5; i++ {
		if err := q.Enqueue(context.Background(), &Task{Kind: "noop", Priority: 5}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	executed, err := q.ExecuteOne(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if executed == nil || executed.Status != StatusCompleted {
		t.Fatalf("executed = %+v, want one completed task", executed)
	}
	if got := store.byStatus(StatusPending); got != 4 {
		t.Errorf("pending after one cycle = %d, want 4", got)
	}
	if got := store.byStatus(StatusCompleted); got != 1 {
		t.Errorf("completed = %d, want exactly 1", got)
	}
}

func TestExecuteOneEmptyQueue(t *testing.T) {
	q, _ := newTestQueue()
	executed, err := q.ExecuteOne(context.Background())
	if err != nil {
		t.Fatalf("execute on empty queue: %v", err)
	}
	if executed != nil {
		t.Fatalf("executed = %+v, want nil", executed)
	}
}

func TestUnknownKindIsAbandonedNotError(t *testing.T) {
	q, store := newTestQueue()

	if err := q.Enqueue(context.Background(), &Task{Kind: "summon_demon"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	executed, err := q.ExecuteOne(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if executed.Status != StatusAbandoned {
		t.Errorf("status = %s, want abandoned", executed.Status)
	}
	if executed.Result == "" {
		t.Error("abandoned task should record the violation in its result")
	}
	if store.byStatus(StatusAbandoned) != 1 {
		t.Error("store does not reflect the abandoned task")
	}
}

func TestHandlerErrorIsCapturedInResult(t *testing.T) {
	q, _ := newTestQueue()
	q.Register("flaky", func(_ context.Context, _ *Task) (string, error) {
		return "", errors.New("model said no")
	})

	q.Enqueue(context.Background(), &Task{Kind: "flaky"})
	executed, err := q.ExecuteOne(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if executed.Status != StatusAbandoned {
		t.Errorf("status = %s, want abandoned", executed.Status)
	}
	if executed.Result != "handler failed: model said no" {
		t.Errorf("result = %q", executed.Result)
	}
}

func TestHandlerPanicDoesNotKillQueue(t *testing.T) {
	q, _ := newTestQueue()
	q.Register("explosive", func(_ context.Context, _ *Task) (string, error) {
		panic("boom")
	})
	q.Register("calm", func(_ context.Context, _ *Task) (string, error) {
		return "ok", nil
	})

	q.Enqueue(context.Background(), &Task{Kind: "explosive"})
	q.Enqueue(context.Background(), &Task{Kind: "calm"})

	first, err := q.ExecuteOne(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if first.Status != StatusAbandoned {
		t.Errorf("panicking task status = %s, want abandoned", first.Status)
	}

	second, err := q.ExecuteOne(context.Background())
	if err != nil {
		t.Fatalf("execute after panic: %v", err)
	}
	if second.Status != StatusCompleted {
		t.Errorf("followup task status = %s, want completed", second.Status)
	}
}

func TestEnqueueClampsPriority(t *testing.T) {
	q, store := newTestQueue()
	q.Enqueue(context.Background(), &Task{Kind: "noop", Priority: 99})
	if store.tasks[0].Priority != 10 {
		t.Errorf("priority = %d, want clamped to 10", store.tasks[0].Priority)
	}
}
