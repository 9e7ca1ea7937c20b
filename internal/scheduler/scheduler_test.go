package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hollis-ai/reverie/internal/consolidate"
	"github.com/hollis-ai/reverie/internal/contact"
	"github.com/hollis-ai/reverie/internal/mind"
	"github.com/hollis-ai/reverie/internal/notify"
	"github.com/hollis-ai/reverie/internal/taskqueue"
	"go.uber.org/zap"
)

type fakeStateMachine struct {
	state   *mind.AgentState
	applied []*mind.Decision
}

func (f *fakeStateMachine) Current(ctx context.Context) *mind.AgentState {
	if f.state == nil {
		return mind.DefaultState()
	}
	return f.state
}

func (f *fakeStateMachine) ApplyDecision(ctx context.Context, d *mind.Decision) (*mind.AgentState, error) {
	f.applied = append(f.applied, d)
	return f.Current(ctx), nil
}

type fakeDecider struct {
	decision *mind.Decision
	block    chan struct{} // if set, Decide waits until closed
	started  chan struct{}
	panics   bool
}

func (f *fakeDecider) Decide(ctx context.Context) *mind.Decision {
	if f.started != nil {
		close(f.started)
		f.started = nil
	}
	if f.block != nil {
		<-f.block
	}
	if f.panics {
		panic("decider exploded")
	}
	if f.decision != nil {
		return f.decision
	}
	return &mind.Decision{Kind: mind.DecideReflect, Reasoning: "quiet", Urgency: mind.UrgencyLow}
}

type fakeQueue struct {
	enqueued []*taskqueue.Task
	executed int
}

func (f *fakeQueue) Enqueue(ctx context.Context, t *taskqueue.Task) error {
	f.enqueued = append(f.enqueued, t)
	return nil
}

func (f *fakeQueue) ExecuteOne(ctx context.Context) (*taskqueue.Task, error) {
	if len(f.enqueued) == 0 {
		return nil, nil
	}
	t := f.enqueued[0]
	f.enqueued = f.enqueued[1:]
	t.Status = taskqueue.StatusCompleted
	f.executed++
	return t, nil
}

type fakeGate struct {
	ev *contact.Evaluation
}

func (f *fakeGate) Evaluate(ctx context.Context) (*contact.Evaluation, error) {
	if f.ev == nil {
		return &contact.Evaluation{}, nil
	}
	return f.ev, nil
}

type fakeOutbox struct {
	mu      sync.Mutex
	pending []contact.ProactiveMessage
	sent    []string
	failed  []string
}

func (f *fakeOutbox) CreateProactiveMessage(ctx context.Context, m *contact.ProactiveMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.pending {
		if p.ID == m.ID {
			return nil
		}
	}
	f.pending = append(f.pending, *m)
	return nil
}

func (f *fakeOutbox) PendingProactiveMessages(ctx context.Context, limit int) ([]contact.ProactiveMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]contact.ProactiveMessage, len(f.pending))
	copy(out, f.pending)
	return out, nil
}

func (f *fakeOutbox) MarkProactiveSent(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.pending {
		if p.ID == id {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			f.sent = append(f.sent, id)
			return nil
		}
	}
	return nil
}

func (f *fakeOutbox) RecordProactiveAttempt(ctx context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.pending {
		if f.pending[i].ID == id {
			f.pending[i].Attempts++
			return f.pending[i].Attempts, nil
		}
	}
	return 0, errors.New("no such message")
}

func (f *fakeOutbox) MarkProactiveFailed(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.pending {
		if p.ID == id {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			f.failed = append(f.failed, id)
			return nil
		}
	}
	return nil
}

type fakeNotifier struct {
	failures int
	sent     []string
}

func (f *fakeNotifier) Send(ctx context.Context, msg *notify.Message) (bool, error) {
	if f.failures > 0 {
		f.failures--
		return false, errors.New("channel down")
	}
	f.sent = append(f.sent, msg.ID)
	return true, nil
}

type fakeConsolidator struct {
	runs int
}

func (f *fakeConsolidator) Run(ctx context.Context) consolidate.Report {
	f.runs++
	return consolidate.Report{}
}

func newTestScheduler(sm *fakeStateMachine, d *fakeDecider, q *fakeQueue, g Gate, n Notifier, o Outbox) *Scheduler {
	s := New(sm, d, q, g, n, o, nil, Options{Interval: time.Second}, zap.NewNop())
	s.SetPressureFunc(func() float64 { return 0 })
	return s
}

func TestRunCycleExecutesPipeline(t *testing.T) {
	sm := &fakeStateMachine{}
	d := &fakeDecider{decision: &mind.Decision{
		Kind:      mind.DecideExploreConcept,
		Reasoning: "curious about entropy",
		Action:    "entropy",
		Urgency:   mind.UrgencyMedium,
	}}
	q := &fakeQueue{}
	s := newTestScheduler(sm, d, q, &fakeGate{}, nil, nil)

	if !s.RunCycle(context.Background()) {
		t.Fatal("expected cycle to run")
	}
	if q.executed != 1 {
		t.Fatalf("executed = %d, want 1", q.executed)
	}
	if len(sm.applied) != 1 || sm.applied[0].Kind != mind.DecideExploreConcept {
		t.Fatalf("decision not applied to state: %+v", sm.applied)
	}
	st := s.Status()
	if st.Metrics.CyclesRun != 1 || st.Metrics.TasksExecuted != 1 {
		t.Fatalf("metrics = %+v", st.Metrics)
	}
}

func TestTaskFromDecisionMapping(t *testing.T) {
	cases := []struct {
		kind     mind.DecisionKind
		urgency  mind.Urgency
		taskKind string
		priority int
	}{
		{mind.DecideExploreConcept, mind.UrgencyHigh, taskqueue.KindExploreConcept, 8},
		{mind.DecideReflect, mind.UrgencyLow, taskqueue.KindReflect, 3},
		{mind.DecideIntegrateKnowledge, mind.UrgencyMedium, taskqueue.KindIntegrateKnowledge, 5},
		{mind.DecideAskQuestion, mind.UrgencyLow, taskqueue.KindGenerateQuestion, 3},
	}
	for _, c := range cases {
		task := taskFromDecision(&mind.Decision{Kind: c.kind, Urgency: c.urgency})
		if task == nil {
			t.Fatalf("%s: expected a task", c.kind)
		}
		if task.Kind != c.taskKind || task.Priority != c.priority {
			t.Fatalf("%s: got kind=%s priority=%d", c.kind, task.Kind, task.Priority)
		}
	}
	for _, kind := range []mind.DecisionKind{mind.DecideChangeState, mind.DecideRest, mind.DecideInitiateContact} {
		if task := taskFromDecision(&mind.Decision{Kind: kind}); task != nil {
			t.Fatalf("%s: expected no task, got %+v", kind, task)
		}
	}
}

func TestSingleFlightRefusesOverlappingCycle(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	d := &fakeDecider{block: block, started: started}
	s := newTestScheduler(&fakeStateMachine{}, d, &fakeQueue{}, &fakeGate{}, nil, nil)

	done := make(chan bool)
	go func() { done <- s.RunCycle(context.Background()) }()
	<-started

	if s.RunCycle(context.Background()) {
		t.Fatal("second cycle should be refused while first is in flight")
	}
	close(block)
	if !<-done {
		t.Fatal("first cycle should complete")
	}
	if got := s.Status().Metrics.CyclesRun; got != 1 {
		t.Fatalf("cycles run = %d, want 1", got)
	}
}

func TestPressureSkipsCycle(t *testing.T) {
	d := &fakeDecider{}
	s := newTestScheduler(&fakeStateMachine{}, d, &fakeQueue{}, &fakeGate{}, nil, nil)
	s.SetPressureFunc(func() float64 { return 0.95 })

	if s.RunCycle(context.Background()) {
		t.Fatal("cycle should be skipped under pressure")
	}
	m := s.Status().Metrics
	if m.CyclesSkipped != 1 || m.CyclesRun != 0 {
		t.Fatalf("metrics = %+v", m)
	}
}

func TestProactiveMessageRetriedNextEligibleCycle(t *testing.T) {
	gate := &fakeGate{ev: &contact.Evaluation{
		Should: true,
		Message: &contact.ProactiveMessage{
			ID:      "m1",
			Content: "still thinking about you",
			Status:  contact.MessagePending,
		},
	}}
	outbox := &fakeOutbox{}
	notifier := &fakeNotifier{failures: 1}
	s := newTestScheduler(&fakeStateMachine{}, &fakeDecider{}, &fakeQueue{}, gate, notifier, outbox)

	s.RunCycle(context.Background())
	if len(outbox.sent) != 0 {
		t.Fatal("message should remain pending after failed delivery")
	}
	s.RunCycle(context.Background())
	if len(outbox.sent) != 1 || outbox.sent[0] != "m1" {
		t.Fatalf("message not delivered on retry: %+v", outbox.sent)
	}
	if got := s.Status().Metrics.MessagesSent; got != 1 {
		t.Fatalf("messages sent = %d, want 1", got)
	}
}

func TestUndeliverableMessageMarkedFailed(t *testing.T) {
	gate := &fakeGate{ev: &contact.Evaluation{
		Should: true,
		Message: &contact.ProactiveMessage{
			ID:      "m1",
			Content: "is anyone there",
			Status:  contact.MessagePending,
		},
	}}
	outbox := &fakeOutbox{}
	notifier := &fakeNotifier{failures: 10}
	s := New(&fakeStateMachine{}, &fakeDecider{}, &fakeQueue{}, gate, notifier, outbox, nil,
		Options{Interval: time.Second, DeliveryMaxAttempts: 2}, zap.NewNop())
	s.SetPressureFunc(func() float64 { return 0 })

	s.RunCycle(context.Background())
	if len(outbox.failed) != 0 {
		t.Fatal("message should still be retryable after the first failure")
	}
	s.RunCycle(context.Background())
	if len(outbox.failed) != 1 || outbox.failed[0] != "m1" {
		t.Fatalf("failed = %v, want [m1]", outbox.failed)
	}
	if len(outbox.pending) != 0 {
		t.Fatalf("pending = %+v, want empty", outbox.pending)
	}
	if got := s.Status().Metrics.MessagesFailed; got != 1 {
		t.Fatalf("messages failed = %d, want 1", got)
	}

	// An abandoned message must not block a later one for the same question.
	gate.ev.Message = &contact.ProactiveMessage{ID: "m2", Content: "hello again", Status: contact.MessagePending}
	notifier.failures = 0
	s.RunCycle(context.Background())
	if len(outbox.sent) != 1 || outbox.sent[0] != "m2" {
		t.Fatalf("sent = %v, want [m2]", outbox.sent)
	}
}

func TestCyclePanicIsRecovered(t *testing.T) {
	d := &fakeDecider{panics: true}
	s := newTestScheduler(&fakeStateMachine{}, d, &fakeQueue{}, &fakeGate{}, nil, nil)

	s.RunCycle(context.Background())

	// The guard must be released so the next cycle can run.
	d.panics = false
	if !s.RunCycle(context.Background()) {
		t.Fatal("scheduler should recover and run the next cycle")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	s := New(&fakeStateMachine{}, &fakeDecider{}, &fakeQueue{}, &fakeGate{}, nil, nil, nil,
		Options{Interval: time.Hour, InitialDelay: time.Hour}, zap.NewNop())
	s.SetPressureFunc(func() float64 { return 0 })

	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Fatal("second start should fail")
	}
	if !s.Status().IsRunning {
		t.Fatal("status should report running")
	}
	s.Stop()
	if s.Status().IsRunning {
		t.Fatal("status should report stopped")
	}
	// Stop on a stopped scheduler is a no-op.
	s.Stop()
}
