// Package scheduler drives the autonomous cognition loop: a fixed-interval
// ticker whose body reads state, obtains a decision, executes one task,
// evaluates user contact, writes state back, and periodically consolidates
// memory. At most one cycle runs at a time, and no cycle failure ever stops
// the ticker.
package scheduler

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hollis-ai/reverie/internal/consolidate"
	"github.com/hollis-ai/reverie/internal/contact"
	"github.com/hollis-ai/reverie/internal/mind"
	"github.com/hollis-ai/reverie/internal/notify"
	"github.com/hollis-ai/reverie/internal/taskqueue"
	"go.uber.org/zap"
)

// Decider produces the cycle's decision.
type Decider interface {
	Decide(ctx context.Context) *mind.Decision
}

// StateMachine is the owning surface for agent state.
type StateMachine interface {
	Current(ctx context.Context) *mind.AgentState
	ApplyDecision(ctx context.Context, d *mind.Decision) (*mind.AgentState, error)
}

// Queue is the task queue surface used per cycle.
type Queue interface {
	Enqueue(ctx context.Context, t *taskqueue.Task) error
	ExecuteOne(ctx context.Context) (*taskqueue.Task, error)
}

// Gate evaluates whether to contact the user.
type Gate interface {
	Evaluate(ctx context.Context) (*contact.Evaluation, error)
}

// Notifier delivers proactive messages.
type Notifier interface {
	Send(ctx context.Context, msg *notify.Message) (bool, error)
}

// Outbox persists proactive messages across delivery attempts.
type Outbox interface {
	CreateProactiveMessage(ctx context.Context, m *contact.ProactiveMessage) error
	PendingProactiveMessages(ctx context.Context, limit int) ([]contact.ProactiveMessage, error)
	MarkProactiveSent(ctx context.Context, id string) error
	RecordProactiveAttempt(ctx context.Context, id string) (int, error)
	MarkProactiveFailed(ctx context.Context, id string) error
}

// Consolidator runs the periodic memory-consolidation pass.
type Consolidator interface {
	Run(ctx context.Context) consolidate.Report
}

// PressureFunc reports heap utilization in [0,1].
type PressureFunc func() float64

func heapPressure() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	if m.HeapSys == 0 {
		return 0
	}
	return float64(m.HeapAlloc) / float64(m.HeapSys)
}

// Options configure the loop.
type Options struct {
	Interval            time.Duration
	InitialDelay        time.Duration
	ConsolidateInterval time.Duration
	PressureHighWater   float64 // heap fraction above which a cycle is skipped
	DeliveryMaxAttempts int     // delivery attempts before a message is marked failed
}

// Metrics are cumulative loop counters.
type Metrics struct {
	CyclesRun      int64 `json:"cycles_run"`
	CyclesSkipped  int64 `json:"cycles_skipped"`
	Fallbacks      int64 `json:"fallbacks"`
	TasksExecuted  int64 `json:"tasks_executed"`
	MessagesSent   int64 `json:"messages_sent"`
	MessagesFailed int64 `json:"messages_failed"`
	Consolidations int64 `json:"consolidations"`
}

// Status is the operational snapshot exposed over the API.
type Status struct {
	IsRunning   bool      `json:"is_running"`
	LastCycleAt time.Time `json:"last_cycle_at"`
	Metrics     Metrics   `json:"metrics"`
}

// Scheduler owns the ticker goroutine and the single-flight guard.
type Scheduler struct {
	sm           StateMachine
	decider      Decider
	queue        Queue
	gate         Gate
	notifier     Notifier
	outbox       Outbox
	consolidator Consolidator
	opts         Options
	pressure     PressureFunc

	mu          sync.Mutex
	running     bool
	cycleActive bool
	lastCycleAt time.Time
	metrics     Metrics
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	logger *zap.Logger
}

// New wires a scheduler. Any of notifier, outbox, or consolidator may be nil;
// the corresponding step is skipped.
func New(sm StateMachine, decider Decider, queue Queue, gate Gate,
	notifier Notifier, outbox Outbox, consolidator Consolidator,
	opts Options, logger *zap.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.ConsolidateInterval <= 0 {
		opts.ConsolidateInterval = 45 * time.Minute
	}
	if opts.PressureHighWater <= 0 || opts.PressureHighWater > 1 {
		opts.PressureHighWater = 0.9
	}
	if opts.DeliveryMaxAttempts <= 0 {
		opts.DeliveryMaxAttempts = 5
	}
	return &Scheduler{
		sm:           sm,
		decider:      decider,
		queue:        queue,
		gate:         gate,
		notifier:     notifier,
		outbox:       outbox,
		consolidator: consolidator,
		opts:         opts,
		pressure:     heapPressure,
		logger:       logger,
	}
}

// SetPressureFunc replaces the resource-pressure probe, for tests.
func (s *Scheduler) SetPressureFunc(f PressureFunc) { s.pressure = f }

// Start launches the loop: one cycle after the initial delay, then one per
// interval. Returns an error if already running.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("scheduler started",
		zap.Duration("interval", s.opts.Interval),
		zap.Duration("initial_delay", s.opts.InitialDelay))
	return nil
}

// Stop cancels the ticker and waits for an in-flight cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.cycleActive = false
	s.mu.Unlock()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	// Short initial delay lets dependencies finish initializing.
	select {
	case <-ctx.Done():
		return
	case <-time.After(s.opts.InitialDelay):
	}
	s.RunCycle(ctx)

	consolidateEvery := int64(s.opts.ConsolidateInterval / s.opts.Interval)
	if consolidateEvery < 1 {
		consolidateEvery = 1
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	var ticks int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ticks++
			s.RunCycle(ctx)
			if ticks%consolidateEvery == 0 {
				s.runConsolidation(ctx)
			}
		}
	}
}

// RunCycle executes one cycle body if none is in flight. Returns false when
// refused by the single-flight guard or skipped under resource pressure.
func (s *Scheduler) RunCycle(ctx context.Context) bool {
	s.mu.Lock()
	if s.cycleActive {
		s.mu.Unlock()
		s.logger.Debug("cycle refused, previous cycle still running")
		return false
	}
	s.cycleActive = true
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("cycle panicked", zap.Any("panic", r))
		}
		s.mu.Lock()
		s.cycleActive = false
		s.mu.Unlock()
	}()

	if p := s.pressure(); p > s.opts.PressureHighWater {
		s.mu.Lock()
		s.metrics.CyclesSkipped++
		s.mu.Unlock()
		s.logger.Warn("cycle skipped under resource pressure", zap.Float64("pressure", p))
		s.Reclaim()
		return false
	}

	s.cycle(ctx)

	s.mu.Lock()
	s.metrics.CyclesRun++
	s.lastCycleAt = time.Now()
	s.mu.Unlock()
	return true
}

// cycle is the strictly sequential body: state read, decision, task
// dispatch, contact evaluation, state write. The order is fixed to keep the
// audit trail causally consistent.
func (s *Scheduler) cycle(ctx context.Context) {
	state := s.sm.Current(ctx)

	d := s.decider.Decide(ctx)
	if d.Fallback {
		s.mu.Lock()
		s.metrics.Fallbacks++
		s.mu.Unlock()
	}

	if task := taskFromDecision(d); task != nil {
		if err := s.queue.Enqueue(ctx, task); err != nil {
			s.logger.Warn("task enqueue failed", zap.Error(err))
		}
	}

	executed, err := s.queue.ExecuteOne(ctx)
	if err != nil {
		s.logger.Warn("task execution failed", zap.Error(err))
	} else if executed != nil {
		s.mu.Lock()
		s.metrics.TasksExecuted++
		s.mu.Unlock()
	}

	s.evaluateContact(ctx)

	if _, err := s.sm.ApplyDecision(ctx, d); err != nil {
		s.logger.Warn("state write failed", zap.Error(err))
	}

	outcome := "idle"
	if executed != nil {
		outcome = string(executed.Status)
	}
	s.logger.Info("cycle complete",
		zap.String("mode", string(state.Mode)),
		zap.String("decision", string(d.Kind)),
		zap.Bool("fallback", d.Fallback),
		zap.String("task_outcome", outcome))
}

// taskFromDecision maps actionable decision kinds onto queue tasks.
func taskFromDecision(d *mind.Decision) *taskqueue.Task {
	var kind string
	switch d.Kind {
	case mind.DecideExploreConcept:
		kind = taskqueue.KindExploreConcept
	case mind.DecideReflect:
		kind = taskqueue.KindReflect
	case mind.DecideIntegrateKnowledge:
		kind = taskqueue.KindIntegrateKnowledge
	case mind.DecideAskQuestion:
		kind = taskqueue.KindGenerateQuestion
	default:
		return nil
	}

	priority := 3
	switch d.Urgency {
	case mind.UrgencyMedium:
		priority = 5
	case mind.UrgencyHigh:
		priority = 8
	}
	return &taskqueue.Task{
		Kind:        kind,
		Description: d.Action,
		Priority:    priority,
	}
}

// evaluateContact runs the gate and, when it opens, queues and attempts
// delivery of proactive messages. Undelivered messages stay pending and are
// retried on the next eligible cycle.
func (s *Scheduler) evaluateContact(ctx context.Context) {
	if s.gate == nil || s.outbox == nil {
		return
	}

	ev, err := s.gate.Evaluate(ctx)
	if err != nil {
		s.logger.Warn("contact evaluation failed", zap.Error(err))
		return
	}
	if !ev.Should {
		return
	}

	pending, err := s.outbox.PendingProactiveMessages(ctx, 5)
	if err != nil {
		s.logger.Warn("pending message fetch failed", zap.Error(err))
		return
	}

	// A failed delivery leaves its row pending; don't queue a duplicate for
	// the same question while one is still awaiting retry.
	duplicate := false
	for _, msg := range pending {
		if msg.QuestionID == ev.Message.QuestionID {
			duplicate = true
			break
		}
	}
	if !duplicate {
		if err := s.outbox.CreateProactiveMessage(ctx, ev.Message); err != nil {
			s.logger.Warn("proactive message store failed", zap.Error(err))
			return
		}
		pending = append(pending, *ev.Message)
	}

	if s.notifier == nil {
		return
	}
	for _, msg := range pending {
		delivered, err := s.notifier.Send(ctx, &notify.Message{
			ID:      msg.ID,
			Content: msg.Content,
			Reason:  msg.Reason,
			Urgency: string(msg.Urgency),
		})
		if err != nil {
			s.logger.Warn("notification failed", zap.String("message", msg.ID), zap.Error(err))
			s.recordFailedAttempt(ctx, msg.ID)
			continue
		}
		if !delivered {
			s.recordFailedAttempt(ctx, msg.ID)
			continue
		}
		if err := s.outbox.MarkProactiveSent(ctx, msg.ID); err != nil {
			s.logger.Warn("mark sent failed", zap.String("message", msg.ID), zap.Error(err))
			continue
		}
		s.mu.Lock()
		s.metrics.MessagesSent++
		s.mu.Unlock()
	}
}

// recordFailedAttempt counts one failed delivery and, once the ceiling is
// reached, marks the message failed so it stops being retried.
func (s *Scheduler) recordFailedAttempt(ctx context.Context, id string) {
	attempts, err := s.outbox.RecordProactiveAttempt(ctx, id)
	if err != nil {
		s.logger.Warn("attempt count failed", zap.String("message", id), zap.Error(err))
		return
	}
	if attempts < s.opts.DeliveryMaxAttempts {
		return
	}
	if err := s.outbox.MarkProactiveFailed(ctx, id); err != nil {
		s.logger.Warn("mark failed failed", zap.String("message", id), zap.Error(err))
		return
	}
	s.mu.Lock()
	s.metrics.MessagesFailed++
	s.mu.Unlock()
	s.logger.Warn("proactive message abandoned",
		zap.String("message", id), zap.Int("attempts", attempts))
}

func (s *Scheduler) runConsolidation(ctx context.Context) {
	if s.consolidator == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("consolidation panicked", zap.Any("panic", r))
		}
	}()
	report := s.consolidator.Run(ctx)
	s.mu.Lock()
	s.metrics.Consolidations++
	s.mu.Unlock()
	s.logger.Info("consolidation pass", zap.Int("removed", report.Total()))
}

// Reclaim forces a garbage collection and returns heap to the OS. Exposed
// for the manual force-reclaim entry point.
func (s *Scheduler) Reclaim() {
	runtime.GC()
	debug.FreeOSMemory()
	s.logger.Info("memory reclaim requested")
}

// Status reports the loop's operational state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		IsRunning:   s.running,
		LastCycleAt: s.lastCycleAt,
		Metrics:     s.metrics,
	}
}
