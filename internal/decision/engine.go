// Package decision asks the model what the agent should do next. Every cycle
// yields exactly one Decision: a parsed structured response on success, or
// the documented fallback on timeout, throttle, or malformed output.
package decision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hollis-ai/reverie/internal/graph"
	"github.com/hollis-ai/reverie/internal/mind"
	"github.com/hollis-ai/reverie/internal/provider"
	"go.uber.org/zap"
)

// Invoker is the cached, rate-limited model call surface.
type Invoker interface {
	Invoke(ctx context.Context, req *provider.Request, class provider.CallClass) (*provider.Response, error)
}

// StateSource provides the current agent state.
type StateSource interface {
	Current(ctx context.Context) *mind.AgentState
}

// ConceptSource provides the most recently reinforced concepts.
type ConceptSource interface {
	RecentConcepts(ctx context.Context, n int) ([]graph.Concept, error)
}

// QuestionSource provides pending self-questions.
type QuestionSource interface {
	PendingQuestions(ctx context.Context, minPriority, limit int) ([]mind.SelfQuestion, error)
}

// ReflectionSource provides the most recent reflections.
type ReflectionSource interface {
	RecentReflections(ctx context.Context, n int) ([]string, error)
}

// AuditLog records every produced decision before it is returned.
type AuditLog interface {
	AppendCognitiveLog(ctx context.Context, entry *mind.CognitiveLogEntry) error
}

// SnapshotOptions bound the context snapshot.
type SnapshotOptions struct {
	Concepts    int
	Questions   int
	Reflections int
}

// Engine builds a context snapshot and turns it into a Decision.
type Engine struct {
	invoker     Invoker
	state       StateSource
	concepts    ConceptSource
	questions   QuestionSource
	reflections ReflectionSource
	audit       AuditLog
	opts        SnapshotOptions
	logger      *zap.Logger
}

// NewEngine wires the decision engine.
func NewEngine(invoker Invoker, state StateSource, concepts ConceptSource,
	questions QuestionSource, reflections ReflectionSource, audit AuditLog,
	opts SnapshotOptions, logger *zap.Logger) *Engine {
	if opts.Concepts == 0 {
		opts.Concepts = 5
	}
	if opts.Questions == 0 {
		opts.Questions = 3
	}
	if opts.Reflections == 0 {
		opts.Reflections = 3
	}
	return &Engine{
		invoker:     invoker,
		state:       state,
		concepts:    concepts,
		questions:   questions,
		reflections: reflections,
		audit:       audit,
		opts:        opts,
		logger:      logger,
	}
}

// Fallback is the decision used when no fresh one could be produced.
// Downstream logic always has a decision to act on.
func Fallback(reason string) *mind.Decision {
	return &mind.Decision{
		Kind:      mind.DecideIntegrateKnowledge,
		Reasoning: "fallback: " + reason,
		Action:    "continue_learning",
		Urgency:   mind.UrgencyLow,
		Fallback:  true,
		CreatedAt: time.Now(),
	}
}

// Decide produces the cycle's decision. It never returns nil; failures along
// the invocation path degrade to Fallback. The decision is audit-logged
// before it is returned, success or fallback alike.
func (e *Engine) Decide(ctx context.Context) *mind.Decision {
	snapshot := e.buildSnapshot(ctx)

	resp, err := e.invoker.Invoke(ctx, &provider.Request{
		Messages: []provider.Message{
			{Role: "system", Content: "Decide the agent's next autonomous action. Respond with a single JSON object."},
			{Role: "user", Content: snapshot},
		},
		Schema: decisionSchema,
	}, provider.ClassState)

	var d *mind.Decision
	switch {
	case err != nil:
		e.logger.Warn("decision invocation failed", zap.Error(err))
		d = Fallback(err.Error())
	case resp == nil:
		d = Fallback("no result from model (throttled or rate limited)")
	default:
		parsed, perr := Parse(resp.Content)
		if perr != nil {
			e.logger.Warn("decision response rejected", zap.Error(perr))
			d = Fallback("unparseable response")
		} else {
			d = parsed
			d.CreatedAt = time.Now()
		}
	}

	if err := e.audit.AppendCognitiveLog(ctx, &mind.CognitiveLogEntry{
		Kind:      d.Kind,
		Reasoning: d.Reasoning,
		Action:    d.Action,
		Fallback:  d.Fallback,
	}); err != nil {
		e.logger.Warn("decision audit append failed", zap.Error(err))
	}

	e.logger.Info("decision",
		zap.String("kind", string(d.Kind)),
		zap.Bool("fallback", d.Fallback))
	return d
}

// buildSnapshot assembles the context the model decides from. Source
// failures leave their section empty rather than blocking the decision.
func (e *Engine) buildSnapshot(ctx context.Context) string {
	var b strings.Builder

	state := e.state.Current(ctx)
	fmt.Fprintf(&b, "mode: %s\nmotivation: %s (intensity %d)\nautonomy: %d\n",
		state.Mode, state.Motivation, state.MotivationIntensity, state.AutonomyLevel)
	if state.LastThought != "" {
		fmt.Fprintf(&b, "last thought: %s\n", state.LastThought)
	}

	if concepts, err := e.concepts.RecentConcepts(ctx, e.opts.Concepts); err != nil {
		e.logger.Warn("snapshot concepts unavailable", zap.Error(err))
	} else if len(concepts) > 0 {
		b.WriteString("recent concepts:\n")
		for _, c := range concepts {
			fmt.Fprintf(&b, "- %s (confidence %d, seen %d times)\n",
				c.Name, c.Confidence, c.EncounterCount)
		}
	}

	if questions, err := e.questions.PendingQuestions(ctx, 1, e.opts.Questions); err != nil {
		e.logger.Warn("snapshot questions unavailable", zap.Error(err))
	} else if len(questions) > 0 {
		b.WriteString("pending questions:\n")
		for _, q := range questions {
			fmt.Fprintf(&b, "- [p%d] %s\n", q.Priority, q.Question)
		}
	}

	if reflections, err := e.reflections.RecentReflections(ctx, e.opts.Reflections); err != nil {
		e.logger.Warn("snapshot reflections unavailable", zap.Error(err))
	} else if len(reflections) > 0 {
		b.WriteString("recent reflections:\n")
		for _, r := range reflections {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}

	return b.String()
}
