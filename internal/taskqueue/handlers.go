package taskqueue

import (
	"context"
	"fmt"
	"strings"

	"github.com/hollis-ai/reverie/internal/graph"
	"github.com/hollis-ai/reverie/internal/mind"
	"github.com/hollis-ai/reverie/internal/provider"
	"go.uber.org/zap"
)

// Task kinds with built-in handlers.
const (
	KindExploreConcept     = "explore_concept"
	KindReflect            = "reflect"
	KindIntegrateKnowledge = "integrate_knowledge"
	KindGenerateQuestion   = "generate_question"
)

// Invoker is the cached, rate-limited model call surface.
type Invoker interface {
	Invoke(ctx context.Context, req *provider.Request, class provider.CallClass) (*provider.Response, error)
}

// ConceptGraph is the knowledge-graph surface the handlers touch.
type ConceptGraph interface {
	Reinforce(ctx context.Context, name string) error
	Relate(ctx context.Context, from, to, relationType string) error
	RecentConcepts(ctx context.Context, n int) ([]graph.Concept, error)
}

// relateNeighborhood is how many recently active concepts a handled concept
// is linked to.
const relateNeighborhood = 3

// QuestionStore persists self-questions generated by tasks.
type QuestionStore interface {
	CreateSelfQuestion(ctx context.Context, q *mind.SelfQuestion) error
}

// MemoryStore persists episodic memories written by reflection.
type MemoryStore interface {
	InsertEpisodicMemory(ctx context.Context, m *mind.EpisodicMemory) error
}

// Handlers bundles the built-in task handlers and their dependencies.
type Handlers struct {
	invoker   Invoker
	graph     ConceptGraph
	questions QuestionStore
	memories  MemoryStore
	logger    *zap.Logger
}

// NewHandlers creates the built-in handler set.
func NewHandlers(invoker Invoker, graph ConceptGraph, questions QuestionStore, memories MemoryStore, logger *zap.Logger) *Handlers {
	return &Handlers{
		invoker:   invoker,
		graph:     graph,
		questions: questions,
		memories:  memories,
		logger:    logger,
	}
}

// RegisterAll binds every built-in handler onto the queue.
func (h *Handlers) RegisterAll(q *Queue) {
	q.Register(KindExploreConcept, h.ExploreConcept)
	q.Register(KindReflect, h.Reflect)
	q.Register(KindIntegrateKnowledge, h.IntegrateKnowledge)
	q.Register(KindGenerateQuestion, h.GenerateQuestion)
}

// generate runs a single-prompt generation, tolerating a throttled "no
// result" by returning ok=false.
func (h *Handlers) generate(ctx context.Context, prompt string, class provider.CallClass) (string, bool, error) {
	resp, err := h.invoker.Invoke(ctx, &provider.Request{
		Messages: []provider.Message{{Role: "user", Content: prompt}},
	}, class)
	if err != nil {
		return "", false, err
	}
	if resp == nil {
		return "", false, nil
	}
	return resp.Content, true, nil
}

// ExploreConcept generates an exploration of the concept named in the task
// description and reinforces it in the knowledge graph.
func (h *Handlers) ExploreConcept(ctx context.Context, t *Task) (string, error) {
	concept := t.Description
	if concept == "" {
		return "", fmt.Errorf("explore task without a concept")
	}

	content, ok, err := h.generate(ctx,
		"Explore the concept in a few sentences: "+concept, provider.ClassCreative)
	if err != nil {
		return "", err
	}
	if err := h.graph.Reinforce(ctx, concept); err != nil {
		h.logger.Warn("concept reinforcement failed",
			zap.String("concept", concept), zap.Error(err))
	}
	h.relateToRecent(ctx, concept, "related_to")
	if !ok {
		return "exploration deferred (throttled), concept reinforced: " + concept, nil
	}
	return content, nil
}

// relateToRecent links a concept to the recently active neighborhood so the
// graph accumulates edges, not just nodes. Edge strength grows on repeat.
func (h *Handlers) relateToRecent(ctx context.Context, concept, relationType string) {
	recent, err := h.graph.RecentConcepts(ctx, relateNeighborhood+1)
	if err != nil {
		h.logger.Warn("recent concepts unavailable for relation",
			zap.String("concept", concept), zap.Error(err))
		return
	}
	linked := 0
	for _, c := range recent {
		if strings.EqualFold(c.Name, concept) {
			continue
		}
		if linked == relateNeighborhood {
			break
		}
		if err := h.graph.Relate(ctx, concept, c.Name, relationType); err != nil {
			h.logger.Warn("concept relation failed",
				zap.String("from", concept), zap.String("to", c.Name), zap.Error(err))
			continue
		}
		linked++
	}
}

// Reflect generates a reflection and stores it as an episodic memory.
func (h *Handlers) Reflect(ctx context.Context, t *Task) (string, error) {
	content, ok, err := h.generate(ctx,
		"Reflect briefly on: "+t.Description, provider.ClassCreative)
	if err != nil {
		return "", err
	}
	if !ok {
		return "reflection deferred (throttled)", nil
	}
	if err := h.memories.InsertEpisodicMemory(ctx, &mind.EpisodicMemory{
		Content:         content,
		EmotionalWeight: mind.Clamp(t.Priority, 1, 10),
	}); err != nil {
		h.logger.Warn("episodic memory write failed", zap.Error(err))
	}
	return content, nil
}

// IntegrateKnowledge reinforces the concept under integration and produces a
// short synthesis of how it connects to what is already known.
func (h *Handlers) IntegrateKnowledge(ctx context.Context, t *Task) (string, error) {
	if t.Description != "" {
		if err := h.graph.Reinforce(ctx, t.Description); err != nil {
			h.logger.Warn("concept reinforcement failed",
				zap.String("concept", t.Description), zap.Error(err))
		}
		h.relateToRecent(ctx, t.Description, "integrates_with")
	}
	content, ok, err := h.generate(ctx,
		"Summarize what connects to: "+t.Description, provider.ClassState)
	if err != nil {
		return "", err
	}
	if !ok {
		return "integration noted, synthesis deferred (throttled)", nil
	}
	return content, nil
}

// GenerateQuestion produces a question for the user and stores it as a
// pending self-question at the task's priority.
func (h *Handlers) GenerateQuestion(ctx context.Context, t *Task) (string, error) {
	content, ok, err := h.generate(ctx,
		"Phrase one concise question to ask the user about: "+t.Description,
		provider.ClassCreative)
	if err != nil {
		return "", err
	}
	if !ok {
		return "question generation deferred (throttled)", nil
	}
	if err := h.questions.CreateSelfQuestion(ctx, &mind.SelfQuestion{
		Question: content,
		Priority: mind.Clamp(t.Priority, 1, 10),
	}); err != nil {
		return "", fmt.Errorf("store self-question: %w", err)
	}
	return content, nil
}
