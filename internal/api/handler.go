// Package api exposes the operational REST surface: loop control, state
// inspection, and relationship events. Read endpoints never mutate
// cognition; control endpoints delegate to the scheduler.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hollis-ai/reverie/internal/graph"
	"github.com/hollis-ai/reverie/internal/mind"
	"github.com/hollis-ai/reverie/internal/scheduler"
	"github.com/hollis-ai/reverie/internal/taskqueue"
	"github.com/hollis-ai/reverie/internal/trust"
)

// Loop is the scheduler surface the API controls.
type Loop interface {
	Start() error
	Stop()
	RunCycle(ctx context.Context) bool
	Reclaim()
	Status() scheduler.Status
}

// StateReader exposes the current agent state.
type StateReader interface {
	Current(ctx context.Context) *mind.AgentState
}

// TaskReader lists recent tasks.
type TaskReader interface {
	ListRecentTasks(ctx context.Context, limit int) ([]taskqueue.Task, error)
}

// QuestionStore reads and resolves self-questions.
type QuestionStore interface {
	PendingQuestions(ctx context.Context, minPriority, limit int) ([]mind.SelfQuestion, error)
	MarkQuestionAnswered(ctx context.Context, id string) error
}

// TrustScorer records relationship events and reports on trust.
type TrustScorer interface {
	RecordEvent(ctx context.Context, e *trust.Event) (float64, error)
	LearnPatterns(ctx context.Context, relationship string) ([]trust.Pattern, error)
}

// TrustReader reads the stored metric.
type TrustReader interface {
	GetTrustMetric(ctx context.Context, relationship string) (*trust.Metric, error)
}

// GraphReader reads the knowledge graph.
type GraphReader interface {
	RecentConcepts(ctx context.Context, n int) ([]graph.Concept, error)
	Relations(ctx context.Context, name string) ([]graph.Relation, error)
}

// CacheReader reports response-cache effectiveness.
type CacheReader interface {
	Stats() (hits, misses int64)
	Len() int
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	loop      Loop
	state     StateReader
	tasks     TaskReader
	questions QuestionStore
	scorer    TrustScorer
	trust     TrustReader
	graph     GraphReader
	cache     CacheReader
	logger    *zap.Logger
}

// NewHandler creates the API handler.
func NewHandler(loop Loop, state StateReader, tasks TaskReader,
	questions QuestionStore, scorer TrustScorer, trustReader TrustReader,
	graphReader GraphReader, cacheReader CacheReader,
	logger *zap.Logger) *Handler {
	return &Handler{
		loop:      loop,
		state:     state,
		tasks:     tasks,
		questions: questions,
		scorer:    scorer,
		trust:     trustReader,
		graph:     graphReader,
		cache:     cacheReader,
		logger:    logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		// Loop control
		r.Get("/status", h.status)
		r.Post("/start", h.start)
		r.Post("/stop", h.stop)
		r.Post("/cycle", h.forceCycle)
		r.Post("/reclaim", h.forceReclaim)

		// Cognition inspection
		r.Get("/state", h.getState)
		r.Get("/tasks", h.listTasks)
		r.Get("/questions", h.listQuestions)
		r.Post("/questions/{id}/answer", h.answerQuestion)
		r.Get("/concepts", h.listConcepts)
		r.Get("/concepts/{name}/relations", h.conceptRelations)
		r.Get("/cache", h.cacheStats)

		// Relationship
		r.Get("/trust", h.getTrust)
		r.Get("/trust/patterns", h.trustPatterns)
		r.Post("/trust/events", h.recordEvent)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.loop.Status())
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	if err := h.loop.Start(); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (h *Handler) stop(w http.ResponseWriter, r *http.Request) {
	h.loop.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (h *Handler) forceCycle(w http.ResponseWriter, r *http.Request) {
	if !h.loop.RunCycle(r.Context()) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "cycle already in flight or skipped"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cycle complete"})
}

func (h *Handler) forceReclaim(w http.ResponseWriter, r *http.Request) {
	h.loop.Reclaim()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reclaimed"})
}

func (h *Handler) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.state.Current(r.Context()))
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	tasks, err := h.tasks.ListRecentTasks(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if tasks == nil {
		tasks = []taskqueue.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *Handler) listQuestions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	questions, err := h.questions.PendingQuestions(r.Context(), 1, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if questions == nil {
		questions = []mind.SelfQuestion{}
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *Handler) answerQuestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.questions.MarkQuestionAnswered(r.Context(), id); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "answered"})
}

func (h *Handler) listConcepts(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	concepts, err := h.graph.RecentConcepts(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	if concepts == nil {
		concepts = []graph.Concept{}
	}
	writeJSON(w, http.StatusOK, concepts)
}

func (h *Handler) conceptRelations(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	relations, err := h.graph.Relations(r.Context(), name)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	if relations == nil {
		relations = []graph.Relation{}
	}
	writeJSON(w, http.StatusOK, relations)
}

func (h *Handler) cacheStats(w http.ResponseWriter, r *http.Request) {
	hits, misses := h.cache.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"hits":    hits,
		"misses":  misses,
		"entries": h.cache.Len(),
	})
}

func (h *Handler) getTrust(w http.ResponseWriter, r *http.Request) {
	relationship := r.URL.Query().Get("relationship")
	if relationship == "" {
		relationship = "user"
	}
	m, err := h.trust.GetTrustMetric(r.Context(), relationship)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if m == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no trust metric for relationship"})
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) trustPatterns(w http.ResponseWriter, r *http.Request) {
	relationship := r.URL.Query().Get("relationship")
	if relationship == "" {
		relationship = "user"
	}
	patterns, err := h.scorer.LearnPatterns(r.Context(), relationship)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if patterns == nil {
		patterns = []trust.Pattern{}
	}
	writeJSON(w, http.StatusOK, patterns)
}

func (h *Handler) recordEvent(w http.ResponseWriter, r *http.Request) {
	var e trust.Event
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if !trust.ValidEventKind(e.Kind) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown event kind"})
		return
	}
	level, err := h.scorer.RecordEvent(r.Context(), &e)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"event_id":    e.ID,
		"trust_level": level,
	})
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
