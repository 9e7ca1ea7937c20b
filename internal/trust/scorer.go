// Package trust maintains the bounded trust and intimacy model of the
// agent's relationship with a user. Raw event impacts are damped before
// they reach the score so no single interaction can swing it end to end.
package trust

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// EventKind classifies a detected relationship event.
type EventKind string

const (
	EventBetrayal         EventKind = "betrayal"
	EventConflict         EventKind = "conflict"
	EventReconciliation   EventKind = "reconciliation"
	EventMilestone        EventKind = "milestone"
	EventMisunderstanding EventKind = "misunderstanding"
	EventBreakthrough     EventKind = "breakthrough"
)

// ValidEventKind reports whether k is a known event kind.
func ValidEventKind(k EventKind) bool {
	switch k {
	case EventBetrayal, EventConflict, EventReconciliation,
		EventMilestone, EventMisunderstanding, EventBreakthrough:
		return true
	}
	return false
}

// Event is an immutable relationship event log entry.
type Event struct {
	ID           string    `json:"id"`
	Relationship string    `json:"relationship"`
	Kind         EventKind `json:"kind"`
	TrustImpact  int       `json:"trust_impact"` // -10..10 as classified; clamped here
	Description  string    `json:"description"`
	Resolved     bool      `json:"resolved"`
	CreatedAt    time.Time `json:"created_at"`
}

// Metric is the per-relationship trust record.
type Metric struct {
	Relationship      string    `json:"relationship"`
	TrustLevel        float64   `json:"trust_level"`    // 1-10
	IntimacyLevel     float64   `json:"intimacy_level"` // 1-10
	TotalSharedEvents int       `json:"total_shared_events"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// HistoryEntry is one immutable row of the trust audit trail.
type HistoryEntry struct {
	ID           string    `json:"id"`
	Relationship string    `json:"relationship"`
	Delta        float64   `json:"delta"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
}

// Pattern is a generalization mined from accumulated events.
type Pattern struct {
	Kind        EventKind `json:"kind"`
	Occurrences int       `json:"occurrences"`
	NetImpact   int       `json:"net_impact"`
	Summary     string    `json:"summary"`
}

// Store persists trust metrics, history, and relationship events.
type Store interface {
	GetTrustMetric(ctx context.Context, relationship string) (*Metric, error)
	SaveTrustMetric(ctx context.Context, m *Metric) error
	AppendTrustHistory(ctx context.Context, h *HistoryEntry) error
	InsertRelationshipEvent(ctx context.Context, e *Event) error
	ListRelationshipEvents(ctx context.Context, relationship string, limit int) ([]Event, error)
	CountRelationshipEvents(ctx context.Context, relationship string) (int, error)
}

// minPatternEvents is the evidence floor below which LearnPatterns is a no-op.
const minPatternEvents = 3

// Scorer applies relationship events to trust metrics. It is the only
// component that mutates trust rows.
type Scorer struct {
	store         Store
	impactDivisor float64
	logger        *zap.Logger
}

// NewScorer creates a scorer. impactDivisor damps raw event impact; the
// default of 2 means a +10 event moves trust by +5.
func NewScorer(store Store, impactDivisor int, logger *zap.Logger) *Scorer {
	if impactDivisor <= 0 {
		impactDivisor = 2
	}
	return &Scorer{
		store:         store,
		impactDivisor: float64(impactDivisor),
		logger:        logger,
	}
}

func clampScore(v float64) float64 {
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}

func clampImpact(v int) int {
	if v < -10 {
		return -10
	}
	if v > 10 {
		return 10
	}
	return v
}

// RecordEvent logs the event, applies its damped impact to the relationship's
// trust metric, and appends a history row. Returns the new trust level.
func (s *Scorer) RecordEvent(ctx context.Context, e *Event) (float64, error) {
	e.TrustImpact = clampImpact(e.TrustImpact)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if err := s.store.InsertRelationshipEvent(ctx, e); err != nil {
		return 0, fmt.Errorf("insert relationship event: %w", err)
	}

	metric, err := s.store.GetTrustMetric(ctx, e.Relationship)
	if err != nil {
		return 0, fmt.Errorf("get trust metric: %w", err)
	}
	if metric == nil {
		metric = &Metric{
			Relationship:  e.Relationship,
			TrustLevel:    5,
			IntimacyLevel: 5,
		}
	}

	delta := float64(e.TrustImpact) / s.impactDivisor
	before := metric.TrustLevel
	metric.TrustLevel = clampScore(metric.TrustLevel + delta)

	// Positive resolved events deepen intimacy at half the trust rate.
	if e.TrustImpact > 0 && e.Resolved {
		metric.IntimacyLevel = clampScore(metric.IntimacyLevel + delta/2)
	}
	metric.TotalSharedEvents++
	metric.UpdatedAt = time.Now()

	if err := s.store.SaveTrustMetric(ctx, metric); err != nil {
		return 0, fmt.Errorf("save trust metric: %w", err)
	}
	if err := s.store.AppendTrustHistory(ctx, &HistoryEntry{
		Relationship: e.Relationship,
		Delta:        metric.TrustLevel - before,
		Reason:       string(e.Kind) + ": " + e.Description,
		CreatedAt:    time.Now(),
	}); err != nil {
		s.logger.Warn("trust history append failed", zap.Error(err))
	}

	s.logger.Info("relationship event recorded",
		zap.String("relationship", e.Relationship),
		zap.String("kind", string(e.Kind)),
		zap.Int("impact", e.TrustImpact),
		zap.Float64("trust", metric.TrustLevel))

	return metric.TrustLevel, nil
}

// LearnPatterns generalizes over accumulated events. Fewer than three prior
// events is insufficient evidence and yields no patterns, not an error.
func (s *Scorer) LearnPatterns(ctx context.Context, relationship string) ([]Pattern, error) {
	total, err := s.store.CountRelationshipEvents(ctx, relationship)
	if err != nil {
		return nil, fmt.Errorf("count relationship events: %w", err)
	}
	if total < minPatternEvents {
		return nil, nil
	}

	events, err := s.store.ListRelationshipEvents(ctx, relationship, 100)
	if err != nil {
		return nil, fmt.Errorf("list relationship events: %w", err)
	}

	type agg struct {
		count int
		net   int
	}
	byKind := make(map[EventKind]*agg)
	for _, e := range events {
		a := byKind[e.Kind]
		if a == nil {
			a = &agg{}
			byKind[e.Kind] = a
		}
		a.count++
		a.net += e.TrustImpact
	}

	var patterns []Pattern
	for kind, a := range byKind {
		if a.count < 2 {
			continue
		}
		tone := "neutral"
		if a.net > 0 {
			tone = "strengthening"
		} else if a.net < 0 {
			tone = "eroding"
		}
		patterns = append(patterns, Pattern{
			Kind:        kind,
			Occurrences: a.count,
			NetImpact:   a.net,
			Summary:     fmt.Sprintf("%s events recur (%d times) and are %s trust", kind, a.count, tone),
		})
	}
	return patterns, nil
}
