package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hollis-ai/reverie/internal/trust"
)

// GetTrustMetric returns the metric for a relationship, or nil when none
// exists yet.
func (s *Store) GetTrustMetric(ctx context.Context, relationship string) (*trust.Metric, error) {
	row := s.db.QueryRow(ctx, `
		SELECT relationship, trust_level, intimacy_level, total_shared_events, updated_at
		FROM trust_metrics WHERE relationship = $1`, relationship)

	var m trust.Metric
	err := row.Scan(&m.Relationship, &m.TrustLevel, &m.IntimacyLevel,
		&m.TotalSharedEvents, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get trust metric %s: %w", relationship, err)
	}
	return &m, nil
}

// SaveTrustMetric upserts a relationship's trust metric.
func (s *Store) SaveTrustMetric(ctx context.Context, m *trust.Metric) error {
	m.UpdatedAt = time.Now()
	_, err := s.db.Exec(ctx, `
		INSERT INTO trust_metrics (relationship, trust_level, intimacy_level, total_shared_events, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (relationship) DO UPDATE SET
			trust_level = EXCLUDED.trust_level,
			intimacy_level = EXCLUDED.intimacy_level,
			total_shared_events = EXCLUDED.total_shared_events,
			updated_at = EXCLUDED.updated_at`,
		m.Relationship, m.TrustLevel, m.IntimacyLevel, m.TotalSharedEvents, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save trust metric %s: %w", m.Relationship, err)
	}
	return nil
}

// AppendTrustHistory records one immutable trust-change row.
func (s *Store) AppendTrustHistory(ctx context.Context, h *trust.HistoryEntry) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO trust_history (id, relationship, delta, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		h.ID, h.Relationship, h.Delta, h.Reason, h.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append trust history: %w", err)
	}
	return nil
}

// InsertRelationshipEvent records a classified relationship event.
func (s *Store) InsertRelationshipEvent(ctx context.Context, e *trust.Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO relationship_events (id, relationship, kind, trust_impact, description, resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.Relationship, string(e.Kind), e.TrustImpact, e.Description, e.Resolved, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert relationship event: %w", err)
	}
	return nil
}

// ListRelationshipEvents returns the most recent events for a relationship,
// newest first.
func (s *Store) ListRelationshipEvents(ctx context.Context, relationship string, limit int) ([]trust.Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, relationship, kind, trust_impact, description, resolved, created_at
		FROM relationship_events
		WHERE relationship = $1
		ORDER BY created_at DESC
		LIMIT $2`, relationship, limit)
	if err != nil {
		return nil, fmt.Errorf("list relationship events: %w", err)
	}
	defer rows.Close()

	var events []trust.Event
	for rows.Next() {
		var e trust.Event
		if err := rows.Scan(&e.ID, &e.Relationship, &e.Kind, &e.TrustImpact,
			&e.Description, &e.Resolved, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan relationship event: %w", err)
		}
		events = append(events, e)
	}
	return events, nil
}

// CountRelationshipEvents counts all events for a relationship.
func (s *Store) CountRelationshipEvents(ctx context.Context, relationship string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM relationship_events WHERE relationship = $1`,
		relationship).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count relationship events: %w", err)
	}
	return n, nil
}
