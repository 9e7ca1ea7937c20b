package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hollis-ai/reverie/internal/contact"
	"github.com/hollis-ai/reverie/internal/mind"
)

// AppendCognitiveLog records one immutable decision audit row.
func (s *Store) AppendCognitiveLog(ctx context.Context, entry *mind.CognitiveLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO cognitive_log (id, kind, reasoning, action, fallback, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, string(entry.Kind), entry.Reasoning, entry.Action, entry.Fallback, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append cognitive log: %w", err)
	}
	return nil
}

// RecentReflections returns the content of the newest episodic memories,
// newest first. These feed the decision snapshot.
func (s *Store) RecentReflections(ctx context.Context, n int) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT content FROM episodic_memories
		ORDER BY created_at DESC
		LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("recent reflections: %w", err)
	}
	defer rows.Close()

	var reflections []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("scan reflection: %w", err)
		}
		reflections = append(reflections, content)
	}
	return reflections, nil
}

// DeleteCognitiveLogsBefore removes audit rows older than cutoff and
// reports how many were deleted.
func (s *Store) DeleteCognitiveLogsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM cognitive_log WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete cognitive logs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CapCognitiveLogs deletes the oldest audit rows past max and reports how
// many were removed.
func (s *Store) CapCognitiveLogs(ctx context.Context, max int) (int, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM cognitive_log
		WHERE id IN (
			SELECT id FROM cognitive_log
			ORDER BY created_at DESC
			OFFSET $1
		)`, max)
	if err != nil {
		return 0, fmt.Errorf("cap cognitive logs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// InsertEpisodicMemory persists one remembered experience.
func (s *Store) InsertEpisodicMemory(ctx context.Context, m *mind.EpisodicMemory) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	m.EmotionalWeight = mind.Clamp(m.EmotionalWeight, 1, 10)

	_, err := s.db.Exec(ctx, `
		INSERT INTO episodic_memories (id, content, emotional_weight, created_at)
		VALUES ($1, $2, $3, $4)`,
		m.ID, m.Content, m.EmotionalWeight, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert episodic memory: %w", err)
	}
	return nil
}

// DeleteEpisodicBefore removes episodic memories older than cutoff.
func (s *Store) DeleteEpisodicBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM episodic_memories WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete episodic memories: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CreateProactiveMessage persists a pending outbound message.
func (s *Store) CreateProactiveMessage(ctx context.Context, m *contact.ProactiveMessage) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO proactive_messages (id, question_id, content, reason, urgency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		m.ID, m.QuestionID, m.Content, m.Reason, string(m.Urgency), string(m.Status), m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create proactive message: %w", err)
	}
	return nil
}

// PendingProactiveMessages returns undelivered messages, oldest first.
func (s *Store) PendingProactiveMessages(ctx context.Context, limit int) ([]contact.ProactiveMessage, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, question_id, content, reason, urgency, status, attempts, created_at, sent_at
		FROM proactive_messages
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("pending proactive messages: %w", err)
	}
	defer rows.Close()

	var messages []contact.ProactiveMessage
	for rows.Next() {
		var m contact.ProactiveMessage
		if err := rows.Scan(&m.ID, &m.QuestionID, &m.Content, &m.Reason,
			&m.Urgency, &m.Status, &m.Attempts, &m.CreatedAt, &m.SentAt); err != nil {
			return nil, fmt.Errorf("scan proactive message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, nil
}

// MarkProactiveSent stamps a message delivered.
func (s *Store) MarkProactiveSent(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE proactive_messages
		SET status = 'sent', sent_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark proactive sent %s: %w", id, err)
	}
	return nil
}

// RecordProactiveAttempt increments the delivery-attempt counter and
// returns the new total.
func (s *Store) RecordProactiveAttempt(ctx context.Context, id string) (int, error) {
	var attempts int
	err := s.db.QueryRow(ctx, `
		UPDATE proactive_messages
		SET attempts = attempts + 1
		WHERE id = $1
		RETURNING attempts`, id).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("record proactive attempt %s: %w", id, err)
	}
	return attempts, nil
}

// MarkProactiveFailed flags a message whose delivery was abandoned.
func (s *Store) MarkProactiveFailed(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE proactive_messages SET status = 'failed' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark proactive failed %s: %w", id, err)
	}
	return nil
}
