package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hollis-ai/reverie/internal/mind"
)

// CreateSelfQuestion persists a question the agent wants to ask the user.
func (s *Store) CreateSelfQuestion(ctx context.Context, q *mind.SelfQuestion) error {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now()
	}
	q.Priority = mind.Clamp(q.Priority, 1, 10)

	_, err := s.db.Exec(ctx, `
		INSERT INTO self_questions (id, question, priority, answered, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		q.ID, q.Question, q.Priority, q.Answered, q.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create self question: %w", err)
	}
	return nil
}

// PendingQuestions returns unanswered questions at or above minPriority,
// highest priority first.
func (s *Store) PendingQuestions(ctx context.Context, minPriority, limit int) ([]mind.SelfQuestion, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, question, priority, answered, created_at
		FROM self_questions
		WHERE answered = FALSE AND priority >= $1
		ORDER BY priority DESC, created_at
		LIMIT $2`, minPriority, limit)
	if err != nil {
		return nil, fmt.Errorf("pending questions: %w", err)
	}
	defer rows.Close()

	var questions []mind.SelfQuestion
	for rows.Next() {
		var q mind.SelfQuestion
		if err := rows.Scan(&q.ID, &q.Question, &q.Priority, &q.Answered, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan self question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, nil
}

// MarkQuestionAnswered flags a question as answered.
func (s *Store) MarkQuestionAnswered(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE self_questions SET answered = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark question answered %s: %w", id, err)
	}
	return nil
}
