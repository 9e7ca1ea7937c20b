// Package contact decides when the agent may proactively message the user.
// The policy is deliberately conjunctive: a high-priority pending question
// AND high motivation are both required, so the user is never flooded.
package contact

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hollis-ai/reverie/internal/mind"
	"go.uber.org/zap"
)

// MessageStatus tracks a proactive message's delivery state.
type MessageStatus string

const (
	MessagePending MessageStatus = "pending"
	MessageSent    MessageStatus = "sent"
	MessageFailed  MessageStatus = "failed"
)

// ProactiveMessage is a queued outreach to the user. It stays Pending until
// a notifier confirms delivery, and is retried on later eligible cycles.
type ProactiveMessage struct {
	ID         string        `json:"id"`
	QuestionID string        `json:"question_id"`
	Content    string        `json:"content"`
	Reason     string        `json:"reason"`
	Urgency    mind.Urgency  `json:"urgency"`
	Status     MessageStatus `json:"status"`
	Attempts   int           `json:"attempts"`
	CreatedAt  time.Time     `json:"created_at"`
	SentAt     *time.Time    `json:"sent_at,omitempty"`
}

// Evaluation is the gate's verdict for one cycle.
type Evaluation struct {
	Should  bool
	Message *ProactiveMessage
}

// QuestionSource provides pending self-questions at or above a priority.
type QuestionSource interface {
	PendingQuestions(ctx context.Context, minPriority, limit int) ([]mind.SelfQuestion, error)
}

// StateSource provides the current agent state.
type StateSource interface {
	Current(ctx context.Context) *mind.AgentState
}

// Gate applies the contact policy.
type Gate struct {
	questions           QuestionSource
	state               StateSource
	minQuestionPriority int
	minIntensity        int
	logger              *zap.Logger
}

// NewGate creates a gate with the given thresholds. The defaults (priority 8,
// intensity 7) are tunable configuration, not load-bearing rules.
func NewGate(questions QuestionSource, state StateSource, minQuestionPriority, minIntensity int, logger *zap.Logger) *Gate {
	if minQuestionPriority <= 0 {
		minQuestionPriority = 8
	}
	if minIntensity <= 0 {
		minIntensity = 7
	}
	return &Gate{
		questions:           questions,
		state:               state,
		minQuestionPriority: minQuestionPriority,
		minIntensity:        minIntensity,
		logger:              logger,
	}
}

// Evaluate returns a positive verdict only when both conditions hold: a
// pending question at or above the priority threshold exists, and current
// motivation intensity meets its threshold.
func (g *Gate) Evaluate(ctx context.Context) (*Evaluation, error) {
	state := g.state.Current(ctx)
	if state.MotivationIntensity < g.minIntensity {
		return &Evaluation{}, nil
	}

	questions, err := g.questions.PendingQuestions(ctx, g.minQuestionPriority, 10)
	if err != nil {
		return nil, fmt.Errorf("pending questions: %w", err)
	}
	if len(questions) == 0 {
		return &Evaluation{}, nil
	}

	// Highest-priority qualifying question carries the message.
	best := questions[0]
	for _, q := range questions[1:] {
		if q.Priority > best.Priority {
			best = q
		}
	}

	urgency := mind.UrgencyMedium
	if best.Priority >= 9 {
		urgency = mind.UrgencyHigh
	}

	g.logger.Info("contact gate open",
		zap.String("question", best.ID),
		zap.Int("priority", best.Priority),
		zap.Int("intensity", state.MotivationIntensity))

	return &Evaluation{
		Should: true,
		Message: &ProactiveMessage{
			ID:         uuid.New().String(),
			QuestionID: best.ID,
			Content:    best.Question,
			Reason: fmt.Sprintf("pending question priority %d with motivation intensity %d",
				best.Priority, state.MotivationIntensity),
			Urgency:   urgency,
			Status:    MessagePending,
			CreatedAt: time.Now(),
		},
	}, nil
}
