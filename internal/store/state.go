package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hollis-ai/reverie/internal/mind"
)

// GetAgentState loads the singleton state row, seeding the default state on
// first access.
func (s *Store) GetAgentState(ctx context.Context) (*mind.AgentState, error) {
	row := s.db.QueryRow(ctx, `
		SELECT mode, motivation, motivation_intensity, last_thought, autonomy_level, updated_at
		FROM agent_state WHERE id = 1`)

	var st mind.AgentState
	err := row.Scan(&st.Mode, &st.Motivation, &st.MotivationIntensity,
		&st.LastThought, &st.AutonomyLevel, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		seed := mind.DefaultState()
		if err := s.insertAgentState(ctx, seed); err != nil {
			return nil, err
		}
		return seed, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get agent state: %w", err)
	}
	return &st, nil
}

// UpdateAgentState merges the patch into the stored row, leaving nil fields
// untouched, and returns the resulting state.
func (s *Store) UpdateAgentState(ctx context.Context, patch mind.StatePatch) (*mind.AgentState, error) {
	st, err := s.GetAgentState(ctx)
	if err != nil {
		return nil, err
	}

	if patch.Mode != nil {
		st.Mode = *patch.Mode
	}
	if patch.Motivation != nil {
		st.Motivation = *patch.Motivation
	}
	if patch.MotivationIntensity != nil {
		st.MotivationIntensity = mind.Clamp(*patch.MotivationIntensity, 1, 10)
	}
	if patch.LastThought != nil {
		st.LastThought = *patch.LastThought
	}
	if patch.AutonomyLevel != nil {
		st.AutonomyLevel = mind.Clamp(*patch.AutonomyLevel, 1, 10)
	}
	st.UpdatedAt = time.Now()

	_, err = s.db.Exec(ctx, `
		UPDATE agent_state
		SET mode = $1, motivation = $2, motivation_intensity = $3,
		    last_thought = $4, autonomy_level = $5, updated_at = $6
		WHERE id = 1`,
		string(st.Mode), st.Motivation, st.MotivationIntensity,
		st.LastThought, st.AutonomyLevel, st.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update agent state: %w", err)
	}
	return st, nil
}

func (s *Store) insertAgentState(ctx context.Context, st *mind.AgentState) error {
	st.UpdatedAt = time.Now()
	_, err := s.db.Exec(ctx, `
		INSERT INTO agent_state (id, mode, motivation, motivation_intensity, last_thought, autonomy_level, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		string(st.Mode), st.Motivation, st.MotivationIntensity,
		st.LastThought, st.AutonomyLevel, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("seed agent state: %w", err)
	}
	return nil
}
