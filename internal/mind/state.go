package mind

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// StateStore persists the singleton AgentState.
type StateStore interface {
	GetAgentState(ctx context.Context) (*AgentState, error)
	UpdateAgentState(ctx context.Context, patch StatePatch) (*AgentState, error)
}

// StateMachine owns all reads and writes of the agent's state. No other
// component touches the state row directly.
type StateMachine struct {
	store  StateStore
	logger *zap.Logger
}

// NewStateMachine creates a state machine over the given store.
func NewStateMachine(store StateStore, logger *zap.Logger) *StateMachine {
	return &StateMachine{store: store, logger: logger}
}

// Current reads the live state. A store failure degrades to a thinking
// snapshot instead of failing the cycle.
func (m *StateMachine) Current(ctx context.Context) *AgentState {
	state, err := m.store.GetAgentState(ctx)
	if err != nil {
		m.logger.Warn("state read failed, using degraded snapshot", zap.Error(err))
		return DegradedState()
	}
	return state
}

// modeKeywords drive ChangeState parsing, checked in order so more specific
// words win over substrings.
var modeKeywords = []struct {
	word string
	mode Mode
}{
	{"sleep", ModeSleeping},
	{"rest", ModeSleeping},
	{"wake", ModeAwake},
	{"awake", ModeAwake},
	{"reflect", ModeReflecting},
	{"think", ModeThinking},
	{"explor", ModeExploring},
}

// ParseTargetMode extracts a mode from free-text action content.
// Returns ("", false) when no keyword matches.
func ParseTargetMode(action string) (Mode, bool) {
	lowered := strings.ToLower(action)
	for _, kw := range modeKeywords {
		if strings.Contains(lowered, kw.word) {
			return kw.mode, true
		}
	}
	return "", false
}

// ApplyDecision transitions the state according to the decision and persists
// the result as a partial merge. It returns the updated state.
func (m *StateMachine) ApplyDecision(ctx context.Context, d *Decision) (*AgentState, error) {
	patch := StatePatch{}
	if d.Reasoning != "" {
		thought := d.Reasoning
		patch.LastThought = &thought
	}

	switch d.Kind {
	case DecideChangeState:
		if target, ok := ParseTargetMode(d.Action); ok {
			patch.Mode = &target
		} else {
			m.logger.Debug("change_state without recognizable target, mode unchanged",
				zap.String("action", d.Action))
		}
	case DecideRest:
		sleeping := ModeSleeping
		patch.Mode = &sleeping
	}

	state, err := m.store.UpdateAgentState(ctx, patch)
	if err != nil {
		m.logger.Warn("state write failed", zap.Error(err))
		return DegradedState(), err
	}
	if patch.Mode != nil {
		m.logger.Info("mode transition",
			zap.String("mode", string(state.Mode)),
			zap.String("decision", string(d.Kind)))
	}
	return state, nil
}

// Update applies an arbitrary partial merge, clamping bounded fields.
func (m *StateMachine) Update(ctx context.Context, patch StatePatch) (*AgentState, error) {
	if patch.MotivationIntensity != nil {
		v := Clamp(*patch.MotivationIntensity, 1, 10)
		patch.MotivationIntensity = &v
	}
	if patch.AutonomyLevel != nil {
		v := Clamp(*patch.AutonomyLevel, 1, 10)
		patch.AutonomyLevel = &v
	}
	if patch.Mode != nil && !ValidMode(*patch.Mode) {
		patch.Mode = nil
	}
	return m.store.UpdateAgentState(ctx, patch)
}
