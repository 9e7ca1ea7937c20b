package mind

import "time"

// Mode is the agent's current activity state.
type Mode string

const (
	ModeAwake      Mode = "awake"
	ModeThinking   Mode = "thinking"
	ModeReflecting Mode = "reflecting"
	ModeSleeping   Mode = "sleeping"
	ModeExploring  Mode = "exploring"
)

// ValidMode reports whether m is one of the known modes.
func ValidMode(m Mode) bool {
	switch m {
	case ModeAwake, ModeThinking, ModeReflecting, ModeSleeping, ModeExploring:
		return true
	}
	return false
}

// AgentState is the singleton cognitive state record.
type AgentState struct {
	Mode                Mode      `json:"mode"`
	Motivation          string    `json:"motivation"`
	MotivationIntensity int       `json:"motivation_intensity"` // 1-10
	LastThought         string    `json:"last_thought"`
	AutonomyLevel       int       `json:"autonomy_level"` // 1-10
	UpdatedAt           time.Time `json:"updated_at"`
}

// DefaultState is the state seeded on first boot.
func DefaultState() *AgentState {
	return &AgentState{
		Mode:                ModeAwake,
		Motivation:          "curiosity",
		MotivationIntensity: 7,
		LastThought:         "",
		AutonomyLevel:       8,
	}
}

// DegradedState is returned when the store is unreachable, so a cycle can
// still run against a known-safe snapshot.
func DegradedState() *AgentState {
	return &AgentState{
		Mode:                ModeThinking,
		Motivation:          "recovering",
		MotivationIntensity: 5,
		LastThought:         "state store unavailable",
		AutonomyLevel:       5,
	}
}

// StatePatch is a partial update to AgentState. Nil fields are left untouched.
type StatePatch struct {
	Mode                *Mode
	Motivation          *string
	MotivationIntensity *int
	LastThought         *string
	AutonomyLevel       *int
}

// DecisionKind identifies what the agent decided to do next.
type DecisionKind string

const (
	DecideExploreConcept     DecisionKind = "explore_concept"
	DecideReflect            DecisionKind = "reflect"
	DecideIntegrateKnowledge DecisionKind = "integrate_knowledge"
	DecideAskQuestion        DecisionKind = "ask_question"
	DecideChangeState        DecisionKind = "change_state"
	DecideRest               DecisionKind = "rest"
	DecideInitiateContact    DecisionKind = "initiate_contact"
)

// ValidDecisionKind reports whether k is a known decision kind.
func ValidDecisionKind(k DecisionKind) bool {
	switch k {
	case DecideExploreConcept, DecideReflect, DecideIntegrateKnowledge,
		DecideAskQuestion, DecideChangeState, DecideRest, DecideInitiateContact:
		return true
	}
	return false
}

// Urgency grades how pressing a decision or message is.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// ValidUrgency reports whether u is a known urgency level.
func ValidUrgency(u Urgency) bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return true
	}
	return false
}

// Decision is the structured output of one cognition cycle. Immutable once logged.
type Decision struct {
	Kind              DecisionKind `json:"kind"`
	Reasoning         string       `json:"reasoning"`
	Action            string       `json:"action"`
	ShouldContactUser bool         `json:"should_contact_user"`
	Urgency           Urgency      `json:"urgency"`
	Fallback          bool         `json:"fallback"`
	CreatedAt         time.Time    `json:"created_at"`
}

// SelfQuestion is a question the agent wants to ask the user.
type SelfQuestion struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Priority  int       `json:"priority"` // 1-10
	Answered  bool      `json:"answered"`
	CreatedAt time.Time `json:"created_at"`
}

// EpisodicMemory is a single remembered experience, pruned by retention.
type EpisodicMemory struct {
	ID              string    `json:"id"`
	Content         string    `json:"content"`
	EmotionalWeight int       `json:"emotional_weight"` // 1-10
	CreatedAt       time.Time `json:"created_at"`
}

// CognitiveLogEntry is one immutable row of the decision audit trail.
type CognitiveLogEntry struct {
	ID        string       `json:"id"`
	Kind      DecisionKind `json:"kind"`
	Reasoning string       `json:"reasoning"`
	Action    string       `json:"action"`
	Fallback  bool         `json:"fallback"`
	CreatedAt time.Time    `json:"created_at"`
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
