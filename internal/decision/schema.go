package decision

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hollis-ai/reverie/internal/mind"
)

// ErrParse marks a malformed structured response. It triggers the same
// fallback path as a timeout; nothing undefined flows downstream.
var ErrParse = errors.New("decision: malformed structured response")

// decisionSchema is supplied with each structured request so the model
// returns a parseable object.
const decisionSchema = `{
  "type": "object",
  "required": ["kind", "reasoning"],
  "properties": {
    "kind": {"enum": ["explore_concept", "reflect", "integrate_knowledge", "ask_question", "change_state", "rest", "initiate_contact"]},
    "reasoning": {"type": "string"},
    "action": {"type": "string"},
    "should_contact_user": {"type": "boolean"},
    "urgency": {"enum": ["low", "medium", "high"]}
  }
}`

// wireDecision is the raw shape received from the model.
type wireDecision struct {
	Kind              string `json:"kind"`
	Reasoning         string `json:"reasoning"`
	Action            string `json:"action"`
	ShouldContactUser bool   `json:"should_contact_user"`
	Urgency           string `json:"urgency"`
}

// extractObject pulls the outermost JSON object out of model output, which
// may be wrapped in prose or a code fence.
func extractObject(content string) (string, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return content[start : end+1], true
}

// Parse validates model output into a Decision. Any missing required field,
// unknown kind, or unknown urgency is an ErrParse.
func Parse(content string) (*mind.Decision, error) {
	raw, ok := extractObject(content)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrParse)
	}

	var wire wireDecision
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	kind := mind.DecisionKind(wire.Kind)
	if !mind.ValidDecisionKind(kind) {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrParse, wire.Kind)
	}
	if wire.Reasoning == "" {
		return nil, fmt.Errorf("%w: missing reasoning", ErrParse)
	}

	urgency := mind.UrgencyLow
	if wire.Urgency != "" {
		urgency = mind.Urgency(wire.Urgency)
		if !mind.ValidUrgency(urgency) {
			return nil, fmt.Errorf("%w: unknown urgency %q", ErrParse, wire.Urgency)
		}
	}

	return &mind.Decision{
		Kind:              kind,
		Reasoning:         wire.Reasoning,
		Action:            wire.Action,
		ShouldContactUser: wire.ShouldContactUser,
		Urgency:           urgency,
	}, nil
}
