package decision

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hollis-ai/reverie/internal/graph"
	"github.com/hollis-ai/reverie/internal/mind"
	"github.com/hollis-ai/reverie/internal/provider"
	"go.uber.org/zap"
)

type fakeInvoker struct {
	response *provider.Response
	err      error
	calls    int
}

func (f *fakeInvoker) Invoke(_ context.Context, _ *provider.Request, _ provider.CallClass) (*provider.Response, error) {
	f.calls++
	return f.response, f.err
}

type fakeSources struct {
	state       *mind.AgentState
	concepts    []graph.Concept
	questions   []mind.SelfQuestion
	reflections []string
	audit       []mind.CognitiveLogEntry
}

func (f *fakeSources) Current(_ context.Context) *mind.AgentState {
	if f.state == nil {
		return mind.DefaultState()
	}
	return f.state
}

func (f *fakeSources) RecentConcepts(_ context.Context, n int) ([]graph.Concept, error) {
	return f.concepts, nil
}

func (f *fakeSources) PendingQuestions(_ context.Context, _, _ int) ([]mind.SelfQuestion, error) {
	return f.questions, nil
}

func (f *fakeSources) RecentReflections(_ context.Context, _ int) ([]string, error) {
	return f.reflections, nil
}

func (f *fakeSources) AppendCognitiveLog(_ context.Context, e *mind.CognitiveLogEntry) error {
	f.audit = append(f.audit, *e)
	return nil
}

func newTestEngine(inv *fakeInvoker) (*Engine, *fakeSources) {
	src := &fakeSources{}
	eng := NewEngine(inv, src, src, src, src, src, SnapshotOptions{}, zap.NewNop())
	return eng, src
}

func TestDecideParsesStructuredResponse(t *testing.T) {
	inv := &fakeInvoker{response: &provider.Response{
		Content: `{"kind": "explore_concept", "reasoning": "curious about graphs", "action": "explore graph theory", "urgency": "medium"}`,
	}}
	eng, src := newTestEngine(inv)

	d := eng.Decide(context.Background())
	if d.Kind != mind.DecideExploreConcept {
		t.Errorf("kind = %s, want explore_concept", d.Kind)
	}
	if d.Fallback {
		t.Error("successful decision marked as fallback")
	}
	if d.Urgency != mind.UrgencyMedium {
		t.Errorf("urgency = %s, want medium", d.Urgency)
	}
	if len(src.audit) != 1 {
		t.Fatalf("audit rows = %d, want 1", len(src.audit))
	}
}

func TestDecideFallsBackOnTimeout(t *testing.T) {
	inv := &fakeInvoker{err: provider.ErrTimeout}
	eng, src := newTestEngine(inv)

	d := eng.Decide(context.Background())
	if d == nil {
		t.Fatal("Decide returned nil")
	}
	if d.Kind != mind.DecideIntegrateKnowledge {
		t.Errorf("fallback kind = %s, want integrate_knowledge", d.Kind)
	}
	if !strings.Contains(d.Reasoning, "fallback") {
		t.Errorf("reasoning = %q, want fallback mention", d.Reasoning)
	}
	if !d.Fallback {
		t.Error("fallback decision not flagged")
	}
	if len(src.audit) != 1 || !src.audit[0].Fallback {
		t.Error("fallback decision was not audit-logged")
	}
}

func TestDecideFallsBackOnThrottle(t *testing.T) {
	inv := &fakeInvoker{} // nil response, nil error: throttled
	eng, _ := newTestEngine(inv)

	d := eng.Decide(context.Background())
	if !d.Fallback {
		t.Error("throttled invocation should produce the fallback decision")
	}
}

func TestDecideFallsBackOnMalformedResponse(t *testing.T) {
	inv := &fakeInvoker{response: &provider.Response{Content: "I think I'll just vibe today"}}
	eng, _ := newTestEngine(inv)

	d := eng.Decide(context.Background())
	if !d.Fallback {
		t.Error("unparseable response should produce the fallback decision")
	}
}

func TestParseRejects(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"no json", "nothing structured here"},
		{"unknown kind", `{"kind": "conquer_world", "reasoning": "why not"}`},
		{"missing reasoning", `{"kind": "reflect"}`},
		{"bad urgency", `{"kind": "reflect", "reasoning": "r", "urgency": "apocalyptic"}`},
		{"truncated", `{"kind": "reflect", "reasoning": `},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.content)
			if !errors.Is(err, ErrParse) {
				t.Errorf("Parse(%q) err = %v, want ErrParse", tc.content, err)
			}
		})
	}
}

func TestParseAcceptsFencedJSON(t *testing.T) {
	content := "Here is my decision:\n```json\n" +
		`{"kind": "rest", "reasoning": "tired"}` + "\n```"
	d, err := Parse(content)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.Kind != mind.DecideRest {
		t.Errorf("kind = %s, want rest", d.Kind)
	}
	if d.Urgency != mind.UrgencyLow {
		t.Errorf("urgency = %s, want default low", d.Urgency)
	}
}
