package decision

import (
	"context"
	"fmt"
	"testing"
	"time"

	"vigil/internal/perception"
)

func newTestEngine(client perception.LLMClient, actions []ActionTemplate) *Engine {
	return NewEngine(
		NewMatcher(actions, time.Minute),
		NewEvaluator(client),
		EngineConfig{WorkspaceSize: 8, ConfidenceFloor: 0.5},
	)
}

func TestProcessNoMatchSkipsLLM(t *testing.T) {
	client := &fakeClient{response: `{"should_execute": true, "confidence": 0.9, "reasoning": "x"}`}
	actions := []ActionTemplate{
		{Name: "on-source", Categories: []string{"source"}, Prompt: "p", Threshold: 0.5},
	}
	e := newTestEngine(client, actions)

	decisions := e.Process(context.Background(), Observation{Category: CategoryDocs, Summary: "readme"})
	if decisions != nil {
		t.Errorf("expected no decisions, got %+v", decisions)
	}
	if len(client.prompts) != 0 {
		t.Errorf("LLM was called %d times for a non-matching observation", len(client.prompts))
	}
}

func TestProcessProducesDecisionPerMatch(t *testing.T) {
	client := &fakeClient{response: `{"should_execute": true, "confidence": 0.9, "reasoning": "do it"}`}
	actions := []ActionTemplate{
		{Name: "a", Categories: []string{"source"}, Prompt: "p1 {{changes}}", Threshold: 0.5},
		{Name: "b", Categories: []string{"source"}, Prompt: "p2 {{changes}}", Threshold: 0.5},
	}
	e := newTestEngine(client, actions)

	obs := Observation{Category: CategorySource, Summary: "edit", Paths: []string{"x.go"}}
	decisions := e.Process(context.Background(), obs)
	if len(decisions) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(decisions))
	}
	for _, d := range decisions {
		if d.ID == "" {
			t.Error("decision missing ID")
		}
		if d.Outcome != OutcomeEvaluated {
			t.Errorf("outcome = %s", d.Outcome)
		}
		if !d.Approved(0.5) {
			t.Errorf("decision should be approved: %+v", d)
		}
		if d.ObservationID == "" {
			t.Error("decision missing observation ID")
		}
	}
}

func TestProcessCooldownPreventsDoubleFire(t *testing.T) {
	client := &fakeClient{response: `{"should_execute": true, "confidence": 0.9, "reasoning": "go"}`}
	actions := []ActionTemplate{
		{Name: "a", Categories: []string{"source"}, Prompt: "p", Threshold: 0.5},
	}
	e := newTestEngine(client, actions)

	obs := Observation{Category: CategorySource, Summary: "edit"}
	first := e.Process(context.Background(), obs)
	if len(first) != 1 {
		t.Fatalf("expected 1 decision, got %d", len(first))
	}

	// Same observation again immediately: the positive verdict started the
	// cooldown, so the action must not match.
	second := e.Process(context.Background(), obs)
	if len(second) != 0 {
		t.Errorf("action fired twice inside cooldown: %+v", second)
	}
}

func TestProcessErrorOutcome(t *testing.T) {
	client := &fakeClient{err: fmt.Errorf("connection refused")}
	actions := []ActionTemplate{
		{Name: "a", Categories: []string{"source"}, Prompt: "p", Threshold: 0.5},
	}
	e := newTestEngine(client, actions)

	decisions := e.Process(context.Background(), Observation{Category: CategorySource})
	if len(decisions) != 1 {
		t.Fatalf("expected 1 decision, got %d", len(decisions))
	}
	d := decisions[0]
	if d.Outcome != OutcomeError || d.Error == "" {
		t.Errorf("expected error outcome, got %+v", d)
	}
	if d.Approved(0.0) {
		t.Error("errored decision must never be approved")
	}

	// An errored evaluation must not consume the cooldown.
	client.err = nil
	client.response = `{"should_execute": true, "confidence": 0.9, "reasoning": "ok"}`
	if got := e.Process(context.Background(), Observation{Category: CategorySource}); len(got) != 1 {
		t.Errorf("action should still be available after an error, got %d", len(got))
	}
}

func TestProcessRateLimitOutcome(t *testing.T) {
	client := &fakeClient{err: fmt.Errorf("max retries exceeded: %w", &perception.RateLimitError{Provider: "lmstudio"})}
	actions := []ActionTemplate{
		{Name: "a", Categories: []string{"source"}, Prompt: "p", Threshold: 0.5},
	}
	e := newTestEngine(client, actions)

	decisions := e.Process(context.Background(), Observation{Category: CategorySource})
	if len(decisions) != 1 || decisions[0].Outcome != OutcomeRateLimited {
		t.Errorf("expected rate_limited outcome, got %+v", decisions)
	}
}

func TestWorkspaceRingBounds(t *testing.T) {
	e := NewEngine(NewMatcher(nil, time.Minute), NewEvaluator(&fakeClient{}), EngineConfig{WorkspaceSize: 4})

	for i := 0; i < 10; i++ {
		e.Observe(Observation{ID: fmt.Sprintf("obs-%d", i)})
	}

	recent := e.Recent(100)
	if len(recent) != 4 {
		t.Fatalf("expected ring capped at 4, got %d", len(recent))
	}
	// Oldest first, only the newest four survive.
	for i, obs := range recent {
		want := fmt.Sprintf("obs-%d", 6+i)
		if obs.ID != want {
			t.Errorf("recent[%d] = %s, want %s", i, obs.ID, want)
		}
	}
}
