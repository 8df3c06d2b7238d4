package tactile

import (
	"errors"
	"testing"

	"vigil/internal/perception"
)

func TestParseClaudeOutput(t *testing.T) {
	data := []byte(`{"result": "  All tests pass.  ", "is_error": false}`)
	text, err := parseClaudeOutput(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if text != "All tests pass." {
		t.Errorf("text = %q", text)
	}
}

func TestParseClaudeOutputError(t *testing.T) {
	data := []byte(`{"result": "", "error": {"type": "api_error", "message": "boom"}}`)
	if _, err := parseClaudeOutput(data); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseClaudeOutputRateLimit(t *testing.T) {
	data := []byte(`{"is_error": true, "result": "Rate limit exceeded, try again later"}`)
	_, err := parseClaudeOutput(data)
	var rle *perception.RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rle.Provider != "claude-cli" {
		t.Errorf("provider = %q", rle.Provider)
	}
}

func TestParseClaudeOutputEmpty(t *testing.T) {
	if _, err := parseClaudeOutput(nil); err == nil {
		t.Fatal("expected error for empty output")
	}
}

func TestParseCodexOutput(t *testing.T) {
	data := []byte(`{"type":"thread.started"}
{"type":"item.completed","item":{"item_type":"agent_message","text":"first draft"}}
{"type":"item.completed","item":{"item_type":"agent_message","text":"final answer"}}
{"type":"turn.completed"}`)

	text, err := parseCodexOutput(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if text != "final answer" {
		t.Errorf("text = %q, want last agent message", text)
	}
}

func TestParseCodexOutputToleratesNoise(t *testing.T) {
	data := []byte(`loading model...
{"type":"item.completed","item":{"item_type":"agent_message","text":"ok"}}
not json either`)

	text, err := parseCodexOutput(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if text != "ok" {
		t.Errorf("text = %q", text)
	}
}

func TestParseCodexOutputError(t *testing.T) {
	data := []byte(`{"type":"error","error":{"message":"Too many requests"}}`)
	_, err := parseCodexOutput(data)
	var rle *perception.RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
}

func TestNewAgentRunnerRejectsUnknownAgent(t *testing.T) {
	if _, err := NewAgentRunner(AgentConfig{Agent: "gpt-shell"}, nil); err == nil {
		t.Fatal("expected error for unknown agent")
	}
}

func TestBuildCommandClaude(t *testing.T) {
	r, err := NewAgentRunner(AgentConfig{Agent: "claude", Model: "sonnet"}, nil)
	if err != nil {
		t.Fatalf("NewAgentRunner failed: %v", err)
	}
	cmd := r.buildCommand("do the thing", "dec-9")
	if cmd.Binary != "claude" {
		t.Errorf("binary = %q", cmd.Binary)
	}
	want := []string{"-p", "do the thing", "--output-format", "json", "--model", "sonnet"}
	if len(cmd.Arguments) != len(want) {
		t.Fatalf("args = %v", cmd.Arguments)
	}
	for i := range want {
		if cmd.Arguments[i] != want[i] {
			t.Errorf("arg[%d] = %q, want %q", i, cmd.Arguments[i], want[i])
		}
	}
	if cmd.DecisionID != "dec-9" {
		t.Errorf("decision id = %q", cmd.DecisionID)
	}
}

func TestBuildCommandCodex(t *testing.T) {
	r, err := NewAgentRunner(AgentConfig{Agent: "codex"}, nil)
	if err != nil {
		t.Fatalf("NewAgentRunner failed: %v", err)
	}
	cmd := r.buildCommand("prompt", "")
	if cmd.Binary != "codex" || cmd.Arguments[0] != "exec" {
		t.Errorf("cmd = %+v", cmd)
	}
	if cmd.Arguments[len(cmd.Arguments)-1] != "prompt" {
		t.Errorf("prompt should be the final arg: %v", cmd.Arguments)
	}
}

func TestIsRateLimitMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"Error: Rate limit exceeded", true},
		{"rate_limit_error", true},
		{"HTTP 429 Too Many Requests", true},
		{"quota exceeded for project", true},
		{"connection refused", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isRateLimitMessage(tt.msg); got != tt.want {
			t.Errorf("isRateLimitMessage(%q) = %v", tt.msg, got)
		}
	}
}
