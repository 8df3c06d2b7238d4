package tactile

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"vigil/internal/logging"
	"vigil/internal/perception"
)

// AgentConfig configures the external coding-agent delegate.
type AgentConfig struct {
	// Agent is the CLI to invoke: "claude" or "codex".
	Agent string

	// Model passed through to the agent, if set.
	Model string

	// Timeout for one delegated task.
	Timeout time.Duration

	// WorkingDirectory the agent runs in.
	WorkingDirectory string
}

// AgentRunner delegates a rendered prompt to an external coding-agent CLI
// and returns its textual result.
type AgentRunner struct {
	config   AgentConfig
	executor *DirectExecutor
}

// NewAgentRunner creates an AgentRunner over executor.
func NewAgentRunner(cfg AgentConfig, executor *DirectExecutor) (*AgentRunner, error) {
	switch cfg.Agent {
	case "claude", "codex":
	case "":
		cfg.Agent = "claude"
	default:
		return nil, fmt.Errorf("unknown agent: %s", cfg.Agent)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Second
	}
	if executor == nil {
		executor = NewDirectExecutor()
	}
	return &AgentRunner{config: cfg, executor: executor}, nil
}

// Run sends prompt to the agent and returns the assistant text plus the raw
// execution result. Rate-limit responses surface as a
// perception.RateLimitError so the caller can back off.
func (a *AgentRunner) Run(ctx context.Context, prompt, decisionID string) (string, *ExecutionResult, error) {
	cmd := a.buildCommand(prompt, decisionID)
	logging.Tactile("delegating to %s agent (prompt %d bytes)", a.config.Agent, len(prompt))

	result, err := a.executor.Execute(ctx, cmd)
	if err != nil {
		return "", nil, err
	}

	if result.Killed {
		return "", result, fmt.Errorf("%s agent killed: %s", a.config.Agent, result.KillReason)
	}
	if result.IsError() {
		return "", result, fmt.Errorf("%s agent failed: %s", a.config.Agent, result.Error)
	}
	if result.ExitCode != 0 {
		if isRateLimitMessage(result.Stderr) {
			return "", result, &perception.RateLimitError{
				Provider:    a.config.Agent + "-cli",
				RawResponse: result.Stderr,
			}
		}
		return "", result, fmt.Errorf("%s agent exited %d: %s", a.config.Agent, result.ExitCode, strings.TrimSpace(result.Stderr))
	}

	var text string
	switch a.config.Agent {
	case "claude":
		text, err = parseClaudeOutput([]byte(result.Stdout))
	case "codex":
		text, err = parseCodexOutput([]byte(result.Stdout))
	}
	if err != nil {
		return "", result, err
	}
	return text, result, nil
}

func (a *AgentRunner) buildCommand(prompt, decisionID string) Command {
	var args []string
	switch a.config.Agent {
	case "codex":
		args = []string{"exec", "--json"}
		if a.config.Model != "" {
			args = append(args, "--model", a.config.Model)
		}
		args = append(args, prompt)
	default: // claude
		args = []string{"-p", prompt, "--output-format", "json"}
		if a.config.Model != "" {
			args = append(args, "--model", a.config.Model)
		}
	}

	return Command{
		Binary:           a.config.Agent,
		Arguments:        args,
		WorkingDirectory: a.config.WorkingDirectory,
		DecisionID:       decisionID,
		Limits: &ResourceLimits{
			TimeoutMs: int64(a.config.Timeout / time.Millisecond),
		},
		Tags: map[string]string{"kind": "agent"},
	}
}

// claudeOutput is the JSON shape of `claude -p --output-format json`.
type claudeOutput struct {
	Result  string `json:"result"`
	IsError bool   `json:"is_error"`
	Subtype string `json:"subtype,omitempty"`
	Error   *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func parseClaudeOutput(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty response from claude CLI")
	}

	var out claudeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("failed to parse claude CLI output: %w (raw: %s)", err, truncate(string(data), 500))
	}

	if out.Error != nil {
		if isRateLimitMessage(out.Error.Message) || strings.Contains(out.Error.Type, "rate_limit") {
			return "", &perception.RateLimitError{Provider: "claude-cli", RawResponse: out.Error.Message}
		}
		return "", fmt.Errorf("claude CLI error: %s", out.Error.Message)
	}
	if out.IsError {
		if isRateLimitMessage(out.Result) {
			return "", &perception.RateLimitError{Provider: "claude-cli", RawResponse: out.Result}
		}
		return "", fmt.Errorf("claude CLI error: %s", truncate(out.Result, 500))
	}

	text := strings.TrimSpace(out.Result)
	if text == "" {
		return "", errors.New("no result in claude CLI response")
	}
	return text, nil
}

// codexEvent is one NDJSON line from `codex exec --json`.
type codexEvent struct {
	Type string `json:"type"`
	Item *struct {
		Type string `json:"item_type"`
		Text string `json:"text"`
	} `json:"item,omitempty"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func parseCodexOutput(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty response from codex CLI")
	}

	var lastText string
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}
		var ev codexEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue // Tolerate non-JSON noise between events
		}
		if ev.Error != nil {
			if isRateLimitMessage(ev.Error.Message) {
				return "", &perception.RateLimitError{Provider: "codex-cli", RawResponse: ev.Error.Message}
			}
			return "", fmt.Errorf("codex CLI error: %s", ev.Error.Message)
		}
		if ev.Item != nil && ev.Item.Type == "agent_message" && ev.Item.Text != "" {
			lastText = ev.Item.Text
		}
	}

	if lastText == "" {
		return "", errors.New("no agent message in codex CLI output")
	}
	return strings.TrimSpace(lastText), nil
}

func isRateLimitMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "rate_limit") ||
		strings.Contains(lower, "too many requests") ||
		strings.Contains(lower, "quota exceeded") ||
		strings.Contains(lower, "429")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
