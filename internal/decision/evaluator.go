package decision

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"vigil/internal/logging"
	"vigil/internal/perception"
)

// Verdict is the evaluator's answer for one action candidate.
type Verdict struct {
	ShouldExecute bool    `json:"should_execute"`
	Confidence    float64 `json:"confidence"`
	Reasoning     string  `json:"reasoning"`
}

const evaluatorSystemPrompt = `You are an action evaluator for a local automation daemon watching a developer's workspace. Given observed changes and a candidate action, decide whether the action should run now.

Respond with ONLY a JSON object, no prose:
{"should_execute": true|false, "confidence": 0.0-1.0, "reasoning": "one or two sentences"}`

// Evaluator renders action prompts and parses LLM verdicts.
type Evaluator struct {
	client perception.LLMClient
}

// NewEvaluator creates an Evaluator backed by client.
func NewEvaluator(client perception.LLMClient) *Evaluator {
	return &Evaluator{client: client}
}

// Evaluate asks the LLM whether action should run given obs and recent
// context. Transport errors are returned; a malformed response is not an
// error and yields a no-execute verdict.
func (e *Evaluator) Evaluate(ctx context.Context, action ActionTemplate, obs Observation, recent []Observation) (Verdict, string, error) {
	prompt := RenderPrompt(action.Prompt, obs, recent)

	timer := logging.StartTimer(logging.CategoryEvaluator, "evaluate "+action.Name)
	response, err := e.client.CompleteWithSystem(ctx, evaluatorSystemPrompt, prompt)
	timer.Stop()
	if err != nil {
		return Verdict{}, prompt, err
	}

	verdict := ParseVerdict(response)
	logging.Evaluator("action=%s should_execute=%v confidence=%.2f", action.Name, verdict.ShouldExecute, verdict.Confidence)
	return verdict, prompt, nil
}

// RenderPrompt substitutes the {{changes}} and {{context}} placeholders in
// an action prompt template.
func RenderPrompt(template string, obs Observation, recent []Observation) string {
	var changes strings.Builder
	changes.WriteString(obs.Summary)
	for _, p := range obs.Paths {
		changes.WriteString("\n- ")
		changes.WriteString(p)
	}

	var context strings.Builder
	if len(recent) == 0 {
		context.WriteString("(no earlier activity)")
	}
	for _, r := range recent {
		context.WriteString(r.Time.Format(time.TimeOnly))
		context.WriteString(" [")
		context.WriteString(r.Source)
		context.WriteString("] ")
		context.WriteString(r.Summary)
		context.WriteString("\n")
	}

	out := strings.ReplaceAll(template, "{{changes}}", changes.String())
	out = strings.ReplaceAll(out, "{{context}}", strings.TrimRight(context.String(), "\n"))
	return out
}

// ParseVerdict extracts a Verdict from raw LLM output. Anything that does
// not contain a parseable verdict object becomes a zero-confidence
// no-execute verdict; the loop must never crash on model output.
func ParseVerdict(response string) Verdict {
	jsonStr := extractJSON(response)
	if jsonStr == "" {
		logging.EvaluatorWarn("no JSON object in response (%d bytes)", len(response))
		return Verdict{Reasoning: "unparseable evaluator response"}
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(jsonStr), &verdict); err != nil {
		logging.EvaluatorWarn("malformed verdict JSON: %v", err)
		return Verdict{Reasoning: "unparseable evaluator response"}
	}

	if verdict.Confidence < 0 {
		verdict.Confidence = 0
	}
	if verdict.Confidence > 1 {
		verdict.Confidence = 1
	}
	return verdict
}

// extractJSON finds the first balanced top-level JSON object in text,
// tolerating markdown code fences and surrounding prose.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.Contains(text, "```") {
		start := strings.Index(text, "```")
		rest := text[start+3:]
		if idx := strings.Index(rest, "\n"); idx >= 0 {
			rest = rest[idx+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			text = rest[:end]
		} else {
			text = rest
		}
		text = strings.TrimSpace(text)
	}

	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}
