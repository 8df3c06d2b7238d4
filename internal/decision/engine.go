package decision

import (
	"context"
	"errors"
	"sync"
	"time"

	"vigil/internal/logging"
	"vigil/internal/perception"

	"github.com/google/uuid"
)

// Outcome classifies how a decision concluded.
type Outcome string

const (
	OutcomeEvaluated   Outcome = "evaluated"    // verdict came back from the LLM
	OutcomeRateLimited Outcome = "rate_limited" // evaluator refused, retry later
	OutcomeError       Outcome = "error"        // transport or provider failure
)

// Decision is the full record of one action evaluation.
type Decision struct {
	ID            string    `json:"id"`
	Time          time.Time `json:"time"`
	Action        string    `json:"action"`
	ObservationID string    `json:"observation_id"`
	Outcome       Outcome   `json:"outcome"`
	ShouldExecute bool      `json:"should_execute"`
	Confidence    float64   `json:"confidence"`
	Reasoning     string    `json:"reasoning"`
	Prompt        string    `json:"prompt,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// Approved reports whether the verdict cleared the action's threshold.
func (d Decision) Approved(threshold float64) bool {
	return d.Outcome == OutcomeEvaluated && d.ShouldExecute && d.Confidence >= threshold
}

// workspace is a bounded ring of recent observations. Oldest entries are
// overwritten once capacity is reached.
type workspace struct {
	buf  []Observation
	next int
	full bool
}

func newWorkspace(capacity int) *workspace {
	if capacity <= 0 {
		capacity = 256
	}
	return &workspace{buf: make([]Observation, capacity)}
}

func (w *workspace) add(obs Observation) {
	w.buf[w.next] = obs
	w.next++
	if w.next == len(w.buf) {
		w.next = 0
		w.full = true
	}
}

// recent returns up to n observations, oldest first.
func (w *workspace) recent(n int) []Observation {
	size := w.next
	if w.full {
		size = len(w.buf)
	}
	if n > size {
		n = size
	}
	out := make([]Observation, 0, n)
	for i := size - n; i < size; i++ {
		idx := i
		if w.full {
			idx = (w.next + i) % len(w.buf)
		}
		out = append(out, w.buf[idx])
	}
	return out
}

// EngineConfig tunes the decision engine.
type EngineConfig struct {
	WorkspaceSize   int
	ConfidenceFloor float64
	DefaultCooldown time.Duration
	ContextDepth    int // observations of context per evaluation
}

// Engine runs the observe-categorize-match-evaluate pipeline.
type Engine struct {
	mu        sync.Mutex
	matcher   *Matcher
	evaluator *Evaluator
	ws        *workspace
	floor     float64
	depth     int
}

// NewEngine wires a matcher and evaluator into an engine.
func NewEngine(matcher *Matcher, evaluator *Evaluator, cfg EngineConfig) *Engine {
	if cfg.ContextDepth <= 0 {
		cfg.ContextDepth = 10
	}
	return &Engine{
		matcher:   matcher,
		evaluator: evaluator,
		ws:        newWorkspace(cfg.WorkspaceSize),
		floor:     cfg.ConfidenceFloor,
		depth:     cfg.ContextDepth,
	}
}

// Observe records obs into the bounded workspace without evaluating it.
func (e *Engine) Observe(obs Observation) {
	e.mu.Lock()
	e.ws.add(obs)
	e.mu.Unlock()
}

// Recent returns up to n recent observations, oldest first.
func (e *Engine) Recent(n int) []Observation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ws.recent(n)
}

// Process records obs and evaluates every matching action. Zero matches
// short-circuits without an LLM call. Each evaluated action produces one
// Decision; actions whose verdict clears the confidence floor start their
// cooldown window so they cannot re-fire inside it.
func (e *Engine) Process(ctx context.Context, obs Observation) []Decision {
	if obs.ID == "" {
		obs.ID = uuid.NewString()
	}
	if obs.Time.IsZero() {
		obs.Time = time.Now()
	}

	e.mu.Lock()
	recent := e.ws.recent(e.depth)
	e.ws.add(obs)
	e.mu.Unlock()

	matched := e.matcher.Match(obs)
	if len(matched) == 0 {
		logging.DecisionDebug("no actions match observation %s (%s)", obs.ID, obs.Category)
		return nil
	}
	logging.Decision("observation %s matched %d actions", obs.ID, len(matched))

	var decisions []Decision
	for _, action := range matched {
		decisions = append(decisions, e.evaluate(ctx, action, obs, recent))
	}
	return decisions
}

func (e *Engine) evaluate(ctx context.Context, action ActionTemplate, obs Observation, recent []Observation) Decision {
	d := Decision{
		ID:            uuid.NewString(),
		Time:          time.Now(),
		Action:        action.Name,
		ObservationID: obs.ID,
	}

	verdict, prompt, err := e.evaluator.Evaluate(ctx, action, obs, recent)
	d.Prompt = prompt
	if err != nil {
		var rle *perception.RateLimitError
		if errors.As(err, &rle) {
			d.Outcome = OutcomeRateLimited
		} else {
			d.Outcome = OutcomeError
		}
		d.Error = err.Error()
		logging.DecisionWarn("evaluation of %s failed: %v", action.Name, err)
		return d
	}

	d.Outcome = OutcomeEvaluated
	d.ShouldExecute = verdict.ShouldExecute
	d.Confidence = verdict.Confidence
	d.Reasoning = verdict.Reasoning

	// A positive verdict above the floor consumes the action's cooldown,
	// even if the caller ultimately declines to execute.
	if verdict.ShouldExecute && verdict.Confidence >= e.floor {
		e.matcher.MarkFired(action.Name)
	}

	logging.Decision("decision %s: action=%s execute=%v confidence=%.2f", d.ID, d.Action, d.ShouldExecute, d.Confidence)
	return d
}
