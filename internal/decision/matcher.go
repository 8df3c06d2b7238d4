package decision

import (
	"sync"
	"time"

	"vigil/internal/globs"
	"vigil/internal/logging"
)

// Observation is one unit of noticed change, from any source.
type Observation struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	Source   string    `json:"source"` // file, git, github, amplitude
	Category Category  `json:"category"`
	Paths    []string  `json:"paths,omitempty"`
	Summary  string    `json:"summary"`
}

// Matcher selects action templates applicable to an observation and
// enforces per-action cooldowns.
type Matcher struct {
	mu        sync.Mutex
	actions   []ActionTemplate
	lastFired map[string]time.Time
	cooldown  time.Duration

	now func() time.Time // swappable for tests
}

// NewMatcher creates a Matcher with the given default cooldown.
func NewMatcher(actions []ActionTemplate, defaultCooldown time.Duration) *Matcher {
	if defaultCooldown <= 0 {
		defaultCooldown = 10 * time.Minute
	}
	return &Matcher{
		actions:   actions,
		lastFired: make(map[string]time.Time),
		cooldown:  defaultCooldown,
		now:       time.Now,
	}
}

// Match returns the templates whose categories and patterns accept obs,
// excluding any still inside their cooldown window.
func (m *Matcher) Match(obs Observation) []ActionTemplate {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []ActionTemplate
	now := m.now()

	for _, action := range m.actions {
		if !action.MatchesCategory(obs.Category) {
			continue
		}
		if len(action.Patterns) > 0 && !anyPathMatches(action.Patterns, obs.Paths) {
			continue
		}
		if last, ok := m.lastFired[action.Name]; ok {
			remaining := action.GetCooldown(m.cooldown) - now.Sub(last)
			if remaining > 0 {
				logging.DecisionDebug("action %s in cooldown for %v", action.Name, remaining)
				continue
			}
		}
		matched = append(matched, action)
	}
	return matched
}

// MarkFired records that action fired now, starting its cooldown window.
func (m *Matcher) MarkFired(actionName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFired[actionName] = m.now()
}

// Actions returns the configured template table.
func (m *Matcher) Actions() []ActionTemplate {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ActionTemplate, len(m.actions))
	copy(out, m.actions)
	return out
}

func anyPathMatches(patterns, paths []string) bool {
	for _, p := range paths {
		if globs.MatchAny(patterns, p) {
			return true
		}
	}
	return false
}
