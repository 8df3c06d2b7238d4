package decision

import (
	"fmt"
	"os"
	"time"

	"vigil/internal/logging"

	"gopkg.in/yaml.v3"
)

// ActionTemplate describes one automatable response to observed changes.
type ActionTemplate struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Patterns    []string `yaml:"patterns,omitempty"`
	Categories  []string `yaml:"categories,omitempty"`
	Prompt      string   `yaml:"prompt"`
	Threshold   float64  `yaml:"threshold"`
	Cooldown    string   `yaml:"cooldown,omitempty"`
	AutoExecute bool     `yaml:"auto_execute"`
}

// GetCooldown parses the template cooldown, falling back to def.
func (a *ActionTemplate) GetCooldown(def time.Duration) time.Duration {
	if a.Cooldown == "" {
		return def
	}
	d, err := time.ParseDuration(a.Cooldown)
	if err != nil {
		logging.DecisionWarn("action %s has invalid cooldown %q, using default", a.Name, a.Cooldown)
		return def
	}
	return d
}

// MatchesCategory reports whether the template applies to cat. An empty
// Categories list applies to everything.
func (a *ActionTemplate) MatchesCategory(cat Category) bool {
	if len(a.Categories) == 0 {
		return true
	}
	for _, c := range a.Categories {
		if Category(c) == cat {
			return true
		}
	}
	return false
}

// BuiltinActions are always available; a YAML actions file extends or
// overrides them by name.
func BuiltinActions() []ActionTemplate {
	return []ActionTemplate{
		{
			Name:        "run-tests",
			Description: "Run the test suite after source changes",
			Categories:  []string{"source"},
			Prompt: `Source files changed in this workspace:
{{changes}}

Recent activity:
{{context}}

Should the test suite be run now? Consider whether the changes look complete (not mid-edit churn) and whether they touch behavior rather than formatting.`,
			Threshold:   0.7,
			Cooldown:    "10m",
			AutoExecute: false,
		},
		{
			Name:        "update-docs",
			Description: "Flag documentation drift after API changes",
			Categories:  []string{"source"},
			Patterns:    []string{"**/*.go", "**/*.py", "**/*.ts"},
			Prompt: `These source files changed:
{{changes}}

Recent activity:
{{context}}

Do the changes likely alter public behavior or interfaces in a way that makes existing documentation stale?`,
			Threshold:   0.75,
			Cooldown:    "30m",
			AutoExecute: false,
		},
		{
			Name:        "review-config-change",
			Description: "Sanity-check configuration edits",
			Categories:  []string{"config", "build"},
			Prompt: `Configuration or build files changed:
{{changes}}

Recent activity:
{{context}}

Does this change look risky or inconsistent (typos in keys, removed required settings, mismatched versions)?`,
			Threshold:   0.6,
			Cooldown:    "15m",
			AutoExecute: false,
		},
		{
			Name:        "summarize-commits",
			Description: "Summarize a burst of new commits",
			Categories:  []string{"git"},
			Prompt: `New commits landed:
{{changes}}

Recent activity:
{{context}}

Is this a coherent unit of work worth summarizing into a progress note?`,
			Threshold:   0.65,
			Cooldown:    "1h",
			AutoExecute: false,
		},
	}
}

type actionsFile struct {
	Actions []ActionTemplate `yaml:"actions"`
}

// LoadActions returns the builtin table merged with the YAML file at path.
// File entries override builtins with the same name. A missing file is not
// an error; a malformed one is.
func LoadActions(path string) ([]ActionTemplate, error) {
	actions := BuiltinActions()
	if path == "" {
		return actions, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.DecisionDebug("no actions file at %s, using builtins", path)
			return actions, nil
		}
		return nil, fmt.Errorf("reading actions file: %w", err)
	}

	var file actionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing actions file: %w", err)
	}

	byName := make(map[string]int, len(actions))
	for i, a := range actions {
		byName[a.Name] = i
	}
	for _, a := range file.Actions {
		if err := validateAction(a); err != nil {
			return nil, fmt.Errorf("action %q: %w", a.Name, err)
		}
		if i, ok := byName[a.Name]; ok {
			actions[i] = a
		} else {
			byName[a.Name] = len(actions)
			actions = append(actions, a)
		}
	}

	logging.Decision("loaded %d actions (%d from %s)", len(actions), len(file.Actions), path)
	return actions, nil
}

func validateAction(a ActionTemplate) error {
	if a.Name == "" {
		return fmt.Errorf("missing name")
	}
	if a.Prompt == "" {
		return fmt.Errorf("missing prompt")
	}
	if a.Threshold < 0 || a.Threshold > 1 {
		return fmt.Errorf("threshold %v outside [0,1]", a.Threshold)
	}
	if a.Cooldown != "" {
		if _, err := time.ParseDuration(a.Cooldown); err != nil {
			return fmt.Errorf("invalid cooldown %q", a.Cooldown)
		}
	}
	return nil
}
