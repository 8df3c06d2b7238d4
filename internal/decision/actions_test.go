package decision

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBuiltinActionsAreValid(t *testing.T) {
	for _, a := range BuiltinActions() {
		if err := validateAction(a); err != nil {
			t.Errorf("builtin %q invalid: %v", a.Name, err)
		}
	}
}

func TestLoadActionsMissingFileUsesBuiltins(t *testing.T) {
	actions, err := LoadActions(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadActions failed: %v", err)
	}
	if len(actions) != len(BuiltinActions()) {
		t.Errorf("expected builtin table, got %d actions", len(actions))
	}
}

func TestLoadActionsMergesAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actions.yaml")
	content := `actions:
  - name: run-tests
    prompt: "custom prompt {{changes}}"
    threshold: 0.9
    cooldown: 5m
  - name: lint-sql
    categories: [source]
    patterns: ["**/*.sql"]
    prompt: "lint these: {{changes}}"
    threshold: 0.5
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	actions, err := LoadActions(path)
	if err != nil {
		t.Fatalf("LoadActions failed: %v", err)
	}
	if len(actions) != len(BuiltinActions())+1 {
		t.Errorf("expected builtins plus one, got %d", len(actions))
	}

	var runTests *ActionTemplate
	var lintSQL *ActionTemplate
	for i := range actions {
		switch actions[i].Name {
		case "run-tests":
			runTests = &actions[i]
		case "lint-sql":
			lintSQL = &actions[i]
		}
	}
	if runTests == nil || runTests.Threshold != 0.9 {
		t.Errorf("override not applied: %+v", runTests)
	}
	if lintSQL == nil {
		t.Fatal("new action not merged")
	}
	if got := lintSQL.GetCooldown(10 * time.Minute); got != 10*time.Minute {
		t.Errorf("empty cooldown should use default, got %v", got)
	}
}

func TestLoadActionsRejectsBadThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actions.yaml")
	content := `actions:
  - name: bad
    prompt: p
    threshold: 1.5
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := LoadActions(path); err == nil {
		t.Fatal("expected error for threshold outside [0,1]")
	}
}

func TestMatchesCategory(t *testing.T) {
	a := ActionTemplate{Categories: []string{"source", "test"}}
	if !a.MatchesCategory(CategorySource) {
		t.Error("source should match")
	}
	if a.MatchesCategory(CategoryDocs) {
		t.Error("docs should not match")
	}

	open := ActionTemplate{}
	if !open.MatchesCategory(CategoryDocs) {
		t.Error("empty category list should match everything")
	}
}
