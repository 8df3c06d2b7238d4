package globs

import "testing"

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"*.go", "main.go", true},
		{"*.go", "cmd/main.go", false},
		{"**/*.go", "cmd/main.go", true},
		{"**/*.go", "a/b/c/main.go", true},
		{"**/*.go", "main.go", true},
		{"**/*_test.go", "internal/store/store_test.go", true},
		{"**/*_test.go", "internal/store/store.go", false},
		{"src/**", "src/deep/nested/file.txt", true},
		{"src/**", "other/file.txt", false},
		{".git/", ".git/objects/ab/cdef", true},
		{".git/", ".gitignore", false},
		{"node_modules/", "node_modules/pkg/index.js", true},
		{"*.sw?", "file.swp", true},
		{"*.log", "app.log", true},
		{"*.log", "logs/app.log", false},
		{"**/.DS_Store", "a/b/.DS_Store", true},
		{"docs/**/*.md", "docs/guide/intro.md", true},
		{"docs/**/*.md", "docs/README.md", true},
		{"", "anything", false},
	}

	for _, tt := range tests {
		if got := Match(tt.pattern, tt.name); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.name, got, tt.want)
		}
	}
}

func TestMatchNormalizesSeparators(t *testing.T) {
	if !Match("**/*.go", `internal\watch\watcher.go`) {
		t.Error("Expected backslash paths to normalize")
	}
	if !Match("*.go", "./main.go") {
		t.Error("Expected leading ./ to be trimmed")
	}
}

func TestMatchAny(t *testing.T) {
	patterns := []string{".git/", "**/*.tmp", "*.log"}

	if !MatchAny(patterns, ".git/HEAD") {
		t.Error("Expected .git/HEAD to match")
	}
	if !MatchAny(patterns, "build/cache.tmp") {
		t.Error("Expected build/cache.tmp to match")
	}
	if MatchAny(patterns, "src/main.go") {
		t.Error("Did not expect src/main.go to match")
	}
	if MatchAny(nil, "src/main.go") {
		t.Error("Empty pattern list must match nothing")
	}
}
