// Package decision turns observations into evaluated decisions: categorize
// the change, match it against action templates, ask the evaluator, and
// record the verdict.
package decision

import (
	"vigil/internal/globs"
)

// Category buckets a changed path into a coarse class of file.
type Category string

const (
	CategorySource Category = "source"
	CategoryTest   Category = "test"
	CategoryConfig Category = "config"
	CategoryDocs   Category = "docs"
	CategoryBuild  Category = "build"
	CategoryData   Category = "data"
	CategoryOther  Category = "other"

	// CategoryGit marks observations that come from the git poller
	// rather than the filesystem watcher.
	CategoryGit Category = "git"
)

type categoryRule struct {
	category Category
	patterns []string
}

// Ordered: first match wins, so tests are checked before source.
var categoryRules = []categoryRule{
	{CategoryTest, []string{
		"**/*_test.go",
		"**/*.test.js", "**/*.test.ts", "**/*.test.jsx", "**/*.test.tsx",
		"**/*.spec.js", "**/*.spec.ts",
		"**/test_*.py", "**/*_test.py",
		"tests/**", "test/**", "spec/**",
	}},
	{CategoryBuild, []string{
		"Makefile", "**/Makefile", "Dockerfile", "**/Dockerfile",
		"docker-compose.yml", "docker-compose.yaml",
		"go.mod", "go.sum",
		"package.json", "package-lock.json", "yarn.lock", "pnpm-lock.yaml",
		"Cargo.toml", "Cargo.lock",
		"pyproject.toml", "setup.py", "requirements.txt",
		"**/*.mk", ".github/workflows/**",
	}},
	{CategoryConfig, []string{
		"**/*.yaml", "**/*.yml", "**/*.toml", "**/*.ini", "**/*.env",
		"**/*.conf", "**/.*rc", "**/*.json",
	}},
	{CategoryDocs, []string{
		"**/*.md", "**/*.rst", "**/*.txt", "docs/**", "LICENSE", "NOTICE",
	}},
	{CategorySource, []string{
		"**/*.go", "**/*.py", "**/*.js", "**/*.ts", "**/*.jsx", "**/*.tsx",
		"**/*.rs", "**/*.java", "**/*.c", "**/*.h", "**/*.cpp", "**/*.hpp",
		"**/*.rb", "**/*.sh", "**/*.sql", "**/*.proto",
	}},
	{CategoryData, []string{
		"**/*.csv", "**/*.tsv", "**/*.parquet", "**/*.db", "**/*.sqlite",
		"**/*.jsonl", "**/*.ndjson",
	}},
}

// Categorize classifies a workspace-relative path. Paths matching no rule
// fall through to CategoryOther.
func Categorize(path string) Category {
	for _, rule := range categoryRules {
		if globs.MatchAny(rule.patterns, path) {
			return rule.category
		}
	}
	return CategoryOther
}
