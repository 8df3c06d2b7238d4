// Package globs implements the doublestar-style pattern matching used by
// ignore lists, the path categorizer, and action template triggers.
//
// Supported syntax: `*` and `?` within a path segment (filepath.Match
// semantics), `**` as a full segment matching any number of segments
// (including zero), and a trailing `/` to match a directory prefix.
package globs

import (
	"path"
	"strings"
)

// Match reports whether name matches the pattern. Both are slash-separated
// relative paths; backslashes in name are normalized.
func Match(pattern, name string) bool {
	if pattern == "" {
		return false
	}
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")

	// "dir/" matches everything under dir.
	if strings.HasSuffix(pattern, "/") {
		prefix := strings.TrimSuffix(pattern, "/")
		return name == prefix || strings.HasPrefix(name, prefix+"/")
	}

	return matchSegments(strings.Split(pattern, "/"), strings.Split(name, "/"))
}

// MatchAny reports whether name matches any of the patterns.
func MatchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if Match(p, name) {
			return true
		}
	}
	return false
}

// matchSegments matches pattern segments against name segments,
// treating "**" as zero or more segments.
func matchSegments(pattern, name []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			// Collapse consecutive ** segments.
			for len(pattern) > 0 && pattern[0] == "**" {
				pattern = pattern[1:]
			}
			if len(pattern) == 0 {
				return true
			}
			// Try every suffix of name against the rest of the pattern.
			for i := 0; i <= len(name); i++ {
				if matchSegments(pattern, name[i:]) {
					return true
				}
			}
			return false
		}

		if len(name) == 0 {
			return false
		}

		ok, err := path.Match(pattern[0], name[0])
		if err != nil || !ok {
			return false
		}
		pattern = pattern[1:]
		name = name[1:]
	}
	return len(name) == 0
}
