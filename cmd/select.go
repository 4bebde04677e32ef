package cmd

import (
	"fmt"
	"slices"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/conneroisu/livecode/internal/lesson"
)

// validatePatterns rejects malformed lesson name patterns.
func validatePatterns(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid lesson pattern %q", p)
		}
	}
	return nil
}

// matchesAny reports whether name matches one of patterns. No patterns
// match everything.
func matchesAny(patterns []string, name string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

// selectLessons keeps the modules matching patterns and returns the
// patterns no module or load failure matched.
func selectLessons(store *lesson.Store, patterns []string) ([]*lesson.Module, []string) {
	var selected []*lesson.Module
	for _, mod := range store.List() {
		if matchesAny(patterns, mod.Name) {
			selected = append(selected, mod)
		}
	}

	names := make([]string, 0, len(selected))
	for _, mod := range store.List() {
		names = append(names, mod.Name)
	}
	for name := range store.Failures() {
		names = append(names, name)
	}

	var unmatched []string
	for _, p := range patterns {
		if !slices.ContainsFunc(names, func(name string) bool { return matchesAny([]string{p}, name) }) {
			unmatched = append(unmatched, p)
		}
	}
	return selected, unmatched
}
