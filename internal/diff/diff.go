// Package diff renders the unified diff printed by a dry-run update.
package diff

import (
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"
)

// DefaultContext is the number of context lines around each hunk.
const DefaultContext = 3

// Unified returns a unified diff from a to b, or "" when they are equal.
func Unified(aName, bName string, a, b []byte, context int) (string, error) {
	if string(a) == string(b) {
		return "", nil
	}
	if context <= 0 {
		context = DefaultContext
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(string(a)),
		B:        splitLines(string(b)),
		FromFile: aName,
		ToFile:   bName,
		Context:  context,
	})
}

// splitLines keeps the trailing newline on every line so hunks print
// verbatim.
func splitLines(s string) []string {
	if s == "" {
		return []string{}
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
