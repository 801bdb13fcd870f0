// internal/diffutil/diffutil.go
package diffutil

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Unified computes a unified diff between two versions of a file, entirely in
// memory. The labels follow git convention (a/<path>, b/<path>) with three
// context lines. An empty return means the contents are identical.
func Unified(path, original, updated string) (string, error) {
	if original == updated {
		return "", nil
	}
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(original),
		B:        difflib.SplitLines(updated),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("failed to compute unified diff for %s: %w", path, err)
	}
	return text, nil
}

// StripHeader removes the ---/+++ file header lines from a unified diff,
// leaving only the @@ hunks and their bodies. Callers embed the result in
// review comments where the surrounding context already names the file.
// Only lines before the first hunk are considered; a removed line whose
// content happens to start with dashes must survive.
func StripHeader(diff string) string {
	if diff == "" {
		return ""
	}
	lines := strings.SplitAfter(diff, "\n")
	var b strings.Builder
	b.Grow(len(diff))
	inHunks := false
	for _, line := range lines {
		if !inHunks {
			if strings.HasPrefix(line, "@@") {
				inHunks = true
			} else if strings.HasPrefix(line, "--- ") || strings.HasPrefix(line, "+++ ") {
				continue
			}
		}
		b.WriteString(line)
	}
	return b.String()
}

// Hunks is a convenience wrapper that computes the unified diff and strips
// the header in one step.
func Hunks(path, original, updated string) (string, error) {
	text, err := Unified(path, original, updated)
	if err != nil {
		return "", err
	}
	return StripHeader(text), nil
}
