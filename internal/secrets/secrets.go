// File: internal/secrets/secrets.go
package secrets

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/stitchcd/stitch/api/schemas"
)

// pattern pairs a secret kind with its detection regex. The kind shows up
// in redaction placeholders and finding text, so keep the names stable.
type pattern struct {
	kind string
	re   *regexp.Regexp
}

// Ordering matters: sk-ant- must match before the broader sk- pattern.
var patterns = []pattern{
	{"aws_access_key_id", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{"aws_secret_access_key", regexp.MustCompile(`(?i)(aws[_-]?secret[_-]?access[_-]?key)\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})["']?`)},
	{"private_key", regexp.MustCompile(`-----BEGIN\s+(RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE KEY-----`)},
	{"github_token", regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`)},
	{"slack_token", regexp.MustCompile(`xox[bporas]-[A-Za-z0-9-]{10,}`)},
	{"jwt", regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`)},
	{"anthropic_api_key", regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`)},
	{"openai_api_key", regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`)},
	{"bearer_token", regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]{20,}`)},
	{"api_key_assignment", regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret)\s*[:=]\s*["']?([A-Za-z0-9/+=_-]{20,})["']?`)},
	{"generic_secret", regexp.MustCompile(`(?i)(secret|token|password|passwd|credential)\s*[:=]\s*["']([^"']{8,})["']`)},
	{"hex_secret", regexp.MustCompile(`(?i)(key|secret|token)\s*[:=]\s*["']?[0-9a-f]{32,}["']?`)},
}

// hunkHeaderRe captures the new-file start line from "@@ -a,b +c,d @@".
var hunkHeaderRe = regexp.MustCompile(`^@@ -\d+(?:,\d+)? \+(\d+)(?:,\d+)? @@`)

// Redact replaces detected secrets with a kind-tagged placeholder. Run it on
// any diff before the text leaves the process.
func Redact(text string) string {
	result := text
	for _, p := range patterns {
		result = p.re.ReplaceAllString(result, "[REDACTED:"+p.kind+"]")
	}
	return result
}

// Scan walks the added lines of a unified diff and reports a CRITICAL
// finding per line that carries a secret. File and line are taken from the
// diff headers, so they are best-effort on truncated input.
func Scan(diff string) []schemas.Finding {
	var findings []schemas.Finding
	var file string
	line := 0

	for _, raw := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(raw, "+++ b/"):
			file = strings.TrimPrefix(raw, "+++ b/")
		case strings.HasPrefix(raw, "+++ "):
			file = strings.TrimPrefix(raw, "+++ ")
		case strings.HasPrefix(raw, "@@"):
			if m := hunkHeaderRe.FindStringSubmatch(raw); m != nil {
				line, _ = strconv.Atoi(m[1])
			}
		case strings.HasPrefix(raw, "+"):
			if kind, ok := classify(raw[1:]); ok {
				findings = append(findings, schemas.Finding{
					Severity:   schemas.SeverityCritical,
					File:       file,
					Line:       line,
					Issue:      fmt.Sprintf("Possible %s committed in this change", kind),
					Suggestion: "Remove the credential from the code, rotate it, and load it from the environment or a secret manager.",
				})
			}
			line++
		case strings.HasPrefix(raw, "-"):
			// Removed line: the new-file line counter does not advance.
		default:
			line++
		}
	}
	return findings
}

// classify returns the kind of the first pattern matching the line.
func classify(content string) (string, bool) {
	for _, p := range patterns {
		if p.re.MatchString(content) {
			return p.kind, true
		}
	}
	return "", false
}
