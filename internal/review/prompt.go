// File: internal/review/prompt.go
package review

import (
	"fmt"
	"strings"

	"github.com/stitchcd/stitch/api/schemas"
)

const reviewSystemPrompt = `You are a strict, senior code reviewer for an automated CI pipeline. You review unified diffs and report findings as structured JSON.

Rules:
1. Only review the changes shown in the diff. Do not comment on unchanged code.
2. Focus on real defects: security vulnerabilities, data loss or corruption, incorrect behavior, concurrency hazards. Raise style only when it hides a defect.
3. Every finding must name the affected file exactly as it appears in the diff and include a concrete, actionable suggestion.
4. Severity scale: CRITICAL (exploitable or data-corrupting), BUG (incorrect behavior under realistic inputs), WARNING (risky pattern), INFO (observation), STYLE (cosmetic).
5. Order findings most significant first.

You MUST respond with ONLY one JSON object matching the required schema. No markdown, no preamble.`

// buildReviewRequest assembles the review prompt from the redacted diff and
// the changed-file list. The response schema is spelled out verbatim so the
// parser has a fighting chance even with weaker models.
func buildReviewRequest(diff string, files []string, maxFindings int) schemas.GenerationRequest {
	var b strings.Builder

	b.WriteString("Review the following change.\n\n")

	if len(files) > 0 {
		b.WriteString("**Changed Files:**\n")
		for _, f := range files {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		b.WriteString("\n")
	}

	b.WriteString("**Unified Diff:**\n```diff\n")
	b.WriteString(diff)
	if !strings.HasSuffix(diff, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("```\n\n")

	b.WriteString("**Response Format (Strict JSON):**\n")
	b.WriteString(`{
  "summary": "One-paragraph summary of the change and its risks.",
  "risk_level": "CRITICAL|HIGH|MEDIUM|LOW",
  "findings": [
    {
      "severity": "CRITICAL|BUG|WARNING|INFO|STYLE",
      "file": "relative/path/from/diff",
      "line": 123,
      "issue": "What is wrong and why it matters.",
      "suggestion": "How to fix it."
    }
  ]
}`)
	b.WriteString("\n\n")

	if maxFindings > 0 {
		fmt.Fprintf(&b, "Return at most %d findings. ", maxFindings)
	}
	b.WriteString("Report findings only against the listed changed files. If the change is clean, return an empty findings array.")

	return schemas.GenerationRequest{
		SystemPrompt: reviewSystemPrompt,
		UserPrompt:   b.String(),
		Options: schemas.GenerationOptions{
			ForceJSONFormat: true,
			Temperature:     0.1,
		},
	}
}

// buildRepairRequest asks the model to re-emit its previous answer as valid
// JSON. Content-only repair: the diff is not resent.
func buildRepairRequest(parseErr error, previous string) schemas.GenerationRequest {
	prompt := fmt.Sprintf(
		"Your previous response was not valid JSON. The parser reported: %s\n\nRe-emit the SAME review as ONE valid JSON object matching the required schema, with no surrounding prose and no markdown fences.\n\nYour previous response was:\n%s",
		parseErr.Error(), previous,
	)
	return schemas.GenerationRequest{
		SystemPrompt: reviewSystemPrompt,
		UserPrompt:   prompt,
		Options: schemas.GenerationOptions{
			ForceJSONFormat: true,
			Temperature:     0.1,
		},
	}
}
