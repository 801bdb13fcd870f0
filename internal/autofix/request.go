// File: internal/autofix/request.go
package autofix

import (
	"fmt"

	"github.com/stitchcd/stitch/api/schemas"
)

const fixSystemPrompt = `You are a senior software engineer producing minimal, correct fixes for code review findings. Change only what the finding requires, preserve the surrounding style and formatting, and return the complete corrected file. Adhere strictly to the required JSON response format.`

// buildFixRequest constructs the generation request for one validated task.
// Temperature is pinned low: fixes need precision, not creativity.
func buildFixRequest(task schemas.ValidatedTask) schemas.GenerationRequest {
	suggestion := task.Finding.Suggestion
	if suggestion == "" {
		suggestion = "(none provided)"
	}

	prompt := fmt.Sprintf(`Fix the following code review finding.

**Finding (%s):**
%s

**Suggested remediation:**
%s

**Source File (%s):**
`+"```"+`
%s
`+"```"+`

**Response Format (Strict JSON):**
{
  "fixed_code": "The complete corrected file content.",
  "explanation": "What was wrong and how the fix addresses it.",
  "diff_description": "One line summarizing the change."
}

Return the ENTIRE corrected file in "fixed_code", not a fragment. If the file is already correct, return its content unchanged.`,
		task.Finding.Severity,
		task.Finding.Issue,
		suggestion,
		task.Finding.File,
		task.OriginalContent,
	)

	return schemas.GenerationRequest{
		SystemPrompt: fixSystemPrompt,
		UserPrompt:   prompt,
		Options: schemas.GenerationOptions{
			ForceJSONFormat: true,
			Temperature:     0.1,
		},
	}
}
