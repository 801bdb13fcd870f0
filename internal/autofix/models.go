// File: internal/autofix/models.go
package autofix

import (
	"github.com/stitchcd/stitch/api/schemas"
)

// HardMaxFixes is the ceiling on fixes per run. Configured values above it
// clamp; each fix costs one model request, so the cap bounds spend even
// when the configuration is generous.
const HardMaxFixes = 10

// fixPayload is the JSON document the model must return for a fix request.
// fixed_code carries the complete corrected file, never a fragment.
type fixPayload struct {
	FixedCode       string `json:"fixed_code"`
	Explanation     string `json:"explanation"`
	DiffDescription string `json:"diff_description"`
}

// dispatchOutcome records the terminal state of one fix request. Exactly one
// of content and err is meaningful; outcomes are positionally aligned with
// the validated task list.
type dispatchOutcome struct {
	content string
	err     error
}

// ValidationResult is the output of the validation phase.
type ValidationResult struct {
	// Tasks are the findings that passed validation, slots strictly increasing.
	Tasks []schemas.ValidatedTask
	// Skips records candidates rejected during validation.
	Skips []schemas.FixSkip
	// Eligible counts all CRITICAL and BUG findings in the document.
	Eligible int
	// Selected counts the eligible findings that fit under the fix budget.
	Selected int
}
