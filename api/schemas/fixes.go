package schemas

// -- Fix Pipeline Schemas --

// ValidatedTask is a finding that survived path validation and is ready for
// dispatch. OriginalContent is the target file's full byte content captured
// once at validation time; fix generation and diffing operate on this
// snapshot so later mutation of the working tree cannot skew results.
type ValidatedTask struct {
	// Slot is the finding's index in the original review document. It is the
	// correlation key between request and response and the sole ordering key
	// for the fix set.
	Slot            int
	Finding         Finding
	OriginalContent string
}

// FixResult is one generated fix, ready for the fix set artifact. Diff holds
// unified hunks only; the ---/+++ file header lines are stripped so callers
// can embed the text directly in review comments.
type FixResult struct {
	File            string   `json:"file"`             // Repo-relative path the fix applies to.
	Slot            int      `json:"slot"`             // Position of the originating finding.
	Severity        Severity `json:"severity"`         // Severity of the originating finding.
	Issue           string   `json:"issue"`            // The issue the fix addresses.
	Explanation     string   `json:"explanation"`      // Model's explanation of the change.
	DiffDescription string   `json:"diff_description"` // Model's one-line summary of the diff.
	Diff            string   `json:"diff"`             // Unified diff hunks, header lines stripped.
}

// SkipStage identifies where in the pipeline a finding fell out.
type SkipStage string

// Constants for the pipeline stages that can drop a finding.
const (
	SkipStageValidate SkipStage = "validate" // Path validation or content capture.
	SkipStageDispatch SkipStage = "dispatch" // Transport failure or timeout.
	SkipStageCollect  SkipStage = "collect"  // Response parsing or diffing.
)

// FixSkip records one finding that produced no fix, with enough context for
// the skipped-fixes report table.
type FixSkip struct {
	Slot   int       `json:"slot"`   // Index in the original review document.
	File   string    `json:"file"`   // Path from the finding, verbatim.
	Stage  SkipStage `json:"stage"`  // Pipeline stage that dropped it.
	Reason string    `json:"reason"` // Short machine-stable reason string.
}

// FixSummary is the fix stage's accounting for one run. Fixes + Skips always
// equals Validated; Eligible counts findings that passed the severity filter
// before the cap was applied.
type FixSummary struct {
	Eligible   int       `json:"eligible"`   // CRITICAL/BUG findings seen.
	Selected   int       `json:"selected"`   // After the max-fixes cap.
	Validated  int       `json:"validated"`  // Tasks that passed path validation.
	Dispatched int       `json:"dispatched"` // Requests actually sent.
	Failed     int       `json:"failed"`     // Requests with a transport failure.
	Fixes      int       `json:"fixes"`      // FixResults produced.
	Skips      []FixSkip `json:"skips"`      // Per-finding drop records.
}
