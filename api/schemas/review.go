package schemas

import (
	"strings"
	"time"
)

// -- Review Schemas --

// Severity classifies a single review finding. The values are uppercase to
// match the wire format the reviewer model is instructed to emit.
type Severity string

// Constants defining the standard severity levels for findings.
const (
	SeverityCritical Severity = "CRITICAL" // Exploitable or data-corrupting defect.
	SeverityBug      Severity = "BUG"      // Incorrect behavior under realistic inputs.
	SeverityWarning  Severity = "WARNING"  // Risky pattern that is not yet a defect.
	SeverityInfo     Severity = "INFO"     // Observation with no action required.
	SeverityStyle    Severity = "STYLE"    // Formatting or naming nit.
)

// ParseSeverity normalizes a model-emitted severity string. Unknown values
// map to SeverityWarning so a sloppy model cannot invent a new level, and the
// second return reports whether the input was recognized.
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(strings.ToUpper(strings.TrimSpace(s))) {
	case SeverityCritical:
		return SeverityCritical, true
	case SeverityBug:
		return SeverityBug, true
	case SeverityWarning:
		return SeverityWarning, true
	case SeverityInfo:
		return SeverityInfo, true
	case SeverityStyle:
		return SeverityStyle, true
	default:
		return SeverityWarning, false
	}
}

// FixEligible reports whether findings of this severity qualify for
// automated fix generation. Only the two defect classes do; advisory
// severities never spend fix budget.
func (s Severity) FixEligible() bool {
	return s == SeverityCritical || s == SeverityBug
}

// rank orders severities from most to least severe for risk derivation.
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityBug:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// RiskLevel is the reviewer's overall judgement of the change under review.
type RiskLevel string

// Constants defining the overall risk levels a review can carry.
const (
	RiskCritical RiskLevel = "CRITICAL"
	RiskHigh     RiskLevel = "HIGH"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskLow      RiskLevel = "LOW"
)

// ParseRiskLevel normalizes a model-emitted risk level. Unknown values map
// to RiskMedium, and the second return reports whether the input was
// recognized.
func ParseRiskLevel(s string) (RiskLevel, bool) {
	switch RiskLevel(strings.ToUpper(strings.TrimSpace(s))) {
	case RiskCritical:
		return RiskCritical, true
	case RiskHigh:
		return RiskHigh, true
	case RiskMedium:
		return RiskMedium, true
	case RiskLow:
		return RiskLow, true
	default:
		return RiskMedium, false
	}
}

// Finding is a single issue the reviewer reported against the change. File
// paths are relative to the repository root exactly as they appear in the
// diff; Line is best-effort and advisory only (reports and SARIF use it,
// fix generation never slices file content by it).
type Finding struct {
	Severity   Severity `json:"severity"`   // Classification of the issue.
	File       string   `json:"file"`       // Repo-relative path of the affected file.
	Line       int      `json:"line"`       // Approximate line number, 0 when unknown.
	Issue      string   `json:"issue"`      // Description of what is wrong.
	Suggestion string   `json:"suggestion"` // Reviewer's remediation hint.
}

// ReviewDocument is the structured output of a review run: an overall
// summary and risk level plus the ordered list of findings. Finding order is
// significant; fix generation selects candidates in document order.
type ReviewDocument struct {
	Summary   string    `json:"summary"`    // One-paragraph review summary.
	RiskLevel RiskLevel `json:"risk_level"` // Overall risk of the change.
	Findings  []Finding `json:"findings"`   // Ordered findings, most significant first by convention.
}

// MaxSeverity returns the highest severity present among the findings, or
// SeverityInfo for an empty document.
func (d *ReviewDocument) MaxSeverity() Severity {
	max := SeverityInfo
	for _, f := range d.Findings {
		if f.Severity.rank() > max.rank() {
			max = f.Severity
		}
	}
	return max
}

// DeriveRiskLevel maps the document's maximum severity to a risk level. Used
// when the model omits or garbles risk_level.
func (d *ReviewDocument) DeriveRiskLevel() RiskLevel {
	switch d.MaxSeverity() {
	case SeverityCritical:
		return RiskCritical
	case SeverityBug:
		return RiskHigh
	case SeverityWarning:
		return RiskMedium
	default:
		return RiskLow
	}
}

// -- Run Metadata Schemas --

// RunInfo identifies a single pipeline execution for artifacts and reports.
type RunInfo struct {
	RunID        string    `json:"run_id"`               // UUID for this pipeline run.
	Repository   string    `json:"repository,omitempty"` // owner/name when running in CI.
	BaseRevision string    `json:"base_revision"`        // Base ref the diff was taken against.
	HeadRevision string    `json:"head_revision"`        // Reviewed revision.
	StartedAt    time.Time `json:"started_at"`           // Wall-clock start of the run.
	CompletedAt  time.Time `json:"completed_at"`         // Wall-clock end of the run.
}

// RunRecord is the run metadata artifact: identity plus fix-stage
// accounting. It is persisted alongside the review document and fix set so
// reports can be re-rendered after the run.
type RunRecord struct {
	Run     RunInfo    `json:"run"`
	Summary FixSummary `json:"fix_summary"`
}

// ReportEnvelope aggregates everything a reporter needs to render one run:
// identity, the review document, the generated fixes, and the fix-stage
// accounting.
type ReportEnvelope struct {
	Run     RunInfo         `json:"run"`
	Review  *ReviewDocument `json:"review,omitempty"`
	Fixes   []FixResult     `json:"fixes"`
	Summary FixSummary      `json:"fix_summary"`
}
