// File: internal/reporting/markdown_reporter.go
package reporting

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/stitchcd/stitch/api/schemas"
	"github.com/stitchcd/stitch/internal/observability"
)

// CommentMarker tags the rendered markdown so the PR notifier can find and
// update its own comment on re-runs instead of posting duplicates.
const CommentMarker = "<!-- stitch-report -->"

// severityOrder fixes the group ordering in the rendered report.
var severityOrder = []schemas.Severity{
	schemas.SeverityCritical,
	schemas.SeverityBug,
	schemas.SeverityWarning,
	schemas.SeverityInfo,
	schemas.SeverityStyle,
}

// MarkdownReporter renders a PR-comment-friendly markdown report. It is
// thread safe.
type MarkdownReporter struct {
	writer  io.WriteCloser
	version string
	logger  *zap.Logger

	mu  sync.Mutex
	buf strings.Builder
}

// NewMarkdownReporter creates a reporter that renders GitHub-flavored
// markdown. The reporter takes ownership of the writer.
func NewMarkdownReporter(writer io.WriteCloser, toolVersion string) *MarkdownReporter {
	return &MarkdownReporter{
		writer:  writer,
		version: toolVersion,
		logger:  observability.GetLogger().Named("markdown_reporter"),
	}
}

// Write renders the envelope into the internal buffer. A run produces one
// envelope; writing again replaces the previous rendering.
func (r *MarkdownReporter) Write(envelope *schemas.ReportEnvelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf.Reset()
	b := &r.buf

	fmt.Fprintf(b, "%s\n## Stitch Code Review\n\n", CommentMarker)

	if envelope.Review != nil {
		fmt.Fprintf(b, "**Risk:** %s **%s**", riskIcon(envelope.Review.RiskLevel), envelope.Review.RiskLevel)
	} else {
		fmt.Fprintf(b, "**Risk:** %s **unknown**", ":white_circle:")
	}
	if envelope.Run.BaseRevision != "" || envelope.Run.HeadRevision != "" {
		fmt.Fprintf(b, " | `%s...%s`", shortRev(envelope.Run.BaseRevision), shortRev(envelope.Run.HeadRevision))
	}
	if envelope.Run.RunID != "" {
		fmt.Fprintf(b, " | run `%s`", envelope.Run.RunID)
	}
	b.WriteString("\n\n")

	if envelope.Review != nil && envelope.Review.Summary != "" {
		fmt.Fprintf(b, "%s\n\n", envelope.Review.Summary)
	}

	r.renderFindings(b, envelope)
	r.renderFixes(b, envelope)
	r.renderSkips(b, envelope)

	fmt.Fprintf(b, "*Generated by stitch %s*\n", r.version)
	return nil
}

func (r *MarkdownReporter) renderFindings(b *strings.Builder, envelope *schemas.ReportEnvelope) {
	var findings []schemas.Finding
	if envelope.Review != nil {
		findings = envelope.Review.Findings
	}

	counts := make(map[schemas.Severity]int)
	for _, f := range findings {
		counts[f.Severity]++
	}

	b.WriteString("| Severity | Count |\n")
	b.WriteString("|----------|-------|\n")
	for _, sev := range severityOrder {
		fmt.Fprintf(b, "| %s | %d |\n", sev, counts[sev])
	}
	fmt.Fprintf(b, "| **Total** | **%d** |\n\n", len(findings))

	if len(findings) == 0 {
		b.WriteString("No issues found. :white_check_mark:\n\n")
		return
	}

	// Findings stay in document order within each group: order is
	// significant, fix slots refer to it.
	for _, sev := range severityOrder {
		if counts[sev] == 0 {
			continue
		}
		fmt.Fprintf(b, "<details>\n<summary>%s %s (%d)</summary>\n\n", severityIcon(sev), sev, counts[sev])
		for _, f := range findings {
			if f.Severity != sev {
				continue
			}
			if f.Line > 0 {
				fmt.Fprintf(b, "### `%s:%d`\n\n", f.File, f.Line)
			} else {
				fmt.Fprintf(b, "### `%s`\n\n", f.File)
			}
			fmt.Fprintf(b, "%s\n\n", f.Issue)
			if f.Suggestion != "" {
				b.WriteString("**Suggestion:**\n\n")
				fmt.Fprintf(b, "> %s\n\n", strings.ReplaceAll(f.Suggestion, "\n", "\n> "))
			}
			b.WriteString("---\n\n")
		}
		b.WriteString("</details>\n\n")
	}
}

func (r *MarkdownReporter) renderFixes(b *strings.Builder, envelope *schemas.ReportEnvelope) {
	if len(envelope.Fixes) == 0 {
		return
	}
	fmt.Fprintf(b, "## Proposed Fixes (%d)\n\n", len(envelope.Fixes))
	for _, fix := range envelope.Fixes {
		fmt.Fprintf(b, "### `%s`\n\n", fix.File)
		if fix.Explanation != "" {
			fmt.Fprintf(b, "%s\n\n", fix.Explanation)
		}
		fmt.Fprintf(b, "```diff\n%s", fix.Diff)
		if !strings.HasSuffix(fix.Diff, "\n") {
			b.WriteString("\n")
		}
		b.WriteString("```\n\n")
	}
}

func (r *MarkdownReporter) renderSkips(b *strings.Builder, envelope *schemas.ReportEnvelope) {
	if len(envelope.Summary.Skips) == 0 {
		return
	}
	fmt.Fprintf(b, "## Skipped Fixes (%d)\n\n", len(envelope.Summary.Skips))
	b.WriteString("| Slot | File | Stage | Reason |\n")
	b.WriteString("|-----:|------|-------|--------|\n")
	for _, skip := range envelope.Summary.Skips {
		fmt.Fprintf(b, "| %d | `%s` | %s | %s |\n", skip.Slot, skip.File, skip.Stage, skip.Reason)
	}
	b.WriteString("\n")
}

// Close flushes the rendered report and closes the writer.
func (r *MarkdownReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, writeErr := io.WriteString(r.writer, r.buf.String())
	closeErr := r.writer.Close()

	if writeErr != nil {
		r.logger.Error("Failed to write markdown report", zap.Error(writeErr))
		return fmt.Errorf("failed to write markdown report: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	r.logger.Debug("Markdown report written", zap.Int("bytes", r.buf.Len()))
	return nil
}

func riskIcon(level schemas.RiskLevel) string {
	switch level {
	case schemas.RiskCritical:
		return ":red_circle:"
	case schemas.RiskHigh:
		return ":orange_circle:"
	case schemas.RiskMedium:
		return ":yellow_circle:"
	case schemas.RiskLow:
		return ":green_circle:"
	default:
		return ":white_circle:"
	}
}

func severityIcon(sev schemas.Severity) string {
	switch sev {
	case schemas.SeverityCritical:
		return ":red_circle:"
	case schemas.SeverityBug:
		return ":orange_circle:"
	case schemas.SeverityWarning:
		return ":yellow_circle:"
	case schemas.SeverityInfo:
		return ":blue_circle:"
	default:
		return ":white_circle:"
	}
}

// shortRev abbreviates a 40-char git SHA for display; refs pass through.
func shortRev(rev string) string {
	if len(rev) == 40 {
		return rev[:10]
	}
	return rev
}
