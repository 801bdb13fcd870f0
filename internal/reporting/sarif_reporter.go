// File: internal/reporting/sarif_reporter.go
package reporting

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/owenrumney/go-sarif/v2/sarif"
	"go.uber.org/zap"

	"github.com/stitchcd/stitch/api/schemas"
	"github.com/stitchcd/stitch/internal/observability"
)

// Constants for tool identification in the SARIF report.
const (
	ToolName    = "stitch"
	ToolInfoURI = "https://github.com/stitchcd/stitch"
)

// SARIFReporter implements the Reporter interface for the SARIF 2.1.0
// format. It is thread safe.
type SARIFReporter struct {
	writer io.WriteCloser
	logger *zap.Logger

	// mu protects the report structures and the rule map.
	mu     sync.Mutex
	report *sarif.Report
	run    *sarif.Run
	// rules tracks which per-severity rule definitions have been registered.
	rules map[schemas.Severity]string
}

// NewSARIFReporter creates a reporter that writes SARIF 2.1.0 output. The
// reporter takes ownership of the writer.
func NewSARIFReporter(writer io.WriteCloser, toolVersion string) (*SARIFReporter, error) {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SARIF report: %w", err)
	}

	run := sarif.NewRunWithInformationURI(ToolName, ToolInfoURI)
	if toolVersion != "" {
		run.Tool.Driver.Version = &toolVersion
	}

	return &SARIFReporter{
		writer: writer,
		logger: observability.GetLogger().Named("sarif_reporter"),
		report: report,
		run:    run,
		rules:  make(map[schemas.Severity]string),
	}, nil
}

// Write converts the envelope's review findings into SARIF results.
func (r *SARIFReporter) Write(envelope *schemas.ReportEnvelope) error {
	startTime := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if envelope.Review == nil {
		return nil
	}

	findingsCount := 0
	for _, finding := range envelope.Review.Findings {
		ruleID := r.ensureRule(finding.Severity)

		messageText := finding.Issue
		if finding.Suggestion != "" {
			messageText += "\n\nSuggested remediation: " + finding.Suggestion
		}

		physical := sarif.NewPhysicalLocation().
			WithArtifactLocation(sarif.NewSimpleArtifactLocation(finding.File))
		if finding.Line > 0 {
			physical = physical.WithRegion(sarif.NewSimpleRegion(finding.Line, finding.Line))
		}

		r.run.CreateResultForRule(ruleID).
			WithLevel(mapSeverityToSARIFLevel(finding.Severity)).
			WithMessage(sarif.NewTextMessage(messageText)).
			AddLocation(sarif.NewLocationWithPhysicalLocation(physical))
		findingsCount++
	}

	if findingsCount > 0 {
		r.logger.Debug("Wrote findings to SARIF buffer",
			zap.Int("findings_count", findingsCount),
			zap.Duration("duration_ms", time.Since(startTime)),
		)
	}
	return nil
}

// Close finalizes the SARIF log and writes it to the output writer.
func (r *SARIFReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Info("Finalizing SARIF report",
		zap.Int("total_results", len(r.run.Results)),
		zap.Int("total_rules", len(r.rules)),
	)

	r.report.AddRun(r.run)
	encodeErr := r.report.PrettyWrite(r.writer)
	// Always attempt to close the writer, regardless of encoding success.
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to encode SARIF log to JSON", zap.Error(encodeErr))
		return fmt.Errorf("failed to encode SARIF output: %w", encodeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}

// ensureRule registers the per-severity rule definition on first use and
// returns its ID. Must be called while holding the mutex.
func (r *SARIFReporter) ensureRule(severity schemas.Severity) string {
	if ruleID, exists := r.rules[severity]; exists {
		return ruleID
	}

	ruleID := "STITCH-" + string(severity)
	pb := sarif.NewPropertyBag()
	pb.Add("tags", []string{"code-review", "stitch"})

	r.run.AddRule(ruleID).
		WithDescription(ruleDescription(severity)).
		WithHelpURI(ToolInfoURI).
		WithProperties(pb.Properties)

	r.rules[severity] = ruleID
	r.logger.Debug("Registered SARIF rule definition", zap.String("rule_id", ruleID))
	return ruleID
}

// ruleDescription documents each severity class for SARIF consumers.
func ruleDescription(severity schemas.Severity) string {
	switch severity {
	case schemas.SeverityCritical:
		return "Exploitable or data-corrupting defect found by automated review."
	case schemas.SeverityBug:
		return "Incorrect behavior under realistic inputs found by automated review."
	case schemas.SeverityWarning:
		return "Risky pattern that is not yet a defect."
	case schemas.SeverityInfo:
		return "Reviewer observation with no action required."
	default:
		return "Formatting or naming issue."
	}
}

// mapSeverityToSARIFLevel converts review severities to the SARIF standard.
func mapSeverityToSARIFLevel(severity schemas.Severity) string {
	switch severity {
	case schemas.SeverityCritical, schemas.SeverityBug:
		return "error"
	case schemas.SeverityWarning:
		return "warning"
	default:
		return "note"
	}
}
