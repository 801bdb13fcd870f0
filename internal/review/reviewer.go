// File: internal/review/reviewer.go
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/stitchcd/stitch/api/schemas"
	"github.com/stitchcd/stitch/internal/config"
	"github.com/stitchcd/stitch/internal/llmclient"
	"github.com/stitchcd/stitch/internal/llmutil"
	"github.com/stitchcd/stitch/internal/secrets"
)

// reviewMaxRetries bounds transport-level retries per model call: one
// initial attempt plus this many retries on retryable failures.
const reviewMaxRetries = 2

// rawDocument mirrors the JSON object the model is instructed to emit.
// Severity and risk level arrive as free-form strings and are normalized
// before anything downstream sees them.
type rawDocument struct {
	Summary   string       `json:"summary"`
	RiskLevel string       `json:"risk_level"`
	Findings  []rawFinding `json:"findings"`
}

type rawFinding struct {
	Severity   string `json:"severity"`
	File       string `json:"file"`
	Line       int    `json:"line"`
	Issue      string `json:"issue"`
	Suggestion string `json:"suggestion"`
}

// Reviewer turns a unified diff into a normalized review document with a
// single model call, retried on transient transport failures and repaired
// once when the response is not valid JSON.
type Reviewer struct {
	client      schemas.LLMClient
	maxFindings int
	logger      *zap.Logger
}

// NewReviewer wires the shared LLM client with the review tuning knobs.
func NewReviewer(client schemas.LLMClient, cfg config.ReviewConfig, logger *zap.Logger) *Reviewer {
	return &Reviewer{
		client:      client,
		maxFindings: cfg.MaxFindings,
		logger:      logger.Named("review"),
	}
}

// Review redacts the diff, asks the model for a structured review, and
// normalizes the result. An empty diff short-circuits to a clean document
// without spending a model call.
func (r *Reviewer) Review(ctx context.Context, diff string, files []string) (*schemas.ReviewDocument, error) {
	redacted := secrets.Redact(diff)
	if strings.TrimSpace(redacted) == "" {
		r.logger.Info("Diff is empty, skipping the model call")
		return &schemas.ReviewDocument{
			Summary:   "No changes to review.",
			RiskLevel: schemas.RiskLow,
			Findings:  []schemas.Finding{},
		}, nil
	}

	start := time.Now()
	content, err := r.generate(ctx, buildReviewRequest(redacted, files, r.maxFindings))
	if err != nil {
		return nil, fmt.Errorf("review request failed: %w", err)
	}

	raw, err := parseReview(content)
	if err != nil {
		r.logger.Warn("Review response is not parseable, attempting one repair pass", zap.Error(err))
		repaired, repairErr := r.generate(ctx, buildRepairRequest(err, content))
		if repairErr != nil {
			return nil, fmt.Errorf("review repair request failed: %w", repairErr)
		}
		raw, err = parseReview(repaired)
		if err != nil {
			return nil, fmt.Errorf("review response validation failed after repair: %w", err)
		}
	}

	doc := r.normalize(raw)
	r.logger.Info("Review complete",
		zap.Duration("duration", time.Since(start)),
		zap.Int("findings", len(doc.Findings)),
		zap.String("risk_level", string(doc.RiskLevel)),
	)
	return doc, nil
}

// generate performs one model call with exponential backoff on retryable
// failures. 4xx API errors and context expiry are permanent.
func (r *Reviewer) generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	op := func() (string, error) {
		content, err := r.client.Generate(ctx, req)
		if err == nil {
			return content, nil
		}
		var apiErr *llmclient.APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return "", backoff.Permanent(err)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", backoff.Permanent(err)
		}
		r.logger.Warn("Review request failed, backing off", zap.Error(err))
		return "", err
	}
	return backoff.RetryWithData(op, backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), reviewMaxRetries), ctx))
}

func parseReview(content string) (*rawDocument, error) {
	return llmutil.ParseJSONResponse[rawDocument](content)
}

// normalize turns the raw model output into a document the rest of the
// pipeline can trust: empty file paths dropped, severities coerced onto the
// known scale, the finding list clamped, and the risk level derived from
// the findings when the model omits or garbles it.
func (r *Reviewer) normalize(raw *rawDocument) *schemas.ReviewDocument {
	doc := &schemas.ReviewDocument{
		Summary:  strings.TrimSpace(raw.Summary),
		Findings: []schemas.Finding{},
	}
	if doc.Summary == "" {
		doc.Summary = "Automated review completed."
	}

	dropped := 0
	coerced := 0
	for _, rf := range raw.Findings {
		file := strings.TrimSpace(rf.File)
		if file == "" {
			dropped++
			continue
		}
		severity, known := schemas.ParseSeverity(rf.Severity)
		if !known {
			coerced++
		}
		line := rf.Line
		if line < 0 {
			line = 0
		}
		doc.Findings = append(doc.Findings, schemas.Finding{
			Severity:   severity,
			File:       file,
			Line:       line,
			Issue:      strings.TrimSpace(rf.Issue),
			Suggestion: strings.TrimSpace(rf.Suggestion),
		})
	}

	if r.maxFindings > 0 && len(doc.Findings) > r.maxFindings {
		r.logger.Warn("Reviewer exceeded review.max_findings, clamping",
			zap.Int("returned", len(doc.Findings)),
			zap.Int("max", r.maxFindings),
		)
		doc.Findings = doc.Findings[:r.maxFindings]
	}

	if risk, known := schemas.ParseRiskLevel(raw.RiskLevel); known {
		doc.RiskLevel = risk
	} else {
		doc.RiskLevel = doc.DeriveRiskLevel()
		r.logger.Debug("Risk level missing or unknown, derived from findings",
			zap.String("reported", raw.RiskLevel),
			zap.String("derived", string(doc.RiskLevel)),
		)
	}

	if dropped > 0 || coerced > 0 {
		r.logger.Warn("Normalized reviewer output",
			zap.Int("dropped_empty_file", dropped),
			zap.Int("coerced_severity", coerced),
		)
	}
	return doc
}

// riskRank orders risk levels for merge-time escalation.
func riskRank(level schemas.RiskLevel) int {
	switch level {
	case schemas.RiskCritical:
		return 4
	case schemas.RiskHigh:
		return 3
	case schemas.RiskMedium:
		return 2
	case schemas.RiskLow:
		return 1
	default:
		return 0
	}
}

// MergeSecretFindings prepends deterministic secret-scan findings to the
// reviewer's document and escalates the risk level if the merged findings
// warrant it. Scan findings sit ahead of model findings so they are first
// in line for fix budget, and they are never clamped away.
func MergeSecretFindings(doc *schemas.ReviewDocument, found []schemas.Finding) *schemas.ReviewDocument {
	if len(found) == 0 {
		return doc
	}
	doc.Findings = append(append([]schemas.Finding{}, found...), doc.Findings...)
	if derived := doc.DeriveRiskLevel(); riskRank(derived) > riskRank(doc.RiskLevel) {
		doc.RiskLevel = derived
	}
	return doc
}
