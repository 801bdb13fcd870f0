// File: internal/autofix/pipeline.go
package autofix

import (
	"context"
	"errors"
	"os"

	"go.uber.org/zap"

	"github.com/stitchcd/stitch/api/schemas"
	"github.com/stitchcd/stitch/internal/config"
	"github.com/stitchcd/stitch/internal/store"
)

// Pipeline runs the three fix-generation phases in strict order: validate
// every finding, dispatch every request, then collect every response. No
// request goes out before validation finishes, and no response is parsed
// before dispatch has started all of them.
type Pipeline struct {
	validator  *Validator
	dispatcher *Dispatcher
	collector  *Collector
	store      *store.Store
	outputPath string
	maxFixes   int
	logger     *zap.Logger
}

// NewPipeline loads the allow-list, clamps the fix budget, and assembles the
// phase components. Configuration problems surface here, before any request
// is sent.
func NewPipeline(cfg config.AutofixConfig, client schemas.LLMClient, st *store.Store, logger *zap.Logger) (*Pipeline, error) {
	log := logger.Named("autofix")

	maxFixes := cfg.MaxFixes
	if maxFixes > HardMaxFixes {
		log.Warn("autofix.max_fixes exceeds the hard cap, clamping",
			zap.Int("configured", maxFixes),
			zap.Int("cap", HardMaxFixes),
		)
		maxFixes = HardMaxFixes
	}

	var allowList []string
	if cfg.ChangedFiles != "" {
		var err error
		allowList, err = st.LoadAllowList(cfg.ChangedFiles)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
			log.Warn("Changed-files allow-list not found", zap.String("path", cfg.ChangedFiles))
			allowList = nil
		}
	}

	validator, err := NewValidator(allowList, cfg.AllowUnlisted, log)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		validator:  validator,
		dispatcher: NewDispatcher(client, cfg.RequestTimeout, log),
		collector:  NewCollector(log),
		store:      st,
		outputPath: cfg.Output,
		maxFixes:   maxFixes,
		logger:     log,
	}, nil
}

// Run executes the pipeline against a review document and writes the fix
// set atomically. Per-fix failures never fail the run; the error return is
// reserved for being unable to persist the fix set itself.
func (p *Pipeline) Run(ctx context.Context, doc *schemas.ReviewDocument) (*schemas.FixSummary, error) {
	res := p.validator.Validate(doc, p.maxFixes)

	summary := &schemas.FixSummary{
		Eligible:  res.Eligible,
		Selected:  res.Selected,
		Validated: len(res.Tasks),
		Skips:     res.Skips,
	}

	if len(res.Tasks) == 0 {
		p.logger.Info("No validated tasks, writing empty fix set", zap.String("output", p.outputPath))
		if err := p.store.SaveFixSet(p.outputPath, nil); err != nil {
			return summary, err
		}
		return p.finish(summary), nil
	}

	outcomes := p.dispatcher.Dispatch(ctx, res.Tasks)
	summary.Dispatched = len(res.Tasks)
	for _, outcome := range outcomes {
		if outcome.err != nil {
			summary.Failed++
		}
	}

	fixes, skips := p.collector.Collect(res.Tasks, outcomes)
	summary.Fixes = len(fixes)
	summary.Skips = append(summary.Skips, skips...)

	if err := p.store.SaveFixSet(p.outputPath, fixes); err != nil {
		return summary, err
	}

	p.logger.Info("Fix pipeline complete",
		zap.Int("eligible", summary.Eligible),
		zap.Int("validated", summary.Validated),
		zap.Int("fixes", summary.Fixes),
		zap.Int("failed", summary.Failed),
		zap.String("output", p.outputPath),
	)
	return p.finish(summary), nil
}

// finish normalizes the summary for serialization.
func (p *Pipeline) finish(summary *schemas.FixSummary) *schemas.FixSummary {
	if summary.Skips == nil {
		summary.Skips = []schemas.FixSkip{}
	}
	return summary
}
