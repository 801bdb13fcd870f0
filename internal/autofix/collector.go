// File: internal/autofix/collector.go
package autofix

import (
	"go.uber.org/zap"

	"github.com/stitchcd/stitch/api/schemas"
	"github.com/stitchcd/stitch/internal/diffutil"
	"github.com/stitchcd/stitch/internal/llmutil"
)

// Collector turns dispatch outcomes into fix results. Each task either
// yields exactly one FixResult or exactly one FixSkip; a failed step skips
// that finding with a logged reason and moves on to the next.
type Collector struct {
	logger *zap.Logger
}

func NewCollector(logger *zap.Logger) *Collector {
	return &Collector{logger: logger.Named("collector")}
}

// Collect walks tasks in slot order and assembles the fix set.
func (c *Collector) Collect(tasks []schemas.ValidatedTask, outcomes []dispatchOutcome) ([]schemas.FixResult, []schemas.FixSkip) {
	fixes := make([]schemas.FixResult, 0, len(tasks))
	var skips []schemas.FixSkip

	for i, task := range tasks {
		outcome := outcomes[i]

		if outcome.err != nil {
			skips = append(skips, c.skip(task, schemas.SkipStageDispatch, classifyDispatchError(outcome.err)))
			continue
		}

		payload, err := llmutil.ParseJSONResponse[fixPayload](outcome.content)
		if err != nil {
			c.logger.Warn("Fix response is not parseable",
				zap.Int("slot", task.Slot),
				zap.String("file", task.Finding.File),
				zap.Error(err),
			)
			skips = append(skips, c.skip(task, schemas.SkipStageCollect, "invalid-response"))
			continue
		}

		fixedCode := llmutil.CleanCodeOutput(payload.FixedCode)
		if fixedCode == "" {
			c.logger.Warn("Fix response carries no code",
				zap.Int("slot", task.Slot),
				zap.String("file", task.Finding.File),
			)
			skips = append(skips, c.skip(task, schemas.SkipStageCollect, "empty-fixed-code"))
			continue
		}

		hunks, err := diffutil.Hunks(task.Finding.File, task.OriginalContent, fixedCode)
		if err != nil {
			c.logger.Warn("Failed to compute diff",
				zap.Int("slot", task.Slot),
				zap.String("file", task.Finding.File),
				zap.Error(err),
			)
			skips = append(skips, c.skip(task, schemas.SkipStageCollect, "diff-failed"))
			continue
		}
		if hunks == "" {
			// The model returned the input unchanged. Re-running on already
			// fixed code lands here, which keeps the pipeline idempotent.
			c.logger.Info("Model returned the file unchanged, skipping as no-op",
				zap.Int("slot", task.Slot),
				zap.String("file", task.Finding.File),
			)
			skips = append(skips, c.skip(task, schemas.SkipStageCollect, "no-op"))
			continue
		}

		fixes = append(fixes, schemas.FixResult{
			File:            task.Finding.File,
			Slot:            task.Slot,
			Severity:        task.Finding.Severity,
			Issue:           task.Finding.Issue,
			Explanation:     payload.Explanation,
			DiffDescription: payload.DiffDescription,
			Diff:            hunks,
		})
	}

	c.logger.Info("Collect phase complete",
		zap.Int("fixes", len(fixes)),
		zap.Int("skipped", len(skips)),
	)
	return fixes, skips
}

func (c *Collector) skip(task schemas.ValidatedTask, stage schemas.SkipStage, reason string) schemas.FixSkip {
	return schemas.FixSkip{
		Slot:   task.Slot,
		File:   task.Finding.File,
		Stage:  stage,
		Reason: reason,
	}
}
