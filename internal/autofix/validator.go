// File: internal/autofix/validator.go
package autofix

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/stitchcd/stitch/api/schemas"
)

// Validator decides which findings become fix tasks. Path checks are exact
// string equality against the changed-files allow-list: no globs, no prefix
// matching, no normalization. "../", absolute paths, and symlink games all
// fail the equality test by construction.
type Validator struct {
	allowSet      map[string]bool
	allowUnlisted bool
	logger        *zap.Logger
}

// NewValidator builds a validator from the allow-list. An empty list is only
// legal when the operator opted into degraded validation via
// autofix.allow_unlisted; degraded mode accepts any finding path that exists
// on disk, which is why it is never the silent default.
func NewValidator(allowList []string, allowUnlisted bool, logger *zap.Logger) (*Validator, error) {
	v := &Validator{
		allowSet:      make(map[string]bool, len(allowList)),
		allowUnlisted: allowUnlisted,
		logger:        logger.Named("validator"),
	}
	for _, f := range allowList {
		v.allowSet[f] = true
	}

	if len(v.allowSet) == 0 {
		if !allowUnlisted {
			return nil, fmt.Errorf("no changed-files allow-list available and autofix.allow_unlisted is false: refusing to validate finding paths")
		}
		v.logger.Warn("DEGRADED VALIDATION: no changed-files allow-list; any finding path that exists on disk will be accepted")
	}
	return v, nil
}

// Validate selects eligible findings, applies the fix budget, and captures
// file content for the survivors. File content is read exactly once here;
// later working-tree mutation cannot affect fix generation.
func (v *Validator) Validate(doc *schemas.ReviewDocument, maxFixes int) ValidationResult {
	var res ValidationResult
	if doc == nil {
		return res
	}

	for slot, finding := range doc.Findings {
		if !finding.Severity.FixEligible() {
			continue
		}
		res.Eligible++
		if res.Selected >= maxFixes {
			continue
		}
		res.Selected++

		task, skip := v.validateCandidate(slot, finding)
		if skip != nil {
			res.Skips = append(res.Skips, *skip)
			continue
		}
		res.Tasks = append(res.Tasks, *task)
	}

	v.logger.Info("Validation phase complete",
		zap.Int("eligible", res.Eligible),
		zap.Int("selected", res.Selected),
		zap.Int("validated", len(res.Tasks)),
		zap.Int("rejected", len(res.Skips)),
	)
	return res
}

func (v *Validator) validateCandidate(slot int, finding schemas.Finding) (*schemas.ValidatedTask, *schemas.FixSkip) {
	if !v.allowed(finding.File) {
		v.logger.Warn("Finding rejected: file is not in the changed set",
			zap.Int("slot", slot),
			zap.String("file", finding.File),
		)
		return nil, &schemas.FixSkip{Slot: slot, File: finding.File, Stage: schemas.SkipStageValidate, Reason: "not-in-changed-set"}
	}

	content, err := os.ReadFile(finding.File)
	if err != nil {
		v.logger.Warn("Finding rejected: file content is unreadable",
			zap.Int("slot", slot),
			zap.String("file", finding.File),
			zap.Error(err),
		)
		return nil, &schemas.FixSkip{Slot: slot, File: finding.File, Stage: schemas.SkipStageValidate, Reason: "unreadable"}
	}

	return &schemas.ValidatedTask{
		Slot:            slot,
		Finding:         finding,
		OriginalContent: string(content),
	}, nil
}

// allowed applies the exact-match rule, or the degraded existence check when
// no list was supplied.
func (v *Validator) allowed(path string) bool {
	if len(v.allowSet) > 0 {
		return v.allowSet[path]
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
