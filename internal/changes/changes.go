// File: internal/changes/changes.go
package changes

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// truncationMarker is appended when a diff is cut at review.max_diff_bytes
// so downstream consumers can tell the diff is partial.
const truncationMarker = "\n... (diff truncated at review.max_diff_bytes)\n"

// Collector gathers changed files and diffs from the local git repository
// by shelling out to the git CLI.
type Collector struct {
	repoDir      string
	maxDiffBytes int
	logger       *zap.Logger
}

// NewCollector returns a Collector rooted at repoDir. An empty repoDir means
// the process working directory.
func NewCollector(repoDir string, maxDiffBytes int, logger *zap.Logger) *Collector {
	return &Collector{
		repoDir:      repoDir,
		maxDiffBytes: maxDiffBytes,
		logger:       logger.Named("changes"),
	}
}

// ChangedFiles lists paths added, copied, modified, or renamed between base
// and head, sorted. Deleted paths are excluded: there is nothing left on
// disk to review or fix.
func (c *Collector) ChangedFiles(ctx context.Context, base, head string) ([]string, error) {
	out, err := c.git(ctx, "diff", "--name-only", "--diff-filter=ACMR", base+"..."+head)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		files = append(files, line)
	}
	sort.Strings(files)
	return files, nil
}

// UnifiedDiff returns the merge-base diff between base and head with three
// lines of context, clamped to the configured byte budget.
func (c *Collector) UnifiedDiff(ctx context.Context, base, head string) (string, error) {
	diff, err := c.git(ctx, "diff", "--unified=3", base+"..."+head)
	if err != nil {
		return "", err
	}
	if c.maxDiffBytes > 0 && len(diff) > c.maxDiffBytes {
		c.logger.Warn("Diff exceeds byte budget, truncating",
			zap.Int("diff_bytes", len(diff)),
			zap.Int("max_diff_bytes", c.maxDiffBytes),
		)
		diff = diff[:c.maxDiffBytes] + truncationMarker
	}
	return diff, nil
}

// HeadRevision resolves HEAD to a commit SHA for report metadata.
func (c *Collector) HeadRevision(ctx context.Context) (string, error) {
	out, err := c.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (c *Collector) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if c.repoDir != "" {
		cmd.Dir = c.repoDir
	}
	c.logger.Debug("Running git", zap.Strings("args", args))

	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}
