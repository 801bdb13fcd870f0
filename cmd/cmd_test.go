// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stitchcd/stitch/api/schemas"
	"github.com/stitchcd/stitch/internal/config"
	"github.com/stitchcd/stitch/internal/observability"
	"github.com/stitchcd/stitch/internal/store"
)

func init() {
	// Home is part of config discovery and the lookup caches. Tests point
	// HOME at temp dirs, so the cache must be off.
	homedir.DisableCache = true
}

// -- Test Setup Helpers --

// isolateEnv gives a test a clean working directory and home so config
// discovery cannot pick up a developer's real stitch.yaml, and clears the
// credential env var so ambient keys cannot leak into assertions.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("STITCH_LLM_API_KEY", "")
	observability.ResetForTest()
}

// createTempConfig writes a config file and returns its path.
func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// findCommand returns the named subcommand from a root instance.
func findCommand(t *testing.T, root *cobra.Command, use string) *cobra.Command {
	t.Helper()
	for _, c := range root.Commands() {
		if c.Use == use {
			return c
		}
	}
	t.Fatalf("command %q not registered", use)
	return nil
}

// captureReviewConfig intercepts the review command's RunE so a test can
// execute the full flag/config plumbing without running a review.
func captureReviewConfig(t *testing.T) (*cobra.Command, **config.Config) {
	t.Helper()
	root, app := newRootCommand()
	captured := new(*config.Config)

	reviewCmd := findCommand(t, root, "review")
	reviewCmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := app.Config()
		*captured = cfg
		return err
	}

	return root, captured
}

// -- Test Cases: Configuration Plumbing --

func TestReviewFlagBinding(t *testing.T) {
	isolateEnv(t)
	root, captured := captureReviewConfig(t)

	root.SetArgs([]string{"review", "--base", "release-1.2", "--max-fixes", "3"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	require.NotNil(t, *captured)
	cfg := *captured
	assert.Equal(t, "release-1.2", cfg.Review.Base)
	assert.Equal(t, 3, cfg.Autofix.MaxFixes)

	// Unset flags leave the defaults alone.
	assert.Equal(t, "HEAD", cfg.Review.Head)
	assert.Equal(t, 20, cfg.Review.MaxFindings)
	assert.Equal(t, []string{"markdown"}, cfg.Report.Formats)
}

func TestConfigFileAndFlagPrecedence(t *testing.T) {
	isolateEnv(t)
	configContent := `
review:
  base: develop
autofix:
  max_fixes: 2
`
	require.NoError(t, os.WriteFile("stitch.yaml", []byte(configContent), 0o644))

	root, captured := captureReviewConfig(t)
	root.SetArgs([]string{"review", "--max-fixes", "3"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	require.NotNil(t, *captured)
	cfg := *captured
	// The file in the working directory beats the default, the flag beats the file.
	assert.Equal(t, "develop", cfg.Review.Base)
	assert.Equal(t, 3, cfg.Autofix.MaxFixes)
}

func TestEnvOverride(t *testing.T) {
	isolateEnv(t)
	t.Setenv("STITCH_REVIEW_MAX_FINDINGS", "7")

	root, captured := captureReviewConfig(t)
	root.SetArgs([]string{"review"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	require.NotNil(t, *captured)
	assert.Equal(t, 7, (*captured).Review.MaxFindings)
}

func TestBrokenConfigFileFails(t *testing.T) {
	isolateEnv(t)
	configFile := createTempConfig(t, "review: [unclosed\n")

	root := NewRootCommand()
	root.SetArgs([]string{"--config", configFile, "review"})
	err := root.ExecuteContext(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestInvalidConfigValueRejected(t *testing.T) {
	isolateEnv(t)
	configFile := createTempConfig(t, "llm:\n  rate_limit: -1\n")

	app := &App{cfgFile: configFile}
	require.NoError(t, app.initialize())

	_, err := app.Config()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_limit")
}

// -- Test Cases: fix Command --

func TestFixCmd_WritesEmptyFixSetWithoutFindings(t *testing.T) {
	isolateEnv(t)
	outPath := filepath.Join(t.TempDir(), "fixes.json")

	root := NewRootCommand()
	root.SetArgs([]string{"fix", "--output", outPath})
	require.NoError(t, root.ExecuteContext(context.Background()))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func TestFixCmd_MissingCredentialFails(t *testing.T) {
	isolateEnv(t)

	// A readable findings document means real work, which needs the model.
	st, err := store.New("artifacts", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, st.SaveReview(&schemas.ReviewDocument{
		Summary:   "One defect.",
		RiskLevel: schemas.RiskHigh,
		Findings: []schemas.Finding{
			{Severity: schemas.SeverityCritical, File: "a.go", Line: 3, Issue: "nil dereference"},
		},
	}))

	root := NewRootCommand()
	root.SetArgs([]string{"fix"})
	err = root.ExecuteContext(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required configuration")
}

// -- Test Cases: report Command --

func TestReportCmd_RendersFromArtifacts(t *testing.T) {
	isolateEnv(t)

	st, err := store.New("artifacts", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, st.SaveReview(&schemas.ReviewDocument{
		Summary:   "Two defects found.",
		RiskLevel: schemas.RiskHigh,
		Findings: []schemas.Finding{
			{Severity: schemas.SeverityCritical, File: "db.go", Line: 10, Issue: "SQL injection in user lookup"},
			{Severity: schemas.SeverityWarning, File: "api.go", Line: 5, Issue: "missing rate limit"},
		},
	}))
	require.NoError(t, st.SaveFixSet(st.Path(store.FixSetArtifact), []schemas.FixResult{
		{
			File:        "db.go",
			Slot:        0,
			Severity:    schemas.SeverityCritical,
			Issue:       "SQL injection in user lookup",
			Explanation: "Parameterize the query.",
			Diff:        "@@ -10,1 +10,1 @@\n-query(raw)\n+query(param)\n",
		},
	}))
	require.NoError(t, st.SaveRunRecord(&schemas.RunRecord{
		Run:     schemas.RunInfo{RunID: "run-1", BaseRevision: "main", HeadRevision: "abc123"},
		Summary: schemas.FixSummary{Eligible: 1, Selected: 1, Validated: 1, Dispatched: 1, Fixes: 1},
	}))

	root := NewRootCommand()
	root.SetArgs([]string{"report", "--formats", "markdown,json", "--output", "artifacts"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	// Verification: markdown report carries the review and the fix.
	md, err := os.ReadFile(filepath.Join("artifacts", "report.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "## Stitch Code Review")
	assert.Contains(t, string(md), "run `run-1`")
	assert.Contains(t, string(md), "SQL injection in user lookup")
	assert.Contains(t, string(md), "Proposed Fixes (1)")

	// Verification: the JSON report reassembles the run envelope.
	raw, err := os.ReadFile(filepath.Join("artifacts", "report.json"))
	require.NoError(t, err)
	var envelope schemas.ReportEnvelope
	require.NoError(t, json.Unmarshal(raw, &envelope))
	assert.Equal(t, "run-1", envelope.Run.RunID)
	assert.Len(t, envelope.Fixes, 1)
	assert.Equal(t, 1, envelope.Summary.Fixes)
}

func TestReportCmd_PartialArtifactsStillRender(t *testing.T) {
	isolateEnv(t)

	// Only the review document exists: no fix set, no run record.
	st, err := store.New("artifacts", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, st.SaveReview(&schemas.ReviewDocument{
		Summary:   "Nothing alarming.",
		RiskLevel: schemas.RiskLow,
		Findings:  []schemas.Finding{},
	}))

	root := NewRootCommand()
	root.SetArgs([]string{"report", "--formats", "markdown", "--output", "artifacts"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	md, err := os.ReadFile(filepath.Join("artifacts", "report.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "Nothing alarming.")
	assert.Contains(t, string(md), "No issues found.")
}

func TestReportCmd_NoArtifacts(t *testing.T) {
	isolateEnv(t)

	root := NewRootCommand()
	root.SetArgs([]string{"report"})
	err := root.ExecuteContext(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "run 'stitch review' first")
}

func TestReportCmd_UnknownFormatRejected(t *testing.T) {
	isolateEnv(t)

	root := NewRootCommand()
	root.SetArgs([]string{"report", "--formats", "pdf"})
	err := root.ExecuteContext(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown report format")
}

// -- Test Cases: version Command --

func TestVersionCmd_BypassesBrokenConfig(t *testing.T) {
	isolateEnv(t)
	configFile := createTempConfig(t, "review: [unclosed\n")

	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"--config", configFile, "version"})

	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Equal(t, "stitch dev\n", buf.String())
}
