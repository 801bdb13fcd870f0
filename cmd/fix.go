// File: cmd/fix.go
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stitchcd/stitch/internal/autofix"
	"github.com/stitchcd/stitch/internal/llmclient"
	"github.com/stitchcd/stitch/internal/observability"
	"github.com/stitchcd/stitch/internal/store"
)

// newFixCmd creates and configures the `fix` command: the fix-generation
// stage run standalone against a previously saved review document.
func newFixCmd(app *App) *cobra.Command {
	fixCmd := &cobra.Command{
		Use:   "fix",
		Short: "Generate fixes for the findings of a saved review",
		Long: `Reads a findings document produced by 'stitch review', selects the
fix-eligible findings, and asks the configured model for a replacement
snippet per finding. Validated fixes are written as a fix set. A missing
or unreadable findings document yields an empty fix set and a zero exit,
so the stage is safe to run unconditionally in CI.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := app.BindFlag("autofix.changed_files", cmd, "changed-files"); err != nil {
				return err
			}
			if err := app.BindFlag("autofix.output", cmd, "output"); err != nil {
				return err
			}
			return app.BindFlag("autofix.max_fixes", cmd, "max-fixes")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := app.Config()
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			st, err := store.New(cfg.Artifacts.Dir, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize artifact store: %w", err)
			}

			// Unset paths fall back to the artifacts of a prior review run.
			findingsPath, _ := cmd.Flags().GetString("findings")
			if findingsPath == "" {
				findingsPath = st.Path(store.ReviewArtifact)
			}
			if cfg.Autofix.ChangedFiles == "" {
				cfg.Autofix.ChangedFiles = st.Path(store.ChangedFilesArtifact)
			}
			outputPath := cfg.Autofix.Output
			if outputPath == "" {
				outputPath = st.Path(store.FixSetArtifact)
			}

			// No findings means no work. The empty fix set keeps downstream
			// steps that consume the artifact from failing on a missing file.
			doc, err := st.LoadReviewDocument(findingsPath)
			if err != nil {
				logger.Warn("Findings document unavailable, writing an empty fix set",
					zap.String("path", findingsPath),
					zap.Error(err),
				)
				if err := st.SaveFixSet(outputPath, nil); err != nil {
					return err
				}
				fmt.Printf("No findings to fix. Empty fix set written to %s\n", outputPath)
				return nil
			}

			cfg.Autofix.Output = outputPath
			if err := cfg.LLM.Require(); err != nil {
				return err
			}

			client, err := llmclient.NewClient(ctx, cfg.LLM, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize LLM client: %w", err)
			}
			defer func() {
				if err := client.Close(); err != nil {
					logger.Warn("Error closing LLM client", zap.Error(err))
				}
			}()

			pipeline, err := autofix.NewPipeline(cfg.Autofix, client, st, logger)
			if err != nil {
				return err
			}
			summary, err := pipeline.Run(ctx, doc)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Warn("Fix run aborted")
					return fmt.Errorf("fix run aborted by user signal")
				}
				return err
			}

			logger.Info("Fix run complete",
				zap.Int("fixes", summary.Fixes),
				zap.Int("failed", summary.Failed),
				zap.Int("skipped", len(summary.Skips)),
			)
			fmt.Printf("Fix set written to %s (%d fixes, %d skips)\n", outputPath, summary.Fixes, len(summary.Skips))
			return nil
		},
	}

	fixCmd.Flags().String("findings", "", "Path to the findings document. (Default: the review artifact in artifacts.dir)")
	fixCmd.Flags().String("changed-files", "", "Path to the changed-files allow list. (Overrides config/env)")
	fixCmd.Flags().StringP("output", "o", "", "Path for the generated fix set. (Overrides config/env)")
	fixCmd.Flags().Int("max-fixes", 0, "Maximum number of fixes to generate. (Overrides config/env)")

	return fixCmd
}
