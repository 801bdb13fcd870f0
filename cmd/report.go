// File: cmd/report.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stitchcd/stitch/api/schemas"
	"github.com/stitchcd/stitch/internal/config"
	"github.com/stitchcd/stitch/internal/observability"
	"github.com/stitchcd/stitch/internal/store"
)

// newReportCmd creates and configures the `report` command.
func newReportCmd(app *App) *cobra.Command {
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Render reports from the artifacts of a completed review",
		Long: `Reads the review document, fix set, and run record saved by a previous
'stitch review' run and renders them in the requested formats. Useful for
re-rendering in another format without repeating the model calls.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := app.BindFlag("report.formats", cmd, "formats"); err != nil {
				return err
			}
			return app.BindFlag("report.output", cmd, "output")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Config()
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			// Delegate to the testable core logic function.
			paths, err := runReport(cfg, logger)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Printf("  report: %s\n", p)
			}
			return nil
		},
	}

	reportCmd.Flags().StringSliceP("formats", "f", nil, "Report formats to render: markdown, sarif, json. (Overrides config/env)")
	reportCmd.Flags().StringP("output", "o", "", "Directory for rendered reports. (Overrides config/env)")

	return reportCmd
}

// runReport contains the core, testable logic for rendering reports from
// saved artifacts. The review document is required; the run record and fix
// set are optional so older or partial artifact directories still render.
func runReport(cfg *config.Config, logger *zap.Logger) ([]string, error) {
	st, err := store.New(cfg.Artifacts.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize artifact store: %w", err)
	}

	doc, err := st.LoadReviewDocument(st.Path(store.ReviewArtifact))
	if err != nil {
		return nil, fmt.Errorf("no review artifact to render (run 'stitch review' first): %w", err)
	}

	envelope := &schemas.ReportEnvelope{Review: doc, Fixes: []schemas.FixResult{}}
	if rec, err := st.LoadRunRecord(); err == nil {
		envelope.Run = rec.Run
		envelope.Summary = rec.Summary
	} else {
		logger.Debug("Run record unavailable, rendering without run metadata", zap.Error(err))
	}
	if fixes, err := st.LoadFixSet(st.Path(store.FixSetArtifact)); err == nil {
		envelope.Fixes = fixes
	} else {
		logger.Debug("Fix set unavailable, rendering review only", zap.Error(err))
	}

	paths, _, err := writeReports(cfg.Report, envelope, logger)
	return paths, err
}
