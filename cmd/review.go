// File: cmd/review.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stitchcd/stitch/api/schemas"
	"github.com/stitchcd/stitch/internal/autofix"
	"github.com/stitchcd/stitch/internal/changes"
	"github.com/stitchcd/stitch/internal/config"
	"github.com/stitchcd/stitch/internal/llmclient"
	"github.com/stitchcd/stitch/internal/notify"
	"github.com/stitchcd/stitch/internal/observability"
	"github.com/stitchcd/stitch/internal/reporting"
	"github.com/stitchcd/stitch/internal/review"
	"github.com/stitchcd/stitch/internal/secrets"
	"github.com/stitchcd/stitch/internal/store"
)

// newReviewCmd creates and configures the `review` command: the full
// pipeline from diff collection through reports and notifications.
func newReviewCmd(app *App) *cobra.Command {
	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Review the change between two git revisions and propose fixes",
		Long: `Collects the diff between review.base and review.head, scans it for
leaked secrets, sends the redacted diff to the configured model, generates
fixes for CRITICAL and BUG findings, renders reports, and notifies the
configured sinks. Run it from the repository root.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their viper keys so command-line values override
			// the config file and environment with the right precedence.
			if err := app.BindFlag("review.base", cmd, "base"); err != nil {
				return err
			}
			if err := app.BindFlag("review.head", cmd, "head"); err != nil {
				return err
			}
			if err := app.BindFlag("report.formats", cmd, "formats"); err != nil {
				return err
			}
			if err := app.BindFlag("report.output", cmd, "output"); err != nil {
				return err
			}
			return app.BindFlag("autofix.max_fixes", cmd, "max-fixes")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from main.go (signal-aware).
			ctx := cmd.Context()

			cfg, err := app.Config()
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			if noFix, _ := cmd.Flags().GetBool("no-fix"); noFix {
				cfg.Autofix.Enabled = false
			}

			runID := uuid.New().String()
			info := schemas.RunInfo{
				RunID:        runID,
				Repository:   cfg.GitHub.Repository,
				BaseRevision: cfg.Review.Base,
				HeadRevision: cfg.Review.Head,
				StartedAt:    time.Now().UTC(),
			}

			logger.Info("Starting review run",
				zap.String("run_id", runID),
				zap.String("base", cfg.Review.Base),
				zap.String("head", cfg.Review.Head),
			)

			// 1. Initialize Core Components
			components, err := initializeReviewComponents(ctx, cfg, logger)
			if err != nil {
				if components != nil {
					components.Shutdown()
				}
				return fmt.Errorf("failed to initialize review components: %w", err)
			}
			defer components.Shutdown()

			// 2. Collect the Change Under Review
			files, err := components.Collector.ChangedFiles(ctx, cfg.Review.Base, cfg.Review.Head)
			if err != nil {
				return err
			}
			diff, err := components.Collector.UnifiedDiff(ctx, cfg.Review.Base, cfg.Review.Head)
			if err != nil {
				return err
			}
			if head, err := components.Collector.HeadRevision(ctx); err == nil {
				info.HeadRevision = head
			} else {
				logger.Debug("Could not resolve HEAD, keeping the symbolic revision", zap.Error(err))
			}

			if err := components.Store.SaveChangedFiles(files); err != nil {
				return err
			}
			logger.Info("Collected change",
				zap.Int("files", len(files)),
				zap.Int("diff_bytes", len(diff)),
			)

			// 3. Secret Scan and Review
			secretFindings := secrets.Scan(diff)
			doc, err := components.Reviewer.Review(ctx, diff, files)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Warn("Review aborted", zap.String("run_id", runID))
					return fmt.Errorf("review aborted by user signal")
				}
				logger.Error("Review failed", zap.Error(err), zap.String("run_id", runID))
				return err
			}
			doc = review.MergeSecretFindings(doc, secretFindings)
			if err := components.Store.SaveReview(doc); err != nil {
				return err
			}

			// 4. Fix Generation
			summary := schemas.FixSummary{Skips: []schemas.FixSkip{}}
			fixes := []schemas.FixResult{}
			switch {
			case !cfg.Autofix.Enabled:
				logger.Info("Fix generation disabled, skipping")
			case len(files) == 0:
				// Deletion-only or empty change sets have nothing fixable.
				logger.Info("No changed files to fix, skipping fix generation")
			default:
				fixCfg := cfg.Autofix
				// The review run centralizes artifacts: the allow-list written
				// above feeds validation, and the fix set lands in the store.
				fixCfg.ChangedFiles = components.Store.Path(store.ChangedFilesArtifact)
				fixCfg.Output = components.Store.Path(store.FixSetArtifact)

				pipeline, err := autofix.NewPipeline(fixCfg, components.Client, components.Store, logger)
				if err != nil {
					return err
				}
				sum, err := pipeline.Run(ctx, doc)
				if err != nil {
					return err
				}
				summary = *sum

				fixes, err = components.Store.LoadFixSet(fixCfg.Output)
				if err != nil {
					return err
				}
			}

			// 5. Reports
			info.CompletedAt = time.Now().UTC()
			if err := components.Store.SaveRunRecord(&schemas.RunRecord{Run: info, Summary: summary}); err != nil {
				return err
			}

			envelope := &schemas.ReportEnvelope{Run: info, Review: doc, Fixes: fixes, Summary: summary}
			reportPaths, markdownPath, err := writeReports(cfg.Report, envelope, logger)
			if err != nil {
				return err
			}

			// 6. Notifications
			notify.NewAgentWebhook(cfg.Notify, logger).Notify(ctx, envelope, reportPaths)
			if markdownPath != "" {
				body, err := os.ReadFile(markdownPath)
				if err != nil {
					logger.Warn("Could not read markdown report for the PR comment", zap.Error(err))
				} else {
					notify.NewPRCommenter(cfg.GitHub, logger).Upsert(ctx, string(body))
				}
			}

			logger.Info("Review run complete",
				zap.String("run_id", runID),
				zap.Int("findings", len(doc.Findings)),
				zap.String("risk_level", string(doc.RiskLevel)),
				zap.Int("fixes", summary.Fixes),
				zap.Int("failed", summary.Failed),
			)

			// 7. Final Output
			fmt.Printf("\nReview complete. Run ID: %s\n", runID)
			for _, p := range reportPaths {
				fmt.Printf("  report: %s\n", p)
			}
			return nil
		},
	}

	// Revision range override flags.
	reviewCmd.Flags().String("base", "", "Base git revision to diff against. (Overrides config/env)")
	reviewCmd.Flags().String("head", "", "Head git revision under review. (Overrides config/env)")

	// Reporting flags.
	reviewCmd.Flags().StringSliceP("formats", "f", nil, "Report formats to render: markdown, sarif, json. (Overrides config/env)")
	reviewCmd.Flags().StringP("output", "o", "", "Directory for rendered reports. (Overrides config/env)")

	// Fix-stage flags.
	reviewCmd.Flags().Int("max-fixes", 0, "Maximum number of fixes to generate. (Overrides config/env)")
	reviewCmd.Flags().Bool("no-fix", false, "Skip fix generation for this run.")

	return reviewCmd
}

// reviewComponents holds the services a review run wires together.
type reviewComponents struct {
	Store     *store.Store
	Collector *changes.Collector
	Client    schemas.LLMClient
	Reviewer  *review.Reviewer
}

// Shutdown releases the LLM client's transport resources.
func (rc *reviewComponents) Shutdown() {
	if rc.Client != nil {
		if err := rc.Client.Close(); err != nil {
			observability.GetLogger().Warn("Error closing LLM client", zap.Error(err))
		}
	}
}

// initializeReviewComponents handles dependency construction for a review
// run. The credential check happens first so a misconfigured run fails
// before any git or network work.
func initializeReviewComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*reviewComponents, error) {
	components := &reviewComponents{}

	if err := cfg.LLM.Require(); err != nil {
		return nil, err
	}

	st, err := store.New(cfg.Artifacts.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize artifact store: %w", err)
	}
	components.Store = st

	components.Collector = changes.NewCollector("", cfg.Review.MaxDiffBytes, logger)

	client, err := llmclient.NewClient(ctx, cfg.LLM, logger)
	if err != nil {
		return components, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	components.Client = client
	components.Reviewer = review.NewReviewer(client, cfg.Review, logger)

	return components, nil
}

// writeReports renders the envelope in each configured format. It returns
// the written file paths and, when a markdown report was written to a file,
// its path for the PR comment. An output of "", "-", or "stdout" prints to
// standard output instead of writing files.
func writeReports(cfg config.ReportConfig, envelope *schemas.ReportEnvelope, logger *zap.Logger) ([]string, string, error) {
	var paths []string
	var markdownPath string

	toStdout := cfg.Output == "" || cfg.Output == "-" || cfg.Output == "stdout"
	for _, format := range cfg.Formats {
		var outputPath string
		if !toStdout {
			outputPath = filepath.Join(cfg.Output, store.ReportArtifactStem+reporting.Extension(format))
		}
		if err := writeReportFile(logger, envelope, outputPath, format); err != nil {
			return nil, "", err
		}
		if outputPath != "" {
			paths = append(paths, outputPath)
			if format == "markdown" || format == "md" {
				markdownPath = outputPath
			}
		}
	}
	return paths, markdownPath, nil
}

// writeReportFile renders the envelope once through the reporting module.
// Close finalizes the render, so its error is part of the result.
func writeReportFile(logger *zap.Logger, envelope *schemas.ReportEnvelope, outputPath, format string) error {
	reporter, err := reporting.New(format, outputPath, Version)
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}
	if err := reporter.Write(envelope); err != nil {
		_ = reporter.Close()
		return fmt.Errorf("failed to render %s report: %w", format, err)
	}
	if err := reporter.Close(); err != nil {
		return fmt.Errorf("failed to finalize %s report: %w", format, err)
	}
	if outputPath != "" {
		logger.Info("Report written", zap.String("format", format), zap.String("path", outputPath))
	}
	return nil
}
