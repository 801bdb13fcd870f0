// File: cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/stitchcd/stitch/internal/config"
	"github.com/stitchcd/stitch/internal/observability"
)

// App carries the state shared between the root command and its
// subcommands: the viper instance built in PersistentPreRunE and the
// configuration finalized after subcommand flags are bound.
type App struct {
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
}

// Config unmarshals the finalized configuration. Subcommands call it from
// RunE, after their PreRunE flag bindings, so flag values override the
// config file and environment with the right precedence.
func (a *App) Config() (*config.Config, error) {
	cfg, err := config.NewConfigFromViper(a.v)
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

// BindFlag routes a command flag into the viper key it overrides.
func (a *App) BindFlag(key string, cmd *cobra.Command, flag string) error {
	return a.v.BindPFlag(key, cmd.Flags().Lookup(flag))
}

// NewRootCommand builds a fresh root command with all subcommands attached.
// Each call returns an isolated instance so flags from one execution cannot
// leak into the next.
func NewRootCommand() *cobra.Command {
	rootCmd, _ := newRootCommand()
	return rootCmd
}

// newRootCommand exists for tests that need to reach the shared App state.
func newRootCommand() (*cobra.Command, *App) {
	app := &App{}

	rootCmd := &cobra.Command{
		Use:   "stitch",
		Short: "Stitch reviews a git revision range with an LLM and proposes fixes.",
		// Version is dynamically set at build time. See cmd/version.go.
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Runs before any command, setting up config and logging.
			if err := app.initialize(); err != nil {
				return err
			}

			var cfg config.Config
			if err := app.v.Unmarshal(&cfg); err != nil {
				// Initialize a fallback logger if config unmarshal fails.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "stitch"})
				return fmt.Errorf("failed to unmarshal config: %w", err)
			}
			observability.InitializeLogger(cfg.Logger)

			observability.GetLogger().Debug("Starting stitch", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&app.cfgFile, "config", "c", "", "config file (default is ./stitch.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newReviewCmd(app),
		newFixCmd(app),
		newReportCmd(app),
		newVersionCmd(),
	)
	return rootCmd, app
}

// Execute runs the root command under the signal-aware context from main.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// Use the logger if available, otherwise fall back to stderr.
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// initialize builds the viper instance: defaults, config file discovery,
// and STITCH_* environment bindings.
func (a *App) initialize() error {
	v := viper.New()
	config.SetDefaults(v)

	if a.cfgFile != "" {
		v.SetConfigFile(a.cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home)
		}
		v.SetConfigName("stitch")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("STITCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults and env vars.
	}

	a.v = v
	return nil
}
