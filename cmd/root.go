// Package cmd holds the debinspect command line.
package cmd

import (
	"context"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	flagLogLevel = "v"
	flagConfig   = "config"
)

// newRootCommand builds the command tree. Each call returns fresh commands
// with their own flag state.
func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "debinspect",
		Short:        "inspect Debian binary and source packages",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString(flagConfig)
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			logLevel := cfg.Verbosity
			if cmd.Flags().Changed(flagLogLevel) {
				logLevel, _ = cmd.Flags().GetInt(flagLogLevel)
			}

			zc := zap.NewProductionConfig()
			zc.Level = zap.NewAtomicLevelAt(zapcore.Level(logLevel * -1))
			zl, err := zc.Build()
			if err != nil {
				return err
			}
			log := zapr.NewLogger(zl)
			log.V(1).Info("loaded configuration", "path", configPath, "lenient", cfg.Lenient)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(withConfig(logr.NewContext(ctx, log), cfg))
			return nil
		},
	}

	root.PersistentFlags().Int(flagLogLevel, 0, "log level. Higher is more")
	root.PersistentFlags().String(flagConfig, "", "path to a configuration file")
	_ = root.MarkPersistentFlagFilename(flagConfig, ".yaml", ".yml")

	root.AddCommand(
		newInspectCommand(),
		newCompareCommand(),
		newSortCommand(),
		newBumpCommand(),
		newValidateCommand(),
		newScanCommand(),
	)
	return root
}

// Execute runs the command line and exits 1 on failure.
func Execute(version string) {
	command := newRootCommand()
	command.Version = version
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}
