package cli

import (
	"context"
	"fmt"

	"github.com/CarnegieLearningWeb/upgrade-agent/pkg/config"
	"github.com/CarnegieLearningWeb/upgrade-agent/pkg/logger"
	"github.com/CarnegieLearningWeb/upgrade-agent/pkg/version"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	flagEnvFile  string
	flagLogLevel string
	flagLogJSON  bool
	flagDebug    bool
)

// NewRootCmd builds the upgrade-agent command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "upgrade-agent",
		Short: "Conversational agent for the UpGrade A/B experimentation platform",
		Long: "upgrade-agent turns natural-language requests into validated, confirmed\n" +
			"calls against an UpGrade server: creating and managing experiments,\n" +
			"simulating users and checking condition assignments, all from chat.",
		Version:       version.Get().Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagEnvFile, "env-file", "", "load environment variables from this file")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "emit logs as JSON")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "shorthand for --log-level debug")

	root.AddCommand(newChatCmd())
	root.AddCommand(newServeCmd())
	return root
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

// setupContext loads configuration and attaches config and logger to the
// context shared by every command.
func setupContext(ctx context.Context) (context.Context, *config.Config, error) {
	if flagEnvFile != "" {
		if err := godotenv.Load(flagEnvFile); err != nil {
			return nil, nil, fmt.Errorf("load env file %s: %w", flagEnvFile, err)
		}
	} else {
		// Best effort: a local .env is a convenience, not a requirement.
		_ = godotenv.Load()
	}

	cfg, err := config.NewService().Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	if flagLogLevel != "" {
		cfg.Runtime.LogLevel = flagLogLevel
	}
	if flagDebug {
		cfg.Runtime.LogLevel = "debug"
	}
	if flagLogJSON {
		cfg.Runtime.LogJSON = true
	}

	log := logger.SetupLogger(cfg.Runtime.LogLevel, cfg.Runtime.LogJSON, false)
	ctx = config.ContextWithConfig(ctx, cfg)
	ctx = logger.ContextWithLogger(ctx, log)
	return ctx, cfg, nil
}
