// Package cli defines the command-line interface for playfield.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	envparse "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/germanamz/playfield/cmd/playfield/internal/logging"
	"github.com/germanamz/playfield/pkg/engine"
	"github.com/germanamz/playfield/pkg/machinedir"
)

// Options stores global CLI options shared between commands.
type Options struct {
	MachineDir string
	ConfigPath string
	EnvFile    string
	LogLevel   string
}

// baseEnv defines root CLI defaults sourced from PLAYFIELD_* env vars.
type baseEnv struct {
	// MachineDir is the machine folder from PLAYFIELD_MACHINE.
	MachineDir string `env:"PLAYFIELD_MACHINE"`
	// ConfigPath is the config file from PLAYFIELD_CONFIG.
	ConfigPath string `env:"PLAYFIELD_CONFIG"`
	// LogLevel is the logging level from PLAYFIELD_LOG_LEVEL.
	LogLevel string `env:"PLAYFIELD_LOG_LEVEL"`
}

// Execute builds the root command, runs it with the provided args and returns
// any error.
func Execute(ctx context.Context, args []string) error {
	cmd := newRootCommand(&Options{})
	cmd.SetArgs(args)

	return cmd.ExecuteContext(ctx)
}

// newRootCommand constructs the root cobra.Command with global flags and
// subcommands.
func newRootCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "playfield",
		Short:         "playfield runs pinball game modes from a machine folder",
		Long:          "playfield loads a machine configuration, runs its modes (including carousel selection modes) and drives them from scripts or a websocket bridge.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := applyEnv(cmd, opts); err != nil {
				return err
			}

			logger := logging.NewLogger(cmd.ErrOrStderr(), logging.ParseLevel(opts.LogLevel))
			cmd.SetContext(context.WithValue(cmd.Context(), loggerKey{}, logger))
			logger.Debug("logger initialized", "level", opts.LogLevel, "machine", opts.MachineDir)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.MachineDir, "machine", "m", ".", "Path to the machine folder")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to the config file (default: <machine>/config/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "Path to a .env file (default: <machine>/.env, ignored if missing)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newInitCommand(opts),
		newValidateCommand(opts),
		newItemsCommand(opts),
		newRunCommand(opts),
		newServeCommand(opts),
	)

	return cmd
}

// applyEnv loads the .env file and fills every flag the user did not set from
// its PLAYFIELD_* variable.
func applyEnv(cmd *cobra.Command, opts *Options) error {
	pre, err := envparse.ParseAs[baseEnv]()
	if err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	flags := cmd.Flags()
	if !flags.Changed("machine") && pre.MachineDir != "" {
		opts.MachineDir = pre.MachineDir
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = machinedir.New(opts.MachineDir).EnvPath()
	}
	if err := loadDotEnv(envFile); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}

	env, err := envparse.ParseAs[baseEnv]()
	if err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	if !flags.Changed("config") && env.ConfigPath != "" {
		opts.ConfigPath = env.ConfigPath
	}
	if !flags.Changed("log-level") && env.LogLevel != "" {
		opts.LogLevel = env.LogLevel
	}

	return nil
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// machine returns the machine folder selected by the options.
func (o *Options) machine() machinedir.Dir { return machinedir.New(o.MachineDir) }

// configPath returns the explicit config path or the machine folder default.
func (o *Options) configPath() string {
	if o.ConfigPath != "" {
		return o.ConfigPath
	}
	return o.machine().ConfigPath()
}

// loadConfig reads and validates the machine configuration.
func (o *Options) loadConfig() (engine.Config, error) {
	cfg, err := engine.LoadConfig(o.configPath())
	if err != nil {
		return engine.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return engine.Config{}, err
	}
	return cfg, nil
}

// loggerKey is a private context key used to store a logger in command contexts.
type loggerKey struct{}

// LoggerFromContext extracts a logger from the context or falls back to a
// default logger.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return logging.NewLogger(os.Stderr, slog.LevelInfo)
}
