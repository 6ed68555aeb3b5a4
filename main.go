// Package main provides speakerswitch, a daemon that turns studio speakers on
// when audio plays and off after a confirmed stretch of silence.
//
// Usage:
//
//	speakerswitch run [--config path/to/config.json]
//
// If --config is not specified, speakerswitch looks for config.json in the
// same directory as the binary.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/config"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/util"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:          "speakerswitch",
	Short:        "Switch studio speakers on and off based on audio playback",
	SilenceUsage: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		return setupLogger(logLevel, logFormat)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "speakerswitch %s (commit %s, built %s)\n",
			Version, Commit, util.FormatHumanTime(BuildTime))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: config.json next to binary)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(runCmd, checkCmd, simulateCmd, devicesCmd, serviceCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogger installs the default slog handler.
func setupLogger(level, format string) error {
	opts := &slog.HandlerOptions{}

	switch strings.ToLower(level) {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info", "":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q", level)
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text", "":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// resolveConfigPath returns --config or config.json next to the binary.
func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.DefaultPath()
}

// loadConfig loads .env and config.json. A missing config.json is created
// with defaults.
func loadConfig() (*config.Config, error) {
	path, err := resolveConfigPath()
	if err != nil {
		return nil, err
	}

	if err := config.LoadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	slog.Info("using config file", "path", path)

	cfg := config.New(path)
	if err := cfg.Load(); err != nil {
		return nil, util.WrapError("load config", err)
	}
	return cfg, nil
}
