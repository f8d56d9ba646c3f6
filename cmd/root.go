// Package cmd provides the duet command line: the room server, a console
// chat and the handoff journal viewer.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/adalundhe/duet/core/config"
	"github.com/adalundhe/duet/core/storage"
)

// DefaultEnvFile is loaded when present and no --env-file is given.
const DefaultEnvFile = ".env"

// =============================================================================
// Global Flags
// =============================================================================

var (
	rootConfigPath string
	rootEnvFile    string
	rootLogLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "duet",
	Short: "duet - voice persona handoff orchestrator",
	Long: `duet runs voice conversations that hand the user between a general
voice assistant and an emotional support agent, carrying the recent
conversation across each handoff.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootConfigPath, "config", "c", "", "Config file read after the project and user layers")
	rootCmd.PersistentFlags().StringVar(&rootEnvFile, "env-file", "", "Environment file to load (default .env when present)")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "", "Log level: debug, info, warn, error")
}

func Execute() error {
	return rootCmd.Execute()
}

// =============================================================================
// Shared Setup
// =============================================================================

// loadEnvironment loads the env file with override semantics. An explicit
// file must exist; the default one is optional.
func loadEnvironment(path string) error {
	if path == "" {
		if _, err := os.Stat(DefaultEnvFile); err != nil {
			return nil
		}
		path = DefaultEnvFile
	}
	if err := godotenv.Overload(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// loadConfig reads the environment and every config layer, applying the
// global flags last.
func loadConfig() (*config.Manager, *storage.Dirs, error) {
	if err := loadEnvironment(rootEnvFile); err != nil {
		return nil, nil, err
	}

	dirs, err := storage.ResolveDirs()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve directories: %w", err)
	}

	mgr := config.NewManager(dirs)
	if rootConfigPath != "" {
		mgr.SetFile(rootConfigPath)
	}
	overrides := &config.Config{}
	overrides.Log.Level = rootLogLevel
	mgr.SetOverrides(overrides)

	if err := mgr.Load(); err != nil {
		return nil, nil, err
	}
	return mgr, dirs, nil
}

// newLogger builds the process logger from the log section.
func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}

func parseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, errors.Join(fmt.Errorf("unknown log level %q", s), err)
	}
	return level, nil
}
