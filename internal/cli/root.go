package cli

import (
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ppiankov/hookwarden/internal/config"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "hookwarden",
	Short: "Runtime policy enforcement for AI agent hooks",
	Long: "Scores agent input, output and tool calls against a protection level,\n" +
		"blocks what the level forbids and gives operators escape hatches:\n" +
		"allow-once, pause and trust.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is normal; any other load error is not.
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return err
		}
		slog.SetDefault(newLogger(resolveLogLevel("")))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default ~/.hookwarden/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger writes JSON logs to stderr so stdout stays free for MCP and
// command output.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// resolveLogLevel picks the --log-level flag, then HOOKWARDEN_LOG_LEVEL, then
// fallback.
func resolveLogLevel(fallback string) slog.Level {
	name := logLevel
	if name == "" {
		name = os.Getenv(config.EnvLogLevel)
	}
	if name == "" {
		name = fallback
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadConfig loads the configuration and rebuilds the default logger at the
// configured level.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(resolveLogLevel(cfg.LogLevel))
	slog.SetDefault(logger)
	return cfg, logger, nil
}
