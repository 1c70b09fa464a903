package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/kris-hansen/redbiomctl/utils/config"
	"github.com/kris-hansen/redbiomctl/utils/logging"
	"github.com/spf13/cobra"
)

// version is a placeholder for the version string, which will be set at build time.
var version string

var verbose bool
var debug bool

// envConfig holds the loaded configuration, available to all commands
var envConfig *config.EnvConfig

var rootCmd = &cobra.Command{
	Use:   "redbiomctl",
	Short: "Build, validate and run redbiom commands, by hand or from plain-English questions",
	Long: `redbiomctl wraps the redbiom command-line tool. It knows every redbiom
operation and its flags, builds commands from structured parameters, checks
commands written by hand or by a language model before anything runs, and
renders redbiom output as tables.

Getting Started:
  1. redbiomctl configure                  Set the model endpoint, API key and default context
  2. redbiomctl ask "which contexts exist?" Turn a question into validated commands
  3. redbiomctl run "redbiom summarize contexts"

Configuration is stored in ~/.redbiomctl/config.yaml`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.Verbose = verbose
		config.Debug = debug

		if err := config.LoadDotEnv(".env", filepath.Join(config.ConfigDir(), ".env")); err != nil {
			return fmt.Errorf("error loading .env: %w", err)
		}

		envPath := config.GetEnvPath()
		var err error
		envConfig, err = config.LoadEnvConfig(envPath)
		if err != nil {
			return fmt.Errorf("error loading configuration: %w", err)
		}

		level := envConfig.Log.Level
		switch {
		case debug:
			level = "debug"
		case verbose:
			level = "info"
		}
		if err := logging.Init(logging.Config{Level: level, File: envConfig.Log.File}); err != nil {
			logging.Warn("Continuing with stderr logging", "err", err)
		}

		for _, w := range envConfig.Validate() {
			logging.Warn("Configuration value replaced", "field", w.Field, "reason", w.Message)
		}
		config.DebugLog("[Config] Loaded configuration from %s", envPath)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Shutdown()
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(versionCmd)
}

// getVersion returns the version string.
// Priority: build-time ldflags > VERSION file (for development)
func getVersion() string {
	if version != "" {
		return version
	}

	// `go run .` has no ldflags; read VERSION from the project root
	_, filename, _, ok := runtime.Caller(0)
	if ok {
		projectRoot := filepath.Dir(filepath.Dir(filename))
		content, err := os.ReadFile(filepath.Join(projectRoot, "VERSION"))
		if err == nil {
			return "v" + strings.TrimSpace(string(content)) + "-dev"
		}
	}

	return "unknown (build with: go build -ldflags \"-X 'github.com/kris-hansen/redbiomctl/cmd.version=vX.Y.Z'\")"
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the current redbiomctl version.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "redbiomctl version: %s\n", getVersion())
	},
}

// cmdContext returns the command's context, or a background one when cobra
// was executed without a context
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
