// Package main is the entry point for the gateway binary.
// It provides a CLI for serving the gateway, signing request bodies and
// running the command module self-tests.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/quantumnode/gateway/pkg/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const defaultEnvFile = ".env"

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	ConfigPath string
	EnvFile    string
	LogLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for the gateway.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "gateway",
		Short: "Signed command gateway for Quantum Node",
		Long: `A gateway that fronts the WHM API with HMAC-signed endpoints and serves
the billing, CRM and support command modules.

Examples:
  gateway serve --config gateway.yaml
  echo -n '{"user":"qn01"}' | gateway sign
  gateway selftest`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadEnvFile(opts.EnvFile)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", os.Getenv("GATEWAY_CONFIG"), "Path to configuration file (YAML)")
	rootCmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", defaultEnvFile, "Path to a .env file loaded before configuration")
	rootCmd.PersistentFlags().StringVarP(&opts.LogLevel, "log-level", "l", "", "Log level override (debug, info, warn, error)")

	rootCmd.AddCommand(newServeCmd(opts), newSignCmd(opts), newSelfTestCmd())
	return rootCmd
}

// loadEnvFile loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// loadConfig loads the configuration and applies the log level override. The
// build version fills server.version when the configuration leaves it unset.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if cfg.Server.Version == "" {
		cfg.Server.Version = version
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
