// Package cli implements the sentinel command-line interface.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sentinelsec/sentinel/internal/client"
	"github.com/sentinelsec/sentinel/internal/config"
	"github.com/sentinelsec/sentinel/internal/logging"
)

var (
	cfgFile string
	verbose bool

	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Control plane CLI for the SentinelSecure backend",
	Long: `sentinel drives scan jobs, device inventory, and alert workflows
against a SentinelSecure backend over its REST API.

Scans are submitted asynchronously and tracked to completion by polling
the backend. Alerts are kept in a local authoritative view that stays
consistent with the server as you resolve and create them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		return err
	}
	return nil
}

// SetVersion stamps build information injected through ldflags.
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildTime)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Accept underscores in flag names for parity with config keys.
	rootCmd.PersistentFlags().SetNormalizeFunc(
		func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
			return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
		})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./sentinel.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable debug logging")
	rootCmd.PersistentFlags().String("endpoint", "",
		"backend API endpoint (overrides config)")

	_ = viper.BindPFlag("backend.endpoint", rootCmd.PersistentFlags().Lookup("endpoint"))
}

func initConfig() {
	viper.SetEnvPrefix("SENTINEL")
	viper.AutomaticEnv()
}

// loadConfig resolves configuration from file, environment, and flags.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = "sentinel.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if endpoint := viper.GetString("backend.endpoint"); endpoint != "" {
		cfg.Backend.Endpoint = endpoint
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupRuntime loads config, configures logging, and builds the API client.
func setupRuntime() (*config.Config, *logging.Logger, *client.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	logger, err := logging.New(logging.Config{
		Level:  logging.LogLevel(cfg.Logging.Level),
		Format: logging.LogFormat(cfg.Logging.Format),
		Output: cfg.GetLogOutput(),
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to configure logging: %w", err)
	}
	logging.SetDefault(logger)

	api := client.New(cfg)
	return cfg, logger, api, nil
}

func printError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}
