package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yairfalse/birthmark/internal/config"
	"github.com/yairfalse/birthmark/internal/telemetry"
)

var (
	version = "0.1.0"

	configPath string
	debug      bool
	region     string
	profile    string

	rootCmd = &cobra.Command{
		Use:   "birthmark",
		Short: "Resource creator attribution for AWS",
		Long: `Birthmark - Resource creator attribution for AWS

Birthmark joins CloudTrail creation events with the live inventory of each
resource kind. Every resource created in a time window is reported with its
creator, its creation time, and whether it still exists.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`Birthmark {{.Version}}
`)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "Config file (.toml, .yaml)")
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")
	flags.StringVar(&region, "region", "", "AWS region (overrides config)")
	flags.StringVar(&profile, "profile", "", "AWS shared config profile")
}

// loadConfig reads the config file, applies flag overrides and sets up logging.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}

	if region != "" {
		cfg.AWS.Region = region
	}
	if profile != "" {
		cfg.AWS.Profile = profile
	}
	if debug {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := telemetry.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr); err != nil {
		return nil, err
	}
	return cfg, nil
}
