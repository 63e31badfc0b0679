package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile  string
	logLevel string

	// Shared state set during PersistentPreRun
	cfg *Config
	log zerolog.Logger
)

// rootCmd is the base command for netkit.
var rootCmd = &cobra.Command{
	Use:   "netkit",
	Short: "TCP, UDP and WebSocket echo servers and clients",

	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		log, err = newLogger(cfg.Log.Level)
		if err != nil {
			return fmt.Errorf("bad log level: %w", err)
		}
		cfg.Session.Logger = &log
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default \"info\")")
}
