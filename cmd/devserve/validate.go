package main

import (
	"fmt"

	"github.com/jpalmerr/devserve/config"
	"github.com/spf13/cobra"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a devserve configuration file without starting the server.

This command parses the YAML or TOML, expands environment variables, and
validates all fields. It's useful for CI pipelines or pre-commit checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  devserve validate -c devserve.yaml
  devserve validate --config devserve.toml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	host := func(h string) string {
		if h == "" {
			return "all interfaces"
		}
		return h
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  HTTP:      %s port %d\n", host(cfg.HTTPHost), cfg.HTTPPort)
	fmt.Fprintf(out, "  Control:   %s port %d\n", host(cfg.ControlHost), cfg.ControlPort)
	fmt.Fprintf(out, "  Root:      %s (index %s)\n", cfg.Root, cfg.Index)
	fmt.Fprintf(out, "  Shutdown:  grace %s, failsafe %s\n",
		cfg.GracePeriod.Duration(), cfg.FailsafeTimeout.Duration())
	fmt.Fprintf(out, "  Realtime:  %t\n", cfg.Realtime)

	return nil
}
