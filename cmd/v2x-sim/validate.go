package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"v2x-sim/internal/config"
)

var (
	validateConfigPath string
	validateSchemaPath string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a configuration file",
	Long:  "validate checks a configuration file against the CUE schema and the semantic rules of the simulator.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(validateConfigPath, validateSchemaPath)
		if err != nil {
			return err
		}
		if _, err := cfg.OrchestratorSettings(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (mode %s, %d stations, %d RSUs, physics %s)\n",
			validateConfigPath, cfg.Simulation.Mode, len(cfg.Stations), len(cfg.RSUs), cfg.Physics.Backend)
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateConfigPath, "config", "config/v2x.yaml", "Path to simulation configuration YAML")
	validateCmd.Flags().StringVar(&validateSchemaPath, "schema", "", "Path to CUE schema file (embedded schema when empty)")
}
