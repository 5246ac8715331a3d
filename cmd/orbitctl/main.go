// Command orbitctl is a thin operator CLI around the Config Manager: it
// loads and validates a config tree (root file + recursive imports + env
// substitution) without starting a server, matching the teacher's
// standalone configvalidator and orbit_cli's validate command. It exercises
// internal/config (C7) and the adapter catalog loader in internal/adapter;
// it is not a new transport surface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orbit-project/orbit/internal/adapter"
	"github.com/orbit-project/orbit/internal/config"
)

var (
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "orbitctl",
	Short:   "ORBIT control-plane operator CLI",
	Version: version,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Load and validate an ORBIT config tree without starting a server",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := args[0]

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}

	descriptors, err := adapter.LoadCatalog(cfg)
	if err != nil {
		return fmt.Errorf("adapter catalog invalid: %w", err)
	}

	fmt.Printf("config OK: %d adapter(s), %d datasource(s)\n", len(descriptors), len(cfg.Datasources))
	for _, d := range descriptors {
		status := "enabled"
		if !d.Enabled {
			status = "disabled"
		}
		fmt.Printf("  - %s [%s] datasource=%s inference=%s\n", d.Name, status, d.DatasourceRef, d.InferenceProvider)
	}
	return nil
}
