// insightmesh is the command line front end of the circuit engine: it runs
// questions through archetype circuits, lists archetypes and recommends
// configurations from past runs.
//
// Usage:
//
//	insightmesh run "Should we pivot our core product?" --depth 3 --circuit parallel
//	insightmesh archetypes [--pack archetypes.yaml]
//	insightmesh recommend [--domain strategy]
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hupe1980/insightmesh/config"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	dbPath     string
}

// appCfg is loaded once by the root command before any subcommand runs.
var appCfg config.Config

var rootCmd = &cobra.Command{
	Use:   "insightmesh",
	Short: "Multi-perspective reasoning through archetype circuits",
	Long: "insightmesh asks a panel of simulated archetypes the same question,\n" +
		"layer after layer, and synthesises their tensions into one insight.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		// A missing .env file is fine; the environment may be set already.
		_ = godotenv.Load()

		cfg, err := config.Load(rootFlags.configPath)
		if err != nil {
			return err
		}
		if rootFlags.dbPath != "" {
			cfg.LearningDB = rootFlags.dbPath
		}
		appCfg = cfg
		return nil
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.configPath, "config", os.Getenv("INSIGHTMESH_CONFIG"), "Path to a YAML config file")
	f.StringVar(&rootFlags.dbPath, "db", "", "SQLite learning store path (overrides learning_db)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(archetypesCmd)
	rootCmd.AddCommand(recommendCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
