// Package cli implements the valve-controller command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/sweeney/valve-controller/internal/config"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "valve-controller",
	Short: "Closed-loop controller for a heating circuit mixing valve",
	Long: `valve-controller reads the flow temperature and the room thermostat,
then drives the circulation pump and a motorized mixing valve in eighth
steps to keep the heating circuit in its working band.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("valve-controller version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to the YAML configuration file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(valveCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}
