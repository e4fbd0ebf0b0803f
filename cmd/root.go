package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// NewRootCmd creates the root command for the checkflow CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "checkflow",
		Short: "A checklist runtime for operational procedures",
		Long: `checkflow schedules a declarative task graph across goroutines,
running automated implementations where bound and falling back to
interactive manual completion otherwise.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: checkflow.yaml in the working directory, falling back to the global config path)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newValidateCmd())

	return rootCmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// GetConfigFile returns the --config flag's value.
func GetConfigFile() string {
	return cfgFile
}
