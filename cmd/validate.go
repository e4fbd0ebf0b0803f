package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mediacrew/checkflow/internal/config"
	"github.com/mediacrew/checkflow/internal/depprovider"
	"github.com/mediacrew/checkflow/internal/runner"
)

// newValidateCmd is an ergonomic alias for `run --no-run`: it always
// compiles the task graph and exits without running a single task.
func newValidateCmd() *cobra.Command {
	var taskFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Compile the task graph without running it",
		Long:  "Load the task file and compile it into a task graph, reporting any schema, prerequisite, or cycle errors, then exit without running anything.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, taskFile)
		},
	}

	cmd.Flags().StringVar(&taskFile, "tasks", "", "path to the task file (default: tasks.json in the working directory)")

	return cmd
}

func runValidate(cmd *cobra.Command, taskFile string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	cfg, err := config.LoadConfigWithFile(workDir, GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.NoRun = true
	cfg.UI = "console"

	opts := runner.Options{WorkDir: workDir, TaskFile: taskFile}

	return runner.Run(context.Background(), cfg, opts, nil, depprovider.New(), cmd.ErrOrStderr())
}
