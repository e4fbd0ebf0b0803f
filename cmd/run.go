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

func newRunCmd() *cobra.Command {
	var ui string
	var verbose bool
	var noRun bool
	var autoTasks []string
	var taskFile string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compile and run the task graph",
		Long:  "Load the task file, compile it into a task graph, and run it to completion.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, ui, verbose, noRun, autoTasks, taskFile)
		},
	}

	cmd.Flags().StringVar(&ui, "ui", "", "interactive sink: console or web (default: config's ui, or console)")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "show routine status updates in the interactive sink too")
	cmd.Flags().BoolVar(&noRun, "no-run", false, "compile and validate the task graph, then exit without running it")
	cmd.Flags().StringArrayVar(&autoTasks, "auto", nil, "whitelist a task name for automation (repeatable); pass \"none\" to disable automation entirely")
	cmd.Flags().StringVar(&taskFile, "tasks", "", "path to the task file (default: tasks.json in the working directory)")

	return cmd
}

func runRun(cmd *cobra.Command, ui string, verbose, noRun bool, autoTasks []string, taskFile string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	cfg, err := config.LoadConfigWithFile(workDir, GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("ui") {
		cfg.UI = ui
	}
	if err := config.ValidateUI(cfg.UI); err != nil {
		return err
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = verbose
	}
	if cmd.Flags().Changed("no-run") {
		cfg.NoRun = noRun
	}
	if cmd.Flags().Changed("auto") {
		cfg.AutoTasks = autoTasks
	}

	opts := runner.Options{WorkDir: workDir, TaskFile: taskFile}

	return runner.Run(context.Background(), cfg, opts, nil, depprovider.New(), cmd.ErrOrStderr())
}
