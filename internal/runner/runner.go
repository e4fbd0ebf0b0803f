// Package runner wires together the compiled pieces of a checklist run: it
// loads a task file, builds a Messenger over the configured sinks, compiles
// the task graph, and executes it (or stops short, for --no-run/validate).
// Grounded on the original's Script/DefaultScript startup sequence
// (create_config -> create_messenger -> create_services -> run ->
// shut_down), collapsed into a single function since Go has no
// dependency-injection-by-subclassing story to mirror.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mediacrew/checkflow/internal/config"
	"github.com/mediacrew/checkflow/internal/depprovider"
	"github.com/mediacrew/checkflow/internal/funcfinder"
	"github.com/mediacrew/checkflow/internal/messenger"
	"github.com/mediacrew/checkflow/internal/messenger/consolesink"
	"github.com/mediacrew/checkflow/internal/messenger/filesink"
	"github.com/mediacrew/checkflow/internal/messenger/websink"
	"github.com/mediacrew/checkflow/internal/taskgraph"
	"github.com/mediacrew/checkflow/internal/taskmodel"
)

// DefaultTaskFile is used when no --tasks flag is given, matching the
// original DefaultScript's hardcoded "tasks.json".
const DefaultTaskFile = "tasks.json"

// DefaultLogFile matches the original's "autochecklist.log", renamed for
// this project.
const DefaultLogFile = "checkflow.log"

// SuccessMessage and FailMessage are the final status messages logged
// against RootPseudoTask, matching DefaultScript.success_message /
// fail_message.
const (
	SuccessMessage = "All done!"
	FailMessage    = "Script failed."
)

// Options configures a single run. TaskFile, if empty, defaults to
// DefaultTaskFile resolved against WorkDir.
type Options struct {
	WorkDir  string
	TaskFile string
	WebAddr  string // listen address for the web sink, when cfg.UI == "web"
}

// Run loads the task file, compiles it against registry (the
// FunctionFinder's implementation registry; may be nil for an all-manual
// run), and executes it unless cfg.NoRun is set. It returns a non-nil error
// only for failures that happen before or outside the graph itself
// (missing task file, malformed document, compile failure); once the graph
// is running, failures are reported through the Messenger as problems and
// task statuses, not as a returned error, matching spec.md's
// "the scheduler must not deadlock or abort the whole run over one task".
func Run(ctx context.Context, cfg *config.Config, opts Options, registry any, provider *depprovider.Provider, stderr io.Writer) error {
	if provider == nil {
		provider = depprovider.New()
	}

	logPath := filepath.Join(opts.WorkDir, DefaultLogFile)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	fileSink := filesink.New(logFile)

	interactiveSink, err := buildInteractiveSink(cfg, opts)
	if err != nil {
		return fmt.Errorf("failed to create messenger: %w", err)
	}

	msgr := messenger.New(fileSink, interactiveSink)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		_, _ = fmt.Fprintf(stderr, "\nReceived interrupt signal, shutting down...\n")
		msgr.RequestShutdown()
	}()

	var workerErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		msgr.WaitForStart()
		workerErr = runWorker(ctx, cfg, opts, registry, provider, msgr)
		// Close the interactive sink so RunMainLoop below returns.
		msgr.RequestShutdown()
	}()

	msgr.RunMainLoop()
	<-done
	msgr.Close()

	return workerErr
}

// runWorker mirrors DefaultScript._run_worker: it compiles the task file
// into a graph, then either runs it or stops for --no-run. A failure before
// or outside the graph itself (task file missing/malformed, compile
// failure) is logged FATAL and also returned, so the CLI exits non-zero
// without ever constructing a graph; a failure while the graph is running
// is logged FATAL but NOT returned, since by that point individual task
// failures are the scheduler's job to absorb, not reason to abort the
// process (spec's "the scheduler must not deadlock or abort the whole run
// over one task").
func runWorker(ctx context.Context, cfg *config.Config, opts Options, registry any, provider *depprovider.Provider, msgr *messenger.Messenger) error {
	taskFile := opts.TaskFile
	if taskFile == "" {
		taskFile = filepath.Join(opts.WorkDir, DefaultTaskFile)
	}

	msgr.LogStatus(ctx, "", messenger.Running, fmt.Sprintf("Loading tasks from %s.", taskFile), false)

	model, err := loadTaskModel(taskFile)
	if err != nil {
		msgr.LogProblem(ctx, "", messenger.Fatal, fmt.Sprintf("Failed to load the task graph: %s", err), "")
		msgr.LogStatus(ctx, "", messenger.Done, FailMessage, false)
		return err
	}

	finder := funcfinder.New(registry, provider, msgr)

	msgr.LogStatus(ctx, "", messenger.Running, "Loading task graph.", false)
	graph, err := taskgraph.Compile(ctx, model, cfg.Resolve, cfg.AutoAllowed, finder, msgr)
	if err != nil {
		msgr.LogProblem(ctx, "", messenger.Fatal, fmt.Sprintf("Failed to load the task graph: %s", err), "")
		msgr.LogStatus(ctx, "", messenger.Done, FailMessage, false)
		return err
	}
	msgr.SetTaskIndexTable(graph.IndexByTask)

	if cfg.NoRun {
		msgr.LogStatus(ctx, "", messenger.Done, "No tasks were run because config.no_run = true.", false)
		return nil
	}

	msgr.LogStatus(ctx, "", messenger.Running, "Running tasks.", false)
	if err := taskgraph.Run(ctx, graph, msgr); err != nil {
		msgr.LogProblem(ctx, "", messenger.Fatal, fmt.Sprintf("Failed to run the tasks: %s", err), "")
		msgr.LogStatus(ctx, "", messenger.Done, FailMessage, false)
		return nil
	}
	msgr.LogStatus(ctx, "", messenger.Done, SuccessMessage, false)
	return nil
}

// loadTaskModel parses a task file as YAML or JSON based on its extension,
// defaulting to JSON (spec.md's documented format) for anything else.
func loadTaskModel(path string) (*taskmodel.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading task file %q: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return taskmodel.ParseYAML(data)
	default:
		return taskmodel.ParseJSON(data)
	}
}

func buildInteractiveSink(cfg *config.Config, opts Options) (messenger.InteractiveSink, error) {
	switch cfg.UI {
	case "web":
		addr := opts.WebAddr
		if addr == "" {
			addr = "127.0.0.1:0"
		}
		return websink.New(addr)
	default:
		return consolesink.New(os.Stdout, os.Stdin, os.Stdin.Fd(), cfg.Verbose), nil
	}
}
