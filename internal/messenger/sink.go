package messenger

// FileSink is the always-present, non-interactive log destination. The
// logrus-backed implementation in package filesink satisfies this
// with one structured record per call; it never blocks a caller and never
// participates in cancellation.
type FileSink interface {
	LogStatus(taskName string, status Status, message string)
	LogProblem(taskName string, level ProblemLevel, message string, stacktrace string)
	LogDebug(taskName string, message string)
	Close()
}

// InteractiveSink is the user-facing half of the façade: console or web.
// Every method may block the calling goroutine until a human responds, or
// until Close unblocks it with cancel.ErrCancelled. Exactly one goroutine — the
// sink's own event loop, started by RunMainLoop — ever touches the sink's
// internal widget/terminal state; every other method enqueues work onto
// that loop and waits for its result.
type InteractiveSink interface {
	// SetTaskIndexTable installs the task name -> display index mapping so
	// the sink can order work items the way the console sink's priority
	// queue does (lower index first, unindexed work last).
	SetTaskIndexTable(indexByTask map[string]int)

	LogStatus(taskName string, status Status, message string)
	LogProblem(taskName string, level ProblemLevel, message string)

	Input(displayName string, password bool, parse func(string) (string, error), prompt, title string) (string, error)
	InputMultiple(params map[string]Parameter, prompt, title string) (map[string]string, error)
	InputBool(prompt, title string) (bool, error)
	Wait(taskName, prompt string, allowed []Response) (Response, error)

	// ShowCancellable displays a "Cancel" affordance for taskName; onCancel
	// is invoked (from the sink's event-loop goroutine) if the user
	// activates it.
	ShowCancellable(taskName string, onCancel func())
	HideCancellable(taskName string)

	CreateProgressBar(key, taskName, displayName string, maxValue float64, units string)
	UpdateProgressBar(key string, value float64)
	DeleteProgressBar(key string)

	// RunMainLoop runs the sink's event loop until Close is called. The
	// caller runs this on its own goroutine; it returns once the loop has
	// drained and exited.
	RunMainLoop()
	// WaitForStart blocks until RunMainLoop's event loop is ready to accept
	// work, so callers don't race the loop's own startup.
	WaitForStart()
	// Close asks the event loop to shut down, releasing every blocked
	// caller with cancel.ErrCancelled, then returns once that has happened.
	Close()
}
