// Package messenger implements the thread-safe façade every task body and
// the scheduler itself use to report status, surface problems, request
// manual input, and expose cancellation — one FileSink (always a structured
// log) plus one InteractiveSink (console or web), mirroring the original
// Messenger/FileMessenger/InputMessenger split.
package messenger

import (
	"context"

	"github.com/google/uuid"

	"github.com/mediacrew/checkflow/internal/cancel"
)

// RootPseudoTask is the task name used for log records and prompts that
// aren't attributed to any particular task (graph compilation, the script's
// own startup/teardown).
const RootPseudoTask = "SCRIPT MAIN"

// UnknownIndex is the display index used for log records whose task isn't
// in the index table yet (or has none, e.g. RootPseudoTask). Sinks that
// order work by index should treat it as "sort last."
const UnknownIndex = -1

// Messenger is the façade. It owns no UI state itself beyond the small bits
// listed below; everything user-visible is delegated to the two sinks.
type Messenger struct {
	file        FileSink
	interactive InteractiveSink

	mu             chan struct{} // binary semaphore; see lock/unlock helpers
	indexByTask    map[string]int
	tokenByTask    map[string]*cancel.Token
	lastStatusByTask map[string]Status
	shutdown       bool
}

// New builds a Messenger over the given sinks.
func New(file FileSink, interactive InteractiveSink) *Messenger {
	return &Messenger{
		file:             file,
		interactive:      interactive,
		mu:               make(chan struct{}, 1),
		indexByTask:      make(map[string]int),
		tokenByTask:      make(map[string]*cancel.Token),
		lastStatusByTask: make(map[string]Status),
	}
}

func (m *Messenger) lock()   { m.mu <- struct{}{} }
func (m *Messenger) unlock() { <-m.mu }

func (m *Messenger) resolveTaskName(ctx context.Context, taskName string) string {
	if taskName != "" {
		return taskName
	}
	if name := TaskNameFromContext(ctx); name != "" {
		return name
	}
	return RootPseudoTask
}

func (m *Messenger) indexOf(taskName string) int {
	m.lock()
	defer m.unlock()
	if idx, ok := m.indexByTask[taskName]; ok {
		return idx
	}
	return UnknownIndex
}

// SetTaskIndexTable installs the task name -> display index mapping
// computed once at graph-compile time. Intended to be called exactly once,
// before any task starts running.
func (m *Messenger) SetTaskIndexTable(indexByTask map[string]int) {
	m.lock()
	m.indexByTask = indexByTask
	m.unlock()
	m.interactive.SetTaskIndexTable(indexByTask)
}

// LogStatus reports the current status of a task. Idempotent: sinks are
// expected to update the task's existing row/record rather than append a
// new one for repeated calls. If fileOnly, the interactive sink is not
// notified (used for the high-volume "about to do X" chatter console UIs
// hide behind --verbose).
func (m *Messenger) LogStatus(ctx context.Context, taskName string, status Status, message string, fileOnly bool) {
	name := m.resolveTaskName(ctx, taskName)

	m.lock()
	m.lastStatusByTask[name] = status
	m.unlock()

	m.file.LogStatus(name, status, message)
	if !fileOnly {
		m.interactive.LogStatus(name, status, message)
	}
}

// LastStatus returns the most recently logged status for taskName, and
// whether any status has been logged for it at all. The Task runtime uses
// this to avoid overwriting a terminal status a task function already set
// itself with the generic "Task completed automatically" message.
func (m *Messenger) LastStatus(taskName string) (Status, bool) {
	m.lock()
	defer m.unlock()
	s, ok := m.lastStatusByTask[taskName]
	return s, ok
}

// LogProblem reports a warning, error, or fatal problem. stacktrace, if
// non-empty, is written only to the file sink.
func (m *Messenger) LogProblem(ctx context.Context, taskName string, level ProblemLevel, message string, stacktrace string) {
	name := m.resolveTaskName(ctx, taskName)
	m.file.LogProblem(name, level, message, stacktrace)
	m.interactive.LogProblem(name, level, message)
}

// LogDebug writes a file-only diagnostic message.
func (m *Messenger) LogDebug(ctx context.Context, taskName string, message string) {
	name := m.resolveTaskName(ctx, taskName)
	m.file.LogDebug(name, message)
}

// Input prompts for a single value. parse, if non-nil, validates and
// normalizes the raw string; a non-nil error re-prompts.
func (m *Messenger) Input(displayName string, password bool, parse func(string) (string, error), prompt, title string) (string, error) {
	return m.interactive.Input(displayName, password, parse, prompt, title)
}

// InputMultiple prompts for several values in one dialog.
func (m *Messenger) InputMultiple(params map[string]Parameter, prompt, title string) (map[string]string, error) {
	return m.interactive.InputMultiple(params, prompt, title)
}

// InputBool prompts for a yes/no answer.
func (m *Messenger) InputBool(prompt, title string) (bool, error) {
	return m.interactive.InputBool(prompt, title)
}

// Wait is the manual-completion prompt: it blocks until the user chooses
// one of allowed.
func (m *Messenger) Wait(ctx context.Context, taskName string, prompt string, allowed []Response) (Response, error) {
	name := m.resolveTaskName(ctx, taskName)
	return m.interactive.Wait(name, prompt, allowed)
}

// AllowCancel exposes a per-task "Cancel" affordance in the interactive
// sink and returns its token. Calling it again for the same task returns
// the same token rather than allocating a new one.
func (m *Messenger) AllowCancel(ctx context.Context, taskName string) *cancel.Token {
	name := m.resolveTaskName(ctx, taskName)

	m.lock()
	tok, ok := m.tokenByTask[name]
	if !ok {
		tok = cancel.New()
		m.tokenByTask[name] = tok
	}
	m.unlock()

	m.interactive.ShowCancellable(name, tok.Cancel)
	return tok
}

// DisallowCancel hides the task's "Cancel" affordance. The token itself,
// if already vended, is left alone — callers that already hold it keep it.
func (m *Messenger) DisallowCancel(ctx context.Context, taskName string) {
	name := m.resolveTaskName(ctx, taskName)
	m.interactive.HideCancellable(name)
}

// CreateProgressBar allocates a new progress bar, returning its key.
func (m *Messenger) CreateProgressBar(ctx context.Context, taskName, displayName string, maxValue float64, units string) string {
	name := m.resolveTaskName(ctx, taskName)
	key := uuid.NewString()
	m.interactive.CreateProgressBar(key, name, displayName, maxValue, units)
	return key
}

// UpdateProgressBar sets a progress bar's current value.
func (m *Messenger) UpdateProgressBar(key string, value float64) {
	m.interactive.UpdateProgressBar(key, value)
}

// DeleteProgressBar removes a progress bar from the display.
func (m *Messenger) DeleteProgressBar(key string) {
	m.interactive.DeleteProgressBar(key)
}

// ShutdownRequested reports whether the interactive sink (or a signal
// handler) has asked the whole run to stop.
func (m *Messenger) ShutdownRequested() bool {
	m.lock()
	defer m.unlock()
	return m.shutdown
}

// RequestShutdown records that shutdown has been requested and closes the
// interactive sink, which unblocks every goroutine currently parked in
// Input/InputMultiple/InputBool/Wait with cancel.ErrCancelled.
func (m *Messenger) RequestShutdown() {
	m.lock()
	already := m.shutdown
	m.shutdown = true
	tokens := make([]*cancel.Token, 0, len(m.tokenByTask))
	for _, tok := range m.tokenByTask {
		tokens = append(tokens, tok)
	}
	m.unlock()

	for _, tok := range tokens {
		tok.Cancel()
	}

	if !already {
		m.interactive.Close()
	}
}

// RunMainLoop runs the interactive sink's event loop on the calling
// goroutine until Close/RequestShutdown stops it.
func (m *Messenger) RunMainLoop() {
	m.interactive.RunMainLoop()
}

// WaitForStart blocks until the interactive sink's event loop is ready.
func (m *Messenger) WaitForStart() {
	m.interactive.WaitForStart()
}

// Close flushes and releases both sinks. Safe to call after RequestShutdown.
func (m *Messenger) Close() {
	m.RequestShutdown()
	m.file.Close()
}

// IndexOf returns taskName's display index from the installed index table,
// or UnknownIndex if the task has none.
func (m *Messenger) IndexOf(taskName string) int {
	return m.indexOf(taskName)
}
