// Package task implements the per-task state machine: one automated
// function (optional) plus its manual-fallback prompt, realizing spec
// section 4.2's state diagram and allowed-response table.
//
// Go has no exception hierarchy to branch on the way the original's
// Task.run() does (NotImplementedError vs. other Exception vs. the
// cancellation signal), so the three outcomes are modeled as sentinel
// errors instead: ErrNotImplemented, cancel.ErrCancelled, and "anything
// else." A Variant is a tagged choice (Automated(fn) or Manual) resolved
// once at graph-compile time by FunctionFinder, never re-inspected per run.
package task

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/mediacrew/checkflow/internal/cancel"
	"github.com/mediacrew/checkflow/internal/messenger"
)

// ErrNotImplemented signals that an automated function chose, at run time,
// not to automate this particular run and wants the manual fallback
// instead (the Go analogue of the original's NotImplementedError).
var ErrNotImplemented = errors.New("task chose not to automate this run")

// Func is the signature every automated task implementation must have.
type Func func(ctx context.Context) error

// Variant is the tagged choice between an automated implementation and a
// manual-only task. The zero value is Manual.
type Variant struct {
	fn Func
}

// Automated wraps fn as an automated Variant.
func Automated(fn Func) Variant {
	return Variant{fn: fn}
}

// Manual is the Variant for a task with no bound implementation.
var Manual = Variant{}

// IsManual reports whether v has no automated implementation.
func (v Variant) IsManual() bool {
	return v.fn == nil
}

// FailureKind classifies why a task ended up needing the manual fallback.
type FailureKind int

// Valid FailureKind values.
const (
	// NoImplementation means the task has no bound function at all.
	NoImplementation FailureKind = iota
	// NotImplementedFailure means the bound function returned
	// ErrNotImplemented.
	NotImplementedFailure
	// GenericFailure means the bound function returned any other error.
	GenericFailure
	// CancelledFailure means the bound function returned
	// cancel.ErrCancelled.
	CancelledFailure
)

// AllowedResponses is the pure function behind spec section 4.2's
// allowed-response table: given why a task is waiting on the user and
// whether it is only-auto, it returns the subset of {DONE, RETRY, SKIP}
// the manual prompt may offer. variant is accepted for documentation
// parity with the table (NoImplementation only ever arises for a Manual
// variant) but the kind alone fully determines the result.
func AllowedResponses(variant Variant, onlyAuto bool, kind FailureKind) []messenger.Response {
	switch kind {
	case NoImplementation:
		if onlyAuto {
			return []messenger.Response{messenger.RespondSkip}
		}
		return []messenger.Response{messenger.RespondDone, messenger.RespondSkip}
	case NotImplementedFailure:
		return []messenger.Response{messenger.RespondDone, messenger.RespondSkip}
	case GenericFailure, CancelledFailure:
		if onlyAuto {
			return []messenger.Response{messenger.RespondRetry, messenger.RespondSkip}
		}
		return []messenger.Response{messenger.RespondDone, messenger.RespondRetry, messenger.RespondSkip}
	default:
		return nil
	}
}

// Task is one executable step: a name, its manual-fallback prompt, whether
// it permits manual completion at all, and its resolved implementation.
type Task struct {
	Name            string
	FallbackMessage string
	OnlyAuto        bool
	Variant         Variant
}

// New returns a Task ready to Run.
func New(name, fallbackMessage string, onlyAuto bool, variant Variant) *Task {
	return &Task{Name: name, FallbackMessage: fallbackMessage, OnlyAuto: onlyAuto, Variant: variant}
}

// Run executes the task to completion (including any RETRY loop),
// reporting every transition to msgr. ctx should already carry this task's
// name (messenger.WithTaskName) so Messenger calls with no explicit task
// name still attribute correctly.
func (t *Task) Run(ctx context.Context, msgr *messenger.Messenger) {
	if t.Variant.IsManual() {
		t.waitManual(ctx, msgr, NoImplementation, "This task is not automated. Requesting user input.")
		return
	}

	msgr.LogStatus(ctx, t.Name, messenger.Running, "Task started.", false)

	for {
		err := t.callSafely(ctx)
		if err == nil {
			t.finishAutomated(ctx, msgr)
			return
		}

		switch {
		case errors.Is(err, ErrNotImplemented):
			t.waitManual(ctx, msgr, NotImplementedFailure, "This task is not fully automated yet. Requesting user input.")
			return
		case errors.Is(err, cancel.ErrCancelled):
			resp := t.waitManual(ctx, msgr, CancelledFailure, "Task cancelled by user. Requesting user input.")
			if resp == messenger.RespondRetry {
				msgr.LogStatus(ctx, t.Name, messenger.Running, "Task started.", false)
				continue
			}
			return
		default:
			msgr.LogProblem(ctx, t.Name, messenger.Error,
				fmt.Sprintf("Task automation failed due to an error: %v.", err),
				string(debug.Stack()))
			resp := t.waitManual(ctx, msgr, GenericFailure, "Task automation failed. Requesting user input.")
			if resp == messenger.RespondRetry {
				msgr.LogStatus(ctx, t.Name, messenger.Running, "Task started.", false)
				continue
			}
			return
		}
	}
}

// finishAutomated logs the terminal "completed automatically" status,
// unless the task function already logged its own terminal status (DONE or
// SKIPPED) during its run.
func (t *Task) finishAutomated(ctx context.Context, msgr *messenger.Messenger) {
	if last, ok := msgr.LastStatus(t.Name); ok && (last == messenger.Done || last == messenger.Skipped) {
		return
	}
	msgr.LogStatus(ctx, t.Name, messenger.Done, "Task completed automatically.", false)
}

// waitManual logs WAITING_FOR_USER with waitingMessage, blocks on the
// manual prompt with the responses allowed for kind, and logs the
// resulting terminal status (except RETRY, which the caller loops on).
func (t *Task) waitManual(ctx context.Context, msgr *messenger.Messenger, kind FailureKind, waitingMessage string) messenger.Response {
	msgr.LogStatus(ctx, t.Name, messenger.WaitingForUser, waitingMessage, false)

	allowed := AllowedResponses(t.Variant, t.OnlyAuto, kind)
	resp, err := msgr.Wait(ctx, t.Name, t.FallbackMessage, allowed)
	if err != nil {
		// Shutdown mid-prompt: leave the task WAITING_FOR_USER: the
		// scheduler is unwinding and no further transition is meaningful.
		return ""
	}

	switch resp {
	case messenger.RespondDone:
		msgr.LogStatus(ctx, t.Name, messenger.Done, "Task completed manually.", false)
	case messenger.RespondSkip:
		msgr.LogStatus(ctx, t.Name, messenger.Skipped, "Task skipped.", false)
	}
	return resp
}

// callSafely invokes the automated function, converting a panic into an
// error so a single misbehaving task can't take down its TaskThread.
func (t *Task) callSafely(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return t.Variant.fn(ctx)
}
