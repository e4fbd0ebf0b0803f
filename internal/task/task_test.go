package task

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediacrew/checkflow/internal/cancel"
	"github.com/mediacrew/checkflow/internal/messenger"
)

type fakeFile struct {
	statuses []statusRec
	problems []problemRec
}

type statusRec struct {
	task, message string
	status        messenger.Status
}

type problemRec struct {
	task, message string
	level         messenger.ProblemLevel
}

func (f *fakeFile) LogStatus(task string, status messenger.Status, message string) {
	f.statuses = append(f.statuses, statusRec{task, message, status})
}
func (f *fakeFile) LogProblem(task string, level messenger.ProblemLevel, message, stacktrace string) {
	f.problems = append(f.problems, problemRec{task, message, level})
}
func (f *fakeFile) LogDebug(task, message string) {}
func (f *fakeFile) Close()                        {}

type fakeInteractive struct {
	statuses []statusRec
	waitResp messenger.Response
	waitErr  error
	waitLog  []waitRec
}

type waitRec struct {
	task    string
	allowed []messenger.Response
}

func (f *fakeInteractive) LogStatus(task string, status messenger.Status, message string) {
	f.statuses = append(f.statuses, statusRec{task, message, status})
}
func (f *fakeInteractive) LogProblem(task string, level messenger.ProblemLevel, message string) {}
func (f *fakeInteractive) Input(displayName string, password bool, parse func(string) (string, error), prompt, title string) (string, error) {
	return "", nil
}
func (f *fakeInteractive) InputMultiple(params map[string]messenger.Parameter, prompt, title string) (map[string]string, error) {
	return nil, nil
}
func (f *fakeInteractive) InputBool(prompt, title string) (bool, error) { return false, nil }
func (f *fakeInteractive) Wait(taskName, prompt string, allowed []messenger.Response) (messenger.Response, error) {
	f.waitLog = append(f.waitLog, waitRec{taskName, allowed})
	return f.waitResp, f.waitErr
}
func (f *fakeInteractive) ShowCancellable(taskName string, onCancel func()) {}
func (f *fakeInteractive) HideCancellable(taskName string)                 {}
func (f *fakeInteractive) CreateProgressBar(key, taskName, displayName string, maxValue float64, units string) {
}
func (f *fakeInteractive) UpdateProgressBar(key string, value float64)  {}
func (f *fakeInteractive) DeleteProgressBar(key string)                 {}
func (f *fakeInteractive) SetTaskIndexTable(indexByTask map[string]int) {}
func (f *fakeInteractive) RunMainLoop()                                 {}
func (f *fakeInteractive) WaitForStart()                                {}
func (f *fakeInteractive) Close()                                       {}

func newFixture(waitResp messenger.Response, waitErr error) (*messenger.Messenger, *fakeInteractive) {
	fi := &fakeInteractive{waitResp: waitResp, waitErr: waitErr}
	m := messenger.New(&fakeFile{}, fi)
	return m, fi
}

func lastStatusOf(fi *fakeInteractive, task string) messenger.Status {
	var s messenger.Status
	for _, r := range fi.statuses {
		if r.task == task {
			s = r.status
		}
	}
	return s
}

func TestRun_ManualVariant_Done(t *testing.T) {
	m, fi := newFixture(messenger.RespondDone, nil)
	tk := New("t1", "please do it", false, Manual)
	tk.Run(context.Background(), m)

	require.Len(t, fi.waitLog, 1)
	assert.ElementsMatch(t, []messenger.Response{messenger.RespondDone, messenger.RespondSkip}, fi.waitLog[0].allowed)
	assert.Equal(t, messenger.Done, lastStatusOf(fi, "t1"))
}

func TestRun_ManualVariant_OnlyAutoAllowsOnlySkip(t *testing.T) {
	m, fi := newFixture(messenger.RespondSkip, nil)
	tk := New("t1", "please do it", true, Manual)
	tk.Run(context.Background(), m)

	require.Len(t, fi.waitLog, 1)
	assert.Equal(t, []messenger.Response{messenger.RespondSkip}, fi.waitLog[0].allowed)
	assert.Equal(t, messenger.Skipped, lastStatusOf(fi, "t1"))
}

func TestRun_Automated_Success(t *testing.T) {
	m, fi := newFixture("", nil)
	called := false
	tk := New("t1", "", false, Automated(func(ctx context.Context) error {
		called = true
		return nil
	}))
	tk.Run(context.Background(), m)

	assert.True(t, called)
	assert.Empty(t, fi.waitLog)
	assert.Equal(t, messenger.Done, lastStatusOf(fi, "t1"))
}

func TestRun_Automated_SuppressesGenericDoneWhenTaskSetItsOwnTerminalStatus(t *testing.T) {
	m, fi := newFixture("", nil)
	tk := New("t1", "", false, Automated(func(ctx context.Context) error {
		m.LogStatus(ctx, "t1", messenger.Skipped, "nothing to do here", false)
		return nil
	}))
	tk.Run(context.Background(), m)

	assert.Equal(t, messenger.Skipped, lastStatusOf(fi, "t1"))
}

func TestRun_Automated_NotImplemented_Done(t *testing.T) {
	m, fi := newFixture(messenger.RespondDone, nil)
	tk := New("t1", "fallback", false, Automated(func(ctx context.Context) error {
		return ErrNotImplemented
	}))
	tk.Run(context.Background(), m)

	require.Len(t, fi.waitLog, 1)
	assert.ElementsMatch(t, []messenger.Response{messenger.RespondDone, messenger.RespondSkip}, fi.waitLog[0].allowed)
	assert.Equal(t, messenger.Done, lastStatusOf(fi, "t1"))
}

func TestRun_Automated_GenericError_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	m := messenger.New(&fakeFile{}, &retryThenDone{calls: &calls})

	attempts := 0
	tk := New("t1", "fallback", false, Automated(func(ctx context.Context) error {
		attempts++
		if attempts <= 1 {
			return errors.New("boom")
		}
		return nil
	}))
	tk.Run(context.Background(), m)

	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1, calls)
}

type retryThenDone struct {
	calls    *int
	statuses []statusRec
}

func (f *retryThenDone) LogStatus(task string, status messenger.Status, message string) {
	f.statuses = append(f.statuses, statusRec{task, message, status})
}
func (f *retryThenDone) LogProblem(task string, level messenger.ProblemLevel, message string) {}
func (f *retryThenDone) Input(displayName string, password bool, parse func(string) (string, error), prompt, title string) (string, error) {
	return "", nil
}
func (f *retryThenDone) InputMultiple(params map[string]messenger.Parameter, prompt, title string) (map[string]string, error) {
	return nil, nil
}
func (f *retryThenDone) InputBool(prompt, title string) (bool, error) { return false, nil }
func (f *retryThenDone) Wait(taskName, prompt string, allowed []messenger.Response) (messenger.Response, error) {
	*f.calls++
	if *f.calls == 1 {
		return messenger.RespondRetry, nil
	}
	return messenger.RespondDone, nil
}
func (f *retryThenDone) ShowCancellable(taskName string, onCancel func()) {}
func (f *retryThenDone) HideCancellable(taskName string)                 {}
func (f *retryThenDone) CreateProgressBar(key, taskName, displayName string, maxValue float64, units string) {
}
func (f *retryThenDone) UpdateProgressBar(key string, value float64)  {}
func (f *retryThenDone) DeleteProgressBar(key string)                 {}
func (f *retryThenDone) SetTaskIndexTable(indexByTask map[string]int) {}
func (f *retryThenDone) RunMainLoop()                                 {}
func (f *retryThenDone) WaitForStart()                                {}
func (f *retryThenDone) Close()                                       {}

func TestRun_Automated_GenericError_OnlyAutoDisallowsDone(t *testing.T) {
	m, fi := newFixture(messenger.RespondSkip, nil)
	tk := New("t1", "fallback", true, Automated(func(ctx context.Context) error {
		return errors.New("boom")
	}))
	tk.Run(context.Background(), m)

	require.Len(t, fi.waitLog, 1)
	assert.ElementsMatch(t, []messenger.Response{messenger.RespondRetry, messenger.RespondSkip}, fi.waitLog[0].allowed)
}

func TestRun_Automated_CancelledError_SameShapeAsGeneric(t *testing.T) {
	m, fi := newFixture(messenger.RespondSkip, nil)
	tk := New("t1", "fallback", false, Automated(func(ctx context.Context) error {
		return cancel.ErrCancelled
	}))
	tk.Run(context.Background(), m)

	require.Len(t, fi.waitLog, 1)
	assert.ElementsMatch(t, []messenger.Response{messenger.RespondDone, messenger.RespondRetry, messenger.RespondSkip}, fi.waitLog[0].allowed)
	assert.Equal(t, messenger.Skipped, lastStatusOf(fi, "t1"))
}

func TestRun_Automated_PanicIsRecoveredAsError(t *testing.T) {
	m, fi := newFixture(messenger.RespondSkip, nil)
	tk := New("t1", "fallback", false, Automated(func(ctx context.Context) error {
		panic("kaboom")
	}))
	tk.Run(context.Background(), m)

	require.Len(t, fi.waitLog, 1)
	assert.Equal(t, messenger.Skipped, lastStatusOf(fi, "t1"))
}

func TestRun_ShutdownMidPrompt_LeavesTaskWaiting(t *testing.T) {
	m, fi := newFixture("", cancel.ErrCancelled)
	tk := New("t1", "fallback", false, Manual)
	tk.Run(context.Background(), m)

	assert.Equal(t, messenger.WaitingForUser, lastStatusOf(fi, "t1"))
}

func TestAllowedResponses_Table(t *testing.T) {
	cases := []struct {
		name     string
		onlyAuto bool
		kind     FailureKind
		want     []messenger.Response
	}{
		{"no-impl", false, NoImplementation, []messenger.Response{messenger.RespondDone, messenger.RespondSkip}},
		{"no-impl-only-auto", true, NoImplementation, []messenger.Response{messenger.RespondSkip}},
		{"not-implemented", false, NotImplementedFailure, []messenger.Response{messenger.RespondDone, messenger.RespondSkip}},
		{"not-implemented-only-auto", true, NotImplementedFailure, []messenger.Response{messenger.RespondDone, messenger.RespondSkip}},
		{"generic", false, GenericFailure, []messenger.Response{messenger.RespondDone, messenger.RespondRetry, messenger.RespondSkip}},
		{"generic-only-auto", true, GenericFailure, []messenger.Response{messenger.RespondRetry, messenger.RespondSkip}},
		{"cancelled", false, CancelledFailure, []messenger.Response{messenger.RespondDone, messenger.RespondRetry, messenger.RespondSkip}},
		{"cancelled-only-auto", true, CancelledFailure, []messenger.Response{messenger.RespondRetry, messenger.RespondSkip}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := AllowedResponses(Manual, c.onlyAuto, c.kind)
			assert.ElementsMatch(t, c.want, got)
		})
	}
}
