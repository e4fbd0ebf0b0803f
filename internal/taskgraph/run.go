package taskgraph

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/mediacrew/checkflow/internal/cancel"
	"github.com/mediacrew/checkflow/internal/messenger"
	"github.com/mediacrew/checkflow/internal/task"
)

// Run launches every thread in dependency order and blocks until they all
// finish or a shutdown is requested, implementing spec section 4.4. A
// thread only starts once every thread it depends on has already been
// started (so its own wait on those threads' completion signals is
// well-founded); the calling goroutine then polls for overall completion on
// a 1-second ticker, checking msgr.ShutdownRequested() between polls.
func Run(ctx context.Context, g *TaskGraph, msgr *messenger.Messenger) error {
	for _, th := range g.Threads {
		th.doneSignal = make(chan struct{})
	}

	var wg sync.WaitGroup
	started := make(map[*Thread]bool, len(g.Threads))
	remaining := append([]*Thread(nil), g.Threads...)

	for len(remaining) > 0 {
		progressed := false
		next := remaining[:0]
		for _, th := range remaining {
			ready := true
			for _, p := range th.Prerequisites {
				if !started[p] {
					ready = false
					break
				}
			}
			if !ready {
				next = append(next, th)
				continue
			}

			started[th] = true
			progressed = true
			wg.Add(1)
			go runThread(ctx, th, msgr, &wg)
		}
		remaining = next
		if !progressed && len(remaining) > 0 {
			return fmt.Errorf("circular dependency among task threads")
		}
	}

	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-allDone:
			return nil
		case <-ticker.C:
			if msgr.ShutdownRequested() {
				return cancel.ErrCancelled
			}
		}
	}
}

// runThread waits for every prerequisite thread, then runs its tasks
// serially, attributing each task's log/messenger calls to its own name via
// context.Context (the Go substitute for the original's thread-local
// current-task slot).
func runThread(ctx context.Context, th *Thread, msgr *messenger.Messenger, wg *sync.WaitGroup) {
	defer wg.Done()
	defer close(th.doneSignal)

	for _, p := range th.Prerequisites {
		<-p.doneSignal
	}

	for _, t := range th.Tasks {
		runTaskSafely(ctx, t, msgr)
	}
}

// runTaskSafely guards a single task's execution against an unexpected
// panic escaping Task.Run itself (as opposed to a panic from within the
// task's own automated function, which task.Task already recovers). Per
// spec, such a panic is logged FATAL and the task is forced to DONE so its
// dependents still proceed — the scheduler must never deadlock.
func runTaskSafely(ctx context.Context, t *task.Task, msgr *messenger.Messenger) {
	taskCtx := messenger.WithTaskName(ctx, t.Name)
	defer func() {
		if r := recover(); r != nil {
			msgr.LogProblem(taskCtx, t.Name, messenger.Fatal,
				fmt.Sprintf("Task scheduling failed unexpectedly: %v.", r),
				string(debug.Stack()))
			msgr.LogStatus(taskCtx, t.Name, messenger.Done, "Task marked done after an internal scheduling error.", false)
		}
	}()
	t.Run(taskCtx, msgr)
}
