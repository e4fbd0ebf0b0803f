package messenger

import "context"

type taskNameKey struct{}

// WithTaskName returns a derived context carrying name as the current task
// for any Messenger call made with it. This is the context-based
// replacement for the original's thread-local current-task slot: Go
// goroutines have no notion of "the calling thread," but a context.Context
// threaded through a TaskThread's calls serves the same purpose without
// shared mutable state.
func WithTaskName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, taskNameKey{}, name)
}

// TaskNameFromContext returns the task name set by WithTaskName, or "" if
// none was set.
func TaskNameFromContext(ctx context.Context) string {
	name, _ := ctx.Value(taskNameKey{}).(string)
	return name
}
