// Package cancel provides a per-task cancellation token that task bodies and
// the scheduler both consult at safe points.
package cancel

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrCancelled is returned by RaiseIfCancelled (and surfaces from
// SleepAttentively) once a Token has been cancelled. Distinct from ordinary
// errors so the task runtime can route it to a different WAITING_FOR_USER
// message.
var ErrCancelled = errors.New("task cancelled by user")

// Token is a one-shot, monotonic (false -> true) cancellation flag. One Token
// is allocated per task, lazily, the first time the task asks the messenger
// to allow cancellation.
type Token struct {
	cancelled atomic.Bool
}

// New returns a fresh, uncancelled Token.
func New() *Token {
	return &Token{}
}

// Cancel trips the token. Safe to call more than once or concurrently.
func (t *Token) Cancel() {
	t.cancelled.Store(true)
}

// IsCancelled reports whether Cancel has been called.
func (t *Token) IsCancelled() bool {
	return t.cancelled.Load()
}

// RaiseIfCancelled returns ErrCancelled if the token has tripped, nil
// otherwise. Task bodies call this at safe points during long-running work.
func (t *Token) RaiseIfCancelled() error {
	if t.IsCancelled() {
		return ErrCancelled
	}
	return nil
}

// SleepAttentively sleeps for timeout, polling the token (and ctx) every
// pollFrequency and returning ErrCancelled as soon as either fires. A nil
// token is treated as never-cancelled. If pollFrequency is not shorter than
// timeout, it sleeps for timeout in one step (no polling is possible).
func SleepAttentively(ctx context.Context, timeout time.Duration, token *Token, pollFrequency time.Duration) error {
	if pollFrequency <= 0 || pollFrequency >= timeout {
		select {
		case <-time.After(timeout):
			return nil
		case <-ctx.Done():
			return ErrCancelled
		}
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollFrequency)
	defer ticker.Stop()

	for {
		if token != nil {
			if err := token.RaiseIfCancelled(); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return ErrCancelled
		case now := <-ticker.C:
			if !now.Before(deadline) {
				return nil
			}
		}
		if !time.Now().Before(deadline) {
			return nil
		}
	}
}
