// Package consolesink implements messenger.InteractiveSink as a single
// event-loop goroutine draining a priority queue of output and input jobs,
// mirroring the original ConsoleMessenger's PriorityQueue[_QueueTask] loop:
// lower (isInput, index) sorts first, so status/problem output for
// earlier tasks is never starved by a prompt for a later one, and within
// the same priority class jobs run in the order they were enqueued.
package consolesink

import (
	"bufio"
	"container/heap"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/mediacrew/checkflow/internal/cancel"
	"github.com/mediacrew/checkflow/internal/messenger"
)

// job is one unit of work the loop goroutine runs. onDrop, if set, is
// invoked instead of run when the job is discarded unexecuted (shutdown
// draining queued input jobs).
type job struct {
	isInput bool
	index   int
	seq     int
	run     func()
	onDrop  func()
}

type jobHeap []*job

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].isInput != h[j].isInput {
		return !h[i].isInput // output jobs (isInput=false) sort before input jobs
	}
	if h[i].index != h[j].index {
		// messenger.UnknownIndex sorts after every real index.
		if h[i].index == messenger.UnknownIndex {
			return false
		}
		if h[j].index == messenger.UnknownIndex {
			return true
		}
		return h[i].index < h[j].index
	}
	return h[i].seq < h[j].seq
}
func (h jobHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *jobHeap) Push(x any)        { *h = append(*h, x.(*job)) }
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Sink is the console InteractiveSink. Verbose controls whether routine
// status updates are printed at all (non-verbose runs show only
// warnings/errors/prompts, matching the original's show_task_status flag).
type Sink struct {
	out     io.Writer
	in      *bufio.Reader
	verbose bool
	isTTY   bool

	mu         sync.Mutex
	cond       *sync.Cond
	queue      jobHeap
	nextSeq    int
	closed     bool
	started    chan struct{}
	startOnce  sync.Once
	indexTable map[string]int
	cancelable map[string]func()
}

// New returns a console sink writing to out and reading prompts from in.
// fd is the file descriptor backing in, used only to detect whether it's a
// real terminal (so password fields can be masked).
func New(out io.Writer, in io.Reader, fd uintptr, verbose bool) *Sink {
	return &Sink{
		out:        out,
		in:         bufio.NewReader(in),
		verbose:    verbose,
		isTTY:      term.IsTerminal(int(fd)),
		started:    make(chan struct{}),
		cancelable: make(map[string]func()),
	}
}

func (s *Sink) initCond() {
	if s.cond == nil {
		s.cond = sync.NewCond(&s.mu)
	}
}

func (s *Sink) indexOf(taskName string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.indexTable[taskName]; ok {
		return idx
	}
	return messenger.UnknownIndex
}

// enqueue schedules fn to run on the loop goroutine and returns
// immediately; used for fire-and-forget output jobs.
func (s *Sink) enqueue(isInput bool, index int, fn func()) {
	s.mu.Lock()
	s.initCond()
	if s.closed {
		s.mu.Unlock()
		return
	}
	heap.Push(&s.queue, &job{isInput: isInput, index: index, seq: s.nextSeq, run: fn})
	s.nextSeq++
	s.mu.Unlock()
	s.cond.Signal()
}

// enqueueBlocking schedules fn to run on the loop goroutine and blocks the
// caller until it completes, or until the sink is closed (either already
// closed when called, or closed while the job is still queued), in which
// case it returns cancel.ErrCancelled without ever running fn.
func (s *Sink) enqueueBlocking(index int, fn func()) error {
	done := make(chan error, 1)
	s.mu.Lock()
	s.initCond()
	if s.closed {
		s.mu.Unlock()
		return cancel.ErrCancelled
	}
	heap.Push(&s.queue, &job{
		isInput: true,
		index:   index,
		seq:     s.nextSeq,
		run:     func() { fn(); done <- nil },
		onDrop:  func() { done <- cancel.ErrCancelled },
	})
	s.nextSeq++
	s.mu.Unlock()
	s.cond.Signal()

	return <-done
}

// SetTaskIndexTable implements messenger.InteractiveSink.
func (s *Sink) SetTaskIndexTable(indexByTask map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexTable = indexByTask
}

// LogStatus implements messenger.InteractiveSink.
func (s *Sink) LogStatus(taskName string, status messenger.Status, message string) {
	if !s.verbose && status != messenger.WaitingForUser {
		return
	}
	idx := s.indexOf(taskName)
	s.enqueue(false, idx, func() {
		fmt.Fprintf(s.out, "[%s] %s: %s\n", taskName, status, message)
	})
}

// LogProblem implements messenger.InteractiveSink.
func (s *Sink) LogProblem(taskName string, level messenger.ProblemLevel, message string) {
	idx := s.indexOf(taskName)
	s.enqueue(false, idx, func() {
		fmt.Fprintf(s.out, "[%s] %s: %s\n", taskName, level, message)
	})
}

// Input implements messenger.InteractiveSink.
func (s *Sink) Input(displayName string, password bool, parse func(string) (string, error), prompt, title string) (string, error) {
	var result string
	var resultErr error
	err := s.enqueueBlocking(messenger.UnknownIndex, func() {
		if title != "" {
			fmt.Fprintln(s.out, title)
		}
		if prompt != "" {
			fmt.Fprintln(s.out, prompt)
		}
		for {
			raw, readErr := s.readLine(displayName, password)
			if readErr != nil {
				resultErr = readErr
				return
			}
			if parse == nil {
				result = raw
				return
			}
			parsed, parseErr := parse(raw)
			if parseErr != nil {
				fmt.Fprintf(s.out, "Invalid value: %v. Try again.\n", parseErr)
				continue
			}
			result = parsed
			return
		}
	})
	if err != nil {
		return "", err
	}
	return result, resultErr
}

// InputMultiple implements messenger.InteractiveSink.
func (s *Sink) InputMultiple(params map[string]messenger.Parameter, prompt, title string) (map[string]string, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}

	var result map[string]string
	var resultErr error
	err := s.enqueueBlocking(messenger.UnknownIndex, func() {
		if title != "" {
			fmt.Fprintln(s.out, title)
		}
		if prompt != "" {
			fmt.Fprintln(s.out, prompt)
		}
		values := make(map[string]string, len(keys))
		for _, k := range keys {
			p := params[k]
			for {
				if p.Description != "" {
					fmt.Fprintln(s.out, p.Description)
				}
				raw, readErr := s.readLine(p.DisplayName, p.Password)
				if readErr != nil {
					resultErr = readErr
					return
				}
				if raw == "" && p.Default != "" {
					raw = p.Default
				}
				if p.Parse == nil {
					values[k] = raw
					break
				}
				parsed, parseErr := p.Parse(raw)
				if parseErr != nil {
					fmt.Fprintf(s.out, "Invalid value: %v. Try again.\n", parseErr)
					continue
				}
				values[k] = parsed
				break
			}
		}
		result = values
	})
	if err != nil {
		return nil, err
	}
	return result, resultErr
}

// InputBool implements messenger.InteractiveSink.
func (s *Sink) InputBool(prompt, title string) (bool, error) {
	var result bool
	err := s.enqueueBlocking(messenger.UnknownIndex, func() {
		if title != "" {
			fmt.Fprintln(s.out, title)
		}
		raw, _ := s.readLine(prompt+" (y/n)", false)
		raw = strings.ToLower(strings.TrimSpace(raw))
		result = raw == "y" || raw == "yes"
	})
	return result, err
}

// Wait implements messenger.InteractiveSink.
func (s *Sink) Wait(taskName, prompt string, allowed []messenger.Response) (messenger.Response, error) {
	idx := s.indexOf(taskName)
	var result messenger.Response
	err := s.enqueueBlocking(idx, func() {
		fmt.Fprintf(s.out, "[%s] %s\n", taskName, prompt)
		fmt.Fprintf(s.out, "Allowed responses: %s\n", joinResponses(allowed))
		for {
			raw, _ := s.readLine("Response", false)
			r := messenger.Response(strings.ToUpper(strings.TrimSpace(raw)))
			if responseAllowed(r, allowed) {
				result = r
				return
			}
			fmt.Fprintf(s.out, "Invalid response %q. Allowed: %s\n", raw, joinResponses(allowed))
		}
	})
	return result, err
}

func joinResponses(allowed []messenger.Response) string {
	parts := make([]string, len(allowed))
	for i, r := range allowed {
		parts[i] = string(r)
	}
	return strings.Join(parts, ", ")
}

func responseAllowed(r messenger.Response, allowed []messenger.Response) bool {
	for _, a := range allowed {
		if a == r {
			return true
		}
	}
	return false
}

// readLine prompts on a single line and reads one line of input, masking
// the echo when password is true and the input is a real terminal.
func (s *Sink) readLine(label string, password bool) (string, error) {
	if password && s.isTTY {
		fmt.Fprintf(s.out, "%s (input hidden): ", label)
	} else {
		fmt.Fprintf(s.out, "%s: ", label)
	}
	line, err := s.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// ShowCancellable implements messenger.InteractiveSink.
func (s *Sink) ShowCancellable(taskName string, onCancel func()) {
	s.mu.Lock()
	s.cancelable[taskName] = onCancel
	s.mu.Unlock()
	s.enqueue(false, s.indexOf(taskName), func() {
		fmt.Fprintf(s.out, "[%s] may be cancelled (Ctrl-C).\n", taskName)
	})
}

// HideCancellable implements messenger.InteractiveSink.
func (s *Sink) HideCancellable(taskName string) {
	s.mu.Lock()
	delete(s.cancelable, taskName)
	s.mu.Unlock()
}

// CreateProgressBar implements messenger.InteractiveSink.
func (s *Sink) CreateProgressBar(key, taskName, displayName string, maxValue float64, units string) {
	s.enqueue(false, s.indexOf(taskName), func() {
		fmt.Fprintf(s.out, "[%s] %s: started (0/%g %s)\n", taskName, displayName, maxValue, units)
	})
}

// UpdateProgressBar implements messenger.InteractiveSink.
func (s *Sink) UpdateProgressBar(key string, value float64) {
	s.enqueue(false, messenger.UnknownIndex, func() {
		fmt.Fprintf(s.out, "progress %s: %g\n", key, value)
	})
}

// DeleteProgressBar implements messenger.InteractiveSink.
func (s *Sink) DeleteProgressBar(key string) {}

// RunMainLoop implements messenger.InteractiveSink. It runs on the calling
// goroutine until Close is invoked, draining output jobs first and then,
// once no output jobs remain, the highest-priority input job.
func (s *Sink) RunMainLoop() {
	s.mu.Lock()
	s.initCond()
	s.mu.Unlock()

	s.startOnce.Do(func() { close(s.started) })

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.closed {
			s.mu.Unlock()
			return
		}
		j := heap.Pop(&s.queue).(*job)
		s.mu.Unlock()

		j.run()
	}
}

// WaitForStart implements messenger.InteractiveSink.
func (s *Sink) WaitForStart() {
	<-s.started
}

// Close implements messenger.InteractiveSink: it stops accepting new work
// (later enqueueBlocking calls return cancel.ErrCancelled at once), drops
// any queued input jobs (waking their callers with cancel.ErrCancelled via
// each job's onDrop), and wakes the loop so it can drain remaining output
// and exit. It does not wait for that drain to finish.
func (s *Sink) Close() {
	s.mu.Lock()
	s.initCond()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	// Drain queued input jobs immediately, releasing their blocked callers
	// with cancel.ErrCancelled; leave output jobs queued so the loop can
	// still flush them before RunMainLoop returns.
	var dropped []*job
	var remaining jobHeap
	for _, j := range s.queue {
		if j.isInput {
			dropped = append(dropped, j)
		} else {
			remaining = append(remaining, j)
		}
	}
	s.queue = remaining
	heap.Init(&s.queue)
	s.mu.Unlock()

	for _, j := range dropped {
		j.onDrop()
	}
	s.cond.Broadcast()
}
