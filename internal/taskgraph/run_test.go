package taskgraph

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediacrew/checkflow/internal/cancel"
	"github.com/mediacrew/checkflow/internal/depprovider"
	"github.com/mediacrew/checkflow/internal/funcfinder"
	"github.com/mediacrew/checkflow/internal/messenger"
	"github.com/mediacrew/checkflow/internal/taskmodel"
)

// orderRegistry records the order in which its methods are invoked, guarded
// by a mutex since threads run concurrently.
type orderRegistry struct {
	mu    sync.Mutex
	order []string
}

func (r *orderRegistry) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, name)
}

func (r *orderRegistry) Setup(ctx context.Context) error   { r.record("setup"); return nil }
func (r *orderRegistry) BranchA(ctx context.Context) error { r.record("branch_a"); return nil }
func (r *orderRegistry) BranchB(ctx context.Context) error { r.record("branch_b"); return nil }
func (r *orderRegistry) Finish(ctx context.Context) error  { r.record("finish"); return nil }

func TestRun_FanInFanOut_RespectsPrerequisiteOrder(t *testing.T) {
	root := &taskmodel.Model{
		Subtasks: []*taskmodel.Model{
			leaf("Setup", "setup it"),
			leaf("BranchA", "a", "Setup"),
			leaf("BranchB", "b", "Setup"),
			leaf("Finish", "finish", "BranchA", "BranchB"),
		},
	}
	require.NoError(t, root.Validate())

	reg := &orderRegistry{}
	m, _ := newFixture()
	finder := funcfinder.New(reg, depprovider.New(), m)
	g, err := Compile(context.Background(), root, identityResolve, nil, finder, m)
	require.NoError(t, err)

	err = Run(context.Background(), g, m)
	require.NoError(t, err)

	require.Len(t, reg.order, 4)
	assert.Equal(t, "setup", reg.order[0])
	assert.Equal(t, "finish", reg.order[3])
	assert.Contains(t, reg.order[1:3], "branch_a")
	assert.Contains(t, reg.order[1:3], "branch_b")
}

// blockingInteractive never resolves Wait on its own; it only returns once
// closed, simulating a manual task still pending when shutdown is
// requested.
type blockingInteractive struct {
	noopInteractive
	closed chan struct{}
}

func newBlockingInteractive() *blockingInteractive {
	return &blockingInteractive{closed: make(chan struct{})}
}

func (b *blockingInteractive) Wait(string, string, []messenger.Response) (messenger.Response, error) {
	<-b.closed
	return "", cancel.ErrCancelled
}

func (b *blockingInteractive) Close() {
	select {
	case <-b.closed:
	default:
		close(b.closed)
	}
}

func TestRun_ShutdownRequested_ReturnsCancelled(t *testing.T) {
	root := &taskmodel.Model{
		Subtasks: []*taskmodel.Model{
			leaf("wait_forever", "hangs"),
		},
	}
	require.NoError(t, root.Validate())

	bi := newBlockingInteractive()
	m := messenger.New(&recordingFile{}, bi)
	finder := funcfinder.New(nil, depprovider.New(), m)
	g, err := Compile(context.Background(), root, identityResolve, nil, finder, m)
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		m.RequestShutdown()
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- Run(context.Background(), g, m) }()

	select {
	case err := <-runErr:
		// Shutdown released the blocked Wait call, so the thread unwinds
		// and the scheduler returns promptly instead of deadlocking; it may
		// report either clean completion or the cancellation itself.
		if err != nil {
			assert.ErrorIs(t, err, cancel.ErrCancelled)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after shutdown was requested")
	}
}
