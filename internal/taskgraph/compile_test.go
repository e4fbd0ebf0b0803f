package taskgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediacrew/checkflow/internal/depprovider"
	"github.com/mediacrew/checkflow/internal/funcfinder"
	"github.com/mediacrew/checkflow/internal/messenger"
	"github.com/mediacrew/checkflow/internal/taskmodel"
)

type recordingFile struct {
	statuses []statusRec
}

type statusRec struct {
	task, message string
	status        messenger.Status
}

func (r *recordingFile) LogStatus(task string, status messenger.Status, message string) {
	r.statuses = append(r.statuses, statusRec{task, message, status})
}
func (r *recordingFile) LogProblem(string, messenger.ProblemLevel, string, string) {}
func (r *recordingFile) LogDebug(string, string)                                  {}
func (r *recordingFile) Close()                                                   {}

type noopInteractive struct{}

func (noopInteractive) LogStatus(string, messenger.Status, string)       {}
func (noopInteractive) LogProblem(string, messenger.ProblemLevel, string) {}
func (noopInteractive) Input(string, bool, func(string) (string, error), string, string) (string, error) {
	return "", nil
}
func (noopInteractive) InputMultiple(map[string]messenger.Parameter, string, string) (map[string]string, error) {
	return nil, nil
}
func (noopInteractive) InputBool(string, string) (bool, error) { return false, nil }
func (noopInteractive) Wait(string, string, []messenger.Response) (messenger.Response, error) {
	return messenger.RespondDone, nil
}
func (noopInteractive) ShowCancellable(string, func())                            {}
func (noopInteractive) HideCancellable(string)                                    {}
func (noopInteractive) CreateProgressBar(string, string, string, float64, string) {}
func (noopInteractive) UpdateProgressBar(string, float64)                        {}
func (noopInteractive) DeleteProgressBar(string)                                 {}
func (noopInteractive) SetTaskIndexTable(map[string]int)                         {}
func (noopInteractive) RunMainLoop()                                             {}
func (noopInteractive) WaitForStart()                                            {}
func (noopInteractive) Close()                                                   {}

func identityResolve(s string) (string, error) { return s, nil }

func newFixture() (*messenger.Messenger, *recordingFile) {
	rf := &recordingFile{}
	return messenger.New(rf, noopInteractive{}), rf
}

func leaf(name, desc string, prereqs ...string) *taskmodel.Model {
	return &taskmodel.Model{Name: name, Description: desc, Prerequisites: prereqs}
}

func TestCompile_LinearChain_GroupsIntoOneThread(t *testing.T) {
	root := &taskmodel.Model{
		Subtasks: []*taskmodel.Model{
			leaf("download", "download it"),
			leaf("render", "render it", "download"),
			leaf("upload", "upload it", "render"),
		},
	}
	require.NoError(t, root.Validate())

	m, _ := newFixture()
	finder := funcfinder.New(nil, depprovider.New(), m)

	g, err := Compile(context.Background(), root, identityResolve, nil, finder, m)
	require.NoError(t, err)
	require.Len(t, g.Threads, 1)
	assert.Equal(t, []string{"download", "render", "upload"}, taskNames(g.Threads[0]))
	assert.Equal(t, "Upload", g.Threads[0].Name, "thread name is the PascalCase of its last absorbed task")
	assert.Equal(t, 1, g.IndexByTask["download"])
	assert.Equal(t, 3, g.IndexByTask["upload"])
}

func TestCompile_Fanout_ProducesSeparateThreadsWithCrossPrerequisite(t *testing.T) {
	root := &taskmodel.Model{
		Subtasks: []*taskmodel.Model{
			leaf("setup", "setup it"),
			leaf("branch_a", "do a", "setup"),
			leaf("branch_b", "do b", "setup"),
		},
	}
	require.NoError(t, root.Validate())

	m, _ := newFixture()
	finder := funcfinder.New(nil, depprovider.New(), m)
	g, err := Compile(context.Background(), root, identityResolve, nil, finder, m)
	require.NoError(t, err)

	require.Len(t, g.Threads, 3)
	var setupThread *Thread
	for _, th := range g.Threads {
		if taskNames(th)[0] == "setup" {
			setupThread = th
		}
	}
	require.NotNil(t, setupThread)
	for _, th := range g.Threads {
		if th == setupThread {
			continue
		}
		require.Len(t, th.Prerequisites, 1)
		assert.Same(t, setupThread, th.Prerequisites[0])
	}
}

func TestCompile_InnerNodePrerequisiteExpandsToLeaves(t *testing.T) {
	root := &taskmodel.Model{
		Subtasks: []*taskmodel.Model{
			{
				Name: "prep",
				Subtasks: []*taskmodel.Model{
					leaf("a", "a"),
					leaf("b", "b"),
				},
			},
			leaf("finish", "finish it", "prep"),
		},
	}
	require.NoError(t, root.Validate())

	m, _ := newFixture()
	finder := funcfinder.New(nil, depprovider.New(), m)
	g, err := Compile(context.Background(), root, identityResolve, nil, finder, m)
	require.NoError(t, err)

	// finish must wait on both a and b, i.e. be in a thread whose
	// prerequisites cover both of their threads.
	var finishThread *Thread
	for _, th := range g.Threads {
		for _, n := range taskNames(th) {
			if n == "finish" {
				finishThread = th
			}
		}
	}
	require.NotNil(t, finishThread)

	covered := map[string]bool{}
	for _, p := range finishThread.Prerequisites {
		for _, n := range taskNames(p) {
			covered[n] = true
		}
	}
	for _, n := range taskNames(finishThread) {
		if n != "finish" {
			covered[n] = true
		}
	}
	assert.True(t, covered["a"])
	assert.True(t, covered["b"])
}

func TestCompile_SelfDependencyIsError(t *testing.T) {
	root := &taskmodel.Model{
		Subtasks: []*taskmodel.Model{
			leaf("a", "a", "a"),
		},
	}
	// taskmodel.Validate already rejects literal self-reference; bypass it
	// here to exercise compile's own defense-in-depth check.
	m, _ := newFixture()
	finder := funcfinder.New(nil, depprovider.New(), m)
	_, err := Compile(context.Background(), root, identityResolve, nil, finder, m)
	require.Error(t, err)
}

func TestCompile_CycleIsError(t *testing.T) {
	root := &taskmodel.Model{
		Subtasks: []*taskmodel.Model{
			leaf("a", "a", "b"),
			leaf("b", "b", "a"),
		},
	}
	m, _ := newFixture()
	finder := funcfinder.New(nil, depprovider.New(), m)
	_, err := Compile(context.Background(), root, identityResolve, nil, finder, m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestCompile_EmitsInitialStatusesInTopologicalOrder(t *testing.T) {
	root := &taskmodel.Model{
		Subtasks: []*taskmodel.Model{
			leaf("download", "download it"),
			leaf("render", "render it", "download"),
		},
	}
	require.NoError(t, root.Validate())

	m, rf := newFixture()
	finder := funcfinder.New(nil, depprovider.New(), m)
	_, err := Compile(context.Background(), root, identityResolve, nil, finder, m)
	require.NoError(t, err)

	require.Len(t, rf.statuses, 2)
	assert.Equal(t, "download", rf.statuses[0].task)
	assert.Equal(t, "render", rf.statuses[1].task)
	for _, s := range rf.statuses {
		assert.Equal(t, messenger.NotStarted, s.status)
	}
}

type autoWhitelistRegistry struct{}

func (autoWhitelistRegistry) DownloadAssets(ctx context.Context) error { return nil }

func TestCompile_AutoWhitelistForcesNonWhitelistedBoundTaskToManual(t *testing.T) {
	root := &taskmodel.Model{
		Subtasks: []*taskmodel.Model{
			leaf("DownloadAssets", "download assets"),
		},
	}
	require.NoError(t, root.Validate())

	m, _ := newFixture()
	finder := funcfinder.New(autoWhitelistRegistry{}, depprovider.New(), m)

	autoAllowed := func(name string) bool { return false }

	g, err := Compile(context.Background(), root, identityResolve, autoAllowed, finder, m)
	require.NoError(t, err)

	require.Len(t, g.Threads, 1)
	tsk := g.Threads[0].Tasks[0]
	assert.True(t, tsk.Variant.IsManual(), "task not in the whitelist must be forced to manual even though a function is bound")
}

func taskNames(th *Thread) []string {
	names := make([]string, len(th.Tasks))
	for i, t := range th.Tasks {
		names[i] = t.Name
	}
	return names
}
