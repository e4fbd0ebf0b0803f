package taskgraph

import (
	"context"
	"fmt"
	"sort"

	"github.com/mediacrew/checkflow/internal/funcfinder"
	"github.com/mediacrew/checkflow/internal/messenger"
	"github.com/mediacrew/checkflow/internal/task"
	"github.com/mediacrew/checkflow/internal/taskmodel"
)

// Resolver expands an author-facing placeholder string (e.g. a task
// description containing `%{key}%` references) into its final form.
type Resolver func(raw string) (string, error)

// AutoAllower reports whether a task name may run automatically under the
// --auto whitelist. A nil AutoAllower passed to Compile allows every task.
type AutoAllower func(taskName string) bool

// Thread is a maximal chain of tasks that must run sequentially, plus the
// other threads it must wait for before starting. It is the Go analogue of
// the original's TaskThread, minus the OS thread: a Thread is executed by a
// single goroutine (see thread.go).
type Thread struct {
	Name          string
	Tasks         []*task.Task
	Prerequisites []*Thread

	doneSignal chan struct{}
}

// TaskGraph is the fully compiled, ready-to-run form of a procedure: its
// threads (Run decides the order they start in), and the display index of
// every task (1-based position in document-performance order).
type TaskGraph struct {
	Threads     []*Thread
	IndexByTask map[string]int
}

type compiledNode struct {
	name         string
	description  string
	onlyAuto     bool
	docOrder     int
	prereqsRaw   []string // before expansion through inner nodes
	leafDescent  []string // this node's own leaf set (itself, for a leaf)
}

// Compile runs spec steps 1-8 over root: flatten, expand prerequisites,
// validate, transitively reduce, stably topo-sort, group into threads,
// resolve functions, and emit the initial NOT_STARTED statuses. root must
// already have passed taskmodel.Model.Validate. autoAllowed gates which
// bound functions actually get wired in: a task whose name it rejects is
// forced to its manual fallback even though a function is bound to it
// (spec.md §6's --auto whitelist); pass nil to allow every bound task.
func Compile(ctx context.Context, root *taskmodel.Model, resolve Resolver, autoAllowed AutoAllower, finder *funcfinder.Finder, msgr *messenger.Messenger) (*TaskGraph, error) {
	if autoAllowed == nil {
		autoAllowed = func(string) bool { return true }
	}
	nodes := flatten(root)

	leafNames := make([]string, 0, len(nodes))
	docOrder := make(map[string]int, len(nodes))
	prereqsByName := make(map[string][]string, len(nodes))
	descriptionByName := make(map[string]string, len(nodes))
	onlyAutoByName := make(map[string]bool, len(nodes))
	leavesOf := make(map[string][]string, len(nodes))

	for _, n := range nodes {
		leavesOf[n.name] = n.leafDescent
	}

	order := 0
	for _, n := range nodes {
		if len(n.leafDescent) != 1 || n.leafDescent[0] != n.name {
			continue // inner node: not itself scheduled
		}
		leafNames = append(leafNames, n.name)
		docOrder[n.name] = order
		order++
		descriptionByName[n.name] = n.description
		onlyAutoByName[n.name] = n.onlyAuto

		expanded, err := expandPrerequisites(n.name, n.prereqsRaw, leavesOf)
		if err != nil {
			return nil, err
		}
		prereqsByName[n.name] = expanded
	}

	if dups := findDuplicates(leafNames); len(dups) > 0 {
		return nil, fmt.Errorf("The following task names are not unique: %s", joinComma(dups))
	}

	g, err := buildGraph(leafNames, prereqsByName)
	if err != nil {
		return nil, err
	}
	if cycle := g.detectCycle(); cycle != nil {
		return nil, fmt.Errorf("The task graph contains at least one cycle. For example: %s.", formatCycle(cycle))
	}
	g.transitiveReduction()

	sorted, err := g.stableTopologicalSort(docOrder)
	if err != nil {
		return nil, err
	}

	functionsByName, err := finder.FindFunctions(ctx, leafNames)
	if err != nil {
		return nil, err
	}

	resolvedDescriptions := make(map[string]string, len(leafNames))
	for _, name := range leafNames {
		desc, err := resolve(descriptionByName[name])
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", name, err)
		}
		resolvedDescriptions[name] = desc
	}

	threads := groupIntoThreads(sorted, g, func(name string) *task.Task {
		variant := functionsByName[name]
		if !autoAllowed(name) {
			variant = task.Manual
		}
		return task.New(name, resolvedDescriptions[name], onlyAutoByName[name], variant)
	})

	indexByTask := make(map[string]int, len(sorted))
	for i, name := range sorted {
		indexByTask[name] = i + 1
	}

	for i := 0; i < len(sorted); i++ {
		msgr.LogStatus(ctx, sorted[i], messenger.NotStarted, "-", false)
	}

	return &TaskGraph{Threads: threads, IndexByTask: indexByTask}, nil
}

// flatten walks root depth-first, pushing every inner node's Prerequisites
// onto its descendants (spec step 1) and recording, for every node (leaf or
// inner), the set of leaf names under it (used by expandPrerequisites to
// resolve a dependency on an inner node).
func flatten(root *taskmodel.Model) []*compiledNode {
	var out []*compiledNode

	var walk func(m *taskmodel.Model, inherited []string) []string
	walk = func(m *taskmodel.Model, inherited []string) []string {
		own := unionStrings(inherited, m.Prerequisites)

		if m.IsLeaf() {
			out = append(out, &compiledNode{
				name:        m.Name,
				description: m.Description,
				onlyAuto:    m.OnlyAuto,
				prereqsRaw:  own,
				leafDescent: []string{m.Name},
			})
			return []string{m.Name}
		}

		var leaves []string
		for _, child := range m.Subtasks {
			leaves = append(leaves, walk(child, own)...)
		}
		if m.Name != "" {
			out = append(out, &compiledNode{name: m.Name, leafDescent: leaves})
		}
		return leaves
	}
	walk(root, nil)
	return out
}

// expandPrerequisites replaces any reference to an inner node with
// references to every leaf beneath it (spec step 2), unions the results,
// and rejects self-dependencies.
func expandPrerequisites(name string, raw []string, leavesOf map[string][]string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, ref := range raw {
		for _, leaf := range leavesOf[ref] {
			if leaf == name {
				return nil, fmt.Errorf("task %q: cannot list itself as a prerequisite", name)
			}
			if !seen[leaf] {
				seen[leaf] = true
				out = append(out, leaf)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func unionStrings(a, b []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func findDuplicates(names []string) []string {
	seen := map[string]bool{}
	dupSeen := map[string]bool{}
	var dups []string
	for _, n := range names {
		if seen[n] {
			if !dupSeen[n] {
				dups = append(dups, n)
				dupSeen[n] = true
			}
			continue
		}
		seen[n] = true
	}
	return dups
}

func joinComma(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}
