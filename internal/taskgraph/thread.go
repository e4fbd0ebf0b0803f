package taskgraph

import (
	"strings"

	"github.com/mediacrew/checkflow/internal/task"
)

// groupIntoThreads implements spec step 6: walking sorted (dependencies
// before dependents) in reverse, each thread is grown by repeatedly
// prepending its sole predecessor whenever both sides of that edge are
// unique — the predecessor's only successor is the current task, and the
// current task has only that one predecessor. This forms the maximal
// sequential chains that must run one goroutine at a time.
func groupIntoThreads(sorted []string, g *graph, newTask func(name string) *task.Task) []*Thread {
	remaining := make(map[string]bool, len(sorted))
	for _, n := range sorted {
		remaining[n] = true
	}

	var threads []*Thread
	threadOf := make(map[string]*Thread, len(sorted))

	for i := len(sorted) - 1; i >= 0; i-- {
		name := sorted[i]
		if !remaining[name] {
			continue
		}

		var chain []string
		current := name
		for {
			chain = append([]string{current}, chain...)
			remaining[current] = false

			preds := g.edges[current]
			if len(preds) != 1 {
				break
			}
			pred := preds[0]
			if succs := g.reverseEdges[pred]; len(succs) != 1 || succs[0] != current {
				break
			}
			current = pred
		}

		th := &Thread{Name: pascalCase(chain[len(chain)-1])}
		for _, n := range chain {
			th.Tasks = append(th.Tasks, newTask(n))
			threadOf[n] = th
		}
		threads = append(threads, th)
	}

	for _, th := range threads {
		inThread := make(map[string]bool, len(th.Tasks))
		for _, t := range th.Tasks {
			inThread[t.Name] = true
		}

		seenPrereq := make(map[*Thread]bool)
		first := th.Tasks[0].Name
		for _, dep := range g.edges[first] {
			if inThread[dep] {
				continue
			}
			prereqThread := threadOf[dep]
			if prereqThread == th || seenPrereq[prereqThread] {
				continue
			}
			seenPrereq[prereqThread] = true
			th.Prerequisites = append(th.Prerequisites, prereqThread)
		}
	}

	return threads
}

// pascalCase converts a snake_case task name into the PascalCase label used
// as a thread's display name, matching the original's
// _snake_case_to_pascal_case.
func pascalCase(snake string) string {
	words := strings.Split(snake, "_")
	var b strings.Builder
	for _, w := range words {
		if w == "" {
			continue
		}
		b.WriteString(strings.ToUpper(w[:1]))
		b.WriteString(w[1:])
	}
	return b.String()
}
