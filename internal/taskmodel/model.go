// Package taskmodel defines the declarative, immutable tree of tasks that
// describes an operational procedure, plus its JSON/YAML loaders and the
// structural validation every tree must pass before it can be compiled into
// a task graph.
package taskmodel

import (
	"fmt"
	"regexp"
	"strings"
)

// nameRe matches a valid task name. The root node of a parsed document is
// the only node allowed to leave its name blank.
var nameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Model is one node of a task tree, as declared by a procedure's author. A
// Model with no Subtasks is a leaf and is eligible to run; a Model with one
// or more Subtasks is an inner grouping node and is never itself executed.
//
// Prerequisites are recorded exactly as declared here, before propagation
// down to descendants or expansion of references to inner nodes; see
// package taskgraph for the compiled form.
type Model struct {
	Name          string
	Description   string
	Prerequisites []string
	OnlyAuto      bool
	Subtasks      []*Model
}

// IsLeaf reports whether m has no subtasks and is therefore an executable
// task rather than a grouping node.
func (m *Model) IsLeaf() bool {
	return len(m.Subtasks) == 0
}

// ValidationError aggregates every structural problem found while
// validating a Model tree. Problems are reported together, rather than
// failing on the first one, so an author can fix a whole document in one
// pass.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("task model is invalid:\n  - %s", strings.Join(e.Problems, "\n  - "))
}

// Validate checks m and its entire subtree against the structural rules a
// task model must satisfy:
//
//   - every non-root name matches nameRe and is unique across the whole tree
//   - inner nodes (those with subtasks) carry no description
//   - leaf nodes carry a non-empty description
//   - every prerequisite name resolves to some node in the tree
//
// It does not expand prerequisites through inner nodes or detect cycles;
// that happens during graph compilation, once propagation has run.
func (m *Model) Validate() error {
	v := &validator{
		names: make(map[string]string),
	}
	v.walk(m, "$", true)
	v.checkPrerequisites()
	if len(v.problems) > 0 {
		return &ValidationError{Problems: v.problems}
	}
	return nil
}

type validator struct {
	problems []string
	names    map[string]string // name -> key path of first declaration
	allNodes []*Model
}

func (v *validator) walk(m *Model, path string, isRoot bool) {
	v.allNodes = append(v.allNodes, m)

	if m.Name == "" {
		if !isRoot {
			v.problems = append(v.problems, fmt.Sprintf("%s: name is required", path))
		}
	} else if !nameRe.MatchString(m.Name) {
		v.problems = append(v.problems, fmt.Sprintf("%s: name %q must match %s", path, m.Name, nameRe.String()))
	} else if prior, ok := v.names[m.Name]; ok {
		v.problems = append(v.problems, fmt.Sprintf("%s: duplicate task name %q (first declared at %s)", path, m.Name, prior))
	} else {
		v.names[m.Name] = path
	}

	if m.IsLeaf() {
		if strings.TrimSpace(m.Description) == "" {
			v.problems = append(v.problems, fmt.Sprintf("%s: leaf task %q must have a description", path, m.Name))
		}
	} else if m.Description != "" {
		v.problems = append(v.problems, fmt.Sprintf("%s: inner task %q must not have a description", path, m.Name))
	}

	for i, child := range m.Subtasks {
		v.walk(child, fmt.Sprintf("%s.subtasks[%d]", path, i), false)
	}
}

func (v *validator) checkPrerequisites() {
	for _, node := range v.allNodes {
		for _, prereq := range node.Prerequisites {
			if _, ok := v.names[prereq]; !ok {
				v.problems = append(v.problems, fmt.Sprintf("task %q: unrecognized prerequisite %q", node.Name, prereq))
			}
			if prereq == node.Name {
				v.problems = append(v.problems, fmt.Sprintf("task %q: cannot list itself as a prerequisite", node.Name))
			}
		}
	}
}

// Leaves returns every leaf task in document order, depth-first.
func (m *Model) Leaves() []*Model {
	var out []*Model
	var walk func(*Model)
	walk = func(n *Model) {
		if n.IsLeaf() {
			out = append(out, n)
			return
		}
		for _, c := range n.Subtasks {
			walk(c)
		}
	}
	walk(m)
	return out
}
