// Package funcfinder binds task names to implementations. A registry is any
// value whose exported methods are candidate automated task bodies; a task
// name with a same-named method becomes task.Automated, everything else
// task.Manual. This is the Go analogue of the original's FunctionFinder,
// which used getattr()/inspect.signature() against a Python module; Go has
// no loose function-by-name lookup outside a type's method set, so the
// module becomes a registry struct and reflection walks its methods instead.
package funcfinder

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/mediacrew/checkflow/internal/depprovider"
	"github.com/mediacrew/checkflow/internal/messenger"
	"github.com/mediacrew/checkflow/internal/task"
)

var ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
var errType = reflect.TypeOf((*error)(nil)).Elem()

// Finder resolves leaf task names to Variants using a registry's method set
// and a DependencyProvider for each method's non-context parameters.
type Finder struct {
	registry any
	provider *depprovider.Provider
	msgr     *messenger.Messenger
}

// New builds a Finder. registry may be nil, meaning no implementations are
// available and every name resolves to task.Manual.
func New(registry any, provider *depprovider.Provider, msgr *messenger.Messenger) *Finder {
	return &Finder{registry: registry, provider: provider, msgr: msgr}
}

// FindFunctions resolves every name in names (leaf task names, in document
// order) to a Variant. A registry method whose parameters can't be
// unambiguously resolved against the DependencyProvider is a fatal error: a
// task file naming a task nobody can run must not silently fall back to
// manual.
func (f *Finder) FindFunctions(ctx context.Context, names []string) (map[string]task.Variant, error) {
	result := make(map[string]task.Variant, len(names))

	if f.registry == nil {
		f.msgr.LogDebug(ctx, "", "No registry with task implementations was provided.")
		for _, n := range names {
			result[n] = task.Manual
		}
		return result, nil
	}

	rv := reflect.ValueOf(f.registry)

	used := make(map[string]bool, len(names))
	for _, n := range names {
		used[n] = true
	}
	if unused := detectUnused(rv, used); len(unused) > 0 {
		sort.Strings(unused)
		f.msgr.LogProblem(ctx, "", messenger.Warn,
			fmt.Sprintf("The following functions are not used by any task: %s", strings.Join(unused, ", ")), "")
	}

	var automated, manual []string
	for _, n := range names {
		variant, err := f.bind(rv, n)
		if err != nil {
			return nil, fmt.Errorf("failed to find arguments for function %q: %w", n, err)
		}
		result[n] = variant
		if variant.IsManual() {
			manual = append(manual, n)
		} else {
			automated = append(automated, n)
		}
	}

	if len(automated) > 0 {
		sort.Strings(automated)
		f.msgr.LogDebug(ctx, "", fmt.Sprintf("Implementations were found for the following tasks: %s.", strings.Join(automated, ", ")))
	}
	if len(manual) > 0 {
		sort.Strings(manual)
		f.msgr.LogDebug(ctx, "", fmt.Sprintf("No implementation was found for the following tasks: %s.", strings.Join(manual, ", ")))
	}

	return result, nil
}

// bind resolves name against rv's method set. Dependencies are resolved once
// here, at bind time, and captured by the returned Variant's closure — only
// the context.Context parameter, if any, is supplied fresh on every call.
func (f *Finder) bind(rv reflect.Value, name string) (task.Variant, error) {
	method := rv.MethodByName(name)
	if !method.IsValid() {
		return task.Manual, nil
	}

	mt := method.Type()
	if mt.NumOut() > 1 || (mt.NumOut() == 1 && !mt.Out(0).Implements(errType)) {
		return task.Variant{}, fmt.Errorf("method %q must return nothing or a single error value", name)
	}

	args := make([]reflect.Value, mt.NumIn())
	ctxIndex := -1
	for i := 0; i < mt.NumIn(); i++ {
		in := mt.In(i)
		if in == ctxType {
			ctxIndex = i
			continue
		}
		v, err := f.provider.Resolve(in)
		if err != nil {
			return task.Variant{}, fmt.Errorf("parameter %d is unresolvable: %w", i, err)
		}
		args[i] = reflect.ValueOf(v)
	}

	fn := task.Func(func(ctx context.Context) error {
		callArgs := append([]reflect.Value(nil), args...)
		if ctxIndex >= 0 {
			callArgs[ctxIndex] = reflect.ValueOf(ctx)
		}
		out := method.Call(callArgs)
		if len(out) == 0 || out[0].IsNil() {
			return nil
		}
		return out[0].Interface().(error)
	})

	return task.Automated(fn), nil
}

// detectUnused returns the exported method names of rv's type that aren't in
// used, the Go analogue of the original's "functions not referenced by any
// task" warning.
func detectUnused(rv reflect.Value, used map[string]bool) []string {
	t := rv.Type()
	var unused []string
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if !used[m.Name] {
			unused = append(unused, m.Name)
		}
	}
	return unused
}
