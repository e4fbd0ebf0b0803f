// Package depprovider implements a small type-keyed service locator.
//
// A Provider is how FunctionFinder resolves the non-context.Context
// arguments of an automated task function: each parameter's declared type is
// looked up against the set of values/factories registered with the
// Provider, exactly as the original dependency provider resolves arguments
// by issubclass match against a table of getters.
package depprovider

import (
	"fmt"
	"reflect"
	"sync"
)

// Factory lazily produces a dependency the first time it's needed. The
// value it returns is cached and reused for every subsequent resolution of
// the same registration.
type Factory func() (any, error)

type entry struct {
	typ     reflect.Type
	factory Factory
}

// Provider holds a set of type-keyed dependency registrations and resolves
// argument types against them on demand, constructing each dependency at
// most once.
type Provider struct {
	mu      sync.Mutex
	entries []entry
	cache   map[reflect.Type]any
}

// New returns an empty Provider.
func New() *Provider {
	return &Provider{
		cache: make(map[reflect.Type]any),
	}
}

// Register adds value as a resolvable dependency, keyed by its own
// concrete type. value is returned as-is, with no deferred construction.
func (p *Provider) Register(value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := reflect.TypeOf(value)
	p.entries = append(p.entries, entry{typ: t, factory: func() (any, error) { return value, nil }})
}

// RegisterFactory adds a lazily-constructed dependency. sample is used only
// to record the type the factory produces (typically a nil typed pointer,
// e.g. (*VmixClient)(nil)); factory is invoked at most once, the first time
// something resolves that type.
func (p *Provider) RegisterFactory(sample any, factory Factory) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var built bool
	var value any
	once := func() (any, error) {
		if built {
			return value, nil
		}
		v, err := factory()
		if err != nil {
			return nil, err
		}
		built, value = true, v
		return v, nil
	}
	p.entries = append(p.entries, entry{typ: reflect.TypeOf(sample), factory: once})
}

// Resolve finds the single registered dependency assignable to t, building
// it via its factory if this is the first resolution. It returns an error
// if zero or more than one registration matches — an ambiguous match is
// treated as a configuration mistake, not resolved by preference order.
func (p *Provider) Resolve(t reflect.Type) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if v, ok := p.cache[t]; ok {
		return v, nil
	}

	var matches []entry
	for _, e := range p.entries {
		if e.typ != nil && e.typ.AssignableTo(t) {
			matches = append(matches, e)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("depprovider: no dependency registered for type %s", t)
	case 1:
		v, err := matches[0].factory()
		if err != nil {
			return nil, fmt.Errorf("depprovider: constructing %s: %w", t, err)
		}
		p.cache[t] = v
		return v, nil
	default:
		return nil, fmt.Errorf("depprovider: %d dependencies match type %s, expected exactly one", len(matches), t)
	}
}

// Get resolves a dependency of type T. It's the generic, type-safe
// counterpart to Resolve for callers who already know the static type they
// want (tests, manual wiring), rather than resolving from a reflect.Type
// discovered through function-signature introspection.
func Get[T any](p *Provider) (T, error) {
	var zero T
	t := reflect.TypeOf((*T)(nil)).Elem()
	v, err := p.Resolve(t)
	if err != nil {
		return zero, err
	}
	cast, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("depprovider: resolved value for %s does not implement requested type", t)
	}
	return cast, nil
}
