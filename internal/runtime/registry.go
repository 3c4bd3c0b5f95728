package runtime

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultKind is the runtime used when a child does not name one.
const DefaultKind = "process"

// Factory constructs a runtime instance.
type Factory func() Runtime

// NewRegistry builds a registry from the provided factories. Factories are
// invoked eagerly; later entries with the same name win.
func NewRegistry(factories map[string]Factory) Registry {
	reg := make(Registry, len(factories))
	for name, factory := range factories {
		if name == "" || factory == nil {
			continue
		}
		reg[name] = factory()
	}
	return reg
}

// Lookup returns the runtime registered under kind. An empty kind resolves to
// DefaultKind.
func (r Registry) Lookup(kind string) (Runtime, error) {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		kind = DefaultKind
	}
	rt, ok := r[kind]
	if !ok || rt == nil {
		return nil, fmt.Errorf("unknown runtime %q (available: %s)", kind, strings.Join(r.Names(), ", "))
	}
	return rt, nil
}

// Names returns the registered runtime identifiers in sorted order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
