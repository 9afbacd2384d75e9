// Package ops is the named-operation dispatch registry. Each collective is
// routed through a stable string key rather than called on the backend
// directly, so alternative implementations of an operation can be swapped
// in during process-wide setup without changing the group's public surface.
//
// Registration happens once at init time; lookup of an unregistered name
// is a programming error and panics.
package ops

import (
	"fmt"
	"sort"
	"sync"
)

var (
	mu       sync.RWMutex
	registry = make(map[string]any)
)

// Register binds an implementation to name. Registering the same name
// twice replaces the previous implementation; this is how alternative
// implementations are swapped in during process setup.
func Register(name string, impl any) {
	if impl == nil {
		panic(fmt.Sprintf("ops: nil implementation registered for %q", name))
	}
	mu.Lock()
	defer mu.Unlock()
	registry[name] = impl
}

// Lookup returns the implementation registered under name.
func Lookup(name string) (any, bool) {
	mu.RLock()
	defer mu.RUnlock()
	impl, ok := registry[name]
	return impl, ok
}

// MustLookup returns the implementation registered under name with type T.
// A missing name or a mismatched type is a programming error, not a
// runtime fault, so both panic.
func MustLookup[T any](name string) T {
	impl, ok := Lookup(name)
	if !ok {
		panic(fmt.Sprintf("ops: no implementation registered for %q", name))
	}
	typed, ok := impl.(T)
	if !ok {
		panic(fmt.Sprintf("ops: implementation for %q has type %T, not the expected signature", name, impl))
	}
	return typed
}

// Names returns the sorted registered operation names.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
