package driver

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory builds a driver bound to a device path.
type Factory func(device string) Driver

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a driver constructor selectable by name. It panics on a
// duplicate name; registration happens from init functions only.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[strings.ToLower(name)]; dup {
		panic(fmt.Sprintf("driver: duplicate registration of %q", name))
	}
	registry[strings.ToLower(name)] = factory
}

// Choose selects a registered driver by name, case-insensitively. An empty
// device keeps the driver's default.
func Choose(name, device string) (Driver, error) {
	registryMu.RLock()
	factory, ok := registry[strings.ToLower(name)]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("driver %q not supported (available: %s)",
			name, strings.Join(Names(), ", "))
	}
	return factory(device), nil
}

// Names lists all registered driver names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
