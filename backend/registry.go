package backend

import (
	"fmt"
	"slices"
	"sync"
)

// Backend names.
const (
	// BackendNoop is the offline HAL device. It validates objects but
	// never touches a GPU, which makes it the device of choice for tools
	// and tests.
	BackendNoop = "noop"
)

// DeviceFactory opens a new device.
type DeviceFactory func() (*Device, error)

// registry holds registered device factories.
var (
	registryMu sync.RWMutex
	backends   = make(map[string]DeviceFactory)
	// Priority order for device selection (first available wins).
	backendPriority = []string{BackendNoop}
)

// Register registers a device factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory DeviceFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the registered backend names in sorted order.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Open opens a device on the named backend.
func Open(name string) (*Device, error) {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
	}
	return open(name, factory)
}

// Default opens a device on the best available backend.
// Backends in the priority list are tried first, then the remaining ones
// in name order.
func Default() (*Device, error) {
	registryMu.RLock()
	order := make([]string, 0, len(backends))
	for _, name := range backendPriority {
		if _, ok := backends[name]; ok {
			order = append(order, name)
		}
	}
	rest := make([]string, 0, len(backends))
	for name := range backends {
		if !slices.Contains(order, name) {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	order = append(order, rest...)
	factories := make([]DeviceFactory, len(order))
	for i, name := range order {
		factories[i] = backends[name]
	}
	registryMu.RUnlock()

	var lastErr error
	for i, factory := range factories {
		d, err := open(order[i], factory)
		if err == nil {
			return d, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrBackendNotAvailable
}

func open(name string, factory DeviceFactory) (*Device, error) {
	d, err := factory()
	if err != nil {
		return nil, fmt.Errorf("backend: open %q: %w", name, err)
	}
	if d == nil || d.HAL == nil {
		return nil, fmt.Errorf("backend: open %q: %w", name, ErrNilDevice)
	}
	if d.Name == "" {
		d.Name = name
	}
	return d, nil
}
