package config

import (
	"fmt"
	"sort"
	"sync"
)

// InterfaceConfig is the declarative description of one product surface
// (Android TV app, mobile app, web portal). It pins the device model it
// runs on and the root node of its navigation tree.
type InterfaceConfig struct {
	// DeviceModel names the DeviceModelConfig this surface targets.
	DeviceModel string `yaml:"device_model"`

	// RootNode is the navigation tree entry node label (usually "home").
	RootNode string `yaml:"root_node"`
}

// InterfaceRegistry stores user interface configurations in memory with
// thread-safe access.
type InterfaceRegistry struct {
	interfaces map[string]*InterfaceConfig
	mu         sync.RWMutex
}

// NewInterfaceRegistry creates a new interface registry
func NewInterfaceRegistry(interfaces map[string]*InterfaceConfig) *InterfaceRegistry {
	// Defensive copy to prevent external mutation
	copied := make(map[string]*InterfaceConfig, len(interfaces))
	for k, v := range interfaces {
		copied[k] = v
	}
	return &InterfaceRegistry{
		interfaces: copied,
	}
}

// Get retrieves an interface configuration by name (thread-safe)
func (r *InterfaceRegistry) Get(name string) (*InterfaceConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	iface, exists := r.interfaces[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrInterfaceNotFound, name)
	}
	return iface, nil
}

// Has checks if an interface exists in the registry (thread-safe)
func (r *InterfaceRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.interfaces[name]
	return exists
}

// Names returns all interface names sorted for deterministic iteration
func (r *InterfaceRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.interfaces))
	for k := range r.interfaces {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of interfaces in the registry (thread-safe)
func (r *InterfaceRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.interfaces)
}
