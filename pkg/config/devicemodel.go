package config

import (
	"fmt"
	"sort"
	"sync"
)

// DeviceModelConfig declares the capability catalog of one device model.
// Hosts report capabilities per device at registration; the server resolves
// them from this catalog by model name.
type DeviceModelConfig struct {
	// RemoteKeys is the remote-control key vocabulary (UP, DOWN, OK, ...).
	RemoteKeys []string `yaml:"remote_keys"`

	// ADB / Web / Desktop enable the respective command transports.
	ADB     bool `yaml:"adb"`
	Web     bool `yaml:"web"`
	Desktop bool `yaml:"desktop"`

	// Verifications lists the verification types the model supports
	// (check_audio, check_video, image_match, text_match, ...).
	Verifications []string `yaml:"verifications"`

	// Captures lists the screen capture methods (screenshot, video).
	Captures []string `yaml:"captures"`
}

// DeviceModelRegistry stores device model configurations in memory with
// thread-safe access.
type DeviceModelRegistry struct {
	models map[string]*DeviceModelConfig
	mu     sync.RWMutex
}

// NewDeviceModelRegistry creates a new device model registry
func NewDeviceModelRegistry(models map[string]*DeviceModelConfig) *DeviceModelRegistry {
	// Defensive copy to prevent external mutation
	copied := make(map[string]*DeviceModelConfig, len(models))
	for k, v := range models {
		copied[k] = v
	}
	return &DeviceModelRegistry{
		models: copied,
	}
}

// Get retrieves a device model configuration by name (thread-safe)
func (r *DeviceModelRegistry) Get(name string) (*DeviceModelConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	model, exists := r.models[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrDeviceModelNotFound, name)
	}
	return model, nil
}

// Has checks if a device model exists in the registry (thread-safe)
func (r *DeviceModelRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.models[name]
	return exists
}

// Names returns all model names sorted for deterministic iteration
func (r *DeviceModelRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))
	for k := range r.models {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of device models in the registry (thread-safe)
func (r *DeviceModelRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}
