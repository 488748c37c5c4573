package config

// Config is the umbrella configuration object returned by Initialize()
// and used throughout both processes. Server-only sections stay nil in
// the host process and vice versa; shared sections are always populated.
type Config struct {
	configDir string // Configuration directory path (for reference)

	// Process sections
	Server *ServerConfig
	Host   *HostConfig

	// Shared sections
	AI        *AIConfig
	Queue     *QueueConfig
	Retention *RetentionConfig

	// Component registries
	DeviceModelRegistry *DeviceModelRegistry
	InterfaceRegistry   *InterfaceRegistry
}

// Stats contains statistics about loaded configuration
type Stats struct {
	DeviceModels int
	Interfaces   int
	HostDevices  int
}

// Stats returns configuration statistics for logging/monitoring
func (c *Config) Stats() Stats {
	s := Stats{}
	if c.DeviceModelRegistry != nil {
		s.DeviceModels = c.DeviceModelRegistry.Len()
	}
	if c.InterfaceRegistry != nil {
		s.Interfaces = c.InterfaceRegistry.Len()
	}
	if c.Host != nil {
		s.HostDevices = len(c.Host.Devices)
	}
	return s
}

// ConfigDir returns the configuration directory path
func (c *Config) ConfigDir() string {
	return c.configDir
}

// GetDeviceModel retrieves a device model by name.
// This is a convenience method that wraps DeviceModelRegistry.Get().
func (c *Config) GetDeviceModel(name string) (*DeviceModelConfig, error) {
	return c.DeviceModelRegistry.Get(name)
}

// GetInterface retrieves a user interface by name.
// This is a convenience method that wraps InterfaceRegistry.Get().
func (c *Config) GetInterface(name string) (*InterfaceConfig, error) {
	return c.InterfaceRegistry.Get(name)
}
