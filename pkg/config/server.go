package config

import "time"

// ServerConfig groups settings of the orchestrator process.
type ServerConfig struct {
	// ListenAddr is the HTTP bind address.
	ListenAddr string `yaml:"listen_addr"`

	// HostRequestTimeout bounds one server-to-host round-trip (control
	// pings, execution submits, status polls).
	HostRequestTimeout time.Duration `yaml:"host_request_timeout"`

	// SweepInterval is how often the registry checks host liveness.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// HostOfflineAfter is how long a host may stay silent before the sweep
	// marks it offline and reaps its device sessions.
	HostOfflineAfter time.Duration `yaml:"host_offline_after"`

	// NavCacheTTL bounds how long a unified navigation graph may be served
	// from cache. Trees mutate frequently; stale paths fail at runtime.
	NavCacheTTL time.Duration `yaml:"nav_cache_ttl"`
}

// DefaultServerConfig returns the built-in server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ListenAddr:         ":8082",
		HostRequestTimeout: 10 * time.Second,
		SweepInterval:      30 * time.Second,
		HostOfflineAfter:   2 * time.Minute,
		NavCacheTTL:        5 * time.Minute,
	}
}

// DeviceConfig declares one device attached to a host.
type DeviceConfig struct {
	DeviceID    string `yaml:"device_id"`
	DeviceModel string `yaml:"device_model"`
}

// HostConfig groups settings of the host daemon process.
type HostConfig struct {
	// HostName is the unique name this host registers under.
	HostName string `yaml:"host_name"`

	// ListenAddr is the HTTP bind address.
	ListenAddr string `yaml:"listen_addr"`

	// AdvertiseURL is the base URL the server should use to reach this
	// host. Defaults to http://<hostname><listen_addr> when empty.
	AdvertiseURL string `yaml:"advertise_url"`

	// ServerURL is the orchestrator base URL for registration/heartbeat.
	ServerURL string `yaml:"server_url"`

	// HeartbeatInterval is how often the host reports liveness.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// Devices lists the devices this host drives.
	Devices []DeviceConfig `yaml:"devices"`
}

// DefaultHostConfig returns the built-in host defaults.
func DefaultHostConfig() *HostConfig {
	return &HostConfig{
		HostName:          "host-1",
		ListenAddr:        ":8083",
		ServerURL:         "http://localhost:8082",
		HeartbeatInterval: 30 * time.Second,
	}
}
