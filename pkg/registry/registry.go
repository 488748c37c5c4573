// Package registry tracks the hosts known to the server and the devices
// they expose. Hosts register on startup, heartbeat periodically, and are
// swept offline when heartbeats stop. The registry holds no goroutines:
// the control layer drives the sweep from its watchdog ticker.
package registry

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/virtualpytest/pilot/pkg/core"
)

// Registration is the payload a host presents when it announces itself.
// Re-registering an existing host name replaces the previous entry.
type Registration struct {
	HostName string        `json:"host_name"`
	BaseURL  string        `json:"base_url"`
	Devices  []core.Device `json:"devices"`
}

// DeviceKey identifies one device on one host.
type DeviceKey struct {
	HostName string `json:"host_name"`
	DeviceID string `json:"device_id"`
}

type hostEntry struct {
	host    core.Host
	devices []core.Device
	byID    map[string]int
}

// Registry is the in-memory host and device inventory.
type Registry struct {
	mu           sync.RWMutex
	hosts        map[string]*hostEntry
	offlineAfter time.Duration
}

// New creates a registry. Hosts silent for longer than offlineAfter are
// marked offline by Sweep.
func New(offlineAfter time.Duration) *Registry {
	return &Registry{
		hosts:        make(map[string]*hostEntry),
		offlineAfter: offlineAfter,
	}
}

// Register adds or replaces a host entry and marks it online.
func (r *Registry) Register(reg Registration) error {
	if reg.HostName == "" {
		return core.Errf(core.KindInvalidInput, "host_name is required")
	}
	if reg.BaseURL == "" {
		return core.Errf(core.KindInvalidInput, "base_url is required")
	}
	byID := make(map[string]int, len(reg.Devices))
	for i, d := range reg.Devices {
		if d.DeviceID == "" {
			return core.Errf(core.KindInvalidInput, "device %d has empty device_id", i)
		}
		if _, dup := byID[d.DeviceID]; dup {
			return core.Errf(core.KindInvalidInput, "duplicate device_id %s", d.DeviceID)
		}
		byID[d.DeviceID] = i
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.hosts[reg.HostName] = &hostEntry{
		host: core.Host{
			HostName: reg.HostName,
			BaseURL:  reg.BaseURL,
			Status:   core.HostStatusOnline,
			LastSeen: time.Now(),
		},
		devices: append([]core.Device(nil), reg.Devices...),
		byID:    byID,
	}
	slog.Info("Host registered", "host", reg.HostName, "base_url", reg.BaseURL, "devices", len(reg.Devices))
	return nil
}

// Heartbeat refreshes a host's last_seen and brings it back online after an
// offline spell. Unknown hosts get a not_found error so they re-register.
func (r *Registry) Heartbeat(hostName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.hosts[hostName]
	if !ok {
		return core.Errf(core.KindNotFound, "host %s is not registered", hostName)
	}
	if entry.host.Status == core.HostStatusOffline {
		slog.Info("Host back online", "host", hostName)
	}
	entry.host.Status = core.HostStatusOnline
	entry.host.LastSeen = time.Now()
	return nil
}

// Host returns a snapshot of one host.
func (r *Registry) Host(hostName string) (core.Host, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.hosts[hostName]
	if !ok {
		return core.Host{}, core.Errf(core.KindNotFound, "host %s is not registered", hostName)
	}
	return entry.host, nil
}

// Device returns a snapshot of one device on one host.
func (r *Registry) Device(hostName, deviceID string) (core.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.hosts[hostName]
	if !ok {
		return core.Device{}, core.Errf(core.KindNotFound, "host %s is not registered", hostName)
	}
	i, ok := entry.byID[deviceID]
	if !ok {
		return core.Device{}, core.Errf(core.KindNotFound, "device %s not found on host %s", deviceID, hostName)
	}
	return entry.devices[i], nil
}

// Hosts returns all hosts sorted by name.
func (r *Registry) Hosts() []core.Host {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Host, 0, len(r.hosts))
	for _, entry := range r.hosts {
		out = append(out, entry.host)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HostName < out[j].HostName })
	return out
}

// Devices returns a host's devices in registration order.
func (r *Registry) Devices(hostName string) ([]core.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.hosts[hostName]
	if !ok {
		return nil, core.Errf(core.KindNotFound, "host %s is not registered", hostName)
	}
	return append([]core.Device(nil), entry.devices...), nil
}

// Sweep marks hosts silent for longer than offlineAfter as offline and
// returns the device keys of hosts that flipped on this pass, so the
// control layer can revoke their sessions. Already-offline hosts do not
// report their devices again.
func (r *Registry) Sweep() []DeviceKey {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	var orphaned []DeviceKey
	for name, entry := range r.hosts {
		if entry.host.Status == core.HostStatusOffline {
			continue
		}
		if now.Sub(entry.host.LastSeen) <= r.offlineAfter {
			continue
		}
		entry.host.Status = core.HostStatusOffline
		slog.Warn("Host offline, heartbeat overdue", "host", name, "last_seen", entry.host.LastSeen)
		for _, d := range entry.devices {
			orphaned = append(orphaned, DeviceKey{HostName: name, DeviceID: d.DeviceID})
		}
	}
	return orphaned
}

// MarkOffline flips a host offline immediately, for callers that discovered
// unreachability out of band. Returns the host's device keys; the second
// call on an already-offline host returns nothing.
func (r *Registry) MarkOffline(hostName string) ([]DeviceKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.hosts[hostName]
	if !ok {
		return nil, core.Errf(core.KindNotFound, "host %s is not registered", hostName)
	}
	if entry.host.Status == core.HostStatusOffline {
		return nil, nil
	}
	entry.host.Status = core.HostStatusOffline
	slog.Warn("Host marked offline", "host", hostName)
	keys := make([]DeviceKey, 0, len(entry.devices))
	for _, d := range entry.devices {
		keys = append(keys, DeviceKey{HostName: hostName, DeviceID: d.DeviceID})
	}
	return keys, nil
}
