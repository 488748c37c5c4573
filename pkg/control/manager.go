// Package control implements exclusive device ownership. A session is the
// lock on one device: taking control revokes whoever held it, releasing is
// idempotent, and a watchdog reaps sessions whose host stopped responding.
// Revocation invalidates the token only; work already queued on the host
// drains to a terminal state.
package control

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/virtualpytest/pilot/pkg/core"
	"github.com/virtualpytest/pilot/pkg/navigation"
	"github.com/virtualpytest/pilot/pkg/registry"
	"github.com/virtualpytest/pilot/pkg/store"
)

// HostPinger checks that a host answers for one of its devices within the
// caller's context deadline. The proxy's HTTP client implements it.
type HostPinger interface {
	Ping(ctx context.Context, host core.Host, deviceID string) error
}

// TakeRequest are the parameters of a lock acquisition.
type TakeRequest struct {
	HostName string `json:"host_name"`
	DeviceID string `json:"device_id"`
	TeamID   string `json:"team_id"`
	TreeID   string `json:"tree_id,omitempty"`
}

// Manager owns the session table. All methods are safe for concurrent use.
type Manager struct {
	registry    *registry.Registry
	nav         *navigation.Service
	trees       store.NavigationTreeRepo
	pinger      HostPinger
	pingTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*core.Session
	byDevice map[string]string // host|device -> session id
}

// NewManager creates a session manager.
func NewManager(reg *registry.Registry, nav *navigation.Service, trees store.NavigationTreeRepo, pinger HostPinger, pingTimeout time.Duration) *Manager {
	return &Manager{
		registry:    reg,
		nav:         nav,
		trees:       trees,
		pinger:      pinger,
		pingTimeout: pingTimeout,
		sessions:    make(map[string]*core.Session),
		byDevice:    make(map[string]string),
	}
}

func deviceKey(hostName, deviceID string) string { return hostName + "|" + deviceID }

// TakeControl acquires the device lock, revoking any current owner. The
// host must answer a control ping within the bounded timeout; when it does
// not, the host is marked offline, its sessions are reaped, and the call
// fails with host_unreachable. With a tree_id the navigation cache for the
// tree's (team, interface) is built eagerly; cache_ready reports whether
// that succeeded, it never blocks the lock itself.
func (m *Manager) TakeControl(ctx context.Context, req TakeRequest) (*core.Session, error) {
	if req.HostName == "" || req.DeviceID == "" || req.TeamID == "" {
		return nil, core.Errf(core.KindInvalidInput, "host_name, device_id and team_id are required")
	}
	if _, err := m.registry.Device(req.HostName, req.DeviceID); err != nil {
		return nil, err
	}
	host, err := m.registry.Host(req.HostName)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, m.pingTimeout)
	defer cancel()
	if err := m.pinger.Ping(pingCtx, host, req.DeviceID); err != nil {
		if keys, mErr := m.registry.MarkOffline(req.HostName); mErr == nil && len(keys) > 0 {
			m.ReapDevices(keys)
		}
		return nil, core.WrapErr(core.KindHostUnreachable, err, "host %s did not answer control ping", req.HostName)
	}
	// A ping answer counts as liveness
	_ = m.registry.Heartbeat(req.HostName)

	now := time.Now()
	session := &core.Session{
		SessionID:  uuid.New().String(),
		HostName:   req.HostName,
		DeviceID:   req.DeviceID,
		TeamID:     req.TeamID,
		TreeID:     req.TreeID,
		CreatedAt:  now,
		LastUsedAt: now,
	}
	if req.TreeID != "" {
		session.Interface, session.CacheReady = m.warmNavigationCache(ctx, req.TeamID, req.TreeID)
	}

	m.mu.Lock()
	key := deviceKey(req.HostName, req.DeviceID)
	if prevID, ok := m.byDevice[key]; ok {
		delete(m.sessions, prevID)
		slog.Info("Session revoked by new owner",
			"revoked_session", prevID, "host", req.HostName, "device", req.DeviceID)
	}
	m.sessions[session.SessionID] = session
	m.byDevice[key] = session.SessionID
	m.mu.Unlock()

	slog.Info("Control taken",
		"session", session.SessionID, "host", req.HostName, "device", req.DeviceID,
		"team", req.TeamID, "cache_ready", session.CacheReady)
	return snapshot(session), nil
}

// warmNavigationCache resolves the tree and builds its unified graph.
// Failures degrade to cache_ready=false: navigation submissions against
// this session will be rejected until a later take_control succeeds.
func (m *Manager) warmNavigationCache(ctx context.Context, teamID, treeID string) (iface string, ready bool) {
	tree, err := m.trees.GetByTreeID(ctx, treeID)
	if err != nil {
		slog.Warn("Navigation cache not built, tree lookup failed", "tree_id", treeID, "error", err)
		return "", false
	}
	if tree.TeamID != teamID {
		slog.Warn("Navigation cache not built, tree belongs to another team", "tree_id", treeID)
		return "", false
	}
	if _, err := m.nav.Graph(ctx, teamID, tree.Interface); err != nil {
		slog.Warn("Navigation cache not built", "tree_id", treeID, "error", err)
		return tree.Interface, false
	}
	return tree.Interface, true
}

// Release gives up the caller's lock. Unknown or already-revoked sessions
// are a no-op: release is idempotent and never fails the caller.
func (m *Manager) Release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	delete(m.sessions, sessionID)
	key := deviceKey(s.HostName, s.DeviceID)
	if m.byDevice[key] == sessionID {
		delete(m.byDevice, key)
	}
	slog.Info("Control released", "session", sessionID, "host", s.HostName, "device", s.DeviceID)
}

// Validate resolves a session token. Revoked and unknown tokens both come
// back as not_owner: the caller cannot tell the difference and should not.
func (m *Manager) Validate(sessionID string) (core.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return core.Session{}, core.Errf(core.KindNotOwner, "session does not own a device")
	}
	return *s, nil
}

// ValidateOwner checks that the session currently owns the given device.
func (m *Manager) ValidateOwner(sessionID, hostName, deviceID string) (core.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.HostName != hostName || s.DeviceID != deviceID {
		return core.Session{}, core.Errf(core.KindNotOwner, "session does not own device %s on host %s", deviceID, hostName)
	}
	return *s, nil
}

// Touch refreshes the session's idle timer after a successful use.
func (m *Manager) Touch(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		s.LastUsedAt = time.Now()
	}
}

// ListLocked returns all active sessions ordered by host then device.
func (m *Manager) ListLocked() []core.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].HostName != out[j].HostName {
			return out[i].HostName < out[j].HostName
		}
		return out[i].DeviceID < out[j].DeviceID
	})
	return out
}

// ReapDevices revokes the sessions owning the given devices and reports
// how many were dropped. The watchdog calls this with the sweep's orphans.
func (m *Manager) ReapDevices(keys []registry.DeviceKey) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	reaped := 0
	for _, key := range keys {
		k := deviceKey(key.HostName, key.DeviceID)
		id, ok := m.byDevice[k]
		if !ok {
			continue
		}
		delete(m.sessions, id)
		delete(m.byDevice, k)
		reaped++
		slog.Warn("Session reaped, host offline", "session", id, "host", key.HostName, "device", key.DeviceID)
	}
	return reaped
}

// ReapIdle revokes sessions that have not been used for maxIdle. The
// retention service calls this on its cleanup interval.
func (m *Manager) ReapIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	m.mu.Lock()
	defer m.mu.Unlock()
	reaped := 0
	for id, s := range m.sessions {
		if s.LastUsedAt.After(cutoff) {
			continue
		}
		delete(m.sessions, id)
		key := deviceKey(s.HostName, s.DeviceID)
		if m.byDevice[key] == id {
			delete(m.byDevice, key)
		}
		reaped++
		slog.Info("Session reaped, idle past limit", "session", id, "device", s.DeviceID)
	}
	return reaped
}

func snapshot(s *core.Session) *core.Session {
	cp := *s
	return &cp
}
