package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtualpytest/pilot/pkg/core"
)

func testRegistration() Registration {
	return Registration{
		HostName: "lab-host-1",
		BaseURL:  "http://10.0.0.5:8083",
		Devices: []core.Device{
			{DeviceID: "device1", DeviceModel: "android_tv", Capabilities: core.DeviceCapabilities{RemoteKeys: []string{"HOME", "BACK"}, ADB: true}},
			{DeviceID: "device2", DeviceModel: "web_browser", Capabilities: core.DeviceCapabilities{Web: true}},
		},
	}
}

func TestRegisterAndLookup(t *testing.T) {
	r := New(2 * time.Minute)
	require.NoError(t, r.Register(testRegistration()))

	host, err := r.Host("lab-host-1")
	require.NoError(t, err)
	assert.Equal(t, core.HostStatusOnline, host.Status)
	assert.Equal(t, "http://10.0.0.5:8083", host.BaseURL)
	assert.False(t, host.LastSeen.IsZero())

	dev, err := r.Device("lab-host-1", "device1")
	require.NoError(t, err)
	assert.Equal(t, "android_tv", dev.DeviceModel)
	assert.True(t, dev.Capabilities.ADB)

	_, err = r.Device("lab-host-1", "device9")
	assert.True(t, core.IsKind(err, core.KindNotFound))
	_, err = r.Host("other-host")
	assert.True(t, core.IsKind(err, core.KindNotFound))

	devices, err := r.Devices("lab-host-1")
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "device1", devices[0].DeviceID)
}

func TestRegisterValidation(t *testing.T) {
	r := New(2 * time.Minute)

	reg := testRegistration()
	reg.HostName = ""
	assert.True(t, core.IsKind(r.Register(reg), core.KindInvalidInput))

	reg = testRegistration()
	reg.BaseURL = ""
	assert.True(t, core.IsKind(r.Register(reg), core.KindInvalidInput))

	reg = testRegistration()
	reg.Devices[1].DeviceID = "device1"
	assert.True(t, core.IsKind(r.Register(reg), core.KindInvalidInput))
}

func TestReRegisterReplaces(t *testing.T) {
	r := New(2 * time.Minute)
	require.NoError(t, r.Register(testRegistration()))

	reg := testRegistration()
	reg.BaseURL = "http://10.0.0.6:8083"
	reg.Devices = reg.Devices[:1]
	require.NoError(t, r.Register(reg))

	host, err := r.Host("lab-host-1")
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.6:8083", host.BaseURL)

	devices, err := r.Devices("lab-host-1")
	require.NoError(t, err)
	assert.Len(t, devices, 1)
	_, err = r.Device("lab-host-1", "device2")
	assert.True(t, core.IsKind(err, core.KindNotFound))
}

func TestHeartbeat(t *testing.T) {
	r := New(2 * time.Minute)
	err := r.Heartbeat("lab-host-1")
	assert.True(t, core.IsKind(err, core.KindNotFound), "unknown host must be told to re-register")

	require.NoError(t, r.Register(testRegistration()))
	before, err := r.Host("lab-host-1")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, r.Heartbeat("lab-host-1"))
	after, err := r.Host("lab-host-1")
	require.NoError(t, err)
	assert.True(t, after.LastSeen.After(before.LastSeen))
}

func TestSweepMarksOfflineOnce(t *testing.T) {
	r := New(10 * time.Millisecond)
	require.NoError(t, r.Register(testRegistration()))

	// Fresh heartbeat: nothing to sweep
	assert.Empty(t, r.Sweep())

	time.Sleep(20 * time.Millisecond)
	orphaned := r.Sweep()
	require.Len(t, orphaned, 2)
	assert.Equal(t, DeviceKey{HostName: "lab-host-1", DeviceID: "device1"}, orphaned[0])

	host, err := r.Host("lab-host-1")
	require.NoError(t, err)
	assert.Equal(t, core.HostStatusOffline, host.Status)

	// Second pass reports nothing new
	assert.Empty(t, r.Sweep())

	// Heartbeat recovers the host
	require.NoError(t, r.Heartbeat("lab-host-1"))
	host, err = r.Host("lab-host-1")
	require.NoError(t, err)
	assert.Equal(t, core.HostStatusOnline, host.Status)
}

func TestMarkOffline(t *testing.T) {
	r := New(2 * time.Minute)
	require.NoError(t, r.Register(testRegistration()))

	keys, err := r.MarkOffline("lab-host-1")
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	keys, err = r.MarkOffline("lab-host-1")
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = r.MarkOffline("ghost-host")
	assert.True(t, core.IsKind(err, core.KindNotFound))
}

func TestHostsSorted(t *testing.T) {
	r := New(2 * time.Minute)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		reg := testRegistration()
		reg.HostName = name
		require.NoError(t, r.Register(reg))
	}
	hosts := r.Hosts()
	require.Len(t, hosts, 3)
	assert.Equal(t, "alpha", hosts[0].HostName)
	assert.Equal(t, "mid", hosts[1].HostName)
	assert.Equal(t, "zeta", hosts[2].HostName)
}
