package adapters

import (
	"context"
	"sort"

	"github.com/virtualpytest/pilot/pkg/config"
	"github.com/virtualpytest/pilot/pkg/core"
)

// Command vocabularies per transport. press_key covers the whole remote-key
// vocabulary; the key itself travels in params.
var (
	remoteCommands  = []string{"press_key"}
	adbCommands     = []string{"launch_app", "close_app", "tap", "swipe", "input_text"}
	webCommands     = []string{"open_url", "click_element", "fill_field", "execute_script"}
	desktopCommands = []string{"run_command", "focus_window", "type_text"}
)

// CommandsFor lists every action command the given capabilities allow,
// sorted. The server's capability endpoint uses it without constructing
// any transport.
func CommandsFor(caps core.DeviceCapabilities) []string {
	var out []string
	if len(caps.RemoteKeys) > 0 {
		out = append(out, remoteCommands...)
	}
	if caps.ADB {
		out = append(out, adbCommands...)
	}
	if caps.Web {
		out = append(out, webCommands...)
	}
	if caps.Desktop {
		out = append(out, desktopCommands...)
	}
	sort.Strings(out)
	return out
}

// Dispatcher routes action commands to the transport that implements them,
// according to the device model's declared capabilities. It implements
// ActionExecutor so the executor stays transport-agnostic.
type Dispatcher struct {
	routes map[string]ActionExecutor
}

// NewDispatcher builds the routing table for one device model. Transports
// the model does not enable may be nil; their commands simply stay
// unrouted and fail with invalid_input.
func NewDispatcher(model *config.DeviceModelConfig, remote, adb, web, desktop ActionExecutor) *Dispatcher {
	d := &Dispatcher{routes: make(map[string]ActionExecutor)}
	if len(model.RemoteKeys) > 0 && remote != nil {
		for _, cmd := range remoteCommands {
			d.routes[cmd] = remote
		}
	}
	if model.ADB && adb != nil {
		for _, cmd := range adbCommands {
			d.routes[cmd] = adb
		}
	}
	if model.Web && web != nil {
		for _, cmd := range webCommands {
			d.routes[cmd] = web
		}
	}
	if model.Desktop && desktop != nil {
		for _, cmd := range desktopCommands {
			d.routes[cmd] = desktop
		}
	}
	return d
}

// Commands returns the routed command names in undefined order.
func (d *Dispatcher) Commands() []string {
	out := make([]string, 0, len(d.routes))
	for cmd := range d.routes {
		out = append(out, cmd)
	}
	return out
}

// Execute routes the action to its transport.
func (d *Dispatcher) Execute(ctx context.Context, action core.Action) (ActionResult, error) {
	exec, ok := d.routes[action.Command]
	if !ok {
		return ActionResult{}, core.Errf(core.KindInvalidInput, "command %q is not available on this device model", action.Command)
	}
	return exec.Execute(ctx, action)
}
