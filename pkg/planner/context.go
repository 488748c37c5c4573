package planner

import (
	"context"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/virtualpytest/pilot/pkg/config"
	"github.com/virtualpytest/pilot/pkg/core"
	"github.com/virtualpytest/pilot/pkg/navigation"
)

// PlanContext is everything the pipeline knows about a (team, interface,
// device model) triple: the node labels of the unified graph plus the action
// and verification catalogs of the device model. It is the universe the
// filtered LLM context is drawn from.
type PlanContext struct {
	TeamID        string
	Interface     string
	DeviceModel   string
	Nodes         []string
	Actions       []string
	Verifications []string

	graph *navigation.UnifiedGraph
}

// Signature identifies the context portion of a plan fingerprint. Node
// labels are sorted so the fingerprint is independent of declaration order.
type Signature struct {
	DeviceModel    string   `json:"device_model"`
	Interface      string   `json:"interface"`
	AvailableNodes []string `json:"available_nodes"`
}

const defaultContextCacheSize = 64

type contextEntry struct {
	pc       *PlanContext
	storedAt time.Time
}

type contextLoader struct {
	nav    *navigation.Service
	models *config.DeviceModelRegistry
	ttl    time.Duration
	cache  *lru.Cache[string, contextEntry]
}

func newContextLoader(nav *navigation.Service, models *config.DeviceModelRegistry, ttl time.Duration) *contextLoader {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	// lru.New only errors on a non-positive size.
	cache, _ := lru.New[string, contextEntry](defaultContextCacheSize)
	return &contextLoader{nav: nav, models: models, ttl: ttl, cache: cache}
}

func (l *contextLoader) load(ctx context.Context, teamID, iface, deviceModel string) (*PlanContext, error) {
	key := teamID + "|" + iface + "|" + deviceModel
	if entry, ok := l.cache.Get(key); ok {
		if time.Since(entry.storedAt) < l.ttl {
			return entry.pc, nil
		}
		l.cache.Remove(key)
	}

	graph, err := l.nav.Graph(ctx, teamID, iface)
	if err != nil {
		return nil, err
	}
	model, err := l.models.Get(deviceModel)
	if err != nil {
		return nil, core.WrapErr(core.KindNotFound, err, "unknown device model %q", deviceModel)
	}

	pc := &PlanContext{
		TeamID:        teamID,
		Interface:     iface,
		DeviceModel:   deviceModel,
		Nodes:         graph.Labels(),
		Actions:       availableActions(model, graph),
		Verifications: append([]string(nil), model.Verifications...),
		graph:         graph,
	}
	l.cache.Add(key, contextEntry{pc: pc, storedAt: time.Now()})
	return pc, nil
}

func (l *contextLoader) invalidate(teamID, iface string) {
	prefix := teamID + "|" + iface + "|"
	for _, key := range l.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			l.cache.Remove(key)
		}
	}
}

// availableActions derives the command vocabulary from the device model
// capabilities, then appends the distinct commands the navigation tree
// actually uses. Tree commands rank naturally in context filtering because
// they are the ones prompts tend to name.
func availableActions(model *config.DeviceModelConfig, graph *navigation.UnifiedGraph) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(cmd string) {
		if cmd != "" && !seen[cmd] {
			seen[cmd] = true
			out = append(out, cmd)
		}
	}

	if len(model.RemoteKeys) > 0 {
		add("press_key")
		add("zap")
	}
	if model.ADB {
		add("launch_app")
		add("close_app")
		add("input_text")
		add("tap_coordinates")
	}
	if model.Web {
		add("open_url")
		add("click_element")
		add("input_text")
	}
	if model.Desktop {
		add("click_element")
		add("execute_command")
	}
	for _, cmd := range graph.EdgeCommands() {
		add(cmd)
	}
	return out
}

func (pc *PlanContext) signature() Signature {
	nodes := append([]string(nil), pc.Nodes...)
	sort.Strings(nodes)
	return Signature{
		DeviceModel:    pc.DeviceModel,
		Interface:      pc.Interface,
		AvailableNodes: nodes,
	}
}
