// Package planner is the AI plan builder: a deterministic pipeline that
// turns a natural-language prompt into a validated executable graph. Every
// stage before and after the single LLM call is pure computation; identical
// prompts over identical context reuse the cached plan without calling the
// LLM at all.
package planner

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/virtualpytest/pilot/pkg/config"
	"github.com/virtualpytest/pilot/pkg/core"
	"github.com/virtualpytest/pilot/pkg/llm"
	"github.com/virtualpytest/pilot/pkg/metrics"
	"github.com/virtualpytest/pilot/pkg/navigation"
	"github.com/virtualpytest/pilot/pkg/store"
)

// OutcomeStatus is the plan builder result class. Disambiguation and
// infeasibility are successful responses carrying structured payloads,
// never errors.
type OutcomeStatus string

const (
	OutcomeOK                  OutcomeStatus = "ok"
	OutcomeInfeasible          OutcomeStatus = "infeasible"
	OutcomeNeedsDisambiguation OutcomeStatus = "needs_disambiguation"
)

// Request are the inputs of one plan generation.
type Request struct {
	TeamID      string `json:"team_id"`
	Interface   string `json:"interface"`
	DeviceModel string `json:"device_model"`
	Prompt      string `json:"prompt"`

	// CurrentNodeID is the device's known location; empty means the tree
	// root.
	CurrentNodeID string `json:"current_node_id,omitempty"`

	// Resolutions are the caller's answers to a prior disambiguation round:
	// phrase -> chosen node label. Confirmed choices are persisted as
	// learned mappings before the pipeline reruns.
	Resolutions map[string]string `json:"resolutions,omitempty"`
}

// Outcome is the structured result of one generation.
type Outcome struct {
	Status      OutcomeStatus `json:"status"`
	Graph       *core.Graph   `json:"graph,omitempty"`
	Analysis    string        `json:"analysis,omitempty"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	CacheHit    bool          `json:"cache_hit,omitempty"`

	// Disambiguation payload.
	Ambiguities    []Ambiguity `json:"ambiguities,omitempty"`
	AvailableNodes []string    `json:"available_nodes,omitempty"`
	OriginalPrompt string      `json:"original_prompt,omitempty"`
}

// Builder runs the plan generation pipeline.
type Builder struct {
	cfg       *config.AIConfig
	llm       llm.Client
	loader    *contextLoader
	planCache store.PlanCacheRepo
	mappings  store.LearnedMappingRepo
	metrics   *metrics.Metrics
}

// NewBuilder wires the pipeline. metrics may be nil.
func NewBuilder(cfg *config.AIConfig, client llm.Client, nav *navigation.Service, models *config.DeviceModelRegistry, st store.Store, m *metrics.Metrics) *Builder {
	return &Builder{
		cfg:       cfg,
		llm:       client,
		loader:    newContextLoader(nav, models, cfg.ContextTTL),
		planCache: st.PlanCache(),
		mappings:  st.LearnedMappings(),
		metrics:   m,
	}
}

// InvalidateContext drops the cached plan context for one (team, interface).
// Tree write endpoints call it alongside the navigation cache invalidation.
func (b *Builder) InvalidateContext(teamID, iface string) {
	b.loader.invalidate(teamID, iface)
}

// ConfirmMapping persists one phrase -> node substitution. Repeated
// confirmations bump usage_count and keep resolved_node at the new value.
func (b *Builder) ConfirmMapping(ctx context.Context, teamID, iface, phrase, node string) error {
	if phrase == "" || node == "" {
		return core.Errf(core.KindInvalidInput, "phrase and node are required")
	}
	return b.mappings.Upsert(ctx, &store.LearnedMapping{
		TeamID:       teamID,
		Interface:    iface,
		Phrase:       strings.ToLower(phrase),
		ResolvedNode: node,
	})
}

// Generate runs the full pipeline for one prompt. Errors are reserved for
// invalid input and infrastructure failures; everything the user can act on
// (infeasibility, ambiguity) comes back as a successful Outcome.
func (b *Builder) Generate(ctx context.Context, req Request) (*Outcome, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, core.Errf(core.KindInvalidInput, "prompt is empty")
	}
	if req.TeamID == "" || req.Interface == "" || req.DeviceModel == "" {
		return nil, core.Errf(core.KindInvalidInput, "team_id, interface and device_model are required")
	}

	pc, err := b.loader.load(ctx, req.TeamID, req.Interface, req.DeviceModel)
	if err != nil {
		return nil, err
	}

	fingerprint := Fingerprint(req.Prompt, pc.signature())
	if cached, err := b.planCache.GetByKey(ctx, fingerprint, req.TeamID); err == nil {
		if err := b.planCache.Touch(ctx, fingerprint, req.TeamID); err != nil {
			slog.Warn("Plan cache touch failed", "fingerprint", fingerprint, "error", err)
		}
		b.metrics.RecordPlanCacheHit()
		b.metrics.RecordPlanOutcome(string(OutcomeOK))
		slog.Info("Plan served from cache", "team", req.TeamID, "fingerprint", fingerprint)
		graph := cached.Graph
		return &Outcome{
			Status:      OutcomeOK,
			Graph:       &graph,
			Analysis:    cached.Analysis,
			Fingerprint: fingerprint,
			CacheHit:    true,
		}, nil
	} else if !core.IsKind(err, core.KindNotFound) {
		return nil, err
	}
	b.metrics.RecordPlanCacheMiss()

	phrases := ExtractPhrases(req.Prompt)
	if len(phrases) == 0 {
		return b.outcome(&Outcome{
			Status:   OutcomeInfeasible,
			Analysis: "The prompt contains no usable phrases: every word is a navigation filler.",
		}), nil
	}

	substitutions, err := b.applyResolutions(ctx, req, pc)
	if err != nil {
		return nil, err
	}

	labelSet := make(map[string]string, len(pc.Nodes))
	for _, label := range pc.Nodes {
		labelSet[strings.ToLower(label)] = label
	}

	// Exact-match short circuit: one phrase, it names a node verbatim, and
	// the prompt asks for nothing but getting there.
	intent := ExtractIntent(req.Prompt)
	if len(phrases) == 1 && len(intent.Actions) == 0 && len(intent.Verifications) == 0 && !intent.HasLoop {
		if label, ok := labelSet[phrases[0]]; ok {
			return b.finishPlan(ctx, req, pc, fingerprint, TrivialNavigationPlan(label),
				"Exact node match, direct navigation plan.")
		}
	}

	var remaining []string
	for _, phrase := range phrases {
		if _, done := substitutions[phrase]; done {
			continue
		}
		if _, exact := labelSet[phrase]; exact {
			continue
		}
		remaining = append(remaining, phrase)
	}

	remaining, err = b.applyLearnedMappings(ctx, req, substitutions, remaining)
	if err != nil {
		return nil, err
	}

	// Fuzzy pass over whatever is left. Any ambiguity halts the pipeline
	// before the LLM sees the prompt.
	var ambiguities []Ambiguity
	for _, phrase := range remaining {
		outcome, corrected, suggestions := matchPhrase(phrase, pc.Nodes, b.cfg.FuzzyThreshold, b.cfg.MaxSuggestions)
		switch outcome {
		case matchCorrected:
			substitutions[phrase] = corrected
		case matchAmbiguous:
			ambiguities = append(ambiguities, Ambiguity{Original: phrase, Suggestions: suggestionLabels(suggestions)})
		}
	}
	if len(ambiguities) > 0 {
		return b.outcome(&Outcome{
			Status:         OutcomeNeedsDisambiguation,
			Ambiguities:    ambiguities,
			AvailableNodes: append([]string(nil), pc.Nodes...),
			OriginalPrompt: req.Prompt,
		}), nil
	}

	effectivePrompt := substitutePrompt(req.Prompt, substitutions)
	intent = ExtractIntent(effectivePrompt)

	mustNodes := substitutionTargets(substitutions)
	fc := filterContext(pc, intent, mustNodes, b.cfg.TopNodes, b.cfg.TopActions, b.cfg.TopVerifications)
	if reason := infeasibleCategory(intent, fc); reason != "" {
		return b.outcome(&Outcome{Status: OutcomeInfeasible, Analysis: reason}), nil
	}

	parsed, err := b.completeAndParse(ctx, effectivePrompt, intent, fc, pc)
	if err != nil {
		return nil, err
	}

	graph := AssembleGraph(parsed.Steps, intent)
	EnforceLabels(graph)

	postAmbiguities, err := validateTargets(graph, pc.graph, b.cfg.FuzzyThreshold, b.cfg.MaxSuggestions)
	if err != nil {
		if core.IsKind(err, core.KindInfeasible) {
			return b.outcome(&Outcome{Status: OutcomeInfeasible, Analysis: err.Error()}), nil
		}
		return nil, err
	}
	if len(postAmbiguities) > 0 {
		return b.outcome(&Outcome{
			Status:         OutcomeNeedsDisambiguation,
			Ambiguities:    postAmbiguities,
			AvailableNodes: append([]string(nil), pc.Nodes...),
			OriginalPrompt: req.Prompt,
		}), nil
	}
	EnforceLabels(graph)

	return b.finishPlan(ctx, req, pc, fingerprint, graph, parsed.Analysis)
}

// finishPlan runs the shared tail of the pipeline: transition pre-fetch,
// cache store, outcome assembly.
func (b *Builder) finishPlan(ctx context.Context, req Request, pc *PlanContext, fingerprint string, graph *core.Graph, analysis string) (*Outcome, error) {
	if err := prefetchTransitions(graph, pc.graph, req.CurrentNodeID); err != nil {
		if core.IsKind(err, core.KindInfeasible) {
			return b.outcome(&Outcome{Status: OutcomeInfeasible, Analysis: err.Error()}), nil
		}
		return nil, err
	}

	now := time.Now()
	if err := b.planCache.Upsert(ctx, &store.PlanCacheEntry{
		Fingerprint: fingerprint,
		TeamID:      req.TeamID,
		Prompt:      req.Prompt,
		Analysis:    analysis,
		Graph:       *graph,
		UseCount:    1,
		CreatedAt:   now,
		LastUsed:    now,
	}); err != nil {
		slog.Warn("Plan cache store failed", "fingerprint", fingerprint, "error", err)
	}

	slog.Info("Plan generated",
		"team", req.TeamID, "interface", req.Interface,
		"nodes", len(graph.Nodes), "fingerprint", fingerprint)
	return b.outcome(&Outcome{
		Status:      OutcomeOK,
		Graph:       graph,
		Analysis:    analysis,
		Fingerprint: fingerprint,
	}), nil
}

// completeAndParse issues the single LLM call and parses the plain-text
// step list. A response yielding zero steps is retried once with the
// stricter template before failing.
func (b *Builder) completeAndParse(ctx context.Context, prompt string, intent Intent, fc FilteredContext, pc *PlanContext) (ParsedResponse, error) {
	user := buildUserPrompt(prompt, intent, fc, pc.DeviceModel, pc.Interface)

	b.metrics.RecordLLMCall()
	resp, err := b.llm.Complete(ctx, llm.Request{System: systemInstructions, User: user})
	if err != nil {
		return ParsedResponse{}, err
	}
	parsed := ParseResponse(resp.Text)
	if len(parsed.Steps) > 0 {
		return parsed, nil
	}

	slog.Warn("Plan response yielded no steps, retrying with strict template")
	b.metrics.RecordLLMCall()
	resp, err = b.llm.Complete(ctx, llm.Request{
		System: systemInstructions + "\n\n" + strictRetryInstructions,
		User:   user,
	})
	if err != nil {
		return ParsedResponse{}, err
	}
	parsed = ParseResponse(resp.Text)
	if len(parsed.Steps) == 0 {
		return ParsedResponse{}, core.Errf(core.KindInternal, "completion could not be parsed into any plan steps")
	}
	return parsed, nil
}

// applyResolutions validates and persists the caller's disambiguation
// answers, returning them as the initial substitution set.
func (b *Builder) applyResolutions(ctx context.Context, req Request, pc *PlanContext) (map[string]string, error) {
	substitutions := make(map[string]string)
	if len(req.Resolutions) == 0 {
		return substitutions, nil
	}

	phrases := make([]string, 0, len(req.Resolutions))
	for phrase := range req.Resolutions {
		phrases = append(phrases, phrase)
	}
	sort.Strings(phrases)

	for _, phrase := range phrases {
		node := req.Resolutions[phrase]
		if !containsString(pc.Nodes, node) {
			return nil, core.Errf(core.KindInvalidInput, "resolution %q -> %q names an unknown node", phrase, node)
		}
		if err := b.ConfirmMapping(ctx, req.TeamID, req.Interface, phrase, node); err != nil {
			return nil, err
		}
		substitutions[strings.ToLower(phrase)] = node
	}
	return substitutions, nil
}

// applyLearnedMappings resolves remaining phrases through the learned
// mapping store in one batch and returns the still-unmatched rest.
func (b *Builder) applyLearnedMappings(ctx context.Context, req Request, substitutions map[string]string, remaining []string) ([]string, error) {
	if len(remaining) == 0 {
		return remaining, nil
	}
	found, err := b.mappings.GetBatch(ctx, req.TeamID, req.Interface, remaining)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return remaining, nil
	}

	var applied []string
	var rest []string
	for _, phrase := range remaining {
		if node, ok := found[phrase]; ok {
			substitutions[phrase] = node
			applied = append(applied, phrase)
			continue
		}
		rest = append(rest, phrase)
	}
	if err := b.mappings.TouchBatch(ctx, req.TeamID, req.Interface, applied); err != nil {
		slog.Warn("Learned mapping touch failed", "team", req.TeamID, "error", err)
	}
	return rest, nil
}

func (b *Builder) outcome(o *Outcome) *Outcome {
	b.metrics.RecordPlanOutcome(string(o.Status))
	return o
}

// substitutePrompt rewrites whole-word phrase occurrences with their
// resolved node labels, so the LLM and the intent extractor see corrected
// names. Phrases apply in sorted order for determinism.
func substitutePrompt(prompt string, substitutions map[string]string) string {
	if len(substitutions) == 0 {
		return prompt
	}
	phrases := make([]string, 0, len(substitutions))
	for phrase := range substitutions {
		phrases = append(phrases, phrase)
	}
	sort.Strings(phrases)

	out := prompt
	for _, phrase := range phrases {
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(phrase) + `\b`)
		out = re.ReplaceAllString(out, substitutions[phrase])
	}
	return out
}

func substitutionTargets(substitutions map[string]string) []string {
	targets := make([]string, 0, len(substitutions))
	for _, node := range substitutions {
		if !containsString(targets, node) {
			targets = append(targets, node)
		}
	}
	sort.Strings(targets)
	return targets
}

// infeasibleCategory reports why the plan cannot be built when a keyword
// category retrieved nothing, or "" when all categories are satisfiable.
func infeasibleCategory(intent Intent, fc FilteredContext) string {
	switch {
	case len(intent.Navigation) > 0 && len(fc.Nodes) == 0:
		return "No navigation nodes match the prompt; the target screens do not exist in this interface."
	case len(intent.Actions) > 0 && len(fc.Actions) == 0:
		return "No device actions match the prompt; this device model cannot perform the requested commands."
	case len(intent.Verifications) > 0 && len(fc.Verifications) == 0:
		return "No verifications match the prompt; this device model cannot check the requested conditions."
	}
	return ""
}
