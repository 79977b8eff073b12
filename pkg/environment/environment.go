// Package environment simulates the shared software environment agents live
// in: a spatial index of hosts/processes/namespaces, a transactional resource
// ledger, a constraint engine gating every action, and a dynamics loop that
// folds sampled host metrics into observable state. Agents interact with it
// exclusively through ExecuteAction and Observe.
package environment

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive-ai/taskhive/pkg/config"
	"github.com/taskhive-ai/taskhive/pkg/events"
	"github.com/taskhive-ai/taskhive/pkg/models"
)

// observeEventWindow bounds how many recent events one observation carries.
const observeEventWindow = 50

// Environment owns the resource ledger and the environment event log. All
// sub-module state shares the one lock; events are published to the bus
// outside it.
type Environment struct {
	cfg *config.EnvironmentConfig
	bus *events.Bus

	mu          sync.RWMutex
	spatial     *spatialIndex
	ledger      *ledger
	constraints []Constraint
	rules       []Rule
	ruleActive  map[string]bool
	state       State
	ring        *eventRing
	visibility  map[string]models.VisibilityLevel
	procSeq     uint64

	sampler HostSampler
	elapsed time.Duration // simulated clock, advanced by Update(dt)

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds an environment from configuration. Call Start to run the
// dynamics loop; the environment is usable without it (tests drive Update
// directly).
func New(cfg *config.EnvironmentConfig, bus *events.Bus) *Environment {
	return &Environment{
		cfg:         cfg,
		bus:         bus,
		spatial:     newSpatialIndex(),
		ledger:      newLedger(cfg.Resources),
		constraints: defaultConstraints(),
		rules:       defaultRules(cfg.CongestionAmplitude),
		ruleActive:  make(map[string]bool),
		ring:        newEventRing(cfg.EventBufferSize),
		visibility:  make(map[string]models.VisibilityLevel),
		sampler:     gopsutilSampler{},
		stopCh:      make(chan struct{}),
	}
}

// SetSampler replaces the host metrics source. Not safe to call once the
// dynamics loop is running; tests inject deterministic samples here.
func (e *Environment) SetSampler(s HostSampler) {
	e.sampler = s
}

// Start launches the dynamics loop at the configured update interval.
func (e *Environment) Start() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.cfg.UpdateInterval)
		defer ticker.Stop()
		last := time.Now()
		for {
			select {
			case <-e.stopCh:
				return
			case now := <-ticker.C:
				e.Update(now.Sub(last))
				last = now
			}
		}
	}()
}

// Stop halts the dynamics loop. Idempotent.
func (e *Environment) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}

// RegisterAgent adds an agent entity at the local host/process under the
// given namespace, with the configured default visibility.
func (e *Environment) RegisterAgent(agentID, namespace string) {
	host, _ := os.Hostname()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spatial.add(&Entity{
		ID:   agentID,
		Kind: EntityAgent,
		Location: Location{
			Host:      host,
			ProcessID: os.Getpid(),
			Namespace: namespace,
		},
	})
	if _, ok := e.visibility[agentID]; !ok {
		e.visibility[agentID] = models.VisibilityLevel(e.cfg.DefaultVisibility)
	}
}

// SetVisibility overrides an agent's observability level.
func (e *Environment) SetVisibility(agentID string, level models.VisibilityLevel) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.visibility[agentID] = level
}

// RemoveAgent tears an agent down: every resource it holds returns to the
// pools and its entity plus spawned processes leave the spatial index.
func (e *Environment) RemoveAgent(agentID string) {
	e.mu.Lock()
	released := e.ledger.releaseAll(agentID)
	for _, child := range e.spatial.childrenOf(agentID) {
		e.spatial.remove(child)
	}
	e.spatial.remove(agentID)
	delete(e.visibility, agentID)

	var evt events.Event
	if len(released) > 0 {
		evt = events.New(events.EventResourceReleased, agentID, map[string]any{
			"released": released,
			"reason":   "agent teardown",
		})
		evt.AgentID = agentID
		e.ring.append(evt)
	}
	e.mu.Unlock()

	if evt.Type != "" {
		e.bus.Publish(evt)
	}
}

// ExecuteAction evaluates the action against every constraint, then routes
// it to the matching handler. The returned details carry the violation list
// on rejection or handler-specific fields on success.
func (e *Environment) ExecuteAction(agentID string, action models.Action) (bool, map[string]any) {
	e.mu.Lock()

	self, ok := e.spatial.get(agentID)
	if !ok {
		e.mu.Unlock()
		return false, map[string]any{"error": fmt.Sprintf("unknown agent %q", agentID)}
	}

	actx, err := e.buildActionContext(agentID, self, action)
	if err != nil {
		e.mu.Unlock()
		return false, map[string]any{"error": err.Error()}
	}

	if violations := evaluate(e.constraints, actx); len(violations) > 0 {
		evt := events.New(events.EventConstraintViolated, agentID, map[string]any{
			"action":     string(action.Type),
			"violations": violations,
		})
		evt.AgentID = agentID
		e.ring.append(evt)
		e.mu.Unlock()

		e.bus.Publish(evt)
		return false, map[string]any{"violations": violations}
	}

	var (
		success bool
		details map[string]any
		fired   []events.Event
	)
	switch action.Type {
	case models.ActionMove:
		success, details, fired = e.handleMove(agentID, self, action)
	case models.ActionAllocateResource:
		success, details, fired = e.handleAllocate(agentID, actx.Requested)
	case models.ActionCommunicate:
		success, details, fired = e.handleCommunicate(agentID, action)
	case models.ActionSpawnProcess:
		success, details, fired = e.handleSpawn(agentID, self, action)
	default:
		e.mu.Unlock()
		return false, map[string]any{"error": fmt.Sprintf("unknown action type %q", action.Type)}
	}
	e.mu.Unlock()

	for _, evt := range fired {
		e.bus.Publish(evt)
	}
	return success, details
}

// Observe returns the slice of environment state the agent's visibility
// level permits. The agent's own identity and holdings are always present.
func (e *Environment) Observe(agentID string) map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()

	obs := map[string]any{
		"self": map[string]any{"id": agentID},
	}
	self, ok := e.spatial.get(agentID)
	if !ok {
		return obs
	}
	obs["self"] = map[string]any{
		"id":             agentID,
		"location":       self.Location,
		"held_resources": e.ledger.heldBy(agentID),
	}

	level := e.visibilityOf(agentID)
	if level == models.VisibilityNone {
		return obs
	}

	visible := e.visibleEntities(agentID, self, level)
	entities := make(map[string]any, len(visible))
	for id, ent := range visible {
		entities[id] = map[string]any{
			"kind":      ent.Kind,
			"namespace": ent.Location.Namespace,
			"host":      ent.Location.Host,
		}
	}
	obs["entities"] = entities

	switch level {
	case models.VisibilityNetwork:
		usage := e.ledger.usage()
		obs["resources"] = map[models.ResourceKind]ResourceUsage{
			models.ResourceNetworkBandwidth: usage[models.ResourceNetworkBandwidth],
		}
	default:
		obs["resources"] = e.ledger.usage()
	}

	obs["state"] = e.state

	var visibleEvents []events.Event
	for _, evt := range e.ring.recent(observeEventWindow) {
		if evt.Source == agentID || isSystemSource(evt.Source) {
			visibleEvents = append(visibleEvents, evt)
			continue
		}
		if _, ok := visible[evt.Source]; ok {
			visibleEvents = append(visibleEvents, evt)
		}
	}
	obs["events"] = visibleEvents

	return obs
}

// ReleaseResources returns held amounts to the pools, clamped to what the
// agent actually holds. Safe to call with amounts already released.
func (e *Environment) ReleaseResources(agentID string, req map[models.ResourceKind]float64) map[models.ResourceKind]float64 {
	e.mu.Lock()
	released := e.ledger.release(agentID, req)
	var evt events.Event
	if len(released) > 0 {
		evt = events.New(events.EventResourceReleased, agentID, map[string]any{"released": released})
		evt.AgentID = agentID
		e.ring.append(evt)
	}
	e.mu.Unlock()

	if evt.Type != "" {
		e.bus.Publish(evt)
	}
	return released
}

// ReleaseAll returns everything the agent holds.
func (e *Environment) ReleaseAll(agentID string) map[models.ResourceKind]float64 {
	e.mu.Lock()
	released := e.ledger.releaseAll(agentID)
	var evt events.Event
	if len(released) > 0 {
		evt = events.New(events.EventResourceReleased, agentID, map[string]any{"released": released})
		evt.AgentID = agentID
		e.ring.append(evt)
	}
	e.mu.Unlock()

	if evt.Type != "" {
		e.bus.Publish(evt)
	}
	return released
}

// Usage snapshots the resource ledger.
func (e *Environment) Usage() map[models.ResourceKind]ResourceUsage {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.usage()
}

// State returns the current dynamics snapshot.
func (e *Environment) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// RecentEvents returns up to n events from the ring, oldest first.
func (e *Environment) RecentEvents(n int) []events.Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ring.recent(n)
}

// Snapshot is the API-facing environment summary.
type Snapshot struct {
	Usage    map[models.ResourceKind]ResourceUsage `json:"usage"`
	State    State                                 `json:"state"`
	Entities int                                   `json:"entities"`
	Events   int                                   `json:"events"`
}

// Snapshot summarizes ledger usage, dynamics state, and index size.
func (e *Environment) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Snapshot{
		Usage:    e.ledger.usage(),
		State:    e.state,
		Entities: len(e.spatial.entities),
		Events:   e.ring.len(),
	}
}

// Update advances the dynamics by one tick: sample host metrics, recompute
// the simulated congestion wave, and fire any rules whose condition newly
// holds. Normally driven by the Start loop; tests call it directly.
func (e *Environment) Update(dt time.Duration) {
	cpuPct, memPct, err := e.sampler.Sample()
	if err != nil {
		slog.Warn("Host metrics sampling failed", "error", err)
	}

	e.mu.Lock()
	e.elapsed += dt
	e.state.HostCPUPercent = cpuPct
	e.state.HostMemoryPercent = memPct
	e.state.NetworkCongestion = congestionAt(e.elapsed, e.cfg.CongestionAmplitude)
	e.state.Tick++
	e.state.UpdatedAt = time.Now()
	st := e.state

	var fired []events.Event
	for _, r := range e.rules {
		match := r.Condition(st)
		if match && !e.ruleActive[r.Name] {
			data := r.Effect(st)
			if data == nil {
				data = map[string]any{}
			}
			data["rule"] = r.Name
			evt := events.New(events.EventEnvironmentUpdated, "environment", data)
			e.ring.append(evt)
			fired = append(fired, evt)
		}
		e.ruleActive[r.Name] = match
	}
	e.mu.Unlock()

	for _, evt := range fired {
		e.bus.Publish(evt)
	}
}

// --- action handlers; callers hold the lock ---

func (e *Environment) handleMove(agentID string, self *Entity, action models.Action) (bool, map[string]any, []events.Event) {
	target := Location{
		Host:      stringField(action.Params, "host"),
		Namespace: stringField(action.Params, "namespace"),
		Coords:    coordsField(action.Params, "coords"),
	}
	prev := self.Location
	if err := e.spatial.move(agentID, target); err != nil {
		return false, map[string]any{"error": err.Error()}, nil
	}
	evt := events.New(events.EventEnvironmentUpdated, agentID, map[string]any{
		"action": "move",
		"from":   prev.Namespace,
		"to":     self.Location.Namespace,
	})
	evt.AgentID = agentID
	e.ring.append(evt)
	return true, map[string]any{"location": self.Location}, []events.Event{evt}
}

func (e *Environment) handleAllocate(agentID string, req map[models.ResourceKind]float64) (bool, map[string]any, []events.Event) {
	if violations := e.ledger.allocate(agentID, req); len(violations) > 0 {
		evt := events.New(events.EventConstraintViolated, agentID, map[string]any{
			"action":     "allocate_resource",
			"violations": violations,
		})
		evt.AgentID = agentID
		e.ring.append(evt)
		return false, map[string]any{"violations": violations}, []events.Event{evt}
	}
	evt := events.New(events.EventResourceAllocated, agentID, map[string]any{"granted": req})
	evt.AgentID = agentID
	e.ring.append(evt)
	return true, map[string]any{
		"granted": req,
		"held":    e.ledger.heldBy(agentID),
	}, []events.Event{evt}
}

func (e *Environment) handleCommunicate(agentID string, action models.Action) (bool, map[string]any, []events.Event) {
	target := stringField(action.Params, "target")
	if target == "" {
		return false, map[string]any{"error": "communicate requires a target"}, nil
	}
	self, _ := e.spatial.get(agentID)
	if _, ok := e.spatial.get(target); !ok {
		return false, map[string]any{"error": fmt.Sprintf("unknown target %q", target)}, nil
	}
	visible := e.visibleEntities(agentID, self, e.visibilityOf(agentID))
	if _, ok := visible[target]; !ok {
		return false, map[string]any{"error": fmt.Sprintf("target %q is not visible", target)}, nil
	}
	e.spatial.connect(agentID, target, ConnectionCoordination)
	evt := events.New(events.EventEnvironmentUpdated, agentID, map[string]any{
		"action": "communicate",
		"target": target,
	})
	evt.AgentID = agentID
	e.ring.append(evt)
	return true, map[string]any{"delivered_to": target}, []events.Event{evt}
}

func (e *Environment) handleSpawn(agentID string, self *Entity, action models.Action) (bool, map[string]any, []events.Event) {
	command := stringField(action.Params, "command")
	if command == "" {
		return false, map[string]any{"error": "spawn_process requires a command"}, nil
	}
	namespace := stringField(action.Params, "namespace")
	if namespace == "" {
		namespace = self.Location.Namespace
	}
	e.procSeq++
	procID := fmt.Sprintf("proc-%s", uuid.NewString()[:8])
	e.spatial.add(&Entity{
		ID:   procID,
		Kind: EntityProcess,
		Location: Location{
			Host:      self.Location.Host,
			ProcessID: int(e.procSeq),
			Namespace: namespace,
		},
		OwnerID: agentID,
	})
	e.spatial.connect(agentID, procID, ConnectionParentChild)
	evt := events.New(events.EventEnvironmentUpdated, agentID, map[string]any{
		"action":     "spawn_process",
		"process_id": procID,
		"command":    command,
	})
	evt.AgentID = agentID
	e.ring.append(evt)
	return true, map[string]any{"process_id": procID, "command": command}, []events.Event{evt}
}

// --- helpers; callers hold the lock ---

func (e *Environment) buildActionContext(agentID string, self *Entity, action models.Action) (*ActionContext, error) {
	actx := &ActionContext{
		AgentID:          agentID,
		Action:           action,
		Usage:            e.ledger.usage(),
		SourceNamespace:  self.Location.Namespace,
		SpawnedProcesses: len(e.spatial.childrenOf(agentID)),
		State:            e.state,
	}

	switch action.Type {
	case models.ActionAllocateResource:
		req, err := parseResourceRequest(action.Params)
		if err != nil {
			return nil, err
		}
		actx.Requested = req
	case models.ActionMove, models.ActionSpawnProcess:
		actx.TargetNamespace = stringField(action.Params, "namespace")
	case models.ActionCommunicate:
		if target, ok := e.spatial.get(stringField(action.Params, "target")); ok {
			actx.TargetNamespace = target.Location.Namespace
		}
	}
	return actx, nil
}

func (e *Environment) visibilityOf(agentID string) models.VisibilityLevel {
	if level, ok := e.visibility[agentID]; ok {
		return level
	}
	return models.VisibilityLevel(e.cfg.DefaultVisibility)
}

// visibleEntities returns the entities the agent can observe at its level,
// excluding itself.
func (e *Environment) visibleEntities(agentID string, self *Entity, level models.VisibilityLevel) map[string]*Entity {
	out := make(map[string]*Entity)
	switch level {
	case models.VisibilityFull:
		for id, ent := range e.spatial.entities {
			if id != agentID {
				out[id] = ent
			}
		}
	case models.VisibilityNamespace:
		for _, id := range e.spatial.inNamespace(self.Location.Namespace) {
			if id != agentID {
				out[id] = e.spatial.entities[id]
			}
		}
	case models.VisibilityProcess:
		for id, ent := range e.spatial.entities {
			if id == agentID {
				continue
			}
			if ent.Location.Host == self.Location.Host && ent.Location.ProcessID == self.Location.ProcessID {
				out[id] = ent
			}
		}
	case models.VisibilityNetwork:
		for _, id := range e.spatial.peers(agentID) {
			if ent, ok := e.spatial.get(id); ok {
				out[id] = ent
			}
		}
		for _, id := range e.spatial.neighborsWithin(agentID, sensorRadius) {
			out[id] = e.spatial.entities[id]
		}
	}
	return out
}

func isSystemSource(source string) bool {
	switch source {
	case "environment", "swarm", "runtime", "coordinator":
		return true
	}
	return false
}

func stringField(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	s, _ := params[key].(string)
	return s
}

func coordsField(params map[string]any, key string) []float64 {
	if params == nil {
		return nil
	}
	switch v := params[key].(type) {
	case []float64:
		return v
	case []any:
		out := make([]float64, 0, len(v))
		for _, item := range v {
			f, ok := toFloat(item)
			if !ok {
				return nil
			}
			out = append(out, f)
		}
		return out
	}
	return nil
}

// parseResourceRequest accepts either a nested "resources" map or resource
// kinds as top-level params. Unknown kinds inside an explicit resources map
// pass through so the ledger reports them as violations.
func parseResourceRequest(params map[string]any) (map[models.ResourceKind]float64, error) {
	req := make(map[models.ResourceKind]float64)

	if raw, ok := params["resources"].(map[string]any); ok {
		for k, v := range raw {
			amount, ok := toFloat(v)
			if !ok {
				return nil, fmt.Errorf("resource %q: amount %v is not numeric", k, v)
			}
			req[models.ResourceKind(k)] = amount
		}
	} else {
		known := make(map[models.ResourceKind]bool, len(models.AllResourceKinds))
		for _, kind := range models.AllResourceKinds {
			known[kind] = true
		}
		for k, v := range params {
			kind := models.ResourceKind(k)
			if !known[kind] {
				continue
			}
			amount, ok := toFloat(v)
			if !ok {
				return nil, fmt.Errorf("resource %q: amount %v is not numeric", k, v)
			}
			req[kind] = amount
		}
	}

	if len(req) == 0 {
		return nil, fmt.Errorf("allocate_resource requires a resources map")
	}
	return req, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
