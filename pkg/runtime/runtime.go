// Package runtime tracks the live agent population: registration, lifecycle
// fan-out, and message routing between agents. Scheduling decisions belong
// to the swarm coordinator; the runtime only knows who exists and how to
// reach them.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/taskhive-ai/taskhive/pkg/agent"
	"github.com/taskhive-ai/taskhive/pkg/events"
	"github.com/taskhive-ai/taskhive/pkg/models"
)

var (
	// ErrAgentExists indicates a Register call with an ID already present.
	ErrAgentExists = errors.New("agent already registered")

	// ErrAgentNotFound indicates an operation on an unknown agent ID.
	ErrAgentNotFound = errors.New("agent not registered")
)

// DefaultNamespace is where registered agents live in the environment's
// topology.
const DefaultNamespace = "/swarm"

// World is the slice of the environment the runtime keeps in step with the
// population: agents enter on Register and leave, holdings released, on
// Unregister.
type World interface {
	RegisterAgent(agentID, namespace string)
	RemoveAgent(agentID string)
}

// Runtime is the registry of live agents and the router between them.
// Message delivery is at-most-once: an unknown or non-accepting recipient
// drops the message with a log line, and the sender sees no error. Delivery
// order per sender→receiver pair follows send order — the runtime enqueues
// synchronously and adds no reordering.
type Runtime struct {
	logger *slog.Logger
	bus    *events.Bus
	world  World

	mu     sync.RWMutex
	agents map[string]agent.Agent
}

var _ agent.MessageRouter = (*Runtime)(nil)

// New builds an empty runtime. world may be nil when no environment is
// wired, e.g. in tests.
func New(bus *events.Bus, world World) *Runtime {
	return &Runtime{
		logger: slog.Default().With("component", "runtime"),
		bus:    bus,
		world:  world,
		agents: make(map[string]agent.Agent),
	}
}

// Register adds an agent to the population and announces it to the world.
func (r *Runtime) Register(a agent.Agent) error {
	r.mu.Lock()
	if _, ok := r.agents[a.ID()]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAgentExists, a.ID())
	}
	r.agents[a.ID()] = a
	r.mu.Unlock()

	if r.world != nil {
		r.world.RegisterAgent(a.ID(), DefaultNamespace)
	}
	r.logger.Info("Agent registered",
		"agent_id", a.ID(), "name", a.Name(), "kind", a.Kind())
	return nil
}

// Unregister stops an agent, removes it from the population, and tears its
// entity out of the world, releasing anything it still held.
func (r *Runtime) Unregister(id string) error {
	r.mu.Lock()
	a, ok := r.agents[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	delete(r.agents, id)
	r.mu.Unlock()

	a.Stop()
	if r.world != nil {
		r.world.RemoveAgent(id)
	}
	r.logger.Info("Agent unregistered", "agent_id", id, "name", a.Name())
	return nil
}

// Get returns the agent with the given ID.
func (r *Runtime) Get(id string) (agent.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	return a, ok
}

// Count returns the population size.
func (r *Runtime) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// AgentIDs returns all registered IDs in sorted order.
func (r *Runtime) AgentIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Agents returns the current population, ordered by ID.
func (r *Runtime) Agents() []agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]agent.Agent, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.agents[id])
	}
	return out
}

// Snapshots returns a point-in-time view of every agent, sorted by name for
// stable listings.
func (r *Runtime) Snapshots() []models.AgentSnapshot {
	agents := r.Agents()
	snaps := make([]models.AgentSnapshot, 0, len(agents))
	for _, a := range agents {
		snaps = append(snaps, a.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Name < snaps[j].Name })
	return snaps
}

// StartAgent starts one agent's control loop and announces it on the bus.
func (r *Runtime) StartAgent(ctx context.Context, id string) error {
	a, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("start agent %s: %w", id, err)
	}

	evt := events.New(events.EventAgentStarted, "runtime", map[string]any{
		"name": a.Name(),
		"kind": string(a.Kind()),
	})
	evt.AgentID = id
	r.bus.Publish(evt)
	return nil
}

// StopAgent stops one agent. Stop is terminal; the swarm spawns replacements
// rather than restarting.
func (r *Runtime) StopAgent(id string) error {
	a, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	a.Stop()

	evt := events.New(events.EventAgentStopped, "runtime", map[string]any{
		"name": a.Name(),
	})
	evt.AgentID = id
	r.bus.Publish(evt)
	return nil
}

// StartAll starts every registered agent, joining the failures so one bad
// agent does not keep the rest of the swarm down.
func (r *Runtime) StartAll(ctx context.Context) error {
	var errs []error
	for _, id := range r.AgentIDs() {
		if err := r.StartAgent(ctx, id); err != nil {
			r.logger.Error("Agent failed to start", "agent_id", id, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StopAll stops every registered agent concurrently and waits for their
// loops to exit.
func (r *Runtime) StopAll() {
	agents := r.Agents()
	var wg sync.WaitGroup
	for _, a := range agents {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Stop()
		}()
	}
	wg.Wait()
	r.logger.Info("All agents stopped", "count", len(agents))
}

// SendMessage routes one message to its receiver's mailbox. Implements
// agent.MessageRouter.
func (r *Runtime) SendMessage(msg *models.Message) error {
	if msg == nil {
		return nil
	}

	r.mu.RLock()
	target, ok := r.agents[msg.Receiver]
	r.mu.RUnlock()
	if !ok {
		r.logger.Warn("Message to unknown agent dropped",
			"receiver", msg.Receiver, "sender", msg.Sender,
			"performative", msg.Performative)
		return nil
	}

	if err := target.Deliver(msg); err != nil {
		r.logger.Warn("Message dropped, recipient not accepting",
			"receiver", msg.Receiver, "sender", msg.Sender, "error", err)
		return nil
	}

	evt := events.New(events.EventMessageSent, msg.Sender, map[string]any{
		"receiver":        msg.Receiver,
		"performative":    string(msg.Performative),
		"conversation_id": msg.ConversationID,
	})
	evt.AgentID = msg.Receiver
	r.bus.Publish(evt)
	return nil
}

// Broadcast delivers a copy of msg to every registered agent except the
// sender and returns how many copies were accepted.
func (r *Runtime) Broadcast(msg *models.Message) int {
	delivered := 0
	for _, target := range r.Agents() {
		if target.ID() == msg.Sender {
			continue
		}
		clone := *msg
		clone.ID = uuid.NewString()
		clone.Receiver = target.ID()
		if err := target.Deliver(&clone); err != nil {
			r.logger.Warn("Broadcast copy dropped",
				"receiver", clone.Receiver, "error", err)
			continue
		}
		delivered++
	}

	if delivered > 0 {
		evt := events.New(events.EventMessageSent, msg.Sender, map[string]any{
			"broadcast":    true,
			"recipients":   delivered,
			"performative": string(msg.Performative),
		})
		r.bus.Publish(evt)
	}
	return delivered
}
