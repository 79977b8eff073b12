package environment

import (
	"fmt"
	"math"
	"strings"
)

// Spatial distances. Software locality is coarse: a host boundary dominates,
// a process boundary matters, anything closer is effectively adjacent unless
// abstract coordinates say otherwise.
const (
	distanceFarHost     = 1000.0
	distanceSameHost    = 1.0
	distanceSameProcess = 0.1

	// sensorRadius bounds NETWORK-level visibility: entities within this
	// distance are observable even without a direct connection.
	sensorRadius = 5.0
)

// EntityKind classifies a spatial node.
type EntityKind string

const (
	EntityAgent   EntityKind = "agent"
	EntityProcess EntityKind = "process"
	EntityService EntityKind = "service"
)

// ConnectionKind tags a directed edge between entities.
type ConnectionKind string

const (
	ConnectionNetwork      ConnectionKind = "network"
	ConnectionParentChild  ConnectionKind = "parent-child"
	ConnectionCoordination ConnectionKind = "coordination"
)

// Location places an entity in the software topology. Namespace is a
// slash-separated path ("/swarm/builders"); Coords are optional abstract
// coordinates for fine-grained distance.
type Location struct {
	Host        string    `json:"host"`
	ProcessID   int       `json:"process_id"`
	ContainerID string    `json:"container_id,omitempty"`
	Namespace   string    `json:"namespace"`
	Coords      []float64 `json:"coords,omitempty"`
}

// Distance between two software locations: crossing a host is far, crossing
// a process on the same host is near, and within a process the abstract
// coordinates decide (or a small constant when absent).
func (l Location) Distance(o Location) float64 {
	if l.Host != o.Host {
		return distanceFarHost
	}
	if l.ProcessID != o.ProcessID {
		return distanceSameHost
	}
	if n := len(l.Coords); n > 0 && n == len(o.Coords) {
		sum := 0.0
		for i := range l.Coords {
			d := l.Coords[i] - o.Coords[i]
			sum += d * d
		}
		return math.Sqrt(sum)
	}
	return distanceSameProcess
}

// Entity is a node in the spatial index: an agent or a logical entity
// (spawned process, service).
type Entity struct {
	ID       string     `json:"id"`
	Kind     EntityKind `json:"kind"`
	Location Location   `json:"location"`
	OwnerID  string     `json:"owner_id,omitempty"` // spawning agent, for processes
}

// Connection is a directed tagged edge.
type Connection struct {
	From string         `json:"from"`
	To   string         `json:"to"`
	Kind ConnectionKind `json:"kind"`
}

// spatialIndex holds entities and their connections. Not safe for concurrent
// use; callers hold the environment lock.
type spatialIndex struct {
	entities    map[string]*Entity
	connections map[string][]Connection // keyed by From
}

func newSpatialIndex() *spatialIndex {
	return &spatialIndex{
		entities:    make(map[string]*Entity),
		connections: make(map[string][]Connection),
	}
}

func (s *spatialIndex) add(e *Entity) {
	s.entities[e.ID] = e
}

func (s *spatialIndex) get(id string) (*Entity, bool) {
	e, ok := s.entities[id]
	return e, ok
}

// move relocates an entity. Hosts are not hoppable: a move that changes the
// host is rejected as unreachable.
func (s *spatialIndex) move(id string, to Location) error {
	e, ok := s.entities[id]
	if !ok {
		return fmt.Errorf("unknown entity %q", id)
	}
	if to.Host != "" && to.Host != e.Location.Host {
		return fmt.Errorf("location unreachable: cannot move across hosts (%s → %s)", e.Location.Host, to.Host)
	}
	if to.Host == "" {
		to.Host = e.Location.Host
	}
	if to.ProcessID == 0 {
		to.ProcessID = e.Location.ProcessID
	}
	if to.Namespace == "" {
		to.Namespace = e.Location.Namespace
	}
	e.Location = to
	return nil
}

// remove deletes an entity and every edge touching it.
func (s *spatialIndex) remove(id string) {
	delete(s.entities, id)
	delete(s.connections, id)
	for from, edges := range s.connections {
		kept := edges[:0]
		for _, c := range edges {
			if c.To != id {
				kept = append(kept, c)
			}
		}
		s.connections[from] = kept
	}
}

// connect adds a directed edge, deduplicating exact repeats.
func (s *spatialIndex) connect(from, to string, kind ConnectionKind) {
	for _, c := range s.connections[from] {
		if c.To == to && c.Kind == kind {
			return
		}
	}
	s.connections[from] = append(s.connections[from], Connection{From: from, To: to, Kind: kind})
}

// connected reports whether a direct edge exists in either direction.
func (s *spatialIndex) connected(a, b string) bool {
	for _, c := range s.connections[a] {
		if c.To == b {
			return true
		}
	}
	for _, c := range s.connections[b] {
		if c.To == a {
			return true
		}
	}
	return false
}

// peers returns the IDs directly connected to id, either direction.
func (s *spatialIndex) peers(id string) []string {
	seen := make(map[string]bool)
	for _, c := range s.connections[id] {
		seen[c.To] = true
	}
	for from, edges := range s.connections {
		for _, c := range edges {
			if c.To == id {
				seen[from] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for peer := range seen {
		out = append(out, peer)
	}
	return out
}

// neighborsWithin returns entity IDs whose distance from id is at most
// radius, excluding id itself.
func (s *spatialIndex) neighborsWithin(id string, radius float64) []string {
	self, ok := s.entities[id]
	if !ok {
		return nil
	}
	var out []string
	for otherID, other := range s.entities {
		if otherID == id {
			continue
		}
		if self.Location.Distance(other.Location) <= radius {
			out = append(out, otherID)
		}
	}
	return out
}

// inNamespace returns entity IDs whose namespace equals ns or sits beneath
// it in the path hierarchy.
func (s *spatialIndex) inNamespace(ns string) []string {
	var out []string
	for id, e := range s.entities {
		if namespaceWithin(e.Location.Namespace, ns) {
			out = append(out, id)
		}
	}
	return out
}

// childrenOf returns process entities spawned by the given agent.
func (s *spatialIndex) childrenOf(agentID string) []string {
	var out []string
	for id, e := range s.entities {
		if e.OwnerID == agentID && e.Kind == EntityProcess {
			out = append(out, id)
		}
	}
	return out
}

// namespaceWithin reports whether ns equals scope or is nested under it.
// An empty scope matches everything.
func namespaceWithin(ns, scope string) bool {
	if scope == "" {
		return true
	}
	return ns == scope || strings.HasPrefix(ns, scope+"/")
}
