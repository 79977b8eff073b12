package environment

import (
	"fmt"

	"github.com/taskhive-ai/taskhive/pkg/config"
	"github.com/taskhive-ai/taskhive/pkg/models"
)

// ResourceUsage is the per-resource accounting snapshot exposed to agents
// and the API.
type ResourceUsage struct {
	Total       float64 `json:"total"`
	Available   float64 `json:"available"`
	Used        float64 `json:"used"`
	Utilization float64 `json:"utilization"` // percent of total in use
}

// pool tracks one resource kind. Invariant: sum(allocated) + available ==
// total, maintained by every mutation.
type pool struct {
	total     float64
	available float64
	allocated map[string]float64 // agent ID → amount held
}

// ledger is the sole allocator for environment resources. Not safe for
// concurrent use; callers hold the environment lock.
type ledger struct {
	pools map[models.ResourceKind]*pool
}

func newLedger(totals config.ResourceTotals) *ledger {
	l := &ledger{pools: make(map[models.ResourceKind]*pool, len(models.AllResourceKinds))}
	caps := map[models.ResourceKind]float64{
		models.ResourceCPU:              totals.CPU,
		models.ResourceMemory:           totals.MemoryMB,
		models.ResourceDiskIO:           totals.DiskIOMBps,
		models.ResourceNetworkBandwidth: totals.NetworkMbps,
		models.ResourceFileHandles:      totals.FileHandles,
		models.ResourceThreads:          totals.Threads,
	}
	for kind, total := range caps {
		l.pools[kind] = &pool{
			total:     total,
			available: total,
			allocated: make(map[string]float64),
		}
	}
	return l
}

// allocate grants every requested amount or nothing. The returned slice
// lists ALL violations found, never just the first; an empty slice means the
// whole request was applied.
func (l *ledger) allocate(agentID string, req map[models.ResourceKind]float64) []models.Violation {
	var violations []models.Violation
	for kind, amount := range req {
		p, ok := l.pools[kind]
		if !ok {
			violations = append(violations, models.Violation{
				Constraint: "resource-availability",
				Kind:       models.ConstraintResource,
				Detail:     fmt.Sprintf("unknown resource kind %q", kind),
			})
			continue
		}
		if amount <= 0 {
			violations = append(violations, models.Violation{
				Constraint: "resource-availability",
				Kind:       models.ConstraintResource,
				Detail:     fmt.Sprintf("%s: allocation must be positive, got %.2f", kind, amount),
			})
			continue
		}
		if amount > p.available {
			violations = append(violations, models.Violation{
				Constraint: "resource-availability",
				Kind:       models.ConstraintResource,
				Detail:     fmt.Sprintf("%s: requested %.2f, available %.2f", kind, amount, p.available),
			})
		}
	}
	if len(violations) > 0 {
		return violations
	}

	for kind, amount := range req {
		p := l.pools[kind]
		p.available -= amount
		p.allocated[agentID] += amount
	}
	return nil
}

// release returns held amounts to the pool. Idempotent and clamped: amounts
// beyond what the agent holds release only the held part, unknown kinds are
// skipped. Returns what was actually released per kind.
func (l *ledger) release(agentID string, req map[models.ResourceKind]float64) map[models.ResourceKind]float64 {
	released := make(map[models.ResourceKind]float64)
	for kind, amount := range req {
		p, ok := l.pools[kind]
		if !ok || amount <= 0 {
			continue
		}
		held := p.allocated[agentID]
		if held == 0 {
			continue
		}
		actual := amount
		if actual > held {
			actual = held
		}
		p.allocated[agentID] = held - actual
		if p.allocated[agentID] == 0 {
			delete(p.allocated, agentID)
		}
		p.available += actual
		released[kind] = actual
	}
	return released
}

// releaseAll returns everything the agent holds across all pools. Used on
// agent teardown.
func (l *ledger) releaseAll(agentID string) map[models.ResourceKind]float64 {
	released := make(map[models.ResourceKind]float64)
	for kind, p := range l.pools {
		held, ok := p.allocated[agentID]
		if !ok || held == 0 {
			continue
		}
		delete(p.allocated, agentID)
		p.available += held
		released[kind] = held
	}
	return released
}

// heldBy returns the agent's current allocations per kind.
func (l *ledger) heldBy(agentID string) map[models.ResourceKind]float64 {
	held := make(map[models.ResourceKind]float64)
	for kind, p := range l.pools {
		if amount, ok := p.allocated[agentID]; ok && amount > 0 {
			held[kind] = amount
		}
	}
	return held
}

// usage snapshots every pool.
func (l *ledger) usage() map[models.ResourceKind]ResourceUsage {
	out := make(map[models.ResourceKind]ResourceUsage, len(l.pools))
	for kind, p := range l.pools {
		used := p.total - p.available
		pct := 0.0
		if p.total > 0 {
			pct = used / p.total * 100
		}
		out[kind] = ResourceUsage{
			Total:       p.total,
			Available:   p.available,
			Used:        used,
			Utilization: pct,
		}
	}
	return out
}
