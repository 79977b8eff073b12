package environment

import (
	"fmt"

	"github.com/taskhive-ai/taskhive/pkg/models"
)

// Headroom and scheduling bounds enforced by the default constraints.
const (
	maxCPUUtilizationPct = 90.0
	maxSpawnedProcesses  = 16
)

// ActionContext is the state a constraint predicate may inspect. Built by
// the environment under its lock before routing an action.
type ActionContext struct {
	AgentID string
	Action  models.Action

	// Requested amounts for allocate_resource actions, nil otherwise.
	Requested map[models.ResourceKind]float64

	// Ledger snapshot at evaluation time.
	Usage map[models.ResourceKind]ResourceUsage

	// Namespaces for move/spawn/communicate actions.
	SourceNamespace string
	TargetNamespace string

	// Spawned process count for the acting agent.
	SpawnedProcesses int

	// Dynamics snapshot.
	State State
}

// Constraint gates agent actions. Check returns ok=false with a
// human-readable detail when the action would violate it.
type Constraint struct {
	Name  string
	Kind  models.ConstraintKind
	Check func(actx *ActionContext) (ok bool, detail string)
}

// evaluate runs every constraint and returns the FULL violation list, never
// just the first hit.
func evaluate(constraints []Constraint, actx *ActionContext) []models.Violation {
	var violations []models.Violation
	for _, c := range constraints {
		if ok, detail := c.Check(actx); !ok {
			violations = append(violations, models.Violation{
				Constraint: c.Name,
				Kind:       c.Kind,
				Detail:     detail,
			})
		}
	}
	return violations
}

// defaultConstraints returns the built-in constraint set: CPU headroom,
// memory headroom, network bandwidth ceiling, namespace isolation, and a
// spawn cap.
func defaultConstraints() []Constraint {
	return []Constraint{
		{
			Name: "cpu-headroom",
			Kind: models.ConstraintPerformance,
			Check: func(actx *ActionContext) (bool, string) {
				req, ok := actx.Requested[models.ResourceCPU]
				if !ok {
					return true, ""
				}
				u := actx.Usage[models.ResourceCPU]
				if u.Total == 0 {
					return true, ""
				}
				after := (u.Used + req) / u.Total * 100
				if after > maxCPUUtilizationPct {
					return false, fmt.Sprintf("cpu allocation would reach %.1f%% of capacity, limit %.0f%%", after, maxCPUUtilizationPct)
				}
				return true, ""
			},
		},
		{
			Name: "memory-headroom",
			Kind: models.ConstraintResource,
			Check: func(actx *ActionContext) (bool, string) {
				req, ok := actx.Requested[models.ResourceMemory]
				if !ok {
					return true, ""
				}
				u := actx.Usage[models.ResourceMemory]
				if req > u.Available {
					return false, fmt.Sprintf("memory required %.0fMB exceeds available %.0fMB", req, u.Available)
				}
				return true, ""
			},
		},
		{
			Name: "network-bandwidth",
			Kind: models.ConstraintNetwork,
			Check: func(actx *ActionContext) (bool, string) {
				req, ok := actx.Requested[models.ResourceNetworkBandwidth]
				if !ok {
					return true, ""
				}
				u := actx.Usage[models.ResourceNetworkBandwidth]
				if req > u.Available {
					return false, fmt.Sprintf("network bandwidth %.0fMbps exceeds available %.0fMbps", req, u.Available)
				}
				return true, ""
			},
		},
		{
			Name: "namespace-access",
			Kind: models.ConstraintSecurity,
			Check: func(actx *ActionContext) (bool, string) {
				if actx.TargetNamespace == "" {
					return true, ""
				}
				if namespaceWithin(actx.TargetNamespace, actx.SourceNamespace) {
					return true, ""
				}
				return false, fmt.Sprintf("namespace %q is outside agent namespace %q", actx.TargetNamespace, actx.SourceNamespace)
			},
		},
		{
			Name: "spawn-limit",
			Kind: models.ConstraintScheduling,
			Check: func(actx *ActionContext) (bool, string) {
				if actx.Action.Type != models.ActionSpawnProcess {
					return true, ""
				}
				if actx.SpawnedProcesses >= maxSpawnedProcesses {
					return false, fmt.Sprintf("agent already owns %d processes, limit %d", actx.SpawnedProcesses, maxSpawnedProcesses)
				}
				return true, ""
			},
		},
	}
}
