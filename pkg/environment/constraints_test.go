package environment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive-ai/taskhive/pkg/models"
)

func testUsage(cpuUsed float64) map[models.ResourceKind]ResourceUsage {
	return map[models.ResourceKind]ResourceUsage{
		models.ResourceCPU:              {Total: 8, Available: 8 - cpuUsed, Used: cpuUsed},
		models.ResourceMemory:           {Total: 1024, Available: 512, Used: 512},
		models.ResourceNetworkBandwidth: {Total: 500, Available: 100, Used: 400},
	}
}

func TestConstraints_CPUHeadroom(t *testing.T) {
	cs := defaultConstraints()

	// 6 of 8 cores used; 1 more keeps us at 87.5%, 2 more would hit 100%.
	ok := evaluate(cs, &ActionContext{
		Action:    models.Action{Type: models.ActionAllocateResource},
		Requested: map[models.ResourceKind]float64{models.ResourceCPU: 1},
		Usage:     testUsage(6),
	})
	assert.Empty(t, ok)

	violations := evaluate(cs, &ActionContext{
		Action:    models.Action{Type: models.ActionAllocateResource},
		Requested: map[models.ResourceKind]float64{models.ResourceCPU: 2},
		Usage:     testUsage(6),
	})
	require.Len(t, violations, 1)
	assert.Equal(t, "cpu-headroom", violations[0].Constraint)
	assert.Equal(t, models.ConstraintPerformance, violations[0].Kind)
}

func TestConstraints_MemoryAndBandwidth(t *testing.T) {
	cs := defaultConstraints()

	violations := evaluate(cs, &ActionContext{
		Action: models.Action{Type: models.ActionAllocateResource},
		Requested: map[models.ResourceKind]float64{
			models.ResourceMemory:           1000, // only 512 available
			models.ResourceNetworkBandwidth: 200,  // only 100 available
		},
		Usage: testUsage(0),
	})
	require.Len(t, violations, 2, "all violations reported together")

	kinds := []models.ConstraintKind{violations[0].Kind, violations[1].Kind}
	assert.Contains(t, kinds, models.ConstraintResource)
	assert.Contains(t, kinds, models.ConstraintNetwork)
}

func TestConstraints_NamespaceAccess(t *testing.T) {
	cs := defaultConstraints()

	// Within own subtree: allowed.
	assert.Empty(t, evaluate(cs, &ActionContext{
		Action:          models.Action{Type: models.ActionMove},
		SourceNamespace: "/swarm",
		TargetNamespace: "/swarm/builders",
	}))

	// Sibling namespace: denied.
	violations := evaluate(cs, &ActionContext{
		Action:          models.Action{Type: models.ActionMove},
		SourceNamespace: "/swarm",
		TargetNamespace: "/ops",
	})
	require.Len(t, violations, 1)
	assert.Equal(t, "namespace-access", violations[0].Constraint)
	assert.Equal(t, models.ConstraintSecurity, violations[0].Kind)

	// Root-scoped agents go anywhere.
	assert.Empty(t, evaluate(cs, &ActionContext{
		Action:          models.Action{Type: models.ActionMove},
		SourceNamespace: "",
		TargetNamespace: "/ops",
	}))
}

func TestConstraints_SpawnLimit(t *testing.T) {
	cs := defaultConstraints()

	assert.Empty(t, evaluate(cs, &ActionContext{
		Action:           models.Action{Type: models.ActionSpawnProcess},
		SpawnedProcesses: maxSpawnedProcesses - 1,
	}))

	violations := evaluate(cs, &ActionContext{
		Action:           models.Action{Type: models.ActionSpawnProcess},
		SpawnedProcesses: maxSpawnedProcesses,
	})
	require.Len(t, violations, 1)
	assert.Equal(t, models.ConstraintScheduling, violations[0].Kind)
}
