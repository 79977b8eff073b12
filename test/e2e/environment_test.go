package e2e

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive-ai/taskhive/pkg/events"
	"github.com/taskhive-ai/taskhive/pkg/models"
)

// ────────────────────────────────────────────────────────────
// Resource ledger atomicity.
//
// An agent asks the environment for more than it has. The rejection lists
// every violated bound, not just the first, and the ledger grants nothing:
// a request where only one amount is oversized must not leak the valid
// part. A well-formed request then allocates, shows up in usage, and
// releases cleanly on teardown.
// ────────────────────────────────────────────────────────────

func TestE2E_ResourceLedgerAtomicity(t *testing.T) {
	h := startHive(t, withEnvironment(fakeSampler{cpu: 20, mem: 30}))

	sub := h.Bus.Subscribe(64)
	defer h.Bus.Unsubscribe(sub)

	snaps := h.Coordinator.AgentSnapshots()
	require.NotEmpty(t, snaps)
	agentID := snaps[0].ID

	// Two oversized amounts in one request: both bounds come back.
	ok, details := h.Env.ExecuteAction(agentID, models.Action{
		Type: models.ActionAllocateResource,
		Params: map[string]any{
			"resources": map[string]any{
				"disk-io":      600.0,
				"file-handles": 9999.0,
			},
		},
	})
	require.False(t, ok)
	violations, _ := details["violations"].([]models.Violation)
	require.Len(t, violations, 2, "rejection must list every violated bound")

	// Nothing was granted, for any kind.
	for kind, usage := range h.Env.Usage() {
		assert.Zerof(t, usage.Used, "resource %s leaked from a rejected request", kind)
	}

	// One bad amount poisons the whole request: the valid CPU part is not
	// applied either.
	ok, _ = h.Env.ExecuteAction(agentID, models.Action{
		Type: models.ActionAllocateResource,
		Params: map[string]any{
			"resources": map[string]any{"cpu": 2.0, "disk-io": 600.0},
		},
	})
	require.False(t, ok)
	assert.Zero(t, h.Env.Usage()[models.ResourceCPU].Used)

	// Constraint-gated rejection: the CPU headroom bound trips before the
	// ledger is ever consulted.
	ok, details = h.Env.ExecuteAction(agentID, models.Action{
		Type:   models.ActionAllocateResource,
		Params: map[string]any{"resources": map[string]any{"cpu": 7.8}},
	})
	require.False(t, ok)
	violations, _ = details["violations"].([]models.Violation)
	require.NotEmpty(t, violations)
	assert.Equal(t, "cpu-headroom", violations[0].Constraint)

	// A request within bounds is granted and accounted.
	ok, details = h.Env.ExecuteAction(agentID, models.Action{
		Type:   models.ActionAllocateResource,
		Params: map[string]any{"resources": map[string]any{"cpu": 2.0, "memory": 512.0}},
	})
	require.True(t, ok, "valid allocation rejected: %v", details)
	assert.Equal(t, 2.0, h.Env.Usage()[models.ResourceCPU].Used)
	assert.Equal(t, 512.0, h.Env.Usage()[models.ResourceMemory].Used)

	released := h.Env.ReleaseAll(agentID)
	assert.Equal(t, 2.0, released[models.ResourceCPU])
	assert.Equal(t, 512.0, released[models.ResourceMemory])
	assert.Zero(t, h.Env.Usage()[models.ResourceCPU].Used)

	// Every rejection was announced for the monitoring rules to see.
	rejections := collectEvents(sub, events.EventConstraintViolated)
	assert.GreaterOrEqual(t, len(rejections), 3)
}
