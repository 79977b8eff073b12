package e2e

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive-ai/taskhive/pkg/agent"
	"github.com/taskhive-ai/taskhive/pkg/config"
	"github.com/taskhive-ai/taskhive/pkg/models"
)

// ────────────────────────────────────────────────────────────
// Reactive threshold rule.
//
// A monitoring agent perceives the simulated environment, whose host
// sampler is pinned at 95% CPU. The built-in high-cpu rule ($gt 80 on
// host_cpu_percent) fires during a BDI cycle and raises a warning belief
// carrying the offending metric. No model is wired: the whole loop is
// rule-driven.
// ────────────────────────────────────────────────────────────

func TestE2E_ReactiveThresholdRule(t *testing.T) {
	h := startHive(t,
		withEnvironment(fakeSampler{cpu: 95, mem: 40}),
		withProfiles(map[string]*config.AgentProfileConfig{
			"sentinel": {
				Kind:         string(models.AgentKindReactive),
				Capabilities: []string{"monitoring"},
				Count:        1,
			},
		}),
	)

	snaps := h.Coordinator.AgentSnapshots()
	require.Len(t, snaps, 1)
	raw, ok := h.Runtime.Get(snaps[0].ID)
	require.True(t, ok)
	sentinel := raw.(*agent.BaseAgent)

	var alert map[string]any
	require.Eventually(t, func() bool {
		alert, ok = sentinel.Beliefs().Get("alert")
		return ok
	}, 5*time.Second, 20*time.Millisecond, "high-cpu rule never fired")

	assert.Equal(t, "warning", alert["level"])
	assert.Equal(t, "host_cpu_percent", alert["metric"])
	value, _ := alert["value"].(float64)
	assert.Greater(t, value, 80.0)

	// Perception also lands the raw state in beliefs.
	state, ok := sentinel.Beliefs().Get("environment_state")
	require.True(t, ok)
	cpu, _ := state["host_cpu_percent"].(float64)
	assert.InDelta(t, 95, cpu, 0.01)
}
