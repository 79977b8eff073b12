package environment

import (
	"math"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// State is the dynamics snapshot agents observe: sampled host metrics plus
// simulated variables.
type State struct {
	HostCPUPercent    float64   `json:"host_cpu_percent"`
	HostMemoryPercent float64   `json:"host_memory_percent"`
	NetworkCongestion float64   `json:"network_congestion"` // 0..1
	Tick              uint64    `json:"tick"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Rule couples a condition over the dynamics state with an effect producing
// event data. Rules fire on the transition into the condition, not on every
// tick, so a sustained pressure state logs once.
type Rule struct {
	Name      string
	Condition func(s State) bool
	Effect    func(s State) map[string]any
}

// congestionPeriod is the wavelength of the simulated traffic wave.
const congestionPeriod = 10 * time.Minute

// congestionAt computes the simulated network congestion at a point in the
// wave, scaled by the configured amplitude. Zero amplitude disables
// simulation.
func congestionAt(elapsed time.Duration, amplitude float64) float64 {
	if amplitude <= 0 {
		return 0
	}
	phase := 2 * math.Pi * float64(elapsed) / float64(congestionPeriod)
	return amplitude * 0.5 * (1 + math.Sin(phase))
}

// defaultRules returns the built-in dynamics rules: host pressure alerts and
// a congestion-peak alert.
func defaultRules(amplitude float64) []Rule {
	return []Rule{
		{
			Name:      "cpu-pressure",
			Condition: func(s State) bool { return s.HostCPUPercent > 90 },
			Effect: func(s State) map[string]any {
				return map[string]any{"alert": "cpu-pressure", "cpu_percent": s.HostCPUPercent}
			},
		},
		{
			Name:      "memory-pressure",
			Condition: func(s State) bool { return s.HostMemoryPercent > 90 },
			Effect: func(s State) map[string]any {
				return map[string]any{"alert": "memory-pressure", "memory_percent": s.HostMemoryPercent}
			},
		},
		{
			Name: "network-congested",
			Condition: func(s State) bool {
				return amplitude > 0 && s.NetworkCongestion >= 0.9*amplitude
			},
			Effect: func(s State) map[string]any {
				return map[string]any{"alert": "network-congested", "congestion": s.NetworkCongestion}
			},
		},
	}
}

// HostSampler reports host utilization percentages. Swapped for a fake in
// tests.
type HostSampler interface {
	Sample() (cpuPercent, memPercent float64, err error)
}

// gopsutilSampler reads real host metrics.
type gopsutilSampler struct{}

func (gopsutilSampler) Sample() (float64, float64, error) {
	// Interval 0 measures since the previous call; the first call returns a
	// best-effort instantaneous value.
	cpuPcts, err := cpu.Percent(0, false)
	if err != nil {
		return 0, 0, err
	}
	cpuPct := 0.0
	if len(cpuPcts) > 0 {
		cpuPct = cpuPcts[0]
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return cpuPct, 0, err
	}
	return cpuPct, vm.UsedPercent, nil
}
