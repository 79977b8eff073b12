package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/taskhive-ai/taskhive/pkg/config"
	"github.com/taskhive-ai/taskhive/pkg/models"
)

// Hybrid mode names, also reported in task results and complexity beliefs.
const (
	ModeReactive  = "reactive"
	ModeCognitive = "cognitive"
	ModeHybrid    = "hybrid"
)

const (
	defaultThreshold    = 1.0
	defaultLearningRate = 0.1

	// thresholdMin and thresholdMax clamp online learning so routing never
	// degenerates into a single mode.
	thresholdMin = 0.5
	thresholdMax = 4.0

	// hybridActionCap bounds actions per cycle in hybrid mode.
	hybridActionCap = 5

	// learnWindow is how many experiences accumulate before the threshold
	// is reconsidered.
	learnWindow = 100

	// dominanceMargin is the success-rate gap (in rate points) one mode
	// must hold over the other in a score bin before it moves the threshold.
	dominanceMargin = 0.20

	// minBinSamples is the fewest experiences per mode a bin needs before
	// its comparison counts.
	minBinSamples = 5
)

// Complexity factor names, used as keys of the adjustment multipliers.
const (
	factorStimuliCount      = "stimuli_count"
	factorUniqueTypes       = "unique_types"
	factorMaxPriority       = "max_priority"
	factorInterdependencies = "interdependencies"
	factorRequiresReasoning = "requires_reasoning"
)

// experience is one routed handling outcome, logged for threshold learning.
type experience struct {
	score   float64
	mode    string
	success bool
	elapsed time.Duration
}

// Hybrid routes between a reactive and a cognitive strategy per stimulus
// using a complexity score. It owns both strategy objects rather than
// blending them, and it tunes its routing threshold online from logged
// outcomes.
type Hybrid struct {
	reactive  *Reactive
	cognitive *Cognitive

	mu           sync.Mutex
	threshold    float64
	learningRate float64
	adjustments  map[string]float64
	experiences  []experience
}

// NewHybrid builds a hybrid reasoner around the profile's rule set,
// threshold, and learning rate.
func NewHybrid(profile *config.AgentProfileConfig) *Hybrid {
	threshold := profile.ComplexityThreshold
	if threshold < thresholdMin || threshold > thresholdMax {
		threshold = defaultThreshold
	}
	rate := profile.LearningRate
	if rate <= 0 {
		rate = defaultLearningRate
	}
	return &Hybrid{
		reactive:     NewReactive(DefaultRules(profile.Capabilities)...),
		cognitive:    NewCognitive(),
		threshold:    threshold,
		learningRate: rate,
		adjustments: map[string]float64{
			factorStimuliCount:      1.0,
			factorUniqueTypes:       1.0,
			factorMaxPriority:       1.0,
			factorInterdependencies: 1.0,
			factorRequiresReasoning: 1.0,
		},
	}
}

// Threshold returns the current routing threshold.
func (h *Hybrid) Threshold() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.threshold
}

// SetAdjustment tunes the multiplicative adjustment of one complexity
// factor. Non-positive multipliers are ignored.
func (h *Hybrid) SetAdjustment(factor string, multiplier float64) {
	if multiplier <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.adjustments[factor]; ok {
		h.adjustments[factor] = multiplier
	}
}

// ComplexityScore computes the routing score for a set of stimuli:
//
//	0.1·count + 0.2·unique types + 0.1·max priority +
//	0.3·interdependencies + 1.0 if reasoning is required
//
// with each term scaled by its learned adjustment.
func (h *Hybrid) ComplexityScore(stimuli []Stimulus) float64 {
	if len(stimuli) == 0 {
		return 0
	}

	types := make(map[string]struct{})
	maxPriority := 0.0
	interdeps := 0
	reasoning := false
	for _, s := range stimuli {
		if t, ok := s.Data["type"].(string); ok {
			types[t] = struct{}{}
		}
		if p := priorityRank(s.Data["priority"]); p > maxPriority {
			maxPriority = p
		}
		if hasDependencies(s.Data) {
			interdeps++
		}
		if requiresReasoning(s) {
			reasoning = true
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	score := 0.1*float64(len(stimuli))*h.adjustments[factorStimuliCount] +
		0.2*float64(len(types))*h.adjustments[factorUniqueTypes] +
		0.1*maxPriority*h.adjustments[factorMaxPriority] +
		0.3*float64(interdeps)*h.adjustments[factorInterdependencies]
	if reasoning {
		score += 1.0 * h.adjustments[factorRequiresReasoning]
	}
	return score
}

// SelectMode picks the handling mode for a score against the current
// threshold: below half is reactive, above one-and-a-half is cognitive,
// everything between runs both.
func (h *Hybrid) SelectMode(score float64) string {
	t := h.Threshold()
	switch {
	case score < 0.5*t:
		return ModeReactive
	case score > 1.5*t:
		return ModeCognitive
	default:
		return ModeHybrid
	}
}

// Deliberate scores the cycle's stimuli, records the routing decision in
// beliefs, and delegates to the selected strategy. Cognitive contributes no
// ambient intentions, so cognitive-routed cycles commit nothing.
func (h *Hybrid) Deliberate(ctx context.Context, a *BaseAgent, stimuli []Stimulus) []Intention {
	if len(stimuli) == 0 {
		return nil
	}
	score := h.ComplexityScore(stimuli)
	mode := h.SelectMode(score)
	a.beliefs.Update("complexity", map[string]any{"score": score, "mode": mode})

	var intentions []Intention
	switch mode {
	case ModeCognitive:
		intentions = h.cognitive.Deliberate(ctx, a, stimuli)
	default:
		intentions = h.reactive.Deliberate(ctx, a, stimuli)
	}
	for i := range intentions {
		intentions[i].Context["mode"] = mode
		intentions[i].Context["score"] = score
	}
	return intentions
}

// Act executes the committed intentions through the strategy that produced
// them and logs the outcome as an experience. Hybrid-mode cycles are capped
// at five actions.
func (h *Hybrid) Act(ctx context.Context, a *BaseAgent, intentions []Intention) (any, error) {
	if len(intentions) == 0 {
		return nil, nil
	}
	mode, _ := intentions[0].Context["mode"].(string)
	score, _ := intentions[0].Context["score"].(float64)
	start := time.Now()

	raw, err := h.reactive.Act(ctx, a, intentions)
	actions, _ := raw.([]models.Action)
	if mode == ModeHybrid && len(actions) > hybridActionCap {
		actions = actions[:hybridActionCap]
	}

	h.recordExperience(a.logger, mode, score, err == nil, time.Since(start))
	return actions, err
}

// HandleTask routes a single task by its own complexity. Hybrid mode runs
// the rules first for their side effects, then the cognitive pipeline for
// the actual solution.
func (h *Hybrid) HandleTask(ctx context.Context, a *BaseAgent, task *models.Task) (map[string]any, error) {
	stimulus := taskStimulus(task)
	score := h.ComplexityScore([]Stimulus{stimulus})
	mode := h.SelectMode(score)
	a.beliefs.Update("complexity", map[string]any{"score": score, "mode": mode})
	start := time.Now()

	var result map[string]any
	var err error
	switch mode {
	case ModeReactive:
		result, err = h.reactive.HandleTask(ctx, a, task)
	case ModeCognitive:
		result, err = h.cognitive.HandleTask(ctx, a, task)
	default:
		reactiveResult, reactiveErr := h.reactive.HandleTask(ctx, a, task)
		result, err = h.cognitive.HandleTask(ctx, a, task)
		if err == nil && reactiveErr == nil {
			if fired, ok := reactiveResult["rules_fired"]; ok {
				result["rules_fired"] = fired
			}
		}
	}

	h.recordExperience(a.logger, mode, score, err == nil, time.Since(start))
	if result != nil {
		result["mode"] = mode
		result["complexity_score"] = score
	}
	return result, err
}

// HandleMessage routes a single message by its own complexity. Hybrid mode
// merges rule actions with the cognitive reply, capped like a cycle.
func (h *Hybrid) HandleMessage(ctx context.Context, a *BaseAgent, msg *models.Message) (any, error) {
	stimulus := messageStimulus(msg)
	score := h.ComplexityScore([]Stimulus{stimulus})
	mode := h.SelectMode(score)
	start := time.Now()

	var raw any
	var err error
	switch mode {
	case ModeReactive:
		raw, err = h.reactive.HandleMessage(ctx, a, msg)
	case ModeCognitive:
		raw, err = h.cognitive.HandleMessage(ctx, a, msg)
	default:
		reactiveRaw, _ := h.reactive.HandleMessage(ctx, a, msg)
		cognitiveRaw, cognitiveErr := h.cognitive.HandleMessage(ctx, a, msg)
		err = cognitiveErr

		actions, _ := NormalizeActions(reactiveRaw)
		if cognitiveErr == nil {
			more, normErr := NormalizeActions(cognitiveRaw)
			if normErr == nil {
				actions = append(actions, more...)
			}
		}
		if len(actions) > hybridActionCap {
			actions = actions[:hybridActionCap]
		}
		raw = actions
	}

	h.recordExperience(a.logger, mode, score, err == nil, time.Since(start))
	return raw, err
}

// recordExperience logs one routed outcome and, once the window fills,
// reconsiders the threshold.
func (h *Hybrid) recordExperience(logger *slog.Logger, mode string, score float64, success bool, elapsed time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.experiences = append(h.experiences, experience{
		score:   score,
		mode:    mode,
		success: success,
		elapsed: elapsed,
	})
	if len(h.experiences) < learnWindow {
		return
	}
	h.learn(logger)
	h.experiences = h.experiences[:0]
}

// learn bins the experience window by score, compares per-mode success
// rates in each bin, and moves the threshold toward the dominant mode when
// the gap exceeds the margin. Called with h.mu held.
func (h *Hybrid) learn(logger *slog.Logger) {
	type bin struct {
		reactiveOK, reactiveN   int
		cognitiveOK, cognitiveN int
		reactiveTime            time.Duration
		cognitiveTime           time.Duration
	}

	bins := make(map[int]*bin)
	for _, e := range h.experiences {
		b := bins[int(e.score)]
		if b == nil {
			b = &bin{}
			bins[int(e.score)] = b
		}
		switch e.mode {
		case ModeReactive:
			b.reactiveN++
			b.reactiveTime += e.elapsed
			if e.success {
				b.reactiveOK++
			}
		case ModeCognitive:
			b.cognitiveN++
			b.cognitiveTime += e.elapsed
			if e.success {
				b.cognitiveOK++
			}
		}
		// Hybrid-mode experiences exercise both strategies and vote for
		// neither.
	}

	votes := 0
	for _, b := range bins {
		if b.reactiveN < minBinSamples || b.cognitiveN < minBinSamples {
			continue
		}
		reactiveRate := float64(b.reactiveOK) / float64(b.reactiveN)
		cognitiveRate := float64(b.cognitiveOK) / float64(b.cognitiveN)
		switch {
		case cognitiveRate-reactiveRate > dominanceMargin:
			votes++
		case reactiveRate-cognitiveRate > dominanceMargin:
			votes--
		}
	}
	if votes == 0 {
		return
	}

	old := h.threshold
	delta := h.learningRate * 0.1
	if votes > 0 {
		// Cognitive dominates: lower the threshold so more stimuli route
		// through the model.
		h.threshold -= delta
	} else {
		h.threshold += delta
	}
	if h.threshold < thresholdMin {
		h.threshold = thresholdMin
	}
	if h.threshold > thresholdMax {
		h.threshold = thresholdMax
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Routing threshold adjusted",
		"old", old, "new", h.threshold, "votes", votes, "window", learnWindow)
}

// priorityRank maps a stimulus priority to its numeric rank. Strings use
// the task priority scale; numbers pass through.
func priorityRank(v any) float64 {
	switch p := v.(type) {
	case string:
		return float64(models.TaskPriority(p).Weight())
	default:
		if f, ok := asFloat(v); ok {
			return f
		}
	}
	return 0
}

func hasDependencies(data map[string]any) bool {
	for _, key := range [...]string{"depends_on", "dependencies"} {
		switch deps := data[key].(type) {
		case []any:
			if len(deps) > 0 {
				return true
			}
		case []string:
			if len(deps) > 0 {
				return true
			}
		}
	}
	return false
}

// requiresReasoning reports whether a stimulus needs model-grade thinking:
// an explicit flag, a task type that produces artifacts, or a message that
// asks for something.
func requiresReasoning(s Stimulus) bool {
	if flag, ok := s.Data["requires_reasoning"].(bool); ok && flag {
		return true
	}
	typ, _ := s.Data["type"].(string)
	switch typ {
	case "task":
		switch models.TaskType(stringAt(s.Data, "task_type", "")) {
		case models.TaskTypeAnalysis, models.TaskTypeDesign, models.TaskTypeImplementation:
			return true
		}
	case "message":
		switch models.Performative(stringAt(s.Data, "performative", "")) {
		case models.PerformativeRequest, models.PerformativeQuery, models.PerformativePropose:
			return true
		}
	}
	return false
}
