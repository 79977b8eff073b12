package swarm

import (
	"math"
	"strings"

	"github.com/taskhive-ai/taskhive/pkg/models"
)

// typeCapability maps a task type to the capability that marks an agent as
// purpose-built for it.
var typeCapability = map[models.TaskType]string{
	models.TaskTypeAnalysis:       "analysis",
	models.TaskTypeDesign:         "design",
	models.TaskTypeImplementation: "code-generation",
	models.TaskTypeTesting:        "testing",
	models.TaskTypeDeployment:     "deployment",
	models.TaskTypeValidation:     "validation",
	models.TaskTypeGeneral:        "general",
}

// Scoring weights. Specialisation dominates, then availability and track
// record; backlog pulls the score down so work spreads.
const (
	typeMatchBonus = 20.0
	keywordBonus   = 10.0
	idleBonus      = 5.0
	reliabilityMax = 5.0
	validationMax  = 5.0
	loadPenalty    = 2.0
)

// scoreAgent ranks how well one agent suits a task. Higher is better.
func scoreAgent(task *models.Task, snap models.AgentSnapshot) float64 {
	score := 0.0
	if matchesRequired(task, snap.Capabilities) {
		score += typeMatchBonus
	}
	score += keywordBonus * float64(keywordMatches(task.Description, snap.Capabilities))
	if snap.Status == models.AgentStatusIdle && backlog(snap) == 0 {
		score += idleBonus
	}
	score += reliability(snap.Metrics) * reliabilityMax
	score += snap.Metrics.AvgValidation / 100 * validationMax
	score -= loadPenalty * float64(backlog(snap))
	return score
}

// selectAgent picks the best-scoring live agent for a task. Ties break
// toward the lighter backlog, then lexically by ID so selection is
// deterministic.
func selectAgent(task *models.Task, snaps []models.AgentSnapshot) (models.AgentSnapshot, bool) {
	var best models.AgentSnapshot
	bestScore := math.Inf(-1)
	found := false
	for _, snap := range snaps {
		if snap.Status == models.AgentStatusStopped {
			continue
		}
		score := scoreAgent(task, snap)
		if !found || beats(score, snap, bestScore, best) {
			best, bestScore, found = snap, score, true
		}
	}
	return best, found
}

func beats(score float64, snap models.AgentSnapshot, bestScore float64, best models.AgentSnapshot) bool {
	if score != bestScore {
		return score > bestScore
	}
	if backlog(snap) != backlog(best) {
		return backlog(snap) < backlog(best)
	}
	return snap.ID < best.ID
}

// backlog is everything handed to the agent and not yet finished.
func backlog(s models.AgentSnapshot) int {
	return s.ActiveTasks + s.QueuedTasks
}

// reliability is the agent's historical success ratio: 1.0 for a clean or
// blank record, falling toward 0 as failures accumulate.
func reliability(m models.AgentMetrics) float64 {
	if m.TasksCompleted == 0 {
		if m.TasksFailed > 0 {
			return 0
		}
		return 1
	}
	r := 1 - float64(m.TasksFailed)/float64(m.TasksCompleted)
	if r < 0 {
		return 0
	}
	return r
}

// matchesRequired reports whether the agent covers the task's required
// capability. Decomposition records the plan's capability picks in the task
// payload; those take precedence over the static type mapping so a subtask
// asking for "security-audit" lands on the auditor, not whichever generalist
// shares its type.
func matchesRequired(task *models.Task, capabilities []string) bool {
	if required := payloadStrings(task.Payload, "capabilities"); len(required) > 0 {
		for _, want := range required {
			if hasCapability(capabilities, want) {
				return true
			}
		}
		return false
	}
	wanted, ok := typeCapability[task.Type]
	return ok && hasCapability(capabilities, wanted)
}

func hasCapability(capabilities []string, wanted string) bool {
	for _, c := range capabilities {
		if strings.EqualFold(c, wanted) {
			return true
		}
	}
	return false
}

// keywordMatches counts the agent capabilities mentioned in the task
// description. Hyphenated capability names match their spaced form, so
// "code-generation" is found in "code generation service".
func keywordMatches(description string, capabilities []string) int {
	desc := strings.ToLower(description)
	n := 0
	for _, c := range capabilities {
		kw := strings.ReplaceAll(strings.ToLower(c), "-", " ")
		if kw != "" && strings.Contains(desc, kw) {
			n++
		}
	}
	return n
}
