package agent

import (
	"context"
	"reflect"
	"sort"

	"github.com/taskhive-ai/taskhive/pkg/models"
)

// Condition gates a rule. Predicate wins when set; otherwise every Fields
// entry must match the stimulus data. A field value may be a literal
// (equality) or an operator map:
//
//	{"$gt": 80}        numeric greater-than
//	{"$lt": 80}        numeric less-than
//	{"$eq": "x"}       equality
//	{"$in": [a, b]}    membership
//
// An empty condition never matches.
type Condition struct {
	Predicate func(Stimulus) bool
	Fields    map[string]any
}

// Matches reports whether the stimulus satisfies the condition.
func (c Condition) Matches(s Stimulus) bool {
	if c.Predicate != nil {
		return c.Predicate(s)
	}
	if len(c.Fields) == 0 {
		return false
	}
	for key, want := range c.Fields {
		got, ok := s.Data[key]
		if !ok {
			return false
		}
		if !matchValue(got, want) {
			return false
		}
	}
	return true
}

func matchValue(got, want any) bool {
	if ops, ok := want.(map[string]any); ok && isOperatorMap(ops) {
		return matchOperators(got, ops)
	}
	return looseEqual(got, want)
}

// isOperatorMap reports whether every key is a $-prefixed operator. A map
// with plain keys is compared structurally instead.
func isOperatorMap(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if len(k) == 0 || k[0] != '$' {
			return false
		}
	}
	return true
}

func matchOperators(got any, ops map[string]any) bool {
	for op, operand := range ops {
		switch op {
		case "$gt":
			g, ok1 := asFloat(got)
			w, ok2 := asFloat(operand)
			if !ok1 || !ok2 || g <= w {
				return false
			}
		case "$lt":
			g, ok1 := asFloat(got)
			w, ok2 := asFloat(operand)
			if !ok1 || !ok2 || g >= w {
				return false
			}
		case "$eq":
			if !looseEqual(got, operand) {
				return false
			}
		case "$in":
			if !memberOf(got, operand) {
				return false
			}
		default:
			// Unknown operators never match; a typo must not fire a rule.
			return false
		}
	}
	return true
}

// looseEqual compares numerics by value across Go number types, everything
// else structurally.
func looseEqual(got, want any) bool {
	g, okG := asFloat(got)
	w, okW := asFloat(want)
	if okG && okW {
		return g == w
	}
	if okG != okW {
		return false
	}
	return reflect.DeepEqual(got, want)
}

func memberOf(got, operand any) bool {
	v := reflect.ValueOf(operand)
	if !v.IsValid() || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) {
		return false
	}
	for i := 0; i < v.Len(); i++ {
		if looseEqual(got, v.Index(i).Interface()) {
			return true
		}
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Rule is one condition-action pair. Rules are evaluated highest priority
// first; a fired rule ends the scan unless ContinueMatching is set.
type Rule struct {
	Name             string
	Priority         int
	Condition        Condition
	Action           func(Stimulus) models.Action
	ContinueMatching bool
}

// Reactive is the rule-driven deliberation strategy: ordered condition-action
// matching over stimuli, no model calls anywhere.
type Reactive struct {
	rules []Rule
}

// NewReactive builds a reactive reasoner with rules sorted by priority,
// highest first. Order among equal priorities is preserved.
func NewReactive(rules ...Rule) *Reactive {
	sorted := append([]Rule(nil), rules...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})
	return &Reactive{rules: sorted}
}

// Rules returns the rule set in evaluation order.
func (r *Reactive) Rules() []Rule {
	return append([]Rule(nil), r.rules...)
}

// Deliberate matches stimuli against the rule set. Each fired rule yields
// one intention carrying the stimulus that triggered it.
func (r *Reactive) Deliberate(_ context.Context, _ *BaseAgent, stimuli []Stimulus) []Intention {
	return r.match(stimuli)
}

func (r *Reactive) match(stimuli []Stimulus) []Intention {
	var intentions []Intention
	for _, rule := range r.rules {
		fired := false
		for _, s := range stimuli {
			if !rule.Condition.Matches(s) {
				continue
			}
			intentions = append(intentions, Intention{
				Name: "execute_rule_" + rule.Name,
				Context: map[string]any{
					"rule":     rule.Name,
					"stimulus": s,
				},
			})
			fired = true
			break // one firing per rule per cycle
		}
		if fired && !rule.ContinueMatching {
			break
		}
	}
	return intentions
}

// Act maps committed intentions back to their rules' actions.
func (r *Reactive) Act(_ context.Context, _ *BaseAgent, intentions []Intention) (any, error) {
	return r.actionsFor(intentions), nil
}

func (r *Reactive) actionsFor(intentions []Intention) []models.Action {
	var actions []models.Action
	for _, intent := range intentions {
		name, _ := intent.Context["rule"].(string)
		rule, ok := r.ruleByName(name)
		if !ok || rule.Action == nil {
			continue
		}
		s, _ := intent.Context["stimulus"].(Stimulus)
		actions = append(actions, rule.Action(s))
	}
	return actions
}

func (r *Reactive) ruleByName(name string) (Rule, bool) {
	for _, rule := range r.rules {
		if rule.Name == name {
			return rule, true
		}
	}
	return Rule{}, false
}

// HandleTask treats the task as a stimulus and executes whatever rules
// match. Reactive agents have no planner; the matched actions are the work.
func (r *Reactive) HandleTask(ctx context.Context, a *BaseAgent, task *models.Task) (map[string]any, error) {
	stimulus := taskStimulus(task)
	intentions := r.match([]Stimulus{stimulus})
	actions := r.actionsFor(intentions)

	for _, action := range actions {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.Execute(ctx, action)
	}

	fired := make([]string, 0, len(intentions))
	for _, intent := range intentions {
		if name, ok := intent.Context["rule"].(string); ok {
			fired = append(fired, name)
		}
	}

	return map[string]any{
		"handled_by":    string(models.AgentKindReactive),
		"rules_fired":   fired,
		"actions_taken": len(actions),
	}, nil
}

// HandleMessage turns the message into a stimulus and returns the actions of
// matching rules for the base to dispatch.
func (r *Reactive) HandleMessage(_ context.Context, _ *BaseAgent, msg *models.Message) (any, error) {
	intentions := r.match([]Stimulus{messageStimulus(msg)})
	return r.actionsFor(intentions), nil
}

// taskStimulus flattens a task into rule-matchable data. Payload fields
// never shadow the task's own attributes.
func taskStimulus(task *models.Task) Stimulus {
	data := map[string]any{
		"type":        "task",
		"task_id":     task.ID,
		"task_type":   string(task.Type),
		"priority":    string(task.Priority),
		"description": task.Description,
	}
	for k, v := range task.Payload {
		if _, exists := data[k]; !exists {
			data[k] = v
		}
	}
	return Stimulus{Kind: StimulusTask, Data: data}
}

// messageStimulus flattens a message into rule-matchable data. Content
// fields never shadow performative, sender, or type.
func messageStimulus(msg *models.Message) Stimulus {
	data := map[string]any{
		"type":         "message",
		"performative": string(msg.Performative),
		"sender":       msg.Sender,
	}
	for k, v := range msg.Content {
		if _, exists := data[k]; !exists {
			data[k] = v
		}
	}
	return Stimulus{Kind: StimulusMessage, Data: data}
}

// DefaultRules returns the built-in rule set for the given capabilities.
// Every reactive agent records constraint violations; agents with the
// monitoring capability also raise alerts on host pressure.
func DefaultRules(capabilities []string) []Rule {
	rules := []Rule{
		{
			Name:     "record-constraint-violation",
			Priority: 50,
			Condition: Condition{Fields: map[string]any{
				"type": "constraint.violated",
			}},
			Action: func(s Stimulus) models.Action {
				return models.Action{
					Type: models.ActionUpdateBelief,
					Params: map[string]any{
						"key":   "last_constraint_violation",
						"value": s.Data,
					},
				}
			},
			ContinueMatching: true,
		},
	}

	for _, c := range capabilities {
		if c != "monitoring" {
			continue
		}
		rules = append(rules,
			Rule{
				Name:     "high-cpu-alert",
				Priority: 20,
				Condition: Condition{Fields: map[string]any{
					"type":             "environment_state",
					"host_cpu_percent": map[string]any{"$gt": 80},
				}},
				Action: func(s Stimulus) models.Action {
					return models.Action{
						Type: models.ActionUpdateBelief,
						Params: map[string]any{
							"key": "alert",
							"value": map[string]any{
								"level":  "warning",
								"metric": "host_cpu_percent",
								"value":  s.Data["host_cpu_percent"],
							},
						},
					}
				},
				ContinueMatching: true,
			},
			Rule{
				Name:     "high-memory-alert",
				Priority: 20,
				Condition: Condition{Fields: map[string]any{
					"type":                "environment_state",
					"host_memory_percent": map[string]any{"$gt": 85},
				}},
				Action: func(s Stimulus) models.Action {
					return models.Action{
						Type: models.ActionUpdateBelief,
						Params: map[string]any{
							"key": "alert",
							"value": map[string]any{
								"level":  "warning",
								"metric": "host_memory_percent",
								"value":  s.Data["host_memory_percent"],
							},
						},
					}
				},
				ContinueMatching: true,
			},
		)
		break
	}

	return rules
}
