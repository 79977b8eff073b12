package agent

import (
	"encoding/json"
	"fmt"

	"github.com/taskhive-ai/taskhive/pkg/models"
)

// NormalizeActions accepts the shapes an act step may legally produce — a
// single action, a slice of actions, a loosely-typed map, or a JSON string
// encoding any of those — and returns a flat action list. nil input yields
// an empty list.
func NormalizeActions(raw any) ([]models.Action, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case models.Action:
		return []models.Action{v}, nil
	case *models.Action:
		if v == nil {
			return nil, nil
		}
		return []models.Action{*v}, nil
	case []models.Action:
		return v, nil
	case map[string]any:
		action, err := actionFromMap(v)
		if err != nil {
			return nil, err
		}
		return []models.Action{action}, nil
	case []any:
		out := make([]models.Action, 0, len(v))
		for i, item := range v {
			actions, err := NormalizeActions(item)
			if err != nil {
				return nil, fmt.Errorf("action %d: %w", i, err)
			}
			out = append(out, actions...)
		}
		return out, nil
	case string:
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			return nil, fmt.Errorf("action string is not valid JSON: %w", err)
		}
		return NormalizeActions(parsed)
	default:
		return nil, fmt.Errorf("cannot interpret %T as actions", raw)
	}
}

// actionFromMap builds an action from a loosely-typed map. The "type" key is
// required; "params" holds the arguments when present, otherwise every other
// top-level key is treated as a parameter (LLMs flatten envelopes often
// enough that tolerating it is cheaper than retrying).
func actionFromMap(m map[string]any) (models.Action, error) {
	typeStr, ok := m["type"].(string)
	if !ok || typeStr == "" {
		return models.Action{}, fmt.Errorf("action map missing \"type\"")
	}

	action := models.Action{Type: models.ActionType(typeStr)}
	if params, ok := m["params"].(map[string]any); ok {
		action.Params = params
		return action, nil
	}

	params := make(map[string]any, len(m)-1)
	for k, v := range m {
		if k == "type" {
			continue
		}
		params[k] = v
	}
	if len(params) > 0 {
		action.Params = params
	}
	return action, nil
}
