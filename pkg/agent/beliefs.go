package agent

import (
	"encoding/json"
	"sync"
)

// Beliefs is the agent's world model: string keys mapping to mappings,
// always. Updates never fail — whatever shape a value arrives in, it lands
// as a map:
//
//	map            → stored as-is
//	JSON string    → parsed; non-object JSON wraps as {"value": parsed}
//	anything else  → wrapped as {"value": x}
type Beliefs struct {
	mu   sync.RWMutex
	data map[string]map[string]any
}

func NewBeliefs() *Beliefs {
	return &Beliefs{data: make(map[string]map[string]any)}
}

// Update stores a belief under key, coercing value to a mapping.
func (b *Beliefs) Update(key string, value any) {
	coerced := coerceBelief(value)
	b.mu.Lock()
	b.data[key] = coerced
	b.mu.Unlock()
}

// Merge applies several updates at once.
func (b *Beliefs) Merge(updates map[string]any) {
	if len(updates) == 0 {
		return
	}
	b.mu.Lock()
	for key, value := range updates {
		b.data[key] = coerceBelief(value)
	}
	b.mu.Unlock()
}

// Get returns the belief stored under key.
func (b *Beliefs) Get(key string) (map[string]any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.data[key]
	return v, ok
}

// Has reports whether a belief exists under key.
func (b *Beliefs) Has(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.data[key]
	return ok
}

// Delete removes a belief.
func (b *Beliefs) Delete(key string) {
	b.mu.Lock()
	delete(b.data, key)
	b.mu.Unlock()
}

// Len returns the number of stored beliefs.
func (b *Beliefs) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// Snapshot copies the belief store one level deep.
func (b *Beliefs) Snapshot() map[string]map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]map[string]any, len(b.data))
	for key, value := range b.data {
		inner := make(map[string]any, len(value))
		for k, v := range value {
			inner[k] = v
		}
		out[key] = inner
	}
	return out
}

func coerceBelief(value any) map[string]any {
	switch v := value.(type) {
	case map[string]any:
		return v
	case string:
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			if m, ok := parsed.(map[string]any); ok {
				return m
			}
			return map[string]any{"value": parsed}
		}
		return map[string]any{"value": v}
	case nil:
		return map[string]any{"value": nil}
	default:
		return map[string]any{"value": v}
	}
}
