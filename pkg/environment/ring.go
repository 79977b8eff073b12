package environment

import "github.com/taskhive-ai/taskhive/pkg/events"

// eventRing is a bounded append-only buffer of environment events. Oldest
// entries are overwritten once capacity is reached. Not safe for concurrent
// use; callers hold the environment lock.
type eventRing struct {
	buf  []events.Event
	next int
	full bool
}

func newEventRing(capacity int) *eventRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &eventRing{buf: make([]events.Event, capacity)}
}

func (r *eventRing) append(evt events.Event) {
	r.buf[r.next] = evt
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

func (r *eventRing) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// recent returns up to n events, oldest first.
func (r *eventRing) recent(n int) []events.Event {
	size := r.len()
	if n <= 0 || n > size {
		n = size
	}
	out := make([]events.Event, 0, n)
	start := r.next - n
	for i := 0; i < n; i++ {
		idx := (start + i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}
