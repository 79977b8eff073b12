package swarm

import (
	"container/heap"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/taskhive-ai/taskhive/pkg/models"
)

// ErrQueueFull indicates the pending queue hit its configured cap.
var ErrQueueFull = errors.New("task queue is full")

// taskQueue orders schedulable work by priority weight, then submission
// order within a weight. It holds task IDs, not tasks: the registry stays
// the single source of truth and a queued entry can never go stale.
type taskQueue struct {
	mu    sync.Mutex
	items pqueue
	ids   map[string]struct{}
	seq   uint64
	max   int // 0 means unbounded
}

func newTaskQueue(max int) *taskQueue {
	return &taskQueue{ids: make(map[string]struct{}), max: max}
}

// Push enqueues one task. Duplicates are ignored so retry and requeue paths
// cannot double-enqueue; a full queue returns ErrQueueFull.
func (q *taskQueue) Push(t *models.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.ids[t.ID]; ok {
		return nil
	}
	if q.max > 0 && len(q.items) >= q.max {
		return fmt.Errorf("%w: %d tasks queued", ErrQueueFull, len(q.items))
	}
	q.seq++
	heap.Push(&q.items, &queueItem{id: t.ID, weight: t.Priority.Weight(), seq: q.seq})
	q.ids[t.ID] = struct{}{}
	return nil
}

// Pop removes the highest-priority task ID, FIFO within equal priorities.
func (q *taskQueue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return "", false
	}
	item := heap.Pop(&q.items).(*queueItem)
	delete(q.ids, item.id)
	return item.id, true
}

func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns the queued IDs in sorted order, for checkpoints.
func (q *taskQueue) Snapshot() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	ids := make([]string, 0, len(q.ids))
	for id := range q.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// queueItem is one queued task ID with its scheduling keys.
type queueItem struct {
	id     string
	weight int
	seq    uint64
	index  int
}

// pqueue implements heap.Interface: weight descending, seq ascending.
type pqueue []*queueItem

func (p pqueue) Len() int { return len(p) }

func (p pqueue) Less(i, j int) bool {
	if p[i].weight != p[j].weight {
		return p[i].weight > p[j].weight
	}
	return p[i].seq < p[j].seq
}

func (p pqueue) Swap(i, j int) {
	p[i], p[j] = p[j], p[i]
	p[i].index = i
	p[j].index = j
}

func (p *pqueue) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*p)
	*p = append(*p, item)
}

func (p *pqueue) Pop() any {
	old := *p
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*p = old[:n-1]
	return item
}
