package worker

import "sync"

// recentIDs is a bounded FIFO window of recently persisted event ids. It
// suppresses duplicate file lines when at-least-once delivery hands the
// worker an entry it already wrote. The window bounds duplicates, it does
// not eliminate them: an id evicted before its redelivery will be written
// again, which the file format tolerates.
type recentIDs struct {
	mu       sync.Mutex
	capacity int
	seen     map[string]struct{}
	order    []string
}

func newRecentIDs(capacity int) *recentIDs {
	if capacity <= 0 {
		capacity = 10000
	}
	return &recentIDs{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
	}
}

func (r *recentIDs) Seen(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.seen[id]
	return ok
}

func (r *recentIDs) Add(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[id]; ok {
		return
	}
	if len(r.order) >= r.capacity {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.seen, oldest)
	}
	r.seen[id] = struct{}{}
	r.order = append(r.order, id)
}

func (r *recentIDs) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}
