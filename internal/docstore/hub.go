package docstore

import "sync"

// Hub fans out collection change notifications to live queries. Each
// subscriber channel holds at most one pending notification, so bursts of
// writes coalesce into a single re-query.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan struct{}]struct{})}
}

// Subscribe registers interest in a collection. The returned function removes
// the registration and must be called exactly once.
func (h *Hub) Subscribe(collection string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	set, ok := h.subs[collection]
	if !ok {
		set = make(map[chan struct{}]struct{})
		h.subs[collection] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[collection], ch)
		if len(h.subs[collection]) == 0 {
			delete(h.subs, collection)
		}
	}
}

// Notify wakes every subscriber of the collection without blocking.
func (h *Hub) Notify(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[collection] {
		signal(ch)
	}
}

// NotifyAll wakes every subscriber. Used after a lost connection when the
// changed collections are unknown.
func (h *Hub) NotifyAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.subs {
		for ch := range set {
			signal(ch)
		}
	}
}

// Len returns the number of registered subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
