package instrument

import "sync"

// Change describes one accepted parameter mutation, delivered to subscribers
// so a GUI can refresh without polling the network path.
type Change struct {
	// Name is the parameter's command target.
	Name string

	// Value is the new value.
	Value any
}

// subscriberRegistry holds the change-notification subscribers of one
// instrument. Callbacks run synchronously on the dispatch goroutine after a
// mutation is accepted; they must not block and must not write back into the
// instrument.
type subscriberRegistry struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]func(Change)
}

func newSubscriberRegistry() *subscriberRegistry {
	return &subscriberRegistry{subs: make(map[uint64]func(Change))}
}

func (r *subscriberRegistry) subscribe(fn func(Change)) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.subs[id] = fn
	return id
}

func (r *subscriberRegistry) unsubscribe(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, id)
}

func (r *subscriberRegistry) notify(c Change) {
	r.mu.Lock()
	fns := make([]func(Change), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}
