package apiclient

import "sync"

// LoadingObserver receives the full busy-flag map after every mutation. The
// snapshot is the observer's to keep; the registry never hands out its live
// map.
type LoadingObserver func(snapshot map[string]bool)

// LoadingRegistry tracks which logical calls are in flight, keyed by
// METHOD_endpoint. Two concurrent calls with the same method and endpoint
// collapse onto one key, so the flag drops to false as soon as either
// finishes; callers must not use it for call-specific lifetime tracking.
type LoadingRegistry struct {
	mu        sync.RWMutex
	flags     map[string]bool
	observers map[uint64]LoadingObserver
	nextID    uint64
}

// NewLoadingRegistry creates an empty registry.
func NewLoadingRegistry() *LoadingRegistry {
	return &LoadingRegistry{
		flags:     make(map[string]bool),
		observers: make(map[uint64]LoadingObserver),
	}
}

// Set flips a key's busy flag and synchronously notifies every observer with
// a fresh snapshot. Notification happens under the registry lock so no
// observer ever sees a partially applied mutation; observers must therefore
// not call back into the registry.
func (r *LoadingRegistry) Set(key string, loading bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if loading {
		r.flags[key] = true
	} else {
		delete(r.flags, key)
	}

	if len(r.observers) == 0 {
		return
	}
	snapshot := make(map[string]bool, len(r.flags))
	for k, v := range r.flags {
		snapshot[k] = v
	}
	for _, observer := range r.observers {
		observer(snapshot)
	}
}

// Subscribe registers an observer and returns its unsubscribe func.
func (r *LoadingRegistry) Subscribe(observer LoadingObserver) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	r.observers[id] = observer

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.observers, id)
	}
}

// Any reports whether any call is currently in flight.
func (r *LoadingRegistry) Any() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.flags {
		if v {
			return true
		}
	}
	return false
}

// Get returns the flag for one key, false when absent. Querying after a call
// completed always yields false.
func (r *LoadingRegistry) Get(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.flags[key]
}

// Snapshot returns a copy of the current map.
func (r *LoadingRegistry) Snapshot() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshot := make(map[string]bool, len(r.flags))
	for k, v := range r.flags {
		snapshot[k] = v
	}
	return snapshot
}
