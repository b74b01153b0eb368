// Package run tracks the single active exploration and its cooperative stop
// flag. The registry is the only point of mutual exclusion between concurrent
// start requests.
package run

import (
	"sync"
	"sync/atomic"
)

// Flag is a cooperative stop signal for one exploration. The executor polls
// it at stage checkpoints; setting it never preempts an in-flight agent turn.
type Flag struct {
	set atomic.Bool
}

// Set marks the flag.
func (f *Flag) Set() {
	f.set.Store(true)
}

// IsSet reports whether a stop has been requested.
func (f *Flag) IsSet() bool {
	return f.set.Load()
}

// Registry guards the "one exploration at a time" invariant. Exactly one of
// any number of concurrent TryAcquire calls succeeds; the winner owns the
// active slot until Release.
type Registry struct {
	mu     sync.Mutex
	id     string
	active bool
	stop   *Flag
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// TryAcquire atomically marks id as the active run. Returns the run's stop
// flag and true on success, or nil and false if another run is active.
func (r *Registry) TryAcquire(id string) (*Flag, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return nil, false
	}
	r.active = true
	r.id = id
	r.stop = &Flag{}
	return r.stop, true
}

// Release clears the active slot. The stop flag of the finished run is
// discarded so a stale stop request cannot leak into the next run.
func (r *Registry) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	r.id = ""
	r.stop = nil
}

// ActiveID returns the active exploration id, if any.
func (r *Registry) ActiveID() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id, r.active
}

// RequestStop sets the active run's stop flag. Returns false if no run is
// active.
func (r *Registry) RequestStop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active || r.stop == nil {
		return false
	}
	r.stop.Set()
	return true
}

// StopRequested reports whether a stop has been requested for the given id.
// Only meaningful while that id is active.
func (r *Registry) StopRequested(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active || r.id != id || r.stop == nil {
		return false
	}
	return r.stop.IsSet()
}
