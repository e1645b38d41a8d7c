// Package interrupt holds the process-local control signals for running
// generation pipelines. The registry is deliberately not persisted: a
// process restart implicitly cancels all in-flight pipelines, and the
// session store remains the durable source of truth.
package interrupt

import "sync"

// Signal is the control state an interrupt endpoint can set for a session.
type Signal string

const (
	SignalRunning   Signal = "running"
	SignalPaused    Signal = "paused"
	SignalCancelled Signal = "cancelled"
)

// Registry maps session id → current control signal. The HTTP layer
// writes, the pipeline goroutine reads at its checkpoints. Presence of
// an entry also serves as the per-session mutual-exclusion marker: a
// session id already registered must not start a second pipeline.
type Registry struct {
	mu      sync.RWMutex
	signals map[string]Signal
}

// NewRegistry creates an empty registry. Registries are injected rather
// than shared through a package-level singleton so tests can isolate them.
func NewRegistry() *Registry {
	return &Registry{
		signals: make(map[string]Signal),
	}
}

// Set records the signal for a session, creating the entry if needed.
func (r *Registry) Set(sessionID string, sig Signal) {
	r.mu.Lock()
	r.signals[sessionID] = sig
	r.mu.Unlock()
}

// Get returns the current signal and whether an entry exists.
func (r *Registry) Get(sessionID string) (Signal, bool) {
	r.mu.RLock()
	sig, ok := r.signals[sessionID]
	r.mu.RUnlock()
	return sig, ok
}

// Clear removes the entry for a session. Called on every pipeline exit
// path; clearing an absent entry is a no-op.
func (r *Registry) Clear(sessionID string) {
	r.mu.Lock()
	delete(r.signals, sessionID)
	r.mu.Unlock()
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.signals)
}
