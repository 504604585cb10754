package pipeline

import "sync"

// InFlight guards track acquisition so at most one pipeline run exists per
// track ID at a time. The guard is process-local; concurrent requests for a
// track already being acquired are told to retry rather than queued.
type InFlight struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewInFlight creates an empty guard.
func NewInFlight() *InFlight {
	return &InFlight{active: make(map[string]struct{})}
}

// TryAcquire claims the track ID. Returns false when another run holds it.
func (f *InFlight) TryAcquire(trackID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, held := f.active[trackID]; held {
		return false
	}
	f.active[trackID] = struct{}{}
	return true
}

// Release frees the track ID. Safe to call for an unheld ID.
func (f *InFlight) Release(trackID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.active, trackID)
}

// Len returns the number of acquisitions currently running.
func (f *InFlight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.active)
}
