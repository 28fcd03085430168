package calendar

import "sync"

// Holder hands the current Snapshot to readers while refreshes swap in a
// replacement. Snapshots are immutable, so readers never need to copy.
type Holder struct {
	mu   sync.RWMutex
	snap *Snapshot
}

func NewHolder(snap *Snapshot) *Holder {
	return &Holder{snap: snap}
}

// Get returns the current snapshot.
func (h *Holder) Get() *Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snap
}

// Set swaps in a freshly loaded snapshot.
func (h *Holder) Set(snap *Snapshot) {
	h.mu.Lock()
	h.snap = snap
	h.mu.Unlock()
}
