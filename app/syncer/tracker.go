package syncer

import (
	"sync"
	"time"
)

// Tracker keeps last-sync times per catalog in memory. It is constructed
// once during wiring and passed by reference; it is not persisted, so a
// restart only resets the staleness heuristic, never correctness.
type Tracker struct {
	mu        sync.RWMutex
	lastSyncs map[string]time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		lastSyncs: make(map[string]time.Time),
	}
}

func (t *Tracker) MarkSynced(catalogID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSyncs[catalogID] = at
}

// LastSync returns the zero time when the catalog has not synced since the
// tracker was created.
func (t *Tracker) LastSync(catalogID string) time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastSyncs[catalogID]
}

// NeedsSync reports whether the catalog's last sync is older than the
// threshold. An untracked catalog always needs sync.
func (t *Tracker) NeedsSync(catalogID string, threshold time.Duration) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	last, ok := t.lastSyncs[catalogID]
	if !ok {
		return true
	}
	return time.Since(last) >= threshold
}

func (t *Tracker) Clear(catalogID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastSyncs, catalogID)
}
