package watcher

import (
	"sort"
	"sync"
	"time"
)

// pathTracker remembers when each in-flight path was claimed
type pathTracker struct {
	mu      sync.Mutex
	claimed map[string]time.Time
	now     func() time.Time
}

// NewProcessingTracker creates an empty tracker
func NewProcessingTracker() ProcessingTracker {
	return &pathTracker{claimed: make(map[string]time.Time), now: time.Now}
}

func (t *pathTracker) TryLock(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, busy := t.claimed[path]; busy {
		return false
	}
	t.claimed[path] = t.now()
	return true
}

func (t *pathTracker) Unlock(path string) {
	t.mu.Lock()
	delete(t.claimed, path)
	t.mu.Unlock()
}

func (t *pathTracker) IsLocked(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, busy := t.claimed[path]
	return busy
}

func (t *pathTracker) CleanupStale(timeout time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-timeout)
	n := 0
	for path, at := range t.claimed {
		if at.Before(cutoff) {
			delete(t.claimed, path)
			n++
		}
	}
	return n
}

// GetLocked returns the claimed paths in sorted order
func (t *pathTracker) GetLocked() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	paths := make([]string, 0, len(t.claimed))
	for path := range t.claimed {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
