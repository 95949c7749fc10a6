package nested

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/blurfx/unnest/internal/archive"
)

// Traversal is the state one nested run shares across all the directories
// it visits: the set of archives already attempted and the run counters.
// It is safe for concurrent use.
type Traversal struct {
	mu      sync.Mutex
	visited map[string]struct{}
	ids     map[fileID]struct{}
	stats   archive.Stats
}

// NewTraversal returns an empty traversal.
func NewTraversal() *Traversal {
	return &Traversal{
		visited: make(map[string]struct{}),
		ids:     make(map[fileID]struct{}),
	}
}

// Counts returns the successful and failed extractions so far.
func (t *Traversal) Counts() (successful, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats.SuccessfulExtractions, t.stats.FailedExtractions
}

// Stats returns a snapshot of the run counters.
func (t *Traversal) Stats() archive.Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Visited reports whether the archive at path has been attempted.
func (t *Traversal) Visited(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.visited[canonical(path)]
	return ok
}

func (t *Traversal) add(delta archive.Stats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats = t.stats.Add(delta)
}

// claim marks the archive visited. It returns false when the canonical path
// or, where available, the file identity has been claimed before.
func (t *Traversal) claim(path string, info os.FileInfo) bool {
	key := canonical(path)
	id, hasID := identity(info)

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.visited[key]; ok {
		return false
	}
	if hasID {
		if _, ok := t.ids[id]; ok {
			return false
		}
		t.ids[id] = struct{}{}
	}
	t.visited[key] = struct{}{}
	return true
}

// release drops the file identity of an archive that no longer exists, so a
// new file that reuses its inode is not mistaken for it. The path stays
// visited.
func (t *Traversal) release(info os.FileInfo) {
	id, ok := identity(info)
	if !ok {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.ids, id)
}

// canonical resolves path to an absolute, symlink-free form. Paths that
// cannot be resolved fall back to their absolute form.
func canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
