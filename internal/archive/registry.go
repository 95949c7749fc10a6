package archive

import "sync"

// Registry maps file names to extractors. Resolution order is registration
// order.
type Registry struct {
	mu         sync.RWMutex
	extractors []Extractor
}

// NewRegistry returns a registry holding extractors in the given order.
func NewRegistry(extractors ...Extractor) *Registry {
	r := &Registry{}
	for _, e := range extractors {
		r.Register(e)
	}
	return r
}

// Register appends e. A nil extractor is ignored.
func (r *Registry) Register(e Extractor) {
	if e == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors = append(r.extractors, e)
}

// Resolve returns the first extractor that handles path.
func (r *Registry) Resolve(path string) (Extractor, bool) {
	e, _, ok := r.Match(path)
	return e, ok
}

// Match is Resolve that also reports the extension that matched, which
// callers use to derive the archive stem.
func (r *Registry) Match(path string) (Extractor, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.extractors {
		if ext, ok := MatchExtension(path, e.Extensions()); ok {
			return e, ext, true
		}
	}
	return nil, "", false
}

// Extractors returns the registered extractors in resolution order.
func (r *Registry) Extractors() []Extractor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Extractor(nil), r.extractors...)
}

// Len returns the number of registered extractors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.extractors)
}

// Stats sums the outcome counters of every registered extractor.
func (r *Registry) Stats() Stats {
	var total Stats
	for _, e := range r.Extractors() {
		total = total.Add(e.Stats())
	}
	return total
}
