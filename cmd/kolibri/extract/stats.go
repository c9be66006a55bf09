package extract

import "sync"

// TypeStats counts progress for one resource type.
type TypeStats struct {
	Pages     int    `json:"pages"`
	Resources int    `json:"resources"`
	Records   int    `json:"records"`
	Done      bool   `json:"done"`
	Error     string `json:"error,omitempty"`
}

// Stats aggregates per-type progress for the ops endpoint. Workers update
// their own type concurrently.
type Stats struct {
	mu      sync.RWMutex
	perType map[string]*TypeStats
}

func NewStats() *Stats {
	return &Stats{perType: make(map[string]*TypeStats)}
}

func (s *Stats) update(resourceType string, fn func(*TypeStats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.perType[resourceType]
	if !ok {
		ts = &TypeStats{}
		s.perType[resourceType] = ts
	}
	fn(ts)
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() map[string]TypeStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]TypeStats, len(s.perType))
	for k, v := range s.perType {
		out[k] = *v
	}
	return out
}
