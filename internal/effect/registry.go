package effect

import "sync"

// Registry holds the per-effect parameter default tables. The debounced
// parameter store diffs live values against these defaults, so the tables
// are the reference point for what "unchanged" means: a parameter equal to
// its default is never persisted.
type Registry struct {
	mu       sync.RWMutex
	defaults map[uint8]map[string]int32
}

func NewRegistry() *Registry {
	return &Registry{defaults: make(map[uint8]map[string]int32)}
}

// Register installs the default table for one effect, replacing any
// previous table. The map is copied; callers may reuse theirs.
func (r *Registry) Register(effectID uint8, defaults map[string]int32) {
	table := make(map[string]int32, len(defaults))
	for k, v := range defaults {
		table[k] = v
	}
	r.mu.Lock()
	r.defaults[effectID] = table
	r.mu.Unlock()
}

// Default returns the default value for one parameter of one effect.
func (r *Registry) Default(effectID uint8, name string) (int32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.defaults[effectID][name]
	return v, ok
}

// Known reports whether the effect has a registered default table.
func (r *Registry) Known(effectID uint8) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.defaults[effectID]
	return ok
}
