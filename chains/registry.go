package chains

import (
	"sort"
	"sync"

	"github.com/vitwit/chaindonate/types"
)

// Registry maps network ids to their family strategy.
type Registry struct {
	mu       sync.RWMutex
	families map[string]Family
}

func NewRegistry(families ...Family) *Registry {
	r := &Registry{families: make(map[string]Family, len(families))}
	for _, f := range families {
		r.Add(f)
	}
	return r
}

// Add registers f, replacing any family already bound to its network.
func (r *Registry) Add(f Family) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.families[f.Network().NetworkID] = f
}

func (r *Registry) Get(networkID string) (Family, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.families[networkID]
	if !ok {
		return nil, types.NewError(types.ErrUnimplemented, "no chain family registered for network %s", networkID)
	}
	return f, nil
}

// EVM returns the enabled EVM families in network id order.
func (r *Registry) EVM() []Family {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Family
	for _, f := range r.families {
		if n := f.Network(); n.IsEVM() && n.Enabled {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Network().NetworkID < out[j].Network().NetworkID
	})
	return out
}
