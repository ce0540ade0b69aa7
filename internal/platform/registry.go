package platform

import (
	"fmt"
	"sort"
)

// Registry maps platform ids to adapters.
type Registry struct {
	adapters map[string]Adapter
	order    []string
}

// NewRegistry builds a registry. Ids must be unique and non-empty.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		id := a.ID()
		if id == "" {
			return nil, fmt.Errorf("platform: registry: adapter id is required")
		}
		if _, dup := r.adapters[id]; dup {
			return nil, fmt.Errorf("platform: registry: duplicate adapter %q", id)
		}
		r.adapters[id] = a
		r.order = append(r.order, id)
	}
	return r, nil
}

// Default returns a registry holding every built-in adapter.
func Default() *Registry {
	r, err := NewRegistry(
		NewWhatsApp(),
		NewMessenger(),
		NewInstagram(),
		NewTelegram(),
		NewLinkedIn(),
		NewXTwitter(),
		NewSlack(),
		NewDiscord(),
		NewTeams(),
		NewGmail(),
		NewOF(),
		NewOutlook(),
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Get returns the adapter for id.
func (r *Registry) Get(id string) (Adapter, bool) {
	a, ok := r.adapters[id]
	return a, ok
}

// IDs returns the registered ids in registration order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns the adapters sorted by id.
func (r *Registry) All() []Adapter {
	ids := r.IDs()
	sort.Strings(ids)
	out := make([]Adapter, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.adapters[id])
	}
	return out
}
