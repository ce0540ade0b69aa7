package observer

import (
	"sync"
	"time"
)

// Dedup bounds.
const (
	DedupMax          = 500
	DedupKeep         = 200
	DedupTrimInterval = 5 * time.Minute
)

// Dedup remembers processed message ids in insertion order. Once it holds
// more than max ids it keeps only the most recent keep.
type Dedup struct {
	mu    sync.Mutex
	max   int
	keep  int
	order []string
	set   map[string]struct{}
}

// NewDedup returns an empty set. Non-positive bounds use DedupMax/DedupKeep.
func NewDedup(max, keep int) *Dedup {
	if max <= 0 {
		max = DedupMax
	}
	if keep <= 0 || keep > max {
		keep = DedupKeep
	}
	return &Dedup{max: max, keep: keep, set: make(map[string]struct{})}
}

// Has reports whether id was added and not trimmed since.
func (d *Dedup) Has(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.set[id]
	return ok
}

// Add records id and reports whether it was new.
func (d *Dedup) Add(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.set[id]; ok {
		return false
	}
	d.set[id] = struct{}{}
	d.order = append(d.order, id)
	d.trimLocked()
	return true
}

// Trim applies the size bound.
func (d *Dedup) Trim() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.trimLocked()
}

func (d *Dedup) trimLocked() {
	if len(d.order) <= d.max {
		return
	}
	drop := d.order[:len(d.order)-d.keep]
	for _, id := range drop {
		delete(d.set, id)
	}
	d.order = append([]string(nil), d.order[len(d.order)-d.keep:]...)
}

func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.order)
}
