// Package bracket implements the bracket order lifecycle: the placement
// workflow that turns a sized request into three venue orders, the registry
// of live bracket groups, and the reconciliation loop that supplies the OCO
// behavior the venue lacks.
package bracket

import (
	"sort"
	"sync"

	"bracketd/internal/domain"
	"bracketd/internal/metrics"
)

// Registry tracks bracket groups whose protective legs are under OCO watch.
// Groups are inserted by the placement workflow and removed only by the
// reconciliation loop, so a group is retired exactly once.
type Registry struct {
	mu     sync.Mutex
	groups map[int64]domain.BracketGroup
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{groups: make(map[int64]domain.BracketGroup)}
}

// Insert adds a group, keyed by its entry order id.
func (r *Registry) Insert(g domain.BracketGroup) {
	r.mu.Lock()
	r.groups[g.EntryOrderID] = g
	n := len(r.groups)
	r.mu.Unlock()
	metrics.SetActiveGroups(n)
}

// Remove deletes the group keyed by entryOrderID and reports whether it was
// present.
func (r *Registry) Remove(entryOrderID int64) (domain.BracketGroup, bool) {
	r.mu.Lock()
	g, ok := r.groups[entryOrderID]
	delete(r.groups, entryOrderID)
	n := len(r.groups)
	r.mu.Unlock()
	metrics.SetActiveGroups(n)
	return g, ok
}

// Snapshot returns the current groups sorted by entry order id. The slice is
// a copy; mutating it does not affect the registry.
func (r *Registry) Snapshot() []domain.BracketGroup {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.BracketGroup, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryOrderID < out[j].EntryOrderID })
	return out
}

// Len returns the number of groups under watch.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups)
}
