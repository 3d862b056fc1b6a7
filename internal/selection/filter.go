package selection

import (
	"github.com/nerrad567/couch-control/internal/entity"
)

// Selector answers selection membership.
type Selector interface {
	// IsSelected reports whether id is in the selection.
	IsSelected(id string) bool

	// Selection returns the selected ids in display order.
	Selection() []string
}

// Filter is the read-only view of one Cache.
type Filter struct {
	cache *Cache
}

// NewFilter creates a filter over cache. The filter always reads the live
// cache, so it never goes stale.
func NewFilter(cache *Cache) *Filter {
	return &Filter{cache: cache}
}

// IsSelected reports whether id is selected, by exact string equality.
func (f *Filter) IsSelected(id string) bool {
	return f.cache.Contains(id)
}

// Selection returns a copy of the selected ids.
func (f *Filter) Selection() []string {
	return f.cache.Get()
}

// Project returns the snapshots of selected entities in selection order.
// Selected ids missing from snapshots are dropped.
func Project(s Selector, snapshots map[string]entity.State) []entity.State {
	return ProjectLookup(s, func(id string) (*entity.State, bool) {
		st, ok := snapshots[id]
		if !ok {
			return nil, false
		}
		return &st, true
	})
}

// ProjectLookup is Project over a live lookup function such as
// StateMachine.Get. Unresolvable ids are dropped.
func ProjectLookup(s Selector, lookup func(id string) (*entity.State, bool)) []entity.State {
	ids := s.Selection()
	out := make([]entity.State, 0, len(ids))
	for _, id := range ids {
		if st, ok := lookup(id); ok && st != nil {
			out = append(out, *st)
		}
	}
	return out
}

// union selects an id if any member does.
type union []Selector

// Union combines selectors. Selection is the de-duplicated concatenation
// of the members' selections in member order.
func Union(members ...Selector) Selector {
	return union(members)
}

func (u union) IsSelected(id string) bool {
	for _, m := range u {
		if m.IsSelected(id) {
			return true
		}
	}
	return false
}

func (u union) Selection() []string {
	var all []string
	for _, m := range u {
		all = append(all, m.Selection()...)
	}
	out, _ := dedupe(all)
	return out
}

// Project returns the snapshots of selected entities in selection order.
func (f *Filter) Project(snapshots map[string]entity.State) []entity.State {
	return Project(f, snapshots)
}

// ProjectLookup resolves each selected id through lookup.
func (f *Filter) ProjectLookup(lookup func(id string) (*entity.State, bool)) []entity.State {
	return ProjectLookup(f, lookup)
}
