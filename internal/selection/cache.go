package selection

import (
	"slices"
	"sync"
)

// Cache is the in-memory selection of one instance.
//
// It keeps insertion order for display and an index for membership.
// Duplicates are collapsed, first occurrence wins.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Slices passed in or returned are never retained or shared.
type Cache struct {
	mu    sync.RWMutex
	ids   []string
	index map[string]struct{}
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{index: make(map[string]struct{})}
}

// Get returns a copy of the selection. It is never nil.
func (c *Cache) Get() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.ids))
	copy(out, c.ids)
	return out
}

// Replace swaps the whole selection.
func (c *Cache) Replace(ids []string) {
	next, index := dedupe(ids)

	c.mu.Lock()
	c.ids = next
	c.index = index
	c.mu.Unlock()
}

// Add appends id if absent. Returns true if the cache changed.
func (c *Cache) Add(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.index[id]; ok {
		return false
	}
	c.ids = append(c.ids, id)
	c.index[id] = struct{}{}
	return true
}

// Remove deletes id if present. Returns true if the cache changed.
func (c *Cache) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.index[id]; !ok {
		return false
	}
	delete(c.index, id)
	c.ids = slices.DeleteFunc(c.ids, func(s string) bool { return s == id })
	return true
}

// Contains reports whether id is selected.
func (c *Cache) Contains(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.index[id]
	return ok
}

// Len returns the number of selected ids.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids)
}

// Clear empties the selection.
func (c *Cache) Clear() {
	c.Replace(nil)
}

func dedupe(ids []string) ([]string, map[string]struct{}) {
	out := make([]string, 0, len(ids))
	index := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := index[id]; ok {
			continue
		}
		index[id] = struct{}{}
		out = append(out, id)
	}
	return out, index
}
