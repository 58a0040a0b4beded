// internal/player/cache.go
package player

import (
	"sort"
	"sync"
)

// Cache mirrors the host's set of connected players so operations can read
// it from request goroutines without touching host state. Only host
// join/quit events mutate it.
type Cache struct {
	players map[string]struct{}
	mu      sync.RWMutex
}

func NewCache() *Cache {
	return &Cache{
		players: make(map[string]struct{}),
	}
}

func (c *Cache) Add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.players[name] = struct{}{}
}

func (c *Cache) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.players, name)
}

// Reset replaces the whole membership, used when the bridge attaches to a
// host that already has players online.
func (c *Cache) Reset(names []string) {
	next := make(map[string]struct{}, len(names))
	for _, n := range names {
		next[n] = struct{}{}
	}
	c.mu.Lock()
	c.players = next
	c.mu.Unlock()
}

func (c *Cache) Contains(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.players[name]
	return ok
}

func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.players)
}

// List returns a sorted snapshot.
func (c *Cache) List() []string {
	c.mu.RLock()
	items := make([]string, 0, len(c.players))
	for name := range c.players {
		items = append(items, name)
	}
	c.mu.RUnlock()

	sort.Strings(items)
	return items
}
