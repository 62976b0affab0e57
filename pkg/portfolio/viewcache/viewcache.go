// Package viewcache caches the public, read-only listing of content tables.
package viewcache

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tendant/portfolio-content/pkg/portfolio"
)

// DefaultSize is the number of tables kept when no size is given.
const DefaultSize = 128

// Cache is an LRU of table listings. Stored slices are copied on the way in
// and out so callers cannot mutate cached rows.
//
// Every table has a generation that InvalidateTables and Purge advance. A
// listing read before an invalidation is refused by PutIfGeneration, so a
// slow reader cannot restore a view that a write already dropped.
type Cache struct {
	mu    sync.Mutex
	lru   *lru.Cache[string, []*portfolio.Record]
	gens  map[string]uint64
	epoch uint64
}

var _ portfolio.ViewCache = (*Cache)(nil)

// New creates a cache holding at most size tables.
func New(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New[string, []*portfolio.Record](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create view cache: %w", err)
	}
	return &Cache{lru: c, gens: make(map[string]uint64)}, nil
}

func (c *Cache) Get(table string) ([]*portfolio.Record, bool) {
	records, ok := c.lru.Get(table)
	if !ok {
		return nil, false
	}
	return cloneAll(records), true
}

// Put stores a listing unconditionally.
func (c *Cache) Put(table string, records []*portfolio.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(table, cloneAll(records))
}

// Generation returns the current generation of table. Read it before
// loading the rows that are later passed to PutIfGeneration.
func (c *Cache) Generation(table string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch + c.gens[table]
}

// PutIfGeneration stores a listing only if table was not invalidated since
// gen was read. It reports whether the listing was stored.
func (c *Cache) PutIfGeneration(table string, gen uint64, records []*portfolio.Record) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch+c.gens[table] != gen {
		return false
	}
	c.lru.Add(table, cloneAll(records))
	return true
}

// InvalidateTables drops the listings of tables.
func (c *Cache) InvalidateTables(tables ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range tables {
		c.gens[t]++
		c.lru.Remove(t)
	}
}

// Purge empties the cache.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.lru.Purge()
}

// Len returns the number of cached tables.
func (c *Cache) Len() int {
	return c.lru.Len()
}

func cloneAll(records []*portfolio.Record) []*portfolio.Record {
	out := make([]*portfolio.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
