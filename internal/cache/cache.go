// Package cache holds normalized level chunks in a bounded LRU keyed
// by chunk locator.
package cache

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/wordrealms/catalog/internal/catalog"
	"github.com/wordrealms/catalog/internal/level"
)

// DefaultCapacity is the default number of chunks held in memory.
const DefaultCapacity = 5

type entry struct {
	records    []level.Record
	lastAccess uint64
}

// Cache is a bounded least-recently-used chunk cache. All methods are
// safe for concurrent use. Eviction picks the least-recently-touched
// unpinned entry; a freshly inserted entry is never its own victim.
type Cache struct {
	mu       sync.Mutex
	capacity int
	clock    uint64
	entries  map[string]*entry
	pins     map[string]int
	log      zerolog.Logger
}

// New creates a cache. capacity <= 0 selects DefaultCapacity.
func New(capacity int, log zerolog.Logger) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*entry, capacity),
		pins:     map[string]int{},
		log:      log,
	}
}

// Get returns the cached records for locator and refreshes its
// recency.
func (c *Cache) Get(locator string) ([]level.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[locator]
	if !ok {
		return nil, false
	}
	c.clock++
	e.lastAccess = c.clock
	return e.records, true
}

// Put inserts records for locator, evicting the least-recently-touched
// unpinned entry when the cache is full.
func (c *Cache) Put(locator string, records []level.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clock++
	if e, ok := c.entries[locator]; ok {
		e.records = records
		e.lastAccess = c.clock
		return
	}

	for len(c.entries) >= c.capacity {
		if !c.evictOldest(locator) {
			break
		}
	}
	c.entries[locator] = &entry{records: records, lastAccess: c.clock}
}

// evictOldest removes the least-recently-touched entry, skipping
// pinned entries and the locator being inserted. Returns false when
// nothing is evictable.
func (c *Cache) evictOldest(inserting string) bool {
	victim := ""
	var oldest uint64
	for locator, e := range c.entries {
		if locator == inserting || c.pins[locator] > 0 {
			continue
		}
		if victim == "" || e.lastAccess < oldest {
			victim = locator
			oldest = e.lastAccess
		}
	}
	if victim == "" {
		return false
	}
	delete(c.entries, victim)
	c.log.Debug().Str("chunk", victim).Msg("evicted chunk")
	return true
}

// Len returns the number of cached chunks.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Contains reports whether locator is cached, without touching
// recency.
func (c *Cache) Contains(locator string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[locator]
	return ok
}

// KeepOnly drops every cached chunk except the given locator. Used by
// memory-pressure callbacks.
func (c *Cache) KeepOnly(locator string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if key != locator {
			delete(c.entries, key)
		}
	}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry, c.capacity)
}

func (c *Cache) pin(locator string) {
	c.mu.Lock()
	c.pins[locator]++
	c.mu.Unlock()
}

func (c *Cache) unpin(locator string) {
	c.mu.Lock()
	if c.pins[locator] > 1 {
		c.pins[locator]--
	} else {
		delete(c.pins, locator)
	}
	c.mu.Unlock()
}

// LoadFunc loads and normalizes the chunk behind a locator.
type LoadFunc func(locator string) ([]level.Record, error)

// PreloadNeighbors warms the chunks on either side of current in index
// order, without blocking the caller. The current chunk is pinned for
// the duration of the warm so the neighbors cannot evict it. Preload
// failures are logged and swallowed; they must never surface to the
// fetch that triggered them. The returned channel closes when the warm
// completes, which only tests wait on.
func (c *Cache) PreloadNeighbors(current catalog.ChunkDescriptor, neighbors []catalog.ChunkDescriptor, load LoadFunc) <-chan struct{} {
	done := make(chan struct{})
	c.pin(current.Locator)

	go func() {
		defer close(done)
		defer c.unpin(current.Locator)

		for _, d := range neighbors {
			if c.Contains(d.Locator) {
				continue
			}
			records, err := load(d.Locator)
			if err != nil {
				c.log.Debug().Err(err).Str("chunk", d.Locator).Msg("neighbor preload failed")
				continue
			}
			c.Put(d.Locator, records)
		}
	}()

	return done
}
