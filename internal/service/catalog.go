// Package service exposes the catalog façade consumed by gameplay and
// UI code: level fetch, navigation, progression, and the readiness
// gate. All mutable state (index, cache, source) is owned here and
// published by atomic snapshot swaps; external callers never mutate it
// directly.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/wordrealms/catalog/internal/cache"
	"github.com/wordrealms/catalog/internal/catalog"
	"github.com/wordrealms/catalog/internal/level"
	"github.com/wordrealms/catalog/internal/source"
)

// ErrNotReady reports a query issued before any load attempt. This is
// the only programming-misuse error the façade returns; data-quality
// problems always come back paired with a usable record.
var ErrNotReady = errors.New("catalog queried before any load attempt")

// Config configures the façade.
type Config struct {
	CacheCapacity   int // default cache.DefaultCapacity
	DisablePrefetch bool
	Rand            *rand.Rand // deterministic selection for tests
}

// Catalog is the top-level content catalog service.
type Catalog struct {
	resolver *source.Resolver
	assign   map[int]catalog.Assignment
	cfg      Config
	log      zerolog.Logger

	cache *cache.Cache
	group singleflight.Group

	mu            sync.RWMutex
	snap          *source.Snapshot
	prog          *catalog.Progression
	loadAttempted bool

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates the catalog service. assignments may be nil; progression
// then falls back to plain ID order within the default tier.
func New(resolver *source.Resolver, assignments map[int]catalog.Assignment, cfg Config, log zerolog.Logger) *Catalog {
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Catalog{
		resolver: resolver,
		assign:   assignments,
		cfg:      cfg,
		log:      log,
		cache:    cache.New(cfg.CacheCapacity, log),
		rng:      rng,
	}
}

// EnsureLoaded resolves and loads the catalog, preferring the remote
// source. It is safe to call repeatedly; a loaded remote catalog makes
// it a no-op. When both sources fail the error is returned for
// logging, but the façade keeps serving the bootstrap level.
func (c *Catalog) EnsureLoaded(ctx context.Context) error {
	snap, err := c.resolver.EnsureLoaded(ctx)

	c.mu.Lock()
	c.loadAttempted = true
	changed := snap != c.snap
	if changed {
		c.publishLocked(snap)
	}
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("catalog load: %w", err)
	}
	return nil
}

// ForceReloadRemote clears cache and index and re-runs the remote
// path unconditionally, falling back to local on failure. Fetches that
// overlap the reload serve from the old snapshot; the cache clear
// happens together with the snapshot swap, and chunk cache keys are
// generation-scoped, so nothing they load survives into the new view.
func (c *Catalog) ForceReloadRemote(ctx context.Context) error {
	snap, err := c.resolver.ForceReloadRemote(ctx)

	c.mu.Lock()
	c.loadAttempted = true
	c.publishLocked(snap)
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("catalog reload: %w", err)
	}
	return nil
}

// publishLocked swaps in a freshly built snapshot, drops every cached
// chunk of the previous one, seeds the cache with the new first chunk,
// and rebuilds the progression ordering. Caller holds c.mu.
func (c *Catalog) publishLocked(snap *source.Snapshot) {
	c.snap = snap
	c.cache.Clear()
	if snap == nil {
		c.prog = nil
		return
	}
	if snap.Seed != nil {
		c.cache.Put(chunkKey(snap, snap.Seed.Locator), snap.Seed.Records)
	}

	var ids []int
	for _, d := range snap.Index.Descriptors() {
		for id := d.FirstID; id <= d.LastID; id++ {
			ids = append(ids, id)
		}
	}
	c.prog = catalog.NewProgression(ids, c.assign)
}

func (c *Catalog) snapshot() (*source.Snapshot, *catalog.Progression, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap, c.prog, c.loadAttempted
}

// Bootstrap returns the guaranteed fallback level.
func (c *Catalog) Bootstrap() level.Record { return level.Bootstrap() }

// Fetch returns the level with the given id.
//
// Data-quality outcomes never panic and never come back empty-handed:
// an out-of-range id returns catalog.ErrNotFound, an empty catalog
// returns the bootstrap level together with catalog.ErrEmpty, and a
// level violating a content invariant is returned normally with its
// validation flags set. Querying before any load attempt is misuse and
// returns ErrNotReady.
func (c *Catalog) Fetch(ctx context.Context, id int) (level.Record, error) {
	snap, _, attempted := c.snapshot()
	if !attempted {
		return level.Record{}, ErrNotReady
	}
	if snap == nil {
		return level.Bootstrap(), catalog.ErrEmpty
	}

	desc, err := snap.Index.EntryContaining(id)
	if err != nil {
		if errors.Is(err, catalog.ErrEmpty) {
			return level.Bootstrap(), catalog.ErrEmpty
		}
		return level.Record{}, err
	}

	records, err := c.loadChunk(ctx, snap, desc.Locator)
	if err != nil {
		return level.Record{}, err
	}

	if !c.cfg.DisablePrefetch {
		c.prefetchNeighbors(snap, desc)
	}

	for i := range records {
		if records[i].ID == id {
			return records[i], nil
		}
	}
	// The id sits in a descriptor range gap: IDs are not guaranteed
	// dense inside a chunk.
	return level.Record{}, fmt.Errorf("id %d: %w", id, catalog.ErrNotFound)
}

// chunkKey scopes a cache key to one snapshot generation. Locators
// repeat across reloads, so an unscoped key cached before a reload
// would serve the old snapshot's records through the new index.
func chunkKey(snap *source.Snapshot, locator string) string {
	return fmt.Sprintf("g%d/%s", snap.Gen, locator)
}

// loadChunk returns the normalized records of one chunk, from cache or
// store. Concurrent loads of the same chunk are deduplicated.
func (c *Catalog) loadChunk(ctx context.Context, snap *source.Snapshot, locator string) ([]level.Record, error) {
	key := chunkKey(snap, locator)
	if records, ok := c.cache.Get(key); ok {
		return records, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if records, ok := c.cache.Get(key); ok {
			return records, nil
		}
		raw, err := snap.Store.Load(ctx, locator)
		if err != nil {
			return nil, fmt.Errorf("load chunk %s: %w", locator, err)
		}
		records, report := level.Normalize(raw)
		if len(report.Rejections) > 0 {
			c.log.Info().Str("chunk", locator).Int("rejections", len(report.Rejections)).Msg("chunk normalization rejected entries")
		}
		c.cache.Put(key, records)
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]level.Record), nil
}

// prefetchNeighbors warms the chunks adjacent to desc. Best effort:
// runs detached from the triggering fetch and never fails it.
func (c *Catalog) prefetchNeighbors(snap *source.Snapshot, desc catalog.ChunkDescriptor) {
	prev, next, hasPrev, hasNext := snap.Index.Neighbors(desc)
	var neighbors []catalog.ChunkDescriptor
	if hasPrev {
		prev.Locator = chunkKey(snap, prev.Locator)
		neighbors = append(neighbors, prev)
	}
	if hasNext {
		next.Locator = chunkKey(snap, next.Locator)
		neighbors = append(neighbors, next)
	}
	if len(neighbors) == 0 {
		return
	}

	current := desc
	current.Locator = chunkKey(snap, desc.Locator)
	c.cache.PreloadNeighbors(current, neighbors, func(key string) ([]level.Record, error) {
		// The cache keys carry the generation prefix; the store wants
		// the bare locator back.
		_, locator, _ := strings.Cut(key, "/")
		return c.loadChunk(context.Background(), snap, locator)
	})
}

// NextID returns the catalog ID following after (after=0 starts from
// the beginning). On an empty catalog the bootstrap ID is returned
// with catalog.ErrEmpty.
func (c *Catalog) NextID(after int) (int, error) {
	snap, _, attempted := c.snapshot()
	if !attempted {
		return 0, ErrNotReady
	}
	if snap == nil {
		return level.Bootstrap().ID, catalog.ErrEmpty
	}
	return snap.Index.NextExistingID(after)
}

// PreviousID returns the catalog ID preceding before.
func (c *Catalog) PreviousID(before int) (int, error) {
	snap, _, attempted := c.snapshot()
	if !attempted {
		return 0, ErrNotReady
	}
	if snap == nil {
		return level.Bootstrap().ID, catalog.ErrEmpty
	}
	return snap.Index.PreviousExistingID(before)
}

// RandomID returns a uniformly selected catalog ID.
func (c *Catalog) RandomID() (int, error) {
	snap, _, attempted := c.snapshot()
	if !attempted {
		return 0, ErrNotReady
	}
	if snap == nil {
		return level.Bootstrap().ID, catalog.ErrEmpty
	}

	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return snap.Index.RandomID(c.rng)
}

// NextInProgression returns the level following after in progression
// order (difficulty tier, then isogram preference, then id). after=0
// returns the opening level.
func (c *Catalog) NextInProgression(after int) (int, error) {
	_, prog, attempted := c.snapshot()
	if !attempted {
		return 0, ErrNotReady
	}
	if prog == nil {
		return level.Bootstrap().ID, catalog.ErrEmpty
	}
	if after == 0 {
		return prog.First()
	}
	return prog.NextAfter(after, c.assign)
}

// PreviousInProgression returns the level preceding before in
// progression order.
func (c *Catalog) PreviousInProgression(before int) (int, error) {
	_, prog, attempted := c.snapshot()
	if !attempted {
		return 0, ErrNotReady
	}
	if prog == nil {
		return level.Bootstrap().ID, catalog.ErrEmpty
	}
	return prog.PreviousBefore(before, c.assign)
}

// TotalCount returns the number of levels in the loaded catalog.
func (c *Catalog) TotalCount() int {
	snap, _, _ := c.snapshot()
	if snap == nil {
		return 0
	}
	return snap.Index.TotalCount()
}

// CurrentSource reports which backing store the catalog came from.
func (c *Catalog) CurrentSource() source.Source {
	return c.resolver.Source()
}

// ClearCache drops every cached chunk.
func (c *Catalog) ClearCache() { c.cache.Clear() }

// OnMemoryPressure drops every cached chunk except the one holding
// currentID, for use from OS memory-pressure callbacks.
func (c *Catalog) OnMemoryPressure(currentID int) {
	snap, _, _ := c.snapshot()
	if snap == nil {
		c.cache.Clear()
		return
	}
	desc, err := snap.Index.EntryContaining(currentID)
	if err != nil {
		c.cache.Clear()
		return
	}
	c.cache.KeepOnly(chunkKey(snap, desc.Locator))
}

// Stats is a point-in-time view of the service for health endpoints
// and diagnostics. The normalization counters come from the load that
// produced the current snapshot (the full result set for remote, the
// seed chunk for local).
type Stats struct {
	Source       string
	TotalLevels  int
	CachedChunks int
	Progress     float64

	Rejections    int
	DroppedLevels int
	RepairedWords int
}

// Stats reports current service state.
func (c *Catalog) Stats() Stats {
	s := Stats{
		Source:       c.resolver.Source().String(),
		TotalLevels:  c.TotalCount(),
		CachedChunks: c.cache.Len(),
		Progress:     c.resolver.Progress(),
	}
	snap, _, _ := c.snapshot()
	if snap != nil && snap.Report != nil {
		s.Rejections = len(snap.Report.Rejections)
		s.DroppedLevels = snap.Report.DroppedLevels
		s.RepairedWords = snap.Report.RepairedOneBased + snap.Report.RecomputedIndexes
	}
	return s
}

// IsReady waits up to timeout for the first load attempt to finish.
func (c *Catalog) IsReady(timeout time.Duration) bool {
	select {
	case <-c.resolver.Ready():
		return true
	case <-time.After(timeout):
		return false
	}
}

// Progress reports load progress in [0,1].
func (c *Catalog) Progress() float64 { return c.resolver.Progress() }
