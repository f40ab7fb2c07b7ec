// Package source decides which backing store the catalog is served
// from. The remote store is authoritative and preferred; the bundled
// local archive is the fallback that keeps first-launch gameplay
// working when the network or auth layer is unavailable.
package source

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/wordrealms/catalog/internal/catalog"
	"github.com/wordrealms/catalog/internal/chunk"
	"github.com/wordrealms/catalog/internal/level"
)

// Source identifies the backing store of the currently loaded catalog.
type Source int

const (
	SourceNone Source = iota
	SourceLocal
	SourceRemote
)

func (s Source) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourceRemote:
		return "remote"
	default:
		return "none"
	}
}

// State is the resolver lifecycle. Queries are only meaningful in
// StateReady; the service façade enforces that.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
)

// DefaultAuthTimeout bounds the wait for the authentication layer
// before giving up on the remote source for this load.
const DefaultAuthTimeout = 1500 * time.Millisecond

// DefaultRemoteChunkSize is how many levels go into one synthesized
// chunk when the remote result set is re-paginated.
const DefaultRemoteChunkSize = 100

// AuthGate exposes the authentication layer's readiness signal. The
// token is opaque; the resolver only forwards it to the remote store.
type AuthGate interface {
	WaitReady(ctx context.Context) (token string, err error)
}

// RemoteFetcher retrieves the full remote level collection.
type RemoteFetcher interface {
	FetchAll(ctx context.Context, token string) ([]level.RawRecord, error)
}

// Config configures a Resolver.
type Config struct {
	BundleDir       string
	AuthTimeout     time.Duration // default DefaultAuthTimeout
	RemoteChunkSize int           // default DefaultRemoteChunkSize
}

// SeedChunk is the eagerly loaded first chunk of a fresh snapshot, so
// the first gameplay fetch never pays chunk-load latency.
type SeedChunk struct {
	Locator string
	Records []level.Record
}

// Snapshot is one fully built catalog state: which source it came
// from, the chunk index, and the store that serves its locators. It is
// immutable; the façade publishes it with a single atomic swap.
//
// Gen increases with every successful load. Locators repeat across
// loads (manifest file names, the synthesized remote-%04d names), so
// downstream caches must scope their keys by Gen or a chunk cached
// before a reload would satisfy lookups against the reloaded index.
type Snapshot struct {
	Gen    uint64
	Source Source
	Index  *catalog.Index
	Store  chunk.Store
	Seed   *SeedChunk
	Report *level.Report
}

// Resolver owns source selection. All loads serialize on its mutex;
// readers get the last published snapshot.
type Resolver struct {
	cfg     Config
	gate    AuthGate
	fetcher RemoteFetcher
	log     zerolog.Logger

	mu    sync.Mutex
	state State
	snap  *Snapshot
	gen   uint64

	readyOnce sync.Once
	ready     chan struct{}
	progress  atomic.Uint64 // float64 bits, 0..1 load progress
}

// attempt is one entry of the ordered fallback chain. Keeping the
// chain as data makes the fallback order testable instead of implicit
// control flow.
type attempt struct {
	source Source
	run    func(ctx context.Context) (*Snapshot, error)
}

// NewResolver creates a resolver. gate and fetcher may be nil, which
// disables the remote path entirely.
func NewResolver(cfg Config, gate AuthGate, fetcher RemoteFetcher, log zerolog.Logger) *Resolver {
	if cfg.AuthTimeout == 0 {
		cfg.AuthTimeout = DefaultAuthTimeout
	}
	if cfg.RemoteChunkSize == 0 {
		cfg.RemoteChunkSize = DefaultRemoteChunkSize
	}
	return &Resolver{
		cfg:     cfg,
		gate:    gate,
		fetcher: fetcher,
		log:     log,
		ready:   make(chan struct{}),
	}
}

// Snapshot returns the last published snapshot, nil before the first
// load completes.
func (r *Resolver) Snapshot() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap
}

// Source reports where the current catalog came from.
func (r *Resolver) Source() Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snap == nil {
		return SourceNone
	}
	return r.snap.Source
}

// State reports the resolver lifecycle state.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Ready returns a channel closed once the first load attempt has
// finished, successfully or not. Gameplay never blocks on it forever:
// failure still closes it and the façade serves the bootstrap level.
func (r *Resolver) Ready() <-chan struct{} { return r.ready }

// Progress reports load progress in [0,1].
func (r *Resolver) Progress() float64 {
	return math.Float64frombits(r.progress.Load())
}

func (r *Resolver) setProgress(p float64) {
	r.progress.Store(math.Float64bits(p))
}

func (r *Resolver) markReady() {
	r.readyOnce.Do(func() { close(r.ready) })
}

// EnsureLoaded loads the catalog preferring the remote source. When a
// remote catalog is already loaded and non-empty this is a no-op. On
// any remote failure it falls through to the local bundle.
func (r *Resolver) EnsureLoaded(ctx context.Context) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.snap != nil && r.snap.Source == SourceRemote && r.snap.Index.TotalCount() > 0 {
		r.markReady()
		return r.snap, nil
	}
	return r.loadLocked(ctx)
}

// ForceReloadRemote discards the current snapshot and re-runs the
// remote path unconditionally, falling back to local rather than
// leaving the catalog empty.
func (r *Resolver) ForceReloadRemote(ctx context.Context) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.snap = nil
	r.state = StateUninitialized
	return r.loadLocked(ctx)
}

// loadLocked runs the fallback chain. Caller holds r.mu.
func (r *Resolver) loadLocked(ctx context.Context) (*Snapshot, error) {
	r.state = StateLoading
	r.setProgress(0)

	var chain []attempt
	if r.fetcher != nil {
		chain = append(chain, attempt{source: SourceRemote, run: r.loadRemote})
	}
	chain = append(chain, attempt{source: SourceLocal, run: r.loadLocal})

	var errs []error
	for _, a := range chain {
		snap, err := a.run(ctx)
		if err != nil {
			r.log.Warn().Err(err).Stringer("source", a.source).Msg("catalog source failed")
			errs = append(errs, fmt.Errorf("%s: %w", a.source, err))
			continue
		}

		r.gen++
		snap.Gen = r.gen
		r.snap = snap
		r.state = StateReady
		r.setProgress(1)
		r.markReady()
		r.log.Info().
			Stringer("source", snap.Source).
			Int("chunks", snap.Index.Len()).
			Int("levels", snap.Index.TotalCount()).
			Msg("catalog loaded")
		return snap, nil
	}

	// Both sources failed. Mark ready anyway: the façade guarantees
	// the bootstrap level, so gameplay must not keep waiting.
	r.state = StateUninitialized
	r.markReady()
	return nil, errors.Join(errs...)
}

func (r *Resolver) loadRemote(ctx context.Context) (*Snapshot, error) {
	token := ""
	if r.gate != nil {
		authCtx, cancel := context.WithTimeout(ctx, r.cfg.AuthTimeout)
		defer cancel()

		var err error
		token, err = r.gate.WaitReady(authCtx)
		if err != nil {
			return nil, fmt.Errorf("auth gate: %w", err)
		}
	}
	r.setProgress(0.2)

	raw, err := r.fetcher.FetchAll(ctx, token)
	if err != nil {
		return nil, err
	}
	r.setProgress(0.6)

	records, report := level.Normalize(raw)
	if len(records) == 0 {
		return nil, fmt.Errorf("remote collection empty after normalization (%d rejections)", len(report.Rejections))
	}
	r.logReport(SourceRemote, report)

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	snap, err := r.buildRemoteSnapshot(records)
	if err != nil {
		return nil, err
	}
	snap.Report = report
	return snap, nil
}

// buildRemoteSnapshot re-paginates the normalized result set into
// fixed-size chunks served by an in-memory store, so cache and fetch
// logic are identical for both sources.
func (r *Resolver) buildRemoteSnapshot(records []level.Record) (*Snapshot, error) {
	size := r.cfg.RemoteChunkSize
	batches := map[string][]level.RawRecord{}
	var descs []catalog.ChunkDescriptor
	var seed *SeedChunk

	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		locator := fmt.Sprintf("remote-%04d", len(descs))
		raw := make([]level.RawRecord, len(batch))
		for i := range batch {
			raw[i] = batch[i].Raw()
		}
		batches[locator] = raw
		descs = append(descs, catalog.ChunkDescriptor{
			Locator: locator,
			FirstID: batch[0].ID,
			LastID:  batch[len(batch)-1].ID,
			Count:   len(batch),
		})

		if seed == nil {
			seedRecords := make([]level.Record, len(batch))
			copy(seedRecords, batch)
			seed = &SeedChunk{Locator: locator, Records: seedRecords}
		}
	}

	index, err := catalog.NewIndex(descs)
	if err != nil {
		return nil, fmt.Errorf("remote index: %w", err)
	}

	return &Snapshot{
		Source: SourceRemote,
		Index:  index,
		Store:  chunk.NewMemoryStore(batches),
		Seed:   seed,
	}, nil
}

func (r *Resolver) loadLocal(ctx context.Context) (*Snapshot, error) {
	manifest, err := chunk.ReadManifest(r.cfg.BundleDir)
	if err != nil {
		return nil, err
	}
	r.setProgress(0.3)

	store, err := chunk.NewLocalStore(r.cfg.BundleDir)
	if err != nil {
		return nil, err
	}

	index, err := catalog.NewIndex(manifest.Descriptors())
	if err != nil {
		return nil, fmt.Errorf("bundle index: %w", err)
	}
	r.setProgress(0.7)

	snap := &Snapshot{Source: SourceLocal, Index: index, Store: store}

	// Warm the first chunk so the opening fetch is synchronous. A seed
	// failure is not fatal; the chunk will be retried on demand.
	if descs := index.Descriptors(); len(descs) > 0 {
		first := descs[0]
		raw, err := store.Load(ctx, first.Locator)
		if err != nil {
			r.log.Warn().Err(err).Str("chunk", first.Locator).Msg("seed chunk load failed")
		} else {
			records, report := level.Normalize(raw)
			r.logReport(SourceLocal, report)
			snap.Seed = &SeedChunk{Locator: first.Locator, Records: records}
			snap.Report = report
		}
	}

	return snap, nil
}

func (r *Resolver) logReport(src Source, report *level.Report) {
	if len(report.Rejections) == 0 && report.RepairedOneBased == 0 && report.RecomputedIndexes == 0 {
		return
	}
	r.log.Info().
		Stringer("source", src).
		Int("rejections", len(report.Rejections)).
		Int("dropped_levels", report.DroppedLevels).
		Int("repaired_one_based", report.RepairedOneBased).
		Int("recomputed_indexes", report.RecomputedIndexes).
		Msg("normalization report")
}
