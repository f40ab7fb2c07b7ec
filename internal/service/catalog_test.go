package service_test

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/wordrealms/catalog/internal/catalog"
	"github.com/wordrealms/catalog/internal/chunk"
	"github.com/wordrealms/catalog/internal/level"
	"github.com/wordrealms/catalog/internal/service"
	"github.com/wordrealms/catalog/internal/source"
)

type fetcherFunc func(ctx context.Context, token string) ([]level.RawRecord, error)

func (f fetcherFunc) FetchAll(ctx context.Context, token string) ([]level.RawRecord, error) {
	return f(ctx, token)
}

func failingFetcher() fetcherFunc {
	return func(context.Context, string) ([]level.RawRecord, error) {
		return nil, errors.New("network down")
	}
}

// writeBundle lays down a two-chunk local bundle: a.json holds ids 1-2,
// b.json holds ids 3-4.
func writeBundle(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	chunkA := []level.RawRecord{
		{ID: 1, BaseLetters: "GARNET", Solutions: map[string][]int{"GRANT": {0, 2, 1, 3, 5}}},
		{ID: 2, BaseLetters: "RETAIN", Solutions: map[string][]int{"TRAIN": {2, 0, 3, 4, 5}}},
	}
	chunkB := []level.RawRecord{
		{ID: 3, BaseLetters: "ORANGE", Solutions: map[string][]int{"GROAN": {4, 1, 0, 2, 3}}},
		{ID: 4, BaseLetters: "SILENT", Solutions: map[string][]int{"LISTEN": {2, 1, 0, 5, 3, 4}}},
	}
	if err := chunk.WriteChunkFile(filepath.Join(dir, "a.json"), chunkA, nil); err != nil {
		t.Fatal(err)
	}
	if err := chunk.WriteChunkFile(filepath.Join(dir, "b.json"), chunkB, nil); err != nil {
		t.Fatal(err)
	}
	m := &chunk.Manifest{
		Version:     "test",
		TotalLevels: 4,
		Chunks: []chunk.ManifestChunk{
			{File: "a.json", StartID: 1, EndID: 2, Count: 2},
			{File: "b.json", StartID: 3, EndID: 4, Count: 2},
		},
	}
	if err := chunk.WriteManifest(dir, m); err != nil {
		t.Fatal(err)
	}
	return dir
}

// localCatalog builds a catalog backed only by the local bundle.
func localCatalog(t *testing.T, cfg service.Config) (*service.Catalog, string) {
	t.Helper()
	dir := writeBundle(t)
	r := source.NewResolver(source.Config{BundleDir: dir},
		source.StaticGate(""), failingFetcher(), zerolog.Nop())
	c := service.New(r, nil, cfg, zerolog.Nop())
	if err := c.EnsureLoaded(context.Background()); err != nil {
		t.Fatal(err)
	}
	return c, dir
}

func TestFetchBeforeLoadIsMisuse(t *testing.T) {
	r := source.NewResolver(source.Config{BundleDir: t.TempDir()},
		source.StaticGate(""), failingFetcher(), zerolog.Nop())
	c := service.New(r, nil, service.Config{}, zerolog.Nop())

	if _, err := c.Fetch(context.Background(), 1); !errors.Is(err, service.ErrNotReady) {
		t.Errorf("got %v, want ErrNotReady", err)
	}
	if _, err := c.NextID(0); !errors.Is(err, service.ErrNotReady) {
		t.Errorf("NextID: got %v, want ErrNotReady", err)
	}
}

func TestEmptyCatalogServesBootstrap(t *testing.T) {
	r := source.NewResolver(source.Config{BundleDir: filepath.Join(t.TempDir(), "nope")},
		source.StaticGate(""), failingFetcher(), zerolog.Nop())
	c := service.New(r, nil, service.Config{}, zerolog.Nop())

	if err := c.EnsureLoaded(context.Background()); err == nil {
		t.Fatal("want error when both sources fail")
	}
	if !c.IsReady(time.Second) {
		t.Fatal("catalog should report ready even after total failure")
	}

	rec, err := c.Fetch(context.Background(), 42)
	if !errors.Is(err, catalog.ErrEmpty) {
		t.Fatalf("got %v, want ErrEmpty", err)
	}
	if rec.ID != level.Bootstrap().ID || rec.BaseLetters != "GARNET" {
		t.Errorf("bootstrap record: %+v", rec)
	}

	if id, err := c.NextID(0); !errors.Is(err, catalog.ErrEmpty) || id != rec.ID {
		t.Errorf("NextID: got %d, %v", id, err)
	}
	if c.TotalCount() != 0 {
		t.Errorf("total: got %d", c.TotalCount())
	}
	if c.CurrentSource() != source.SourceNone {
		t.Errorf("source: got %v", c.CurrentSource())
	}
}

func TestFetchLoadsOnlyContainingChunk(t *testing.T) {
	c, dir := localCatalog(t, service.Config{DisablePrefetch: true})
	c.ClearCache() // drop the seed chunk so loads are observable

	rec, err := c.Fetch(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if rec.BaseLetters != "ORANGE" {
		t.Errorf("got %+v", rec)
	}

	// Chunk a was never touched: removing its file must not affect the
	// cached chunk b, and must fail a fresh fetch into a.
	if err := os.Remove(filepath.Join(dir, "a.json")); err != nil {
		t.Fatal(err)
	}
	if rec, err = c.Fetch(context.Background(), 4); err != nil || rec.BaseLetters != "SILENT" {
		t.Errorf("cached chunk fetch: %v, %+v", err, rec)
	}
	if _, err = c.Fetch(context.Background(), 1); err == nil {
		t.Error("fetch into removed chunk should fail, proving it was not preloaded")
	}
}

func TestFetchUnknownID(t *testing.T) {
	c, _ := localCatalog(t, service.Config{DisablePrefetch: true})

	if _, err := c.Fetch(context.Background(), 99); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestPrefetchWarmsNeighbors(t *testing.T) {
	c, dir := localCatalog(t, service.Config{})

	if _, err := c.Fetch(context.Background(), 2); err != nil {
		t.Fatal(err)
	}

	// The neighbor warm runs detached; wait for it to land before
	// removing the chunk file.
	deadline := time.Now().Add(2 * time.Second)
	for c.Stats().CachedChunks < 2 {
		if time.Now().After(deadline) {
			t.Fatal("neighbor chunk was never warmed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := os.Remove(filepath.Join(dir, "b.json")); err != nil {
		t.Fatal(err)
	}
	rec, err := c.Fetch(context.Background(), 3)
	if err != nil || rec.BaseLetters != "ORANGE" {
		t.Errorf("warmed chunk fetch: %v, %+v", err, rec)
	}
}

func TestNavigation(t *testing.T) {
	c, _ := localCatalog(t, service.Config{
		DisablePrefetch: true,
		Rand:            rand.New(rand.NewSource(1)),
	})

	if id, err := c.NextID(0); err != nil || id != 1 {
		t.Errorf("NextID(0): %d, %v", id, err)
	}
	if id, err := c.NextID(2); err != nil || id != 3 {
		t.Errorf("NextID(2): %d, %v", id, err)
	}
	if _, err := c.NextID(4); err == nil {
		t.Error("NextID past the end should fail")
	}
	if id, err := c.PreviousID(3); err != nil || id != 2 {
		t.Errorf("PreviousID(3): %d, %v", id, err)
	}
	if c.TotalCount() != 4 {
		t.Errorf("total: %d", c.TotalCount())
	}
	if c.CurrentSource() != source.SourceLocal {
		t.Errorf("source: %v", c.CurrentSource())
	}

	for i := 0; i < 50; i++ {
		id, err := c.RandomID()
		if err != nil || id < 1 || id > 4 {
			t.Fatalf("RandomID: %d, %v", id, err)
		}
	}
}

func TestProgressionOrder(t *testing.T) {
	dir := writeBundle(t)
	assignments := map[int]catalog.Assignment{
		1: {DifficultyRank: 2, HasIsogram: false},
		2: {DifficultyRank: 1, HasIsogram: true},
		3: {DifficultyRank: 1, HasIsogram: false},
		// id 4 unassigned: default rank sorts it last.
	}
	r := source.NewResolver(source.Config{BundleDir: dir},
		source.StaticGate(""), failingFetcher(), zerolog.Nop())
	c := service.New(r, assignments, service.Config{DisablePrefetch: true}, zerolog.Nop())
	if err := c.EnsureLoaded(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []int{2, 3, 1, 4}
	id := 0
	for _, w := range want {
		next, err := c.NextInProgression(id)
		if err != nil {
			t.Fatalf("NextInProgression(%d): %v", id, err)
		}
		if next != w {
			t.Fatalf("NextInProgression(%d): got %d, want %d", id, next, w)
		}
		id = next
	}
	if _, err := c.NextInProgression(id); err == nil {
		t.Error("progression past the end should fail")
	}

	if prev, err := c.PreviousInProgression(1); err != nil || prev != 3 {
		t.Errorf("PreviousInProgression(1): %d, %v", prev, err)
	}
}

func TestForceReloadRemote(t *testing.T) {
	dir := writeBundle(t)
	calls := 0
	fetcher := fetcherFunc(func(context.Context, string) ([]level.RawRecord, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("network down")
		}
		return []level.RawRecord{
			{ID: 10, BaseLetters: "GARNET", Solutions: map[string][]int{"GRANT": {0, 2, 1, 3, 5}}},
			{ID: 11, BaseLetters: "RETAIN", Solutions: map[string][]int{"TRAIN": {2, 0, 3, 4, 5}}},
		}, nil
	})
	r := source.NewResolver(source.Config{BundleDir: dir},
		source.StaticGate(""), fetcher, zerolog.Nop())
	c := service.New(r, nil, service.Config{DisablePrefetch: true}, zerolog.Nop())

	if err := c.EnsureLoaded(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.CurrentSource() != source.SourceLocal {
		t.Fatalf("source: %v", c.CurrentSource())
	}

	if err := c.ForceReloadRemote(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.CurrentSource() != source.SourceRemote {
		t.Errorf("source after reload: %v", c.CurrentSource())
	}
	if c.TotalCount() != 2 {
		t.Errorf("total after reload: %d", c.TotalCount())
	}
	rec, err := c.Fetch(context.Background(), 11)
	if err != nil || rec.BaseLetters != "RETAIN" {
		t.Errorf("fetch after reload: %v, %+v", err, rec)
	}
	if _, err := c.Fetch(context.Background(), 1); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("old id after reload: %v", err)
	}
}

// remoteSet builds n levels sharing one wheel and one solution.
func remoteSet(base, word string, idx []int, n int) []level.RawRecord {
	levels := make([]level.RawRecord, n)
	for i := range levels {
		levels[i] = level.RawRecord{
			ID:          i + 1,
			BaseLetters: base,
			Solutions:   map[string][]int{word: idx},
		}
	}
	return levels
}

func TestForceReloadDropsPreReloadChunks(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	calls := 0
	fetcher := fetcherFunc(func(context.Context, string) ([]level.RawRecord, error) {
		calls++
		if calls == 1 {
			return remoteSet("GARNET", "GRANT", []int{0, 2, 1, 3, 5}, 150), nil
		}
		close(started)
		<-release
		return remoteSet("RETAIN", "TRAIN", []int{2, 0, 3, 4, 5}, 150), nil
	})

	r := source.NewResolver(source.Config{BundleDir: t.TempDir()},
		source.StaticGate(""), fetcher, zerolog.Nop())
	c := service.New(r, nil, service.Config{DisablePrefetch: true}, zerolog.Nop())
	if err := c.EnsureLoaded(context.Background()); err != nil {
		t.Fatal(err)
	}

	reloadDone := make(chan error, 1)
	go func() { reloadDone <- c.ForceReloadRemote(context.Background()) }()
	<-started

	// A fetch overlapping the reload serves the old snapshot and
	// re-populates the cache from it.
	rec, err := c.Fetch(context.Background(), 150)
	if err != nil || rec.BaseLetters != "GARNET" {
		t.Fatalf("fetch during reload: %v, %+v", err, rec)
	}

	close(release)
	if err := <-reloadDone; err != nil {
		t.Fatal(err)
	}

	// The reloaded catalog must serve reloaded content, not whatever
	// the overlapping fetch cached under a reused chunk locator.
	rec, err = c.Fetch(context.Background(), 150)
	if err != nil {
		t.Fatal(err)
	}
	if rec.BaseLetters != "RETAIN" {
		t.Errorf("after reload: got baseLetters=%q, want RETAIN", rec.BaseLetters)
	}
}

func TestStatsSurfacesNormalizationReport(t *testing.T) {
	fetcher := fetcherFunc(func(context.Context, string) ([]level.RawRecord, error) {
		return []level.RawRecord{
			{ID: 1, BaseLetters: "GARNET", Solutions: map[string][]int{
				"GRANT": {0, 2, 1, 3, 5},
				"ZEBRA": nil, // not spellable from the wheel
			}},
			{ID: 2, BaseLetters: "RETAIN", Solutions: map[string][]int{
				"TRAIN": {3, 1, 4, 5, 6}, // 1-based, gets shifted
			}},
		}, nil
	})

	r := source.NewResolver(source.Config{BundleDir: t.TempDir()},
		source.StaticGate(""), fetcher, zerolog.Nop())
	c := service.New(r, nil, service.Config{DisablePrefetch: true}, zerolog.Nop())
	if err := c.EnsureLoaded(context.Background()); err != nil {
		t.Fatal(err)
	}

	st := c.Stats()
	if st.Rejections != 1 {
		t.Errorf("rejections: got %d, want 1", st.Rejections)
	}
	if st.RepairedWords != 1 {
		t.Errorf("repaired words: got %d, want 1", st.RepairedWords)
	}
	if st.DroppedLevels != 0 {
		t.Errorf("dropped levels: got %d, want 0", st.DroppedLevels)
	}
	if st.TotalLevels != 2 {
		t.Errorf("total: got %d, want 2", st.TotalLevels)
	}
}

func TestOnMemoryPressure(t *testing.T) {
	c, dir := localCatalog(t, service.Config{DisablePrefetch: true})

	if _, err := c.Fetch(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Fetch(context.Background(), 3); err != nil {
		t.Fatal(err)
	}

	c.OnMemoryPressure(3)

	// Only chunk b survives, so it must keep serving after the files
	// disappear while chunk a needs a reload.
	if err := os.Remove(filepath.Join(dir, "a.json")); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, "b.json")); err != nil {
		t.Fatal(err)
	}
	if rec, err := c.Fetch(context.Background(), 4); err != nil || rec.BaseLetters != "SILENT" {
		t.Errorf("kept chunk fetch: %v, %+v", err, rec)
	}
	if _, err := c.Fetch(context.Background(), 1); err == nil {
		t.Error("evicted chunk should need a reload")
	}
}
