// packtool normalizes a raw level export and packs it into a chunked
// bundle (manifest.json + compressed chunk files) that contentd and
// the on-device local store can both read.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fulldump/goconfig"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"

	"github.com/wordrealms/catalog/internal/catalog"
	"github.com/wordrealms/catalog/internal/chunk"
	"github.com/wordrealms/catalog/internal/level"
	"github.com/wordrealms/catalog/internal/logx"
)

type config struct {
	Input     string `usage:"raw level export (JSON array)"`
	Out       string `usage:"output bundle directory"`
	ChunkSize int    `usage:"levels per chunk"`
	Raw       bool   `usage:"write plain .json chunks instead of .json.zst"`
	Verify    bool   `usage:"reload the bundle and fetch every level after packing"`
}

func main() {
	c := config{
		Out:       "./data/levels",
		ChunkSize: 100,
	}
	goconfig.Read(&c)

	logger := logx.NewLogger()
	if c.Input == "" {
		logger.Fatal().Msg("missing -input")
	}
	if c.ChunkSize < 1 {
		logger.Fatal().Int("chunksize", c.ChunkSize).Msg("chunk size must be positive")
	}

	data, err := os.ReadFile(c.Input)
	if err != nil {
		logger.Fatal().Err(err).Msg("read input")
	}
	var raw []level.RawRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		logger.Fatal().Err(err).Msg("parse input")
	}
	logger.Info().Int("levels", len(raw)).Str("input", c.Input).Msg("export loaded")

	records, report := level.Normalize(raw)
	for _, rej := range report.Rejections {
		logger.Warn().Int("id", rej.LevelID).Str("word", rej.Word).Str("reason", rej.Reason).Msg("rejected")
	}
	logger.Info().
		Int("kept", len(records)).
		Int("dropped_levels", report.DroppedLevels).
		Int("repaired_one_based", report.RepairedOneBased).
		Int("recomputed_indexes", report.RecomputedIndexes).
		Msg("normalization done")
	if len(records) == 0 {
		logger.Fatal().Msg("no valid levels in export")
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	for i := 1; i < len(records); i++ {
		if records[i].ID == records[i-1].ID {
			logger.Fatal().Int("id", records[i].ID).Msg("duplicate level id in export")
		}
	}

	if err := os.MkdirAll(c.Out, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("create output dir")
	}

	var encoder *zstd.Encoder
	if !c.Raw {
		encoder, err = zstd.NewWriter(nil)
		if err != nil {
			logger.Fatal().Err(err).Msg("zstd encoder")
		}
		defer encoder.Close()
	}

	manifest := &chunk.Manifest{
		Version:     time.Now().UTC().Format("20060102T150405"),
		TotalLevels: len(records),
	}

	g := new(errgroup.Group)
	for start := 0; start < len(records); start += c.ChunkSize {
		end := start + c.ChunkSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		name := fmt.Sprintf("chunk-%04d.json", len(manifest.Chunks))
		if !c.Raw {
			name += ".zst"
		}
		manifest.Chunks = append(manifest.Chunks, chunk.ManifestChunk{
			File:    name,
			StartID: batch[0].ID,
			EndID:   batch[len(batch)-1].ID,
			Count:   len(batch),
		})

		docs := make([]level.RawRecord, len(batch))
		for i := range batch {
			docs[i] = batch[i].Raw()
		}
		path := filepath.Join(c.Out, name)
		g.Go(func() error {
			return chunk.WriteChunkFile(path, docs, encoder)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("write chunks")
	}
	if err := chunk.WriteManifest(c.Out, manifest); err != nil {
		logger.Fatal().Err(err).Msg("write manifest")
	}
	logger.Info().
		Int("chunks", len(manifest.Chunks)).
		Str("version", manifest.Version).
		Str("out", c.Out).
		Msg("bundle written")

	if c.Verify {
		if err := verify(c.Out, len(records)); err != nil {
			logger.Fatal().Err(err).Msg("verify")
		}
		logger.Info().Msg("verify ok")
	}
}

// verify reloads the bundle through the same reader stack the game
// uses and fetches every level once.
func verify(dir string, want int) error {
	manifest, err := chunk.ReadManifest(dir)
	if err != nil {
		return err
	}
	store, err := chunk.NewLocalStore(dir)
	if err != nil {
		return err
	}
	index, err := catalog.NewIndex(manifest.Descriptors())
	if err != nil {
		return err
	}

	seen := 0
	for _, d := range index.Descriptors() {
		raw, err := store.Load(context.Background(), d.Locator)
		if err != nil {
			return err
		}
		records, report := level.Normalize(raw)
		if report.DroppedLevels > 0 || report.RepairedOneBased > 0 || report.RecomputedIndexes > 0 {
			return fmt.Errorf("chunk %s: packed bundle is not canonical", d.Locator)
		}
		for _, rec := range records {
			if _, err := index.EntryContaining(rec.ID); err != nil {
				return fmt.Errorf("id %d: %w", rec.ID, err)
			}
		}
		seen += len(records)
	}
	if seen != want {
		return fmt.Errorf("bundle holds %d levels, want %d", seen, want)
	}
	return nil
}
