// Package httpapi serves a level bundle over the paginated collection
// protocol the game client fetches from. One process serves one
// bundle; the whole catalog is held in memory sorted by id.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/wordrealms/catalog/internal/chunk"
	"github.com/wordrealms/catalog/internal/level"
)

const (
	defaultPageSize = 500
	maxPageSize     = 1000
)

// Handler serves one level collection from a loaded bundle.
type Handler struct {
	collection string
	version    string
	levels     []level.RawRecord // sorted by id
	log        zerolog.Logger
}

// NewHandler loads every chunk named by the bundle's manifest.
func NewHandler(bundleDir, collection string, log zerolog.Logger) (*Handler, error) {
	if collection == "" {
		collection = "levels"
	}

	manifest, err := chunk.ReadManifest(bundleDir)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	store, err := chunk.NewLocalStore(bundleDir)
	if err != nil {
		return nil, err
	}

	var levels []level.RawRecord
	for _, c := range manifest.Chunks {
		records, err := store.Load(context.Background(), c.File)
		if err != nil {
			return nil, fmt.Errorf("load chunk %s: %w", c.File, err)
		}
		levels = append(levels, records...)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].ID < levels[j].ID })
	log.Info().
		Int("levels", len(levels)).
		Int("chunks", len(manifest.Chunks)).
		Str("version", manifest.Version).
		Msg("bundle loaded")

	return &Handler{
		collection: collection,
		version:    manifest.Version,
		levels:     levels,
		log:        log,
	}, nil
}

// NewRouter wires the handler behind the standard middleware chain.
func NewRouter(log zerolog.Logger, h *Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.health)
	mux.HandleFunc("/readyz", h.health)
	mux.HandleFunc("/v1/collections/", h.collections)
	mux.HandleFunc("/v1/stats", h.stats)

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)

	return CORS(RequestID(AccessLog(log, mux)))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"collection":   h.collection,
		"version":      h.version,
		"total_levels": len(h.levels),
	})
}

// collections handles /v1/collections/{name}/levels with after/limit
// keyset pagination over level ids.
func (h *Handler) collections(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/collections/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "levels" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if parts[0] != h.collection {
		writeError(w, http.StatusNotFound, "unknown collection "+parts[0])
		return
	}

	after := 0
	if s := r.URL.Query().Get("after"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "bad after parameter")
			return
		}
		after = n
	}
	limit := defaultPageSize
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad limit parameter")
			return
		}
		if n > maxPageSize {
			n = maxPageSize
		}
		limit = n
	}

	start := sort.Search(len(h.levels), func(i int) bool { return h.levels[i].ID > after })
	end := start + limit
	if end > len(h.levels) {
		end = len(h.levels)
	}
	page := h.levels[start:end]

	resp := struct {
		Levels    []level.RawRecord `json:"levels"`
		NextAfter *int              `json:"nextAfter,omitempty"`
	}{Levels: page}
	if page == nil {
		resp.Levels = []level.RawRecord{}
	}
	if end < len(h.levels) && len(page) > 0 {
		last := page[len(page)-1].ID
		resp.NextAfter = &last
	}
	writeJSON(w, resp)
}
