// Package remote fetches level documents from the authoritative
// content store over HTTP.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wordrealms/catalog/internal/level"
)

// ErrUnavailable means the remote store could not produce a usable
// result set. The resolver treats it as a signal to fall back to the
// local bundle.
var ErrUnavailable = errors.New("remote source unavailable")

// DefaultCollection is the level collection queried by default.
const DefaultCollection = "levels"

// maxMalformedExamples bounds how many skipped-document errors are
// logged verbatim per fetch.
const maxMalformedExamples = 3

// Config configures a Client.
type Config struct {
	BaseURL    string
	Collection string        // default DefaultCollection
	PageSize   int           // default 500
	Timeout    time.Duration // per-request, default 10s
}

// Client pages through a remote level collection ordered by id.
type Client struct {
	cfg  Config
	http *http.Client
	log  zerolog.Logger
}

// NewClient creates a remote content client.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = 500
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
}

// page is the wire shape of one collection page. Documents are decoded
// individually so one malformed document cannot poison the batch.
type page struct {
	Levels    []json.RawMessage `json:"levels"`
	NextAfter *int              `json:"nextAfter,omitempty"`
}

// FetchAll retrieves every level document ordered by id. Documents
// missing an id or base letters are skipped with a diagnostic count,
// not treated as fatal. An empty final result reports ErrUnavailable
// so the caller falls back to the local source.
func (c *Client) FetchAll(ctx context.Context, token string) ([]level.RawRecord, error) {
	var all []level.RawRecord
	skipped := 0
	examples := 0
	after := 0

	for {
		p, err := c.fetchPage(ctx, token, after)
		if err != nil {
			return nil, err
		}

		for _, doc := range p.Levels {
			var rec level.RawRecord
			if err := json.Unmarshal(doc, &rec); err != nil {
				skipped++
				if examples < maxMalformedExamples {
					examples++
					c.log.Warn().Err(err).RawJSON("doc", doc).Msg("skipping malformed level document")
				}
				continue
			}
			if rec.ID == 0 || rec.BaseLetters == "" {
				skipped++
				if examples < maxMalformedExamples {
					examples++
					c.log.Warn().RawJSON("doc", doc).Msg("skipping level document missing id or baseLetters")
				}
				continue
			}
			all = append(all, rec)
		}

		if p.NextAfter == nil {
			break
		}
		after = *p.NextAfter
	}

	if skipped > 0 {
		c.log.Warn().Int("skipped", skipped).Int("kept", len(all)).Msg("remote fetch skipped malformed documents")
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("collection %q returned no usable documents: %w", c.cfg.Collection, ErrUnavailable)
	}
	return all, nil
}

func (c *Client) fetchPage(ctx context.Context, token string, after int) (*page, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("base url: %w", err)
	}
	u.Path = fmt.Sprintf("/v1/collections/%s/levels", url.PathEscape(c.cfg.Collection))
	q := u.Query()
	if after > 0 {
		q.Set("after", fmt.Sprint(after))
	}
	q.Set("limit", fmt.Sprint(c.cfg.PageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", ErrUnavailable, u.Path, resp.StatusCode)
	}

	p := &page{}
	if err := json.NewDecoder(resp.Body).Decode(p); err != nil {
		return nil, fmt.Errorf("%w: decode page: %s", ErrUnavailable, err)
	}
	return p, nil
}
