// Package tileserver fetches surface-model height tiles over HTTP. Tiles
// are served as tile_{x}_{y}.bin (optionally .bin.gz): little-endian uint16
// heights in centimetres, row-major, 1000×1000.
package tileserver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"windview/internal/terrain"
)

// maxTileBytes bounds how much of a response body is read
const maxTileBytes = 2*terrain.SamplesPerTile + 1

type Client struct {
	baseURL    string
	gzip       bool
	httpClient *http.Client
	logger     *slog.Logger
}

func New(baseURL string, gzipped bool, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		gzip:    gzipped,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger.With("component", "tile_client"),
	}
}

func (c *Client) tileURL(coord terrain.TileCoordinate) string {
	name := fmt.Sprintf("tile_%s.bin", coord)
	if c.gzip {
		name += ".gz"
	}
	return c.baseURL + "/" + name
}

// FetchTile implements terrain.Fetcher.
func (c *Client) FetchTile(ctx context.Context, coord terrain.TileCoordinate) ([]uint16, error) {
	start := time.Now()
	reqURL := c.tileURL(coord)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %w", terrain.ErrTileUnavailable, err)
	}
	req.Header.Set("User-Agent", "windview/1.0")
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: executing request: %w", terrain.ErrTileUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.logger.Debug("tile not found", "tile", coord.String(), "url", reqURL)
		return nil, fmt.Errorf("%w: not found", terrain.ErrTileUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code: %d", terrain.ErrTileUnavailable, resp.StatusCode)
	}

	// The transport already inflates bodies sent with Content-Encoding: gzip.
	var body io.Reader = resp.Body
	if !resp.Uncompressed && (c.gzip || resp.Header.Get("Content-Encoding") == "gzip") {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %w", terrain.ErrCorruptTile, err)
		}
		defer zr.Close()
		body = zr
	}

	raw, err := io.ReadAll(io.LimitReader(body, maxTileBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", terrain.ErrTileUnavailable, err)
	}

	samples, err := terrain.DecodeSamples(raw)
	if err != nil {
		return nil, err
	}
	if len(samples) != terrain.SamplesPerTile {
		return nil, fmt.Errorf("%w: %d samples, expected %d", terrain.ErrCorruptTile, len(samples), terrain.SamplesPerTile)
	}

	c.logger.Debug("tile downloaded",
		"tile", coord.String(),
		"size_bytes", len(raw),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return samples, nil
}
