// Package terrain owns the surface-model elevation tiles: addressing, the
// tiered tile cache (memory, disk, remote) and point lookups.
package terrain

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"windview/internal/domain"
	"windview/internal/metrics"
)

// Fetcher supplies raw tiles. Implementations return an error wrapping
// ErrTileUnavailable for not-found and transport failures, and one wrapping
// ErrCorruptTile for malformed payloads.
type Fetcher interface {
	FetchTile(ctx context.Context, coord TileCoordinate) ([]uint16, error)
}

type Options struct {
	// CacheSize bounds the in-memory tier, in tiles (2 MB each)
	CacheSize    int
	FetchTimeout time.Duration
	// Disk is the optional middle tier
	Disk    *DiskCache
	Metrics *metrics.Collector
}

type Store struct {
	fetcher      Fetcher
	tiles        *lru.Cache[TileCoordinate, *Tile]
	flights      singleflight.Group
	capacity     int
	disk         *DiskCache
	fetchTimeout time.Duration
	metrics      *metrics.Collector
	logger       *slog.Logger
}

func NewStore(fetcher Fetcher, opts Options, logger *slog.Logger) (*Store, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 64
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}

	tiles, err := lru.New[TileCoordinate, *Tile](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create tile cache: %w", err)
	}

	return &Store{
		fetcher:      fetcher,
		tiles:        tiles,
		capacity:     opts.CacheSize,
		disk:         opts.Disk,
		fetchTimeout: opts.FetchTimeout,
		metrics:      opts.Metrics,
		logger:       logger.With("component", "tile_store"),
	}, nil
}

// ElevationAt returns the surface height in metres at p.
func (s *Store) ElevationAt(ctx context.Context, p domain.ProjectedPoint) (float64, error) {
	coord, localX, localY := TileFor(p)
	tile, err := s.Tile(ctx, coord)
	if err != nil {
		return 0, err
	}
	return tile.ElevationAt(localX, localY), nil
}

// Tile returns the tile at coord, loading it on a miss. Concurrent misses
// for the same coordinate share one load and its result. The load runs
// detached from ctx: a caller that gives up returns early, the load still
// completes and fills the cache.
func (s *Store) Tile(ctx context.Context, coord TileCoordinate) (*Tile, error) {
	if tile, ok := s.tiles.Get(coord); ok {
		s.metrics.TileHit(metrics.TierMemory)
		return tile, nil
	}
	s.metrics.TileMiss(metrics.TierMemory)

	loadCtx := context.WithoutCancel(ctx)
	ch := s.flights.DoChan(coord.String(), func() (interface{}, error) {
		return s.load(loadCtx, coord)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("tile %s: %w: %w", coord, ErrTileUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Tile), nil
	}
}

func (s *Store) load(ctx context.Context, coord TileCoordinate) (*Tile, error) {
	// A flight that finished just before this one started may have filled it.
	if tile, ok := s.tiles.Peek(coord); ok {
		return tile, nil
	}

	if tile := s.loadFromDisk(coord); tile != nil {
		s.add(tile)
		return tile, nil
	}

	start := time.Now()
	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	samples, err := s.fetcher.FetchTile(fetchCtx, coord)
	if err != nil {
		return nil, s.classify(coord, err)
	}

	tile, err := NewTile(coord, samples)
	if err != nil {
		s.metrics.TileFetchError("corrupt")
		s.logger.Warn("discarding corrupt tile", "tile", coord.String(), "error", err)
		return nil, err
	}

	s.metrics.TileHit(metrics.TierRemote)
	s.logger.Debug("tile fetched", "tile", coord.String(), "duration_ms", time.Since(start).Milliseconds())

	if s.disk != nil {
		if err := s.disk.Save(coord, samples); err != nil {
			s.logger.Warn("failed to persist tile", "tile", coord.String(), "error", err)
		}
	}

	s.add(tile)
	return tile, nil
}

func (s *Store) loadFromDisk(coord TileCoordinate) *Tile {
	if s.disk == nil {
		return nil
	}

	samples, err := s.disk.Load(coord)
	if err != nil {
		s.metrics.TileMiss(metrics.TierDisk)
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("dropping unreadable cached tile", "tile", coord.String(), "error", err)
			_ = s.disk.Remove(coord)
		}
		return nil
	}

	tile, err := NewTile(coord, samples)
	if err != nil {
		s.metrics.TileMiss(metrics.TierDisk)
		s.logger.Warn("dropping corrupt cached tile", "tile", coord.String(), "error", err)
		_ = s.disk.Remove(coord)
		return nil
	}

	s.metrics.TileHit(metrics.TierDisk)
	return tile
}

func (s *Store) classify(coord TileCoordinate, err error) error {
	if errors.Is(err, ErrCorruptTile) {
		s.metrics.TileFetchError("corrupt")
		return fmt.Errorf("tile %s: %w", coord, err)
	}
	s.metrics.TileFetchError("unavailable")
	if errors.Is(err, ErrTileUnavailable) {
		return fmt.Errorf("tile %s: %w", coord, err)
	}
	return fmt.Errorf("tile %s: %w: %w", coord, ErrTileUnavailable, err)
}

func (s *Store) add(tile *Tile) {
	s.tiles.Add(tile.Coord, tile)
	s.metrics.SetTilesResident(s.tiles.Len())
}

// Prefetch loads every tile in coords, continuing past failures. It
// returns how many tiles are resident afterwards and the joined errors.
func (s *Store) Prefetch(ctx context.Context, coords []TileCoordinate) (int, error) {
	var errs []error
	loaded := 0
	for _, coord := range coords {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := s.Tile(ctx, coord); err != nil {
			errs = append(errs, err)
			continue
		}
		loaded++
	}
	return loaded, errors.Join(errs...)
}

// Len returns the number of tiles held in memory.
func (s *Store) Len() int {
	return s.tiles.Len()
}

// Capacity is the in-memory tier bound, in tiles.
func (s *Store) Capacity() int {
	return s.capacity
}
