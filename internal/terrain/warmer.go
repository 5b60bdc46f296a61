package terrain

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"windview/internal/domain"
)

// Warmer preloads the tiles around a home location so the first queries
// in the operating area do not wait on the tile server.
type Warmer struct {
	store  *Store
	center domain.ProjectedPoint
	radius float64
	logger *slog.Logger

	ready atomic.Bool
}

func NewWarmer(store *Store, center domain.ProjectedPoint, radius float64, logger *slog.Logger) *Warmer {
	return &Warmer{
		store:  store,
		center: center,
		radius: radius,
		logger: logger.With("component", "tile_warmer"),
	}
}

// Warm loads every tile within the radius. Failures are logged and never
// fatal; the store falls back per query anyway.
func (w *Warmer) Warm(ctx context.Context) {
	defer w.ready.Store(true)

	start := time.Now()
	coords := TilesInRadius(w.center, w.radius)
	w.logger.Info("starting tile warming", "tiles", len(coords), "radius_m", w.radius)

	if len(coords) > w.store.Capacity() {
		w.logger.Warn("warm area exceeds tile cache size, early tiles will be evicted",
			"tiles", len(coords),
			"cache_size", w.store.Capacity(),
		)
	}

	loaded, err := w.store.Prefetch(ctx, coords)
	if err != nil {
		w.logger.Warn("some tiles could not be warmed", "loaded", loaded, "requested", len(coords), "error", err)
	}

	w.logger.Info("tile warming completed",
		"loaded", loaded,
		"requested", len(coords),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// MarkReady is used when warming is disabled.
func (w *Warmer) MarkReady() {
	w.ready.Store(true)
}

func (w *Warmer) IsReady() bool {
	return w.ready.Load()
}
