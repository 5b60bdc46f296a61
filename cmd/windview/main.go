package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"windview/internal/cache"
	"windview/internal/config"
	"windview/internal/domain"
	"windview/internal/elevation"
	"windview/internal/handler"
	"windview/internal/metrics"
	"windview/internal/middleware"
	"windview/internal/projection"
	"windview/internal/terrain"
	"windview/internal/visibility"
	"windview/pkg/openelevation"
	"windview/pkg/tileserver"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting windview server",
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"tile_server", cfg.TileServerURL,
		"cache_backend", cfg.CacheBackend,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	var disk *terrain.DiskCache
	if cfg.TileDiskCacheDir != "" {
		disk, err = terrain.NewDiskCache(cfg.TileDiskCacheDir)
		if err != nil {
			logger.Error("failed to open tile disk cache", "dir", cfg.TileDiskCacheDir, "error", err)
			os.Exit(1)
		}
		logger.Info("tile disk cache enabled", "dir", disk.Dir())
	}

	tileClient := tileserver.New(cfg.TileServerURL, cfg.TileServerGzip, cfg.TileFetchTimeout, logger)
	tileStore, err := terrain.NewStore(tileClient, terrain.Options{
		CacheSize:    cfg.TileCacheSize,
		FetchTimeout: cfg.TileFetchTimeout,
		Disk:         disk,
		Metrics:      m,
	}, logger)
	if err != nil {
		logger.Error("failed to create tile store", "error", err)
		os.Exit(1)
	}

	kv, closer, err := openProfileBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open profile cache", "backend", cfg.CacheBackend, "error", err)
		os.Exit(1)
	}
	defer closer.Close()

	proj := projection.New(projection.UTM33N)
	fallback := openelevation.New(cfg.FallbackURL, cfg.FallbackTimeout, cfg.FallbackRPS, logger)
	profileCache := cache.NewProfileCache(kv, cfg.ProfileCacheTTL, logger)
	profiles := elevation.NewService(proj, tileStore, fallback, profileCache, m, logger)

	calc, err := visibility.NewCalculator(profiles, visibility.Options{
		ObserverEyeHeight: cfg.ObserverEyeHeight,
		BlockedThreshold:  cfg.BlockedThreshold,
		PartialThreshold:  cfg.PartialThreshold,
	}, cfg.SampleCount, m, logger)
	if err != nil {
		logger.Error("invalid visibility settings", "error", err)
		os.Exit(1)
	}

	home := proj.ToProjected(domain.GeoPoint{Latitude: cfg.HomeLat, Longitude: cfg.HomeLon})
	warmer := terrain.NewWarmer(tileStore, home, cfg.TileWarmRadius, logger)

	var limiter *middleware.RateLimiter
	if cfg.RateLimitPerWindow > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimitPerWindow, cfg.RateLimitWindow, cfg.RateLimitWhitelist, logger)
		go limiter.Run(ctx.Done())
	}

	httpHandler := handler.NewHTTPHandler(calc, profiles, logger)
	wsHandler := handler.NewWSHandler(calc, logger)
	healthHandler := handler.NewHealthHandler(warmer, tileStore)
	statsHandler := handler.NewStatsHandler(tileStore, warmer, limiter, cfg.CacheBackend)

	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, handler.Instrument(m, pattern, handler.GzipMiddleware(h)))
	}

	route("GET /v1/visibility", httpHandler.Visibility)
	route("GET /v1/profile", httpHandler.Profile)
	route("DELETE /v1/cache/profiles", httpHandler.ClearProfiles)
	route("GET /v1/stats", statsHandler.GetStats)
	mux.Handle("GET /v1/ws", handler.Instrument(m, "GET /v1/ws", http.HandlerFunc(wsHandler.ServeWS)))

	mux.HandleFunc("GET /healthz", healthHandler.Healthz)
	mux.HandleFunc("GET /readyz", healthHandler.Readyz)
	mux.Handle("GET /metrics", m.Handler())

	var root http.Handler = mux
	if limiter != nil {
		root = limiter.Middleware(root)
	}
	root = handler.CORSMiddleware(root)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      root,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	if cfg.TileWarmOnStart {
		go warmer.Warm(ctx)
	} else {
		warmer.MarkReady()
	}

	go func() {
		logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

// openProfileBackend returns the configured KV and starts its expiry
// pruning where the backend does not expire keys itself.
func openProfileBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (cache.KV, io.Closer, error) {
	switch cfg.CacheBackend {
	case config.BackendRedis:
		rc, err := cache.NewRedisCache(cache.RedisOptions{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return rc, rc, nil

	case config.BackendPostgres:
		pc, err := cache.NewPostgresCache(cfg.PostgresDSN, logger)
		if err != nil {
			return nil, nil, err
		}
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					n, err := pc.PruneExpired(ctx)
					if err != nil {
						logger.Warn("profile cache prune failed", "error", err)
						continue
					}
					logger.Debug("profile cache pruned", "rows", n)
				}
			}
		}()
		return pc, pc, nil

	case config.BackendMemory:
		mc := cache.NewMemoryCache()
		go mc.RunPruner(ctx, time.Hour)
		return mc, io.NopCloser(nil), nil

	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}
