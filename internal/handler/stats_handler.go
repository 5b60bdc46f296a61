package handler

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"windview/internal/middleware"
)

// Stats tracks server-wide counters
type Stats struct {
	startTime     time.Time
	requestCount  atomic.Int64
	wsConnections atomic.Int64
	wsMessagesIn  atomic.Int64
	wsMessagesOut atomic.Int64
}

// Global stats instance
var ServerStats = &Stats{
	startTime: time.Now(),
}

func (s *Stats) IncRequests()      { s.requestCount.Add(1) }
func (s *Stats) IncWSConnections() { s.wsConnections.Add(1) }
func (s *Stats) DecWSConnections() { s.wsConnections.Add(-1) }
func (s *Stats) IncWSMessagesIn()  { s.wsMessagesIn.Add(1) }
func (s *Stats) IncWSMessagesOut() { s.wsMessagesOut.Add(1) }

type StatsHandler struct {
	tiles        TileStats
	ready        Readiness
	limiter      *middleware.RateLimiter
	cacheBackend string
}

func NewStatsHandler(tiles TileStats, ready Readiness, limiter *middleware.RateLimiter, cacheBackend string) *StatsHandler {
	return &StatsHandler{
		tiles:        tiles,
		ready:        ready,
		limiter:      limiter,
		cacheBackend: cacheBackend,
	}
}

type StatsResponse struct {
	Server    ServerStatsResponse    `json:"server"`
	Tiles     TileStatsResponse      `json:"tiles"`
	Profiles  ProfileStatsResponse   `json:"profiles"`
	WebSocket WebSocketStatsResponse `json:"websocket"`
	RateLimit *middleware.Stats      `json:"rate_limit,omitempty"`
	Go        GoStatsResponse        `json:"go"`
}

type ServerStatsResponse struct {
	Uptime        string    `json:"uptime"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	StartTime     time.Time `json:"start_time"`
	RequestCount  int64     `json:"request_count"`
	Version       string    `json:"version"`
}

type TileStatsResponse struct {
	Resident int  `json:"resident"`
	Capacity int  `json:"capacity"`
	Warmed   bool `json:"warmed"`
}

type ProfileStatsResponse struct {
	Backend string `json:"backend"`
}

type WebSocketStatsResponse struct {
	Connections int64 `json:"connections"`
	MessagesIn  int64 `json:"messages_in"`
	MessagesOut int64 `json:"messages_out"`
}

type GoStatsResponse struct {
	Goroutines  int     `json:"goroutines"`
	HeapAlloc   uint64  `json:"heap_alloc_bytes"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	NumGC       uint32  `json:"num_gc"`
	GoVersion   string  `json:"go_version"`
}

func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(ServerStats.startTime)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	response := StatsResponse{
		Server: ServerStatsResponse{
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			StartTime:     ServerStats.startTime,
			RequestCount:  ServerStats.requestCount.Load(),
			Version:       "1.0.0",
		},
		Tiles: TileStatsResponse{
			Resident: h.tiles.Len(),
			Capacity: h.tiles.Capacity(),
			Warmed:   h.ready.IsReady(),
		},
		Profiles: ProfileStatsResponse{
			Backend: h.cacheBackend,
		},
		WebSocket: WebSocketStatsResponse{
			Connections: ServerStats.wsConnections.Load(),
			MessagesIn:  ServerStats.wsMessagesIn.Load(),
			MessagesOut: ServerStats.wsMessagesOut.Load(),
		},
		Go: GoStatsResponse{
			Goroutines:  runtime.NumGoroutine(),
			HeapAlloc:   mem.HeapAlloc,
			HeapAllocMB: float64(mem.HeapAlloc) / 1024 / 1024,
			NumGC:       mem.NumGC,
			GoVersion:   runtime.Version(),
		},
	}
	if h.limiter != nil {
		s := h.limiter.Stats()
		response.RateLimit = &s
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	json.NewEncoder(w).Encode(response)
}
