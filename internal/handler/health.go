package handler

import (
	"encoding/json"
	"net/http"
	"time"
)

// Readiness reports whether startup work such as tile warming is done.
type Readiness interface {
	IsReady() bool
}

// TileStats describes the in-memory tile tier.
type TileStats interface {
	Len() int
	Capacity() int
}

type HealthHandler struct {
	ready Readiness
	tiles TileStats
}

func NewHealthHandler(ready Readiness, tiles TileStats) *HealthHandler {
	return &HealthHandler{
		ready: ready,
		tiles: tiles,
	}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready         bool      `json:"ready"`
	TilesResident int       `json:"tilesResident"`
	ServerTime    time.Time `json:"serverTime"`
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ready := h.ready.IsReady()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ReadyResponse{
		Ready:         ready,
		TilesResident: h.tiles.Len(),
		ServerTime:    time.Now(),
	})
}
