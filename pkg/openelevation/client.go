// Package openelevation is a client for the Open-Elevation lookup API,
// a bare-terrain (DTM) source without vegetation or buildings.
//
// API: POST {"locations":[{"latitude":..,"longitude":..}]}
// returns {"results":[{"latitude":..,"longitude":..,"elevation":..}]}.
package openelevation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"windview/internal/domain"
)

// DefaultURL is the public lookup endpoint
const DefaultURL = "https://api.open-elevation.com/api/v1/lookup"

// ErrFallbackUnavailable covers transport errors, non-200 responses and
// responses not aligned with the request.
var ErrFallbackUnavailable = errors.New("fallback elevation unavailable")

type Client struct {
	url         string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      *slog.Logger
}

// New creates a client allowing requestsPerSecond calls (burst 1). A
// non-positive rate disables limiting.
func New(url string, timeout time.Duration, requestsPerSecond float64, logger *slog.Logger) *Client {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		rateLimiter: rate.NewLimiter(limit, 1),
		logger:      logger.With("component", "open_elevation"),
	}
}

type location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type lookupRequest struct {
	Locations []location `json:"locations"`
}

type lookupResponse struct {
	Results []struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Elevation float64 `json:"elevation"`
	} `json:"results"`
}

// Elevations returns one elevation in metres per point, aligned by index,
// from a single batched request.
func (c *Client) Elevations(ctx context.Context, points []domain.GeoPoint) ([]float64, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %w", ErrFallbackUnavailable, err)
	}

	start := time.Now()
	reqBody := lookupRequest{Locations: make([]location, len(points))}
	for i, p := range points {
		reqBody.Locations[i] = location{Latitude: p.Latitude, Longitude: p.Longitude}
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %w", ErrFallbackUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %w", ErrFallbackUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: executing request: %w", ErrFallbackUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrFallbackUnavailable, resp.StatusCode, string(body))
	}

	var lookup lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&lookup); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrFallbackUnavailable, err)
	}
	if len(lookup.Results) != len(points) {
		return nil, fmt.Errorf("%w: %d results for %d points", ErrFallbackUnavailable, len(lookup.Results), len(points))
	}

	elevations := make([]float64, len(points))
	for i, r := range lookup.Results {
		elevations[i] = r.Elevation
	}

	c.logger.Debug("fallback elevations fetched",
		"points", len(points),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return elevations, nil
}
