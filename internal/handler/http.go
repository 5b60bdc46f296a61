package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"windview/internal/domain"
	"windview/internal/elevation"
	"windview/internal/visibility"
)

// ProfileService is the subset of elevation.Service the handlers use.
type ProfileService interface {
	GetProfile(ctx context.Context, observer, target domain.GeoPoint, sampleCount int) (*domain.Profile, error)
	ClearCache(ctx context.Context) error
}

type HTTPHandler struct {
	calc     *visibility.Calculator
	profiles ProfileService
	logger   *slog.Logger
}

func NewHTTPHandler(calc *visibility.Calculator, profiles ProfileService, logger *slog.Logger) *HTTPHandler {
	return &HTTPHandler{calc: calc, profiles: profiles, logger: logger.With("component", "http")}
}

// maxSamples caps the per-request sample count
const maxSamples = 1000

// Visibility answers GET /v1/visibility.
func (h *HTTPHandler) Visibility(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	observer, target, err := parseEndpoints(q.Get("observer"), q.Get("target"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	height, err := targetHeight(q.Get("height"), q.Get("hub"), q.Get("rotor"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	samples, err := parseSamples(q.Get("samples"), h.calc.SampleCount())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := h.calc.DefaultOptions()
	for name, dst := range map[string]*float64{
		"eye":     &opts.ObserverEyeHeight,
		"blocked": &opts.BlockedThreshold,
		"partial": &opts.PartialThreshold,
	} {
		if v := q.Get(name); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				respondError(w, http.StatusBadRequest, "invalid "+name+" parameter: "+err.Error())
				return
			}
			*dst = f
		}
	}

	result, err := h.calc.ComputeVisibility(r.Context(), visibility.Request{
		Observer:     observer,
		Target:       target,
		TargetHeight: height,
		SampleCount:  samples,
		Options:      &opts,
	})
	if err != nil {
		h.respondComputeError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Profile answers GET /v1/profile, as JSON or as a GeoJSON feature.
func (h *HTTPHandler) Profile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	observer, target, err := parseEndpoints(q.Get("observer"), q.Get("target"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	samples, err := parseSamples(q.Get("samples"), h.calc.SampleCount())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	profile, err := h.profiles.GetProfile(r.Context(), observer, target, samples)
	if err != nil {
		h.respondComputeError(w, err)
		return
	}

	switch q.Get("format") {
	case "", "json":
		respondJSON(w, http.StatusOK, profile)
	case "geojson":
		w.Header().Set("Content-Type", "application/geo+json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(ProfileFeature(profile))
	default:
		respondError(w, http.StatusBadRequest, "invalid format parameter: must be json or geojson")
	}
}

// ClearProfiles answers DELETE /v1/cache/profiles.
func (h *HTTPHandler) ClearProfiles(w http.ResponseWriter, r *http.Request) {
	if err := h.profiles.ClearCache(r.Context()); err != nil {
		h.logger.Error("profile cache clear failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to clear profile cache")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ProfileFeature renders a profile as a LineString whose properties carry
// the per-vertex elevations.
func ProfileFeature(p *domain.Profile) *geojson.Feature {
	line := make(orb.LineString, 0, p.Len())
	elevations := make([]float64, 0, p.Len())
	for _, s := range p.Samples {
		line = append(line, orb.Point{s.Point.Longitude, s.Point.Latitude})
		elevations = append(elevations, s.Elevation)
	}

	f := geojson.NewFeature(line)
	f.Properties["elevations"] = elevations
	f.Properties["isSurfaceModel"] = p.IsSurfaceModel
	f.Properties["source"] = p.Source
	return f
}

func (h *HTTPHandler) respondComputeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, elevation.ErrProfileUnavailable):
		h.logger.Warn("visibility indeterminate", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, indeterminateResponse{
			Error:  "elevation data unavailable",
			Status: "indeterminate",
		})
	case errors.Is(err, domain.ErrInvalidProfile):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

type indeterminateResponse struct {
	Error  string `json:"error"`
	Status string `json:"status"`
}

func parseEndpoints(observerStr, targetStr string) (domain.GeoPoint, domain.GeoPoint, error) {
	observer, err := parsePoint(observerStr)
	if err != nil {
		return domain.GeoPoint{}, domain.GeoPoint{}, fmt.Errorf("invalid observer parameter: %w", err)
	}
	target, err := parsePoint(targetStr)
	if err != nil {
		return domain.GeoPoint{}, domain.GeoPoint{}, fmt.Errorf("invalid target parameter: %w", err)
	}
	return observer, target, nil
}

// parsePoint reads "lat,lon".
func parsePoint(s string) (domain.GeoPoint, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return domain.GeoPoint{}, errors.New("expected lat,lon")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return domain.GeoPoint{}, err
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return domain.GeoPoint{}, err
	}
	p := domain.GeoPoint{Latitude: lat, Longitude: lon}
	if !p.Valid() {
		return domain.GeoPoint{}, errors.New("coordinates out of range")
	}
	return p, nil
}

// targetHeight takes an explicit height, or derives the blade tip height
// from hub height and rotor diameter.
func targetHeight(height, hub, rotor string) (float64, error) {
	if height != "" {
		h, err := strconv.ParseFloat(height, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid height parameter: %w", err)
		}
		return h, nil
	}
	if hub == "" || rotor == "" {
		return 0, errors.New("missing height: pass height, or hub and rotor")
	}
	hubHeight, err := strconv.ParseFloat(hub, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hub parameter: %w", err)
	}
	rotorDiameter, err := strconv.ParseFloat(rotor, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid rotor parameter: %w", err)
	}
	return visibility.TurbineHeight(hubHeight, rotorDiameter), nil
}

func parseSamples(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 2 || n > maxSamples {
		return 0, fmt.Errorf("invalid samples parameter: must be between 2 and %d", maxSamples)
	}
	return n, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
