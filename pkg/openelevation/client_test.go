package openelevation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"windview/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestElevationsBatch(t *testing.T) {
	var got lookupRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"results":[{"latitude":51.1,"longitude":14.1,"elevation":98.5},{"latitude":51.2,"longitude":14.2,"elevation":120}]}`)
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second, 0, testLogger())
	points := []domain.GeoPoint{{Latitude: 51.1, Longitude: 14.1}, {Latitude: 51.2, Longitude: 14.2}}
	elevations, err := c.Elevations(context.Background(), points)
	if err != nil {
		t.Fatalf("Elevations: %v", err)
	}

	if len(got.Locations) != 2 || got.Locations[1].Latitude != 51.2 || got.Locations[1].Longitude != 14.2 {
		t.Errorf("request locations = %+v", got.Locations)
	}
	if len(elevations) != 2 || elevations[0] != 98.5 || elevations[1] != 120 {
		t.Errorf("elevations = %v, want [98.5 120]", elevations)
	}
}

func TestElevationsErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}},
		{"length mismatch", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"results":[{"elevation":1}]}`)
		}},
		{"malformed json", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"results":`)
		}},
	}

	points := []domain.GeoPoint{{Latitude: 1}, {Latitude: 2}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := New(srv.URL, 5*time.Second, 0, testLogger())
			if _, err := c.Elevations(context.Background(), points); !errors.Is(err, ErrFallbackUnavailable) {
				t.Fatalf("error = %v, want ErrFallbackUnavailable", err)
			}
		})
	}
}

func TestElevationsRespectsRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":[{"elevation":1}]}`)
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second, 1, testLogger())
	points := []domain.GeoPoint{{}}
	if _, err := c.Elevations(context.Background(), points); err != nil {
		t.Fatalf("first call: %v", err)
	}

	// the second token is a second away
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := c.Elevations(ctx, points); !errors.Is(err, ErrFallbackUnavailable) {
		t.Fatalf("rate limited call error = %v, want ErrFallbackUnavailable", err)
	}
}
