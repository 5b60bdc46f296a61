package cache

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"windview/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleProfile() *domain.Profile {
	return &domain.Profile{
		Samples: []domain.ElevationSample{
			{Point: domain.GeoPoint{Latitude: 51.6724, Longitude: 14.4354}, Elevation: 100.37},
			{Point: domain.GeoPoint{Latitude: 51.68, Longitude: 14.45}, Elevation: 0.1 + 0.2},
			{Point: domain.GeoPoint{Latitude: 51.6891, Longitude: 14.4712}, Elevation: 112.05},
		},
		IsSurfaceModel: true,
		Source:         domain.SourceSurfaceTiles,
	}
}

func TestProfileKeyIsStable(t *testing.T) {
	a := domain.GeoPoint{Latitude: 51.6724, Longitude: 14.4354}
	b := domain.GeoPoint{Latitude: 51.6891, Longitude: 14.4712}

	got := ProfileKey(a, b, 20)
	want := "elevation:51.672400_14.435400_51.689100_14.471200_20"
	if got != want {
		t.Fatalf("ProfileKey = %q, want %q", got, want)
	}

	// differences below the formatting precision map to the same key
	a2 := domain.GeoPoint{Latitude: 51.67240000001, Longitude: 14.4354}
	if ProfileKey(a2, b, 20) != got {
		t.Errorf("key not stable under sub-precision noise")
	}
	if ProfileKey(a, b, 21) == got {
		t.Errorf("sample count must be part of the key")
	}
	if ProfileKey(b, a, 20) == got {
		t.Errorf("direction must be part of the key")
	}
}

func TestProfileCacheRoundTrip(t *testing.T) {
	pc := NewProfileCache(NewMemoryCache(), time.Hour, testLogger())
	ctx := context.Background()
	want := sampleProfile()

	if err := pc.Set(ctx, "elevation:k", want); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := pc.Get(ctx, "elevation:k")
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestProfileCacheExpiry(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	pc := NewProfileCache(NewMemoryCache(), 24*time.Hour, testLogger()).WithClock(func() time.Time { return now })
	ctx := context.Background()

	if err := pc.Set(ctx, "elevation:k", sampleProfile()); err != nil {
		t.Fatalf("Set: %v", err)
	}

	now = now.Add(23 * time.Hour)
	if _, ok, _ := pc.Get(ctx, "elevation:k"); !ok {
		t.Fatal("entry missing before TTL")
	}

	now = now.Add(2 * time.Hour)
	if _, ok, _ := pc.Get(ctx, "elevation:k"); ok {
		t.Fatal("entry returned after TTL")
	}
}

func TestProfileCacheIgnoresGarbage(t *testing.T) {
	kv := NewMemoryCache()
	pc := NewProfileCache(kv, time.Hour, testLogger())
	ctx := context.Background()

	kv.Set(ctx, "elevation:bad", []byte("not json"), 0)
	if _, ok, err := pc.Get(ctx, "elevation:bad"); ok || err != nil {
		t.Fatalf("Get(garbage) = %v, %v; want miss", ok, err)
	}

	kv.Set(ctx, "elevation:short", []byte(`{"profile":{"samples":[]},"writtenAt":"2026-01-01T00:00:00Z"}`), 0)
	if _, ok, _ := pc.Get(ctx, "elevation:short"); ok {
		t.Fatal("Get(short profile) returned a hit")
	}
}

func TestProfileCacheClear(t *testing.T) {
	kv := NewMemoryCache()
	pc := NewProfileCache(kv, time.Hour, testLogger())
	ctx := context.Background()

	pc.Set(ctx, "elevation:a", sampleProfile())
	pc.Set(ctx, "elevation:b", sampleProfile())
	kv.Set(ctx, "other", []byte("keep"), 0)

	if err := pc.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if kv.Count() != 1 {
		t.Fatalf("entries after clear = %d, want 1", kv.Count())
	}
	if v, _ := kv.Get(ctx, "other"); string(v) != "keep" {
		t.Fatalf("unrelated key removed")
	}
}

func TestMemoryCacheTTLAndPrune(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemoryCache()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	m.Set(ctx, "short", []byte("x"), time.Minute)
	m.Set(ctx, "forever", []byte("y"), 0)

	now = now.Add(2 * time.Minute)
	if v, _ := m.Get(ctx, "short"); v != nil {
		t.Fatalf("expired entry returned %q", v)
	}
	if removed := m.PruneExpired(); removed != 1 {
		t.Fatalf("PruneExpired = %d, want 1", removed)
	}
	if v, _ := m.Get(ctx, "forever"); string(v) != "y" {
		t.Fatalf("non-expiring entry = %q", v)
	}
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := NewRedisCache(RedisOptions{Addr: mr.Addr()}, testLogger())
	if err != nil {
		t.Fatalf("NewRedisCache: %v", err)
	}
	defer rc.Close()
	ctx := context.Background()

	if v, err := rc.Get(ctx, "elevation:missing"); v != nil || err != nil {
		t.Fatalf("Get(missing) = %q, %v; want nil, nil", v, err)
	}

	if err := rc.Set(ctx, "elevation:a", []byte("profile"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !mr.Exists("windview:elevation:a") {
		t.Fatal("key not stored with prefix")
	}
	if v, _ := rc.Get(ctx, "elevation:a"); string(v) != "profile" {
		t.Fatalf("Get = %q", v)
	}

	mr.FastForward(2 * time.Minute)
	if v, _ := rc.Get(ctx, "elevation:a"); v != nil {
		t.Fatalf("Get after TTL = %q, want nil", v)
	}

	rc.Set(ctx, "elevation:b", []byte("1"), 0)
	rc.Set(ctx, "elevation:c", []byte("2"), 0)
	rc.Set(ctx, "unrelated", []byte("3"), 0)
	if err := rc.DeletePattern(ctx, KeyProfilePattern); err != nil {
		t.Fatalf("DeletePattern: %v", err)
	}
	if mr.Exists("windview:elevation:b") || mr.Exists("windview:elevation:c") {
		t.Fatal("profile keys survived DeletePattern")
	}
	if !mr.Exists("windview:unrelated") {
		t.Fatal("DeletePattern removed an unrelated key")
	}
}

func TestRedisCacheKeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := NewRedisCache(RedisOptions{Addr: mr.Addr(), KeyPrefix: "site-b:"}, testLogger())
	if err != nil {
		t.Fatalf("NewRedisCache: %v", err)
	}
	defer rc.Close()
	ctx := context.Background()

	mr.Set("windview:elevation:a", "other deployment")
	if err := rc.Set(ctx, "elevation:a", []byte("mine"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, _ := rc.Get(ctx, "elevation:a"); string(v) != "mine" {
		t.Fatalf("Get = %q, want mine", v)
	}
	if err := rc.DeletePattern(ctx, KeyProfilePattern); err != nil {
		t.Fatalf("DeletePattern: %v", err)
	}
	if mr.Exists("site-b:elevation:a") {
		t.Fatal("prefixed key survived DeletePattern")
	}
	if !mr.Exists("windview:elevation:a") {
		t.Fatal("DeletePattern reached another prefix")
	}
	if err := rc.Set(ctx, "elevation:a", []byte("x"), -time.Second); err == nil {
		t.Fatal("Set with negative ttl succeeded")
	}
}

func TestProfileCacheOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := NewRedisCache(RedisOptions{Addr: mr.Addr()}, testLogger())
	if err != nil {
		t.Fatalf("NewRedisCache: %v", err)
	}
	defer rc.Close()

	pc := NewProfileCache(rc, time.Hour, testLogger())
	ctx := context.Background()
	want := sampleProfile()
	key := ProfileKey(want.First().Point, want.Last().Point, want.Len())

	if err := pc.Set(ctx, key, want); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := pc.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestGlobToLike(t *testing.T) {
	tests := map[string]string{
		"elevation:*": "elevation:%",
		"a_b*":        `a\_b%`,
		"100%":        `100\%`,
	}
	for in, want := range tests {
		if got := globToLike(in); got != want {
			t.Errorf("globToLike(%q) = %q, want %q", in, got, want)
		}
	}
}
