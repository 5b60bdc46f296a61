package terrain

import (
	"errors"
	"testing"

	"windview/internal/domain"
)

func TestTileForSameRegion(t *testing.T) {
	points := []domain.ProjectedPoint{
		{X: 460000, Y: 5740000},
		{X: 460000.4, Y: 5740999.9},
		{X: 460999.99, Y: 5740500},
		{X: 460512.7, Y: 5740001.2},
	}

	want := TileCoordinate{X: 460, Y: 5740}
	for _, p := range points {
		coord, localX, localY := TileFor(p)
		if coord != want {
			t.Errorf("TileFor(%v) = %v, want %v", p, coord, want)
		}
		if localX < 0 || localX >= TileSize || localY < 0 || localY >= TileSize {
			t.Errorf("TileFor(%v) local = (%d,%d), out of range", p, localX, localY)
		}
	}
}

func TestTileForOffsets(t *testing.T) {
	tests := []struct {
		name           string
		p              domain.ProjectedPoint
		coord          TileCoordinate
		localX, localY int
	}{
		{"tile origin", domain.ProjectedPoint{X: 460000, Y: 5740000}, TileCoordinate{460, 5740}, 0, 0},
		{"truncates", domain.ProjectedPoint{X: 460123.9, Y: 5740456.2}, TileCoordinate{460, 5740}, 123, 456},
		{"last sample", domain.ProjectedPoint{X: 460999.999, Y: 5740999.999}, TileCoordinate{460, 5740}, 999, 999},
		{"negative", domain.ProjectedPoint{X: -0.5, Y: -1500.25}, TileCoordinate{-1, -2}, 999, 499},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coord, lx, ly := TileFor(tt.p)
			if coord != tt.coord || lx != tt.localX || ly != tt.localY {
				t.Errorf("TileFor(%v) = %v (%d,%d), want %v (%d,%d)", tt.p, coord, lx, ly, tt.coord, tt.localX, tt.localY)
			}
		})
	}
}

func TestTilesInRadius(t *testing.T) {
	tiles := TilesInRadius(domain.ProjectedPoint{X: 460500, Y: 5740500}, 1200)
	// x and y each span 459..461
	if len(tiles) != 9 {
		t.Fatalf("TilesInRadius returned %d tiles, want 9: %v", len(tiles), tiles)
	}
	if tiles[0] != (TileCoordinate{459, 5739}) || tiles[8] != (TileCoordinate{461, 5741}) {
		t.Errorf("unexpected corners: first %v last %v", tiles[0], tiles[8])
	}

	single := TilesInRadius(domain.ProjectedPoint{X: 460500, Y: 5740500}, 0)
	if len(single) != 1 || single[0] != (TileCoordinate{460, 5740}) {
		t.Errorf("zero radius = %v, want the containing tile", single)
	}
}

func TestTileCoordinateString(t *testing.T) {
	if got := (TileCoordinate{460, 5740}).String(); got != "460_5740" {
		t.Errorf("String() = %q", got)
	}
	if got := (TileCoordinate{-1, 3}).String(); got != "-1_3" {
		t.Errorf("String() = %q", got)
	}
}

func TestNewTileValidatesLength(t *testing.T) {
	if _, err := NewTile(TileCoordinate{}, make([]uint16, SamplesPerTile-1)); !errors.Is(err, ErrCorruptTile) {
		t.Fatalf("short tile error = %v, want ErrCorruptTile", err)
	}
	if _, err := NewTile(TileCoordinate{}, make([]uint16, SamplesPerTile+1)); !errors.Is(err, ErrCorruptTile) {
		t.Fatalf("long tile error = %v, want ErrCorruptTile", err)
	}
}

func TestTileElevationAt(t *testing.T) {
	samples := make([]uint16, SamplesPerTile)
	samples[7*TileSize+3] = 10523

	tile, err := NewTile(TileCoordinate{1, 2}, samples)
	if err != nil {
		t.Fatalf("NewTile: %v", err)
	}
	if got := tile.ElevationAt(3, 7); got != 105.23 {
		t.Errorf("ElevationAt(3,7) = %v, want 105.23", got)
	}
	if got := tile.ElevationAt(7, 3); got != 0 {
		t.Errorf("ElevationAt(7,3) = %v, want 0 (row-major)", got)
	}
}

func TestSampleCodecRoundTrip(t *testing.T) {
	in := []uint16{0, 1, 255, 256, 65535, 10000}
	out, err := DecodeSamples(EncodeSamples(in))
	if err != nil {
		t.Fatalf("DecodeSamples: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("sample %d = %d, want %d", i, out[i], in[i])
		}
	}

	// little-endian: 0x0102 -> 02 01
	if raw := EncodeSamples([]uint16{0x0102}); raw[0] != 0x02 || raw[1] != 0x01 {
		t.Errorf("EncodeSamples not little-endian: %v", raw)
	}

	if _, err := DecodeSamples([]byte{1, 2, 3}); !errors.Is(err, ErrCorruptTile) {
		t.Errorf("odd payload error = %v, want ErrCorruptTile", err)
	}
}
