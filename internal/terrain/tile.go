package terrain

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"windview/internal/domain"
)

const (
	// TileSize is the side of a tile in metres and in samples (1 m grid)
	TileSize = 1000

	// SamplesPerTile is the exact length of a valid tile payload
	SamplesPerTile = TileSize * TileSize

	// CentimetersPerMeter converts raw tile units to metres
	CentimetersPerMeter = 100.0
)

var (
	// ErrTileUnavailable means the tile could not be obtained (not found or
	// transport failure). Callers fall back to a lower-fidelity source.
	ErrTileUnavailable = errors.New("tile unavailable")

	// ErrCorruptTile means the tile payload does not hold exactly
	// SamplesPerTile samples.
	ErrCorruptTile = errors.New("corrupt tile")
)

// TileCoordinate addresses one TileSize×TileSize metre square of the grid
type TileCoordinate struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (c TileCoordinate) String() string {
	return fmt.Sprintf("%d_%d", c.X, c.Y)
}

// TileFor returns the tile containing p and the integer offsets of p inside
// it. Offsets are always in [0, TileSize).
func TileFor(p domain.ProjectedPoint) (coord TileCoordinate, localX, localY int) {
	coord = TileCoordinate{
		X: int(math.Floor(p.X / TileSize)),
		Y: int(math.Floor(p.Y / TileSize)),
	}
	localX = clampLocal(int(p.X - float64(coord.X)*TileSize))
	localY = clampLocal(int(p.Y - float64(coord.Y)*TileSize))
	return coord, localX, localY
}

func clampLocal(v int) int {
	if v < 0 {
		return 0
	}
	if v >= TileSize {
		return TileSize - 1
	}
	return v
}

// TilesInRadius returns every tile intersecting the square of half-side
// radius centred on center, row by row.
func TilesInRadius(center domain.ProjectedPoint, radius float64) []TileCoordinate {
	minX := int(math.Floor((center.X - radius) / TileSize))
	maxX := int(math.Floor((center.X + radius) / TileSize))
	minY := int(math.Floor((center.Y - radius) / TileSize))
	maxY := int(math.Floor((center.Y + radius) / TileSize))

	tiles := make([]TileCoordinate, 0, (maxX-minX+1)*(maxY-minY+1))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			tiles = append(tiles, TileCoordinate{X: x, Y: y})
		}
	}
	return tiles
}

// Tile is an immutable row-major grid of heights in centimetres.
type Tile struct {
	Coord   TileCoordinate
	samples []uint16
}

// NewTile validates the payload length and takes ownership of samples.
func NewTile(coord TileCoordinate, samples []uint16) (*Tile, error) {
	if len(samples) != SamplesPerTile {
		return nil, fmt.Errorf("tile %s: %w: %d samples, expected %d", coord, ErrCorruptTile, len(samples), SamplesPerTile)
	}
	return &Tile{Coord: coord, samples: samples}, nil
}

// ElevationAt returns the height in metres at the given offsets.
func (t *Tile) ElevationAt(localX, localY int) float64 {
	return float64(t.samples[localY*TileSize+localX]) / CentimetersPerMeter
}

// DecodeSamples decodes a little-endian uint16 payload.
func DecodeSamples(raw []byte) ([]uint16, error) {
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("%w: odd payload length %d", ErrCorruptTile, len(raw))
	}
	samples := make([]uint16, len(raw)/2)
	for i := range samples {
		samples[i] = binary.LittleEndian.Uint16(raw[2*i:])
	}
	return samples, nil
}

// EncodeSamples is the inverse of DecodeSamples.
func EncodeSamples(samples []uint16) []byte {
	raw := make([]byte, 2*len(samples))
	for i, v := range samples {
		binary.LittleEndian.PutUint16(raw[2*i:], v)
	}
	return raw
}
