package terrain

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// DiskCache keeps fetched tiles as zstd-compressed files so a restart does
// not refetch the operating area from the tile server.
type DiskCache struct {
	dir string
}

func NewDiskCache(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tile cache dir: %w", err)
	}
	return &DiskCache{dir: dir}, nil
}

func (d *DiskCache) Dir() string {
	return d.dir
}

func (d *DiskCache) path(coord TileCoordinate) string {
	return filepath.Join(d.dir, fmt.Sprintf("tile_%s.bin.zst", coord))
}

// Load returns the cached samples, or an error wrapping os.ErrNotExist on
// a miss.
func (d *DiskCache) Load(coord TileCoordinate) ([]uint16, error) {
	f, err := os.Open(d.path(coord))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	return DecodeSamples(raw)
}

// Save writes samples through a temp file and rename, so readers never see
// a partial tile.
func (d *DiskCache) Save(coord TileCoordinate, samples []uint16) error {
	path := d.path(coord)
	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		f.Close()
		_ = os.Remove(tmpPath)
		return err
	}

	_, writeErr := zw.Write(EncodeSamples(samples))
	closeErr := zw.Close()
	fileCloseErr := f.Close()
	if err := errors.Join(writeErr, closeErr, fileCloseErr); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// Remove drops a cached tile; a missing file is not an error.
func (d *DiskCache) Remove(coord TileCoordinate) error {
	err := os.Remove(d.path(coord))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
