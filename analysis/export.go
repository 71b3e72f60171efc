package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/cyclopcam/landcover/pkg/geo"
	"github.com/cyclopcam/landcover/pkg/gtiff"
	"github.com/cyclopcam/landcover/pkg/raster"
	"github.com/cyclopcam/landcover/pkg/storage"
)

var ErrTooManyPixels = errors.New("Export exceeds the maximum number of pixels")

type ExportParams struct {
	Scale     float64      `json:"scale"`     // Must match the grid resolution
	MaxPixels int64        `json:"maxPixels"` // Per band
	Region    geo.Geometry `json:"-"`         // If not nil, the export is cropped to this region
}

func DefaultExportParams() ExportParams {
	return ExportParams{
		Scale:     30,
		MaxPixels: 1e9,
	}
}

// ExportImage writes img to the store as a Float32 GeoTIFF named name, and returns the
// size of the file. The write is bounded by ctx, so callers should attach a timeout.
func ExportImage(ctx context.Context, store storage.Storage, img *raster.Image, name string, params ExportParams) (int64, error) {
	if params.Scale != 0 && math.Abs(img.Grid.Resolution()-params.Scale) > 1e-9*params.Scale {
		return 0, fmt.Errorf("Export scale %v does not match image resolution %v", params.Scale, img.Grid.Resolution())
	}
	if params.Region != nil {
		var err error
		img, err = img.Clip(params.Region).Crop(params.Region.Bounds())
		if err != nil {
			return 0, err
		}
	}
	if params.MaxPixels > 0 && int64(img.Grid.NumPixels()) > params.MaxPixels {
		return 0, fmt.Errorf("%w: %v x %v > %v", ErrTooManyPixels, img.Grid.Width, img.Grid.Height, params.MaxPixels)
	}

	tmpDir, err := os.MkdirTemp("", "landcover-export-")
	if err != nil {
		return 0, err
	}
	defer os.RemoveAll(tmpDir)
	tmpFile := filepath.Join(tmpDir, filepath.Base(name))
	if err := gtiff.Write(tmpFile, img); err != nil {
		return 0, err
	}
	f, err := os.Open(tmpFile)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if err := storage.WriteFile(ctx, store, name, f); err != nil {
		return 0, fmt.Errorf("Failed to upload %v: %w", name, err)
	}
	return st.Size(), nil
}
