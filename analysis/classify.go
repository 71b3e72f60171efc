package analysis

import (
	"context"
	"fmt"

	"github.com/cyclopcam/landcover/pkg/forest"
	"github.com/cyclopcam/landcover/pkg/raster"
)

// ClassBand is the name of the band produced by ClassifyImage
const ClassBand = "classification"

// ClassifyImage predicts a class for every pixel of img. The bands of img are the
// predictors, in the order that the forest was trained on. Pixels where any
// predictor is masked are masked in the output.
func ClassifyImage(ctx context.Context, f *forest.Forest, img *raster.Image) (*raster.Image, error) {
	if len(img.Bands) != f.NumFeatures {
		return nil, fmt.Errorf("Classifier expects %v bands, but image has %v: %w", f.NumFeatures, len(img.Bands), raster.ErrBandMismatch)
	}
	out := raster.NewBand(ClassBand, img.Grid.NumPixels(), true)
	err := raster.ForEachTile(img.Grid, func(t raster.Tile) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		x := make([]float64, 0, len(img.Bands))
		for p := t.Start(); p < t.End(); p++ {
			var ok bool
			x, ok = img.ValuesAt(p, x)
			if ok {
				out.Set(p, float32(f.Predict(x)), true)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result, err := raster.NewImage(img.Grid, out)
	if err != nil {
		return nil, err
	}
	result.Time = img.Time
	return result, nil
}
