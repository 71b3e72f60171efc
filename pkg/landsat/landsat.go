// Package landsat knows about Landsat 8 Collection 1 Surface Reflectance products:
// band names, the pixel_qa bit layout, and derived indices.
package landsat

import (
	"fmt"

	"github.com/cyclopcam/landcover/pkg/raster"
)

// Band names of the L8 SR product
const (
	BandCoastal = "B1"
	BandBlue    = "B2"
	BandGreen   = "B3"
	BandRed     = "B4"
	BandNIR     = "B5"
	BandSWIR1   = "B6"
	BandSWIR2   = "B7"
	BandTIR1    = "B10"
	BandTIR2    = "B11"
	BandQA      = "pixel_qa"
	BandEVI     = "EVI"
)

// Bits of pixel_qa
const (
	QACloudShadowBit = 3
	QACloudBit       = 5
)

// Surface reflectance is stored as integers, scaled by this amount
const ReflectanceScale = 10000

// AllBands are the spectral bands of the product, in order
var AllBands = []string{BandCoastal, BandBlue, BandGreen, BandRed, BandNIR, BandSWIR1, BandSWIR2, BandTIR1, BandTIR2}

// DefaultPredictors are the bands used to train the land cover classifier
var DefaultPredictors = []string{BandGreen, BandRed, BandNIR, BandSWIR1, BandSWIR2}

// IsClear returns true if neither the cloud nor the cloud shadow bit is set
func IsClear(qa uint16) bool {
	return qa&(1<<QACloudShadowBit) == 0 && qa&(1<<QACloudBit) == 0
}

// MaskClouds removes cloud and cloud shadow pixels from a scene.
// The result holds only the spectral bands, rescaled to reflectance [0..1].
// Time and properties are carried over from the input.
func MaskClouds(img *raster.Image) (*raster.Image, error) {
	qa, err := img.Band(BandQA)
	if err != nil {
		return nil, err
	}
	clearMask := raster.NewBand("clear", len(qa.Data), false)
	for i, v := range qa.Data {
		if qa.Valid(i) && IsClear(uint16(v)) {
			clearMask.Data[i] = 1
		}
	}
	masked, err := img.UpdateMask(clearMask)
	if err != nil {
		return nil, err
	}
	spectral, err := masked.SelectMatching("B[0-9]*")
	if err != nil {
		return nil, fmt.Errorf("Scene has no spectral bands: %w", err)
	}
	return spectral.DivideScalar(ReflectanceScale), nil
}

// EVI adds the Enhanced Vegetation Index as a new band named "EVI":
//
//	EVI = 2.5 * (NIR - RED) / (NIR + 6*RED - 7.5*BLUE + 1)
//
// Input bands must already be scaled to reflectance.
// Pixels where the denominator is zero are invalid.
func EVI(img *raster.Image) (*raster.Image, error) {
	evi, err := img.Expression(BandEVI, []string{BandNIR, BandRed, BandBlue}, func(v []float32) (float32, bool) {
		return EVIValue(v[0], v[1], v[2])
	})
	if err != nil {
		return nil, err
	}
	return img.AddBands(evi)
}

// EVIValue computes EVI for a single pixel, returning false if it is undefined
func EVIValue(nir, red, blue float32) (float32, bool) {
	den := nir + 6*red - 7.5*blue + 1
	if den == 0 {
		return 0, false
	}
	return 2.5 * (nir - red) / den, true
}
