package analysis

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/cyclopcam/landcover/pkg/geo"
	"github.com/cyclopcam/landcover/pkg/raster"
	"github.com/cyclopcam/logs"
)

// LabeledFeature is a ground truth geometry with its class code
type LabeledFeature struct {
	Geometry geo.Geometry
	Label    int
}

// LoadLabeledSet reads the ground truth samples of one class.
// The label comes from the feature's classProperty, and otherwise from cls.Code.
func LoadLabeledSet(cls ClassSamples, classProperty string) ([]LabeledFeature, error) {
	features, err := geo.LoadFeatures(cls.File)
	if err != nil {
		return nil, fmt.Errorf("Failed to load %v samples: %w", cls.Name, err)
	}
	return LabelFeatures(features, classProperty, cls.Code)
}

// LabelFeatures attaches a class code to each feature
func LabelFeatures(features []*geo.Feature, classProperty string, defaultCode int) ([]LabeledFeature, error) {
	out := make([]LabeledFeature, 0, len(features))
	for _, f := range features {
		label := defaultCode
		if v, ok := f.PropertyFloat(classProperty); ok {
			label = int(v)
		}
		if label == 0 {
			return nil, fmt.Errorf("Feature %v has no '%v' property, and no default class code", f.ID, classProperty)
		}
		out = append(out, LabeledFeature{Geometry: f.Geometry, Label: label})
	}
	return out, nil
}

// SampleRow is one pixel of training data
type SampleRow struct {
	Values []float64 `json:"values"` // One per band
	Label  int       `json:"label"`
	Random float64   `json:"random"`
}

// SampleTable is a set of labeled pixel values
type SampleTable struct {
	Bands []string     `json:"bands"`
	Rows  []*SampleRow `json:"rows"`
}

// SampleRegions extracts the value of every band of img under each feature.
// A point samples the pixel it falls in, and a polygon samples every pixel whose centre
// is inside it. Pixels where any band is masked are skipped.
// scale must equal the resolution of the image's grid.
func SampleRegions(log logs.Log, img *raster.Image, features []LabeledFeature, scale float64) (*SampleTable, error) {
	if math.Abs(img.Grid.Resolution()-scale) > 1e-9*scale {
		return nil, fmt.Errorf("Sampling scale %v does not match image resolution %v", scale, img.Grid.Resolution())
	}
	table := &SampleTable{Bands: img.BandNames()}
	skipped := 0
	for _, f := range features {
		pixels := img.Grid.PixelsCovering(f.Geometry)
		if len(pixels) == 0 {
			skipped++
			continue
		}
		for _, p := range pixels {
			values, ok := img.ValuesAt(p, make([]float64, 0, len(img.Bands)))
			if !ok {
				continue
			}
			table.Rows = append(table.Rows, &SampleRow{Values: values, Label: f.Label})
		}
	}
	if skipped != 0 {
		log.Warnf("%v of %v sample features do not cover any pixel of the grid", skipped, len(features))
	}
	return table, nil
}

// NewRand returns a seeded random source, or a time-seeded one if seed is nil
func NewRand(seed *uint64) *rand.Rand {
	if seed == nil {
		return rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	return rand.New(rand.NewPCG(*seed, 0))
}

// RandomColumn assigns each row an independent uniform value in [0,1)
func (t *SampleTable) RandomColumn(rng *rand.Rand) {
	for _, r := range t.Rows {
		r.Random = rng.Float64()
	}
}

// Split partitions the rows on their random value: < threshold goes to training,
// and >= threshold goes to testing.
func (t *SampleTable) Split(threshold float64) (training, testing *SampleTable) {
	training = &SampleTable{Bands: t.Bands}
	testing = &SampleTable{Bands: t.Bands}
	for _, r := range t.Rows {
		if r.Random < threshold {
			training.Rows = append(training.Rows, r)
		} else {
			testing.Rows = append(testing.Rows, r)
		}
	}
	return
}

// Matrix returns the feature matrix and label vector
func (t *SampleTable) Matrix() ([][]float64, []int) {
	X := make([][]float64, len(t.Rows))
	y := make([]int, len(t.Rows))
	for i, r := range t.Rows {
		X[i] = r.Values
		y[i] = r.Label
	}
	return X, y
}

func (t *SampleTable) Len() int {
	return len(t.Rows)
}
