// Package raster is an in-memory multi-band image model, with per-band validity masks,
// and the per-pixel and temporal operations that the analysis pipelines are built from.
package raster

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/chewxy/math32"
	"github.com/cyclopcam/landcover/pkg/geo"
)

var ErrMissingBand = errors.New("Band not found")
var ErrEmptyCollection = errors.New("Collection is empty")
var ErrGridMismatch = errors.New("Images are not on the same grid")
var ErrBandMismatch = errors.New("Images do not have compatible bands")
var ErrOutsideGrid = errors.New("Region does not overlap the grid")

// Band is a single channel of an image.
// Data is row-major, Width*Height. Mask is nil when every pixel is valid.
// Masked pixels always hold zero.
// Bands are shared between images, so they must never be modified after construction.
type Band struct {
	Name string
	Data []float32
	Mask []bool
}

// Image is a stack of bands on a common grid.
// Every operation on an Image returns a new Image.
type Image struct {
	Grid  Grid
	Bands []*Band
	Time  time.Time
	Props map[string]string
}

func NewBand(name string, n int, withMask bool) *Band {
	b := &Band{
		Name: name,
		Data: make([]float32, n),
	}
	if withMask {
		b.Mask = make([]bool, n)
	}
	return b
}

// NewImage creates an image from existing bands. All bands must be Width*Height long.
func NewImage(grid Grid, bands ...*Band) (*Image, error) {
	n := grid.NumPixels()
	for _, b := range bands {
		if len(b.Data) != n || (b.Mask != nil && len(b.Mask) != n) {
			return nil, fmt.Errorf("Band %v has %v pixels, but grid has %v: %w", b.Name, len(b.Data), n, ErrGridMismatch)
		}
	}
	return &Image{
		Grid:  grid,
		Bands: bands,
	}, nil
}

func (b *Band) Valid(i int) bool {
	return b.Mask == nil || b.Mask[i]
}

// Set writes a value, marking the pixel invalid if v is not finite.
// The band must have a mask.
func (b *Band) Set(i int, v float32, valid bool) {
	if !valid || math32.IsNaN(v) || math32.IsInf(v, 0) {
		b.Data[i] = 0
		b.Mask[i] = false
		return
	}
	b.Data[i] = v
	b.Mask[i] = true
}

// CountValid returns the number of unmasked pixels
func (b *Band) CountValid() int {
	if b.Mask == nil {
		return len(b.Data)
	}
	n := 0
	for _, m := range b.Mask {
		if m {
			n++
		}
	}
	return n
}

// withMask returns a copy of the band, with validity set to (existing AND keep)
func (b *Band) withMask(keep func(i int) bool) *Band {
	nb := NewBand(b.Name, len(b.Data), true)
	for i, v := range b.Data {
		if b.Valid(i) && keep(i) {
			nb.Data[i] = v
			nb.Mask[i] = true
		}
	}
	return nb
}

func (img *Image) shallowCopy() *Image {
	c := *img
	c.Bands = nil
	if img.Props != nil {
		c.Props = make(map[string]string, len(img.Props))
		for k, v := range img.Props {
			c.Props[k] = v
		}
	}
	return &c
}

func (img *Image) BandNames() []string {
	names := make([]string, len(img.Bands))
	for i, b := range img.Bands {
		names[i] = b.Name
	}
	return names
}

// Band returns the band with the given name
func (img *Image) Band(name string) (*Band, error) {
	for _, b := range img.Bands {
		if b.Name == name {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrMissingBand, name)
}

// Select returns an image with only the named bands, in the order given
func (img *Image) Select(names ...string) (*Image, error) {
	out := img.shallowCopy()
	for _, n := range names {
		b, err := img.Band(n)
		if err != nil {
			return nil, err
		}
		out.Bands = append(out.Bands, b)
	}
	return out, nil
}

// SelectMatching returns the bands whose entire name matches the regular expression,
// in their original order. It is an error if no band matches.
func (img *Image) SelectMatching(pattern string) (*Image, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, err
	}
	out := img.shallowCopy()
	for _, b := range img.Bands {
		if re.MatchString(b.Name) {
			out.Bands = append(out.Bands, b)
		}
	}
	if len(out.Bands) == 0 {
		return nil, fmt.Errorf("%w: no band matches %v", ErrMissingBand, pattern)
	}
	return out, nil
}

// Rename returns an image with its bands renamed. len(names) must equal the number of bands.
func (img *Image) Rename(names ...string) (*Image, error) {
	if len(names) != len(img.Bands) {
		return nil, fmt.Errorf("%w: %v names for %v bands", ErrBandMismatch, len(names), len(img.Bands))
	}
	out := img.shallowCopy()
	for i, b := range img.Bands {
		nb := *b
		nb.Name = names[i]
		out.Bands = append(out.Bands, &nb)
	}
	return out, nil
}

// AddBands returns an image with extra bands appended. A band with the same name as
// an existing band replaces it.
func (img *Image) AddBands(bands ...*Band) (*Image, error) {
	out := img.shallowCopy()
	out.Bands = append(out.Bands, img.Bands...)
	n := img.Grid.NumPixels()
	for _, b := range bands {
		if len(b.Data) != n {
			return nil, fmt.Errorf("Band %v: %w", b.Name, ErrGridMismatch)
		}
		replaced := false
		for i, existing := range out.Bands {
			if existing.Name == b.Name {
				out.Bands[i] = b
				replaced = true
			}
		}
		if !replaced {
			out.Bands = append(out.Bands, b)
		}
	}
	return out, nil
}

// WithTime returns a copy of the image with a new timestamp
func (img *Image) WithTime(t time.Time) *Image {
	out := img.shallowCopy()
	out.Bands = img.Bands
	out.Time = t
	return out
}

// UpdateMask invalidates every pixel where mask is zero or masked.
// The mask band must be on the same grid as the image.
func (img *Image) UpdateMask(mask *Band) (*Image, error) {
	if len(mask.Data) != img.Grid.NumPixels() {
		return nil, ErrGridMismatch
	}
	return img.maskWhere(func(i int) bool {
		return mask.Valid(i) && mask.Data[i] != 0
	}), nil
}

// SelfMask invalidates every pixel whose value is zero, per band
func (img *Image) SelfMask() *Image {
	out := img.shallowCopy()
	for _, b := range img.Bands {
		out.Bands = append(out.Bands, b.withMask(func(i int) bool { return b.Data[i] != 0 }))
	}
	return out
}

// Clip invalidates every pixel whose centre lies outside of the geometry
func (img *Image) Clip(geom geo.Geometry) *Image {
	inside := make([]bool, img.Grid.NumPixels())
	for _, i := range img.Grid.PixelsCovering(geom) {
		inside[i] = true
	}
	return img.maskWhere(func(i int) bool { return inside[i] })
}

func (img *Image) maskWhere(keep func(i int) bool) *Image {
	out := img.shallowCopy()
	for _, b := range img.Bands {
		out.Bands = append(out.Bands, b.withMask(keep))
	}
	return out
}

// MapBands applies fn to every valid pixel of every band.
// If fn returns false, or a non-finite value, the output pixel is invalid.
func (img *Image) MapBands(fn func(v float32) (float32, bool)) *Image {
	out := img.shallowCopy()
	for _, b := range img.Bands {
		nb := NewBand(b.Name, len(b.Data), true)
		for i, v := range b.Data {
			if !b.Valid(i) {
				continue
			}
			r, ok := fn(v)
			nb.Set(i, r, ok)
		}
		out.Bands = append(out.Bands, nb)
	}
	return out
}

// DivideScalar divides every band by d
func (img *Image) DivideScalar(d float32) *Image {
	return img.MapBands(func(v float32) (float32, bool) { return v / d, true })
}

// Expression computes a new band from the named input bands.
// The output pixel is invalid if any input is invalid, or if fn returns false,
// or if the result is not finite.
func (img *Image) Expression(name string, inputs []string, fn func(v []float32) (float32, bool)) (*Band, error) {
	src := make([]*Band, len(inputs))
	for i, n := range inputs {
		b, err := img.Band(n)
		if err != nil {
			return nil, err
		}
		src[i] = b
	}
	out := NewBand(name, img.Grid.NumPixels(), true)
	err := ForEachTile(img.Grid, func(t Tile) error {
		v := make([]float32, len(src))
		for i := t.Start(); i < t.End(); i++ {
			valid := true
			for j, b := range src {
				if !b.Valid(i) {
					valid = false
					break
				}
				v[j] = b.Data[i]
			}
			if !valid {
				continue
			}
			r, ok := fn(v)
			out.Set(i, r, ok)
		}
		return nil
	})
	return out, err
}

// ValuesAt returns the value of every band at pixel index i.
// Returns false if any band is masked at that pixel.
func (img *Image) ValuesAt(i int, dst []float64) ([]float64, bool) {
	dst = dst[:0]
	for _, b := range img.Bands {
		if !b.Valid(i) {
			return dst, false
		}
		dst = append(dst, float64(b.Data[i]))
	}
	return dst, true
}

// RegionMean returns the mean of the valid pixels of a band that the geometry covers.
// Returns false if there are no valid pixels.
func (img *Image) RegionMean(band string, geom geo.Geometry) (float64, bool, error) {
	b, err := img.Band(band)
	if err != nil {
		return 0, false, err
	}
	sum := 0.0
	n := 0
	for _, i := range img.Grid.PixelsCovering(geom) {
		if b.Valid(i) {
			sum += float64(b.Data[i])
			n++
		}
	}
	if n == 0 {
		return 0, false, nil
	}
	return sum / float64(n), true, nil
}

// Crop returns the smallest window of the image that covers bounds.
// The grid must be north-up.
func (img *Image) Crop(bounds geo.Bounds) (*Image, error) {
	g := img.Grid
	if bounds.IsEmpty() || !bounds.Intersects(g.Bounds()) {
		return nil, ErrOutsideGrid
	}
	res := g.Resolution()
	px0 := max(int(math.Floor((bounds.MinX-g.GeoTransform[0])/res)), 0)
	px1 := min(int(math.Ceil((bounds.MaxX-g.GeoTransform[0])/res)), g.Width)
	py0 := max(int(math.Floor((g.GeoTransform[3]-bounds.MaxY)/res)), 0)
	py1 := min(int(math.Ceil((g.GeoTransform[3]-bounds.MinY)/res)), g.Height)
	// A zero width region still covers the pixel it touches
	px1 = max(px1, min(px0+1, g.Width))
	py1 = max(py1, min(py0+1, g.Height))
	if px1 <= px0 || py1 <= py0 {
		return nil, ErrOutsideGrid
	}
	cg := g
	cg.Width = px1 - px0
	cg.Height = py1 - py0
	cg.GeoTransform[0] = g.GeoTransform[0] + float64(px0)*g.GeoTransform[1]
	cg.GeoTransform[3] = g.GeoTransform[3] + float64(py0)*g.GeoTransform[5]

	out := img.shallowCopy()
	out.Grid = cg
	for _, b := range img.Bands {
		nb := NewBand(b.Name, cg.NumPixels(), b.Mask != nil)
		for y := 0; y < cg.Height; y++ {
			src := (py0+y)*g.Width + px0
			dst := y * cg.Width
			copy(nb.Data[dst:dst+cg.Width], b.Data[src:src+cg.Width])
			if b.Mask != nil {
				copy(nb.Mask[dst:dst+cg.Width], b.Mask[src:src+cg.Width])
			}
		}
		out.Bands = append(out.Bands, nb)
	}
	return out, nil
}
