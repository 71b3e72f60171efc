package render

import (
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/landcover/pkg/raster"
	"github.com/fogleman/gg"
)

// Colorize paints a classified band with a style. Masked pixels, and values
// that fall outside every interval, are transparent.
func Colorize(grid raster.Grid, band *raster.Band, style *Style) (*image.RGBA, error) {
	colors := make([]color.RGBA, len(style.Intervals))
	for i, iv := range style.Intervals {
		c, err := ParseColor(iv.Color)
		if err != nil {
			return nil, err
		}
		colors[i] = c
	}
	img := image.NewRGBA(image.Rect(0, 0, grid.Width, grid.Height))
	for p, v := range band.Data {
		if !band.Valid(p) {
			continue
		}
		if idx := style.Lookup(float64(v)); idx >= 0 {
			img.SetRGBA(p%grid.Width, p/grid.Width, colors[idx])
		}
	}
	return img, nil
}

// RampImage paints a continuous band with a color ramp. Masked pixels are transparent.
func RampImage(grid raster.Grid, band *raster.Band, vis VisParams) (*image.RGBA, error) {
	ramp, err := NewRamp(vis)
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, grid.Width, grid.Height))
	for p, v := range band.Data {
		if band.Valid(p) {
			img.SetRGBA(p%grid.Width, p/grid.Width, ramp.At(float64(v)))
		}
	}
	return img, nil
}

func ColorizePNG(w io.Writer, grid raster.Grid, band *raster.Band, style *Style) error {
	img, err := Colorize(grid, band, style)
	if err != nil {
		return err
	}
	return gg.NewContextForRGBA(img).EncodePNG(w)
}

func RampPNG(w io.Writer, grid raster.Grid, band *raster.Band, vis VisParams) error {
	img, err := RampImage(grid, band, vis)
	if err != nil {
		return err
	}
	return gg.NewContextForRGBA(img).EncodePNG(w)
}

// TrueColorJPEG renders three bands (eg B4,B3,B2) as an RGB JPEG, stretching
// [vis.Min, vis.Max] to [0, 255]. Masked pixels are black.
// If maxDim > 0, the picture is shrunk so that neither side exceeds it.
func TrueColorJPEG(img *raster.Image, bands [3]string, vis VisParams, maxDim int) ([]byte, error) {
	if vis.Max <= vis.Min {
		return nil, fmt.Errorf("Stretch max %v must exceed min %v", vis.Max, vis.Min)
	}
	var src [3]*raster.Band
	for i, name := range bands {
		b, err := img.Band(name)
		if err != nil {
			return nil, err
		}
		src[i] = b
	}
	g := img.Grid
	rgb := cimg.NewImage(g.Width, g.Height, cimg.PixelFormatRGB)
	scale := 255 / (vis.Max - vis.Min)
	for y := 0; y < g.Height; y++ {
		line := rgb.Pixels[y*rgb.Stride : y*rgb.Stride+g.Width*3]
		for x := 0; x < g.Width; x++ {
			p := y*g.Width + x
			for c := 0; c < 3; c++ {
				if !src[c].Valid(p) {
					continue
				}
				v := (float64(src[c].Data[p]) - vis.Min) * scale
				line[x*3+c] = uint8(min(max(v, 0), 255) + 0.5)
			}
		}
	}
	if maxDim > 0 {
		if w, h := FitDimensions(g.Width, g.Height, maxDim); w != g.Width || h != g.Height {
			rgb = cimg.ResizeNew(rgb, w, h)
		}
	}
	return cimg.Compress(rgb, cimg.MakeCompressParams(cimg.Sampling420, 90, 0))
}

// FitDimensions scales (width,height) so that the longest side equals maxDim
func FitDimensions(width, height, maxDim int) (int, int) {
	if width >= height {
		return maxDim, max(1, (height*maxDim+width/2)/width)
	}
	return max(1, (width*maxDim+height/2)/height), maxDim
}

// LegendPNG draws a titled legend, with one swatch and name per row
func LegendPNG(w io.Writer, legend Legend) error {
	if len(legend.Palette) != len(legend.Names) {
		return fmt.Errorf("Legend has %v colors but %v names", len(legend.Palette), len(legend.Names))
	}
	const (
		pad    = 8
		rowH   = 22
		swatch = 16
	)
	longest := len(legend.Title)
	for _, n := range legend.Names {
		longest = max(longest, len(n))
	}
	width := pad*3 + swatch + longest*7
	height := pad*2 + rowH*(len(legend.Names)+1)
	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(legend.Title, pad, pad+rowH/2, 0, 0.5)
	for i, name := range legend.Names {
		c, err := ParseColor(legend.Palette[i])
		if err != nil {
			return err
		}
		y := float64(pad + rowH*(i+1))
		dc.SetColor(c)
		dc.DrawRectangle(pad, y+(rowH-swatch)/2, swatch, swatch)
		dc.Fill()
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(name, pad*2+swatch, y+rowH/2, 0, 0.5)
	}
	return dc.EncodePNG(w)
}
