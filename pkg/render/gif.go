package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"io"

	"github.com/cyclopcam/landcover/pkg/raster"
	"github.com/fogleman/gg"
)

// Frame is one picture of a time-lapse
type Frame struct {
	Grid  raster.Grid
	Band  *raster.Band
	Label string // drawn at the bottom of the frame, eg "2016"
}

type GIFOptions struct {
	FramesPerSecond float64 `json:"framesPerSecond"`
	Dimensions      int     `json:"dimensions"` // length of the longest side, in pixels
	LabelOffset     float64 `json:"labelOffset"` // distance of the label from the bottom edge, as a fraction of the height
}

func DefaultGIFOptions() GIFOptions {
	return GIFOptions{
		FramesPerSecond: 2,
		Dimensions:      800,
		LabelOffset:     0.1,
	}
}

// TimeLapseGIF renders each frame through the color ramp, labels it, and writes an
// endlessly looping animation. Masked pixels are transparent.
func TimeLapseGIF(w io.Writer, frames []Frame, vis VisParams, opt GIFOptions) error {
	if len(frames) == 0 {
		return fmt.Errorf("No frames for time-lapse")
	}
	if opt.FramesPerSecond <= 0 {
		return fmt.Errorf("Invalid frames per second %v", opt.FramesPerSecond)
	}
	ramp, err := NewRamp(vis)
	if err != nil {
		return err
	}
	pal := rampPalette(ramp)
	delay := int(100/opt.FramesPerSecond + 0.5)
	anim := &gif.GIF{}
	for _, f := range frames {
		rgba, err := RampImage(f.Grid, f.Band, vis)
		if err != nil {
			return err
		}
		annotated := annotate(rgba, f.Label, opt)
		paletted := image.NewPaletted(annotated.Bounds(), pal)
		draw.Draw(paletted, paletted.Bounds(), annotated, image.Point{}, draw.Src)
		anim.Image = append(anim.Image, paletted)
		anim.Delay = append(anim.Delay, delay)
	}
	return gif.EncodeAll(w, anim)
}

// annotate scales src to the output size and draws the label near the bottom
func annotate(src *image.RGBA, label string, opt GIFOptions) image.Image {
	sw, sh := src.Bounds().Dx(), src.Bounds().Dy()
	w, h := sw, sh
	if opt.Dimensions > 0 {
		w, h = FitDimensions(sw, sh, opt.Dimensions)
	}
	dc := gg.NewContext(w, h)
	dc.Push()
	dc.Scale(float64(w)/float64(sw), float64(h)/float64(sh))
	dc.DrawImage(src, 0, 0)
	dc.Pop()

	if label != "" {
		x := float64(w) / 2
		y := float64(h) * (1 - opt.LabelOffset)
		// The built-in face is 13px high, so scale it up for large frames
		s := max(1, float64(h)/200)
		dc.ScaleAbout(s, s, x, y)
		dc.SetRGB(1, 1, 1)
		for _, d := range [][2]float64{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
			dc.DrawStringAnchored(label, x+d[0], y+d[1], 0.5, 0.5)
		}
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(label, x, y, 0.5, 0.5)
	}
	return dc.Image()
}

// rampPalette holds transparent, black, white, and 253 samples of the ramp
func rampPalette(r *Ramp) color.Palette {
	pal := color.Palette{color.RGBA{}, color.RGBA{0, 0, 0, 255}, color.RGBA{255, 255, 255, 255}}
	n := 256 - len(pal)
	for i := 0; i < n; i++ {
		v := r.min + (r.max-r.min)*float64(i)/float64(n-1)
		pal = append(pal, r.At(v))
	}
	return pal
}
