package render

import (
	"fmt"
	"image/color"
)

// VisParams maps a continuous band onto a color ramp.
// Values at or below Min get the first color, and values at or above Max get the last.
type VisParams struct {
	Min     float64  `json:"min"`
	Max     float64  `json:"max"`
	Palette []string `json:"palette"`
}

// Ramp is a compiled VisParams
type Ramp struct {
	min, max float64
	colors   []color.RGBA
}

func NewRamp(vis VisParams) (*Ramp, error) {
	if len(vis.Palette) == 0 {
		return nil, fmt.Errorf("Palette is empty")
	}
	if vis.Max <= vis.Min {
		return nil, fmt.Errorf("Ramp max %v must exceed min %v", vis.Max, vis.Min)
	}
	colors, err := mustParseColors(vis.Palette)
	if err != nil {
		return nil, err
	}
	return &Ramp{min: vis.Min, max: vis.Max, colors: colors}, nil
}

// At linearly interpolates between the palette entries
func (r *Ramp) At(v float64) color.RGBA {
	if len(r.colors) == 1 {
		return r.colors[0]
	}
	t := (v - r.min) / (r.max - r.min)
	t = min(max(t, 0), 1)
	pos := t * float64(len(r.colors)-1)
	i := min(int(pos), len(r.colors)-2)
	f := pos - float64(i)
	a, b := r.colors[i], r.colors[i+1]
	lerp := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*f + 0.5)
	}
	return color.RGBA{lerp(a.R, b.R), lerp(a.G, b.G), lerp(a.B, b.B), 255}
}
