package analysis

import (
	"time"

	"github.com/cyclopcam/landcover/pkg/raster"
	"github.com/cyclopcam/landcover/pkg/render"
)

type LayerKind string

const (
	LayerStyled    LayerKind = "styled"    // Discrete intervals of RenderRequest.Style
	LayerRamp      LayerKind = "ramp"      // Continuous, through Layer.Vis
	LayerTrueColor LayerKind = "truecolor" // Three bands as RGB, stretched by Layer.Vis
)

// Layer is one raster to display
type Layer struct {
	Name    string           `json:"name"`
	Image   *raster.Image    `json:"-"`
	Kind    LayerKind        `json:"kind"`
	Bands   []string         `json:"bands"`
	Vis     render.VisParams `json:"vis"`
	Visible bool             `json:"visible"` // Shown by default
}

type ChartPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
	Valid bool      `json:"valid"` // False if the region had no valid pixels in this image
}

// Chart is a time series of the mean of a band over a region
type Chart struct {
	Title  string       `json:"title"`
	Band   string       `json:"band"`
	Points []ChartPoint `json:"points"`
}

type TimeLapse struct {
	Frames  []render.Frame    `json:"-"`
	Vis     render.VisParams  `json:"vis"`
	Options render.GIFOptions `json:"options"`
}

// RenderRequest is everything a presentation layer needs to display the result of a
// pipeline. The pipelines never draw anything themselves.
type RenderRequest struct {
	Layers    []*Layer       `json:"layers"`
	Legend    *render.Legend `json:"legend,omitempty"`
	Style     *render.Style  `json:"style,omitempty"`
	Charts    []*Chart       `json:"charts,omitempty"`
	TimeLapse *TimeLapse     `json:"timeLapse,omitempty"`
	Center    MapCenter      `json:"center"`
}

// Layer returns the layer with the given name, or nil
func (r *RenderRequest) Layer(name string) *Layer {
	for _, l := range r.Layers {
		if l.Name == name {
			return l
		}
	}
	return nil
}
