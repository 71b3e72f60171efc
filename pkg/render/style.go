// Package render turns analysis rasters into pictures: classified maps styled by
// discrete intervals, continuous ramps, true colour previews, legends and time-lapses.
package render

import (
	"encoding/xml"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
)

// Interval colors the values v where Min < v <= Max
type Interval struct {
	Color string  `json:"color"` // hex, without '#'
	Name  string  `json:"name"`
	Min   float64 `json:"min"` // exclusive. -Inf for the first interval
	Max   float64 `json:"max"` // inclusive
}

// Style is an ordered list of non-overlapping intervals
type Style struct {
	Intervals []Interval `json:"intervals"`
}

// ColorMapEntry is one entry of an SLD "intervals" color map.
// It colors values above the previous entry's quantity, up to and including its own.
type ColorMapEntry struct {
	Color    string  `json:"color"`
	Quantity float64 `json:"quantity"`
	Label    string  `json:"label"`
}

// NewIntervalStyle builds a style from color map entries, which must be in ascending order of Quantity
func NewIntervalStyle(entries []ColorMapEntry) (*Style, error) {
	s := &Style{}
	prev := math.Inf(-1)
	for _, e := range entries {
		if e.Quantity <= prev {
			return nil, fmt.Errorf("Color map quantities must be increasing, but %v follows %v", e.Quantity, prev)
		}
		if _, err := ParseColor(e.Color); err != nil {
			return nil, err
		}
		s.Intervals = append(s.Intervals, Interval{
			Color: strings.TrimPrefix(e.Color, "#"),
			Name:  e.Label,
			Min:   prev,
			Max:   e.Quantity,
		})
		prev = e.Quantity
	}
	return s, nil
}

// Lookup returns the index of the interval containing v, or -1
func (s *Style) Lookup(v float64) int {
	for i, iv := range s.Intervals {
		if v > iv.Min && v <= iv.Max {
			return i
		}
	}
	return -1
}

// Legend returns the palette and names of the style, in order
func (s *Style) Legend() Legend {
	l := Legend{}
	for _, iv := range s.Intervals {
		l.Palette = append(l.Palette, iv.Color)
		l.Names = append(l.Names, iv.Name)
	}
	return l
}

type sldColorMapEntry struct {
	Color    string `xml:"color,attr"`
	Quantity string `xml:"quantity,attr"`
	Label    string `xml:"label,attr"`
}

type sldRasterSymbolizer struct {
	XMLName  xml.Name `xml:"RasterSymbolizer"`
	ColorMap struct {
		Type    string             `xml:"type,attr"`
		Entries []sldColorMapEntry `xml:"ColorMapEntry"`
	} `xml:"ColorMap"`
}

// SLD returns the style as an SLD RasterSymbolizer with an "intervals" color map
func (s *Style) SLD() string {
	sym := sldRasterSymbolizer{}
	sym.ColorMap.Type = "intervals"
	for _, iv := range s.Intervals {
		sym.ColorMap.Entries = append(sym.ColorMap.Entries, sldColorMapEntry{
			Color:    "#" + iv.Color,
			Quantity: strconv.FormatFloat(iv.Max, 'f', -1, 64),
			Label:    iv.Name,
		})
	}
	b, _ := xml.Marshal(&sym)
	return string(b)
}

// Legend is a palette and matching class names
type Legend struct {
	Title   string   `json:"title"`
	Palette []string `json:"palette"`
	Names   []string `json:"names"`
}

var namedColors = map[string]color.RGBA{
	"white":  {255, 255, 255, 255},
	"black":  {0, 0, 0, 255},
	"red":    {255, 0, 0, 255},
	"green":  {0, 128, 0, 255},
	"blue":   {0, 0, 255, 255},
	"yellow": {255, 255, 0, 255},
}

// ParseColor parses "RRGGBB", "#RRGGBB", or one of a few CSS color names
func ParseColor(s string) (color.RGBA, error) {
	if c, ok := namedColors[strings.ToLower(s)]; ok {
		return c, nil
	}
	h := strings.TrimPrefix(s, "#")
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("Invalid color '%v'", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("Invalid color '%v'", s)
	}
	return color.RGBA{uint8(v >> 16), uint8(v >> 8), uint8(v), 255}, nil
}

func mustParseColors(palette []string) ([]color.RGBA, error) {
	out := make([]color.RGBA, len(palette))
	for i, p := range palette {
		c, err := ParseColor(p)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}
