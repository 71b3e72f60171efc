package raster

import "fmt"

// Combine applies a binary per-pixel operation to two images, band by band (by position).
// If b has a single band, it is applied against every band of a.
// The output takes its band names, time and properties from a.
func Combine(a, b *Image, op func(x, y float32) (float32, bool)) (*Image, error) {
	if !a.Grid.Equal(b.Grid) {
		return nil, ErrGridMismatch
	}
	if len(b.Bands) != 1 && len(b.Bands) != len(a.Bands) {
		return nil, fmt.Errorf("%w: %v and %v bands", ErrBandMismatch, len(a.Bands), len(b.Bands))
	}
	out := a.shallowCopy()
	for i, ba := range a.Bands {
		bb := b.Bands[0]
		if len(b.Bands) != 1 {
			bb = b.Bands[i]
		}
		nb := NewBand(ba.Name, len(ba.Data), true)
		err := ForEachTile(a.Grid, func(t Tile) error {
			for p := t.Start(); p < t.End(); p++ {
				if !ba.Valid(p) || !bb.Valid(p) {
					continue
				}
				r, ok := op(ba.Data[p], bb.Data[p])
				nb.Set(p, r, ok)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		out.Bands = append(out.Bands, nb)
	}
	return out, nil
}

// Subtract returns a - b
func Subtract(a, b *Image) (*Image, error) {
	return Combine(a, b, func(x, y float32) (float32, bool) { return x - y, true })
}

// Divide returns a / b. Division by zero produces an invalid pixel.
func Divide(a, b *Image) (*Image, error) {
	return Combine(a, b, func(x, y float32) (float32, bool) { return x / y, y != 0 })
}

// Blend overlays top onto base. Wherever top is valid, its value wins.
// Elsewhere the base value is kept. The output is valid wherever either input is valid.
// Band names, time and properties come from base.
func Blend(base, top *Image) (*Image, error) {
	if !base.Grid.Equal(top.Grid) {
		return nil, ErrGridMismatch
	}
	if len(base.Bands) != len(top.Bands) {
		return nil, fmt.Errorf("%w: cannot blend %v bands over %v", ErrBandMismatch, len(top.Bands), len(base.Bands))
	}
	out := base.shallowCopy()
	for i, bb := range base.Bands {
		tb := top.Bands[i]
		nb := NewBand(bb.Name, len(bb.Data), true)
		for p := range bb.Data {
			if tb.Valid(p) {
				nb.Data[p] = tb.Data[p]
				nb.Mask[p] = true
			} else if bb.Valid(p) {
				nb.Data[p] = bb.Data[p]
				nb.Mask[p] = true
			}
		}
		out.Bands = append(out.Bands, nb)
	}
	return out, nil
}
