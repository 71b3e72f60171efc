package raster

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Number of rows processed by a single worker at a time
const TileRows = 64

// Tile is a horizontal strip of rows [Y0, Y1)
type Tile struct {
	Y0, Y1 int
	Width  int
}

// Start returns the index of the first pixel in the tile
func (t Tile) Start() int {
	return t.Y0 * t.Width
}

// End returns one past the index of the last pixel in the tile
func (t Tile) End() int {
	return t.Y1 * t.Width
}

// Tiles splits the grid into disjoint strips that cover every row exactly once
func Tiles(g Grid) []Tile {
	tiles := []Tile{}
	for y := 0; y < g.Height; y += TileRows {
		tiles = append(tiles, Tile{Y0: y, Y1: min(y+TileRows, g.Height), Width: g.Width})
	}
	return tiles
}

// ForEachTile runs fn over every tile of the grid, in parallel.
// fn must only write to pixels inside its own tile.
// The first error aborts the remaining tiles and is returned.
func ForEachTile(g Grid, fn func(t Tile) error) error {
	var group errgroup.Group
	group.SetLimit(runtime.GOMAXPROCS(0))
	for _, t := range Tiles(g) {
		group.Go(func() error {
			return fn(t)
		})
	}
	return group.Wait()
}
