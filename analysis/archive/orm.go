package archive

import (
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/landcover/pkg/geo"
)

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

// Scene is one acquisition of a collection, eg a single Landsat 8 SR scene, or a
// single year of an impervious surface layer.
// Each band is stored as a separate single band raster in blob storage.
type Scene struct {
	BaseModel
	Collection string                            `json:"collection"`
	SceneID    string                            `json:"sceneID"` // Provider's identifier, eg LC08_012030_20160704
	Acquired   dbh.IntTime                       `json:"acquired"`
	MinX       float64                           `json:"minX"` // Footprint, in the grid CRS
	MinY       float64                           `json:"minY"`
	MaxX       float64                           `json:"maxX"`
	MaxY       float64                           `json:"maxY"`
	Bands      *dbh.JSONField[map[string]string] `json:"bands"` // Band name to blob key
}

func (s *Scene) Bounds() geo.Bounds {
	return geo.Bounds{MinX: s.MinX, MinY: s.MinY, MaxX: s.MaxX, MaxY: s.MaxY}
}

// BandKey returns the blob key of a band, or "" if the scene doesn't have it
func (s *Scene) BandKey(band string) string {
	if s.Bands == nil {
		return ""
	}
	return s.Bands.Data[band]
}
