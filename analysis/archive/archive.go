// Package archive is a catalog of the scenes that we have in blob storage.
// The catalog lives in a SQL database, and the band files are fetched through a
// local cache and warped onto the analysis grid when they are loaded.
package archive

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/bmharper/flatbush-go"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/landcover/pkg/geo"
	"github.com/cyclopcam/landcover/pkg/gtiff"
	"github.com/cyclopcam/landcover/pkg/raster"
	"github.com/cyclopcam/landcover/pkg/storagecache"
	"github.com/cyclopcam/logs"
	"gorm.io/gorm"
)

var ErrNoCache = errors.New("Archive was opened without a blob cache, so rasters cannot be loaded")

// Archive is the scene catalog
type Archive struct {
	log   logs.Log
	DB    *gorm.DB
	cache *storagecache.StorageCache

	indexLock sync.Mutex
	indexes   map[string]*footprintIndex // Lazily built, per collection
}

// footprintIndex is a spatial index over the footprints of one collection
type footprintIndex struct {
	fb  *flatbush.Flatbush[float64]
	ids []int64 // Scene ID of each flatbush item
}

// Open the catalog database. cache may be nil if you only need to query or ingest.
func Open(log logs.Log, dbc dbh.DBConfig, cache *storagecache.StorageCache) (*Archive, error) {
	log = logs.NewPrefixLogger(log, "Archive")
	db, err := dbh.OpenDB(log, dbc, Migrations(log), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open scene catalog %v: %w", dbc.LogSafeDescription(), err)
	}
	return &Archive{
		log:     log,
		DB:      db,
		cache:   cache,
		indexes: map[string]*footprintIndex{},
	}, nil
}

func (a *Archive) Close() {
	if sqlDB, err := a.DB.DB(); err == nil {
		sqlDB.Close()
	}
}

// Add inserts a scene, or replaces the scene with the same collection and SceneID
func (a *Archive) Add(scene *Scene) error {
	if scene.Collection == "" || scene.SceneID == "" {
		return fmt.Errorf("Scene must have a collection and an ID")
	}
	if scene.Acquired.IsZero() {
		return fmt.Errorf("Scene %v has no acquisition time", scene.SceneID)
	}
	if scene.Bounds().IsEmpty() {
		return fmt.Errorf("Scene %v has an empty footprint", scene.SceneID)
	}
	if scene.Bands == nil || len(scene.Bands.Data) == 0 {
		return fmt.Errorf("Scene %v has no bands", scene.SceneID)
	}
	err := a.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("collection = ? AND scene_id = ?", scene.Collection, scene.SceneID).Delete(&Scene{}).Error; err != nil {
			return err
		}
		return tx.Create(scene).Error
	})
	if err != nil {
		return fmt.Errorf("Failed to add scene %v: %w", scene.SceneID, err)
	}
	a.invalidateIndex(scene.Collection)
	return nil
}

// Query returns the scenes of a collection whose footprint intersects bounds, and
// which were acquired within any of ranges. If ranges is empty, all dates match.
// Scenes are ordered by acquisition time.
func (a *Archive) Query(collection string, bounds geo.Bounds, ranges []raster.DateRange) ([]*Scene, error) {
	q := a.DB.Where("collection = ?", collection)
	if len(ranges) != 0 {
		clauses := []string{}
		args := []any{}
		for _, r := range ranges {
			clauses = append(clauses, "(acquired >= ? AND acquired < ?)")
			args = append(args, dbh.MakeIntTime(r.Start), dbh.MakeIntTime(r.End))
		}
		q = q.Where(strings.Join(clauses, " OR "), args...)
	}
	scenes := []*Scene{}
	if err := q.Order("acquired, id").Find(&scenes).Error; err != nil {
		return nil, err
	}
	if len(scenes) == 0 {
		return scenes, nil
	}

	idx, err := a.index(collection)
	if err != nil {
		return nil, err
	}
	hits := idx.search(bounds)
	result := make([]*Scene, 0, len(scenes))
	for _, s := range scenes {
		if _, ok := slices.BinarySearch(hits, s.ID); ok {
			result = append(result, s)
		}
	}
	return result, nil
}

// Scenes loads the given bands of every matching scene, warped onto grid.
// This satisfies analysis.SceneSource.
func (a *Archive) Scenes(ctx context.Context, collection string, grid raster.Grid, ranges []raster.DateRange, bands []string) (*raster.Collection, error) {
	if a.cache == nil {
		return nil, ErrNoCache
	}
	scenes, err := a.Query(collection, grid.Bounds(), ranges)
	if err != nil {
		return nil, err
	}
	a.log.Infof("Loading %v scenes of %v", len(scenes), collection)
	c := raster.NewCollection()
	for _, s := range scenes {
		img, err := a.LoadScene(ctx, s, grid, bands)
		if err != nil {
			return nil, err
		}
		c.Images = append(c.Images, img)
	}
	return c, nil
}

// LoadScene reads the bands of one scene and warps them onto grid
func (a *Archive) LoadScene(ctx context.Context, s *Scene, grid raster.Grid, bands []string) (*raster.Image, error) {
	img, err := raster.NewImage(grid)
	if err != nil {
		return nil, err
	}
	for _, band := range bands {
		key := s.BandKey(band)
		if key == "" {
			return nil, fmt.Errorf("Scene %v does not have band %v: %w", s.SceneID, band, raster.ErrMissingBand)
		}
		b, err := a.loadBand(ctx, key, band, grid)
		if err != nil {
			return nil, fmt.Errorf("Failed to load %v of scene %v: %w", band, s.SceneID, err)
		}
		img.Bands = append(img.Bands, b)
	}
	img.Time = s.Acquired.Get()
	img.Props = map[string]string{
		"id":         s.SceneID,
		"collection": s.Collection,
	}
	return img, nil
}

func (a *Archive) loadBand(ctx context.Context, key, name string, grid raster.Grid) (*raster.Band, error) {
	r, err := a.cache.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	bands, err := gtiff.ReadWarped(r.Path(), []string{name}, grid, gtiff.ResampleNearest)
	if err != nil {
		return nil, err
	}
	return bands[0], nil
}

func (a *Archive) invalidateIndex(collection string) {
	a.indexLock.Lock()
	defer a.indexLock.Unlock()
	delete(a.indexes, collection)
}

func (a *Archive) index(collection string) (*footprintIndex, error) {
	a.indexLock.Lock()
	defer a.indexLock.Unlock()
	if idx := a.indexes[collection]; idx != nil {
		return idx, nil
	}
	type footprint struct {
		ID   int64
		MinX float64
		MinY float64
		MaxX float64
		MaxY float64
	}
	rows := []footprint{}
	if err := a.DB.Model(&Scene{}).Select("id, min_x, min_y, max_x, max_y").Where("collection = ?", collection).Order("id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	idx := &footprintIndex{
		fb: flatbush.NewFlatbush[float64](),
	}
	idx.fb.Reserve(len(rows))
	for _, r := range rows {
		idx.fb.Add(r.MinX, r.MinY, r.MaxX, r.MaxY)
		idx.ids = append(idx.ids, r.ID)
	}
	if len(rows) != 0 {
		idx.fb.Finish()
	}
	a.indexes[collection] = idx
	return idx, nil
}

// search returns the sorted IDs of the footprints that intersect b
func (f *footprintIndex) search(b geo.Bounds) []int64 {
	if len(f.ids) == 0 {
		return nil
	}
	hits := []int64{}
	for _, i := range f.fb.Search(b.MinX, b.MinY, b.MaxX, b.MaxY) {
		hits = append(hits, f.ids[i])
	}
	slices.Sort(hits)
	return hits
}
