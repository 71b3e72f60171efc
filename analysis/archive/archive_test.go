package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/landcover/pkg/geo"
	"github.com/cyclopcam/landcover/pkg/gtiff"
	"github.com/cyclopcam/landcover/pkg/raster"
	"github.com/cyclopcam/landcover/pkg/storage"
	"github.com/cyclopcam/landcover/pkg/storagecache"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func createTestArchive(t *testing.T, cache *storagecache.StorageCache) *Archive {
	os.Remove("test-archive.sqlite")
	a, err := Open(logs.NewTestingLog(t), dbh.MakeSqliteConfig("test-archive.sqlite"), cache)
	require.NoError(t, err)
	t.Cleanup(func() {
		a.Close()
		os.Remove("test-archive.sqlite")
	})
	return a
}

func makeScene(id string, acquired time.Time, b geo.Bounds) *Scene {
	var bands dbh.JSONField[map[string]string]
	bands.Data = map[string]string{"B1": BlobKey("L8", id, "B1")}
	return &Scene{
		Collection: "L8",
		SceneID:    id,
		Acquired:   dbh.MakeIntTime(acquired),
		MinX:       b.MinX,
		MinY:       b.MinY,
		MaxX:       b.MaxX,
		MaxY:       b.MaxY,
		Bands:      &bands,
	}
}

func sceneIDs(scenes []*Scene) []string {
	ids := []string{}
	for _, s := range scenes {
		ids = append(ids, s.SceneID)
	}
	return ids
}

func TestQuery(t *testing.T) {
	a := createTestArchive(t, nil)
	west := geo.Bounds{MinX: 0, MinY: 0, MaxX: 100, MaxY: 100}
	east := geo.Bounds{MinX: 200, MinY: 0, MaxX: 300, MaxY: 100}
	require.NoError(t, a.Add(makeScene("w2019", raster.Date(2019, 7, 1), west)))
	require.NoError(t, a.Add(makeScene("w2020", raster.Date(2020, 7, 1), west)))
	require.NoError(t, a.Add(makeScene("e2020", raster.Date(2020, 8, 1), east)))
	require.NoError(t, a.Add(makeScene("w2020late", raster.Date(2020, 10, 1), west)))

	summer2020 := raster.DateRange{Start: raster.Date(2020, 6, 1), End: raster.Date(2020, 9, 30)}
	summer2019 := raster.DateRange{Start: raster.Date(2019, 6, 1), End: raster.Date(2019, 9, 30)}

	scenes, err := a.Query("L8", geo.Bounds{MinX: 50, MinY: 50, MaxX: 60, MaxY: 60}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"w2019", "w2020", "w2020late"}, sceneIDs(scenes))

	scenes, err = a.Query("L8", geo.Bounds{MinX: 0, MinY: 0, MaxX: 300, MaxY: 100}, []raster.DateRange{summer2020})
	require.NoError(t, err)
	require.Equal(t, []string{"w2020", "e2020"}, sceneIDs(scenes))

	scenes, err = a.Query("L8", west, []raster.DateRange{summer2020, summer2019})
	require.NoError(t, err)
	require.Equal(t, []string{"w2019", "w2020"}, sceneIDs(scenes))

	scenes, err = a.Query("L8", geo.Bounds{MinX: 120, MinY: 0, MaxX: 180, MaxY: 100}, nil)
	require.NoError(t, err)
	require.Empty(t, scenes)

	scenes, err = a.Query("NLCD", west, nil)
	require.NoError(t, err)
	require.Empty(t, scenes)

	// Adding a scene with the same ID replaces it, and the spatial index follows
	require.NoError(t, a.Add(makeScene("w2019", raster.Date(2019, 7, 1), east)))
	scenes, err = a.Query("L8", geo.Bounds{MinX: 250, MinY: 50, MaxX: 260, MaxY: 60}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"w2019", "e2020"}, sceneIDs(scenes))
}

func TestAddInvalid(t *testing.T) {
	a := createTestArchive(t, nil)
	s := makeScene("x", time.Time{}, geo.Bounds{MaxX: 1, MaxY: 1})
	require.Error(t, a.Add(s))
	s = makeScene("x", raster.Date(2020, 1, 1), geo.EmptyBounds())
	require.Error(t, a.Add(s))
	s = makeScene("", raster.Date(2020, 1, 1), geo.Bounds{MaxX: 1, MaxY: 1})
	require.Error(t, a.Add(s))
}

func TestIngestAndLoad(t *testing.T) {
	ctx := context.Background()
	log := logs.NewTestingLog(t)
	tmp := t.TempDir()

	store, err := storage.NewStorageFS(log, filepath.Join(tmp, "store"))
	require.NoError(t, err)
	cache, err := storagecache.NewStorageCache(log, store, filepath.Join(tmp, "cache"), 1024*1024)
	require.NoError(t, err)
	a := createTestArchive(t, cache)

	// A 3x2 scene with a single band
	g := raster.NewGrid(geo.Bounds{MinX: 400000, MinY: 4850000, MaxX: 400090, MaxY: 4850060}, 30, "EPSG:32619")
	b := raster.NewBand("B1", g.NumPixels(), false)
	for i := range b.Data {
		b.Data[i] = float32(i * 100)
	}
	img, err := raster.NewImage(g, b)
	require.NoError(t, err)
	require.NoError(t, gtiff.Write(filepath.Join(tmp, "b1.tif"), img))

	m := &Manifest{
		Scenes: []ManifestScene{
			{
				Collection: "L8",
				ID:         "LC08_012030_20200704",
				Acquired:   raster.Date(2020, 7, 4),
				Bands:      map[string]string{"B1": "b1.tif"},
			},
		},
	}
	n, err := a.Ingest(ctx, store, m, tmp, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	c, err := a.Scenes(ctx, "L8", g, nil, []string{"B1"})
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())
	loaded := c.Images[0]
	require.Equal(t, raster.Date(2020, 7, 4), loaded.Time)
	require.Equal(t, "LC08_012030_20200704", loaded.Props["id"])
	require.Equal(t, []string{"B1"}, loaded.BandNames())
	for i := range b.Data {
		require.True(t, loaded.Bands[0].Valid(i))
		require.InDelta(t, b.Data[i], loaded.Bands[0].Data[i], 1e-3)
	}

	_, err = a.Scenes(ctx, "L8", g, nil, []string{"B2"})
	require.ErrorIs(t, err, raster.ErrMissingBand)
}

// stalledStore accepts uploads but never completes them
type stalledStore struct {
	storage.StorageFS
}

func (s *stalledStore) WriteFile(ctx context.Context, name string) (io.WriteCloser, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestIngestUploadTimeout(t *testing.T) {
	tmp := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "b1.tif"), []byte("x"), 0644))
	a := createTestArchive(t, nil)
	m := &Manifest{
		Scenes: []ManifestScene{
			{
				Collection: "L8",
				ID:         "LC08_012030_20200704",
				Acquired:   raster.Date(2020, 7, 4),
				Bounds:     &geo.Bounds{MaxX: 30, MaxY: 30},
				Bands:      map[string]string{"B1": "b1.tif"},
			},
		},
	}
	start := time.Now()
	n, err := a.Ingest(context.Background(), &stalledStore{}, m, tmp, 50*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 0, n)
	require.Less(t, time.Since(start), 5*time.Second)

	scenes, err := a.Query("L8", geo.Bounds{MaxX: 30, MaxY: 30}, nil)
	require.NoError(t, err)
	require.Empty(t, scenes)
}
