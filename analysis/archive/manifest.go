package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/landcover/pkg/geo"
	"github.com/cyclopcam/landcover/pkg/gtiff"
	"github.com/cyclopcam/landcover/pkg/storage"
)

// Manifest lists scenes to add to the archive
type Manifest struct {
	Scenes []ManifestScene `json:"scenes"`
}

// ManifestScene is one scene in a manifest.
// Band files are relative to the manifest. If Bounds is omitted, it is taken from
// the geotransform of the first band file, which must then be in the grid CRS.
type ManifestScene struct {
	Collection string            `json:"collection"`
	ID         string            `json:"id"`
	Acquired   time.Time         `json:"acquired"`
	Bounds     *geo.Bounds       `json:"bounds"`
	Bands      map[string]string `json:"bands"` // Band name to local file
}

func LoadManifest(filename string) (*Manifest, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	m := &Manifest{}
	if err := json.Unmarshal(raw, m); err != nil {
		return nil, fmt.Errorf("Failed to parse manifest %v: %w", filename, err)
	}
	return m, nil
}

// BlobKey is the name under which a band file is stored
func BlobKey(collection, sceneID, band string) string {
	return path.Join(collection, sceneID, band+".tif")
}

// Ingest uploads the band files of every scene in the manifest to store, and adds the
// scenes to the catalog. baseDir is the directory that band paths are relative to.
// Each upload must finish within uploadTimeout, unless it is zero.
// Returns the number of scenes added.
func (a *Archive) Ingest(ctx context.Context, store storage.Storage, m *Manifest, baseDir string, uploadTimeout time.Duration) (int, error) {
	n := 0
	for _, ms := range m.Scenes {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		scene, err := a.ingestScene(ctx, store, &ms, baseDir, uploadTimeout)
		if err != nil {
			return n, fmt.Errorf("Failed to ingest scene %v: %w", ms.ID, err)
		}
		a.log.Infof("Added %v %v (%v bands)", scene.Collection, scene.SceneID, len(scene.Bands.Data))
		n++
	}
	return n, nil
}

func (a *Archive) ingestScene(ctx context.Context, store storage.Storage, ms *ManifestScene, baseDir string, uploadTimeout time.Duration) (*Scene, error) {
	if len(ms.Bands) == 0 {
		return nil, fmt.Errorf("No bands")
	}
	keys := map[string]string{}
	var firstFile string
	for band, file := range ms.Bands {
		if !filepath.IsAbs(file) {
			file = filepath.Join(baseDir, file)
		}
		if firstFile == "" || file < firstFile {
			firstFile = file
		}
		key := BlobKey(ms.Collection, ms.ID, band)
		if err := uploadFile(ctx, store, key, file, uploadTimeout); err != nil {
			return nil, err
		}
		keys[band] = key
	}

	bounds := geo.Bounds{}
	if ms.Bounds != nil {
		bounds = *ms.Bounds
	} else {
		info, err := gtiff.ReadInfo(firstFile)
		if err != nil {
			return nil, err
		}
		bounds = info.Bounds()
	}

	var bandsJSON dbh.JSONField[map[string]string]
	bandsJSON.Data = keys
	scene := &Scene{
		Collection: ms.Collection,
		SceneID:    ms.ID,
		Acquired:   dbh.MakeIntTime(ms.Acquired),
		MinX:       bounds.MinX,
		MinY:       bounds.MinY,
		MaxX:       bounds.MaxX,
		MaxY:       bounds.MaxY,
		Bands:      &bandsJSON,
	}
	if err := a.Add(scene); err != nil {
		return nil, err
	}
	return scene, nil
}

func uploadFile(ctx context.Context, store storage.Storage, key, file string, timeout time.Duration) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := storage.WriteFile(ctx, store, key, f); err != nil {
		return fmt.Errorf("Failed to upload %v: %w", file, err)
	}
	return nil
}
