package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/cyclopcam/landcover/analysis/rundb"
	"github.com/cyclopcam/landcover/pkg/raster"
	"github.com/cyclopcam/landcover/pkg/render"
	"github.com/cyclopcam/landcover/pkg/storage"
	"github.com/cyclopcam/logs"
)

// Longest side of true color previews
const PreviewMaxDim = 1024

// Publisher writes the products of a run to the export store, and records each one
// as an artifact of the run.
type Publisher struct {
	log     logs.Log
	store   storage.Storage
	runs    *rundb.RunDB // May be nil
	runID   int64
	prefix  string
	timeout time.Duration
}

// NewPublisher creates a publisher for a run. Artifacts are stored under runs/<runID>/.
// If runs is nil, nothing is recorded, but files are still written.
func NewPublisher(log logs.Log, store storage.Storage, runs *rundb.RunDB, runID int64, timeout time.Duration) *Publisher {
	return &Publisher{
		log:     logs.NewPrefixLogger(log, "Publish"),
		store:   store,
		runs:    runs,
		runID:   runID,
		prefix:  fmt.Sprintf("runs/%v/", runID),
		timeout: timeout,
	}
}

// Key returns the blob name of an artifact
func (p *Publisher) Key(name string) string {
	return p.prefix + name
}

func (p *Publisher) record(name, contentType string, size int64) error {
	p.log.Infof("Wrote %v (%v bytes)", p.Key(name), size)
	if p.runs == nil {
		return nil
	}
	_, err := p.runs.AddArtifact(p.runID, name, p.Key(name), contentType, size)
	return err
}

// PutBytes uploads a single artifact
func (p *Publisher) PutBytes(ctx context.Context, name, contentType string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := storage.WriteFile(ctx, p.store, p.Key(name), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("Failed to write %v: %w", name, err)
	}
	return p.record(name, contentType, int64(len(data)))
}

func (p *Publisher) PutJSON(ctx context.Context, name string, v any) error {
	raw, err := json.MarshalIndent(v, "", "\t")
	if err != nil {
		return err
	}
	return p.PutBytes(ctx, name, "application/json", raw)
}

// PutGeoTIFF exports a raster through ExportImage
func (p *Publisher) PutGeoTIFF(ctx context.Context, name string, img *raster.Image, params ExportParams) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	size, err := ExportImage(ctx, p.store, img, p.Key(name), params)
	if err != nil {
		return fmt.Errorf("Failed to export %v: %w", name, err)
	}
	return p.record(name, "image/tiff", size)
}

// PublishRender draws every layer of a RenderRequest, along with its legend, style,
// charts and time-lapse, and finally the request itself as render.json.
func (p *Publisher) PublishRender(ctx context.Context, rr *RenderRequest) error {
	files := map[string]string{}
	for _, layer := range rr.Layers {
		name, data, contentType, err := drawLayer(rr, layer)
		if err != nil {
			return fmt.Errorf("Failed to draw layer %v: %w", layer.Name, err)
		}
		if err := p.PutBytes(ctx, name, contentType, data); err != nil {
			return err
		}
		files[layer.Name] = name
	}
	if rr.Legend != nil {
		var buf bytes.Buffer
		if err := render.LegendPNG(&buf, *rr.Legend); err != nil {
			return err
		}
		if err := p.PutBytes(ctx, "legend.png", "image/png", buf.Bytes()); err != nil {
			return err
		}
	}
	if rr.Style != nil {
		if err := p.PutBytes(ctx, "style.sld", "application/xml", []byte(rr.Style.SLD())); err != nil {
			return err
		}
	}
	if len(rr.Charts) != 0 {
		if err := p.PutJSON(ctx, "charts.json", rr.Charts); err != nil {
			return err
		}
	}
	if rr.TimeLapse != nil && len(rr.TimeLapse.Frames) != 0 {
		var buf bytes.Buffer
		if err := render.TimeLapseGIF(&buf, rr.TimeLapse.Frames, rr.TimeLapse.Vis, rr.TimeLapse.Options); err != nil {
			return fmt.Errorf("Failed to create time-lapse: %w", err)
		}
		if err := p.PutBytes(ctx, "timelapse.gif", "image/gif", buf.Bytes()); err != nil {
			return err
		}
	}
	type renderJSON struct {
		*RenderRequest
		Files map[string]string `json:"files"` // Layer name to artifact name
	}
	return p.PutJSON(ctx, "render.json", renderJSON{RenderRequest: rr, Files: files})
}

// drawLayer returns the artifact name, content and content type of a layer
func drawLayer(rr *RenderRequest, layer *Layer) (string, []byte, string, error) {
	base := ArtifactName(layer.Name)
	if layer.Kind == LayerTrueColor {
		if len(layer.Bands) != 3 {
			return "", nil, "", fmt.Errorf("True color layer needs 3 bands, not %v", len(layer.Bands))
		}
		data, err := render.TrueColorJPEG(layer.Image, [3]string(layer.Bands), layer.Vis, PreviewMaxDim)
		return base + ".jpeg", data, "image/jpeg", err
	}
	if len(layer.Bands) != 1 {
		return "", nil, "", fmt.Errorf("Layer needs 1 band, not %v", len(layer.Bands))
	}
	band, err := layer.Image.Band(layer.Bands[0])
	if err != nil {
		return "", nil, "", err
	}
	var buf bytes.Buffer
	switch layer.Kind {
	case LayerStyled:
		if rr.Style == nil {
			return "", nil, "", fmt.Errorf("Styled layer without a style")
		}
		err = render.ColorizePNG(&buf, layer.Image.Grid, band, rr.Style)
	case LayerRamp:
		err = render.RampPNG(&buf, layer.Image.Grid, band, layer.Vis)
	default:
		err = fmt.Errorf("Unknown layer kind '%v'", layer.Kind)
	}
	return base + ".png", buf.Bytes(), "image/png", err
}

// ArtifactName turns a display name into a file name, eg "2014 EVI" -> "2014-evi"
func ArtifactName(display string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(display) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && sb.Len() != 0 {
				sb.WriteByte('-')
			}
			sb.WriteRune(r)
			dash = false
		} else {
			dash = true
		}
	}
	if sb.Len() == 0 {
		return "layer"
	}
	return sb.String()
}

// PublishClassification writes the land cover map, its previews, and the accuracy report
func (p *Publisher) PublishClassification(ctx context.Context, res *ClassificationResult, params ExportParams) error {
	if err := p.PublishRender(ctx, res.Render); err != nil {
		return err
	}
	if err := p.PutGeoTIFF(ctx, "landcover.tif", res.Final, params); err != nil {
		return err
	}
	return p.PutJSON(ctx, "accuracy.json", res.Metrics())
}

// PublishTimeSeries writes the EVI previews, charts, time-lapse, and the exported EVI raster
func (p *Publisher) PublishTimeSeries(ctx context.Context, res *TimeSeriesResult, exportYear int, params ExportParams) error {
	if err := p.PublishRender(ctx, res.Render); err != nil {
		return err
	}
	if res.Export != nil {
		if err := p.PutGeoTIFF(ctx, fmt.Sprintf("evi-%v.tif", exportYear), res.Export, params); err != nil {
			return err
		}
	}
	return p.PutJSON(ctx, "metrics.json", res.Metrics())
}
