package analysis

import (
	"context"
	"fmt"

	"github.com/cyclopcam/landcover/pkg/accuracy"
	"github.com/cyclopcam/landcover/pkg/forest"
	"github.com/cyclopcam/landcover/pkg/geo"
	"github.com/cyclopcam/landcover/pkg/perfstats"
	"github.com/cyclopcam/landcover/pkg/raster"
	"github.com/cyclopcam/landcover/pkg/render"
	"github.com/cyclopcam/logs"
)

// ClassificationInputs is everything the classification pipeline reads.
// All rasters must be on the same grid.
type ClassificationInputs struct {
	StudyArea  geo.Geometry
	Scenes     *raster.Collection // Landsat 8 SR scenes, with a pixel_qa band
	Impervious *raster.Collection // Impervious surface percentage layers
	Samples    []LabeledFeature
}

// ClassificationResult holds the products of a classification run
type ClassificationResult struct {
	SampleCount      int
	TrainingCount    int
	TestingCount     int
	TrainingMatrix   *accuracy.ConfusionMatrix // Resubstitution on the training rows
	ValidationMatrix *accuracy.ConfusionMatrix // Held out testing rows
	Forest           *forest.Forest
	ForestSeed       uint64
	Composite        *raster.Image
	Classified       *raster.Image
	Impervious       *raster.Image
	Final            *raster.Image // Classified, with impervious surfaces on top
	Render           *RenderRequest
	Timing           *perfstats.Stages
}

// Metrics returns the numbers worth keeping from a run
func (r *ClassificationResult) Metrics() map[string]any {
	return map[string]any{
		"samples":     r.SampleCount,
		"training":    r.TrainingCount,
		"testing":     r.TestingCount,
		"forestSeed":  r.ForestSeed,
		"trainMatrix": r.TrainingMatrix.Summary(),
		"validation":  r.ValidationMatrix.Summary(),
		"timingMS":    r.Timing.Totals(),
	}
}

// RunClassification trains a Random Forest on the ground truth samples, evaluates it,
// and produces a land cover map of the study area.
func RunClassification(ctx context.Context, log logs.Log, cfg *ClassificationConfig, seed *uint64, in *ClassificationInputs) (*ClassificationResult, error) {
	log = logs.NewPrefixLogger(log, "Classify")
	res := &ClassificationResult{Timing: perfstats.NewStages()}
	timing := res.Timing

	ranges, err := periodRanges(cfg.Periods)
	if err != nil {
		return nil, err
	}
	imperviousRange, err := cfg.ImperviousPeriod.Range()
	if err != nil {
		return nil, err
	}

	done := timing.Time("composite")
	res.Composite, err = Composite(in.Scenes, in.StudyArea, ranges...)
	done()
	if err != nil {
		return nil, err
	}
	predictors, err := res.Composite.Select(cfg.Bands...)
	if err != nil {
		return nil, err
	}

	done = timing.Time("sample")
	samples, err := SampleRegions(log, predictors, in.Samples, cfg.Scale)
	done()
	if err != nil {
		return nil, err
	}
	rng := NewRand(seed)
	samples.RandomColumn(rng)
	training, testing := samples.Split(cfg.TrainFraction)
	res.SampleCount = samples.Len()
	res.TrainingCount = training.Len()
	res.TestingCount = testing.Len()
	log.Infof("Samples n = %v", res.SampleCount)
	log.Infof("Training n = %v", res.TrainingCount)
	log.Infof("Testing n = %v", res.TestingCount)

	// The forest seed comes from the split stream, so that no tree reuses the split's draws
	params := cfg.Forest
	params.Seed = rng.Uint64()
	res.ForestSeed = params.Seed
	X, y := training.Matrix()
	done = timing.Time("train")
	res.Forest, err = forest.Train(ctx, X, y, params)
	done()
	if err != nil {
		return nil, fmt.Errorf("Failed to train classifier: %w", err)
	}

	res.TrainingMatrix, err = accuracy.NewConfusionMatrix(y, res.Forest.PredictAll(X))
	if err != nil {
		return nil, err
	}
	log.Infof("Confusion matrix: %v", res.TrainingMatrix)
	log.Infof("Training Overall Accuracy: %.4f", res.TrainingMatrix.Accuracy())
	log.Infof("Training Kappa: %.4f", res.TrainingMatrix.Kappa())

	testX, testY := testing.Matrix()
	res.ValidationMatrix, err = accuracy.NewConfusionMatrix(testY, res.Forest.PredictAll(testX))
	if err != nil {
		return nil, err
	}
	log.Infof("Validation Error Matrix: %v", res.ValidationMatrix)
	log.Infof("Validation Overall Accuracy: %.4f", res.ValidationMatrix.Accuracy())
	log.Infof("Validation Kappa: %.4f", res.ValidationMatrix.Kappa())

	done = timing.Time("classify")
	res.Classified, err = ClassifyImage(ctx, res.Forest, predictors)
	done()
	if err != nil {
		return nil, err
	}

	res.Impervious, err = ImperviousLayer(in.Impervious, in.StudyArea, cfg.ImperviousBand, imperviousRange)
	if err != nil {
		return nil, err
	}
	res.Final, err = raster.Blend(res.Classified, res.Impervious)
	if err != nil {
		return nil, err
	}

	res.Render, err = classificationRenderRequest(cfg, res)
	if err != nil {
		return nil, err
	}
	log.Infof("Stage timings:\n%v", timing)
	return res, nil
}

func classificationRenderRequest(cfg *ClassificationConfig, res *ClassificationResult) (*RenderRequest, error) {
	style, err := render.NewIntervalStyle(cfg.Style)
	if err != nil {
		return nil, err
	}
	legend := style.Legend()
	legend.Title = cfg.LegendTitle
	rr := &RenderRequest{
		Legend: &legend,
		Style:  style,
		Center: cfg.MapCenter,
	}
	rr.Layers = append(rr.Layers,
		&Layer{
			Name:    "Color Image",
			Image:   res.Composite,
			Kind:    LayerTrueColor,
			Bands:   cfg.TrueColorBands[:],
			Vis:     cfg.TrueColorVis,
			Visible: false,
		},
		&Layer{
			Name:    "Land Classification",
			Image:   res.Final,
			Kind:    LayerStyled,
			Bands:   []string{ClassBand},
			Visible: true,
		},
	)
	return rr, nil
}
