// Package pipeline runs scanned pages through the configurable
// preprocessing sequence: orientation correction, basic preprocessing,
// noise removal, morphological operations and line removal. Stage order
// is fixed; configuration only toggles and parameterizes stages.
//
// Stage failures are soft. A failing stage logs, records the failure and
// hands the unmodified pre-stage bitmap to the next stage; only the page
// keeps flowing, never an error.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/scanprep/scanprep/internal/common"
	"github.com/scanprep/scanprep/internal/document"
	"github.com/scanprep/scanprep/internal/instrument"
	"github.com/scanprep/scanprep/internal/metrics"
	"github.com/scanprep/scanprep/internal/orientation"
	"github.com/scanprep/scanprep/internal/stages"
)

// Canonical stage names, in pipeline order.
const (
	StageOrientation = "orientation_correction"
	StageBasic       = "basic_preprocessing"
	StageNoise       = "noise_removal"
	StageMorphology  = "morphological_operations"
	StageLines       = "line_removal"
)

// StageOrder is the fixed execution order of the pipeline.
var StageOrder = []string{StageOrientation, StageBasic, StageNoise, StageMorphology, StageLines}

// Config assembles the per-stage configurations.
type Config struct {
	Orientation orientation.Config      `mapstructure:"orientation_correction" yaml:"orientation_correction" json:"orientation_correction"`
	Basic       stages.BasicConfig      `mapstructure:"basic_preprocessing" yaml:"basic_preprocessing" json:"basic_preprocessing"`
	Noise       stages.NoiseConfig      `mapstructure:"noise_removal" yaml:"noise_removal" json:"noise_removal"`
	Morphology  stages.MorphologyConfig `mapstructure:"morphological_operations" yaml:"morphological_operations" json:"morphological_operations"`
	Lines       stages.LineConfig       `mapstructure:"line_removal" yaml:"line_removal" json:"line_removal"`
}

// IsEnabled reports whether the named stage is switched on. Unknown
// names are off.
func (c Config) IsEnabled(stageName string) bool {
	switch stageName {
	case StageOrientation:
		return c.Orientation.Enabled
	case StageBasic:
		return c.Basic.Enabled
	case StageNoise:
		return c.Noise.Enabled
	case StageMorphology:
		return c.Morphology.Enabled
	case StageLines:
		return c.Lines.Enabled
	default:
		return false
	}
}

// DefaultConfig provides the documented defaults: orientation correction
// and basic preprocessing on, the cleanup stages off.
func DefaultConfig() Config {
	return Config{
		Orientation: orientation.DefaultConfig(),
		Basic:       stages.DefaultBasicConfig(),
		Noise:       stages.DefaultNoiseConfig(),
		Morphology:  stages.DefaultMorphologyConfig(),
		Lines:       stages.DefaultLineConfig(),
	}
}

// Runner executes the pipeline on pages and documents.
type Runner struct {
	cfg      Config
	detector orientation.Detector
	sink     *instrument.Sink
}

// NewRunner builds a Runner with the standard orientation classifier.
func NewRunner(cfg Config, sink *instrument.Sink) *Runner {
	return NewRunnerWithDetector(cfg, orientation.NewClassifier(cfg.Orientation), sink)
}

// NewRunnerWithDetector builds a Runner with a custom orientation
// detector.
func NewRunnerWithDetector(cfg Config, detector orientation.Detector, sink *instrument.Sink) *Runner {
	if sink == nil {
		sink = instrument.NewSink(instrument.Config{})
	}
	return &Runner{cfg: cfg, detector: detector, sink: sink}
}

// stage pairs a name with its toggle and transformation.
type stage struct {
	name    string
	enabled bool
	apply   func(image.Image) (image.Image, error)
}

// ProcessPage runs all enabled stages on one page of a document. The
// page's image is replaced by the processed bitmap; OrientationCorrected
// is set when the first stage rotated the page. Disabled stages are not
// invoked and leave no timing entry.
func (r *Runner) ProcessPage(ctx context.Context, docName string, page *document.Page) {
	if page == nil || page.Image == nil {
		return
	}

	img := page.Image

	if r.cfg.Orientation.Enabled {
		img = r.correctOrientation(ctx, docName, page, img)
	}

	for _, st := range r.stageList() {
		if !st.enabled {
			continue
		}
		timer := common.StartTimer(st.name)
		out, err := st.apply(img)
		d := timer.Stop()

		if err != nil {
			slog.Warn("stage failed, keeping previous bitmap",
				"document", docName, "page", page.Index, "stage", st.name, "error", err)
			r.sink.RecordFailure(docName, page.Index, st.name, err)
			metrics.StageFailures.WithLabelValues(st.name).Inc()
			continue
		}

		img = out
		r.sink.Record(docName, page.Index, st.name, d)
		r.sink.SaveDebugImage(img, docName, page.Index, st.name)
		metrics.StageDuration.WithLabelValues(st.name).Observe(d.Seconds())
	}

	page.Image = img
	metrics.PagesProcessed.Inc()
}

// correctOrientation runs the detection stage. Like every other stage a
// failure is soft: the page stays as scanned.
func (r *Runner) correctOrientation(ctx context.Context, docName string, page *document.Page, img image.Image) image.Image {
	timer := common.StartTimer(StageOrientation)
	out, rotated, err := orientation.Correct(ctx, r.detector, img, r.cfg.Orientation.ConfidenceThreshold)
	d := timer.Stop()

	if err != nil {
		slog.Warn("orientation detection failed, keeping page as scanned",
			"document", docName, "page", page.Index, "error", err)
		r.sink.RecordFailure(docName, page.Index, StageOrientation, err)
		metrics.StageFailures.WithLabelValues(StageOrientation).Inc()
		return img
	}

	r.sink.Record(docName, page.Index, StageOrientation, d)
	r.sink.SaveDebugImage(out, docName, page.Index, StageOrientation)
	metrics.StageDuration.WithLabelValues(StageOrientation).Observe(d.Seconds())
	if rotated {
		page.OrientationCorrected = true
		metrics.OrientationCorrections.Inc()
	}
	return out
}

func (r *Runner) stageList() []stage {
	return []stage{
		{StageBasic, r.cfg.Basic.Enabled, func(img image.Image) (image.Image, error) {
			return stages.ApplyBasic(img, r.cfg.Basic)
		}},
		{StageNoise, r.cfg.Noise.Enabled, func(img image.Image) (image.Image, error) {
			return stages.ApplyNoise(img, r.cfg.Noise)
		}},
		{StageMorphology, r.cfg.Morphology.Enabled, func(img image.Image) (image.Image, error) {
			return stages.ApplyMorphology(img, r.cfg.Morphology)
		}},
		{StageLines, r.cfg.Lines.Enabled, func(img image.Image) (image.Image, error) {
			return stages.ApplyLines(img, r.cfg.Lines)
		}},
	}
}

// ProcessDocument runs every page of doc through the pipeline, in
// parallel when cfg allows it, and waits for all pages to finish.
func (r *Runner) ProcessDocument(ctx context.Context, doc *document.Document, parallel ParallelConfig) error {
	if doc == nil || len(doc.Pages) == 0 {
		return fmt.Errorf("document has no pages")
	}
	return r.processPagesParallel(ctx, doc, parallel)
}
