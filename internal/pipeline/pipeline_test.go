package pipeline

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanprep/scanprep/internal/document"
	"github.com/scanprep/scanprep/internal/instrument"
	"github.com/scanprep/scanprep/internal/orientation"
)

// fixedDetector returns a fixed result, recording calls.
type fixedDetector struct {
	mu    sync.Mutex
	res   orientation.Result
	err   error
	calls int
}

func (d *fixedDetector) Detect(context.Context, image.Image) (orientation.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.res, d.err
}

func grayPage(w, h int) image.Image {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := range g.Pix {
		g.Pix[i] = 220
	}
	return g
}

func testRunner(t *testing.T, cfg Config, det orientation.Detector) (*Runner, string) {
	t.Helper()
	timingDir := filepath.Join(t.TempDir(), "timings")
	sink := instrument.NewSink(instrument.Config{
		LogTimings:   true,
		TimingFolder: timingDir,
	})
	return NewRunnerWithDetector(cfg, det, sink), timingDir
}

func readTimings(t *testing.T, dir string) string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var all string
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		all += string(data)
	}
	return all
}

func TestProcessPage_RunsEnabledStagesInOrder(t *testing.T) {
	cfg := DefaultConfig()
	det := &fixedDetector{res: orientation.Result{Angle: 0, Confidence: 0.9}}
	r, timingDir := testRunner(t, cfg, det)

	page := document.Page{Image: grayPage(40, 40), Index: 0}
	r.ProcessPage(context.Background(), "doc", &page)

	assert.Equal(t, 1, det.calls)
	assert.False(t, page.OrientationCorrected)

	timings := readTimings(t, timingDir)
	assert.Contains(t, timings, "doc_page0 | orientation_correction | ")
	assert.Contains(t, timings, "doc_page0 | basic_preprocessing | ")
	// Cleanup stages are off by default and leave no trace.
	assert.NotContains(t, timings, "noise_removal")
	assert.NotContains(t, timings, "morphological_operations")
	assert.NotContains(t, timings, "line_removal")
}

func TestProcessPage_SavesOrientationSnapshotWithoutRotation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Basic.Enabled = false
	// Confident upright page: no rotation is applied, the post-stage
	// snapshot is still written.
	det := &fixedDetector{res: orientation.Result{Angle: 0, Confidence: 0.9}}

	base := filepath.Join(t.TempDir(), "debug")
	sink := instrument.NewSink(instrument.Config{SaveImages: true, BaseFolder: base})
	r := NewRunnerWithDetector(cfg, det, sink)

	page := document.Page{Image: grayPage(40, 40), Index: 0}
	r.ProcessPage(context.Background(), "doc", &page)

	require.False(t, page.OrientationCorrected)
	snapshot := filepath.Join(base, StageOrientation, "doc_orientation_correction_page_0.png")
	_, err := os.Stat(snapshot)
	assert.NoError(t, err)
}

func TestProcessPage_SetsCorrectionFlag(t *testing.T) {
	cfg := DefaultConfig()
	det := &fixedDetector{res: orientation.Result{Angle: 180, Confidence: 0.95}}
	r, _ := testRunner(t, cfg, det)

	page := document.Page{Image: grayPage(40, 60), Index: 0}
	r.ProcessPage(context.Background(), "doc", &page)

	assert.True(t, page.OrientationCorrected)
	assert.Equal(t, 40, page.Image.Bounds().Dx())
	assert.Equal(t, 60, page.Image.Bounds().Dy())
}

func TestProcessPage_LowConfidenceLeavesPage(t *testing.T) {
	cfg := DefaultConfig()
	det := &fixedDetector{res: orientation.Result{Angle: 180, Confidence: 0.3}}
	r, _ := testRunner(t, cfg, det)

	page := document.Page{Image: grayPage(40, 60), Index: 0}
	r.ProcessPage(context.Background(), "doc", &page)

	assert.False(t, page.OrientationCorrected)
}

func TestProcessPage_DetectorErrorIsSoft(t *testing.T) {
	cfg := DefaultConfig()
	det := &fixedDetector{err: errors.New("osd crashed")}
	r, timingDir := testRunner(t, cfg, det)

	page := document.Page{Image: grayPage(40, 40), Index: 2}
	r.ProcessPage(context.Background(), "doc", &page)

	assert.False(t, page.OrientationCorrected)
	assert.NotNil(t, page.Image)
	assert.Contains(t, readTimings(t, timingDir), "doc_page2 | orientation_correction | failed:")
}

func TestProcessPage_FailingStageKeepsPreviousBitmap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Orientation.Enabled = false
	// Invalid block size makes basic preprocessing fail.
	cfg.Basic.AdaptiveThreshold.BlockSize = 4
	// Noise removal is enabled and must still run on the original bitmap.
	cfg.Noise.Enabled = true
	det := &fixedDetector{}
	r, timingDir := testRunner(t, cfg, det)

	original := grayPage(20, 20)
	page := document.Page{Image: original, Index: 0}
	r.ProcessPage(context.Background(), "doc", &page)

	timings := readTimings(t, timingDir)
	assert.Contains(t, timings, "basic_preprocessing | failed:")
	assert.Contains(t, timings, "doc_page0 | noise_removal | ")
	// The page survived the failure and was processed by the next stage.
	assert.NotNil(t, page.Image)
	assert.Equal(t, 20, page.Image.Bounds().Dx())
	assert.Equal(t, 0, det.calls)
}

func TestProcessPage_AllStagesDisabled(t *testing.T) {
	cfg := Config{}
	det := &fixedDetector{}
	r, timingDir := testRunner(t, cfg, det)

	original := grayPage(10, 10)
	page := document.Page{Image: original, Index: 0}
	r.ProcessPage(context.Background(), "doc", &page)

	assert.Same(t, original, page.Image)
	assert.Equal(t, 0, det.calls)
	assert.Empty(t, readTimings(t, timingDir))
}

func TestProcessDocument_ThreePagesOneRotated(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Basic.Enabled = false
	det := &fixedDetector{res: orientation.Result{Angle: 180, Confidence: 0.9}}
	r, _ := testRunner(t, cfg, det)

	doc := document.New("inbox/fax_0312.pdf", []image.Image{
		grayPage(30, 40), grayPage(30, 40), grayPage(30, 40),
	})
	require.Equal(t, "fax_0312", doc.Basename)

	err := r.ProcessDocument(context.Background(), doc, ParallelConfig{MaxWorkers: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, det.calls)
	assert.True(t, doc.AnyCorrected())
	assert.Equal(t, []bool{true, true, true}, doc.CorrectedFlags())
}

// sizeKeyedDetector reports a rotation only for images of a given width.
type sizeKeyedDetector struct {
	rotatedWidth int
}

func (d *sizeKeyedDetector) Detect(_ context.Context, img image.Image) (orientation.Result, error) {
	if img.Bounds().Dx() == d.rotatedWidth {
		return orientation.Result{Angle: 180, Confidence: 0.9}, nil
	}
	return orientation.Result{Angle: 0, Confidence: 0.9}, nil
}

func TestProcessDocument_OnlyMiddlePageRotated(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Basic.Enabled = false
	r, _ := testRunner(t, cfg, &sizeKeyedDetector{rotatedWidth: 31})

	doc := document.New("fax.pdf", []image.Image{
		grayPage(30, 40), grayPage(31, 40), grayPage(30, 40),
	})

	err := r.ProcessDocument(context.Background(), doc, ParallelConfig{MaxWorkers: 3})
	require.NoError(t, err)

	assert.Equal(t, []bool{false, true, false}, doc.CorrectedFlags())
	assert.True(t, doc.AnyCorrected())
	require.Len(t, doc.Pages, 3)
	// A 180 degree rotation keeps dimensions; order and count survive.
	assert.Equal(t, 31, doc.Pages[1].Image.Bounds().Dx())
}

func TestProcessDocument_PreservesPageOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Basic.Enabled = false
	cfg.Orientation.Enabled = false
	det := &fixedDetector{}
	r, _ := testRunner(t, cfg, det)

	images := make([]image.Image, 8)
	for i := range images {
		// Width encodes the page index.
		images[i] = grayPage(10+i, 10)
	}
	doc := document.New("multi.tif", images)

	err := r.ProcessDocument(context.Background(), doc, ParallelConfig{MaxWorkers: 4})
	require.NoError(t, err)

	for i, p := range doc.Pages {
		assert.Equal(t, i, p.Index)
		assert.Equal(t, 10+i, p.Image.Bounds().Dx())
	}
}

func TestProcessDocument_EmptyDocument(t *testing.T) {
	r, _ := testRunner(t, DefaultConfig(), &fixedDetector{})
	err := r.ProcessDocument(context.Background(), document.New("empty.pdf", nil), DefaultParallelConfig())
	assert.Error(t, err)
}

func TestProcessDocument_CancelledContext(t *testing.T) {
	r, _ := testRunner(t, DefaultConfig(), &fixedDetector{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc := document.New("doc.pdf", []image.Image{grayPage(10, 10)})
	err := r.ProcessDocument(ctx, doc, ParallelConfig{MaxWorkers: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultConfig_StageToggles(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.Orientation.Enabled)
	assert.True(t, cfg.Basic.Enabled)
	assert.False(t, cfg.Noise.Enabled)
	assert.False(t, cfg.Morphology.Enabled)
	assert.False(t, cfg.Lines.Enabled)
	assert.Equal(t, 0.6, cfg.Orientation.ConfidenceThreshold)
}

func TestStageOrder(t *testing.T) {
	assert.Equal(t, []string{
		"orientation_correction",
		"basic_preprocessing",
		"noise_removal",
		"morphological_operations",
		"line_removal",
	}, StageOrder)
}
