package orientation

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDetector returns a canned result.
type stubDetector struct {
	res Result
	err error
}

func (s *stubDetector) Detect(context.Context, image.Image) (Result, error) {
	return s.res, s.err
}

// textPage draws a synthetic page with horizontal text bands in the top
// two thirds, leaving the bottom mostly empty.
func textPage(w, h int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := range g.Pix {
		g.Pix[i] = 255
	}
	for line := 0; line < 8; line++ {
		y0 := 10 + line*12
		for y := y0; y < y0+6 && y < h; y++ {
			for x := 8; x < w-8; x++ {
				g.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return g
}

// markerAt reports whether the darkest pixel of img sits at (x, y).
func markerAt(img image.Image, x, y int) bool {
	return color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y < 128
}

func TestCorrect_AppliesRotation(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 20, 40))
	d := &stubDetector{res: Result{Angle: 180, Confidence: 0.9}}

	out, rotated, err := Correct(context.Background(), d, img, 0.6)
	require.NoError(t, err)
	assert.True(t, rotated)
	assert.Equal(t, 20, out.Bounds().Dx())
	assert.Equal(t, 40, out.Bounds().Dy())
}

func TestCorrect_NinetyDegreesTurnsClockwise(t *testing.T) {
	// A detected angle of 90 is the clockwise rotation to apply, so a
	// marker in the top-left corner must land in the top-right corner.
	img := image.NewGray(image.Rect(0, 0, 20, 40))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.SetGray(0, 0, color.Gray{Y: 0})

	d := &stubDetector{res: Result{Angle: 90, Confidence: 0.9}}
	out, rotated, err := Correct(context.Background(), d, img, 0.6)
	require.NoError(t, err)
	require.True(t, rotated)
	require.Equal(t, 40, out.Bounds().Dx())
	require.Equal(t, 20, out.Bounds().Dy())

	assert.True(t, markerAt(out, 39, 0), "marker should be top-right after a clockwise turn")
	assert.False(t, markerAt(out, 0, 19), "bottom-left would mean a counter-clockwise turn")
	assert.False(t, markerAt(out, 0, 0))
}

func TestCorrect_TwoSeventyDegreesTurnsCounterClockwise(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 20, 40))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.SetGray(0, 0, color.Gray{Y: 0})

	d := &stubDetector{res: Result{Angle: 270, Confidence: 0.9}}
	out, rotated, err := Correct(context.Background(), d, img, 0.6)
	require.NoError(t, err)
	require.True(t, rotated)

	assert.True(t, markerAt(out, 0, 19), "marker should be bottom-left after a counter-clockwise turn")
	assert.False(t, markerAt(out, 39, 0))
}

func TestCorrect_BelowThresholdKeepsPage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 20, 40))
	d := &stubDetector{res: Result{Angle: 90, Confidence: 0.4}}

	out, rotated, err := Correct(context.Background(), d, img, 0.6)
	require.NoError(t, err)
	assert.False(t, rotated)
	assert.Same(t, image.Image(img), out)
}

func TestCorrect_ZeroAngleIsNoop(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 20, 40))
	d := &stubDetector{res: Result{Angle: 0, Confidence: 0.99}}

	_, rotated, err := Correct(context.Background(), d, img, 0.6)
	require.NoError(t, err)
	assert.False(t, rotated)
}

func TestCorrect_PropagatesDetectorError(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 20, 40))
	d := &stubDetector{err: errors.New("osd unavailable")}

	out, rotated, err := Correct(context.Background(), d, img, 0.6)
	assert.Error(t, err)
	assert.False(t, rotated)
	assert.Same(t, image.Image(img), out)
}

func TestRotate_SwapsDimensions(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 30, 50))

	for _, angle := range []int{90, 270, -90} {
		out := Rotate(img, angle)
		assert.Equal(t, 50, out.Bounds().Dx(), "angle %d", angle)
		assert.Equal(t, 30, out.Bounds().Dy(), "angle %d", angle)
	}

	out := Rotate(img, 180)
	assert.Equal(t, 30, out.Bounds().Dx())

	assert.Same(t, image.Image(img), Rotate(img, 0))
	assert.Same(t, image.Image(img), Rotate(img, 45))
}

func TestRotate_RoundTrips(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 6))
	img.SetGray(1, 2, color.Gray{Y: 200})

	back := Rotate(Rotate(img, 90), -90)
	require.Equal(t, img.Bounds(), back.Bounds())
	got := color.GrayModel.Convert(back.At(1, 2)).(color.Gray)
	assert.Equal(t, uint8(200), got.Y)
}

func TestParseOSD(t *testing.T) {
	report := `Page number: 0
Orientation in degrees: 180
Rotate: 180
Orientation confidence: 6.47
Script: Latin
Script confidence: 4.12
`
	res, err := parseOSD(report)
	require.NoError(t, err)
	assert.Equal(t, 180, res.Angle)
	assert.InDelta(t, 0.647, res.Confidence, 1e-9)
}

func TestParseOSD_ClampsConfidence(t *testing.T) {
	res, err := parseOSD("Rotate: 90\nOrientation confidence: 27.3\n")
	require.NoError(t, err)
	assert.Equal(t, 90, res.Angle)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestParseOSD_MissingRotate(t *testing.T) {
	_, err := parseOSD("Script: Latin\n")
	assert.Error(t, err)
}

func TestParseOSD_BadNumbers(t *testing.T) {
	_, err := parseOSD("Rotate: ninety\n")
	assert.Error(t, err)

	_, err = parseOSD("Rotate: 90\nOrientation confidence: high\n")
	assert.Error(t, err)
}

func TestHeuristic_UprightPage(t *testing.T) {
	h := &Heuristic{}
	res, err := h.Detect(context.Background(), textPage(200, 280))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Angle)
}

func TestHeuristic_UpsideDownPage(t *testing.T) {
	h := &Heuristic{}
	flipped := Rotate(textPage(200, 280), 180)
	res, err := h.Detect(context.Background(), flipped)
	require.NoError(t, err)
	assert.Equal(t, 180, res.Angle)
}

func TestHeuristic_SidewaysPages(t *testing.T) {
	h := &Heuristic{}
	page := textPage(200, 280)

	// Scanned 90 clockwise, so another 270 clockwise brings it upright.
	cw := Rotate(page, 90)
	res, err := h.Detect(context.Background(), cw)
	require.NoError(t, err)
	assert.Equal(t, 270, res.Angle)

	ccw := Rotate(page, 270)
	res, err = h.Detect(context.Background(), ccw)
	require.NoError(t, err)
	assert.Equal(t, 90, res.Angle)
}

func TestHeuristic_CorrectionRestoresUprightPage(t *testing.T) {
	h := &Heuristic{}
	sideways := Rotate(textPage(200, 280), 90)

	out, rotated, err := Correct(context.Background(), h, sideways, 0.1)
	require.NoError(t, err)
	require.True(t, rotated)
	require.Equal(t, 200, out.Bounds().Dx())
	require.Equal(t, 280, out.Bounds().Dy())

	res, err := h.Detect(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Angle)
}

func TestHeuristic_BlankPage(t *testing.T) {
	h := &Heuristic{}
	blank := image.NewGray(image.Rect(0, 0, 50, 50))
	for i := range blank.Pix {
		blank.Pix[i] = 255
	}
	res, err := h.Detect(context.Background(), blank)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Angle)
	assert.Equal(t, 0.0, res.Confidence)
}

func TestClassifier_FallsBackWhenBinaryMissing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TesseractBinary = "definitely-not-a-real-binary"
	c := NewClassifier(cfg)

	res, err := c.Detect(context.Background(), textPage(200, 280))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Angle)
}

func TestClassifier_NoFallbackSurfacesError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TesseractBinary = "definitely-not-a-real-binary"
	cfg.HeuristicFallback = false
	c := NewClassifier(cfg)

	_, err := c.Detect(context.Background(), textPage(200, 280))
	assert.Error(t, err)
}
