// Package orientation detects and corrects page rotation for scanned
// documents. Pages arrive rotated by multiples of 90 degrees depending on
// how they were fed into the scanner; detection classifies the rotation
// among 0, 90, 180 and 270 degrees and correction rotates the page back
// upright when the classifier is confident enough.
package orientation

import (
	"context"
	"image"

	"github.com/disintegration/imaging"
)

// Candidate rotation angles, clockwise degrees.
var Angles = []int{0, 90, 180, 270}

// Config controls orientation detection and correction.
type Config struct {
	Enabled             bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold" json:"confidence_threshold"`
	TesseractBinary     string  `mapstructure:"tesseract_binary" yaml:"tesseract_binary" json:"tesseract_binary"`
	HeuristicFallback   bool    `mapstructure:"heuristic_fallback" yaml:"heuristic_fallback" json:"heuristic_fallback"`
}

// DefaultConfig provides the documented defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		ConfidenceThreshold: 0.6,
		TesseractBinary:     "tesseract",
		HeuristicFallback:   true,
	}
}

// Result is a single orientation classification.
type Result struct {
	// Angle is the clockwise rotation to apply to bring the page
	// upright, matching the convention of tesseract's OSD report.
	Angle int
	// Confidence is normalized to [0, 1].
	Confidence float64
}

// Detector classifies the rotation of a page image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) (Result, error)
}

// Correct rotates img upright if the detector reports a non-zero angle
// with confidence at or above the threshold. The detected angle is the
// clockwise rotation to apply. It returns the possibly rotated image and
// whether a rotation was applied. Detection errors are returned to the
// caller; the page is left untouched in that case.
func Correct(ctx context.Context, d Detector, img image.Image, threshold float64) (image.Image, bool, error) {
	res, err := d.Detect(ctx, img)
	if err != nil {
		return img, false, err
	}
	if res.Angle == 0 || res.Confidence < threshold {
		return img, false, nil
	}
	return Rotate(img, res.Angle), true, nil
}

// Rotate turns img by the given clockwise angle, which must be a multiple
// of 90. Other angles return the image unchanged.
func Rotate(img image.Image, clockwiseDegrees int) image.Image {
	switch ((clockwiseDegrees % 360) + 360) % 360 {
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
