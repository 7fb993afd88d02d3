// Package stages implements the individual image transformations of the
// preprocessing pipeline. Each stage exposes a Config with documented
// defaults and an Apply function with the contract
// Apply(img, cfg) -> (img', error); a failing stage returns an error and
// the caller decides what to do with the pre-stage bitmap.
package stages

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// StageError wraps a failure inside a named stage.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

var errNilImage = errors.New("input image is nil")

// toGray converts any image to 8-bit grayscale using the standard
// luminance weights.
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			lum := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(bl>>8)
			out.SetGray(x, y, color.Gray{Y: uint8(lum + 0.5)})
		}
	}
	return out
}

// integralImage computes the summed-area table of a grayscale image.
// Entry (x, y) holds the sum of all pixels in [0,x) x [0,y).
func integralImage(g *image.Gray) [][]uint64 {
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	sum := make([][]uint64, h+1)
	for y := range sum {
		sum[y] = make([]uint64, w+1)
	}
	for y := 0; y < h; y++ {
		var rowSum uint64
		for x := 0; x < w; x++ {
			rowSum += uint64(g.GrayAt(x, y).Y)
			sum[y+1][x+1] = sum[y][x+1] + rowSum
		}
	}
	return sum
}

// regionSum returns the pixel sum over the rectangle [x0,x1) x [y0,y1)
// from a summed-area table.
func regionSum(sum [][]uint64, x0, y0, x1, y1 int) uint64 {
	return sum[y1][x1] - sum[y0][x1] - sum[y1][x0] + sum[y0][x0]
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
