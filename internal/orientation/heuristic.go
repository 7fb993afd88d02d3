package orientation

import (
	"context"
	"image"
	"math"
)

// Heuristic classifies rotation without OCR by comparing horizontal
// projection profiles across the four candidate rotations. Text pages
// produce strongly banded profiles when the lines run horizontally, so
// the 0/180 pair scores higher than 90/270 on an upright page. Within a
// pair the ink distribution breaks the tie: most scanned pages carry
// more ink in the upper half (letterheads, headers, the first text
// block), so the candidate with the top-heavier profile wins.
type Heuristic struct{}

// Detect implements Detector.
func (h *Heuristic) Detect(_ context.Context, img image.Image) (Result, error) {
	profileH := inkProfile(img, false)
	profileV := inkProfile(img, true)

	bandH := bandedness(profileH)
	bandV := bandedness(profileV)

	total := bandH + bandV
	if total == 0 {
		return Result{Angle: 0, Confidence: 0}, nil
	}

	if bandH >= bandV {
		// Lines run horizontally: upright (no correction) or upside
		// down (180 either way).
		angle, tieConf := resolvePair(profileH, 0, 180)
		return Result{Angle: angle, Confidence: bandH / total * tieConf}, nil
	}
	// Lines run vertically. A page scanned 90 clockwise has its former
	// top edge on the right, shows up right-heavy, and needs a 270
	// clockwise turn to come upright; a left-heavy page needs 90.
	angle, tieConf := resolvePair(profileV, 90, 270)
	return Result{Angle: angle, Confidence: bandV / total * tieConf}, nil
}

// inkProfile sums dark pixels per row (or per column when vertical).
func inkProfile(img image.Image, vertical bool) []float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	n := h
	if vertical {
		n = w
	}
	profile := make([]float64, n)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			lum := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(bl>>8)
			if lum < 128 {
				if vertical {
					profile[x]++
				} else {
					profile[y]++
				}
			}
		}
	}
	return profile
}

// bandedness measures how strongly a profile alternates between inked
// and empty bands, the signature of horizontal text lines.
func bandedness(profile []float64) float64 {
	if len(profile) == 0 {
		return 0
	}
	var mean float64
	for _, v := range profile {
		mean += v
	}
	mean /= float64(len(profile))

	var variance float64
	for _, v := range profile {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(profile))
	return math.Sqrt(variance)
}

// resolvePair picks between the two rotations of an axis pair by ink
// asymmetry and returns a tie confidence in [0.5, 1].
func resolvePair(profile []float64, lowHeavy, highHeavy int) (int, float64) {
	var low, high float64
	mid := len(profile) / 2
	for i, v := range profile {
		if i < mid {
			low += v
		} else {
			high += v
		}
	}
	total := low + high
	if total == 0 {
		return lowHeavy, 0.5
	}
	if low >= high {
		return lowHeavy, 0.5 + (low-high)/total/2
	}
	return highHeavy, 0.5 + (high-low)/total/2
}
