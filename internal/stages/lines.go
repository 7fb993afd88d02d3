package stages

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// LineConfig controls the line and border removal stage. Detected line
// segments are erased by painting them white with the configured thickness.
type LineConfig struct {
	Enabled        bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	MinLineLength  int     `mapstructure:"min_line_length" yaml:"min_line_length" json:"min_line_length"`
	MaxLineGap     int     `mapstructure:"max_line_gap" yaml:"max_line_gap" json:"max_line_gap"`
	LineThickness  int     `mapstructure:"line_thickness" yaml:"line_thickness" json:"line_thickness"`
	Horizontal     bool    `mapstructure:"horizontal_lines" yaml:"horizontal_lines" json:"horizontal_lines"`
	Vertical       bool    `mapstructure:"vertical_lines" yaml:"vertical_lines" json:"vertical_lines"`
	AngleTolerance float64 `mapstructure:"angle_tolerance" yaml:"angle_tolerance" json:"angle_tolerance"`
	Threshold      int     `mapstructure:"threshold" yaml:"threshold" json:"threshold"`
}

// DefaultLineConfig provides the documented defaults.
func DefaultLineConfig() LineConfig {
	return LineConfig{
		Enabled:        false,
		MinLineLength:  50,
		MaxLineGap:     10,
		LineThickness:  3,
		Horizontal:     true,
		Vertical:       true,
		AngleTolerance: 10,
		Threshold:      100,
	}
}

// segment is a detected dark run to be erased.
type segment struct {
	x0, y0, x1, y1 int
}

// ApplyLines detects near-horizontal and near-vertical dark runs and
// erases them. Runs shorter than MinLineLength or with fewer than
// Threshold dark pixels are kept; gaps up to MaxLineGap are bridged.
func ApplyLines(img image.Image, cfg LineConfig) (image.Image, error) {
	if img == nil {
		return nil, &StageError{Stage: "line_removal", Err: errNilImage}
	}
	if cfg.MinLineLength < 1 {
		return nil, &StageError{Stage: "line_removal", Err: fmt.Errorf("min line length must be >= 1, got %d", cfg.MinLineLength)}
	}

	gray := toGray(img)
	var segments []segment
	if cfg.Horizontal {
		segments = append(segments, sweepLines(gray, cfg, false)...)
	}
	if cfg.Vertical {
		segments = append(segments, sweepLines(gray, cfg, true)...)
	}
	if len(segments) == 0 {
		return gray, nil
	}

	out := image.NewGray(gray.Bounds())
	copy(out.Pix, gray.Pix)
	thickness := cfg.LineThickness
	if thickness < 1 {
		thickness = 1
	}
	for _, s := range segments {
		eraseSegment(out, s, thickness)
	}
	return out, nil
}

// sweepLines scans scanlines at angles within AngleTolerance of the axis
// and collects dark runs that qualify as lines. For vertical detection the
// image is walked column-wise.
func sweepLines(g *image.Gray, cfg LineConfig, vertical bool) []segment {
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	tolerance := cfg.AngleTolerance
	if tolerance < 0 {
		tolerance = 0
	}

	var segments []segment
	// Sweeping in whole-degree steps keeps the scan cheap and is precise
	// enough for scanner skew.
	for deg := -tolerance; deg <= tolerance; deg += 1 {
		slope := math.Tan(deg * math.Pi / 180)
		if vertical {
			for x := 0; x < w; x++ {
				segments = append(segments, traceRuns(g, cfg, x, slope, true, w, h)...)
			}
		} else {
			for y := 0; y < h; y++ {
				segments = append(segments, traceRuns(g, cfg, y, slope, false, w, h)...)
			}
		}
		if tolerance == 0 {
			break
		}
	}
	return segments
}

// traceRuns walks one scanline (row for horizontal, column for vertical,
// offset by the sweep slope) and emits qualifying dark runs.
func traceRuns(g *image.Gray, cfg LineConfig, base int, slope float64, vertical bool, w, h int) []segment {
	const darkLimit = 128

	length := w
	if vertical {
		length = h
	}

	var segments []segment
	runStart, gap, dark := -1, 0, 0

	flush := func(end int) {
		if runStart < 0 {
			return
		}
		if end-runStart >= cfg.MinLineLength && dark >= cfg.Threshold {
			x0, y0 := pointOnLine(base, runStart, slope, vertical)
			x1, y1 := pointOnLine(base, end-1, slope, vertical)
			segments = append(segments, segment{x0, y0, x1, y1})
		}
		runStart, gap, dark = -1, 0, 0
	}

	for i := 0; i < length; i++ {
		x, y := pointOnLine(base, i, slope, vertical)
		if x < 0 || x >= w || y < 0 || y >= h {
			flush(i - gap)
			continue
		}
		if g.GrayAt(x, y).Y < darkLimit {
			if runStart < 0 {
				runStart = i
			}
			gap = 0
			dark++
		} else if runStart >= 0 {
			gap++
			if gap > cfg.MaxLineGap {
				flush(i - gap + 1)
			}
		}
	}
	flush(length - gap)
	return segments
}

// pointOnLine maps a position along a swept scanline to pixel coordinates.
func pointOnLine(base, i int, slope float64, vertical bool) (int, int) {
	offset := int(math.Round(slope * float64(i)))
	if vertical {
		return base + offset, i
	}
	return i, base + offset
}

// eraseSegment paints a segment white with the given thickness.
func eraseSegment(g *image.Gray, s segment, thickness int) {
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	dx, dy := s.x1-s.x0, s.y1-s.y0
	steps := max(abs(dx), abs(dy))
	if steps == 0 {
		steps = 1
	}
	half := thickness / 2

	for i := 0; i <= steps; i++ {
		x := s.x0 + dx*i/steps
		y := s.y0 + dy*i/steps
		for t := -half; t <= half; t++ {
			// Thicken perpendicular to the dominant direction.
			px, py := x, y+t
			if abs(dy) > abs(dx) {
				px, py = x+t, y
			}
			if px >= 0 && px < w && py >= 0 && py < h {
				g.SetGray(px, py, color.Gray{Y: 255})
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
