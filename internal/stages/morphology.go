package stages

import (
	"fmt"
	"image"
	"image/color"
)

// Morphological operation types.
const (
	MorphErosion  = "erosion"
	MorphDilation = "dilation"
	MorphOpening  = "opening"
	MorphClosing  = "closing"
)

// Kernel shapes.
const (
	KernelRect    = "rect"
	KernelEllipse = "ellipse"
	KernelCross   = "cross"
)

// MorphOperation describes one morphological operation in the ordered list.
type MorphOperation struct {
	Type        string `mapstructure:"type" yaml:"type" json:"type"`
	KernelShape string `mapstructure:"kernel_shape" yaml:"kernel_shape" json:"kernel_shape"`
	KernelSize  []int  `mapstructure:"kernel_size" yaml:"kernel_size" json:"kernel_size"`
	Iterations  int    `mapstructure:"iterations" yaml:"iterations" json:"iterations"`
}

// MorphologyConfig controls the morphological operations stage. Operations
// are applied in the order given.
type MorphologyConfig struct {
	Enabled    bool             `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Operations []MorphOperation `mapstructure:"operations" yaml:"operations" json:"operations"`
}

// DefaultMorphologyConfig provides the documented defaults.
func DefaultMorphologyConfig() MorphologyConfig {
	return MorphologyConfig{
		Enabled: false,
		Operations: []MorphOperation{
			{Type: MorphOpening, KernelShape: KernelEllipse, KernelSize: []int{3, 3}, Iterations: 1},
		},
	}
}

// ApplyMorphology runs the configured operation list on img.
func ApplyMorphology(img image.Image, cfg MorphologyConfig) (image.Image, error) {
	if img == nil {
		return nil, &StageError{Stage: "morphological_operations", Err: errNilImage}
	}

	gray := toGray(img)
	for i, op := range cfg.Operations {
		kernel, err := buildKernel(op)
		if err != nil {
			return nil, &StageError{Stage: "morphological_operations", Err: fmt.Errorf("operation %d: %w", i, err)}
		}
		iterations := op.Iterations
		if iterations < 1 {
			iterations = 1
		}
		for range iterations {
			switch op.Type {
			case MorphErosion:
				gray = erode(gray, kernel)
			case MorphDilation:
				gray = dilate(gray, kernel)
			case MorphOpening:
				gray = dilate(erode(gray, kernel), kernel)
			case MorphClosing:
				gray = erode(dilate(gray, kernel), kernel)
			default:
				return nil, &StageError{
					Stage: "morphological_operations",
					Err:   fmt.Errorf("operation %d: unknown type %q", i, op.Type),
				}
			}
		}
	}
	return gray, nil
}

// buildKernel returns the structuring element offsets for an operation.
func buildKernel(op MorphOperation) ([]image.Point, error) {
	if len(op.KernelSize) != 2 {
		return nil, fmt.Errorf("kernel size must be [width height], got %v", op.KernelSize)
	}
	kw, kh := op.KernelSize[0], op.KernelSize[1]
	if kw < 1 || kh < 1 || kw%2 == 0 || kh%2 == 0 {
		return nil, fmt.Errorf("kernel dimensions must be odd and >= 1, got %dx%d", kw, kh)
	}

	cx, cy := kw/2, kh/2
	var offsets []image.Point
	for y := 0; y < kh; y++ {
		for x := 0; x < kw; x++ {
			switch op.KernelShape {
			case KernelRect, "":
				offsets = append(offsets, image.Pt(x-cx, y-cy))
			case KernelCross:
				if x == cx || y == cy {
					offsets = append(offsets, image.Pt(x-cx, y-cy))
				}
			case KernelEllipse:
				dx := float64(x-cx) / (float64(kw) / 2)
				dy := float64(y-cy) / (float64(kh) / 2)
				if dx*dx+dy*dy <= 1.0 {
					offsets = append(offsets, image.Pt(x-cx, y-cy))
				}
			default:
				return nil, fmt.Errorf("unknown kernel shape %q", op.KernelShape)
			}
		}
	}
	return offsets, nil
}

// erode takes the minimum over the structuring element.
func erode(g *image.Gray, kernel []image.Point) *image.Gray {
	return reduce(g, kernel, func(best, v uint8) bool { return v < best })
}

// dilate takes the maximum over the structuring element.
func dilate(g *image.Gray, kernel []image.Point) *image.Gray {
	return reduce(g, kernel, func(best, v uint8) bool { return v > best })
}

func reduce(g *image.Gray, kernel []image.Point, better func(best, v uint8) bool) *image.Gray {
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			best := g.GrayAt(clamp(x+kernel[0].X, 0, w-1), clamp(y+kernel[0].Y, 0, h-1)).Y
			for _, k := range kernel[1:] {
				v := g.GrayAt(clamp(x+k.X, 0, w-1), clamp(y+k.Y, 0, h-1)).Y
				if better(best, v) {
					best = v
				}
			}
			out.SetGray(x, y, color.Gray{Y: best})
		}
	}
	return out
}
