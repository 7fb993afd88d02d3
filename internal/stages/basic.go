package stages

import (
	"fmt"
	"image"
	"image/color"
	"sort"

	"github.com/disintegration/imaging"
)

// BasicConfig controls the basic preprocessing stage: grayscale conversion,
// adaptive binarization, median blur, optional sharpening and contrast
// enhancement.
type BasicConfig struct {
	Enabled           bool                    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	AdaptiveThreshold AdaptiveThresholdConfig `mapstructure:"adaptive_threshold" yaml:"adaptive_threshold" json:"adaptive_threshold"`
	MedianBlur        MedianBlurConfig        `mapstructure:"median_blur" yaml:"median_blur" json:"median_blur"`
	Sharpen           SharpenConfig           `mapstructure:"sharpen" yaml:"sharpen" json:"sharpen"`
	Contrast          ContrastConfig          `mapstructure:"contrast_enhancement" yaml:"contrast_enhancement" json:"contrast_enhancement"`
}

// AdaptiveThresholdConfig parameterizes mean adaptive binarization.
type AdaptiveThresholdConfig struct {
	BlockSize int `mapstructure:"block_size" yaml:"block_size" json:"block_size"`
	CValue    int `mapstructure:"c_value" yaml:"c_value" json:"c_value"`
}

// MedianBlurConfig parameterizes the median filter pass.
type MedianBlurConfig struct {
	KernelSize int `mapstructure:"kernel_size" yaml:"kernel_size" json:"kernel_size"`
}

// SharpenConfig toggles the sharpening pass.
type SharpenConfig struct {
	Enabled bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Sigma   float64 `mapstructure:"sigma" yaml:"sigma" json:"sigma"`
}

// ContrastConfig parameterizes contrast enhancement. Factor follows the
// convention of the contrast enhancers common in imaging toolkits:
// 1.0 leaves the image unchanged, 2.0 doubles perceived contrast.
type ContrastConfig struct {
	Factor float64 `mapstructure:"factor" yaml:"factor" json:"factor"`
}

// DefaultBasicConfig provides the documented defaults.
func DefaultBasicConfig() BasicConfig {
	return BasicConfig{
		Enabled:           true,
		AdaptiveThreshold: AdaptiveThresholdConfig{BlockSize: 15, CValue: 11},
		MedianBlur:        MedianBlurConfig{KernelSize: 3},
		Sharpen:           SharpenConfig{Enabled: true, Sigma: 1.0},
		Contrast:          ContrastConfig{Factor: 2.0},
	}
}

// ApplyBasic runs the basic preprocessing sequence on img.
func ApplyBasic(img image.Image, cfg BasicConfig) (image.Image, error) {
	if img == nil {
		return nil, &StageError{Stage: "basic_preprocessing", Err: errNilImage}
	}

	gray := toGray(img)

	binary, err := AdaptiveThreshold(gray, cfg.AdaptiveThreshold)
	if err != nil {
		return nil, &StageError{Stage: "basic_preprocessing", Err: err}
	}

	blurred, err := MedianBlur(binary, cfg.MedianBlur.KernelSize)
	if err != nil {
		return nil, &StageError{Stage: "basic_preprocessing", Err: err}
	}

	var out image.Image = blurred
	if cfg.Sharpen.Enabled {
		sigma := cfg.Sharpen.Sigma
		if sigma <= 0 {
			sigma = 1.0
		}
		out = imaging.Sharpen(out, sigma)
	}
	if cfg.Contrast.Factor != 1.0 && cfg.Contrast.Factor > 0 {
		out = imaging.AdjustContrast(out, contrastPercentage(cfg.Contrast.Factor))
	}
	return out, nil
}

// contrastPercentage maps a multiplicative contrast factor onto the
// -100..100 percentage scale used by imaging.AdjustContrast.
func contrastPercentage(factor float64) float64 {
	p := (factor - 1.0) * 50
	if p > 100 {
		p = 100
	}
	if p < -100 {
		p = -100
	}
	return p
}

// AdaptiveThreshold binarizes a grayscale image against the local mean of
// a block_size x block_size neighborhood minus c_value. Pixels brighter
// than the local threshold become white, all others black.
func AdaptiveThreshold(g *image.Gray, cfg AdaptiveThresholdConfig) (*image.Gray, error) {
	if cfg.BlockSize < 3 || cfg.BlockSize%2 == 0 {
		return nil, fmt.Errorf("adaptive threshold block size must be odd and >= 3, got %d", cfg.BlockSize)
	}

	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	sum := integralImage(g)
	out := image.NewGray(image.Rect(0, 0, w, h))
	half := cfg.BlockSize / 2

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x0 := clamp(x-half, 0, w)
			y0 := clamp(y-half, 0, h)
			x1 := clamp(x+half+1, 0, w)
			y1 := clamp(y+half+1, 0, h)
			area := uint64((x1 - x0) * (y1 - y0))
			mean := regionSum(sum, x0, y0, x1, y1) / area

			v := uint8(0)
			if uint64(g.GrayAt(x, y).Y)+uint64(cfg.CValue) > mean {
				v = 255
			}
			out.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return out, nil
}

// MedianBlur applies a median filter with the given odd kernel size.
func MedianBlur(g *image.Gray, kernelSize int) (*image.Gray, error) {
	if kernelSize < 1 || kernelSize%2 == 0 {
		return nil, fmt.Errorf("median blur kernel size must be odd and >= 1, got %d", kernelSize)
	}
	if kernelSize == 1 {
		return g, nil
	}

	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	half := kernelSize / 2
	window := make([]uint8, 0, kernelSize*kernelSize)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			window = window[:0]
			for dy := -half; dy <= half; dy++ {
				for dx := -half; dx <= half; dx++ {
					sx := clamp(x+dx, 0, w-1)
					sy := clamp(y+dy, 0, h-1)
					window = append(window, g.GrayAt(sx, sy).Y)
				}
			}
			sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
			out.SetGray(x, y, color.Gray{Y: window[len(window)/2]})
		}
	}
	return out, nil
}
