package orientation

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// Classifier detects page rotation with Tesseract's orientation and
// script detection mode, falling back to a projection profile heuristic
// when the binary is unavailable or OSD fails on a page.
type Classifier struct {
	binary    string
	fallback  bool
	heuristic *Heuristic
}

// NewClassifier builds a Classifier from cfg.
func NewClassifier(cfg Config) *Classifier {
	binary := cfg.TesseractBinary
	if binary == "" {
		binary = "tesseract"
	}
	return &Classifier{
		binary:    binary,
		fallback:  cfg.HeuristicFallback,
		heuristic: &Heuristic{},
	}
}

// Detect classifies the rotation of img.
func (c *Classifier) Detect(ctx context.Context, img image.Image) (Result, error) {
	res, err := c.detectOSD(ctx, img)
	if err == nil {
		return res, nil
	}
	if !c.fallback {
		return Result{}, err
	}
	slog.Debug("osd detection failed, using heuristic", "error", err)
	return c.heuristic.Detect(ctx, img)
}

// detectOSD writes the page to a temp file and runs the OSD pass
// (tesseract --psm 0), parsing the rotation and confidence from its
// report.
func (c *Classifier) detectOSD(ctx context.Context, img image.Image) (Result, error) {
	dir, err := os.MkdirTemp("", "osd-")
	if err != nil {
		return Result{}, fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	pagePath := filepath.Join(dir, "page.png")
	if err := imaging.Save(img, pagePath); err != nil {
		return Result{}, fmt.Errorf("writing page image: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.binary, pagePath, "stdout", "--psm", "0")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Result{}, fmt.Errorf("running %s: %w: %s", c.binary, err, strings.TrimSpace(stderr.String()))
	}

	return parseOSD(stdout.String())
}

// parseOSD extracts the rotation angle and normalized confidence from an
// OSD report. Tesseract prints lines such as
//
//	Rotate: 180
//	Orientation confidence: 6.47
//
// The Rotate value is already the clockwise rotation to apply to bring
// the page upright, so it maps straight onto Result.Angle. The raw
// confidence is an open-ended ratio; values around 10 and above mean a
// very sure classification, so it is scaled by 1/10 and clamped to
// [0, 1].
func parseOSD(report string) (Result, error) {
	var (
		res      Result
		gotAngle bool
	)
	scanner := bufio.NewScanner(strings.NewReader(report))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if v, ok := strings.CutPrefix(line, "Rotate:"); ok {
			angle, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return Result{}, fmt.Errorf("parsing rotation %q: %w", v, err)
			}
			res.Angle = ((angle % 360) + 360) % 360
			gotAngle = true
		}
		if v, ok := strings.CutPrefix(line, "Orientation confidence:"); ok {
			conf, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return Result{}, fmt.Errorf("parsing confidence %q: %w", v, err)
			}
			res.Confidence = min(conf/10, 1.0)
		}
	}
	if !gotAngle {
		return Result{}, fmt.Errorf("no rotation found in osd report")
	}
	return res, nil
}
