// Package recognize extracts text from processed pages for downstream
// classification. It wraps the Tesseract engine via gosseract, which
// requires the Tesseract libraries to be installed on the system.
package recognize

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/scanprep/scanprep/internal/document"
)

// Config controls text recognition.
type Config struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	// Language is the Tesseract language pack, "+"-separated for
	// multiple languages (e.g. "eng+deu").
	Language string `mapstructure:"language" yaml:"language" json:"language"`
	// PageSegMode is the Tesseract page segmentation mode. The default
	// of 3 is full automatic page segmentation.
	PageSegMode int `mapstructure:"page_seg_mode" yaml:"page_seg_mode" json:"page_seg_mode"`
	// CropTopPx cuts a strip off the top of each page before OCR.
	// Fax transmission headers sit in that strip and would otherwise
	// pollute the text with sender numbers and timestamps.
	CropTopPx int `mapstructure:"crop_top_px" yaml:"crop_top_px" json:"crop_top_px"`
}

// DefaultConfig provides the documented defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		Language:    "eng",
		PageSegMode: int(gosseract.PSM_AUTO),
		CropTopPx:   60,
	}
}

// Engine extracts text from a page image.
type Engine interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
	Close() error
}

// Tesseract is the gosseract-backed Engine. The underlying client is
// not safe for concurrent use, so calls are serialized.
type Tesseract struct {
	cfg    Config
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseract builds a Tesseract engine from cfg.
func NewTesseract(cfg Config) *Tesseract {
	return &Tesseract{cfg: cfg, client: gosseract.NewClient()}
}

// Recognize runs OCR on one page image and returns the trimmed text.
func (t *Tesseract) Recognize(ctx context.Context, img image.Image) (string, error) {
	if img == nil {
		return "", fmt.Errorf("image is nil")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := encodePage(cropTop(img, t.cfg.CropTopPx))
	if err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cfg.Language != "" {
		if err := t.client.SetLanguage(strings.Split(t.cfg.Language, "+")...); err != nil {
			return "", fmt.Errorf("setting language: %w", err)
		}
	}
	if err := t.client.SetPageSegMode(gosseract.PageSegMode(t.cfg.PageSegMode)); err != nil {
		return "", fmt.Errorf("setting page segmentation mode: %w", err)
	}
	if err := t.client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("setting image: %w", err)
	}
	text, err := t.client.Text()
	if err != nil {
		return "", fmt.Errorf("recognizing text: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Close releases the Tesseract client.
func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}

// Document runs OCR over every page of doc and joins the page texts
// with form feeds, in page order.
func Document(ctx context.Context, e Engine, doc *document.Document) (string, error) {
	texts := make([]string, 0, len(doc.Pages))
	for i := range doc.Pages {
		text, err := e.Recognize(ctx, doc.Pages[i].Image)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		texts = append(texts, text)
	}
	return strings.Join(texts, "\f"), nil
}

// cropTop removes up to px rows from the top of img. Pages shorter than
// twice the strip are left whole so tiny scans keep their content.
func cropTop(img image.Image, px int) image.Image {
	if px <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dy() < 2*px {
		return img
	}
	type subImager interface {
		SubImage(image.Rectangle) image.Image
	}
	si, ok := img.(subImager)
	if !ok {
		return img
	}
	return si.SubImage(image.Rect(b.Min.X, b.Min.Y+px, b.Max.X, b.Max.Y))
}

func encodePage(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding page: %w", err)
	}
	return buf.Bytes(), nil
}
