// Package reconstruct regenerates a source document from its processed
// pages. Regeneration only happens when at least one page was rotated
// upright; a document whose pages all kept their scanned orientation is
// left byte for byte as it arrived. The rebuilt file replaces the
// original atomically, and unlike pipeline stages a reconstruction
// failure is fatal for the document.
package reconstruct

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/image/tiff"

	"github.com/scanprep/scanprep/internal/document"
)

// Reconstructor rebuilds documents from processed pages. Safe for
// concurrent use; rebuilds are serialized so two workers never race on
// the same target file.
type Reconstructor struct {
	mu sync.Mutex
}

// New returns a ready Reconstructor.
func New() *Reconstructor {
	return &Reconstructor{}
}

// Reconstruct rebuilds doc's source file from its pages if any page was
// orientation corrected. It returns the document path and whether a
// rebuild happened. The original file is only ever replaced by a
// complete rebuilt document.
func (r *Reconstructor) Reconstruct(doc *document.Document) (string, bool, error) {
	if doc == nil || len(doc.Pages) == 0 {
		return "", false, fmt.Errorf("document has no pages")
	}
	if !doc.AnyCorrected() {
		return doc.Path, false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	switch strings.ToLower(filepath.Ext(doc.Path)) {
	case ".pdf":
		err = r.rebuildPDF(doc)
	case ".tif", ".tiff":
		err = r.rebuildTIFF(doc)
	default:
		err = fmt.Errorf("unsupported file type %q", filepath.Ext(doc.Path))
	}
	if err != nil {
		return "", false, fmt.Errorf("reconstructing %s: %w", doc.Basename, err)
	}
	return doc.Path, true, nil
}

// rebuildPDF writes every page bitmap to disk and imports them into a
// fresh PDF, one image per page in page order, then swaps it in.
func (r *Reconstructor) rebuildPDF(doc *document.Document) error {
	tempDir, err := os.MkdirTemp(filepath.Dir(doc.Path), ".rebuild-*")
	if err != nil {
		return fmt.Errorf("creating temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	pagePaths := make([]string, len(doc.Pages))
	for i := range doc.Pages {
		p := filepath.Join(tempDir, fmt.Sprintf("page_%04d.png", i))
		if err := imaging.Save(doc.Pages[i].Image, p); err != nil {
			return fmt.Errorf("writing page %d: %w", i, err)
		}
		pagePaths[i] = p
	}

	rebuilt := filepath.Join(tempDir, "rebuilt.pdf")
	if err := api.ImportImagesFile(pagePaths, rebuilt, nil, nil); err != nil {
		return fmt.Errorf("building pdf: %w", err)
	}

	if err := os.Rename(rebuilt, doc.Path); err != nil {
		return fmt.Errorf("replacing original: %w", err)
	}
	return nil
}

// rebuildTIFF re-encodes the single page and swaps it in.
func (r *Reconstructor) rebuildTIFF(doc *document.Document) error {
	if len(doc.Pages) != 1 {
		return fmt.Errorf("tiff documents carry one page, got %d", len(doc.Pages))
	}

	tmp, err := os.CreateTemp(filepath.Dir(doc.Path), ".rebuild-*.tif")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	encodeErr := tiff.Encode(tmp, doc.Pages[0].Image, &tiff.Options{Compression: tiff.Deflate})
	if closeErr := tmp.Close(); encodeErr == nil {
		encodeErr = closeErr
	}
	if encodeErr != nil {
		return fmt.Errorf("encoding tiff: %w", encodeErr)
	}

	if err := os.Rename(tmpPath, doc.Path); err != nil {
		return fmt.Errorf("replacing original: %w", err)
	}
	return nil
}
