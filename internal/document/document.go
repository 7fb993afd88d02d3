// Package document holds the page and document types passed through the
// preprocessing pipeline.
package document

import (
	"image"
	"path/filepath"
	"strings"
)

// Page is one page bitmap of a document together with its position and
// orientation-correction provenance. A Page is owned by the pipeline run
// that processes it; stages replace Image rather than sharing it.
type Page struct {
	Image                image.Image
	Index                int
	OrientationCorrected bool
}

// Document is the ordered sequence of pages for one source file.
// Page order and count match the source document at all times.
type Document struct {
	Path     string
	Basename string
	Pages    []Page
}

// New builds a Document from decoded page images in source order.
func New(path string, images []image.Image) *Document {
	pages := make([]Page, len(images))
	for i, img := range images {
		pages[i] = Page{Image: img, Index: i}
	}
	return &Document{
		Path:     path,
		Basename: Basename(path),
		Pages:    pages,
	}
}

// AnyCorrected reports whether at least one page was orientation-corrected.
func (d *Document) AnyCorrected() bool {
	for i := range d.Pages {
		if d.Pages[i].OrientationCorrected {
			return true
		}
	}
	return false
}

// CorrectedFlags returns the per-page correction flags in page order.
func (d *Document) CorrectedFlags() []bool {
	flags := make([]bool, len(d.Pages))
	for i := range d.Pages {
		flags[i] = d.Pages[i].OrientationCorrected
	}
	return flags
}

// Basename returns the file name without directory or extension,
// used to key debug artifacts and timing records.
func Basename(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
